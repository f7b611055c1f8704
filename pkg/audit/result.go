package audit

import "time"

// Code classifies a tenant's reconciliation outcome.
type Code string

const (
	CodeSuccess  Code = "success"
	CodeNoChange Code = "no change"
	CodeFailed   Code = "failed"
)

// Result is one tenant's reconciliation outcome. Created when the tenant's
// audit completes and immutable afterward.
type Result struct {
	Code     Code          `json:"code"`
	Message  string        `json:"message"`
	Tenant   string        `json:"tenant"`
	Host     string        `json:"host"`
	RunTime  time.Duration `json:"runTime"`
	Warnings []string      `json:"warnings,omitempty"`
}

// OK reports whether the result is a success or a no-op.
func (r *Result) OK() bool {
	return r.Code == CodeSuccess || r.Code == CodeNoChange
}

// Succeeded reports whether every tenant result is a success or a no-op.
// A request with any failed tenant is a partial failure, never collapsed
// into a total one.
func Succeeded(results []*Result) bool {
	for _, r := range results {
		if !r.OK() {
			return false
		}
	}
	return true
}
