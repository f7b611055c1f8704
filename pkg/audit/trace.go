package audit

import (
	"encoding/json"
	"sync"

	"github.com/tenantctl/tenantctl/pkg/config"
	"github.com/tenantctl/tenantctl/pkg/diff"
)

// TenantTrace is the diagnostic bundle for one tenant's audit: both graphs,
// the final diff and the generated script text.
type TenantTrace struct {
	Tenant  string       `json:"tenant"`
	Desired config.Graph `json:"desired"`
	Current config.Graph `json:"current"`
	Diff    []diff.Entry `json:"diff"`
	Script  string       `json:"script"`
}

// Trace collects per-tenant diagnostic bundles. It is only attached to an
// orchestrator when the caller explicitly asks for diagnostics.
type Trace struct {
	mu      sync.Mutex
	tenants []TenantTrace
}

func (t *Trace) add(tt TenantTrace) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tenants = append(t.tenants, tt)
}

// Tenants returns the collected bundles in processing order.
func (t *Trace) Tenants() []TenantTrace {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TenantTrace, len(t.tenants))
	copy(out, t.tenants)
	return out
}

// MarshalJSON renders the bundle list.
func (t *Trace) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Tenants())
}
