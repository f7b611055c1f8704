package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tenantctl/tenantctl/pkg/config"
	"github.com/tenantctl/tenantctl/pkg/device"
	"github.com/tenantctl/tenantctl/pkg/diff"
	"github.com/tenantctl/tenantctl/pkg/script"
	"github.com/tenantctl/tenantctl/pkg/shared"
	"github.com/tenantctl/tenantctl/pkg/util"
)

// Locker serializes reconciliation against a device. Implemented by
// mutex.Mutex; tests substitute fakes.
type Locker interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context)
}

// InventoryStore persists the shared-resource inventory on the device.
// Implemented by device.RecordClient.
type InventoryStore interface {
	LoadInventory(ctx context.Context) (*shared.Inventory, error)
	SaveInventory(ctx context.Context, inv *shared.Inventory) error
}

// Options configure an Orchestrator. Translator, Submitter and Locker are
// required; Inventory and Trace are optional.
type Options struct {
	Device     string
	User       string
	Translator config.Translator
	Submitter  device.Submitter
	Locker     Locker
	Inventory  InventoryStore

	// Execute submits scripts to the device; the default is a dry run
	// that synthesizes but never submits.
	Execute bool

	// Trace collects per-tenant diagnostic bundles when set.
	Trace *Trace
}

// Orchestrator runs the reconciliation sequence for one request: acquire
// the device lease, audit each tenant in order, aggregate results, release.
type Orchestrator struct {
	opts   Options
	engine *diff.Engine
	synth  *script.Synthesizer
}

// NewOrchestrator creates an orchestrator with default diff and synthesis
// rule tables.
func NewOrchestrator(opts Options) *Orchestrator {
	return &Orchestrator{
		opts:   opts,
		engine: diff.NewEngine(),
		synth:  script.NewSynthesizer(),
	}
}

// tenantPass is one slot in the processing order. The Common partition gets
// two: additions first, deletions last.
type tenantPass struct {
	name     string
	noDelete bool
}

// passOrder realizes the two-pass convention: Common first with deletions
// suppressed, the other tenants in list order, Common again for deletions.
func passOrder(tenants []string) []tenantPass {
	hasCommon := false
	var rest []string
	for _, t := range tenants {
		if t == config.CommonTenant {
			hasCommon = true
		} else {
			rest = append(rest, t)
		}
	}

	var passes []tenantPass
	if hasCommon {
		passes = append(passes, tenantPass{name: config.CommonTenant, noDelete: true})
	}
	for _, t := range rest {
		passes = append(passes, tenantPass{name: t})
	}
	if hasCommon {
		passes = append(passes, tenantPass{name: config.CommonTenant})
	}
	return passes
}

// AuditAll reconciles every named tenant. A lease failure fails the whole
// request before any tenant is touched; any other per-tenant error becomes
// a failed Result for that tenant only and processing continues.
func (o *Orchestrator) AuditAll(ctx context.Context, tenants []string, decl config.Declaration) ([]*Result, error) {
	requestID := uuid.New().String()
	log := util.WithRequest(requestID).WithField("device", o.opts.Device)

	if err := o.opts.Locker.Acquire(ctx); err != nil {
		log.WithField("error", err.Error()).Warn("Device lease not acquired")
		return nil, err
	}
	defer o.opts.Locker.Release(ctx)

	inv := shared.NewInventory()
	if o.opts.Inventory != nil {
		loaded, err := o.opts.Inventory.LoadInventory(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading shared inventory: %w", err)
		}
		inv = loaded
	}

	var results []*Result
	for _, pass := range passOrder(tenants) {
		result := o.auditTenant(ctx, requestID, pass, decl, inv)
		results = append(results, result)
		log.WithField("tenant", pass.name).
			WithField("code", string(result.Code)).
			Info("Tenant audit finished")
	}

	if o.opts.Inventory != nil && o.opts.Execute {
		if err := o.opts.Inventory.SaveInventory(ctx, inv); err != nil {
			log.WithField("error", err.Error()).Warn("Shared inventory not persisted")
		}
	}

	return results, nil
}

// auditTenant runs one tenant's reconciliation pipeline. Every error path
// lands in a failed Result so sibling tenants keep processing.
func (o *Orchestrator) auditTenant(ctx context.Context, requestID string, pass tenantPass, decl config.Declaration, inv *shared.Inventory) *Result {
	start := time.Now()
	result := &Result{
		Code:   CodeSuccess,
		Tenant: pass.name,
		Host:   o.opts.Device,
	}
	fail := func(err error) *Result {
		result.Code = CodeFailed
		result.Message = err.Error()
		result.RunTime = time.Since(start)
		o.logEvent(requestID, pass.name, 0, err, start)
		return result
	}

	desired, err := o.opts.Translator.Desired(ctx, pass.name, decl)
	if err != nil {
		return fail(fmt.Errorf("deriving desired state: %w", err))
	}
	current, err := o.opts.Translator.Current(ctx, pass.name)
	if err != nil {
		return fail(fmt.Errorf("reading current state: %w", err))
	}

	entries, err := o.engine.Diff(current, desired)
	if err != nil {
		return fail(err)
	}
	if err := shared.ApplyRefCounts(entries, desired, inv); err != nil {
		return fail(err)
	}

	rc := &script.Context{
		RequestID:         requestID,
		Device:            o.opts.Device,
		Tenant:            pass.name,
		FirstPassNoDelete: pass.noDelete,
	}
	sc, err := o.synth.Synthesize(rc, desired, current, entries)
	if err != nil {
		return fail(err)
	}

	if o.opts.Trace != nil {
		o.opts.Trace.add(TenantTrace{
			Tenant:  pass.name,
			Desired: desired,
			Current: current,
			Diff:    entries,
			Script:  sc.Assemble(),
		})
	}

	if sc.Empty() {
		result.Code = CodeNoChange
		result.Message = "no changes"
		result.RunTime = time.Since(start)
		return result
	}

	if !o.opts.Execute {
		result.Message = fmt.Sprintf("dry run: %d commands not submitted", sc.Commands())
		result.RunTime = time.Since(start)
		return result
	}

	if _, err := o.opts.Submitter.Submit(ctx, sc); err != nil {
		return fail(err)
	}

	result.Message = fmt.Sprintf("submitted %d commands", sc.Commands())
	result.RunTime = time.Since(start)
	o.logEvent(requestID, pass.name, sc.Commands(), nil, start)
	return result
}

func (o *Orchestrator) logEvent(requestID, tenant string, commands int, opErr error, start time.Time) {
	event := NewEvent(o.opts.User, o.opts.Device, "audit").
		WithRequest(requestID).
		WithTenant(tenant).
		WithCommands(commands).
		WithExecuteMode(o.opts.Execute).
		WithDuration(time.Since(start))
	if opErr != nil {
		event.WithError(opErr)
	} else {
		event.WithSuccess()
	}
	if err := Log(event); err != nil {
		util.Warnf("audit: event not logged: %v", err)
	}
}
