package main

import (
	"context"
	"fmt"
	"time"

	"github.com/tenantctl/tenantctl/pkg/audit"
	"github.com/tenantctl/tenantctl/pkg/cli"
	"github.com/tenantctl/tenantctl/pkg/config"
	"github.com/tenantctl/tenantctl/pkg/device"
)

// auditPipeline bundles the collaborators for one reconciliation request.
// The audit and diff commands wire it from a live device session; tests
// wire it from fakes.
type auditPipeline struct {
	device     string
	user       string
	translator config.Translator
	submitter  device.Submitter
	locker     audit.Locker
	inventory  audit.InventoryStore
	execute    bool
	trace      *audit.Trace
}

// run reconciles every tenant named in the declaration and returns the
// per-tenant results.
func (p *auditPipeline) run(ctx context.Context, decl config.Declaration) ([]*audit.Result, error) {
	orch := audit.NewOrchestrator(audit.Options{
		Device:     p.device,
		User:       p.user,
		Translator: p.translator,
		Submitter:  p.submitter,
		Locker:     p.locker,
		Inventory:  p.inventory,
		Execute:    p.execute,
		Trace:      p.trace,
	})
	return orch.AuditAll(ctx, decl.Tenants(), decl)
}

// snapshotSaver persists the applied config graph per tenant. Implemented
// by device.RecordClient.
type snapshotSaver interface {
	SaveTenantGraph(ctx context.Context, tenant string, g config.Graph) error
}

// saveSnapshots records each successfully applied tenant's desired graph as
// the device's new current state. Called only after an executed audit.
func saveSnapshots(ctx context.Context, saver snapshotSaver, translator config.Translator, decl config.Declaration, results []*audit.Result) error {
	saved := map[string]bool{}
	for _, r := range results {
		if !r.OK() || saved[r.Tenant] {
			continue
		}
		saved[r.Tenant] = true

		desired, err := translator.Desired(ctx, r.Tenant, decl)
		if err != nil {
			return fmt.Errorf("tenant %s: %w", r.Tenant, err)
		}
		if err := saver.SaveTenantGraph(ctx, r.Tenant, desired); err != nil {
			return fmt.Errorf("tenant %s: %w", r.Tenant, err)
		}
	}
	return nil
}

// printResults renders the per-tenant result table.
func printResults(results []*audit.Result) {
	t := cli.NewTable("TENANT", "STATUS", "TIME", "MESSAGE")
	for _, r := range results {
		t.Row(r.Tenant, cli.Status(string(r.Code)), r.RunTime.Round(time.Millisecond).String(), r.Message)
	}
	t.Flush()
}
