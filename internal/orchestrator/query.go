package orchestrator

import (
	"context"

	"github.com/shamimkhan539/PressBox-sub006/internal/model"
)

// List returns every registered site, annotated with any in-flight
// lifecycle operation.
func (o *Orchestrator) List(ctx context.Context) ([]*model.Site, error) {
	sites, err := o.reg.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, site := range sites {
		site.BusyOp = o.inflightOp(site.ID)
	}
	return sites, nil
}

// Get returns one site by id.
func (o *Orchestrator) Get(ctx context.Context, id string) (*model.Site, error) {
	site, err := o.reg.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	site.BusyOp = o.inflightOp(site.ID)
	return site, nil
}

// GetByName returns one site by its unique name.
func (o *Orchestrator) GetByName(ctx context.Context, name string) (*model.Site, error) {
	site, err := o.reg.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	site.BusyOp = o.inflightOp(site.ID)
	return site, nil
}

func (o *Orchestrator) inflightOp(siteID string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inflight[siteID]
}

// Logs returns the tail of the site's process/container output.
func (o *Orchestrator) Logs(ctx context.Context, id string, tailLines int) (string, error) {
	site, err := o.reg.Get(ctx, id)
	if err != nil {
		return "", err
	}
	b, err := o.backendFor(site.Environment)
	if err != nil {
		return "", err
	}
	return b.Logs(ctx, site, tailLines)
}

// DBServerStatuses reports every shared database engine with a live
// connectivity probe.
func (o *Orchestrator) DBServerStatuses(ctx context.Context) []model.DBServer {
	return o.db.Statuses(ctx)
}

// PortLeases lists the ports currently leased to sites.
func (o *Orchestrator) PortLeases() []model.PortLease {
	return o.allocator.Leases()
}

// HostsEntries lists the managed hosts-file entries.
func (o *Orchestrator) HostsEntries() ([]model.HostsEntry, error) {
	return o.hosts.Entries()
}

// StopSharedInfra stops the shared database servers. Explicit-only; no
// site operation ever calls this.
func (o *Orchestrator) StopSharedInfra(ctx context.Context) error {
	return o.db.StopAll(ctx)
}
