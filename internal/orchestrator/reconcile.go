package orchestrator

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/shamimkhan539/PressBox-sub006/internal/model"
)

// Reconcile aligns persisted site state with reality after a daemon
// start. Sites recorded as running or starting are re-probed: the ones
// still answering are re-adopted (port lease rebuilt), the rest are
// forced to error rather than silently trusted. Leases are ephemeral, so
// this is the only path that rebuilds them.
func (o *Orchestrator) Reconcile(ctx context.Context) error {
	sites, err := o.reg.List(ctx)
	if err != nil {
		return err
	}

	// Probe supposedly-live sites in parallel; each probe has its own
	// timeout so one dead site cannot slow down daemon startup.
	var running atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, site := range sites {
		switch site.Status {
		case model.StatusRunning, model.StatusStarting:
			g.Go(func() error {
				if o.reconcileLive(gctx, site) {
					running.Add(1)
				}
				return nil
			})
		case model.StatusStopping:
			// A stop was cut short by the previous shutdown. The process
			// may or may not be gone; finish the job.
			o.finishStop(ctx, site)
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	sitesRunning.Set(float64(running.Load()))
	return nil
}

// reconcileLive re-verifies one supposedly-live site. Reports whether
// the site is confirmed running.
func (o *Orchestrator) reconcileLive(ctx context.Context, site *model.Site) bool {
	attemptCtx, cancel := context.WithTimeout(ctx, livenessAttempt)
	err := o.probe(attemptCtx, probeURL(site))
	cancel()

	if err == nil {
		o.allocator.Adopt(site.Port, site.ID)
		if site.Status != model.StatusRunning {
			if serr := o.setStatus(ctx, site, model.StatusRunning); serr != nil {
				o.logger.Error().Err(serr).Str("site", site.ID).Msg("persist reconciled status")
			}
		}
		o.logger.Info().Str("site", site.ID).Int("port", site.Port).Msg("re-adopted running site")
		return true
	}

	driftDetected.Inc()
	o.logger.Warn().
		Err(err).
		Str("site", site.ID).
		Str("recorded_status", site.Status).
		Msg("site recorded as live but not reachable, forcing error state")

	if serr := o.setStatus(ctx, site, model.StatusError); serr != nil {
		o.logger.Error().Err(serr).Str("site", site.ID).Msg("persist drift status")
	}
	return false
}

func (o *Orchestrator) finishStop(ctx context.Context, site *model.Site) {
	b, err := o.backendFor(site.Environment)
	if err == nil {
		if serr := b.Stop(ctx, site); serr != nil {
			o.logger.Warn().Err(serr).Str("site", site.ID).Msg("finish interrupted stop")
		}
	}
	o.allocator.Release(site.Port)
	if serr := o.setStatus(ctx, site, model.StatusStopped); serr != nil {
		o.logger.Error().Err(serr).Str("site", site.ID).Msg("persist stopped status")
	}
}
