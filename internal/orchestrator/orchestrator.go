// Package orchestrator coordinates site lifecycle operations across the
// port allocator, hosts synchronizer, shared database servers, backends
// and the registry. It is the only layer that decides user-visible
// fallback behavior; everything below it returns typed errors.
package orchestrator

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/shamimkhan539/PressBox-sub006/internal/backend"
	"github.com/shamimkhan539/PressBox-sub006/internal/config"
	"github.com/shamimkhan539/PressBox-sub006/internal/hosts"
	"github.com/shamimkhan539/PressBox-sub006/internal/model"
	"github.com/shamimkhan539/PressBox-sub006/internal/ports"
	"github.com/shamimkhan539/PressBox-sub006/internal/registry"
)

const (
	livenessBudget  = 10 * time.Second
	livenessPoll    = 500 * time.Millisecond
	livenessAttempt = 2 * time.Second

	// How long delete waits for an in-flight transition to settle before
	// forcing cleanup.
	deleteSettleWait = 5 * time.Second
	deleteSettlePoll = 100 * time.Millisecond
)

var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pressbox_site_operations_total",
		Help: "Site lifecycle operations by type and result",
	}, []string{"operation", "result"})
	opDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pressbox_site_operation_duration_seconds",
		Help:    "Duration of site lifecycle operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	sitesRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pressbox_sites_running",
		Help: "Number of sites currently in the running state",
	})
	driftDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pressbox_drift_detected_total",
		Help: "Reconciliation passes that found state drift",
	})
)

// DBServerManager is the slice of the shared database server manager the
// orchestrator needs.
type DBServerManager interface {
	EnsureRunning(ctx context.Context, engine model.Engine) error
	EnsureDatabase(ctx context.Context, engine model.Engine, name, user, password string) error
	Statuses(ctx context.Context) []model.DBServer
	StopAll(ctx context.Context) error
}

// ProbeFunc performs a single liveness attempt against a site URL.
type ProbeFunc func(ctx context.Context, url string) error

// Orchestrator owns the site lifecycle state machine.
type Orchestrator struct {
	logger    zerolog.Logger
	cfg       *config.Config
	reg       *registry.Store
	allocator *ports.Allocator
	hosts     *hosts.Synchronizer
	db        DBServerManager
	backends  map[model.Environment]backend.Backend
	probe     ProbeFunc

	liveBudget time.Duration
	livePoll   time.Duration

	// inflight holds at most one operation name per site id. A second
	// operation against a transitioning site is rejected, never queued.
	mu       sync.Mutex
	inflight map[string]string
}

// New wires the orchestrator. The probe may be nil, in which case a
// plain HTTP HEAD probe is used.
func New(
	logger zerolog.Logger,
	cfg *config.Config,
	reg *registry.Store,
	allocator *ports.Allocator,
	hostsSync *hosts.Synchronizer,
	db DBServerManager,
	backends map[model.Environment]backend.Backend,
	probe ProbeFunc,
) *Orchestrator {
	if probe == nil {
		probe = httpProbe
	}
	return &Orchestrator{
		logger:     logger.With().Str("component", "orchestrator").Logger(),
		cfg:        cfg,
		reg:        reg,
		allocator:  allocator,
		hosts:      hostsSync,
		db:         db,
		backends:   backends,
		probe:      probe,
		liveBudget: livenessBudget,
		livePoll:   livenessPoll,
		inflight:   make(map[string]string),
	}
}

// backendFor returns the backend owning the site's environment. The
// non-owning backend is never called for a site.
func (o *Orchestrator) backendFor(env model.Environment) (backend.Backend, error) {
	b, ok := o.backends[env]
	if !ok {
		return nil, model.E(model.KindBackendUnavailable, "no backend for environment %q", env)
	}
	return b, nil
}

// begin claims the per-site operation slot or rejects with a conflict.
func (o *Orchestrator) begin(siteID, op string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if current, busy := o.inflight[siteID]; busy {
		return model.E(model.KindConflict, "site is busy: %s in progress", current)
	}
	o.inflight[siteID] = op
	return nil
}

func (o *Orchestrator) end(siteID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, siteID)
}

// beginSettled claims the slot, waiting up to deleteSettleWait for an
// in-flight transition to finish. Used by delete only; after the wait it
// forces the claim so cleanup always proceeds.
func (o *Orchestrator) beginSettled(siteID, op string) {
	deadline := time.Now().Add(deleteSettleWait)
	for time.Now().Before(deadline) {
		if err := o.begin(siteID, op); err == nil {
			return
		}
		time.Sleep(deleteSettlePoll)
	}
	o.logger.Warn().Str("site", siteID).Msg("in-flight operation did not settle, forcing cleanup")
	o.mu.Lock()
	o.inflight[siteID] = op
	o.mu.Unlock()
}

func (o *Orchestrator) observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = string(model.KindOf(err))
	}
	opsTotal.WithLabelValues(op, result).Inc()
	opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// probeURL is the address liveness checks dial. Always loopback: the
// servers bind 127.0.0.1, and a custom domain may have no hosts entry
// when the start degraded for lack of privileges, so dialing the domain
// would turn the degraded mode into a guaranteed timeout.
func probeURL(site *model.Site) string {
	scheme := "http"
	if site.SSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://localhost:%d", scheme, site.Port)
}

// waitLive polls the probe until the site answers or the budget runs out.
// Each attempt carries its own timeout so one hung probe cannot eat the
// whole budget.
func (o *Orchestrator) waitLive(ctx context.Context, site *model.Site) error {
	url := probeURL(site)
	deadline := time.Now().Add(o.liveBudget)
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, livenessAttempt)
		err := o.probe(attemptCtx, url)
		cancel()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return model.Wrap(model.KindLivenessTimeout, err,
				"site did not become reachable at %s within %s", url, o.liveBudget)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.livePoll):
		}
	}
}

// probeClient skips certificate verification: ssl sites terminate TLS
// with a locally generated self-signed certificate.
var probeClient = &http.Client{
	Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	},
}

func httpProbe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}
	resp, err := probeClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (o *Orchestrator) setStatus(ctx context.Context, site *model.Site, status string) error {
	site.Status = status
	if err := o.reg.UpdateStatus(ctx, site.ID, status); err != nil {
		return fmt.Errorf("persist status %s: %w", status, err)
	}
	return nil
}
