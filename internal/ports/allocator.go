// Package ports tracks the pool of TCP ports handed out to site web
// servers. Allocation double-checks against the OS with a real bind
// attempt, because internal bookkeeping can be stale after a daemon crash.
package ports

import (
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/shamimkhan539/PressBox-sub006/internal/config"
	"github.com/shamimkhan539/PressBox-sub006/internal/model"
)

// Allocator hands out free ports from a configured range plus a small set
// of well-known defaults, and reclaims them on stop/delete.
type Allocator struct {
	mu     sync.Mutex
	logger zerolog.Logger

	rangeStart int
	rangeEnd   int
	wellKnown  []int

	leases map[int]string // port -> site id

	// portFree checks whether the OS considers the port bindable.
	// Overridable in tests to avoid real network binds.
	portFree func(port int) bool
}

// NewAllocator creates an allocator over the configured pool.
func NewAllocator(logger zerolog.Logger, cfg config.PortsConfig) *Allocator {
	return &Allocator{
		logger:     logger.With().Str("component", "port-allocator").Logger(),
		rangeStart: cfg.RangeStart,
		rangeEnd:   cfg.RangeEnd,
		wellKnown:  append([]int(nil), cfg.WellKnown...),
		leases:     make(map[int]string),
		portFree:   bindProbe,
	}
}

// Allocate hands out the lowest free port for the site. Ports leased to
// other sites and ports bound by unrelated processes are skipped.
func (a *Allocator) Allocate(siteID string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, port := range a.candidates() {
		if _, leased := a.leases[port]; leased {
			continue
		}
		if !a.portFree(port) {
			a.logger.Debug().Int("port", port).Msg("port bound by another process, skipping")
			continue
		}
		a.leases[port] = siteID
		a.logger.Debug().Int("port", port).Str("site_id", siteID).Msg("port allocated")
		return port, nil
	}

	return 0, model.E(model.KindNoPortsAvailable,
		"no free ports in range %d-%d", a.rangeStart, a.rangeEnd)
}

// Reserve leases a specific port for the site. An explicitly requested port
// that is already leased or bound fails; there is no silent reassignment.
func (a *Allocator) Reserve(port int, siteID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if holder, leased := a.leases[port]; leased {
		if holder == siteID {
			return nil
		}
		return model.E(model.KindNoPortsAvailable,
			"port %d is already leased to site %s", port, holder)
	}
	if !a.portFree(port) {
		return model.E(model.KindNoPortsAvailable,
			"port %d is bound by another process", port)
	}

	a.leases[port] = siteID
	a.logger.Debug().Int("port", port).Str("site_id", siteID).Msg("port reserved")
	return nil
}

// Adopt records a lease without probing the port. Used by the startup
// reconciliation pass for sites confirmed to be running.
func (a *Allocator) Adopt(port int, siteID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.leases[port] = siteID
}

// Release frees a port. Idempotent; releasing an unleased port is a no-op.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, leased := a.leases[port]; leased {
		delete(a.leases, port)
		a.logger.Debug().Int("port", port).Msg("port released")
	}
}

// ReleaseFor frees every port leased to the site.
func (a *Allocator) ReleaseFor(siteID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for port, holder := range a.leases {
		if holder == siteID {
			delete(a.leases, port)
		}
	}
}

// Holder returns the site currently holding the port, if any.
func (a *Allocator) Holder(port int) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.leases[port]
	return id, ok
}

// Leases returns a snapshot of all current leases sorted by port.
func (a *Allocator) Leases() []model.PortLease {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]model.PortLease, 0, len(a.leases))
	for port, id := range a.leases {
		out = append(out, model.PortLease{Port: port, SiteID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out
}

// candidates returns the well-known defaults followed by the range, in
// ascending order within each group.
func (a *Allocator) candidates() []int {
	out := make([]int, 0, len(a.wellKnown)+(a.rangeEnd-a.rangeStart+1))
	wk := append([]int(nil), a.wellKnown...)
	sort.Ints(wk)
	out = append(out, wk...)
	for p := a.rangeStart; p <= a.rangeEnd; p++ {
		out = append(out, p)
	}
	return out
}

// bindProbe attempts a real bind on the loopback interface.
func bindProbe(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
