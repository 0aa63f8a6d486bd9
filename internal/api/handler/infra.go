package handler

import (
	"net/http"

	"github.com/shamimkhan539/PressBox-sub006/internal/api/response"
	"github.com/shamimkhan539/PressBox-sub006/internal/orchestrator"
)

// Infra exposes the shared infrastructure: database servers, port
// leases, managed hosts entries.
type Infra struct {
	orch *orchestrator.Orchestrator
}

func NewInfra(orch *orchestrator.Orchestrator) *Infra {
	return &Infra{orch: orch}
}

func (h *Infra) DBServers(w http.ResponseWriter, r *http.Request) {
	response.WriteJSON(w, http.StatusOK, h.orch.DBServerStatuses(r.Context()))
}

// StopDBServers shuts the shared database servers down. Explicit-only;
// individual site stops never reach this.
func (h *Infra) StopDBServers(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.StopSharedInfra(r.Context()); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Infra) PortLeases(w http.ResponseWriter, r *http.Request) {
	response.WriteJSON(w, http.StatusOK, h.orch.PortLeases())
}

func (h *Infra) HostsEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.orch.HostsEntries()
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, entries)
}
