package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shamimkhan539/PressBox-sub006/internal/api/request"
	"github.com/shamimkhan539/PressBox-sub006/internal/api/response"
	"github.com/shamimkhan539/PressBox-sub006/internal/model"
	"github.com/shamimkhan539/PressBox-sub006/internal/orchestrator"
)

const defaultLogLines = 200

type Site struct {
	orch *orchestrator.Orchestrator
}

func NewSite(orch *orchestrator.Orchestrator) *Site {
	return &Site{orch: orch}
}

func (h *Site) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateSite
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	site, err := h.orch.Create(r.Context(), orchestrator.CreateRequest{
		Name:             req.Name,
		Domain:           req.Domain,
		Port:             req.Port,
		PHPVersion:       req.PHPVersion,
		WordPressVersion: req.WordPressVersion,
		WebServer:        req.WebServer,
		Environment:      model.Environment(req.Environment),
		Engine:           model.Engine(req.DatabaseEngine),
		SSL:              req.SSL,
		Multisite:        req.Multisite,
		AdminUser:        req.AdminUser,
		AdminPassword:    req.AdminPassword,
		AdminEmail:       req.AdminEmail,
	})
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, site)
}

func (h *Site) List(w http.ResponseWriter, r *http.Request) {
	sites, err := h.orch.List(r.Context())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, sites)
}

func (h *Site) Get(w http.ResponseWriter, r *http.Request) {
	siteID, err := request.RequireID(chi.URLParam(r, "siteID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	site, err := h.orch.Get(r.Context(), siteID)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, site)
}

func (h *Site) Start(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.orch.Start)
}

func (h *Site) Stop(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.orch.Stop)
}

func (h *Site) Delete(w http.ResponseWriter, r *http.Request) {
	siteID, err := request.RequireID(chi.URLParam(r, "siteID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.orch.Delete(r.Context(), siteID); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Site) Migrate(w http.ResponseWriter, r *http.Request) {
	siteID, err := request.RequireID(chi.URLParam(r, "siteID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req request.MigrateSite
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.orch.Migrate(r.Context(), siteID, model.Environment(req.To)); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	site, err := h.orch.Get(r.Context(), siteID)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, site)
}

func (h *Site) Logs(w http.ResponseWriter, r *http.Request) {
	siteID, err := request.RequireID(chi.URLParam(r, "siteID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	logs, err := h.orch.Logs(r.Context(), siteID, request.TailLines(r, defaultLogLines))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]string{"logs": logs})
}

// lifecycle runs a start/stop style operation and returns the refreshed
// site record.
func (h *Site) lifecycle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) error) {
	siteID, err := request.RequireID(chi.URLParam(r, "siteID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := op(r.Context(), siteID); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	site, err := h.orch.Get(r.Context(), siteID)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, site)
}
