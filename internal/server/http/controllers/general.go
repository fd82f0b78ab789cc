package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rzbill/buildlog/internal/runtime"
)

// GeneralController serves health and project endpoints.
type GeneralController struct {
	rt *runtime.Runtime
}

func NewGeneralController(rt *runtime.Runtime) *GeneralController {
	return &GeneralController{rt: rt}
}

// RegisterRoutes mounts:
//
//	GET /v1/healthz
//	GET /v1/projects
//	PUT /v1/projects/{project}
func (c *GeneralController) RegisterRoutes(r chi.Router) {
	r.Get("/v1/healthz", c.handleHealth)
	r.Get("/v1/projects", c.handleListProjects)
	r.Put("/v1/projects/{project}", c.handleEnsureProject)
}

func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_serving"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (c *GeneralController) handleListProjects(w http.ResponseWriter, r *http.Request) {
	list, err := c.rt.Projects()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list projects")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": list})
}

func (c *GeneralController) handleEnsureProject(w http.ResponseWriter, r *http.Request) {
	meta, err := c.rt.EnsureProject(chi.URLParam(r, "project"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, meta)
}
