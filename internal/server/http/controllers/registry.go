package controllers

import (
	"github.com/go-chi/chi/v5"

	"github.com/rzbill/buildlog/internal/runtime"
	buildsvc "github.com/rzbill/buildlog/internal/services/builds"
	logpkg "github.com/rzbill/buildlog/pkg/log"
)

// ControllerRegistry owns every HTTP controller.
type ControllerRegistry struct {
	general *GeneralController
	builds  *BuildsController
}

// NewControllerRegistry builds the controllers over rt and svc.
func NewControllerRegistry(rt *runtime.Runtime, svc *buildsvc.Service, logger logpkg.Logger) *ControllerRegistry {
	return &ControllerRegistry{
		general: NewGeneralController(rt),
		builds:  NewBuildsController(svc, logger),
	}
}

// RegisterAllRoutes mounts all routes on r.
func (c *ControllerRegistry) RegisterAllRoutes(r chi.Router) {
	c.general.RegisterRoutes(r)
	c.builds.RegisterRoutes(r)
}
