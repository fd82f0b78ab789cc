package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rzbill/buildlog/internal/binlog"
	buildsvc "github.com/rzbill/buildlog/internal/services/builds"
	logpkg "github.com/rzbill/buildlog/pkg/log"
)

// maxWait caps the long-poll duration of event listing.
const maxWait = 30 * time.Second

// BuildsController serves ingest, listing and export of builds.
type BuildsController struct {
	svc    *buildsvc.Service
	logger logpkg.Logger
}

func NewBuildsController(svc *buildsvc.Service, logger logpkg.Logger) *BuildsController {
	return &BuildsController{svc: svc, logger: logger}
}

// RegisterRoutes mounts:
//
//	POST /v1/projects/{project}/builds                  body: event stream
//	GET  /v1/projects/{project}/builds
//	GET  /v1/projects/{project}/builds/{build}
//	GET  /v1/projects/{project}/builds/{build}/events   ?filter=&after=&limit=&group=&wait_ms=
//	GET  /v1/projects/{project}/builds/{build}/binlog   ?version=
func (c *BuildsController) RegisterRoutes(r chi.Router) {
	r.Route("/v1/projects/{project}/builds", func(r chi.Router) {
		r.Post("/", c.handleIngest)
		r.Get("/", c.handleList)
		r.Get("/{build}", c.handleGet)
		r.Get("/{build}/events", c.handleEvents)
		r.Get("/{build}/binlog", c.handleExport)
	})
}

func (c *BuildsController) handleIngest(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	source := r.URL.Query().Get("source")
	info, err := c.svc.Ingest(r.Context(), project, source, r.Body)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError && isStreamError(err) {
			status = http.StatusUnprocessableEntity
		}
		if info.ID != "" {
			writeJSON(w, status, map[string]any{"error": err.Error(), "build": info})
			return
		}
		writeError(w, status, err.Error())
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/projects/%s/builds/%s", project, info.ID))
	writeJSON(w, http.StatusCreated, info)
}

func isStreamError(err error) bool {
	var derr *binlog.DecodeError
	return errors.Is(err, binlog.ErrBadMagic) ||
		errors.Is(err, binlog.ErrUnsupportedVersion) ||
		errors.Is(err, binlog.ErrTruncatedStream) ||
		errors.Is(err, binlog.ErrRecordTooLarge) ||
		errors.As(err, &derr)
}

func (c *BuildsController) handleList(w http.ResponseWriter, r *http.Request) {
	builds, err := c.svc.Builds(chi.URLParam(r, "project"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"builds": builds})
}

func (c *BuildsController) handleGet(w http.ResponseWriter, r *http.Request) {
	info, err := c.svc.Build(chi.URLParam(r, "project"), chi.URLParam(r, "build"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (c *BuildsController) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after, err := parseUint(q.Get("after"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid after")
		return
	}
	limit, err := parseUint(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	waitMs, err := parseUint(q.Get("wait_ms"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid wait_ms")
		return
	}
	wait := min(time.Duration(waitMs)*time.Millisecond, maxWait)

	page, err := c.svc.Events(r.Context(), chi.URLParam(r, "project"), chi.URLParam(r, "build"), buildsvc.Query{
		Filter: q.Get("filter"),
		After:  after,
		Limit:  int(min(limit, 10_000)),
		Group:  q.Get("group"),
		Wait:   wait,
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (c *BuildsController) handleExport(w http.ResponseWriter, r *http.Request) {
	version, err := parseUint(r.URL.Query().Get("version"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid version")
		return
	}
	project, build := chi.URLParam(r, "project"), chi.URLParam(r, "build")
	if _, err := c.svc.Build(project, build); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if version != 0 && (version < binlog.Version1 || version > binlog.CurrentVersion) {
		writeError(w, http.StatusBadRequest, "unsupported version "+strconv.FormatUint(version, 10))
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", build+".blog"))
	n, err := c.svc.Export(r.Context(), project, build, w, version)
	if err != nil {
		// Headers are already sent; the truncated body is the signal.
		c.logger.Error("export failed", logpkg.Str("project", project), logpkg.Str("build", build), logpkg.Int("records", n), logpkg.Err(err))
	}
}
