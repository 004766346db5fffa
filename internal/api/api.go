// Package api is the HTTP surface: configuration CRUD, channel inspection,
// manual triggers with SSE progress, reconciliation, and operational
// endpoints (health, metrics, backup).
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snapetech/eventarr/internal/channels"
	"github.com/snapetech/eventarr/internal/classify"
	"github.com/snapetech/eventarr/internal/dispatcharr"
	"github.com/snapetech/eventarr/internal/league"
	"github.com/snapetech/eventarr/internal/metrics"
	"github.com/snapetech/eventarr/internal/ordering"
	"github.com/snapetech/eventarr/internal/pipeline"
	"github.com/snapetech/eventarr/internal/progress"
	"github.com/snapetech/eventarr/internal/reconcile"
	"github.com/snapetech/eventarr/internal/scheduler"
	"github.com/snapetech/eventarr/internal/store"
	"github.com/snapetech/eventarr/internal/teamcache"
)

// Server wires the handlers to the engine's services.
type Server struct {
	log       zerolog.Logger
	st        *store.Store
	bus       *progress.Bus
	pipe      *pipeline.Pipeline
	sched     *scheduler.Scheduler
	recon     *reconcile.Reconciler
	disp      *dispatcharr.Client
	cls       *classify.Classifier
	ord       *ordering.Service
	mgr       *channels.Manager
	refresher *teamcache.Refresher
	teamsvc   *teamcache.Service
	leagues   *league.Service
	met       *metrics.Metrics
	validate  *validator.Validate
	backupDir string
}

type Deps struct {
	Store     *store.Store
	Bus       *progress.Bus
	Pipeline  *pipeline.Pipeline
	Scheduler *scheduler.Scheduler
	Reconcile *reconcile.Reconciler
	Dispatch  *dispatcharr.Client
	Classify  *classify.Classifier
	Ordering  *ordering.Service
	Channels  *channels.Manager
	Refresher *teamcache.Refresher
	TeamCache *teamcache.Service
	Leagues   *league.Service
	Metrics   *metrics.Metrics
	BackupDir string
}

func NewServer(d Deps, log zerolog.Logger) *Server {
	return &Server{
		log:       log.With().Str("component", "api").Logger(),
		st:        d.Store,
		bus:       d.Bus,
		pipe:      d.Pipeline,
		sched:     d.Scheduler,
		recon:     d.Reconcile,
		disp:      d.Dispatch,
		cls:       d.Classify,
		ord:       d.Ordering,
		mgr:       d.Channels,
		refresher: d.Refresher,
		teamsvc:   d.TeamCache,
		leagues:   d.Leagues,
		met:       d.Metrics,
		validate:  validator.New(),
		backupDir: d.BackupDir,
	}
}

// Router builds the chi mux. Mounted once at startup.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.met.Registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings/{section}", s.handlePutSettings)

		r.Get("/leagues", s.handleListLeagues)
		r.Post("/leagues", s.handleSaveLeague)
		r.Delete("/leagues/{code}/{provider}", s.handleDeleteLeague)

		r.Get("/teams", s.handleListTeams)
		r.Post("/teams", s.handleSaveTeam)
		r.Delete("/teams/{id}", s.handleDeleteTeam)
		r.Get("/teams/search", s.handleSearchTeams)

		r.Get("/groups", s.handleListGroups)
		r.Post("/groups", s.handleSaveGroup)
		r.Put("/groups/{id}", s.handleSaveGroup)
		r.Delete("/groups/{id}", s.handleDeleteGroup)
		r.Post("/groups/{id}/process", s.handleGenerate)
		r.Get("/groups/{id}/sort", s.handleGetGroupSort)
		r.Put("/groups/{id}/sort", s.handlePutGroupSort)

		r.Get("/regular-tv", s.handleListRegularTV)
		r.Post("/regular-tv", s.handleSaveRegularTV)
		r.Delete("/regular-tv/{id}", s.handleDeleteRegularTV)

		r.Get("/cache/status", s.handleCacheStatus)
		r.Post("/cache/refresh", s.handleCacheRefresh)
		r.Get("/cache/refresh/stream", s.sse("cache_refresh"))

		r.Get("/channels", s.handleListChannels)
		r.Post("/channels/{id}/renumber", s.handleRenumber)
		r.Delete("/channels/{id}", s.handleDeleteChannel)

		r.Get("/keywords", s.handleListKeywords)
		r.Post("/keywords", s.handleSaveKeyword)
		r.Delete("/keywords/{id}", s.handleDeleteKeyword)

		r.Get("/detection-keywords", s.handleListDetection)
		r.Post("/detection-keywords", s.handleSaveDetection)
		r.Delete("/detection-keywords/{id}", s.handleDeleteDetection)

		r.Get("/ordering-rules", s.handleListOrdering)
		r.Post("/ordering-rules", s.handleSaveOrdering)
		r.Delete("/ordering-rules/{id}", s.handleDeleteOrdering)

		r.Post("/reconcile", s.handleReconcile)

		r.Get("/scheduler/status", s.handleSchedulerStatus)
		r.Post("/scheduler/trigger", s.handleSchedulerTrigger)

		r.Post("/epg/generate", s.handleGenerate)
		r.Get("/epg/generate/stream", s.sse("epg_generation"))

		r.Post("/dispatcharr/test", s.handleDispatcharrTest)

		r.Get("/backup", s.handleBackupExport)
		r.Post("/backup", s.handleBackupImport)
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) sse(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.bus.ServeSSE(w, r, name)
	}
}

// writeJSON is the single success path; handlers never write bodies by hand.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}
