package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/snapetech/eventarr/internal/classify"
	"github.com/snapetech/eventarr/internal/dispatcharr"
	"github.com/snapetech/eventarr/internal/pipeline"
	"github.com/snapetech/eventarr/internal/reconcile"
	"github.com/snapetech/eventarr/internal/scheduler"
	"github.com/snapetech/eventarr/internal/store"
)

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// --- settings ---

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	cfg, err := s.st.GetSettings()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Passwords never leave the API.
	cfg.Dispatcharr.Password = ""
	writeJSON(w, http.StatusOK, cfg)
}

// handlePutSettings replaces one named section, leaving the rest untouched.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.st.GetSettings()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	section := chi.URLParam(r, "section")
	var target any
	switch section {
	case "dispatcharr":
		target = &cfg.Dispatcharr
	case "lifecycle":
		target = &cfg.Lifecycle
	case "scheduler":
		target = &cfg.Scheduler
	case "epg":
		target = &cfg.EPG
	case "durations":
		target = &cfg.Durations
	case "reconciliation":
		target = &cfg.Reconciliation
	default:
		writeErr(w, http.StatusNotFound, "unknown settings section "+section)
		return
	}
	if !s.decode(w, r, target) {
		return
	}
	if section == "dispatcharr" && cfg.Dispatcharr.Password == "" {
		// Blank password on update means keep the stored one.
		prev, _ := s.st.GetSettings()
		cfg.Dispatcharr.Password = prev.Dispatcharr.Password
	}
	if err := s.st.SaveSettings(cfg); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if section == "dispatcharr" && s.disp != nil {
		s.disp.Configure(cfg.Dispatcharr)
	}
	cfg.Dispatcharr.Password = ""
	writeJSON(w, http.StatusOK, cfg)
}

// --- leagues ---

func (s *Server) handleListLeagues(w http.ResponseWriter, _ *http.Request) {
	out, err := s.st.ListLeagueMappings()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSaveLeague(w http.ResponseWriter, r *http.Request) {
	var m store.LeagueMapping
	if !s.decode(w, r, &m) {
		return
	}
	if m.Code == "" || m.Provider == "" {
		writeErr(w, http.StatusBadRequest, "code and provider are required")
		return
	}
	if err := s.st.UpsertLeagueMapping(m); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.leagues.Reload(); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteLeague(w http.ResponseWriter, r *http.Request) {
	if err := s.st.DeleteLeagueMapping(chi.URLParam(r, "code"), chi.URLParam(r, "provider")); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.leagues.Reload(); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// --- tracked teams ---

func (s *Server) handleListTeams(w http.ResponseWriter, _ *http.Request) {
	out, err := s.st.ListTrackedTeams(false)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSaveTeam(w http.ResponseWriter, r *http.Request) {
	var t store.TrackedTeam
	if !s.decode(w, r, &t) {
		return
	}
	if t.Name == "" || t.League == "" {
		writeErr(w, http.StatusBadRequest, "name and league are required")
		return
	}
	if err := s.st.SaveTrackedTeam(&t); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTeam(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad id")
		return
	}
	if err := s.st.DeleteTrackedTeam(id); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// handleSearchTeams looks up roster-cache teams for the tracked-team picker.
func (s *Server) handleSearchTeams(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeErr(w, http.StatusBadRequest, "q is required")
		return
	}
	out, err := s.st.SearchTeams(q, 25)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// --- groups ---

func (s *Server) handleListGroups(w http.ResponseWriter, _ *http.Request) {
	out, err := s.st.ListGroups(false)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSaveGroup(w http.ResponseWriter, r *http.Request) {
	var g store.Group
	if !s.decode(w, r, &g) {
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "bad id")
			return
		}
		g.ID = n
	}
	if g.Name == "" {
		writeErr(w, http.StatusBadRequest, "name is required")
		return
	}
	switch g.DuplicateMode {
	case "", "consolidate", "separate", "ignore":
	default:
		writeErr(w, http.StatusBadRequest, "duplicate_mode must be consolidate, separate, or ignore")
		return
	}
	if g.IsChild() && *g.ParentGroupID == g.ID {
		writeErr(w, http.StatusBadRequest, "a group cannot be its own parent")
		return
	}
	if err := s.st.SaveGroup(&g); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad id")
		return
	}
	if err := s.st.DeleteGroup(id); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleGetGroupSort(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad id")
		return
	}
	field, err := s.st.GroupSortField(id)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sort_field": field})
}

func (s *Server) handlePutGroupSort(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad id")
		return
	}
	var body struct {
		SortField string `json:"sort_field" validate:"required,oneof=time league sport"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	if err := s.st.SetGroupSortField(id, body.SortField); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sort_field": body.SortField})
}

// --- regular TV groups ---

func (s *Server) handleListRegularTV(w http.ResponseWriter, _ *http.Request) {
	out, err := s.st.ListRegularTVGroups()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSaveRegularTV(w http.ResponseWriter, r *http.Request) {
	var g store.RegularTVGroup
	if !s.decode(w, r, &g) {
		return
	}
	if g.Name == "" {
		writeErr(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := s.st.SaveRegularTVGroup(&g); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleDeleteRegularTV(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad id")
		return
	}
	if err := s.st.DeleteRegularTVGroup(id); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// --- roster cache ---

func (s *Server) handleCacheStatus(w http.ResponseWriter, _ *http.Request) {
	meta, err := s.teamsvc.Meta()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// handleCacheRefresh kicks a roster rebuild in the background; progress
// streams over the cache_refresh SSE channel.
func (s *Server) handleCacheRefresh(w http.ResponseWriter, r *http.Request) {
	tracker := s.bus.Start("cache_refresh")
	if tracker == nil {
		writeErr(w, http.StatusConflict, "refresh already running")
		return
	}
	go func() {
		ctx := context.WithoutCancel(r.Context())
		err := s.refresher.Refresh(ctx, func(percent int, message string) {
			tracker.Update("refresh", message, percent)
		})
		if err != nil {
			tracker.Fail(err)
			return
		}
		tracker.Complete("roster cache rebuilt")
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// --- channels ---

func (s *Server) handleListChannels(w http.ResponseWriter, _ *http.Request) {
	out, err := s.st.ListActiveChannels(0)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRenumber(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad id")
		return
	}
	var body struct {
		Number int `json:"number" validate:"min=1"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	ch, err := s.st.GetChannel(id)
	if err != nil {
		writeErr(w, http.StatusNotFound, "channel not found")
		return
	}
	if err := s.mgr.Renumber(&ch, body.Number); err != nil {
		writeErr(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad id")
		return
	}
	ch, err := s.st.GetChannel(id)
	if err != nil {
		writeErr(w, http.StatusNotFound, "channel not found")
		return
	}
	if err := s.mgr.Delete(ch, "manual"); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// --- exception keywords ---

func (s *Server) handleListKeywords(w http.ResponseWriter, _ *http.Request) {
	out, err := s.st.ListExceptionKeywords(false)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSaveKeyword(w http.ResponseWriter, r *http.Request) {
	var k store.ExceptionKeyword
	if !s.decode(w, r, &k) {
		return
	}
	if k.Label == "" || k.MatchTerms == "" {
		writeErr(w, http.StatusBadRequest, "label and match_terms are required")
		return
	}
	switch k.Behavior {
	case "consolidate", "separate", "ignore":
	default:
		writeErr(w, http.StatusBadRequest, "behavior must be consolidate, separate, or ignore")
		return
	}
	if err := s.st.SaveExceptionKeyword(&k); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, k)
}

func (s *Server) handleDeleteKeyword(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad id")
		return
	}
	if err := s.st.DeleteExceptionKeyword(id); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// --- detection keywords ---

func (s *Server) handleListDetection(w http.ResponseWriter, _ *http.Request) {
	out, err := s.st.ListDetectionKeywords(false)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSaveDetection(w http.ResponseWriter, r *http.Request) {
	var k store.DetectionKeyword
	if !s.decode(w, r, &k) {
		return
	}
	if k.Pattern == "" {
		writeErr(w, http.StatusBadRequest, "pattern is required")
		return
	}
	if err := s.st.SaveDetectionKeyword(&k); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.reloadClassifier()
	writeJSON(w, http.StatusOK, k)
}

func (s *Server) handleDeleteDetection(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad id")
		return
	}
	if err := s.st.DeleteDetectionKeyword(id); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.reloadClassifier()
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) reloadClassifier() {
	rows, err := s.st.ListDetectionKeywords(true)
	if err != nil {
		s.log.Error().Err(err).Msg("classifier reload skipped, keyword listing failed")
		return
	}
	rules := make([]classify.Rule, 0, len(rows))
	for _, k := range rows {
		rules = append(rules, classify.Rule{Kind: classify.Kind(k.Kind), Pattern: k.Pattern, Value: k.Value})
	}
	s.cls.Reload(rules)
}

// --- ordering rules ---

func (s *Server) handleListOrdering(w http.ResponseWriter, _ *http.Request) {
	out, err := s.st.ListOrderingRules()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSaveOrdering(w http.ResponseWriter, r *http.Request) {
	var rule store.OrderingRule
	if !s.decode(w, r, &rule) {
		return
	}
	switch rule.Type {
	case "m3u", "group", "regex":
	default:
		writeErr(w, http.StatusBadRequest, "type must be m3u, group, or regex")
		return
	}
	if rule.Priority < 1 || rule.Priority > 99 {
		writeErr(w, http.StatusBadRequest, "priority must be 1-99")
		return
	}
	if err := s.st.SaveOrderingRule(&rule); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.reloadOrdering()
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteOrdering(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad id")
		return
	}
	if err := s.st.DeleteOrderingRule(id); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.reloadOrdering()
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) reloadOrdering() {
	rules, err := s.st.ListOrderingRules()
	if err != nil {
		s.log.Error().Err(err).Msg("ordering reload skipped, rule listing failed")
		return
	}
	s.ord.Reload(rules)
}

// --- reconciliation ---

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.st.GetSettings()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	opts := reconcile.OptionsFromSettings(cfg.Reconciliation)
	// detect_only=true downgrades the pass to report-only.
	if r.URL.Query().Get("detect_only") == "true" {
		opts = reconcile.Options{FixOutOfRange: false}
	}
	rep, err := s.recon.Run(r.Context(), opts)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// --- scheduler and generation ---

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, _ *http.Request) {
	results, last, running := s.sched.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"running":   running,
		"last_tick": last,
		"tasks":     results,
	})
}

func (s *Server) handleSchedulerTrigger(w http.ResponseWriter, r *http.Request) {
	if err := s.sched.Trigger(r.Context()); err != nil {
		if errors.Is(err, scheduler.ErrTickInProgress) {
			writeErr(w, http.StatusConflict, err.Error())
			return
		}
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// handleGenerate runs the processing pipeline in the background; progress
// streams over the epg_generation SSE channel.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	go func() {
		if _, err := s.pipe.Run(ctx); err != nil && !errors.Is(err, pipeline.ErrRunInProgress) {
			s.log.Error().Err(err).Msg("manual pipeline run failed")
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// --- downstream ---

func (s *Server) handleDispatcharrTest(w http.ResponseWriter, r *http.Request) {
	err := s.disp.Test(r.Context())
	res := dispatcharr.Report(map[string]string{"status": "connected"}, err)
	code := http.StatusOK
	if err != nil {
		code = http.StatusBadGateway
	}
	writeJSON(w, code, res)
}

// --- backup ---

// handleBackupExport snapshots the database and streams it back.
func (s *Server) handleBackupExport(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("eventarr-%s.db", time.Now().UTC().Format("20060102-150405"))
	path := filepath.Join(s.backupDir, name)
	if err := s.st.BackupTo(path); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer os.Remove(path)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, path)
}

// handleBackupImport replaces the database contents from an uploaded
// snapshot, then rebuilds every in-memory cache derived from it.
func (s *Server) handleBackupImport(w http.ResponseWriter, r *http.Request) {
	tmp, err := os.CreateTemp(s.backupDir, "restore-*.db")
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer os.Remove(tmp.Name())
	_, err = io.Copy(tmp, http.MaxBytesReader(w, r.Body, 512<<20))
	tmp.Close()
	if err != nil {
		writeErr(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}
	if err := s.st.RestoreFrom(tmp.Name()); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.leagues.Reload(); err != nil {
		s.log.Error().Err(err).Msg("league reload after restore failed")
	}
	s.reloadClassifier()
	s.reloadOrdering()
	if cfg, err := s.st.GetSettings(); err == nil {
		s.disp.Configure(cfg.Dispatcharr)
	}
	s.log.Info().Msg("database restored from uploaded backup")
	writeJSON(w, http.StatusOK, map[string]bool{"restored": true})
}
