// Command eventarr runs the sports EPG engine: it matches provider streams to
// real events, manages event channel lifecycle, publishes XMLTV, and syncs
// channels into Dispatcharr. One process: HTTP API plus the scheduler, both
// under a suture supervisor.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/snapetech/eventarr/internal/api"
	"github.com/snapetech/eventarr/internal/channels"
	"github.com/snapetech/eventarr/internal/classify"
	"github.com/snapetech/eventarr/internal/config"
	"github.com/snapetech/eventarr/internal/dispatcharr"
	"github.com/snapetech/eventarr/internal/fpcache"
	"github.com/snapetech/eventarr/internal/league"
	"github.com/snapetech/eventarr/internal/logging"
	"github.com/snapetech/eventarr/internal/match"
	"github.com/snapetech/eventarr/internal/metrics"
	"github.com/snapetech/eventarr/internal/normalize"
	"github.com/snapetech/eventarr/internal/ordering"
	"github.com/snapetech/eventarr/internal/pipeline"
	"github.com/snapetech/eventarr/internal/progress"
	"github.com/snapetech/eventarr/internal/providers"
	"github.com/snapetech/eventarr/internal/providers/espn"
	"github.com/snapetech/eventarr/internal/providers/tsdb"
	"github.com/snapetech/eventarr/internal/reconcile"
	"github.com/snapetech/eventarr/internal/scheduler"
	"github.com/snapetech/eventarr/internal/store"
	"github.com/snapetech/eventarr/internal/teamcache"
	"github.com/snapetech/eventarr/internal/ufc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "eventarr: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	log.Info().Str("addr", cfg.Addr()).Str("data_dir", cfg.Data.Dir).Msg("starting")

	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	backupDir := filepath.Join(cfg.Data.Dir, "backups")
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return fmt.Errorf("backup dir: %w", err)
	}

	st, err := store.Open(cfg.DBPath(), logging.Component(log, "store"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.SeedDetectionKeywords(detectionDefaults()); err != nil {
		return fmt.Errorf("seed detection keywords: %w", err)
	}

	leagues, err := league.New(st, log)
	if err != nil {
		return fmt.Errorf("league mappings: %w", err)
	}

	met := metrics.New()

	reg := providers.NewRegistry()
	reg.Register(espn.New(log))
	reg.Register(tsdb.New(os.Getenv("EVENTARR_TSDB_API_KEY"), log))

	cls := classify.New(log)
	reloadClassifier(st, cls, log)

	ord := ordering.NewService(log)
	if rules, err := st.ListOrderingRules(); err == nil {
		ord.Reload(rules)
	}

	settings, err := st.GetSettings()
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}

	disp := dispatcharr.New(met, log)
	disp.Configure(settings.Dispatcharr)

	cache := fpcache.New(st, met, log)
	teamsvc := teamcache.NewService(st, log)
	refresher := teamcache.NewRefresher(st, reg, leagues, log)
	matcher := match.NewMatcher(cache, teamsvc, reg, leagues, met, log)
	expander := ufc.NewExpander(cls, log)
	mgr := channels.NewManager(st, met, log)
	bus := progress.NewBus(log)

	pipe := pipeline.New(st, disp, normalize.New(), cls, matcher, expander,
		cache, mgr, ord, leagues, bus, met, log)
	recon := reconcile.New(st, mgr, disp, log)
	sched := scheduler.New(st, pipe, disp, reg, recon, leagues, met, log)

	srv := api.NewServer(api.Deps{
		Store:     st,
		Bus:       bus,
		Pipeline:  pipe,
		Scheduler: sched,
		Reconcile: recon,
		Dispatch:  disp,
		Classify:  cls,
		Ordering:  ord,
		Channels:  mgr,
		Refresher: refresher,
		TeamCache: teamsvc,
		Leagues:   leagues,
		Metrics:   met,
		BackupDir: backupDir,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Startup maintenance runs off the serve path so a slow provider or an
	// unreachable Dispatcharr never delays the listener.
	go startupTasks(ctx, st, refresher, recon, disp, settings, log)

	hook := (&sutureslog.Handler{
		Logger: slog.New(logging.NewSlogHandler(logging.Component(log, "supervisor"))),
	}).MustHook()
	sup := suture.New("eventarr", suture.Spec{EventHook: hook})
	sup.Add(sched)
	sup.Add(&httpService{addr: cfg.Addr(), handler: srv.Router(), log: logging.Component(log, "http")})

	err = sup.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("shutdown complete")
		return nil
	}
	return err
}

// startupTasks restores the working state a restart interrupts: the team
// cache refresh and, when configured, a reconciliation sweep against
// Dispatcharr.
func startupTasks(ctx context.Context, st *store.Store, refresher *teamcache.Refresher,
	recon *reconcile.Reconciler, disp *dispatcharr.Client, settings store.Settings, log zerolog.Logger) {
	if refreshed, err := refresher.RefreshIfNeeded(ctx); err != nil {
		log.Warn().Err(err).Msg("startup team cache refresh failed")
	} else if refreshed {
		log.Info().Msg("team cache refreshed at startup")
	}

	if settings.Reconciliation.ReconcileOnStartup && disp.Enabled() {
		rep, err := recon.Run(ctx, reconcile.OptionsFromSettings(settings.Reconciliation))
		if err != nil {
			log.Warn().Err(err).Msg("startup reconciliation failed")
			return
		}
		log.Info().Int("issues", len(rep.Issues)).Int("actions", len(rep.Actions)).Msg("startup reconciliation done")
	}
}

// reloadClassifier compiles the classifier from the database rows. The
// built-in defaults were seeded on first run, so after boot the rows are the
// single source of truth and the API edits them live.
func reloadClassifier(st *store.Store, cls *classify.Classifier, log zerolog.Logger) {
	rows, err := st.ListDetectionKeywords(true)
	if err != nil {
		log.Warn().Err(err).Msg("detection keywords unavailable, using built-in defaults")
		return
	}
	rules := make([]classify.Rule, 0, len(rows))
	for _, k := range rows {
		rules = append(rules, classify.Rule{Kind: classify.Kind(k.Kind), Pattern: k.Pattern, Value: k.Value})
	}
	cls.Reload(rules)
}

func detectionDefaults() []store.DetectionKeyword {
	src := classify.Defaults()
	out := make([]store.DetectionKeyword, 0, len(src))
	for _, r := range src {
		out = append(out, store.DetectionKeyword{Kind: string(r.Kind), Pattern: r.Pattern, Value: r.Value})
	}
	return out
}

// httpService runs the API listener as a suture service.
type httpService struct {
	addr    string
	handler http.Handler
	log     zerolog.Logger
}

func (s *httpService) String() string { return "http" }

func (s *httpService) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info().Str("addr", s.addr).Msg("listening")

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
		return ctx.Err()
	case err := <-errc:
		return err
	}
}
