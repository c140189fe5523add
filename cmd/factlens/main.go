package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/NullMeDev/factlens/internal/apperror"
	"github.com/NullMeDev/factlens/internal/config"
	"github.com/NullMeDev/factlens/internal/extract"
	"github.com/NullMeDev/factlens/internal/feeds"
	"github.com/NullMeDev/factlens/internal/history"
	"github.com/NullMeDev/factlens/internal/links"
	"github.com/NullMeDev/factlens/internal/logging"
	"github.com/NullMeDev/factlens/internal/metrics"
	"github.com/NullMeDev/factlens/internal/notify"
	"github.com/NullMeDev/factlens/internal/predict"
	"github.com/NullMeDev/factlens/internal/scheduler"
	"github.com/NullMeDev/factlens/internal/verify"
	"github.com/NullMeDev/factlens/internal/watcher"
)

const errorBufferSize = 100

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	envFile := flag.String("env", ".env", "path to a .env file")
	flag.Parse()

	if err := run(*configPath, *envFile); err != nil {
		fmt.Fprintf(os.Stderr, "factlens: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string) error {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Logging.Logger())
	if err != nil {
		return err
	}
	defer log.Close()

	log.Info("factlens v%s starting up...", cfg.Version)

	errs := apperror.NewHandler(errorBufferSize, log.Error)
	defer apperror.RecoverFromPanic(errs, "main")
	m := metrics.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Model
	predictor := predict.NewLazy(cfg.Model.VectorizerPath, cfg.Model.ClassifierPath,
		predict.WithPolicy(cfg.Model.Policy()))
	if _, err := predictor.Engine(); err != nil {
		log.Warning("Model not loaded, predictions will fail until it is trained: %v", err)
		errs.Handle(err, "model")
	} else {
		log.Info("Model loaded from %s and %s", cfg.Model.VectorizerPath, cfg.Model.ClassifierPath)
	}
	m.SetModelLoaded(predictor.Loaded())

	// Article extraction and link routing
	extractor := extract.New(cfg.Extract.Options(), log)
	defer extractor.Close()

	router, closeLinks, err := newLinkRouter(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLinks()

	opts := []verify.Option{
		verify.WithLogger(log),
		verify.WithMetrics(m),
		verify.WithErrorHandler(errs),
	}

	// History
	var store *history.Store
	if cfg.History.Enabled {
		store, err = openHistory(ctx, cfg.History)
		if err != nil {
			log.Error("History disabled: %v", err)
			errs.Handle(err, "history")
			store = nil
		} else {
			log.Info("History stored in %s database", store.DriverName())
			defer store.Close()
			opts = append(opts, verify.WithRecorder(store))
		}
	}

	service := verify.New(predictor, extractor, router, opts...)

	hub := NewHub(log.With("component", "ws"), m)
	defer hub.Close()
	service.AddListener(hub)

	// Discord
	webhooks := notify.NewWebhooks(cfg.Discord.WebhookURLs, nil, log, errs)
	defer webhooks.Wait()

	var bot *Bot
	if cfg.Discord.Enabled {
		bot, err = NewBot(cfg.Discord, service, log, errs)
		if err == nil {
			err = bot.Start()
		}
		if err != nil {
			log.Error("Discord bot disabled: %v", err)
			errs.Handle(err, "discord")
			bot = nil
		} else {
			log.Info("Successfully connected to Discord!")
			defer bot.Stop()
		}
	}

	alert := func(r *verify.Report) {
		if bot != nil {
			bot.Alert(r)
		}
		webhooks.Alert(r)
	}

	// Scheduled jobs
	jobs := scheduler.New(log, errs)
	if cfg.Feeds.Enabled {
		w := watcher.New(feeds.NewFetcher(nil), service, watcher.Options{
			URLs:          cfg.Feeds.URLs,
			MaxItems:      cfg.Feeds.MaxItems,
			RatePerMinute: cfg.Feeds.RatePerMinute,
		}, watcherOptions(store, m, log, errs, alert)...)
		defer w.Close()

		err = jobs.Add("feeds", cfg.Feeds.Schedule, func(ctx context.Context) error {
			_, err := w.Run(ctx)
			return err
		})
		if err != nil {
			return err
		}
	}
	if store != nil && cfg.History.RetentionDays > 0 {
		retention := time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
		err = jobs.Add("prune-history", cfg.History.PruneSchedule, func(ctx context.Context) error {
			n, err := store.Prune(ctx, time.Now().Add(-retention))
			if err != nil {
				return err
			}
			log.Info("Pruned %d history records older than %d days", n, cfg.History.RetentionDays)
			return nil
		})
		if err != nil {
			return err
		}
	}
	jobs.Start()

	// HTTP API
	var server *http.Server
	serverErr := make(chan error, 1)
	if cfg.Server.Enabled {
		api := NewAPI(APIOptions{
			Version:      cfg.Version,
			Service:      service,
			History:      historyReader(store),
			Errors:       errs,
			Metrics:      m,
			Hub:          hub,
			Jobs:         jobs,
			Log:          log,
			RateLimit:    cfg.Server.RateLimit,
			RateBurst:    cfg.Server.RateBurst,
			MaxBodyBytes: cfg.Server.MaxBodyBytes,
		})
		server = &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      api.Router(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
		go func() {
			log.Info("API listening on %s", cfg.Server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	log.Info("factlens is now running. Press CTRL-C to exit.")
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	select {
	case sig := <-sc:
		log.Info("Received %s, shutting down...", sig)
	case err := <-serverErr:
		log.Error("API server failed: %v", err)
		cancel()
		return err
	}

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warning("API shutdown: %v", err)
		}
	}
	jobs.Stop(shutdownCtx)

	log.Info("Shutdown complete")
	return nil
}

// newLinkRouter builds the link router: templates, optional live news search
// and optional query condensing.
func newLinkRouter(ctx context.Context, cfg *config.Config, log *logging.Logger) (*links.Router, func(), error) {
	store, err := links.NewStore(cfg.Links.TemplatesPath, log)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Links.Watch && cfg.Links.TemplatesPath != "" {
		go func() {
			if err := store.Watch(ctx); err != nil {
				log.Warning("Link template watching stopped: %v", err)
			}
		}()
	}

	var opts []links.Option
	closer := func() {}
	if cfg.Links.NewsSearch {
		searchURL := cfg.Links.NewsSearchURL
		if searchURL == "" {
			searchURL = links.DefaultNewsSearchURL
		}
		searcher := links.NewFeedSearcher(feeds.NewFetcher(nil), searchURL, cfg.Links.CacheTTL)
		opts = append(opts, links.WithNewsSearcher(searcher))
		closer = searcher.Close
	}
	if condenser := links.NewOpenAICondenser(cfg.OpenAI.Options()); condenser != nil {
		log.Info("Condensing search queries with %s", cfg.OpenAI.Options().Model)
		opts = append(opts, links.WithCondenser(condenser))
	}
	return links.NewRouter(store, log, opts...), closer, nil
}

// openHistory connects and migrates the history database, creating the
// directory of a SQLite file when needed.
func openHistory(ctx context.Context, hc config.HistoryConfig) (*history.Store, error) {
	dbCfg := hc.Database()
	if isSQLiteFile(dbCfg) {
		if err := os.MkdirAll(filepath.Dir(dbCfg.DSN), 0755); err != nil {
			return nil, apperror.NewHistoryError(apperror.ErrHistoryConnection, "failed to create data directory", err)
		}
	}

	store, err := history.Open(dbCfg)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func isSQLiteFile(c history.Config) bool {
	switch strings.ToLower(c.Driver) {
	case history.DriverSQLite, "sqlite":
	default:
		return false
	}
	return c.DSN != "" && c.DSN != ":memory:" && !strings.HasPrefix(c.DSN, "file:")
}

// historyReader avoids handing the API a typed nil.
func historyReader(store *history.Store) HistoryReader {
	if store == nil {
		return nil
	}
	return store
}

func watcherOptions(store *history.Store, m *metrics.Metrics, log *logging.Logger, errs *apperror.Handler, alert func(*verify.Report)) []watcher.Option {
	opts := []watcher.Option{
		watcher.WithMetrics(m),
		watcher.WithLogger(log),
		watcher.WithErrorHandler(errs),
		watcher.WithAlert(alert),
	}
	if store != nil {
		opts = append(opts, watcher.WithSeenChecker(store))
	}
	return opts
}
