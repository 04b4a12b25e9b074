package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/kardianos/service"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zhaobenny/sleepdash/internal/config"
	"github.com/zhaobenny/sleepdash/internal/dashboard"
	"github.com/zhaobenny/sleepdash/internal/logging"
	"github.com/zhaobenny/sleepdash/internal/model"
	"github.com/zhaobenny/sleepdash/internal/pipeline"
	"github.com/zhaobenny/sleepdash/internal/whoop"
	"github.com/zhaobenny/sleepdash/server/internal/auth"
	"github.com/zhaobenny/sleepdash/server/internal/database"
	"github.com/zhaobenny/sleepdash/server/internal/handlers"
	"github.com/zhaobenny/sleepdash/server/internal/middleware"
	"github.com/zhaobenny/sleepdash/server/internal/templates"
)

const shutdownTimeout = 10 * time.Second

// program implements service.Interface. Start returns immediately; the
// fetch and the HTTP server run in the background.
type program struct {
	cfgPath string

	logger *zap.SugaredLogger
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	db     *database.DB
	stream *handlers.Stream
	srv    *http.Server
}

func (p *program) Start(s service.Service) error {
	cfg, err := config.Load(p.cfgPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	p.logger = logger

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		if err := p.run(ctx, cfg); err != nil {
			// no partial dashboard: a failed startup ends the process
			p.logger.Fatalw("server stopped", "error", err)
		}
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.cancel != nil {
		p.cancel()
	}

	p.mu.Lock()
	srv, stream := p.srv, p.stream
	p.mu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			p.logger.Warnw("shutdown", "error", err)
		}
	}
	if stream != nil {
		stream.Close()
	}
	if p.done != nil {
		<-p.done
	}
	if p.db != nil {
		p.db.Close()
	}
	if p.logger != nil {
		p.logger.Sync() //nolint:errcheck
	}
	return nil
}

func (p *program) run(ctx context.Context, cfg *config.Config) error {
	db, err := database.Open(cfg.Server.DBPath)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.db = db
	p.mu.Unlock()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	table, err := loadTable(ctx, cfg, db, p.logger)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	defaultStart, err := model.ParseDay(cfg.Dashboard.DefaultStart)
	if err != nil {
		return err
	}
	dash := dashboard.New(dashboard.Options{
		Title:        cfg.Dashboard.Title,
		DefaultStart: defaultStart,
	}, p.logger.Named("dashboard"))
	if err := dash.Load(table); err != nil {
		return err
	}

	// Setup session manager with SQLite store
	sessionMgr := scs.New()
	sessionMgr.Store = sqlite3store.New(db.DB)
	sessionMgr.Lifetime = 7 * 24 * time.Hour
	sessionMgr.Cookie.Secure = cfg.Server.SecureCookie
	sessionMgr.Cookie.SameSite = http.SameSiteLaxMode

	tmpl, err := templates.Parse()
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}

	gate := auth.NewGate(cfg.Server.AccessHash(), sessionMgr, p.logger.Named("auth"))
	if gate.Enabled() {
		p.logger.Infow("access gate enabled", "env", cfg.Server.AccessHashEnv)
	}

	h := handlers.New(dash, db, sessionMgr, tmpl, gate, p.logger.Named("http"))
	stream := handlers.NewStream(dash, p.logger.Named("stream"))

	// five login attempts per minute per IP
	loginLimiter := middleware.NewIPRateLimiter(rate.Every(12*time.Second), 5)

	handler := middleware.SecurityHeaders(h.Routes(stream, loginLimiter))
	handler = middleware.RequestLogger(p.logger.Named("http"))(handler)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	p.mu.Lock()
	if ctx.Err() != nil {
		p.mu.Unlock()
		return nil
	}
	p.srv, p.stream = srv, stream
	p.mu.Unlock()

	p.logger.Infow("starting sleepdash-server", "addr", srv.Addr, "db", cfg.Server.DBPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// loadTable produces the sleep table: the cached snapshot in offline mode,
// otherwise a fresh fetch that then replaces the snapshot.
func loadTable(ctx context.Context, cfg *config.Config, db *database.DB, logger *zap.SugaredLogger) (*model.SleepTable, error) {
	if cfg.Server.Offline {
		table, snap, err := db.LoadSnapshot()
		if err != nil {
			return nil, fmt.Errorf("offline mode: %w", err)
		}
		logger.Infow("serving cached snapshot", "fetched_at", snap.FetchedAt, "rows", snap.Rows)
		return table, nil
	}

	password := cfg.Whoop.Password()
	if password == "" {
		return nil, fmt.Errorf("WHOOP password not set: export %s", cfg.Whoop.PasswordEnv)
	}
	start, end, err := cfg.Whoop.Window()
	if err != nil {
		return nil, err
	}

	client := whoop.NewClient(cfg.Whoop.BaseURL, cfg.Whoop.Timeout, logger.Named("whoop"))
	table, err := pipeline.Run(ctx, client,
		model.Credential{Username: cfg.Whoop.Username, Password: password},
		pipeline.Window{Start: start, End: end},
		logger.Named("pipeline"))
	if err != nil {
		return nil, err
	}

	if _, err := db.SaveSnapshot(table, start, end); err != nil {
		logger.Warnw("failed to cache snapshot", "error", err)
	}
	return table, nil
}
