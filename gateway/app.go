// Package gateway is the payment boundary application. It wires the card
// vault, BIN classifier and 3-D Secure orchestrator behind one HTTP server.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/alovak/paytrust/acs"
	acs8583 "github.com/alovak/paytrust/acs/iso8583"
	"github.com/alovak/paytrust/bininfo"
	"github.com/alovak/paytrust/internal/kvstore"
	"github.com/alovak/paytrust/internal/middleware"
	"github.com/alovak/paytrust/internal/security"
	"github.com/alovak/paytrust/threeds"
	"github.com/alovak/paytrust/vault"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/exp/slog"
)

// App is the main application, it contains all the components of the gateway
// and is responsible for starting and stopping them.
type App struct {
	srv     *http.Server
	wg      *sync.WaitGroup
	Addr    string
	ACSAddr string
	logger  *slog.Logger
	config  *Config

	store   kvstore.Store
	closers []io.Closer
	cancel  context.CancelFunc
}

func NewApp(logger *slog.Logger, config *Config) *App {
	logger = logger.With(slog.String("app", "gateway"))

	if config == nil {
		config = DefaultConfig()
	}

	return &App{
		wg:     &sync.WaitGroup{},
		logger: logger,
		config: config,
	}
}

// Start brings up all components. On error whatever was already started is
// stopped again.
func (a *App) Start() (err error) {
	a.logger.Info("starting app...")

	if err := a.config.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	defer func() {
		if err != nil {
			a.Shutdown()
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	a.store = store

	if sweeper, ok := store.(kvstore.Sweeper); ok && a.config.SweepInterval > 0 {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			kvstore.RunSweeper(ctx, sweeper, a.config.SweepInterval, a.logger)
		}()
	}

	random, err := a.randomSource()
	if err != nil {
		return err
	}

	table, err := a.binTable()
	if err != nil {
		return err
	}

	v := vault.New(store, vault.Config{
		TTL:        a.config.TokenTTL,
		PANHashKey: []byte(a.config.PANHashKey),
	}, a.logger, vault.WithIDGenerator(security.NewIDGenerator(random, vault.TokenPrefix, 16)))

	classifier := bininfo.NewClassifier(table, a.logger)

	sim, err := acs.NewSimulator(acs.Config{
		URL:         a.config.ACSURL,
		SigningKey:  []byte(a.config.ACSSigningKey),
		NotEnrolled: acs.DefaultConfig().NotEnrolled,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("creating acs simulator: %w", err)
	}

	acsClient, err := a.connectACS(sim)
	if err != nil {
		return err
	}

	orchestrator := threeds.NewOrchestrator(store, v, acsClient, threeds.Config{
		SessionTTL: a.config.SessionTTL,
		ACSTimeout: a.config.ACSTimeout,
	}, a.logger, threeds.WithIDGenerator(security.NewIDGenerator(random, threeds.SessionPrefix, 16)))

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(middleware.NewStructuredLogger(a.logger))
	router.Use(chimw.Recoverer)
	router.Use(middleware.SecurityHeaders)

	router.Route("/payment", func(r chi.Router) {
		vault.NewAPI(v, a.logger).AppendRoutes(r)
		bininfo.NewAPI(classifier).AppendRoutes(r)
		threeds.NewAPI(orchestrator, a.logger).AppendRoutes(r)

		// the simulator stands in for the cardholder step unless a remote
		// ACS is used
		if a.config.ACSMode == ACSModeSimulator || a.config.ACSEmbed {
			acs.NewAPI(sim).AppendRoutes(r)
		}
	})

	router.Get("/-/live", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	router.Get("/-/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	l, err := net.Listen("tcp", a.config.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening tcp port: %w", err)
	}

	a.Addr = l.Addr().String()

	a.srv = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	a.wg.Add(1)
	go func() {
		a.logger.Info("http server started", slog.String("addr", a.Addr))

		if err := a.srv.Serve(l); err != nil {
			if err != http.ErrServerClosed {
				a.logger.Error("starting http server", "err", err)
			}

			a.logger.Info("http server stopped")
		}

		a.wg.Done()
	}()

	return nil
}

func (a *App) openStore(ctx context.Context) (kvstore.Store, error) {
	switch a.config.Backend {
	case BackendRedis:
		store, err := kvstore.DialRedis(ctx, a.config.RedisURL, "paytrust:")
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store)
		return store, nil
	case BackendPostgres:
		store, err := kvstore.OpenPostgres(ctx, a.config.DBDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case BackendMemory:
		return kvstore.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported REPO_BACKEND=%s", a.config.Backend)
	}
}

func (a *App) binTable() (*bininfo.Table, error) {
	if a.config.BINTablePath == "" {
		return bininfo.DefaultTable()
	}

	table, err := bininfo.LoadYAML(a.config.BINTablePath)
	if err != nil {
		return nil, err
	}
	a.logger.Info("bin table loaded",
		slog.String("path", a.config.BINTablePath),
		slog.String("version", table.Version),
		slog.Int("bins", table.Len()),
	)
	return table, nil
}

// connectACS returns the ACS collaborator for the configured mode. In iso8583 mode
// with ACSEmbed the simulator is served over ISO 8583 by the app itself.
func (a *App) connectACS(sim *acs.Simulator) (threeds.ACS, error) {
	if a.config.ACSMode == ACSModeSimulator {
		return sim, nil
	}

	addr := a.config.ACSAddr
	if a.config.ACSEmbed {
		server := acs8583.NewServer(a.logger, addr, sim)
		if err := server.Start(); err != nil {
			return nil, fmt.Errorf("starting embedded acs: %w", err)
		}
		a.closers = append(a.closers, server)
		addr = server.Addr
	}
	a.ACSAddr = addr

	client := acs8583.NewClient(a.logger, addr)
	if err := client.Connect(); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client)

	return client, nil
}

func (a *App) Shutdown() {
	a.logger.Info("shutting down app...")

	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.srv.Shutdown(ctx)
	}
	if a.cancel != nil {
		a.cancel()
	}

	// clients before servers
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Error("closing component", "err", err)
		}
	}
	a.closers = nil

	a.wg.Wait()

	a.logger.Info("app stopped")
}
