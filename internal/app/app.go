// Package app wires the content platform together: the Pebble store,
// the record/index layers, the rate gates and the gated flows, plus
// the operational health/metrics listener and the sweeper.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fieldnotes/internal/sweeper"
	"fieldnotes/pkg/auth"
	"fieldnotes/pkg/blob"
	"fieldnotes/pkg/config"
	"fieldnotes/pkg/entry"
	"fieldnotes/pkg/index"
	"fieldnotes/pkg/kv"
	"fieldnotes/pkg/logger"
	"fieldnotes/pkg/publish"
	"fieldnotes/pkg/rategate"
	"fieldnotes/pkg/state"
	"fieldnotes/pkg/validation"
	"fieldnotes/pkg/vault"
)

// App owns the component graph and lifecycle.
type App struct {
	cfg     *config.Config
	version string

	store kv.Store

	Publisher *publish.Publisher
	Auth      *auth.Service
	Vault     *vault.Service

	sweep *sweeper.Sweeper
	srv   *http.Server
}

// New opens the store and builds the component graph. It does not
// start the listener or the sweeper; call Run for that.
func New(cfg *config.Config, verify auth.CredentialChecker, version string) (*App, error) {
	if err := state.EnsureStateDirs(cfg.Storage.DBPath); err != nil {
		return nil, fmt.Errorf("bad state layout under %s: %w", cfg.Storage.DBPath, err)
	}
	store, err := kv.Open(state.Layout(cfg.Storage.DBPath).Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", cfg.Storage.DBPath, err)
	}

	blobs, err := blob.NewFS(cfg.Storage.BlobPath, cfg.Storage.BlobBaseURL)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open blob store at %s: %w", cfg.Storage.BlobPath, err)
	}

	records := entry.New(store)
	idx := index.New(store, records)

	loginGate := rategate.New(store, rategate.Config{
		Category: "login",
		Limit:    cfg.Limits.Login.Limit,
		Daily:    cfg.Limits.Login.Daily,
		Window:   cfg.Limits.Login.Window.Duration(),
		FailOpen: cfg.Limits.Login.FailOpen,
	})
	uploadGate := rategate.New(store, rategate.Config{
		Category: "upload",
		Limit:    cfg.Limits.Upload.Limit,
		Daily:    cfg.Limits.Upload.Daily,
		Window:   cfg.Limits.Upload.Window.Duration(),
		FailOpen: cfg.Limits.Upload.FailOpen,
	})

	a := &App{
		cfg:     cfg,
		version: version,
		store:   store,
		Publisher: publish.New(store, records, idx, blobs,
			rulesFromConfig(cfg.Validation)),
		Auth: auth.NewService(store, loginGate, auth.LimiterConfig{
			RPS:   cfg.Limits.Burst.RPS,
			Burst: cfg.Limits.Burst.Burst,
		}, verify),
		Vault: vault.NewService(records, idx, blobs, uploadGate,
			cfg.Vault.MaxFileSize.Int64()),
		sweep: sweeper.New(store, cfg.Sweeper),
	}
	return a, nil
}

// Run starts the sweeper and the health/metrics listener and blocks
// until ctx is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	stopSweeper, err := a.sweep.Start(ctx)
	if err != nil {
		return err
	}
	defer stopSweeper()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	a.srv = &http.Server{Addr: a.cfg.Addr(), Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("ops_listener_started", "addr", a.cfg.Addr())
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return a.shutdown()
	case err := <-errCh:
		a.store.Close()
		return err
	}
}

func (a *App) shutdown() error {
	logger.Info("shutting_down")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.srv != nil {
		if err := a.srv.Shutdown(sctx); err != nil {
			logger.Warn("ops_listener_shutdown_error", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
		return err
	}
	logger.Info("store_closed")
	return nil
}

// Store exposes the backing store for maintenance tooling.
func (a *App) Store() kv.Store { return a.store }

// rulesFromConfig builds validation rules from the config shape.
func rulesFromConfig(vc config.ValidationConfig) validation.Rules {
	vr := validation.Rules{
		Types:  map[string]string{},
		MaxLen: map[string]int{},
		Enums:  map[string][]string{},
	}
	vr.Required = append(vr.Required, vc.Required...)
	for _, t := range vc.Types {
		vr.Types[t.Path] = t.Type
	}
	for _, ml := range vc.MaxLen {
		vr.MaxLen[ml.Path] = ml.Max
	}
	for _, e := range vc.Enums {
		vr.Enums[e.Path] = append([]string{}, e.Values...)
	}
	return vr
}
