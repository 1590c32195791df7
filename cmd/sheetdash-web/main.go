package main

import (
	"context"
	"errors"
	"flag"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/elpatron68/sheetdash/internal/auth"
	"github.com/elpatron68/sheetdash/internal/config"
	applog "github.com/elpatron68/sheetdash/internal/log"
	"github.com/elpatron68/sheetdash/internal/refresh"
	"github.com/elpatron68/sheetdash/internal/server"
	"github.com/elpatron68/sheetdash/internal/session"
	"github.com/elpatron68/sheetdash/internal/sheet"
	"github.com/elpatron68/sheetdash/internal/ui"
)

func main() {
	configFlag := flag.String("config", "", "path to config.yaml")
	listenFlag := flag.String("listen", "", "listen address, overrides SHEETDASH_LISTEN and config")
	flag.Parse()

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		stdlog.Printf("warning: .env not loaded: %v", err)
	}

	configPath := *configFlag
	if configPath == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			configPath = "config.yaml"
		} else if _, err := os.Stat("../../config.yaml"); err == nil {
			configPath = "../../config.yaml"
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		stdlog.Fatalf("config error: %v", err)
	}

	applog.InitFromEnvFallback(cfg.Logging.Level)
	defer applog.Sync()

	userStore, err := buildUserStore(cfg)
	if err != nil {
		stdlog.Fatalf("invalid user in config: %v", err)
	}
	if userStore.Len() == 0 {
		applog.Warnf("no users configured, basic auth disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := session.NewFromConfig(cfg)
	if err != nil {
		stdlog.Fatalf("session: %v", err)
	}
	sess := session.NewManager(store)
	if err := sess.Init(ctx); err != nil {
		// a broken store should not keep the dashboard down; the user can sign in again
		applog.Errorf("session: could not restore identity: %v", err)
	}

	src, err := sheet.NewFromConfig(ctx, cfg)
	if err != nil {
		stdlog.Fatalf("sheet source: %v", err)
	}
	rlog := ui.NewRefreshLog(cfg.UI.RefreshLogMax)
	ref := refresh.New(src, refresh.Options{Interval: cfg.Refresh.Interval, Log: rlog})
	go ref.Run(ctx)

	srv, err := server.NewServer(server.Options{
		Config:     cfg,
		Users:      userStore,
		Session:    sess,
		Refresher:  ref,
		RefreshLog: rlog,
	})
	if err != nil {
		stdlog.Fatalf("server: %v", err)
	}

	listenAddr := resolveListenAddress(cfg, *listenFlag)
	httpSrv := &http.Server{
		Addr:              listenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	applog.Infof("task dashboard listening on %s (source=%s, refresh every %s)", listenAddr, cfg.Source.Kind, ref.Interval())
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stdlog.Fatalf("server error: %v", err)
	}
}

// resolveListenAddress: flag > SHEETDASH_LISTEN > config > :8080.
func resolveListenAddress(cfg *config.Config, flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv("SHEETDASH_LISTEN"); v != "" {
		return v
	}
	if cfg != nil && cfg.Listen != "" {
		return cfg.Listen
	}
	return ":8080"
}

// buildUserStore loads configured users; SHEETDASH_USER/SHEETDASH_PASS add one
// more when both are set.
func buildUserStore(cfg *config.Config) (*auth.InMemoryUserStore, error) {
	users := make([]config.UserConfig, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		if u.Username == "" || u.PasswordHash == "" {
			continue
		}
		users = append(users, u)
	}
	store, err := auth.NewStoreFromConfig(users)
	if err != nil {
		return nil, err
	}
	user, pass := os.Getenv("SHEETDASH_USER"), os.Getenv("SHEETDASH_PASS")
	if user != "" && pass != "" {
		if err := store.AddUserPlain(user, pass); err != nil {
			return nil, err
		}
	}
	return store, nil
}
