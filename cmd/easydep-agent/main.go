// Command easydep-agent is the long-lived per-host deployment agent
// (spec.md §2). It owns on-disk deployment state and exposes the RPC
// surface described in §4.6/§6. Wiring modeled on the teacher's
// cmd/releaseparty-api/main.go.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"easydep/internal/arbiter"
	"easydep/internal/config"
	"easydep/internal/githubapp"
	"easydep/internal/phases"
	"easydep/internal/release"
	"easydep/internal/rpc"
	"easydep/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "easydep-agent ", log.LstdFlags|log.LUTC)

	configPath := flag.String("config", "easydep.toml", "path to the agent TOML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	app, err := githubapp.New(cfg.GitHubAppID, cfg.GitHubAppPEMKeyPath)
	if err != nil {
		logger.Fatalf("github app: %v", err)
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatalf("db: %v", err)
	}
	defer st.Close()

	relStore := release.New(cfg.BaseDirectory)
	global := arbiter.NewGlobal()
	executor := phases.NewExecutor(relStore, app, cfg, global, st, cfg.RetainedReleases, logger)

	srv := rpc.New(cfg, app, relStore, st, global, executor, logger)

	httpSrv := &http.Server{
		Addr:              cfg.BindHost,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.BindHost)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("server: %v", err)
			os.Exit(100)
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Printf("shutting down...")
	_ = httpSrv.Close()
}
