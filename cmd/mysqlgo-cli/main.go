// Command mysqlgo-cli is a small demo driver for package mysqlgo: it opens
// a pool against a configured DSN, runs an optional one-off query, and
// serves the debug dashboard until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mysqlgo/mysqlgo"
	"github.com/mysqlgo/mysqlgo/internal/appconfig"
)

func main() {
	configPath := flag.String("config", "configs/mysqlgo.yaml", "path to configuration file")
	query := flag.String("query", "", "one-off SQL statement to run and print, then exit")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	slog.Info("mysqlgo-cli starting")

	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	slog.Info("configuration loaded", "path", *configPath)

	m := mysqlgo.NewMetrics()

	db, err := mysqlgo.Open(cfg.DSN, mysqlgo.Options{
		InitStatements: cfg.InitStmts,
		ConnTTL:        cfg.ConnTTL,
		Metrics:        m,
	})
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	if *query != "" {
		runOneOffQuery(db, *query)
		return
	}

	debugAddr := fmt.Sprintf("%s:%d", cfg.APIBind, cfg.APIPort)
	debugSrv, err := db.ListenDebug(debugAddr)
	if err != nil {
		log.Fatalf("starting debug server: %v", err)
	}

	watcher, err := appconfig.NewWatcher(*configPath, func(newCfg *appconfig.Config) {
		slog.Info("configuration reloaded", "path", *configPath)
		// DSN changes require a restart since the pool already owns live
		// connections to the old target; only TTL/init statements could be
		// hot-swapped by a future Pool.Reconfigure.
	})
	if err != nil {
		slog.Warn("config hot-reload not available", "error", err)
	}

	slog.Info("mysqlgo-cli ready", "debug_addr", debugAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig.String())

	if watcher != nil {
		watcher.Stop()
	}
	if err := debugSrv.Stop(); err != nil {
		slog.Warn("error stopping debug server", "error", err)
	}

	slog.Info("mysqlgo-cli stopped")
}

func runOneOffQuery(db *mysqlgo.DB, query string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := db.QueryRows(ctx, query)
	if err != nil {
		log.Fatalf("query failed: %v", err)
	}

	for _, row := range rows {
		fmt.Println(row.Values)
	}
	fmt.Printf("%d row(s)\n", len(rows))
}
