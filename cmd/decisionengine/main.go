/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command decisionengine boots the deterministic decision core: it loads
// configuration, connects the rule store and ledger, wires the tool
// registry and executor, starts the feedback analyzer, and serves the
// HTTP surface spec §6 declares until told to stop.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/salesintel/decisionengine/internal/config"
	"github.com/salesintel/decisionengine/internal/logging"
	"github.com/salesintel/decisionengine/pkg/executor"
	"github.com/salesintel/decisionengine/pkg/feedback"
	"github.com/salesintel/decisionengine/pkg/httpapi"
	"github.com/salesintel/decisionengine/pkg/ledger"
	"github.com/salesintel/decisionengine/pkg/policy"
	"github.com/salesintel/decisionengine/pkg/rulestore"
	"github.com/salesintel/decisionengine/pkg/shadow"
	"github.com/salesintel/decisionengine/pkg/tools"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to the decision core's YAML configuration")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logr, zapLogger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer func() { _ = zapLogger.Sync() }()
	log := logging.NewFields()
	logr.Info("starting decision core", "server_port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Ledger.DSN == "" {
		return errors.New("ledger DSN is required: every decision is persisted (spec §4.6)")
	}
	ledgerDB, err := sql.Open("pgx", cfg.Ledger.DSN)
	if err != nil {
		return fmt.Errorf("opening ledger connection: %w", err)
	}
	defer ledgerDB.Close()
	ledgerDB.SetMaxOpenConns(cfg.Ledger.MaxOpenConns)

	if err := ledger.Migrate(ledgerDB); err != nil {
		return fmt.Errorf("running ledger migrations: %w", err)
	}

	source, err := ruleSource(ctx, cfg)
	if err != nil {
		return err
	}

	store := rulestore.New(source, log)
	if err := store.Refresh(ctx); err != nil {
		return fmt.Errorf("initial rule store refresh: %w", err)
	}
	go refreshLoop(ctx, store, cfg.RuleStore.RefreshPeriod, logr)

	var policyEngine *policy.Engine
	if cfg.Policy.RegoPath != "" {
		policyEngine, err = policy.NewFromSource(ctx, cfg.Policy.RegoPath, log)
	} else {
		policyEngine, err = policy.New(ctx, log)
	}
	if err != nil {
		return fmt.Errorf("initializing policy engine: %w", err)
	}

	registry := tools.NewRegistry(toolDefinitions(cfg.Tools), store, policyEngine, log)

	// pkg/patterncache is the narrow {GetPattern, PutPattern} interface the
	// email collaborator process embeds directly (spec §6 "Collaborators");
	// this binary serves only the HTTP surface and never calls it itself.

	router := shadow.NewRouter(store, nil)
	repo := ledger.NewRepository(sqlx.NewDb(ledgerDB, "pgx"), log)

	exec := executor.New(registry, router, repo, log, cfg.Ledger.LogQueueDepth, cfg.Executor.WorkerPoolSize)

	notifier := feedback.Notifier(feedback.NoopNotifier{})
	if cfg.Feedback.SlackWebhookURL != "" {
		notifier = feedback.SlackNotifier{WebhookURL: cfg.Feedback.SlackWebhookURL}
	}
	toolNames := make([]string, 0, len(registry.Names()))
	for _, n := range registry.Names() {
		toolNames = append(toolNames, string(n))
	}
	analyzer := feedback.NewAnalyzer(repo, toolNames, cfg.Feedback, feedback.LedgerAlertSink{Repo: repo}, notifier, log)
	go analyzer.Run(ctx)

	apiServer := httpapi.NewServer(exec, repo, log, cfg.Feedback.Window)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: httpapi.NewRouter(apiServer)}
	metricsSrv := &http.Server{Addr: ":" + cfg.Server.MetricsPort, Handler: metricsMux}

	errCh := make(chan error, 2)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	go func() { errCh <- metricsSrv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		logr.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	return exec.Shutdown(shutdownCtx)
}

func ruleSource(ctx context.Context, cfg *config.Config) (rulestore.Source, error) {
	switch cfg.RuleStore.Backend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Ledger.DSN)
		if err != nil {
			return nil, fmt.Errorf("connecting rule store pool: %w", err)
		}
		return rulestore.NewPostgresSource(pool), nil
	default:
		return rulestore.NewFileSource(cfg.RuleStore.Path), nil
	}
}

func refreshLoop(ctx context.Context, store *rulestore.Store, period time.Duration, logr interface {
	Error(err error, msg string, keysAndValues ...any)
}) {
	if period <= 0 {
		return
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Refresh(ctx); err != nil {
				logr.Error(err, "rule store refresh failed")
			}
		}
	}
}

// toolDefinitions builds the closed five-tool Definition set from
// operator configuration, falling back to the global default allow-list
// for any tool without a specific override (spec §3 "ToolDefinition").
func toolDefinitions(cfg config.ToolsConfig) map[tools.Name]tools.Definition {
	names := []tools.Name{
		tools.CompanyQuality,
		tools.ContactTier,
		tools.TimingScore,
		tools.BankingProductMatch,
		tools.CompositeScore,
	}
	slas := map[tools.Name]tools.SLAClass{
		tools.CompanyQuality:      tools.SLAStrict,
		tools.ContactTier:         tools.SLAStrict,
		tools.TimingScore:         tools.SLAStrict,
		tools.BankingProductMatch: tools.SLAStrict,
		tools.CompositeScore:      tools.SLAAssisted,
	}

	defs := make(map[tools.Name]tools.Definition, len(names))
	for _, name := range names {
		callers := cfg.DefaultAllowedCallers
		if override, ok := cfg.AllowedCallers[string(name)]; ok {
			callers = override
		}
		defs[name] = tools.Definition{Name: name, SLA: slas[name], AllowedCallers: callers}
	}
	return defs
}
