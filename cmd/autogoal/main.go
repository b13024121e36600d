package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rahul/autogoal/internal/agent"
	"github.com/rahul/autogoal/internal/governance"
	"github.com/rahul/autogoal/internal/observability"
	"github.com/rahul/autogoal/internal/scanner"
	"github.com/rahul/autogoal/internal/store"
	"github.com/rahul/autogoal/internal/tools"
	"github.com/rahul/autogoal/pkg/config"
)

var (
	// Global flags
	configPath string
	verbose    bool
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "autogoal",
	Short: "Autonomous goal lifecycle and execution engine",
	Long: `autogoal scans a workspace for work, turns findings into prioritized goals,
plans each goal into sandboxed steps and executes them one goal at a time.

Goals and plans live in a local sqlite database, so the engine resumes where it
stopped after a restart.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (.yaml, .yml or .json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log encoding: json, console or auto")

	rootCmd.AddCommand(runCmd, scanCmd, submitCmd, goalsCmd, goalCmd, stepsCmd, cancelCmd, resumeCmd, rememberCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the components every command shares.
type app struct {
	cfg     *config.Config
	logger  *observability.Logger
	db      *sql.DB
	goals   *store.GoalStore
	memory  *store.HistoryStore
	gate    *governance.DefaultPolicyEngine
	sandbox *tools.Sandbox
	status  *observability.SystemStatus
	metrics *observability.Metrics
	engine  *agent.Engine
}

func openApp() (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	level, format := cfg.Logging.Level, cfg.Logging.Format
	if verbose {
		level = "debug"
	}
	if logFormat != "" {
		format = logFormat
	}
	logger, err := observability.NewLogger(level, format)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.Memory.Path)
	if err != nil {
		return nil, err
	}
	goals, err := store.NewGoalStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	memory, err := store.NewHistoryStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	sb, err := tools.NewSandbox(cfg.Sandbox.Roots, cfg.Sandbox.BlockedCommands)
	if err != nil {
		db.Close()
		return nil, err
	}

	gate := governance.NewDefaultPolicyEngine()
	for _, a := range cfg.Policy.DeniedActions {
		gate.DenyAction(a)
	}
	for _, p := range cfg.Policy.DeniedPatterns {
		if err := gate.DenyArguments(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("invalid policy pattern %q: %w", p, err)
		}
	}

	status := observability.NewSystemStatus()
	metrics := observability.NewMetrics()

	return &app{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		goals:   goals,
		memory:  memory,
		gate:    gate,
		sandbox: sb,
		status:  status,
		metrics: metrics,
		engine:  agent.NewEngine(goals, gate, status, metrics, logger),
	}, nil
}

func (a *app) Close() {
	_ = a.logger.Sync()
	a.db.Close()
}

func (a *app) newScanner() (*scanner.Scanner, error) {
	sc := a.cfg.Scanner
	cq, err := scanner.NewCodeQualityScan(sc.Root, sc.Include, sc.Exclude, sc.MaxFindings)
	if err != nil {
		return nil, err
	}
	// Findings are planned against the sandbox, so report paths from its first root.
	cq.Base = a.sandbox.Roots()[0]
	s := scanner.New(a.logger, cq, scanner.NewKnowledgeGapScan(a.memory, sc.KnowledgeLimit))
	if sc.LoadEnabled {
		s.Register(scanner.NewLoadScan(scanner.HostSampler{Interval: sc.LoadSampleInterval.Duration()}, sc.LoadThreshold))
	}
	return s, nil
}

func (a *app) newCoordinator(messenger agent.Messenger, chatID string) (*agent.Coordinator, error) {
	s, err := a.newScanner()
	if err != nil {
		return nil, err
	}
	executor := tools.NewExecutor(a.sandbox, tools.Options{
		TestCommand:      a.cfg.Tests.Command,
		TestPatternFlag:  a.cfg.Tests.PatternFlag,
		TestTimeout:      a.cfg.Tests.Timeout.Duration(),
		CommandTimeout:   a.cfg.Sandbox.CommandTimeout.Duration(),
		MaxSearchResults: a.cfg.Scanner.MaxSearchResults,
	})

	return agent.NewCoordinator(agent.CoordinatorConfig{
		Store:        a.goals,
		Scanner:      s,
		Generator:    a.engine.Generator,
		Planner:      agent.NewPlanner(a.sandbox, nil, a.cfg.Scanner.DiagnosticCommand),
		Executor:     executor,
		Gate:         a.gate,
		Memory:       a.memory,
		Messenger:    messenger,
		NotifyChatID: chatID,
		Logger:       a.logger,
		Metrics:      a.metrics,
		Status:       a.status,
		Interval:     a.cfg.Coordinator.Interval.Duration(),
	})
}
