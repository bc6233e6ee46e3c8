package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sokoflow/sokoflow/internal/api"
	"github.com/sokoflow/sokoflow/internal/dedup"
	"github.com/sokoflow/sokoflow/internal/flow"
	"github.com/sokoflow/sokoflow/internal/genai"
	"github.com/sokoflow/sokoflow/internal/governance"
	"github.com/sokoflow/sokoflow/internal/lockfile"
	"github.com/sokoflow/sokoflow/internal/messaging"
	"github.com/sokoflow/sokoflow/internal/ratelimit"
	"github.com/sokoflow/sokoflow/internal/scheduler"
	"github.com/sokoflow/sokoflow/internal/store"
	"github.com/sokoflow/sokoflow/internal/tenant"
	"github.com/sokoflow/sokoflow/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Sokoflow state data
	DefaultStateDir = "/var/lib/sokoflow"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "sokoflow.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	// One instance per state directory; the lock dies with the process.
	lock, err := lockfile.AcquireLock(config.StateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	if err := run(flags); err != nil {
		slog.Error("Sokoflow failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("Sokoflow exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseDSN   string
	StateDir      string
	OpenAIKey     string
	APIAddr       string
	TenantsFile   string
	DefaultTenant string
	WorkerLimit   int
	TwilioEnabled bool
}

// Flags holds command line flag values
type Flags struct {
	dbDSN         *string
	openaiKey     *string
	apiAddr       *string
	tenantsFile   *string
	defaultTenant *string
	workerLimit   *int
	twilioEnabled *bool
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseDSN:   os.Getenv("DATABASE_URL"),
		StateDir:      os.Getenv("SOKOFLOW_STATE_DIR"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		APIAddr:       os.Getenv("API_ADDR"),
		TenantsFile:   os.Getenv("SOKOFLOW_TENANTS_FILE"),
		DefaultTenant: os.Getenv("SOKOFLOW_DEFAULT_TENANT"),
		WorkerLimit:   util.ParseIntEnv("SOKOFLOW_WORKER_LIMIT", messaging.DefaultWorkerLimit),
		TwilioEnabled: util.ParseBoolEnv("SOKOFLOW_TWILIO_ENABLED", true),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SOKOFLOW_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseDSN)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", os.Getenv("DATABASE_URL") != "",
		"SOKOFLOW_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"SOKOFLOW_TENANTS_FILE", config.TenantsFile,
		"SOKOFLOW_DEFAULT_TENANT", config.DefaultTenant,
		"SOKOFLOW_WORKER_LIMIT", config.WorkerLimit,
		"SOKOFLOW_TWILIO_ENABLED", config.TwilioEnabled)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		dbDSN:         flag.String("db-dsn", config.DatabaseDSN, "database DSN (overrides $DATABASE_URL)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		tenantsFile:   flag.String("tenants-file", config.TenantsFile, "tenant policy YAML file (overrides $SOKOFLOW_TENANTS_FILE)"),
		defaultTenant: flag.String("default-tenant", config.DefaultTenant, "tenant for webhooks without a tenant parameter (overrides $SOKOFLOW_DEFAULT_TENANT)"),
		workerLimit:   flag.Int("worker-limit", config.WorkerLimit, "maximum concurrent turn executions (overrides $SOKOFLOW_WORKER_LIMIT)"),
		twilioEnabled: flag.Bool("twilio", config.TwilioEnabled, "enable outbound Twilio WhatsApp delivery (overrides $SOKOFLOW_TWILIO_ENABLED)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"tenantsFile", *flags.tenantsFile,
		"defaultTenant", *flags.defaultTenant,
		"workerLimit", *flags.workerLimit,
		"twilioEnabled", *flags.twilioEnabled)

	return flags
}

// run wires the modules together and blocks until shutdown.
func run(flags Flags) error {
	st, err := store.Open(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	tenants, err := tenant.NewRegistry(*flags.tenantsFile)
	if err != nil {
		return err
	}

	// Pick up tenant policy edits without a restart.
	if *flags.tenantsFile != "" {
		sched := scheduler.NewScheduler()
		defer sched.Stop()
		if err := sched.AddJob("*/5 * * * *", func() {
			if err := tenants.Reload(); err != nil {
				slog.Warn("Tenant policy reload failed, keeping previous policies", "error", err)
			}
		}); err != nil {
			return err
		}
	}

	classifier := buildClassifier(flags)
	governor := governance.NewEngine(ratelimit.NewCooldownLimiter(st))
	orchestrator := flow.NewOrchestrator(st, tenants, classifier, governor)

	sender := buildSender(flags)
	defer sender.Stop()

	hostname, _ := os.Hostname()
	messageLock := dedup.NewMessageLock(st, hostname)
	processor := messaging.NewProcessor(orchestrator, sender, messageLock, *flags.workerLimit)
	defer processor.Close()

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.defaultTenant != "" {
		apiOpts = append(apiOpts, api.WithDefaultTenant(*flags.defaultTenant))
	}
	server := api.NewServer(processor, st, apiOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping Sokoflow", "dsn_type", store.DetectDSNType(*flags.dbDSN),
		"workers", *flags.workerLimit, "twilio", *flags.twilioEnabled)
	return server.Run(ctx)
}

// buildClassifier wires the OpenAI classifier behind the heuristic fallback.
// Without an API key the heuristic classifier runs alone.
func buildClassifier(flags Flags) genai.ClientInterface {
	heuristic := genai.NewHeuristicClassifier()
	if *flags.openaiKey == "" {
		slog.Warn("No OpenAI API key configured, using heuristic classifiers only")
		return genai.NewFallbackChain(nil, heuristic)
	}
	return genai.NewFallbackChain(genai.NewClientWithKey(*flags.openaiKey), heuristic)
}

// buildSender selects the outbound delivery service.
func buildSender(flags Flags) messaging.Service {
	if !*flags.twilioEnabled {
		slog.Warn("Twilio delivery disabled, replies are logged but not sent")
		return messaging.NewMockService()
	}
	sender, err := messaging.NewTwilioService()
	if err != nil {
		slog.Warn("Twilio not configured, replies are logged but not sent", "error", err)
		return messaging.NewMockService()
	}
	return sender
}
