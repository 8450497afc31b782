// Package main is the agentrtd daemon entry point: it loads a YAML
// config, wires the event store, polling queue/listener, LLM handler,
// tool handler, and finish/export handler into one Runtime, and runs it
// until SIGINT/SIGTERM, the way cmd/nexus wires gateway.NewManagedServer
// behind a cobra "serve" command.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2/google"

	"github.com/agentforge/runtime/internal/aggregate"
	"github.com/agentforge/runtime/internal/config"
	"github.com/agentforge/runtime/internal/eventlog"
	"github.com/agentforge/runtime/internal/finish"
	"github.com/agentforge/runtime/internal/listener"
	"github.com/agentforge/runtime/internal/llmclient"
	"github.com/agentforge/runtime/internal/llmhandler"
	"github.com/agentforge/runtime/internal/observability"
	"github.com/agentforge/runtime/internal/planning"
	"github.com/agentforge/runtime/internal/planningtools"
	"github.com/agentforge/runtime/internal/runtime"
	"github.com/agentforge/runtime/internal/sandbox"
	"github.com/agentforge/runtime/internal/toolhandler"
	"github.com/agentforge/runtime/internal/tools"
	"github.com/agentforge/runtime/pkg/eventsourcing"
)

// aggregateType is the only aggregate type agentrtd drives. Agent
// variants (planner/worker delegation) are a separate scenario wired
// through internal/planner and internal/worker; the daemon runs the
// plain, extension-less agent used by the single-agent scenarios.
const aggregateType = "agent"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd mirrors cmd/nexus's separation of command-tree assembly
// from main, so the command can be exercised without starting anything.
func buildRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "agentrtd",
		Short:        "Event-sourced agent orchestration daemon",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "agentrtd.yaml", "Path to YAML configuration file")
	return root
}

// runServe loads cfgPath, wires every component, and runs the Runtime
// until ctx is cancelled by a shutdown signal or a handler returns an
// error.
func runServe(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("agentrtd: load config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})

	store, err := buildStore(ctx, cfg.Store)
	if err != nil {
		return err
	}

	queue := listener.NewPollingQueue(store)
	lst := listener.New(queue, aggregateType).WithPollInterval(cfg.Listener.PollInterval)
	if cfg.Listener.CronRescan != "" {
		ticker, err := listener.NewCronTicker(cfg.Listener.CronRescan)
		if err != nil {
			return fmt.Errorf("agentrtd: cron rescan schedule %q: %w", cfg.Listener.CronRescan, err)
		}
		lst = lst.WithExternalTicker(ticker.C())
	}

	provider, err := buildProviderChain(ctx, cfg.LLM)
	if err != nil {
		return err
	}

	registry, err := tools.NewDefaultRegistry()
	if err != nil {
		return fmt.Errorf("agentrtd: build tool registry: %w", err)
	}
	if err := planningtools.Register(registry); err != nil {
		return fmt.Errorf("agentrtd: register planning tools: %w", err)
	}

	backend := sandbox.NewFakeBackend()
	manager := sandbox.NewManager(backend, cfg.Template)
	workspace := toolhandler.NewManagerResolver(manager, func(aggregateID string) (string, sandbox.WorkspaceAccessMode, []string, error) {
		return cfg.Template.SourceDir, sandbox.WorkspaceReadWrite, nil, nil
	})

	events := observability.NewEventRecorder(observability.NewMemoryEventStore(0), logger)

	llmHandler := llmhandler.New(provider, llmhandler.Config{
		Model:       cfg.LLM.Model,
		System:      cfg.LLM.Preamble,
		Tools:       registry.Definitions(),
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Retry:       cfg.LLM.Retry.Policy(),
	}, logger, events)

	toolHandler := toolhandler.New(registry, backend, workspace, logger, events)
	finishHandler := finish.New(registry, backend, workspace, cfg.Finish.ExportRoot, logger)

	h := runtime.NewHandler(store, aggregateType, func() aggregate.Extension {
		return planning.NewExtension(aggregateType)
	}, nil)
	rt := runtime.New(h, lst, llmHandler, toolHandler, finishHandler)

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info(runCtx, "agentrtd starting",
		"store_backend", cfg.Store.Backend,
		"llm_provider", cfg.LLM.DefaultProvider,
		"poll_interval", cfg.Listener.PollInterval,
	)

	if err := rt.Start(runCtx); err != nil && runCtx.Err() == nil {
		return fmt.Errorf("agentrtd: runtime stopped: %w", err)
	}
	logger.Info(runCtx, "agentrtd shut down")
	return nil
}

func buildStore(ctx context.Context, cfg config.StoreConfig) (eventsourcing.Store, error) {
	switch cfg.Backend {
	case "memory", "":
		return eventlog.NewMemoryStore(), nil
	case "sqlite":
		store, err := eventlog.NewSQLiteStore(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("agentrtd: open sqlite store: %w", err)
		}
		return store, nil
	case "postgres":
		store, err := eventlog.NewPostgresStore(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("agentrtd: open postgres store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("agentrtd: unknown store backend %q", cfg.Backend)
	}
}

// buildProviderChain constructs the default_provider as the primary and
// every name in fallback_chain as successors, wrapped in a
// llmclient.FailoverChain when there is more than one.
func buildProviderChain(ctx context.Context, cfg config.LLMConfig) (llmclient.Provider, error) {
	names := append([]string{cfg.DefaultProvider}, cfg.FallbackChain...)
	providers := make([]llmclient.Provider, 0, len(names))
	for _, name := range names {
		p, err := buildProvider(ctx, name, cfg)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if len(providers) == 1 {
		return providers[0], nil
	}
	return llmclient.NewFailoverChain(1, 0, providers...), nil
}

func buildProvider(ctx context.Context, name string, cfg config.LLMConfig) (llmclient.Provider, error) {
	pc := cfg.Providers[name]
	switch name {
	case "anthropic":
		return llmclient.NewAnthropicProvider(pc.APIKey, cfg.Model), nil
	case "openai":
		return llmclient.NewOpenAIProvider(pc.APIKey, cfg.Model), nil
	case "bedrock":
		region := pc.Region
		if region == "" {
			region = "us-east-1"
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			return nil, fmt.Errorf("agentrtd: load AWS config for bedrock: %w", err)
		}
		return llmclient.NewBedrockProvider(bedrockruntime.NewFromConfig(awsCfg), cfg.Model), nil
	case "google":
		endpoint := pc.BaseURL
		creds, err := google.FindDefaultCredentials(ctx, "https://www.googleapis.com/auth/cloud-platform")
		if err != nil {
			return nil, fmt.Errorf("agentrtd: google default credentials: %w", err)
		}
		return llmclient.NewGoogleProvider(creds.TokenSource, endpoint, cfg.Model), nil
	default:
		return nil, fmt.Errorf("agentrtd: unknown llm provider %q", name)
	}
}
