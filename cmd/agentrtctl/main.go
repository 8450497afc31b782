// Package main is agentrtctl, a thin operator CLI over the same event
// store agentrtd runs against: submit a user message to an aggregate,
// tail its committed events, or force a replay/export. It never calls an
// LLM or a sandbox backend itself — those only run inside agentrtd.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentforge/runtime/internal/aggregate"
	"github.com/agentforge/runtime/internal/config"
	"github.com/agentforge/runtime/internal/eventlog"
	"github.com/agentforge/runtime/internal/finish"
	"github.com/agentforge/runtime/internal/runtime"
	"github.com/agentforge/runtime/internal/sandbox"
	"github.com/agentforge/runtime/internal/toolhandler"
	"github.com/agentforge/runtime/internal/tools"
	"github.com/agentforge/runtime/pkg/eventsourcing"
)

const aggregateType = "agent"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "agentrtctl:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "agentrtctl",
		Short:        "Operate on an agentrtd event store directly",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "agentrtd.yaml", "Path to YAML configuration file")

	root.AddCommand(
		buildSubmitCmd(&configPath),
		buildTailCmd(&configPath),
		buildFinishCmd(&configPath),
	)
	return root
}

func buildSubmitCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <aggregate-id> <message>",
		Short: "Submit a user message to an aggregate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openHandler(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			_, err = h.Execute(cmd.Context(), args[0], aggregate.PutUserMessage{Content: args[1]}, eventsourcing.Metadata{})
			if err != nil {
				return fmt.Errorf("agentrtctl: submit: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "submitted to %s\n", args[0])
			return nil
		},
	}
}

func buildTailCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tail <aggregate-id>",
		Short: "Print every committed event for an aggregate as JSON, one per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openHandler(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			envs, err := h.Store.LoadEvents(cmd.Context(), aggregateType, args[0])
			if err != nil {
				return fmt.Errorf("agentrtctl: load events: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, env := range envs {
				if err := enc.Encode(env); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func buildFinishCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "finish <aggregate-id>",
		Short: "Force a replay of an aggregate's tool calls and export its workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("agentrtctl: load config: %w", err)
			}
			h, err := openHandlerWithConfig(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			registry, err := tools.NewDefaultRegistry()
			if err != nil {
				return fmt.Errorf("agentrtctl: build tool registry: %w", err)
			}
			backend := sandbox.NewFakeBackend()
			manager := sandbox.NewManager(backend, cfg.Template)
			workspace := toolhandler.NewManagerResolver(manager, func(aggregateID string) (string, sandbox.WorkspaceAccessMode, []string, error) {
				return cfg.Template.SourceDir, sandbox.WorkspaceReadWrite, nil, nil
			})

			fh := finish.New(registry, backend, workspace, cfg.Finish.ExportRoot, nil)
			if err := fh.Replay(cmd.Context(), h, args[0]); err != nil {
				return fmt.Errorf("agentrtctl: finish: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %s to %s/%s\n", args[0], cfg.Finish.ExportRoot, args[0])
			return nil
		},
	}
}

func openHandler(ctx context.Context, configPath string) (*runtime.Handler, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("agentrtctl: load config: %w", err)
	}
	return openHandlerWithConfig(ctx, cfg)
}

func openHandlerWithConfig(ctx context.Context, cfg *config.Config) (*runtime.Handler, error) {
	store, err := buildStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	return runtime.NewHandler(store, aggregateType, func() aggregate.Extension {
		return aggregate.NoopExtension{TypeName: aggregateType}
	}, nil), nil
}

func buildStore(ctx context.Context, cfg config.StoreConfig) (eventsourcing.Store, error) {
	switch cfg.Backend {
	case "memory", "":
		return eventlog.NewMemoryStore(), nil
	case "sqlite":
		store, err := eventlog.NewSQLiteStore(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("agentrtctl: open sqlite store: %w", err)
		}
		return store, nil
	case "postgres":
		store, err := eventlog.NewPostgresStore(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("agentrtctl: open postgres store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("agentrtctl: unknown store backend %q", cfg.Backend)
	}
}
