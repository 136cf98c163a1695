package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/compozy/remotequery/engine/remote"
	"github.com/compozy/remotequery/pkg/config"
	"github.com/compozy/remotequery/pkg/logger"
)

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "remoteq",
		Short:         "Query remote REST and gRPC resources like local tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return SetupGlobalConfig(cmd)
		},
	}
	addGlobalFlags(root)
	root.AddCommand(
		GetCmd(),
		FindCmd(),
		AggregateCmd(),
		CreateCmd(),
		UpdateCmd(),
		DeleteCmd(),
	)
	return root
}

func addGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("client", config.ClientREST, "Transport to use: rest or grpc")
	flags.String("base-url", "", "REST base URL")
	flags.String("server-address", "", "gRPC server address")
	flags.String("service-name", "", "gRPC service name")
	flags.Duration("timeout", 30*time.Second, "REST request timeout")
	flags.Duration("grpc-timeout", 30*time.Second, "gRPC call timeout")
	flags.Bool("oauth", false, "Authenticate REST calls with OAuth2 client credentials")
	flags.Bool("cache", false, "Cache GET responses")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.Bool("log-json", false, "Log in JSON format")
	flags.Bool("log-source", false, "Include source locations in logs")
	flags.Bool("no-color", false, "Disable colored output")
}

// SetupGlobalConfig loads configuration from defaults, CLI flags and the
// environment, then stores it and a logger in the command context.
func SetupGlobalConfig(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	flags := make(map[string]any)
	extractCLIFlags(cmd, flags)
	cfg, err := config.Load(ctx, config.NewCLIProvider(flags))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	_, _, logSource, err := logger.GetLoggerConfig(cmd)
	if err != nil {
		return err
	}
	level := cfg.Logging.Level
	if cfg.Logging.Enabled {
		level = string(logger.DebugLevel)
	}
	log := logger.SetupLogger(level, cfg.Logging.JSON, logSource)
	ctx = config.ContextWithConfig(ctx, cfg)
	ctx = logger.ContextWithLogger(ctx, log)
	cmd.SetContext(ctx)
	return nil
}

// extractCLIFlags copies flags the user set explicitly.
func extractCLIFlags(cmd *cobra.Command, flags map[string]any) {
	getString := func(name string) (any, error) { return cmd.Flags().GetString(name) }
	getBool := func(name string) (any, error) { return cmd.Flags().GetBool(name) }
	getDuration := func(name string) (any, error) { return cmd.Flags().GetDuration(name) }
	flagDefs := []struct {
		name   string
		getter func(string) (any, error)
	}{
		{"client", getString},
		{"base-url", getString},
		{"server-address", getString},
		{"service-name", getString},
		{"timeout", getDuration},
		{"grpc-timeout", getDuration},
		{"oauth", getBool},
		{"cache", getBool},
		{"log-level", getString},
		{"log-json", getBool},
	}
	for _, def := range flagDefs {
		if !cmd.Flags().Changed(def.name) {
			continue
		}
		if value, err := def.getter(def.name); err == nil {
			flags[def.name] = value
		}
	}
}

// withManager runs fn with a manager built from the context configuration.
func withManager(cmd *cobra.Command, fn func(ctx context.Context, m *remote.Manager) error) error {
	ctx := cmd.Context()
	m, err := remote.NewManager(ctx, config.FromContext(ctx))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := m.Close(); cerr != nil {
			logger.FromContext(ctx).Warn("Failed to close remote manager", "error", cerr)
		}
	}()
	return fn(ctx, m)
}
