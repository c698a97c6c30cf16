package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Maelco1/reset/internal/app"
	"github.com/Maelco1/reset/pkg/config"
	"github.com/Maelco1/reset/pkg/logger"
)

// cli holds what every command needs once PersistentPreRunE ran.
type cli struct {
	ctx       context.Context
	cfg       *config.Config
	logger    *zap.Logger
	container *app.Container
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	state := &cli{ctx: ctx}
	rootCmd := &cobra.Command{
		Use:           "gardectl",
		Short:         "Operate the on-call planning",
		Long:          "Seed and import the slot catalog, run the rotation auto-assignment and manage accounts.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			state.close()
		},
	}

	rootCmd.AddCommand(catalogCmd(state))
	rootCmd.AddCommand(autoAssignCmd(state))
	rootCmd.AddCommand(workQueueCmd(state))
	rootCmd.AddCommand(userCmd(state))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		state.close()
		os.Exit(1)
	}
}

func (s *cli) init() error {
	var err error
	s.cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	s.logger, err = logger.New(s.cfg)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	s.container, err = app.New(s.ctx, s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

func (s *cli) close() {
	if s.container != nil {
		s.container.Close()
		s.container = nil
	}
	if s.logger != nil {
		_ = s.logger.Sync()
	}
}
