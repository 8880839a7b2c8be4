// Package kitchenctl is the kitchen terminal: it watches incoming orders,
// rings and prints for new ones, and moves orders along from the shell.
package kitchenctl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/jcmexdev/kitchen-orders/internal/order-service/app"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/backend"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
	"github.com/jcmexdev/kitchen-orders/internal/pkg/config"
	"github.com/jcmexdev/kitchen-orders/internal/pkg/telemetry"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFiles   []string
	Restaurant string
	Format     string // "text" | "json"
	Verbose    bool
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "kitchenctl",
		Short: "Kitchen terminal for the order service",
		Long: `kitchenctl talks to the same store as the order service.

It watches a restaurant's orders and alerts on new ones, shows the
kitchen board, and moves orders through their lifecycle.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env-file", nil, "env files to load before the environment (default .env)")
	cmd.PersistentFlags().StringVarP(&opts.Restaurant, "restaurant", "r", "", "restaurant id; empty means every restaurant (admin)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewBoardCommand(opts))
	cmd.AddCommand(NewAdvanceCommand(opts))
	cmd.AddCommand(NewReceiptCommand(opts))
	cmd.AddCommand(NewAccountsCommand(opts))

	return cmd
}

// actor is who the terminal acts as: staff of --restaurant, or admin.
func (o *RootOptions) actor() domain.Actor {
	if o.Restaurant == "" {
		return domain.Actor{ID: "kitchenctl", Role: domain.RoleAdmin}
	}
	return domain.Actor{ID: "kitchenctl", Role: domain.RoleStaff, RestaurantID: o.Restaurant}
}

// session is what every command needs: configuration, a logger and the backend.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	backend *backend.Backend
}

func (o *RootOptions) open(ctx context.Context, logOut io.Writer) (*session, error) {
	cfg, err := config.Load(o.EnvFiles...)
	if err != nil {
		return nil, err
	}
	level := cfg.SlogLevel()
	if o.Verbose {
		level = slog.LevelDebug
	}
	logger := telemetry.InitLogger(logOut, level, "kitchenctl")

	be, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, backend: be}, nil
}

func (s *session) engine() *app.Engine {
	return app.NewEngine(s.backend.Store, s.backend.EngineOptions(s.cfg, s.logger)...)
}

func (s *session) Close() {
	if err := s.backend.Close(); err != nil {
		s.logger.Error("closing backend", "error", err)
	}
}
