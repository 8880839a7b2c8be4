package kitchenctl

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jcmexdev/kitchen-orders/internal/board"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/ports"
)

type BoardOptions struct {
	*RootOptions
	Terminal bool
}

func NewBoardCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BoardOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "board",
		Short:         "Show orders grouped by status",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			orders, err := s.backend.Lister.Query(cmd.Context(), ports.Filter{RestaurantID: opts.Restaurant, Limit: s.cfg.FeedLimit})
			if err != nil {
				return fmt.Errorf("query orders: %w", err)
			}
			cols := board.Build(orders, board.Options{IncludeTerminal: opts.Terminal})
			return writeBoard(cmd.OutOrStdout(), opts.Format, cols)
		},
	}

	cmd.Flags().BoolVar(&opts.Terminal, "terminal", false, "include delivered and cancelled orders")
	return cmd
}

func writeBoard(w io.Writer, format string, cols []board.Column) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cols)
	}

	for _, c := range cols {
		if _, err := fmt.Fprintf(w, "%s (%d) %s\n", c.Status, len(c.Orders), c.Total); err != nil {
			return err
		}
		for _, o := range c.Orders {
			_, err := fmt.Fprintf(w, "  #%s  %s  %s  %s\n",
				o.ShortID(), o.CreatedAt.Format("15:04"), o.CustomerName, o.TotalPrice)
			if err != nil {
				return err
			}
		}
	}
	return nil
}
