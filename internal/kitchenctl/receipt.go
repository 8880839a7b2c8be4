package kitchenctl

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jcmexdev/kitchen-orders/internal/receipt"
)

type ReceiptOptions struct {
	*RootOptions
	Paper    string
	ASCII    bool
	Timezone string
}

func NewReceiptCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReceiptOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "receipt <order-id>",
		Short:         "Render an order's kitchen receipt",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			paperName := opts.Paper
			if paperName == "" {
				paperName = s.cfg.PaperWidth
			}
			paper, err := receipt.PaperByName(paperName)
			if err != nil {
				return err
			}
			loc, err := time.LoadLocation(opts.Timezone)
			if err != nil {
				return fmt.Errorf("timezone %q: %w", opts.Timezone, err)
			}

			o, err := s.engine().Order(cmd.Context(), args[0], opts.actor())
			if err != nil {
				return err
			}

			_, err = fmt.Fprint(cmd.OutOrStdout(), receipt.Render(*o, receipt.Options{
				Paper:    paper,
				ASCII:    opts.ASCII || s.cfg.ReceiptASCII,
				Location: loc,
			}))
			return err
		},
	}

	cmd.Flags().StringVar(&opts.Paper, "paper", "", "58mm or 80mm (default PAPER_WIDTH)")
	cmd.Flags().BoolVar(&opts.ASCII, "ascii", false, "strip accents for printers without UTF-8")
	cmd.Flags().StringVar(&opts.Timezone, "tz", "America/Sao_Paulo", "timezone of the printed order time")
	return cmd
}
