package kitchenctl

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jcmexdev/kitchen-orders/internal/order-service/app"
)

type AccountsOptions struct {
	*RootOptions
	Settle string
}

func NewAccountsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AccountsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List or settle customers' open account orders",
		Long: `List the orders placed on customers' accounts that are still unpaid,
largest debt first, or settle every open order of one customer.

Example:
  kitchenctl accounts -r r1
  kitchenctl accounts -r r1 --settle 11999990000`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Restaurant == "" {
				return errors.New("accounts need --restaurant")
			}
			ctx := cmd.Context()
			s, err := opts.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			ledger := app.NewLedger(s.backend.Store, s.engine())
			out := cmd.OutOrStdout()

			if opts.Settle != "" {
				n, amount, err := ledger.Settle(ctx, opts.Restaurant, opts.Settle)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "settled %d orders, %s\n", n, amount)
				return err
			}

			accounts, err := ledger.Accounts(ctx, opts.Restaurant)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return json.NewEncoder(out).Encode(accounts)
			}
			for _, a := range accounts {
				if _, err := fmt.Fprintf(out, "%s (%s): %d orders, %s\n", a.CustomerName, a.CustomerPhone, len(a.Orders), a.Outstanding); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Settle, "settle", "", "mark every open order of this phone as paid")
	return cmd
}
