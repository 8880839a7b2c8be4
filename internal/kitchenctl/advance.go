package kitchenctl

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
)

// statusAliases lets the shell use short ascii names for the statuses.
var statusAliases = map[string]domain.Status{
	"new":        domain.StatusNew,
	"preparing":  domain.StatusPreparing,
	"on-the-way": domain.StatusOnTheWay,
	"delivered":  domain.StatusDelivered,
	"cancelled":  domain.StatusCancelled,
	"cancel":     domain.StatusCancelled,
}

func parseStatus(s string) (domain.Status, error) {
	if st, ok := statusAliases[strings.ToLower(s)]; ok {
		return st, nil
	}
	if st := domain.Status(s); st.Valid() {
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

func NewAdvanceCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "advance <order-id> [status]",
		Short: "Move an order to its next status",
		Long: `Move an order along its lifecycle. Without a status the order moves
to its next regular step; cancelling always has to be asked for.

Example:
  kitchenctl advance 3f2a9c1e-77aa-4f0e-9b7e-2d4c1a0b9e11
  kitchenctl advance 3f2a9c1e-77aa-4f0e-9b7e-2d4c1a0b9e11 cancel`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := opts.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			engine := s.engine()

			actor := opts.actor()
			current, err := engine.Order(ctx, args[0], actor)
			if err != nil {
				return err
			}

			var target domain.Status
			if len(args) == 2 {
				if target, err = parseStatus(args[1]); err != nil {
					return err
				}
			} else if target, err = nextStep(current.Status); err != nil {
				return err
			}

			updated, err := engine.ApplyStatusTransition(ctx, current.ID, target, actor)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return json.NewEncoder(out).Encode(map[string]string{
					"id": updated.ID, "from": string(current.Status), "to": string(updated.Status),
				})
			}
			_, err = fmt.Fprintf(out, "#%s: %s -> %s\n", updated.ShortID(), current.Status, updated.Status)
			return err
		},
	}
	return cmd
}

// nextStep is the first non-cancelling edge out of st.
func nextStep(st domain.Status) (domain.Status, error) {
	for _, next := range st.Next() {
		if next != domain.StatusCancelled {
			return next, nil
		}
	}
	return "", &domain.InvalidTransitionError{From: st, To: st}
}
