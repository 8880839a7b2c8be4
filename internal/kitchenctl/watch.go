package kitchenctl

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jcmexdev/kitchen-orders/internal/alerting"
	"github.com/jcmexdev/kitchen-orders/internal/changefeed"
	"github.com/jcmexdev/kitchen-orders/internal/receipt"
)

type WatchOptions struct {
	*RootOptions
	NoSound bool
	NoPrint bool
	Paper   string
}

func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Alert and print when new orders arrive",
		Long: `Follow the restaurant's orders and alert on every order that becomes
"Novo Pedido", whether it was just placed or its payment was just
confirmed. Receipts go to PRINT_DIR when set, otherwise to stdout.

Example:
  kitchenctl watch -r r1
  kitchenctl watch -r r1 --paper 80mm --no-sound`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.NoSound, "no-sound", false, "do not ring the terminal bell")
	cmd.Flags().BoolVar(&opts.NoPrint, "no-print", false, "do not print receipts for new orders")
	cmd.Flags().StringVar(&opts.Paper, "paper", "", "receipt paper, 58mm or 80mm (default PAPER_WIDTH)")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := opts.open(ctx, cmd.ErrOrStderr())
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

	var printer alerting.PrintSink = &alerting.WriterPrinter{W: cmd.OutOrStdout()}
	if s.cfg.PrintDir != "" {
		printer = alerting.DirPrinter{Dir: s.cfg.PrintDir}
	}
	queue := alerting.NewPrintQueue(printer, alerting.ReceiptRenderer(receipt.Options{
		Paper: paper,
		ASCII: s.cfg.ReceiptASCII,
	}), s.logger, alerting.DefaultQueueSize)
	defer queue.Close()

	coordOpts := []alerting.Option{
		alerting.WithLogger(s.logger),
		alerting.WithNotifications(alerting.LogNotifier{Logger: s.logger}, nil),
		alerting.WithAutoPrint(queue),
	}
	if !opts.NoSound {
		coordOpts = append(coordOpts, alerting.WithSound(alerting.Bell{W: cmd.OutOrStdout()}))
	}
	coord := alerting.NewCoordinator(coordOpts...)
	// a terminal needs no user gesture before it may ring
	coord.Arm()
	coord.SetAutoPrint(s.cfg.AutoPrint && !opts.NoPrint)

	feed := changefeed.New(s.backend.Lister, s.backend.Notifier, changefeed.Config{
		Limit:        s.cfg.FeedLimit,
		PollInterval: s.cfg.FeedPollInterval,
		Timeout:      s.cfg.RequestTimeout,
	}, s.logger)

	return watch(ctx, coord, feed, opts.Restaurant, s)
}

func watch(ctx context.Context, coord *alerting.Coordinator, feed alerting.Subscriber, scope string, s *session) error {
	sub := coord.Watch(ctx, feed, scope)
	s.logger.InfoContext(ctx, "watching orders", "scope", scopeLabel(scope))

	<-ctx.Done()
	sub.Unsubscribe()
	s.logger.Info("watch stopped")
	return nil
}

func scopeLabel(scope string) string {
	if scope == "" {
		return "all restaurants"
	}
	return fmt.Sprintf("restaurant %s", scope)
}
