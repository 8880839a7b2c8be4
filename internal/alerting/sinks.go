// Package alerting turns change feed snapshots into staff alerts: a sound, a
// desktop notification and automatic receipt printing for new orders.
package alerting

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
	"github.com/jcmexdev/kitchen-orders/internal/receipt"
)

type SoundSink interface {
	Play(ctx context.Context) error
}

// Notification is a desktop notification. Tag lets the host replace an earlier
// notification for the same order instead of stacking a new one.
type Notification struct {
	Title string
	Body  string
	Tag   string
}

type NotificationSink interface {
	Notify(ctx context.Context, n Notification) error
}

// Document is a rendered receipt ready for the printer.
type Document struct {
	OrderID string
	Text    string
	Paper   receipt.Paper
}

type PrintSink interface {
	Print(ctx context.Context, doc Document) error
}

// Capabilities is what the host environment currently allows.
type Capabilities struct {
	NotificationsEnabled bool
	HasPermission        bool
}

func (c Capabilities) CanNotify() bool {
	return c.NotificationsEnabled && c.HasPermission
}

type CapabilityProvider interface {
	Capabilities() Capabilities
}

// CapabilitiesFunc adapts a function to CapabilityProvider.
type CapabilitiesFunc func() Capabilities

func (f CapabilitiesFunc) Capabilities() Capabilities { return f() }

// StaticCapabilities always reports c.
func StaticCapabilities(c Capabilities) CapabilityProvider {
	return CapabilitiesFunc(func() Capabilities { return c })
}

func newOrderNotification(o domain.Order, count int) Notification {
	title := "Novo pedido!"
	if count > 1 {
		title = fmt.Sprintf("%d novos pedidos!", count)
	}
	return Notification{
		Title: title,
		Body:  fmt.Sprintf("Pedido #%s - %s", o.ShortID(), o.TotalPrice),
		Tag:   o.ID,
	}
}

// Bell rings the terminal bell.
type Bell struct {
	W io.Writer
}

func (b Bell) Play(context.Context) error {
	_, err := io.WriteString(b.W, "\a")
	return err
}

// LogNotifier shows notifications as log records, for headless hosts.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, note Notification) error {
	n.Logger.InfoContext(ctx, note.Title, "body", note.Body, "order_id", note.Tag)
	return nil
}

// WriterPrinter writes receipts to W, one after another.
type WriterPrinter struct {
	mu sync.Mutex
	W  io.Writer
}

func (p *WriterPrinter) Print(_ context.Context, doc Document) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := io.WriteString(p.W, doc.Text+"\n")
	return err
}

// DirPrinter drops each receipt as a text file into Dir, where a spooler can
// pick it up.
type DirPrinter struct {
	Dir string
	Now func() time.Time
}

func (p DirPrinter) Print(_ context.Context, doc Document) error {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	name := fmt.Sprintf("%s-%s-%s.txt", now().UTC().Format("20060102T150405"), doc.OrderID, doc.Paper.Name)
	if err := os.WriteFile(filepath.Join(p.Dir, name), []byte(doc.Text), 0o644); err != nil {
		return fmt.Errorf("print %s: %w", doc.OrderID, err)
	}
	return nil
}
