package alerting

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
	"github.com/jcmexdev/kitchen-orders/internal/receipt"
)

const (
	DefaultQueueSize    = 64
	DefaultPrintTimeout = 30 * time.Second
)

// Renderer turns an order into a printable document.
type Renderer func(o domain.Order) Document

// ReceiptRenderer renders with the receipt package.
func ReceiptRenderer(opts receipt.Options) Renderer {
	return func(o domain.Order) Document {
		paper := opts.Paper
		if paper.Columns <= 0 {
			paper = receipt.Paper58mm
		}
		return Document{
			OrderID: o.ID,
			Text:    receipt.Render(o, opts),
			Paper:   paper,
		}
	}
}

// PrintTarget holds the document currently being printed. It is filled right
// before the sink runs and emptied right after, so a host that prints "what
// is on screen" always sees exactly one receipt.
type PrintTarget struct {
	mu  sync.RWMutex
	doc *Document
}

func (t *PrintTarget) load(doc Document) {
	t.mu.Lock()
	t.doc = &doc
	t.mu.Unlock()
}

func (t *PrintTarget) clear() {
	t.mu.Lock()
	t.doc = nil
	t.mu.Unlock()
}

// Current returns the loaded document, if any.
func (t *PrintTarget) Current() (Document, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.doc == nil {
		return Document{}, false
	}
	return *t.doc, true
}

// PrintQueue prints orders one at a time in the order they were enqueued.
type PrintQueue struct {
	sink    PrintSink
	render  Renderer
	target  *PrintTarget
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	jobs   chan domain.Order
	done   chan struct{}
}

// NewPrintQueue starts the worker. Call Close to drain and stop it.
func NewPrintQueue(sink PrintSink, render Renderer, logger *slog.Logger, size int) *PrintQueue {
	if logger == nil {
		logger = slog.Default()
	}
	if size <= 0 {
		size = DefaultQueueSize
	}
	q := &PrintQueue{
		sink:    sink,
		render:  render,
		target:  &PrintTarget{},
		logger:  logger.With("component", "print-queue"),
		timeout: DefaultPrintTimeout,
		jobs:    make(chan domain.Order, size),
		done:    make(chan struct{}),
	}
	go q.work()
	return q
}

func (q *PrintQueue) Target() *PrintTarget { return q.target }

// Enqueue adds a job without blocking. It reports false when the queue is
// full or closed; the job is dropped and logged.
func (q *PrintQueue) Enqueue(o domain.Order) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("print queue closed, dropping job", "order_id", o.ID)
		return false
	}
	select {
	case q.jobs <- o:
		return true
	default:
		q.logger.Warn("print queue full, dropping job", "order_id", o.ID)
		return false
	}
}

// Close stops accepting jobs and waits for the pending ones to print.
func (q *PrintQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	<-q.done
}

func (q *PrintQueue) work() {
	defer close(q.done)
	for o := range q.jobs {
		q.print(o)
	}
}

func (q *PrintQueue) print(o domain.Order) {
	doc := q.render(o)
	q.target.load(doc)
	defer q.target.clear()

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	loaded, _ := q.target.Current()
	if err := q.sink.Print(ctx, loaded); err != nil {
		q.logger.Error("print failed", "order_id", o.ID, "error", err)
		return
	}
	q.logger.Info("receipt printed", "order_id", o.ID, "paper", doc.Paper.Name)
}
