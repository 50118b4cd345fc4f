package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"giftwatch/internal/enrich"
	"giftwatch/internal/filter"
	"giftwatch/pkg/types"
)

// Sink receives every dispatched listing with its enrichment, whether or
// not any user matched it. The API hub implements this.
type Sink interface {
	Publish(l types.Listing, price decimal.Decimal, enr types.Enrichment)
}

// Config bundles the dispatcher's tuning knobs.
type Config struct {
	QueueSize   int   // pending listings before Enqueue starts dropping
	Concurrency int64 // parallel Telegram sends per listing
}

// Dispatcher is the pipeline tail. Pollers enqueue new listings; the run
// loop enriches each one, resolves recipients, renders the message once,
// and fans the sends out under a concurrency cap. A slow Telegram API
// backs up the queue instead of the pollers.
type Dispatcher struct {
	enricher *enrich.Enricher
	matcher  *filter.Matcher
	sender   Sender
	sink     Sink // may be nil
	queue    chan types.Listing
	sem      *semaphore.Weighted
	logger   *slog.Logger
}

// NewDispatcher wires the pipeline tail together. sink may be nil when
// the API server is disabled.
func NewDispatcher(enricher *enrich.Enricher, matcher *filter.Matcher, sender Sender, sink Sink, cfg Config, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		enricher: enricher,
		matcher:  matcher,
		sender:   sender,
		sink:     sink,
		queue:    make(chan types.Listing, cfg.QueueSize),
		sem:      semaphore.NewWeighted(cfg.Concurrency),
		logger:   logger.With("component", "dispatch"),
	}
}

// Enqueue hands a listing to the run loop without blocking the caller.
// Returns false when the queue is full and the listing was dropped.
func (d *Dispatcher) Enqueue(l types.Listing) bool {
	select {
	case d.queue <- l:
		return true
	default:
		d.logger.Warn("queue full, dropping listing", "listing", l.CompositeID())
		return false
	}
}

// Run processes the queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("dispatcher started", "queue_size", cap(d.queue))
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return
		case l := <-d.queue:
			d.process(ctx, l)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, l types.Listing) {
	recipients := d.matcher.Recipients(ctx, l)
	if len(recipients) == 0 && d.sink == nil {
		return
	}

	enr := d.enricher.Enrich(ctx, l)
	price := d.enricher.AdjustedPrice(l)

	if d.sink != nil {
		d.sink.Publish(l, price, enr)
	}
	if len(recipients) == 0 {
		return
	}

	msg := Build(l, price, enr, time.Now())
	d.logger.Info("dispatching listing",
		"listing", l.CompositeID(),
		"price", price,
		"recipients", len(recipients))

	var wg sync.WaitGroup
	for _, chatID := range recipients {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(chatID int64) {
			defer wg.Done()
			defer d.sem.Release(1)
			if err := d.sender.Send(ctx, chatID, msg); err != nil {
				d.logger.Error("send failed",
					"chat_id", chatID,
					"listing", l.CompositeID(),
					"error", err)
			}
		}(chatID)
	}
	wg.Wait()
}
