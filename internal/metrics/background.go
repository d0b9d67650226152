package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/LavishGent/backpressure/internal/types"
)

// BackgroundPublisher sends health metrics at a fixed interval until its
// context ends or Stop is called.
type BackgroundPublisher struct {
	publisher types.Publisher
	logger    *slog.Logger
	getHealth func() *types.HealthMetrics
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	interval  time.Duration
}

// NewBackgroundPublisher calls healthFn on every tick.
func NewBackgroundPublisher(
	publisher types.Publisher,
	interval time.Duration,
	healthFn func() *types.HealthMetrics,
	logger *slog.Logger,
) *BackgroundPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}

	return &BackgroundPublisher{
		publisher: publisher,
		interval:  interval,
		logger:    logger.With("component", "metrics-background"),
		getHealth: healthFn,
	}
}

// NewTrackerPublisher publishes tracker's health.
func NewTrackerPublisher(tracker *Tracker, publisher types.Publisher, interval time.Duration, logger *slog.Logger) *BackgroundPublisher {
	return NewBackgroundPublisher(publisher, interval, tracker.Health, logger)
}

func (b *BackgroundPublisher) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go b.run(ctx)
	b.logger.Debug("background metrics publisher started", "interval", b.interval)
}

// Stop ends the loop after one final publish.
func (b *BackgroundPublisher) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
}

func (b *BackgroundPublisher) run(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.publish()
			return
		case <-ticker.C:
			b.publish()
		}
	}
}

func (b *BackgroundPublisher) publish() {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("recovered from panic in metrics publisher", "panic", r)
		}
	}()

	if b.getHealth == nil {
		return
	}
	if m := b.getHealth(); m != nil {
		b.publisher.PublishHealthMetrics(m)
	}
}

// PublishNow publishes immediately on the calling goroutine.
func (b *BackgroundPublisher) PublishNow() {
	b.publish()
}
