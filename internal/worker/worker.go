// Package worker provides async ingest processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/pipeline"
)

// Worker consumes ingest envelopes from the event bus and runs them through
// the matching pipeline. Concurrency is bounded by a semaphore; each
// envelope gets its own timeout so a slow batch cannot wedge the consumer.
type Worker struct {
	bus      domain.EventBus
	pipeline *pipeline.Pipeline
	logger   *slog.Logger

	sem     *semaphore.Weighted
	timeout time.Duration

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// MaxConcurrent bounds in-flight envelope processing.
	MaxConcurrent int

	// EnvelopeTimeout bounds one envelope end to end.
	EnvelopeTimeout time.Duration
}

// NewWorker creates a new async ingest worker.
func NewWorker(bus domain.EventBus, p *pipeline.Pipeline, cfg Config, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if cfg.EnvelopeTimeout <= 0 {
		cfg.EnvelopeTimeout = 60 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		pipeline: p,
		logger:   logger,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		timeout:  cfg.EnvelopeTimeout,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the ingest envelope topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicIngestEnvelope, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	w.logger.Info("ingest worker started", "topic", domain.TopicIngestEnvelope)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	if err := w.sem.Acquire(w.ctx, 1); err != nil {
		return err
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.sem.Release(1)
		w.processEnvelope(msg)
	}()
	return nil
}

// processEnvelope runs one envelope through the pipeline and publishes the
// outcome. A timed-out envelope simply fails; already-committed case
// creations persist.
func (w *Worker) processEnvelope(msg *domain.Message) {
	start := time.Now()

	var env domain.IngestEnvelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		w.logger.Error("failed to parse ingest envelope",
			"message_id", msg.ID,
			"error", err,
		)
		return
	}

	ctx, cancel := context.WithTimeout(w.ctx, w.timeout)
	defer cancel()

	result, err := w.pipeline.ProcessIngest(ctx, env)
	if err != nil {
		w.logger.Error("ingest envelope failed",
			"ack_no", env.AckNo,
			"bank_code", env.BankCode,
			"error", err,
		)
		return
	}

	payload, _ := json.Marshal(result)
	if err := w.bus.Publish(ctx, domain.TopicIngestResult, payload); err != nil {
		w.logger.Error("failed to publish ingest result",
			"ack_no", env.AckNo,
			"error", err,
		)
	}

	w.logger.Info("ingest envelope processed",
		"ack_no", env.AckNo,
		"incidents", len(result.Incidents),
		"cases", len(result.Cases),
		"no_matching_account", result.NoMatchingAccount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	w.logger.Info("ingest worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
