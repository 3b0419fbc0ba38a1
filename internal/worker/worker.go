// Package worker provides async suggestion generation for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/paysentry/internal/domain"
)

// SuggestionSource produces suggestions for a persisted scan.
type SuggestionSource interface {
	Suggestions(ctx context.Context, userID string, current domain.ScanRecord) ([]domain.Suggestion, error)
}

// Worker regenerates suggestions for scans recorded on the EventBus.
type Worker struct {
	bus    domain.EventBus
	source SuggestionSource

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// UserIDs limits the worker to these users; empty subscribes to every user.
	UserIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, source SuggestionSource) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		source: source,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to scan.recorded for the configured users.
func (w *Worker) Start(cfg Config) error {
	scopes := cfg.UserIDs
	if len(scopes) == 0 {
		scopes = []string{domain.AllScopes}
	}

	for _, scope := range scopes {
		sub, err := w.bus.Subscribe(w.ctx, scope, domain.TopicScanRecorded, w.handleMessage)
		if err != nil {
			slog.Error("failed to start worker",
				"scope", scope,
				"error", err,
			)
			continue
		}

		w.mu.Lock()
		w.subscriptions = append(w.subscriptions, sub)
		w.mu.Unlock()
	}

	if len(w.GetStats().Topics) == 0 {
		return fmt.Errorf("worker has no active subscriptions")
	}

	slog.Info("workers started",
		"scope_count", len(scopes),
		"topic", domain.TopicScanRecorded,
	)
	return nil
}

// handleMessage regenerates and publishes suggestions for one recorded scan.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var event domain.ScanEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		w.failed.Add(1)
		slog.Error("failed to parse scan event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	userID := event.UserID
	if userID == "" {
		userID = msg.Scope
	}

	suggestions, err := w.source.Suggestions(ctx, userID, event.Scan)
	if err != nil {
		w.failed.Add(1)
		slog.Error("suggestion generation failed",
			"scan_id", event.Scan.ID,
			"user_id", userID,
			"error", err,
		)
		return err
	}

	payload, err := json.Marshal(domain.SuggestionsEvent{
		UserID:      userID,
		ScanID:      event.Scan.ID,
		Suggestions: suggestions,
	})
	if err != nil {
		w.failed.Add(1)
		return err
	}

	if err := w.bus.Publish(ctx, userID, domain.TopicSuggestionsGenerated, payload); err != nil {
		w.failed.Add(1)
		slog.Error("failed to publish suggestions",
			"scan_id", event.Scan.ID,
			"error", err,
		)
		return err
	}

	w.processed.Add(1)
	slog.Debug("suggestions generated",
		"scan_id", event.Scan.ID,
		"user_id", userID,
		"count", len(suggestions),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
	}
}
