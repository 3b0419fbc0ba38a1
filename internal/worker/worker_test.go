package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/paysentry/internal/bus"
	"github.com/opensource-finance/paysentry/internal/domain"
)

type stubSource struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *stubSource) Suggestions(ctx context.Context, userID string, current domain.ScanRecord) ([]domain.Suggestion, error) {
	s.mu.Lock()
	s.calls = append(s.calls, userID+"/"+current.ID)
	s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	return []domain.Suggestion{{
		ID:       "favorite:" + current.Identifier,
		Kind:     domain.SuggestFavorite,
		Priority: 8,
	}}, nil
}

func publishScan(t *testing.T, b domain.EventBus, userID, scanID string) {
	t.Helper()
	payload, err := json.Marshal(domain.ScanEvent{
		UserID: userID,
		Scan:   domain.ScanRecord{ID: scanID, Identifier: "grocer@okaxis", Status: domain.ScanSafe},
	})
	if err != nil {
		t.Fatalf("failed to encode event: %v", err)
	}
	if err := b.Publish(context.Background(), userID, domain.TopicScanRecorded, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
}

func TestWorker(t *testing.T) {
	t.Run("StartAndStop", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		worker := NewWorker(eventBus, &stubSource{})
		if err := worker.Start(Config{UserIDs: []string{"user-001", "user-002"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := worker.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions, got %d", stats.SubscriptionCount)
		}
		for _, topic := range stats.Topics {
			if topic != domain.TopicScanRecorded {
				t.Errorf("unexpected topic %s", topic)
			}
		}

		if err := worker.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if worker.GetStats().SubscriptionCount != 0 {
			t.Error("expected 0 subscriptions after stop")
		}
	})

	t.Run("PublishesSuggestionsForEveryUser", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		source := &stubSource{}
		worker := NewWorker(eventBus, source)
		if err := worker.Start(Config{}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer worker.Stop()

		received := make(chan domain.SuggestionsEvent, 1)
		eventBus.Subscribe(context.Background(), "user-042", domain.TopicSuggestionsGenerated, func(ctx context.Context, msg *domain.Message) error {
			var event domain.SuggestionsEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				return err
			}
			received <- event
			return nil
		})

		time.Sleep(10 * time.Millisecond)
		publishScan(t, eventBus, "user-042", "scan-1")

		select {
		case event := <-received:
			if event.ScanID != "scan-1" {
				t.Errorf("expected scan-1, got %s", event.ScanID)
			}
			if len(event.Suggestions) != 1 || event.Suggestions[0].ID != "favorite:grocer@okaxis" {
				t.Errorf("unexpected suggestions: %+v", event.Suggestions)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for suggestions event")
		}

		deadline := time.Now().Add(time.Second)
		for worker.GetStats().Processed < 1 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		if got := worker.GetStats().Processed; got != 1 {
			t.Errorf("expected 1 processed, got %d", got)
		}
	})

	t.Run("CountsFailures", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		worker := NewWorker(eventBus, &stubSource{err: errors.New("repository down")})
		if err := worker.Start(Config{UserIDs: []string{"user-001"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer worker.Stop()

		time.Sleep(10 * time.Millisecond)
		publishScan(t, eventBus, "user-001", "scan-1")
		eventBus.Publish(context.Background(), "user-001", domain.TopicScanRecorded, []byte("not json"))

		deadline := time.Now().Add(time.Second)
		for worker.GetStats().Failed < 2 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		if got := worker.GetStats().Failed; got != 2 {
			t.Errorf("expected 2 failures, got %d", got)
		}
		if got := worker.GetStats().Processed; got != 0 {
			t.Errorf("expected 0 processed, got %d", got)
		}
	})
}
