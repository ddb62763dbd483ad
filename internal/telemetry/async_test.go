package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"maeul-board/backend/internal/telemetry/domain"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []*domain.Event
	err    error
}

func (r *recordingEmitter) Emit(ctx context.Context, event *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingEmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestEmitAsync(t *testing.T) {
	rec := &recordingEmitter{}
	EmitAsync(rec, context.Background(), &domain.Event{EventType: domain.EventLogin})

	deadline := time.Now().Add(2 * time.Second)
	for rec.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("emit never happened")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEmitAsyncNilArgs(t *testing.T) {
	// Must not panic or spin up goroutines.
	EmitAsync(nil, context.Background(), &domain.Event{EventType: domain.EventLogin})
	EmitAsync(&recordingEmitter{}, context.Background(), nil)
}

func TestMultiFansOutPastFailures(t *testing.T) {
	failing := &recordingEmitter{err: errors.New("broker down")}
	ok := &recordingEmitter{}
	m := Multi{failing, nil, ok}

	err := m.Emit(context.Background(), &domain.Event{EventType: domain.EventSignup})
	if err == nil {
		t.Fatal("expected first emitter's error")
	}
	if ok.count() != 1 {
		t.Fatalf("second emitter got %d events, want 1", ok.count())
	}
}
