package transfer

import (
	"testing"
	"time"

	"github.com/Conte777/TeleVault/internal/domain"
)

func newTestTracker(total int64, interval time.Duration) (*progressTracker, *[]domain.ProgressEvent, *time.Time) {
	var events []domain.ProgressEvent
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	p := newProgressTracker("task-1", "file.bin", total, interval, func(ev domain.ProgressEvent) {
		events = append(events, ev)
	})
	p.now = func() time.Time { return now }
	p.started = now
	return p, &events, &now
}

func TestTrackerThrottlesEmissions(t *testing.T) {
	p, events, now := newTestTracker(10000, time.Second)

	// Rapid updates inside one interval collapse to at most one emission
	for i := int64(1); i <= 5; i++ {
		p.Update(i * 100)
	}
	if len(*events) > 1 {
		t.Fatalf("expected at most 1 event inside the interval, got %d", len(*events))
	}

	*now = now.Add(1100 * time.Millisecond)
	p.Update(600)
	if len(*events) != 2 {
		t.Fatalf("expected emission after interval elapsed, got %d events", len(*events))
	}
}

func TestTrackerNeverRegresses(t *testing.T) {
	p, events, now := newTestTracker(1000, time.Millisecond)

	p.Update(500)
	*now = now.Add(10 * time.Millisecond)
	p.Update(300) // stale report
	*now = now.Add(10 * time.Millisecond)
	p.Update(700)

	var prev int64 = -1
	for _, ev := range *events {
		if ev.BytesDone < prev {
			t.Errorf("regressed: %d after %d", ev.BytesDone, prev)
		}
		prev = ev.BytesDone
	}
}

func TestTrackerTerminalEventAlwaysFires(t *testing.T) {
	p, events, now := newTestTracker(1000, time.Hour)

	p.Update(400) // inside interval, suppressed after the first emission
	*now = now.Add(time.Millisecond)
	p.Update(1000) // terminal, must fire despite the interval

	last := (*events)[len(*events)-1]
	if last.BytesDone != 1000 || last.ProgressPercent != 100 {
		t.Errorf("terminal event missing or wrong: %+v", last)
	}

	// Repeated terminal updates do not duplicate the event
	count := len(*events)
	p.Update(1000)
	if len(*events) != count {
		t.Error("terminal event emitted twice")
	}
}

func TestTrackerSpeedAndETA(t *testing.T) {
	p, events, now := newTestTracker(2000, time.Millisecond)

	*now = now.Add(2 * time.Second)
	p.Update(1000)

	ev := (*events)[len(*events)-1]
	if ev.SpeedBytesPerSec != 500 {
		t.Errorf("expected 500 B/s, got %f", ev.SpeedBytesPerSec)
	}
	if ev.ETASeconds != 2 {
		t.Errorf("expected 2s ETA, got %f", ev.ETASeconds)
	}
}
