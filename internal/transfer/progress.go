package transfer

import (
	"time"

	"github.com/Conte777/TeleVault/internal/domain"
)

// progressTracker converts raw byte counts into throttled progress events.
// Emissions are bounded to one per interval, byte counts never decrease, and
// the terminal emission always fires.
type progressTracker struct {
	taskID   string
	filename string
	total    int64
	interval time.Duration

	started   time.Time
	lastEmit  time.Time
	lastBytes int64

	now  func() time.Time
	emit func(domain.ProgressEvent)
}

func newProgressTracker(taskID, filename string, total int64, interval time.Duration, emit func(domain.ProgressEvent)) *progressTracker {
	now := time.Now
	return &progressTracker{
		taskID:   taskID,
		filename: filename,
		total:    total,
		interval: interval,
		started:  now(),
		now:      now,
		emit:     emit,
	}
}

// Update reports the current byte count. Regressions are clamped to the last
// reported value.
func (p *progressTracker) Update(bytesDone int64) {
	if bytesDone < p.lastBytes {
		bytesDone = p.lastBytes
	}

	now := p.now()
	final := p.total > 0 && bytesDone >= p.total
	if !final && now.Sub(p.lastEmit) < p.interval {
		p.lastBytes = bytesDone
		return
	}
	if final && p.lastBytes >= p.total && p.lastEmit.After(p.started) {
		return // terminal event already emitted
	}

	p.lastEmit = now
	p.lastBytes = bytesDone
	p.emit(p.event(bytesDone, now))
}

// Flush emits the current state regardless of the interval
func (p *progressTracker) Flush() {
	p.lastEmit = p.now()
	p.emit(p.event(p.lastBytes, p.lastEmit))
}

func (p *progressTracker) event(bytesDone int64, now time.Time) domain.ProgressEvent {
	ev := domain.ProgressEvent{
		TaskID:     p.taskID,
		Filename:   p.filename,
		BytesDone:  bytesDone,
		BytesTotal: p.total,
	}
	if p.total > 0 {
		ev.ProgressPercent = float64(bytesDone) / float64(p.total) * 100
	}
	elapsed := now.Sub(p.started).Seconds()
	if elapsed > 0 && bytesDone > 0 {
		ev.SpeedBytesPerSec = float64(bytesDone) / elapsed
		if remaining := p.total - bytesDone; remaining > 0 {
			ev.ETASeconds = float64(remaining) / ev.SpeedBytesPerSec
		}
	}
	return ev
}
