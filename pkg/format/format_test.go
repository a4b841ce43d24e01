package format

import (
	"strings"
	"testing"
)

func TestProgressBar(t *testing.T) {
	bar := ProgressBar(50, 20)
	if len([]rune(bar)) != 20 {
		t.Errorf("Expected bar width 20, got %d", len([]rune(bar)))
	}
	if strings.Count(bar, "█") != 10 {
		t.Errorf("Expected 10 filled cells at 50%%, got %d", strings.Count(bar, "█"))
	}

	full := ProgressBar(100, 10)
	if strings.Contains(full, "░") {
		t.Error("Expected no empty cells at 100%")
	}

	empty := ProgressBar(0, 10)
	if strings.Contains(empty, "█") {
		t.Error("Expected no filled cells at 0%")
	}
}

func TestProgressBar_ClampsOutOfRange(t *testing.T) {
	if got := ProgressBar(150, 10); strings.Count(got, "█") != 10 {
		t.Errorf("Expected full bar above 100%%, got %q", got)
	}
	if got := ProgressBar(-5, 10); strings.Count(got, "░") != 10 {
		t.Errorf("Expected empty bar below 0%%, got %q", got)
	}
}

func TestSize(t *testing.T) {
	if got := Size(512); got != "512 B" {
		t.Errorf("Expected 512 B, got %q", got)
	}
	if got := Size(2 * 1024 * 1024); got != "2.00 MB" {
		t.Errorf("Expected 2.00 MB, got %q", got)
	}
	if got := Size(3 * 1024 * 1024 * 1024); got != "3.00 GB" {
		t.Errorf("Expected 3.00 GB, got %q", got)
	}
}

func TestSpeed(t *testing.T) {
	if got := Speed(100); got != "100 B/s" {
		t.Errorf("Expected 100 B/s, got %q", got)
	}
	if got := Speed(5 * 1024 * 1024); got != "5.00 MB/s" {
		t.Errorf("Expected 5.00 MB/s, got %q", got)
	}
}

func TestDuration(t *testing.T) {
	if got := Duration(42); got != "42s" {
		t.Errorf("Expected 42s, got %q", got)
	}
	if got := Duration(90); got != "1:30" {
		t.Errorf("Expected 1:30, got %q", got)
	}
	if got := Duration(3725); got != "1:02:05" {
		t.Errorf("Expected 1:02:05, got %q", got)
	}
	if got := Duration(-1); got != "--" {
		t.Errorf("Expected -- for negative, got %q", got)
	}
}
