// Package format renders transfer progress for human-facing collaborators:
// progress bars, humanized sizes, speeds and remaining-time estimates.
package format

import (
	"fmt"
	"math"
	"strings"
)

const (
	kib = 1024
	mib = 1024 * kib
	gib = 1024 * mib
)

// ProgressBar renders a fixed-width bar for a percentage in [0,100]
func ProgressBar(percent float64, width int) string {
	if width <= 0 {
		width = 20
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	filled := int(math.Ceil(percent / 100 * float64(width)))
	if filled > width {
		filled = width
	}

	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// Size humanizes a byte count
func Size(bytes int64) string {
	switch {
	case bytes >= gib:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(gib))
	case bytes >= mib:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(mib))
	case bytes >= kib:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(kib))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// Speed humanizes a transfer rate in bytes per second
func Speed(bytesPerSec float64) string {
	switch {
	case bytesPerSec >= gib:
		return fmt.Sprintf("%.2f GB/s", bytesPerSec/gib)
	case bytesPerSec >= mib:
		return fmt.Sprintf("%.2f MB/s", bytesPerSec/mib)
	case bytesPerSec >= kib:
		return fmt.Sprintf("%.2f KB/s", bytesPerSec/kib)
	default:
		return fmt.Sprintf("%.0f B/s", bytesPerSec)
	}
}

// Duration renders remaining seconds as s, m:ss or h:mm:ss
func Duration(seconds float64) string {
	if seconds < 0 || math.IsInf(seconds, 0) || math.IsNaN(seconds) {
		return "--"
	}
	total := int64(seconds + 0.5)
	switch {
	case total < 60:
		return fmt.Sprintf("%ds", total)
	case total < 3600:
		return fmt.Sprintf("%d:%02d", total/60, total%60)
	default:
		return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
	}
}
