package progress

import (
	"context"
	"fmt"
	"time"
)

// Tracker estimates completion of a phase whose size is known in some unit
// (bytes for the PBF scan, features for resolution)
type Tracker struct {
	total     int64
	startTime time.Time
	phase     string
}

// NewTracker starts tracking a phase of the given total size
func NewTracker(total int64, phase string) *Tracker {
	return &Tracker{
		total:     total,
		startTime: time.Now(),
		phase:     phase,
	}
}

// Snapshot is a point-in-time view of a phase
type Snapshot struct {
	Phase      string
	Items      int64
	Done       int64
	Total      int64
	Percentage float64
	Elapsed    time.Duration
	ETA        time.Duration
	Throughput float64 // items per second
}

// Snapshot computes progress from the item count and the amount of the
// total already consumed
func (t *Tracker) Snapshot(items, done int64) Snapshot {
	elapsed := time.Since(t.startTime)

	s := Snapshot{
		Phase:   t.phase,
		Items:   items,
		Done:    done,
		Total:   t.total,
		Elapsed: elapsed.Round(time.Second),
	}

	if t.total > 0 && done > 0 {
		s.Percentage = float64(done) / float64(t.total) * 100
		if s.Percentage < 100 && elapsed > 0 {
			rate := float64(done) / elapsed.Seconds()
			if rate > 0 {
				s.ETA = (time.Duration(float64(t.total-done)/rate) * time.Second).Round(time.Second)
			}
		}
	}

	if elapsed.Seconds() > 0 {
		s.Throughput = float64(items) / elapsed.Seconds()
	}

	return s
}

// Every calls fn on each tick until ctx is done
func Every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// FormatETA formats the ETA duration in a human-readable format
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "calculating..."
	}

	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// FormatThroughput formats items per second
func FormatThroughput(itemsPerSec float64) string {
	switch {
	case itemsPerSec >= 1_000_000:
		return fmt.Sprintf("%.1fM/s", itemsPerSec/1_000_000)
	case itemsPerSec >= 1_000:
		return fmt.Sprintf("%.1fK/s", itemsPerSec/1_000)
	default:
		return fmt.Sprintf("%.0f/s", itemsPerSec)
	}
}

// FormatBytes formats a byte count with binary units
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatPercent formats a percentage with one decimal
func FormatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}
