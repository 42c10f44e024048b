// Package metrics records call outcome counters and the call duration histogram.
package metrics

import (
	"context"
	"math"
	"strconv"

	"voice-scheduler/internal/calls"
)

// Recorder is the sink the engine reports call outcomes to.
// Implementations are best-effort: recording never fails the caller.
type Recorder interface {
	IncCallStatus(ctx context.Context, status calls.CallStatus)
	ObserveCallDuration(ctx context.Context, seconds int)
	IncProviderFailure(ctx context.Context, code string)
}

// Snapshotter is implemented by recorders that can report their current values.
type Snapshotter interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// DurationBuckets are the histogram upper bounds, in seconds.
var DurationBuckets = []int{5, 10, 30, 60, 120, 300, 600}

type Snapshot struct {
	CallStatus       map[string]int64 `json:"call_status"`
	ProviderFailures map[string]int64 `json:"provider_failures"`
	Duration         Histogram        `json:"duration"`
}

// Histogram holds cumulative bucket counts, Prometheus style.
type Histogram struct {
	Buckets []Bucket `json:"buckets"`
	Count   int64    `json:"count"`
	Sum     int64    `json:"sum_seconds"`
}

type Bucket struct {
	// LE is the inclusive upper bound; +Inf is reported as math.MaxInt.
	LE    int   `json:"le"`
	Count int64 `json:"count"`
}

// bucketField names the non-cumulative storage slot a duration falls into.
func bucketField(seconds int) string {
	for _, b := range DurationBuckets {
		if seconds <= b {
			return "le_" + strconv.Itoa(b)
		}
	}
	return "le_inf"
}

// histogramFromFields turns the stored per-slot counts into cumulative buckets.
func histogramFromFields(fields map[string]int64) Histogram {
	h := Histogram{Count: fields["count"], Sum: fields["sum"]}
	var running int64
	for _, b := range DurationBuckets {
		running += fields["le_"+strconv.Itoa(b)]
		h.Buckets = append(h.Buckets, Bucket{LE: b, Count: running})
	}
	running += fields["le_inf"]
	h.Buckets = append(h.Buckets, Bucket{LE: math.MaxInt, Count: running})
	return h
}

func providerCode(code string) string {
	if code == "" {
		return "unknown"
	}
	return code
}
