package metrics

import (
	"context"
	"math"
	"testing"

	"voice-scheduler/internal/calls"
)

func TestBucketField(t *testing.T) {
	cases := map[int]string{0: "le_5", 5: "le_5", 6: "le_10", 61: "le_120", 600: "le_600", 601: "le_inf"}
	for in, want := range cases {
		if got := bucketField(in); got != want {
			t.Fatalf("bucketField(%d) = %s want %s", in, got, want)
		}
	}
}

func TestMemoryRecorder_Snapshot(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryRecorder()
	m.IncCallStatus(ctx, calls.CallStatusCompleted)
	m.IncCallStatus(ctx, calls.CallStatusCompleted)
	m.IncCallStatus(ctx, calls.CallStatusNoAnswer)
	m.IncProviderFailure(ctx, "21211")
	m.IncProviderFailure(ctx, "")
	m.ObserveCallDuration(ctx, 3)
	m.ObserveCallDuration(ctx, 45)
	m.ObserveCallDuration(ctx, 4000)
	m.ObserveCallDuration(ctx, -1)

	s, err := m.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if s.CallStatus["completed"] != 2 || s.CallStatus["no_answer"] != 1 {
		t.Fatalf("unexpected status counts %+v", s.CallStatus)
	}
	if s.ProviderFailures["21211"] != 1 || s.ProviderFailures["unknown"] != 1 {
		t.Fatalf("unexpected failures %+v", s.ProviderFailures)
	}
	if s.Duration.Count != 3 || s.Duration.Sum != 4048 {
		t.Fatalf("unexpected histogram totals %+v", s.Duration)
	}

	want := map[int]int64{5: 1, 10: 1, 30: 1, 60: 2, 120: 2, 300: 2, 600: 2, math.MaxInt: 3}
	for _, b := range s.Duration.Buckets {
		if b.Count != want[b.LE] {
			t.Fatalf("bucket le=%d count=%d want %d", b.LE, b.Count, want[b.LE])
		}
	}
}

func TestParseCounts_RejectsGarbage(t *testing.T) {
	if _, err := parseCounts(map[string]string{"x": "nope"}); err == nil {
		t.Fatalf("expected error")
	}
	got, err := parseCounts(map[string]string{"completed": "7"})
	if err != nil || got["completed"] != 7 {
		t.Fatalf("unexpected %v %v", got, err)
	}
}

func TestObserveScriptInitialized(t *testing.T) {
	if observeScript == nil {
		t.Fatalf("expected script to be initialized")
	}
}
