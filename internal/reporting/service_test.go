package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"voice-scheduler/internal/calls"
	"voice-scheduler/internal/metrics"
)

func seed(t *testing.T) (*calls.MemoryRepo, time.Time) {
	t.Helper()
	ctx := context.Background()
	repo := calls.NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	sched := "s1"
	human := calls.DetectionHuman
	beep := calls.DetectionMachineEndBeep
	fax := calls.DetectionFax
	d30, d50, zero := 30, 50, 0

	logs := []calls.CallLog{
		{ID: "a", ScheduledCallID: &sched, Status: calls.CallStatusCompleted, AnsweredBy: &human, DurationSeconds: &d30, InitiatedAt: now},
		{ID: "b", ScheduledCallID: &sched, Status: calls.CallStatusCompleted, AnsweredBy: &beep, DurationSeconds: &d50, InitiatedAt: now},
		{ID: "c", Status: calls.CallStatusNoAnswer, DurationSeconds: &zero, InitiatedAt: now},
		{ID: "d", Status: calls.CallStatusRinging, AnsweredBy: &fax, InitiatedAt: now},
		{ID: "old", Status: calls.CallStatusFailed, InitiatedAt: now.Add(-48 * time.Hour)},
	}
	for _, l := range logs {
		if err := repo.CreateCallLog(ctx, l); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	_ = repo.CreateScheduledCall(ctx, calls.ScheduledCall{ID: "s1", Status: calls.ScheduledCallStatusPending})
	_ = repo.CreateScheduledCall(ctx, calls.ScheduledCall{ID: "s2", Status: calls.ScheduledCallStatusCompleted})
	return repo, now
}

func TestCallsSummary_Aggregates(t *testing.T) {
	repo, now := seed(t)
	svc := NewService(repo, nil)

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 4 || out.CompletedCalls != 2 || out.NoAnswerCalls != 1 || out.RingingCalls != 1 || out.FailedCalls != 0 {
		t.Fatalf("unexpected counts: %+v", out)
	}
	if out.HumanAnswered != 1 || out.MachineAnswered != 1 || out.OtherAnswered != 1 {
		t.Fatalf("unexpected detection counts: %+v", out)
	}
	if out.TotalDurationSeconds != 80 || out.AverageDurationSeconds != 40 {
		t.Fatalf("unexpected durations: %+v", out)
	}
	if out.AnswerRate < 0.66 || out.AnswerRate > 0.67 {
		t.Fatalf("unexpected answer rate %v", out.AnswerRate)
	}
}

func TestCallsSummary_ScopedToScheduledCall(t *testing.T) {
	repo, _ := seed(t)
	svc := NewService(repo, nil)

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{ScheduledCallID: "s1"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 2 || out.AnswerRate != 1 {
		t.Fatalf("unexpected summary: %+v", out)
	}
}

func TestCallsSummary_RejectsInvertedRange(t *testing.T) {
	repo, now := seed(t)
	svc := NewService(repo, nil)
	_, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{Range: TimeRange{From: now, To: now.Add(-time.Hour)}})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestOverview_IncludesSchedulesAndMetrics(t *testing.T) {
	repo, _ := seed(t)
	rec := metrics.NewMemoryRecorder()
	rec.IncCallStatus(context.Background(), calls.CallStatusCompleted)
	svc := NewService(repo, rec)

	out, err := svc.Overview(context.Background(), CallsSummaryRequest{})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Schedules.Total != 2 || out.Schedules.ByStatus["pending"] != 1 {
		t.Fatalf("unexpected schedule summary %+v", out.Schedules)
	}
	if out.Metrics == nil || out.Metrics.CallStatus["completed"] != 1 {
		t.Fatalf("expected metrics snapshot, got %+v", out.Metrics)
	}
}
