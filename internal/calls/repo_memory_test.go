package calls

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryRepo_SetProviderCallIDOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	if err := repo.CreateCallLog(ctx, CallLog{ID: "l1", Status: CallStatusInitiated, InitiatedAt: time.Now()}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.SetProviderCallID(ctx, "l1", "CA1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := repo.SetProviderCallID(ctx, "l1", "CA2"); !errors.Is(err, ErrProviderCallIDSet) {
		t.Fatalf("expected ErrProviderCallIDSet, got %v", err)
	}
	if err := repo.SetProviderCallID(ctx, "missing", "CA3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, err := repo.GetCallLogByProviderCallID(ctx, "CA1")
	if err != nil || got.ID != "l1" {
		t.Fatalf("lookup by provider id: %+v %v", got, err)
	}
}

func TestMemoryRepo_MutateCannotRewriteIdentity(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	_ = repo.CreateCallLog(ctx, CallLog{ID: "l1", Status: CallStatusInitiated, InitiatedAt: time.Now()})
	_ = repo.SetProviderCallID(ctx, "l1", "CA1")

	out, err := repo.MutateCallLogByProviderCallID(ctx, "CA1", func(l *CallLog) (bool, error) {
		other := "CA-other"
		l.ID = "hijack"
		l.ProviderCallID = &other
		l.Status = CallStatusRinging
		return true, nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if out.ID != "l1" || *out.ProviderCallID != "CA1" || out.Status != CallStatusRinging {
		t.Fatalf("unexpected row: %+v", out)
	}
}

func TestMemoryRepo_MutateUnchangedLeavesRow(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	_ = repo.CreateScheduledCall(ctx, ScheduledCall{ID: "s1", Status: ScheduledCallStatusPending})

	_, err := repo.MutateScheduledCall(ctx, "s1", func(sc *ScheduledCall) (bool, error) {
		sc.Status = ScheduledCallStatusFailed
		return false, nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	got, _ := repo.GetScheduledCall(ctx, "s1")
	if got.Status != ScheduledCallStatusPending {
		t.Fatalf("expected untouched row, got %s", got.Status)
	}
}

func TestMemoryRepo_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	_ = repo.CreateScheduledCall(ctx, ScheduledCall{
		ID:              "s1",
		ProviderOptions: ProviderOptions{Extra: map[string]string{"k": "v"}},
	})

	got, _ := repo.GetScheduledCall(ctx, "s1")
	got.ProviderOptions.Extra["k"] = "changed"

	again, _ := repo.GetScheduledCall(ctx, "s1")
	if again.ProviderOptions.Extra["k"] != "v" {
		t.Fatalf("stored row was mutated through a returned copy")
	}
}

func TestMemoryRepo_ListCallLogsFilterAndCounts(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	sched := "s1"
	human := DetectionHuman
	machine := DetectionMachineEndBeep

	_ = repo.CreateCallLog(ctx, CallLog{ID: "a", ScheduledCallID: &sched, Status: CallStatusCompleted, AnsweredBy: &human, InitiatedAt: base})
	_ = repo.CreateCallLog(ctx, CallLog{ID: "b", ScheduledCallID: &sched, Status: CallStatusNoAnswer, InitiatedAt: base.Add(time.Hour)})
	_ = repo.CreateCallLog(ctx, CallLog{ID: "c", Status: CallStatusCompleted, AnsweredBy: &machine, InitiatedAt: base.Add(2 * time.Hour)})

	logs, _ := repo.ListCallLogs(ctx, CallLogFilter{ScheduledCallID: "s1"})
	if len(logs) != 2 || logs[0].ID != "b" {
		t.Fatalf("expected newest-first for s1, got %+v", logs)
	}

	logs, _ = repo.ListCallLogs(ctx, CallLogFilter{Limit: 1})
	if len(logs) != 1 || logs[0].ID != "c" {
		t.Fatalf("expected limit to keep newest, got %+v", logs)
	}

	byStatus, _ := repo.CountCallLogsByStatus(ctx, CallLogFilter{From: base, To: base.Add(90 * time.Minute)})
	if byStatus[CallStatusCompleted] != 1 || byStatus[CallStatusNoAnswer] != 1 {
		t.Fatalf("unexpected counts: %+v", byStatus)
	}

	byDetection, _ := repo.CountCallLogsByDetection(ctx, CallLogFilter{})
	if byDetection[DetectionHuman] != 1 || byDetection[DetectionMachineEndBeep] != 1 || len(byDetection) != 2 {
		t.Fatalf("unexpected detection counts: %+v", byDetection)
	}
}

func TestMemoryRepo_RejectsDuplicateIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	if err := repo.CreateScheduledCall(ctx, ScheduledCall{ID: "s1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.CreateScheduledCall(ctx, ScheduledCall{ID: "s1"}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	_ = repo.CreateCallLog(ctx, CallLog{ID: "l1", InitiatedAt: time.Now()})
	if err := repo.CreateCallLog(ctx, CallLog{ID: "l1", InitiatedAt: time.Now()}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}
