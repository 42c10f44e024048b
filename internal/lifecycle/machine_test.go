package lifecycle

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"voice-scheduler/internal/calls"
	"voice-scheduler/internal/metrics"
	"voice-scheduler/internal/telephony"
)

var t0 = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type harness struct {
	repo  *calls.MemoryRepo
	rec   *metrics.MemoryRecorder
	clock *clock
	m     *Machine
}

func newHarness(t *testing.T, audio AudioResolver) harness {
	t.Helper()
	repo := calls.NewMemoryRepo()
	rec := metrics.NewMemoryRecorder()
	c := &clock{now: t0}
	if audio == nil {
		audio = URLAudioResolver{Base: func() string { return "https://media.example.com" }}
	}
	m := NewMachine(repo, audio, rec, Options{DefaultPostBeepDelaySeconds: 1, Now: c.Now})
	return harness{repo: repo, rec: rec, clock: c, m: m}
}

func (h harness) seed(t *testing.T, id, sid string, scheduledCallID string) {
	t.Helper()
	ctx := context.Background()
	l := calls.CallLog{ID: id, RecordingID: "rec-1", To: "+12015550123", Status: calls.CallStatusInitiated, InitiatedAt: t0}
	if scheduledCallID != "" {
		l.ScheduledCallID = &scheduledCallID
	}
	if err := h.repo.CreateCallLog(ctx, l); err != nil {
		t.Fatalf("create: %v", err)
	}
	if sid != "" {
		if err := h.repo.SetProviderCallID(ctx, id, sid); err != nil {
			t.Fatalf("set sid: %v", err)
		}
	}
}

func (h harness) get(t *testing.T, id string) calls.CallLog {
	t.Helper()
	l, err := h.repo.GetCallLog(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return l
}

func TestHandleStatus_NoAnswerEndsCall(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, "l1", "CA1", "")

	if err := h.m.HandleStatus(context.Background(), telephony.StatusEvent{CallSID: "CA1", Status: "no-answer"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	l := h.get(t, "l1")
	if l.Status != calls.CallStatusNoAnswer {
		t.Fatalf("expected no_answer, got %s", l.Status)
	}
	if l.EndedAt == nil || !l.EndedAt.Equal(t0) || l.DurationSeconds == nil {
		t.Fatalf("expected endedAt and duration, got %+v", l)
	}
	snap, _ := h.rec.Snapshot(context.Background())
	if snap.CallStatus["no_answer"] != 1 || snap.Duration.Count != 0 {
		t.Fatalf("unexpected metrics %+v", snap)
	}
}

func TestHandleStatus_FullProgression(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.seed(t, "l1", "CA1", "")

	_ = h.m.HandleStatus(ctx, telephony.StatusEvent{CallSID: "CA1", Status: "ringing"})
	h.clock.now = t0.Add(5 * time.Second)
	_ = h.m.HandleStatus(ctx, telephony.StatusEvent{CallSID: "CA1", Status: "in-progress"})

	l := h.get(t, "l1")
	if l.Status != calls.CallStatusInProgress || l.AnsweredAt == nil || !l.AnsweredAt.Equal(t0.Add(5*time.Second)) {
		t.Fatalf("expected answered in_progress, got %+v", l)
	}
	if l.EndedAt != nil || l.DurationSeconds != nil {
		t.Fatalf("duration and endedAt must stay unset before a terminal status")
	}

	h.clock.now = t0.Add(50 * time.Second)
	d := 42
	_ = h.m.HandleStatus(ctx, telephony.StatusEvent{CallSID: "CA1", Status: "completed", DurationSeconds: &d, AnsweredBy: "human"})

	l = h.get(t, "l1")
	if l.Status != calls.CallStatusCompleted || *l.DurationSeconds != 42 || l.EndedAt == nil {
		t.Fatalf("unexpected terminal row %+v", l)
	}
	if l.AnsweredBy == nil || *l.AnsweredBy != calls.DetectionHuman {
		t.Fatalf("expected detection from status callback, got %v", l.AnsweredBy)
	}
}

func TestHandleStatus_DurationFallsBackToAnsweredAt(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.seed(t, "l1", "CA1", "")

	_ = h.m.HandleStatus(ctx, telephony.StatusEvent{CallSID: "CA1", Status: "answered"})
	h.clock.now = t0.Add(17 * time.Second)
	_ = h.m.HandleStatus(ctx, telephony.StatusEvent{CallSID: "CA1", Status: "completed"})

	if l := h.get(t, "l1"); *l.DurationSeconds != 17 {
		t.Fatalf("expected 17s, got %d", *l.DurationSeconds)
	}
}

func TestHandleStatus_OnlyReportedDurationsReachHistogram(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.seed(t, "busy", "CA1", "")
	h.seed(t, "answered", "CA2", "")

	_ = h.m.HandleStatus(ctx, telephony.StatusEvent{CallSID: "CA1", Status: "busy"})
	_ = h.m.HandleStatus(ctx, telephony.StatusEvent{CallSID: "CA2", Status: "in-progress"})
	h.clock.now = t0.Add(9 * time.Second)
	_ = h.m.HandleStatus(ctx, telephony.StatusEvent{CallSID: "CA2", Status: "completed"})

	snap, _ := h.rec.Snapshot(ctx)
	if snap.CallStatus["busy"] != 1 || snap.CallStatus["completed"] != 1 {
		t.Fatalf("unexpected status counts %+v", snap.CallStatus)
	}
	if snap.Duration.Count != 0 || snap.Duration.Sum != 0 {
		t.Fatalf("expected no duration samples without CallDuration, got %+v", snap.Duration)
	}

	d := 42
	h.seed(t, "reported", "CA3", "")
	_ = h.m.HandleStatus(ctx, telephony.StatusEvent{CallSID: "CA3", Status: "completed", DurationSeconds: &d})
	snap, _ = h.rec.Snapshot(ctx)
	if snap.Duration.Count != 1 || snap.Duration.Sum != 42 {
		t.Fatalf("expected the reported sample, got %+v", snap.Duration)
	}
}

func TestHandleStatus_IgnoresRegressionAndPostTerminal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.seed(t, "l1", "CA1", "")

	_ = h.m.HandleStatus(ctx, telephony.StatusEvent{CallSID: "CA1", Status: "in-progress"})
	_ = h.m.HandleStatus(ctx, telephony.StatusEvent{CallSID: "CA1", Status: "ringing"})
	if l := h.get(t, "l1"); l.Status != calls.CallStatusInProgress {
		t.Fatalf("regression applied: %s", l.Status)
	}

	_ = h.m.HandleStatus(ctx, telephony.StatusEvent{CallSID: "CA1", Status: "busy", ErrorCode: "1"})
	_ = h.m.HandleStatus(ctx, telephony.StatusEvent{CallSID: "CA1", Status: "failed", ErrorCode: "31005", ErrorMessage: "late"})
	l := h.get(t, "l1")
	if l.Status != calls.CallStatusBusy || l.ErrorCode != "1" || l.ErrorMessage != "" {
		t.Fatalf("post-terminal event applied: %+v", l)
	}
	snap, _ := h.rec.Snapshot(ctx)
	if snap.CallStatus["busy"] != 1 || snap.CallStatus["failed"] != 0 {
		t.Fatalf("unexpected metrics %+v", snap)
	}
}

func TestHandleStatus_UnknownCallIsDropped(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, "l1", "", "")

	// l1 has no provider id yet, so nothing can match.
	if err := h.m.HandleStatus(context.Background(), telephony.StatusEvent{CallSID: "CA404", Status: "ringing"}); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if l := h.get(t, "l1"); l.Status != calls.CallStatusInitiated {
		t.Fatalf("unrelated log changed: %+v", l)
	}
}

func TestHandleStatus_UnknownTokenIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, "l1", "CA1", "")
	if err := h.m.HandleStatus(context.Background(), telephony.StatusEvent{CallSID: "CA1", Status: "teleported"}); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if l := h.get(t, "l1"); l.Status != calls.CallStatusInitiated {
		t.Fatalf("unexpected status %s", l.Status)
	}
}

type checkingResolver struct {
	t    *testing.T
	repo *calls.MemoryRepo
	id   string
	want calls.DetectionResult
}

func (r checkingResolver) AudioURL(ctx context.Context, recordingID string) (string, error) {
	l, err := r.repo.GetCallLog(ctx, r.id)
	if err != nil {
		r.t.Errorf("get: %v", err)
	} else if l.AnsweredBy == nil || *l.AnsweredBy != r.want {
		r.t.Errorf("detection not persisted before building document: %v", l.AnsweredBy)
	}
	return "https://media.example.com/recordings/" + recordingID, nil
}

func TestHandleInstructionFetch_PersistsDetectionFirst(t *testing.T) {
	repo := calls.NewMemoryRepo()
	m := NewMachine(repo, checkingResolver{t: t, repo: repo, id: "l1", want: calls.DetectionMachineEndBeep}, nil, Options{})
	_ = repo.CreateCallLog(context.Background(), calls.CallLog{ID: "l1", RecordingID: "rec-1", Status: calls.CallStatusInProgress, InitiatedAt: t0})

	doc, err := m.HandleInstructionFetch(context.Background(), "l1", "machine_end_beep")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(doc, "<Play>https://media.example.com/recordings/rec-1</Play>") {
		t.Fatalf("unexpected document %s", doc)
	}
}

func TestHandleInstructionFetch_DelayFromScheduledCall(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	_ = h.repo.CreateScheduledCall(ctx, calls.ScheduledCall{ID: "sc-1", PostBeepDelaySeconds: 4, Status: calls.ScheduledCallStatusPending})
	h.seed(t, "l1", "CA1", "sc-1")
	h.seed(t, "l2", "CA2", "")

	doc, err := h.m.HandleInstructionFetch(ctx, "l1", "human")
	if err != nil || !strings.Contains(doc, `<Pause length="4">`) {
		t.Fatalf("expected scheduled delay, got %s %v", doc, err)
	}
	doc, err = h.m.HandleInstructionFetch(ctx, "l2", "")
	if err != nil || !strings.Contains(doc, `<Pause length="1">`) {
		t.Fatalf("expected default delay, got %s %v", doc, err)
	}
	if l := h.get(t, "l2"); l.AnsweredBy != nil {
		t.Fatalf("no detection result expected, got %v", *l.AnsweredBy)
	}
}

func TestHandleInstructionFetch_UnknownValuesMapToUnknown(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, "l1", "CA1", "")

	if _, err := h.m.HandleInstructionFetch(context.Background(), "l1", "robot_overlord"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if l := h.get(t, "l1"); l.AnsweredBy == nil || *l.AnsweredBy != calls.DetectionUnknown {
		t.Fatalf("expected unknown, got %v", l.AnsweredBy)
	}
}

func TestHandleInstructionFetch_UnknownCallLog(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.m.HandleInstructionFetch(context.Background(), "missing", "human")
	if !errors.Is(err, ErrUnknownCallLog) || !errors.Is(err, telephony.ErrUnknownCallLog) {
		t.Fatalf("expected ErrUnknownCallLog, got %v", err)
	}
}

func TestHandleDetection_Legacy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.seed(t, "l1", "CA1", "")

	if err := h.m.HandleDetection(ctx, "CA1", "fax"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if l := h.get(t, "l1"); l.AnsweredBy == nil || *l.AnsweredBy != calls.DetectionFax {
		t.Fatalf("expected fax, got %v", l.AnsweredBy)
	}
	if err := h.m.HandleDetection(ctx, "CA404", "human"); err != nil {
		t.Fatalf("unknown sid must be dropped, got %v", err)
	}
}

func TestURLAudioResolver(t *testing.T) {
	r := URLAudioResolver{Base: func() string { return "https://media.example.com/" }}
	got, err := r.AudioURL(context.Background(), "a b")
	if err != nil || got != "https://media.example.com/recordings/a%20b" {
		t.Fatalf("unexpected %q %v", got, err)
	}
	if _, err := (URLAudioResolver{Base: func() string { return "" }}).AudioURL(context.Background(), "x"); err == nil {
		t.Fatalf("expected error without base")
	}
}
