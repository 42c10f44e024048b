package audit

import (
	"context"
	"errors"
	"testing"
)

func TestService_AppendRequiresType(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Event{}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	if err := svc.Append(context.Background(), Event{Type: EventCallTriggered, Metadata: "{not json"}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent for bad metadata, got %v", err)
	}
}

func TestService_RecordCapturesActorAndDetails(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	svc.Record(context.Background(), Actor{UserID: "u", Role: "operator", IP: "1.2.3.4"},
		EventScheduledCallPaused, "s1", "", "paused", map[string]string{"reason": "holiday"})

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	e := evs[0]
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp assigned: %+v", e)
	}
	if e.IPAddress != "1.2.3.4" || e.ActorRole != "operator" || e.ScheduledCallID != "s1" {
		t.Fatalf("unexpected event %+v", e)
	}
	if e.Metadata != `{"reason":"holiday"}` {
		t.Fatalf("unexpected metadata %q", e.Metadata)
	}
}

func TestService_RecordSwallowsMissingRepo(t *testing.T) {
	svc := NewService(nil)
	svc.Record(context.Background(), Actor{}, EventCallTriggered, "", "l1", "", nil)
}

func TestService_ListNewestFirstWithFilter(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	svc.Record(ctx, Actor{}, EventScheduledCallCreated, "s1", "", "", nil)
	svc.Record(ctx, Actor{}, EventScheduledCallCreated, "s2", "", "", nil)
	svc.Record(ctx, Actor{}, EventScheduledCallDeleted, "s1", "", "", nil)

	evs, err := svc.List(ctx, Filter{ScheduledCallID: "s1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(evs) != 2 || evs[0].Type != EventScheduledCallDeleted {
		t.Fatalf("unexpected events %+v", evs)
	}

	evs, _ = svc.List(ctx, Filter{Type: EventScheduledCallCreated, Limit: 1})
	if len(evs) != 1 || evs[0].ScheduledCallID != "s2" {
		t.Fatalf("unexpected limited listing %+v", evs)
	}
}
