package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Store for tests and local development.
// It is not intended for production use.
type MemoryRepo struct {
	mu sync.Mutex

	scheduled map[string]ScheduledCall
	logs      map[string]CallLog
	// insertion order of logs, for stable listings
	order []string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		scheduled: map[string]ScheduledCall{},
		logs:      map[string]CallLog{},
	}
}

func (r *MemoryRepo) CreateScheduledCall(ctx context.Context, sc ScheduledCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scheduled[sc.ID]; ok {
		return ErrDuplicateID
	}
	r.scheduled[sc.ID] = cloneScheduled(sc)
	return nil
}

func (r *MemoryRepo) GetScheduledCall(ctx context.Context, id string) (ScheduledCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.scheduled[id]
	if !ok {
		return ScheduledCall{}, ErrNotFound
	}
	return cloneScheduled(sc), nil
}

func (r *MemoryRepo) MutateScheduledCall(ctx context.Context, id string, fn ScheduledCallMutateFunc) (ScheduledCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.scheduled[id]
	if !ok {
		return ScheduledCall{}, ErrNotFound
	}
	next := cloneScheduled(cur)
	changed, err := fn(&next)
	if err != nil {
		return ScheduledCall{}, err
	}
	if !changed {
		return cloneScheduled(cur), nil
	}
	next.ID = cur.ID
	r.scheduled[id] = cloneScheduled(next)
	return next, nil
}

func (r *MemoryRepo) DeleteScheduledCall(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scheduled[id]; !ok {
		return ErrNotFound
	}
	delete(r.scheduled, id)
	return nil
}

func (r *MemoryRepo) ListScheduledCalls(ctx context.Context, status ScheduledCallStatus) ([]ScheduledCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ScheduledCall, 0, len(r.scheduled))
	for _, sc := range r.scheduled {
		if status != "" && sc.Status != status {
			continue
		}
		out = append(out, cloneScheduled(sc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (r *MemoryRepo) CountScheduledCallsByStatus(ctx context.Context) (map[ScheduledCallStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[ScheduledCallStatus]int{}
	for _, sc := range r.scheduled {
		out[sc.Status]++
	}
	return out, nil
}

func (r *MemoryRepo) CreateCallLog(ctx context.Context, l CallLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.logs[l.ID]; ok {
		return ErrDuplicateID
	}
	r.logs[l.ID] = cloneLog(l)
	r.order = append(r.order, l.ID)
	return nil
}

func (r *MemoryRepo) GetCallLog(ctx context.Context, id string) (CallLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.logs[id]
	if !ok {
		return CallLog{}, ErrNotFound
	}
	return cloneLog(l), nil
}

func (r *MemoryRepo) GetCallLogByProviderCallID(ctx context.Context, providerCallID string) (CallLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.findByProviderLocked(providerCallID)
	if !ok {
		return CallLog{}, ErrNotFound
	}
	return cloneLog(r.logs[id]), nil
}

func (r *MemoryRepo) SetProviderCallID(ctx context.Context, id, providerCallID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.logs[id]
	if !ok {
		return ErrNotFound
	}
	if l.Correlatable() {
		return ErrProviderCallIDSet
	}
	sid := providerCallID
	l.ProviderCallID = &sid
	r.logs[id] = l
	return nil
}

func (r *MemoryRepo) MutateCallLog(ctx context.Context, id string, fn CallLogMutateFunc) (CallLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mutateLogLocked(id, fn)
}

func (r *MemoryRepo) MutateCallLogByProviderCallID(ctx context.Context, providerCallID string, fn CallLogMutateFunc) (CallLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.findByProviderLocked(providerCallID)
	if !ok {
		return CallLog{}, ErrNotFound
	}
	return r.mutateLogLocked(id, fn)
}

func (r *MemoryRepo) ListCallLogs(ctx context.Context, f CallLogFilter) ([]CallLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallLog, 0)
	for i := len(r.order) - 1; i >= 0; i-- {
		l := r.logs[r.order[i]]
		if !matchesFilter(l, f) {
			continue
		}
		out = append(out, cloneLog(l))
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepo) CountCallLogsByStatus(ctx context.Context, f CallLogFilter) (map[CallStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[CallStatus]int{}
	for _, l := range r.logs {
		if matchesFilter(l, f) {
			out[l.Status]++
		}
	}
	return out, nil
}

func (r *MemoryRepo) CountCallLogsByDetection(ctx context.Context, f CallLogFilter) (map[DetectionResult]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[DetectionResult]int{}
	for _, l := range r.logs {
		if l.AnsweredBy == nil || !matchesFilter(l, f) {
			continue
		}
		out[*l.AnsweredBy]++
	}
	return out, nil
}

func (r *MemoryRepo) mutateLogLocked(id string, fn CallLogMutateFunc) (CallLog, error) {
	cur, ok := r.logs[id]
	if !ok {
		return CallLog{}, ErrNotFound
	}
	next := cloneLog(cur)
	changed, err := fn(&next)
	if err != nil {
		return CallLog{}, err
	}
	if !changed {
		return cloneLog(cur), nil
	}
	// identity and the provider id are not editable through a mutation
	next.ID = cur.ID
	next.ProviderCallID = cur.ProviderCallID
	r.logs[id] = cloneLog(next)
	return next, nil
}

func (r *MemoryRepo) findByProviderLocked(providerCallID string) (string, bool) {
	if providerCallID == "" {
		return "", false
	}
	for id, l := range r.logs {
		if l.ProviderCallID != nil && *l.ProviderCallID == providerCallID {
			return id, true
		}
	}
	return "", false
}

func matchesFilter(l CallLog, f CallLogFilter) bool {
	if f.ScheduledCallID != "" && (l.ScheduledCallID == nil || *l.ScheduledCallID != f.ScheduledCallID) {
		return false
	}
	if f.Status != "" && l.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && l.InitiatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !l.InitiatedAt.Before(f.To) {
		return false
	}
	return true
}

func cloneScheduled(sc ScheduledCall) ScheduledCall {
	out := sc
	out.ContactID = cloneString(sc.ContactID)
	out.NextRunAt = cloneTime(sc.NextRunAt)
	out.LastRunAt = cloneTime(sc.LastRunAt)
	if sc.ProviderOptions.Extra != nil {
		out.ProviderOptions.Extra = make(map[string]string, len(sc.ProviderOptions.Extra))
		for k, v := range sc.ProviderOptions.Extra {
			out.ProviderOptions.Extra[k] = v
		}
	}
	return out
}

func cloneLog(l CallLog) CallLog {
	out := l
	out.ScheduledCallID = cloneString(l.ScheduledCallID)
	out.ContactID = cloneString(l.ContactID)
	out.ProviderCallID = cloneString(l.ProviderCallID)
	out.RetryOf = cloneString(l.RetryOf)
	out.AnsweredAt = cloneTime(l.AnsweredAt)
	out.EndedAt = cloneTime(l.EndedAt)
	if l.DurationSeconds != nil {
		d := *l.DurationSeconds
		out.DurationSeconds = &d
	}
	if l.AnsweredBy != nil {
		a := *l.AnsweredBy
		out.AnsweredBy = &a
	}
	return out
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
