// Package reporting aggregates CallLogs and ScheduledCalls into summaries.
package reporting

import (
	"context"
	"errors"

	"voice-scheduler/internal/calls"
	"voice-scheduler/internal/metrics"
	"voice-scheduler/pkg/logger"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

type Service struct {
	repo    calls.Store
	metrics metrics.Snapshotter
}

// NewService builds a reporting service. snap may be nil, in which case overviews carry no counters.
func NewService(repo calls.Store, snap metrics.Snapshotter) *Service {
	return &Service{repo: repo, metrics: snap}
}

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if !req.Range.From.IsZero() && !req.Range.To.IsZero() && !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}
	f := calls.CallLogFilter{ScheduledCallID: req.ScheduledCallID, From: req.Range.From, To: req.Range.To}

	byStatus, err := s.repo.CountCallLogsByStatus(ctx, f)
	if err != nil {
		return CallsSummary{}, err
	}
	byDetection, err := s.repo.CountCallLogsByDetection(ctx, f)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{ScheduledCallID: req.ScheduledCallID, Range: req.Range}
	for st, n := range byStatus {
		out.TotalCalls += n
		switch st {
		case calls.CallStatusInitiated:
			out.InitiatedCalls += n
		case calls.CallStatusRinging:
			out.RingingCalls += n
		case calls.CallStatusInProgress:
			out.InProgressCalls += n
		case calls.CallStatusCompleted:
			out.CompletedCalls += n
		case calls.CallStatusFailed:
			out.FailedCalls += n
		case calls.CallStatusNoAnswer:
			out.NoAnswerCalls += n
		case calls.CallStatusBusy:
			out.BusyCalls += n
		case calls.CallStatusCanceled:
			out.CanceledCalls += n
		}
	}
	for d, n := range byDetection {
		switch {
		case d == calls.DetectionHuman:
			out.HumanAnswered += n
		case d.IsMachine():
			out.MachineAnswered += n
		default:
			out.OtherAnswered += n
		}
	}

	if out.CompletedCalls > 0 {
		f.Status = calls.CallStatusCompleted
		completed, err := s.repo.ListCallLogs(ctx, f)
		if err != nil {
			return CallsSummary{}, err
		}
		for _, l := range completed {
			if l.DurationSeconds != nil {
				out.TotalDurationSeconds += *l.DurationSeconds
			}
		}
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.CompletedCalls
	}
	finished := out.CompletedCalls + out.FailedCalls + out.NoAnswerCalls + out.BusyCalls + out.CanceledCalls
	if finished > 0 {
		out.AnswerRate = float64(out.CompletedCalls) / float64(finished)
	}
	return out, nil
}

func (s *Service) ScheduleSummary(ctx context.Context) (ScheduleSummary, error) {
	if s.repo == nil {
		return ScheduleSummary{}, errors.New("reporting: repository not configured")
	}
	counts, err := s.repo.CountScheduledCallsByStatus(ctx)
	if err != nil {
		return ScheduleSummary{}, err
	}
	out := ScheduleSummary{ByStatus: make(map[string]int, len(counts))}
	for st, n := range counts {
		out.ByStatus[string(st)] = n
		out.Total += n
	}
	return out, nil
}

// Overview is the dashboard payload. A metrics backend failure is logged and leaves Metrics empty.
func (s *Service) Overview(ctx context.Context, req CallsSummaryRequest) (Overview, error) {
	cs, err := s.CallsSummary(ctx, req)
	if err != nil {
		return Overview{}, err
	}
	ss, err := s.ScheduleSummary(ctx)
	if err != nil {
		return Overview{}, err
	}
	out := Overview{Calls: cs, Schedules: ss}
	if s.metrics != nil {
		snap, err := s.metrics.Snapshot(ctx)
		if err != nil {
			logger.From(ctx).Warn("metrics snapshot failed", "err", err)
		} else {
			out.Metrics = &snap
		}
	}
	return out, nil
}
