package reporting

import (
	"time"

	"voice-scheduler/internal/metrics"
)

// TimeRange bounds CallLogs by InitiatedAt; the end is exclusive.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type CallsSummaryRequest struct {
	Range           TimeRange `json:"range"`
	ScheduledCallID string    `json:"scheduled_call_id,omitempty"`
}

type CallsSummary struct {
	ScheduledCallID string    `json:"scheduled_call_id,omitempty"`
	Range           TimeRange `json:"range"`

	TotalCalls      int `json:"total_calls"`
	InitiatedCalls  int `json:"initiated_calls"`
	RingingCalls    int `json:"ringing_calls"`
	InProgressCalls int `json:"in_progress_calls"`
	CompletedCalls  int `json:"completed_calls"`
	FailedCalls     int `json:"failed_calls"`
	NoAnswerCalls   int `json:"no_answer_calls"`
	BusyCalls       int `json:"busy_calls"`
	CanceledCalls   int `json:"canceled_calls"`

	HumanAnswered   int `json:"human_answered"`
	MachineAnswered int `json:"machine_answered"`
	OtherAnswered   int `json:"other_answered"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	// AnswerRate is completed / finished attempts.
	AnswerRate float64 `json:"answer_rate"`
}

// ScheduleSummary counts ScheduledCalls by status.
type ScheduleSummary struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

// Overview combines call outcomes, schedule state and the live counters.
type Overview struct {
	Calls     CallsSummary      `json:"calls"`
	Schedules ScheduleSummary   `json:"schedules"`
	Metrics   *metrics.Snapshot `json:"metrics,omitempty"`
}
