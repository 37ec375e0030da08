package models

import (
	"encoding/json"
	"time"
)

// Состояния задач в очереди.
const (
	QueueStateCreated   = "created"
	QueueStateRetry     = "retry"
	QueueStateActive    = "active"
	QueueStateCompleted = "completed"
	QueueStateCancelled = "cancelled"
	QueueStateFailed    = "failed"
)

// QueueActiveStates: нетерминальные состояния.
var QueueActiveStates = []string{QueueStateCreated, QueueStateRetry, QueueStateActive}

type QueueJob struct {
	ID          string
	Queue       string
	State       string
	Data        json.RawMessage
	Output      json.RawMessage
	RetryLimit  int
	ExpireIn    time.Duration
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	KeepUntil   time.Time
}

// API-статусы задачи.
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// CombinedJobPayload: data задачи в очереди.
type CombinedJobPayload struct {
	TenantID     string `json:"tenantId"`
	ChatID       int64  `json:"chatId"`
	LanguageCode string `json:"languageCode,omitempty"`
}

type JobSummary struct {
	Mode                AggregationMode `json:"mode"`
	ProcessedShops      int             `json:"processedShops"`
	SuccessShops        int             `json:"successShops"`
	SkippedShops        int             `json:"skippedShops"`
	FailedShops         int             `json:"failedShops"`
	TotalOrders         int             `json:"totalOrders"`
	MissingProductCards int             `json:"missingProductCards"`
	MissingOrderFacts   int             `json:"missingOrderFacts"`
}

type JobDocument struct {
	FileName string `json:"fileName"`
	Base64   string `json:"base64"`
}

type JobDocuments struct {
	OrderList JobDocument `json:"orderList"`
	Stickers  JobDocument `json:"stickers"`
}

type JobResult struct {
	Summary   JobSummary   `json:"summary"`
	Documents JobDocuments `json:"documents"`
}

type JobStartResult struct {
	JobID     string    `json:"jobId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	Reused    bool      `json:"-"`
}

type JobSnapshot struct {
	JobID      string     `json:"jobId"`
	TenantID   string     `json:"-"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt"`
	Error      *string    `json:"error"`
	Result     *JobResult `json:"result"`
}

// Terminal: снапшот больше не изменится.
func (s *JobSnapshot) Terminal() bool {
	return s.Status == JobStatusCompleted || s.Status == JobStatusFailed
}
