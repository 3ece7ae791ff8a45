package models

import "time"

// ==============================================
// SAGA AUDIT TRAIL
// ==============================================

// SagaStatus is the overall disposition of a payment saga as reported by the
// server. The client never derives it; it is displayed verbatim.
type SagaStatus string

const (
	SagaPending      SagaStatus = "pending"
	SagaCompleted    SagaStatus = "completed"
	SagaFailed       SagaStatus = "failed"
	SagaCompensating SagaStatus = "compensating"
)

// SagaStepStatus is the disposition of a single compensable step.
type SagaStepStatus string

const (
	SagaStepPending   SagaStepStatus = "pending"
	SagaStepCompleted SagaStepStatus = "completed"
	SagaStepFailed    SagaStepStatus = "failed"
)

// SagaStep is one ordered compensating-action step of a payment saga.
type SagaStep struct {
	Name        string         `json:"name"`
	Status      SagaStepStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// SagaRecord is the server-authoritative audit trail for one payment.
type SagaRecord struct {
	SagaID    string     `json:"sagaId"`
	PaymentID string     `json:"paymentId"`
	Status    SagaStatus `json:"status"`
	Steps     []SagaStep `json:"steps"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// PaymentSummary is one row of the payment history listing.
type PaymentSummary struct {
	PaymentID   string    `json:"paymentId"`
	StudentID   string    `json:"studentId"`
	StudentName string    `json:"studentName"`
	Amount      string    `json:"amount"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}
