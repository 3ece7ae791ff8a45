package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tdtu-ibank/payflow/internal/models"
)

// ==============================================
// WIRE SHAPES
// ==============================================

// envelope is the bank gateway's wrapped response shape. Some deployments
// still answer with the bare payload, so decoding falls back to a flat
// unmarshal when no data member is present.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type tuitionDTO struct {
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	Amount      string `json:"amount"`
}

type createPaymentRequest struct {
	StudentID string `json:"student_id"`
	Amount    string `json:"amount"`
}

type createPaymentDTO struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

type otpInfoDTO struct {
	PaymentID         string    `json:"payment_id"`
	ExpiresAt         time.Time `json:"expires_at"`
	AttemptsRemaining int       `json:"attempts_remaining"`
	Status            string    `json:"status"`
}

type verifyOTPRequest struct {
	Code string `json:"code"`
}

type verifyOTPDTO struct {
	Verified bool `json:"verified"`
}

type balanceDTO struct {
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
}

type sagaStepDTO struct {
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type sagaRecordDTO struct {
	SagaID    string        `json:"saga_id"`
	PaymentID string        `json:"payment_id"`
	Status    string        `json:"status"`
	Steps     []sagaStepDTO `json:"steps"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type paymentSummaryDTO struct {
	PaymentID   string    `json:"payment_id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	Amount      string    `json:"amount"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// ==============================================
// DECODING
// ==============================================

// decodeBody unwraps the envelope when present, otherwise treats the body as
// the bare payload. This is the one normalization point between the two
// response shapes the gateway is known to produce.
func decodeBody[T any](body []byte) (*T, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 {
		var out T
		if err := json.Unmarshal(env.Data, &out); err != nil {
			return nil, fmt.Errorf("%w: malformed data member: %v", models.ErrTransport, err)
		}
		return &out, nil
	}

	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: malformed response body: %v", models.ErrTransport, err)
	}
	return &out, nil
}

// ==============================================
// DTO -> MODEL MAPPING
// ==============================================

func (d *tuitionDTO) toModel() *models.TuitionInfo {
	return &models.TuitionInfo{
		StudentID:   d.StudentID,
		StudentName: d.StudentName,
		Amount:      d.Amount,
	}
}

func (d *otpInfoDTO) toModel() *models.OTPInfo {
	return &models.OTPInfo{
		PaymentID:         d.PaymentID,
		Expiry:            d.ExpiresAt,
		AttemptsRemaining: d.AttemptsRemaining,
		Status:            d.Status,
	}
}

func (d *sagaRecordDTO) toModel() *models.SagaRecord {
	steps := make([]models.SagaStep, 0, len(d.Steps))
	for _, s := range d.Steps {
		steps = append(steps, models.SagaStep{
			Name:        s.Name,
			Status:      models.SagaStepStatus(s.Status),
			Error:       s.Error,
			StartedAt:   s.StartedAt,
			CompletedAt: s.CompletedAt,
		})
	}
	return &models.SagaRecord{
		SagaID:    d.SagaID,
		PaymentID: d.PaymentID,
		Status:    models.SagaStatus(d.Status),
		Steps:     steps,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func (d *paymentSummaryDTO) toModel() models.PaymentSummary {
	return models.PaymentSummary{
		PaymentID:   d.PaymentID,
		StudentID:   d.StudentID,
		StudentName: d.StudentName,
		Amount:      d.Amount,
		Status:      d.Status,
		CreatedAt:   d.CreatedAt,
	}
}
