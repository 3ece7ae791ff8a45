package main

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tdtu-ibank/payflow/internal/auth"
	"github.com/tdtu-ibank/payflow/internal/models"
)

// ==============================================
// IN-MEMORY BANK CORE
// ==============================================

// The dev bank holds everything in memory on purpose: it exists to exercise
// the payment flow end to end, not to survive restarts.

const (
	otpTTL         = 5 * time.Minute
	resendCooldown = 2 * time.Minute
)

type payment struct {
	ID          string
	StudentID   string
	StudentName string
	Amount      string
	Status      string
	OTPCode     string
	OTPExpiry   time.Time
	ResendAfter time.Time
	Attempts    int
	SagaID      string
	CreatedAt   time.Time
}

type bank struct {
	mu       sync.Mutex
	tuition  map[string]models.TuitionInfo
	balance  decimal.Decimal
	payments map[string]*payment
	sagas    map[string]*models.SagaRecord
	order    []string // payment ids, oldest first
	now      func() time.Time
}

func newBank() *bank {
	b := &bank{
		tuition:  make(map[string]models.TuitionInfo),
		payments: make(map[string]*payment),
		sagas:    make(map[string]*models.SagaRecord),
		balance:  decimal.RequireFromString("10000000"),
		now:      time.Now,
	}
	b.seed()
	return b
}

func (b *bank) seed() {
	seedTuition := []struct {
		id, name, amount string
	}{
		{"522H0006", "Tran Thi B", "5000000"},
		{"522H0121", "Nguyen Van A", "7250000"},
		{"521H0045", "Le Minh C", "12000000"},
	}
	for _, t := range seedTuition {
		b.tuition[t.id] = models.TuitionInfo{StudentID: t.id, StudentName: t.name, Amount: t.amount}
	}
}

// ==============================================
// TUITION
// ==============================================

func (b *bank) LookupTuition(studentID string) (*models.TuitionInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	info, ok := b.tuition[strings.ToUpper(studentID)]
	if !ok {
		return nil, models.ErrTuitionNotFound
	}
	out := info
	return &out, nil
}

// ==============================================
// PAYMENTS
// ==============================================

func (b *bank) CreatePayment(studentID, amount string) (*payment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	info, ok := b.tuition[strings.ToUpper(studentID)]
	if !ok {
		return nil, models.ErrTuitionNotFound
	}
	if info.Amount != amount {
		return nil, models.ErrInvalidAmount
	}

	now := b.now()
	p := &payment{
		ID:          uuid.NewString(),
		StudentID:   info.StudentID,
		StudentName: info.StudentName,
		Amount:      info.Amount,
		Status:      "pending",
		OTPCode:     auth.GenerateOTP(),
		OTPExpiry:   now.Add(otpTTL),
		ResendAfter: now.Add(resendCooldown),
		Attempts:    models.OTPMaxAttempts,
		CreatedAt:   now,
	}

	saga := &models.SagaRecord{
		SagaID:    uuid.NewString(),
		PaymentID: p.ID,
		Status:    models.SagaPending,
		Steps: []models.SagaStep{
			{Name: "reserve-tuition", Status: models.SagaStepCompleted, StartedAt: now, CompletedAt: &now},
			{Name: "issue-otp", Status: models.SagaStepCompleted, StartedAt: now, CompletedAt: &now},
			{Name: "capture-payment", Status: models.SagaStepPending, StartedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.SagaID = saga.SagaID

	b.payments[p.ID] = p
	b.sagas[saga.SagaID] = saga
	b.order = append(b.order, p.ID)
	return p, nil
}

func (b *bank) CancelPayment(paymentID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.payments[paymentID]
	if !ok {
		return models.ErrPaymentNotFound
	}
	if p.Status != "pending" {
		// Cancelling a settled payment is a no-op, not an error.
		return nil
	}

	now := b.now()
	p.Status = "cancelled"
	b.settleSaga(p, models.SagaFailed, "cancelled by payer", now)
	return nil
}

// ==============================================
// OTP CHALLENGE
// ==============================================

func (b *bank) OTPInfo(paymentID string) (*models.OTPInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.payments[paymentID]
	if !ok {
		return nil, models.ErrPaymentNotFound
	}

	status := p.Status
	if status == "pending" && !p.OTPExpiry.After(b.now()) {
		status = "expired"
	}
	return &models.OTPInfo{
		PaymentID:         p.ID,
		Expiry:            p.OTPExpiry,
		AttemptsRemaining: p.Attempts,
		Status:            status,
	}, nil
}

func (b *bank) VerifyOTP(paymentID, code string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.payments[paymentID]
	if !ok {
		return false, models.ErrPaymentNotFound
	}
	if p.Status != "pending" {
		return false, models.ErrPaymentNotFound
	}

	now := b.now()
	if !p.OTPExpiry.After(now) {
		p.Status = "failed"
		b.settleSaga(p, models.SagaFailed, "otp expired", now)
		return false, models.ErrOTPExpired
	}
	if p.Attempts <= 0 {
		p.Status = "failed"
		b.settleSaga(p, models.SagaFailed, "attempts exhausted", now)
		return false, models.ErrOTPMaxAttempts
	}

	if code != p.OTPCode {
		p.Attempts--
		if p.Attempts <= 0 {
			p.Status = "failed"
			b.settleSaga(p, models.SagaFailed, "attempts exhausted", now)
		}
		return false, nil
	}

	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return false, models.ErrInvalidAmount
	}
	if b.balance.LessThan(amount) {
		p.Status = "failed"
		b.settleSaga(p, models.SagaFailed, "insufficient balance at capture", now)
		return false, models.ErrInsufficientBalance
	}

	b.balance = b.balance.Sub(amount)
	p.Status = "completed"
	b.settleSaga(p, models.SagaCompleted, "", now)
	return true, nil
}

func (b *bank) ResendOTP(paymentID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.payments[paymentID]
	if !ok {
		return models.ErrPaymentNotFound
	}
	if p.Status != "pending" {
		return models.ErrPaymentNotFound
	}

	now := b.now()
	if now.Before(p.ResendAfter) {
		return models.ErrRateLimited
	}

	p.OTPCode = auth.GenerateOTP()
	p.OTPExpiry = now.Add(otpTTL)
	p.ResendAfter = now.Add(resendCooldown)
	return nil
}

// ==============================================
// PROFILE / HISTORY
// ==============================================

func (b *bank) Balance() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance.String()
}

func (b *bank) History() []models.PaymentSummary {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.PaymentSummary, 0, len(b.order))
	for i := len(b.order) - 1; i >= 0; i-- {
		p := b.payments[b.order[i]]
		out = append(out, models.PaymentSummary{
			PaymentID:   p.ID,
			StudentID:   p.StudentID,
			StudentName: p.StudentName,
			Amount:      p.Amount,
			Status:      p.Status,
			CreatedAt:   p.CreatedAt,
		})
	}
	return out
}

func (b *bank) Sagas() []*models.SagaRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*models.SagaRecord, 0, len(b.order))
	for i := len(b.order) - 1; i >= 0; i-- {
		p := b.payments[b.order[i]]
		if s, ok := b.sagas[p.SagaID]; ok {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out
}

func (b *bank) SagaForPayment(paymentID string) (*models.SagaRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.payments[paymentID]
	if !ok {
		return nil, models.ErrSagaNotFound
	}
	s, ok := b.sagas[p.SagaID]
	if !ok {
		return nil, models.ErrSagaNotFound
	}
	copied := *s
	return &copied, nil
}

// ==============================================
// SAGA BOOKKEEPING
// ==============================================

// settleSaga closes the capture step and, on failure, appends the
// compensation steps a real orchestrator would run. Caller holds b.mu.
func (b *bank) settleSaga(p *payment, status models.SagaStatus, reason string, now time.Time) {
	s, ok := b.sagas[p.SagaID]
	if !ok {
		return
	}

	for i := range s.Steps {
		if s.Steps[i].Name == "capture-payment" && s.Steps[i].Status == models.SagaStepPending {
			if status == models.SagaCompleted {
				s.Steps[i].Status = models.SagaStepCompleted
			} else {
				s.Steps[i].Status = models.SagaStepFailed
				s.Steps[i].Error = reason
			}
			s.Steps[i].CompletedAt = &now
		}
	}

	if status == models.SagaFailed {
		s.Steps = append(s.Steps,
			models.SagaStep{Name: "release-tuition", Status: models.SagaStepCompleted, StartedAt: now, CompletedAt: &now},
			models.SagaStep{Name: "void-otp", Status: models.SagaStepCompleted, StartedAt: now, CompletedAt: &now},
		)
	}

	s.Status = status
	s.UpdatedAt = now
}
