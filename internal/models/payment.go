package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ==============================================
// PAYMENT FLOW STATE
// ==============================================

// PaymentStep is the active screen of the payment flow. Exactly one step is
// active at a time.
type PaymentStep string

const (
	StepForm    PaymentStep = "form"
	StepOTP     PaymentStep = "otp"
	StepSuccess PaymentStep = "success"
	StepError   PaymentStep = "error"
)

func (s PaymentStep) String() string {
	return string(s)
}

// IsValid reports whether s is one of the four known steps. Anything else in
// a persisted snapshot means the snapshot is corrupt.
func (s PaymentStep) IsValid() bool {
	switch s {
	case StepForm, StepOTP, StepSuccess, StepError:
		return true
	}
	return false
}

// TuitionInfo is the tuition record snapshot taken at lookup time. It is a
// copy, never a live reference: the displayed amount must not change under the
// user's feet if the backend record is edited mid-flow.
type TuitionInfo struct {
	StudentID   string `json:"studentId"`
	StudentName string `json:"studentName"`
	Amount      string `json:"amount"`
}

// AmountDecimal parses the tuition amount. Amounts travel as decimal strings
// to avoid floating-point misrepresentation of currency.
func (t TuitionInfo) AmountDecimal() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(t.Amount)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// PaymentFlowState is the resumable unit persisted on every committed
// transition and read back once at mount.
type PaymentFlowState struct {
	Step        PaymentStep  `json:"step"`
	PaymentID   string       `json:"paymentId,omitempty"`
	TuitionInfo *TuitionInfo `json:"tuitionInfo,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Validate enforces the core invariant: an otp step without a payment id is
// meaningless and the snapshot holding it must be discarded.
func (s PaymentFlowState) Validate() error {
	if !s.Step.IsValid() {
		return ErrCorruptSnapshot
	}
	if s.Step == StepOTP && s.PaymentID == "" {
		return ErrCorruptSnapshot
	}
	return nil
}

// ==============================================
// OTP CHALLENGE
// ==============================================

// OTPInfo is the server-side view of an OTP challenge.
type OTPInfo struct {
	PaymentID         string
	Expiry            time.Time
	AttemptsRemaining int
	Status            string
}

// ==============================================
// FLOW CONFIGURATION
// ==============================================

const (
	OTPLength         = 6               // 6-digit OTP
	OTPMaxAttempts    = 5               // Max verification attempts per payment
	OTPTTL            = 5 * time.Minute // Payment is abandoned after this
	OTPResendCooldown = 2 * time.Minute // Wait between resend requests
	MinStudentIDLen   = 6               // Lookups fire at 6+ characters
	LookupDebounce    = 500 * time.Millisecond
)

// CompareBalance reports whether a balance covers an amount, comparing exact
// decimals. The boundary balance == amount is sufficient: the system only
// ever pays tuition in full.
func CompareBalance(balance, amount string) (bool, error) {
	b, err := decimal.NewFromString(balance)
	if err != nil {
		return false, ErrInvalidAmount
	}
	a, err := decimal.NewFromString(amount)
	if err != nil {
		return false, ErrInvalidAmount
	}
	return b.GreaterThanOrEqual(a), nil
}
