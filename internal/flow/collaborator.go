package flow

import (
	"context"

	"github.com/tdtu-ibank/payflow/internal/models"
)

// ==============================================
// COLLABORATOR INTERFACE (for testing)
// ==============================================

// Collaborator is the transport-agnostic contract the controller consumes.
// Implementations return the module's sentinel errors for typed failures;
// the controller never sees a raw HTTP response.
type Collaborator interface {
	// LookupTuition returns a copy of the tuition record for a student id,
	// or models.ErrTuitionNotFound.
	LookupTuition(ctx context.Context, studentID string) (*models.TuitionInfo, error)

	// CreatePayment opens a payment and returns its id, or
	// models.ErrPaymentRejected / models.ErrTransport.
	CreatePayment(ctx context.Context, studentID, amount string) (string, error)

	// GetOTPInfo returns the server-side view of the active challenge, or
	// models.ErrOTPNotFound.
	GetOTPInfo(ctx context.Context, paymentID string) (*models.OTPInfo, error)

	// VerifyOTP reports whether the code matched. A false result is a
	// mismatch, not an error; errors are transport failures.
	VerifyOTP(ctx context.Context, paymentID, code string) (bool, error)

	// ResendOTP requests a fresh code, or models.ErrRateLimited /
	// models.ErrTransport.
	ResendOTP(ctx context.Context, paymentID string) error

	// CancelPayment abandons the payment server-side, or
	// models.ErrUnauthorized / models.ErrTransport.
	CancelPayment(ctx context.Context, paymentID string) error

	// FetchBalance returns the payer's available balance as a decimal
	// string.
	FetchBalance(ctx context.Context) (string, error)
}
