// Package store provides the typed key/value persistence used by the payment
// flow: a durable store standing in for the browser origin's local storage,
// and a process-scoped store standing in for tab-scoped session storage.
package store

import "fmt"

// ==============================================
// STORE INTERFACE
// ==============================================

// Store is a flat string key/value capability. All values are opaque strings;
// callers parse-and-validate on read, and a parse failure always degrades to
// "treat as absent", never to a user-visible error.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string)
}

// ==============================================
// KEY LAYOUT
// ==============================================

const (
	// KeyPaymentState holds the serialized PaymentFlowState snapshot.
	KeyPaymentState = "payment_state"

	// KeyNavigationFlag marks an internal navigation away from the flow
	// screen. Session-scoped only; it must not survive a hard reload.
	KeyNavigationFlag = "payment_flow_navigating"

	retryKeyFormat  = "otp_retry_%s"
	expireKeyFormat = "otp_expire_until_%s"
	resendKeyFormat = "otp_resend_until_%s"
)

// RetryKey returns the per-payment attempt counter key.
func RetryKey(paymentID string) string {
	return fmt.Sprintf(retryKeyFormat, paymentID)
}

// ExpireKey returns the per-payment OTP expiry instant key.
func ExpireKey(paymentID string) string {
	return fmt.Sprintf(expireKeyFormat, paymentID)
}

// ResendKey returns the per-payment resend cooldown instant key.
func ResendKey(paymentID string) string {
	return fmt.Sprintf(resendKeyFormat, paymentID)
}

// ClearPayment removes every per-payment key plus the flow snapshot. Every
// terminal disposition (success, expiry, attempts exhausted, cancel) funnels
// through here so no dangling keys survive.
func ClearPayment(s Store, paymentID string) {
	if paymentID != "" {
		s.Remove(RetryKey(paymentID))
		s.Remove(ExpireKey(paymentID))
		s.Remove(ResendKey(paymentID))
	}
	s.Remove(KeyPaymentState)
}
