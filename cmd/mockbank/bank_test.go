package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdtu-ibank/payflow/internal/models"
)

func TestBank_LookupTuition(t *testing.T) {
	b := newBank()

	info, err := b.LookupTuition("522H0006")
	require.NoError(t, err)
	assert.Equal(t, "Tran Thi B", info.StudentName)
	assert.Equal(t, "5000000", info.Amount)

	// Lookups are case-insensitive on the student id.
	info, err = b.LookupTuition("522h0006")
	require.NoError(t, err)
	assert.Equal(t, "522H0006", info.StudentID)

	_, err = b.LookupTuition("999X9999")
	assert.ErrorIs(t, err, models.ErrTuitionNotFound)
}

func TestBank_CreatePayment(t *testing.T) {
	b := newBank()

	p, err := b.CreatePayment("522H0006", "5000000")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "pending", p.Status)
	assert.Len(t, p.OTPCode, models.OTPLength)
	assert.Equal(t, models.OTPMaxAttempts, p.Attempts)

	saga, err := b.SagaForPayment(p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SagaPending, saga.Status)
}

func TestBank_CreatePayment_AmountMustMatchRecord(t *testing.T) {
	b := newBank()

	_, err := b.CreatePayment("522H0006", "1")
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	_, err = b.CreatePayment("999X9999", "5000000")
	assert.ErrorIs(t, err, models.ErrTuitionNotFound)
}

func TestBank_VerifyOTP_HappyPath(t *testing.T) {
	b := newBank()
	p, err := b.CreatePayment("522H0006", "5000000")
	require.NoError(t, err)

	ok, err := b.VerifyOTP(p.ID, p.OTPCode)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "5000000", b.Balance(), "balance is debited on capture")

	saga, err := b.SagaForPayment(p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SagaCompleted, saga.Status)

	// A settled payment cannot be verified again.
	_, err = b.VerifyOTP(p.ID, p.OTPCode)
	assert.ErrorIs(t, err, models.ErrPaymentNotFound)
}

func TestBank_VerifyOTP_AttemptsExhaust(t *testing.T) {
	b := newBank()
	p, err := b.CreatePayment("522H0006", "5000000")
	require.NoError(t, err)

	wrong := "000000"
	if p.OTPCode == wrong {
		wrong = "000001"
	}

	for i := 0; i < models.OTPMaxAttempts; i++ {
		ok, verr := b.VerifyOTP(p.ID, wrong)
		require.NoError(t, verr)
		assert.False(t, ok)
	}
	assert.Equal(t, "failed", p.Status)

	saga, err := b.SagaForPayment(p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SagaFailed, saga.Status)

	// The compensation steps were appended.
	names := make([]string, 0, len(saga.Steps))
	for _, s := range saga.Steps {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "release-tuition")
	assert.Contains(t, names, "void-otp")
}

func TestBank_VerifyOTP_Expired(t *testing.T) {
	b := newBank()
	p, err := b.CreatePayment("522H0006", "5000000")
	require.NoError(t, err)

	b.now = func() time.Time { return time.Now().Add(otpTTL + time.Second) }

	_, err = b.VerifyOTP(p.ID, p.OTPCode)
	assert.ErrorIs(t, err, models.ErrOTPExpired)
	assert.Equal(t, "failed", p.Status)
}

func TestBank_ResendOTP_Cooldown(t *testing.T) {
	b := newBank()
	p, err := b.CreatePayment("522H0006", "5000000")
	require.NoError(t, err)

	assert.ErrorIs(t, b.ResendOTP(p.ID), models.ErrRateLimited)

	b.now = func() time.Time { return time.Now().Add(resendCooldown + time.Second) }
	oldCode := p.OTPCode
	require.NoError(t, b.ResendOTP(p.ID))
	assert.NotEqual(t, oldCode, p.OTPCode, "resend issues a fresh code")
}

func TestBank_CancelPayment(t *testing.T) {
	b := newBank()
	p, err := b.CreatePayment("522H0006", "5000000")
	require.NoError(t, err)

	require.NoError(t, b.CancelPayment(p.ID))
	assert.Equal(t, "cancelled", p.Status)
	assert.Equal(t, "10000000", b.Balance(), "no debit on cancel")

	// Idempotent on settled payments.
	require.NoError(t, b.CancelPayment(p.ID))
	assert.ErrorIs(t, b.CancelPayment("pay-gone"), models.ErrPaymentNotFound)
}

func TestBank_HistoryNewestFirst(t *testing.T) {
	b := newBank()
	p1, err := b.CreatePayment("522H0006", "5000000")
	require.NoError(t, err)
	p2, err := b.CreatePayment("522H0121", "7250000")
	require.NoError(t, err)

	history := b.History()
	require.Len(t, history, 2)
	assert.Equal(t, p2.ID, history[0].PaymentID)
	assert.Equal(t, p1.ID, history[1].PaymentID)
}

func TestBank_OTPInfoReportsExpiredStatus(t *testing.T) {
	b := newBank()
	p, err := b.CreatePayment("522H0006", "5000000")
	require.NoError(t, err)

	info, err := b.OTPInfo(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", info.Status)

	b.now = func() time.Time { return time.Now().Add(otpTTL + time.Second) }
	info, err = b.OTPInfo(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "expired", info.Status)
}
