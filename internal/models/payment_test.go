package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentStep_IsValid(t *testing.T) {
	for _, step := range []PaymentStep{StepForm, StepOTP, StepSuccess, StepError} {
		assert.True(t, step.IsValid(), step)
	}
	assert.False(t, PaymentStep("").IsValid())
	assert.False(t, PaymentStep("limbo").IsValid())
}

func TestPaymentFlowState_Validate(t *testing.T) {
	tests := []struct {
		name    string
		state   PaymentFlowState
		wantErr bool
	}{
		{"fresh form", PaymentFlowState{Step: StepForm}, false},
		{"otp with payment id", PaymentFlowState{Step: StepOTP, PaymentID: "pay-1"}, false},
		{"otp without payment id", PaymentFlowState{Step: StepOTP}, true},
		{"unknown step", PaymentFlowState{Step: "limbo"}, true},
		{"zero value", PaymentFlowState{}, true},
		{"success without payment id", PaymentFlowState{Step: StepSuccess}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.state.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrCorruptSnapshot)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCompareBalance(t *testing.T) {
	tests := []struct {
		name    string
		balance string
		amount  string
		covered bool
		wantErr bool
	}{
		{"plenty", "10000000", "5000000", true, false},
		{"exactly equal covers", "5000000", "5000000", true, false},
		{"one under", "4999999", "5000000", false, false},
		{"fractional boundary", "5000000.00", "5000000", true, false},
		{"fractional under", "4999999.99", "5000000", false, false},
		{"garbage balance", "ten million", "5000000", false, true},
		{"garbage amount", "10000000", "much", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CompareBalance(tt.balance, tt.amount)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.covered, got)
		})
	}
}

func TestTuitionInfo_AmountDecimal(t *testing.T) {
	d, err := TuitionInfo{Amount: "5000000"}.AmountDecimal()
	require.NoError(t, err)
	assert.Equal(t, "5000000", d.String())

	_, err = TuitionInfo{Amount: "5,000,000"}.AmountDecimal()
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestErrorClassifiers(t *testing.T) {
	assert.True(t, IsNotFoundError(ErrTuitionNotFound))
	assert.True(t, IsNotFoundError(ErrOTPNotFound))
	assert.False(t, IsNotFoundError(ErrTransport))

	assert.True(t, IsValidationError(ErrInvalidOTPCode))
	assert.False(t, IsValidationError(ErrOTPInvalid))

	assert.True(t, IsTerminalOTPError(ErrOTPMaxAttempts))
	assert.True(t, IsTerminalOTPError(ErrOTPExpired))
	assert.False(t, IsTerminalOTPError(ErrOTPInvalid))
}
