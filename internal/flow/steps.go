package flow

import (
	"log/slog"

	"github.com/robbyt/go-fsm"

	"github.com/tdtu-ibank/payflow/internal/models"
)

// ==============================================
// STEP TRANSITION TABLE
// ==============================================

// Error alias from go-fsm so callers can classify rejected transitions.
var ErrInvalidStepTransition = fsm.ErrInvalidStateTransition

// StepTransitions defines which step changes the flow may commit. Lookup
// results and failed verifications mutate state within a step and do not
// appear here.
var StepTransitions = map[string][]string{
	// Submitting a validated form issues the OTP challenge.
	models.StepForm.String(): {models.StepOTP.String()},

	// The challenge ends in success, an unrecoverable error, or a confirmed
	// cancel back to a fresh form. Attempts-exhausted is a view of the otp
	// step, not a step of its own.
	models.StepOTP.String(): {
		models.StepSuccess.String(),
		models.StepError.String(),
		models.StepForm.String(),
	},

	// Terminal screens only offer "start a new payment".
	models.StepSuccess.String(): {models.StepForm.String()},
	models.StepError.String():   {models.StepForm.String()},
}

// newStepMachine builds the transition guard anchored at the given step.
// Restoration rebuilds the machine at the restored step rather than replaying
// transitions into it.
func newStepMachine(handler slog.Handler, initial models.PaymentStep) (*fsm.Machine, error) {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return fsm.New(handler, initial.String(), StepTransitions)
}
