package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robbyt/go-fsm"
	"github.com/rs/zerolog"

	"github.com/tdtu-ibank/payflow/internal/models"
	"github.com/tdtu-ibank/payflow/internal/store"
)

// ==============================================
// CONTROLLER OPTIONS
// ==============================================

type Options struct {
	Clock          func() time.Time // defaults to time.Now
	TickInterval   time.Duration    // defaults to 1s; tests shrink it
	OTPTTL         time.Duration    // defaults to models.OTPTTL
	ResendCooldown time.Duration    // defaults to models.OTPResendCooldown
	LookupDebounce time.Duration    // defaults to models.LookupDebounce
	SlogHandler    slog.Handler     // handed to the step machine
}

func (o *Options) applyDefaults() {
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.OTPTTL <= 0 {
		o.OTPTTL = models.OTPTTL
	}
	if o.ResendCooldown <= 0 {
		o.ResendCooldown = models.OTPResendCooldown
	}
	if o.LookupDebounce <= 0 {
		o.LookupDebounce = models.LookupDebounce
	}
}

// ==============================================
// RENDER MODEL
// ==============================================

// View is the one-way render model handed to the presentation layer. It is a
// copy; mutating it has no effect on the flow.
type View struct {
	Step              models.PaymentStep
	PaymentID         string
	TuitionInfo       *models.TuitionInfo
	Error             string
	AvailableBalance  string
	AttemptsRemaining int
	OTPRemaining      time.Duration
	ResendCooldown    time.Duration
	Exhausted         bool
	CancelPrompt      bool
}

// ==============================================
// CONTROLLER
// ==============================================

// Controller is the payment flow state machine. It exclusively owns the
// in-memory PaymentFlowState; the durable store only ever holds a serialized
// mirror written on committed transitions. All event entry points serialize
// on one mutex, so a timer firing mid-transition can never observe or persist
// a half-applied state.
type Controller struct {
	api     Collaborator
	local   store.Store // durable, survives restarts
	session store.Store // process-scoped, holds the navigation flag
	log     zerolog.Logger
	opts    Options

	mu      sync.Mutex
	machine *fsm.Machine
	state   models.PaymentFlowState
	balance string

	limiter      *AttemptLimiter
	exhausted    bool
	cancelPrompt bool

	otpTimer        *DeadlineTimer
	resendTimer     *DeadlineTimer
	otpRemaining    time.Duration
	resendRemaining time.Duration
	timerGen        uint64 // bumped when the active payment changes

	studentID     string
	lookupSeq     uint64 // stale lookup-response guard
	pendingLookup *time.Timer
}

// NewController builds a controller anchored at a fresh form. Call Restore
// afterwards to apply the mount policy against any persisted snapshot.
func NewController(api Collaborator, local, session store.Store, log zerolog.Logger, opts Options) (*Controller, error) {
	opts.applyDefaults()

	machine, err := newStepMachine(opts.SlogHandler, models.StepForm)
	if err != nil {
		return nil, fmt.Errorf("failed to build step machine: %w", err)
	}

	return &Controller{
		api:     api,
		local:   local,
		session: session,
		log:     log,
		opts:    opts,
		machine: machine,
		state:   models.PaymentFlowState{Step: models.StepForm},
	}, nil
}

// View returns a copy of the current render model.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	v := View{
		Step:             c.state.Step,
		PaymentID:        c.state.PaymentID,
		Error:            c.state.Error,
		AvailableBalance: c.balance,
		OTPRemaining:     c.otpRemaining,
		ResendCooldown:   c.resendRemaining,
		Exhausted:        c.exhausted,
		CancelPrompt:     c.cancelPrompt,
	}
	if c.state.TuitionInfo != nil {
		info := *c.state.TuitionInfo
		v.TuitionInfo = &info
	}
	if c.limiter != nil {
		v.AttemptsRemaining = c.limiter.Remaining()
	} else {
		v.AttemptsRemaining = models.OTPMaxAttempts
	}
	return v
}

// Close tears down timers and any pending debounced lookup.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimersLocked()
	if c.pendingLookup != nil {
		c.pendingLookup.Stop()
		c.pendingLookup = nil
	}
}

// ==============================================
// STUDENT LOOKUP (form step)
// ==============================================

// InputStudentID reacts to each edit of the student id field. Inputs of six
// or more characters schedule a debounced tuition lookup; shorter inputs
// clear any previously fetched tuition info. Only the response matching the
// latest input is ever applied.
func (c *Controller) InputStudentID(studentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.studentID = studentID
	c.lookupSeq++
	if c.pendingLookup != nil {
		c.pendingLookup.Stop()
		c.pendingLookup = nil
	}

	if len(studentID) < models.MinStudentIDLen {
		c.state.TuitionInfo = nil
		c.state.Error = ""
		return
	}

	seq := c.lookupSeq
	c.pendingLookup = time.AfterFunc(c.opts.LookupDebounce, func() {
		c.lookupTuition(seq, studentID)
	})
}

func (c *Controller) lookupTuition(seq uint64, studentID string) {
	info, err := c.api.LookupTuition(context.Background(), studentID)

	c.mu.Lock()
	defer c.mu.Unlock()

	// A newer input superseded this request; its response must not win.
	if seq != c.lookupSeq || c.state.Step != models.StepForm {
		return
	}

	if err != nil {
		c.log.Warn().Err(err).Str("student_id", studentID).Msg("[LOOKUP] tuition lookup failed")
		c.state.TuitionInfo = nil
		if models.IsNotFoundError(err) {
			c.state.Error = "No tuition record found for this student id"
		} else {
			c.state.Error = "Unable to load tuition info, please try again"
		}
		return
	}

	c.log.Info().Str("student_id", studentID).Str("amount", info.Amount).Msg("[LOOKUP] tuition info loaded")
	tuition := *info
	c.state.TuitionInfo = &tuition
	c.state.Error = ""
}

// ==============================================
// SUBMIT (form -> otp)
// ==============================================

// Submit runs the balance gate and creates the payment. On success the flow
// commits form->otp, persists the snapshot, and starts the OTP challenge
// timers. Validation and rejection failures keep the form step with an inline
// error.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Step != models.StepForm {
		c.mu.Unlock()
		return ErrInvalidStepTransition
	}
	if c.state.TuitionInfo == nil {
		c.mu.Unlock()
		return models.ErrNoTuitionSelected
	}
	tuition := *c.state.TuitionInfo
	balance := c.balance
	c.mu.Unlock()

	if balance == "" {
		bal, err := c.api.FetchBalance(ctx)
		if err != nil {
			c.setFormError("Unable to check your balance, please try again")
			return fmt.Errorf("%w: balance fetch: %v", models.ErrTransport, err)
		}
		balance = bal
		c.mu.Lock()
		c.balance = bal
		c.mu.Unlock()
	}

	sufficient, err := models.CompareBalance(balance, tuition.Amount)
	if err != nil {
		c.setFormError("Tuition amount could not be parsed")
		return err
	}
	if !sufficient {
		c.setFormError("Your balance does not cover this tuition amount")
		return models.ErrInsufficientBalance
	}

	paymentID, err := c.api.CreatePayment(ctx, tuition.StudentID, tuition.Amount)
	if err != nil {
		c.log.Warn().Err(err).Str("student_id", tuition.StudentID).Msg("[SUBMIT] payment creation failed")
		c.setFormError("Payment could not be created, please try again")
		return err
	}

	c.mu.Lock()
	if c.state.Step != models.StepForm || c.state.TuitionInfo == nil ||
		c.state.TuitionInfo.StudentID != tuition.StudentID {
		// Flow moved on while the request was in flight; drop the result.
		c.mu.Unlock()
		c.log.Warn().Str("payment_id", paymentID).Msg("[SUBMIT] stale creation response dropped")
		return nil
	}

	if err := c.transitionLocked(models.StepOTP); err != nil {
		c.mu.Unlock()
		return err
	}
	c.state.PaymentID = paymentID
	c.state.Error = ""
	c.persistLocked()
	c.log.Info().Str("payment_id", paymentID).Str("student_id", tuition.StudentID).
		Str("amount", tuition.Amount).Msg("[SUBMIT] payment created, challenge issued")
	c.mu.Unlock()

	c.beginChallenge(ctx, paymentID)
	return nil
}

func (c *Controller) setFormError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Step == models.StepForm {
		c.state.Error = msg
	}
}

// beginChallenge seeds the attempt limiter and both deadline timers for a
// freshly created or resumed payment. Persisted absolute instants that are
// still in the future win over fresh ones, so a resumed challenge continues
// its countdown instead of resetting.
func (c *Controller) beginChallenge(ctx context.Context, paymentID string) {
	info, infoErr := c.api.GetOTPInfo(ctx, paymentID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Step != models.StepOTP || c.state.PaymentID != paymentID {
		return
	}

	if infoErr != nil {
		if models.IsNotFoundError(infoErr) {
			// The challenge does not exist server-side; nothing to verify
			// against, so the payment is unrecoverable.
			c.log.Error().Err(infoErr).Str("payment_id", paymentID).Msg("[OTP] challenge missing server-side")
			c.failChallengeLocked("The OTP challenge could not be found, start a new payment")
			return
		}
		// Transport trouble: proceed on local state, the deadline is ours.
		c.log.Warn().Err(infoErr).Str("payment_id", paymentID).Msg("[OTP] challenge info unavailable")
	}

	c.limiter = NewAttemptLimiter(c.local, paymentID, c.log)
	if info != nil {
		c.limiter.SyncRemaining(info.AttemptsRemaining)
	}
	if c.limiter.Exhausted() {
		c.exhaustLocked()
		return
	}

	now := c.opts.Clock()

	expireAt, ok := store.LoadDeadline(c.local, store.ExpireKey(paymentID))
	if !ok || !expireAt.After(now) {
		expireAt = now.Add(c.opts.OTPTTL)
		if err := store.SaveDeadline(c.local, store.ExpireKey(paymentID), expireAt); err != nil {
			c.log.Warn().Err(err).Str("payment_id", paymentID).Msg("[OTP] failed to persist expiry instant")
		}
	}

	resendUntil, ok := store.LoadDeadline(c.local, store.ResendKey(paymentID))
	if !ok || !resendUntil.After(now) {
		resendUntil = now.Add(c.opts.ResendCooldown)
		if err := store.SaveDeadline(c.local, store.ResendKey(paymentID), resendUntil); err != nil {
			c.log.Warn().Err(err).Str("payment_id", paymentID).Msg("[OTP] failed to persist resend cooldown")
		}
	}

	c.startTimersLocked(expireAt, resendUntil)
}

// ==============================================
// TIMERS
// ==============================================

func (c *Controller) startTimersLocked(expireAt, resendUntil time.Time) {
	c.stopTimersLocked()
	gen := c.timerGen
	c.otpRemaining = expireAt.Sub(c.opts.Clock())
	c.resendRemaining = resendUntil.Sub(c.opts.Clock())
	if c.resendRemaining < 0 {
		c.resendRemaining = 0
	}

	c.otpTimer = newDeadlineTimer(expireAt, c.opts.TickInterval, c.opts.Clock,
		func(remaining time.Duration) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if gen == c.timerGen {
				c.otpRemaining = remaining
			}
		},
		func() {
			c.handleExpiry(gen)
		},
	)

	c.resendTimer = newDeadlineTimer(resendUntil, c.opts.TickInterval, c.opts.Clock,
		func(remaining time.Duration) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if gen == c.timerGen {
				c.resendRemaining = remaining
			}
		},
		func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if gen == c.timerGen {
				c.resendRemaining = 0
				if c.state.PaymentID != "" {
					c.local.Remove(store.ResendKey(c.state.PaymentID))
				}
			}
		},
	)
}

// stopTimersLocked bumps the generation so ticks already in flight against
// the old payment id are discarded.
func (c *Controller) stopTimersLocked() {
	c.timerGen++
	if c.otpTimer != nil {
		c.otpTimer.Stop()
		c.otpTimer = nil
	}
	if c.resendTimer != nil {
		c.resendTimer.Stop()
		c.resendTimer = nil
	}
}

// handleExpiry is the deadline timer's expiry callback: the OTP is void and
// the payment must be abandoned.
func (c *Controller) handleExpiry(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.timerGen || c.state.Step != models.StepOTP {
		return
	}
	c.log.Info().Str("payment_id", c.state.PaymentID).Msg("[OTP] challenge expired")
	c.failChallengeLocked("OTP expired, start a new payment")
}

// failChallengeLocked commits otp -> error and erases every per-payment key.
func (c *Controller) failChallengeLocked(msg string) {
	paymentID := c.state.PaymentID
	c.stopTimersLocked()
	store.ClearPayment(c.local, paymentID)
	c.limiter = nil
	c.otpRemaining = 0
	c.resendRemaining = 0
	c.cancelPrompt = false

	if err := c.transitionLocked(models.StepError); err != nil {
		c.log.Error().Err(err).Msg("[FLOW] failed to commit error step")
		return
	}
	c.state.PaymentID = ""
	c.state.TuitionInfo = nil
	c.state.Error = msg
	c.persistLocked()
}

// ==============================================
// VERIFY (otp step)
// ==============================================

// Verify evaluates one OTP attempt. A match commits otp -> success and
// erases all per-payment keys; a mismatch or transport failure consumes one
// attempt, and the fifth consumed attempt voids the payment into the
// attempts-exhausted view.
func (c *Controller) Verify(ctx context.Context, code string) error {
	if !isOTPCode(code) {
		return models.ErrInvalidOTPCode
	}

	c.mu.Lock()
	if c.state.Step != models.StepOTP || c.exhausted {
		c.mu.Unlock()
		return ErrInvalidStepTransition
	}
	if c.limiter == nil {
		c.limiter = NewAttemptLimiter(c.local, c.state.PaymentID, c.log)
	}
	paymentID := c.state.PaymentID
	c.mu.Unlock()

	verified, err := c.api.VerifyOTP(ctx, paymentID, code)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Step != models.StepOTP || c.state.PaymentID != paymentID {
		return nil
	}

	if err == nil && verified {
		c.log.Info().Str("payment_id", paymentID).Msg("[VERIFY] OTP accepted, payment confirmed")
		c.stopTimersLocked()
		store.ClearPayment(c.local, paymentID)
		c.limiter = nil
		c.otpRemaining = 0
		c.resendRemaining = 0
		c.cancelPrompt = false

		if terr := c.transitionLocked(models.StepSuccess); terr != nil {
			return terr
		}
		c.state.Error = ""
		c.persistLocked()

		// Balance refresh is best-effort; the payment already succeeded.
		go c.refreshBalance(context.Background())
		return nil
	}

	if err != nil {
		c.log.Warn().Err(err).Str("payment_id", paymentID).Msg("[VERIFY] verification request failed")
	}

	remaining := c.limiter.RecordFailure()
	if c.limiter.Exhausted() {
		c.log.Info().Str("payment_id", paymentID).Msg("[VERIFY] attempt budget exhausted, payment voided")
		c.exhaustLocked()
		return models.ErrOTPMaxAttempts
	}

	c.state.Error = fmt.Sprintf("Incorrect OTP. %d attempts remaining.", remaining)
	c.log.Info().Str("payment_id", paymentID).Int("remaining", remaining).Msg("[VERIFY] OTP rejected")
	return models.ErrOTPInvalid
}

// exhaustLocked voids the payment after the attempt budget is spent. The
// step stays otp so the attempts-exhausted view renders, but every
// per-payment key is erased and only "start a new payment" remains.
func (c *Controller) exhaustLocked() {
	paymentID := c.state.PaymentID
	c.stopTimersLocked()
	store.ClearPayment(c.local, paymentID)
	c.limiter = nil
	c.exhausted = true
	c.otpRemaining = 0
	c.resendRemaining = 0
	c.cancelPrompt = false
	c.state.Error = ""
}

func (c *Controller) refreshBalance(ctx context.Context) {
	bal, err := c.api.FetchBalance(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("[BALANCE] refresh failed after payment")
		return
	}
	c.mu.Lock()
	c.balance = bal
	c.mu.Unlock()
}

// ==============================================
// RESEND (otp step)
// ==============================================

// Resend requests a fresh OTP once the cooldown has elapsed, refreshes the
// attempts-remaining view from the server, and restarts the cooldown from a
// new absolute instant.
func (c *Controller) Resend(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Step != models.StepOTP || c.exhausted {
		c.mu.Unlock()
		return ErrInvalidStepTransition
	}
	if c.resendRemaining > 0 {
		c.mu.Unlock()
		return models.ErrOTPResendCooldown
	}
	paymentID := c.state.PaymentID
	c.mu.Unlock()

	if err := c.api.ResendOTP(ctx, paymentID); err != nil {
		c.log.Warn().Err(err).Str("payment_id", paymentID).Msg("[RESEND] resend failed")
		c.mu.Lock()
		if c.state.Step == models.StepOTP && c.state.PaymentID == paymentID {
			c.state.Error = "Could not resend the OTP, please try again"
		}
		c.mu.Unlock()
		return err
	}

	info, err := c.api.GetOTPInfo(ctx, paymentID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Step != models.StepOTP || c.state.PaymentID != paymentID {
		return nil
	}

	if err != nil {
		c.log.Warn().Err(err).Str("payment_id", paymentID).Msg("[RESEND] attempts refresh failed")
	} else if c.limiter != nil {
		c.limiter.SyncRemaining(info.AttemptsRemaining)
		if c.limiter.Exhausted() {
			c.exhaustLocked()
			return models.ErrOTPMaxAttempts
		}
	}

	until := c.opts.Clock().Add(c.opts.ResendCooldown)
	if serr := store.SaveDeadline(c.local, store.ResendKey(paymentID), until); serr != nil {
		c.log.Warn().Err(serr).Str("payment_id", paymentID).Msg("[RESEND] failed to persist cooldown")
	}
	c.restartResendTimerLocked(until)
	c.state.Error = ""
	c.log.Info().Str("payment_id", paymentID).Msg("[RESEND] new OTP requested")
	return nil
}

func (c *Controller) restartResendTimerLocked(until time.Time) {
	if c.resendTimer != nil {
		c.resendTimer.Stop()
	}
	gen := c.timerGen
	c.resendRemaining = until.Sub(c.opts.Clock())
	c.resendTimer = newDeadlineTimer(until, c.opts.TickInterval, c.opts.Clock,
		func(remaining time.Duration) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if gen == c.timerGen {
				c.resendRemaining = remaining
			}
		},
		func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if gen == c.timerGen {
				c.resendRemaining = 0
				if c.state.PaymentID != "" {
					c.local.Remove(store.ResendKey(c.state.PaymentID))
				}
			}
		},
	)
}

// ==============================================
// CANCEL (otp step)
// ==============================================

// RequestCancel opens the confirmation prompt.
func (c *Controller) RequestCancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Step == models.StepOTP && !c.exhausted {
		c.cancelPrompt = true
	}
}

// DismissCancel closes the confirmation prompt and resumes the challenge.
func (c *Controller) DismissCancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelPrompt = false
}

// ConfirmCancel abandons the payment. Local cancellation is unconditional:
// per-payment keys are erased and the flow returns to a fresh form even when
// the collaborator call fails, because the client must never keep pointing at
// a payment it has abandoned. The collaborator error is returned for display
// only.
func (c *Controller) ConfirmCancel(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Step != models.StepOTP {
		c.mu.Unlock()
		return ErrInvalidStepTransition
	}
	paymentID := c.state.PaymentID
	c.mu.Unlock()

	apiErr := c.api.CancelPayment(ctx, paymentID)
	if apiErr != nil {
		c.log.Warn().Err(apiErr).Str("payment_id", paymentID).Msg("[CANCEL] collaborator cancel failed, clearing locally anyway")
	} else {
		c.log.Info().Str("payment_id", paymentID).Msg("[CANCEL] payment cancelled")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.PaymentID != paymentID {
		return apiErr
	}

	c.stopTimersLocked()
	store.ClearPayment(c.local, paymentID)
	c.limiter = nil
	c.exhausted = false
	c.cancelPrompt = false
	c.otpRemaining = 0
	c.resendRemaining = 0

	if err := c.transitionLocked(models.StepForm); err != nil {
		return err
	}
	c.state = models.PaymentFlowState{Step: models.StepForm}
	c.studentID = ""
	c.lookupSeq++
	return apiErr
}

// ==============================================
// RESET (terminal screens)
// ==============================================

// Reset starts a new payment from success, error, or the attempts-exhausted
// view. Terminal dispositions already erased per-payment keys; Reset only has
// to drop the snapshot and return to a clean form.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state.Step {
	case models.StepSuccess, models.StepError:
	case models.StepOTP:
		if !c.exhausted {
			return ErrInvalidStepTransition
		}
	default:
		return ErrInvalidStepTransition
	}

	c.stopTimersLocked()
	store.ClearPayment(c.local, c.state.PaymentID)
	c.limiter = nil
	c.exhausted = false
	c.cancelPrompt = false
	c.otpRemaining = 0
	c.resendRemaining = 0

	if err := c.transitionLocked(models.StepForm); err != nil {
		return err
	}
	c.state = models.PaymentFlowState{Step: models.StepForm}
	c.studentID = ""
	c.lookupSeq++
	return nil
}

// ==============================================
// NAVIGATION
// ==============================================

// LeaveForNavigation marks an internal navigation away from the flow screen.
// Timers are stopped; the absolute instants stay persisted, so returning
// resumes the countdown at the correct remaining value.
func (c *Controller) LeaveForNavigation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	MarkNavigating(c.session)
	c.stopTimersLocked()
}

// ==============================================
// RESTORATION (mount policy)
// ==============================================

// Restore applies the mount policy against the persisted snapshot. Corrupt
// or policy-rejected snapshots silently fall back to a fresh form; the user
// never sees persistence trouble as an error.
func (c *Controller) Restore(ctx context.Context) error {
	navReturn := ConsumeNavigationReturn(c.session)

	snap, err := store.LoadFlowState(c.local)
	if err != nil || snap == nil {
		if err != nil {
			c.log.Warn().Err(err).Msg("[RESTORE] discarding corrupt snapshot")
		}
		return c.restoreFresh()
	}

	switch snap.Step {
	case models.StepForm:
		return c.restoreAt(*snap)

	case models.StepSuccess:
		return c.restoreAt(*snap)

	case models.StepError:
		// A deliberate pause-and-resume keeps the error screen; a reload
		// starts over.
		if navReturn {
			return c.restoreAt(*snap)
		}
		store.ClearFlowState(c.local)
		return c.restoreFresh()

	case models.StepOTP:
		// A reload demands stronger internal consistency than a navigation
		// return before the snapshot is trusted.
		if !navReturn && snap.TuitionInfo == nil {
			c.log.Info().Str("payment_id", snap.PaymentID).Msg("[RESTORE] otp snapshot incomplete after reload, discarding")
			store.ClearPayment(c.local, snap.PaymentID)
			return c.restoreFresh()
		}
		if !c.challengeStillOpen(ctx, snap.PaymentID) {
			store.ClearPayment(c.local, snap.PaymentID)
			return c.restoreFresh()
		}
		if err := c.restoreAt(*snap); err != nil {
			return err
		}
		c.beginChallenge(ctx, snap.PaymentID)
		return nil

	default:
		// Unknown step values are caught by Validate inside LoadFlowState,
		// but stay defensive about the zero value.
		store.ClearFlowState(c.local)
		return c.restoreFresh()
	}
}

// challengeStillOpen cross-checks the server's OTP status before resuming
// into otp, so the user is not handed a resumed screen that immediately
// re-expires. The probe is best-effort: transport trouble keeps the
// client-optimistic resume, since the server-side deadline runs regardless.
func (c *Controller) challengeStillOpen(ctx context.Context, paymentID string) bool {
	info, err := c.api.GetOTPInfo(ctx, paymentID)
	if err != nil {
		if models.IsNotFoundError(err) {
			c.log.Info().Str("payment_id", paymentID).Msg("[RESTORE] challenge gone server-side, discarding snapshot")
			return false
		}
		c.log.Warn().Err(err).Str("payment_id", paymentID).Msg("[RESTORE] status probe failed, resuming optimistically")
		return true
	}
	if isTerminalOTPStatus(info.Status) {
		c.log.Info().Str("payment_id", paymentID).Str("status", info.Status).Msg("[RESTORE] challenge already settled, discarding snapshot")
		return false
	}
	if !info.Expiry.IsZero() && !info.Expiry.After(c.opts.Clock()) {
		c.log.Info().Str("payment_id", paymentID).Msg("[RESTORE] challenge already expired server-side, discarding snapshot")
		return false
	}
	return true
}

func (c *Controller) restoreFresh() error {
	return c.restoreAt(models.PaymentFlowState{Step: models.StepForm})
}

func (c *Controller) restoreAt(snap models.PaymentFlowState) error {
	machine, err := newStepMachine(c.opts.SlogHandler, snap.Step)
	if err != nil {
		return fmt.Errorf("failed to rebuild step machine: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimersLocked()
	c.machine = machine
	c.state = snap
	c.limiter = nil
	c.exhausted = false
	c.cancelPrompt = false
	c.otpRemaining = 0
	c.resendRemaining = 0
	c.log.Info().Str("step", snap.Step.String()).Str("payment_id", snap.PaymentID).Msg("[RESTORE] flow restored")
	return nil
}

// ==============================================
// HELPERS
// ==============================================

func (c *Controller) transitionLocked(to models.PaymentStep) error {
	if err := c.machine.Transition(to.String()); err != nil {
		c.log.Error().Err(err).Str("from", c.state.Step.String()).Str("to", to.String()).
			Msg("[FLOW] illegal step transition rejected")
		return err
	}
	c.state.Step = to
	return nil
}

func (c *Controller) persistLocked() {
	if err := store.SaveFlowState(c.local, c.state); err != nil {
		c.log.Warn().Err(err).Msg("[FLOW] failed to persist snapshot")
	}
}

func isOTPCode(code string) bool {
	if len(code) != models.OTPLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// isTerminalOTPStatus reports whether a server-reported challenge status can
// no longer accept verification.
func isTerminalOTPStatus(status string) bool {
	switch status {
	case "expired", "verified", "completed", "cancelled", "failed":
		return true
	}
	return false
}
