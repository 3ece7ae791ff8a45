package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tdtu-ibank/payflow/internal/api"
	"github.com/tdtu-ibank/payflow/internal/config"
	"github.com/tdtu-ibank/payflow/internal/flow"
	"github.com/tdtu-ibank/payflow/internal/models"
	"github.com/tdtu-ibank/payflow/internal/saga"
	"github.com/tdtu-ibank/payflow/internal/store"
)

func main() {
	cfg := config.LoadConfig()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()

	local, err := store.NewFileStore(cfg.StateDir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.StateDir).Msg("failed to open state directory")
	}
	session := store.NewMemStore()

	client := api.NewClient(cfg.APIBaseURL, cfg.APITimeout, logger)
	viewer := saga.NewViewer(client, logger)

	ctrl, err := flow.NewController(client, local, session, logger, flow.Options{
		OTPTTL:         cfg.OTPTTL,
		ResendCooldown: cfg.ResendCooldown,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build payment flow")
	}
	defer ctrl.Close()

	ctx := context.Background()
	if err := ctrl.Restore(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to restore payment flow")
	}

	runShell(ctx, ctrl, viewer)
}

// ==============================================
// INTERACTIVE SHELL
// ==============================================

func runShell(ctx context.Context, ctrl *flow.Controller, viewer *saga.Viewer) {
	fmt.Println("TDTU tuition payment — type 'help' for commands")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		render(ctrl.View())
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch strings.ToLower(input) {
		case "quit", "exit":
			return
		case "help":
			printHelp()
		case "pay":
			if err := ctrl.Submit(ctx); err != nil {
				printErr(err)
			}
		case "resend":
			if err := ctrl.Resend(ctx); err != nil {
				printErr(err)
			}
		case "cancel":
			ctrl.RequestCancel()
		case "yes":
			if err := ctrl.ConfirmCancel(ctx); err != nil {
				fmt.Println("  (server cancel failed, payment abandoned locally)")
			}
		case "no":
			ctrl.DismissCancel()
		case "new":
			if err := ctrl.Reset(); err != nil {
				printErr(err)
			}
		case "history":
			showHistory(ctx, ctrl, viewer)
		default:
			handleFreeInput(ctx, ctrl, input)
		}
	}
}

// handleFreeInput routes untagged input by step: a student id on the form,
// an OTP code on the challenge.
func handleFreeInput(ctx context.Context, ctrl *flow.Controller, input string) {
	switch ctrl.View().Step {
	case models.StepForm:
		ctrl.InputStudentID(input)
	case models.StepOTP:
		if err := ctrl.Verify(ctx, input); err != nil {
			printErr(err)
		}
	default:
		fmt.Println("  unknown command, type 'help'")
	}
}

// showHistory leaves the flow screen for the audit trail, then returns the
// same way an in-app navigation would.
func showHistory(ctx context.Context, ctrl *flow.Controller, viewer *saga.Viewer) {
	ctrl.LeaveForNavigation()

	if err := viewer.Refresh(ctx); err != nil {
		fmt.Println("  could not load history:", err)
	}
	fmt.Println("\n--- Payment history ---")
	history := viewer.History()
	if len(history) == 0 {
		fmt.Println("  (no payments yet)")
	}
	for _, p := range history {
		fmt.Printf("  %s  %s  %-12s %s\n", p.CreatedAt.Format("2006-01-02 15:04"), p.StudentID, p.Status, p.Amount)
	}
	fmt.Println("\n--- Sagas ---")
	for _, s := range viewer.Records() {
		fmt.Printf("  %s  %s\n", s.SagaID, s.Status)
		for _, step := range s.Steps {
			fmt.Printf("    - %-18s %s %s\n", step.Name, step.Status, step.Error)
		}
	}
	fmt.Println()

	if err := ctrl.Restore(ctx); err != nil {
		printErr(err)
	}
}

// ==============================================
// RENDERING
// ==============================================

func render(v flow.View) {
	switch v.Step {
	case models.StepForm:
		fmt.Println("\n[Tuition form]")
		if v.AvailableBalance != "" {
			fmt.Println("  available balance:", v.AvailableBalance)
		}
		if v.TuitionInfo != nil {
			fmt.Printf("  %s — %s — tuition due: %s  (type 'pay' to continue)\n",
				v.TuitionInfo.StudentID, v.TuitionInfo.StudentName, v.TuitionInfo.Amount)
		} else {
			fmt.Println("  enter a student id to look up tuition")
		}
	case models.StepOTP:
		if v.Exhausted {
			fmt.Println("\n[OTP] attempt limit reached, this payment is void. Type 'new' to start over.")
			return
		}
		fmt.Println("\n[OTP challenge]")
		fmt.Printf("  payment %s — %d attempts left — expires in %s\n",
			v.PaymentID, v.AttemptsRemaining, v.OTPRemaining.Round(time.Second))
		if v.ResendCooldown > 0 {
			fmt.Printf("  resend available in %s\n", v.ResendCooldown.Round(time.Second))
		} else {
			fmt.Println("  type 'resend' for a new code")
		}
		if v.CancelPrompt {
			fmt.Println("  abandon this payment? (yes/no)")
		}
	case models.StepSuccess:
		fmt.Println("\n[Success] payment confirmed. Type 'new' to start another.")
	case models.StepError:
		fmt.Println("\n[Failed]", v.Error)
		fmt.Println("  type 'new' to start over")
		return
	}
	if v.Error != "" {
		fmt.Println("  !", v.Error)
	}
}

func printHelp() {
	fmt.Println(`  <student id>  look up tuition (form step)
  pay           submit the payment
  <6 digits>    verify the OTP (challenge step)
  resend        request a new OTP
  cancel        abandon the payment
  new           start a new payment
  history       show payment history and sagas
  quit          exit`)
}

func printErr(err error) {
	switch {
	case models.IsValidationError(err):
		fmt.Println("  !", err)
	case models.IsTerminalOTPError(err):
		fmt.Println("  ! payment voided:", err)
	default:
		fmt.Println("  !", err)
	}
}
