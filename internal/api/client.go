package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/tdtu-ibank/payflow/internal/models"
)

// ==============================================
// BANK GATEWAY CLIENT
// ==============================================

const defaultTimeout = 10 * time.Second

// Client talks to the iBanking gateway. It translates HTTP statuses into the
// module's sentinel errors so callers branch on errors.Is instead of status
// codes.
type Client struct {
	http *resty.Client
	log  zerolog.Logger
}

// NewClient builds a gateway client rooted at baseURL. A zero timeout falls
// back to the default.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	hc := resty.New()
	hc.SetBaseURL(baseURL)
	hc.SetTimeout(timeout)
	hc.SetHeader("Accept", "application/json")
	return &Client{http: hc, log: log}
}

// ==============================================
// TUITION
// ==============================================

// LookupTuition fetches the tuition record for a student id.
func (c *Client) LookupTuition(ctx context.Context, studentID string) (*models.TuitionInfo, error) {
	resp, err := c.http.R().SetContext(ctx).
		SetPathParam("studentID", studentID).
		Get("/api/v1/tuition/{studentID}")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	if resp.IsError() {
		return nil, c.mapStatus(resp, models.ErrTuitionNotFound)
	}

	dto, err := decodeBody[tuitionDTO](resp.Body())
	if err != nil {
		return nil, err
	}
	return dto.toModel(), nil
}

// ==============================================
// PAYMENTS
// ==============================================

// CreatePayment opens a payment for the given tuition and returns its id.
func (c *Client) CreatePayment(ctx context.Context, studentID, amount string) (string, error) {
	resp, err := c.http.R().SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(createPaymentRequest{StudentID: studentID, Amount: amount}).
		Post("/api/v1/payments")
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	if resp.IsError() {
		if resp.StatusCode() == http.StatusBadRequest || resp.StatusCode() == http.StatusUnprocessableEntity {
			return "", fmt.Errorf("%w: %s", models.ErrPaymentRejected, errorMessage(resp.Body()))
		}
		return "", c.mapStatus(resp, models.ErrTuitionNotFound)
	}

	dto, err := decodeBody[createPaymentDTO](resp.Body())
	if err != nil {
		return "", err
	}
	if dto.PaymentID == "" {
		return "", fmt.Errorf("%w: response missing payment id", models.ErrTransport)
	}
	return dto.PaymentID, nil
}

// CancelPayment abandons a pending payment server-side.
func (c *Client) CancelPayment(ctx context.Context, paymentID string) error {
	resp, err := c.http.R().SetContext(ctx).
		SetPathParam("paymentID", paymentID).
		Post("/api/v1/payments/{paymentID}/cancel")
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	if resp.IsError() {
		return c.mapStatus(resp, models.ErrPaymentNotFound)
	}
	return nil
}

// ==============================================
// OTP CHALLENGE
// ==============================================

// GetOTPInfo fetches the server-side view of the active challenge.
func (c *Client) GetOTPInfo(ctx context.Context, paymentID string) (*models.OTPInfo, error) {
	resp, err := c.http.R().SetContext(ctx).
		SetPathParam("paymentID", paymentID).
		Get("/api/v1/payments/{paymentID}/otp")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	if resp.IsError() {
		return nil, c.mapStatus(resp, models.ErrOTPNotFound)
	}

	dto, err := decodeBody[otpInfoDTO](resp.Body())
	if err != nil {
		return nil, err
	}
	return dto.toModel(), nil
}

// VerifyOTP submits one code. A 2xx with verified=false is a mismatch, not
// an error.
func (c *Client) VerifyOTP(ctx context.Context, paymentID, code string) (bool, error) {
	resp, err := c.http.R().SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetPathParam("paymentID", paymentID).
		SetBody(verifyOTPRequest{Code: code}).
		Post("/api/v1/payments/{paymentID}/otp/verify")
	if err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	if resp.IsError() {
		// Gateways that signal a mismatch with 400 still mean "wrong code,
		// challenge open"; that is a mismatch result, not transport trouble.
		if resp.StatusCode() == http.StatusBadRequest {
			return false, nil
		}
		return false, c.mapStatus(resp, models.ErrOTPNotFound)
	}

	dto, err := decodeBody[verifyOTPDTO](resp.Body())
	if err != nil {
		return false, err
	}
	return dto.Verified, nil
}

// ResendOTP requests a fresh code for the payment.
func (c *Client) ResendOTP(ctx context.Context, paymentID string) error {
	resp, err := c.http.R().SetContext(ctx).
		SetPathParam("paymentID", paymentID).
		Post("/api/v1/payments/{paymentID}/otp/resend")
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	if resp.IsError() {
		return c.mapStatus(resp, models.ErrOTPNotFound)
	}
	return nil
}

// ==============================================
// PROFILE
// ==============================================

// FetchBalance returns the payer's available balance as a decimal string.
func (c *Client) FetchBalance(ctx context.Context) (string, error) {
	resp, err := c.http.R().SetContext(ctx).
		Get("/api/v1/profile/balance")
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	if resp.IsError() {
		return "", c.mapStatus(resp, models.ErrTransport)
	}

	dto, err := decodeBody[balanceDTO](resp.Body())
	if err != nil {
		return "", err
	}
	return dto.Balance, nil
}

// ==============================================
// SAGA AUDIT TRAIL
// ==============================================

// ListSagas returns every saga record, newest first.
func (c *Client) ListSagas(ctx context.Context) ([]*models.SagaRecord, error) {
	resp, err := c.http.R().SetContext(ctx).
		Get("/api/v1/sagas")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	if resp.IsError() {
		return nil, c.mapStatus(resp, models.ErrSagaNotFound)
	}

	dtos, err := decodeBody[[]sagaRecordDTO](resp.Body())
	if err != nil {
		return nil, err
	}
	records := make([]*models.SagaRecord, 0, len(*dtos))
	for i := range *dtos {
		records = append(records, (*dtos)[i].toModel())
	}
	return records, nil
}

// GetSaga returns the audit trail for one payment id.
func (c *Client) GetSaga(ctx context.Context, paymentID string) (*models.SagaRecord, error) {
	resp, err := c.http.R().SetContext(ctx).
		SetPathParam("paymentID", paymentID).
		Get("/api/v1/payments/{paymentID}/saga")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	if resp.IsError() {
		return nil, c.mapStatus(resp, models.ErrSagaNotFound)
	}

	dto, err := decodeBody[sagaRecordDTO](resp.Body())
	if err != nil {
		return nil, err
	}
	return dto.toModel(), nil
}

// PaymentHistory returns the payment listing for the history screen.
func (c *Client) PaymentHistory(ctx context.Context) ([]models.PaymentSummary, error) {
	resp, err := c.http.R().SetContext(ctx).
		Get("/api/v1/payments/history")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	if resp.IsError() {
		return nil, c.mapStatus(resp, models.ErrTransport)
	}

	dtos, err := decodeBody[[]paymentSummaryDTO](resp.Body())
	if err != nil {
		return nil, err
	}
	summaries := make([]models.PaymentSummary, 0, len(*dtos))
	for i := range *dtos {
		summaries = append(summaries, (*dtos)[i].toModel())
	}
	return summaries, nil
}

// ==============================================
// ERROR MAPPING
// ==============================================

// mapStatus converts a non-2xx response into a sentinel error. notFound names
// the resource-specific error for 404s.
func (c *Client) mapStatus(resp *resty.Response, notFound error) error {
	status := resp.StatusCode()
	c.log.Debug().Int("status", status).Str("url", resp.Request.URL).
		Msg("[API] gateway returned error status")

	switch status {
	case http.StatusNotFound:
		return notFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return models.ErrUnauthorized
	case http.StatusTooManyRequests:
		return models.ErrRateLimited
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", models.ErrPaymentRejected, errorMessage(resp.Body()))
	}
	return fmt.Errorf("%w: status %d", models.ErrTransport, status)
}

// errorMessage pulls the human-readable message out of an error body, if any.
func errorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Message != "" {
			return eb.Message
		}
		if eb.Error != "" {
			return eb.Error
		}
	}
	return "request rejected"
}
