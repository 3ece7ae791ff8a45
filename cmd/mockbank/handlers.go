package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tdtu-ibank/payflow/internal/models"
)

// ==============================================
// HANDLER (HTTP Layer ONLY)
// ==============================================

type bankHandler struct {
	bank *bank
}

func newBankHandler(b *bank) *bankHandler {
	return &bankHandler{bank: b}
}

// ==============================================
// ENDPOINTS
// ==============================================

// LookupTuition handles GET /api/v1/tuition/:student_id
func (h *bankHandler) LookupTuition(c *gin.Context) {
	info, err := h.bank.LookupTuition(c.Param("student_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"student_id":   info.StudentID,
		"student_name": info.StudentName,
		"amount":       info.Amount,
	})
}

// CreatePayment handles POST /api/v1/payments
func (h *bankHandler) CreatePayment(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id" binding:"required"`
		Amount    string `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request", err)
		return
	}

	p, err := h.bank.CreatePayment(req.StudentID, req.Amount)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{
		"payment_id": p.ID,
		"status":     p.Status,
	})
}

// GetOTPInfo handles GET /api/v1/payments/:payment_id/otp
func (h *bankHandler) GetOTPInfo(c *gin.Context) {
	info, err := h.bank.OTPInfo(c.Param("payment_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"payment_id":         info.PaymentID,
		"expires_at":         info.Expiry.Format(time.RFC3339),
		"attempts_remaining": info.AttemptsRemaining,
		"status":             info.Status,
	})
}

// VerifyOTP handles POST /api/v1/payments/:payment_id/otp/verify
func (h *bankHandler) VerifyOTP(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required,len=6"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request", err)
		return
	}

	verified, err := h.bank.VerifyOTP(c.Param("payment_id"), req.Code)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"verified": verified})
}

// ResendOTP handles POST /api/v1/payments/:payment_id/otp/resend
func (h *bankHandler) ResendOTP(c *gin.Context) {
	if err := h.bank.ResendOTP(c.Param("payment_id")); err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"resent": true})
}

// CancelPayment handles POST /api/v1/payments/:payment_id/cancel
func (h *bankHandler) CancelPayment(c *gin.Context) {
	if err := h.bank.CancelPayment(c.Param("payment_id")); err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"cancelled": true})
}

// GetBalance handles GET /api/v1/profile/balance
func (h *bankHandler) GetBalance(c *gin.Context) {
	respondSuccess(c, http.StatusOK, gin.H{
		"balance":  h.bank.Balance(),
		"currency": "VND",
	})
}

// PaymentHistory handles GET /api/v1/payments/history
func (h *bankHandler) PaymentHistory(c *gin.Context) {
	respondSuccess(c, http.StatusOK, toHistoryDTO(h.bank.History()))
}

// ListSagas handles GET /api/v1/sagas
func (h *bankHandler) ListSagas(c *gin.Context) {
	respondSuccess(c, http.StatusOK, toSagaDTOs(h.bank.Sagas()))
}

// GetSaga handles GET /api/v1/payments/:payment_id/saga
func (h *bankHandler) GetSaga(c *gin.Context) {
	s, err := h.bank.SagaForPayment(c.Param("payment_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, toSagaDTO(s))
}

// Health handles GET /health - returns API health status
func (h *bankHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "payflow-mockbank",
		"version": "v1.0.0",
	})
}

// RegisterRoutes wires the bank endpoints
func (h *bankHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/tuition/:student_id", h.LookupTuition)
		v1.POST("/payments", h.CreatePayment)
		v1.GET("/payments/history", h.PaymentHistory)
		v1.GET("/payments/:payment_id/otp", h.GetOTPInfo)
		v1.POST("/payments/:payment_id/otp/verify", h.VerifyOTP)
		v1.POST("/payments/:payment_id/otp/resend", h.ResendOTP)
		v1.POST("/payments/:payment_id/cancel", h.CancelPayment)
		v1.GET("/payments/:payment_id/saga", h.GetSaga)
		v1.GET("/profile/balance", h.GetBalance)
		v1.GET("/sagas", h.ListSagas)
	}
}

// ==============================================
// WIRE MAPPING
// ==============================================

func toHistoryDTO(summaries []models.PaymentSummary) []gin.H {
	out := make([]gin.H, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, gin.H{
			"payment_id":   s.PaymentID,
			"student_id":   s.StudentID,
			"student_name": s.StudentName,
			"amount":       s.Amount,
			"status":       s.Status,
			"created_at":   s.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}

func toSagaDTOs(records []*models.SagaRecord) []gin.H {
	out := make([]gin.H, 0, len(records))
	for _, r := range records {
		out = append(out, toSagaDTO(r))
	}
	return out
}

func toSagaDTO(r *models.SagaRecord) gin.H {
	steps := make([]gin.H, 0, len(r.Steps))
	for _, s := range r.Steps {
		step := gin.H{
			"name":       s.Name,
			"status":     string(s.Status),
			"started_at": s.StartedAt.Format(time.RFC3339),
		}
		if s.Error != "" {
			step["error"] = s.Error
		}
		if s.CompletedAt != nil {
			step["completed_at"] = s.CompletedAt.Format(time.RFC3339)
		}
		steps = append(steps, step)
	}
	return gin.H{
		"saga_id":    r.SagaID,
		"payment_id": r.PaymentID,
		"status":     string(r.Status),
		"steps":      steps,
		"created_at": r.CreatedAt.Format(time.RFC3339),
		"updated_at": r.UpdatedAt.Format(time.RFC3339),
	}
}

// ==============================================
// HELPER FUNCTIONS
// ==============================================

// respondSuccess wraps data in the gateway envelope
func respondSuccess(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondError sends an error JSON response
func respondError(c *gin.Context, statusCode int, message string, err error) {
	c.JSON(statusCode, gin.H{
		"error":   message,
		"message": err.Error(),
	})
}

// respondServiceError maps service errors to appropriate HTTP status codes and responses
func respondServiceError(c *gin.Context, err error) {
	statusCode, message := mapServiceError(err)
	c.JSON(statusCode, gin.H{
		"error":   message,
		"message": err.Error(),
	})
}

// mapServiceError maps service errors to HTTP status codes and user-friendly messages
func mapServiceError(err error) (int, string) {
	switch {
	// Validation errors (400 Bad Request)
	case errors.Is(err, models.ErrInvalidAmount):
		return http.StatusBadRequest, "Amount does not match the tuition record"
	case errors.Is(err, models.ErrInvalidOTPCode):
		return http.StatusBadRequest, "OTP code must be 6 digits"

	// Not found errors (404 Not Found)
	case errors.Is(err, models.ErrTuitionNotFound):
		return http.StatusNotFound, "Tuition record not found"
	case errors.Is(err, models.ErrPaymentNotFound):
		return http.StatusNotFound, "Payment not found"
	case errors.Is(err, models.ErrOTPNotFound):
		return http.StatusNotFound, "OTP challenge not found"
	case errors.Is(err, models.ErrSagaNotFound):
		return http.StatusNotFound, "Saga record not found"

	// Challenge terminal errors (410 Gone)
	case errors.Is(err, models.ErrOTPExpired):
		return http.StatusGone, "OTP has expired"
	case errors.Is(err, models.ErrOTPMaxAttempts):
		return http.StatusGone, "Maximum OTP attempts exceeded"

	// Business logic errors (422 Unprocessable Entity)
	case errors.Is(err, models.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "Insufficient balance"

	// Throttling (429 Too Many Requests)
	case errors.Is(err, models.ErrRateLimited):
		return http.StatusTooManyRequests, "Please wait before requesting another OTP"

	// Default (500 Internal Server Error)
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
