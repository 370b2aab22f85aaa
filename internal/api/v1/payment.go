package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vidinfra/subflow/internal/api/dto"
	ierr "github.com/vidinfra/subflow/internal/errors"
	"github.com/vidinfra/subflow/internal/logger"
	"github.com/vidinfra/subflow/internal/service"
)

type PaymentHandler struct {
	payments service.PaymentService
	log      *logger.Logger
}

func NewPaymentHandler(payments service.PaymentService, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, log: log}
}

// RecordPayment registers a successful recurring payment.
func (h *PaymentHandler) RecordPayment(c *gin.Context) {
	var req dto.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, ierr.WithError(err).WithHint("Invalid request payload").Mark(ierr.ErrValidation))
		return
	}
	if err := req.Validate(); err != nil {
		abortWith(c, err)
		return
	}
	if err := h.payments.RecordPayment(c.Request.Context(), req.Key(), req.PaidAt, req.RenewalGenerated); err != nil {
		abortWith(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RecordFailure registers a failed recurring payment.
func (h *PaymentHandler) RecordFailure(c *gin.Context) {
	var req dto.RecordFailureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, ierr.WithError(err).WithHint("Invalid request payload").Mark(ierr.ErrValidation))
		return
	}
	if err := req.Validate(); err != nil {
		abortWith(c, err)
		return
	}
	if err := h.payments.RecordFailure(c.Request.Context(), req.Key()); err != nil {
		abortWith(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
