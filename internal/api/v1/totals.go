package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	ierr "github.com/vidinfra/subflow/internal/errors"
	"github.com/vidinfra/subflow/internal/logger"
	"github.com/vidinfra/subflow/internal/service"
)

type TotalsHandler struct {
	totals service.TotalsService
	log    *logger.Logger
}

func NewTotalsHandler(totals service.TotalsService, log *logger.Logger) *TotalsHandler {
	return &TotalsHandler{totals: totals, log: log}
}

// Calculate separates a cart into the amount due now and the amount due every
// period.
func (h *TotalsHandler) Calculate(c *gin.Context) {
	var cart service.Cart
	if err := c.ShouldBindJSON(&cart); err != nil {
		abortWith(c, ierr.WithError(err).WithHint("Invalid cart payload").Mark(ierr.ErrValidation))
		return
	}
	totals, err := h.totals.Calculate(c.Request.Context(), &cart)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, totals)
}
