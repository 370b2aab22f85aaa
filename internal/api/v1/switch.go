package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vidinfra/subflow/internal/api/dto"
	ierr "github.com/vidinfra/subflow/internal/errors"
	"github.com/vidinfra/subflow/internal/logger"
	"github.com/vidinfra/subflow/internal/service"
	"github.com/vidinfra/subflow/internal/types"
)

type SwitchHandler struct {
	switches service.SwitchService
	log      *logger.Logger
}

func NewSwitchHandler(switches service.SwitchService, log *logger.Logger) *SwitchHandler {
	return &SwitchHandler{switches: switches, log: log}
}

// Quote prices a plan switch without applying it.
func (h *SwitchHandler) Quote(c *gin.Context) {
	var req dto.SwitchQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, ierr.WithError(err).WithHint("Invalid request payload").Mark(ierr.ErrValidation))
		return
	}
	result, err := h.switches.Quote(c.Request.Context(),
		types.NewSubscriptionKey(req.OrderID, req.ProductID), req.NewPlan)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Complete finalizes a plan switch after checkout.
func (h *SwitchHandler) Complete(c *gin.Context) {
	var req dto.SwitchCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, ierr.WithError(err).WithHint("Invalid request payload").Mark(ierr.ErrValidation))
		return
	}
	result, err := h.switches.Complete(c.Request.Context(),
		types.NewSubscriptionKey(req.OrderID, req.ProductID),
		types.NewSubscriptionKey(req.NewOrderID, req.NewProductID),
		req.NewPlan)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
