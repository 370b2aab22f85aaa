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

type SubscriptionHandler struct {
	subscriptions service.SubscriptionService
	status        service.StatusService
	log           *logger.Logger
}

func NewSubscriptionHandler(subscriptions service.SubscriptionService, status service.StatusService, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions, status: status, log: log}
}

func keyFromPath(c *gin.Context) types.SubscriptionKey {
	return types.NewSubscriptionKey(c.Param("order_id"), c.Param("product_id"))
}

// Create attaches a pending subscription to an order line item.
func (h *SubscriptionHandler) Create(c *gin.Context) {
	var req dto.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, ierr.WithError(err).WithHint("Invalid request payload").Mark(ierr.ErrValidation))
		return
	}
	if err := req.Validate(); err != nil {
		abortWith(c, err)
		return
	}
	sub, err := h.subscriptions.CreatePending(c.Request.Context(), req.Key(), req.Terms())
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewSubscriptionResponse(sub))
}

// Get returns one subscription.
func (h *SubscriptionHandler) Get(c *gin.Context) {
	sub, err := h.subscriptions.Get(c.Request.Context(), keyFromPath(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSubscriptionResponse(sub))
}

// ListByCustomer returns every subscription a customer holds.
func (h *SubscriptionHandler) ListByCustomer(c *gin.Context) {
	subs, err := h.subscriptions.ListByCustomer(c.Request.Context(), c.Param("customer_id"))
	if err != nil {
		abortWith(c, err)
		return
	}
	resp := &dto.ListSubscriptionsResponse{Total: len(subs)}
	for _, sub := range subs {
		resp.Items = append(resp.Items, dto.NewSubscriptionResponse(sub))
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateStatus applies a status transition. A disallowed transition is not an
// error: the response reports changed=false and the current status.
func (h *SubscriptionHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, ierr.WithError(err).WithHint("Invalid request payload").Mark(ierr.ErrValidation))
		return
	}
	key := keyFromPath(c)
	changed, err := h.status.UpdateStatus(c.Request.Context(), key, req.Status)
	if err != nil {
		abortWith(c, err)
		return
	}
	sub, err := h.subscriptions.Get(c.Request.Context(), key)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, &dto.UpdateStatusResponse{Changed: changed, Status: sub.Status})
}

// UpdateNextPaymentDate moves the next scheduled payment.
func (h *SubscriptionHandler) UpdateNextPaymentDate(c *gin.Context) {
	var req dto.UpdateNextPaymentDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, ierr.WithError(err).WithHint("Invalid request payload").Mark(ierr.ErrValidation))
		return
	}
	if err := h.subscriptions.UpdateNextPaymentDate(c.Request.Context(), keyFromPath(c), req.NextPaymentDate); err != nil {
		abortWith(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Trash moves a subscription to trash.
func (h *SubscriptionHandler) Trash(c *gin.Context) {
	changed, err := h.status.Trash(c.Request.Context(), keyFromPath(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

// Delete removes a trashed subscription's attributes entirely.
func (h *SubscriptionHandler) Delete(c *gin.Context) {
	changed, err := h.status.Delete(c.Request.Context(), keyFromPath(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	if !changed {
		abortWith(c, ierr.NewError("subscription must be trashed before deletion").
			WithHint("Move the subscription to trash first").
			Mark(ierr.ErrInvalidOperation))
		return
	}
	c.Status(http.StatusNoContent)
}

func abortWith(c *gin.Context, err error) {
	c.AbortWithStatusJSON(ierr.HTTPStatusFromErr(err), ierr.NewErrorResponse(err))
}
