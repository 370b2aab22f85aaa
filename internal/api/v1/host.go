package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	ierr "github.com/vidinfra/subflow/internal/errors"
	"github.com/vidinfra/subflow/internal/logger"
	"github.com/vidinfra/subflow/internal/service"
	"github.com/vidinfra/subflow/internal/types"
)

// HostHandler is the synchronous intake for host platform notifications, for
// deployments that call the engine over HTTP instead of the message bus.
type HostHandler struct {
	host service.HostService
	log  *logger.Logger
}

func NewHostHandler(host service.HostService, log *logger.Logger) *HostHandler {
	return &HostHandler{host: host, log: log}
}

func (h *HostHandler) Notify(c *gin.Context) {
	var notification service.HostNotification
	if err := c.ShouldBindJSON(&notification); err != nil {
		abortWith(c, ierr.WithError(err).WithHint("Invalid notification payload").Mark(ierr.ErrValidation))
		return
	}

	ctx := c.Request.Context()
	var err error
	switch notification.Event {
	case types.HostEventOrderStatusChanged:
		err = h.host.OrderStatusChanged(ctx, notification.OrderID, notification.OldStatus, notification.NewStatus)
	case types.HostEventCheckoutCompleted:
		err = h.host.CheckoutCompleted(ctx, notification.OrderID)
	case types.HostEventUserDeleted:
		err = h.host.UserDeleted(ctx, notification.CustomerID)
	default:
		err = ierr.NewError("unknown host notification").
			WithReportableDetails(map[string]any{"event": notification.Event}).
			Mark(ierr.ErrValidation)
	}
	if err != nil {
		abortWith(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}
