package service

import (
	"context"
	"time"

	"github.com/vidinfra/subflow/internal/config"
	"github.com/vidinfra/subflow/internal/domain/customer"
	"github.com/vidinfra/subflow/internal/domain/order"
	"github.com/vidinfra/subflow/internal/domain/schedule"
	"github.com/vidinfra/subflow/internal/domain/subscription"
	"github.com/vidinfra/subflow/internal/logger"
	"github.com/vidinfra/subflow/internal/publisher"
	"github.com/vidinfra/subflow/internal/scheduler"
	"github.com/vidinfra/subflow/internal/types"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration

	// Repositories
	OrderRepo    order.Repository
	CustomerRepo customer.Repository
	ScheduleRepo schedule.Repository

	// Subscription record accessor
	SubStore *subscription.Store

	// Scheduling
	Dispatcher *scheduler.Dispatcher
	Guard      *scheduler.Guard

	// Publisher
	EventPublisher publisher.EventPublisher

	// Gateways registered by payment method name. Orders whose payment
	// method is absent here are treated as manual.
	Gateways map[string]types.Gateway
}

// GatewayFor resolves the gateway managing an order's payments, or nil for
// manual payments.
func (p ServiceParams) GatewayFor(o *order.Order) types.Gateway {
	if o == nil || o.IsManual() {
		return nil
	}
	return p.Gateways[o.PaymentMethod]
}

// addOrderNote appends a best-effort audit note. Note failures are logged,
// never propagated: audit trail gaps must not abort billing.
func (p ServiceParams) addOrderNote(ctx context.Context, orderID, content string) {
	note := &order.Note{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ORDER_NOTE),
		OrderID:   orderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.OrderRepo.AddNote(ctx, note); err != nil {
		p.Logger.Warnw("failed to append order note", "order_id", orderID, "error", err)
	}
}
