package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vidinfra/subflow/internal/cache"
	"github.com/vidinfra/subflow/internal/config"
	"github.com/vidinfra/subflow/internal/domain/customer"
	"github.com/vidinfra/subflow/internal/domain/order"
	"github.com/vidinfra/subflow/internal/domain/subscription"
	"github.com/vidinfra/subflow/internal/logger"
	"github.com/vidinfra/subflow/internal/scheduler"
	"github.com/vidinfra/subflow/internal/testutil"
	"github.com/vidinfra/subflow/internal/types"
)

// testEnv wires every service against in-memory stores.
type testEnv struct {
	params    ServiceParams
	orders    *testutil.InMemoryOrderStore
	customers *testutil.InMemoryCustomerStore
	schedules *testutil.InMemoryScheduleStore
	publisher *testutil.CapturingPublisher
	subs      *subscription.Store
	guard     *scheduler.Guard
}

func newTestEnv() *testEnv {
	log, _ := logger.NewLogger("error")
	orders := testutil.NewInMemoryOrderStore()
	customers := testutil.NewInMemoryCustomerStore()
	schedules := testutil.NewInMemoryScheduleStore()
	pub := testutil.NewCapturingPublisher()
	subs := subscription.NewStore(orders)
	dispatcher := scheduler.NewDispatcher(schedules, log)
	guard := scheduler.NewGuard(cache.NewInMemoryCache(), subs, dispatcher, log)

	return &testEnv{
		params: ServiceParams{
			Logger:         log,
			Config:         config.GetDefaultConfig(),
			OrderRepo:      orders,
			CustomerRepo:   customers,
			ScheduleRepo:   schedules,
			SubStore:       subs,
			Dispatcher:     dispatcher,
			Guard:          guard,
			EventPublisher: pub,
			Gateways:       make(map[string]types.Gateway),
		},
		orders:    orders,
		customers: customers,
		schedules: schedules,
		publisher: pub,
		subs:      subs,
		guard:     guard,
	}
}

// seedSubscription stores an order carrying one monthly subscription and
// returns its key. The subscription starts active with one completed payment
// unless mutated by the caller afterwards.
func (e *testEnv) seedSubscription(ctx context.Context, orderID, productID string) types.SubscriptionKey {
	key := types.NewSubscriptionKey(orderID, productID)
	now := time.Now().UTC()

	sub := &subscription.Subscription{
		Key:               key,
		Status:            types.SubscriptionStatusActive,
		Period:            types.BillingPeriodMonth,
		Interval:          1,
		StartDate:         now.AddDate(0, -1, 0),
		CompletedPayments: []time.Time{now.AddDate(0, 0, -10)},
	}

	item := &order.LineItem{
		ID:                types.GenerateUUID(),
		OrderID:           orderID,
		ProductID:         productID,
		Name:              "Monthly plan",
		Quantity:          1,
		Subtotal:          decimal.NewFromInt(20),
		Total:             decimal.NewFromInt(20),
		RecurringSubtotal: decimal.NewFromInt(20),
		RecurringTotal:    decimal.NewFromInt(20),
		Meta:              make(map[string]string),
	}
	subscription.EncodeMeta(sub, item.Meta)

	o := &order.Order{
		ID:             orderID,
		CustomerID:     "cust_1",
		Status:         types.OrderStatusCompleted,
		Currency:       "USD",
		Total:          decimal.NewFromInt(20),
		RecurringTotal: decimal.NewFromInt(20),
		Items:          []*order.LineItem{item},
		CreatedAt:      now.AddDate(0, -1, 0),
		UpdatedAt:      now,
	}
	if err := e.orders.Create(ctx, o); err != nil {
		panic(err)
	}

	e.customers.Add(&customer.Customer{
		ID:             "cust_1",
		Email:          "jo@example.com",
		PayingCustomer: true,
		Role:           customer.RoleSubscriber,
	})
	return key
}

// setStatus rewrites the stored status directly, bypassing the state machine.
func (e *testEnv) setStatus(ctx context.Context, key types.SubscriptionKey, status types.SubscriptionStatus) {
	sub, err := e.subs.Get(ctx, key)
	if err != nil {
		panic(err)
	}
	sub.Status = status
	if err := e.subs.Save(ctx, sub); err != nil {
		panic(err)
	}
}

// stubGateway declares capabilities per field. The zero value supports nothing.
type stubGateway struct {
	name              string
	cancellation      bool
	suspension        bool
	reactivation      bool
	dateChanges       bool
	scheduledPayments bool
}

func (g *stubGateway) Name() string                    { return g.name }
func (g *stubGateway) SupportsCancellation() bool      { return g.cancellation }
func (g *stubGateway) SupportsSuspension() bool        { return g.suspension }
func (g *stubGateway) SupportsReactivation() bool      { return g.reactivation }
func (g *stubGateway) SupportsDateChanges() bool       { return g.dateChanges }
func (g *stubGateway) SupportsScheduledPayments() bool { return g.scheduledPayments }

// useGateway puts the order under gateway management.
func (e *testEnv) useGateway(ctx context.Context, orderID string, g *stubGateway) {
	o, err := e.orders.Get(ctx, orderID)
	if err != nil {
		panic(err)
	}
	o.PaymentMethod = g.name
	if err := e.orders.Update(ctx, o); err != nil {
		panic(err)
	}
	e.params.Gateways[g.name] = g
}
