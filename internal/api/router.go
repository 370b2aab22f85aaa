package api

import (
	"github.com/gin-gonic/gin"

	v1 "github.com/vidinfra/subflow/internal/api/v1"
	"github.com/vidinfra/subflow/internal/config"
	"github.com/vidinfra/subflow/internal/logger"
	"github.com/vidinfra/subflow/internal/types"
)

// Handlers aggregates every route handler the router mounts.
type Handlers struct {
	Health       *v1.HealthHandler
	Subscription *v1.SubscriptionHandler
	Payment      *v1.PaymentHandler
	Totals       *v1.TotalsHandler
	Switch       *v1.SwitchHandler
	Host         *v1.HostHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, log *logger.Logger) *gin.Engine {
	if cfg.Deployment.Mode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())

	router.GET("/health", handlers.Health.Health)

	root := router.Group("/v1")
	{
		subscriptions := root.Group("/subscriptions")
		{
			subscriptions.POST("", handlers.Subscription.Create)
			subscriptions.GET("/:order_id/:product_id", handlers.Subscription.Get)
			subscriptions.PUT("/:order_id/:product_id/status", handlers.Subscription.UpdateStatus)
			subscriptions.PUT("/:order_id/:product_id/next-payment-date", handlers.Subscription.UpdateNextPaymentDate)
			subscriptions.POST("/:order_id/:product_id/trash", handlers.Subscription.Trash)
			subscriptions.DELETE("/:order_id/:product_id", handlers.Subscription.Delete)
		}
		root.GET("/customers/:customer_id/subscriptions", handlers.Subscription.ListByCustomer)

		payments := root.Group("/payments")
		{
			payments.POST("/record", handlers.Payment.RecordPayment)
			payments.POST("/failure", handlers.Payment.RecordFailure)
		}

		root.POST("/totals", handlers.Totals.Calculate)

		switches := root.Group("/switches")
		{
			switches.POST("/quote", handlers.Switch.Quote)
			switches.POST("/complete", handlers.Switch.Complete)
		}

		root.POST("/host/notifications", handlers.Host.Notify)
	}

	return router
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = types.GenerateUUID()
		}
		c.Request = c.Request.WithContext(types.SetRequestID(c.Request.Context(), requestID))
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}
