package httpapi

import (
	"net/http"

	"storefront-core/pkg/health"
	"storefront-core/pkg/middleware"
	"storefront-core/services/affiliate"
	"storefront-core/services/discount"
	"storefront-core/services/inventory"
	"storefront-core/services/order"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewRouter, Handler),
)

type RouterParams struct {
	fx.In
	Health    health.HealthService
	Orders    *order.Service
	Discounts *discount.Service
	Affiliate *affiliate.Service
	Inventory *inventory.Service
}

// NewRouter wires the caller API used by the storefront and admin layers.
func NewRouter(p RouterParams) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Error())

	r.GET("/healthz", p.Health.Liveness)
	r.GET("/readyz", p.Health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := &handler{
		orders:    p.Orders,
		discounts: p.Discounts,
		affiliate: p.Affiliate,
		inventory: p.Inventory,
	}

	v1 := r.Group("/v1")
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/:id/history", h.orderHistory)
		v1.GET("/orders/:id/units", h.orderUnits)
		v1.GET("/order-numbers/:order_no", h.getOrderByNumber)
		v1.POST("/orders/:id/transitions", h.transitionOrder)

		v1.POST("/discounts/preview", h.previewDiscount)

		v1.POST("/members", h.registerMember)
		v1.GET("/members/:id/summary", h.memberSummary)
		v1.POST("/members/:id/withdrawals", h.requestWithdrawal)

		v1.GET("/products/:id/stock", h.productStock)
	}

	admin := r.Group("/v1/admin")
	{
		admin.POST("/discounts", h.createDiscount)
		admin.POST("/products/:id/units", h.importUnits)
		admin.POST("/withdrawals/:id/approve", h.approveWithdrawal)
		admin.POST("/withdrawals/:id/reject", h.rejectWithdrawal)
		admin.POST("/settlements", h.settle)
		admin.PUT("/affiliate/policy", h.updatePolicy)
		admin.POST("/orders/reconcile", h.reconcileOrders)
	}

	return r
}

func Handler(r *gin.Engine) http.Handler {
	return r
}
