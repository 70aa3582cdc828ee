package httpapi

import (
	"net/http"

	"storefront-core/pkg/db/pagination"
	"storefront-core/pkg/errutil"
	"storefront-core/services/affiliate"
	"storefront-core/services/discount"
	"storefront-core/services/inventory"
	"storefront-core/services/order"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type handler struct {
	orders    *order.Service
	discounts *discount.Service
	affiliate *affiliate.Service
	inventory *inventory.Service
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return false
	}
	return true
}

func (h *handler) createOrder(c *gin.Context) {
	var req order.CreateOrderRequest
	if !bind(c, &req) {
		return
	}
	o, err := h.orders.Create(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (h *handler) listOrders(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errutil.BadRequest("invalid pagination", err))
		return
	}
	res, err := h.orders.List(c.Request.Context(), order.ListParams{
		MemberID:   c.Query("user_id"),
		Status:     order.Status(c.Query("status")),
		Pagination: page,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) getOrder(c *gin.Context) {
	o, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *handler) getOrderByNumber(c *gin.Context) {
	o, err := h.orders.GetByOrderNo(c.Request.Context(), c.Param("order_no"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// orderUnits lists the serialized keys delivered with an order.
func (h *handler) orderUnits(c *gin.Context) {
	ctx := c.Request.Context()
	o, err := h.orders.Get(ctx, c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	units, err := h.inventory.UnitsForOrder(ctx, o.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": units})
}

func (h *handler) orderHistory(c *gin.Context) {
	doc, err := h.orders.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *handler) transitionOrder(c *gin.Context) {
	var req order.TransitionRequest
	if !bind(c, &req) {
		return
	}
	req.OrderID = c.Param("id")
	o, err := h.orders.Transition(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *handler) reconcileOrders(c *gin.Context) {
	n, err := h.orders.ReconcileAll(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": n})
}

func (h *handler) previewDiscount(c *gin.Context) {
	var req struct {
		Code   string          `json:"code"`
		Amount decimal.Decimal `json:"amount"`
	}
	if !bind(c, &req) {
		return
	}
	q, err := h.discounts.Preview(c.Request.Context(), req.Code, req.Amount)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *handler) createDiscount(c *gin.Context) {
	var req discount.CreateRequest
	if !bind(c, &req) {
		return
	}
	dc, err := h.discounts.Create(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, dc)
}

func (h *handler) registerMember(c *gin.Context) {
	var req affiliate.RegisterRequest
	if !bind(c, &req) {
		return
	}
	m, err := h.affiliate.Register(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *handler) memberSummary(c *gin.Context) {
	s, err := h.affiliate.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handler) requestWithdrawal(c *gin.Context) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if !bind(c, &req) {
		return
	}
	w, err := h.affiliate.RequestWithdrawal(c.Request.Context(), c.Param("id"), req.Amount)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

type decisionRequest struct {
	Feedback string `json:"feedback"`
}

func (h *handler) approveWithdrawal(c *gin.Context) {
	var req decisionRequest
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}
	w, err := h.affiliate.ApproveWithdrawal(c.Request.Context(), c.Param("id"), req.Feedback)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *handler) rejectWithdrawal(c *gin.Context) {
	var req decisionRequest
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}
	w, err := h.affiliate.RejectWithdrawal(c.Request.Context(), c.Param("id"), req.Feedback)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *handler) settle(c *gin.Context) {
	req := struct {
		PeriodDays *int `json:"period_days"`
	}{}
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}
	period := -1
	if req.PeriodDays != nil {
		period = *req.PeriodDays
	}
	n, err := h.affiliate.Settle(c.Request.Context(), period)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settled": n})
}

func (h *handler) updatePolicy(c *gin.Context) {
	var p affiliate.Policy
	if !bind(c, &p) {
		return
	}
	if err := h.affiliate.UpdatePolicy(c.Request.Context(), p); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.affiliate.Policy())
}

func (h *handler) importUnits(c *gin.Context) {
	var req struct {
		Keys []string `json:"keys" binding:"required,min=1"`
	}
	if !bind(c, &req) {
		return
	}
	n, err := h.inventory.ImportUnits(c.Request.Context(), c.Param("id"), req.Keys)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"imported": n})
}

func (h *handler) productStock(c *gin.Context) {
	s, err := h.inventory.Stock(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, s)
}
