// Package api exposes the trading subsystem over REST and a websocket
// notification stream.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyeonwoo-dev/kiwoom-trader/internal/history"
	"github.com/hyeonwoo-dev/kiwoom-trader/internal/trading"
	"github.com/hyeonwoo-dev/kiwoom-trader/pkg/response"
)

// GinHandlers contains the HTTP handlers over the trading subsystem.
type GinHandlers struct {
	gateway   *trading.Gateway
	store     *trading.OrderStore
	policies  *trading.PolicyEngine
	balances  *trading.BalanceBook
	notifier  *trading.Notifier
	analytics *history.Analytics
	account   string // default account for submissions
	logger    zerolog.Logger
}

// NewGinHandlers wires the handlers to the trading components. account is
// used when a submission does not name one.
func NewGinHandlers(
	gateway *trading.Gateway,
	store *trading.OrderStore,
	policies *trading.PolicyEngine,
	balances *trading.BalanceBook,
	notifier *trading.Notifier,
	analytics *history.Analytics,
	account string,
) *GinHandlers {
	return &GinHandlers{
		gateway:   gateway,
		store:     store,
		policies:  policies,
		balances:  balances,
		notifier:  notifier,
		analytics: analytics,
		account:   account,
		logger:    log.With().Str("component", "api").Logger(),
	}
}

type submitOrderRequest struct {
	Account   string `json:"account"`
	Code      string `json:"code" binding:"required"`
	Side      string `json:"side" binding:"required"`
	Quantity  int64  `json:"quantity" binding:"required"`
	Price     int64  `json:"price"`
	PriceType string `json:"price_type"`
}

type orderIDResponse struct {
	OrderID string `json:"order_id"`
}

// SubmitOrderHandler handles POST /orders.
func (h *GinHandlers) SubmitOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req submitOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}
		account := req.Account
		if account == "" {
			account = h.account
		}
		priceType := trading.PriceType(req.PriceType)
		if req.PriceType == "" {
			priceType = trading.PriceLimit
		}

		orderID, err := h.gateway.SubmitNew(c.Request.Context(), account, req.Code,
			trading.Side(req.Side), req.Quantity, req.Price, priceType)
		response.Handle(c, orderIDResponse{OrderID: orderID}, err)
	}
}

type cancelOrderRequest struct {
	Quantity int64 `json:"quantity"`
}

// CancelOrderHandler handles POST /orders/:order_id/cancel. A missing
// quantity cancels the full remainder.
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")
		var req cancelOrderRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				response.BadRequest(c, "Invalid request body")
				return
			}
		}
		qty := req.Quantity
		if qty == 0 {
			rec, err := h.store.Get(orderID)
			if err != nil {
				response.Handle(c, nil, err)
				return
			}
			qty = rec.RemainingQty()
		}

		cancelID, err := h.gateway.SubmitCancel(c.Request.Context(), orderID, qty)
		response.Handle(c, orderIDResponse{OrderID: cancelID}, err)
	}
}

type modifyOrderRequest struct {
	Quantity int64 `json:"quantity"`
	Price    int64 `json:"price" binding:"required"`
}

// ModifyOrderHandler handles POST /orders/:order_id/modify. A missing
// quantity amends the full remainder.
func (h *GinHandlers) ModifyOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")
		var req modifyOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}
		qty := req.Quantity
		if qty == 0 {
			rec, err := h.store.Get(orderID)
			if err != nil {
				response.Handle(c, nil, err)
				return
			}
			qty = rec.RemainingQty()
		}

		newID, err := h.gateway.SubmitModify(c.Request.Context(), orderID, qty, req.Price)
		response.Handle(c, orderIDResponse{OrderID: newID}, err)
	}
}

// GetOrderHandler handles GET /orders/:order_id.
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := h.store.Get(c.Param("order_id"))
		response.Handle(c, rec, err)
	}
}

// ListOutstandingHandler handles GET /orders.
func (h *GinHandlers) ListOutstandingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, h.store.Outstanding())
	}
}

// MonitorOrderHandler handles POST /orders/:order_id/monitor.
func (h *GinHandlers) MonitorOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")
		err := h.policies.Monitor(orderID)
		response.Handle(c, orderIDResponse{OrderID: orderID}, err)
	}
}

// StopMonitorHandler handles DELETE /orders/:order_id/monitor.
func (h *GinHandlers) StopMonitorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")
		h.policies.StopMonitor(orderID)
		response.Success(c, orderIDResponse{OrderID: orderID})
	}
}

type autoCancelRequest struct {
	TimeoutSeconds          int64   `json:"timeout_seconds"`
	PriceThreshold          int64   `json:"price_threshold"`
	MarketPriceThresholdPct float64 `json:"market_price_threshold_pct"`
}

// SetAutoCancelHandler handles PUT /orders/:order_id/auto-cancel.
func (h *GinHandlers) SetAutoCancelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")
		var req autoCancelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		err := h.policies.SetAutoCancel(orderID,
			time.Duration(req.TimeoutSeconds)*time.Second,
			req.PriceThreshold, req.MarketPriceThresholdPct)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		policy, _ := h.policies.AutoCancel(orderID)
		response.Success(c, policy)
	}
}

type autoModifyRequest struct {
	TargetPrice int64 `json:"target_price"`
	PriceStep   int64 `json:"price_step"`
	MaxAttempts int   `json:"max_attempts"`
}

// SetAutoModifyHandler handles PUT /orders/:order_id/auto-modify.
func (h *GinHandlers) SetAutoModifyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")
		var req autoModifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		err := h.policies.SetAutoModify(orderID, req.TargetPrice, req.PriceStep, req.MaxAttempts)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		policy, _ := h.policies.AutoModify(orderID)
		response.Success(c, policy)
	}
}

// ListBalancesHandler handles GET /balances.
func (h *GinHandlers) ListBalancesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, h.balances.List())
	}
}

// SummaryHandler handles GET /analytics/summary?from=2006-01-02&to=2006-01-02.
// Both bounds default to today.
func (h *GinHandlers) SummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		now := time.Now()
		from, to := now, now

		if v := c.Query("from"); v != "" {
			t, err := time.Parse("2006-01-02", v)
			if err != nil {
				response.BadRequest(c, "Invalid from date, expected YYYY-MM-DD")
				return
			}
			from = t
		}
		if v := c.Query("to"); v != "" {
			t, err := time.Parse("2006-01-02", v)
			if err != nil {
				response.BadRequest(c, "Invalid to date, expected YYYY-MM-DD")
				return
			}
			to = t
		}

		sum, err := h.analytics.Summarize(from, to)
		response.Handle(c, sum, err)
	}
}
