package trading

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyeonwoo-dev/kiwoom-trader/internal/broker"
)

// DefaultScreen is the screen number used when none is configured.
const DefaultScreen = "2000"

// Gateway validates and submits new, cancel and modify order requests
// through the SyncBridge and creates the corresponding OrderRecords. It is
// the only component that creates records; every later mutation flows
// through the execution listener.
type Gateway struct {
	bridge *SyncBridge
	store  *OrderStore
	screen string
	now    func() time.Time
	logger zerolog.Logger
}

// NewGateway creates a gateway submitting on the given screen number.
func NewGateway(bridge *SyncBridge, store *OrderStore, screen string) *Gateway {
	if screen == "" {
		screen = DefaultScreen
	}
	return &Gateway{
		bridge: bridge,
		store:  store,
		screen: screen,
		now:    time.Now,
		logger: log.With().Str("component", "order_gateway").Logger(),
	}
}

// requestName tags a request so its TR acknowledgement can be matched.
func requestName(kind OrderKind) string {
	return string(kind) + "-" + uuid.New().String()[:8]
}

// SubmitNew submits a new order and returns the broker-assigned order id.
// Validation failures surface before any network interaction.
func (g *Gateway) SubmitNew(ctx context.Context, account, code string, side Side, qty, price int64, priceType PriceType) (string, error) {
	if account == "" {
		return "", &ValidationError{Field: "account", Reason: "must not be empty"}
	}
	if code == "" {
		return "", &ValidationError{Field: "code", Reason: "must not be empty"}
	}
	if !side.Valid() {
		return "", &ValidationError{Field: "side", Reason: "must be buy or sell"}
	}
	if qty <= 0 {
		return "", &ValidationError{Field: "qty", Reason: "must be positive"}
	}
	if price < 0 {
		return "", &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	switch priceType {
	case PriceLimit:
		if price == 0 {
			return "", &ValidationError{Field: "price", Reason: "limit orders require a positive price"}
		}
	case PriceMarket:
	default:
		return "", &ValidationError{Field: "price_type", Reason: "must be limit or market"}
	}

	orderType := broker.OrderTypeBuy
	if side == SideSell {
		orderType = broker.OrderTypeSell
	}
	ack, err := g.bridge.Execute(ctx, broker.OrderRequest{
		RequestName: requestName(KindNew),
		Screen:      g.screen,
		Account:     account,
		OrderType:   orderType,
		Code:        code,
		Quantity:    qty,
		Price:       price,
		PriceType:   priceTypeCode(priceType),
	})
	if err != nil {
		return "", err
	}
	if ack.OrderNo == "" {
		return "", &GatewayRejectedError{Reason: "acknowledgement carried no order number"}
	}

	now := g.now()
	rec := &OrderRecord{
		OrderID:        ack.OrderNo,
		Account:        account,
		Code:           code,
		Side:           side,
		Kind:           KindNew,
		PriceType:      priceType,
		RequestedQty:   qty,
		RequestedPrice: price,
		Status:         StatusSubmitted,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := g.store.Create(rec); err != nil {
		return "", err
	}

	g.logger.Info().
		Str("order_id", ack.OrderNo).
		Str("code", code).
		Str("side", string(side)).
		Int64("qty", qty).
		Int64("price", price).
		Msg("order submitted")
	return ack.OrderNo, nil
}

// SubmitCancel submits a cancel for qty of the given order's remainder. It
// creates a new record chained to the parent via ParentOrderID; the parent's
// own request fields are never rewritten.
func (g *Gateway) SubmitCancel(ctx context.Context, orderID string, qty int64) (string, error) {
	if qty <= 0 {
		return "", &ValidationError{Field: "qty", Reason: "must be positive"}
	}
	parent, err := g.store.Get(orderID)
	if err != nil {
		return "", err
	}
	if parent.Status.Terminal() {
		return "", ErrOrderTerminal
	}

	orderType := broker.OrderTypeCancelBuy
	if parent.Side == SideSell {
		orderType = broker.OrderTypeCancelSell
	}
	ack, err := g.bridge.Execute(ctx, broker.OrderRequest{
		RequestName: requestName(KindCancel),
		Screen:      g.screen,
		Account:     parent.Account,
		OrderType:   orderType,
		Code:        parent.Code,
		Quantity:    qty,
		PriceType:   broker.PriceTypeLimit,
		OrigOrderNo: orderID,
	})
	if err != nil {
		return "", err
	}
	if ack.OrderNo == "" {
		return "", &GatewayRejectedError{Reason: "acknowledgement carried no order number"}
	}

	now := g.now()
	rec := &OrderRecord{
		OrderID:       ack.OrderNo,
		Account:       parent.Account,
		Code:          parent.Code,
		Side:          parent.Side,
		Kind:          KindCancel,
		PriceType:     PriceLimit,
		RequestedQty:  qty,
		Status:        StatusSubmitted,
		ParentOrderID: orderID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := g.store.Create(rec); err != nil {
		return "", err
	}

	g.logger.Info().
		Str("order_id", ack.OrderNo).
		Str("parent_order_id", orderID).
		Int64("qty", qty).
		Msg("cancel submitted")
	return ack.OrderNo, nil
}

// SubmitModify submits a price/quantity amendment for the given order. The
// broker answers by marking the parent MODIFIED and carrying the live order
// forward under the returned order id.
func (g *Gateway) SubmitModify(ctx context.Context, orderID string, qty, price int64) (string, error) {
	if qty <= 0 {
		return "", &ValidationError{Field: "qty", Reason: "must be positive"}
	}
	if price <= 0 {
		return "", &ValidationError{Field: "price", Reason: "must be positive"}
	}
	parent, err := g.store.Get(orderID)
	if err != nil {
		return "", err
	}
	if parent.Status.Terminal() {
		return "", ErrOrderTerminal
	}

	orderType := broker.OrderTypeModifyBuy
	if parent.Side == SideSell {
		orderType = broker.OrderTypeModifySell
	}
	ack, err := g.bridge.Execute(ctx, broker.OrderRequest{
		RequestName: requestName(KindModify),
		Screen:      g.screen,
		Account:     parent.Account,
		OrderType:   orderType,
		Code:        parent.Code,
		Quantity:    qty,
		Price:       price,
		PriceType:   broker.PriceTypeLimit,
		OrigOrderNo: orderID,
	})
	if err != nil {
		return "", err
	}
	if ack.OrderNo == "" {
		return "", &GatewayRejectedError{Reason: "acknowledgement carried no order number"}
	}

	now := g.now()
	rec := &OrderRecord{
		OrderID:        ack.OrderNo,
		Account:        parent.Account,
		Code:           parent.Code,
		Side:           parent.Side,
		Kind:           KindModify,
		PriceType:      PriceLimit,
		RequestedQty:   qty,
		RequestedPrice: price,
		Status:         StatusSubmitted,
		ParentOrderID:  orderID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := g.store.Create(rec); err != nil {
		return "", err
	}

	g.logger.Info().
		Str("order_id", ack.OrderNo).
		Str("parent_order_id", orderID).
		Int64("qty", qty).
		Int64("price", price).
		Msg("modify submitted")
	return ack.OrderNo, nil
}

func priceTypeCode(pt PriceType) string {
	if pt == PriceMarket {
		return broker.PriceTypeMarket
	}
	return broker.PriceTypeLimit
}
