// Package broker defines the session boundary to the Kiwoom OpenAPI bridge:
// the order wire vocabulary (order type codes, price type codes, status codes,
// chejan FIDs) and the Session capability interface consumed by the trading
// subsystem. A Session delivers exactly one synchronous-style request at a
// time and answers it asynchronously through the TR callback; fill and
// balance updates arrive unsolicited on the chejan callback.
package broker

import "context"

// Order type codes as the broker encodes them in SendOrder.
const (
	OrderTypeBuy        = 1
	OrderTypeSell       = 2
	OrderTypeCancelBuy  = 3
	OrderTypeCancelSell = 4
	OrderTypeModifyBuy  = 5
	OrderTypeModifySell = 6
)

// Price type codes (hoga classification).
const (
	PriceTypeLimit  = "00"
	PriceTypeMarket = "03"
)

// Order status codes carried in chejan FID 913.
const (
	StatusReceipt    = "00"
	StatusProcessing = "01"
	StatusComplete   = "02"
	StatusConfirmed  = "03"
	StatusRejected   = "04"
	StatusCancelled  = "05"
	StatusModified   = "06"
)

// Chejan record classes.
const (
	GubunExecution = "0" // order execution update
	GubunBalance   = "1" // account balance update
)

// Chejan field identifiers. Payloads are field-indexed maps of FID to raw
// string value and must be normalized before use.
const (
	FIDAccountNo    = 9201
	FIDOrderNo      = 9203
	FIDCode         = 9001
	FIDName         = 302
	FIDOrderType    = 905
	FIDOrderQty     = 900
	FIDOrderPrice   = 901
	FIDFilledQty    = 911
	FIDFilledPrice  = 910
	FIDOrderStatus  = 913
	FIDTradeTime    = 908
	FIDTradeNo      = 909
	FIDHeldQty      = 930
	FIDOrderableQty = 933
	FIDCurrentPrice = 10
	FIDProfitLoss   = 8019
)

// OrderRequest is a single SendOrder invocation. RequestName tags the
// request so its TR acknowledgement can be matched; OrigOrderNo is set only
// for cancel and modify requests.
type OrderRequest struct {
	RequestName string
	Screen      string
	Account     string
	OrderType   int
	Code        string
	Quantity    int64
	Price       int64
	PriceType   string
	OrigOrderNo string
}

// TRAck is the asynchronous acknowledgement of an OrderRequest. OrderNo is
// the broker-assigned order number; an empty OrderNo means the broker
// refused the request after accepting the send.
type TRAck struct {
	RequestName string
	Screen      string
	OrderNo     string
	Code        string
	Quantity    int64
	Price       int64
}

// ChejanEvent is a raw push from the execution/balance channel. Fields is
// keyed by FID.
type ChejanEvent struct {
	Gubun  string
	Fields map[int]string
}

// TRHandler receives TR acknowledgements.
type TRHandler func(TRAck)

// ChejanHandler receives execution and balance pushes.
type ChejanHandler func(ChejanEvent)

// Session is the fixed capability surface of a broker connection. The
// trading subsystem assumes a single outstanding synchronous request per
// session and eventual, not immediate, callback delivery. Chejan events for
// a given order are delivered in broker order.
type Session interface {
	// Connect establishes the broker session.
	Connect(ctx context.Context) error

	// SendOrder submits the request and returns the broker's immediate
	// result code. Zero means the send was synchronously accepted and a TR
	// acknowledgement will follow; any other value is a synchronous
	// rejection and no callback is delivered.
	SendOrder(req OrderRequest) int

	// OnTRData registers the handler for TR acknowledgements.
	OnTRData(h TRHandler)

	// OnChejanData registers the handler for execution/balance pushes.
	OnChejanData(h ChejanHandler)

	// Close tears the session down and stops callback delivery.
	Close() error
}
