package protocol

// CreateOrderResult is the data of a successful create-order
type CreateOrderResult struct {
	OrderID string `json:"orderId"`
	Message string `json:"message"`
}

// CloseTradeResult is the data of a successful close-trade
type CloseTradeResult struct {
	OrderID    string  `json:"orderId"`
	ClosePrice float64 `json:"closePrice"`
	Credited   float64 `json:"credited"`
	Message    string  `json:"message"`
}

// BalanceResult is the data of get-balance
type BalanceResult struct {
	USD float64 `json:"usd"`
}

// AssetView is one balance entry
type AssetView struct {
	Qty  float64 `json:"qty"`
	Type string  `json:"type,omitempty"`
}

// AssetsResult is the data of get-assets
type AssetsResult struct {
	Assets map[string]AssetView `json:"assets"`
}

// TradeView is an order as returned to clients
type TradeView struct {
	OrderID    string   `json:"orderId"`
	Type       string   `json:"type"`
	Symbol     string   `json:"symbol"`
	Qty        float64  `json:"qty"`
	OpenPrice  float64  `json:"openPrice"`
	Status     string   `json:"status"`
	Leverage   *int     `json:"leverage,omitempty"`
	Margin     *float64 `json:"margin,omitempty"`
	ClosePrice *float64 `json:"closePrice,omitempty"`
	PnL        *float64 `json:"pnl,omitempty"`
}

// TradesResult is the data of get-open-trades and get-closed-trades.
// Lists are wrapped so an empty list is still a successful reply.
type TradesResult struct {
	Orders []TradeView `json:"orders"`
}
