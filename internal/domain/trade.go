package domain

// Trade represents a simulated fill produced by a strategy run.
// The analytics engine never emits trades; the type exists so the result
// shape stays stable once a trade-simulation layer is added.
type Trade struct {
	Symbol    string    `json:"symbol"`
	Side      OrderSide `json:"side"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	PNL       float64   `json:"pnl"`
	Timestamp int64     `json:"timestamp"` // epoch ms
}
