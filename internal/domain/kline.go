package domain

import "time"

// Bar represents a single OHLCV observation. Time is the bar open time in
// epoch milliseconds.
type Bar struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// OpenTime returns the bar open time as a UTC time.Time.
func (b Bar) OpenTime() time.Time {
	return time.UnixMilli(b.Time).UTC()
}

// FlatBar builds a bar for sources that only publish a single price per
// period: open, high, low and close all equal price and volume is zero.
func FlatBar(ts int64, price float64) Bar {
	return Bar{
		Time:   ts,
		Open:   price,
		High:   price,
		Low:    price,
		Close:  price,
		Volume: 0,
	}
}
