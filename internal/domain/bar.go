package domain

// Bar represents one OHLC observation of the source series.
// Index is the 0-based position in the ordered series.
type Bar struct {
	Index     int     // position in series
	Timestamp int64   // Unix timestamp in milliseconds
	Open      float64 // open price
	High      float64 // high price
	Low       float64 // low price
	Close     float64 // close price
	Volume    float64 // traded volume, informational only
}
