package models

// Pub/sub channels shared by the simulator, the API and browser clients.
const (
	TopicMarketData = "market-data"
	TopicYieldCurve = "yield-curve"
	TopicTrades     = "trades"
)

// Topics lists every channel the feed forwards.
var Topics = []string{TopicMarketData, TopicYieldCurve, TopicTrades}

// BondKey is the Redis hash holding the latest quote for cusip.
func BondKey(cusip string) string {
	return "bond:" + cusip
}

// SnapshotStream is the capped Redis stream of recent market snapshots.
const SnapshotStream = "market:snapshots"
