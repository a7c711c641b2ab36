package config

// MaxSubscriptionsPerSocket is the exchange-imposed cap on the number of
// streams a single websocket subscription may carry.
const MaxSubscriptionsPerSocket = 200

// ChunkSymbols splits a symbol list into chunks of at most size elements so
// each market data stream stays under the subscription cap. A non-positive
// or oversized value falls back to MaxSubscriptionsPerSocket. The input
// order is preserved.
func ChunkSymbols(symbols []string, size int) [][]string {
	if size <= 0 || size > MaxSubscriptionsPerSocket {
		size = MaxSubscriptionsPerSocket
	}

	var chunks [][]string
	for start := 0; start < len(symbols); start += size {
		end := start + size
		if end > len(symbols) {
			end = len(symbols)
		}
		chunks = append(chunks, symbols[start:end])
	}
	return chunks
}
