package main

import (
	"encoding/json"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"sync"
)

// StartMockTicker runs a quote endpoint whose prices take a small random
// step on every request. Call it in a goroutine before creating feeds.
func StartMockTicker(addr string, symbols ...string) {
	var (
		mu     sync.Mutex
		prices = make(map[string]float64, len(symbols))
	)
	for i, sym := range symbols {
		prices[sym] = 100 + 25*float64(i)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/quote", func(w http.ResponseWriter, r *http.Request) {
		sym := r.URL.Query().Get("symbol")

		mu.Lock()
		price, ok := prices[sym]
		if ok {
			price = math.Round(price*(1+(rand.Float64()-0.5)/50)*100) / 100
			prices[sym] = price
		}
		mu.Unlock()

		if !ok {
			http.Error(w, "unknown symbol", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{"symbol": sym, "price": price}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock ticker error", "error", err)
	}
}
