// Standalone mock ticker for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/tickerserver
//
// Then in another terminal:
//
//	go run ./cmd/cellstore serve -c example/store.yaml
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sync"
)

func main() {
	fmt.Println("Mock ticker starting on :9999")
	fmt.Println("GET /quote?symbol=ACME returns {\"symbol\": ..., \"price\": ...}")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var (
		mu     sync.Mutex
		prices = map[string]float64{"ACME": 100, "GLOBEX": 125}
	)

	http.HandleFunc("/quote", func(w http.ResponseWriter, r *http.Request) {
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
		_ = json.NewEncoder(w).Encode(map[string]any{"symbol": sym, "price": price})
	})

	if err := http.ListenAndServe(":9999", nil); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
