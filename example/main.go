package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/cellstore"
)

// Portfolio is the whole application state.
type Portfolio struct {
	Prices   map[string]float64
	Holdings map[string]float64
}

func main() {
	symbols := []string{"ACME", "GLOBEX", "INITECH"}

	// start mock ticker (see mock_server.go)
	go StartMockTicker(":9999", symbols...)
	time.Sleep(100 * time.Millisecond)

	st, err := cellstore.New(Portfolio{
		Prices:   map[string]float64{},
		Holdings: map[string]float64{"ACME": 10},
	})
	if err != nil {
		slog.Error("failed to create store", "error", err)
		os.Exit(1)
	}
	st.AddValidator("no-short", func(p Portfolio) bool {
		for _, qty := range p.Holdings {
			if qty < 0 {
				return false
			}
		}
		return true
	})

	// quote receives whole feed payloads: {"symbol": "...", "price": 1.23}
	cellstore.RegEventArg(st, "quote", func(p Portfolio, q map[string]any) Portfolio {
		sym, _ := q["symbol"].(string)
		price, _ := q["price"].(float64)
		prices := make(map[string]float64, len(p.Prices)+1)
		for k, v := range p.Prices {
			prices[k] = v
		}
		prices[sym] = price
		return Portfolio{Prices: prices, Holdings: p.Holdings}
	})

	// trade takes a symbol and a signed quantity; sells below zero are rejected
	st.RegEventChecked("trade", func(p Portfolio, args ...any) Portfolio {
		sym, qty := args[0].(string), args[1].(float64)
		holdings := make(map[string]float64, len(p.Holdings)+1)
		for k, v := range p.Holdings {
			holdings[k] = v
		}
		holdings[sym] += qty
		return Portfolio{Prices: p.Prices, Holdings: holdings}
	}, func(args []any) error {
		if len(args) != 2 {
			return fmt.Errorf("want symbol and quantity, got %d arguments", len(args))
		}
		if _, ok := args[0].(string); !ok {
			return fmt.Errorf("symbol must be a string, got %T", args[0])
		}
		if _, ok := args[1].(float64); !ok {
			return fmt.Errorf("quantity must be a number, got %T", args[1])
		}
		return nil
	})

	cellstore.RegSubArg(st, "price", func(p Portfolio, sym string) float64 {
		return p.Prices[sym]
	})
	cellstore.RegSubValue(st, "value", func(p Portfolio) float64 {
		total := 0.0
		for sym, qty := range p.Holdings {
			total += qty * p.Prices[sym]
		}
		return total
	})

	var feeds []cellstore.Feed
	for _, sym := range symbols {
		f, err := cellstore.NewFeed(sym, "http://localhost:9999/quote?symbol="+sym, "quote",
			cellstore.WithInterval(2*time.Second),
		)
		if err != nil {
			slog.Error("failed to create feed", "error", err)
			os.Exit(1)
		}
		feeds = append(feeds, f)
	}

	fmt.Println()
	fmt.Println("  cellstore demo")
	fmt.Println()
	fmt.Println("  Open http://localhost:8080 in your browser")
	fmt.Println("  Feeds:  3 mock quotes, every 2s")
	fmt.Println("  Events: quote, trade [symbol, qty]")
	fmt.Println("  Subs:   price [symbol], value")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = cellstore.Serve(ctx, st,
		cellstore.WithTitle("Portfolio"),
		cellstore.WithPort(8080),
		cellstore.WithFeeds(feeds...),
		cellstore.WithFeedCallback(func(r cellstore.FeedResult) {
			if r.Err != nil {
				slog.Warn("quote failed", "feed", r.Feed, "error", r.Err)
			}
		}),
	)
	if err != nil {
		slog.Error("cellstore error", "error", err)
		os.Exit(1)
	}
}
