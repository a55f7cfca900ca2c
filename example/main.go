// Package main is an example of a minimal program using patternbus.
//
// To run this example:
//
//	go run ./example
//	# Or replay the same flow through the CLI:
//	go run ./cmd/busctl run example/orders.yaml
package main

import (
	"fmt"
	"os"

	"github.com/shashiranjanraj/patternbus/pkg/bus"
	"github.com/shashiranjanraj/patternbus/pkg/logger"
)

type order struct {
	ID    int
	Total float64
}

func main() {
	b := bus.New(bus.WithSource("example"))

	// Every order event is audited.
	b.BindFunc(`^order\.`, auditHandler)
	// Cancelled orders stop here; nothing bound later sees them.
	b.BindFunc(`^order\.cancelled$`, guardHandler)
	b.BindFunc(`\.cancelled$`, refundHandler)

	for _, name := range []string{"order.created", "order.cancelled", "order.created"} {
		if err := b.Fire(name, bus.NewEvent("", order{ID: 42, Total: 19.9})); err != nil {
			logger.Error("fire failed", "event", name, "error", err)
			os.Exit(1)
		}
	}

	// Forget what order.created resolved to; its listeners are unbound too.
	if err := b.Flush("order.created"); err != nil {
		logger.Error("flush failed", "error", err)
	}
	fmt.Printf("%d bindings left\n", b.Stats().Bindings)
}

// ─── Example Listeners ────────────────────────────────────────────────────────

func auditHandler(name, _ string, evt *bus.Event) (bus.Result, error) {
	fmt.Printf("audit  %-16s from %s at %s: %+v\n", name, evt.Source, evt.Time().Format("15:04:05"), evt.Payload)
	return bus.Continue, nil
}

func guardHandler(name, _ string, _ *bus.Event) (bus.Result, error) {
	fmt.Printf("guard  %-16s vetoed\n", name)
	return bus.Veto, nil
}

func refundHandler(name, _ string, _ *bus.Event) (bus.Result, error) {
	fmt.Printf("refund %-16s (never printed, guard vetoes first)\n", name)
	return bus.Continue, nil
}
