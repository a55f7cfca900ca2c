package bus_test

import (
	"fmt"

	"github.com/shashiranjanraj/patternbus/pkg/bus"
)

func Example() {
	b := bus.New(bus.WithLogger(nil), bus.WithMetrics(false))

	b.BindFunc(`^order\.`, func(name, pattern string, evt *bus.Event) (bus.Result, error) {
		fmt.Println("audit:", name, evt.Payload)
		return bus.Continue, nil
	})
	b.BindFunc(`^order\.cancelled$`, func(name, _ string, _ *bus.Event) (bus.Result, error) {
		fmt.Println("guard: stop", name)
		return bus.Veto, nil
	})
	b.BindFunc(`\.cancelled$`, func(name, _ string, _ *bus.Event) (bus.Result, error) {
		fmt.Println("never reached for", name)
		return bus.Continue, nil
	})

	_ = b.Fire("order.created", bus.NewEvent("checkout", 1))
	_ = b.Fire("order.cancelled", bus.NewEvent("checkout", 2))

	// Output:
	// audit: order.created 1
	// audit: order.cancelled 2
	// guard: stop order.cancelled
}
