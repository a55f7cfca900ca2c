// Package bus provides an in-process event dispatcher whose subscriptions
// are regular expressions over the event-name namespace.
//
// Listeners are bound to a pattern. Firing a name invokes, synchronously
// and in bind order, every listener whose pattern matches that name. Any
// listener can stop further delivery for the current call by returning
// Veto:
//
//	b := bus.New()
//
//	b.BindFunc(`^order\..*$`, func(name, pattern string, evt *bus.Event) (bus.Result, error) {
//	    fmt.Println("got", name, evt.Payload)
//	    return bus.Continue, nil
//	})
//
//	_ = b.Fire("order.created", bus.NewEvent("checkout", map[string]any{"id": 1}))
//
// The first Fire of a name scans every binding and remembers the ones
// that were invoked. Later fires of the same name reuse that list until
// Flush(name) drops it. Bind keeps remembered lists current by appending
// new listeners whose pattern matches an already-seen name.
//
// A Bus is safe for concurrent use. Listeners run outside the internal
// lock and may call Bind, Unbind, Flush or Fire on the same Bus; those
// calls change the live state, never the list a running Fire is walking.
package bus
