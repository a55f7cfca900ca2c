package bus

import "sort"

// cache maps an exact event name to the bindings known to match it, in
// bind order. A name with no entry has never been resolved, or was flushed.
// An entry can be empty once Unbind or Flush removed all of its bindings.
type cache struct {
	entries map[string][]*binding
}

func newCache() cache {
	return cache{entries: make(map[string][]*binding)}
}

// lookup returns a copy of the entry for name.
func (c *cache) lookup(name string) ([]*binding, bool) {
	entry, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	out := make([]*binding, len(entry))
	copy(out, entry)
	return out, true
}

// add inserts b into name's entry, creating the entry if needed. Entries
// stay sorted by handle, which is bind order, so the result matches
// registry order however the bindings arrived. A binding already present
// is not added twice.
func (c *cache) add(name string, b *binding) {
	entry := c.entries[name]
	i := sort.Search(len(entry), func(i int) bool { return entry[i].handle >= b.handle })
	if i < len(entry) && entry[i].handle == b.handle {
		return
	}
	entry = append(entry, nil)
	copy(entry[i+1:], entry[i:])
	entry[i] = b
	c.entries[name] = entry
}

// backfill adds b to every existing entry whose name its pattern
// matches. A pattern that does not compile matches nothing here; the error
// is reported by the next scan that evaluates it.
func (c *cache) backfill(b *binding) []string {
	var names []string
	for name := range c.entries {
		ok, err := b.match(name)
		if err != nil || !ok {
			continue
		}
		c.add(name, b)
		names = append(names, name)
	}
	return names
}

// drop deletes name's entry and returns the handles it held.
func (c *cache) drop(name string) (map[Handle]struct{}, bool) {
	entry, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	delete(c.entries, name)

	set := make(map[Handle]struct{}, len(entry))
	for _, b := range entry {
		set[b.handle] = struct{}{}
	}
	return set, true
}

// forget removes the handles in set from every entry. Entries are kept
// even when they become empty.
func (c *cache) forget(set map[Handle]struct{}) {
	for name, entry := range c.entries {
		kept := entry[:0]
		for _, b := range entry {
			if _, gone := set[b.handle]; !gone {
				kept = append(kept, b)
			}
		}
		for i := len(kept); i < len(entry); i++ {
			entry[i] = nil
		}
		c.entries[name] = kept
	}
}

func (c *cache) handles(name string) ([]Handle, bool) {
	entry, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	out := make([]Handle, len(entry))
	for i, b := range entry {
		out[i] = b.handle
	}
	return out, true
}

func (c *cache) len() int {
	return len(c.entries)
}
