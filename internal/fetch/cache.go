package fetch

import (
	"container/list"
	"sync"
	"time"
)

// payloadCache is an LRU of batch fingerprint → cached payload. Entries older
// than the TTL are never returned and are dropped when looked up.
type payloadCache struct {
	mu         sync.Mutex
	maxEntries int

	// items maps fingerprint → list element (whose value is *cacheEntry)
	items map[uint64]*list.Element
	order *list.List // front = most recently used
}

type cacheEntry struct {
	fingerprint uint64
	batch       string
	fetchedAt   time.Time
	payload     *Payload
}

func newPayloadCache(maxEntries int) *payloadCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &payloadCache{
		maxEntries: maxEntries,
		items:      make(map[uint64]*list.Element),
		order:      list.New(),
	}
}

// get returns the payload for fp if it was fetched less than ttl before now.
// On hit, the entry is promoted to most-recently-used.
func (c *payloadCache) get(fp uint64, now time.Time, ttl time.Duration) (*Payload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[fp]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if now.Sub(entry.fetchedAt) >= ttl {
		c.removeLocked(elem)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return entry.payload, true
}

// put stores a payload, replacing any previous entry for fp, and returns how
// many entries were evicted to stay within maxEntries.
func (c *payloadCache) put(fp uint64, batch string, fetchedAt time.Time, p *Payload) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &cacheEntry{fingerprint: fp, batch: batch, fetchedAt: fetchedAt, payload: p}
	if elem, ok := c.items[fp]; ok {
		elem.Value = entry
		c.order.MoveToFront(elem)
		return 0
	}

	c.items[fp] = c.order.PushFront(entry)

	evicted := 0
	for c.order.Len() > c.maxEntries {
		c.removeLocked(c.order.Back())
		evicted++
	}
	return evicted
}

// remove drops the entry for fp and reports whether one existed.
func (c *payloadCache) remove(fp uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[fp]
	if ok {
		c.removeLocked(elem)
	}
	return ok
}

// removeLocked removes a specific element. Caller must hold c.mu.
func (c *payloadCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.order.Remove(elem)
	delete(c.items, entry.fingerprint)
}

// clear drops every entry and returns what was dropped, most recent first.
func (c *payloadCache) clear() []cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := make([]cacheEntry, 0, c.order.Len())
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		dropped = append(dropped, *elem.Value.(*cacheEntry))
	}
	c.items = make(map[uint64]*list.Element)
	c.order.Init()
	return dropped
}

func (c *payloadCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
