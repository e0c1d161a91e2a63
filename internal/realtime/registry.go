package realtime

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Subscriber is one live connection. Deliver must not block: it either queues msg or fails.
// Deliver is called with the room locked and must not call back into the Registry.
type Subscriber interface {
	ID() string
	Deliver(msg []byte) error
}

var ErrConnectionClosed = errors.New("connection removed from registry")

const defaultShards = 32

type room struct {
	mu   sync.Mutex
	subs map[string]Subscriber
}

type shard struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

type connEntry struct {
	mu     sync.Mutex
	closed bool
	orders map[string]struct{}
}

// Registry maps order id -> subscribed connections and connection -> order ids.
//
// Rooms are spread over shards, each with its own lock, so different orders never contend
// on one global mutex. Lock order is conn entry, then shard, then room.
type Registry struct {
	shards  []*shard
	conns   sync.Map // conn id -> *connEntry
	metrics *Metrics
}

func NewRegistry(metrics *Metrics) *Registry {
	return NewRegistryWithShards(defaultShards, metrics)
}

func NewRegistryWithShards(n int, metrics *Metrics) *Registry {
	if n <= 0 {
		n = defaultShards
	}
	r := &Registry{shards: make([]*shard, n), metrics: metrics}
	for i := range r.shards {
		r.shards[i] = &shard{rooms: make(map[string]*room)}
	}
	return r
}

func (r *Registry) shardFor(orderID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(orderID))
	return r.shards[h.Sum32()%uint32(len(r.shards))]
}

func (r *Registry) entry(connID string) *connEntry {
	v, _ := r.conns.LoadOrStore(connID, &connEntry{orders: make(map[string]struct{})})
	return v.(*connEntry)
}

// Subscribe adds sub to the order's room. Subscribing twice is a no-op and reports added=false.
// The order does not need to have a tracking record.
func (r *Registry) Subscribe(orderID string, sub Subscriber) (added bool, err error) {
	ce := r.entry(sub.ID())
	ce.mu.Lock()
	defer ce.mu.Unlock()
	if ce.closed {
		return false, ErrConnectionClosed
	}
	if _, ok := ce.orders[orderID]; ok {
		return false, nil
	}

	sh := r.shardFor(orderID)
	sh.mu.Lock()
	rm, ok := sh.rooms[orderID]
	if !ok {
		rm = &room{subs: make(map[string]Subscriber)}
		sh.rooms[orderID] = rm
		r.metrics.roomOpened()
	}
	rm.mu.Lock()
	rm.subs[sub.ID()] = sub
	rm.mu.Unlock()
	sh.mu.Unlock()

	ce.orders[orderID] = struct{}{}
	r.metrics.subscribed()
	return true, nil
}

// Unsubscribe removes the connection from the order's room; no-op when it is not there.
func (r *Registry) Unsubscribe(orderID, connID string) bool {
	v, ok := r.conns.Load(connID)
	if !ok {
		return false
	}
	ce := v.(*connEntry)
	ce.mu.Lock()
	defer ce.mu.Unlock()
	if _, ok := ce.orders[orderID]; !ok {
		return false
	}
	delete(ce.orders, orderID)
	r.removeFromRoom(orderID, connID)
	return true
}

// RemoveConnection drops the connection from every room it joined and returns those order ids.
// After it returns, Subscribe for the same connection fails with ErrConnectionClosed
// until a new connection with that id registers.
func (r *Registry) RemoveConnection(connID string) []string {
	v, ok := r.conns.Load(connID)
	if !ok {
		return nil
	}
	ce := v.(*connEntry)
	ce.mu.Lock()
	defer ce.mu.Unlock()
	if ce.closed {
		return nil
	}
	ce.closed = true
	r.conns.Delete(connID)

	orders := make([]string, 0, len(ce.orders))
	for orderID := range ce.orders {
		r.removeFromRoom(orderID, connID)
		orders = append(orders, orderID)
	}
	ce.orders = nil
	sort.Strings(orders)
	return orders
}

func (r *Registry) removeFromRoom(orderID, connID string) {
	sh := r.shardFor(orderID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rm, ok := sh.rooms[orderID]
	if !ok {
		return
	}
	rm.mu.Lock()
	if _, ok := rm.subs[connID]; ok {
		delete(rm.subs, connID)
		r.metrics.unsubscribed()
	}
	empty := len(rm.subs) == 0
	rm.mu.Unlock()

	if empty {
		delete(sh.rooms, orderID)
		r.metrics.roomClosed()
	}
}

// Subscribers returns the connection ids in the order's room, sorted.
func (r *Registry) Subscribers(orderID string) []string {
	sh := r.shardFor(orderID)
	sh.mu.RLock()
	rm, ok := sh.rooms[orderID]
	if !ok {
		sh.mu.RUnlock()
		return nil
	}
	rm.mu.Lock()
	sh.mu.RUnlock()
	ids := make([]string, 0, len(rm.subs))
	for id := range rm.subs {
		ids = append(ids, id)
	}
	rm.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Orders returns the order ids the connection is subscribed to, sorted.
func (r *Registry) Orders(connID string) []string {
	v, ok := r.conns.Load(connID)
	if !ok {
		return nil
	}
	ce := v.(*connEntry)
	ce.mu.Lock()
	defer ce.mu.Unlock()
	out := make([]string, 0, len(ce.orders))
	for id := range ce.orders {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of rooms with at least one subscriber.
func (r *Registry) Count() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		n += len(sh.rooms)
		sh.mu.RUnlock()
	}
	return n
}

// forEach runs fn for every subscriber of the room while holding the room lock,
// so two calls for the same order reach each subscriber in call order.
func (r *Registry) forEach(orderID string, fn func(Subscriber)) {
	sh := r.shardFor(orderID)
	sh.mu.RLock()
	rm, ok := sh.rooms[orderID]
	if !ok {
		sh.mu.RUnlock()
		return
	}
	rm.mu.Lock()
	sh.mu.RUnlock()
	defer rm.mu.Unlock()

	for _, s := range rm.subs {
		fn(s)
	}
}
