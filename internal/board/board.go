// Package board keeps the visible order list consistent while three sources
// race each other: optimistic local actions, REST fetches and real-time
// events.
package board

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/loclhse/toolbanhangUIUX/internal/eventbus"
	"github.com/loclhse/toolbanhangUIUX/internal/metrics"
	"github.com/loclhse/toolbanhangUIUX/internal/pos"
	"github.com/loclhse/toolbanhangUIUX/internal/realtime"
	"github.com/loclhse/toolbanhangUIUX/internal/storage"
	log "github.com/sirupsen/logrus"
)

// EventOrderCreatedLocal carries a pos.Order the REST API just created, so
// the board can show it before any fetch or real-time update confirms it.
const EventOrderCreatedLocal = "order_created_local"

const (
	keyMarkedItems     = "markedItems"
	keyDeletedOrderIDs = "deletedOrderIds"

	defaultFreshnessWindow    = 5 * time.Second
	defaultStalenessThreshold = 30 * time.Second
	defaultTombstoneCapacity  = 1024
)

type Options struct {
	// Store persists marks and deletions; nil keeps them in memory only.
	Store   *storage.Store
	Log     log.FieldLogger
	Metrics *metrics.Prom

	FreshnessWindow    time.Duration
	StalenessThreshold time.Duration
	TombstoneCapacity  int

	// OnChange runs after every mutation, outside the board's lock.
	OnChange func()
	Now      func() time.Time
}

type Board struct {
	store     *storage.Store
	log       log.FieldLogger
	metrics   *metrics.Prom
	freshness time.Duration
	staleness time.Duration
	onChange  func()
	now       func() time.Time

	mu         sync.Mutex
	orders     map[pos.ID]pos.Order
	pending    map[pos.ID]pos.Order // created locally, not yet confirmed
	tombstones *lru.Cache[pos.ID, time.Time]
	marks      map[pos.ID]map[pos.ID]struct{}
	updated    map[pos.ID]time.Time // last real-time update per order
	active     bool
	lastEvent  time.Time
	lastFetch  time.Time
}

// New builds a board and restores persisted marks. The board starts
// inactive; call Activate once the consumer is showing it.
func New(opts Options) (*Board, error) {
	capacity := opts.TombstoneCapacity
	if capacity <= 0 {
		capacity = defaultTombstoneCapacity
	}
	tombstones, err := lru.New[pos.ID, time.Time](capacity)
	if err != nil {
		return nil, err
	}
	b := &Board{
		store:      opts.Store,
		log:        opts.Log,
		metrics:    opts.Metrics,
		freshness:  opts.FreshnessWindow,
		staleness:  opts.StalenessThreshold,
		onChange:   opts.OnChange,
		now:        opts.Now,
		orders:     make(map[pos.ID]pos.Order),
		pending:    make(map[pos.ID]pos.Order),
		tombstones: tombstones,
		marks:      make(map[pos.ID]map[pos.ID]struct{}),
		updated:    make(map[pos.ID]time.Time),
	}
	if b.log == nil {
		b.log = log.StandardLogger()
	}
	b.log = b.log.WithField("component", "board")
	if b.metrics == nil {
		b.metrics = metrics.NewProm()
	}
	if b.freshness <= 0 {
		b.freshness = defaultFreshnessWindow
	}
	if b.staleness <= 0 {
		b.staleness = defaultStalenessThreshold
	}
	if b.now == nil {
		b.now = time.Now
	}
	b.loadMarks()
	return b, nil
}

// Attach wires the board to real-time and local events on bus.
func (b *Board) Attach(bus *eventbus.Bus) []eventbus.Subscription {
	return []eventbus.Subscription{
		bus.On(realtime.EventOrderUpdate, func(p any) {
			if o, ok := p.(pos.Order); ok {
				b.ApplyOrderUpdate(o)
			}
		}),
		bus.On(realtime.EventOrderDeleted, func(p any) {
			if id, ok := p.(pos.ID); ok {
				b.ApplyOrderDeleted(id)
			}
		}),
		bus.On(realtime.EventPaymentUpdate, func(p any) {
			if pay, ok := p.(pos.Payment); ok {
				b.ApplyPayment(pay)
			}
		}),
		bus.On(realtime.EventItemMarked, func(p any) {
			if m, ok := p.(pos.ItemMark); ok {
				b.ApplyItemMark(m)
			}
		}),
		bus.On(EventOrderCreatedLocal, func(p any) {
			if o, ok := p.(pos.Order); ok {
				b.AddLocalOrder(o)
			}
		}),
	}
}

// BeginFetch returns the watermark for a REST fetch issued now. Pass it
// back to ApplyFetch with the response.
func (b *Board) BeginFetch() time.Time {
	return b.now()
}

// ApplyFetch merges a REST order list requested at startedAt and returns the
// visible orders. Orders updated in real time after startedAt keep their
// newer state, and a response older than the last applied one is ignored.
// Tombstoned orders stay hidden until a fetch no longer contains them;
// fetched records replace optimistic ones with the same id.
func (b *Board) ApplyFetch(orders []pos.Order, startedAt time.Time) []pos.Order {
	b.mu.Lock()
	if startedAt.Before(b.lastFetch) {
		visible := b.visibleLocked()
		b.mu.Unlock()
		b.log.WithField("started", startedAt).Debug("discarding superseded fetch")
		return visible
	}
	fetched := make(map[pos.ID]struct{}, len(orders))
	next := make(map[pos.ID]pos.Order, len(orders))
	hidden := 0
	for _, o := range orders {
		fetched[o.ID] = struct{}{}
		if b.tombstones.Contains(o.ID) {
			hidden++
			continue
		}
		next[o.ID] = o
		delete(b.pending, o.ID)
	}
	kept := 0
	for id, at := range b.updated {
		if !at.After(startedAt) {
			delete(b.updated, id)
			continue
		}
		if o, ok := b.orders[id]; ok {
			next[id] = o
			kept++
		}
	}
	for _, id := range b.tombstones.Keys() {
		if _, ok := fetched[id]; !ok {
			b.tombstones.Remove(id)
		}
	}
	b.orders = next
	b.lastFetch = startedAt
	pruned := b.pruneMarksLocked()
	visible := b.visibleLocked()
	b.mu.Unlock()

	b.log.WithFields(log.Fields{"fetched": len(orders), "hidden": hidden, "kept": kept, "visible": len(visible)}).Debug("fetch merged")
	if pruned {
		b.saveMarks()
	}
	b.changed()
	return visible
}

// AddLocalOrder shows an order the API just created.
func (b *Board) AddLocalOrder(o pos.Order) {
	b.mu.Lock()
	if o.ID == "" || b.tombstones.Contains(o.ID) {
		b.mu.Unlock()
		return
	}
	if _, confirmed := b.orders[o.ID]; !confirmed {
		b.pending[o.ID] = o
	}
	b.mu.Unlock()
	b.changed()
}

// ApplyOrderUpdate upserts a real-time order snapshot.
func (b *Board) ApplyOrderUpdate(o pos.Order) {
	b.mu.Lock()
	b.lastEvent = b.now()
	if b.tombstones.Contains(o.ID) {
		b.mu.Unlock()
		return
	}
	delete(b.pending, o.ID)
	b.orders[o.ID] = o
	b.updated[o.ID] = b.lastEvent
	pruned := false
	if o.Status.IsTerminal() {
		_, pruned = b.marks[o.ID]
		delete(b.marks, o.ID)
	}
	b.mu.Unlock()

	if pruned {
		b.saveMarks()
	}
	b.changed()
}

// ApplyOrderDeleted hides id until the backend stops returning it.
func (b *Board) ApplyOrderDeleted(id pos.ID) {
	b.mu.Lock()
	b.lastEvent = b.now()
	b.removeLocked(id)
	active := b.active
	b.mu.Unlock()

	if !active {
		b.recordDeletion(id)
	}
	b.saveMarks()
	b.changed()
}

// ApplyPayment removes the order a confirmed payment settles.
func (b *Board) ApplyPayment(p pos.Payment) {
	if !p.IsConfirmed() || p.OrderID == "" {
		b.mu.Lock()
		b.lastEvent = b.now()
		b.mu.Unlock()
		return
	}
	b.ApplyOrderDeleted(p.OrderID)
}

func (b *Board) removeLocked(id pos.ID) {
	b.tombstones.Add(id, b.now())
	delete(b.orders, id)
	delete(b.pending, id)
	delete(b.marks, id)
	delete(b.updated, id)
}

// ApplyItemMark mirrors a mark made on another client.
func (b *Board) ApplyItemMark(m pos.ItemMark) {
	b.mu.Lock()
	b.lastEvent = b.now()
	b.setMarkLocked(m.OrderID, m.ItemID, m.Marked)
	b.mu.Unlock()

	b.saveMarks()
	b.changed()
}

// ToggleMark flips the local mark and returns the new state. The caller is
// responsible for publishing it.
func (b *Board) ToggleMark(orderID, itemID pos.ID) bool {
	b.mu.Lock()
	_, marked := b.marks[orderID][itemID]
	b.setMarkLocked(orderID, itemID, !marked)
	b.mu.Unlock()

	b.saveMarks()
	b.changed()
	return !marked
}

func (b *Board) setMarkLocked(orderID, itemID pos.ID, marked bool) {
	items := b.marks[orderID]
	if marked {
		if items == nil {
			items = make(map[pos.ID]struct{})
			b.marks[orderID] = items
		}
		items[itemID] = struct{}{}
		return
	}
	delete(items, itemID)
	if len(items) == 0 {
		delete(b.marks, orderID)
	}
}

// pruneMarksLocked drops marks for orders that vanished or finished.
func (b *Board) pruneMarksLocked() bool {
	pruned := false
	for id := range b.marks {
		o, ok := b.orders[id]
		if !ok {
			_, ok = b.pending[id]
		}
		if !ok || o.Status.IsTerminal() {
			delete(b.marks, id)
			pruned = true
		}
	}
	return pruned
}

// IsMarked reports whether itemID of orderID is marked.
func (b *Board) IsMarked(orderID, itemID pos.ID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.marks[orderID][itemID]
	return ok
}

// Marked returns the marked item ids of orderID, sorted.
func (b *Board) Marked(orderID pos.ID) []pos.ID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return sortedIDs(b.marks[orderID])
}

// Orders returns the visible orders, oldest first.
func (b *Board) Orders() []pos.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.visibleLocked()
}

func (b *Board) visibleLocked() []pos.Order {
	out := make([]pos.Order, 0, len(b.orders)+len(b.pending))
	for _, o := range b.orders {
		out = append(out, o)
	}
	for id, o := range b.pending {
		if _, ok := b.orders[id]; !ok {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Activate marks the board visible and replays deletions recorded while it
// was not.
func (b *Board) Activate() {
	var deleted []pos.ID
	if b.store != nil {
		if _, err := b.store.GetJSON(keyDeletedOrderIDs, &deleted); err != nil {
			b.log.WithError(err).Warn("cannot read pending deletions")
		}
	}

	b.mu.Lock()
	b.active = true
	for _, id := range deleted {
		b.removeLocked(id)
	}
	b.mu.Unlock()

	if len(deleted) > 0 {
		b.log.WithField("count", len(deleted)).Info("replayed deletions")
		if err := b.store.Delete(keyDeletedOrderIDs); err != nil {
			b.log.WithError(err).Warn("cannot clear pending deletions")
		}
		b.saveMarks()
	}
	b.changed()
}

// Deactivate marks the board hidden; deletions seen from now on are also
// written to storage.
func (b *Board) Deactivate() {
	b.mu.Lock()
	b.active = false
	b.mu.Unlock()
}

// ShouldRefetch reports whether reactivation warrants a REST fetch. It is
// skipped while real-time events are flowing or the last fetch is recent.
func (b *Board) ShouldRefetch() bool {
	b.mu.Lock()
	now := b.now()
	recentEvent := !b.lastEvent.IsZero() && now.Sub(b.lastEvent) < b.freshness
	recentFetch := !b.lastFetch.IsZero() && now.Sub(b.lastFetch) < b.staleness
	b.mu.Unlock()

	switch {
	case recentEvent:
		b.metrics.Refetches.WithLabelValues("skip_fresh_event").Inc()
		return false
	case recentFetch:
		b.metrics.Refetches.WithLabelValues("skip_recent_fetch").Inc()
		return false
	}
	b.metrics.Refetches.WithLabelValues("fetch").Inc()
	return true
}

func (b *Board) changed() {
	if b.onChange != nil {
		b.onChange()
	}
}

func (b *Board) recordDeletion(id pos.ID) {
	if b.store == nil {
		return
	}
	var deleted []pos.ID
	if _, err := b.store.GetJSON(keyDeletedOrderIDs, &deleted); err != nil {
		b.log.WithError(err).Warn("cannot read pending deletions, starting over")
		deleted = nil
	}
	for _, d := range deleted {
		if d == id {
			return
		}
	}
	deleted = append(deleted, id)
	if err := b.store.PutJSON(keyDeletedOrderIDs, deleted); err != nil {
		b.log.WithError(err).Warn("cannot record deletion")
	}
}

func (b *Board) loadMarks() {
	if b.store == nil {
		return
	}
	var saved map[pos.ID][]pos.ID
	if _, err := b.store.GetJSON(keyMarkedItems, &saved); err != nil {
		b.log.WithError(err).Warn("discarding unreadable marks")
		return
	}
	for orderID, items := range saved {
		for _, itemID := range items {
			b.setMarkLocked(orderID, itemID, true)
		}
	}
}

func (b *Board) saveMarks() {
	if b.store == nil {
		return
	}
	b.mu.Lock()
	out := make(map[pos.ID][]pos.ID, len(b.marks))
	for orderID, items := range b.marks {
		out[orderID] = sortedIDs(items)
	}
	b.mu.Unlock()

	if err := b.store.PutJSON(keyMarkedItems, out); err != nil {
		b.log.WithError(err).Warn("cannot persist marks")
	}
}

func sortedIDs(set map[pos.ID]struct{}) []pos.ID {
	out := make([]pos.ID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
