// Package cart implements the in-memory cart: line de-duplication, quantity
// mutation and visibility state. It is the only owner of cart lines.
package cart

import (
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/xenking/apparel-storefront/internal/domain/pricing"
)

// Store holds the cart state of one browser session. Every method is atomic
// with respect to the others.
type Store struct {
	mu     sync.Mutex
	lines  []Line
	isOpen bool
	nextID int

	calc pricing.Calculator

	lmu       sync.RWMutex
	listeners []subscriber
	nextSub   int
}

type subscriber struct {
	id int
	l  Listener
}

// Option configures a Store.
type Option func(*Store)

// WithCalculator sets the calculator used by Total.
func WithCalculator(c pricing.Calculator) Option {
	return func(s *Store) { s.calc = c }
}

// New creates an empty, closed cart.
func New(opts ...Option) *Store {
	s := &Store{
		nextID: 1,
		calc:   pricing.DefaultCalculator(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe registers l and returns a function that unregisters it.
// Listeners are notified in subscription order.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.lmu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners = append(s.listeners, subscriber{id: id, l: l})
	s.lmu.Unlock()

	return func() {
		s.lmu.Lock()
		s.listeners = slices.DeleteFunc(s.listeners, func(sub subscriber) bool { return sub.id == id })
		s.lmu.Unlock()
	}
}

func (s *Store) notify(n Notification) {
	s.lmu.RLock()
	subs := slices.Clone(s.listeners)
	s.lmu.RUnlock()

	for _, sub := range subs {
		deliver(sub.l, n)
	}
}

// deliver shields the store from a misbehaving listener.
func deliver(l Listener, n Notification) {
	defer func() { _ = recover() }()
	l(n)
}

// Add merges item into the line with the same product, size, color and
// customizations, or appends a new line. It returns the resulting line.
func (s *Store) Add(item AddItem) Line {
	qty := normalizeQuantity(item.Quantity)
	k := item.key()

	s.mu.Lock()
	for i := range s.lines {
		if s.lines[i].key() != k {
			continue
		}
		s.lines[i].Quantity = min(s.lines[i].Quantity+qty, MaxQuantity)
		l := s.lines[i]
		s.mu.Unlock()

		s.notify(Notification{Kind: KindQuantityIncreased, LineID: l.ID, Message: "Quantity increased"})
		return l
	}

	l := Line{
		ID:             s.nextID,
		ProductID:      item.ProductID,
		Quantity:       qty,
		Size:           item.Size,
		Color:          item.Color,
		Customizations: item.Customizations,
		Product:        item.Product,
	}
	s.nextID++
	s.lines = append(s.lines, l)
	s.mu.Unlock()

	s.notify(Notification{Kind: KindItemAdded, LineID: l.ID, Message: "Item added to cart"})
	return l
}

// Remove deletes the line with the given id. It reports whether a line was removed.
func (s *Store) Remove(id int) bool {
	s.mu.Lock()
	removed := s.removeLocked(id)
	s.mu.Unlock()

	s.notify(Notification{Kind: KindItemRemoved, LineID: id, Message: "Item removed from cart"})
	return removed
}

func (s *Store) removeLocked(id int) bool {
	for i := range s.lines {
		if s.lines[i].ID == id {
			s.lines = append(s.lines[:i], s.lines[i+1:]...)
			return true
		}
	}
	return false
}

// UpdateQuantity replaces the quantity of a line. A quantity of zero or less
// removes the line instead, and one above MaxQuantity is capped. It reports
// whether a line with that id existed.
func (s *Store) UpdateQuantity(id, quantity int) bool {
	if quantity <= 0 {
		return s.Remove(id)
	}
	quantity = min(quantity, MaxQuantity)

	s.mu.Lock()
	found := false
	for i := range s.lines {
		if s.lines[i].ID == id {
			s.lines[i].Quantity = quantity
			found = true
			break
		}
	}
	s.mu.Unlock()

	if found {
		s.notify(Notification{Kind: KindQuantityUpdated, LineID: id, Message: "Quantity updated"})
	}
	return found
}

// Clear removes every line.
func (s *Store) Clear() {
	s.mu.Lock()
	s.lines = nil
	s.mu.Unlock()

	s.notify(Notification{Kind: KindCartCleared, Message: "Cart cleared"})
}

// Toggle flips the visibility flag and returns the new value.
func (s *Store) Toggle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isOpen = !s.isOpen
	return s.isOpen
}

// IsOpen reports whether the cart panel is visible.
func (s *Store) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isOpen
}

// Lines returns a copy of the lines in insertion order.
func (s *Store) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Line(nil), s.lines...)
}

// Line returns the line with the given id.
func (s *Store) Line(id int) (Line, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lines {
		if l.ID == id {
			return l, true
		}
	}
	return Line{}, false
}

// Len returns the number of distinct lines.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

// ItemCount returns the sum of all line quantities.
func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return itemCount(s.lines)
}

func itemCount(lines []Line) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

// Total returns the cart subtotal in the base currency.
func (s *Store) Total() decimal.Decimal {
	return s.calc.Subtotal(Items(s.Lines()))
}

// State is a consistent view of the whole cart.
type State struct {
	Lines     []Line
	IsOpen    bool
	ItemCount int
	Total     decimal.Decimal
}

// Snapshot returns lines, visibility, item count and total read under a
// single lock.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	lines := slices.Clone(s.lines)
	open := s.isOpen
	s.mu.Unlock()

	return State{
		Lines:     lines,
		IsOpen:    open,
		ItemCount: itemCount(lines),
		Total:     s.calc.Subtotal(Items(lines)),
	}
}

// Items converts lines to pricing input.
func Items(lines []Line) []pricing.Item {
	items := make([]pricing.Item, len(lines))
	for i, l := range lines {
		items[i] = pricing.Item{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Product:   l.Product,
		}
	}
	return items
}
