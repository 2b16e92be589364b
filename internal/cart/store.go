package cart

import (
	"context"
	"errors"
	"sync"

	pkgerrors "github.com/MwailaCoding/storefront/pkg/errors"
	"github.com/MwailaCoding/storefront/pkg/kv"
	"github.com/MwailaCoding/storefront/pkg/logger"
	"github.com/MwailaCoding/storefront/pkg/metrics"
	"github.com/MwailaCoding/storefront/pkg/validation"
)

// ErrClosed is returned by mutations after Close.
var ErrClosed = pkgerrors.New(pkgerrors.CodeInternal, "cart store closed")

// StoreParams wires the cart store.
type StoreParams struct {
	KV      kv.Store
	Logger  *logger.Logger
	Metrics *metrics.CartMetrics
}

// Store owns the cart for one device. Every mutation recomputes the derived
// totals and persists the snapshot while holding the lock, so callers observe
// mutations atomically.
type Store struct {
	kv      kv.Store
	logg    *logger.Logger
	metrics *metrics.CartMetrics

	mu     sync.Mutex
	lines  []Line
	subs   map[int]chan State
	nextID int
	closed bool
}

// NewStore builds an empty cart. Call Hydrate before serving reads.
func NewStore(params StoreParams) (*Store, error) {
	if params.KV == nil {
		return nil, errors.New("kv store required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Store{
		kv:      params.KV,
		logg:    logg,
		metrics: params.Metrics,
		subs:    map[int]chan State{},
	}, nil
}

// Hydrate loads the persisted snapshot. Missing or corrupt data leaves an
// empty cart; a storage read failure is returned as a PERSISTENCE_ERROR but
// the store remains usable.
func (s *Store) Hydrate(ctx context.Context) error {
	raw, err := s.kv.Get(ctx, StorageKey)
	if errors.Is(err, kv.ErrNotFound) {
		s.replace(nil)
		return nil
	}
	if err != nil {
		s.replace(nil)
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "reading cart snapshot")
	}

	lines, err := decodeSnapshot(raw)
	if err != nil {
		s.logg.WarnErr(ctx, "discarding corrupt cart snapshot", err)
		s.replace(nil)
		return nil
	}

	clean := sanitize(ctx, s.logg, lines)
	s.replace(clean)
	state := s.State()
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"lines":      len(state.Items),
		"item_count": state.ItemCount,
	}), "cart hydrated")
	return nil
}

// sanitize drops lines that violate the cart invariants and merges duplicates.
func sanitize(ctx context.Context, logg *logger.Logger, lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	index := map[string]int{}
	for _, line := range lines {
		if line.ProductID <= 0 || line.Quantity < 1 || line.UnitPrice.IsNegative() {
			logg.Warn(logg.WithField(ctx, "product_id", line.ProductID), "dropping invalid stored cart line")
			continue
		}
		if line.Customization == DefaultCustomization {
			line.Customization = ""
		}
		if i, ok := index[line.key()]; ok {
			out[i].Quantity += line.Quantity
			continue
		}
		index[line.key()] = len(out)
		out = append(out, line)
	}
	return out
}

func (s *Store) replace(lines []Line) {
	s.mu.Lock()
	s.lines = lines
	s.mu.Unlock()
}

// State returns a deep copy of the current cart.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newState(s.lines)
}

// AddItem merges into the line with the same identity or appends a new one.
func (s *Store) AddItem(ctx context.Context, in AddItemInput) (Result, error) {
	if err := validation.Struct(in); err != nil {
		return Result{}, err
	}
	return s.mutate(ctx, "add", func(lines []Line) []Line {
		qty := in.quantity()
		key := lineKey(in.ProductID, in.Customization)
		for i := range lines {
			if lines[i].key() == key {
				lines[i].Quantity += qty
				return lines
			}
		}
		return append(lines, Line{
			ProductID:     in.ProductID,
			Name:          in.Name,
			UnitPrice:     in.UnitPrice,
			Quantity:      qty,
			ImagePath:     in.ImagePath,
			Customization: normalizeCustomization(in.Customization),
		})
	})
}

// UpdateQuantity sets the quantity of one line. A quantity of zero or less
// removes it; an unknown line is left alone.
func (s *Store) UpdateQuantity(ctx context.Context, productID int64, customization string, qty int) (Result, error) {
	if qty <= 0 {
		return s.RemoveItem(ctx, productID, customization)
	}
	return s.mutate(ctx, "update", func(lines []Line) []Line {
		key := lineKey(productID, customization)
		for i := range lines {
			if lines[i].key() == key {
				lines[i].Quantity = qty
				break
			}
		}
		return lines
	})
}

// RemoveItem removes the single line with the given identity.
func (s *Store) RemoveItem(ctx context.Context, productID int64, customization string) (Result, error) {
	key := lineKey(productID, customization)
	return s.mutate(ctx, "remove", func(lines []Line) []Line {
		return filter(lines, func(l Line) bool { return l.key() != key })
	})
}

// RemoveProduct removes every line for productID regardless of customization.
func (s *Store) RemoveProduct(ctx context.Context, productID int64) (Result, error) {
	return s.mutate(ctx, "remove_product", func(lines []Line) []Line {
		return filter(lines, func(l Line) bool { return l.ProductID != productID })
	})
}

// Clear empties the cart and persists the empty snapshot.
func (s *Store) Clear(ctx context.Context) (Result, error) {
	return s.mutate(ctx, "clear", func([]Line) []Line { return nil })
}

// Subscribe returns a channel receiving the state after every mutation.
// Slow subscribers only see the latest state. Call cancel to unsubscribe.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan State, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
}

// Close stops accepting mutations and closes all subscriber channels.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	return nil
}

func (s *Store) mutate(ctx context.Context, op string, apply func([]Line) []Line) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Result{}, ErrClosed
	}

	working := make([]Line, len(s.lines))
	copy(working, s.lines)
	s.lines = apply(working)
	state := newState(s.lines)
	s.metrics.IncMutation(op)

	result := Result{State: state}
	if err := s.persistLocked(ctx); err != nil {
		s.metrics.IncPersistFailure(op)
		s.logg.WarnErr(s.logg.WithField(ctx, "op", op), "cart persist failed; keeping in-memory state", err)
		result.PersistWarning = err
	}

	s.publishLocked(state)
	return result, nil
}

func (s *Store) persistLocked(ctx context.Context) error {
	raw, err := encodeSnapshot(s.lines)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "encoding cart snapshot")
	}
	if err := s.kv.Set(ctx, StorageKey, raw); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "writing cart snapshot")
	}
	return nil
}

func (s *Store) publishLocked(state State) {
	for _, ch := range s.subs {
		select {
		case ch <- newState(state.Items):
			continue
		default:
		}
		// drop the stale pending state, then deliver the latest
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- newState(state.Items):
		default:
		}
	}
}

func filter(lines []Line, keep func(Line) bool) []Line {
	out := lines[:0]
	for _, line := range lines {
		if keep(line) {
			out = append(out, line)
		}
	}
	return out
}

func normalizeCustomization(c string) string {
	if c == DefaultCustomization {
		return ""
	}
	return c
}
