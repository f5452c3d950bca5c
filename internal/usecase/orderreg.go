package usecase

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"notedeck/internal/domain"
	"notedeck/internal/logging"
	"notedeck/internal/ports"
)

// Order register failures the caller can correct.
var (
	ErrOrderOutOfRange = errors.New("order index out of range")
	ErrDuplicateEntry  = errors.New("duplicate source in order")
	ErrUnknownSource   = errors.New("unknown source in order")
	// ErrReorderBusy signals a reorder is already in flight for the meeting.
	// The caller should retry once the pending one settles; queuing instead
	// would persist a permutation computed from a stale snapshot.
	ErrReorderBusy = errors.New("reorder already in progress")
)

// MoveDirection names the two adjacent-move directions.
type MoveDirection string

const (
	MoveUp   MoveDirection = "up"
	MoveDown MoveDirection = "down"
)

// Move places one source at NewIndex in the desired final ordering.
type Move struct {
	Kind     domain.SourceKind `json:"kind"`
	ID       int64             `json:"id"`
	NewIndex int               `json:"newIndex"`
}

// OrderRegister owns the display order of a meeting's audio sources. It keeps
// no in-memory order cache: reads come straight from the store, and writes go
// through one transactional persist, so a failed reorder leaves the prior
// ordering wholly intact.
type OrderRegister struct {
	sources ports.SourceStore
	log     *logging.Logger

	mu       sync.Mutex
	inflight map[string]bool
}

func NewOrderRegister(sources ports.SourceStore, log *logging.Logger) *OrderRegister {
	return &OrderRegister{
		sources:  sources,
		log:      log,
		inflight: make(map[string]bool),
	}
}

// List returns the meeting's sources sorted by display order, ties broken by
// creation time then id.
func (r *OrderRegister) List(meetingID string) ([]domain.AudioSource, error) {
	all, err := r.sources.ListSources(meetingID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].DisplayOrder() != all[j].DisplayOrder() {
			return all[i].DisplayOrder() < all[j].DisplayOrder()
		}
		if !all[i].CreatedAt().Equal(all[j].CreatedAt()) {
			return all[i].CreatedAt().Before(all[j].CreatedAt())
		}
		return all[i].SourceID() < all[j].SourceID()
	})
	return all, nil
}

// Reorder applies the desired final ordering, expressed as one full
// permutation of the meeting's sources, and persists dense display orders
// 0..N-1 atomically. At most one reorder is in flight per meeting.
func (r *OrderRegister) Reorder(meetingID string, moves []Move) error {
	release, err := r.acquire(meetingID)
	if err != nil {
		return err
	}
	defer release()
	return r.reorderLocked(meetingID, moves)
}

// MoveAdjacent swaps the source at index with its up/down neighbor and
// rewrites the complete order array. O(N) per swap, fine at meeting-sized N.
func (r *OrderRegister) MoveAdjacent(meetingID string, index int, direction MoveDirection) error {
	release, err := r.acquire(meetingID)
	if err != nil {
		return err
	}
	defer release()

	current, err := r.List(meetingID)
	if err != nil {
		return err
	}

	neighbor := index - 1
	if direction == MoveDown {
		neighbor = index + 1
	}
	if index < 0 || index >= len(current) || neighbor < 0 || neighbor >= len(current) {
		return fmt.Errorf("move index %d (%s) with %d sources: %w", index, direction, len(current), ErrOrderOutOfRange)
	}

	moves := make([]Move, 0, len(current))
	for i, src := range current {
		pos := i
		if i == index {
			pos = neighbor
		} else if i == neighbor {
			pos = index
		}
		moves = append(moves, Move{Kind: src.Kind(), ID: src.SourceID(), NewIndex: pos})
	}
	return r.reorderLocked(meetingID, moves)
}

func (r *OrderRegister) acquire(meetingID string) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight[meetingID] {
		r.log.Warn("rejecting overlapping reorder", "meetingId", meetingID)
		return nil, ErrReorderBusy
	}
	r.inflight[meetingID] = true
	return func() {
		r.mu.Lock()
		delete(r.inflight, meetingID)
		r.mu.Unlock()
	}, nil
}

func (r *OrderRegister) reorderLocked(meetingID string, moves []Move) error {
	current, err := r.List(meetingID)
	if err != nil {
		return err
	}

	known := make(map[domain.SourceRef]bool, len(current))
	for _, src := range current {
		known[domain.RefOf(src)] = true
	}

	seen := make(map[domain.SourceRef]bool, len(moves))
	ordered := make([]domain.SourceRef, len(current))
	placed := make([]bool, len(current))
	for _, m := range moves {
		ref := domain.SourceRef{Kind: m.Kind, ID: m.ID}
		if !known[ref] {
			return fmt.Errorf("%s %d: %w", m.Kind, m.ID, ErrUnknownSource)
		}
		if seen[ref] {
			return fmt.Errorf("%s %d: %w", m.Kind, m.ID, ErrDuplicateEntry)
		}
		seen[ref] = true
		if m.NewIndex < 0 || m.NewIndex >= len(current) {
			return fmt.Errorf("index %d with %d sources: %w", m.NewIndex, len(current), ErrOrderOutOfRange)
		}
		if placed[m.NewIndex] {
			return fmt.Errorf("index %d assigned twice: %w", m.NewIndex, ErrOrderOutOfRange)
		}
		placed[m.NewIndex] = true
		ordered[m.NewIndex] = ref
	}
	// A partial permutation leaves holes in 0..N-1, which the dense-order
	// invariant forbids.
	if len(moves) != len(current) {
		return fmt.Errorf("%d moves for %d sources: %w", len(moves), len(current), ErrOrderOutOfRange)
	}

	if err := r.sources.PersistOrder(meetingID, ordered); err != nil {
		r.log.Error("persisting source order failed", "meetingId", meetingID, "error", err)
		return fmt.Errorf("persist order: %w", err)
	}
	return nil
}
