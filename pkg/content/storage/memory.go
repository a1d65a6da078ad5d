package storage

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/holds/pkg/content"
)

// MemoryStore implements content.Store using in-memory maps.
// Transactions hold the store lock for their whole duration and keep an undo
// journal that is replayed in reverse when the transaction function fails.
type MemoryStore struct {
	mu       sync.RWMutex
	nodes    map[content.NodeRef]*content.Node
	children map[content.NodeRef][]content.NodeRef
	paths    map[string]content.NodeRef
	holds    map[content.NodeRef]*content.Hold
	held     map[content.NodeRef]map[content.NodeRef]struct{}
}

// NewMemoryStore creates a new in-memory content store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:    make(map[content.NodeRef]*content.Node),
		children: make(map[content.NodeRef][]content.NodeRef),
		paths:    make(map[string]content.NodeRef),
		holds:    make(map[content.NodeRef]*content.Hold),
		held:     make(map[content.NodeRef]map[content.NodeRef]struct{}),
	}
}

// CreateNode inserts a node, deriving Ref and Path when they are empty.
func (s *MemoryStore) CreateNode(ctx context.Context, node *content.Node) error {
	if !node.Kind.IsValid() {
		return fmt.Errorf("invalid node kind %q", node.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parentPath := "/"
	if !node.Parent.IsZero() {
		parent, ok := s.nodes[node.Parent]
		if !ok {
			return fmt.Errorf("parent %s: %w", node.Parent, content.ErrNodeNotFound)
		}
		parentPath = parent.Path
	}

	if node.Ref.IsZero() {
		node.Ref = content.NodeRef(uuid.New().String())
	}
	if node.Path == "" {
		node.Path = path.Join(parentPath, node.Name)
	}
	if node.CreatedTime.IsZero() {
		node.CreatedTime = time.Now()
	}

	if _, exists := s.nodes[node.Ref]; exists {
		return fmt.Errorf("node %s: %w", node.Ref, content.ErrDuplicate)
	}
	if _, exists := s.paths[node.Path]; exists {
		return fmt.Errorf("path %s: %w", node.Path, content.ErrDuplicate)
	}

	s.nodes[node.Ref] = node.Clone()
	s.paths[node.Path] = node.Ref
	if !node.Parent.IsZero() {
		s.children[node.Parent] = append(s.children[node.Parent], node.Ref)
	}

	return nil
}

// Node returns a copy of the node.
func (s *MemoryStore) Node(ctx context.Context, ref content.NodeRef) (*content.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.node(ref)
}

func (s *MemoryStore) node(ref content.NodeRef) (*content.Node, error) {
	n, ok := s.nodes[ref]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", ref, content.ErrNodeNotFound)
	}
	return n.Clone(), nil
}

// Children returns copies of the direct children of ref ordered by path.
func (s *MemoryStore) Children(ctx context.Context, ref content.NodeRef) ([]*content.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.childNodes(ref)
}

func (s *MemoryStore) childNodes(ref content.NodeRef) ([]*content.Node, error) {
	if _, ok := s.nodes[ref]; !ok {
		return nil, fmt.Errorf("node %s: %w", ref, content.ErrNodeNotFound)
	}
	out := make([]*content.Node, 0, len(s.children[ref]))
	for _, child := range s.children[ref] {
		out = append(out, s.nodes[child].Clone())
	}
	sortByPath(out)
	return out, nil
}

// List returns copies of all nodes ordered by path.
func (s *MemoryStore) List(ctx context.Context) ([]*content.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*content.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n.Clone())
	}
	sortByPath(out)
	return out, nil
}

// CreateHold inserts a hold.
func (s *MemoryStore) CreateHold(ctx context.Context, hold *content.Hold) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hold.Ref.IsZero() {
		hold.Ref = content.NodeRef(uuid.New().String())
	}
	if hold.CreatedTime.IsZero() {
		hold.CreatedTime = time.Now()
	}
	if _, exists := s.holds[hold.Ref]; exists {
		return fmt.Errorf("hold %s: %w", hold.Ref, content.ErrDuplicate)
	}
	for _, h := range s.holds {
		if h.Name == hold.Name {
			return fmt.Errorf("hold name %q: %w", hold.Name, content.ErrDuplicate)
		}
	}

	h := *hold
	s.holds[hold.Ref] = &h
	s.held[hold.Ref] = make(map[content.NodeRef]struct{})
	return nil
}

// Hold returns a copy of the hold.
func (s *MemoryStore) Hold(ctx context.Context, ref content.NodeRef) (*content.Hold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hold(ref)
}

func (s *MemoryStore) hold(ref content.NodeRef) (*content.Hold, error) {
	h, ok := s.holds[ref]
	if !ok {
		return nil, fmt.Errorf("hold %s: %w", ref, content.ErrHoldNotFound)
	}
	c := *h
	return &c, nil
}

// Holds returns all holds ordered by name.
func (s *MemoryStore) Holds(ctx context.Context) ([]*content.Hold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*content.Hold, 0, len(s.holds))
	for _, h := range s.holds {
		c := *h
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// HeldItems returns the items held directly by hold.
func (s *MemoryStore) HeldItems(ctx context.Context, hold content.NodeRef) ([]content.NodeRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.held[hold]
	if !ok {
		return nil, fmt.Errorf("hold %s: %w", hold, content.ErrHoldNotFound)
	}
	out := make([]content.NodeRef, 0, len(set))
	for item := range set {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// RunInTransaction runs fn under the store lock and rolls back on error or panic.
func (s *MemoryStore) RunInTransaction(ctx context.Context, fn func(tx content.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()

	if err = fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// memoryTx mutates the store maps directly; the caller holds s.mu.
type memoryTx struct {
	store *MemoryStore
	undo  []func()
}

func (tx *memoryTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *memoryTx) Node(ctx context.Context, ref content.NodeRef) (*content.Node, error) {
	return tx.store.node(ref)
}

func (tx *memoryTx) Children(ctx context.Context, ref content.NodeRef) ([]*content.Node, error) {
	return tx.store.childNodes(ref)
}

func (tx *memoryTx) Hold(ctx context.Context, ref content.NodeRef) (*content.Hold, error) {
	return tx.store.hold(ref)
}

func (tx *memoryTx) AddHeld(ctx context.Context, hold, item content.NodeRef) (bool, error) {
	set, ok := tx.store.held[hold]
	if !ok {
		return false, fmt.Errorf("hold %s: %w", hold, content.ErrHoldNotFound)
	}
	if _, ok := tx.store.nodes[item]; !ok {
		return false, fmt.Errorf("node %s: %w", item, content.ErrNodeNotFound)
	}
	if _, ok := set[item]; ok {
		return false, nil
	}
	set[item] = struct{}{}
	tx.undo = append(tx.undo, func() { delete(set, item) })
	return true, nil
}

func (tx *memoryTx) RemoveHeld(ctx context.Context, hold, item content.NodeRef) (bool, error) {
	set, ok := tx.store.held[hold]
	if !ok {
		return false, fmt.Errorf("hold %s: %w", hold, content.ErrHoldNotFound)
	}
	if _, ok := tx.store.nodes[item]; !ok {
		return false, fmt.Errorf("node %s: %w", item, content.ErrNodeNotFound)
	}
	if _, ok := set[item]; !ok {
		return false, nil
	}
	delete(set, item)
	tx.undo = append(tx.undo, func() { set[item] = struct{}{} })
	return true, nil
}

func (tx *memoryTx) SetFreezeState(ctx context.Context, ref content.NodeRef, heldBy int, inherited bool) error {
	n, ok := tx.store.nodes[ref]
	if !ok {
		return fmt.Errorf("node %s: %w", ref, content.ErrNodeNotFound)
	}
	if heldBy < 0 {
		heldBy = 0
	}
	prevHeldBy, prevInherited := n.HeldBy, n.Inherited
	n.HeldBy, n.Inherited = heldBy, inherited
	tx.undo = append(tx.undo, func() { n.HeldBy, n.Inherited = prevHeldBy, prevInherited })
	return nil
}

func (tx *memoryTx) AdjustHeldChildren(ctx context.Context, container content.NodeRef, delta int64) (int64, error) {
	n, ok := tx.store.nodes[container]
	if !ok {
		return 0, fmt.Errorf("node %s: %w", container, content.ErrNodeNotFound)
	}
	prev := n.HeldChildren
	if prev == nil && delta <= 0 {
		return 0, nil
	}

	var next int64
	if prev != nil {
		next = *prev
	}
	next = max(next+delta, 0)
	n.HeldChildren = &next
	tx.undo = append(tx.undo, func() { n.HeldChildren = prev })
	return next, nil
}

func (tx *memoryTx) SetHeldChildren(ctx context.Context, container content.NodeRef, count int64) error {
	n, ok := tx.store.nodes[container]
	if !ok {
		return fmt.Errorf("node %s: %w", container, content.ErrNodeNotFound)
	}
	prev := n.HeldChildren
	next := max(count, 0)
	n.HeldChildren = &next
	tx.undo = append(tx.undo, func() { n.HeldChildren = prev })
	return nil
}

func sortByPath(nodes []*content.Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Path < nodes[j].Path })
}
