package content

import (
	"context"
	"time"
)

// NodeRef identifies a node or a hold in the repository.
type NodeRef string

// String returns the reference as a plain string.
func (r NodeRef) String() string { return string(r) }

// IsZero reports whether the reference is empty.
func (r NodeRef) IsZero() bool { return r == "" }

// Kind is the classification of a node.
type Kind string

const (
	// KindRecord is a leaf record.
	KindRecord Kind = "record"
	// KindContainer is a folder-like node with children.
	KindContainer Kind = "container"
	// KindOther is any node that is neither a record nor a container.
	KindOther Kind = "other"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindRecord, KindContainer, KindOther:
		return true
	}
	return false
}

// Node is a single item in the content repository.
type Node struct {
	// Identity
	Ref    NodeRef `json:"ref" yaml:"ref"`
	Name   string  `json:"name" yaml:"name"`
	Path   string  `json:"path" yaml:"path"` // Slash-separated, rooted at "/"
	Kind   Kind    `json:"kind" yaml:"kind"`
	Parent NodeRef `json:"parent,omitempty" yaml:"parent,omitempty"`

	// Freeze state
	HeldBy       int    `json:"held_by" yaml:"held_by"`                                 // Holds holding this node directly
	Inherited    bool   `json:"inherited" yaml:"inherited"`                             // Frozen through a directly held parent
	HeldChildren *int64 `json:"held_children,omitempty" yaml:"held_children,omitempty"` // Nil until the first child freeze

	CreatedTime time.Time `json:"created_time" yaml:"created_time"`
}

// Frozen reports whether the node is currently restricted by at least one hold.
func (n *Node) Frozen() bool {
	return n.HeldBy > 0 || n.Inherited
}

// HeldChildrenCount returns the cached frozen-children counter, 0 when absent.
func (n *Node) HeldChildrenCount() int64 {
	if n.HeldChildren == nil {
		return 0
	}
	return *n.HeldChildren
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	c := *n
	if n.HeldChildren != nil {
		v := *n.HeldChildren
		c.HeldChildren = &v
	}
	return &c
}

// Hold is a named retention or legal restriction.
type Hold struct {
	Ref         NodeRef   `json:"ref" yaml:"ref"`
	Name        string    `json:"name" yaml:"name"`
	Reason      string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	CreatedTime time.Time `json:"created_time" yaml:"created_time"`
}

// Store is the content repository backend.
// Implementations must be thread-safe and support concurrent access.
type Store interface {
	// CreateNode inserts a node. Ref and Path are derived when empty.
	// Returns ErrNodeNotFound if the parent does not exist.
	CreateNode(ctx context.Context, node *Node) error

	// Node returns a copy of the node or ErrNodeNotFound.
	Node(ctx context.Context, ref NodeRef) (*Node, error)

	// Children returns copies of the direct children of ref, ordered by path.
	Children(ctx context.Context, ref NodeRef) ([]*Node, error)

	// List returns copies of every node ordered by path.
	List(ctx context.Context) ([]*Node, error)

	// CreateHold inserts a hold. Ref is derived when empty.
	CreateHold(ctx context.Context, hold *Hold) error

	// Hold returns a copy of the hold or ErrHoldNotFound.
	Hold(ctx context.Context, ref NodeRef) (*Hold, error)

	// Holds returns every hold ordered by name.
	Holds(ctx context.Context) ([]*Hold, error)

	// HeldItems returns the items held directly by hold, ordered by ref.
	HeldItems(ctx context.Context, hold NodeRef) ([]NodeRef, error)

	// RunInTransaction runs fn as one atomic unit. If fn returns an error
	// every change made through tx is discarded. fn must not call back into
	// the Store.
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any resources held by the backend.
	Close() error
}

// Tx is the mutation surface available inside Store.RunInTransaction.
type Tx interface {
	Node(ctx context.Context, ref NodeRef) (*Node, error)
	Children(ctx context.Context, ref NodeRef) ([]*Node, error)
	Hold(ctx context.Context, ref NodeRef) (*Hold, error)

	// AddHeld adds item to the held set of hold and reports whether the set changed.
	AddHeld(ctx context.Context, hold, item NodeRef) (bool, error)

	// RemoveHeld removes item from the held set of hold and reports whether the set changed.
	RemoveHeld(ctx context.Context, hold, item NodeRef) (bool, error)

	// SetFreezeState overwrites the HeldBy and Inherited fields of a node.
	SetFreezeState(ctx context.Context, ref NodeRef, heldBy int, inherited bool) error

	// AdjustHeldChildren atomically adds delta to the frozen-children counter
	// of container and returns the new value. The result is floored at 0. An
	// absent counter is created by a positive delta and left absent by a
	// negative one.
	AdjustHeldChildren(ctx context.Context, container NodeRef, delta int64) (int64, error)

	// SetHeldChildren overwrites the frozen-children counter of container.
	SetHeldChildren(ctx context.Context, container NodeRef, n int64) error
}
