// Package frozen maintains the cached count of directly frozen children on
// every container, so that "does this container have frozen children" is an
// O(1) lookup instead of a scan.
//
// The counter is driven by explicit notifications: OnFreeze and OnUnfreeze
// must be called, inside the same transaction, for every child freeze state
// transition. Reconcile is the only operation that recounts children and is
// run once when a container becomes directly held.
package frozen

import (
	"context"
	"fmt"
	"log/slog"

	"mercator-hq/holds/pkg/content"
)

// Counter update operations reported to Metrics.
const (
	OpIncrement = "increment"
	OpDecrement = "decrement"
	OpReconcile = "reconcile"
)

// Metrics receives counter update events. A nil Metrics disables reporting.
type Metrics interface {
	RecordCounterUpdate(op string)
	RecordCounterError(op string)
}

// CounterError reports a failed counter update on a container.
type CounterError struct {
	Container content.NodeRef
	Op        string
	Cause     error
}

// Error implements the error interface.
func (e *CounterError) Error() string {
	return fmt.Sprintf("frozen counter %s on %s: %v", e.Op, e.Container, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *CounterError) Unwrap() error {
	return e.Cause
}

// Cache applies frozen-children counter updates through a content.Tx.
// It holds no state of its own and is safe for concurrent use; concurrency
// safety of the counter itself comes from Tx.AdjustHeldChildren.
type Cache struct {
	metrics Metrics
	logger  *slog.Logger
}

// NewCache creates a cache. metrics may be nil.
func NewCache(metrics Metrics) *Cache {
	return &Cache{
		metrics: metrics,
		logger:  slog.Default().With("component", "frozen.cache"),
	}
}

// OnFreeze records that item transitioned from unfrozen to frozen. If item
// has a parent container, the container's counter is incremented, creating
// it at 1 if absent.
func (c *Cache) OnFreeze(ctx context.Context, tx content.Tx, item *content.Node) error {
	return c.adjust(ctx, tx, item, 1, OpIncrement)
}

// OnUnfreeze records that item transitioned from frozen to unfrozen. If item
// has a parent container, the container's counter is decremented, floored at 0.
func (c *Cache) OnUnfreeze(ctx context.Context, tx content.Tx, item *content.Node) error {
	return c.adjust(ctx, tx, item, -1, OpDecrement)
}

func (c *Cache) adjust(ctx context.Context, tx content.Tx, item *content.Node, delta int64, op string) error {
	if item.Parent.IsZero() {
		return nil
	}

	parent, err := tx.Node(ctx, item.Parent)
	if err != nil {
		return c.fail(item.Parent, op, err)
	}
	if parent.Kind != content.KindContainer {
		return nil
	}

	count, err := tx.AdjustHeldChildren(ctx, parent.Ref, delta)
	if err != nil {
		return c.fail(parent.Ref, op, err)
	}

	c.logger.Debug("frozen children counter updated",
		"container", parent.Ref,
		"child", item.Ref,
		"op", op,
		"held_children", count,
	)
	if c.metrics != nil {
		c.metrics.RecordCounterUpdate(op)
	}
	return nil
}

// Reconcile recounts the frozen direct children of container and overwrites
// its counter. It returns the new count.
func (c *Cache) Reconcile(ctx context.Context, tx content.Tx, container *content.Node) (int64, error) {
	if container.Kind != content.KindContainer {
		return 0, nil
	}

	children, err := tx.Children(ctx, container.Ref)
	if err != nil {
		return 0, c.fail(container.Ref, OpReconcile, err)
	}

	var frozen int64
	for _, child := range children {
		if child.Frozen() {
			frozen++
		}
	}

	if err := tx.SetHeldChildren(ctx, container.Ref, frozen); err != nil {
		return 0, c.fail(container.Ref, OpReconcile, err)
	}

	c.logger.Debug("frozen children counter reconciled",
		"container", container.Ref,
		"children", len(children),
		"held_children", frozen,
	)
	if c.metrics != nil {
		c.metrics.RecordCounterUpdate(OpReconcile)
	}
	return frozen, nil
}

// HasFrozenChildren reports whether the cached counter of node is positive.
func HasFrozenChildren(node *content.Node) bool {
	return node.HeldChildrenCount() > 0
}

func (c *Cache) fail(container content.NodeRef, op string, err error) error {
	if c.metrics != nil {
		c.metrics.RecordCounterError(op)
	}
	return &CounterError{Container: container, Op: op, Cause: err}
}
