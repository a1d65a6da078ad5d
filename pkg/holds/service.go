// Package holds implements hold membership: adding items to and removing
// items from holds, and keeping every item's frozen state and its parent's
// frozen-children counter consistent with the change.
package holds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mercator-hq/holds/pkg/content"
	"mercator-hq/holds/pkg/frozen"
)

var (
	// ErrHoldNotFound is returned when a hold reference does not resolve.
	ErrHoldNotFound = content.ErrHoldNotFound

	// ErrItemNotFound is returned when an item reference does not resolve.
	ErrItemNotFound = content.ErrNodeNotFound
)

// Service is the hold-membership collaborator. Every (item, holds) change runs
// in one store transaction together with the counter updates it causes.
type Service struct {
	store  content.Store
	cache  *frozen.Cache
	logger *slog.Logger
}

// NewService creates a hold-membership service.
func NewService(store content.Store, cache *frozen.Cache) *Service {
	if cache == nil {
		cache = frozen.NewCache(nil)
	}
	return &Service{
		store:  store,
		cache:  cache,
		logger: slog.Default().With("component", "holds.service"),
	}
}

// CreateHold creates a new, empty hold.
func (s *Service) CreateHold(ctx context.Context, name, reason string) (*content.Hold, error) {
	if name == "" {
		return nil, errors.New("hold name is required")
	}
	hold := &content.Hold{Name: name, Reason: reason}
	if err := s.store.CreateHold(ctx, hold); err != nil {
		return nil, err
	}
	s.logger.Info("hold created", "hold", hold.Ref, "name", name)
	return hold, nil
}

// Hold returns the hold identified by ref or ErrHoldNotFound.
func (s *Service) Hold(ctx context.Context, ref content.NodeRef) (*content.Hold, error) {
	return s.store.Hold(ctx, ref)
}

// HeldItems returns the items directly held by hold.
func (s *Service) HeldItems(ctx context.Context, hold content.NodeRef) ([]content.NodeRef, error) {
	return s.store.HeldItems(ctx, hold)
}

// Classify returns the kind of item or ErrItemNotFound.
func (s *Service) Classify(ctx context.Context, item content.NodeRef) (content.Kind, error) {
	n, err := s.store.Node(ctx, item)
	if err != nil {
		return "", err
	}
	return n.Kind, nil
}

// AddToHolds adds every item to every hold. Re-adding an item that is already
// held succeeds without changing anything. Each item is applied atomically;
// a failure on one item does not prevent the others, and all failures are
// returned joined.
func (s *Service) AddToHolds(ctx context.Context, holdRefs, items []content.NodeRef) error {
	return s.apply(ctx, holdRefs, items, s.addOne)
}

// RemoveFromHolds removes every item from every hold. Removing an item that
// is not held succeeds without changing anything.
func (s *Service) RemoveFromHolds(ctx context.Context, holdRefs, items []content.NodeRef) error {
	return s.apply(ctx, holdRefs, items, s.removeOne)
}

type mutation func(ctx context.Context, tx content.Tx, hold content.NodeRef, item content.NodeRef) error

func (s *Service) apply(ctx context.Context, holdRefs, items []content.NodeRef, fn mutation) error {
	var errs []error
	for _, item := range items {
		err := s.store.RunInTransaction(ctx, func(tx content.Tx) error {
			for _, hold := range holdRefs {
				if err := fn(ctx, tx, hold, item); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("item %s: %w", item, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) addOne(ctx context.Context, tx content.Tx, hold, item content.NodeRef) error {
	node, err := tx.Node(ctx, item)
	if err != nil {
		return err
	}

	added, err := tx.AddHeld(ctx, hold, item)
	if err != nil {
		return err
	}
	if !added {
		return nil
	}

	if err := tx.SetFreezeState(ctx, item, node.HeldBy+1, node.Inherited); err != nil {
		return err
	}
	if !node.Frozen() {
		if err := s.cache.OnFreeze(ctx, tx, node); err != nil {
			return err
		}
	}
	if node.Kind == content.KindContainer && node.HeldBy == 0 {
		if err := s.holdContainer(ctx, tx, node); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) removeOne(ctx context.Context, tx content.Tx, hold, item content.NodeRef) error {
	node, err := tx.Node(ctx, item)
	if err != nil {
		return err
	}

	removed, err := tx.RemoveHeld(ctx, hold, item)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}

	heldBy := max(node.HeldBy-1, 0)
	if err := tx.SetFreezeState(ctx, item, heldBy, node.Inherited); err != nil {
		return err
	}
	if node.Kind == content.KindContainer && heldBy == 0 {
		if err := s.releaseContainer(ctx, tx, node); err != nil {
			return err
		}
	}
	if node.Frozen() && heldBy == 0 && !node.Inherited {
		if err := s.cache.OnUnfreeze(ctx, tx, node); err != nil {
			return err
		}
	}
	return nil
}

// holdContainer freezes every direct child of a container that just became
// directly held, then reconciles the container's counter once.
func (s *Service) holdContainer(ctx context.Context, tx content.Tx, container *content.Node) error {
	children, err := tx.Children(ctx, container.Ref)
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.Inherited {
			continue
		}
		if err := tx.SetFreezeState(ctx, child.Ref, child.HeldBy, true); err != nil {
			return err
		}
	}

	count, err := s.cache.Reconcile(ctx, tx, container)
	if err != nil {
		return err
	}
	s.logger.Debug("container held, children frozen",
		"container", container.Ref,
		"children", len(children),
		"held_children", count,
	)
	return nil
}

// releaseContainer lifts the inherited freeze from the children of a
// container that is no longer directly held. Children that become unfrozen
// are routed through OnUnfreeze.
func (s *Service) releaseContainer(ctx context.Context, tx content.Tx, container *content.Node) error {
	children, err := tx.Children(ctx, container.Ref)
	if err != nil {
		return err
	}
	for _, child := range children {
		if !child.Inherited {
			continue
		}
		if err := tx.SetFreezeState(ctx, child.Ref, child.HeldBy, false); err != nil {
			return err
		}
		if child.HeldBy == 0 {
			if err := s.cache.OnUnfreeze(ctx, tx, child); err != nil {
				return err
			}
		}
	}
	return nil
}

// IsFrozen reports whether item is restricted by at least one hold.
func (s *Service) IsFrozen(ctx context.Context, item content.NodeRef) (bool, error) {
	n, err := s.store.Node(ctx, item)
	if err != nil {
		return false, err
	}
	return n.Frozen(), nil
}

// HasFrozenChildren reports whether container has at least one frozen direct child.
func (s *Service) HasFrozenChildren(ctx context.Context, container content.NodeRef) (bool, error) {
	n, err := s.store.Node(ctx, container)
	if err != nil {
		return false, err
	}
	return frozen.HasFrozenChildren(n), nil
}

// HeldChildrenCount returns the cached number of frozen direct children of container.
func (s *Service) HeldChildrenCount(ctx context.Context, container content.NodeRef) (int64, error) {
	n, err := s.store.Node(ctx, container)
	if err != nil {
		return 0, err
	}
	return n.HeldChildrenCount(), nil
}
