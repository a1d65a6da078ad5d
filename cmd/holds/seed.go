package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"mercator-hq/holds/pkg/content"
)

// seedFile is the YAML layout of a repository seed:
//
//	holds:
//	  - name: litigation-42
//	    reason: Case 42 discovery
//	nodes:
//	  - name: cases
//	    kind: container
//	    children:
//	      - name: brief.pdf
//	        kind: record
type seedFile struct {
	Holds []seedHold `yaml:"holds"`
	Nodes []seedNode `yaml:"nodes"`
}

type seedHold struct {
	Ref    content.NodeRef `yaml:"ref"`
	Name   string          `yaml:"name"`
	Reason string          `yaml:"reason"`
}

type seedNode struct {
	Ref      content.NodeRef `yaml:"ref"`
	Name     string          `yaml:"name"`
	Kind     content.Kind    `yaml:"kind"`
	Children []seedNode      `yaml:"children"`
}

// seedRepository loads the tree in path into store. A repository that
// already has nodes is left untouched, so restarting against a persistent
// backend does not fail on duplicates.
func seedRepository(ctx context.Context, store content.Store, path string) error {
	existing, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		slog.Info("repository not empty, skipping seed", "seed_file", path, "nodes", len(existing))
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file %q: %w", path, err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file %q: %w", path, err)
	}

	for _, h := range seed.Holds {
		hold := &content.Hold{Ref: h.Ref, Name: h.Name, Reason: h.Reason}
		if err := store.CreateHold(ctx, hold); err != nil && !errors.Is(err, content.ErrDuplicate) {
			return fmt.Errorf("hold %q: %w", h.Name, err)
		}
	}

	var count int
	for _, n := range seed.Nodes {
		created, err := createSeedNode(ctx, store, "", n)
		count += created
		if err != nil {
			return err
		}
	}

	slog.Info("repository seeded",
		"seed_file", path,
		"holds", len(seed.Holds),
		"nodes", count,
	)
	return nil
}

func createSeedNode(ctx context.Context, store content.Store, parent content.NodeRef, n seedNode) (int, error) {
	kind := n.Kind
	if kind == "" {
		kind = content.KindRecord
		if len(n.Children) > 0 {
			kind = content.KindContainer
		}
	}

	node := &content.Node{Ref: n.Ref, Name: n.Name, Kind: kind, Parent: parent}
	if err := store.CreateNode(ctx, node); err != nil {
		return 0, fmt.Errorf("node %q: %w", n.Name, err)
	}

	count := 1
	for _, child := range n.Children {
		created, err := createSeedNode(ctx, store, node.Ref, child)
		count += created
		if err != nil {
			return count, err
		}
	}
	return count, nil
}
