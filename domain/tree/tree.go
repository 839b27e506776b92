package tree

import (
	"sort"

	"pagespace/domain/core/entities"
	"pagespace/domain/core/valueobjects"
)

// PageNode is one node of the page forest returned by Build
type PageNode struct {
	Page     *entities.Page
	Children []*PageNode
}

// Build groups a snapshot list of pages into a forest. It is a pure
// function: the input list is not modified and no storage is touched.
//
// Policy: a page whose parentId references a page absent from the input
// list is treated as a root, not an error. Sibling groups are ordered by
// updatedAt descending, most recently touched first.
func Build(pages []*entities.Page) []*PageNode {
	byID := make(map[string]*PageNode, len(pages))
	for _, p := range pages {
		byID[p.ID().String()] = &PageNode{Page: p}
	}

	// Adjacency by parent id, built in one pass over the snapshot.
	children := make(map[string][]*PageNode, len(pages))
	var roots []*PageNode
	for _, p := range pages {
		node := byID[p.ID().String()]
		parent := p.ParentID()
		if parent == nil {
			roots = append(roots, node)
			continue
		}
		if _, ok := byID[parent.String()]; !ok {
			// Orphaned parent reference: promote to root.
			roots = append(roots, node)
			continue
		}
		children[parent.String()] = append(children[parent.String()], node)
	}

	for id, node := range byID {
		node.Children = sortByUpdatedDesc(children[id])
	}

	return sortByUpdatedDesc(roots)
}

// Descendants returns every page reachable from rootID through parent
// links, deepest first, excluding the root itself. Deep-first order lets a
// cascading delete remove children before their ancestors, so a partial
// failure never leaves a dangling parent reference.
func Descendants(pages []*entities.Page, rootID valueobjects.PageID) []*entities.Page {
	children := make(map[string][]*entities.Page, len(pages))
	for _, p := range pages {
		if parent := p.ParentID(); parent != nil {
			children[parent.String()] = append(children[parent.String()], p)
		}
	}

	var out []*entities.Page
	var walk func(id string)
	walk = func(id string) {
		for _, child := range children[id] {
			walk(child.ID().String())
			out = append(out, child)
		}
	}
	walk(rootID.String())
	return out
}

// IsDescendant reports whether candidate is rootID itself or lies anywhere
// under it. Used to reject reparenting that would introduce a cycle.
func IsDescendant(pages []*entities.Page, rootID, candidate valueobjects.PageID) bool {
	if rootID.Equals(candidate) {
		return true
	}
	for _, p := range Descendants(pages, rootID) {
		if p.ID().Equals(candidate) {
			return true
		}
	}
	return false
}

func sortByUpdatedDesc(nodes []*PageNode) []*PageNode {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Page.UpdatedAt().After(nodes[j].Page.UpdatedAt())
	})
	return nodes
}
