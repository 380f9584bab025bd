// Package tree provides the in-memory document tree queried by Goatspeak.
//
// A tree is a set of *Node values linked by owned Children slices and
// non-owning Parent pointers. The package offers the navigation primitives
// the query engine relies on:
//   - Ancestors: innermost first, up to the root
//   - Descendants: depth-first with optional tag and attribute filters
//   - Preorder: lazy, restartable pre-order traversal (iter.Seq)
//   - Project: field-filtered map views used for output
//
// Attribute keys are namespaced with a leading "@" (for example "@href") so
// they never collide with structural field names during projection.
//
// Identity:
//
// Every node receives its ID from an IDSource passed in at construction.
// There is no package-level counter, so trees may be built concurrently as
// long as each builder owns its source (or the source is safe for
// concurrent use, like the ULID generator in internal/shared/id).
//
// Example Usage:
//
//	ids := tree.NewSequence("n")
//	root := tree.NewNode(ids, "div", nil, "")
//	p := root.AppendChild(tree.NewNode(ids, "p", map[string]string{"@id": "1"}, "A"))
//	for n := range root.Preorder() {
//		fmt.Println(n.TagType)
//	}
package tree
