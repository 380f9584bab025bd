package tree

import (
	"iter"
	"strings"
)

// ParentNode returns the enclosing node, or nil for the root.
func (n *Node) ParentNode() *Node {
	return n.Parent
}

// ChildNodes returns the ordered children of n.
func (n *Node) ChildNodes() []*Node {
	return n.Children
}

// Ancestors returns every ancestor of n, innermost first.
func (n *Node) Ancestors() []*Node {
	var ancestors []*Node
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		ancestors = append(ancestors, cur)
	}
	return ancestors
}

// Descendants returns all descendants of n in depth-first order. An empty
// tag matches every tag; every entry of attrs must equal the node's value.
func (n *Node) Descendants(tag string, attrs map[string]string) []*Node {
	var out []*Node
	for _, child := range n.Children {
		if (tag == "" || child.TagType == tag) && child.attributesEqual(attrs) {
			out = append(out, child)
		}
		out = append(out, child.Descendants(tag, attrs)...)
	}
	return out
}

func (n *Node) attributesEqual(attrs map[string]string) bool {
	for k, v := range attrs {
		got, ok := n.Attributes[k]
		if !ok || got != v {
			return false
		}
	}
	return true
}

// Preorder returns a lazy pre-order traversal rooted at n. Each range over
// the returned sequence starts a fresh walk; the tree is never modified.
func (n *Node) Preorder() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		if n == nil {
			return
		}
		n.walk(yield)
	}
}

func (n *Node) walk(yield func(*Node) bool) bool {
	if !yield(n) {
		return false
	}
	for _, child := range n.Children {
		if !child.walk(yield) {
			return false
		}
	}
	return true
}

// HasAttribute reports whether key exists (value nil) or whether *value is a
// substring of the stored attribute value.
func (n *Node) HasAttribute(key string, value *string) bool {
	stored, ok := n.Attributes[key]
	if !ok {
		return false
	}
	if value == nil {
		return true
	}
	return strings.Contains(stored, *value)
}

// HasAttributeKey is HasAttribute without a value.
func (n *Node) HasAttributeKey(key string) bool {
	return n.HasAttribute(key, nil)
}

// HasAttributeValue is HasAttribute with a substring value.
func (n *Node) HasAttributeValue(key, value string) bool {
	return n.HasAttribute(key, &value)
}

// IsDescendantOf reports whether any ancestor of n has the given tag.
func (n *Node) IsDescendantOf(tag string) bool {
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		if cur.TagType == tag {
			return true
		}
	}
	return false
}
