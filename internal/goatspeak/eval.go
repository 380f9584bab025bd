package goatspeak

import (
	"fmt"

	"github.com/scrapegoat/backend/internal/tree"
)

// Evaluate tests cond against node. root is required for POSITION
// conditions, which count BoundTag nodes over the whole tree.
func Evaluate(cond Condition, node, root *tree.Node) (bool, error) {
	var (
		ok  bool
		err error
	)
	switch c := cond.(type) {
	case *AttributeCondition:
		ok, err = evalAttribute(c, node)
	case *RelationalCondition:
		ok, err = evalRelational(c, node, root)
	default:
		return false, &ConfigurationError{Message: fmt.Sprintf("unsupported condition %T", cond)}
	}
	if err != nil {
		return false, err
	}
	return ok != cond.IsNegated(), nil
}

func evalAttribute(c *AttributeCondition, node *tree.Node) (bool, error) {
	if c.BoundTag == "" {
		return false, &ConfigurationError{Message: "attribute condition has no bound tag"}
	}
	return node.TagType == c.BoundTag && node.HasAttributeValue(c.Attribute, c.Value), nil
}

func evalRelational(c *RelationalCondition, node, root *tree.Node) (bool, error) {
	switch c.Kind {
	case RelationAncestor:
		return node.IsDescendantOf(c.Tag), nil
	case RelationPosition:
		if root == nil {
			return false, &ConfigurationError{Message: "position condition evaluated without a root node"}
		}
		if c.BoundTag == "" {
			return false, &ConfigurationError{Message: "position condition has no bound tag"}
		}
		return atPosition(root, node, c.BoundTag, c.Ordinal), nil
	default:
		return false, &ConfigurationError{Message: fmt.Sprintf("unsupported relation %d", c.Kind)}
	}
}

// atPosition reports whether node is the want-th (1-based) tag node in the
// pre-order traversal of root. The walk stops once want tag nodes are seen.
func atPosition(root, node *tree.Node, tag string, want int) bool {
	if want < 1 || node.TagType != tag {
		return false
	}
	i := 0
	for n := range root.Preorder() {
		if n.TagType != tag {
			continue
		}
		i++
		if n == node {
			return i == want
		}
		if i >= want {
			return false
		}
	}
	return false
}
