package tree

import (
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
)

// AttributePrefix marks attribute keys and attribute field specifiers.
const AttributePrefix = "@"

// IDSource hands out node identifiers. Implementations must never return
// the same ID twice for the lifetime of the trees they build.
type IDSource interface {
	NextID() string
}

// Sequence is a locally scoped IDSource producing prefix-1, prefix-2, ...
// It is owned by whoever builds a tree and is never shared implicitly.
type Sequence struct {
	prefix string
	next   atomic.Uint64
}

// NewSequence creates a sequence whose IDs carry the given prefix.
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

// NextID returns the next identifier in the sequence.
func (s *Sequence) NextID() string {
	return fmt.Sprintf("%s-%d", s.prefix, s.next.Add(1))
}

// ExtractFlags control projection depth.
type ExtractFlags struct {
	SuppressChildren      bool
	SuppressGrandchildren bool
}

// shift moves the flags one level down the tree.
func (f ExtractFlags) shift() ExtractFlags {
	return ExtractFlags{SuppressChildren: f.SuppressGrandchildren}
}

// Map returns the mapping representation of the flags.
func (f ExtractFlags) Map() map[string]bool {
	return map[string]bool{
		"suppress_children":      f.SuppressChildren,
		"suppress_grandchildren": f.SuppressGrandchildren,
	}
}

// Node is a single element of a document tree.
type Node struct {
	ID         string
	TagType    string
	HasData    bool
	Attributes map[string]string
	Body       string

	Children []*Node
	Parent   *Node

	// ExtractFields is nil unless an extraction narrowed the projection.
	ExtractFields []string
	ExtractFlags  ExtractFlags
}

// NewNode creates a detached node with an ID drawn from ids. Attribute keys
// are stored as given; use AttrKey to namespace raw attribute names.
func NewNode(ids IDSource, tag string, attrs map[string]string, body string) *Node {
	if attrs == nil {
		attrs = make(map[string]string)
	}
	return &Node{
		ID:         ids.NextID(),
		TagType:    tag,
		HasData:    body != "",
		Attributes: attrs,
		Body:       body,
	}
}

// AttrKey namespaces a raw attribute name ("href" -> "@href").
func AttrKey(name string) string {
	if strings.HasPrefix(name, AttributePrefix) {
		return name
	}
	return AttributePrefix + name
}

// AppendChild attaches c as the last child of n and returns c.
func (n *Node) AppendChild(c *Node) *Node {
	c.Parent = n
	n.Children = append(n.Children, c)
	return c
}

// Annotate records the projection applied when the node is serialized.
func (n *Node) Annotate(fields []string, flags ExtractFlags) {
	n.ExtractFields = slices.Clone(fields)
	n.ExtractFlags = flags
}

// ClearAnnotation restores the default full projection.
func (n *Node) ClearAnnotation() {
	n.ExtractFields = nil
	n.ExtractFlags = ExtractFlags{}
}

func (n *Node) String() string {
	return fmt.Sprintf("Node(id=%s, tag=%s, attrs=%d, children=%d)", n.ID, n.TagType, len(n.Attributes), len(n.Children))
}
