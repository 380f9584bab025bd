package goatspeak

import (
	"fmt"
	"sort"
	"strings"

	"github.com/scrapegoat/backend/internal/tree"
)

// Action names a statement kind.
type Action string

const (
	ActionSelect  Action = "select"
	ActionScrape  Action = "scrape"
	ActionExtract Action = "extract"
	ActionOutput  Action = "output"
)

// Instruction is a compiled statement. The set of implementations is
// closed: *Selection, *Extraction and *Output.
type Instruction interface {
	instruction()
	Position() Pos
	String() string
	Map() map[string]any
}

// Selection is a compiled SELECT or SCRAPE statement.
type Selection struct {
	Action     Action
	Limit      int // 0 means unbounded
	TargetTag  string
	Conditions []Condition
	Pos        Pos
}

// Extraction is a compiled EXTRACT statement. Nil Fields selects the full
// projection.
type Extraction struct {
	Fields []string
	Flags  tree.ExtractFlags
	Pos    Pos
}

// Output is a compiled OUTPUT statement. Execution is delegated to an
// output collaborator.
type Output struct {
	FileType string
	Flags    map[string]string
	Pos      Pos
}

func (*Selection) instruction()  {}
func (*Extraction) instruction() {}
func (*Output) instruction()     {}

func (s *Selection) Position() Pos  { return s.Pos }
func (e *Extraction) Position() Pos { return e.Pos }
func (o *Output) Position() Pos     { return o.Pos }

func (s *Selection) String() string {
	conds := make([]string, 0, len(s.Conditions))
	for _, c := range s.Conditions {
		conds = append(conds, c.String())
	}
	return fmt.Sprintf("Selection(action=%s, limit=%d, target=%s, conditions=[%s])",
		s.Action, s.Limit, s.TargetTag, strings.Join(conds, ", "))
}

func (s *Selection) Map() map[string]any {
	conds := make([]map[string]any, 0, len(s.Conditions))
	for _, c := range s.Conditions {
		conds = append(conds, c.Map())
	}
	return map[string]any{
		"kind":       "selection",
		"action":     string(s.Action),
		"limit":      s.Limit,
		"target_tag": s.TargetTag,
		"conditions": conds,
	}
}

// Matches reports whether node carries the target tag and satisfies every
// condition. Conditions are evaluated in order and stop at the first miss.
func (s *Selection) Matches(node, root *tree.Node) (bool, error) {
	if node.TagType != s.TargetTag {
		return false, nil
	}
	for _, cond := range s.Conditions {
		ok, err := Evaluate(cond, node, root)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (e *Extraction) String() string {
	return fmt.Sprintf("Extraction(fields=[%s], suppress_children=%t, suppress_grandchildren=%t)",
		strings.Join(e.Fields, ", "), e.Flags.SuppressChildren, e.Flags.SuppressGrandchildren)
}

func (e *Extraction) Map() map[string]any {
	return map[string]any{
		"kind":   "extraction",
		"fields": e.Fields,
		"flags":  e.Flags.Map(),
	}
}

func (o *Output) String() string {
	keys := make([]string, 0, len(o.Flags))
	for k := range o.Flags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+o.Flags[k])
	}
	return fmt.Sprintf("Output(file_type=%s, flags={%s})", o.FileType, strings.Join(pairs, ", "))
}

func (o *Output) Map() map[string]any {
	flags := make(map[string]string, len(o.Flags))
	for k, v := range o.Flags {
		flags[k] = v
	}
	return map[string]any{
		"kind":      "output",
		"file_type": o.FileType,
		"flags":     flags,
	}
}

// Flag returns the value of an output flag, or def when it is absent.
func (o *Output) Flag(name, def string) string {
	if v, ok := o.Flags[name]; ok {
		return v
	}
	return def
}

// Condition is a predicate attached to a Selection. The set of
// implementations is closed: *AttributeCondition and *RelationalCondition.
type Condition interface {
	condition()
	IsNegated() bool
	String() string
	Map() map[string]any
}

// AttributeCondition is "IF @attr = value": the node must carry BoundTag
// and its attribute value must contain Value.
type AttributeCondition struct {
	Attribute string
	Value     string
	BoundTag  string
	Negated   bool
}

// RelationKind selects what a RelationalCondition tests.
type RelationKind int

const (
	// RelationAncestor is "IN tag": some ancestor carries Tag.
	RelationAncestor RelationKind = iota
	// RelationPosition is "IN POSITION = n": the node is the n-th BoundTag
	// node in pre-order.
	RelationPosition
)

func (k RelationKind) String() string {
	if k == RelationPosition {
		return "POSITION"
	}
	return "ANCESTOR"
}

// RelationalCondition is an IN condition. Tag is set for RelationAncestor,
// Ordinal for RelationPosition.
type RelationalCondition struct {
	Kind     RelationKind
	Tag      string
	Ordinal  int
	BoundTag string
	Negated  bool
}

func (*AttributeCondition) condition()  {}
func (*RelationalCondition) condition() {}

func (c *AttributeCondition) IsNegated() bool  { return c.Negated }
func (c *RelationalCondition) IsNegated() bool { return c.Negated }

func (c *AttributeCondition) String() string {
	return fmt.Sprintf("AttributeCondition(attribute=%s, value=%s, negated=%t, bound_tag=%s)",
		c.Attribute, c.Value, c.Negated, c.BoundTag)
}

func (c *AttributeCondition) Map() map[string]any {
	return map[string]any{
		"kind":      "attribute",
		"attribute": c.Attribute,
		"value":     c.Value,
		"bound_tag": c.BoundTag,
		"negated":   c.Negated,
	}
}

func (c *RelationalCondition) String() string {
	if c.Kind == RelationPosition {
		return fmt.Sprintf("RelationalCondition(target=POSITION, ordinal=%d, negated=%t, bound_tag=%s)",
			c.Ordinal, c.Negated, c.BoundTag)
	}
	return fmt.Sprintf("RelationalCondition(target=%s, negated=%t, bound_tag=%s)", c.Tag, c.Negated, c.BoundTag)
}

func (c *RelationalCondition) Map() map[string]any {
	m := map[string]any{
		"kind":      "relational",
		"bound_tag": c.BoundTag,
		"negated":   c.Negated,
	}
	if c.Kind == RelationPosition {
		m["target"] = "POSITION"
		m["ordinal"] = c.Ordinal
	} else {
		m["target"] = c.Tag
	}
	return m
}
