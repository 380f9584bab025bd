package goatspeak

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapegoat/backend/internal/tree"
)

// evalTree builds:
//
//	<div>
//	  <p @id=1>A</p>
//	  <section>
//	    <p @id=2 @class="lead big">B</p>
//	    <a @href=/x>link</a>
//	  </section>
//	</div>
func evalTree() (root *tree.Node, nodes map[string]*tree.Node) {
	ids := tree.NewSequence("n")
	root = tree.NewNode(ids, "div", nil, "")
	p1 := root.AppendChild(tree.NewNode(ids, "p", map[string]string{"@id": "1"}, "A"))
	section := root.AppendChild(tree.NewNode(ids, "section", nil, ""))
	p2 := section.AppendChild(tree.NewNode(ids, "p", map[string]string{"@id": "2", "@class": "lead big"}, "B"))
	a := section.AppendChild(tree.NewNode(ids, "a", map[string]string{"@href": "/x"}, "link"))
	return root, map[string]*tree.Node{"div": root, "p1": p1, "section": section, "p2": p2, "a": a}
}

func TestEvaluate(t *testing.T) {
	root, nodes := evalTree()

	tests := []struct {
		name string
		cond Condition
		node string
		want bool
	}{
		{"attribute substring", &AttributeCondition{Attribute: "@class", Value: "lead", BoundTag: "p"}, "p2", true},
		{"attribute missing", &AttributeCondition{Attribute: "@class", Value: "lead", BoundTag: "p"}, "p1", false},
		{"attribute wrong tag", &AttributeCondition{Attribute: "@id", Value: "1", BoundTag: "a"}, "p1", false},
		{"attribute negated", &AttributeCondition{Attribute: "@class", Value: "lead", BoundTag: "p", Negated: true}, "p1", true},
		{"ancestor present", &RelationalCondition{Kind: RelationAncestor, Tag: "section", BoundTag: "p"}, "p2", true},
		{"ancestor absent", &RelationalCondition{Kind: RelationAncestor, Tag: "section", BoundTag: "p"}, "p1", false},
		{"ancestor of root", &RelationalCondition{Kind: RelationAncestor, Tag: "div", BoundTag: "div"}, "div", false},
		{"ancestor negated", &RelationalCondition{Kind: RelationAncestor, Tag: "section", BoundTag: "p", Negated: true}, "p1", true},
		{"first p", &RelationalCondition{Kind: RelationPosition, Ordinal: 1, BoundTag: "p"}, "p1", true},
		{"second p", &RelationalCondition{Kind: RelationPosition, Ordinal: 2, BoundTag: "p"}, "p2", true},
		{"wrong ordinal", &RelationalCondition{Kind: RelationPosition, Ordinal: 1, BoundTag: "p"}, "p2", false},
		{"ordinal past end", &RelationalCondition{Kind: RelationPosition, Ordinal: 3, BoundTag: "p"}, "p2", false},
		{"node not of bound tag", &RelationalCondition{Kind: RelationPosition, Ordinal: 1, BoundTag: "p"}, "a", false},
		{"position negated", &RelationalCondition{Kind: RelationPosition, Ordinal: 1, BoundTag: "p", Negated: true}, "p2", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.cond, nodes[tt.node], root)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluatePositionOutsideBoundTags(t *testing.T) {
	root, nodes := evalTree()
	detached := tree.NewNode(tree.NewSequence("d"), "p", nil, "loose")

	tests := []struct {
		name    string
		ordinal int
		node    *tree.Node
	}{
		{"zero ordinal on other tag", 0, nodes["a"]},
		{"zero ordinal on detached node", 0, detached},
		{"zero ordinal on bound tag", 0, nodes["p1"]},
		{"first ordinal on detached node", 1, detached},
		{"negative ordinal", -1, nodes["p1"]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := &RelationalCondition{Kind: RelationPosition, Ordinal: tt.ordinal, BoundTag: "p"}
			got, err := Evaluate(cond, tt.node, root)
			require.NoError(t, err)
			assert.False(t, got)
		})
	}
}

// negated returns a copy of c with its negation flipped.
func negated(c Condition) Condition {
	switch v := c.(type) {
	case *AttributeCondition:
		cp := *v
		cp.Negated = !cp.Negated
		return &cp
	case *RelationalCondition:
		cp := *v
		cp.Negated = !cp.Negated
		return &cp
	}
	return c
}

func TestEvaluateNegationFlipsResult(t *testing.T) {
	root, nodes := evalTree()
	conds := []Condition{
		&AttributeCondition{Attribute: "@id", Value: "2", BoundTag: "p"},
		&RelationalCondition{Kind: RelationAncestor, Tag: "div", BoundTag: "p"},
		&RelationalCondition{Kind: RelationPosition, Ordinal: 2, BoundTag: "p"},
	}
	for _, c := range conds {
		for _, n := range nodes {
			plain, err := Evaluate(c, n, root)
			require.NoError(t, err)
			flipped, err := Evaluate(negated(c), n, root)
			require.NoError(t, err)
			assert.Equal(t, !plain, flipped, "%s on %s", c, n)
		}
	}
}

func TestEvaluateConfigurationErrors(t *testing.T) {
	root, nodes := evalTree()

	tests := []struct {
		name string
		cond Condition
		root *tree.Node
	}{
		{"position without root", &RelationalCondition{Kind: RelationPosition, Ordinal: 1, BoundTag: "p"}, nil},
		{"position without bound tag", &RelationalCondition{Kind: RelationPosition, Ordinal: 1}, root},
		{"attribute without bound tag", &AttributeCondition{Attribute: "@id", Value: "1"}, root},
		{"unknown relation", &RelationalCondition{Kind: RelationKind(9), BoundTag: "p"}, root},
		{"nil condition", nil, root},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(tt.cond, nodes["p1"], tt.root)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration))
		})
	}
}

func TestSelectionMatches(t *testing.T) {
	root, nodes := evalTree()
	insts, err := Compile("SCRAPE p IF @id = 2 IN section;")
	require.NoError(t, err)
	sel := insts[0].(*Selection)

	ok, err := sel.Matches(nodes["p2"], root)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = sel.Matches(nodes["p1"], root)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = sel.Matches(nodes["a"], root)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSelectionMatchesPropagatesErrors(t *testing.T) {
	_, nodes := evalTree()
	insts, err := Compile("SCRAPE p IN POSITION = 1;")
	require.NoError(t, err)

	_, err = insts[0].(*Selection).Matches(nodes["p1"], nil)
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}
