package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/scrapegoat/backend/internal/goatspeak"
	"github.com/scrapegoat/backend/internal/infrastructure/monitoring"
	"github.com/scrapegoat/backend/internal/tree"
)

type node struct {
	tag      string
	attrs    map[string]string
	body     string
	children []node
}

func build(ids tree.IDSource, n node) *tree.Node {
	attrs := make(map[string]string, len(n.attrs))
	for k, v := range n.attrs {
		attrs[tree.AttrKey(k)] = v
	}
	out := tree.NewNode(ids, n.tag, attrs, n.body)
	for _, c := range n.children {
		out.AppendChild(build(ids, c))
	}
	return out
}

// <div><p id="1">A</p><p id="2">B</p></div>
func twoParagraphs() *tree.Node {
	return build(tree.NewSequence("t"), node{tag: "div", children: []node{
		{tag: "p", attrs: map[string]string{"id": "1"}, body: "A"},
		{tag: "p", attrs: map[string]string{"id": "2"}, body: "B"},
	}})
}

// <body><p>1</p><div><p>2</p><p>3</p></div><p>4</p><section><a>..</a></section></body>
func nested() *tree.Node {
	return build(tree.NewSequence("t"), node{tag: "body", children: []node{
		{tag: "p", body: "1"},
		{tag: "div", children: []node{
			{tag: "p", body: "2"},
			{tag: "p", body: "3", attrs: map[string]string{"class": "lead"}},
		}},
		{tag: "p", body: "4", attrs: map[string]string{"class": "leader"}},
		{tag: "section", children: []node{
			{tag: "a", attrs: map[string]string{"href": "/y"}, body: "y"},
			{tag: "a", attrs: map[string]string{"href": "/x"}, body: "x"},
			{tag: "a", body: "none"},
		}},
	}})
}

func bodies(nodes []*tree.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Body)
	}
	return out
}

func TestScrapeWithExtraction(t *testing.T) {
	eng := New()
	results, err := eng.Run(context.Background(), twoParagraphs(), "SCRAPE p; EXTRACT body;")
	require.NoError(t, err)

	assert.ElementsMatch(t, []map[string]any{
		{"body": "A"},
		{"body": "B"},
	}, results.Projections())
}

func TestScrapeByAttribute(t *testing.T) {
	root := nested()
	results, err := New().Run(context.Background(), root, "SCRAPE a IF @href='/x';")
	require.NoError(t, err)

	require.Equal(t, 1, results.Len())
	assert.Equal(t, "x", results.Nodes()[0].Body)
}

func TestMissingSemicolonIsSyntaxError(t *testing.T) {
	results, err := New().Run(context.Background(), twoParagraphs(), "SCRAPE p")
	require.Error(t, err)
	assert.Nil(t, results)
	assert.True(t, errors.Is(err, goatspeak.ErrSyntax))
}

func TestScrapeTagSelectsEveryNodeWithTag(t *testing.T) {
	root := nested()
	results, err := New().Run(context.Background(), root, "SCRAPE p;")
	require.NoError(t, err)

	var want []*tree.Node
	for n := range root.Preorder() {
		if n.TagType == "p" {
			want = append(want, n)
		}
	}
	assert.ElementsMatch(t, want, results.Nodes())
	for _, n := range want {
		assert.True(t, results.Contains(n))
	}
}

func TestLimitTakesFirstInPreorder(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"SCRAPE 1 p;", []string{"1"}},
		{"SCRAPE 3 p;", []string{"1", "2", "3"}},
		{"SCRAPE 10 p;", []string{"1", "2", "3", "4"}},
		{"SCRAPE 0 p;", []string{"1", "2", "3", "4"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			results, err := New().Run(context.Background(), nested(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, bodies(results.Nodes()))
		})
	}
}

func TestPositionSelectsFirstOccurrence(t *testing.T) {
	results, err := New().Run(context.Background(), nested(), "SCRAPE p IN POSITION = 1;")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, bodies(results.Nodes()))

	results, err = New().Run(context.Background(), nested(), "SCRAPE p IN POSITION = 3;")
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, bodies(results.Nodes()))

	results, err = New().Run(context.Background(), nested(), "SCRAPE p IN POSITION != 1;")
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3", "4"}, bodies(results.Nodes()))
}

func TestConditionsCombine(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"SCRAPE p IF @class = lead;", []string{"3", "4"}},
		{"SCRAPE p IF @class = lead IN div;", []string{"3"}},
		{"SCRAPE p IF @class = lead NOT IN div;", []string{"4"}},
		{"SCRAPE p NOT IF @class = lead;", []string{"1", "2"}},
		{"SCRAPE p IN section;", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			results, err := New().Run(context.Background(), nested(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, bodies(results.Nodes()))
		})
	}
}

func TestSelectionsAccumulateWithoutDuplicates(t *testing.T) {
	results, err := New().Run(context.Background(), nested(), "SCRAPE p; SELECT 2 p; SELECT a IF @href = x;")
	require.NoError(t, err)
	assert.Equal(t, 5, results.Len())
	assert.Equal(t, []string{"1", "2", "3", "4", "x"}, bodies(results.Nodes()))
}

func TestOnlyFirstExtractionApplies(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	eng := New(WithLogger(zap.New(core)))

	results, err := eng.Run(context.Background(), twoParagraphs(), "SCRAPE p; EXTRACT @id; EXTRACT body; EXTRACT id;")
	require.NoError(t, err)
	assert.ElementsMatch(t, []map[string]any{{"@id": "1"}, {"@id": "2"}}, results.Projections())

	skipped := logs.FilterMessage("Ignoring extra extraction statements").All()
	require.Len(t, skipped, 1)
	assert.Equal(t, int64(2), skipped[0].ContextMap()["skipped"])
}

func TestExtractionFlags(t *testing.T) {
	results, err := New().Run(context.Background(), nested(), "SCRAPE div; EXTRACT tag_type children --no-grandchildren;")
	require.NoError(t, err)

	require.Equal(t, []map[string]any{{
		"tag_type": "div",
		"children": []map[string]any{
			{"tag_type": "p"},
			{"tag_type": "p"},
		},
	}}, results.Projections())
}

func TestNoExtractionProjectsEverything(t *testing.T) {
	root := twoParagraphs()
	results, err := New().Run(context.Background(), root, "SCRAPE 1 p;")
	require.NoError(t, err)

	rows := results.Projections()
	require.Len(t, rows, 1)
	assert.Equal(t, root.Children[0].ID, rows[0]["id"])
	assert.Equal(t, root.ID, rows[0]["parent"])
	assert.Equal(t, "A", rows[0]["body"])
}

func TestBareExtractionKeepsFullProjection(t *testing.T) {
	results, err := New().Run(context.Background(), twoParagraphs(), "SCRAPE div; EXTRACT --no-children;")
	require.NoError(t, err)

	rows := results.Projections()
	require.Len(t, rows, 1)
	assert.Equal(t, "div", rows[0]["tag_type"])
	assert.Contains(t, rows[0], "body")
	assert.NotContains(t, rows[0], "children")
}

func TestEmptyQuery(t *testing.T) {
	results, err := New().Run(context.Background(), twoParagraphs(), "")
	require.NoError(t, err)
	assert.Equal(t, 0, results.Len())
	assert.Empty(t, results.Projections())
}

func TestExecuteDoesNotChangeTreeShape(t *testing.T) {
	root := nested()
	before := root.Project(nil, tree.ExtractFlags{})

	_, err := New().Run(context.Background(), root, "SCRAPE p IN POSITION = 2; SCRAPE a;")
	require.NoError(t, err)
	assert.Equal(t, before, root.Project(nil, tree.ExtractFlags{}))
}

func TestConfigurationErrorAbortsExecute(t *testing.T) {
	insts := []goatspeak.Instruction{
		&goatspeak.Selection{Action: goatspeak.ActionSelect, TargetTag: "p", Conditions: []goatspeak.Condition{
			&goatspeak.RelationalCondition{Kind: goatspeak.RelationPosition, Ordinal: 1},
		}},
	}
	results, err := New().Execute(context.Background(), nested(), insts)
	require.Error(t, err)
	assert.Nil(t, results)
	assert.True(t, errors.Is(err, goatspeak.ErrConfiguration))
	assert.Contains(t, err.Error(), "selection 1")
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Run(ctx, nested(), "SCRAPE p;")
	assert.ErrorIs(t, err, context.Canceled)
}

type recordingDeliverer struct {
	calls []*goatspeak.Output
	count int
	err   error
}

func (d *recordingDeliverer) Deliver(_ context.Context, results *ResultSet, out *goatspeak.Output) error {
	d.calls = append(d.calls, out)
	d.count = results.Len()
	return d.err
}

func TestOutputIsDelivered(t *testing.T) {
	d := &recordingDeliverer{}
	eng := New(WithDeliverer(d))

	_, err := eng.Run(context.Background(), twoParagraphs(), "SCRAPE p; OUTPUT csv --filename first; OUTPUT json;")
	require.NoError(t, err)

	require.Len(t, d.calls, 1)
	assert.Equal(t, "csv", d.calls[0].FileType)
	assert.Equal(t, "first", d.calls[0].Flags["filename"])
	assert.Equal(t, 2, d.count)
}

func TestOutputErrors(t *testing.T) {
	_, err := New().Run(context.Background(), twoParagraphs(), "SCRAPE p; OUTPUT json;")
	assert.ErrorIs(t, err, ErrNoDeliverer)

	boom := errors.New("disk full")
	_, err = New(WithDeliverer(&recordingDeliverer{err: boom})).Run(context.Background(), twoParagraphs(), "SCRAPE p; OUTPUT json;")
	assert.ErrorIs(t, err, boom)
}

func TestMetricsRecorded(t *testing.T) {
	metrics := monitoring.NewMetrics()
	eng := New(WithMetrics(metrics))

	_, err := eng.Run(context.Background(), twoParagraphs(), "SCRAPE p;")
	require.NoError(t, err)
	_, err = eng.Run(context.Background(), twoParagraphs(), "SCRAPE p")
	require.Error(t, err)

	snap := metrics.Snapshot()
	assert.Equal(t, int64(1), snap.TotalQueries)
	assert.Equal(t, int64(0), snap.QueryErrors)
}
