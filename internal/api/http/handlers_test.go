package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapegoat/backend/internal/builder"
	"github.com/scrapegoat/backend/internal/engine"
	"github.com/scrapegoat/backend/internal/fetch"
	"github.com/scrapegoat/backend/internal/goatspeak"
	"github.com/scrapegoat/backend/internal/infrastructure/monitoring"
	"github.com/scrapegoat/backend/internal/infrastructure/resilience"
	"github.com/scrapegoat/backend/internal/tree"
)

const page = `<html><body><a href="/x">X</a><a href="/y">Y</a><p class="c">para</p></body></html>`

type fakeFetcher struct {
	pages map[string]string
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, &fetch.StatusError{URL: url, StatusCode: http.StatusNotFound}
	}
	return []byte(body), nil
}

func (f *fakeFetcher) BreakerStates() map[string]resilience.State {
	return map[string]resilience.State{"example.com": resilience.StateClosed}
}

type fixture struct {
	h       *Handlers
	router  *gin.Engine
	fetcher *fakeFetcher
	metrics *monitoring.Metrics
}

func setup(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	metrics := monitoring.NewMetrics()
	fetcher := &fakeFetcher{pages: map[string]string{"https://example.com/": page}}
	h := NewHandlers(
		engine.New(engine.WithMetrics(metrics)),
		builder.New(builder.WithIDSource(tree.NewSequence("n"))),
		fetcher,
		metrics,
		nil,
	)

	router := gin.New()
	h.Register(router)
	return &fixture{h: h, router: router, fetcher: fetcher, metrics: metrics}
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *strings.Reader
	switch b := body.(type) {
	case nil:
		reader = strings.NewReader("")
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := sonic.Marshal(b)
		if err != nil {
			panic(err)
		}
		reader = strings.NewReader(string(data))
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestHealth(t *testing.T) {
	f := setup(t)

	for _, path := range []string{"/health", APIPrefix + "/health"} {
		w := f.do("GET", path, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"OK"}`, w.Body.String())
	}
}

func TestQueryInlineHTML(t *testing.T) {
	f := setup(t)

	w := f.do("POST", APIPrefix+"/query", QueryRequest{
		Source: Source{HTML: page},
		Query:  "SCRAPE a; EXTRACT @href, body;",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"count":2,"results":[{"@href":"/x","body":"X"},{"@href":"/y","body":"Y"}]}`, w.Body.String())
	assert.Zero(t, f.fetcher.calls)
}

func TestQueryFetchesURL(t *testing.T) {
	f := setup(t)

	w := f.do("POST", APIPrefix+"/query", QueryRequest{
		Source: Source{URL: "https://example.com/"},
		Query:  "SELECT p IF class = c; EXTRACT body;",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"count":1,"results":[{"body":"para"}]}`, w.Body.String())
	assert.Equal(t, 1, f.fetcher.calls)
}

func TestQueryEncodedFormat(t *testing.T) {
	f := setup(t)

	w := f.do("POST", APIPrefix+"/query", QueryRequest{
		Source: Source{HTML: page},
		Query:  "SCRAPE a; EXTRACT @href, body;",
		Format: "csv",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "@href,body\n/x,X\n/y,Y\n", w.Body.String())
}

func TestQueryScope(t *testing.T) {
	f := setup(t)

	w := f.do("POST", APIPrefix+"/query", QueryRequest{
		Source: Source{HTML: page, Scope: "p.c"},
		Query:  "SCRAPE a;",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"count":0,"results":[]}`, w.Body.String())
}

func TestQueryErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantKind   string
	}{
		{
			name:       "malformed json",
			body:       `{"query":`,
			wantStatus: http.StatusBadRequest,
			wantKind:   KindRequest,
		},
		{
			name:       "missing query",
			body:       QueryRequest{Source: Source{HTML: page}},
			wantStatus: http.StatusBadRequest,
			wantKind:   KindRequest,
		},
		{
			name:       "no source",
			body:       QueryRequest{Query: "SCRAPE a;"},
			wantStatus: http.StatusBadRequest,
			wantKind:   KindRequest,
		},
		{
			name:       "both sources",
			body:       QueryRequest{Source: Source{HTML: page, URL: "https://example.com/"}, Query: "SCRAPE a;"},
			wantStatus: http.StatusBadRequest,
			wantKind:   KindRequest,
		},
		{
			name:       "lexical error",
			body:       QueryRequest{Source: Source{HTML: page}, Query: "SCRAPE a $;"},
			wantStatus: http.StatusBadRequest,
			wantKind:   KindLexical,
		},
		{
			name:       "output statement",
			body:       QueryRequest{Source: Source{HTML: page}, Query: "SCRAPE a; OUTPUT json;"},
			wantStatus: http.StatusBadRequest,
			wantKind:   KindUnsupported,
		},
		{
			name:       "unknown format",
			body:       QueryRequest{Source: Source{HTML: page}, Query: "SCRAPE a;", Format: "xlsx"},
			wantStatus: http.StatusBadRequest,
			wantKind:   KindFormat,
		},
		{
			name:       "scope not found",
			body:       QueryRequest{Source: Source{HTML: page, Scope: "table"}, Query: "SCRAPE a;"},
			wantStatus: http.StatusUnprocessableEntity,
			wantKind:   KindDocument,
		},
		{
			name:       "upstream status",
			body:       QueryRequest{Source: Source{URL: "https://example.com/missing"}, Query: "SCRAPE a;"},
			wantStatus: http.StatusBadGateway,
			wantKind:   KindFetch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)

			w := f.do("POST", APIPrefix+"/query", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			resp := decodeError(t, w)
			assert.Equal(t, tt.wantKind, resp.Kind)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestQuerySyntaxErrorPosition(t *testing.T) {
	f := setup(t)

	w := f.do("POST", APIPrefix+"/query", QueryRequest{
		Source: Source{HTML: page},
		Query:  "SCRAPE a;\nSCRAPE ;",
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, KindSyntax, resp.Kind)
	assert.Equal(t, 2, resp.Line)
	assert.Equal(t, 8, resp.Column)
}

func TestOutputRejectedBeforeFetch(t *testing.T) {
	f := setup(t)

	w := f.do("POST", APIPrefix+"/query", QueryRequest{
		Source: Source{URL: "https://example.com/"},
		Query:  "SCRAPE a; OUTPUT csv --filename x;",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, f.fetcher.calls)
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"invalid url", fmt.Errorf("%w: %q", fetch.ErrInvalidURL, "x"), http.StatusBadRequest, KindRequest},
		{"not html", fetch.ErrNotHTML, http.StatusBadGateway, KindFetch},
		{"circuit open", resilience.ErrCircuitOpen, http.StatusBadGateway, KindFetch},
		{"transport", errors.New("connection refused"), http.StatusBadGateway, KindFetch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			f.fetcher.err = tt.err

			w := f.do("POST", APIPrefix+"/dom-tree/build", BuildTreeRequest{Source: Source{URL: "https://example.com/"}})

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantKind, decodeError(t, w).Kind)
		})
	}
}

func TestBuildTree(t *testing.T) {
	f := setup(t)

	w := f.do("POST", APIPrefix+"/dom-tree/build", BuildTreeRequest{Source: Source{URL: "https://example.com/"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp DOMTree
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "https://example.com/", resp.URL)
	assert.Equal(t, builder.RootTag, resp.Root["tag_type"])
	assert.Equal(t, "n-1", resp.Root["id"])
	assert.Nil(t, resp.Root["parent"])

	children, ok := resp.Root["children"].([]any)
	require.True(t, ok)
	require.Len(t, children, 1)
	html := children[0].(map[string]any)
	assert.Equal(t, "html", html["tag_type"])
	assert.Equal(t, "n-1", html["parent"])
}

func TestBuildTreeScoped(t *testing.T) {
	f := setup(t)

	w := f.do("POST", APIPrefix+"/dom-tree/build", BuildTreeRequest{Source: Source{HTML: page, Scope: "p.c"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp DOMTree
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "p", resp.Root["tag_type"])
	assert.Equal(t, "para", resp.Root["body"])
	assert.Equal(t, map[string]any{"@class": "c"}, resp.Root["attributes"])
}

func TestScrape(t *testing.T) {
	f := setup(t)

	w := f.do("POST", APIPrefix+"/scrape", ScrapeRequest{
		Source: Source{URL: "https://example.com/"},
		RetrievalInstructions: []RetrievalInstruction{
			{NodeQuery: "SCRAPE a;", Output: NodeOutput{Location: "@href", Key: "link"}},
			{NodeQuery: "SCRAPE p", Output: NodeOutput{Location: "body", Key: "text"}},
		},
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{
		"url": "https://example.com/",
		"data": [{"link": "/x"}, {"link": "/y"}, {"text": "para"}]
	}`, w.Body.String())
	assert.Equal(t, 1, f.fetcher.calls, "the tree is built once per request")
}

func TestScrapeFlags(t *testing.T) {
	f := setup(t)

	w := f.do("POST", APIPrefix+"/scrape", ScrapeRequest{
		Source: Source{HTML: page},
		RetrievalInstructions: []RetrievalInstruction{{
			NodeQuery: "SCRAPE body;",
			Output:    NodeOutput{Location: "children", Key: "kids"},
			Flags:     map[string]any{"no-children": true, "ignored": "x"},
		}},
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"data": [{}]}`, w.Body.String())
}

func TestScrapeValidation(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		wantKind string
	}{
		{"no instructions", ScrapeRequest{Source: Source{HTML: page}}, KindRequest},
		{"missing key", ScrapeRequest{
			Source:                Source{HTML: page},
			RetrievalInstructions: []RetrievalInstruction{{NodeQuery: "SCRAPE a;", Output: NodeOutput{Location: "body"}}},
		}, KindRequest},
		{"unknown location", ScrapeRequest{
			Source:                Source{HTML: page},
			RetrievalInstructions: []RetrievalInstruction{{NodeQuery: "SCRAPE a;", Output: NodeOutput{Location: "text", Key: "t"}}},
		}, KindRequest},
		{"bad node query", ScrapeRequest{
			Source:                Source{HTML: page},
			RetrievalInstructions: []RetrievalInstruction{{NodeQuery: "SCRAPE IF;", Output: NodeOutput{Location: "body", Key: "b"}}},
		}, KindSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			w := f.do("POST", APIPrefix+"/scrape", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, tt.wantKind, decodeError(t, w).Kind)
		})
	}
}

func TestCompile(t *testing.T) {
	f := setup(t)

	w := f.do("POST", APIPrefix+"/compile", CompileRequest{Query: "SCRAPE 2 a IF @href = '/x'; EXTRACT body; OUTPUT csv --gzip;"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp CompileResponse
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Instructions, 3)
	assert.Equal(t, "selection", resp.Instructions[0]["kind"])
	assert.Equal(t, "scrape", resp.Instructions[0]["action"])
	assert.EqualValues(t, 2, resp.Instructions[0]["limit"])
	assert.Equal(t, "extraction", resp.Instructions[1]["kind"])
	assert.Equal(t, "output", resp.Instructions[2]["kind"])
	assert.Equal(t, map[string]any{"gzip": "true"}, resp.Instructions[2]["flags"])
}

func TestStats(t *testing.T) {
	f := setup(t)

	f.do("POST", APIPrefix+"/query", QueryRequest{Source: Source{HTML: page}, Query: "SCRAPE a;"})
	w := f.do("GET", "/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatsResponse
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Metrics.TotalQueries)
	assert.Equal(t, map[string]string{"example.com": "closed"}, resp.Breakers)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantKind   string
	}{
		{&goatspeak.ConfigurationError{Message: "no root"}, http.StatusUnprocessableEntity, KindConfiguration},
		{fmt.Errorf("selection 0: %w", &goatspeak.ConfigurationError{Message: "x"}), http.StatusUnprocessableEntity, KindConfiguration},
		{builder.ErrEmptyDocument, http.StatusUnprocessableEntity, KindDocument},
		{fmt.Errorf("%w: boom", errUpstream), http.StatusBadGateway, KindFetch},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, KindTimeout},
		{errors.New("boom"), http.StatusInternalServerError, KindInternal},
	}

	for _, tt := range tests {
		status, kind := classify(tt.err)
		assert.Equal(t, tt.wantStatus, status, tt.err.Error())
		assert.Equal(t, tt.wantKind, kind, tt.err.Error())
	}
}

func TestRetrievalQuery(t *testing.T) {
	assert.Equal(t, "SCRAPE a; EXTRACT @href;",
		retrievalQuery(RetrievalInstruction{NodeQuery: " SCRAPE a; ", Output: NodeOutput{Location: "@href"}}))
	assert.Equal(t, "SCRAPE a; EXTRACT body --no-children --no-grandchildren;",
		retrievalQuery(RetrievalInstruction{
			NodeQuery: "SCRAPE a",
			Output:    NodeOutput{Location: "body"},
			Flags:     map[string]any{"no-grandchildren": true, "no-children": true},
		}))
}

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name string
		path string
		body any
	}{
		{"oversized scope", "/query", QueryRequest{Source: Source{HTML: page, Scope: strings.Repeat("a", 2000)}, Query: "SCRAPE a;"}},
		{"null byte in query", "/compile", CompileRequest{Query: "SCRAPE a;\x00"}},
		{"bad output key", "/scrape", ScrapeRequest{
			Source:                Source{HTML: page},
			RetrievalInstructions: []RetrievalInstruction{{NodeQuery: "SCRAPE a;", Output: NodeOutput{Location: "body", Key: "two words"}}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			w := f.do("POST", APIPrefix+tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, KindRequest, decodeError(t, w).Kind)
		})
	}
}

func TestQuerySanitize(t *testing.T) {
	f := setup(t)
	const dirty = `<div><script>steal()</script><p>kept</p></div>`

	w := f.do("POST", APIPrefix+"/query", QueryRequest{Source: Source{HTML: dirty}, Query: "SCRAPE script;"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = f.do("POST", APIPrefix+"/query", QueryRequest{Source: Source{HTML: dirty, Sanitize: true}, Query: "SCRAPE script;"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"count":0,"results":[]}`, w.Body.String())

	w = f.do("POST", APIPrefix+"/query", QueryRequest{Source: Source{HTML: dirty, Sanitize: true}, Query: "SCRAPE p; EXTRACT body;"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"count":1,"results":[{"body":"kept"}]}`, w.Body.String())
}
