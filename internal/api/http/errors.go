package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scrapegoat/backend/internal/builder"
	"github.com/scrapegoat/backend/internal/fetch"
	"github.com/scrapegoat/backend/internal/goatspeak"
	"github.com/scrapegoat/backend/internal/output"
)

// Error kinds reported in ErrorResponse.Kind.
const (
	KindRequest       = "request"
	KindLexical       = "lexical"
	KindSyntax        = "syntax"
	KindConfiguration = "configuration"
	KindDocument      = "document"
	KindFormat        = "format"
	KindUnsupported   = "unsupported"
	KindFetch         = "fetch"
	KindTimeout       = "timeout"
	KindInternal      = "internal"
)

var (
	errSource        = errors.New("exactly one of url and html is required")
	errOutputStmt    = errors.New("OUTPUT statements are not supported by the service; use the format field")
	errUpstream      = errors.New("upstream fetch failed")
	errRequestFormat = errors.New("malformed request")
)

// classify maps an error to a response status and kind.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errRequestFormat), errors.Is(err, errSource), errors.Is(err, errNoDocument), errors.Is(err, fetch.ErrInvalidURL):
		return http.StatusBadRequest, KindRequest
	case errors.Is(err, goatspeak.ErrLexical):
		return http.StatusBadRequest, KindLexical
	case errors.Is(err, goatspeak.ErrSyntax):
		return http.StatusBadRequest, KindSyntax
	case errors.Is(err, output.ErrUnknownFormat):
		return http.StatusBadRequest, KindFormat
	case errors.Is(err, errOutputStmt):
		return http.StatusBadRequest, KindUnsupported
	case errors.Is(err, goatspeak.ErrConfiguration):
		return http.StatusUnprocessableEntity, KindConfiguration
	case errors.Is(err, builder.ErrEmptyDocument), errors.Is(err, builder.ErrTooLarge), errors.Is(err, builder.ErrScopeNotFound):
		return http.StatusUnprocessableEntity, KindDocument
	case errors.Is(err, errUpstream):
		return http.StatusBadGateway, KindFetch
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, KindTimeout
	default:
		return http.StatusInternalServerError, KindInternal
	}
}

// fail writes the error response for err and aborts the handler chain.
func (h *Handlers) fail(c *gin.Context, err error) {
	status, resp := errorResponse(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, resp)
}

// errorResponse classifies err and fills in the query position of lexical
// and syntax errors.
func errorResponse(err error) (int, ErrorResponse) {
	status, kind := classify(err)
	resp := ErrorResponse{Error: err.Error(), Kind: kind}

	var lexErr *goatspeak.LexicalError
	var synErr *goatspeak.SyntaxError
	switch {
	case errors.As(err, &lexErr):
		resp.Line, resp.Column = lexErr.Pos.Line, lexErr.Pos.Column
	case errors.As(err, &synErr):
		resp.Line, resp.Column = synErr.Token.Pos.Line, synErr.Token.Pos.Column
	}
	return status, resp
}
