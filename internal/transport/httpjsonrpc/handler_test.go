package httpjsonrpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/samiralibabic/previewd/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echo(_ context.Context, req protocol.Request) protocol.Response {
	return protocol.Response{JSONRPC: protocol.Version, ID: 1, Result: req.Method}
}

func TestHandlerAnswersRequests(t *testing.T) {
	rec := httptest.NewRecorder()
	body := `{"jsonrpc":"2.0","id":1,"method":"preview.list"}`
	Handler(echo)(rec, httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp protocol.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "preview.list", resp.Result)
}

func TestHandlerReturnsParseError(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler(echo)(rec, httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader("{nope")))

	var resp protocol.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.ErrParse, resp.Error.Code)
}

func TestHandlerNotificationHasNoBody(t *testing.T) {
	rec := httptest.NewRecorder()
	body := `{"jsonrpc":"2.0","method":"preview.list"}`
	Handler(echo)(rec, httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body)))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestHandlerRejectsGet(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler(echo)(rec, httptest.NewRequest(http.MethodGet, "/rpc", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}
