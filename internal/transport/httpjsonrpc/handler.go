// Package httpjsonrpc serves one JSON-RPC request per HTTP POST.
package httpjsonrpc

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/samiralibabic/previewd/internal/protocol"
)

const maxBodyBytes = 1 << 20

type RequestHandler func(context.Context, protocol.Request) protocol.Response

func Handler(handle RequestHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req protocol.Request
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeJSON(w, protocol.ErrorResponse(nil, protocol.ErrParse, "parse error", err.Error()))
			return
		}
		resp := handle(r.Context(), req)
		if len(req.ID) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, resp)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
