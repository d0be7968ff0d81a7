package mainsvc

import (
	"encoding/json"
	"net/http"

	"github.com/deltadb/deltadb/internal/dberr"
	"github.com/deltadb/deltadb/internal/dlog"
)

// writeJSON writes v as a JSON body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		dlog.Errorf("encode response", err)
	}
}

// errorBody is the generic, response-safe error shape (spec §7: no
// stack, no path, no token echo).
type errorBody struct {
	Error string `json:"error"`
}

// writeError classifies err via dberr and writes the matching HTTP
// status and a generic message. The full cause is logged server-side for
// Internal errors only.
func writeError(w http.ResponseWriter, err error) {
	de := dberr.As(err)
	if de.Kind == dberr.Internal {
		dlog.Errorf("request failed", de)
	}
	writeJSON(w, de.Kind.HTTPStatus(), errorBody{Error: de.Message})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
}
