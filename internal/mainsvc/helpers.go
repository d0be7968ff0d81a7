package mainsvc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/deltadb/deltadb/internal/dberr"
)

// readLimited reads at most limit+1 bytes from the request body,
// rejecting with PayloadTooLarge if the body exceeds limit (spec §4.6:
// "Request body limit: 1 MiB; exceed -> 413").
func readLimited(r *http.Request, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, "read request body", err)
	}
	if int64(len(body)) > limit {
		return nil, dberr.New(dberr.PayloadTooLarge, "request body exceeds limit")
	}
	return body, nil
}

// singleKeyObject parses body as a single-key JSON object {key: value}
// (spec §4.6: "PUT /entity/{db} body must be a single-key object...
// multiple keys or empty body -> 400"), also enforcing the depth cap.
func singleKeyObject(body []byte) (key string, value []byte, err error) {
	if err := checkJSONDepth(body, maxJSONDepth); err != nil {
		return "", nil, err
	}

	var obj map[string]json.RawMessage
	if jsonErr := json.Unmarshal(body, &obj); jsonErr != nil {
		return "", nil, dberr.Wrap(dberr.BadInput, "body must be a JSON object", jsonErr)
	}
	if len(obj) != 1 {
		return "", nil, dberr.New(dberr.BadInput, "body must contain exactly one key")
	}
	for k, v := range obj {
		return k, v, nil
	}
	return "", nil, dberr.New(dberr.BadInput, "body must contain exactly one key")
}

// requestContext derives a deadline-bound context for an inbound HTTP
// request, defaulting to cfg.RequestDeadline (spec §5: "default 10s").
func requestContext(r *http.Request, deadline time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), deadline)
}
