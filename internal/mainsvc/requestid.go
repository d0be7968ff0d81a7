package mainsvc

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// withRequestID assigns a fresh request id to ctx — an opaque
// correlation id, never a secret, so it doesn't run afoul of spec §7's
// "no stack traces / tokens in responses" rule. The id reaches the client
// only in the X-Request-Id response header; log lines and error bodies
// do not carry it.
func withRequestID(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	return context.WithValue(ctx, requestIDKey{}, id), id
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// withRequestIDMiddleware assigns every inbound request a request id
// before it reaches h, the way the teacher's per-request logging idiom
// (dlog.WithComponent) tags every log line with a structured field.
func withRequestIDMiddleware(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, id := withRequestID(r.Context())
		w.Header().Set("X-Request-Id", id)
		h(w, r.WithContext(ctx))
	}
}
