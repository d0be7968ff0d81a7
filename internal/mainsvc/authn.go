package mainsvc

import (
	"net/http"
	"strings"
	"unicode"

	"github.com/deltadb/deltadb/internal/dberr"
	"github.com/deltadb/deltadb/internal/dbtypes"
)

// principal is an AuthKey/SessionToken's resolved permission set. Worker
// tokens never reach authenticate: they're checked separately by
// authorizeProcess and are only ever accepted on RPC Process, never REST
// (spec §9 open question (b)).
type principal struct {
	permissions dbtypes.Permissions
}

func (p principal) has(perm dbtypes.Permission) bool {
	return p.permissions.Has(perm)
}

// bearerToken extracts and validates the Authorization header per spec
// §6: exactly one "Bearer <token>" scheme, no other scheme, no null
// bytes, no non-ASCII, no repeated "Bearer".
func bearerToken(r *http.Request) (string, error) {
	raw := r.Header.Values("Authorization")
	if len(raw) == 0 {
		return "", dberr.New(dberr.Unauthorized, "missing Authorization header")
	}
	if len(raw) > 1 {
		return "", dberr.New(dberr.Unauthorized, "multiple Authorization headers")
	}
	header := raw[0]

	for _, r := range header {
		if r > unicode.MaxASCII {
			return "", dberr.New(dberr.Unauthorized, "invalid Authorization header")
		}
	}
	if strings.Contains(header, "\x00") {
		return "", dberr.New(dberr.Unauthorized, "invalid Authorization header")
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", dberr.New(dberr.Unauthorized, "unsupported authorization scheme")
	}
	token := strings.TrimPrefix(header, prefix)
	if token == "" || strings.Contains(token, "Bearer ") {
		return "", dberr.New(dberr.Unauthorized, "invalid Authorization header")
	}
	return token, nil
}

// authenticate resolves a request's bearer token to a principal by
// trying AuthStore secrets, then session tokens. Worker tokens never
// validate here; REST never accepts them (spec §9 open question (b)).
func (s *Server) authenticate(token string) (principal, bool) {
	if perms, ok := s.auth.Verify(token); ok {
		return principal{permissions: perms}, true
	}
	if perms, ok := s.auth.VerifySession(token); ok {
		return principal{permissions: perms}, true
	}
	return principal{}, false
}

// requirePermission is REST middleware enforcing the spec §4.6
// permission-gate table for one endpoint. perm == "" means the endpoint
// requires a valid bearer token but no specific permission. Endpoints
// that accept any one of several permissions (/admin/workers) use
// requireAnyPermission instead.
func (s *Server) requirePermission(perm dbtypes.Permission, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			writeError(w, err)
			return
		}
		p, ok := s.authenticate(token)
		if !ok {
			writeError(w, dberr.New(dberr.Unauthorized, "invalid bearer token"))
			return
		}
		if perm != "" && !p.has(perm) {
			writeError(w, dberr.New(dberr.Forbidden, "insufficient permission"))
			return
		}
		next(w, r)
	}
}

// requireAnyPermission gates an endpoint behind any one of several
// permissions (spec §4.6: "GET /admin/workers -> read or admin").
func (s *Server) requireAnyPermission(perms []dbtypes.Permission, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			writeError(w, err)
			return
		}
		p, ok := s.authenticate(token)
		if !ok {
			writeError(w, dberr.New(dberr.Unauthorized, "invalid bearer token"))
			return
		}
		for _, perm := range perms {
			if p.has(perm) {
				next(w, r)
				return
			}
		}
		writeError(w, dberr.New(dberr.Forbidden, "insufficient permission"))
	}
}
