package mainsvc

import (
	"net/http"
	"strings"
	"time"

	"github.com/deltadb/deltadb/internal/dberr"
	"github.com/deltadb/deltadb/internal/dbtypes"
	"github.com/deltadb/deltadb/internal/filestore"
	"github.com/deltadb/deltadb/internal/metrics"
	"github.com/deltadb/deltadb/internal/rpcproto"
)

// Routes builds the Main Worker's REST mux (spec §6). Grounded on the
// teacher's pkg/api/health.go ServeMux-wiring idiom, generalized from a
// fixed {/health,/ready,/metrics} set to the spec's full endpoint table.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", instrumented("health", s.handleHealth))
	mux.HandleFunc("/api/login", instrumented("login", s.handleLogin))
	mux.HandleFunc("/api/keys", instrumented("keys", s.handleKeysCollection))
	mux.HandleFunc("/api/keys/", instrumented("keys", s.handleKeysItem))
	mux.HandleFunc("/admin/workers", instrumented("workers", s.requireAnyPermission(
		[]dbtypes.Permission{dbtypes.PermRead, dbtypes.PermAdmin}, s.handleWorkers)))
	mux.HandleFunc("/admin/schemas", instrumented("schemas", s.handleAdminSchemas))
	mux.HandleFunc("/schema/", instrumented("schema", s.handleSchema))
	mux.HandleFunc("/entity/", instrumented("entity", s.handleEntity))
	mux.Handle("/metrics", metrics.Handler())

	return withRequestIDMiddleware(mux.ServeHTTP)
}

// instrumented wraps a handler with the per-endpoint request-count and
// latency metrics (spec's ambient observability, not a named spec
// component but exercised by every REST path).
func instrumented(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)
		metrics.RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		metrics.RequestsTotal.WithLabelValues(endpoint, http.StatusText(sw.status)).Inc()
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

// handleHealth is the spec's one unconditionally unauthenticated,
// exact-body endpoint (P7: "{"status":"ok"}" and nothing else).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type loginRequest struct {
	Key string `json:"key"`
}

type loginResponse struct {
	Token       string              `json:"token"`
	Permissions dbtypes.Permissions `json:"permissions"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req loginRequest
	if err := decodeJSONLimited(r.Body, s.cfg.BodyLimit, &req); err != nil {
		writeError(w, err)
		return
	}
	perms, ok := s.auth.Verify(req.Key)
	if !ok {
		writeError(w, dberr.New(dberr.Unauthorized, "unknown key"))
		return
	}
	sess, err := s.auth.IssueSession(perms)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: sess.Token, Permissions: sess.Permissions})
}

type createKeyRequest struct {
	Name        string              `json:"name"`
	Permissions dbtypes.Permissions `json:"permissions"`
	ExpiresIn   string              `json:"expires_in,omitempty"` // Go duration string, e.g. "24h"
}

type createKeyResponse struct {
	ID        string     `json:"id"`
	Secret    string     `json:"secret"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// handleKeysCollection serves GET/POST /api/keys (spec §6), both
// requiring admin.
func (s *Server) handleKeysCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.requirePermission(dbtypes.PermAdmin, s.listKeys)(w, r)
	case http.MethodPost:
		s.requirePermission(dbtypes.PermAdmin, s.createKey)(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) listKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.auth.List())
}

func (s *Server) createKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := decodeJSONLimited(r.Body, s.cfg.BodyLimit, &req); err != nil {
		writeError(w, err)
		return
	}
	var expiresIn time.Duration
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil {
			writeError(w, dberr.New(dberr.BadInput, "expires_in must be a duration string"))
			return
		}
		expiresIn = d
	}
	key, secret, err := s.auth.Create(req.Name, req.Permissions, expiresIn)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createKeyResponse{ID: key.ID, Secret: secret, ExpiresAt: key.ExpiresAt})
}

// handleKeysItem serves DELETE /api/keys/{id}.
func (s *Server) handleKeysItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	s.requirePermission(dbtypes.PermAdmin, s.deleteKey)(w, r)
}

func (s *Server) deleteKey(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/keys/")
	if id == "" {
		writeError(w, dberr.New(dberr.BadInput, "key id required"))
		return
	}
	if err := s.auth.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusOK())
}

func statusOK() map[string]string { return map[string]string{"status": "ok"} }

// handleWorkers serves GET /admin/workers (spec §6): the registry
// snapshot, shaped to the spec's literal field list (worker_id, status,
// key_id, last_seen; the wrapped-key fingerprint and Address are left
// out).
func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	type workerView struct {
		WorkerID string               `json:"worker_id"`
		Status   dbtypes.WorkerStatus `json:"status"`
		KeyID    string               `json:"key_id"`
		LastSeen time.Time            `json:"last_seen"`
	}
	records := s.registry.List()
	out := make([]workerView, 0, len(records))
	for _, rec := range records {
		out = append(out, workerView{WorkerID: rec.WorkerID, Status: rec.Status, KeyID: rec.KeyID, LastSeen: rec.LastSeen})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAdminSchemas serves GET /admin/schemas (unauthenticated, spec
// §6).
func (s *Server) handleAdminSchemas(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	ids, err := s.schemas.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

// handleSchema serves GET /schema/{id} (unauthenticated) and PUT
// /schema/{id} (admin).
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/schema/")
	if err := filestore.ValidateName("schema_id", id); err != nil {
		writeError(w, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		body, err := s.schemas.Get(id)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	case http.MethodPut:
		s.requirePermission(dbtypes.PermAdmin, func(w http.ResponseWriter, r *http.Request) {
			body, err := readLimited(r, s.cfg.BodyLimit)
			if err != nil {
				writeError(w, err)
				return
			}
			if err := s.schemas.Put(id, body); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, statusOK())
		})(w, r)
	default:
		methodNotAllowed(w)
	}
}

// handleEntity serves GET/PUT /entity/{db} (spec §6). Routes the actual
// GET/PUT work to a Processing Worker via Server.forward.
func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	database := strings.TrimPrefix(r.URL.Path, "/entity/")
	if err := filestore.ValidateName("database", database); err != nil {
		writeError(w, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.requirePermission(dbtypes.PermRead, func(w http.ResponseWriter, r *http.Request) {
			s.getEntity(w, r, database)
		})(w, r)
	case http.MethodPut:
		s.requirePermission(dbtypes.PermWrite, func(w http.ResponseWriter, r *http.Request) {
			s.putEntity(w, r, database)
		})(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) getEntity(w http.ResponseWriter, r *http.Request, database string) {
	key := r.URL.Query().Get("key")
	if err := filestore.ValidateName("key", key); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := requestContext(r, s.cfg.RequestDeadline)
	defer cancel()

	result, _, err := s.forward(ctx, rpcproto.ProcessRequest{
		Database:  database,
		EntityKey: key,
		Operation: rpcproto.OpGet,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result)
}

func (s *Server) putEntity(w http.ResponseWriter, r *http.Request, database string) {
	body, err := readLimited(r, s.cfg.BodyLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	key, value, err := singleKeyObject(body)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := filestore.ValidateName("key", key); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := requestContext(r, s.cfg.RequestDeadline)
	defer cancel()

	_, _, err = s.forward(ctx, rpcproto.ProcessRequest{
		Database:  database,
		EntityKey: key,
		SchemaID:  r.URL.Query().Get("schema_id"),
		Operation: rpcproto.OpPut,
		Payload:   value,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusOK())
}
