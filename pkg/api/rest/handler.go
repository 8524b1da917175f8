// Package rest serves the configurine HTTP API.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/mac-/configurine/pkg/api/service"
	"github.com/mac-/configurine/pkg/auth"
	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/metrics"
	"github.com/mac-/configurine/pkg/types"
	"github.com/mac-/configurine/pkg/version"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

// PublicPaths ignore the Authorization header.
var PublicPaths = []string{"/token", "/healthz", "/version", "/metrics"}

// Services are the use cases the handlers call.
type Services struct {
	Configs  *service.ConfigService
	Clients  *service.ClientService
	TagTypes *service.TagTypeService
	Tokens   *service.TokenService
	Health   *service.HealthService
}

// Handler serves every REST route.
type Handler struct {
	svc     Services
	metrics *metrics.Metrics
	logger  log.Logger
}

func NewHandler(svc Services, m *metrics.Metrics, logger log.Logger) *Handler {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Handler{svc: svc, metrics: m, logger: logger.WithComponent("rest")}
}

// NewServeMux returns a gateway mux whose routing errors use the API error body.
func NewServeMux() *runtime.ServeMux {
	return runtime.NewServeMux(runtime.WithDisablePathLengthFallback(), runtime.WithRoutingErrorHandler(
		func(_ context.Context, _ *runtime.ServeMux, _ runtime.Marshaler, w http.ResponseWriter, r *http.Request, status int) {
			body := ErrorBody{Error: types.CategoryNotFound, Message: "no route for " + r.Method + " " + r.URL.Path}
			if status == http.StatusMethodNotAllowed {
				body = ErrorBody{Error: types.CategoryValidation, Message: "method " + r.Method + " is not allowed on " + r.URL.Path}
			} else {
				status = http.StatusNotFound
			}
			writeBody(w, status, body)
		}))
}

// HTTPHandler builds the mux, registers every route and wraps it in the middleware chain.
func (h *Handler) HTTPHandler(requestTimeout time.Duration) (http.Handler, error) {
	mux := NewServeMux()
	if err := h.Register(mux); err != nil {
		return nil, err
	}
	chain := Chain(
		Recovery(h.logger),
		RequestID(),
		Logger(h.logger),
		CORS(),
		Timeout(requestTimeout),
		Authenticate(h.svc.Tokens, h.logger, PublicPaths...),
	)
	return chain(mux), nil
}

type route struct {
	method  string
	pattern string
	handle  runtime.HandlerFunc
}

// Register adds every route to mux. The gateway mux tries the most recently registered
// pattern first, so /config/resolve follows /config/{id}.
func (h *Handler) Register(mux *runtime.ServeMux) error {
	routes := []route{
		{http.MethodPost, "/token", h.issueToken},

		{http.MethodGet, "/config", h.queryConfigs},
		{http.MethodPost, "/config", h.createConfig},
		{http.MethodGet, "/config/{id}", h.getConfig},
		{http.MethodPut, "/config/{id}", h.updateConfig},
		{http.MethodDelete, "/config/{id}", h.deleteConfig},
		{http.MethodGet, "/config/resolve", h.resolveConfig},

		{http.MethodPost, "/clients", h.registerClient},
		{http.MethodGet, "/clients", h.listClients},
		{http.MethodGet, "/clients/{name}", h.getClient},
		{http.MethodPut, "/clients/{name}", h.updateClient},
		{http.MethodDelete, "/clients/{name}", h.deleteClient},

		{http.MethodGet, "/tagtypes", h.listTagTypes},
		{http.MethodPost, "/tagtypes", h.createTagType},
		{http.MethodPut, "/tagtypes/{name}", h.updateTagType},
		{http.MethodDelete, "/tagtypes/{name}", h.deleteTagType},

		{http.MethodGet, "/healthz", h.healthz},
		{http.MethodGet, "/version", h.version},
	}
	if h.metrics != nil {
		promHandler := h.metrics.Handler()
		routes = append(routes, route{http.MethodGet, "/metrics", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			promHandler.ServeHTTP(w, r)
		}})
	}

	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, h.instrument(rt)); err != nil {
			return err
		}
	}
	return nil
}

// instrument records request count and latency under the route pattern.
func (h *Handler) instrument(rt route) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		rt.handle(rec, r, params)
		h.metrics.ObserveRequest("rest", rt.method, rt.pattern, strconv.Itoa(rec.status), time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	WriteError(w, r, err, h.logger)
}

// decodeJSON reads a JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return types.NewValidationError("request body is required")
		case errors.As(err, &tooLarge):
			return types.NewValidationError("request body exceeds %d bytes", MaxBodyBytes)
		default:
			return types.NewValidationError("invalid JSON body: %v", err)
		}
	}
	return nil
}

// tokenBody accepts the timestamp as a JSON number or a numeric string.
type tokenBody struct {
	ClientID  string      `json:"client_id"`
	Timestamp json.Number `json:"timestamp"`
	Signature string      `json:"signature"`
	GrantType string      `json:"grant_type"`
}

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var body tokenBody
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
		if err := r.ParseForm(); err != nil {
			h.fail(w, r, types.NewValidationError("invalid form body: %v", err))
			return
		}
		body = tokenBody{
			ClientID:  r.PostForm.Get("client_id"),
			Timestamp: json.Number(r.PostForm.Get("timestamp")),
			Signature: r.PostForm.Get("signature"),
			GrantType: r.PostForm.Get("grant_type"),
		}
	} else if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}

	ts, err := service.ParseTimestamp(body.Timestamp.String())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp, err := h.svc.Tokens.Issue(r.Context(), service.TokenRequest{
		ClientID:  body.ClientID,
		Timestamp: ts,
		Signature: body.Signature,
		GrantType: body.GrantType,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) queryConfigs(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	query, err := types.ParseConfigQuery(q["names"], q["associations"], q.Get("isActive"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entries, err := h.svc.Configs.Query(r.Context(), auth.IdentityFromContext(r.Context()), query)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) resolveConfig(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	tags := make([]types.Tag, 0, len(q["tags"]))
	for _, raw := range q["tags"] {
		tag, err := types.ParseTag(raw)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		tags = append(tags, tag)
	}
	entry, err := h.svc.Configs.Resolve(r.Context(), auth.IdentityFromContext(r.Context()), q.Get("name"), tags)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request, params map[string]string) {
	entry, err := h.svc.Configs.Get(r.Context(), auth.IdentityFromContext(r.Context()), params["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) createConfig(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var entry types.ConfigEntry
	if err := decodeJSON(w, r, &entry); err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.svc.Configs.Create(r.Context(), auth.IdentityFromContext(r.Context()), &entry)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/config/"+url.PathEscape(created.ID))
	WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) updateConfig(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var entry types.ConfigEntry
	if err := decodeJSON(w, r, &entry); err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.svc.Configs.Update(r.Context(), auth.IdentityFromContext(r.Context()), params["id"], &entry); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteConfig(w http.ResponseWriter, r *http.Request, params map[string]string) {
	if err := h.svc.Configs.Delete(r.Context(), auth.IdentityFromContext(r.Context()), params["id"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) registerClient(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var spec types.ClientSpec
	if err := decodeJSON(w, r, &spec); err != nil {
		h.fail(w, r, err)
		return
	}
	view, err := h.svc.Clients.Register(r.Context(), spec)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/clients/"+url.PathEscape(view.Name))
	WriteJSON(w, http.StatusCreated, view)
}

func (h *Handler) listClients(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	views, err := h.svc.Clients.List(r.Context(), auth.IdentityFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, views)
}

func (h *Handler) getClient(w http.ResponseWriter, r *http.Request, params map[string]string) {
	view, err := h.svc.Clients.Get(r.Context(), auth.IdentityFromContext(r.Context()), params["name"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) updateClient(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var update types.ClientUpdate
	if err := decodeJSON(w, r, &update); err != nil {
		h.fail(w, r, err)
		return
	}
	view, err := h.svc.Clients.Update(r.Context(), auth.IdentityFromContext(r.Context()), params["name"], update)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) deleteClient(w http.ResponseWriter, r *http.Request, params map[string]string) {
	if err := h.svc.Clients.Delete(r.Context(), auth.IdentityFromContext(r.Context()), params["name"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listTagTypes(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	all, err := h.svc.TagTypes.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, all)
}

func (h *Handler) createTagType(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var t types.TagType
	if err := decodeJSON(w, r, &t); err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.svc.TagTypes.Create(r.Context(), auth.IdentityFromContext(r.Context()), &t)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/tagtypes/"+url.PathEscape(created.Name))
	WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) updateTagType(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var t types.TagType
	if err := decodeJSON(w, r, &t); err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.svc.TagTypes.Update(r.Context(), auth.IdentityFromContext(r.Context()), params["name"], &t)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteTagType(w http.ResponseWriter, r *http.Request, params map[string]string) {
	if err := h.svc.TagTypes.Delete(r.Context(), auth.IdentityFromContext(r.Context()), params["name"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	report := h.svc.Health.Check(r.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, report)
}

func (h *Handler) version(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	WriteJSON(w, http.StatusOK, version.Map())
}
