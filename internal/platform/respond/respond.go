// Package respond renders framework-level failures (unknown route, wrong
// method, recovered panic) as RFC 9457 problem details.
package respond

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	applog "github.com/janisto/hello-server/internal/platform/logging"
)

const (
	contentTypeProblemJSON = "application/problem+json"
	contentTypeProblemCBOR = "application/problem+cbor"

	msgNotFound          = "resource not found"
	msgInternalServerErr = "internal server error"
)

// NotFoundHandler emits a 404 problem document.
func NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteProblem(w, r, http.StatusNotFound, msgNotFound, nil)
	}
}

// MethodNotAllowedHandler emits a 405 problem document with an Allow header
// listing the methods the matched path accepts.
func MethodNotAllowedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if allow := allowedMethods(r); len(allow) > 0 {
			w.Header().Set("Allow", strings.Join(allow, ", "))
		}
		WriteProblem(w, r, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed", r.Method), nil)
	}
}

// Recoverer converts panics into 500 problem documents. http.ErrAbortHandler
// is re-panicked so net/http can abort the connection, and nothing is written
// when the handler already sent headers.
func Recoverer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				var err error
				switch v := rec.(type) {
				case error:
					err = v
				default:
					err = fmt.Errorf("%v", v)
				}
				if ww.Status() != 0 {
					applog.LogError(r.Context(), "panic after response started", err, zap.ByteString("stack", debug.Stack()))
					return
				}
				WriteProblem(ww, r, http.StatusInternalServerError, msgInternalServerErr,
					err, zap.ByteString("stack", debug.Stack()))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// WriteProblem writes a problem document for status, encoded as CBOR when the
// client prefers it and JSON otherwise, and logs it at a status-based level.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string, cause error, fields ...zap.Field) {
	problem := &huma.ErrorModel{
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	}
	logWithStatus(r, status, detail, cause, fields...)

	var (
		body []byte
		err  error
		ct   = contentTypeProblemJSON
	)
	if prefersCBOR(r.Header.Get("Accept")) {
		ct = contentTypeProblemCBOR
		body, err = cbor.Marshal(problem)
	} else {
		body, err = marshalJSON(problem)
	}
	if err != nil {
		applog.LogError(r.Context(), "failed to encode problem", err)
		http.Error(w, http.StatusText(status), status)
		return
	}

	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		applog.LogWarn(r.Context(), "failed to write problem", zap.Error(err))
	}
}

func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func logWithStatus(r *http.Request, status int, msg string, err error, fields ...zap.Field) {
	fields = append(fields,
		zap.Int("status", status),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
	ctx := r.Context()
	switch {
	case status >= 500:
		applog.LogError(ctx, msg, err, fields...)
	case err != nil:
		applog.LogWarn(ctx, msg, append(fields, zap.Error(err))...)
	default:
		applog.LogInfo(ctx, msg, fields...)
	}
}

// prefersCBOR reports whether the Accept header ranks a CBOR type strictly
// above every JSON type. Wildcards and ties resolve to JSON.
func prefersCBOR(accept string) bool {
	if accept == "" {
		return false
	}
	var bestCBOR, bestJSON float64
	for _, part := range strings.Split(accept, ",") {
		mediaType, q, ok := parseMediaRange(part)
		if !ok {
			continue
		}
		switch mediaType {
		case "application/cbor", contentTypeProblemCBOR:
			bestCBOR = max(bestCBOR, q)
		case "application/json", contentTypeProblemJSON, "application/*", "*/*":
			bestJSON = max(bestJSON, q)
		}
	}
	return bestCBOR > 0 && bestCBOR > bestJSON
}

func parseMediaRange(part string) (string, float64, bool) {
	segments := strings.Split(part, ";")
	mediaType := strings.ToLower(strings.TrimSpace(segments[0]))
	if mediaType == "" || !strings.Contains(mediaType, "/") {
		return "", 0, false
	}
	q := 1.0
	for _, param := range segments[1:] {
		key, value, found := strings.Cut(strings.TrimSpace(param), "=")
		if !found || strings.ToLower(strings.TrimSpace(key)) != "q" {
			continue
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || parsed < 0 || parsed > 1 {
			return "", 0, false
		}
		q = parsed
	}
	return mediaType, q, true
}

// allowedMethods inspects chi's routing tree to discover the methods the
// request path accepts.
func allowedMethods(r *http.Request) []string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || rctx.Routes == nil {
		return nil
	}

	routePath := rctx.RoutePath
	if routePath == "" {
		routePath = r.URL.RawPath
		if routePath == "" {
			routePath = r.URL.Path
		}
		if routePath == "" {
			routePath = "/"
		}
	}

	methods := []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
		http.MethodOptions,
	}
	allowed := make([]string, 0, len(methods))
	for _, method := range methods {
		if rctx.Routes.Match(chi.NewRouteContext(), method, routePath) {
			allowed = append(allowed, method)
		}
	}
	return allowed
}
