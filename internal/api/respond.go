package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/goalflow/internal/apperr"
	"github.com/sells-group/goalflow/internal/model"
	"github.com/sells-group/goalflow/internal/store"
)

const maxBodyBytes = 1 << 20

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error     string   `json:"error"`
	Message   string   `json:"message"`
	Fields    []string `json:"fields,omitempty"`
	Count     *int     `json:"count,omitempty"`
	Details   string   `json:"details,omitempty"`
	Committed bool     `json:"committed,omitempty"`
	Outcome   any      `json:"outcome,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

// errorResponse maps err onto a status code and body.
func errorResponse(err error) (int, errorBody) {
	if eris.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, errorBody{Error: "not_found", Message: notFoundMessage(err)}
	}
	if ae, ok := apperr.As(err); ok && ae.Kind != apperr.KindInternal {
		body := errorBody{Error: ae.Kind.String(), Message: ae.Message, Fields: ae.Fields, Count: ae.Count, Details: ae.Detail}
		return ae.Kind.HTTPStatus(), body
	}
	return http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal server error"}
}

// notFoundMessage strips the sentinel's own text from a wrapped not-found.
func notFoundMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "+store.ErrNotFound.Error()); i > 0 {
		return msg[:i] + " not found"
	}
	return "not found"
}

// fail writes err as an error response.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	failWith(w, r, err, nil)
}

// failWith writes err and, when the local change already committed, the
// operation's outcome.
func failWith(w http.ResponseWriter, r *http.Request, err error, outcome any) {
	status, body := errorResponse(err)
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError && !apperr.KindOf(err).External() {
		zap.L().Error("api: request failed", fields...)
	} else {
		zap.L().Info("api: request rejected", fields...)
	}
	if outcome != nil {
		body.Committed = true
		body.Outcome = outcome
	}
	writeJSON(w, status, body)
}

// decode reads a JSON body into dst, rejecting unknown fields, and runs the
// struct's validate tags.
func (s *Server) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("invalid request body: %v", err)
	}
	fields := make([]string, 0, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := fieldPath(fe.Namespace())
		fields = append(fields, name)
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", name, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", name, fe.Tag()))
		}
	}
	return apperr.Validation("%s", strings.Join(msgs, "; ")).WithFields(fields...)
}

// fieldPath turns a validator namespace into the JSON path of the field by
// dropping Go type and embedded struct names.
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	out := parts[:0]
	for i, p := range parts {
		if i == 0 || p == "" {
			continue
		}
		if unicode.IsUpper([]rune(p)[0]) {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, ".")
}

// Query parameter helpers.

func queryBool(r *http.Request, key string) (*bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.Validation("%s must be true or false", key).WithFields(key)
	}
	return &b, nil
}

func queryDate(r *http.Request, key string) (*model.Date, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	d, err := model.ParseDate(raw)
	if err != nil {
		return nil, apperr.Validation("%s must be YYYY-MM-DD", key).WithFields(key)
	}
	return &d, nil
}

func queryStatus(r *http.Request) (model.BatchStatus, error) {
	st := model.BatchStatus(r.URL.Query().Get("status"))
	if st != "" && !st.Valid() {
		return "", apperr.Validation("unknown status %q", st).WithFields("status")
	}
	return st, nil
}

// nonNil keeps empty lists as [] on the wire.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// outcomeOrNil keeps a nil outcome pointer from becoming a non-nil any.
func outcomeOrNil[T any](p *T) any {
	if p == nil {
		return nil
	}
	return p
}

// missingRef reports a referenced row that does not exist as bad input.
func missingRef(err error, field, id string) error {
	if eris.Is(err, store.ErrNotFound) {
		return apperr.Validation("%s: %s does not exist", field, id).WithFields(field)
	}
	return err
}
