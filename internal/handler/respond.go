package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rafflehub/platform/internal/auth"
	"github.com/rafflehub/platform/internal/domain"
)

const maxBodyBytes = 1 << 20

// RespondJSON writes a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// RespondError writes a JSON error response, detecting domain.AppError for status codes.
func RespondError(w http.ResponseWriter, err error) {
	if appErr, ok := domain.AsAppError(err); ok {
		RespondJSON(w, appErr.Status, map[string]string{
			"code":    appErr.Code,
			"message": appErr.Message,
		})
		return
	}
	RespondJSON(w, http.StatusInternalServerError, map[string]string{
		"code":    domain.CodeInternal,
		"message": "internal server error",
	})
}

// RespondInvalidBody writes the standard 400 for an undecodable body.
func RespondInvalidBody(w http.ResponseWriter) {
	RespondError(w, domain.ErrValidation("invalid request body"))
}

// DecodeJSON reads and decodes a JSON request body of at most 1 MiB into dst.
func DecodeJSON(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return errors.New("request body too large")
	}
	return json.Unmarshal(body, dst)
}

// SubjectID returns the authenticated subject of r.
func SubjectID(r *http.Request) (uuid.UUID, error) {
	id := auth.SubjectFromContext(r.Context())
	if id == uuid.Nil {
		return uuid.Nil, domain.ErrUnauthorized("no subject in context")
	}
	return id, nil
}

// URLUUID parses the chi URL parameter name as a UUID.
func URLUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domain.ErrValidation("invalid " + name)
	}
	return id, nil
}

// Page reads limit and offset query parameters. limit defaults to 20 and is
// capped at 100.
func Page(r *http.Request) (limit, offset int) {
	limit = 20
	q := r.URL.Query()
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 && n <= 100 {
		limit = n
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		offset = n
	}
	return limit, offset
}

// TimeRange reads the optional from and to query parameters, accepting
// RFC 3339 timestamps or plain dates.
func TimeRange(r *http.Request) (from, to time.Time, err error) {
	q := r.URL.Query()
	if from, err = parseTime(q.Get("from")); err != nil {
		return from, to, domain.ErrValidation("invalid from: " + err.Error())
	}
	if to, err = parseTime(q.Get("to")); err != nil {
		return from, to, domain.ErrValidation("invalid to: " + err.Error())
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return from, to, domain.ErrValidation("to must not be before from")
	}
	return from, to, nil
}

// TransactionFilter builds a filter from the type, status, gateway, from, to,
// limit and offset query parameters.
func TransactionFilter(r *http.Request) (domain.TransactionFilter, error) {
	q := r.URL.Query()
	f := domain.TransactionFilter{
		Type:    domain.TransactionType(q.Get("type")),
		Status:  domain.TransactionStatus(q.Get("status")),
		Gateway: domain.GatewayKind(q.Get("gateway")),
	}
	from, to, err := TimeRange(r)
	if err != nil {
		return f, err
	}
	if !from.IsZero() {
		f.From = &from
	}
	if !to.IsZero() {
		f.To = &to
	}
	f.Limit, f.Offset = Page(r)
	return f, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}
