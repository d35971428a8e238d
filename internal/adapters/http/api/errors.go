package api

import (
	"errors"
	"net/http"

	"github.com/okian/padmon/internal/adapters/auth"
	"github.com/okian/padmon/internal/adapters/repository"
	service "github.com/okian/padmon/internal/app"
	"github.com/okian/padmon/internal/domain/analytics"
	"github.com/okian/padmon/internal/domain/export"
	"github.com/okian/padmon/internal/domain/profile"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBackpressure = errors.New("backpressure")
	ErrUnavailable  = errors.New("service unavailable")
	ErrInternal     = errors.New("internal error")
)

// Error carries the failing operation, an API kind and the cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Kind != nil && e.Err != nil:
		return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Op + ": " + e.Err.Error()
	case e.Kind != nil:
		return e.Op + ": " + e.Kind.Error()
	default:
		return e.Op
	}
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of kind raised by op.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind returns err classified as kind and raised by op.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap annotates err with op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// writeServiceError maps errors returned by the service layer to a status
// and error code.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, service.ErrInvalidMeasurement),
		errors.Is(err, service.ErrEmailRequired),
		errors.Is(err, service.ErrInvalidDoctorEmail),
		errors.Is(err, profile.ErrInvalidProfile),
		errors.Is(err, export.ErrUnknownFormat),
		errors.Is(err, export.ErrUnknownField),
		errors.Is(err, analytics.ErrUnknownRange),
		errors.Is(err, repository.ErrInvalidLimit),
		errors.Is(err, repository.ErrUnsupportedOrder):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, auth.ErrEmailInUse):
		writeError(w, http.StatusConflict, "email_in_use", Wrap(op, err))
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrSessionNotFound):
		writeError(w, http.StatusUnauthorized, "unauthorized", WrapKind(op, ErrUnauthorized, err))
	case errors.Is(err, export.ErrNoData):
		writeError(w, http.StatusNotFound, "no_data", Wrap(op, err))
	case errors.Is(err, service.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, service.ErrNotStarted),
		errors.Is(err, repository.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", WrapKind(op, ErrInternal, err))
	}
}
