package errutil

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

type Detail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// BaseError is the single error shape returned by every service. Code drives
// the transport mapping, Reason names the precise sub-kind so callers can match
// package sentinels with errors.Is.
type BaseError struct {
	Code    CoreStatus `json:"code"`
	Reason  string     `json:"reason,omitempty"`
	Message string     `json:"message"`
	Details []Detail   `json:"details,omitempty"`
	Err     error      `json:"-"`
}

func (e BaseError) Status() CoreStatus {
	return e.Code
}

func (e BaseError) URL() string {
	values := url.Values{}

	values.Set("error_code", string(e.Code))
	if e.Reason != "" {
		values.Set("error_reason", e.Reason)
	}
	values.Set("error_message", e.Message)

	for _, d := range e.Details {
		values.Set("details["+strings.TrimSpace(d.Field)+"]", d.Message)
	}

	return values.Encode()
}

func (e BaseError) JSON() interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    e.Code,
			"reason":  e.Reason,
			"message": e.messageWithErr(),
			"details": e.Details,
		},
	}
}

func (e BaseError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a BaseError of the same code and reason.
// A target without a reason matches on code alone.
func (e BaseError) Is(target error) bool {
	t, ok := target.(BaseError)
	if !ok {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

func (e BaseError) Error() string {
	prefix := string(e.Code)
	if e.Reason != "" {
		prefix = prefix + "/" + e.Reason
	}
	return fmt.Sprintf("[%s] %s", prefix, e.messageWithErr())
}

func (e BaseError) messageWithErr() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

type Option func(*BaseError)

func WithDetails(details ...Detail) Option {
	return func(be *BaseError) { be.Details = append(be.Details, details...) }
}

func WithErr(err error) Option {
	return func(be *BaseError) { be.Err = err }
}

func WithReason(reason string) Option {
	return func(be *BaseError) { be.Reason = reason }
}

func WithMessage(msg string) Option {
	return func(be *BaseError) { be.Message = msg }
}

func New(code CoreStatus, message string, opts ...Option) error {
	be := BaseError{Code: code, Message: message}
	for _, opt := range opts {
		opt(&be)
	}
	return be
}

// Extend copies a sentinel BaseError and applies opts to the copy, so the
// result still satisfies errors.Is against the sentinel.
func Extend(sentinel error, opts ...Option) error {
	var be BaseError
	if !errors.As(sentinel, &be) {
		return sentinel
	}
	be.Details = append([]Detail(nil), be.Details...)
	for _, opt := range opts {
		opt(&be)
	}
	return be
}

func NotFound(msg string, err error, options ...Option) error {
	return New(StatusNotFound, msg, append(options, WithErr(err))...)
}

func UnprocessableEntity(msg string, err error, options ...Option) error {
	return New(StatusUnprocessableEntity, msg, append(options, WithErr(err))...)
}

func Conflict(msg string, err error, options ...Option) error {
	return New(StatusConflict, msg, append(options, WithErr(err))...)
}

func BadRequest(msg string, err error, options ...Option) error {
	return New(StatusBadRequest, msg, append(options, WithErr(err))...)
}

func ValidationFailed(msg string, err error, options ...Option) error {
	return New(StatusValidationFailed, msg, append(options, WithErr(err))...)
}

func Internal(msg string, err error, options ...Option) error {
	return New(StatusInternal, msg, append(options, WithErr(err))...)
}

func ServiceUnavailable(msg string, err error, options ...Option) error {
	return New(StatusServiceUnavailable, msg, append(options, WithErr(err))...)
}

// Domain taxonomy. Validation and not-found errors leave state untouched,
// state errors come from guards evaluated inside the mutating transaction,
// concurrency errors mean the caller lost a race and must re-read.

func IsValidation(err error) bool {
	return hasCode(err, StatusValidationFailed) || hasCode(err, StatusBadRequest)
}

func IsNotFound(err error) bool {
	return hasCode(err, StatusNotFound)
}

func IsState(err error) bool {
	return hasCode(err, StatusUnprocessableEntity)
}

func IsConcurrency(err error) bool {
	return hasCode(err, StatusConflict)
}

func hasCode(err error, code CoreStatus) bool {
	var be BaseError
	if !errors.As(err, &be) {
		return false
	}
	return be.Code == code
}
