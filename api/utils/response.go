package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// Error Representation of errors in the API. These are divided into a small
// number of categories, essentially distinguished by whose fault the
// error is; i.e., is this error:
//   - a transient problem with the service, so worth trying again?
//   - not going to work until the user takes some other action, e.g., approving a gate?
type Error struct {
	Type Type
	// a message that can be printed out for the user
	Message string `json:"message"`
	// the underlying error that can be e.g., logged for developers to look at
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}

	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Type Type of error
type Type string

const (
	// Server The operation looked fine on paper, but something went wrong
	Server Type = "server"
	// Missing The thing you mentioned, whatever it is, just doesn't exist
	Missing Type = "missing"
	// User The operation was well-formed, but you asked for something that
	// can't happen at present (e.g., because you've not supplied some
	// config yet)
	User Type = "user"
	// Conflict The operation collides with the current state of the resource,
	// e.g. a second decision on an already decided approval
	Conflict Type = "conflict"
	// Forbidden The caller is not allowed to perform the operation
	Forbidden Type = "forbidden"
)

type jsonError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Err     string `json:"error,omitempty"`
}

// MarshalJSON Writes error as json
func (e *Error) MarshalJSON() ([]byte, error) {
	var errMsg string
	if e.Err != nil {
		errMsg = e.Err.Error()
	}
	return json.Marshal(&jsonError{
		Type:    string(e.Type),
		Message: e.Message,
		Err:     errMsg,
	})
}

// UnmarshalJSON Parses json
func (e *Error) UnmarshalJSON(data []byte) error {
	jsonable := &jsonError{}
	if err := json.Unmarshal(data, jsonable); err != nil {
		return err
	}
	e.Type = Type(jsonable.Type)
	e.Message = jsonable.Message
	if jsonable.Err != "" {
		e.Err = errors.New(jsonable.Err)
	}
	return nil
}

// UnexpectedError any unexpected error
func UnexpectedError(message string, underlyingError error) error {
	return &Error{
		Type:    Server,
		Err:     underlyingError,
		Message: message,
	}
}

// TypeMissingError indication of underlying type missing
func TypeMissingError(message string, underlyingError error) error {
	return &Error{
		Type:    Missing,
		Err:     underlyingError,
		Message: message,
	}
}

// ValidationError Used for indication of validation errors
func ValidationError(kind, message string) error {
	return &Error{
		Type:    User,
		Err:     fmt.Errorf("%s failed validation", kind),
		Message: message,
	}
}

// ConflictError Used when the request collides with the current state
func ConflictError(message string, underlyingError error) error {
	return &Error{
		Type:    Conflict,
		Err:     underlyingError,
		Message: message,
	}
}

// ForbiddenError Used when the caller lacks the required identity
func ForbiddenError(message string) error {
	return &Error{
		Type:    Forbidden,
		Message: message,
	}
}

// CoverAllError Cover all other errors
func CoverAllError(err error, errType Type) *Error {
	return &Error{
		Type:    errType,
		Err:     err,
		Message: err.Error(),
	}
}

// JSONResponse Marshals response with header
func JSONResponse(w http.ResponseWriter, r *http.Request, result interface{}) {
	JSONResponseWithCode(w, r, http.StatusOK, result)
}

// JSONResponseWithCode Marshals response with header and the given status code
func JSONResponseWithCode(w http.ResponseWriter, r *http.Request, code int, result interface{}) {
	body, err := json.Marshal(result)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if _, err = w.Write(body); err != nil {
		log.Ctx(r.Context()).Err(err).Msg("failed to write response")
	}
}

// ByteArrayResponse Used for raw response data, i.e. artifact content
func ByteArrayResponse(w http.ResponseWriter, r *http.Request, contentType string, result []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result); err != nil {
		log.Ctx(r.Context()).Err(err).Msg("failed to write response")
	}
}

// ErrorResponse Marshals error
func ErrorResponse(w http.ResponseWriter, r *http.Request, apiError error) {
	var outErr *Error
	if !errors.As(apiError, &outErr) {
		outErr = CoverAllError(apiError, Server)
	}

	var code int
	var statusErr *apierrors.StatusError
	var urlErr *url.Error
	switch {
	case errors.As(apiError, &statusErr):
		// Reflect any underlying error from Kubernetes API
		code = int(statusErr.ErrStatus.Code)
	case errors.As(apiError, &urlErr):
		code = http.StatusInternalServerError
	default:
		code = StatusCode(outErr.Type)
	}

	logger := log.Ctx(r.Context())
	if code >= http.StatusInternalServerError {
		logger.Error().Err(apiError).Msg(outErr.Message)
	} else {
		logger.Info().Err(apiError).Msg(outErr.Message)
	}

	writeErrorWithCode(w, r, code, outErr)
}

// StatusCode Maps an error type to a HTTP status code
func StatusCode(errType Type) int {
	switch errType {
	case Missing:
		return http.StatusNotFound
	case User:
		return http.StatusBadRequest
	case Conflict:
		return http.StatusConflict
	case Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeErrorWithCode(w http.ResponseWriter, r *http.Request, code int, err *Error) {
	body, encodeErr := json.Marshal(err)
	if encodeErr != nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = fmt.Fprintf(w, "Error encoding error response: %s\n\nOriginal error: %s", encodeErr.Error(), err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if _, writeErr := w.Write(body); writeErr != nil {
		log.Ctx(r.Context()).Err(writeErr).Msg("failed to write error response")
	}
}
