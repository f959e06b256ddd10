package storeapi

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// kind returns a sentinel that also matches every parent with errors.Is.
func kind(msg string, parents ...error) error {
	err := errors.New(msg)
	for _, parent := range parents {
		err = errors.Mark(err, parent)
	}
	return err
}

var (
	// ErrStoreAPI matches every error produced by this package.
	ErrStoreAPI = errors.New("store api error")

	// ErrConnection means communication with the API failed. The 5xx
	// sentinels below all match it.
	ErrConnection              = kind("store api: connection failed", ErrStoreAPI)
	ErrInternal                = kind("store api: internal error", ErrConnection, ErrStoreAPI)
	ErrNotImplemented          = kind("store api: not implemented", ErrConnection, ErrStoreAPI)
	ErrBadGateway              = kind("store api: bad gateway", ErrConnection, ErrStoreAPI)
	ErrServiceUnavailable      = kind("store api: service unavailable", ErrConnection, ErrStoreAPI)
	ErrGatewayTimeout          = kind("store api: gateway timeout", ErrConnection, ErrStoreAPI)
	ErrTimeout                 = kind("store api: request timed out", ErrStoreAPI)
	ErrResourceNotFound        = kind("store api: resource not found", ErrStoreAPI)
	ErrResponseDecode          = kind("store api: JSON decoding failed", ErrStoreAPI)
	ErrCircuitBreaker          = kind("store api: circuit breaker open", ErrStoreAPI)
	ErrAgreementNotSigned      = kind("store api: publisher agreement not signed", ErrStoreAPI)
	ErrMissingUsername         = kind("store api: publisher has no username", ErrStoreAPI)
	ErrMacaroonRefreshRequired = kind("store api: macaroon refresh required", ErrStoreAPI)
)

// APIError is one entry of the error list the store APIs return.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseError is an unsuccessful response without a usable error list.
type ResponseError struct {
	Status  int
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("store api: %s (status %d)", e.Message, e.Status)
}

func (e *ResponseError) Is(target error) bool { return target == ErrStoreAPI }

// ResponseErrorList is an unsuccessful response carrying an error list none
// of whose codes has a dedicated sentinel. errors.As also finds its
// *ResponseError.
type ResponseErrorList struct {
	ResponseError
	Errors []APIError
}

func (e *ResponseErrorList) Error() string {
	codes := make([]string, 0, len(e.Errors))
	for _, item := range e.Errors {
		codes = append(codes, item.Code)
	}
	return fmt.Sprintf("store api: %s (status %d): %s", e.Message, e.Status, strings.Join(codes, ", "))
}

func (e *ResponseErrorList) Is(target error) bool { return target == ErrStoreAPI }

func (e *ResponseErrorList) Unwrap() error { return &e.ResponseError }
