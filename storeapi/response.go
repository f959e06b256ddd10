package storeapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

// MacaroonRefreshHeader is the WWW-Authenticate value the store sends when
// the caller's macaroon must be refreshed.
const MacaroonRefreshHeader = "Macaroon needs_refresh=1"

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 32 << 20

var connectionErrors = map[int]error{
	http.StatusInternalServerError: ErrInternal,
	http.StatusNotImplemented:      ErrNotImplemented,
	http.StatusBadGateway:          ErrBadGateway,
	http.StatusServiceUnavailable:  ErrServiceUnavailable,
	http.StatusGatewayTimeout:      ErrGatewayTimeout,
}

// StatusError maps a 5xx status to its sentinel, falling back to
// ErrConnection. It returns nil for any other status.
func StatusError(status int) error {
	if status < 500 {
		return nil
	}
	if err, ok := connectionErrors[status]; ok {
		return errors.Wrapf(err, "status %d", status)
	}
	return errors.Wrapf(ErrConnection, "status %d", status)
}

type errorListBody struct {
	ErrorList  []APIError `json:"error_list"`
	ErrorList2 []APIError `json:"error-list"`
}

// ProcessResponse reads and closes resp.Body and maps the response onto the
// store error taxonomy. On success it returns the raw JSON body.
//
// A 5xx status fails with a connection error without looking at the body.
// A body that is not JSON fails with ErrResponseDecode. A macaroon refresh
// request fails with ErrMacaroonRefreshRequired. An unsuccessful response
// carrying an error list maps known codes to their sentinels and anything
// else to a *ResponseErrorList; an unsuccessful response with an empty body
// is a *ResponseError. Other unsuccessful responses are returned as is so
// the caller can read them.
func ProcessResponse(resp *http.Response) (json.RawMessage, error) {
	defer resp.Body.Close()

	if err := StatusError(resp.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.WithSecondaryError(errors.Wrap(ErrConnection, "read body"), err)
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, errors.Wrapf(ErrResponseDecode, "%v", err)
	}

	if resp.Header.Get("WWW-Authenticate") == MacaroonRefreshHeader {
		return nil, ErrMacaroonRefreshRequired
	}

	if ok(resp.StatusCode) {
		return body, nil
	}

	if fields, isMap := decoded.(map[string]any); isMap {
		_, hasList := fields["error_list"]
		_, hasList2 := fields["error-list"]
		if hasList || hasList2 {
			var lists errorListBody
			if err := json.Unmarshal(body, &lists); err != nil {
				return nil, errors.Wrapf(ErrResponseDecode, "error list: %v", err)
			}
			list := lists.ErrorList
			if !hasList {
				list = lists.ErrorList2
			}
			return nil, errorListError(resp.StatusCode, list)
		}
	}
	if empty(decoded) {
		return nil, &ResponseError{Status: resp.StatusCode, Message: "Unknown error from api"}
	}
	return body, nil
}

func errorListError(status int, list []APIError) error {
	for _, item := range list {
		switch item.Code {
		case "user-missing-latest-tos":
			return ErrAgreementNotSigned
		case "user-not-ready":
			if strings.Contains(item.Message, "has not signed agreement") {
				return ErrAgreementNotSigned
			}
			if strings.Contains(item.Message, "username") {
				return ErrMissingUsername
			}
		case "resource-not-found":
			return errors.Wrapf(ErrResourceNotFound, "%s", item.Message)
		}
	}
	return &ResponseErrorList{
		ResponseError: ResponseError{Status: status, Message: "The api returned a list of errors"},
		Errors:        list,
	}
}

func ok(status int) bool {
	return status < http.StatusBadRequest
}

// empty reports JSON values that carry nothing: null, false, 0, "", [] or {}.
func empty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case float64:
		return x == 0
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}
