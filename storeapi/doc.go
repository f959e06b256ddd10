// Package storeapi is a client for the snap store HTTP APIs.
//
// Responses are mapped onto a small error taxonomy rooted at ErrStoreAPI:
// 5xx statuses become ErrConnection and its more specific kinds, error lists
// become ErrAgreementNotSigned, ErrMissingUsername, ErrResourceNotFound or a
// *ResponseErrorList, and so on. Check them with errors.Is and errors.As.
//
// Recommendations reads the snap recommendations service and can cache its
// listings in a cache.FallbackCache.
package storeapi
