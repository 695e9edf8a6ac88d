package response

import "net/http"

// APIResponseCode is the envelope code; HTTPStatus maps it to the transport status.
type APIResponseCode int

const (
	APIResponseCodeOK            APIResponseCode = 0
	APIResponseCodeBadRequest    APIResponseCode = 40000
	APIResponseCodeUnauthorized  APIResponseCode = 40300
	APIResponseCodeNotFound      APIResponseCode = 40400
	APIResponseCodeConflict      APIResponseCode = 40900
	APIResponseCodeUnprocessable APIResponseCode = 42200
	APIResponseCodeError         APIResponseCode = 50000
	APIResponseCodeUpstream      APIResponseCode = 50200
)

var codeToMsg = map[APIResponseCode]string{
	APIResponseCodeOK:            "ok",
	APIResponseCodeBadRequest:    "bad request",
	APIResponseCodeUnauthorized:  "forbidden",
	APIResponseCodeNotFound:      "not found",
	APIResponseCodeConflict:      "conflict",
	APIResponseCodeUnprocessable: "unprocessable",
	APIResponseCodeError:         "unexpected error",
	APIResponseCodeUpstream:      "upstream unavailable",
}

// HTTPStatus maps an envelope code onto its HTTP status.
func (c APIResponseCode) HTTPStatus() int {
	switch c {
	case APIResponseCodeOK:
		return http.StatusOK
	case APIResponseCodeBadRequest:
		return http.StatusBadRequest
	case APIResponseCodeUnauthorized:
		return http.StatusForbidden
	case APIResponseCodeNotFound:
		return http.StatusNotFound
	case APIResponseCodeConflict:
		return http.StatusConflict
	case APIResponseCodeUnprocessable:
		return http.StatusUnprocessableEntity
	case APIResponseCodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// APIResponse is the generic response envelope used by HTTP APIs.
// Use OKT / ErrorT helpers to construct instances.
type APIResponse[T any] struct {
	Code    APIResponseCode `json:"code"`
	Message string          `json:"message"`
	Data    T               `json:"data"`
}

// OKT returns a successful response with data.
func OKT[T any](data T) *APIResponse[T] {
	return &APIResponse[T]{Code: APIResponseCodeOK, Message: codeToMsg[APIResponseCodeOK], Data: data}
}

// ErrorT returns an error response with message and optional data.
func ErrorT[T any](code APIResponseCode, data T) *APIResponse[T] {
	return &APIResponse[T]{Code: code, Message: codeToMsg[code], Data: data}
}
