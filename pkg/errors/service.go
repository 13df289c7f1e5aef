// Package errors holds the JSON error envelope returned by the HTTP
// surface.
package errors

// ServiceError is the JSON body of every non-OK response.
type ServiceError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
