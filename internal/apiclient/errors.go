package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// DefaultErrorMessage is used when an error response carries no message.
	DefaultErrorMessage = "An error occurred"

	// ConnectMessage is shown when the server could not be reached.
	ConnectMessage = "Unable to connect. Please check your internet."
)

// ErrNotJSON is returned by Response.Decode for non-JSON bodies.
var ErrNotJSON = errors.New("response is not JSON")

// APIError is returned for every response outside the 2xx range.
type APIError struct {
	Message string
	Status  int
	Payload *Response
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

func newAPIError(resp *Response) *APIError {
	msg := messageField(resp.Data)
	if msg == "" {
		msg = DefaultErrorMessage
	}
	return &APIError{Message: msg, Status: resp.Status, Payload: resp}
}

// NetworkError means the request never produced an HTTP response.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s (%v)", ConnectMessage, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsUnauthorized reports whether err is a 401 APIError.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// Message turns err into text fit for the user: the server's message for
// API errors, ConnectMessage for network failures, err.Error() otherwise.
// fallback is used when nothing better is available.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if msg := messageField(apiErr.Payload.dataOrNil()); msg != "" {
			return msg
		}
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fallback
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return ConnectMessage
	}

	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}

func messageField(data any) string {
	obj, ok := data.(map[string]any)
	if !ok {
		return ""
	}
	msg, _ := obj["message"].(string)
	return msg
}
