package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// Response is the envelope of a completed request.
type Response struct {
	Status int
	Header http.Header
	// Data is the decoded JSON value when the server sent JSON, otherwise
	// the body as a string.
	Data any

	raw    []byte
	isJSON bool
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Decode unmarshals a JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if !r.isJSON {
		return fmt.Errorf("%w: content type %q", ErrNotJSON, r.Header.Get("Content-Type"))
	}
	if len(r.raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.raw, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Text returns the raw body.
func (r *Response) Text() string {
	return string(r.raw)
}

func (r *Response) dataOrNil() any {
	if r == nil {
		return nil
	}
	return r.Data
}

func parseResponse(resp *http.Response, raw []byte) *Response {
	out := &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		raw:    raw,
	}

	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		out.Data = string(raw)
		return out
	}

	if len(raw) == 0 {
		out.isJSON = true
		return out
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		// Mislabelled body; keep it as text so error responses still surface
		log.Debug().Err(err).Int("status", resp.StatusCode).Msg("Response claimed JSON but did not parse")
		out.Data = string(raw)
		return out
	}
	out.Data = data
	out.isJSON = true
	return out
}
