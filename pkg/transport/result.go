package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrNoBody is returned by Decode when the response carried no body.
var ErrNoBody = errors.New("empty response body")

// Result is the outcome of one exchange.
type Result struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	// JSON holds the decoded body when decoding was requested and succeeded.
	JSON any
	// Err is set when the exchange did not complete (DNS, TLS, timeout, cancel).
	Err error
}

// TransportError reports whether the exchange failed below HTTP.
func (r *Result) TransportError() bool {
	return r.Err != nil
}

// HTTPError reports whether the server answered with a 4xx or 5xx status.
func (r *Result) HTTPError() bool {
	return r.Err == nil && r.StatusCode >= 400 && r.StatusCode < 600
}

// Failed reports whether either failure flag is set.
func (r *Result) Failed() bool {
	return r.TransportError() || r.HTTPError()
}

// ErrorCode is 0 on success, -1 for transport failures and the status code for HTTP failures.
func (r *Result) ErrorCode() int {
	switch {
	case r.TransportError():
		return -1
	case r.HTTPError():
		return r.StatusCode
	default:
		return 0
	}
}

// ErrorMessage describes the failure, or returns an empty string.
func (r *Result) ErrorMessage() string {
	switch {
	case r.TransportError():
		return r.Err.Error()
	case r.HTTPError():
		return fmt.Sprintf("HTTP %d: %s", r.StatusCode, http.StatusText(r.StatusCode))
	default:
		return ""
	}
}

// Decode unmarshals the JSON body into v.
func (r *Result) Decode(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return ErrNoBody
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

func decodeAny(body []byte) any {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil
	}
	return v
}
