// SPDX-License-Identifier: MPL-2.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrInvalidUser = errors.New(`invalid user, please use "lance login" command first`)
	// ErrCanceled marks a request aborted through its context. It matches
	// context.Canceled, so callers that cancel in-flight uploads can test for
	// either.
	ErrCanceled    = fmt.Errorf("request canceled: %w", context.Canceled)
	ErrUnreachable = errors.New("server unreachable")
)

const typeVersionNotAllowed = "ERR_CLI_VERSION_NOT_ALLOWED"

// ResponseError is a non-2xx answer from one of the services.
type ResponseError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Type       string
	Code       string
	Message    string
	Body       []byte
}

func (e *ResponseError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s failed with status %s: %s", e.Method, e.URL, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s failed with status %s", e.Method, e.URL, e.Status)
}

// VersionError is raised when the server refuses this CLI version.
type VersionError struct {
	Installed string
	Minimal   string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("CLI version %s is no longer supported, please update to %s or newer", e.Installed, e.Minimal)
}

type errorBody struct {
	Type    string          `json:"type"`
	Code    json.Number     `json:"code"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func newResponseError(method, url string, resp *http.Response, body []byte) (*ResponseError, *errorBody) {
	rerr := &ResponseError{
		Method:     method,
		URL:        url,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       body,
	}
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		rerr.Message = strings.TrimSpace(string(body))
		if len(rerr.Message) > 200 {
			rerr.Message = rerr.Message[:200]
		}
		return rerr, nil
	}
	rerr.Type = parsed.Type
	rerr.Code = parsed.Code.String()
	rerr.Message = parsed.Message
	if rerr.Message == "" {
		rerr.Message = parsed.Error
	}
	return rerr, &parsed
}

// IsNotFound reports whether err is a 404 from the server, either by HTTP
// status or by the code in the response body.
func IsNotFound(err error) bool {
	var rerr *ResponseError
	if !errors.As(err, &rerr) {
		return false
	}
	return rerr.StatusCode == http.StatusNotFound || rerr.Code == "404"
}

// StatusCode returns the HTTP status of a ResponseError, or 0.
func StatusCode(err error) int {
	var rerr *ResponseError
	if errors.As(err, &rerr) {
		return rerr.StatusCode
	}
	return 0
}
