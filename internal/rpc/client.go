// Package rpc talks to the LMS web-service endpoint. Calls are form-encoded
// POSTs returning JSON; a server-side exception payload is surfaced as a
// rejection error, while network and HTTP-level failures are surfaced as
// transport errors so callers can tell "the server said no" apart from
// "the server was unreachable".
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/mviana/offcourse/internal/errors"
)

// Client invokes remote web-service functions.
type Client interface {
	// Call invokes the named function with the given parameters and
	// returns the raw JSON response body.
	Call(ctx context.Context, function string, params url.Values) (json.RawMessage, error)
}

// exceptionPayload is the error envelope the LMS returns on a handled
// server-side failure (HTTP 200 with an exception body).
type exceptionPayload struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
}

// ServerError is a rejection returned by the LMS itself.
type ServerError struct {
	Function  string
	ErrorCode string
	Message   string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Function, e.Message, e.ErrorCode)
	}
	return fmt.Sprintf("%s: rejected by server (%s)", e.Function, e.ErrorCode)
}

// ErrorCodeOf extracts the server error code from an error chain.
// It returns "" when the error did not originate from a server rejection.
func ErrorCodeOf(err error) string {
	for err != nil {
		if se, ok := err.(*ServerError); ok {
			return se.ErrorCode
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// HTTPClient is the production Client over the LMS REST endpoint.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient builds a client for the given LMS base URL and access token.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// Call implements Client.
func (c *HTTPClient) Call(ctx context.Context, function string, params url.Values) (json.RawMessage, error) {
	form := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			form.Add(k, v)
		}
	}
	form.Set("wsfunction", function)
	form.Set("wstoken", c.token)
	form.Set("moodlewsrestformat", "json")

	endpoint := c.baseURL + "/webservice/rest/server.php"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTransport, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTransport, fmt.Sprintf("%s failed", function), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTransport, "failed to read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Newf(apperrors.ErrTransport, "%s returned HTTP %d", function, resp.StatusCode)
	}

	return interpretResponse(function, body)
}

// interpretResponse distinguishes an exception envelope from a real result.
func interpretResponse(function string, body []byte) (json.RawMessage, error) {
	var exc exceptionPayload
	if err := json.Unmarshal(body, &exc); err == nil && exc.Exception != "" {
		serverErr := &ServerError{
			Function:  function,
			ErrorCode: exc.ErrorCode,
			Message:   exc.Message,
		}
		return nil, apperrors.Wrap(apperrors.ErrServerRejected, "server rejected request", serverErr)
	}
	return json.RawMessage(body), nil
}
