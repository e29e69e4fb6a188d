// Package forwarder is the REST client a follower uses to forward a write to
// the current leader over its REST surface.
// Transport failures surface as ErrTransport; a structured REST error
// response is decoded and returned with its original status and error code
// intact.
package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrTransport is wrapped around any failure to reach the leader or read its
// response. The registry layer maps it onto its own forwarding error.
var ErrTransport = errors.New("forwarder: transport error")

// RemoteError carries a structured error response decoded from the leader,
// preserving its HTTP status and Confluent-style error code.
type RemoteError struct {
	Status    int
	ErrorCode int
	Message   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("forwarder: leader responded %d (error_code=%d): %s", e.Status, e.ErrorCode, e.Message)
}

// Client forwards registry writes to whatever node currently holds
// leadership. The caller supplies the leader's base URL per call, since
// leadership can change between calls.
type Client struct {
	httpClient *http.Client
}

// New constructs a Client. timeout bounds every forwarded call.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

func (c *Client) do(ctx context.Context, method, url string, headers http.Header, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("forwarder: build request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Content-Type") == "" && len(body) > 0 {
		req.Header.Set("Content-Type", "application/vnd.schemaregistry.v1+json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrTransport, err)
	}

	if resp.StatusCode >= 400 {
		var structured struct {
			ErrorCode int    `json:"error_code"`
			Message   string `json:"message"`
		}
		if jsonErr := json.Unmarshal(respBody, &structured); jsonErr == nil && structured.ErrorCode != 0 {
			return nil, &RemoteError{Status: resp.StatusCode, ErrorCode: structured.ErrorCode, Message: structured.Message}
		}
		return nil, &RemoteError{Status: resp.StatusCode, Message: string(respBody)}
	}

	return respBody, nil
}

// RegisterSchema forwards a schema registration for subject to the leader at
// leaderURL, returning the decoded response body.
func (c *Client) RegisterSchema(ctx context.Context, leaderURL string, headers http.Header, subject string, normalize bool, body []byte) ([]byte, error) {
	url := fmt.Sprintf("%s/subjects/%s/versions", leaderURL, pathEscape(subject))
	if normalize {
		url += "?normalize=true"
	}
	return c.do(ctx, http.MethodPost, url, headers, body)
}

// UpdateConfig forwards a subject- or global-level config update.
func (c *Client) UpdateConfig(ctx context.Context, leaderURL string, headers http.Header, subject string, body []byte) ([]byte, error) {
	url := leaderURL + "/config"
	if subject != "" {
		url += "/" + pathEscape(subject)
	}
	return c.do(ctx, http.MethodPut, url, headers, body)
}

// DeleteConfig forwards a subject-level config deletion (revert to global),
// or the global config deletion when subject is empty.
func (c *Client) DeleteConfig(ctx context.Context, leaderURL string, headers http.Header, subject string) ([]byte, error) {
	url := leaderURL + "/config"
	if subject != "" {
		url += "/" + pathEscape(subject)
	}
	return c.do(ctx, http.MethodDelete, url, headers, nil)
}

// DeleteSchemaVersion forwards the deletion of a single subject version.
func (c *Client) DeleteSchemaVersion(ctx context.Context, leaderURL string, headers http.Header, subject string, version int, permanent bool) ([]byte, error) {
	url := fmt.Sprintf("%s/subjects/%s/versions/%d", leaderURL, pathEscape(subject), version)
	if permanent {
		url += "?permanent=true"
	}
	return c.do(ctx, http.MethodDelete, url, headers, nil)
}

// DeleteSubject forwards the deletion of every version of a subject.
func (c *Client) DeleteSubject(ctx context.Context, leaderURL string, headers http.Header, subject string, permanent bool) ([]byte, error) {
	url := fmt.Sprintf("%s/subjects/%s", leaderURL, pathEscape(subject))
	if permanent {
		url += "?permanent=true"
	}
	return c.do(ctx, http.MethodDelete, url, headers, nil)
}

// SetMode forwards a subject- or global-level mode change.
func (c *Client) SetMode(ctx context.Context, leaderURL string, headers http.Header, subject string, force bool, body []byte) ([]byte, error) {
	url := leaderURL + "/mode"
	if subject != "" {
		url += "/" + pathEscape(subject)
	}
	if force {
		url += "?force=true"
	}
	return c.do(ctx, http.MethodPut, url, headers, body)
}

// DeleteSubjectMode forwards deletion of a subject's mode override.
func (c *Client) DeleteSubjectMode(ctx context.Context, leaderURL string, headers http.Header, subject string) ([]byte, error) {
	url := fmt.Sprintf("%s/mode/%s", leaderURL, pathEscape(subject))
	return c.do(ctx, http.MethodDelete, url, headers, nil)
}

func pathEscape(s string) string {
	return url.PathEscape(s)
}
