// Package transport implements the HTTP client for the remote sync endpoint
// and the presigned blob upload used for capture audio.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pensieve-app/pensieve/internal/client/store/records"
	clientsync "github.com/pensieve-app/pensieve/internal/client/sync"
	"github.com/pensieve-app/pensieve/internal/syncerr"
)

// SyncRequest is the per-entity wire request.
type SyncRequest struct {
	LastPulledAt int64            `json:"lastPulledAt"`
	Changes      []records.Record `json:"changes"`
}

// SyncResponse is the per-entity wire response. Timestamp is the server's
// authoritative clock value, stored by the caller as the new cursor.
type SyncResponse struct {
	Changes   []records.Record `json:"changes"`
	Timestamp int64            `json:"timestamp"`
}

type presignResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// HTTPClient talks JSON over HTTP to the companion server. It implements
// sync.Endpoint and sync.Uploader.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	token   string
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// SetToken installs the bearer token for subsequent requests.
func (c *HTTPClient) SetToken(token string) { c.token = token }

// Sync implements sync.Endpoint.
func (c *HTTPClient) Sync(ctx context.Context, entity string, lastPulledAt int64, changes []records.Record) ([]records.Record, int64, error) {
	if changes == nil {
		changes = []records.Record{}
	}
	var resp SyncResponse
	err := c.postJSON(ctx, fmt.Sprintf("/api/sync/%s", entity),
		SyncRequest{LastPulledAt: lastPulledAt, Changes: changes}, &resp)
	if err != nil {
		return nil, 0, err
	}
	return resp.Changes, resp.Timestamp, nil
}

// ReportConflicts implements sync.Endpoint.
func (c *HTTPClient) ReportConflicts(ctx context.Context, entity string, audits []clientsync.Audit) error {
	return c.postJSON(ctx, fmt.Sprintf("/api/conflicts/%s", entity), audits, nil)
}

// PresignUpload implements sync.Uploader.
func (c *HTTPClient) PresignUpload(ctx context.Context) (string, string, error) {
	var resp presignResponse
	if err := c.postJSON(ctx, "/api/uploads/presign", struct{}{}, &resp); err != nil {
		return "", "", err
	}
	return resp.Key, resp.URL, nil
}

// Upload PUTs data to a presigned URL, implementing sync.Uploader.
func (c *HTTPClient) Upload(ctx context.Context, url string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return syncerr.Wrap(syncerr.KindValidation, "failed to build upload request", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return syncerr.Wrap(syncerr.KindNetwork, "upload failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return classifyStatus(resp.StatusCode, fmt.Sprintf("upload failed: %s; body: %s", resp.Status, string(b)))
	}
	return nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return syncerr.Wrap(syncerr.KindValidation, "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return syncerr.Wrap(syncerr.KindValidation, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts, refused connections, DNS failures: all transient.
		return syncerr.Wrap(syncerr.KindNetwork, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return classifyStatus(resp.StatusCode, fmt.Sprintf("%s: %s", resp.Status, string(b)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return syncerr.Wrap(syncerr.KindValidation, "failed to decode response", err)
	}
	return nil
}

// classifyStatus maps HTTP statuses onto the engine's error taxonomy: 5xx
// and 429 stay retryable, the rest will not get better on a second attempt.
func classifyStatus(code int, msg string) error {
	switch {
	case code == http.StatusNotFound:
		return syncerr.New(syncerr.KindNotFound, msg)
	case code == http.StatusTooManyRequests || code >= 500:
		return syncerr.New(syncerr.KindNetwork, msg)
	default:
		return syncerr.New(syncerr.KindValidation, msg)
	}
}
