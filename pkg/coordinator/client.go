package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"k8s.io/klog/v2"
)

// Client carries offload requests from the decision engine to the wireless
// resource manager. Every call is bounded by the configured timeout; a
// timed-out tick is retried on the next tick by the caller, never mid-tick.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// SendOffloadRequest performs the synchronous admission exchange.
func (c *Client) SendOffloadRequest(ctx context.Context, req OffloadRequest) (*OffloadResponse, error) {
	req.Version = SchemaVersion

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding offload request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/offload", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building offload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("offload request for %s/%s: %w", req.ClientID, req.FlowID, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("offload request for %s/%s: unexpected status %d", req.ClientID, req.FlowID, httpResp.StatusCode)
	}

	resp, err := decodeResponse(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("offload response for %s/%s: %w", req.ClientID, req.FlowID, err)
	}
	return resp, nil
}

// ReleaseOffload unwinds a grant when the client reverts to LTE-only or its
// flow ends. Releasing an unknown grant is not an error on the wire.
func (c *Client) ReleaseOffload(ctx context.Context, clientID, flowID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1/offload/%s/%s", c.baseURL, clientID, flowID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("building release request: %w", err)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("release for %s/%s: %w", clientID, flowID, err)
	}
	defer httpResp.Body.Close()
	io.Copy(io.Discard, httpResp.Body)

	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("release for %s/%s: unexpected status %d", clientID, flowID, httpResp.StatusCode)
	}
	return nil
}

// Load queries the wireless side's current aggregate load.
func (c *Client) Load(ctx context.Context) (*LoadStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/load", nil)
	if err != nil {
		return nil, fmt.Errorf("building load request: %w", err)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("load query: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("load query: unexpected status %d", httpResp.StatusCode)
	}

	dec := json.NewDecoder(httpResp.Body)
	dec.DisallowUnknownFields()
	var status LoadStatus
	if err := dec.Decode(&status); err != nil {
		return nil, fmt.Errorf("decoding load status: %w", err)
	}
	return &status, nil
}

func decodeResponse(r io.Reader) (*OffloadResponse, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var resp OffloadResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}
	if resp.Version != SchemaVersion {
		return nil, fmt.Errorf("unsupported schema version %d", resp.Version)
	}
	return &resp, nil
}

// LogRoundTrip emits the request/response pair at debug verbosity.
func LogRoundTrip(req OffloadRequest, resp *OffloadResponse) {
	if resp.Accepted {
		klog.V(3).Infof("Offload granted for %s/%s: addr=%s bw=%.1fMbps load=%.2f",
			req.ClientID, req.FlowID, resp.Address, resp.BandwidthMbps, resp.Load)
	} else {
		klog.V(3).Infof("Offload rejected for %s/%s: reason=%s load=%.2f",
			req.ClientID, req.FlowID, resp.Reason, resp.Load)
	}
}
