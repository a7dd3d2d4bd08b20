package broker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	HeaderService     = "Fiware-Service"
	HeaderServicePath = "Fiware-ServicePath"
)

const (
	OperationReadAttribute    = "read_attribute"
	OperationListDevices      = "list_devices"
	OperationUpdateAttributes = "update_attributes"
)

const DefaultRequestTimeout = 30 * time.Second

const maximumResponseSize = 4 << 20

// CacheBypassHeaders are sent on every read so no intermediary serves a stale
// copy of band telemetry.
var CacheBypassHeaders = map[string]string{
	"Cache-Control": "no-cache, no-store, must-revalidate, max-age=0",
	"Pragma":        "no-cache",
	"Expires":       "0",
}

type Config struct {
	OrionURL    string
	IoTAgentURL string
	Service     string
	ServicePath string

	HTTPClient *http.Client
	Metrics    *Metrics
}

type Client struct {
	orionURL    string
	iotAgentURL string
	service     string
	servicePath string

	httpClient *http.Client
	metrics    *Metrics
}

func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}

	return &Client{
		orionURL:    strings.TrimSuffix(cfg.OrionURL, "/"),
		iotAgentURL: strings.TrimSuffix(cfg.IoTAgentURL, "/"),
		service:     cfg.Service,
		servicePath: cfg.ServicePath,
		httpClient:  httpClient,
		metrics:     cfg.Metrics,
	}
}

// ReadAttribute fetches a single attribute of an entity, returning the broker's
// document for that attribute untouched.
func (c *Client) ReadAttribute(ctx context.Context, id EntityID, attribute string) (Payload, error) {
	u := fmt.Sprintf("%s/v2/entities/%s/attrs/%s", c.orionURL, url.PathEscape(string(id)), url.PathEscape(attribute))
	return c.do(ctx, OperationReadAttribute, http.MethodGet, u, nil, true)
}

// ListDevices fetches the complete device registry from the IoT agent.
func (c *Client) ListDevices(ctx context.Context) (Payload, error) {
	return c.do(ctx, OperationListDevices, http.MethodGet, c.iotAgentURL+"/iot/devices", nil, true)
}

// UpdateAttributes performs a partial update of an entity's attributes.
func (c *Client) UpdateAttributes(ctx context.Context, id EntityID, body Payload) error {
	u := fmt.Sprintf("%s/v2/entities/%s/attrs", c.orionURL, url.PathEscape(string(id)))
	_, err := c.do(ctx, OperationUpdateAttributes, http.MethodPatch, u, body, false)
	return err
}

func (c *Client) do(ctx context.Context, operation string, method string, u string, body []byte, bypassCache bool) (Payload, error) {
	start := time.Now()
	data, err := c.roundTrip(ctx, operation, method, u, body, bypassCache)
	c.metrics.observe(operation, err, time.Since(start))

	return data, err
}

func (c *Client) roundTrip(ctx context.Context, operation string, method string, u string, body []byte, bypassCache bool) (Payload, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, &Failure{Kind: Transport, Operation: operation, Cause: fmt.Errorf("failed to construct request: %w", err)}
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderService, c.service)
	req.Header.Set(HeaderServicePath, c.servicePath)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if bypassCache {
		for k, v := range CacheBypassHeaders {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Failure{Kind: Transport, Operation: operation, Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maximumResponseSize))
	if err != nil {
		return nil, &Failure{Kind: Transport, Operation: operation, Cause: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, rejection(operation, resp.StatusCode)
	}

	return data, nil
}
