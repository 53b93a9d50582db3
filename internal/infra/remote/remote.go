// Package remote is the client for the transaction store API. Every call
// returns a success/failure result; failures are typed so callers can tell
// "no connectivity" from "reachable but rejected". Nothing here panics
// across the boundary.
package remote

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

	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/infra/cache"
	"github.com/fintrack/fintrack-go/internal/infra/observability"
	"github.com/fintrack/fintrack-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("remote")

const probeKey = "reachable"

// Client wraps HTTP calls to the remote transaction store.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	probe      *cache.InMemory[bool]
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewClient creates a remote store client. probeTTL bounds how long a
// connectivity probe result is trusted before re-checking.
func NewClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, probeTTL time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
		probe:      cache.New[bool](probeTTL),
		metrics:    metrics,
		logger:     logger,
	}
}

// Close releases the probe cache janitor.
func (c *Client) Close() { c.probe.Close() }

// apiResponse is the envelope the store wraps mutation responses in.
type apiResponse struct {
	Success bool            `json:"success"`
	ID      string          `json:"id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Online reports whether the remote store is reachable. Any HTTP response,
// even an error status, proves reachability; only transport failures count
// as offline. The result is memoized for the probe TTL.
func (c *Client) Online(ctx context.Context) bool {
	if v, ok := c.probe.Get(probeKey); ok {
		c.metrics.IncrCacheHit("probe")
		return v
	}
	c.metrics.IncrCacheMiss("probe")

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/ping", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	online := err == nil
	if online {
		resp.Body.Close()
	}

	c.probe.Set(probeKey, online)
	c.logger.Debug("connectivity probe", zap.Bool("online", online))
	return online
}

// List fetches the authoritative transaction list.
func (c *Client) List(ctx context.Context) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Remote.List")
	defer span.End()

	var list []domain.Transaction
	err := c.execute(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, "get", "", nil)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &list); err != nil {
			return resilience.Permanent(fmt.Errorf("failed to decode list: %w", err))
		}
		if list == nil {
			list = []domain.Transaction{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// Create submits a new transaction. The returned copy carries the
// server-assigned id, which may differ from the submitted one.
func (c *Client) Create(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Remote.Create")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", tx.ID))

	var created domain.Transaction
	err := c.execute(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodPost, "add", "", tx)
		if err != nil {
			return err
		}
		return decodeEnvelope(body, &created)
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return created, nil
}

// Update replaces the stored fields of a transaction.
func (c *Client) Update(ctx context.Context, id string, tx domain.Transaction) (domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Remote.Update")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	var updated domain.Transaction
	err := c.execute(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodPut, "update", id, tx)
		if err != nil {
			return err
		}
		return decodeEnvelope(body, &updated)
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return updated, nil
}

// Delete removes a transaction by id.
func (c *Client) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Remote.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	return c.execute(ctx, func() error {
		_, err := c.doRequest(ctx, http.MethodDelete, "delete", id, nil)
		return err
	})
}

// BulkSync submits the full client-side list for server-side merging and
// returns the merged authoritative list.
func (c *Client) BulkSync(ctx context.Context, list []domain.Transaction) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Remote.BulkSync")
	defer span.End()
	span.SetAttributes(attribute.Int("transaction.count", len(list)))

	payload := struct {
		Transactions []domain.Transaction `json:"transactions"`
	}{Transactions: list}

	var merged []domain.Transaction
	err := c.execute(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodPost, "sync", "", payload)
		if err != nil {
			return err
		}
		return decodeEnvelope(body, &merged)
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// execute runs fn behind the circuit breaker with transport-level retries.
func (c *Client) execute(ctx context.Context, fn func() error) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, fn)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.ErrCircuitOpen{Service: c.cb.Name()}
	}
	return err
}

// doRequest performs one HTTP exchange and classifies failures:
// transport error -> ErrUnreachable (retryable), 404 -> ErrNotFound,
// other 4xx -> ErrRemote (permanent), 5xx -> ErrRemote (retryable).
func (c *Client) doRequest(ctx context.Context, method, action, id string, payload any) ([]byte, error) {
	q := url.Values{"action": {action}}
	if id != "" {
		q.Set("id", id)
	}
	endpoint := fmt.Sprintf("%s/api?%s", c.baseURL, q.Encode())

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, resilience.Permanent(err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, resilience.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("remote store unreachable",
			zap.String("action", action),
			zap.Error(err),
		)
		c.probe.Set(probeKey, false)
		return nil, &domain.ErrUnreachable{Err: err}
	}
	defer resp.Body.Close()
	c.probe.Set(probeKey, true)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.ErrUnreachable{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope apiResponse
		_ = json.Unmarshal(body, &envelope)
		c.logger.Warn("remote store rejected request",
			zap.String("action", action),
			zap.String("id", id),
			zap.Int("status", resp.StatusCode),
			zap.String("error", envelope.Error),
		)

		if resp.StatusCode == http.StatusNotFound {
			return nil, resilience.Permanent(&domain.ErrNotFound{Resource: "transaction", ID: id})
		}
		remoteErr := &domain.ErrRemote{Op: action, Status: resp.StatusCode, Message: envelope.Error}
		if resp.StatusCode < 500 {
			return nil, resilience.Permanent(remoteErr)
		}
		return nil, remoteErr
	}

	return body, nil
}

// decodeEnvelope unpacks a {success, id, data} response into out.
func decodeEnvelope(body []byte, out any) error {
	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return resilience.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return resilience.Permanent(fmt.Errorf("failed to decode response data: %w", err))
	}
	return nil
}
