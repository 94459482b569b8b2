package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/honeynil/LandEscrowService/internal/infrastructure/observability"
	pkgerrors "github.com/honeynil/LandEscrowService/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries uint64
	// MaxBackoff caps the wait between retries.
	MaxBackoff time.Duration
}

// HTTPGateway calls the gateway's REST API. Transport failures and 5xx answers are
// retried with exponential backoff; 4xx answers are final.
type HTTPGateway struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries uint64
	maxBackoff time.Duration
}

func NewHTTPGateway(cfg Config) *HTTPGateway {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = 3
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff == 0 {
		maxBackoff = 2 * time.Second
	}
	return &HTTPGateway{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: retries,
		maxBackoff: maxBackoff,
	}
}

func (g *HTTPGateway) InitiateFunding(ctx context.Context, req FundingRequest) (FundingResult, error) {
	req.Currency = Currency
	var result FundingResult
	if err := g.post(ctx, "InitiateFunding", "/v1/escrow/fundings", req.IdempotencyKey, req, &result); err != nil {
		return FundingResult{}, err
	}
	if result.Reference == "" {
		return FundingResult{}, fmt.Errorf("%w: gateway returned no payment reference", pkgerrors.ErrExternalService)
	}
	return result, nil
}

func (g *HTTPGateway) Settle(ctx context.Context, req SettlementRequest) (SettlementResult, error) {
	req.Currency = Currency
	var result SettlementResult
	if err := g.post(ctx, "Settle", "/v1/escrow/settlements", req.IdempotencyKey, req, &result); err != nil {
		return SettlementResult{}, err
	}
	return result, nil
}

func (g *HTTPGateway) post(ctx context.Context, method, path, idempotencyKey string, in, out any) (err error) {
	ctx, span := otel.Tracer("payment-gateway").Start(ctx, method)
	defer span.End()
	span.SetAttributes(attribute.String("idempotency_key", idempotencyKey))
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.GatewayCalls.WithLabelValues(method, status).Inc()
	}()

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	attempt := 0
	operation := func() error {
		attempt++
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
		if g.token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+g.token)
		}

		resp, err := g.httpClient.Do(httpReq)
		if err != nil {
			slog.Warn("payment gateway request failed", "method", method, "attempt", attempt, "error", err)
			return fmt.Errorf("send request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 500 {
			slog.Warn("payment gateway unavailable", "method", method, "attempt", attempt, "status", resp.StatusCode)
			return fmt.Errorf("request failed: %s", resp.Status)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("request rejected: %s - %s", resp.Status, string(respBody)))
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return backoff.Permanent(fmt.Errorf("unmarshal response: %w", err))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = g.maxBackoff
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, g.maxRetries), ctx)

	if err := backoff.Retry(operation, retry); err != nil {
		slog.Error("payment gateway call failed", "method", method, "attempts", attempt, "error", err)
		return fmt.Errorf("%w: payment gateway %s: %v", pkgerrors.ErrExternalService, method, err)
	}
	return nil
}
