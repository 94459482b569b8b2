package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/honeynil/LandEscrowService/internal/infrastructure/payment"
	pkgerrors "github.com/honeynil/LandEscrowService/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGateway(url string) *payment.HTTPGateway {
	return payment.NewHTTPGateway(payment.Config{
		BaseURL:    url,
		Token:      "secret",
		Timeout:    time.Second,
		MaxRetries: 2,
		MaxBackoff: 10 * time.Millisecond,
	})
}

func TestHTTPGateway_InitiateFunding(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/escrow/fundings", r.URL.Path)
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			assert.Equal(t, "tx-1:funding", r.Header.Get("Idempotency-Key"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "GHS", body["currency"])
			assert.Equal(t, "50000", body["amount"])

			_ = json.NewEncoder(w).Encode(map[string]string{"reference": "PAY-1", "paymentUrl": "https://pay.example/PAY-1"})
		}))
		defer srv.Close()

		res, err := newGateway(srv.URL).InitiateFunding(context.Background(), payment.FundingRequest{
			TransactionID:  "tx-1",
			PayerID:        "buyer-1",
			Amount:         decimal.NewFromInt(50000),
			IdempotencyKey: payment.FundingKey("tx-1", 1),
		})
		require.NoError(t, err)
		assert.Equal(t, "PAY-1", res.Reference)
		assert.Equal(t, "https://pay.example/PAY-1", res.PaymentURL)
	})

	t.Run("MissingReference", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		_, err := newGateway(srv.URL).InitiateFunding(context.Background(), payment.FundingRequest{TransactionID: "tx-1"})
		assert.ErrorIs(t, err, pkgerrors.ErrExternalService)
	})
}

func TestHTTPGateway_Settle(t *testing.T) {
	t.Run("RetriesServerErrors", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			assert.Equal(t, "tx-1:release", r.Header.Get("Idempotency-Key"))
			_, _ = w.Write([]byte(`{"reference":"SET-1"}`))
		}))
		defer srv.Close()

		res, err := newGateway(srv.URL).Settle(context.Background(), payment.SettlementRequest{
			TransactionID:  "tx-1",
			Kind:           payment.SettlementRelease,
			Amount:         decimal.NewFromInt(49000),
			Fee:            decimal.NewFromInt(1000),
			IdempotencyKey: payment.SettlementKey("tx-1", payment.SettlementRelease),
		})
		require.NoError(t, err)
		assert.Equal(t, "SET-1", res.Reference)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("GivesUpAfterMaxRetries", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := newGateway(srv.URL).Settle(context.Background(), payment.SettlementRequest{TransactionID: "tx-1", Kind: payment.SettlementRefund})
		assert.ErrorIs(t, err, pkgerrors.ErrExternalService)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("ClientErrorNotRetried", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":"insufficient escrow balance"}`))
		}))
		defer srv.Close()

		_, err := newGateway(srv.URL).Settle(context.Background(), payment.SettlementRequest{TransactionID: "tx-1", Kind: payment.SettlementRelease})
		assert.ErrorIs(t, err, pkgerrors.ErrExternalService)
		assert.Contains(t, err.Error(), "insufficient escrow balance")
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestSandbox(t *testing.T) {
	ctx := context.Background()
	sb := payment.NewSandbox()

	first, err := sb.InitiateFunding(ctx, payment.FundingRequest{TransactionID: "tx-1", IdempotencyKey: payment.FundingKey("tx-1", 1)})
	require.NoError(t, err)
	again, err := sb.InitiateFunding(ctx, payment.FundingRequest{TransactionID: "tx-1", IdempotencyKey: payment.FundingKey("tx-1", 1)})
	require.NoError(t, err)
	assert.Equal(t, first, again)
	retry, err := sb.InitiateFunding(ctx, payment.FundingRequest{TransactionID: "tx-1", IdempotencyKey: payment.FundingKey("tx-1", 2)})
	require.NoError(t, err)
	assert.NotEqual(t, first.Reference, retry.Reference)
	assert.Equal(t, "tx-1:funding:2", payment.FundingKey("tx-1", 2))

	sb.FailSettlements(assert.AnError)
	_, err = sb.Settle(ctx, payment.SettlementRequest{TransactionID: "tx-1", IdempotencyKey: "tx-1:release"})
	assert.ErrorIs(t, err, pkgerrors.ErrExternalService)
	assert.Empty(t, sb.Settlements())

	sb.FailSettlements(nil)
	_, err = sb.Settle(ctx, payment.SettlementRequest{TransactionID: "tx-1", IdempotencyKey: "tx-1:release"})
	require.NoError(t, err)
	_, err = sb.Settle(ctx, payment.SettlementRequest{TransactionID: "tx-1", IdempotencyKey: "tx-1:release"})
	require.NoError(t, err)
	assert.Len(t, sb.Settlements(), 1)
}
