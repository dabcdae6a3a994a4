package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"course_checkout/internal/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string, timeout time.Duration) *RazorpayClient {
	return NewRazorpayClient(config.GatewayConfig{
		BaseURL:   url,
		KeyID:     "rzp_test_key",
		KeySecret: "rzp_test_secret_value",
		Timeout:   timeout,
	})
}

func TestCreateOrder(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1/orders", r.URL.Path)
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "rzp_test_key", user)
			assert.Equal(t, "rzp_test_secret_value", pass)

			var body createOrderBody
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, int64(8000), body.Amount)
			assert.Equal(t, "INR", body.Currency)
			assert.Equal(t, "order-internal-1", body.Receipt)

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"order_9A33XWu170gUtm","amount":8000,"currency":"INR","receipt":"order-internal-1","status":"created"}`))
		}))
		defer server.Close()

		order, err := newTestClient(server.URL, time.Second).CreateOrder(context.Background(), OrderRequest{
			Amount: 8000, Currency: "INR", Receipt: "order-internal-1",
		})

		require.NoError(t, err)
		assert.Equal(t, "order_9A33XWu170gUtm", order.ID)
		assert.Equal(t, int64(8000), order.Amount)
	})

	t.Run("API error is not a timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount must be at least INR 1.00"}}`))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL, time.Second).CreateOrder(context.Background(), OrderRequest{Amount: 10, Currency: "INR"})

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "BAD_REQUEST_ERROR", apiErr.Code)
		assert.False(t, IsTimeout(err))
	})

	t.Run("Slow gateway times out", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := newTestClient(server.URL, 5*time.Second).CreateOrder(ctx, OrderRequest{Amount: 8000, Currency: "INR"})

		assert.True(t, errors.Is(err, ErrTimeout))
		assert.True(t, IsTimeout(err))
	})

	t.Run("Gateway 504 is a timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusGatewayTimeout)
		}))
		defer server.Close()

		_, err := newTestClient(server.URL, time.Second).CreateOrder(context.Background(), OrderRequest{Amount: 8000, Currency: "INR"})
		assert.True(t, errors.Is(err, ErrTimeout))
	})

	t.Run("Connection refused is a plain failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		_, err := newTestClient(url, time.Second).CreateOrder(context.Background(), OrderRequest{Amount: 8000, Currency: "INR"})
		assert.Error(t, err)
		assert.False(t, IsTimeout(err))
	})
}
