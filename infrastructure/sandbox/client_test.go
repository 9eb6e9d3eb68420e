package sandbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-rollout/internal/ports"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(&Config{APIURL: server.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return client
}

func TestClientCreate(t *testing.T) {
	var gotBody ports.ResourceConfig
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/sandboxes", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "sb-abc"}`))
	}))

	id, err := client.Create(context.Background(), ports.ResourceConfig{Image: "python:3.12"})

	require.NoError(t, err)
	assert.Equal(t, "sb-abc", id)
	assert.Equal(t, "python:3.12", gotBody.Image)
}

func TestClientCreateMissingID(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))

	_, err := client.Create(context.Background(), ports.ResourceConfig{})
	require.ErrorIs(t, err, ports.ErrInvalidResponse)
}

func TestClientStatus(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		want       ports.ResourceStatus
		wantErr    error
	}{
		{"running", http.StatusOK, `{"id": "sb-1", "status": "RUNNING"}`, ports.ResourceRunning, nil},
		{"provisioning", http.StatusOK, `{"id": "sb-1", "status": "PROVISIONING"}`, ports.ResourceProvisioning, nil},
		{"terminated", http.StatusOK, `{"id": "sb-1", "status": "TERMINATED"}`, ports.ResourceTerminated, nil},
		{"not found maps to sentinel", http.StatusNotFound, `{}`, "", ports.ErrResourceNotFound},
		{"unknown status rejected", http.StatusOK, `{"id": "sb-1", "status": "LIMBO"}`, "", ports.ErrInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/v1/sandboxes/sb-1", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))

			status, err := client.Status(context.Background(), "sb-1")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestClientExecute(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/sandboxes/sb-1/exec", r.URL.Path)
		var req execRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "echo hi", req.Command)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"stdout": "hi\n", "stderr": ""}`))
	}))

	res, err := client.Execute(context.Background(), "sb-1", "echo hi")

	require.NoError(t, err)
	assert.Equal(t, "hi\n", res.Stdout)
	assert.Empty(t, res.Stderr)
}

func TestClientDestroy(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodDelete, r.Method)
			w.WriteHeader(http.StatusNoContent)
		}))
		require.NoError(t, client.Destroy(context.Background(), "sb-1"))
	})

	t.Run("missing sandbox is success", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		require.NoError(t, client.Destroy(context.Background(), "sb-gone"),
			"destroy must be idempotent")
	})
}

func TestClientErrorClassification(t *testing.T) {
	tests := []struct {
		statusCode int
		want       error
	}{
		{http.StatusTooManyRequests, ports.ErrRateLimited},
		{http.StatusUnauthorized, ports.ErrAuthenticationFailed},
		{http.StatusServiceUnavailable, ports.ErrServiceUnavailable},
		{http.StatusGatewayTimeout, ports.ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.statusCode), func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))

			_, err := client.Create(context.Background(), ports.ResourceConfig{})
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(nil)
	require.Error(t, err)
}
