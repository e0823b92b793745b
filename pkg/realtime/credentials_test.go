package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/vai-kiosk/pkg/core"
)

func TestCredentialClient_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/openai/ephemeral-key", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"clientSecret":"ek_test_123"}`))
	}))
	defer server.Close()

	c := &CredentialClient{URL: server.URL + "/api/openai/ephemeral-key", HTTPClient: server.Client()}
	secret, err := c.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ek_test_123", secret)
}

func TestCredentialClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"OpenAI API key not configured"}`))
	}))
	defer server.Close()

	_, err := (&CredentialClient{URL: server.URL}).Credential(context.Background())
	var kerr *core.Error
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, core.ErrCredential, kerr.Type)
	assert.Equal(t, "OpenAI API key not configured", kerr.Message)
	assert.Equal(t, "500", kerr.Code)
}

func TestCredentialClient_MissingSecret(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := (&CredentialClient{URL: server.URL}).Credential(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clientSecret")
}

func TestCredentialClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := (&CredentialClient{URL: url}).Credential(context.Background())
	var terr *core.TransportError
	require.ErrorAs(t, err, &terr)
}

func TestStaticCredential(t *testing.T) {
	key, err := StaticCredential("sk-1").Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-1", key)

	_, err = StaticCredential(" ").Credential(context.Background())
	require.Error(t, err)
}
