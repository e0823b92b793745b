package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vango-go/vai-kiosk/pkg/core"
)

const maxCredentialResponseBytes = 64 << 10

// CredentialSource yields a short-lived credential for one session.
type CredentialSource interface {
	Credential(ctx context.Context) (string, error)
}

// StaticCredential always returns the same key.
type StaticCredential string

func (s StaticCredential) Credential(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", core.NewCredentialError("static credential is empty", nil)
	}
	return string(s), nil
}

// CredentialClient fetches ephemeral keys from the kiosk backend.
type CredentialClient struct {
	URL        string
	HTTPClient *http.Client
}

type credentialResponse struct {
	ClientSecret string `json:"clientSecret"`
	Error        string `json:"error,omitempty"`
}

func (c *CredentialClient) Credential(ctx context.Context) (string, error) {
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return "", core.NewCredentialError("build credential request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", core.NewCredentialError("fetch credential", &core.TransportError{Op: http.MethodGet, URL: c.URL, Err: err})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCredentialResponseBytes))
	if err != nil {
		return "", core.NewCredentialError("read credential response", err)
	}

	var decoded credentialResponse
	decodeErr := json.Unmarshal(body, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("credential endpoint returned status %d", resp.StatusCode)
		if decodeErr == nil && strings.TrimSpace(decoded.Error) != "" {
			msg = strings.TrimSpace(decoded.Error)
		}
		return "", &core.Error{Type: core.ErrCredential, Message: msg, Code: fmt.Sprint(resp.StatusCode)}
	}
	if decodeErr != nil {
		return "", core.NewCredentialError("decode credential response", decodeErr)
	}
	secret := strings.TrimSpace(decoded.ClientSecret)
	if secret == "" {
		return "", core.NewCredentialError("credential response has no clientSecret", nil)
	}
	return secret, nil
}
