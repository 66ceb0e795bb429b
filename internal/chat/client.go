// Package chat talks to the chat-history collaborator. The call core only
// needs it for one thing: obtaining a session identity for a customer before
// they register on the signaling relay.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/omitech/livetalk/internal/signal"
)

const defaultTimeout = 10 * time.Second

// Client is a thin HTTP client for the chat service.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type createUserRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type createUserResponse struct {
	SessionID string `json:"sessionId"`
}

// CreateSession registers the customer with the chat service and returns the
// session identity to carry into signaling registration.
func (c *Client) CreateSession(ctx context.Context, p signal.ClientProfile) (string, error) {
	body, err := json.Marshal(createUserRequest{Name: p.Name, Phone: p.Phone, Email: p.Email})
	if err != nil {
		return "", fmt.Errorf("marshal create-user request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chatgroup/create-user", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build create-user request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("create chat user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create chat user: unexpected status %d", resp.StatusCode)
	}

	var out createUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode create-user response: %w", err)
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("create chat user: empty session id")
	}
	return out.SessionID, nil
}
