package mailtm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"duckmail-archive/internal/archive/domain"
)

const (
	// DefaultBaseURL is the public mail.tm API endpoint. Compatible
	// disposable-mail providers expose the same surface under their own host.
	DefaultBaseURL = "https://api.mail.tm"

	// pageSize is the fixed mail.tm list page size.
	pageSize = 30

	requestTimeout = 15 * time.Second
)

// Client talks to a mail.tm compatible HTTP API. It is stateless apart from
// the HTTP client and safe for concurrent use; sessions are plain bearer
// tokens passed per call.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	return &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

type addressPayload struct {
	Address string `json:"address"`
}

type summaryPayload struct {
	ID      string          `json:"id"`
	Subject string          `json:"subject"`
	Intro   string          `json:"intro"`
	From    *addressPayload `json:"from"`
}

type listPayload struct {
	Members    []summaryPayload `json:"hydra:member"`
	TotalItems *int             `json:"hydra:totalItems"`
}

type detailPayload struct {
	ID        string           `json:"id"`
	Subject   string           `json:"subject"`
	Intro     string           `json:"intro"`
	From      *addressPayload  `json:"from"`
	To        []addressPayload `json:"to"`
	Text      string           `json:"text"`
	HTML      []string         `json:"html"`
	CreatedAt string           `json:"createdAt"`
}

// CreateSession exchanges mailbox credentials for a bearer token.
func (c *Client) CreateSession(ctx context.Context, email, password string) (string, error) {
	body := map[string]string{
		"address":  email,
		"password": password,
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := c.requestJSON(ctx, "create-session", http.MethodPost, c.baseURL+"/token", "", body, &payload); err != nil {
		return "", err
	}
	if payload.Token == "" {
		return "", &domain.ProviderError{Op: "create-session", Err: errors.New("token missing from response")}
	}
	return payload.Token, nil
}

// ListMessages fetches one page of message summaries. Pages start at 1.
func (c *Client) ListMessages(ctx context.Context, token string, page int) (domain.MessagePage, error) {
	url := fmt.Sprintf("%s/messages?page=%d", c.baseURL, page)
	var payload listPayload
	if err := c.requestJSON(ctx, "list-messages", http.MethodGet, url, token, nil, &payload); err != nil {
		return domain.MessagePage{}, err
	}

	items := make([]domain.MessageSummary, 0, len(payload.Members))
	for _, member := range payload.Members {
		summary := domain.MessageSummary{
			RemoteID: member.ID,
			Subject:  member.Subject,
			Snippet:  member.Intro,
		}
		if member.From != nil {
			summary.FromAddress = member.From.Address
		}
		items = append(items, summary)
	}

	hasNext := len(items) == pageSize
	if payload.TotalItems != nil {
		hasNext = page*pageSize < *payload.TotalItems
	}
	return domain.MessagePage{Items: items, HasNext: hasNext}, nil
}

// GetMessageDetail fetches the full body of one message.
func (c *Client) GetMessageDetail(ctx context.Context, token, remoteID string) (domain.MessageDetail, error) {
	url := fmt.Sprintf("%s/messages/%s", c.baseURL, remoteID)
	var payload detailPayload
	if err := c.requestJSON(ctx, "get-message-detail", http.MethodGet, url, token, nil, &payload); err != nil {
		return domain.MessageDetail{}, err
	}

	detail := domain.MessageDetail{
		RemoteID: payload.ID,
		Subject:  payload.Subject,
		Snippet:  payload.Intro,
		BodyText: payload.Text,
		BodyHTML: strings.Join(payload.HTML, "\n"),
	}
	if detail.RemoteID == "" {
		detail.RemoteID = remoteID
	}
	if payload.From != nil {
		detail.FromAddress = payload.From.Address
	}
	for _, to := range payload.To {
		if to.Address != "" {
			detail.ToAddresses = append(detail.ToAddresses, to.Address)
		}
	}
	if payload.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, payload.CreatedAt); err == nil {
			detail.ReceivedAt = &ts
		}
	}
	return detail, nil
}

// DeleteMessage removes a message upstream.
func (c *Client) DeleteMessage(ctx context.Context, token, remoteID string) error {
	url := fmt.Sprintf("%s/messages/%s", c.baseURL, remoteID)
	return c.requestJSON(ctx, "delete-message", http.MethodDelete, url, token, nil, nil)
}

func (c *Client) requestJSON(ctx context.Context, op, method, url, token string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return &domain.ProviderError{Op: op, Err: err}
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return &domain.ProviderError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json, application/ld+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.ProviderError{Op: op, Timeout: isTimeoutErr(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.ProviderError{Op: op, Status: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.ProviderError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func isTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
