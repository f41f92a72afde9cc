package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ai-dashboard-client/internal/dto"
	"ai-dashboard-client/internal/mapper"
	"ai-dashboard-client/internal/model"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrForbidden            = errors.New("conversation belongs to another user")
)

// IsUnrecoverable reports whether the conversation id itself is unusable
// and should be forgotten.
func IsUnrecoverable(err error) bool {
	return errors.Is(err, ErrConversationNotFound) || errors.Is(err, ErrForbidden)
}

type Client struct {
	BaseURL string
	Token   string
	Client  *http.Client
	mapper  *mapper.ChatMapper
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 15 * time.Second,
		},
		mapper: mapper.NewChatMapper(),
	}
}

// Fetch loads one page of a conversation's messages, oldest first.
func (c *Client) Fetch(ctx context.Context, conversationID string, limit, offset int) ([]model.CommittedMessage, error) {
	ctx, span := otel.Tracer("history").Start(ctx, "history.fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	msgs, err := c.fetch(ctx, conversationID, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("messages", len(msgs)))
	return msgs, nil
}

func (c *Client) fetch(ctx context.Context, conversationID string, limit, offset int) ([]model.CommittedMessage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	q.Set("order_desc", "false")
	endpoint := fmt.Sprintf("%s/api/conversations/%s/messages?%s", c.BaseURL, url.PathEscape(conversationID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrConversationNotFound
	case http.StatusForbidden:
		return nil, ErrForbidden
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("history request returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload dto.GetConversationMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode history response: %w", err)
	}
	if !payload.Success {
		return nil, fmt.Errorf("history request unsuccessful: %s", payload.Message)
	}

	return c.mapper.HistoryListToModel(payload.Data), nil
}
