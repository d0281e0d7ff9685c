package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"outreach/pkg/config"
	"outreach/pkg/httpclient"
	"outreach/pkg/metrics"
	"time"

	"go.uber.org/zap"
)

// Mailer is the outbound message transport: one send request, one
// provider-assigned message id or an error.
type Mailer interface {
	Send(ctx context.Context, req SendRequest) (string, error)
}

type SendRequest struct {
	FromName  string
	FromEmail string
	To        string
	Subject   string
	HTML      string
	Tags      map[string]string
}

// providerRequest is the provider's wire shape for a send call.
type providerRequest struct {
	From    string        `json:"from"`
	To      []string      `json:"to"`
	Subject string        `json:"subject"`
	HTML    string        `json:"html"`
	Tags    []providerTag `json:"tags,omitempty"`
}

type providerTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type providerResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type Client struct {
	http    httpclient.HTTPClient
	baseURL string
	apiKey  string
	logger  *zap.SugaredLogger
	m       *metrics.Metrics
}

func NewClient(http httpclient.HTTPClient, conf config.Provider, logger *zap.SugaredLogger, m *metrics.Metrics) *Client {
	return &Client{
		http:    http,
		baseURL: conf.BaseURL,
		apiKey:  conf.APIKey,
		logger:  logger,
		m:       m,
	}
}

func (c *Client) Send(ctx context.Context, req SendRequest) (string, error) {
	body := providerRequest{
		From:    fmt.Sprintf("%s <%s>", req.FromName, req.FromEmail),
		To:      []string{req.To},
		Subject: req.Subject,
		HTML:    req.HTML,
	}
	for name, value := range req.Tags {
		body.Tags = append(body.Tags, providerTag{Name: name, Value: value})
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal send request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, c.baseURL+"/emails", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("build send request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	t0 := time.Now()
	resp, err := c.http.Do(ctx, httpReq)
	rt := time.Since(t0)

	if err != nil {
		c.observe("error", rt)
		return "", fmt.Errorf("provider send: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	var parsed providerResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&parsed); decodeErr != nil && resp.StatusCode < 300 {
		c.observe("error", rt)
		return "", fmt.Errorf("decode provider response: %w", decodeErr)
	}

	if resp.StatusCode >= 300 {
		c.observe("error", rt)
		c.logger.Warnf("[to: %s] provider rejected send status=%d message=%q rt=%s", req.To, resp.StatusCode, parsed.Message, rt)
		return "", fmt.Errorf("provider rejected send (status %d): %s", resp.StatusCode, parsed.Message)
	}

	if parsed.ID == "" {
		c.observe("error", rt)
		return "", fmt.Errorf("provider returned no message id")
	}

	c.observe("ok", rt)
	c.logger.Debugf("[to: %s] sent message=%s rt=%s", req.To, parsed.ID, rt)
	return parsed.ID, nil
}

func (c *Client) observe(result string, rt time.Duration) {
	if c.m == nil {
		return
	}
	c.m.Mailer.SendsTotal.WithLabelValues(result).Inc()
	c.m.Mailer.AttemptDuration.WithLabelValues(result).Observe(rt.Seconds())
}
