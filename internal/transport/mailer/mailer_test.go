package mailer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"outreach/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubHTTP struct {
	status  int
	body    string
	err     error
	lastReq *http.Request
	payload []byte
}

func (s *stubHTTP) Do(_ context.Context, req *http.Request) (*http.Response, error) {
	s.lastReq = req
	if req.Body != nil {
		s.payload, _ = io.ReadAll(req.Body)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &http.Response{
		StatusCode: s.status,
		Body:       io.NopCloser(strings.NewReader(s.body)),
	}, nil
}

func newTestClient(stub *stubHTTP) *Client {
	return NewClient(stub, config.Provider{
		BaseURL: "https://mail.example",
		APIKey:  "key-123",
	}, zap.NewNop().Sugar(), nil)
}

func TestSendReturnsProviderMessageID(t *testing.T) {
	stub := &stubHTTP{status: http.StatusOK, body: `{"id":"abc-123"}`}
	c := newTestClient(stub)

	id, err := c.Send(context.Background(), SendRequest{
		FromName:  "Dana",
		FromEmail: "dana@firm.example",
		To:        "pat@example.com",
		Subject:   "Hello",
		HTML:      "<p>Hi</p>",
		Tags:      map[string]string{"campaign_id": "c1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "abc-123", id)

	assert.Equal(t, "https://mail.example/emails", stub.lastReq.URL.String())
	assert.Equal(t, "Bearer key-123", stub.lastReq.Header.Get("Authorization"))

	var sent providerRequest
	require.NoError(t, json.Unmarshal(stub.payload, &sent))
	assert.Equal(t, "Dana <dana@firm.example>", sent.From)
	assert.Equal(t, []string{"pat@example.com"}, sent.To)
	require.Len(t, sent.Tags, 1)
	assert.Equal(t, "campaign_id", sent.Tags[0].Name)
}

func TestSendProviderRejection(t *testing.T) {
	stub := &stubHTTP{status: http.StatusUnprocessableEntity, body: `{"message":"invalid recipient"}`}
	c := newTestClient(stub)

	_, err := c.Send(context.Background(), SendRequest{To: "broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid recipient")
	assert.Contains(t, err.Error(), "422")
}

func TestSendMissingMessageID(t *testing.T) {
	stub := &stubHTTP{status: http.StatusOK, body: `{}`}
	c := newTestClient(stub)

	_, err := c.Send(context.Background(), SendRequest{To: "pat@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no message id")
}
