package web

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekdata/seekbot/internal/config"
)

type captureSink struct {
	payloads [][]byte
	err      error
}

func (s *captureSink) HandleUpdate(_ context.Context, payload []byte) error {
	if s.err != nil {
		return s.err
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.payloads = append(s.payloads, cp)
	return nil
}

func TestLiveness(t *testing.T) {
	srv := NewServer(config.ServerConfig{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "running")
}

func TestWebhook_ForwardsPayload(t *testing.T) {
	sink := &captureSink{}
	srv := NewServer(config.ServerConfig{}, sink)

	body := `{"update_id":42,"message":{"text":"/search acme"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sink.payloads, 1)
	assert.Equal(t, body, string(sink.payloads[0]))
}

func TestWebhook_EmptyBodyRejected(t *testing.T) {
	sink := &captureSink{}
	srv := NewServer(config.ServerConfig{}, sink)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, sink.payloads)
}

func TestWebhook_OversizedBodyRejected(t *testing.T) {
	sink := &captureSink{}
	srv := NewServer(config.ServerConfig{}, sink)

	big := bytes.Repeat([]byte("x"), maxWebhookBody+1)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(big))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, sink.payloads)
}

func TestWebhook_SinkErrorYieldsBadRequest(t *testing.T) {
	sink := &captureSink{err: errors.New("not an update")}
	srv := NewServer(config.ServerConfig{}, sink)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_NotMountedWithoutSink(t *testing.T) {
	srv := NewServer(config.ServerConfig{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
