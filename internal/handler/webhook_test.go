package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Sdongmaker/emby-cdn-preheat/internal/config"
	dbmodels "github.com/Sdongmaker/emby-cdn-preheat/internal/db/models"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/models"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/resolver"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/service"
	"github.com/Sdongmaker/emby-cdn-preheat/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("error", "")
}

type stubLedger struct {
	createErr error
	created   int
}

func (l *stubLedger) Create(_ context.Context, req *dbmodels.ReviewRequest) error {
	if l.createErr != nil {
		return l.createErr
	}
	l.created++
	req.ID = int64(l.created)
	return nil
}

func (l *stubLedger) Approve(context.Context, int64, string) error { return nil }

func newTestRouter(ledger service.Ledger) *gin.Engine {
	res := resolver.New(
		config.MappingsConfig{
			Container: []config.MappingRule{{Source: "/media", Target: "/mnt"}},
			CDN:       []config.MappingRule{{Source: "/mnt", Target: "https://cdn.example.com"}},
		},
		nil,
		config.SmartMatchConfig{},
	)
	svc := service.NewPreheatService(res, ledger, nil, nil, nil,
		config.ReviewConfig{Enabled: true})

	router := gin.New()
	router.POST("/webhook/emby", NewWebhookHandler(svc).HandleEmbyWebhook)
	return router
}

func postJSON(t *testing.T, router *gin.Engine, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/emby", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleEmbyWebhookInvalidJSON(t *testing.T) {
	router := newTestRouter(&stubLedger{})

	w := postJSON(t, router, []byte("{not json"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var resp models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != "Bad Request" || resp.Path != "/webhook/emby" {
		t.Errorf("error body = %+v", resp)
	}
}

func TestHandleEmbyWebhookMissingEvent(t *testing.T) {
	router := newTestRouter(&stubLedger{})

	w := postJSON(t, router, []byte(`{"Item":{"Name":"X","Type":"Movie","Path":"/media/x.mp4"}}`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleEmbyWebhookAccepted(t *testing.T) {
	ledger := &stubLedger{}
	router := newTestRouter(ledger)

	payload := models.EmbyWebhookPayload{
		Event: "library.new",
		Item: models.EmbyItem{
			Name: "Inception",
			ID:   "item-1",
			Type: "Movie",
			Path: "/media/movies/inception.mp4",
		},
	}
	body, _ := json.Marshal(payload)

	w := postJSON(t, router, body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp models.WebhookResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != service.IntakePendingReview {
		t.Errorf("status = %q, want %q", resp.Status, service.IntakePendingReview)
	}
	if ledger.created != 1 {
		t.Errorf("created = %d, want 1", ledger.created)
	}
}

func TestHandleEmbyWebhookStorageFailureStillAcknowledged(t *testing.T) {
	router := newTestRouter(&stubLedger{createErr: errors.New("connection refused")})

	payload := models.EmbyWebhookPayload{
		Event: "library.new",
		Item: models.EmbyItem{
			Name: "Inception",
			Type: "Movie",
			Path: "/media/movies/inception.mp4",
		},
	}
	body, _ := json.Marshal(payload)

	w := postJSON(t, router, body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even on storage failure", w.Code)
	}

	var resp models.WebhookResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "error" {
		t.Errorf("status = %q, want error reported in body", resp.Status)
	}
}

func TestHandleEmbyWebhookIgnoredEvent(t *testing.T) {
	ledger := &stubLedger{}
	router := newTestRouter(ledger)

	payload := models.EmbyWebhookPayload{
		Event: "playback.start",
		Item:  models.EmbyItem{Name: "X", Type: "Movie", Path: "/media/x.mp4"},
	}
	body, _ := json.Marshal(payload)

	w := postJSON(t, router, body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp models.WebhookResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != service.IntakeIgnored {
		t.Errorf("status = %q, want %q", resp.Status, service.IntakeIgnored)
	}
	if ledger.created != 0 {
		t.Errorf("created = %d, want 0", ledger.created)
	}
}
