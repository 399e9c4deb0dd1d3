// Package service implements the webhook intake pipeline: filter the Emby
// event, resolve its path to a CDN URL, record the review request and hand
// it to the notification dispatcher.
package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Sdongmaker/emby-cdn-preheat/internal/cdn"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/config"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/db"
	dbmodels "github.com/Sdongmaker/emby-cdn-preheat/internal/db/models"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/dispatcher"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/metrics"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/models"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/resolver"
	"github.com/Sdongmaker/emby-cdn-preheat/pkg/logger"
)

// Intake outcome labels returned to the webhook source.
const (
	IntakeIgnored       = "ignored"
	IntakeSkipped       = "skipped"
	IntakeAborted       = "aborted"
	IntakeUnresolved    = "unresolved"
	IntakeDuplicate     = "duplicate"
	IntakePendingReview = "pending_review"
	IntakeAutoApproved  = "auto_approved"
	IntakeRecorded      = "recorded"
)

// monitoredEvents are the Emby events that can introduce new media files.
var monitoredEvents = map[string]bool{
	"item.added":  true,
	"library.new": true,
}

// IntakeResult summarizes what happened to one webhook event.
type IntakeResult struct {
	Status    string `json:"status"`
	RequestID int64  `json:"request_id,omitempty"`
	EmbyPath  string `json:"emby_path,omitempty"`
	HostPath  string `json:"host_path,omitempty"`
	CDNURL    string `json:"cdn_url,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Ledger is the review store surface the intake pipeline needs.
type Ledger interface {
	Create(ctx context.Context, req *dbmodels.ReviewRequest) error
	Approve(ctx context.Context, id int64, reviewer string) error
}

// Enqueuer feeds the notification dispatcher.
type Enqueuer interface {
	Enqueue(entry dispatcher.Entry)
}

// EventMirror publishes created requests to the optional audit stream.
type EventMirror interface {
	PublishRequestCreated(ctx context.Context, req *dbmodels.ReviewRequest) error
}

// PreheatService turns Emby webhook events into review requests.
type PreheatService struct {
	resolver   *resolver.Resolver
	ledger     Ledger
	dispatcher Enqueuer
	warmer     cdn.Warmer
	mirror     EventMirror
	review     config.ReviewConfig
}

// NewPreheatService wires the intake pipeline. dispatcher, warmer and
// mirror may be nil when the corresponding feature is disabled.
func NewPreheatService(res *resolver.Resolver, ledger Ledger, disp Enqueuer, warmer cdn.Warmer, mirror EventMirror, review config.ReviewConfig) *PreheatService {
	return &PreheatService{
		resolver:   res,
		ledger:     ledger,
		dispatcher: disp,
		warmer:     warmer,
		mirror:     mirror,
		review:     review,
	}
}

// HandleNewItem processes one webhook delivery end to end.
func (s *PreheatService) HandleNewItem(ctx context.Context, payload *models.EmbyWebhookPayload) (*IntakeResult, error) {
	eventID := uuid.New()
	log := logger.Log.With(
		zap.String("eventId", eventID.String()),
		zap.String("event", payload.Event),
		zap.String("itemName", payload.Item.Name))

	metrics.WebhookEventsReceived.WithLabelValues(payload.Event).Inc()

	if !monitoredEvents[payload.Event] {
		metrics.WebhookEventsIgnored.WithLabelValues("event_type").Inc()
		log.Debug("Ignoring unmonitored event")
		return &IntakeResult{Status: IntakeIgnored, Message: "event not monitored"}, nil
	}

	mediaType := models.MediaType(payload.Item.Type)
	if !mediaType.IsPreheatable() {
		metrics.WebhookEventsIgnored.WithLabelValues("media_type").Inc()
		log.Debug("Ignoring non-preheatable item", zap.String("type", payload.Item.Type))
		return &IntakeResult{Status: IntakeIgnored, Message: "media type not preheatable"}, nil
	}

	if payload.Item.Path == "" {
		metrics.WebhookEventsIgnored.WithLabelValues("no_path").Inc()
		log.Debug("Ignoring item without a path")
		return &IntakeResult{Status: IntakeIgnored, Message: "item has no path"}, nil
	}

	res := s.resolver.Resolve(payload.Item.Path)
	metrics.PathResolutions.WithLabelValues(string(res.Status)).Inc()

	switch res.Status {
	case resolver.StatusSkipped:
		log.Info("Path blacklisted, skipping", zap.String("path", res.EmbyPath))
		return &IntakeResult{Status: IntakeSkipped, EmbyPath: res.EmbyPath}, nil

	case resolver.StatusAborted:
		log.Warn("Path resolution aborted",
			zap.String("path", res.EmbyPath),
			zap.String("warning", res.Warning))
		return &IntakeResult{
			Status:   IntakeAborted,
			EmbyPath: res.EmbyPath,
			Message:  res.Warning,
		}, nil
	}

	if res.Degraded {
		log.Warn("Container mapping had no rule, using path as-is",
			zap.String("path", res.EmbyPath))
	}

	req := dbmodels.NewReviewRequest(res.CDNURL, payload.Item.Name, mediaType,
		res.EmbyPath, res.HostPath, payload.Item.MediaInfo())

	if err := s.ledger.Create(ctx, req); err != nil {
		if db.IsDuplicateKey(err) {
			metrics.ReviewRequestsDuplicate.Inc()
			log.Info("Duplicate CDN URL, request already recorded",
				zap.String("cdnUrl", res.CDNURL))
			return &IntakeResult{
				Status:   IntakeDuplicate,
				EmbyPath: res.EmbyPath,
				HostPath: res.HostPath,
				CDNURL:   res.CDNURL,
			}, nil
		}
		return nil, fmt.Errorf("record review request: %w", err)
	}

	metrics.ReviewRequestsCreated.Inc()
	log.Info("Review request recorded",
		zap.Int64("requestId", req.ID),
		zap.String("status", string(res.Status)),
		zap.String("cdnUrl", res.CDNURL))

	if s.mirror != nil {
		if err := s.mirror.PublishRequestCreated(ctx, req); err != nil {
			log.Warn("Failed to mirror request.created event", zap.Error(err))
		}
	}

	result := &IntakeResult{
		RequestID: req.ID,
		EmbyPath:  res.EmbyPath,
		HostPath:  res.HostPath,
		CDNURL:    res.CDNURL,
	}

	// Unresolved rows are kept for the audit trail but can never be warmed,
	// so they bypass review entirely.
	if res.Status == resolver.StatusUnresolved {
		result.Status = IntakeUnresolved
		result.Message = "no CDN mapping matched the host path"
		return result, nil
	}

	switch {
	case s.review.Enabled:
		if s.dispatcher != nil {
			s.dispatcher.Enqueue(dispatcher.EntryFromRow(req))
		}
		result.Status = IntakePendingReview
	case s.review.AutoApproveIfDisabled:
		s.autoApprove(ctx, req, result)
	default:
		result.Status = IntakeRecorded
		result.Message = "review disabled, request recorded without warming"
	}

	return result, nil
}

// autoApprove closes the request immediately and warms it. Warm failures
// leave the approval standing, matching the reviewer-driven flow.
func (s *PreheatService) autoApprove(ctx context.Context, req *dbmodels.ReviewRequest, result *IntakeResult) {
	if err := s.ledger.Approve(ctx, req.ID, "auto"); err != nil {
		logger.Log.Error("Auto-approve failed, request stays pending",
			zap.Int64("requestId", req.ID),
			zap.Error(err))
		result.Status = IntakePendingReview
		result.Message = "auto-approve failed"
		return
	}

	metrics.ReviewDecisions.WithLabelValues(string(models.ReviewActionApprove)).Inc()
	result.Status = IntakeAutoApproved

	if s.warmer == nil {
		result.Message = "approved, warming disabled"
		return
	}

	warmRes, err := s.warmer.Warm(ctx, []string{req.URL()})
	switch {
	case err != nil:
		metrics.WarmRequests.WithLabelValues("error").Inc()
		logger.Log.Error("CDN warm submission failed, approval stands",
			zap.Int64("requestId", req.ID),
			zap.Error(err))
		result.Message = "approved, warm submission failed"
	case !warmRes.Success:
		metrics.WarmRequests.WithLabelValues("rejected").Inc()
		result.Message = fmt.Sprintf("approved, CDN rejected the warm: %s", warmRes.Message)
	default:
		metrics.WarmRequests.WithLabelValues("success").Inc()
		result.Message = fmt.Sprintf("approved and warming (task %s)", warmRes.TaskID)
	}
}
