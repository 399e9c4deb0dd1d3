// Package approval applies reviewer decisions to the ledger and triggers
// CDN warming for approved requests.
package approval

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Sdongmaker/emby-cdn-preheat/internal/cdn"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/db"
	dbmodels "github.com/Sdongmaker/emby-cdn-preheat/internal/db/models"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/metrics"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/models"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/notify"
	"github.com/Sdongmaker/emby-cdn-preheat/pkg/logger"
)

// Store is the ledger surface the processor needs.
type Store interface {
	GetByID(ctx context.Context, id int64) (*dbmodels.ReviewRequest, error)
	Approve(ctx context.Context, id int64, reviewer string) error
	Reject(ctx context.Context, id int64, reviewer string) error
}

// EventMirror publishes decided requests to the optional audit stream.
type EventMirror interface {
	PublishRequestDecided(ctx context.Context, req *dbmodels.ReviewRequest) error
}

// Processor consumes reviewer decisions from a notification channel and
// closes out the matching ledger rows. A nil warmer means warming is
// disabled; approvals still land, they just stop at the ledger.
type Processor struct {
	store   Store
	channel notify.Channel
	warmer  cdn.Warmer
	mirror  EventMirror
}

// New builds a processor. warmer and mirror may be nil.
func New(store Store, channel notify.Channel, warmer cdn.Warmer, mirror EventMirror) *Processor {
	return &Processor{
		store:   store,
		channel: channel,
		warmer:  warmer,
		mirror:  mirror,
	}
}

// Run consumes decisions until the context is cancelled or the source
// closes its stream.
func (p *Processor) Run(ctx context.Context, source notify.DecisionSource) {
	logger.Log.Info("Approval processor started")

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("Approval processor stopped")
			return
		case decision, ok := <-source.Decisions():
			if !ok {
				logger.Log.Info("Decision stream closed, approval processor stopped")
				return
			}
			p.Handle(ctx, decision)
		}
	}
}

// Handle applies one decision. All failure modes are terminal per decision:
// the outcome (or the reason it could not be applied) is reported back
// through the channel and the processor moves on.
func (p *Processor) Handle(ctx context.Context, decision notify.Decision) {
	action, requestID, err := models.ParseActionID(decision.ActionID)
	if err != nil {
		logger.Log.Warn("Ignoring malformed decision",
			zap.String("actionId", decision.ActionID),
			zap.Error(err))
		return
	}

	logger.Log.Info("Processing review decision",
		zap.String("action", string(action)),
		zap.Int64("requestId", requestID),
		zap.String("actor", decision.Actor))

	switch action {
	case models.ReviewActionApprove:
		err = p.store.Approve(ctx, requestID, decision.Actor)
	case models.ReviewActionReject:
		err = p.store.Reject(ctx, requestID, decision.Actor)
	}

	if err != nil {
		p.reportFailure(ctx, decision, requestID, err)
		return
	}

	metrics.ReviewDecisions.WithLabelValues(string(action)).Inc()

	req, err := p.store.GetByID(ctx, requestID)
	if err != nil {
		logger.Log.Error("Decision applied but request reload failed",
			zap.Int64("requestId", requestID),
			zap.Error(err))
		return
	}

	if p.mirror != nil {
		if err := p.mirror.PublishRequestDecided(ctx, req); err != nil {
			logger.Log.Warn("Failed to mirror decision event",
				zap.Int64("requestId", requestID),
				zap.Error(err))
		}
	}

	var outcome string
	if action == models.ReviewActionApprove {
		outcome = p.warm(ctx, req)
	} else {
		outcome = fmt.Sprintf("❌ Rejected by %s", decision.Actor)
	}

	p.edit(ctx, decision.Ref, fmt.Sprintf("%s\n🎞 %s\n🆔 %d", outcome, req.MediaName, req.ID))
}

// warm pushes the approved URL to the CDN. The approval already stands in
// the ledger; a failed or disabled warm never reverts it.
func (p *Processor) warm(ctx context.Context, req *dbmodels.ReviewRequest) string {
	if p.warmer == nil {
		logger.Log.Info("CDN warming disabled, approval recorded only",
			zap.Int64("requestId", req.ID))
		return "✅ Approved (warming disabled)"
	}

	url := req.URL()
	if url == "" {
		return "✅ Approved (no CDN URL to warm)"
	}

	result, err := p.warmer.Warm(ctx, []string{url})
	if err != nil {
		metrics.WarmRequests.WithLabelValues("error").Inc()
		logger.Log.Error("CDN warm submission failed, approval stands",
			zap.Int64("requestId", req.ID),
			zap.Error(err))
		return "✅ Approved, but warm submission failed"
	}
	if !result.Success {
		metrics.WarmRequests.WithLabelValues("rejected").Inc()
		logger.Log.Warn("CDN rejected warm request, approval stands",
			zap.Int64("requestId", req.ID),
			zap.String("message", result.Message))
		return fmt.Sprintf("✅ Approved, but CDN rejected the warm: %s", result.Message)
	}

	metrics.WarmRequests.WithLabelValues("success").Inc()
	logger.Log.Info("CDN warm submitted",
		zap.Int64("requestId", req.ID),
		zap.String("taskId", result.TaskID))
	return fmt.Sprintf("✅ Approved and warming (task %s)", result.TaskID)
}

// reportFailure explains through the channel why a decision did not apply.
// The already-decided case is the interesting one: the first decision wins
// and later button presses see who beat them.
func (p *Processor) reportFailure(ctx context.Context, decision notify.Decision, requestID int64, err error) {
	var conflict *db.ConflictError
	switch {
	case errors.As(err, &conflict):
		metrics.ReviewConflicts.Inc()
		logger.Log.Info("Decision lost to an earlier one",
			zap.Int64("requestId", requestID),
			zap.String("standing", conflict.Status),
			zap.String("reviewedBy", conflict.ReviewedBy))
		p.edit(ctx, decision.Ref, fmt.Sprintf(
			"⚠️ Request %d was already %s by %s", requestID, conflict.Status, conflict.ReviewedBy))
	case db.IsNotFound(err):
		logger.Log.Warn("Decision for unknown request",
			zap.Int64("requestId", requestID))
		p.edit(ctx, decision.Ref, fmt.Sprintf("⚠️ Request %d no longer exists", requestID))
	default:
		logger.Log.Error("Failed to apply decision",
			zap.Int64("requestId", requestID),
			zap.Error(err))
	}
}

func (p *Processor) edit(ctx context.Context, ref notify.Ref, text string) {
	if ref == "" {
		return
	}
	if err := p.channel.Edit(ctx, ref, text); err != nil {
		logger.Log.Warn("Failed to update notification message", zap.Error(err))
	}
}
