// Package dispatcher batches review requests into rate-limited review
// channel messages. Requests accumulate in an in-memory FIFO and are
// flushed either when the batch grows large enough or when the oldest
// queued request has waited long enough.
package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Sdongmaker/emby-cdn-preheat/internal/config"
	dbmodels "github.com/Sdongmaker/emby-cdn-preheat/internal/db/models"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/metrics"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/models"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/notify"
	"github.com/Sdongmaker/emby-cdn-preheat/pkg/logger"
)

const defaultTick = 5 * time.Second

// Entry is one review request queued for notification.
type Entry struct {
	ID        int64
	MediaName string
	MediaType models.MediaType
	CDNURL    string
	EmbyPath  string
	HostPath  string
	Info      map[string]any
}

// RefStore records which notification message carries a request.
type RefStore interface {
	SetNotificationRef(ctx context.Context, id int64, ref string) error
}

// PendingLister supplies requests that never reached the review channel.
type PendingLister interface {
	ListPendingUnnotified(ctx context.Context, limit int) ([]*dbmodels.ReviewRequest, error)
}

// reconcileLimit caps how many stranded requests are re-queued at startup.
const reconcileLimit = 200

// Dispatcher batches queued entries into review channel messages.
type Dispatcher struct {
	channel notify.Channel
	store   RefStore
	targets []string

	flushInterval      time.Duration
	maxBatchSize       int
	maxItemsPerMessage int
	sendDelay          time.Duration
	tick               time.Duration

	mu        sync.Mutex
	queue     []Entry
	lastFlush time.Time
}

// New builds a dispatcher over the given channel and targets.
func New(channel notify.Channel, store RefStore, targets []string, cfg *config.BatchConfig) *Dispatcher {
	return &Dispatcher{
		channel:            channel,
		store:              store,
		targets:            targets,
		flushInterval:      cfg.FlushInterval,
		maxBatchSize:       cfg.MaxBatchSize,
		maxItemsPerMessage: cfg.MaxItemsPerMessage,
		sendDelay:          cfg.SendDelay,
		tick:               defaultTick,
		lastFlush:          time.Now(),
	}
}

// Enqueue adds one request to the pending batch.
func (d *Dispatcher) Enqueue(entry Entry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, entry)
	logger.Log.Debug("Review request queued for notification",
		zap.Int64("requestId", entry.ID),
		zap.Int("queueSize", len(d.queue)))
}

// QueueSize reports the number of queued entries.
func (d *Dispatcher) QueueSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Run drives the flush loop until the context is cancelled. Entries still
// queued at shutdown are not drained; their requests stay pending in the
// ledger and Reconcile picks them up on the next start.
func (d *Dispatcher) Run(ctx context.Context) {
	logger.Log.Info("Notification dispatcher started",
		zap.Duration("flushInterval", d.flushInterval),
		zap.Int("maxBatchSize", d.maxBatchSize))

	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("Notification dispatcher stopped",
				zap.Int("undelivered", d.QueueSize()))
			return
		case <-ticker.C:
			d.maybeFlush(ctx)
		}
	}
}

// maybeFlush applies the two flush triggers: batch size reached, or the
// flush interval elapsed with a non-empty queue.
func (d *Dispatcher) maybeFlush(ctx context.Context) {
	d.mu.Lock()
	size := len(d.queue)
	elapsed := time.Since(d.lastFlush)
	d.mu.Unlock()

	switch {
	case size >= d.maxBatchSize:
		d.flush(ctx, "size")
	case size > 0 && elapsed >= d.flushInterval:
		d.flush(ctx, "interval")
	}
}

// flush drains up to maxBatchSize entries in arrival order and sends them
// as one or more messages, each carrying at most maxItemsPerMessage
// requests. Anything beyond maxBatchSize stays queued for the next tick.
func (d *Dispatcher) flush(ctx context.Context, trigger string) {
	d.mu.Lock()
	n := len(d.queue)
	if n > d.maxBatchSize {
		n = d.maxBatchSize
	}
	batch := d.queue[:n:n]
	d.queue = append([]Entry(nil), d.queue[n:]...)
	d.lastFlush = time.Now()
	d.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	metrics.BatchFlushes.WithLabelValues(trigger).Inc()
	logger.Log.Info("Flushing notification batch",
		zap.String("trigger", trigger),
		zap.Int("size", len(batch)))

	for start := 0; start < len(batch); start += d.maxItemsPerMessage {
		end := start + d.maxItemsPerMessage
		if end > len(batch) {
			end = len(batch)
		}

		if start > 0 && d.sendDelay > 0 {
			select {
			case <-time.After(d.sendDelay):
			case <-ctx.Done():
			}
		}

		d.sendGroup(ctx, batch[start:end])
	}
}

// sendGroup fans one message out to every target. Delivery is best effort:
// per-target failures are logged and skipped. The first successful send's
// ref is recorded against every request in the group so that decisions can
// edit the message that carried them.
func (d *Dispatcher) sendGroup(ctx context.Context, group []Entry) {
	text := formatMessage(group)
	actions := buildActions(group)

	var recordedRef notify.Ref
	for _, target := range d.targets {
		ref, err := d.channel.Send(ctx, target, text, actions)
		if err != nil {
			metrics.NotificationFailures.Inc()
			logger.Log.Error("Failed to send review notification",
				zap.String("target", target),
				zap.Error(err))
			continue
		}
		metrics.NotificationsSent.Inc()
		if recordedRef == "" {
			recordedRef = ref
		}
	}

	if recordedRef == "" {
		logger.Log.Warn("No target accepted the notification, requests stay unnotified",
			zap.Int("requests", len(group)))
		return
	}

	for _, entry := range group {
		if err := d.store.SetNotificationRef(ctx, entry.ID, string(recordedRef)); err != nil {
			logger.Log.Error("Failed to record notification ref",
				zap.Int64("requestId", entry.ID),
				zap.Error(err))
		}
	}
}

// Reconcile re-queues pending requests that never got a notification,
// typically after a restart that lost the in-memory batch.
func (d *Dispatcher) Reconcile(ctx context.Context, lister PendingLister) error {
	rows, err := lister.ListPendingUnnotified(ctx, reconcileLimit)
	if err != nil {
		return fmt.Errorf("list unnotified requests: %w", err)
	}

	for _, row := range rows {
		d.Enqueue(EntryFromRow(row))
	}

	if len(rows) > 0 {
		logger.Log.Info("Re-queued unnotified review requests", zap.Int("count", len(rows)))
	}
	return nil
}

// EntryFromRow converts a ledger row into a queue entry.
func EntryFromRow(row *dbmodels.ReviewRequest) Entry {
	return Entry{
		ID:        row.ID,
		MediaName: row.MediaName,
		MediaType: row.MediaType,
		CDNURL:    row.URL(),
		EmbyPath:  row.EmbyPath,
		HostPath:  row.HostPath,
		Info:      row.MediaInfo,
	}
}

func formatMessage(group []Entry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🆕 <b>CDN preheat review</b> (%d item(s))\n\n", len(group))

	for i, e := range group {
		icon := "🎬"
		if e.MediaType == models.MediaTypeEpisode {
			icon = "📺"
		}
		fmt.Fprintf(&sb, "%d. %s <b>%s</b>\n", i+1, icon, e.MediaName)
		if series, ok := e.Info["series_name"].(string); ok && series != "" {
			fmt.Fprintf(&sb, "   📖 %s\n", series)
		}
		fmt.Fprintf(&sb, "   🆔 %d\n   🔗 %s\n", e.ID, e.CDNURL)
	}

	sb.WriteString("\nApprove to warm the CDN cache, reject to drop.")
	return sb.String()
}

// buildActions pairs an approve and a reject button per request, in queue
// order so the keyboard rows line up with the listing.
func buildActions(group []Entry) []notify.Action {
	actions := make([]notify.Action, 0, len(group)*2)
	for i, e := range group {
		actions = append(actions,
			notify.Action{
				Label: fmt.Sprintf("✅ Approve #%d", i+1),
				ID:    models.EncodeActionID(models.ReviewActionApprove, e.ID),
			},
			notify.Action{
				Label: fmt.Sprintf("❌ Reject #%d", i+1),
				ID:    models.EncodeActionID(models.ReviewActionReject, e.ID),
			},
		)
	}
	return actions
}
