// Package models holds the persisted row types for the review ledger.
package models

import (
	"database/sql"
	"time"

	appmodels "github.com/Sdongmaker/emby-cdn-preheat/internal/models"
)

// ReviewRequest is the durable record gating a candidate CDN URL behind
// human approval. Rows are never deleted; the table doubles as an audit log.
// CDNURL is invalid for items whose host path could not be mapped to a URL;
// such rows are recorded but can never be warmed.
type ReviewRequest struct {
	ID              int64                `db:"id" json:"id"`
	CDNURL          sql.NullString       `db:"cdn_url" json:"cdn_url,omitempty"`
	MediaName       string               `db:"media_name" json:"media_name"`
	MediaType       appmodels.MediaType  `db:"media_type" json:"media_type"`
	EmbyPath        string               `db:"emby_path" json:"emby_path"`
	HostPath        string               `db:"host_path" json:"host_path"`
	MediaInfo       map[string]any       `db:"media_info" json:"media_info"`
	Status          appmodels.ReviewStatus `db:"status" json:"status"`
	NotificationRef sql.NullString       `db:"notification_ref" json:"notification_ref,omitempty"`
	CreatedAt       time.Time            `db:"created_at" json:"created_at"`
	ReviewedAt      sql.NullTime         `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy      sql.NullString       `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewAction    sql.NullString       `db:"review_action" json:"review_action,omitempty"`
}

// NewReviewRequest creates a pending ReviewRequest. cdnURL may be empty for
// unresolved items.
func NewReviewRequest(cdnURL, mediaName string, mediaType appmodels.MediaType, embyPath, hostPath string, mediaInfo map[string]any) *ReviewRequest {
	if mediaInfo == nil {
		mediaInfo = map[string]any{}
	}
	return &ReviewRequest{
		CDNURL:    nullString(cdnURL),
		MediaName: mediaName,
		MediaType: mediaType,
		EmbyPath:  embyPath,
		HostPath:  hostPath,
		MediaInfo: mediaInfo,
		Status:    appmodels.ReviewStatusPending,
		CreatedAt: time.Now(),
	}
}

// URL returns the CDN URL or the empty string for unresolved requests.
func (r *ReviewRequest) URL() string {
	if r.CDNURL.Valid {
		return r.CDNURL.String
	}
	return ""
}

// Reviewer returns who decided the request, or "unknown" while pending.
func (r *ReviewRequest) Reviewer() string {
	if r.ReviewedBy.Valid {
		return r.ReviewedBy.String
	}
	return "unknown"
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
