// Package models contains the data models and DTOs for the CDN preheat
// review service.
package models

import "time"

// MediaType classifies the media item carried by an Emby event.
type MediaType string

// Only movies and episodes enter the preheat pipeline.
const (
	MediaTypeMovie   MediaType = "Movie"
	MediaTypeEpisode MediaType = "Episode"
)

// IsPreheatable reports whether items of this type are candidates for cache
// warming.
func (m MediaType) IsPreheatable() bool {
	return m == MediaTypeMovie || m == MediaTypeEpisode
}

// ReviewStatus represents the lifecycle state of a review request.
type ReviewStatus string

// ReviewStatus constants. A request starts pending and transitions exactly
// once to approved or rejected.
const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

// ReviewAction is the decision a reviewer took on a request.
type ReviewAction string

// ReviewAction constants.
const (
	ReviewActionApprove ReviewAction = "approve"
	ReviewActionReject  ReviewAction = "reject"
)

// EmbyItem is the media item section of an Emby webhook payload.
type EmbyItem struct {
	Name              string `json:"Name"`
	ID                string `json:"Id"`
	Type              string `json:"Type"`
	Path              string `json:"Path"`
	ProductionYear    int    `json:"ProductionYear,omitempty"`
	SeriesName        string `json:"SeriesName,omitempty"`
	ParentIndexNumber int    `json:"ParentIndexNumber,omitempty"`
	IndexNumber       int    `json:"IndexNumber,omitempty"`
}

// EmbyWebhookPayload is the inbound Emby webhook request body.
type EmbyWebhookPayload struct {
	Event string   `json:"Event" binding:"required"`
	Item  EmbyItem `json:"Item"`
}

// MediaInfo builds the opaque attribute bag persisted alongside a review
// request.
func (i EmbyItem) MediaInfo() map[string]any {
	info := map[string]any{
		"item_id": i.ID,
	}
	if i.ProductionYear != 0 {
		info["production_year"] = i.ProductionYear
	}
	if i.SeriesName != "" {
		info["series_name"] = i.SeriesName
	}
	if i.ParentIndexNumber != 0 {
		info["season"] = i.ParentIndexNumber
	}
	if i.IndexNumber != 0 {
		info["episode"] = i.IndexNumber
	}
	return info
}

// WebhookResponse is returned to the event source after intake.
type WebhookResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is the standard error body for HTTP endpoints.
type ErrorResponse struct {
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
}
