// Package cdn submits cache warm (preheat) requests to CDN providers.
package cdn

import "context"

// Result reports the outcome of one warm submission.
type Result struct {
	Success bool   `json:"success"`
	TaskID  string `json:"task_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// Warmer pushes URLs into a CDN's edge cache ahead of demand. Provider
// rejections are reported through Result; a non-nil error means the
// submission never reached the provider.
type Warmer interface {
	Warm(ctx context.Context, urls []string) (*Result, error)
	TaskStatus(ctx context.Context, taskID string) (string, error)
}
