// Package repository provides database operations for the review ledger.
package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sdongmaker/emby-cdn-preheat/internal/db"
	dbmodels "github.com/Sdongmaker/emby-cdn-preheat/internal/db/models"
	appmodels "github.com/Sdongmaker/emby-cdn-preheat/internal/models"
)

// StatusCounts summarizes the ledger by review status.
type StatusCounts struct {
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
	Total    int64 `json:"total"`
}

// ReviewRequestRepository defines operations on the review request ledger.
// Requests are never deleted; status moves from pending to a terminal state
// at most once.
type ReviewRequestRepository interface {
	// Create inserts a new pending request and fills its ID and
	// timestamps. A request with the same CDN URL already present yields
	// db.ErrDuplicateKey; the uniqueness constraint in the table is the
	// dedup mechanism, there is no pre-check.
	Create(ctx context.Context, req *dbmodels.ReviewRequest) error

	// SetNotificationRef records the delivered notification handle.
	SetNotificationRef(ctx context.Context, id int64, ref string) error

	// Approve transitions a pending request to approved. A request that
	// is not pending yields db.ErrConflict (as *db.ConflictError); an
	// unknown id yields db.ErrNotFound.
	Approve(ctx context.Context, id int64, reviewer string) error

	// Reject transitions a pending request to rejected, with the same
	// error contract as Approve.
	Reject(ctx context.Context, id int64, reviewer string) error

	// GetByID retrieves a single request.
	GetByID(ctx context.Context, id int64) (*dbmodels.ReviewRequest, error)

	// ListPending returns pending requests, newest first.
	ListPending(ctx context.Context, limit int) ([]*dbmodels.ReviewRequest, error)

	// ListApproved returns approved requests, most recently reviewed
	// first.
	ListApproved(ctx context.Context, limit int) ([]*dbmodels.ReviewRequest, error)

	// ListPendingUnnotified returns pending requests with a CDN URL but
	// no notification ref, oldest first. Used by the startup
	// reconciliation sweep to re-enqueue work lost with the in-memory
	// queue.
	ListPendingUnnotified(ctx context.Context, limit int) ([]*dbmodels.ReviewRequest, error)

	// CountsByStatus returns ledger totals per status.
	CountsByStatus(ctx context.Context) (*StatusCounts, error)
}

type reviewRequestRepository struct {
	pool *pgxpool.Pool
}

// NewReviewRequestRepository creates a ReviewRequestRepository backed by the
// given pool.
func NewReviewRequestRepository(pool *pgxpool.Pool) ReviewRequestRepository {
	return &reviewRequestRepository{pool: pool}
}

const reviewRequestColumns = `
	id, cdn_url, media_name, media_type, emby_path, host_path, media_info,
	status, notification_ref, created_at, reviewed_at, reviewed_by, review_action
`

func (r *reviewRequestRepository) Create(ctx context.Context, req *dbmodels.ReviewRequest) error {
	query := `
		INSERT INTO review_requests
		(cdn_url, media_name, media_type, emby_path, host_path, media_info, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		req.CDNURL,
		req.MediaName,
		req.MediaType,
		req.EmbyPath,
		req.HostPath,
		req.MediaInfo,
		req.Status,
	).Scan(&req.ID, &req.CreatedAt)

	if err != nil {
		return db.WrapError(err, "create review request")
	}

	return nil
}

func (r *reviewRequestRepository) SetNotificationRef(ctx context.Context, id int64, ref string) error {
	query := `
		UPDATE review_requests
		SET notification_ref = $2
		WHERE id = $1
	`

	cmdTag, err := r.pool.Exec(ctx, query, id, ref)
	if err != nil {
		return db.WrapError(err, "set notification ref")
	}
	if cmdTag.RowsAffected() == 0 {
		return db.WrapError(pgx.ErrNoRows, "set notification ref")
	}

	return nil
}

func (r *reviewRequestRepository) Approve(ctx context.Context, id int64, reviewer string) error {
	return r.decide(ctx, id, appmodels.ReviewStatusApproved, appmodels.ReviewActionApprove, reviewer)
}

func (r *reviewRequestRepository) Reject(ctx context.Context, id int64, reviewer string) error {
	return r.decide(ctx, id, appmodels.ReviewStatusRejected, appmodels.ReviewActionReject, reviewer)
}

// decide performs the pending-to-terminal transition as a single conditional
// update. Two concurrent decisions cannot both see a row update: only one
// matches status = 'pending'. The loser gets the standing decision back in a
// ConflictError.
func (r *reviewRequestRepository) decide(ctx context.Context, id int64, status appmodels.ReviewStatus, action appmodels.ReviewAction, reviewer string) error {
	query := `
		UPDATE review_requests
		SET status = $2,
		    reviewed_at = $3,
		    reviewed_by = $4,
		    review_action = $5
		WHERE id = $1 AND status = 'pending'
	`

	cmdTag, err := r.pool.Exec(ctx, query, id, status, time.Now(), reviewer, action)
	if err != nil {
		return db.WrapError(err, "decide review request")
	}

	if cmdTag.RowsAffected() == 0 {
		existing, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return getErr
		}
		return &db.ConflictError{
			Status:     string(existing.Status),
			ReviewedBy: existing.Reviewer(),
		}
	}

	return nil
}

func (r *reviewRequestRepository) GetByID(ctx context.Context, id int64) (*dbmodels.ReviewRequest, error) {
	query := `SELECT ` + reviewRequestColumns + ` FROM review_requests WHERE id = $1`

	req := &dbmodels.ReviewRequest{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&req.ID,
		&req.CDNURL,
		&req.MediaName,
		&req.MediaType,
		&req.EmbyPath,
		&req.HostPath,
		&req.MediaInfo,
		&req.Status,
		&req.NotificationRef,
		&req.CreatedAt,
		&req.ReviewedAt,
		&req.ReviewedBy,
		&req.ReviewAction,
	)
	if err != nil {
		return nil, db.WrapError(err, "get review request by id")
	}

	return req, nil
}

func (r *reviewRequestRepository) ListPending(ctx context.Context, limit int) ([]*dbmodels.ReviewRequest, error) {
	query := `
		SELECT ` + reviewRequestColumns + `
		FROM review_requests
		WHERE status = 'pending'
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, db.WrapError(err, "list pending requests")
	}
	defer rows.Close()

	return scanReviewRequests(rows)
}

func (r *reviewRequestRepository) ListApproved(ctx context.Context, limit int) ([]*dbmodels.ReviewRequest, error) {
	query := `
		SELECT ` + reviewRequestColumns + `
		FROM review_requests
		WHERE status = 'approved'
		ORDER BY reviewed_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, db.WrapError(err, "list approved requests")
	}
	defer rows.Close()

	return scanReviewRequests(rows)
}

func (r *reviewRequestRepository) ListPendingUnnotified(ctx context.Context, limit int) ([]*dbmodels.ReviewRequest, error) {
	query := `
		SELECT ` + reviewRequestColumns + `
		FROM review_requests
		WHERE status = 'pending'
		  AND notification_ref IS NULL
		  AND cdn_url IS NOT NULL
		ORDER BY created_at ASC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, db.WrapError(err, "list pending unnotified requests")
	}
	defer rows.Close()

	return scanReviewRequests(rows)
}

func (r *reviewRequestRepository) CountsByStatus(ctx context.Context) (*StatusCounts, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'approved'),
			COUNT(*) FILTER (WHERE status = 'rejected'),
			COUNT(*)
		FROM review_requests
	`

	counts := &StatusCounts{}
	err := r.pool.QueryRow(ctx, query).Scan(
		&counts.Pending,
		&counts.Approved,
		&counts.Rejected,
		&counts.Total,
	)
	if err != nil {
		return nil, db.WrapError(err, "count requests by status")
	}

	return counts, nil
}

func scanReviewRequests(rows pgx.Rows) ([]*dbmodels.ReviewRequest, error) {
	var requests []*dbmodels.ReviewRequest

	for rows.Next() {
		req := &dbmodels.ReviewRequest{}
		err := rows.Scan(
			&req.ID,
			&req.CDNURL,
			&req.MediaName,
			&req.MediaType,
			&req.EmbyPath,
			&req.HostPath,
			&req.MediaInfo,
			&req.Status,
			&req.NotificationRef,
			&req.CreatedAt,
			&req.ReviewedAt,
			&req.ReviewedBy,
			&req.ReviewAction,
		)
		if err != nil {
			return nil, db.WrapError(err, "scan review request")
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, db.WrapError(err, "iterate review requests")
	}

	return requests, nil
}
