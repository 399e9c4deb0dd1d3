package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/Sdongmaker/emby-cdn-preheat/internal/cdn"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/db"
	dbmodels "github.com/Sdongmaker/emby-cdn-preheat/internal/db/models"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/models"
	"github.com/Sdongmaker/emby-cdn-preheat/internal/notify"
	"github.com/Sdongmaker/emby-cdn-preheat/pkg/logger"
)

func init() {
	logger.Init("error", "")
}

type fakeStore struct {
	requests   map[int64]*dbmodels.ReviewRequest
	approveErr error
	rejectErr  error
	approved   []int64
	rejected   []int64
}

func newFakeStore(ids ...int64) *fakeStore {
	s := &fakeStore{requests: make(map[int64]*dbmodels.ReviewRequest)}
	for _, id := range ids {
		req := dbmodels.NewReviewRequest(
			fmt.Sprintf("https://cdn.example.com/%d.mp4", id),
			fmt.Sprintf("Movie %d", id),
			models.MediaTypeMovie,
			"/media/m.mp4", "/mnt/m.mp4", nil)
		req.ID = id
		s.requests[id] = req
	}
	return s
}

func (s *fakeStore) GetByID(_ context.Context, id int64) (*dbmodels.ReviewRequest, error) {
	req, ok := s.requests[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return req, nil
}

func (s *fakeStore) Approve(_ context.Context, id int64, _ string) error {
	if s.approveErr != nil {
		return s.approveErr
	}
	if _, ok := s.requests[id]; !ok {
		return db.ErrNotFound
	}
	s.approved = append(s.approved, id)
	return nil
}

func (s *fakeStore) Reject(_ context.Context, id int64, _ string) error {
	if s.rejectErr != nil {
		return s.rejectErr
	}
	if _, ok := s.requests[id]; !ok {
		return db.ErrNotFound
	}
	s.rejected = append(s.rejected, id)
	return nil
}

type fakeEditChannel struct {
	edits []string
}

func (c *fakeEditChannel) Send(context.Context, string, string, []notify.Action) (notify.Ref, error) {
	return "x:1", nil
}

func (c *fakeEditChannel) Edit(_ context.Context, _ notify.Ref, text string) error {
	c.edits = append(c.edits, text)
	return nil
}

type fakeWarmer struct {
	calls  [][]string
	result *cdn.Result
	err    error
}

func (w *fakeWarmer) Warm(_ context.Context, urls []string) (*cdn.Result, error) {
	w.calls = append(w.calls, urls)
	if w.err != nil {
		return nil, w.err
	}
	return w.result, nil
}

func (w *fakeWarmer) TaskStatus(context.Context, string) (string, error) {
	return "done", nil
}

func decision(action models.ReviewAction, id int64) notify.Decision {
	return notify.Decision{
		ActionID: models.EncodeActionID(action, id),
		Actor:    "Ada (@ada)",
		Ref:      "100:5",
	}
}

func TestApproveTriggersWarm(t *testing.T) {
	store := newFakeStore(7)
	ch := &fakeEditChannel{}
	warmer := &fakeWarmer{result: &cdn.Result{Success: true, TaskID: "task-1"}}
	p := New(store, ch, warmer, nil)

	p.Handle(context.Background(), decision(models.ReviewActionApprove, 7))

	if len(store.approved) != 1 || store.approved[0] != 7 {
		t.Fatalf("approved = %v, want [7]", store.approved)
	}
	if len(warmer.calls) != 1 || warmer.calls[0][0] != "https://cdn.example.com/7.mp4" {
		t.Fatalf("warm calls = %v", warmer.calls)
	}
	if len(ch.edits) != 1 || !strings.Contains(ch.edits[0], "task-1") {
		t.Errorf("edits = %v, want task id in outcome", ch.edits)
	}
}

func TestWarmFailureDoesNotRevertApproval(t *testing.T) {
	store := newFakeStore(7)
	ch := &fakeEditChannel{}
	warmer := &fakeWarmer{err: errors.New("network down")}
	p := New(store, ch, warmer, nil)

	p.Handle(context.Background(), decision(models.ReviewActionApprove, 7))

	if len(store.approved) != 1 {
		t.Fatalf("approval did not stand: %v", store.approved)
	}
	if len(ch.edits) != 1 || !strings.Contains(ch.edits[0], "Approved") {
		t.Errorf("edits = %v, want approval reported despite warm failure", ch.edits)
	}
}

func TestProviderRejectionDoesNotRevertApproval(t *testing.T) {
	store := newFakeStore(7)
	ch := &fakeEditChannel{}
	warmer := &fakeWarmer{result: &cdn.Result{Success: false, Message: "quota exceeded"}}
	p := New(store, ch, warmer, nil)

	p.Handle(context.Background(), decision(models.ReviewActionApprove, 7))

	if len(store.approved) != 1 {
		t.Fatalf("approval did not stand: %v", store.approved)
	}
	if !strings.Contains(ch.edits[0], "quota exceeded") {
		t.Errorf("edit = %q, want provider message surfaced", ch.edits[0])
	}
}

func TestRejectSkipsWarm(t *testing.T) {
	store := newFakeStore(7)
	ch := &fakeEditChannel{}
	warmer := &fakeWarmer{result: &cdn.Result{Success: true}}
	p := New(store, ch, warmer, nil)

	p.Handle(context.Background(), decision(models.ReviewActionReject, 7))

	if len(store.rejected) != 1 {
		t.Fatalf("rejected = %v, want [7]", store.rejected)
	}
	if len(warmer.calls) != 0 {
		t.Errorf("warm called on reject: %v", warmer.calls)
	}
	if !strings.Contains(ch.edits[0], "Rejected by Ada (@ada)") {
		t.Errorf("edit = %q, want reject outcome", ch.edits[0])
	}
}

func TestConflictReportsStandingDecision(t *testing.T) {
	store := newFakeStore(7)
	store.approveErr = &db.ConflictError{Status: "rejected", ReviewedBy: "Bob"}
	ch := &fakeEditChannel{}
	warmer := &fakeWarmer{result: &cdn.Result{Success: true}}
	p := New(store, ch, warmer, nil)

	p.Handle(context.Background(), decision(models.ReviewActionApprove, 7))

	if len(warmer.calls) != 0 {
		t.Errorf("warm called despite conflict: %v", warmer.calls)
	}
	if len(ch.edits) != 1 || !strings.Contains(ch.edits[0], "already rejected by Bob") {
		t.Errorf("edits = %v, want standing decision reported", ch.edits)
	}
}

func TestUnknownRequestReported(t *testing.T) {
	store := newFakeStore()
	ch := &fakeEditChannel{}
	p := New(store, ch, nil, nil)

	p.Handle(context.Background(), decision(models.ReviewActionApprove, 99))

	if len(ch.edits) != 1 || !strings.Contains(ch.edits[0], "no longer exists") {
		t.Errorf("edits = %v, want unknown request reported", ch.edits)
	}
}

func TestMalformedActionIgnored(t *testing.T) {
	store := newFakeStore(7)
	ch := &fakeEditChannel{}
	p := New(store, ch, nil, nil)

	p.Handle(context.Background(), notify.Decision{ActionID: "explode_7", Ref: "100:5"})

	if len(store.approved)+len(store.rejected) != 0 {
		t.Error("malformed action mutated the ledger")
	}
	if len(ch.edits) != 0 {
		t.Errorf("edits = %v, want none", ch.edits)
	}
}

func TestNilWarmerApprovalStillLands(t *testing.T) {
	store := newFakeStore(7)
	ch := &fakeEditChannel{}
	p := New(store, ch, nil, nil)

	p.Handle(context.Background(), decision(models.ReviewActionApprove, 7))

	if len(store.approved) != 1 {
		t.Fatalf("approved = %v, want [7]", store.approved)
	}
	if !strings.Contains(ch.edits[0], "warming disabled") {
		t.Errorf("edit = %q, want disabled-warming note", ch.edits[0])
	}
}
