package data

import (
	"context"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kingshare/transfer-backend/internal/transfer/biz"
)

const lockShards = 64

type memTransfer struct {
	t      *biz.Transfer
	events []*biz.DownloadEvent
}

// MemoryStore is an in-process implementation of the transfer, approval
// and download repositories. Map membership is guarded by mu; the mutable
// fields of each transfer are guarded by the shard lock of its id, so
// contention stays local to one transfer.
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[string]*memTransfer
	byToken    map[string]*memTransfer
	tokensSeen map[string]struct{}

	shards [lockShards]sync.Mutex

	amu       sync.Mutex
	approvals map[string]*biz.ApprovalRequest
	byPair    map[string]*biz.ApprovalRequest
}

var (
	_ biz.TransferRepo = (*MemoryStore)(nil)
	_ biz.ApprovalRepo = (*MemoryStore)(nil)
	_ biz.DownloadRepo = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]*memTransfer),
		byToken:    make(map[string]*memTransfer),
		tokensSeen: make(map[string]struct{}),
		approvals:  make(map[string]*biz.ApprovalRequest),
		byPair:     make(map[string]*biz.ApprovalRequest),
	}
}

func (s *MemoryStore) shard(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.shards[h.Sum32()%lockShards]
}

func (s *MemoryStore) lookup(id string) (*memTransfer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	return rec, ok
}

// snapshot copies rec under its shard lock.
func (s *MemoryStore) snapshot(rec *memTransfer) *biz.Transfer {
	l := s.shard(rec.t.ID)
	l.Lock()
	defer l.Unlock()
	return cloneTransfer(rec.t)
}

func (s *MemoryStore) Create(_ context.Context, t *biz.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.tokensSeen[t.ShareToken]; taken {
		return biz.ErrDuplicateToken
	}
	rec := &memTransfer{t: cloneTransfer(t)}
	s.byID[t.ID] = rec
	s.byToken[t.ShareToken] = rec
	s.tokensSeen[t.ShareToken] = struct{}{}
	return nil
}

func (s *MemoryStore) TokenExists(_ context.Context, token string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tokensSeen[token]
	return ok, nil
}

func (s *MemoryStore) GetByToken(_ context.Context, token string) (*biz.Transfer, error) {
	s.mu.RLock()
	rec, ok := s.byToken[token]
	s.mu.RUnlock()
	if !ok {
		return nil, biz.ErrNotFound
	}
	return s.snapshot(rec), nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*biz.Transfer, error) {
	rec, ok := s.lookup(id)
	if !ok {
		return nil, biz.ErrNotFound
	}
	return s.snapshot(rec), nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, userID string) ([]*biz.Transfer, error) {
	s.mu.RLock()
	recs := make([]*memTransfer, 0)
	for _, rec := range s.byID {
		if rec.t.UserID == userID {
			recs = append(recs, rec)
		}
	}
	s.mu.RUnlock()

	list := make([]*biz.Transfer, 0, len(recs))
	for _, rec := range recs {
		list = append(list, s.snapshot(rec))
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

func (s *MemoryStore) Revoke(_ context.Context, id string, at time.Time) error {
	rec, ok := s.lookup(id)
	if !ok {
		return biz.ErrNotFound
	}
	l := s.shard(id)
	l.Lock()
	defer l.Unlock()
	if rec.t.Status != biz.StatusRevoked {
		rec.t.Status = biz.StatusRevoked
		rec.t.UpdatedAt = at
	}
	return nil
}

func (s *MemoryStore) MarkExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.RLock()
	recs := make([]*memTransfer, 0, len(s.byID))
	for _, rec := range s.byID {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	var n int64
	for _, rec := range recs {
		l := s.shard(rec.t.ID)
		l.Lock()
		if rec.t.Status == biz.StatusActive && now.After(rec.t.ExpirationAt) {
			rec.t.Status = biz.StatusExpired
			rec.t.UpdatedAt = now
			n++
		}
		l.Unlock()
	}
	return n, nil
}

func (s *MemoryStore) IncrementDownload(_ context.Context, transferID string, event *biz.DownloadEvent) (int, error) {
	rec, ok := s.lookup(transferID)
	if !ok {
		return 0, biz.ErrNotFound
	}

	l := s.shard(transferID)
	l.Lock()
	defer l.Unlock()

	t := rec.t
	if t.Status == biz.StatusRevoked {
		return 0, biz.ErrRevoked
	}
	if t.DownloadLimit != nil && t.DownloadCount >= *t.DownloadLimit {
		return 0, biz.ErrLimitReached
	}
	t.DownloadCount++
	t.UpdatedAt = event.DownloadedAt

	e := *event
	rec.events = append(rec.events, &e)
	return t.DownloadCount, nil
}

func (s *MemoryStore) DownloadSummary(_ context.Context, transferID string) (*biz.DownloadSummary, error) {
	rec, ok := s.lookup(transferID)
	if !ok {
		return &biz.DownloadSummary{}, nil
	}

	l := s.shard(transferID)
	l.Lock()
	defer l.Unlock()

	summary := &biz.DownloadSummary{TotalDownloads: int64(len(rec.events))}
	ips := make(map[string]struct{})
	for _, e := range rec.events {
		if e.IPAddress != "" {
			ips[e.IPAddress] = struct{}{}
		}
		if summary.LastDownload == nil || e.DownloadedAt.After(*summary.LastDownload) {
			at := e.DownloadedAt
			summary.LastDownload = &at
		}
	}
	summary.UniqueDownloaders = int64(len(ips))
	return summary, nil
}

func (s *MemoryStore) ListDownloadEvents(_ context.Context, transferID string, limit int) ([]*biz.DownloadEvent, error) {
	rec, ok := s.lookup(transferID)
	if !ok {
		return []*biz.DownloadEvent{}, nil
	}

	l := s.shard(transferID)
	l.Lock()
	events := make([]*biz.DownloadEvent, 0, len(rec.events))
	for _, e := range rec.events {
		c := *e
		events = append(events, &c)
	}
	l.Unlock()

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].DownloadedAt.After(events[j].DownloadedAt)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func pairKey(transferID, email string) string {
	return transferID + "\x00" + strings.ToLower(email)
}

func (s *MemoryStore) CreateApproval(_ context.Context, req *biz.ApprovalRequest) (*biz.ApprovalRequest, bool, error) {
	s.amu.Lock()
	defer s.amu.Unlock()

	key := pairKey(req.TransferID, req.RequesterEmail)
	if existing, ok := s.byPair[key]; ok {
		return cloneApproval(existing), false, nil
	}
	stored := cloneApproval(req)
	s.approvals[stored.ID] = stored
	s.byPair[key] = stored
	return cloneApproval(stored), true, nil
}

func (s *MemoryStore) GetApproval(_ context.Context, id string) (*biz.ApprovalRequest, error) {
	s.amu.Lock()
	defer s.amu.Unlock()

	req, ok := s.approvals[id]
	if !ok {
		return nil, biz.ErrApprovalNotFound
	}
	return cloneApproval(req), nil
}

func (s *MemoryStore) FindApproval(_ context.Context, transferID, email string) (*biz.ApprovalRequest, error) {
	s.amu.Lock()
	defer s.amu.Unlock()

	req, ok := s.byPair[pairKey(transferID, email)]
	if !ok {
		return nil, biz.ErrApprovalNotFound
	}
	return cloneApproval(req), nil
}

func (s *MemoryStore) DecideApproval(_ context.Context, id string, outcome biz.ApprovalStatus, message string, at time.Time) (bool, error) {
	s.amu.Lock()
	defer s.amu.Unlock()

	req, ok := s.approvals[id]
	if !ok {
		return false, biz.ErrApprovalNotFound
	}
	if req.Status != biz.ApprovalPending {
		return false, nil
	}
	req.Status = outcome
	req.ResponseMessage = message
	req.DecidedAt = &at
	return true, nil
}

func (s *MemoryStore) ListPendingApprovals(_ context.Context, ownerID string) ([]*biz.ApprovalRequest, error) {
	s.amu.Lock()
	pending := make([]*biz.ApprovalRequest, 0)
	for _, req := range s.approvals {
		if req.Status == biz.ApprovalPending {
			pending = append(pending, cloneApproval(req))
		}
	}
	s.amu.Unlock()

	list := pending[:0]
	for _, req := range pending {
		if ownerID != "" {
			rec, ok := s.lookup(req.TransferID)
			if !ok || rec.t.UserID != ownerID {
				continue
			}
		}
		list = append(list, req)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list, nil
}

func cloneTransfer(t *biz.Transfer) *biz.Transfer {
	c := *t
	if t.DownloadLimit != nil {
		limit := *t.DownloadLimit
		c.DownloadLimit = &limit
	}
	c.Files = append([]biz.TransferFile(nil), t.Files...)
	return &c
}

func cloneApproval(r *biz.ApprovalRequest) *biz.ApprovalRequest {
	c := *r
	if r.DecidedAt != nil {
		at := *r.DecidedAt
		c.DecidedAt = &at
	}
	return &c
}
