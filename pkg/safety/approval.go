package safety

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erpflow/erpflow/pkg/errors"
	"github.com/erpflow/erpflow/pkg/metrics"
)

// Approval request statuses.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

// defaultTTL is how long a request stays open before lazy expiry.
const defaultTTL = 24 * time.Hour

// Vote records one approver's decision.
type Vote struct {
	By      string    `json:"by"`
	Comment string    `json:"comment,omitempty"`
	At      time.Time `json:"at"`
}

// Request is one approval request. Requests for tier-3+ operations must be
// approved by the required number of distinct non-requester approvers before
// expiry.
type Request struct {
	RequestID   string                 `json:"request_id"`
	Operation   string                 `json:"operation"`
	Tier        int                    `json:"tier"`
	RequestedBy string                 `json:"requested_by"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Approvals   []Vote                 `json:"approvals"`
	Rejections  []Vote                 `json:"rejections"`
	Status      string                 `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
	ExpiresAt   time.Time              `json:"expires_at"`
}

// Required returns how many approvals this request needs.
func (r *Request) Required() int {
	return RequiredApprovers(r.Tier)
}

// Remaining returns how many approvals are still outstanding.
func (r *Request) Remaining() int {
	n := r.Required() - len(r.Approvals)
	if n < 0 {
		return 0
	}
	return n
}

func (r *Request) terminal() bool {
	return r.Status != StatusPending
}

func (r *Request) clone() *Request {
	cp := *r
	cp.Approvals = append([]Vote(nil), r.Approvals...)
	cp.Rejections = append([]Vote(nil), r.Rejections...)
	return &cp
}

// ManagerConfig wires the approval manager.
type ManagerConfig struct {
	Classifier *Classifier
	Logger     *slog.Logger
	TTL        time.Duration
	Metrics    bool

	// Now is injectable for expiry tests.
	Now func() time.Time
}

// Manager owns the approval request store. All writes serialize behind one
// mutex; expiry is evaluated lazily on read.
type Manager struct {
	cfg      ManagerConfig
	mu       sync.Mutex
	requests map[string]*Request
}

// NewManager creates an approval manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Classifier == nil {
		cfg.Classifier = NewClassifier()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.TTL == 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		cfg:      cfg,
		requests: make(map[string]*Request),
	}
}

// RequestApproval opens a request for an operation. Tier-1 and tier-2
// operations do not need approval and are returned pre-approved.
func (m *Manager) RequestApproval(operation, requestedBy string, details map[string]interface{}) *Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.cfg.Now().UTC()
	tier := m.cfg.Classifier.Tier(operation)
	req := &Request{
		RequestID:   uuid.NewString(),
		Operation:   operation,
		Tier:        tier,
		RequestedBy: requestedBy,
		Details:     details,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.cfg.TTL),
	}
	if RequiredApprovers(tier) == 0 {
		req.Status = StatusApproved
	}
	m.requests[req.RequestID] = req

	m.cfg.Logger.Info("approval requested",
		slog.String("request_id", req.RequestID),
		slog.String("operation", operation),
		slog.Int("tier", tier),
		slog.String("requested_by", requestedBy))

	return req.clone()
}

// Approve records one approval vote. The requester cannot approve their own
// request, and each approver votes at most once. The request moves to
// approved when enough votes are in.
func (m *Manager) Approve(requestID, approvedBy, comment string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.pending(requestID)
	if err != nil {
		return nil, err
	}
	if approvedBy == req.RequestedBy {
		return nil, errors.Newf(errors.CodeSelfApproval, "cannot self-approve request %s", requestID)
	}
	for _, vote := range req.Approvals {
		if vote.By == approvedBy {
			return nil, errors.Newf(errors.CodeDuplicateVote, "user %s already approved request %s", approvedBy, requestID)
		}
	}

	req.Approvals = append(req.Approvals, Vote{
		By:      approvedBy,
		Comment: comment,
		At:      m.cfg.Now().UTC(),
	})
	if len(req.Approvals) >= req.Required() {
		req.Status = StatusApproved
		m.observe(StatusApproved)
	}

	m.cfg.Logger.Info("approval vote recorded",
		slog.String("request_id", requestID),
		slog.String("approved_by", approvedBy),
		slog.String("status", req.Status))

	return req.clone(), nil
}

// Reject closes the request with a rejection. A single rejection is
// terminal.
func (m *Manager) Reject(requestID, rejectedBy, reason string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.pending(requestID)
	if err != nil {
		return nil, err
	}

	req.Rejections = append(req.Rejections, Vote{
		By:      rejectedBy,
		Comment: reason,
		At:      m.cfg.Now().UTC(),
	})
	req.Status = StatusRejected
	m.observe(StatusRejected)

	m.cfg.Logger.Info("approval rejected",
		slog.String("request_id", requestID),
		slog.String("rejected_by", rejectedBy))

	return req.clone(), nil
}

// Cancel withdraws a pending request.
func (m *Manager) Cancel(requestID, cancelledBy string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.pending(requestID)
	if err != nil {
		return nil, err
	}

	req.Status = StatusCancelled
	m.observe(StatusCancelled)

	m.cfg.Logger.Info("approval cancelled",
		slog.String("request_id", requestID),
		slog.String("cancelled_by", cancelledBy))

	return req.clone(), nil
}

// StatusSummary is the read view of one request.
type StatusSummary struct {
	RequestID string    `json:"request_id"`
	Operation string    `json:"operation"`
	Tier      int       `json:"tier"`
	Status    string    `json:"status"`
	Approvals int       `json:"approvals"`
	Required  int       `json:"required"`
	Remaining int       `json:"remaining"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CheckApprovalStatus returns the current state of a request, applying lazy
// expiry first.
func (m *Manager) CheckApprovalStatus(requestID string) (*StatusSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[requestID]
	if !ok {
		return nil, errors.Newf(errors.CodeRequestNotFound, "approval request %s not found", requestID)
	}
	m.expireLocked(req)

	return &StatusSummary{
		RequestID: req.RequestID,
		Operation: req.Operation,
		Tier:      req.Tier,
		Status:    req.Status,
		Approvals: len(req.Approvals),
		Required:  req.Required(),
		Remaining: req.Remaining(),
		ExpiresAt: req.ExpiresAt,
	}, nil
}

// Get returns a copy of the request, applying lazy expiry first.
func (m *Manager) Get(requestID string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[requestID]
	if !ok {
		return nil, errors.Newf(errors.CodeRequestNotFound, "approval request %s not found", requestID)
	}
	m.expireLocked(req)
	return req.clone(), nil
}

// ListPendingApprovals returns pending requests ordered by creation time.
// Expired requests are flipped on the way through and not returned.
func (m *Manager) ListPendingApprovals() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Request
	for _, req := range m.requests {
		m.expireLocked(req)
		if req.Status == StatusPending {
			out = append(out, req.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].RequestID < out[j].RequestID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// pending fetches a request that must still be open, applying lazy expiry.
func (m *Manager) pending(requestID string) (*Request, error) {
	req, ok := m.requests[requestID]
	if !ok {
		return nil, errors.Newf(errors.CodeRequestNotFound, "approval request %s not found", requestID)
	}
	m.expireLocked(req)
	if req.terminal() {
		return nil, errors.Newf(errors.CodeRequestTerminal, "approval request %s is already %s", requestID, req.Status)
	}
	return req, nil
}

func (m *Manager) expireLocked(req *Request) {
	if req.Status == StatusPending && m.cfg.Now().UTC().After(req.ExpiresAt) {
		req.Status = StatusExpired
		m.observe(StatusExpired)
		m.cfg.Logger.Info("approval expired", slog.String("request_id", req.RequestID))
	}
}

func (m *Manager) observe(decision string) {
	if m.cfg.Metrics {
		metrics.ObserveApproval(decision)
	}
}
