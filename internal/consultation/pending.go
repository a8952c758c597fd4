package consultation

import (
	"sync"
	"time"
)

// DefaultPendingTTL is how long a sent request waits for a faculty response
// before it is forgotten.
const DefaultPendingTTL = 24 * time.Hour

// PendingRequest is a request that has been sent but not yet answered or
// cancelled.
type PendingRequest struct {
	ConsultationID int
	FacultyID      int
	StudentID      int
	StudentName    string
	CourseCode     string
	SentAt         time.Time
}

// Pending tracks outstanding requests so a faculty response, which carries
// only the consultation id, can be routed back to the student.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Pending struct {
	mu    sync.Mutex
	items map[int]PendingRequest
	ttl   time.Duration
	now   func() time.Time
}

// NewPending creates a tracker. ttl <= 0 uses DefaultPendingTTL.
func NewPending(ttl time.Duration) *Pending {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	return &Pending{
		items: make(map[int]PendingRequest),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Add records a sent request, replacing any entry with the same id.
func (p *Pending) Add(req PendingRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.expireLocked()
	if req.SentAt.IsZero() {
		req.SentAt = p.now()
	}
	p.items[req.ConsultationID] = req
}

// Lookup returns the request without removing it.
func (p *Pending) Lookup(consultationID int) (PendingRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	req, ok := p.items[consultationID]
	if ok && p.expired(req) {
		delete(p.items, consultationID)
		return PendingRequest{}, false
	}
	return req, ok
}

// Resolve removes and returns the request.
func (p *Pending) Resolve(consultationID int) (PendingRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	req, ok := p.items[consultationID]
	if !ok {
		return PendingRequest{}, false
	}
	delete(p.items, consultationID)
	if p.expired(req) {
		return PendingRequest{}, false
	}
	return req, true
}

// Len returns the number of tracked requests, expired ones included until
// the next Add.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

func (p *Pending) expired(req PendingRequest) bool {
	return p.now().Sub(req.SentAt) > p.ttl
}

func (p *Pending) expireLocked() {
	for id, req := range p.items {
		if p.expired(req) {
			delete(p.items, id)
		}
	}
}
