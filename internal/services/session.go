package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
)

// SessionState is the stage of a ScanSession.
type SessionState int

const (
	StateIdle SessionState = iota
	StateScanning
	StateResolved
	StateCommitting
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateResolved:
		return "resolved"
	case StateCommitting:
		return "committing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Decoder yields at most one decoded code. Decode blocks until a code is
// read or ctx is done. Close releases the camera or reader.
type Decoder interface {
	Decode(ctx context.Context) (string, error)
	Close() error
}

// DecoderFactory opens a fresh decoder for one scan.
type DecoderFactory func() (Decoder, error)

// CardResolver is the lookup side of the scan flow.
type CardResolver interface {
	Resolve(ctx context.Context, businessID uuid.UUID, text string) (*CardView, error)
}

// BalanceCommitter is the write side of the scan flow.
type BalanceCommitter interface {
	Commit(ctx context.Context, req CommitRequest) (*Balance, error)
}

// ScanSession drives one operator through scan, review, and commit:
//
//	Idle -> Scanning -> Resolved -> Committing -> Idle
//
// Cancel returns Scanning and Resolved to Idle. A failed commit returns to
// Resolved so the operator can retry; the retry reuses the idempotency key so
// an ambiguous failure is never applied twice.
type ScanSession struct {
	mu sync.Mutex

	businessID  uuid.UUID
	operator    string
	openDecoder DecoderFactory
	resolver    CardResolver
	committer   BalanceCommitter
	newKey      func() string

	state      SessionState
	scanSeq    int
	cancelScan context.CancelFunc
	view       *CardView
	quantity   int
	commitKey  string
	banner     string
}

// NewScanSession constructs an idle session bound to one business.
func NewScanSession(businessID uuid.UUID, operator string, openDecoder DecoderFactory, resolver CardResolver, committer BalanceCommitter) *ScanSession {
	return &ScanSession{
		businessID:  businessID,
		operator:    operator,
		openDecoder: openDecoder,
		resolver:    resolver,
		committer:   committer,
		newKey:      uuid.NewString,
	}
}

// Scan opens the decoder, waits for one code and resolves it. The decoder is
// closed before Scan returns, whatever the outcome. The session reports
// Scanning while the decoder opens, so Cancel can abort a slow open.
func (s *ScanSession) Scan(ctx context.Context) (*CardView, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: scan while %s", ErrSessionBusy, state)
	}
	scanCtx, cancel := context.WithCancel(ctx)
	s.state = StateScanning
	s.scanSeq++
	seq := s.scanSeq
	s.cancelScan = cancel
	s.banner = ""
	s.mu.Unlock()
	defer cancel()

	dec, err := s.openDecoder()
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state == StateScanning && s.scanSeq == seq {
			s.cancelScan = nil
			s.state = StateIdle
		}
		return nil, fmt.Errorf("open decoder: %w", err)
	}

	text, err := decodeOnce(scanCtx, dec)
	var view *CardView
	if err == nil {
		view, err = s.resolver.Resolve(scanCtx, s.businessID, text)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateScanning || s.scanSeq != seq {
		return nil, ErrScanCancelled
	}
	s.cancelScan = nil
	if err != nil {
		s.state = StateIdle
		return nil, err
	}

	s.state = StateResolved
	s.view = view
	s.quantity = 1
	s.commitKey = s.newKey()
	return view, nil
}

// Cancel abandons a scan or a resolved card. It reports false when there was
// nothing to cancel or a commit is in flight.
func (s *ScanSession) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateScanning:
		if s.cancelScan != nil {
			s.cancelScan()
			s.cancelScan = nil
		}
		s.reset()
		return true
	case StateResolved:
		s.reset()
		return true
	}
	return false
}

// SetQuantity sets the amount to commit, clamped to at least 1.
func (s *ScanSession) SetQuantity(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setQuantityLocked(n)
}

// Increment raises the quantity by one.
func (s *ScanSession) Increment() error {
	return s.adjust(1)
}

// Decrement lowers the quantity by one, never below 1.
func (s *ScanSession) Decrement() error {
	return s.adjust(-1)
}

func (s *ScanSession) adjust(delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setQuantityLocked(s.quantity + delta)
}

func (s *ScanSession) setQuantityLocked(n int) error {
	if s.state != StateResolved {
		return fmt.Errorf("%w: set quantity while %s", ErrSessionBusy, s.state)
	}
	if n < 1 {
		n = 1
	}
	s.quantity = n
	return nil
}

// Commit applies the chosen quantity to the resolved card.
func (s *ScanSession) Commit(ctx context.Context) (*Balance, error) {
	s.mu.Lock()
	if s.state != StateResolved {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: commit while %s", ErrSessionBusy, state)
	}
	s.state = StateCommitting
	req := CommitRequest{
		BusinessID:            s.businessID,
		CustomerLoyaltyCardID: s.view.CustomerLoyaltyCardID,
		Quantity:              s.quantity,
		IdempotencyKey:        s.commitKey,
		Operator:              s.operator,
		Source:                "scanner",
	}
	name := s.view.CustomerName
	s.mu.Unlock()

	bal, err := s.committer.Commit(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateResolved
		log.Printf("[Scan] commit failed for %s: %v", req.CustomerLoyaltyCardID, err)
		return nil, err
	}

	s.reset()
	s.banner = fmt.Sprintf("Added %d %s for %s", req.Quantity, fieldName(bal.Kind), name)
	return bal, nil
}

// State returns the current stage.
func (s *ScanSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View returns the resolved card, or nil outside Resolved and Committing.
func (s *ScanSession) View() *CardView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Quantity returns the amount the next commit will add.
func (s *ScanSession) Quantity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quantity
}

// Banner returns the success message of the last commit. It is cleared by
// the next scan.
func (s *ScanSession) Banner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.banner
}

func (s *ScanSession) reset() {
	s.state = StateIdle
	s.view = nil
	s.quantity = 0
	s.commitKey = ""
}

func decodeOnce(ctx context.Context, dec Decoder) (string, error) {
	defer func() {
		if err := dec.Close(); err != nil {
			log.Printf("[Scan] decoder close: %v", err)
		}
	}()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return dec.Decode(ctx)
}
