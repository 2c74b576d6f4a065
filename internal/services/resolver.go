package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/stampcard/internal/models"
	"github.com/example/stampcard/internal/repository"
)

// CardView is what the operator sees after a successful scan.
type CardView struct {
	CustomerLoyaltyCardID string          `json:"customer_loyalty_card_id"`
	CustomerName          string          `json:"customer_name"`
	CustomerEmail         string          `json:"customer_email"`
	CardID                uuid.UUID       `json:"card_id"`
	CardName              string          `json:"card_name"`
	Kind                  models.CardKind `json:"kind"`
	Balance               int             `json:"balance"`
	Goal                  int             `json:"goal"`
	Tier                  string          `json:"tier,omitempty"`
	RewardText            string          `json:"reward_text"`
	LastActivityAt        *time.Time      `json:"last_activity_at"`
}

// Resolver turns scanned text into a customer card view.
type Resolver struct {
	store repository.Store
}

// NewResolver constructs a Resolver.
func NewResolver(store repository.Store) *Resolver {
	return &Resolver{store: store}
}

// ParseScannedCode extracts the customer loyalty card identifier from the
// last path segment of an absolute URL. Segments are split on the escaped
// path, so an encoded slash stays inside the identifier.
func ParseScannedCode(text string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(text))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", ErrInvalidCode
	}

	segments := strings.Split(u.EscapedPath(), "/")
	id, err := url.PathUnescape(segments[len(segments)-1])
	if err != nil || id == "" {
		return "", ErrInvalidCode
	}
	return id, nil
}

// Resolve parses text and loads the matching card. A non-nil businessID hides
// cards owned by other businesses.
func (r *Resolver) Resolve(ctx context.Context, businessID uuid.UUID, text string) (*CardView, error) {
	id, err := ParseScannedCode(text)
	if err != nil {
		return nil, err
	}

	rec, err := r.store.FindCustomerCard(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &PersistenceError{Op: "resolve", Err: err}
	}

	if businessID != uuid.Nil && rec.Card.BusinessID != businessID {
		return nil, ErrNotFound
	}

	view := newCardView(rec)
	view.CustomerLoyaltyCardID = id
	return view, nil
}

func newCardView(rec *repository.CardRecord) *CardView {
	return &CardView{
		CustomerLoyaltyCardID: rec.Enrollment.ID.String(),
		CustomerName:          rec.Customer.Name,
		CustomerEmail:         rec.Customer.Email,
		CardID:                rec.Card.ID,
		CardName:              rec.Card.Name,
		Kind:                  rec.Card.Kind,
		Balance:               BalanceOf(rec.Card.Kind, rec.Enrollment),
		Goal:                  Goal(rec.Card),
		Tier:                  rec.Enrollment.Tier,
		RewardText:            rec.Card.Rules.Data().RewardText,
		LastActivityAt:        rec.Enrollment.LastActivityAt,
	}
}
