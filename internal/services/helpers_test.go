package services

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/example/stampcard/internal/models"
	"github.com/example/stampcard/internal/repository"
)

type fixture struct {
	store    *repository.MemoryStore
	business models.Business
	customer models.Customer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	business := store.AddBusiness(models.Business{Name: "Corner Coffee", OwnerEmail: "owner@corner.test"})
	customer := store.AddCustomer(models.Customer{BusinessID: business.ID, Name: "Ann Lee", Email: "ann@example.test"})
	return &fixture{store: store, business: business, customer: customer}
}

func (f *fixture) card(t *testing.T, kind models.CardKind, rules models.CardRules) models.LoyaltyCard {
	t.Helper()
	return f.store.AddCard(models.LoyaltyCard{
		BusinessID: f.business.ID,
		Name:       string(kind) + " card",
		Kind:       kind,
		Rules:      datatypes.NewJSONType(rules),
		IsActive:   true,
	})
}

func (f *fixture) enroll(t *testing.T, card models.LoyaltyCard, stamps, points int) models.CustomerLoyaltyCard {
	t.Helper()
	return f.store.Enroll(models.CustomerLoyaltyCard{
		CustomerID:    f.customer.ID,
		LoyaltyCardID: card.ID,
		Stamps:        stamps,
		Points:        points,
	})
}

func (f *fixture) enrollment(t *testing.T, id uuid.UUID) models.CustomerLoyaltyCard {
	t.Helper()
	e, ok := f.store.Enrollment(id)
	if !ok {
		t.Fatalf("enrollment %s missing", id)
	}
	return e
}

func cardURL(id uuid.UUID) string {
	return "https://app.stampcard.test/scan/" + id.String()
}
