package services

import (
	"errors"
	"fmt"
	"sort"

	"github.com/example/stampcard/internal/models"
)

// BalanceField names the enrollment counter a card kind accumulates into.
type BalanceField int

const (
	FieldNone BalanceField = iota
	FieldStamps
	FieldPoints
)

func (f BalanceField) String() string {
	switch f {
	case FieldStamps:
		return "stamps"
	case FieldPoints:
		return "points"
	default:
		return "none"
	}
}

// BalanceFieldFor maps a card kind to the counter scans increment.
// Discount cards have no counter.
func BalanceFieldFor(kind models.CardKind) (BalanceField, error) {
	switch kind {
	case models.CardKindStamp:
		return FieldStamps, nil
	case models.CardKindPoints, models.CardKindTiered:
		return FieldPoints, nil
	case models.CardKindDiscount:
		return FieldNone, ErrKindNotScannable
	}
	return FieldNone, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// BalanceOf returns the counter value that applies to the card kind.
func BalanceOf(kind models.CardKind, e models.CustomerLoyaltyCard) int {
	field, _ := BalanceFieldFor(kind)
	switch field {
	case FieldStamps:
		return e.Stamps
	case FieldPoints:
		return e.Points
	}
	return 0
}

// Goal returns the count at which the card pays out. For tiered cards this is
// the highest tier threshold; discount cards have none.
func Goal(card models.LoyaltyCard) int {
	rules := card.Rules.Data()
	switch card.Kind {
	case models.CardKindStamp:
		return rules.StampGoal
	case models.CardKindPoints:
		return rules.PointsGoal
	case models.CardKindTiered:
		top := 0
		for _, t := range rules.Tiers {
			if t.Threshold > top {
				top = t.Threshold
			}
		}
		return top
	}
	return 0
}

// redeemGoal is the amount a redemption consumes.
func redeemGoal(card models.LoyaltyCard) (int, error) {
	rules := card.Rules.Data()
	switch card.Kind {
	case models.CardKindStamp:
		if rules.StampGoal > 0 {
			return rules.StampGoal, nil
		}
	case models.CardKindPoints:
		if rules.PointsGoal > 0 {
			return rules.PointsGoal, nil
		}
	case models.CardKindTiered, models.CardKindDiscount:
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, card.Kind)
	}
	return 0, ErrNotRedeemable
}

// TierFor returns the name of the highest tier whose threshold points has reached.
func TierFor(tiers []models.Tier, points int) string {
	sorted := make([]models.Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Threshold < sorted[j].Threshold
	})

	label := ""
	for _, t := range sorted {
		if points < t.Threshold {
			break
		}
		label = t.Name
	}
	return label
}

// ValidateCardRules checks that the rules carry what the kind needs.
func ValidateCardRules(kind models.CardKind, rules models.CardRules) error {
	switch kind {
	case models.CardKindStamp:
		if rules.StampGoal < 1 {
			return errors.New("stamp cards need a stamp goal of at least 1")
		}
	case models.CardKindPoints:
		if rules.PointsGoal < 1 {
			return errors.New("points cards need a points goal of at least 1")
		}
	case models.CardKindTiered:
		if len(rules.Tiers) == 0 {
			return errors.New("tiered cards need at least one tier")
		}
		prev := -1
		for _, t := range rules.Tiers {
			if t.Name == "" {
				return errors.New("tier names must not be empty")
			}
			if t.Threshold <= prev {
				return errors.New("tier thresholds must be ascending")
			}
			prev = t.Threshold
		}
	case models.CardKindDiscount:
		if rules.DiscountPercent < 1 || rules.DiscountPercent > 100 {
			return errors.New("discount percent must be between 1 and 100")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return nil
}
