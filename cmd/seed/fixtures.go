package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/example/stampcard/internal/models"
	"github.com/example/stampcard/internal/services"
	"github.com/example/stampcard/internal/utils"
)

type fixtures struct {
	Businesses []businessFixture `yaml:"businesses"`
}

type businessFixture struct {
	Name           string            `yaml:"name"`
	OwnerEmail     string            `yaml:"owner_email"`
	Password       string            `yaml:"password"`
	TelegramChatID string            `yaml:"telegram_chat_id"`
	Cards          []cardFixture     `yaml:"cards"`
	Customers      []customerFixture `yaml:"customers"`
}

type cardFixture struct {
	Name            string        `yaml:"name"`
	Kind            string        `yaml:"kind"`
	PrimaryColor    string        `yaml:"primary_color"`
	LogoURL         string        `yaml:"logo_url"`
	StampGoal       int           `yaml:"stamp_goal"`
	PointsGoal      int           `yaml:"points_goal"`
	DiscountPercent int           `yaml:"discount_percent"`
	RewardText      string        `yaml:"reward_text"`
	Tiers           []tierFixture `yaml:"tiers"`
}

type tierFixture struct {
	Name      string `yaml:"name"`
	Threshold int    `yaml:"threshold"`
	Reward    string `yaml:"reward"`
}

type customerFixture struct {
	Name  string              `yaml:"name"`
	Email string              `yaml:"email"`
	Phone string              `yaml:"phone"`
	Cards []enrollmentFixture `yaml:"cards"`
}

type enrollmentFixture struct {
	Card   string `yaml:"card"`
	Stamps int    `yaml:"stamps"`
	Points int    `yaml:"points"`
}

// parseFixtures decodes and checks a fixture file before anything is written.
func parseFixtures(raw []byte) (*fixtures, error) {
	var fx fixtures
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}

	for _, b := range fx.Businesses {
		if b.Name == "" || b.OwnerEmail == "" {
			return nil, errors.New("every business needs a name and owner_email")
		}
		cards := map[string]bool{}
		for _, c := range b.Cards {
			kind := models.CardKind(c.Kind)
			if !kind.Valid() {
				return nil, fmt.Errorf("card %q: unknown kind %q", c.Name, c.Kind)
			}
			if err := services.ValidateCardRules(kind, c.rules()); err != nil {
				return nil, fmt.Errorf("card %q: %w", c.Name, err)
			}
			cards[c.Name] = true
		}
		for _, cu := range b.Customers {
			for _, e := range cu.Cards {
				if !cards[e.Card] {
					return nil, fmt.Errorf("customer %q: unknown card %q", cu.Name, e.Card)
				}
				if e.Stamps < 0 || e.Points < 0 {
					return nil, fmt.Errorf("customer %q: balances must not be negative", cu.Name)
				}
			}
		}
	}
	return &fx, nil
}

func (c cardFixture) rules() models.CardRules {
	rules := models.CardRules{
		StampGoal:       c.StampGoal,
		PointsGoal:      c.PointsGoal,
		DiscountPercent: c.DiscountPercent,
		RewardText:      c.RewardText,
	}
	for _, t := range c.Tiers {
		rules.Tiers = append(rules.Tiers, models.Tier{Name: t.Name, Threshold: t.Threshold, Reward: t.Reward})
	}
	return rules
}

// load writes the fixtures. Rows are matched by their natural keys so the
// same file can be loaded again without duplicating anything.
func load(db *gorm.DB, fx *fixtures) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, bf := range fx.Businesses {
			if err := loadBusiness(tx, bf); err != nil {
				return fmt.Errorf("business %q: %w", bf.Name, err)
			}
		}
		return nil
	})
}

func loadBusiness(tx *gorm.DB, bf businessFixture) error {
	password := bf.Password
	if password == "" {
		password = "changeme123"
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}

	email := strings.ToLower(strings.TrimSpace(bf.OwnerEmail))
	business := models.Business{
		Name:           bf.Name,
		OwnerEmail:     email,
		PasswordHash:   hash,
		ContactEmail:   email,
		TelegramChatID: bf.TelegramChatID,
	}
	if err := tx.Where(models.Business{OwnerEmail: email}).FirstOrCreate(&business).Error; err != nil {
		return err
	}

	cards := make(map[string]models.LoyaltyCard, len(bf.Cards))
	for _, cf := range bf.Cards {
		card := models.LoyaltyCard{
			BusinessID: business.ID,
			Name:       cf.Name,
			Kind:       models.CardKind(cf.Kind),
			Design: datatypes.NewJSONType(models.CardDesign{
				PrimaryColor: cf.PrimaryColor,
				LogoURL:      cf.LogoURL,
			}),
			Rules:    datatypes.NewJSONType(cf.rules()),
			IsActive: true,
		}
		if err := tx.Where("business_id = ? AND name = ?", business.ID, cf.Name).FirstOrCreate(&card).Error; err != nil {
			return err
		}
		cards[cf.Name] = card
	}

	for _, cuf := range bf.Customers {
		customer := models.Customer{
			BusinessID: business.ID,
			Name:       cuf.Name,
			Email:      strings.ToLower(strings.TrimSpace(cuf.Email)),
			Phone:      cuf.Phone,
		}
		if err := tx.Where("business_id = ? AND name = ?", business.ID, cuf.Name).FirstOrCreate(&customer).Error; err != nil {
			return err
		}

		for _, ef := range cuf.Cards {
			card := cards[ef.Card]
			enrollment := models.CustomerLoyaltyCard{
				CustomerID:    customer.ID,
				LoyaltyCardID: card.ID,
				Stamps:        ef.Stamps,
				Points:        ef.Points,
				JoinedAt:      time.Now(),
			}
			if card.Kind == models.CardKindTiered {
				enrollment.Tier = services.TierFor(card.Rules.Data().Tiers, ef.Points)
			}
			if err := tx.Where("customer_id = ? AND loyalty_card_id = ?", customer.ID, card.ID).FirstOrCreate(&enrollment).Error; err != nil {
				return err
			}
		}
	}
	return nil
}
