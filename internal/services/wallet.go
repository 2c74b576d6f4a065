package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/stampcard/internal/config"
)

// Wallet error types returned to clients.
const (
	WalletUnsupportedFeature = "unsupported_feature"
	WalletConfigurationError = "configuration_error"
	WalletGenerationError    = "generation_error"
	WalletInvalidRequest     = "invalid_request"
	WalletGenericError       = "error"
)

const googleSaveURL = "https://pay.google.com/gp/v/save/"

// WalletError is a wallet pass failure carrying the HTTP status to answer with.
type WalletError struct {
	Type    string
	Status  int
	Message string
	Err     error
}

func (e *WalletError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wallet: %s: %v", e.Type, e.Err)
	}
	return "wallet: " + e.Type
}

func (e *WalletError) Unwrap() error {
	return e.Err
}

// PassRequest is the body of a wallet pass request.
type PassRequest struct {
	PassType        string `json:"passType"`
	CardID          string `json:"cardId"`
	CardName        string `json:"cardName"`
	BusinessName    string `json:"businessName"`
	RewardTitle     string `json:"rewardTitle"`
	BackgroundColor string `json:"backgroundColor"`
	LogoURL         string `json:"logoUrl"`
	Type            string `json:"type"`
	TotalNeeded     int    `json:"totalNeeded"`
	ClassID         string `json:"classId"`
}

// PassResponse carries the signed save token and the link built from it.
type PassResponse struct {
	JWT     string `json:"jwt"`
	SaveURL string `json:"saveUrl"`
}

// ServiceAccount is the subset of a Google service-account key file used for signing.
type ServiceAccount struct {
	ProjectID    string `json:"project_id"`
	ClientEmail  string `json:"client_email"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
}

// LoadServiceAccount reads the service account from inline JSON or a key file.
func LoadServiceAccount(cfg config.GoogleWalletConfig) (*ServiceAccount, error) {
	raw := []byte(cfg.ServiceAccountJSON)
	if len(raw) == 0 {
		if cfg.ServiceAccountFile == "" {
			return nil, errors.New("service account configuration missing")
		}
		data, err := os.ReadFile(cfg.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("service account configuration unreadable: %w", err)
		}
		raw = data
	}

	var account ServiceAccount
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, fmt.Errorf("service account configuration invalid: %w", err)
	}
	account.PrivateKey = strings.ReplaceAll(account.PrivateKey, `\n`, "\n")
	if account.ClientEmail == "" || account.PrivateKey == "" {
		return nil, errors.New("service account configuration lacks client_email or private_key")
	}
	return &account, nil
}

// WalletService issues wallet passes. Apple passes are not implemented.
type WalletService struct {
	issuerID   string
	account    *ServiceAccount
	accountErr error
	origins    []string
	now        func() time.Time
}

// NewWalletService builds the service from configuration. A broken service
// account does not fail startup; Google requests report it instead.
func NewWalletService(cfg config.GoogleWalletConfig) *WalletService {
	account, err := LoadServiceAccount(cfg)
	if err != nil {
		log.Printf("[Wallet] Google Wallet disabled: %v", err)
	}
	return &WalletService{
		issuerID:   cfg.IssuerID,
		account:    account,
		accountErr: err,
		origins:    cfg.Origins,
		now:        time.Now,
	}
}

// NewWalletServiceWithAccount builds the service around an already loaded account.
func NewWalletServiceWithAccount(issuerID string, account *ServiceAccount, origins []string) *WalletService {
	return &WalletService{issuerID: issuerID, account: account, origins: origins, now: time.Now}
}

// CreatePass issues a pass for req.PassType.
func (s *WalletService) CreatePass(_ context.Context, req PassRequest) (*PassResponse, error) {
	switch strings.ToLower(strings.TrimSpace(req.PassType)) {
	case "apple":
		return nil, &WalletError{
			Type:    WalletUnsupportedFeature,
			Status:  http.StatusServiceUnavailable,
			Message: "Apple Wallet passes are not available yet. Please use Google Wallet instead.",
		}
	case "google":
		if strings.TrimSpace(req.CardID) == "" {
			return nil, &WalletError{Type: WalletInvalidRequest, Status: http.StatusBadRequest, Message: "cardId is required"}
		}
		if walletIDUnsafe.MatchString(req.ClassID) {
			return nil, &WalletError{
				Type:    WalletInvalidRequest,
				Status:  http.StatusBadRequest,
				Message: "classId may only contain letters, digits, '.', '_' and '-'",
			}
		}
		token, err := s.signGooglePass(req)
		if err != nil {
			log.Printf("[Wallet] Google pass for card %s failed: %v", req.CardID, err)
			return nil, classifyGoogleError(err)
		}
		return &PassResponse{JWT: token, SaveURL: googleSaveURL + token}, nil
	}
	return nil, &WalletError{
		Type:    WalletInvalidRequest,
		Status:  http.StatusBadRequest,
		Message: "passType must be apple or google",
	}
}

// classifyGoogleError buckets a signing failure by its message.
func classifyGoogleError(err error) *WalletError {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "configuration"),
		strings.Contains(msg, "service account"),
		strings.Contains(msg, "private key"),
		strings.Contains(msg, "issuer"):
		return &WalletError{
			Type:    WalletConfigurationError,
			Status:  http.StatusInternalServerError,
			Message: "Google Wallet is not configured correctly. Please contact support.",
			Err:     err,
		}
	case strings.Contains(msg, "sign"),
		strings.Contains(msg, "jwt"),
		strings.Contains(msg, "generat"):
		return &WalletError{
			Type:    WalletGenerationError,
			Status:  http.StatusInternalServerError,
			Message: "Could not generate the Google Wallet pass. Please try again.",
			Err:     err,
		}
	}
	return &WalletError{
		Type:    WalletGenericError,
		Status:  http.StatusInternalServerError,
		Message: "Failed to create wallet pass.",
		Err:     err,
	}
}

type localizedString struct {
	DefaultValue translatedString `json:"defaultValue"`
}

type translatedString struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

type walletImage struct {
	SourceURI struct {
		URI string `json:"uri"`
	} `json:"sourceUri"`
	ContentDescription *localizedString `json:"contentDescription,omitempty"`
}

type textModule struct {
	ID     string `json:"id,omitempty"`
	Header string `json:"header"`
	Body   string `json:"body"`
}

type loyaltyClass struct {
	ID                 string       `json:"id"`
	IssuerName         string       `json:"issuerName"`
	ProgramName        string       `json:"programName"`
	ProgramLogo        *walletImage `json:"programLogo,omitempty"`
	HexBackgroundColor string       `json:"hexBackgroundColor,omitempty"`
	ReviewStatus       string       `json:"reviewStatus"`
	TextModulesData    []textModule `json:"textModulesData,omitempty"`
}

type loyaltyBalance struct {
	Int    *int   `json:"int,omitempty"`
	String string `json:"string,omitempty"`
}

type loyaltyPoints struct {
	Label   string         `json:"label"`
	Balance loyaltyBalance `json:"balance"`
}

type walletBarcode struct {
	Type          string `json:"type"`
	Value         string `json:"value"`
	AlternateText string `json:"alternateText,omitempty"`
}

type loyaltyObject struct {
	ID            string         `json:"id"`
	ClassID       string         `json:"classId"`
	State         string         `json:"state"`
	AccountID     string         `json:"accountId"`
	AccountName   string         `json:"accountName"`
	LoyaltyPoints *loyaltyPoints `json:"loyaltyPoints,omitempty"`
	Barcode       walletBarcode  `json:"barcode"`
}

type savePayload struct {
	LoyaltyClasses []loyaltyClass  `json:"loyaltyClasses"`
	LoyaltyObjects []loyaltyObject `json:"loyaltyObjects"`
}

var walletIDUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// walletID makes a card identifier usable as a Google Wallet object suffix.
func walletID(s string) string {
	return walletIDUnsafe.ReplaceAllString(s, "_")
}

func (s *WalletService) signGooglePass(req PassRequest) (string, error) {
	if s.account == nil {
		if s.accountErr != nil {
			return "", s.accountErr
		}
		return "", errors.New("service account configuration missing")
	}

	issuer := s.issuerID
	if issuer == "" {
		issuer = s.account.ProjectID
	}
	if issuer == "" {
		return "", errors.New("issuer id not configured")
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(s.account.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("service account private key: %w", err)
	}

	classID := req.ClassID
	if classID == "" {
		classID = walletID(req.CardID) + "_class"
	}
	fullClassID := issuer + "." + classID

	class := loyaltyClass{
		ID:                 fullClassID,
		IssuerName:         req.BusinessName,
		ProgramName:        req.CardName,
		HexBackgroundColor: req.BackgroundColor,
		ReviewStatus:       "UNDER_REVIEW",
	}
	if req.LogoURL != "" {
		logo := &walletImage{ContentDescription: &localizedString{
			DefaultValue: translatedString{Language: "en-US", Value: req.BusinessName},
		}}
		logo.SourceURI.URI = req.LogoURL
		class.ProgramLogo = logo
	}
	if req.RewardTitle != "" {
		class.TextModulesData = []textModule{{ID: "reward", Header: "Reward", Body: req.RewardTitle}}
	}

	object := loyaltyObject{
		ID:          issuer + "." + walletID(req.CardID),
		ClassID:     fullClassID,
		State:       "ACTIVE",
		AccountID:   req.CardID,
		AccountName: req.CardName,
		Barcode: walletBarcode{
			Type:          "QR_CODE",
			Value:         req.CardID,
			AlternateText: req.CardID,
		},
	}
	if req.TotalNeeded > 0 {
		label := "Points"
		if req.Type == "stamp" {
			label = "Stamps"
		}
		object.LoyaltyPoints = &loyaltyPoints{
			Label:   label,
			Balance: loyaltyBalance{String: fmt.Sprintf("0/%d", req.TotalNeeded)},
		}
	}

	origins := s.origins
	if origins == nil {
		origins = []string{}
	}
	claims := jwt.MapClaims{
		"iss":     s.account.ClientEmail,
		"aud":     "google",
		"typ":     "savetowallet",
		"iat":     s.now().Unix(),
		"origins": origins,
		"payload": savePayload{
			LoyaltyClasses: []loyaltyClass{class},
			LoyaltyObjects: []loyaltyObject{object},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if s.account.PrivateKeyID != "" {
		token.Header["kid"] = s.account.PrivateKeyID
	}
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign wallet jwt: %w", err)
	}
	return signed, nil
}
