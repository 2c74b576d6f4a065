package services

import (
	"errors"
	"net/url"
	"strings"
)

// ErrCardIDRequired is returned when a QR code is requested without a card.
var ErrCardIDRequired = errors.New("qrcode: cardId is required")

// QRCodeService builds links to a hosted QR renderer for card pages.
type QRCodeService struct {
	publicBaseURL string
	renderURL     string
}

// NewQRCodeService constructs a QRCodeService.
func NewQRCodeService(publicBaseURL, renderURL string) *QRCodeService {
	return &QRCodeService{
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		renderURL:     renderURL,
	}
}

// CardURL is the link encoded for a card when the caller gives none.
func (s *QRCodeService) CardURL(cardID string) string {
	return s.publicBaseURL + "/scan/" + url.PathEscape(cardID)
}

// CodeURL returns an image URL rendering a QR code for cardURL, or for the
// default card link when cardURL is empty.
func (s *QRCodeService) CodeURL(cardID, cardURL string) (string, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return "", ErrCardIDRequired
	}
	target := strings.TrimSpace(cardURL)
	if target == "" {
		target = s.CardURL(cardID)
	}

	q := url.Values{}
	q.Set("size", "300x300")
	q.Set("data", target)
	return s.renderURL + "?" + q.Encode(), nil
}
