package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/stampcard/internal/services"
)

// WalletHandler issues wallet passes and QR codes for customer cards.
type WalletHandler struct {
	wallet *services.WalletService
	qr     *services.QRCodeService
}

// NewWalletHandler constructs WalletHandler.
func NewWalletHandler(wallet *services.WalletService, qr *services.QRCodeService) *WalletHandler {
	return &WalletHandler{wallet: wallet, qr: qr}
}

// CreatePass returns a save-to-wallet link. passType may also be passed as a
// query parameter.
func (h *WalletHandler) CreatePass(c *fiber.Ctx) error {
	var req services.PassRequest
	if err := c.BodyParser(&req); err != nil {
		return &services.WalletError{
			Type:    services.WalletInvalidRequest,
			Status:  fiber.StatusBadRequest,
			Message: "invalid request body",
			Err:     err,
		}
	}
	if req.PassType == "" {
		req.PassType = c.Query("passType")
	}

	pass, err := h.wallet.CreatePass(c.UserContext(), req)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"jwt":     pass.JWT,
		"saveUrl": pass.SaveURL,
	})
}

type qrCodeRequest struct {
	CardID  string `json:"cardId"`
	CardURL string `json:"cardUrl"`
}

// QRCode returns an image URL of the QR code for a card link.
func (h *WalletHandler) QRCode(c *fiber.Ctx) error {
	var req qrCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	code, err := h.qr.CodeURL(req.CardID, req.CardURL)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "qrCode": code})
}
