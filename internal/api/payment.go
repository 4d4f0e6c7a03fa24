package api

import (
	"errors"
	"net/http"

	"proxyhub-api/internal/response"
	"proxyhub-api/internal/services"
	"proxyhub-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// CheckoutRequest represents a crypto checkout request
type CheckoutRequest struct {
	Amount   float64 `json:"amount" binding:"required,gt=0"`
	Currency string  `json:"currency" binding:"required"`
}

// CheckoutCryptomus opens a gateway checkout for the caller and returns
// the gateway response body (which carries the payment URL).
// POST /payment/checkout-cryptomus
func CheckoutCryptomus(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	username := c.GetString("username")
	if username == "" {
		response.ErrorJSON(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	rawBody, err := paymentService.Checkout(c.Request.Context(), req.Amount, req.Currency, username)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			response.ErrorJSON(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, services.ErrGateway):
			logging.Errorf("Checkout failed - username: %s, error: %v", username, err)
			response.ErrorJSON(c, http.StatusBadGateway, "payment gateway unavailable")
		default:
			response.ErrorJSON(c, http.StatusInternalServerError, "checkout failed")
		}
		return
	}

	c.Data(http.StatusOK, "application/json", rawBody)
}

// CryptomusCallback processes a gateway webhook. It must be answered with
// a non-2xx on internal failure so the gateway retries; signature and
// unknown-order rejections are final.
// POST /payment/cryptomus-callback
func CryptomusCallback(c *gin.Context) {
	rawBody, err := c.GetRawData()
	if err != nil || len(rawBody) == 0 {
		response.ErrorJSON(c, http.StatusBadRequest, "Failed to read request body")
		return
	}

	result, err := settlementService.HandleCallback(c.Request.Context(), rawBody)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissingSignature):
			response.ErrorJSON(c, http.StatusBadRequest, "Invalid payload: Missing sign")
		case errors.Is(err, services.ErrSignatureMismatch):
			response.ErrorJSON(c, http.StatusBadRequest, "Invalid sign")
		case errors.Is(err, services.ErrValidation):
			response.ErrorJSON(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, services.ErrUnknownOrder):
			response.ErrorJSON(c, http.StatusNotFound, "Payment not found")
		default:
			logging.Errorf("Callback processing failed: %v", err)
			response.ErrorJSON(c, http.StatusInternalServerError, "Server error")
		}
		return
	}

	logging.Infof("Callback processed - order_id: %s, status: %s, credited: %t",
		result.Payment.OrderID, result.Payment.Status, result.Credited)
	c.JSON(http.StatusOK, gin.H{"message": "Callback processed successfully"})
}
