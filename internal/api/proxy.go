package api

import (
	"errors"
	"net/http"

	"proxyhub-api/internal/response"
	"proxyhub-api/internal/services"
	"proxyhub-api/pkg/logging"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// BuyProxyRequest represents a proxy purchase request. Traffic is in GB.
type BuyProxyRequest struct {
	Traffic     int    `json:"traffic" binding:"required,gt=0"`
	ServiceType string `json:"serviceType" binding:"required,oneof=residential isp"`
}

// BuyProxy purchases or extends a proxy plan for the caller
// POST /lola/buy
func BuyProxy(c *gin.Context) {
	var req BuyProxyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	userID := c.GetUint("user_id")
	if userID == 0 {
		response.ErrorJSON(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	planID, err := provisioningService.Purchase(c.Request.Context(), userID, req.Traffic, req.ServiceType)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			response.ErrorJSON(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, services.ErrInconsistency):
			// The plan was paid for upstream; a reconciliation task holds
			// the details. Never surface upstream internals.
			response.ErrorJSON(c, http.StatusInternalServerError, "purchase_incomplete")
		default:
			logging.Errorf("Purchase failed - user_id: %d, error: %v", userID, err)
			response.ErrorJSON(c, http.StatusBadGateway, "could not complete purchase")
		}
		return
	}

	response.SuccessJSON(c, gin.H{"planId": planID})
}

// GetBandwidth reads remaining bandwidth for a plan. Returns the raw
// provider payload, or null when the upstream read fails.
// GET /lola/get-bandwidth/:planId
func GetBandwidth(c *gin.Context) {
	planID := c.Param("planId")
	if planID == "" {
		response.ErrorJSON(c, http.StatusBadRequest, "planId is required")
		return
	}

	payload, err := lolaClient.GetResidentialBandwidth(c.Request.Context(), planID)
	if err != nil {
		logging.Errorf("Bandwidth read failed - plan_id: %s, error: %v", planID, err)
		c.JSON(http.StatusOK, nil)
		return
	}

	c.Data(http.StatusOK, "application/json", payload)
}

// ActivateProxyRequest represents a proxy activation request
type ActivateProxyRequest struct {
	Provider    uint   `json:"provider"`
	ServiceType string `json:"service_type" binding:"required,oneof=residential isp"`
	Region      string `json:"region"`
}

// ActivateProxy formats the caller's plan credentials into a
// proxy-access descriptor.
// POST /v1/proxy/activate-proxy
func ActivateProxy(c *gin.Context) {
	var req ActivateProxyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	userID := c.GetUint("user_id")
	if userID == 0 {
		response.ErrorJSON(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	subscription, err := subscriptionRepo.GetByUserAndService(c.Request.Context(), userID, req.ServiceType)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.ErrorJSON(c, http.StatusNotFound, "No active subscription for this service type")
			return
		}
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to read subscription")
		return
	}

	info, err := lolaClient.GetPlanInfo(c.Request.Context(), subscription.PlanID)
	if err != nil {
		logging.Errorf("Plan info read failed - plan_id: %s, error: %v", subscription.PlanID, err)
		response.ErrorJSON(c, http.StatusBadGateway, "could not read plan credentials")
		return
	}

	providerID := req.Provider
	if providerID == 0 {
		providerID = subscription.ProviderID
	}

	descriptor, err := activationService.Format(services.PlanCredentials{
		User: info.ProxyUser,
		Pass: info.ProxyPass,
	}, providerID, req.Region)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMalformedUpstreamResponse):
			response.ErrorJSON(c, http.StatusBadGateway, "provider returned malformed credentials")
		case errors.Is(err, services.ErrNotFound):
			response.ErrorJSON(c, http.StatusNotFound, err.Error())
		default:
			response.ErrorJSON(c, http.StatusInternalServerError, "Failed to format proxy access")
		}
		return
	}

	response.SuccessJSON(c, descriptor)
}
