package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"proxyhub-api/internal/config"
	"proxyhub-api/internal/models"
	"proxyhub-api/pkg/logging"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UpstreamClient is the slice of the reseller API the provisioner needs
type UpstreamClient interface {
	CreateResidentialPlan(ctx context.Context, bandwidthGB int) (string, error)
	CreateISPPlan(ctx context.Context, ip, region string) (string, error)
	ExtendPlan(ctx context.Context, planID string, trafficGB int) error
	GetPlanInfo(ctx context.Context, planID string) (*PlanInfo, error)
}

// SubscriptionStore is the persistence contract for subscription rows
type SubscriptionStore interface {
	GetByUserAndService(ctx context.Context, userID uint, serviceType string) (*models.Subscription, error)
	Create(ctx context.Context, subscription *models.Subscription) error
	Save(ctx context.Context, subscription *models.Subscription) error
}

// ReconciliationStore records purchases that succeeded upstream but failed
// to persist locally.
type ReconciliationStore interface {
	Create(ctx context.Context, task *models.ReconciliationTask) error
}

var networkRetryBackoff = 2 * time.Second

// ProvisioningService decides whether a purchase creates, extends, or
// replaces a user's proxy plan, and reconciles the upstream result into
// local state. All traffic is persisted in MB; callers pass GB.
type ProvisioningService struct {
	subscriptions SubscriptionStore
	reconciler    ReconciliationStore
	upstream      UpstreamClient
	geo           GeoLocator
	locker        Locker
	lockTTL       time.Duration
}

// NewProvisioningService creates a provisioning service
func NewProvisioningService(
	subscriptions SubscriptionStore,
	reconciler ReconciliationStore,
	upstream UpstreamClient,
	geo GeoLocator,
	locker Locker,
) *ProvisioningService {
	lockSeconds := 30
	if config.AppConfig != nil {
		lockSeconds = config.AppConfig.PurchaseLockSeconds
	}
	return &ProvisioningService{
		subscriptions: subscriptions,
		reconciler:    reconciler,
		upstream:      upstream,
		geo:           geo,
		locker:        locker,
		lockTTL:       time.Duration(lockSeconds) * time.Second,
	}
}

// Purchase buys trafficGB of the given service for the user and returns
// the active upstream plan id. Purchases for the same
// (user_id, service_type) are serialized by a lock so two concurrent
// calls cannot both create a plan or lose a traffic increment.
func (s *ProvisioningService) Purchase(ctx context.Context, userID uint, trafficGB int, serviceType string) (string, error) {
	if trafficGB <= 0 {
		return "", fmt.Errorf("%w: traffic must be positive", ErrValidation)
	}
	if !models.IsValidServiceType(serviceType) {
		return "", fmt.Errorf("%w: unsupported service type %q", ErrValidation, serviceType)
	}

	release, err := s.locker.Acquire(ctx, fmt.Sprintf("purchase_lock:%d:%s", userID, serviceType), s.lockTTL)
	if err != nil {
		return "", fmt.Errorf("failed to serialize purchase: %w", err)
	}
	defer release()

	logging.Infof("Buying proxy - user_id: %d, traffic_gb: %d, service_type: %s", userID, trafficGB, serviceType)

	subscription, err := s.subscriptions.GetByUserAndService(ctx, userID, serviceType)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.createPlan(ctx, userID, trafficGB, serviceType)
		}
		return "", fmt.Errorf("failed to read subscription: %w", err)
	}

	if serviceType == models.ServiceTypeResidential {
		return s.extendResidential(ctx, subscription, trafficGB)
	}
	return s.replaceISP(ctx, subscription, trafficGB)
}

// createPlan handles the first purchase for (userID, serviceType): create
// the upstream plan, read its expiration, then insert the local row.
// Nothing is written locally before the upstream calls succeed.
func (s *ProvisioningService) createPlan(ctx context.Context, userID uint, trafficGB int, serviceType string) (string, error) {
	planID, err := s.createUpstreamPlan(ctx, trafficGB, serviceType)
	if err != nil {
		return "", err
	}

	info, err := s.readPlanInfo(ctx, userID, serviceType, planID, trafficGB)
	if err != nil {
		return "", err
	}

	subscription := &models.Subscription{
		UserID:           userID,
		ServiceType:      serviceType,
		ProviderID:       1,
		PlanID:           planID,
		TrafficMB:        int64(trafficGB) * 1000,
		CurrentPeriodEnd: info.ExpirationDate,
	}

	if err := s.persist(ctx, func() error { return s.subscriptions.Create(ctx, subscription) },
		userID, serviceType, planID, subscription.TrafficMB, "create subscription row failed after upstream plan creation"); err != nil {
		return "", err
	}

	logging.Infof("Created subscription - user_id: %d, service_type: %s, plan_id: %s", userID, serviceType, planID)
	return planID, nil
}

// extendResidential adds traffic to the existing residential plan and
// refreshes the expiration from upstream.
func (s *ProvisioningService) extendResidential(ctx context.Context, subscription *models.Subscription, trafficGB int) (string, error) {
	err := s.withNetworkRetry(func() error {
		return s.upstream.ExtendPlan(ctx, subscription.PlanID, trafficGB)
	})
	if err != nil {
		return "", classifyUpstreamError(err)
	}

	info, err := s.readPlanInfo(ctx, subscription.UserID, subscription.ServiceType, subscription.PlanID, trafficGB)
	if err != nil {
		return "", err
	}

	subscription.TrafficMB += int64(trafficGB) * 1000
	subscription.CurrentPeriodEnd = info.ExpirationDate

	if err := s.persist(ctx, func() error { return s.subscriptions.Save(ctx, subscription) },
		subscription.UserID, subscription.ServiceType, subscription.PlanID, subscription.TrafficMB,
		"subscription update failed after upstream traffic extension"); err != nil {
		return "", err
	}

	logging.Infof("Extended subscription - user_id: %d, plan_id: %s, traffic_mb: %d",
		subscription.UserID, subscription.PlanID, subscription.TrafficMB)
	return subscription.PlanID, nil
}

// replaceISP handles a repeat ISP purchase. The provider cannot extend an
// ISP plan in place (each plan is bound to one egress IP), so a fresh plan
// is created and swapped onto the existing row. The previous upstream plan
// keeps running until it expires; its id is logged for operators.
func (s *ProvisioningService) replaceISP(ctx context.Context, subscription *models.Subscription, trafficGB int) (string, error) {
	oldPlanID := subscription.PlanID

	planID, err := s.createUpstreamPlan(ctx, trafficGB, models.ServiceTypeISP)
	if err != nil {
		return "", err
	}

	info, err := s.readPlanInfo(ctx, subscription.UserID, subscription.ServiceType, planID, trafficGB)
	if err != nil {
		return "", err
	}

	subscription.PlanID = planID
	subscription.TrafficMB += int64(trafficGB) * 1000
	subscription.CurrentPeriodEnd = info.ExpirationDate

	if err := s.persist(ctx, func() error { return s.subscriptions.Save(ctx, subscription) },
		subscription.UserID, subscription.ServiceType, planID, subscription.TrafficMB,
		"subscription update failed after upstream isp plan replacement"); err != nil {
		return "", err
	}

	logging.Infof("Replaced ISP plan - user_id: %d, old_plan_id: %s, new_plan_id: %s",
		subscription.UserID, oldPlanID, planID)
	return planID, nil
}

// createUpstreamPlan issues the service-specific create call, retrying
// once on a transport failure.
func (s *ProvisioningService) createUpstreamPlan(ctx context.Context, trafficGB int, serviceType string) (string, error) {
	var planID string
	err := s.withNetworkRetry(func() error {
		var callErr error
		if serviceType == models.ServiceTypeResidential {
			planID, callErr = s.upstream.CreateResidentialPlan(ctx, trafficGB)
			return callErr
		}

		geo, geoErr := s.geo.Lookup(ctx)
		if geoErr != nil {
			return geoErr
		}
		planID, callErr = s.upstream.CreateISPPlan(ctx, geo.IP, geo.Region)
		return callErr
	})
	if err != nil {
		return "", classifyUpstreamError(err)
	}
	return planID, nil
}

// readPlanInfo fetches the plan expiration after a successful upstream
// write. A failure here means the paid-for plan exists upstream with no
// usable local data, so it is recorded for reconciliation.
func (s *ProvisioningService) readPlanInfo(ctx context.Context, userID uint, serviceType, planID string, trafficGB int) (*PlanInfo, error) {
	var info *PlanInfo
	err := s.withNetworkRetry(func() error {
		var callErr error
		info, callErr = s.upstream.GetPlanInfo(ctx, planID)
		return callErr
	})
	if err != nil {
		s.recordInconsistency(userID, serviceType, planID, int64(trafficGB)*1000,
			fmt.Sprintf("plan exists upstream but reading its info failed: %v", err))
		return nil, fmt.Errorf("%w: plan %s", ErrInconsistency, planID)
	}
	return info, nil
}

// persist runs a local write that follows a committed upstream side
// effect. It retries once, then records a reconciliation task instead of
// dropping the paid-for plan silently.
func (s *ProvisioningService) persist(ctx context.Context, write func() error, userID uint, serviceType, planID string, trafficMB int64, reason string) error {
	err := write()
	if err != nil {
		logging.Errorf("Local write failed after upstream success, retrying - user_id: %d, plan_id: %s, error: %v", userID, planID, err)
		err = write()
	}
	if err == nil {
		return nil
	}

	s.recordInconsistency(userID, serviceType, planID, trafficMB, fmt.Sprintf("%s: %v", reason, err))
	return fmt.Errorf("%w: plan %s", ErrInconsistency, planID)
}

// recordInconsistency files a manual-review task. Uses a fresh context so
// a cancelled request cannot suppress the record.
func (s *ProvisioningService) recordInconsistency(userID uint, serviceType, planID string, trafficMB int64, reason string) {
	task := &models.ReconciliationTask{
		TaskID:      uuid.NewString(),
		UserID:      userID,
		ServiceType: serviceType,
		PlanID:      planID,
		TrafficMB:   trafficMB,
		Reason:      reason,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.reconciler.Create(ctx, task); err != nil {
		// Last resort: the inconsistency still must not vanish
		logging.Errorf("FAILED TO RECORD RECONCILIATION TASK - user_id: %d, plan_id: %s, reason: %s, error: %v",
			userID, planID, reason, err)
		return
	}
	logging.Errorf("Recorded reconciliation task %s - user_id: %d, plan_id: %s, reason: %s",
		task.TaskID, userID, planID, reason)
}

// withNetworkRetry retries fn once after a transport failure. Provider
// rejections and business errors are never retried.
func (s *ProvisioningService) withNetworkRetry(fn func() error) error {
	err := fn()
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		logging.Errorf("Upstream network error, retrying once: %v", err)
		time.Sleep(networkRetryBackoff)
		err = fn()
	}
	return err
}

// classifyUpstreamError folds transport and provider failures into the
// caller-facing upstream error, keeping the original for the logs.
func classifyUpstreamError(err error) error {
	var netErr *NetworkError
	var provErr *ProviderError
	if errors.As(err, &netErr) || errors.As(err, &provErr) {
		logging.Errorf("Upstream call failed: %v", err)
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return err
}
