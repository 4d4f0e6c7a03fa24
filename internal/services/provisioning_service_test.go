package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"proxyhub-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeUpstream scripts the reseller API
type fakeUpstream struct {
	mu sync.Mutex

	nextPlanSeq int
	createCalls int
	extendCalls []string
	expiration  time.Time
	createErrs  []error // consumed one per create call
	extendErr   error
	planInfoErr error
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{expiration: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeUpstream) nextCreateErr() error {
	if len(f.createErrs) == 0 {
		return nil
	}
	err := f.createErrs[0]
	f.createErrs = f.createErrs[1:]
	return err
}

func (f *fakeUpstream) CreateResidentialPlan(ctx context.Context, bandwidthGB int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if err := f.nextCreateErr(); err != nil {
		return "", err
	}
	f.nextPlanSeq++
	return fmt.Sprintf("plan-%d", f.nextPlanSeq), nil
}

func (f *fakeUpstream) CreateISPPlan(ctx context.Context, ip, region string) (string, error) {
	return f.CreateResidentialPlan(ctx, 0)
}

func (f *fakeUpstream) ExtendPlan(ctx context.Context, planID string, trafficGB int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.extendErr != nil {
		return f.extendErr
	}
	f.extendCalls = append(f.extendCalls, planID)
	return nil
}

func (f *fakeUpstream) GetPlanInfo(ctx context.Context, planID string) (*PlanInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.planInfoErr != nil {
		return nil, f.planInfoErr
	}
	return &PlanInfo{ExpirationDate: f.expiration, ProxyUser: "puser", ProxyPass: "ppass"}, nil
}

// fakeSubStore enforces the (user_id, service_type) unique index
type fakeSubStore struct {
	mu        sync.Mutex
	rows      map[string]*models.Subscription
	createErr error
	saveErr   error
}

func newFakeSubStore() *fakeSubStore {
	return &fakeSubStore{rows: make(map[string]*models.Subscription)}
}

func subKey(userID uint, serviceType string) string {
	return fmt.Sprintf("%d:%s", userID, serviceType)
}

func (f *fakeSubStore) GetByUserAndService(ctx context.Context, userID uint, serviceType string) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[subKey(userID, serviceType)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeSubStore) Create(ctx context.Context, subscription *models.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	key := subKey(subscription.UserID, subscription.ServiceType)
	if _, exists := f.rows[key]; exists {
		return fmt.Errorf("unique index violation on %s", key)
	}
	cp := *subscription
	f.rows[key] = &cp
	return nil
}

func (f *fakeSubStore) Save(ctx context.Context, subscription *models.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	cp := *subscription
	f.rows[subKey(subscription.UserID, subscription.ServiceType)] = &cp
	return nil
}

type fakeReconStore struct {
	mu    sync.Mutex
	tasks []*models.ReconciliationTask
}

func (f *fakeReconStore) Create(ctx context.Context, task *models.ReconciliationTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return nil
}

type staticGeo struct{}

func (staticGeo) Lookup(ctx context.Context) (GeoInfo, error) {
	return GeoInfo{IP: "203.0.113.7", Region: "CA"}, nil
}

func newTestProvisioner(subs *fakeSubStore, recon *fakeReconStore, upstream *fakeUpstream) *ProvisioningService {
	return NewProvisioningService(subs, recon, upstream, staticGeo{}, newLocalLocker())
}

func TestPurchase_FreshResidentialConvertsGBToMB(t *testing.T) {
	subs := newFakeSubStore()
	upstream := newFakeUpstream()
	svc := newTestProvisioner(subs, &fakeReconStore{}, upstream)

	planID, err := svc.Purchase(context.Background(), 7, 5, models.ServiceTypeResidential)
	require.NoError(t, err)
	assert.Equal(t, "plan-1", planID)

	row := subs.rows[subKey(7, models.ServiceTypeResidential)]
	require.NotNil(t, row)
	assert.Equal(t, int64(5000), row.TrafficMB)
	assert.Equal(t, upstream.expiration, row.CurrentPeriodEnd)
	assert.Equal(t, uint(1), row.ProviderID)
	assert.Equal(t, 1, upstream.createCalls)
}

func TestPurchase_ExtendAccumulatesAndRefreshesPeriodEnd(t *testing.T) {
	subs := newFakeSubStore()
	subs.rows[subKey(7, models.ServiceTypeResidential)] = &models.Subscription{
		UserID:           7,
		ServiceType:      models.ServiceTypeResidential,
		ProviderID:       1,
		PlanID:           "plan-existing",
		TrafficMB:        3000,
		CurrentPeriodEnd: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	}
	upstream := newFakeUpstream()
	svc := newTestProvisioner(subs, &fakeReconStore{}, upstream)

	planID, err := svc.Purchase(context.Background(), 7, 2, models.ServiceTypeResidential)
	require.NoError(t, err)
	assert.Equal(t, "plan-existing", planID, "extension keeps the existing plan")

	row := subs.rows[subKey(7, models.ServiceTypeResidential)]
	assert.Equal(t, int64(5000), row.TrafficMB)
	assert.Equal(t, upstream.expiration, row.CurrentPeriodEnd)
	assert.Equal(t, []string{"plan-existing"}, upstream.extendCalls)
	assert.Zero(t, upstream.createCalls, "no new plan for a residential extension")
}

func TestPurchase_ISPRepeatReplacesPlanOnSameRow(t *testing.T) {
	subs := newFakeSubStore()
	subs.rows[subKey(3, models.ServiceTypeISP)] = &models.Subscription{
		UserID:      3,
		ServiceType: models.ServiceTypeISP,
		ProviderID:  1,
		PlanID:      "plan-old",
		TrafficMB:   1000,
	}
	upstream := newFakeUpstream()
	svc := newTestProvisioner(subs, &fakeReconStore{}, upstream)

	planID, err := svc.Purchase(context.Background(), 3, 1, models.ServiceTypeISP)
	require.NoError(t, err)
	assert.Equal(t, "plan-1", planID)

	require.Len(t, subs.rows, 1, "replacement must not insert a second row")
	row := subs.rows[subKey(3, models.ServiceTypeISP)]
	assert.Equal(t, "plan-1", row.PlanID)
	assert.Equal(t, int64(2000), row.TrafficMB)
}

func TestPurchase_Validation(t *testing.T) {
	svc := newTestProvisioner(newFakeSubStore(), &fakeReconStore{}, newFakeUpstream())

	_, err := svc.Purchase(context.Background(), 1, 0, models.ServiceTypeResidential)
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Purchase(context.Background(), 1, 5, "datacenter")
	require.ErrorIs(t, err, ErrValidation)
}

func TestPurchase_ProviderErrorAbortsWithoutLocalWrite(t *testing.T) {
	subs := newFakeSubStore()
	upstream := newFakeUpstream()
	upstream.createErrs = []error{&ProviderError{Op: "create residential plan", StatusCode: 402, Body: "insufficient funds"}}
	svc := newTestProvisioner(subs, &fakeReconStore{}, upstream)

	_, err := svc.Purchase(context.Background(), 9, 5, models.ServiceTypeResidential)
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Empty(t, subs.rows, "no partial subscription on upstream failure")
}

func TestPurchase_NetworkErrorRetriedOnce(t *testing.T) {
	old := networkRetryBackoff
	networkRetryBackoff = time.Millisecond
	defer func() { networkRetryBackoff = old }()

	subs := newFakeSubStore()
	upstream := newFakeUpstream()
	upstream.createErrs = []error{&NetworkError{Op: "create residential plan", Err: errors.New("timeout")}}
	svc := newTestProvisioner(subs, &fakeReconStore{}, upstream)

	planID, err := svc.Purchase(context.Background(), 4, 3, models.ServiceTypeResidential)
	require.NoError(t, err)
	assert.Equal(t, "plan-1", planID)
	assert.Equal(t, 2, upstream.createCalls)
}

func TestPurchase_LocalWriteFailureRecordsReconciliation(t *testing.T) {
	subs := newFakeSubStore()
	subs.createErr = errors.New("connection reset")
	upstream := newFakeUpstream()
	recon := &fakeReconStore{}
	svc := newTestProvisioner(subs, recon, upstream)

	_, err := svc.Purchase(context.Background(), 11, 2, models.ServiceTypeResidential)
	require.ErrorIs(t, err, ErrInconsistency)

	require.Len(t, recon.tasks, 1)
	task := recon.tasks[0]
	assert.Equal(t, uint(11), task.UserID)
	assert.Equal(t, "plan-1", task.PlanID)
	assert.Equal(t, int64(2000), task.TrafficMB)
	assert.NotEmpty(t, task.TaskID)
}

func TestPurchase_ConcurrentFirstPurchaseCreatesOneRow(t *testing.T) {
	subs := newFakeSubStore()
	upstream := newFakeUpstream()
	svc := newTestProvisioner(subs, &fakeReconStore{}, upstream)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Purchase(context.Background(), 21, 5, models.ServiceTypeResidential)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, subs.rows, 1)
	row := subs.rows[subKey(21, models.ServiceTypeResidential)]
	assert.Equal(t, 1, upstream.createCalls, "only the first caller may create a plan")
	assert.Equal(t, []string{"plan-1"}, upstream.extendCalls, "the second caller extends instead")
	assert.Equal(t, int64(10000), row.TrafficMB)
}
