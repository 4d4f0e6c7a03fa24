package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"proxyhub-api/internal/database"
	"proxyhub-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "test-gateway-secret"

// localLocker is an in-process Locker for tests
type localLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLocalLocker() *localLocker {
	return &localLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *localLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return func() { m.Unlock() }, nil
}

// fakePaymentStore mimics the conditional settle of the real repository
type fakePaymentStore struct {
	mu        sync.Mutex
	payments  map[string]*models.Payment
	credits   map[string]float64 // username -> credited total
	settleErr error
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{
		payments: make(map[string]*models.Payment),
		credits:  make(map[string]float64),
	}
}

func (f *fakePaymentStore) Create(ctx context.Context, payment *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.payments[payment.OrderID]; exists {
		return fmt.Errorf("duplicate order id")
	}
	cp := *payment
	f.payments[payment.OrderID] = &cp
	return nil
}

func (f *fakePaymentStore) GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payment, ok := f.payments[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *payment
	return &cp, nil
}

func (f *fakePaymentStore) Settle(ctx context.Context, orderID string, update database.PaymentUpdate) (*models.Payment, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settleErr != nil {
		return nil, false, f.settleErr
	}

	payment, ok := f.payments[orderID]
	if !ok {
		return nil, false, gorm.ErrRecordNotFound
	}

	wasSettled := models.IsSettledStatus(payment.Status)
	payment.Status = update.Status
	payment.Amount = update.Amount
	payment.Network = update.Network
	payment.PayerCurrency = update.PayerCurrency

	credited := false
	if models.IsSettledStatus(update.Status) && !wasSettled {
		f.credits[payment.Username] += update.Amount
		credited = true
	}

	cp := *payment
	return &cp, credited, nil
}

type fakeUserStore struct {
	users map[string]*models.User
}

func (f *fakeUserStore) Create(ctx context.Context, user *models.User) error { return nil }
func (f *fakeUserStore) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}
func (f *fakeUserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if u, ok := f.users[username]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}
func (f *fakeUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}
func (f *fakeUserStore) GetByUsernameOrEmail(ctx context.Context, identifier string) (*models.User, error) {
	return f.GetByUsername(ctx, identifier)
}
func (f *fakeUserStore) RefCodeExists(ctx context.Context, refCode string) (bool, error) {
	return false, nil
}

// signedCallback builds a raw webhook body with a valid trailing sign
func signedCallback(t *testing.T, orderID, amount, status string) []byte {
	t.Helper()
	unsigned := fmt.Sprintf(
		`{"order_id":"%s","amount":"%s","status":"%s","network":"tron","payment_currency":"USDT"}`,
		orderID, amount, status)
	sign := SignGatewayPayload([]byte(unsigned), testSecret)
	signed := unsigned[:len(unsigned)-1] + `,"sign":"` + sign + `"}`
	return []byte(signed)
}

func newTestSettlement(payments *fakePaymentStore) *SettlementService {
	return NewSettlementService(payments, &fakeUserStore{users: map[string]*models.User{}}, nil, newLocalLocker(), testSecret)
}

func seedPayment(store *fakePaymentStore, orderID, username string) {
	store.payments[orderID] = &models.Payment{
		OrderID:     orderID,
		Username:    username,
		Status:      models.PaymentStatusPending,
		PaymentType: "cryptomus",
	}
}

func TestHandleCallback_CreditsOnPaid(t *testing.T) {
	store := newFakePaymentStore()
	seedPayment(store, "order-1", "alice")
	svc := newTestSettlement(store)

	result, err := svc.HandleCallback(context.Background(), signedCallback(t, "order-1", "10.50", "paid"))
	require.NoError(t, err)
	require.True(t, result.Credited)
	assert.Equal(t, models.PaymentStatusPaid, result.Payment.Status)
	assert.Equal(t, 10.50, store.credits["alice"])
	assert.Equal(t, "tron", result.Payment.Network)
	assert.Equal(t, "USDT", result.Payment.PayerCurrency)
}

func TestHandleCallback_RedeliveryDoesNotDoubleCredit(t *testing.T) {
	store := newFakePaymentStore()
	seedPayment(store, "order-2", "bob")
	svc := newTestSettlement(store)

	body := signedCallback(t, "order-2", "25", "paid_over")

	first, err := svc.HandleCallback(context.Background(), body)
	require.NoError(t, err)
	require.True(t, first.Credited)

	second, err := svc.HandleCallback(context.Background(), body)
	require.NoError(t, err)
	assert.False(t, second.Credited, "re-delivery must not credit again")
	assert.Equal(t, float64(25), store.credits["bob"], "exactly one credit expected")
	assert.Equal(t, models.PaymentStatusPaidOver, second.Payment.Status)
}

func TestHandleCallback_NonSettledStatusNeverCredits(t *testing.T) {
	store := newFakePaymentStore()
	seedPayment(store, "order-3", "carol")
	svc := newTestSettlement(store)

	result, err := svc.HandleCallback(context.Background(), signedCallback(t, "order-3", "5", "cancel"))
	require.NoError(t, err)
	assert.False(t, result.Credited)
	assert.Zero(t, store.credits["carol"])
	assert.Equal(t, "cancel", result.Payment.Status)
}

func TestHandleCallback_MissingSign(t *testing.T) {
	svc := newTestSettlement(newFakePaymentStore())

	_, err := svc.HandleCallback(context.Background(), []byte(`{"order_id":"x","amount":"1","status":"paid"}`))
	require.ErrorIs(t, err, ErrMissingSignature)
}

func TestHandleCallback_TamperedPayloadRejected(t *testing.T) {
	store := newFakePaymentStore()
	seedPayment(store, "order-4", "dave")
	svc := newTestSettlement(store)

	body := signedCallback(t, "order-4", "10", "paid")

	// Flip every byte of the payload (outside the sign value) one at a
	// time; each mutation must break verification.
	for i := 1; i < 30; i++ {
		mutated := make([]byte, len(body))
		copy(mutated, body)
		mutated[i] ^= 0x01

		_, err := svc.HandleCallback(context.Background(), mutated)
		if err == nil {
			t.Fatalf("mutation at byte %d was accepted", i)
		}
	}
	assert.Zero(t, store.credits["dave"])
}

func TestHandleCallback_UnknownOrder(t *testing.T) {
	svc := newTestSettlement(newFakePaymentStore())

	_, err := svc.HandleCallback(context.Background(), signedCallback(t, "no-such-order", "10", "paid"))
	require.ErrorIs(t, err, ErrUnknownOrder)
}

func TestHandleCallback_StoreFailureIsNotFinal(t *testing.T) {
	store := newFakePaymentStore()
	seedPayment(store, "order-6", "frank")
	store.settleErr = fmt.Errorf("deadlock detected")
	svc := newTestSettlement(store)

	_, err := svc.HandleCallback(context.Background(), signedCallback(t, "order-6", "10", "paid"))
	require.Error(t, err)

	// None of the final-rejection sentinels: the handler answers 5xx and
	// the gateway redelivers.
	assert.NotErrorIs(t, err, ErrMissingSignature)
	assert.NotErrorIs(t, err, ErrSignatureMismatch)
	assert.NotErrorIs(t, err, ErrUnknownOrder)
	assert.NotErrorIs(t, err, ErrValidation)
}

func TestHandleCallback_ConcurrentDeliveriesCreditOnce(t *testing.T) {
	store := newFakePaymentStore()
	seedPayment(store, "order-5", "erin")
	svc := newTestSettlement(store)

	body := signedCallback(t, "order-5", "42", "paid")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.HandleCallback(context.Background(), body)
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(42), store.credits["erin"])
}

func TestStripSignField(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "trailing sign",
			in:   `{"order_id":"a","amount":"1","sign":"abc123"}`,
			want: `{"order_id":"a","amount":"1"}`,
		},
		{
			name: "leading sign",
			in:   `{"sign":"abc123","order_id":"a"}`,
			want: `{"order_id":"a"}`,
		},
		{
			name: "sign with whitespace",
			in:   `{"order_id":"a", "sign": "abc123"}`,
			want: `{"order_id":"a"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StripSignField([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}

	_, err := StripSignField([]byte(`{"order_id":"a"}`))
	require.Error(t, err, "missing sign field must be reported")
}

func TestVerifyCallbackSignature_RawBytesNotReserialization(t *testing.T) {
	// Key order differs from what Go's json.Marshal would produce; the
	// verifier must work on the bytes as delivered.
	unsigned := `{"status":"paid","order_id":"z" ,"amount":"3"}`
	sign := SignGatewayPayload([]byte(unsigned), testSecret)
	raw := unsigned[:len(unsigned)-1] + `,"sign":"` + sign + `"}`

	require.NoError(t, VerifyCallbackSignature([]byte(raw), sign, testSecret))
	require.ErrorIs(t, VerifyCallbackSignature([]byte(raw), sign, "wrong-secret"), ErrSignatureMismatch)
}
