package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/posly/settlement-service/internal/domain"
	"github.com/posly/settlement-service/internal/gateway"
	"github.com/posly/settlement-service/internal/repository"
	"github.com/posly/settlement-service/pkg/logger"
)

// fakeGateway имитирует внешний процессор в памяти
type fakeGateway struct {
	mu         sync.Mutex
	nextID     int
	sessions   map[string]int64
	refunds    map[string]int64
	expired    []string
	failCreate bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		sessions: make(map[string]int64),
		refunds:  make(map[string]int64),
	}
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, paymentID string, amountCents int64, currency, successURL, cancelURL string) (gateway.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failCreate {
		return gateway.CheckoutSession{}, domain.ErrExternalServiceUnavailable
	}
	g.nextID++
	sessionID := fmt.Sprintf("cs_test_%d", g.nextID)
	g.sessions[sessionID] = amountCents
	return gateway.CheckoutSession{
		SessionID:   sessionID,
		RedirectURL: "https://checkout.example.com/" + sessionID,
	}, nil
}

func (g *fakeGateway) Refund(ctx context.Context, sessionID string, amountCents int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.sessions[sessionID]; !ok {
		return errors.New("unknown session")
	}
	g.refunds[sessionID] += amountCents
	return nil
}

func (g *fakeGateway) ExpireSession(ctx context.Context, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expired = append(g.expired, sessionID)
	return nil
}

type engineFixture struct {
	engine   *SettlementEngine
	ledger   *GiftCardLedger
	cards    *repository.InMemoryGiftCardRepository
	payments *repository.InMemoryPaymentRepository
	gateway  *fakeGateway
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	log := logger.New(logger.ERROR)
	cards := repository.NewInMemoryGiftCardRepository(log)
	payments := repository.NewInMemoryPaymentRepository(log)
	ledger := NewGiftCardLedger(cards, log)
	gw := newFakeGateway()
	engine := NewSettlementEngine(payments, ledger, gw, nil, nil, log)
	return &engineFixture{
		engine:   engine,
		ledger:   ledger,
		cards:    cards,
		payments: payments,
		gateway:  gw,
	}
}

func (f *engineFixture) issueCard(t *testing.T, businessID uuid.UUID, code string, balance int64) domain.GiftCard {
	t.Helper()
	card, err := f.ledger.Issue(context.Background(), businessID, code, balance, nil)
	require.NoError(t, err)
	return card
}

func (f *engineFixture) cardBalance(t *testing.T, cardID uuid.UUID) int64 {
	t.Helper()
	card, err := f.cards.GetByID(context.Background(), cardID)
	require.NoError(t, err)
	return card.BalanceCents
}

// Карта покрывает всю сумму: немедленное списание, сессия не создается
func TestCreatePaymentFullGiftCardCover(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	businessID := uuid.New()
	card := f.issueCard(t, businessID, "ABC", 10000)

	result, err := f.engine.CreatePayment(ctx, domain.CreatePaymentRequest{
		OrderID:      uuid.New(),
		BusinessID:   businessID,
		AmountCents:  1000,
		Currency:     "usd",
		GiftCardCode: "ABC",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusSuccess, result.Status)
	assert.Equal(t, int64(1000), result.PaidByGiftCard)
	assert.Equal(t, int64(0), result.RemainingForStripe)
	assert.Empty(t, result.ExternalSessionID)
	assert.Empty(t, result.ExternalRedirectURL)
	assert.Empty(t, f.gateway.sessions)
	assert.Equal(t, int64(9000), f.cardBalance(t, card.ID))

	payment, err := f.payments.GetByID(ctx, result.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), payment.GiftCardChargedCents)
	require.NotNil(t, payment.CompletedAt)
	assert.Nil(t, payment.ExternalSessionID)
}

func TestCreatePaymentWrongBusiness(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	owner := uuid.New()
	caller := uuid.New()
	f.issueCard(t, owner, "ABC", 10000)

	_, err := f.engine.CreatePayment(ctx, domain.CreatePaymentRequest{
		OrderID:      uuid.New(),
		BusinessID:   caller,
		AmountCents:  1000,
		Currency:     "usd",
		GiftCardCode: "ABC",
	})
	reason, ok := domain.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.ReasonWrongBusiness, reason)

	// Запись платежа не создается
	payments, err := f.payments.ListByBusinessID(ctx, caller)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestCreatePaymentExpiredCard(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	businessID := uuid.New()

	yesterday := timeYesterday()
	_, err := f.ledger.Issue(ctx, businessID, "ABC", 10000, &yesterday)
	require.NoError(t, err)

	_, err = f.engine.CreatePayment(ctx, domain.CreatePaymentRequest{
		OrderID:      uuid.New(),
		BusinessID:   businessID,
		AmountCents:  1000,
		Currency:     "usd",
		GiftCardCode: "ABC",
	})
	reason, ok := domain.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.ReasonExpired, reason)
}

// Частичное покрытие картой: сессия создана, списание отложено
func TestCreatePaymentSplitDefersRedemption(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	businessID := uuid.New()
	card := f.issueCard(t, businessID, "ABC", 10000)

	giftCardAmount := int64(500)
	result, err := f.engine.CreatePayment(ctx, domain.CreatePaymentRequest{
		OrderID:             uuid.New(),
		BusinessID:          businessID,
		AmountCents:         1000,
		Currency:            "usd",
		GiftCardCode:        "ABC",
		GiftCardAmountCents: &giftCardAmount,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusPending, result.Status)
	assert.Equal(t, int64(500), result.PaidByGiftCard)
	assert.Equal(t, int64(500), result.RemainingForStripe)
	assert.NotEmpty(t, result.ExternalSessionID)
	assert.NotEmpty(t, result.ExternalRedirectURL)
	// План + внешняя доля = сумма платежа
	assert.Equal(t, int64(1000), result.PaidByGiftCard+result.RemainingForStripe)
	// Баланс не тронут до подтверждения
	assert.Equal(t, int64(10000), f.cardBalance(t, card.ID))
	assert.Equal(t, int64(500), f.gateway.sessions[result.ExternalSessionID])
}

func TestConfirmExternalSuccessRedeemsOnce(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	businessID := uuid.New()
	card := f.issueCard(t, businessID, "ABC", 10000)

	giftCardAmount := int64(500)
	result, err := f.engine.CreatePayment(ctx, domain.CreatePaymentRequest{
		OrderID:             uuid.New(),
		BusinessID:          businessID,
		AmountCents:         1000,
		Currency:            "usd",
		GiftCardCode:        "ABC",
		GiftCardAmountCents: &giftCardAmount,
	})
	require.NoError(t, err)

	require.NoError(t, f.engine.ConfirmExternalSuccess(ctx, result.ExternalSessionID))
	assert.Equal(t, int64(9500), f.cardBalance(t, card.ID))

	payment, err := f.payments.GetByID(ctx, result.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSuccess, payment.Status)
	assert.Equal(t, int64(500), payment.GiftCardChargedCents)
	require.NotNil(t, payment.CompletedAt)

	// Повторное подтверждение не списывает повторно и не ошибается
	require.NoError(t, f.engine.ConfirmExternalSuccess(ctx, result.ExternalSessionID))
	assert.Equal(t, int64(9500), f.cardBalance(t, card.ID))

	payment, err = f.payments.GetByID(ctx, result.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSuccess, payment.Status)
	assert.Equal(t, int64(500), payment.GiftCardChargedCents)
}

// Баланс уменьшился между созданием и подтверждением: списывается остаток,
// фактическая сумма фиксируется в giftCardChargedCents
func TestConfirmExternalSuccessCapsAtShrunkenBalance(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	businessID := uuid.New()
	card := f.issueCard(t, businessID, "ABC", 500)

	giftCardAmount := int64(500)
	result, err := f.engine.CreatePayment(ctx, domain.CreatePaymentRequest{
		OrderID:             uuid.New(),
		BusinessID:          businessID,
		AmountCents:         1000,
		Currency:            "usd",
		GiftCardCode:        "ABC",
		GiftCardAmountCents: &giftCardAmount,
	})
	require.NoError(t, err)

	// Конкурирующая продажа уводит часть баланса до прихода вебхука
	drained, err := f.ledger.Redeem(ctx, businessID, card.ID, 300)
	require.NoError(t, err)
	require.Equal(t, int64(300), drained.ChargedCents)

	require.NoError(t, f.engine.ConfirmExternalSuccess(ctx, result.ExternalSessionID))

	payment, err := f.payments.GetByID(ctx, result.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSuccess, payment.Status)
	assert.Equal(t, int64(500), payment.GiftCardPlannedCents)
	assert.Equal(t, int64(200), payment.GiftCardChargedCents)
	require.NotNil(t, payment.CompletedAt)
	assert.Equal(t, int64(0), f.cardBalance(t, card.ID))
}

// Карта стала непригодной между созданием и подтверждением: внешняя часть
// уже оплачена, платеж завершается с нулевым списанием для ручной сверки
func TestConfirmExternalSuccessRedeemFailureLeavesChargedZero(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	businessID := uuid.New()

	soon := time.Now().Add(20 * time.Millisecond)
	card, err := f.ledger.Issue(ctx, businessID, "ABC", 10000, &soon)
	require.NoError(t, err)

	giftCardAmount := int64(500)
	result, err := f.engine.CreatePayment(ctx, domain.CreatePaymentRequest{
		OrderID:             uuid.New(),
		BusinessID:          businessID,
		AmountCents:         1000,
		Currency:            "usd",
		GiftCardCode:        "ABC",
		GiftCardAmountCents: &giftCardAmount,
	})
	require.NoError(t, err)

	// Срок действия карты истекает до прихода вебхука
	time.Sleep(60 * time.Millisecond)

	require.NoError(t, f.engine.ConfirmExternalSuccess(ctx, result.ExternalSessionID))

	payment, err := f.payments.GetByID(ctx, result.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSuccess, payment.Status)
	assert.Equal(t, int64(500), payment.GiftCardPlannedCents)
	assert.Equal(t, int64(0), payment.GiftCardChargedCents)
	require.NotNil(t, payment.CompletedAt)
	assert.Equal(t, int64(10000), f.cardBalance(t, card.ID))
}

func timeYesterday() time.Time {
	return time.Now().Add(-24 * time.Hour)
}

func TestConfirmExternalSuccessUnknownSession(t *testing.T) {
	f := newEngineFixture(t)
	assert.NoError(t, f.engine.ConfirmExternalSuccess(context.Background(), "cs_unknown"))
}

// Без карты вся сумма уходит во внешнюю сессию
func TestCreatePaymentNoGiftCard(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	businessID := uuid.New()

	result, err := f.engine.CreatePayment(ctx, domain.CreatePaymentRequest{
		OrderID:     uuid.New(),
		BusinessID:  businessID,
		AmountCents: 1000,
		Currency:    "usd",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusPending, result.Status)
	assert.Equal(t, int64(0), result.PaidByGiftCard)
	assert.Equal(t, int64(1000), result.RemainingForStripe)
	assert.NotEmpty(t, result.ExternalSessionID)
}

func TestCreatePaymentInvalidAmount(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.CreatePayment(context.Background(), domain.CreatePaymentRequest{
		OrderID:     uuid.New(),
		BusinessID:  uuid.New(),
		AmountCents: 0,
		Currency:    "usd",
	})
	reason, ok := domain.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.ReasonInvalidAmount, reason)
}

// Нехватка баланса при синхронном списании проваливает платеж целиком
func TestCreatePaymentFullCoverInsufficientBalance(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	businessID := uuid.New()
	card := f.issueCard(t, businessID, "ABC", 300)

	_, err := f.engine.CreatePayment(ctx, domain.CreatePaymentRequest{
		OrderID:      uuid.New(),
		BusinessID:   businessID,
		AmountCents:  1000,
		Currency:     "usd",
		GiftCardCode: "ABC",
	})
	reason, ok := domain.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.ReasonInsufficientBalance, reason)

	// Баланс не изменился, платеж помечен неуспешным
	assert.Equal(t, int64(300), f.cardBalance(t, card.ID))

	payments, err := f.payments.ListByBusinessID(ctx, businessID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, domain.PaymentStatusFailed, payments[0].Status)
}

func TestCreatePaymentGatewayFailureLeavesNoRow(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	businessID := uuid.New()
	f.gateway.failCreate = true

	_, err := f.engine.CreatePayment(ctx, domain.CreatePaymentRequest{
		OrderID:     uuid.New(),
		BusinessID:  businessID,
		AmountCents: 1000,
		Currency:    "usd",
	})
	require.ErrorIs(t, err, domain.ErrExternalServiceUnavailable)

	payments, err := f.payments.ListByBusinessID(ctx, businessID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestCancelExternal(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	businessID := uuid.New()
	card := f.issueCard(t, businessID, "ABC", 10000)

	giftCardAmount := int64(500)
	result, err := f.engine.CreatePayment(ctx, domain.CreatePaymentRequest{
		OrderID:             uuid.New(),
		BusinessID:          businessID,
		AmountCents:         1000,
		Currency:            "usd",
		GiftCardCode:        "ABC",
		GiftCardAmountCents: &giftCardAmount,
	})
	require.NoError(t, err)

	require.NoError(t, f.engine.CancelExternal(ctx, result.ExternalSessionID))

	payment, err := f.payments.GetByID(ctx, result.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCancelled, payment.Status)
	// Отложенное списание так и не произошло
	assert.Equal(t, int64(10000), f.cardBalance(t, card.ID))

	// Отмена терминального платежа молча игнорируется
	require.NoError(t, f.engine.CancelExternal(ctx, result.ExternalSessionID))
	require.NoError(t, f.engine.ConfirmExternalSuccess(ctx, result.ExternalSessionID))

	payment, err = f.payments.GetByID(ctx, result.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCancelled, payment.Status)
	assert.Equal(t, int64(10000), f.cardBalance(t, card.ID))
}

func TestRefundFullRestoresBothLegs(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	businessID := uuid.New()
	card := f.issueCard(t, businessID, "ABC", 10000)

	giftCardAmount := int64(500)
	result, err := f.engine.CreatePayment(ctx, domain.CreatePaymentRequest{
		OrderID:             uuid.New(),
		BusinessID:          businessID,
		AmountCents:         1000,
		Currency:            "usd",
		GiftCardCode:        "ABC",
		GiftCardAmountCents: &giftCardAmount,
	})
	require.NoError(t, err)
	require.NoError(t, f.engine.ConfirmExternalSuccess(ctx, result.ExternalSessionID))
	require.Equal(t, int64(9500), f.cardBalance(t, card.ID))

	require.NoError(t, f.engine.RefundFull(ctx, businessID, result.PaymentID))

	payment, err := f.payments.GetByID(ctx, result.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, payment.Status)
	require.NotNil(t, payment.RefundedAt)

	// Внешняя доля возвращена процессором, доля карты вернулась на карту
	assert.Equal(t, int64(500), f.gateway.refunds[result.ExternalSessionID])
	assert.Equal(t, int64(10000), f.cardBalance(t, card.ID))

	// Повторный возврат отклоняется
	err = f.engine.RefundFull(ctx, businessID, result.PaymentID)
	reason, ok := domain.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.ReasonInvalidState, reason)
}

func TestRefundFullRejectsNonSuccess(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	businessID := uuid.New()

	result, err := f.engine.CreatePayment(ctx, domain.CreatePaymentRequest{
		OrderID:     uuid.New(),
		BusinessID:  businessID,
		AmountCents: 1000,
		Currency:    "usd",
	})
	require.NoError(t, err)

	err = f.engine.RefundFull(ctx, businessID, result.PaymentID)
	reason, ok := domain.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.ReasonInvalidState, reason)
}

func TestRefundFullScopedToBusiness(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	businessID := uuid.New()
	f.issueCard(t, businessID, "ABC", 10000)

	result, err := f.engine.CreatePayment(ctx, domain.CreatePaymentRequest{
		OrderID:      uuid.New(),
		BusinessID:   businessID,
		AmountCents:  1000,
		Currency:     "usd",
		GiftCardCode: "ABC",
	})
	require.NoError(t, err)

	// Чужой бизнес не видит платеж
	err = f.engine.RefundFull(ctx, uuid.New(), result.PaymentID)
	reason, ok := domain.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.ReasonNotFound, reason)
}

func TestListByOrderScopedToBusiness(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	businessID := uuid.New()
	orderID := uuid.New()

	_, err := f.engine.CreatePayment(ctx, domain.CreatePaymentRequest{
		OrderID:     orderID,
		BusinessID:  businessID,
		AmountCents: 1000,
		Currency:    "usd",
	})
	require.NoError(t, err)

	payments, err := f.engine.ListByOrder(ctx, businessID, orderID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)

	foreign, err := f.engine.ListByOrder(ctx, uuid.New(), orderID)
	require.NoError(t, err)
	assert.Empty(t, foreign)
}

// Конкурентные подтверждения одной сессии списывают карту ровно один раз
func TestConcurrentConfirmationsSettleOnce(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	businessID := uuid.New()
	card := f.issueCard(t, businessID, "ABC", 10000)

	giftCardAmount := int64(500)
	result, err := f.engine.CreatePayment(ctx, domain.CreatePaymentRequest{
		OrderID:             uuid.New(),
		BusinessID:          businessID,
		AmountCents:         1000,
		Currency:            "usd",
		GiftCardCode:        "ABC",
		GiftCardAmountCents: &giftCardAmount,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.engine.ConfirmExternalSuccess(ctx, result.ExternalSessionID))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(9500), f.cardBalance(t, card.ID))
}
