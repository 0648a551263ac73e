package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/taskfolio/taskfolio-backend/internal/audit"
	"github.com/taskfolio/taskfolio-backend/internal/billing"
	"github.com/taskfolio/taskfolio-backend/pkg/db/models"
	"github.com/taskfolio/taskfolio-backend/pkg/enums"
	"github.com/taskfolio/taskfolio-backend/pkg/logger"
)

type fakeBillingRepo struct {
	byWorkspace map[uuid.UUID]*models.Subscription
}

func newFakeBillingRepo() *fakeBillingRepo {
	return &fakeBillingRepo{byWorkspace: map[uuid.UUID]*models.Subscription{}}
}

func (f *fakeBillingRepo) WithTx(tx *gorm.DB) billing.Repository { return f }

func (f *fakeBillingRepo) Create(ctx context.Context, sub *models.Subscription) error {
	if _, ok := f.byWorkspace[sub.WorkspaceID]; ok {
		return errors.New(`duplicate key value violates unique constraint`)
	}
	sub.ID = uuid.New()
	copied := *sub
	f.byWorkspace[sub.WorkspaceID] = &copied
	return nil
}

func (f *fakeBillingRepo) Update(ctx context.Context, sub *models.Subscription) error {
	copied := *sub
	f.byWorkspace[sub.WorkspaceID] = &copied
	return nil
}

func (f *fakeBillingRepo) FindByWorkspace(ctx context.Context, workspaceID uuid.UUID) (*models.Subscription, error) {
	sub, ok := f.byWorkspace[workspaceID]
	if !ok {
		return nil, nil
	}
	copied := *sub
	return &copied, nil
}

func (f *fakeBillingRepo) FindByStripeCustomerID(ctx context.Context, customerID string) (*models.Subscription, error) {
	for _, sub := range f.byWorkspace {
		if sub.StripeCustomerID != nil && *sub.StripeCustomerID == customerID {
			copied := *sub
			return &copied, nil
		}
	}
	return nil, nil
}

type fakeEventRepo struct {
	byID map[string]*models.WebhookEvent
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{byID: map[string]*models.WebhookEvent{}}
}

func (f *fakeEventRepo) WithTx(tx *gorm.DB) EventRepository { return f }

func (f *fakeEventRepo) Insert(ctx context.Context, event *models.WebhookEvent) error {
	if _, ok := f.byID[event.EventID]; ok {
		return errors.New(`duplicate key value violates unique constraint "webhook_events_pkey"`)
	}
	copied := *event
	f.byID[event.EventID] = &copied
	return nil
}

func (f *fakeEventRepo) Find(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	event, ok := f.byID[eventID]
	if !ok {
		return nil, nil
	}
	copied := *event
	return &copied, nil
}

func (f *fakeEventRepo) Update(ctx context.Context, event *models.WebhookEvent) error {
	copied := *event
	f.byID[event.EventID] = &copied
	return nil
}

type fakeAuditRepo struct {
	entries []models.AuditLog
}

func (f *fakeAuditRepo) WithTx(tx *gorm.DB) audit.Repository { return f }

func (f *fakeAuditRepo) Create(ctx context.Context, entry *models.AuditLog) error {
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeAuditRepo) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID, query audit.ListQuery) ([]models.AuditLog, error) {
	return f.entries, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type harness struct {
	svc       *Service
	billing   *fakeBillingRepo
	events    *fakeEventRepo
	auditRepo *fakeAuditRepo
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	billingRepo := newFakeBillingRepo()
	eventRepo := newFakeEventRepo()
	auditRepo := &fakeAuditRepo{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	ledger, err := NewLedger(eventRepo)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	auditSvc, err := audit.NewService(audit.ServiceParams{Repo: auditRepo, Logger: logg})
	if err != nil {
		t.Fatalf("audit.NewService: %v", err)
	}

	svc, err := NewService(ServiceParams{
		BillingRepo:       billingRepo,
		Ledger:            ledger,
		Audit:             auditSvc,
		Logger:            logg,
		Prices:            billing.PriceTable{ProPriceID: "price_pro", StarterPriceID: "price_starter"},
		TransactionRunner: fakeTxRunner{},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	return &harness{svc: svc, billing: billingRepo, events: eventRepo, auditRepo: auditRepo}
}

func newEvent(t *testing.T, id string, eventType stripe.EventType, object string) *stripe.Event {
	t.Helper()
	var objMap map[string]interface{}
	if err := json.Unmarshal([]byte(object), &objMap); err != nil {
		t.Fatalf("invalid event object: %v", err)
	}
	return &stripe.Event{
		ID:   id,
		Type: eventType,
		Data: &stripe.EventData{
			Raw:    json.RawMessage(object),
			Object: objMap,
		},
	}
}

func TestProcessCheckoutCompleted(t *testing.T) {
	h := newHarness(t)
	workspaceID := uuid.New()

	event := newEvent(t, "evt_1", stripe.EventTypeCheckoutSessionCompleted, `{
		"id": "cs_1",
		"client_reference_id": "`+workspaceID.String()+`",
		"customer": "cus_1",
		"subscription": "sub_1",
		"metadata": {"price_id": "price_pro"}
	}`)

	duplicate, err := h.svc.Process(context.Background(), event)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if duplicate {
		t.Fatal("first delivery flagged as duplicate")
	}

	sub := h.billing.byWorkspace[workspaceID]
	if sub == nil {
		t.Fatal("subscription not created")
	}
	if sub.Status != enums.SubscriptionStatusActive {
		t.Fatalf("expected active, got %s", sub.Status)
	}
	if sub.Plan != string(enums.PlanPro) {
		t.Fatalf("expected pro plan, got %q", sub.Plan)
	}
	if sub.StripeCustomerID == nil || *sub.StripeCustomerID != "cus_1" {
		t.Fatal("customer id not stored")
	}
	if sub.StripeSubscriptionID == nil || *sub.StripeSubscriptionID != "sub_1" {
		t.Fatal("subscription id not stored")
	}

	record := h.events.byID["evt_1"]
	if record == nil || record.Status != enums.WebhookEventStatusProcessed {
		t.Fatalf("expected processed ledger record, got %+v", record)
	}
	if record.ProcessedAt == nil {
		t.Fatal("processed_at not set")
	}

	if len(h.auditRepo.entries) != 1 || h.auditRepo.entries[0].Action != audit.ActionSubscriptionCreated {
		t.Fatalf("unexpected audit entries: %+v", h.auditRepo.entries)
	}
}

func TestProcessDuplicateDelivery(t *testing.T) {
	h := newHarness(t)
	workspaceID := uuid.New()

	object := `{
		"id": "cs_1",
		"client_reference_id": "` + workspaceID.String() + `",
		"customer": "cus_1",
		"metadata": {"price_id": "price_starter"}
	}`

	first := newEvent(t, "evt_dup", stripe.EventTypeCheckoutSessionCompleted, object)
	if _, err := h.svc.Process(context.Background(), first); err != nil {
		t.Fatalf("first Process: %v", err)
	}

	auditCount := len(h.auditRepo.entries)
	second := newEvent(t, "evt_dup", stripe.EventTypeCheckoutSessionCompleted, object)
	duplicate, err := h.svc.Process(context.Background(), second)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if !duplicate {
		t.Fatal("redelivery not detected as duplicate")
	}
	if len(h.auditRepo.entries) != auditCount {
		t.Fatal("duplicate delivery produced side effects")
	}
}

func TestProcessSubscriptionDeleted(t *testing.T) {
	h := newHarness(t)
	workspaceID := uuid.New()
	customerID := "cus_del"
	h.billing.byWorkspace[workspaceID] = &models.Subscription{
		ID:               uuid.New(),
		WorkspaceID:      workspaceID,
		Plan:             string(enums.PlanPro),
		Status:           enums.SubscriptionStatusActive,
		StripeCustomerID: &customerID,
	}

	event := newEvent(t, "evt_del", stripe.EventTypeCustomerSubscriptionDeleted, `{
		"id": "sub_del",
		"customer": "cus_del",
		"status": "canceled"
	}`)

	if _, err := h.svc.Process(context.Background(), event); err != nil {
		t.Fatalf("Process: %v", err)
	}

	sub := h.billing.byWorkspace[workspaceID]
	if sub.Status != enums.SubscriptionStatusCanceled {
		t.Fatalf("expected canceled, got %s", sub.Status)
	}
	if sub.Plan != string(enums.PlanPro) {
		t.Fatalf("plan should be retained, got %q", sub.Plan)
	}
}

func TestProcessSubscriptionUpdatedSyncsPlanAndTrial(t *testing.T) {
	h := newHarness(t)
	workspaceID := uuid.New()
	customerID := "cus_upd"
	h.billing.byWorkspace[workspaceID] = &models.Subscription{
		ID:               uuid.New(),
		WorkspaceID:      workspaceID,
		Plan:             string(enums.PlanStarter),
		Status:           enums.SubscriptionStatusTrialing,
		StripeCustomerID: &customerID,
	}

	event := newEvent(t, "evt_upd", stripe.EventTypeCustomerSubscriptionUpdated, `{
		"id": "sub_upd",
		"customer": "cus_upd",
		"status": "active",
		"trial_end": 1773000000,
		"items": {"data": [{"price": {"id": "price_pro"}}]}
	}`)

	if _, err := h.svc.Process(context.Background(), event); err != nil {
		t.Fatalf("Process: %v", err)
	}

	sub := h.billing.byWorkspace[workspaceID]
	if sub.Status != enums.SubscriptionStatusActive {
		t.Fatalf("expected active, got %s", sub.Status)
	}
	if sub.Plan != string(enums.PlanPro) {
		t.Fatalf("expected pro after price change, got %q", sub.Plan)
	}
	if sub.TrialEndsAt == nil {
		t.Fatal("trial end not synced")
	}
	if sub.StripeSubscriptionID == nil || *sub.StripeSubscriptionID != "sub_upd" {
		t.Fatal("subscription id not synced")
	}
}

func TestProcessInvoicePaymentFailed(t *testing.T) {
	h := newHarness(t)
	workspaceID := uuid.New()
	customerID := "cus_fail"
	h.billing.byWorkspace[workspaceID] = &models.Subscription{
		ID:               uuid.New(),
		WorkspaceID:      workspaceID,
		Plan:             string(enums.PlanStarter),
		Status:           enums.SubscriptionStatusActive,
		StripeCustomerID: &customerID,
	}

	event := newEvent(t, "evt_inv", stripe.EventTypeInvoicePaymentFailed, `{
		"id": "in_1",
		"customer": "cus_fail"
	}`)

	if _, err := h.svc.Process(context.Background(), event); err != nil {
		t.Fatalf("Process: %v", err)
	}

	sub := h.billing.byWorkspace[workspaceID]
	if sub.Status != enums.SubscriptionStatusPastDue {
		t.Fatalf("expected past_due, got %s", sub.Status)
	}
	if len(h.auditRepo.entries) != 1 || h.auditRepo.entries[0].Action != audit.ActionInvoicePaymentFailed {
		t.Fatalf("unexpected audit entries: %+v", h.auditRepo.entries)
	}
}

func TestProcessFailureAllowsRetry(t *testing.T) {
	h := newHarness(t)

	// No workspace reference at all: the handler must fail and the ledger
	// record must stay retryable.
	event := newEvent(t, "evt_bad", stripe.EventTypeCheckoutSessionCompleted, `{"id": "cs_bad"}`)

	if _, err := h.svc.Process(context.Background(), event); err == nil {
		t.Fatal("expected handler error")
	}

	record := h.events.byID["evt_bad"]
	if record == nil || record.Status != enums.WebhookEventStatusError {
		t.Fatalf("expected error ledger record, got %+v", record)
	}
	if record.ErrorMessage == nil {
		t.Fatal("error message not stored")
	}

	// Redelivery of a failed event is not a duplicate.
	retry := newEvent(t, "evt_bad", stripe.EventTypeCheckoutSessionCompleted, `{"id": "cs_bad"}`)
	duplicate, err := h.svc.Process(context.Background(), retry)
	if duplicate {
		t.Fatal("failed event short-circuited as duplicate")
	}
	if err == nil {
		t.Fatal("expected retry to fail again")
	}
}

func TestProcessIgnoresUnhandledTypes(t *testing.T) {
	h := newHarness(t)

	event := newEvent(t, "evt_other", "customer.created", `{"id": "cus_x"}`)
	duplicate, err := h.svc.Process(context.Background(), event)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if duplicate {
		t.Fatal("unexpected duplicate")
	}

	record := h.events.byID["evt_other"]
	if record == nil || record.Status != enums.WebhookEventStatusProcessed {
		t.Fatalf("expected processed record for ignored type, got %+v", record)
	}
}
