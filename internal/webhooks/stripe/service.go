package stripewebhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/taskfolio/taskfolio-backend/internal/audit"
	"github.com/taskfolio/taskfolio-backend/internal/billing"
	"github.com/taskfolio/taskfolio-backend/pkg/db/models"
	"github.com/taskfolio/taskfolio-backend/pkg/enums"
	pkgerrors "github.com/taskfolio/taskfolio-backend/pkg/errors"
	"github.com/taskfolio/taskfolio-backend/pkg/logger"
	"github.com/taskfolio/taskfolio-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the Stripe webhook service.
type ServiceParams struct {
	BillingRepo       billing.Repository
	Ledger            *Ledger
	Audit             *audit.Service
	Logger            *logger.Logger
	Metrics           *metrics.WebhookMetrics
	Prices            billing.PriceTable
	TransactionRunner txRunner
}

// Service applies Stripe events to the local subscription state exactly once.
type Service struct {
	billingRepo billing.Repository
	ledger      *Ledger
	audit       *audit.Service
	logger      *logger.Logger
	metrics     *metrics.WebhookMetrics
	prices      billing.PriceTable
	txRunner    txRunner
}

// NewService builds a webhook service.
func NewService(params ServiceParams) (*Service, error) {
	if params.BillingRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "event ledger required")
	}
	if params.Audit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &Service{
		billingRepo: params.BillingRepo,
		ledger:      params.Ledger,
		audit:       params.Audit,
		logger:      params.Logger,
		metrics:     params.Metrics,
		prices:      params.Prices,
		txRunner:    params.TransactionRunner,
	}, nil
}

// Process records and applies one Stripe event delivery. The returned bool
// reports whether the delivery was a duplicate of an already applied event.
func (s *Service) Process(ctx context.Context, event *stripe.Event) (bool, error) {
	if event == nil || event.ID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "stripe event is required")
	}

	start := time.Now()
	ctx = s.logger.WithEventID(ctx, event.ID)

	workspaceID, err := s.resolveWorkspaceID(ctx, event)
	if err != nil {
		return false, err
	}
	if workspaceID != nil {
		ctx = s.logger.WithWorkspaceID(ctx, workspaceID.String())
	}

	record, duplicate, err := s.ledger.EnsureLogged(ctx, event, workspaceID)
	if err != nil {
		return false, err
	}
	if duplicate {
		s.metrics.IncDuplicate(string(event.Type))
		s.logger.Info(ctx, "duplicate webhook delivery skipped")
		return true, nil
	}

	if handlerErr := s.handleEvent(ctx, event, workspaceID); handlerErr != nil {
		if markErr := s.ledger.MarkError(ctx, record, handlerErr); markErr != nil {
			s.logger.Error(ctx, "marking webhook event failed", markErr)
		}
		s.metrics.IncFailure(string(event.Type))
		return false, handlerErr
	}

	if err := s.ledger.MarkProcessed(ctx, record, workspaceID); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize webhook event")
	}

	s.metrics.IncProcessed(string(event.Type))
	s.metrics.ObserveDuration(string(event.Type), time.Since(start))
	return false, nil
}

func (s *Service) handleEvent(ctx context.Context, event *stripe.Event, workspaceID *uuid.UUID) error {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		return s.handleCheckoutCompleted(ctx, event, workspaceID)
	case stripe.EventTypeCheckoutSessionExpired:
		return s.handleCheckoutExpired(ctx, event, workspaceID)
	case stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted,
		stripe.EventTypeCustomerSubscriptionTrialWillEnd:
		return s.handleSubscriptionEvent(ctx, event, workspaceID)
	case stripe.EventTypeInvoicePaymentFailed:
		return s.handleInvoicePaymentFailed(ctx, event, workspaceID)
	default:
		s.logger.Info(ctx, "ignoring unhandled webhook event type")
		return nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event *stripe.Event, workspaceID *uuid.UUID) error {
	if workspaceID == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session has no workspace reference")
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session")
	}

	plan := s.prices.PlanFor(session.Metadata["price_id"])

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billingRepo.WithTx(tx)
		sub, err := repo.FindByWorkspace(ctx, *workspaceID)
		if err != nil {
			return err
		}

		created := sub == nil
		if created {
			sub = &models.Subscription{WorkspaceID: *workspaceID}
		}
		sub.Plan = string(plan)
		sub.Status = enums.SubscriptionStatusActive
		if session.Customer != nil && session.Customer.ID != "" {
			id := session.Customer.ID
			sub.StripeCustomerID = &id
		}
		if session.Subscription != nil && session.Subscription.ID != "" {
			id := session.Subscription.ID
			sub.StripeSubscriptionID = &id
		}

		if created {
			return repo.Create(ctx, sub)
		}
		return repo.Update(ctx, sub)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply checkout completion")
	}

	s.audit.Record(ctx, audit.Entry{
		WorkspaceID: *workspaceID,
		Action:      audit.ActionSubscriptionCreated,
		Summary:     "checkout completed",
		Metadata:    map[string]any{"plan": string(plan), "event_id": event.ID},
	})
	return nil
}

func (s *Service) handleCheckoutExpired(ctx context.Context, event *stripe.Event, workspaceID *uuid.UUID) error {
	if workspaceID == nil {
		// An expired anonymous session carries no state worth syncing.
		return nil
	}

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billingRepo.WithTx(tx)
		sub, err := repo.FindByWorkspace(ctx, *workspaceID)
		if err != nil {
			return err
		}
		if sub == nil || sub.Status == enums.SubscriptionStatusActive {
			return nil
		}
		sub.Status = enums.SubscriptionStatusIncompleteExpired
		return repo.Update(ctx, sub)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply checkout expiry")
	}

	s.audit.Record(ctx, audit.Entry{
		WorkspaceID: *workspaceID,
		Action:      audit.ActionCheckoutExpired,
		Metadata:    map[string]any{"event_id": event.ID},
	})
	return nil
}

func (s *Service) handleSubscriptionEvent(ctx context.Context, event *stripe.Event, workspaceID *uuid.UUID) error {
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode subscription event")
	}
	if workspaceID == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription event has no workspace reference")
	}

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billingRepo.WithTx(tx)
		sub, err := repo.FindByWorkspace(ctx, *workspaceID)
		if err != nil {
			return err
		}
		created := sub == nil
		if created {
			sub = &models.Subscription{WorkspaceID: *workspaceID}
		}

		if event.Type == stripe.EventTypeCustomerSubscriptionDeleted {
			sub.Status = enums.SubscriptionStatusCanceled
		} else {
			sub.Status = mapSubscriptionStatus(stripeSub.Status)
		}
		if priceID := subscriptionPriceID(&stripeSub); priceID != "" {
			sub.Plan = string(s.prices.PlanFor(priceID))
		}
		if stripeSub.ID != "" {
			id := stripeSub.ID
			sub.StripeSubscriptionID = &id
		}
		if stripeSub.Customer != nil && stripeSub.Customer.ID != "" {
			id := stripeSub.Customer.ID
			sub.StripeCustomerID = &id
		}
		if stripeSub.TrialEnd > 0 {
			trialEnd := time.Unix(stripeSub.TrialEnd, 0).UTC()
			sub.TrialEndsAt = &trialEnd
		}

		if created {
			return repo.Create(ctx, sub)
		}
		return repo.Update(ctx, sub)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sync subscription state")
	}

	s.audit.Record(ctx, audit.Entry{
		WorkspaceID: *workspaceID,
		Action:      "billing." + string(event.Type),
		Metadata:    map[string]any{"event_id": event.ID, "status": string(stripeSub.Status)},
	})
	return nil
}

func (s *Service) handleInvoicePaymentFailed(ctx context.Context, event *stripe.Event, workspaceID *uuid.UUID) error {
	if workspaceID == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "invoice event has no workspace reference")
	}

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billingRepo.WithTx(tx)
		sub, err := repo.FindByWorkspace(ctx, *workspaceID)
		if err != nil {
			return err
		}
		if sub == nil {
			return nil
		}
		sub.Status = enums.SubscriptionStatusPastDue
		return repo.Update(ctx, sub)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply payment failure")
	}

	s.audit.Record(ctx, audit.Entry{
		WorkspaceID: *workspaceID,
		Action:      audit.ActionInvoicePaymentFailed,
		Metadata:    map[string]any{"event_id": event.ID},
	})
	return nil
}

// resolveWorkspaceID extracts the workspace the event belongs to, in order of
// preference: checkout client_reference_id, object metadata, then a customer
// id lookup against stored subscriptions.
func (s *Service) resolveWorkspaceID(ctx context.Context, event *stripe.Event) (*uuid.UUID, error) {
	if ref := event.GetObjectValue("client_reference_id"); ref != "" {
		if id, err := uuid.Parse(ref); err == nil {
			return &id, nil
		}
	}
	if ref := event.GetObjectValue("metadata", "workspace_id"); ref != "" {
		if id, err := uuid.Parse(ref); err == nil {
			return &id, nil
		}
	}
	if customerID := event.GetObjectValue("customer"); customerID != "" {
		sub, err := s.billingRepo.FindByStripeCustomerID(ctx, customerID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve workspace by customer")
		}
		if sub != nil {
			id := sub.WorkspaceID
			return &id, nil
		}
	}
	return nil, nil
}

func mapSubscriptionStatus(status stripe.SubscriptionStatus) enums.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusTrialing:
		return enums.SubscriptionStatusTrialing
	case stripe.SubscriptionStatusActive:
		return enums.SubscriptionStatusActive
	case stripe.SubscriptionStatusPastDue:
		return enums.SubscriptionStatusPastDue
	case stripe.SubscriptionStatusCanceled:
		return enums.SubscriptionStatusCanceled
	case stripe.SubscriptionStatusIncompleteExpired:
		return enums.SubscriptionStatusIncompleteExpired
	default:
		return enums.SubscriptionStatusInactive
	}
}

func subscriptionPriceID(sub *stripe.Subscription) string {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	if sub.Items.Data[0].Price != nil {
		return sub.Items.Data[0].Price.ID
	}
	return ""
}
