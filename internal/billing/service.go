package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/taskfolio/taskfolio-backend/internal/entitlements"
	"github.com/taskfolio/taskfolio-backend/pkg/db"
	"github.com/taskfolio/taskfolio-backend/pkg/db/models"
	"github.com/taskfolio/taskfolio-backend/pkg/enums"
	pkgerrors "github.com/taskfolio/taskfolio-backend/pkg/errors"
	"github.com/taskfolio/taskfolio-backend/pkg/logger"
)

const defaultTrialLength = 14 * 24 * time.Hour

// PriceTable maps Stripe price ids onto plans. Any paid price that is not
// the pro price resolves to starter.
type PriceTable struct {
	ProPriceID     string
	StarterPriceID string
}

// PlanFor resolves the plan a Stripe price id purchases.
func (p PriceTable) PlanFor(priceID string) enums.PlanID {
	if priceID != "" && priceID == p.ProPriceID {
		return enums.PlanPro
	}
	return enums.PlanStarter
}

// PriceFor returns the Stripe price id that sells the plan, or "" when the
// plan is not purchasable.
func (p PriceTable) PriceFor(plan enums.PlanID) string {
	switch plan {
	case enums.PlanPro:
		return p.ProPriceID
	case enums.PlanStarter:
		return p.StarterPriceID
	default:
		return ""
	}
}

// CheckoutURLs carries the redirect targets for hosted Stripe surfaces.
type CheckoutURLs struct {
	Success      string
	Cancel       string
	PortalReturn string
}

// ServiceParams groups dependencies for the billing service.
type ServiceParams struct {
	Repo        Repository
	Stripe      StripeBillingClient
	Logger      *logger.Logger
	Prices      PriceTable
	URLs        CheckoutURLs
	TrialLength time.Duration
	Now         func() time.Time
}

// Service owns the subscription lifecycle and the hosted billing surfaces.
type Service struct {
	repo        Repository
	stripe      StripeBillingClient
	logger      *logger.Logger
	prices      PriceTable
	urls        CheckoutURLs
	trialLength time.Duration
	now         func() time.Time
}

// NewService builds a billing service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "repo is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger is required")
	}
	if params.TrialLength <= 0 {
		params.TrialLength = defaultTrialLength
	}
	if params.Now == nil {
		params.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:        params.Repo,
		stripe:      params.Stripe,
		logger:      params.Logger,
		prices:      params.Prices,
		urls:        params.URLs,
		trialLength: params.TrialLength,
		now:         params.Now,
	}, nil
}

// Prices exposes the configured price table for collaborating services.
func (s *Service) Prices() PriceTable {
	return s.prices
}

// EnsureSubscription returns the workspace's subscription row, lazily
// provisioning a trialing starter subscription on first touch. The unique
// index on workspace_id resolves concurrent provisioning races.
func (s *Service) EnsureSubscription(ctx context.Context, workspaceID uuid.UUID) (*models.Subscription, error) {
	existing, err := s.repo.FindByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if existing != nil {
		return existing, nil
	}

	now := s.now()
	trialEnd := now.Add(s.trialLength)
	sub := &models.Subscription{
		WorkspaceID:    workspaceID,
		Plan:           string(enums.PlanStarter),
		Status:         enums.SubscriptionStatusTrialing,
		TrialStartedAt: &now,
		TrialEndsAt:    &trialEnd,
	}

	if err := s.repo.Create(ctx, sub); err != nil {
		if db.IsUniqueViolation(err, "") {
			return s.repo.FindByWorkspace(ctx, workspaceID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "provision subscription")
	}

	ctx = s.logger.WithWorkspaceID(ctx, workspaceID.String())
	s.logger.Info(ctx, "provisioned trial subscription")
	return sub, nil
}

// Summary resolves the workspace's entitlement snapshot, provisioning the
// subscription row if it does not exist yet.
func (s *Service) Summary(ctx context.Context, workspaceID uuid.UUID) (entitlements.Snapshot, error) {
	sub, err := s.EnsureSubscription(ctx, workspaceID)
	if err != nil {
		return entitlements.Snapshot{}, err
	}
	return entitlements.Resolve(sub, s.now()), nil
}

// CreateCheckoutSession opens a hosted checkout for upgrading the workspace
// to a paid plan and returns the redirect URL.
func (s *Service) CreateCheckoutSession(ctx context.Context, workspaceID uuid.UUID, plan enums.PlanID, actorEmail string) (string, error) {
	if s.stripe == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "billing provider not configured")
	}

	priceID := s.prices.PriceFor(plan)
	if priceID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "plan is not purchasable").
			WithDetails(map[string]any{"plan": string(plan)})
	}

	sub, err := s.EnsureSubscription(ctx, workspaceID)
	if err != nil {
		return "", err
	}

	customerID, err := s.ensureCustomer(ctx, sub, actorEmail)
	if err != nil {
		return "", err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(workspaceID.String()),
		SuccessURL:        stripe.String(s.urls.Success),
		CancelURL:         stripe.String(s.urls.Cancel),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(priceID),
			Quantity: stripe.Int64(1),
		}},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"workspace_id": workspaceID.String()},
		},
	}
	params.AddMetadata("workspace_id", workspaceID.String())

	session, err := s.stripe.CreateCheckoutSession(ctx, params)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	return session.URL, nil
}

// CreatePortalSession opens the Stripe billing portal for an existing
// customer and returns the redirect URL.
func (s *Service) CreatePortalSession(ctx context.Context, workspaceID uuid.UUID) (string, error) {
	if s.stripe == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "billing provider not configured")
	}

	sub, err := s.repo.FindByWorkspace(ctx, workspaceID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil || sub.StripeCustomerID == nil || *sub.StripeCustomerID == "" {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, "workspace has no billing profile")
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(*sub.StripeCustomerID),
		ReturnURL: stripe.String(s.urls.PortalReturn),
	}
	session, err := s.stripe.CreatePortalSession(ctx, params)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create portal session")
	}
	return session.URL, nil
}

func (s *Service) ensureCustomer(ctx context.Context, sub *models.Subscription, email string) (string, error) {
	if sub.StripeCustomerID != nil && *sub.StripeCustomerID != "" {
		return *sub.StripeCustomerID, nil
	}

	params := &stripe.CustomerParams{}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata("workspace_id", sub.WorkspaceID.String())

	cust, err := s.stripe.CreateCustomer(ctx, params)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe customer")
	}

	sub.StripeCustomerID = &cust.ID
	if err := s.repo.Update(ctx, sub); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist stripe customer id")
	}
	return cust.ID, nil
}
