package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taskfolio/taskfolio-backend/api/controllers"
	billingcontrollers "github.com/taskfolio/taskfolio-backend/api/controllers/billing"
	webhookcontrollers "github.com/taskfolio/taskfolio-backend/api/controllers/webhooks"
	"github.com/taskfolio/taskfolio-backend/api/middleware"
	"github.com/taskfolio/taskfolio-backend/internal/audit"
	"github.com/taskfolio/taskfolio-backend/internal/files"
	"github.com/taskfolio/taskfolio-backend/internal/memberships"
	"github.com/taskfolio/taskfolio-backend/internal/projects"
	"github.com/taskfolio/taskfolio-backend/internal/users"
	stripewebhook "github.com/taskfolio/taskfolio-backend/internal/webhooks/stripe"
	"github.com/taskfolio/taskfolio-backend/internal/workspaces"
	"github.com/taskfolio/taskfolio-backend/pkg/config"
	"github.com/taskfolio/taskfolio-backend/pkg/db"
	"github.com/taskfolio/taskfolio-backend/pkg/enums"
	"github.com/taskfolio/taskfolio-backend/pkg/logger"
	"github.com/taskfolio/taskfolio-backend/pkg/redis"
	"github.com/taskfolio/taskfolio-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	workspaceService *workspaces.Service,
	membershipService *memberships.Service,
	billingService billingcontrollers.BillingService,
	usersRepo users.Repository,
	projectService *projects.Service,
	fileService *files.Service,
	auditService *audit.Service,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	anyMember := middleware.RequireWorkspaceRoles(membershipService, logg,
		enums.MemberRoleOwner, enums.MemberRoleAdmin, enums.MemberRoleMember)
	adminOnly := middleware.RequireWorkspaceRoles(membershipService, logg,
		enums.MemberRoleOwner, enums.MemberRoleAdmin)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity(logg))

		r.Post("/workspaces", controllers.WorkspaceCreate(workspaceService, logg))
		r.Get("/workspaces", controllers.WorkspaceList(workspaceService, logg))

		r.Route("/workspaces/{workspaceId}", func(r chi.Router) {
			r.Use(middleware.WorkspaceContext(logg))

			r.With(anyMember).Get("/", controllers.WorkspaceDetail(workspaceService, logg))

			r.Route("/members", func(r chi.Router) {
				r.With(anyMember).Get("/", controllers.MemberList(membershipService, logg))
				r.With(anyMember).Post("/", controllers.MemberInvite(membershipService, logg))
				r.With(anyMember).Patch("/{userId}", controllers.MemberUpdateRole(membershipService, logg))
				r.With(anyMember).Delete("/{userId}", controllers.MemberRemove(membershipService, logg))
			})

			r.With(adminOnly).Get("/audit", controllers.AuditList(auditService, logg))

			r.Route("/billing", func(r chi.Router) {
				r.With(anyMember).Get("/summary", billingcontrollers.EntitlementSummary(billingService, logg))
				r.With(adminOnly).Post("/checkout-session", billingcontrollers.CheckoutSessionCreate(billingService, usersRepo, logg))
				r.With(adminOnly).Post("/portal-session", billingcontrollers.PortalSessionCreate(billingService, logg))
			})

			r.Route("/projects", func(r chi.Router) {
				r.Use(anyMember)
				r.Get("/", controllers.ProjectList(projectService, logg))
				r.Post("/", controllers.ProjectCreate(projectService, logg))
				r.Get("/{projectId}", controllers.ProjectDetail(projectService, logg))
				r.Route("/{projectId}/files", func(r chi.Router) {
					r.Get("/", controllers.FileList(fileService, logg))
					r.Post("/", controllers.FileRegister(fileService, logg))
				})
			})
		})
	})

	return r
}
