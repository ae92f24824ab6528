package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/billhawk/billhawk/pkg/billing"
	"github.com/billhawk/billhawk/pkg/gateway"
	"github.com/billhawk/billhawk/pkg/models"
	"github.com/billhawk/billhawk/pkg/persistence"
	"github.com/billhawk/billhawk/pkg/reminder"
	"github.com/billhawk/billhawk/pkg/sweeper"
)

// signatureHeaders maps gateway names to the header their webhooks carry a
// signature in. Gateways absent here embed verification data in the payload.
var signatureHeaders = map[string]string{
	"stripe":   "Stripe-Signature",
	"razorpay": "X-Razorpay-Signature",
}

type APIHandlers struct {
	billing   *billing.Service
	scheduler *reminder.Scheduler
	sweeper   *sweeper.Sweeper
	store     persistence.Persistence
	validator *validator.Validate
	logger    *slog.Logger
}

func NewAPIHandlers(
	billingService *billing.Service,
	scheduler *reminder.Scheduler,
	sweep *sweeper.Sweeper,
	store persistence.Persistence,
	validate *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		billing:   billingService,
		scheduler: scheduler,
		sweeper:   sweep,
		store:     store,
		validator: validate,
		logger:    logger.With("module", "web"),
	}
}

// Register mounts every route onto the app.
func (h *APIHandlers) Register(app *fiber.App) {
	payments := app.Group("/payments")

	payments.Post("/links", h.CreateLink)
	payments.Get("/status/:gateway/:paymentId", h.PaymentStatus)
	payments.Post("/refund", h.Refund)
	payments.Post("/webhooks/:gateway", h.Webhook)
	payments.Get("/analytics", h.Analytics)
	payments.Post("/reminders", h.ScheduleReminder)
	payments.Post("/reminders/process", h.ProcessReminders)
	payments.Post("/late-fee-rules", h.CreateLateFeeRule)
	payments.Post("/late-fees/process", h.ProcessLateFees)

	app.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) CreateLink(c fiber.Ctx) error {
	var req CreateLinkRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	link, err := h.billing.CreateLink(c.Context(), req.Gateway, gateway.CreateLinkParams{
		Amount:               req.Amount,
		Currency:             req.Currency,
		Description:          req.Description,
		InvoiceID:            req.InvoiceID,
		ClientEmail:          req.ClientEmail,
		ClientName:           req.ClientName,
		SuccessURL:           req.SuccessURL,
		CancelURL:            req.CancelURL,
		ExpiresAt:            req.ExpiresAt,
		AllowPartialPayments: req.AllowPartialPayments,
		Metadata:             req.Metadata,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(link)
}

func (h *APIHandlers) PaymentStatus(c fiber.Ctx) error {
	gatewayName := c.Params("gateway")
	paymentID := c.Params("paymentId")

	if gatewayName == "" || paymentID == "" {
		return badRequest(c, "Gateway and payment ID are required")
	}

	status, err := h.billing.Status(c.Context(), gatewayName, paymentID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(status)
}

func (h *APIHandlers) Refund(c fiber.Ctx) error {
	var req RefundRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	refund, err := h.billing.Refund(c.Context(), req.Gateway, req.PaymentID, req.Amount)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(refund)
}

// Webhook acknowledges provider deliveries. Anything recoverable answers 200
// so the provider stops retrying; only a signature failure answers 401.
func (h *APIHandlers) Webhook(c fiber.Ctx) error {
	gatewayName := c.Params("gateway")

	signature := ""
	if header, ok := signatureHeaders[gatewayName]; ok {
		signature = c.Get(header)
	}

	_, err := h.billing.IngestWebhook(c.Context(), gatewayName, c.Body(), signature)

	switch {
	case err == nil:
	case gateway.IsSignatureInvalid(err):
		return unauthorized(c, "webhook signature verification failed")
	case gateway.IsGatewayNotFound(err):
		return badRequest(c, err.Error())
	default:
		h.logger.ErrorContext(c.Context(), "Webhook ingestion failed, acknowledging anyway",
			"gateway", gatewayName, "error", err)
	}

	return c.JSON(fiber.Map{"received": true})
}

func (h *APIHandlers) Analytics(c fiber.Ctx) error {
	filter := persistence.PaymentLinkFilter{Gateway: c.Query("gateway")}

	if raw := c.Query("startDate"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return badRequest(c, "Invalid startDate, expected YYYY-MM-DD")
		}

		filter.From = from
	}

	if raw := c.Query("endDate"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return badRequest(c, "Invalid endDate, expected YYYY-MM-DD")
		}

		// Inclusive end date.
		filter.To = to.AddDate(0, 0, 1)
	}

	report, err := h.billing.Analytics(c.Context(), filter)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(report)
}

func (h *APIHandlers) ScheduleReminder(c fiber.Ctx) error {
	var req ScheduleReminderRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	typ, err := models.ParseReminderType(req.Type)
	if err != nil {
		return badRequest(c, "Unknown reminder type: "+req.Type)
	}

	created, err := h.scheduler.Schedule(c.Context(), typ, req.EntityID, req.TargetDate, req.Config)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"scheduled": len(created),
		"schedules": created,
	})
}

// ProcessReminders runs the deadline sweep immediately.
func (h *APIHandlers) ProcessReminders(c fiber.Ctx) error {
	scheduled, err := h.sweeper.SweepDeadlines(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"scheduled": scheduled})
}

// CreateLateFeeRule persists an apply_late_fee automation rule bound to the
// invoice_overdue trigger.
func (h *APIHandlers) CreateLateFeeRule(c fiber.Ctx) error {
	var req LateFeeRuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	now := time.Now().UTC()
	rule := &models.AutomationRule{
		ID:         uuid.NewString(),
		Name:       req.Name,
		Trigger:    models.TriggerSpec{Type: models.TriggerInvoiceOverdue},
		Conditions: req.Conditions,
		Actions: []models.ActionSpec{
			{Type: models.ActionApplyLateFee, Config: req.Config},
		},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.AutomationRules().Save(c.Context(), rule); err != nil {
		return badRequest(c, err.Error())
	}

	return c.Status(fiber.StatusCreated).JSON(rule)
}

// ProcessLateFees runs the overdue sweep immediately.
func (h *APIHandlers) ProcessLateFees(c fiber.Ctx) error {
	transitioned, err := h.sweeper.SweepOverdue(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"transitioned": transitioned})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Billhawk API is healthy"
	httpStatus := http.StatusOK

	storeStatus := "ok"
	if err := h.store.HealthCheck(c.Context()); err != nil {
		storeStatus = err.Error()
		status = "unhealthy"
		message = "Billhawk API is unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checks": fiber.Map{
			"persistence": storeStatus,
		},
	})
}
