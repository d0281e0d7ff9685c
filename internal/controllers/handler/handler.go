package handler

import (
	"context"
	"fmt"
	"outreach/internal/appers"
	"outreach/internal/application/common"
	"outreach/internal/application/entity"
	use_cases "outreach/internal/application/use-cases"
	"outreach/pkg/validator"
	"time"

	playgroundvalidator "github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

type Handler interface {
	CreateCampaign(c *fiber.Ctx) error
	UpdateCampaign(c *fiber.Ctx) error
	GetCampaign(c *fiber.Ctx) error
	GetCampaignAnalytics(c *fiber.Ctx) error
	AddLeadsToCampaign(c *fiber.Ctx) error
	ProviderWebhook(c *fiber.Ctx) error
	HealthCheck(c *fiber.Ctx) error
}

type HandlerImpl struct {
	usecase use_cases.UseCaser
	logger  *zap.SugaredLogger
}

func NewOutreachHandler(usecase use_cases.UseCaser, logger *zap.SugaredLogger) *HandlerImpl {
	return &HandlerImpl{
		usecase: usecase,
		logger:  logger,
	}
}

// formatValidationErrors renders validator errors in a client-facing shape.
func formatValidationErrors(err error) fiber.Map {
	var errors []string
	if validationErrors, ok := err.(playgroundvalidator.ValidationErrors); ok {
		for _, e := range validationErrors {
			field := e.Field()
			tag := e.Tag()
			var message string
			switch tag {
			case "required":
				message = fmt.Sprintf("field '%s' is required", field)
			case "min":
				message = fmt.Sprintf("field '%s' must have at least %s", field, e.Param())
			case "max":
				message = fmt.Sprintf("field '%s' must have at most %s", field, e.Param())
			case "uuid4":
				message = fmt.Sprintf("field '%s' must be a valid UUID", field)
			case "oneof":
				message = fmt.Sprintf("field '%s' must be one of: %s", field, e.Param())
			case "provider_event":
				message = fmt.Sprintf("field '%s' is not a known provider event type", field)
			default:
				message = fmt.Sprintf("field '%s' failed validation: %s", field, tag)
			}
			errors = append(errors, message)
		}
	} else {
		errors = append(errors, err.Error())
	}
	return fiber.Map{
		"error":   "validation failed",
		"details": errors,
	}
}

func parseIDParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.FromString(c.Params(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

func (h *HandlerImpl) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	dbHealthy, kafkaHealthy, _ := h.usecase.HealthCheck(ctx)

	health := entity.HealthCheckResponse{
		Status:  dbHealthy && kafkaHealthy,
		Message: "success",
		Version: common.Version,
		Checks: entity.HealthCheckResponseData{
			Database: entity.HealthCheckItem{Status: dbHealthy, Type: "postgresql"},
			Kafka:    entity.HealthCheckItem{Status: kafkaHealthy, Type: "kafka"},
		},
	}
	if !dbHealthy {
		health.Checks.Database.Error = "Database connection failed"
		health.Message = "Some services are unavailable"
	}
	if !kafkaHealthy {
		health.Checks.Kafka.Error = "Kafka connection failed"
		health.Message = "Some services are unavailable"
	}

	if !dbHealthy || !kafkaHealthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(health)
	}

	return c.Status(fiber.StatusOK).JSON(health)
}

func (h *HandlerImpl) CreateCampaign(c *fiber.Ctx) error {
	var req entity.CampaignRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Errorf("error parsing body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := validator.Validate.Struct(&req); err != nil {
		h.logger.Warnf("validation error: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(formatValidationErrors(err))
	}

	campaign, err := h.usecase.CreateCampaign(c.Context(), req)
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(campaign)
}

func (h *HandlerImpl) UpdateCampaign(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req entity.CampaignUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Errorf("error parsing body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := validator.Validate.Struct(&req); err != nil {
		h.logger.Warnf("validation error: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(formatValidationErrors(err))
	}

	campaign, err := h.usecase.UpdateCampaign(c.Context(), id, req)
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(campaign)
}

func (h *HandlerImpl) GetCampaign(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	campaign, err := h.usecase.GetCampaign(c.Context(), id)
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(campaign)
}

func (h *HandlerImpl) GetCampaignAnalytics(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	analytics, err := h.usecase.GetCampaignAnalytics(c.Context(), id)
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(analytics)
}

func (h *HandlerImpl) AddLeadsToCampaign(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req entity.EnrollRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Errorf("error parsing body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := validator.Validate.Struct(&req); err != nil {
		h.logger.Warnf("validation error: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(formatValidationErrors(err))
	}

	leadIDs := make([]uuid.UUID, 0, len(req.LeadIDs))
	for _, raw := range req.LeadIDs {
		leadID, err := uuid.FromString(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("invalid lead id %q", raw),
			})
		}
		leadIDs = append(leadIDs, leadID)
	}

	enrolled, err := h.usecase.AddLeadsToCampaign(c.Context(), id, leadIDs)
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"enrolled":  enrolled,
		"requested": len(leadIDs),
	})
}

// ProviderWebhook accepts delivery/engagement callbacks from the email
// provider. The callback only lands an outbox row; all side effects run
// asynchronously in the dispatcher.
func (h *HandlerImpl) ProviderWebhook(c *fiber.Ctx) error {
	var n entity.ProviderNotification
	if err := c.BodyParser(&n); err != nil {
		h.logger.Errorf("error parsing body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if err := validator.Validate.Struct(&n); err != nil {
		h.logger.Warnf("validation error: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(formatValidationErrors(err))
	}

	eventID, err := h.usecase.IngestProviderNotification(c.Context(), n)
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"eventId": eventID})
}
