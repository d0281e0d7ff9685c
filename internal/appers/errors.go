package appers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

var (
	// ErrNoHandler marks outbox events whose type has no registered handler.
	ErrNoHandler = errors.New("no handler registered for event type")
	// ErrDeliveryNotFound is returned when a provider message id does not
	// resolve to a delivery record. Engagement handlers treat it as a no-op.
	ErrDeliveryNotFound = errors.New("delivery record not found")
)

type ErrorResp struct {
	StatusCode int    `json:"statusCode,omitempty"`
	StatusDesc string `json:"statusDesc,omitempty"`
}

func (e ErrorResp) Error() string {
	return e.StatusDesc
}

var (
	ErrCampaignNotFound = ErrorResp{
		http.StatusNotFound,
		"campaign not found",
	}
	ErrLeadNotFound = ErrorResp{
		http.StatusNotFound,
		"lead not found",
	}
	// ErrStepsNotContiguous rejects step lists whose order is not 1..n.
	ErrStepsNotContiguous = ErrorResp{
		http.StatusBadRequest,
		"step order must be contiguous starting at 1",
	}
	ErrCampaignHasNoSteps = ErrorResp{
		http.StatusUnprocessableEntity,
		"campaign has no steps",
	}
	ErrInvalidStatusTransition = ErrorResp{
		http.StatusConflict,
		"invalid campaign status transition",
	}
)

func SanitizeError(c *fiber.Ctx, err error) error {
	var errResp ErrorResp

	if ok := errors.As(err, &errResp); ok {
		return c.Status(errResp.StatusCode).JSON(fiber.Map{
			"message": errResp.StatusDesc,
		})
	}
	return NewErr(c, http.StatusInternalServerError, err)
}

func NewErr(ctx *fiber.Ctx, status int, err error) error {
	return ctx.Status(status).JSON(fiber.Map{
		"message": err.Error(),
	})
}
