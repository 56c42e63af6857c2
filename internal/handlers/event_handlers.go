package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Lovjeet1233/kepleroai-automation-service/internal/models"
	"github.com/Lovjeet1233/kepleroai-automation-service/internal/services"
	"github.com/Lovjeet1233/kepleroai-automation-service/internal/triggers"
)

// IngestEvent handles POST /api/v1/events. Other Keplero services submit
// events here over HTTP as an alternative to the Redis channels; the internal
// token middleware guards the route.
func (h *Handlers) IngestEvent(c *fiber.Ctx) error {
	event, err := services.ParseEvent(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	ec := &models.ExecContext{
		WorkspaceID: event.WorkspaceID,
		UserID:      event.UserID,
	}

	results, err := h.services.Dispatcher.Dispatch(c.Context(), event, ec)
	if err != nil {
		h.logger.Error("Failed to dispatch event",
			zap.String("event_id", event.ID),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to dispatch event",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"event_id": event.ID,
		"results":  results,
	})
}

// ExecuteAutomation handles POST /api/v1/automations/:id/execute. It runs one
// automation synchronously against the supplied event, or a synthetic manual
// event when the body is empty, and returns the execution record.
func (h *Handlers) ExecuteAutomation(c *fiber.Ctx) error {
	automation, err := h.loadWorkspaceAutomation(c)
	if err != nil {
		return err
	}

	ec, err := h.execContextFromLocals(c)
	if err != nil {
		return err
	}

	var event *models.Event
	if len(c.Body()) > 0 {
		event, err = services.ParseEvent(c.Body())
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	} else {
		event = manualEvent(automation, ec)
	}

	execution, err := h.services.Engine.Execute(c.Context(), automation.ID, event, ec)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAutomationNotFound):
			return fiber.NewError(fiber.StatusNotFound, "Automation not found or inactive")
		case errors.Is(err, services.ErrMissingTrigger), errors.Is(err, services.ErrMultipleTriggers):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		h.logger.Error("Manual automation run failed",
			zap.Uint("automation_id", automation.ID),
			zap.Error(err))

		// The record carries the failure detail; return it with the error.
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":     err.Error(),
			"execution": execution,
		})
	}

	return c.JSON(execution)
}

// manualEvent synthesizes the event for a body-less manual run. It reuses the
// automation's own trigger kind so kind checks pass.
func manualEvent(automation *models.Automation, ec *models.ExecContext) *models.Event {
	event := &models.Event{
		ID:          uuid.NewString(),
		WorkspaceID: ec.WorkspaceID,
		UserID:      ec.UserID,
		Source:      "manual",
		Timestamp:   time.Now().UTC(),
	}

	if trigger := automation.TriggerNode(); trigger != nil {
		event.Kind = manualEventKind(trigger.Service)
	}

	return event
}

func manualEventKind(triggerKind string) models.EventKind {
	switch triggerKind {
	case triggers.KindContactCreated:
		return models.EventKindContactCreated
	case triggers.KindContactDeleted:
		return models.EventKindContactDeleted
	case triggers.KindContactMovedToList:
		return models.EventKindContactMoved
	case triggers.KindMassSendInitiated:
		return models.EventKindMassSendInitiated
	case triggers.KindSchedule:
		return models.EventKindScheduleFired
	}
	return ""
}
