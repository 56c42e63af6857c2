package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ListExecutions handles GET /api/v1/automations/:id/executions
func (h *Handlers) ListExecutions(c *fiber.Ctx) error {
	automation, err := h.loadWorkspaceAutomation(c)
	if err != nil {
		return err
	}

	limit, offset := h.getPaginationParams(c)

	executions, err := h.repos.Execution.GetByAutomationID(c.Context(), automation.ID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list executions",
			zap.Uint("automation_id", automation.ID),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list executions",
		})
	}

	return c.JSON(fiber.Map{
		"executions": executions,
		"limit":      limit,
		"offset":     offset,
	})
}

// GetExecution handles GET /api/v1/executions/:id
func (h *Handlers) GetExecution(c *fiber.Ctx) error {
	ec, err := h.execContextFromLocals(c)
	if err != nil {
		return err
	}

	id, err := h.getIDParam(c, "id")
	if err != nil {
		return err
	}

	execution, err := h.repos.Execution.GetByID(c.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load execution", zap.Uint("execution_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load execution",
		})
	}
	if execution == nil {
		return fiber.NewError(fiber.StatusNotFound, "Execution not found")
	}

	// Ownership is checked through the parent automation.
	automation, err := h.repos.Automation.GetByID(c.Context(), execution.AutomationID)
	if err != nil {
		h.logger.Error("Failed to load automation for execution",
			zap.Uint("execution_id", id),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load execution",
		})
	}
	if automation == nil || automation.WorkspaceID != ec.WorkspaceID {
		return fiber.NewError(fiber.StatusNotFound, "Execution not found")
	}

	return c.JSON(execution)
}
