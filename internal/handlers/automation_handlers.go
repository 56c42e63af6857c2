package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Lovjeet1233/kepleroai-automation-service/internal/models"
)

// NodeRequest is one pipeline step in a create or update request
type NodeRequest struct {
	Kind     models.NodeKind  `json:"kind"`
	Position int              `json:"position"`
	Service  string           `json:"service,omitempty"`
	Config   models.JSONMap   `json:"config,omitempty"`
	Amount   int              `json:"amount,omitempty"`
	Unit     models.DelayUnit `json:"unit,omitempty"`
}

// AutomationRequest is the create/update payload for an automation
type AutomationRequest struct {
	Name     string        `json:"name"`
	IsActive *bool         `json:"is_active,omitempty"`
	Nodes    []NodeRequest `json:"nodes"`
}

// CreateAutomation handles POST /api/v1/automations
func (h *Handlers) CreateAutomation(c *fiber.Ctx) error {
	ec, err := h.execContextFromLocals(c)
	if err != nil {
		return err
	}

	var req AutomationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.validateAutomationRequest(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	automation := &models.Automation{
		WorkspaceID: ec.WorkspaceID,
		UserID:      ec.UserID,
		Name:        req.Name,
		IsActive:    true,
		Nodes:       buildNodes(req.Nodes),
	}
	if req.IsActive != nil {
		automation.IsActive = *req.IsActive
	}

	if err := h.repos.Automation.Create(c.Context(), automation); err != nil {
		h.logger.Error("Failed to create automation", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create automation",
		})
	}

	h.reloadScheduler(c)

	return c.Status(fiber.StatusCreated).JSON(automation)
}

// ListAutomations handles GET /api/v1/automations
func (h *Handlers) ListAutomations(c *fiber.Ctx) error {
	ec, err := h.execContextFromLocals(c)
	if err != nil {
		return err
	}

	limit, offset := h.getPaginationParams(c)

	automations, err := h.repos.Automation.GetByWorkspaceID(c.Context(), ec.WorkspaceID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list automations", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list automations",
		})
	}

	return c.JSON(fiber.Map{
		"automations": automations,
		"limit":       limit,
		"offset":      offset,
	})
}

// GetAutomation handles GET /api/v1/automations/:id
func (h *Handlers) GetAutomation(c *fiber.Ctx) error {
	automation, err := h.loadWorkspaceAutomation(c)
	if err != nil {
		return err
	}

	return c.JSON(automation)
}

// UpdateAutomation handles PUT /api/v1/automations/:id
func (h *Handlers) UpdateAutomation(c *fiber.Ctx) error {
	automation, err := h.loadWorkspaceAutomation(c)
	if err != nil {
		return err
	}

	var req AutomationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.validateAutomationRequest(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	automation.Name = req.Name
	if req.IsActive != nil {
		automation.IsActive = *req.IsActive
	}
	automation.Nodes = buildNodes(req.Nodes)

	if err := h.repos.Automation.Update(c.Context(), automation); err != nil {
		h.logger.Error("Failed to update automation",
			zap.Uint("automation_id", automation.ID),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update automation",
		})
	}

	h.reloadScheduler(c)

	return c.JSON(automation)
}

// DeleteAutomation handles DELETE /api/v1/automations/:id
func (h *Handlers) DeleteAutomation(c *fiber.Ctx) error {
	automation, err := h.loadWorkspaceAutomation(c)
	if err != nil {
		return err
	}

	if err := h.repos.Automation.Delete(c.Context(), automation.ID); err != nil {
		h.logger.Error("Failed to delete automation",
			zap.Uint("automation_id", automation.ID),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete automation",
		})
	}

	h.reloadScheduler(c)

	return c.JSON(fiber.Map{
		"message": "Automation deleted successfully",
	})
}

// loadWorkspaceAutomation fetches the :id automation and enforces workspace
// ownership. Cross-workspace access reads as not found.
func (h *Handlers) loadWorkspaceAutomation(c *fiber.Ctx) (*models.Automation, error) {
	ec, err := h.execContextFromLocals(c)
	if err != nil {
		return nil, err
	}

	id, err := h.getIDParam(c, "id")
	if err != nil {
		return nil, err
	}

	automation, err := h.repos.Automation.GetByID(c.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load automation", zap.Uint("automation_id", id), zap.Error(err))
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Failed to load automation")
	}
	if automation == nil || automation.WorkspaceID != ec.WorkspaceID {
		return nil, fiber.NewError(fiber.StatusNotFound, "Automation not found")
	}

	return automation, nil
}

func (h *Handlers) validateAutomationRequest(req *AutomationRequest) error {
	if req.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(req.Nodes) == 0 {
		return fmt.Errorf("at least one node is required")
	}

	triggerCount := 0
	positions := make(map[int]bool, len(req.Nodes))

	for i, node := range req.Nodes {
		if positions[node.Position] {
			return fmt.Errorf("node %d: duplicate position %d", i, node.Position)
		}
		positions[node.Position] = true

		switch node.Kind {
		case models.NodeKindTrigger:
			triggerCount++
			if !h.services.Triggers.Has(node.Service) {
				return fmt.Errorf("node %d: unknown trigger kind %q", i, node.Service)
			}
		case models.NodeKindAction:
			if !h.services.Actions.Has(node.Service) {
				return fmt.Errorf("node %d: unknown action kind %q", i, node.Service)
			}
		case models.NodeKindDelay:
			if node.Amount <= 0 {
				return fmt.Errorf("node %d: delay amount must be positive", i)
			}
			if _, ok := node.Unit.Milliseconds(1); !ok {
				return fmt.Errorf("node %d: unknown delay unit %q", i, node.Unit)
			}
		default:
			return fmt.Errorf("node %d: unknown node kind %q", i, node.Kind)
		}
	}

	if triggerCount != 1 {
		return fmt.Errorf("automation must have exactly one trigger node, got %d", triggerCount)
	}

	return nil
}

func buildNodes(reqs []NodeRequest) []models.AutomationNode {
	nodes := make([]models.AutomationNode, 0, len(reqs))
	for _, r := range reqs {
		nodes = append(nodes, models.AutomationNode{
			Kind:     r.Kind,
			Position: r.Position,
			Service:  r.Service,
			Config:   r.Config,
			Amount:   r.Amount,
			Unit:     r.Unit,
		})
	}
	return nodes
}

// reloadScheduler re-syncs cron entries after automation CRUD. A reload
// failure never fails the request; the next reload catches up.
func (h *Handlers) reloadScheduler(c *fiber.Ctx) {
	if err := h.services.Scheduler.Reload(c.Context()); err != nil {
		h.logger.Warn("Failed to reload scheduler after automation change", zap.Error(err))
	}
}
