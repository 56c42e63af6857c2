package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Lovjeet1233/kepleroai-automation-service/internal/models"
	"github.com/Lovjeet1233/kepleroai-automation-service/internal/repositories"
	"github.com/Lovjeet1233/kepleroai-automation-service/internal/services"
)

type Handlers struct {
	services *services.Services
	repos    *repositories.Repositories
	logger   *zap.Logger
}

func New(services *services.Services, repos *repositories.Repositories, logger *zap.Logger) *Handlers {
	return &Handlers{
		services: services,
		repos:    repos,
		logger:   logger,
	}
}

// Ping handles health check requests
func (h *Handlers) Ping(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"service":   "automation-service",
		"timestamp": time.Now(),
	})
}

// execContextFromLocals builds the caller identity the auth middleware stored
func (h *Handlers) execContextFromLocals(c *fiber.Ctx) (*models.ExecContext, error) {
	workspaceID, ok := c.Locals("workspaceID").(uint)
	if !ok || workspaceID == 0 {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Workspace not found in token")
	}
	userID, _ := c.Locals("userID").(uint)

	return &models.ExecContext{WorkspaceID: workspaceID, UserID: userID}, nil
}

// getIDParam extracts a numeric path parameter
func (h *Handlers) getIDParam(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}
	return uint(id), nil
}

// getPaginationParams extracts pagination parameters from query
func (h *Handlers) getPaginationParams(c *fiber.Ctx) (limit, offset int) {
	limit = 20
	offset = 0

	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	return limit, offset
}
