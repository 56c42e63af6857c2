package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Lovjeet1233/kepleroai-automation-service/internal/models"
)

// activeAutomationsCacheKey caches the active-definition set the dispatcher
// scans on every event.
const (
	activeAutomationsCacheKey = "automations:active"
	activeAutomationsCacheTTL = 30 * time.Second
)

type automationRepository struct {
	db    *gorm.DB
	redis *redis.Client
}

// NewAutomationRepository creates a new automation repository
func NewAutomationRepository(db *gorm.DB, redis *redis.Client) AutomationRepository {
	return &automationRepository{
		db:    db,
		redis: redis,
	}
}

// Create creates a new automation with its nodes
func (r *automationRepository) Create(ctx context.Context, automation *models.Automation) error {
	if err := r.db.WithContext(ctx).Create(automation).Error; err != nil {
		return fmt.Errorf("failed to create automation: %w", err)
	}

	r.invalidateActiveCache()

	return nil
}

// GetByID retrieves an automation by ID with its nodes preloaded.
// Returns nil, nil when no automation exists.
func (r *automationRepository) GetByID(ctx context.Context, id uint) (*models.Automation, error) {
	var automation models.Automation

	if err := r.db.WithContext(ctx).
		Preload("Nodes").
		First(&automation, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get automation by ID: %w", err)
	}

	return &automation, nil
}

// GetByWorkspaceID retrieves automations by workspace ID with pagination
func (r *automationRepository) GetByWorkspaceID(ctx context.Context, workspaceID uint, limit, offset int) ([]*models.Automation, error) {
	var automations []*models.Automation

	query := r.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Preload("Nodes").
		Order("created_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&automations).Error; err != nil {
		return nil, fmt.Errorf("failed to get automations by workspace ID: %w", err)
	}

	return automations, nil
}

// Update updates an automation and replaces its nodes
func (r *automationRepository) Update(ctx context.Context, automation *models.Automation) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("automation_id = ?", automation.ID).
			Delete(&models.AutomationNode{}).Error; err != nil {
			return err
		}
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(automation).Error
	})
	if err != nil {
		return fmt.Errorf("failed to update automation: %w", err)
	}

	r.invalidateActiveCache()

	return nil
}

// Delete soft deletes an automation
func (r *automationRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&models.Automation{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete automation: %w", err)
	}

	r.invalidateActiveCache()

	return nil
}

// GetActiveAutomations retrieves every active automation with nodes, served
// from the Redis cache when fresh.
func (r *automationRepository) GetActiveAutomations(ctx context.Context) ([]*models.Automation, error) {
	if cached := r.getActiveFromCache(ctx); cached != nil {
		return cached, nil
	}

	var automations []*models.Automation

	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Preload("Nodes").
		Find(&automations).Error; err != nil {
		return nil, fmt.Errorf("failed to get active automations: %w", err)
	}

	r.setActiveCache(ctx, automations)

	return automations, nil
}

// IncrementRunStats bumps the run counter and stamps the last execution time.
// Concurrent runs of the same automation may interleave increments; the
// counter is advisory, so the update is a single atomic SQL expression and
// nothing more.
func (r *automationRepository) IncrementRunStats(ctx context.Context, id uint, at time.Time) error {
	if err := r.db.WithContext(ctx).
		Model(&models.Automation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"execution_count":  gorm.Expr("execution_count + 1"),
			"last_executed_at": at,
		}).Error; err != nil {
		return fmt.Errorf("failed to update automation run stats: %w", err)
	}

	return nil
}

func (r *automationRepository) getActiveFromCache(ctx context.Context) []*models.Automation {
	if r.redis == nil {
		return nil
	}

	data, err := r.redis.Get(ctx, activeAutomationsCacheKey).Bytes()
	if err != nil {
		return nil
	}

	var automations []*models.Automation
	if err := json.Unmarshal(data, &automations); err != nil {
		return nil
	}

	return automations
}

func (r *automationRepository) setActiveCache(ctx context.Context, automations []*models.Automation) {
	if r.redis == nil {
		return
	}

	data, err := json.Marshal(automations)
	if err != nil {
		return
	}

	r.redis.Set(ctx, activeAutomationsCacheKey, data, activeAutomationsCacheTTL)
}

func (r *automationRepository) invalidateActiveCache() {
	if r.redis == nil {
		return
	}

	r.redis.Del(context.Background(), activeAutomationsCacheKey)
}
