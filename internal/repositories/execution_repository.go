package repositories

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Lovjeet1233/kepleroai-automation-service/internal/models"
)

type executionRepository struct {
	db *gorm.DB
}

// NewExecutionRepository creates a new execution repository
func NewExecutionRepository(db *gorm.DB) ExecutionRepository {
	return &executionRepository{db: db}
}

// Create creates a new execution record
func (r *executionRepository) Create(ctx context.Context, execution *models.AutomationExecution) error {
	if err := r.db.WithContext(ctx).Create(execution).Error; err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	return nil
}

// Update persists the execution's terminal state
func (r *executionRepository) Update(ctx context.Context, execution *models.AutomationExecution) error {
	if err := r.db.WithContext(ctx).Save(execution).Error; err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}

	return nil
}

// GetByID retrieves an execution by ID. Returns nil, nil when not found.
func (r *executionRepository) GetByID(ctx context.Context, id uint) (*models.AutomationExecution, error) {
	var execution models.AutomationExecution

	if err := r.db.WithContext(ctx).First(&execution, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get execution by ID: %w", err)
	}

	return &execution, nil
}

// GetByAutomationID lists executions of one automation, newest first
func (r *executionRepository) GetByAutomationID(ctx context.Context, automationID uint, limit, offset int) ([]*models.AutomationExecution, error) {
	var executions []*models.AutomationExecution

	query := r.db.WithContext(ctx).
		Where("automation_id = ?", automationID).
		Order("started_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&executions).Error; err != nil {
		return nil, fmt.Errorf("failed to get executions by automation ID: %w", err)
	}

	return executions, nil
}
