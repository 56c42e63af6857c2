package repositories

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Lovjeet1233/kepleroai-automation-service/internal/models"
)

// AutomationRepository defines the interface for automation definition storage.
// The engine treats definitions as read-only except for run statistics.
type AutomationRepository interface {
	Create(ctx context.Context, automation *models.Automation) error
	GetByID(ctx context.Context, id uint) (*models.Automation, error)
	GetByWorkspaceID(ctx context.Context, workspaceID uint, limit, offset int) ([]*models.Automation, error)
	Update(ctx context.Context, automation *models.Automation) error
	Delete(ctx context.Context, id uint) error
	GetActiveAutomations(ctx context.Context) ([]*models.Automation, error)
	IncrementRunStats(ctx context.Context, id uint, at time.Time) error
}

// ExecutionRepository defines the interface for execution record storage
type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.AutomationExecution) error
	Update(ctx context.Context, execution *models.AutomationExecution) error
	GetByID(ctx context.Context, id uint) (*models.AutomationExecution, error)
	GetByAutomationID(ctx context.Context, automationID uint, limit, offset int) ([]*models.AutomationExecution, error)
}

// ContactRepository defines the slice of contact storage the update_contact
// action needs
type ContactRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Contact, error)
	Update(ctx context.Context, contact *models.Contact) error
}

type Repositories struct {
	Automation AutomationRepository
	Execution  ExecutionRepository
	Contact    ContactRepository

	db    *gorm.DB
	redis *redis.Client
}

func New(db *gorm.DB, redis *redis.Client) *Repositories {
	return &Repositories{
		db:         db,
		redis:      redis,
		Automation: NewAutomationRepository(db, redis),
		Execution:  NewExecutionRepository(db),
		Contact:    NewContactRepository(db),
	}
}

// Migrate creates or updates the tables owned by this service. The contacts
// table belongs to the CRM core and is not migrated here.
func (r *Repositories) Migrate() error {
	return r.db.AutoMigrate(
		&models.Automation{},
		&models.AutomationNode{},
		&models.AutomationExecution{},
	)
}
