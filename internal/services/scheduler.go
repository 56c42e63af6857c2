package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Lovjeet1233/kepleroai-automation-service/internal/models"
	"github.com/Lovjeet1233/kepleroai-automation-service/internal/repositories"
	"github.com/Lovjeet1233/kepleroai-automation-service/internal/triggers"
)

// Scheduler runs automations whose trigger is a cron schedule. Each active
// schedule automation gets one cron entry; every firing executes the
// automation with a synthetic schedule.fired event. Entries live in memory
// and are rebuilt from the database on startup and on Reload.
type Scheduler struct {
	automations repositories.AutomationRepository
	engine      *Engine
	logger      *zap.Logger
	cron        *cron.Cron

	mu      sync.Mutex
	entries map[uint]cron.EntryID
}

// NewScheduler creates a scheduler for schedule-triggered automations
func NewScheduler(automations repositories.AutomationRepository, engine *Engine, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		automations: automations,
		engine:      engine,
		logger:      logger,
		cron:        cron.New(),
		entries:     make(map[uint]cron.EntryID),
	}
}

// Start loads schedule entries and starts the cron loop
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Reload(ctx); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Scheduler started", zap.Int("entries", len(s.entries)))

	return nil
}

// Stop stops the cron loop and waits for in-flight firings to return
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// Reload re-syncs cron entries with the active schedule automations. Called
// at startup and after automation CRUD.
func (s *Scheduler) Reload(ctx context.Context) error {
	automations, err := s.automations.GetActiveAutomations(ctx)
	if err != nil {
		return fmt.Errorf("failed to load automations for scheduling: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[uint]string)
	for _, automation := range automations {
		trigger := automation.TriggerNode()
		if trigger == nil || trigger.Service != triggers.KindSchedule {
			continue
		}

		var cfg triggers.ScheduleConfig
		if err := trigger.Config.Decode(&cfg); err != nil || cfg.Cron == "" {
			s.logger.Warn("Skipping schedule automation with invalid cron config",
				zap.Uint("automation_id", automation.ID),
				zap.Error(err))
			continue
		}

		wanted[automation.ID] = cfg.Cron
	}

	// Drop entries for automations that were deleted or deactivated.
	for id, entryID := range s.entries {
		if _, ok := wanted[id]; !ok {
			s.cron.Remove(entryID)
			delete(s.entries, id)
		}
	}

	for _, automation := range automations {
		expr, ok := wanted[automation.ID]
		if !ok {
			continue
		}
		if _, exists := s.entries[automation.ID]; exists {
			// Simplest correct re-sync: replace the entry so expression
			// edits take effect.
			s.cron.Remove(s.entries[automation.ID])
			delete(s.entries, automation.ID)
		}

		entryID, err := s.cron.AddFunc(expr, s.fire(automation.ID, automation.WorkspaceID, automation.UserID))
		if err != nil {
			s.logger.Warn("Failed to register cron entry",
				zap.Uint("automation_id", automation.ID),
				zap.String("cron", expr),
				zap.Error(err))
			continue
		}

		s.entries[automation.ID] = entryID
	}

	return nil
}

func (s *Scheduler) fire(automationID, workspaceID, userID uint) func() {
	return func() {
		event := &models.Event{
			ID:          uuid.NewString(),
			Kind:        models.EventKindScheduleFired,
			WorkspaceID: workspaceID,
			UserID:      userID,
			Timestamp:   time.Now().UTC(),
		}
		ec := &models.ExecContext{WorkspaceID: workspaceID, UserID: userID}

		if _, err := s.engine.Execute(context.Background(), automationID, event, ec); err != nil {
			s.logger.Error("Scheduled automation run failed",
				zap.Uint("automation_id", automationID),
				zap.Error(err))
		}
	}
}

// EntryCount reports the number of registered schedule entries
func (s *Scheduler) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
