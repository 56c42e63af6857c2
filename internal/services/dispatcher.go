package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Lovjeet1233/kepleroai-automation-service/internal/models"
	"github.com/Lovjeet1233/kepleroai-automation-service/internal/repositories"
	"github.com/Lovjeet1233/kepleroai-automation-service/internal/triggers"
	"github.com/Lovjeet1233/kepleroai-automation-service/pkg/metrics"
)

// DispatchResult reports one active automation's match outcome for an event.
// Run outcomes are not part of it; those land in the execution log.
type DispatchResult struct {
	AutomationID uint   `json:"automation_id"`
	Name         string `json:"name"`
	Triggered    bool   `json:"triggered"`
}

// Dispatcher fans one event out over every active automation's trigger and
// launches the engine for each match, asynchronously and independently.
type Dispatcher struct {
	automations repositories.AutomationRepository
	engine      *Engine
	triggers    *triggers.Registry
	metrics     *metrics.Registry
	logger      *zap.Logger

	// launch runs a matched automation. Injectable so tests can run
	// launches synchronously.
	launch func(fn func())
}

// NewDispatcher creates an event dispatcher
func NewDispatcher(
	automations repositories.AutomationRepository,
	engine *Engine,
	triggerRegistry *triggers.Registry,
	m *metrics.Registry,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		automations: automations,
		engine:      engine,
		triggers:    triggerRegistry,
		metrics:     m,
		logger:      logger,
		launch:      func(fn func()) { go fn() },
	}
}

// Dispatch matches the event against every active automation and launches a
// run per match. It returns once all matches are launched; it never waits
// for runs, and a failing run never affects another automation's matching
// or execution.
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.Event, ec *models.ExecContext) ([]DispatchResult, error) {
	automations, err := d.automations.GetActiveAutomations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active automations: %w", err)
	}

	if d.metrics != nil {
		d.metrics.DispatchedEvents.WithLabelValues(string(event.Kind)).Inc()
	}

	d.logger.Info("Dispatching event",
		zap.String("event_id", event.ID),
		zap.String("event_kind", string(event.Kind)),
		zap.Int("active_automations", len(automations)))

	results := make([]DispatchResult, 0, len(automations))

	for _, automation := range automations {
		result := DispatchResult{
			AutomationID: automation.ID,
			Name:         automation.Name,
		}

		trigger := automation.TriggerNode()
		if trigger == nil {
			// Malformed definitions must not block other automations.
			d.logger.Warn("Skipping automation without trigger node",
				zap.Uint("automation_id", automation.ID))
			results = append(results, result)
			continue
		}

		matched, err := d.triggers.Matches(trigger.Service, trigger.Config, event)
		if err != nil {
			if errors.Is(err, triggers.ErrHandlerNotFound) {
				d.logger.Warn("Skipping automation with unknown trigger kind",
					zap.Uint("automation_id", automation.ID),
					zap.String("trigger", trigger.Service))
			} else {
				d.logger.Warn("Trigger evaluation failed",
					zap.Uint("automation_id", automation.ID),
					zap.String("trigger", trigger.Service),
					zap.Error(err))
			}
			results = append(results, result)
			continue
		}

		if matched {
			result.Triggered = true
			d.launchRun(automation.ID, automation.Name, event, ec)
		}

		results = append(results, result)
	}

	return results, nil
}

// launchRun starts one automation run on its own goroutine with a detached
// context: the run outlives the dispatch call, and its errors are logged and
// counted here, never re-raised into the dispatcher's caller.
func (d *Dispatcher) launchRun(automationID uint, name string, event *models.Event, ec *models.ExecContext) {
	if d.metrics != nil {
		d.metrics.DispatchMatches.Inc()
	}

	d.logger.Info("Launching automation run",
		zap.Uint("automation_id", automationID),
		zap.String("name", name),
		zap.String("event_id", event.ID))

	d.launch(func() {
		execution, err := d.engine.Execute(context.Background(), automationID, event, ec)
		if err != nil {
			if d.metrics != nil {
				d.metrics.AsyncRunErrors.Inc()
			}
			fields := []zap.Field{
				zap.Uint("automation_id", automationID),
				zap.String("event_id", event.ID),
				zap.Error(err),
			}
			if execution != nil {
				fields = append(fields, zap.Uint("execution_id", execution.ID))
			}
			d.logger.Error("Dispatched automation run failed", fields...)
		}
	})
}
