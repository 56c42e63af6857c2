package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Lovjeet1233/kepleroai-automation-service/internal/actions"
	"github.com/Lovjeet1233/kepleroai-automation-service/internal/models"
	"github.com/Lovjeet1233/kepleroai-automation-service/internal/repositories"
	"github.com/Lovjeet1233/kepleroai-automation-service/internal/triggers"
	"github.com/Lovjeet1233/kepleroai-automation-service/pkg/metrics"
)

var (
	// ErrAutomationNotFound is returned for missing or inactive automations.
	// No execution record is created in this case.
	ErrAutomationNotFound = errors.New("automation not found or inactive")

	// ErrMissingTrigger is returned for automations without a trigger node
	ErrMissingTrigger = errors.New("automation has no trigger node")

	// ErrMultipleTriggers is returned for automations with more than one
	// trigger node
	ErrMultipleTriggers = errors.New("automation has multiple trigger nodes")
)

// TriggerMismatchMessage is the fixed error message recorded when an event
// does not satisfy an automation's trigger. A mismatch is an expected
// outcome, not an error: the caller gets the failed record and a nil error.
const TriggerMismatchMessage = "trigger validation failed"

// Engine orchestrates one automation run: trigger validation, delays and
// action execution, with the execution record lifecycle from pending to a
// terminal status.
type Engine struct {
	automations repositories.AutomationRepository
	executions  repositories.ExecutionRepository
	triggers    *triggers.Registry
	actions     *actions.Registry
	metrics     *metrics.Registry
	logger      *zap.Logger
	maxDelay    time.Duration

	// sleep suspends the calling run only. Injectable so tests can observe
	// requested delays without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates an execution engine. maxDelay caps the suspension of a
// single delay node; zero means uncapped.
func NewEngine(
	automations repositories.AutomationRepository,
	executions repositories.ExecutionRepository,
	triggerRegistry *triggers.Registry,
	actionRegistry *actions.Registry,
	maxDelay time.Duration,
	m *metrics.Registry,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		automations: automations,
		executions:  executions,
		triggers:    triggerRegistry,
		actions:     actionRegistry,
		metrics:     m,
		logger:      logger,
		maxDelay:    maxDelay,
		sleep:       sleepContext,
	}
}

// Execute runs one automation against one event. It returns the execution
// record it created, except when the automation is missing or inactive, in
// which case no record exists and ErrAutomationNotFound is returned.
//
// A trigger mismatch finalizes the record as failed with
// TriggerMismatchMessage and returns a nil error; any error raised after the
// trigger matched finalizes the record as failed, preserves the partial
// action results, and is returned to the caller.
func (e *Engine) Execute(ctx context.Context, automationID uint, event *models.Event, ec *models.ExecContext) (*models.AutomationExecution, error) {
	automation, err := e.automations.GetByID(ctx, automationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load automation %d: %w", automationID, err)
	}
	if automation == nil || !automation.IsActive {
		return nil, fmt.Errorf("%w: %d", ErrAutomationNotFound, automationID)
	}

	now := time.Now()
	execution := &models.AutomationExecution{
		AutomationID: automation.ID,
		Status:       models.ExecutionStatusPending,
		TriggerData:  event.Payload(),
		StartedAt:    now,
	}
	if err := e.executions.Create(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to create execution record: %w", err)
	}

	// The run counter counts runs started, not runs succeeded.
	if err := e.automations.IncrementRunStats(ctx, automation.ID, now); err != nil {
		e.logger.Warn("Failed to update automation run stats",
			zap.Uint("automation_id", automation.ID),
			zap.Error(err))
	}

	nodes := sortedNodes(automation.Nodes)

	trigger, err := locateTrigger(nodes)
	if err != nil {
		// A broken definition, not a runtime mismatch: raised without
		// finalizing the record.
		return execution, fmt.Errorf("automation %d: %w", automation.ID, err)
	}

	matched, err := e.triggers.Matches(trigger.Service, trigger.Config, event)
	if err != nil {
		e.finalize(ctx, execution, models.ExecutionStatusFailed, err.Error(), nil)
		return execution, fmt.Errorf("automation %d: %w", automation.ID, err)
	}
	if !matched {
		e.finalize(ctx, execution, models.ExecutionStatusFailed, TriggerMismatchMessage, nil)
		e.logger.Debug("Trigger did not match event",
			zap.Uint("automation_id", automation.ID),
			zap.String("trigger", trigger.Service),
			zap.String("event_kind", string(event.Kind)))
		return execution, nil
	}

	var records models.ActionRecords

	for i := range nodes {
		node := &nodes[i]
		if node.ID == trigger.ID {
			continue
		}

		switch node.Kind {
		case models.NodeKindDelay:
			if err := e.runDelay(ctx, node); err != nil {
				e.finalize(ctx, execution, models.ExecutionStatusFailed, err.Error(), records)
				return execution, fmt.Errorf("automation %d node %d: %w", automation.ID, node.ID, err)
			}

		case models.NodeKindAction:
			result, err := e.runAction(ctx, node, execution.TriggerData, ec)
			if err != nil {
				e.finalize(ctx, execution, models.ExecutionStatusFailed, err.Error(), records)
				e.logger.Error("Action node failed",
					zap.Uint("automation_id", automation.ID),
					zap.Uint("node_id", node.ID),
					zap.String("service", node.Service),
					zap.Error(err))
				return execution, fmt.Errorf("automation %d node %d: %w", automation.ID, node.ID, err)
			}
			records = append(records, models.ActionRecord{
				NodeID:  node.ID,
				Service: node.Service,
				Result:  result.Record(),
			})

		default:
			err := fmt.Errorf("unknown node kind %q", node.Kind)
			e.finalize(ctx, execution, models.ExecutionStatusFailed, err.Error(), records)
			return execution, fmt.Errorf("automation %d node %d: %w", automation.ID, node.ID, err)
		}
	}

	e.finalize(ctx, execution, models.ExecutionStatusSuccess, "", records)

	e.logger.Info("Automation executed",
		zap.Uint("automation_id", automation.ID),
		zap.Uint("execution_id", execution.ID),
		zap.Int("actions", len(records)))

	return execution, nil
}

func (e *Engine) runDelay(ctx context.Context, node *models.AutomationNode) error {
	ms, ok := node.Unit.Milliseconds(node.Amount)
	if !ok {
		return fmt.Errorf("invalid delay unit %q", node.Unit)
	}
	if node.Amount <= 0 {
		return fmt.Errorf("invalid delay amount %d", node.Amount)
	}

	d := time.Duration(ms) * time.Millisecond
	if e.maxDelay > 0 && d > e.maxDelay {
		e.logger.Warn("Delay exceeds configured maximum, capping",
			zap.Uint("node_id", node.ID),
			zap.Duration("requested", d),
			zap.Duration("max", e.maxDelay))
		d = e.maxDelay
	}

	if e.metrics != nil {
		e.metrics.DelaysInProgress.Inc()
		defer e.metrics.DelaysInProgress.Dec()
	}

	return e.sleep(ctx, d)
}

func (e *Engine) runAction(ctx context.Context, node *models.AutomationNode, trigger models.JSONMap, ec *models.ExecContext) (*actions.Result, error) {
	handler, err := e.actions.Get(node.Service)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := handler.Execute(ctx, node.Config, trigger, ec)
	if e.metrics != nil {
		e.metrics.ActionDuration.WithLabelValues(node.Service).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}

	return result, nil
}

// finalize mutates the execution record to its terminal state. The record is
// never touched again after this.
func (e *Engine) finalize(ctx context.Context, execution *models.AutomationExecution, status models.ExecutionStatus, errorMessage string, records models.ActionRecords) {
	now := time.Now()
	execution.Status = status
	execution.ActionData = records
	execution.FinishedAt = &now
	if errorMessage != "" {
		execution.ErrorMessage = &errorMessage
	}

	if err := e.executions.Update(ctx, execution); err != nil {
		e.logger.Error("Failed to finalize execution record",
			zap.Uint("execution_id", execution.ID),
			zap.Error(err))
	}

	if e.metrics != nil {
		e.metrics.ExecutionsTotal.WithLabelValues(string(status)).Inc()
		e.metrics.ExecutionDuration.WithLabelValues(string(status)).Observe(now.Sub(execution.StartedAt).Seconds())
	}
}

// sortedNodes returns the nodes re-sorted by position. Nodes may be stored
// in any order; position alone defines execution order.
func sortedNodes(nodes []models.AutomationNode) []models.AutomationNode {
	sorted := make([]models.AutomationNode, len(nodes))
	copy(sorted, nodes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Position < sorted[j].Position
	})
	return sorted
}

// locateTrigger finds the single trigger node by kind, not position
func locateTrigger(nodes []models.AutomationNode) (*models.AutomationNode, error) {
	var trigger *models.AutomationNode
	for i := range nodes {
		if nodes[i].Kind != models.NodeKindTrigger {
			continue
		}
		if trigger != nil {
			return nil, ErrMultipleTriggers
		}
		trigger = &nodes[i]
	}
	if trigger == nil {
		return nil, ErrMissingTrigger
	}
	return trigger, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
