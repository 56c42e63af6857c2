package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Lovjeet1233/kepleroai-automation-service/internal/actions"
	"github.com/Lovjeet1233/kepleroai-automation-service/internal/models"
	"github.com/Lovjeet1233/kepleroai-automation-service/internal/triggers"
)

// Fake AutomationRepository for testing
type fakeAutomationRepo struct {
	automations map[uint]*models.Automation
	runStats    map[uint]int
}

func newFakeAutomationRepo(automations ...*models.Automation) *fakeAutomationRepo {
	repo := &fakeAutomationRepo{
		automations: make(map[uint]*models.Automation),
		runStats:    make(map[uint]int),
	}
	for _, a := range automations {
		repo.automations[a.ID] = a
	}
	return repo
}

func (r *fakeAutomationRepo) Create(ctx context.Context, automation *models.Automation) error {
	r.automations[automation.ID] = automation
	return nil
}

func (r *fakeAutomationRepo) GetByID(ctx context.Context, id uint) (*models.Automation, error) {
	return r.automations[id], nil
}

func (r *fakeAutomationRepo) GetByWorkspaceID(ctx context.Context, workspaceID uint, limit, offset int) ([]*models.Automation, error) {
	var out []*models.Automation
	for _, a := range r.automations {
		if a.WorkspaceID == workspaceID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAutomationRepo) Update(ctx context.Context, automation *models.Automation) error {
	r.automations[automation.ID] = automation
	return nil
}

func (r *fakeAutomationRepo) Delete(ctx context.Context, id uint) error {
	delete(r.automations, id)
	return nil
}

func (r *fakeAutomationRepo) GetActiveAutomations(ctx context.Context) ([]*models.Automation, error) {
	var out []*models.Automation
	for _, a := range r.automations {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAutomationRepo) IncrementRunStats(ctx context.Context, id uint, at time.Time) error {
	r.runStats[id]++
	return nil
}

// Fake ExecutionRepository for testing
type fakeExecutionRepo struct {
	executions []*models.AutomationExecution
	nextID     uint
}

func (r *fakeExecutionRepo) Create(ctx context.Context, execution *models.AutomationExecution) error {
	r.nextID++
	execution.ID = r.nextID
	r.executions = append(r.executions, execution)
	return nil
}

func (r *fakeExecutionRepo) Update(ctx context.Context, execution *models.AutomationExecution) error {
	for i, e := range r.executions {
		if e.ID == execution.ID {
			r.executions[i] = execution
			return nil
		}
	}
	return errors.New("execution not found")
}

func (r *fakeExecutionRepo) GetByID(ctx context.Context, id uint) (*models.AutomationExecution, error) {
	for _, e := range r.executions {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, nil
}

func (r *fakeExecutionRepo) GetByAutomationID(ctx context.Context, automationID uint, limit, offset int) ([]*models.AutomationExecution, error) {
	var out []*models.AutomationExecution
	for _, e := range r.executions {
		if e.AutomationID == automationID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Fake action handler; fails on the failOn-th call (1-based), zero never fails
type fakeAction struct {
	kind   string
	calls  int
	failOn int
}

func (a *fakeAction) Kind() string { return a.kind }

func (a *fakeAction) Execute(ctx context.Context, config models.JSONMap, trigger models.JSONMap, ec *models.ExecContext) (*actions.Result, error) {
	a.calls++
	if a.failOn > 0 && a.calls >= a.failOn {
		return nil, fmt.Errorf("%s blew up", a.kind)
	}
	return &actions.Result{
		Success: true,
		Output:  models.JSONMap{"call": a.calls},
	}, nil
}

type testEnv struct {
	engine     *Engine
	automation *fakeAutomationRepo
	executions *fakeExecutionRepo
	action     *fakeAction
	sleeps     []time.Duration
}

func newTestEnv(t *testing.T, maxDelay time.Duration, automations ...*models.Automation) *testEnv {
	env := &testEnv{
		automation: newFakeAutomationRepo(automations...),
		executions: &fakeExecutionRepo{},
		action:     &fakeAction{kind: "fake_action"},
	}

	actionRegistry := actions.NewRegistry()
	actionRegistry.Register(env.action)

	env.engine = NewEngine(
		env.automation,
		env.executions,
		triggers.DefaultRegistry(),
		actionRegistry,
		maxDelay,
		nil,
		zaptest.NewLogger(t),
	)
	env.engine.sleep = func(ctx context.Context, d time.Duration) error {
		env.sleeps = append(env.sleeps, d)
		return nil
	}

	return env
}

func triggerNode(id uint, position int, kind string) models.AutomationNode {
	return models.AutomationNode{
		BaseModel: models.BaseModel{ID: id},
		Kind:      models.NodeKindTrigger,
		Position:  position,
		Service:   kind,
	}
}

func actionNode(id uint, position int) models.AutomationNode {
	return models.AutomationNode{
		BaseModel: models.BaseModel{ID: id},
		Kind:      models.NodeKindAction,
		Position:  position,
		Service:   "fake_action",
	}
}

func delayNode(id uint, position, amount int, unit models.DelayUnit) models.AutomationNode {
	return models.AutomationNode{
		BaseModel: models.BaseModel{ID: id},
		Kind:      models.NodeKindDelay,
		Position:  position,
		Amount:    amount,
		Unit:      unit,
	}
}

func testAutomation(id uint, active bool, nodes ...models.AutomationNode) *models.Automation {
	return &models.Automation{
		BaseModel:   models.BaseModel{ID: id},
		WorkspaceID: 1,
		UserID:      2,
		Name:        "test automation",
		IsActive:    active,
		Nodes:       nodes,
	}
}

func contactCreatedEvent() *models.Event {
	return &models.Event{
		ID:          "evt-1",
		Kind:        models.EventKindContactCreated,
		ContactID:   7,
		Source:      "webform",
		WorkspaceID: 1,
		UserID:      2,
		Timestamp:   time.Now().UTC(),
	}
}

func TestEngineExecute_UnknownAutomation(t *testing.T) {
	env := newTestEnv(t, 0)

	execution, err := env.engine.Execute(context.Background(), 99, contactCreatedEvent(), &models.ExecContext{WorkspaceID: 1})

	require.ErrorIs(t, err, ErrAutomationNotFound)
	assert.Nil(t, execution)
	assert.Empty(t, env.executions.executions)
}

func TestEngineExecute_InactiveAutomation(t *testing.T) {
	automation := testAutomation(1, false,
		triggerNode(10, 0, triggers.KindContactCreated),
		actionNode(11, 1),
	)
	env := newTestEnv(t, 0, automation)

	execution, err := env.engine.Execute(context.Background(), 1, contactCreatedEvent(), &models.ExecContext{WorkspaceID: 1})

	require.ErrorIs(t, err, ErrAutomationNotFound)
	assert.Nil(t, execution)
	assert.Empty(t, env.executions.executions)
	assert.Zero(t, env.action.calls)
}

func TestEngineExecute_TriggerMismatch(t *testing.T) {
	automation := testAutomation(1, true,
		triggerNode(10, 0, triggers.KindContactDeleted),
		actionNode(11, 1),
	)
	env := newTestEnv(t, 0, automation)

	execution, err := env.engine.Execute(context.Background(), 1, contactCreatedEvent(), &models.ExecContext{WorkspaceID: 1})

	require.NoError(t, err)
	require.NotNil(t, execution)
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	require.NotNil(t, execution.ErrorMessage)
	assert.Equal(t, TriggerMismatchMessage, *execution.ErrorMessage)
	assert.NotNil(t, execution.FinishedAt)
	assert.Zero(t, env.action.calls, "no action may run on a trigger mismatch")
	assert.Equal(t, 1, env.automation.runStats[1], "a mismatched run still counts as started")
}

func TestEngineExecute_Success(t *testing.T) {
	automation := testAutomation(1, true,
		triggerNode(10, 0, triggers.KindContactCreated),
		actionNode(11, 1),
		actionNode(12, 2),
	)
	env := newTestEnv(t, 0, automation)

	execution, err := env.engine.Execute(context.Background(), 1, contactCreatedEvent(), &models.ExecContext{WorkspaceID: 1})

	require.NoError(t, err)
	require.NotNil(t, execution)
	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)
	assert.Nil(t, execution.ErrorMessage)
	assert.NotNil(t, execution.FinishedAt)
	assert.Equal(t, 2, env.action.calls)
	assert.Equal(t, 1, env.automation.runStats[1])

	require.Len(t, execution.ActionData, 2)
	assert.Equal(t, uint(11), execution.ActionData[0].NodeID)
	assert.Equal(t, uint(12), execution.ActionData[1].NodeID)
	assert.Equal(t, "fake_action", execution.ActionData[0].Service)
	assert.Equal(t, true, execution.ActionData[0].Result["success"])

	assert.Equal(t, "contact.created", execution.TriggerData["event"])
	assert.Equal(t, uint(7), execution.TriggerData["contact_id"])
}

func TestEngineExecute_NodesRunInPositionOrder(t *testing.T) {
	// Nodes stored out of order; position alone defines execution order.
	automation := testAutomation(1, true,
		actionNode(12, 3),
		actionNode(11, 1),
		triggerNode(10, 0, triggers.KindContactCreated),
	)
	env := newTestEnv(t, 0, automation)

	execution, err := env.engine.Execute(context.Background(), 1, contactCreatedEvent(), &models.ExecContext{WorkspaceID: 1})

	require.NoError(t, err)
	require.Len(t, execution.ActionData, 2)
	assert.Equal(t, uint(11), execution.ActionData[0].NodeID)
	assert.Equal(t, uint(12), execution.ActionData[1].NodeID)
}

func TestEngineExecute_ActionFailureKeepsPartialResults(t *testing.T) {
	automation := testAutomation(1, true,
		triggerNode(10, 0, triggers.KindContactCreated),
		actionNode(11, 1),
		actionNode(12, 2),
		actionNode(13, 3),
	)
	env := newTestEnv(t, 0, automation)
	env.action.failOn = 2

	execution, err := env.engine.Execute(context.Background(), 1, contactCreatedEvent(), &models.ExecContext{WorkspaceID: 1})

	require.Error(t, err)
	require.NotNil(t, execution)
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	require.NotNil(t, execution.ErrorMessage)
	assert.Contains(t, *execution.ErrorMessage, "blew up")

	// The first action's record survives; the failing and following ones
	// leave no records.
	require.Len(t, execution.ActionData, 1)
	assert.Equal(t, uint(11), execution.ActionData[0].NodeID)
	assert.Equal(t, 2, env.action.calls, "the action after the failure must not run")
}

func TestEngineExecute_DelayDurations(t *testing.T) {
	automation := testAutomation(1, true,
		triggerNode(10, 0, triggers.KindContactCreated),
		delayNode(11, 1, 2, models.DelayUnitMinutes),
		delayNode(12, 2, 3, models.DelayUnitHours),
		delayNode(13, 3, 1, models.DelayUnitDays),
		actionNode(14, 4),
	)
	env := newTestEnv(t, 0, automation)

	execution, err := env.engine.Execute(context.Background(), 1, contactCreatedEvent(), &models.ExecContext{WorkspaceID: 1})

	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, execution.Status)
	require.Len(t, env.sleeps, 3)
	assert.Equal(t, 2*time.Minute, env.sleeps[0])
	assert.Equal(t, 3*time.Hour, env.sleeps[1])
	assert.Equal(t, 24*time.Hour, env.sleeps[2])
	assert.Equal(t, 1, env.action.calls, "action runs after the delays")
}

func TestEngineExecute_DelayCapped(t *testing.T) {
	automation := testAutomation(1, true,
		triggerNode(10, 0, triggers.KindContactCreated),
		delayNode(11, 1, 10, models.DelayUnitDays),
	)
	env := newTestEnv(t, time.Hour, automation)

	_, err := env.engine.Execute(context.Background(), 1, contactCreatedEvent(), &models.ExecContext{WorkspaceID: 1})

	require.NoError(t, err)
	require.Len(t, env.sleeps, 1)
	assert.Equal(t, time.Hour, env.sleeps[0])
}

func TestEngineExecute_InvalidDelay(t *testing.T) {
	automation := testAutomation(1, true,
		triggerNode(10, 0, triggers.KindContactCreated),
		delayNode(11, 1, 0, models.DelayUnitMinutes),
	)
	env := newTestEnv(t, 0, automation)

	execution, err := env.engine.Execute(context.Background(), 1, contactCreatedEvent(), &models.ExecContext{WorkspaceID: 1})

	require.Error(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Empty(t, env.sleeps)
}

func TestEngineExecute_UnknownActionKind(t *testing.T) {
	automation := testAutomation(1, true,
		triggerNode(10, 0, triggers.KindContactCreated),
		models.AutomationNode{
			BaseModel: models.BaseModel{ID: 11},
			Kind:      models.NodeKindAction,
			Position:  1,
			Service:   "teleport_contact",
		},
	)
	env := newTestEnv(t, 0, automation)

	execution, err := env.engine.Execute(context.Background(), 1, contactCreatedEvent(), &models.ExecContext{WorkspaceID: 1})

	require.ErrorIs(t, err, actions.ErrHandlerNotFound)
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
}

func TestEngineExecute_MissingTrigger(t *testing.T) {
	automation := testAutomation(1, true,
		actionNode(11, 1),
	)
	env := newTestEnv(t, 0, automation)

	execution, err := env.engine.Execute(context.Background(), 1, contactCreatedEvent(), &models.ExecContext{WorkspaceID: 1})

	require.ErrorIs(t, err, ErrMissingTrigger)
	require.NotNil(t, execution)
	// A broken definition is not a run outcome; the record is not finalized.
	assert.Equal(t, models.ExecutionStatusPending, execution.Status)
	assert.Nil(t, execution.FinishedAt)
	assert.Zero(t, env.action.calls)
}

func TestEngineExecute_MultipleTriggers(t *testing.T) {
	automation := testAutomation(1, true,
		triggerNode(10, 0, triggers.KindContactCreated),
		triggerNode(11, 1, triggers.KindContactDeleted),
		actionNode(12, 2),
	)
	env := newTestEnv(t, 0, automation)

	_, err := env.engine.Execute(context.Background(), 1, contactCreatedEvent(), &models.ExecContext{WorkspaceID: 1})

	require.ErrorIs(t, err, ErrMultipleTriggers)
	assert.Zero(t, env.action.calls)
}
