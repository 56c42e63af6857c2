package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Lovjeet1233/kepleroai-automation-service/internal/models"
	"github.com/Lovjeet1233/kepleroai-automation-service/internal/triggers"
)

func scheduleAutomation(id uint, active bool, cronExpr string) *models.Automation {
	return testAutomation(id, active,
		models.AutomationNode{
			BaseModel: models.BaseModel{ID: id * 10},
			Kind:      models.NodeKindTrigger,
			Position:  0,
			Service:   triggers.KindSchedule,
			Config:    models.JSONMap{"cron": cronExpr},
		},
		actionNode(id*10+1, 1),
	)
}

func TestSchedulerReload(t *testing.T) {
	env := newTestEnv(t, 0,
		scheduleAutomation(1, true, "*/5 * * * *"),
		scheduleAutomation(2, true, "0 9 * * 1"),
		scheduleAutomation(3, false, "0 0 * * *"),
		testAutomation(4, true,
			triggerNode(40, 0, triggers.KindContactCreated),
			actionNode(41, 1),
		),
	)
	s := NewScheduler(env.automation, env.engine, zaptest.NewLogger(t))

	require.NoError(t, s.Reload(context.Background()))
	assert.Equal(t, 2, s.EntryCount(), "only active schedule automations get entries")
}

func TestSchedulerReload_RemovesStaleEntries(t *testing.T) {
	automation := scheduleAutomation(1, true, "*/5 * * * *")
	env := newTestEnv(t, 0, automation)
	s := NewScheduler(env.automation, env.engine, zaptest.NewLogger(t))

	require.NoError(t, s.Reload(context.Background()))
	require.Equal(t, 1, s.EntryCount())

	automation.IsActive = false
	require.NoError(t, s.Reload(context.Background()))
	assert.Zero(t, s.EntryCount())
}

func TestSchedulerReload_SkipsInvalidCron(t *testing.T) {
	env := newTestEnv(t, 0,
		scheduleAutomation(1, true, "not a cron expression"),
		scheduleAutomation(2, true, ""),
	)
	s := NewScheduler(env.automation, env.engine, zaptest.NewLogger(t))

	require.NoError(t, s.Reload(context.Background()))
	assert.Zero(t, s.EntryCount())
}
