package services

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Lovjeet1233/kepleroai-automation-service/internal/actions"
	"github.com/Lovjeet1233/kepleroai-automation-service/internal/config"
	"github.com/Lovjeet1233/kepleroai-automation-service/internal/repositories"
	"github.com/Lovjeet1233/kepleroai-automation-service/internal/triggers"
	"github.com/Lovjeet1233/kepleroai-automation-service/pkg/metrics"
)

type Services struct {
	Engine     *Engine
	Dispatcher *Dispatcher
	Listener   *EventListener
	Scheduler  *Scheduler

	Triggers *triggers.Registry
	Actions  *actions.Registry

	config *config.Config
	logger *zap.Logger
	repos  *repositories.Repositories
}

func New(repos *repositories.Repositories, redisClient *redis.Client, cfg *config.Config, m *metrics.Registry, logger *zap.Logger) *Services {
	triggerRegistry := triggers.DefaultRegistry()

	actionRegistry := actions.NewRegistry()
	actionRegistry.Register(actions.NewPlaceCallAction(cfg.Services.VoiceGatewayURL, cfg.Auth.InternalToken, logger))
	actionRegistry.Register(actions.NewSendMessageAction(actions.NewRedisPublisher(redisClient), logger))
	actionRegistry.Register(actions.NewUpdateContactAction(repos.Contact, logger))
	actionRegistry.Register(actions.NewHTTPRequestAction(cfg.Engine.HTTPActionRPS, logger))

	engine := NewEngine(repos.Automation, repos.Execution, triggerRegistry, actionRegistry, cfg.Engine.MaxDelay, m, logger)
	dispatcher := NewDispatcher(repos.Automation, engine, triggerRegistry, m, logger)
	listener := NewEventListener(redisClient, dispatcher, logger)
	scheduler := NewScheduler(repos.Automation, engine, logger)

	return &Services{
		Engine:     engine,
		Dispatcher: dispatcher,
		Listener:   listener,
		Scheduler:  scheduler,
		Triggers:   triggerRegistry,
		Actions:    actionRegistry,
		config:     cfg,
		logger:     logger,
		repos:      repos,
	}
}
