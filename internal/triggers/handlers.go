package triggers

import (
	"fmt"

	"github.com/Lovjeet1233/kepleroai-automation-service/internal/models"
)

// Trigger kind identifiers
const (
	KindContactCreated     = "contact_created"
	KindContactDeleted     = "contact_deleted"
	KindContactMovedToList = "contact_moved_to_list"
	KindMassSendInitiated  = "mass_send_initiated"
	KindSchedule           = "schedule"
)

// ContactCreatedConfig narrows contact_created to a creation source when set
type ContactCreatedConfig struct {
	Source string `json:"source"`
}

// ContactCreatedTrigger matches contact.created events
type ContactCreatedTrigger struct{}

func (t *ContactCreatedTrigger) Kind() string { return KindContactCreated }

func (t *ContactCreatedTrigger) Matches(config models.JSONMap, event *models.Event) (bool, error) {
	if event.Kind != models.EventKindContactCreated {
		return false, nil
	}

	var cfg ContactCreatedConfig
	if err := config.Decode(&cfg); err != nil {
		return false, fmt.Errorf("invalid %s config: %w", t.Kind(), err)
	}

	if cfg.Source != "" && cfg.Source != event.Source {
		return false, nil
	}
	return true, nil
}

// ContactDeletedConfig narrows contact_deleted to a deletion source when set
type ContactDeletedConfig struct {
	Source string `json:"source"`
}

// ContactDeletedTrigger matches contact.deleted events
type ContactDeletedTrigger struct{}

func (t *ContactDeletedTrigger) Kind() string { return KindContactDeleted }

func (t *ContactDeletedTrigger) Matches(config models.JSONMap, event *models.Event) (bool, error) {
	if event.Kind != models.EventKindContactDeleted {
		return false, nil
	}

	var cfg ContactDeletedConfig
	if err := config.Decode(&cfg); err != nil {
		return false, fmt.Errorf("invalid %s config: %w", t.Kind(), err)
	}

	if cfg.Source != "" && cfg.Source != event.Source {
		return false, nil
	}
	return true, nil
}

// ContactMovedToListConfig names the destination list the trigger watches
type ContactMovedToListConfig struct {
	ListID string `json:"listId"`
}

// ContactMovedToListTrigger matches contact.moved events into a specific list
type ContactMovedToListTrigger struct{}

func (t *ContactMovedToListTrigger) Kind() string { return KindContactMovedToList }

func (t *ContactMovedToListTrigger) Matches(config models.JSONMap, event *models.Event) (bool, error) {
	if event.Kind != models.EventKindContactMoved {
		return false, nil
	}

	var cfg ContactMovedToListConfig
	if err := config.Decode(&cfg); err != nil {
		return false, fmt.Errorf("invalid %s config: %w", t.Kind(), err)
	}

	if cfg.ListID == "" {
		// No list filter: any move matches.
		return true, nil
	}
	return cfg.ListID == event.ListID, nil
}

// MassSendInitiatedConfig narrows mass_send_initiated to one channel when set
type MassSendInitiatedConfig struct {
	Channel string `json:"channel"`
}

// MassSendInitiatedTrigger matches mass_send.initiated events
type MassSendInitiatedTrigger struct{}

func (t *MassSendInitiatedTrigger) Kind() string { return KindMassSendInitiated }

func (t *MassSendInitiatedTrigger) Matches(config models.JSONMap, event *models.Event) (bool, error) {
	if event.Kind != models.EventKindMassSendInitiated {
		return false, nil
	}

	var cfg MassSendInitiatedConfig
	if err := config.Decode(&cfg); err != nil {
		return false, fmt.Errorf("invalid %s config: %w", t.Kind(), err)
	}

	if cfg.Channel == "" {
		return true, nil
	}
	channel, _ := event.Data["channel"].(string)
	return cfg.Channel == channel, nil
}

// ScheduleConfig holds the cron expression the scheduler registers
type ScheduleConfig struct {
	Cron string `json:"cron"`
}

// ScheduleTrigger matches the synthetic schedule.fired events emitted by the
// cron scheduler. The cron expression itself is consumed by the scheduler,
// not by the match.
type ScheduleTrigger struct{}

func (t *ScheduleTrigger) Kind() string { return KindSchedule }

func (t *ScheduleTrigger) Matches(config models.JSONMap, event *models.Event) (bool, error) {
	return event.Kind == models.EventKindScheduleFired, nil
}
