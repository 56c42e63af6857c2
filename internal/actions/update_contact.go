package actions

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Lovjeet1233/kepleroai-automation-service/internal/models"
)

const KindUpdateContact = "update_contact"

// UpdateContactConfig is the per-node configuration of the update_contact
// action. Fields are merged into the contact's custom fields; Tag is
// appended to the contact's tags when not already present.
type UpdateContactConfig struct {
	Fields map[string]interface{} `json:"fields"`
	Tag    string                 `json:"tag"`
}

// ContactStore is the slice of contact persistence the handler needs
type ContactStore interface {
	GetByID(ctx context.Context, id uint) (*models.Contact, error)
	Update(ctx context.Context, contact *models.Contact) error
}

// UpdateContactAction mutates the contact referenced by the trigger payload
type UpdateContactAction struct {
	contacts ContactStore
	logger   *zap.Logger
}

// NewUpdateContactAction creates an update_contact handler
func NewUpdateContactAction(contacts ContactStore, logger *zap.Logger) *UpdateContactAction {
	return &UpdateContactAction{contacts: contacts, logger: logger}
}

func (a *UpdateContactAction) Kind() string { return KindUpdateContact }

// Execute applies the configured field updates and tag to the trigger contact
func (a *UpdateContactAction) Execute(ctx context.Context, config models.JSONMap, trigger models.JSONMap, ec *models.ExecContext) (*Result, error) {
	var cfg UpdateContactConfig
	if err := config.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", a.Kind(), err)
	}
	if len(cfg.Fields) == 0 && cfg.Tag == "" {
		return nil, fmt.Errorf("%s: nothing to update, set fields or tag", a.Kind())
	}

	contactID, ok := triggerContactID(trigger)
	if !ok {
		return nil, fmt.Errorf("%s: trigger payload has no contact_id", a.Kind())
	}

	contact, err := a.contacts.GetByID(ctx, contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to load contact %d: %w", contactID, err)
	}
	if contact == nil {
		return nil, fmt.Errorf("contact %d not found", contactID)
	}

	updatedFields := make([]string, 0, len(cfg.Fields))
	if len(cfg.Fields) > 0 {
		if contact.Fields == nil {
			contact.Fields = models.JSONMap{}
		}
		for k, v := range cfg.Fields {
			contact.Fields[k] = v
			updatedFields = append(updatedFields, k)
		}
	}

	tagged := false
	if cfg.Tag != "" && !hasTag(contact.Tags, cfg.Tag) {
		contact.Tags = append(contact.Tags, cfg.Tag)
		tagged = true
	}

	if err := a.contacts.Update(ctx, contact); err != nil {
		return nil, fmt.Errorf("failed to update contact %d: %w", contactID, err)
	}

	a.logger.Info("Updated contact",
		zap.Uint("contact_id", contactID),
		zap.Strings("fields", updatedFields),
		zap.String("tag", cfg.Tag))

	output := models.JSONMap{
		"contact_id":     contactID,
		"updated_fields": updatedFields,
	}
	if cfg.Tag != "" {
		output["tag"] = cfg.Tag
		output["tag_added"] = tagged
	}

	return &Result{Success: true, Output: output}, nil
}

func hasTag(tags models.JSONStrings, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
