package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// BaseModel contains common fields for all persisted models
type BaseModel struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// NodeKind discriminates the three node variants of an automation pipeline
type NodeKind string

const (
	NodeKindTrigger NodeKind = "trigger"
	NodeKindDelay   NodeKind = "delay"
	NodeKindAction  NodeKind = "action"
)

// DelayUnit is the time unit of a delay node
type DelayUnit string

const (
	DelayUnitMinutes DelayUnit = "minutes"
	DelayUnitHours   DelayUnit = "hours"
	DelayUnitDays    DelayUnit = "days"
)

// Milliseconds converts amount in this unit to milliseconds.
// Unknown units return 0, false.
func (u DelayUnit) Milliseconds(amount int) (int64, bool) {
	switch u {
	case DelayUnitMinutes:
		return int64(amount) * 60_000, true
	case DelayUnitHours:
		return int64(amount) * 3_600_000, true
	case DelayUnitDays:
		return int64(amount) * 86_400_000, true
	}
	return 0, false
}

// ExecutionStatus represents the lifecycle of an automation execution
type ExecutionStatus string

const (
	ExecutionStatusPending ExecutionStatus = "pending"
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
)

// EventKind represents the business events other Keplero services publish
type EventKind string

const (
	EventKindContactCreated    EventKind = "contact.created"
	EventKindContactDeleted    EventKind = "contact.deleted"
	EventKindContactMoved      EventKind = "contact.moved"
	EventKindMassSendInitiated EventKind = "mass_send.initiated"
	EventKindScheduleFired     EventKind = "schedule.fired"
)

// JSONMap represents a JSON object stored in the database
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into JSONMap", value)
	}

	return json.Unmarshal(bytes, j)
}

// Decode unmarshals the map into a typed configuration struct. Trigger and
// action handlers use it to turn a node's opaque config into their own type.
func (j JSONMap) Decode(out interface{}) error {
	bytes, err := json.Marshal(j)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

// JSONStrings represents a JSON string array stored in the database
type JSONStrings []string

// Value implements the driver.Valuer interface
func (j JSONStrings) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSONStrings) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into JSONStrings", value)
	}

	return json.Unmarshal(bytes, j)
}

// ActionRecord is one action node's outcome within an execution
type ActionRecord struct {
	NodeID  uint    `json:"node_id"`
	Service string  `json:"service"`
	Result  JSONMap `json:"result"`
}

// ActionRecords is the ordered list of action outcomes, stored as jsonb
type ActionRecords []ActionRecord

// Value implements the driver.Valuer interface
func (a ActionRecords) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

// Scan implements the sql.Scanner interface
func (a *ActionRecords) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into ActionRecords", value)
	}

	return json.Unmarshal(bytes, a)
}

// Automation is a user-authored pipeline: one trigger node, optional delay
// nodes and one or more action nodes, ordered by position.
type Automation struct {
	BaseModel
	WorkspaceID    uint       `gorm:"not null;index" json:"workspace_id"`
	UserID         uint       `gorm:"not null;index" json:"user_id"`
	Name           string     `gorm:"size:255;not null" json:"name"`
	IsActive       bool       `gorm:"default:true;index" json:"is_active"`
	ExecutionCount int64      `gorm:"default:0" json:"execution_count"`
	LastExecutedAt *time.Time `json:"last_executed_at"`

	Nodes []AutomationNode `gorm:"foreignKey:AutomationID;constraint:OnDelete:CASCADE" json:"nodes"`
}

// TableName sets the table name for Automation
func (Automation) TableName() string {
	return "automations"
}

// TriggerNode returns the automation's trigger node, located by kind rather
// than position: the trigger is conventionally first but not required to be.
func (a *Automation) TriggerNode() *AutomationNode {
	for i := range a.Nodes {
		if a.Nodes[i].Kind == NodeKindTrigger {
			return &a.Nodes[i]
		}
	}
	return nil
}

// AutomationNode is one step of an automation pipeline. Service and Config
// are set for trigger and action nodes; Amount and Unit for delay nodes.
type AutomationNode struct {
	BaseModel
	AutomationID uint      `gorm:"not null;index" json:"automation_id"`
	Kind         NodeKind  `gorm:"size:50;not null" json:"kind"`
	Position     int       `gorm:"not null" json:"position"`
	Service      string    `gorm:"size:100" json:"service,omitempty"`
	Config       JSONMap   `gorm:"type:jsonb" json:"config,omitempty"`
	Amount       int       `json:"amount,omitempty"`
	Unit         DelayUnit `gorm:"size:20" json:"unit,omitempty"`
}

// TableName sets the table name for AutomationNode
func (AutomationNode) TableName() string {
	return "automation_nodes"
}

// AutomationExecution is the append-only record of one automation run.
// It is created pending and mutated exactly once to a terminal status by
// the run that created it.
type AutomationExecution struct {
	BaseModel
	AutomationID uint            `gorm:"not null;index" json:"automation_id"`
	Status       ExecutionStatus `gorm:"size:50;not null;default:'pending';index" json:"status"`
	TriggerData  JSONMap         `gorm:"type:jsonb" json:"trigger_data"`
	ActionData   ActionRecords   `gorm:"type:jsonb" json:"action_data"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt    time.Time       `gorm:"not null;index" json:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

// TableName sets the table name for AutomationExecution
func (AutomationExecution) TableName() string {
	return "automation_executions"
}

// Contact is the CRM contact row. The automation service only reads and
// mutates contacts from the update_contact action handler; the CRM core owns
// the rest of the lifecycle.
type Contact struct {
	BaseModel
	WorkspaceID uint        `gorm:"not null;index" json:"workspace_id"`
	Name        string      `gorm:"size:255" json:"name"`
	Phone       string      `gorm:"size:50;index" json:"phone"`
	Email       string      `gorm:"size:255;index" json:"email"`
	Source      string      `gorm:"size:100" json:"source"`
	Tags        JSONStrings `gorm:"type:jsonb" json:"tags"`
	Fields      JSONMap     `gorm:"type:jsonb" json:"fields"`
}

// TableName sets the table name for Contact
func (Contact) TableName() string {
	return "contacts"
}

// Event is a runtime business event submitted for dispatch
type Event struct {
	ID          string    `json:"id"`
	Kind        EventKind `json:"kind"`
	ContactID   uint      `json:"contact_id,omitempty"`
	ListID      string    `json:"list_id,omitempty"`
	Source      string    `json:"source,omitempty"`
	WorkspaceID uint      `json:"workspace_id"`
	UserID      uint      `json:"user_id"`
	Timestamp   time.Time `json:"timestamp"`
	Data        JSONMap   `json:"data,omitempty"`
}

// Payload flattens the event into the opaque trigger payload handed to
// action handlers and persisted on the execution record.
func (e *Event) Payload() JSONMap {
	payload := JSONMap{
		"id":           e.ID,
		"event":        string(e.Kind),
		"contact_id":   e.ContactID,
		"list_id":      e.ListID,
		"source":       e.Source,
		"workspace_id": e.WorkspaceID,
		"user_id":      e.UserID,
		"timestamp":    e.Timestamp.Format(time.RFC3339),
	}
	for k, v := range e.Data {
		payload[k] = v
	}
	return payload
}

// ExecContext carries caller identity through dispatch and execution.
// It is threaded explicitly; handlers never read identity from global state.
type ExecContext struct {
	WorkspaceID uint `json:"workspace_id"`
	UserID      uint `json:"user_id"`
}
