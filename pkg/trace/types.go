package trace

import (
	"fmt"
)

// ID identifies an activity, passive entity or dynamic scope.
// IDs are unique across the traced process.
type ID int64

// ActivityType is the runtime's marker for a kind of activity (actor, thread, task...).
type ActivityType int

// PassiveEntityType is the runtime's marker for a kind of passive entity (lock, promise...).
type PassiveEntityType int

// DynamicScopeType is the runtime's marker for a kind of dynamic scope.
type DynamicScopeType int

// SendOpType is the runtime's marker for a send operation.
type SendOpType int

// ReceiveOpType is the runtime's marker for a receive operation.
type ReceiveOpType int

// EntityRefKind tells which node table an entity reference resolves into.
type EntityRefKind string

const (
	KindActivity      EntityRefKind = "activity"
	KindPassiveEntity EntityRefKind = "passive_entity"
	KindDynamicScope  EntityRefKind = "dynamic_scope"
)

// SourceCoordinate locates a section of source code.
type SourceCoordinate struct {
	URI         string `json:"uri"`
	StartLine   int    `json:"startLine"`
	StartColumn int    `json:"startColumn"`
	CharLength  int    `json:"charLength"`
}

// LocationID serializes the coordinate as uri:line:column:length.
// Passive entities created at the same location share a group.
func (c SourceCoordinate) LocationID() string {
	return fmt.Sprintf("%s:%d:%d:%d", c.URI, c.StartLine, c.StartColumn, c.CharLength)
}

// Activity is a schedulable entity of the traced program.
type Activity struct {
	ID               ID           `json:"id"`
	Name             string       `json:"name"`
	Type             ActivityType `json:"type"`
	Running          bool         `json:"running"`
	CreationActivity *ID          `json:"creationActivity,omitempty"` // nil for the root activity
	CreationScope    *ID          `json:"creationScope,omitempty"`
}

// Creator returns the id of the activity that spawned a, if any.
func (a Activity) Creator() (ID, bool) {
	if a.CreationActivity == nil {
		return 0, false
	}
	return *a.CreationActivity, true
}

// PassiveEntity is a non-schedulable traced object.
type PassiveEntity struct {
	ID               ID                `json:"id"`
	Type             PassiveEntityType `json:"type"`
	Origin           SourceCoordinate  `json:"origin"`
	CreationActivity ID                `json:"creationActivity"`
}

// DynamicScope is a traced dynamic extent (e.g. a turn or a transaction).
// Scopes are carried for completeness; they never become graph nodes.
type DynamicScope struct {
	ID               ID               `json:"id"`
	Type             DynamicScopeType `json:"type"`
	CreationActivity ID               `json:"creationActivity"`
}

// SendOp records an operation performed by CreationActivity on Target.
// The kind of Target is given by the meta-model entry for Type.
type SendOp struct {
	Type             SendOpType `json:"type"`
	CreationActivity ID         `json:"creationActivity"`
	Target           ID         `json:"target"`
}

// ReceiveOp records CreationActivity receiving from Source.
// The kind of Source is given by the meta-model entry for Type.
type ReceiveOp struct {
	Type             ReceiveOpType `json:"type"`
	CreationActivity ID            `json:"creationActivity"`
	Source           ID            `json:"source"`
}

// Update is one batch of newly observed trace data.
// Consumers process it in field order: activities, passive entities, sends, receives.
type Update struct {
	Activities      []Activity      `json:"activities"`
	PassiveEntities []PassiveEntity `json:"passiveEntities"`
	DynamicScopes   []DynamicScope  `json:"dynamicScopes,omitempty"`
	SendOps         []SendOp        `json:"sendOps"`
	ReceiveOps      []ReceiveOp     `json:"receiveOps"`
}

// Len returns the number of events in the batch.
func (u Update) Len() int {
	return len(u.Activities) + len(u.PassiveEntities) + len(u.DynamicScopes) + len(u.SendOps) + len(u.ReceiveOps)
}

// Ref returns a pointer to id, for populating optional references.
func Ref(id ID) *ID {
	return &id
}
