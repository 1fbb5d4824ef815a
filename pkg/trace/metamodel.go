package trace

import (
	"encoding/json"
	"fmt"
	"os"
)

// EntityDef describes one entity type announced by the traced runtime.
type EntityDef struct {
	ID         int    `json:"id"`
	Label      string `json:"label"`
	Creation   *int   `json:"creation,omitempty"`
	Completion *int   `json:"completion,omitempty"`
	Marker     string `json:"marker,omitempty"` // icon name
}

// SendDef describes a send operation type. Entity and Target are entity type ids.
type SendDef struct {
	Marker SendOpType `json:"marker"`
	Entity int        `json:"entity"`
	Target int        `json:"target"`
	Label  string     `json:"label"`
}

// ReceiveDef describes a receive operation type. Source is an entity type id.
type ReceiveDef struct {
	Marker ReceiveOpType `json:"marker"`
	Source int           `json:"source"`
}

// Capabilities is the runtime's self-description sent when a session starts.
type Capabilities struct {
	Activities      []EntityDef  `json:"activities"`
	PassiveEntities []EntityDef  `json:"passiveEntities"`
	DynamicScopes   []EntityDef  `json:"dynamicScopes"`
	SendOps         []SendDef    `json:"sendOps"`
	ReceiveOps      []ReceiveDef `json:"receiveOps"`
}

// MetaModel resolves operation types to the kind of entity on their far end.
// It is immutable once built.
type MetaModel struct {
	sendTargets    map[SendOpType]EntityRefKind
	receiveSources map[ReceiveOpType]EntityRefKind
	sendLabels     map[SendOpType]string
	activityLabels map[ActivityType]string
	passiveLabels  map[PassiveEntityType]string
}

// NewMetaModel builds the lookup tables from the runtime capabilities.
// Every entity type referenced by a send or receive definition must be
// declared in exactly one of the entity lists.
func NewMetaModel(caps Capabilities) (*MetaModel, error) {
	kinds := make(map[int]EntityRefKind)
	declare := func(defs []EntityDef, kind EntityRefKind) error {
		for _, d := range defs {
			if prev, ok := kinds[d.ID]; ok {
				return fmt.Errorf("entity type %d declared as both %s and %s", d.ID, prev, kind)
			}
			kinds[d.ID] = kind
		}
		return nil
	}
	if err := declare(caps.Activities, KindActivity); err != nil {
		return nil, err
	}
	if err := declare(caps.PassiveEntities, KindPassiveEntity); err != nil {
		return nil, err
	}
	if err := declare(caps.DynamicScopes, KindDynamicScope); err != nil {
		return nil, err
	}

	m := &MetaModel{
		sendTargets:    make(map[SendOpType]EntityRefKind, len(caps.SendOps)),
		receiveSources: make(map[ReceiveOpType]EntityRefKind, len(caps.ReceiveOps)),
		sendLabels:     make(map[SendOpType]string, len(caps.SendOps)),
		activityLabels: make(map[ActivityType]string, len(caps.Activities)),
		passiveLabels:  make(map[PassiveEntityType]string, len(caps.PassiveEntities)),
	}

	for _, s := range caps.SendOps {
		kind, ok := kinds[s.Target]
		if !ok {
			return nil, fmt.Errorf("send op %d (%s): unknown target entity type %d", s.Marker, s.Label, s.Target)
		}
		m.sendTargets[s.Marker] = kind
		m.sendLabels[s.Marker] = s.Label
	}
	for _, r := range caps.ReceiveOps {
		kind, ok := kinds[r.Source]
		if !ok {
			return nil, fmt.Errorf("receive op %d: unknown source entity type %d", r.Marker, r.Source)
		}
		m.receiveSources[r.Marker] = kind
	}
	for _, a := range caps.Activities {
		m.activityLabels[ActivityType(a.ID)] = a.Label
	}
	for _, p := range caps.PassiveEntities {
		m.passiveLabels[PassiveEntityType(p.ID)] = p.Label
	}

	return m, nil
}

// LoadMetaModel reads capabilities JSON from path and builds a MetaModel.
func LoadMetaModel(path string) (*MetaModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read meta-model: %w", err)
	}
	var caps Capabilities
	if err := json.Unmarshal(data, &caps); err != nil {
		return nil, fmt.Errorf("failed to parse meta-model %s: %w", path, err)
	}
	return NewMetaModel(caps)
}

// SendTarget returns the kind of entity a send op of type t targets.
func (m *MetaModel) SendTarget(t SendOpType) (EntityRefKind, bool) {
	k, ok := m.sendTargets[t]
	return k, ok
}

// ReceiveSource returns the kind of entity a receive op of type t reads from.
func (m *MetaModel) ReceiveSource(t ReceiveOpType) (EntityRefKind, bool) {
	k, ok := m.receiveSources[t]
	return k, ok
}

// SendLabel returns the display label of a send op type.
func (m *MetaModel) SendLabel(t SendOpType) string {
	return m.sendLabels[t]
}

// ActivityLabel returns the display label of an activity type, or "" if unknown.
func (m *MetaModel) ActivityLabel(t ActivityType) string {
	return m.activityLabels[t]
}

// PassiveEntityLabel returns the display label of a passive entity type, or "" if unknown.
func (m *MetaModel) PassiveEntityLabel(t PassiveEntityType) string {
	return m.passiveLabels[t]
}
