package graph

import (
	"github.com/rmax-ai/traceview/pkg/trace"
)

// entityRef addresses an individual entity node by kind and arena index.
type entityRef struct {
	kind  trace.EntityRefKind
	index int
}

// SystemView aggregates trace data into a graph of activities and passive
// entities, grouping dense populations and weighting edges by message count.
//
// A SystemView is not safe for concurrent use. The node listing methods and
// Links mutate it (group promotion), so callers sharing a view must serialize
// every call.
type SystemView struct {
	meta *trace.MetaModel

	activities          []*ActivityNode
	activityIndex       map[trace.ID]int
	activityGroups      []*activityGroup
	activityGroupByName map[string]*activityGroup

	passives             []*PassiveEntityNode
	passiveIndex         map[trace.ID]int
	passiveGroups        []*passiveGroup
	passiveGroupByOrigin map[string]*passiveGroup

	// messages is keyed by individual entity nodes only; grouping is applied
	// when links are assembled.
	messages         *pairCounter[entityRef]
	messagesIngested int
	maxMessageCount  int
	visibleMax       int
}

// NewSystemView creates an empty view resolving operations through meta.
// A nil meta-model is an assertion failure.
func NewSystemView(meta *trace.MetaModel) *SystemView {
	if meta == nil {
		assertf("meta-model not initialized")
	}
	v := &SystemView{meta: meta}
	v.Reset()
	return v
}

// Reset discards every entity, group and count. The meta-model is kept.
func (v *SystemView) Reset() {
	v.activities = nil
	v.activityIndex = make(map[trace.ID]int)
	v.activityGroups = nil
	v.activityGroupByName = make(map[string]*activityGroup)

	v.passives = nil
	v.passiveIndex = make(map[trace.ID]int)
	v.passiveGroups = nil
	v.passiveGroupByOrigin = make(map[string]*passiveGroup)

	v.messages = newPairCounter[entityRef]()
	v.messagesIngested = 0
	v.maxMessageCount = 0
	v.visibleMax = 0
}

// UpdateTraceData ingests a batch: activities, passive entities, send ops,
// then receive ops. A reference to an unknown op type or entity panics with
// an *AssertionError; work already applied from the batch is kept.
func (v *SystemView) UpdateTraceData(data trace.Update) {
	if v.meta == nil {
		assertf("meta-model not initialized")
	}
	for _, act := range data.Activities {
		v.addActivity(act)
	}
	for _, pe := range data.PassiveEntities {
		v.addPassiveEntity(pe)
	}
	for _, send := range data.SendOps {
		v.addSend(send)
	}
	for _, rcv := range data.ReceiveOps {
		v.addReceive(rcv)
	}
}

func (v *SystemView) addActivity(act trace.Activity) {
	numGroups := len(v.activityGroups)
	g, ok := v.activityGroupByName[act.Name]
	if !ok {
		g = &activityGroup{id: numGroups, name: act.Name}
		v.activityGroups = append(v.activityGroups, g)
		v.activityGroupByName[act.Name] = g
	}

	node := &ActivityNode{activity: act, group: g}
	g.members = append(g.members, node)
	node.position = newPosition(
		float64(HorizontalDistance+HorizontalDistance*len(g.members)),
		float64(VerticalDistance*numGroups))

	v.activityIndex[act.ID] = len(v.activities)
	v.activities = append(v.activities, node)
}

func (v *SystemView) addPassiveEntity(pe trace.PassiveEntity) {
	numGroups := len(v.passiveGroups)
	location := pe.Origin.LocationID()
	g, ok := v.passiveGroupByOrigin[location]
	if !ok {
		g = &passiveGroup{id: numGroups, location: location}
		v.passiveGroups = append(v.passiveGroups, g)
		v.passiveGroupByOrigin[location] = g
	}

	node := &PassiveEntityNode{entity: pe, group: g}
	g.members = append(g.members, node)
	node.position = newPosition(
		float64(HorizontalDistance+HorizontalDistance*len(g.members)),
		float64(VerticalDistance*numGroups))

	v.passiveIndex[pe.ID] = len(v.passives)
	v.passives = append(v.passives, node)
}

func (v *SystemView) addSend(op trace.SendOp) {
	kind, ok := v.meta.SendTarget(op.Type)
	if !ok {
		assertf("send op type %d not in meta-model", op.Type)
	}
	source := v.ref(trace.KindActivity, op.CreationActivity)
	target := v.ref(kind, op.Target)
	v.countMessage(source, target)
}

func (v *SystemView) addReceive(op trace.ReceiveOp) {
	kind, ok := v.meta.ReceiveSource(op.Type)
	if !ok {
		assertf("receive op type %d not in meta-model", op.Type)
	}
	target := v.ref(trace.KindActivity, op.CreationActivity)
	source := v.ref(kind, op.Source)
	v.countMessage(source, target)
}

func (v *SystemView) countMessage(source, target entityRef) {
	n := v.messages.add(source, target, 1)
	v.messagesIngested++
	if n > v.maxMessageCount {
		v.maxMessageCount = n
	}
}

// ref resolves an entity id of the given kind to its individual node.
func (v *SystemView) ref(kind trace.EntityRefKind, id trace.ID) entityRef {
	r, ok := v.lookup(kind, id)
	if !ok {
		switch kind {
		case trace.KindActivity:
			assertf("activity %d not ingested", id)
		case trace.KindPassiveEntity:
			assertf("passive entity %d not ingested", id)
		default:
			assertf("no node table for %s entity %d", kind, id)
		}
	}
	return r
}

// lookup is ref without the assertion.
func (v *SystemView) lookup(kind trace.EntityRefKind, id trace.ID) (entityRef, bool) {
	var (
		i  int
		ok bool
	)
	switch kind {
	case trace.KindActivity:
		i, ok = v.activityIndex[id]
	case trace.KindPassiveEntity:
		i, ok = v.passiveIndex[id]
	}
	return entityRef{kind: kind, index: i}, ok
}

// visible returns the group node of the entity if its group was promoted,
// otherwise the entity's own node.
func (v *SystemView) visible(r entityRef) Node {
	switch r.kind {
	case trace.KindActivity:
		n := v.activities[r.index]
		if n.group.node != nil {
			return n.group.node
		}
		return n
	case trace.KindPassiveEntity:
		n := v.passives[r.index]
		if n.group.node != nil {
			return n.group.node
		}
		return n
	default:
		assertf("no node table for %s", r.kind)
		return nil
	}
}

// SetActivityRunning updates the running flag of an ingested activity.
// It reports false if the activity is unknown.
func (v *SystemView) SetActivityRunning(id trace.ID, running bool) bool {
	i, ok := v.activityIndex[id]
	if !ok {
		return false
	}
	v.activities[i].activity.Running = running
	return true
}

// ActivityNodes returns the visible activity nodes: ungrouped activities and
// one node per group over ActivityGroupThreshold, promoting groups as needed.
// Nodes come in arrival order; a group takes the slot of its first member.
func (v *SystemView) ActivityNodes() []Node {
	v.promoteActivityGroups()

	emitted := make(map[*activityGroup]bool)
	result := make([]Node, 0, len(v.activities))
	for _, a := range v.activities {
		g := a.group
		if g.node == nil {
			result = append(result, a)
			continue
		}
		if !emitted[g] {
			emitted[g] = true
			result = append(result, g.node)
		}
	}
	return result
}

// EntityNodes returns the visible passive entity nodes, promoting groups
// over PassiveGroupThreshold.
func (v *SystemView) EntityNodes() []Node {
	v.promotePassiveGroups()

	emitted := make(map[*passiveGroup]bool)
	result := make([]Node, 0, len(v.passives))
	for _, p := range v.passives {
		g := p.group
		if g.node == nil {
			result = append(result, p)
			continue
		}
		if !emitted[g] {
			emitted[g] = true
			result = append(result, g.node)
		}
	}
	return result
}

func (v *SystemView) promoteActivityGroups() {
	for _, g := range v.activityGroups {
		g.promote(len(v.activityGroups))
	}
}

func (v *SystemView) promotePassiveGroups() {
	for _, g := range v.passiveGroups {
		g.promote(len(v.passiveGroups))
	}
}

// MaxMessageSends is the largest cumulative count of any single
// (source, target) entity pair ingested so far.
func (v *SystemView) MaxMessageSends() int { return v.maxMessageCount }

// VisibleMaxMessageSends is the largest message link weight produced by the
// last call to Links, after folding entities into groups.
func (v *SystemView) VisibleMaxMessageSends() int { return v.visibleMax }

// Stats summarizes the view. Groups over their threshold are promoted first,
// so the promoted counts do not depend on earlier node listings.
func (v *SystemView) Stats() Stats {
	v.promoteActivityGroups()
	v.promotePassiveGroups()

	s := Stats{
		Activities:       len(v.activities),
		PassiveEntities:  len(v.passives),
		ActivityGroups:   len(v.activityGroups),
		PassiveGroups:    len(v.passiveGroups),
		MessagePairs:     v.messages.len(),
		MessagesIngested: v.messagesIngested,
		MaxMessageSends:  v.maxMessageCount,
	}
	for _, g := range v.activityGroups {
		if g.node != nil {
			s.PromotedActivityGroups++
		}
	}
	for _, g := range v.passiveGroups {
		if g.node != nil {
			s.PromotedPassiveGroups++
		}
	}
	return s
}

// LookupNode finds a visible node by data id, including group ids and ids of
// grouped members (which resolve to their group node).
func (v *SystemView) LookupNode(dataID string) (Node, bool) {
	for _, n := range v.ActivityNodes() {
		if n.DataID() == dataID {
			return n, true
		}
	}
	for _, n := range v.EntityNodes() {
		if n.DataID() == dataID {
			return n, true
		}
	}
	for i, a := range v.activities {
		if a.DataID() == dataID {
			return v.visible(entityRef{kind: trace.KindActivity, index: i}), true
		}
	}
	for i, p := range v.passives {
		if p.DataID() == dataID {
			return v.visible(entityRef{kind: trace.KindPassiveEntity, index: i}), true
		}
	}
	return nil, false
}
