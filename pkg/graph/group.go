package graph

import (
	"github.com/rmax-ai/traceview/pkg/trace"
)

// activityGroup collects the activities sharing a name.
type activityGroup struct {
	id      int
	name    string
	members []*ActivityNode
	node    *ActivityGroupNode // set on promotion, never cleared
}

func (g *activityGroup) first() trace.Activity { return g.members[0].activity }

func (g *activityGroup) memberIDs() []trace.ID {
	ids := make([]trace.ID, len(g.members))
	for i, m := range g.members {
		ids[i] = m.activity.ID
	}
	return ids
}

// promote creates the group node once the population exceeds the threshold.
// numGroups seeds the vertical position.
func (g *activityGroup) promote(numGroups int) bool {
	if g.node != nil || len(g.members) <= ActivityGroupThreshold {
		return false
	}
	g.node = &ActivityGroupNode{
		position: newPosition(
			float64(HorizontalDistance+HorizontalDistance*len(g.members)),
			float64(VerticalDistance*numGroups)),
		group: g,
	}
	return true
}

// passiveGroup collects the passive entities created at one source location.
type passiveGroup struct {
	id       int
	location string
	members  []*PassiveEntityNode
	node     *PassiveGroupNode
}

func (g *passiveGroup) first() trace.PassiveEntity { return g.members[0].entity }

func (g *passiveGroup) memberIDs() []trace.ID {
	ids := make([]trace.ID, len(g.members))
	for i, m := range g.members {
		ids[i] = m.entity.ID
	}
	return ids
}

func (g *passiveGroup) promote(numGroups int) bool {
	if g.node != nil || len(g.members) <= PassiveGroupThreshold {
		return false
	}
	g.node = &PassiveGroupNode{
		position: newPosition(
			float64(HorizontalDistance+HorizontalDistance*len(g.members)),
			float64(VerticalDistance*numGroups)),
		group: g,
	}
	return true
}
