package graph

import (
	"github.com/rmax-ai/traceview/pkg/trace"
)

// ActivityNode is the node of a single activity.
type ActivityNode struct {
	position
	activity trace.Activity
	group    *activityGroup
}

func (n *ActivityNode) Kind() trace.EntityRefKind { return trace.KindActivity }
func (n *ActivityNode) DataID() string            { return EntityDataID(n.activity.ID) }
func (n *ActivityNode) VizID() string             { return EntityVizID(n.activity.ID) }
func (n *ActivityNode) Size() int                 { return 1 }
func (n *ActivityNode) Label() string             { return n.activity.Name }

func (n *ActivityNode) Name() string               { return n.activity.Name }
func (n *ActivityNode) Type() trace.ActivityType   { return n.activity.Type }
func (n *ActivityNode) Running() bool              { return n.activity.Running }
func (n *ActivityNode) ActivityID() trace.ID       { return n.activity.ID }
func (n *ActivityNode) Activity() trace.Activity   { return n.activity }
func (n *ActivityNode) CodePaneQuery() string      { return codePaneQuery([]trace.ID{n.activity.ID}) }
func (n *ActivityNode) CreationScope() (trace.ID, bool) {
	if n.activity.CreationScope == nil {
		return 0, false
	}
	return *n.activity.CreationScope, true
}

// ActivityGroupNode stands for every activity sharing a name once the
// population passed ActivityGroupThreshold. Display properties come from
// the first member.
type ActivityGroupNode struct {
	position
	group *activityGroup
}

func (n *ActivityGroupNode) Kind() trace.EntityRefKind { return trace.KindActivity }
func (n *ActivityGroupNode) DataID() string            { return activityGroupDataID(n.group.id) }
func (n *ActivityGroupNode) VizID() string             { return "sv-" + n.DataID() }
func (n *ActivityGroupNode) Size() int                 { return len(n.group.members) }
func (n *ActivityGroupNode) Label() string             { return n.Name() }

func (n *ActivityGroupNode) Name() string             { return n.group.first().Name }
func (n *ActivityGroupNode) Type() trace.ActivityType { return n.group.first().Type }
func (n *ActivityGroupNode) ActivityID() trace.ID     { return n.group.first().ID }

// Running reports whether any member is running.
func (n *ActivityGroupNode) Running() bool {
	for _, m := range n.group.members {
		if m.activity.Running {
			return true
		}
	}
	return false
}

// CodePaneQuery selects every member, in arrival order.
func (n *ActivityGroupNode) CodePaneQuery() string {
	return codePaneQuery(n.group.memberIDs())
}

// PassiveEntityNode is the node of a single passive entity.
type PassiveEntityNode struct {
	position
	entity trace.PassiveEntity
	group  *passiveGroup
}

func (n *PassiveEntityNode) Kind() trace.EntityRefKind { return trace.KindPassiveEntity }
func (n *PassiveEntityNode) DataID() string            { return EntityDataID(n.entity.ID) }
func (n *PassiveEntityNode) VizID() string             { return EntityVizID(n.entity.ID) }
func (n *PassiveEntityNode) Size() int                 { return 1 }
func (n *PassiveEntityNode) Label() string             { return n.LocationID() }

func (n *PassiveEntityNode) Entity() trace.PassiveEntity   { return n.entity }
func (n *PassiveEntityNode) Type() trace.PassiveEntityType { return n.entity.Type }
func (n *PassiveEntityNode) LocationID() string            { return n.entity.Origin.LocationID() }
func (n *PassiveEntityNode) CodePaneQuery() string         { return codePaneQuery([]trace.ID{n.entity.ID}) }

// PassiveGroupNode stands for every passive entity created at one source
// location once the population passed PassiveGroupThreshold.
type PassiveGroupNode struct {
	position
	group *passiveGroup
}

func (n *PassiveGroupNode) Kind() trace.EntityRefKind { return trace.KindPassiveEntity }
func (n *PassiveGroupNode) DataID() string            { return passiveGroupDataID(n.group.id) }
func (n *PassiveGroupNode) VizID() string             { return "sv-" + n.DataID() }
func (n *PassiveGroupNode) Size() int                 { return len(n.group.members) }
func (n *PassiveGroupNode) Label() string             { return n.LocationID() }

func (n *PassiveGroupNode) Type() trace.PassiveEntityType { return n.group.first().Type }
func (n *PassiveGroupNode) LocationID() string            { return n.group.location }
func (n *PassiveGroupNode) CodePaneQuery() string         { return codePaneQuery(n.group.memberIDs()) }
