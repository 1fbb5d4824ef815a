package graph

import (
	"github.com/rmax-ai/traceview/pkg/trace"
)

// NodeView is the serializable form of a visible node.
type NodeView struct {
	DataID    string              `json:"data_id"`
	VizID     string              `json:"viz_id"`
	Kind      trace.EntityRefKind `json:"kind"`
	Label     string              `json:"label"`
	TypeLabel string              `json:"type_label,omitempty"`
	Size      int                 `json:"size"`
	Group     bool                `json:"group"`
	X         float64             `json:"x"`
	Y         float64             `json:"y"`
	Running   bool                `json:"running,omitempty"`
	Location  string              `json:"location,omitempty"`
	Query     string              `json:"query"`
	// Creator and CreationScope are data ids; set on individual nodes only.
	Creator       string `json:"creator,omitempty"`
	CreationScope string `json:"creation_scope,omitempty"`
}

// LinkView is the serializable form of an EntityLink, endpoints by data id.
type LinkView struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	MessageCount int    `json:"message_count"`
	Creation     bool   `json:"creation"`
}

// Snapshot is the full visible graph at one point in time.
type Snapshot struct {
	Nodes                  []NodeView `json:"nodes"`
	Links                  []LinkView `json:"links"`
	MaxMessageSends        int        `json:"max_message_sends"`
	VisibleMaxMessageSends int        `json:"visible_max_message_sends"`
	Stats                  Stats      `json:"stats"`
}

// Snapshot lists nodes (activities first), then assembles links.
func (v *SystemView) Snapshot() *Snapshot {
	activities := v.ActivityNodes()
	entities := v.EntityNodes()
	links := v.Links()

	snap := &Snapshot{
		Nodes:                  make([]NodeView, 0, len(activities)+len(entities)),
		Links:                  make([]LinkView, 0, len(links)),
		MaxMessageSends:        v.MaxMessageSends(),
		VisibleMaxMessageSends: v.VisibleMaxMessageSends(),
		Stats:                  v.Stats(),
	}
	for _, n := range activities {
		snap.Nodes = append(snap.Nodes, v.NodeView(n))
	}
	for _, n := range entities {
		snap.Nodes = append(snap.Nodes, v.NodeView(n))
	}
	for _, l := range links {
		snap.Links = append(snap.Links, ViewOfLink(l))
	}
	return snap
}

// NodeView converts a node into its serializable form.
func (v *SystemView) NodeView(n Node) NodeView {
	nv := NodeView{
		DataID: n.DataID(),
		VizID:  n.VizID(),
		Kind:   n.Kind(),
		Label:  n.Label(),
		Size:   n.Size(),
		X:      n.X(),
		Y:      n.Y(),
	}
	switch node := n.(type) {
	case *ActivityNode:
		nv.TypeLabel = v.meta.ActivityLabel(node.Type())
		nv.Running = node.Running()
		nv.Query = node.CodePaneQuery()
		if id, ok := node.Activity().Creator(); ok {
			nv.Creator = EntityDataID(id)
		}
		if id, ok := node.CreationScope(); ok {
			nv.CreationScope = EntityDataID(id)
		}
	case *ActivityGroupNode:
		nv.TypeLabel = v.meta.ActivityLabel(node.Type())
		nv.Running = node.Running()
		nv.Query = node.CodePaneQuery()
		nv.Group = true
	case *PassiveEntityNode:
		nv.TypeLabel = v.meta.PassiveEntityLabel(node.Type())
		nv.Location = node.LocationID()
		nv.Query = node.CodePaneQuery()
		nv.Creator = EntityDataID(node.Entity().CreationActivity)
	case *PassiveGroupNode:
		nv.TypeLabel = v.meta.PassiveEntityLabel(node.Type())
		nv.Location = node.LocationID()
		nv.Query = node.CodePaneQuery()
		nv.Group = true
	}
	return nv
}

// ViewOfLink converts a link into its serializable form.
func ViewOfLink(l EntityLink) LinkView {
	return LinkView{
		Source:       l.Source.DataID(),
		Target:       l.Target.DataID(),
		MessageCount: l.MessageCount,
		Creation:     l.Creation,
	}
}
