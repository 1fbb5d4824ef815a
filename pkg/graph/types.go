package graph

import (
	"fmt"
	"strings"

	"github.com/rmax-ai/traceview/pkg/trace"
)

// Grouping thresholds: a group is promoted once its population strictly exceeds them.
const (
	ActivityGroupThreshold = 4
	PassiveGroupThreshold  = 3
)

// Seed layout spacing and the coordinate bounds every node is clamped to.
const (
	HorizontalDistance = 100
	VerticalDistance   = 100

	MaxCoordinate = 5000
	MinCoordinate = -5000
)

// Node is a visual vertex: either a single entity or a promoted group of entities.
type Node interface {
	// Kind is the entity kind the node stands for.
	Kind() trace.EntityRefKind
	// DataID correlates the node with external data (e.g. code locations).
	DataID() string
	// VizID binds the node to graphics elements; it never collides with a DataID.
	VizID() string
	// Size is 1 for a single entity and the member count for a group.
	Size() int
	// Label is a human readable name.
	Label() string

	X() float64
	Y() float64
	SetX(x float64)
	SetY(y float64)
}

// position holds clamped layout coordinates and is embedded by every node variant.
type position struct {
	x, y float64
}

func newPosition(x, y float64) position {
	var p position
	p.SetX(x)
	p.SetY(y)
	return p
}

func (p *position) X() float64 { return p.x }
func (p *position) Y() float64 { return p.y }

// SetX stores x, clamped to [MinCoordinate, MaxCoordinate].
func (p *position) SetX(x float64) { p.x = clamp(x) }

// SetY stores y, clamped to [MinCoordinate, MaxCoordinate].
func (p *position) SetY(y float64) { p.y = clamp(y) }

func clamp(v float64) float64 {
	if v > MaxCoordinate {
		return MaxCoordinate
	}
	if v < MinCoordinate {
		return MinCoordinate
	}
	return v
}

// EntityLink is a weighted edge between two visible nodes.
type EntityLink struct {
	Source       Node
	Target       Node
	MessageCount int
	// Creation marks parent/child creation edges as opposed to message edges.
	Creation bool
}

// Stats summarizes the content of a SystemView.
type Stats struct {
	Activities             int `json:"activities"`
	PassiveEntities        int `json:"passive_entities"`
	ActivityGroups         int `json:"activity_groups"`
	PassiveGroups          int `json:"passive_groups"`
	PromotedActivityGroups int `json:"promoted_activity_groups"`
	PromotedPassiveGroups  int `json:"promoted_passive_groups"`
	MessagePairs           int `json:"message_pairs"`
	MessagesIngested       int `json:"messages_ingested"`
	MaxMessageSends        int `json:"max_message_sends"`
}

// EntityDataID returns the data identifier of a single entity.
func EntityDataID(id trace.ID) string {
	return fmt.Sprintf("e%d", id)
}

// EntityVizID returns the visualization identifier of a single entity.
func EntityVizID(id trace.ID) string {
	return "sv-" + EntityDataID(id)
}

func activityGroupDataID(n int) string { return fmt.Sprintf("ag%d", n) }
func passiveGroupDataID(n int) string  { return fmt.Sprintf("pg%d", n) }

// codePaneQuery joins #<data id> tokens, the selector format of the code view.
func codePaneQuery(ids []trace.ID) string {
	var sb strings.Builder
	for i, id := range ids {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('#')
		sb.WriteString(EntityDataID(id))
	}
	return sb.String()
}
