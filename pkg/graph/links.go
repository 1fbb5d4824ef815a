package graph

import (
	"github.com/rmax-ai/traceview/pkg/trace"
)

// Links assembles message links and creation links over the currently
// visible nodes. Groups due for promotion are promoted first, so the result
// does not depend on whether ActivityNodes/EntityNodes were called before.
//
// Message links come first, then creation links, each in first-seen order.
// Callers should not depend on the order.
func (v *SystemView) Links() []EntityLink {
	v.promoteActivityGroups()
	v.promotePassiveGroups()

	var links []EntityLink
	links = v.collectMessageLinks(links)
	links = v.collectCreationLinks(links)
	return links
}

func (v *SystemView) collectMessageLinks(links []EntityLink) []EntityLink {
	folded := newPairCounter[Node]()
	v.visibleMax = 0

	v.messages.each(func(source, target entityRef, count int) {
		n := folded.add(v.visible(source), v.visible(target), count)
		if n > v.visibleMax {
			v.visibleMax = n
		}
	})

	folded.each(func(source, target Node, count int) {
		links = append(links, EntityLink{
			Source:       source,
			Target:       target,
			MessageCount: count,
			Creation:     false,
		})
	})
	return links
}

func (v *SystemView) collectCreationLinks(links []EntityLink) []EntityLink {
	connections := newPairCounter[Node]()

	for i, a := range v.activities {
		creator, ok := a.activity.Creator()
		if !ok {
			// the root activity is created ex nihilo
			continue
		}
		// A creator not ingested yet gets its link once it arrives.
		src, ok := v.lookup(trace.KindActivity, creator)
		if !ok {
			continue
		}
		target := v.visible(entityRef{kind: trace.KindActivity, index: i})
		connections.add(v.visible(src), target, 1)
	}

	for i, p := range v.passives {
		src, ok := v.lookup(trace.KindActivity, p.entity.CreationActivity)
		if !ok {
			continue
		}
		target := v.visible(entityRef{kind: trace.KindPassiveEntity, index: i})
		connections.add(v.visible(src), target, 1)
	}

	connections.each(func(source, target Node, count int) {
		links = append(links, EntityLink{
			Source:       source,
			Target:       target,
			MessageCount: count,
			Creation:     true,
		})
	})
	return links
}
