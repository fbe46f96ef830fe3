package runtime

import (
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/flowcanvas/types"
)

/**
 * resolve returns the single upstream producer feeding nodeID.
 * Sources are taken in edge order; the first one that succeeded with a
 * non-empty output wins, otherwise the first source at all, so the
 * executor can report that it is still waiting for upstream.
 */
func (g *graphStore) resolve(nodeID string) *types.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var (
		first *types.Node
		ready []*types.Node
	)
	for _, e := range g.edges {
		if e.Target != nodeID {
			continue
		}
		source, exists := g.nodes[e.Source]
		if !exists {
			continue
		}
		if first == nil {
			first = source
		}
		if source.Data.Status() == types.Success && source.Data.Output() != "" {
			ready = append(ready, source)
		}
	}

	if len(ready) > 0 {
		if len(ready) > 1 {
			log.Debugf("node %s has %d ready producers, using %s", nodeID, len(ready), ready[0].ID)
		}
		return ready[0]
	}
	return first
}
