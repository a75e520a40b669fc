package partition

import (
	"github.com/odcproject/odc/internal/engine"
	"github.com/odcproject/odc/internal/requestapi"
)

// aggregateStateForPath implements spec.md §4.8's aggregateStateForPath:
// gather every non-ignored device whose path matches selector, compute the
// aggregated state per the Glossary rule, and return a detailed snapshot
// alongside it. A nil TopologyIndex (pre-Activate) yields Undefined with no
// detail rows.
func (s *Session) aggregateStateForPath(selector string) (string, []requestapi.DetailedTask) {
	if s.TopologyIndex == nil || s.Engine == nil {
		return engine.Undefined, nil
	}

	taskIDs := s.TopologyIndex.Match(selector)
	var states []string
	var detail []requestapi.DetailedTask
	for _, id := range taskIDs {
		d, ok := s.Engine.Device(id)
		if !ok {
			continue
		}
		t, _ := s.TopologyIndex.Task(id)
		if !d.Ignored {
			states = append(states, d.State)
		}
		detail = append(detail, requestapi.DetailedTask{
			TaskID:       id,
			Path:         t.Path,
			CollectionID: t.CollectionID,
			State:        d.State,
			Ignored:      d.Ignored,
			Expendable:   d.Expendable,
		})
	}
	return engine.AggregatedState(states), detail
}
