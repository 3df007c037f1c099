package pipeline

import (
	"fmt"
	"strings"

	"github.com/traceway-systems/traceway-edge/collector/internal/metrics"
	"github.com/traceway-systems/traceway-edge/collector/internal/model"
)

// PromoteListAttribute is the reserved resource attribute whose value names
// the attributes to promote, as a comma-separated list.
const PromoteListAttribute = "traceway.promote"

// promoteStage copies named attribute values into the indexed-label map
// carried alongside each log record, because the log sink indexes streams by
// label rather than by content.
//
// Cardinality hazard: the union of promoted label values is indexed by the
// sink. Callers are responsible for keeping it bounded; in practice stay
// under ~15 distinct label keys per stream. The stage does not enforce this.
// Promoting an attribute absent from both the record and its resource is a
// counted no-op, not an error.
type promoteStage struct{}

// NewLabelPromoteStage creates the label-promotion stage. Log signal only.
func NewLabelPromoteStage() Stage {
	return &promoteStage{}
}

func (s *promoteStage) Name() string { return "label_promote" }

func (s *promoteStage) Process(batch *model.Batch) (*model.Batch, Outcome, error) {
	for i := range batch.Records {
		rec := batch.Records[i]

		list, ok := rec.Resource[PromoteListAttribute].(string)
		if !ok || list == "" {
			continue
		}

		var labels map[string]string
		for _, name := range strings.Split(list, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}

			value, found := rec.Attributes[name]
			if !found {
				value, found = rec.Resource[name]
			}
			if !found {
				metrics.PromoteMisses.Inc()
				continue
			}

			if labels == nil {
				labels = make(map[string]string)
			}
			labels[name] = labelValue(value)
		}

		if labels != nil {
			batch.Records[i] = rec.WithLabels(labels)
		}
	}
	return batch, Continue(), nil
}

func labelValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", t)
	}
}
