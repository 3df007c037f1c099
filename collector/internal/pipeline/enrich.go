package pipeline

import "github.com/traceway-systems/traceway-edge/collector/internal/model"

// enrichStage inserts process-scoped resource attributes (instance
// identifier, collector name) that are not already present on the inbound
// record. Pure addition: it never overwrites an existing attribute and never
// fails.
type enrichStage struct {
	attrs map[string]any
}

// NewResourceEnrichStage creates the resource-enrich stage with the given
// process-scoped attributes.
func NewResourceEnrichStage(attrs map[string]any) Stage {
	return &enrichStage{attrs: attrs}
}

func (s *enrichStage) Name() string { return "resource_enrich" }

func (s *enrichStage) Process(batch *model.Batch) (*model.Batch, Outcome, error) {
	if len(s.attrs) == 0 {
		return batch, Continue(), nil
	}
	for i := range batch.Records {
		batch.Records[i] = batch.Records[i].WithResource(s.attrs)
	}
	return batch, Continue(), nil
}
