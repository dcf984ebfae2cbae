package postprocess

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/bureaudocs/filedepot-backend/pkg/db/models"
	"github.com/bureaudocs/filedepot-backend/pkg/enums"
)

// Params are the per-action parameters supplied with a job.
type Params map[string]any

// String returns the string parameter at key, or "" when absent.
func (p Params) String(key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return s
}

// ActionResult is what one processor run produced: the output uploads
// that become the next action's inputs, plus lineage rows to persist.
type ActionResult struct {
	Uploads  []*models.Upload
	Lineages []*models.PostProcessing
}

// Processor executes one pipeline action over a set of uploads.
type Processor interface {
	Action() enums.PostProcessAction
	Process(ctx context.Context, inputs []*models.Upload, params Params) (*ActionResult, error)
}

// uploadStore is the slice of the upload service the pipeline needs.
type uploadStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Upload, error)
	CreateProcessedUpload(ctx context.Context, fileName, mimeType string, content io.Reader) (*models.Upload, error)
	OpenBlob(blobPath string) (io.ReadCloser, error)
	AbsBlobPath(blobPath string) string
}

// Registry holds the configured processors keyed by action.
type Registry struct {
	order      []enums.PostProcessAction
	processors map[enums.PostProcessAction]Processor
}

// NewRegistry builds a registry from the given processors, keeping
// their registration order.
func NewRegistry(processors ...Processor) *Registry {
	registry := &Registry{processors: make(map[enums.PostProcessAction]Processor, len(processors))}
	for _, processor := range processors {
		action := processor.Action()
		if _, exists := registry.processors[action]; exists {
			continue
		}
		registry.order = append(registry.order, action)
		registry.processors[action] = processor
	}
	return registry
}

// Lookup returns the processor for an action.
func (r *Registry) Lookup(action enums.PostProcessAction) (Processor, error) {
	processor, ok := r.processors[action]
	if !ok {
		return nil, fmt.Errorf("no processor registered for action %s", action)
	}
	return processor, nil
}

// Actions lists the registered actions in registration order.
func (r *Registry) Actions() []enums.PostProcessAction {
	out := make([]enums.PostProcessAction, len(r.order))
	copy(out, r.order)
	return out
}
