package uploads

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// UploadToFunc computes a destination directory for a confirmed
// upload, given the original filename.
type UploadToFunc func(fileName string) string

// PathRegistry resolves related-model descriptors to destination-path
// callables. It is populated once at boot and immutable afterwards.
type PathRegistry struct {
	byName map[string]UploadToFunc
}

// NewPathRegistry builds an empty registry.
func NewPathRegistry() *PathRegistry {
	return &PathRegistry{byName: map[string]UploadToFunc{}}
}

// Register binds a model descriptor (e.g. "app.model.field") to its
// upload-to callable.
func (r *PathRegistry) Register(name string, fn UploadToFunc) {
	if name == "" || fn == nil {
		return
	}
	r.byName[name] = fn
}

// Resolve returns the callable for a descriptor.
func (r *PathRegistry) Resolve(name string) (UploadToFunc, error) {
	fn, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown related model %q", name)
	}
	return fn, nil
}

// strftime fields supported in upload_to templates.
var strftimeReplacements = []struct {
	field  string
	layout string
}{
	{"%Y", "2006"},
	{"%m", "01"},
	{"%d", "02"},
	{"%H", "15"},
	{"%M", "04"},
	{"%S", "05"},
}

// expandUploadTo renders an upload_to template against now and joins
// the sanitized filename onto it.
func expandUploadTo(template string, now time.Time, fileName string) string {
	dir := strings.TrimSpace(template)
	for _, repl := range strftimeReplacements {
		dir = strings.ReplaceAll(dir, repl.field, now.Format(repl.layout))
	}
	dir = strings.Trim(dir, "/")

	name := sanitizeFileName(fileName)
	if name == "" {
		name = "file"
	}
	if dir == "" {
		return name
	}
	return path.Join(dir, name)
}
