package view

import (
	"io"
	"io/fs"
	"sync"

	"github.com/lomect/accountd/internal/email"
)

// FSRenderer renders email views found in a file system. Parsed views
// are cached, so the file system is expected not to change.
type FSRenderer struct {
	fs    fs.FS
	mu    sync.Mutex
	views map[string]*View
}

func NewFSRenderer(fs fs.FS) *FSRenderer {
	return &FSRenderer{
		fs:    fs,
		views: make(map[string]*View),
	}
}

func (r *FSRenderer) Render(w io.Writer, name string, element email.TemplateElement, data any) error {
	v, err := r.view(name)
	if err != nil {
		return err
	}

	return v.Render(w, element, data)
}

func (r *FSRenderer) view(name string) (*View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.views[name]; ok {
		return v, nil
	}

	v, err := Parse(r.fs, name)
	if err != nil {
		return nil, err
	}

	r.views[name] = v
	return v, nil
}
