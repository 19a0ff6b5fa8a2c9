package yaml

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/BDNK1/chatflow/runtime"
)

var (
	ErrFlowNotFound = errors.New("flow not found")
	ErrNoActiveFlow = errors.New("no active flow")
)

// DirRepository serves flows from a directory of flow files. It stands in for the
// backend flow service in local runs and previews. Files are read once, on Reload.
type DirRepository struct {
	dir    string
	loader runtime.FlowLoader

	mu    sync.RWMutex
	flows []runtime.ChatFlow
}

func NewDirRepository(dir string, loader runtime.FlowLoader) (*DirRepository, error) {
	r := &DirRepository{dir: dir, loader: loader}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload rereads every flow file in the directory. Flows without an id get their file name.
func (r *DirRepository) Reload() error {
	var flows []runtime.ChatFlow
	for _, pattern := range r.loader.Extensions() {
		files, err := filepath.Glob(filepath.Join(r.dir, pattern))
		if err != nil {
			return fmt.Errorf("error reading directory: %w", err)
		}
		for _, file := range files {
			flow, err := r.loader.Load(file)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			if flow.ID == "" {
				flow.ID = stem(file)
			}
			flows = append(flows, flow)
		}
	}

	r.mu.Lock()
	r.flows = flows
	r.mu.Unlock()
	return nil
}

// Active returns the first flow marked is_active.
func (r *DirRepository) Active(ctx context.Context) (*runtime.ChatFlow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.flows {
		if r.flows[i].IsActive {
			flow := r.flows[i]
			return &flow, nil
		}
	}
	return nil, ErrNoActiveFlow
}

func (r *DirRepository) Get(ctx context.Context, id string) (*runtime.ChatFlow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.flows {
		if r.flows[i].ID == id {
			flow := r.flows[i]
			return &flow, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, id)
}

// List returns all loaded flows.
func (r *DirRepository) List() []runtime.ChatFlow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]runtime.ChatFlow(nil), r.flows...)
}

func stem(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
