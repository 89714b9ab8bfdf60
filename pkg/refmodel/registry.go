package refmodel

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/erpflow/erpflow/pkg/errors"
)

// Registry holds reference models by ID. It is filled during startup and
// read-only at run time.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*Model
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*Model)}
}

// Register validates and adds a model. Registering an existing ID replaces
// the previous model.
func (r *Registry) Register(m *Model) error {
	if err := m.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.models[m.ID] = m
	r.mu.Unlock()
	return nil
}

// Get returns the model for an ID, or nil.
func (r *Registry) Get(id string) *Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.models[id]
}

// List returns registered model IDs, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.models))
	for id := range r.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// modelFile is the YAML shape for reference model files. SLA targets use
// Go duration strings ("48h", "30m").
type modelFile struct {
	ID              string            `yaml:"id"`
	Name            string            `yaml:"name"`
	Activities      []string          `yaml:"activities"`
	Edges           []Edge            `yaml:"edges"`
	StartActivities []string          `yaml:"start_activities"`
	EndActivities   []string          `yaml:"end_activities"`
	SLATargets      map[string]string `yaml:"sla_targets"`
}

// LoadFile reads a single reference model from a YAML file.
func LoadFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeConfigInvalid, "failed to read model file %q", path)
	}

	var mf modelFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, errors.Wrapf(err, errors.CodeConfigInvalid, "failed to parse model file %q", path)
	}

	m := &Model{
		ID:              mf.ID,
		Name:            mf.Name,
		Activities:      mf.Activities,
		Edges:           mf.Edges,
		StartActivities: mf.StartActivities,
		EndActivities:   mf.EndActivities,
	}
	if len(mf.SLATargets) > 0 {
		m.SLATargets = make(map[string]time.Duration, len(mf.SLATargets))
		for key, raw := range mf.SLATargets {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return nil, errors.Wrapf(err, errors.CodeConfigInvalid, "bad SLA duration %q for %q", raw, key)
			}
			m.SLATargets[key] = d
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadDir registers every *.yaml model file in a directory.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, errors.CodeConfigInvalid, "failed to read model directory %q", dir)
	}
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		m, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		if err := r.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// Builtin returns a registry preloaded with the standard ERP reference
// models shipped with the toolkit.
func Builtin() *Registry {
	r := NewRegistry()
	for _, m := range builtinModels() {
		// Builtin models are known valid.
		_ = r.Register(m)
	}
	return r
}

func builtinModels() []*Model {
	return []*Model{
		{
			ID:   "order_to_cash",
			Name: "Order to Cash",
			Activities: []string{
				"Create Sales Order",
				"Credit Check",
				"Approve Credit",
				"Create Delivery",
				"Pick",
				"Post Goods Issue",
				"Create Invoice",
				"Payment Received",
			},
			Edges: []Edge{
				{Source: "Create Sales Order", Target: "Credit Check"},
				{Source: "Create Sales Order", Target: "Create Delivery"},
				{Source: "Credit Check", Target: "Approve Credit"},
				{Source: "Approve Credit", Target: "Create Delivery"},
				{Source: "Create Delivery", Target: "Pick"},
				{Source: "Create Delivery", Target: "Create Invoice"},
				{Source: "Pick", Target: "Post Goods Issue"},
				{Source: "Post Goods Issue", Target: "Create Invoice"},
				{Source: "Create Invoice", Target: "Payment Received"},
			},
			StartActivities: []string{"Create Sales Order"},
			EndActivities:   []string{"Payment Received"},
			SLATargets: map[string]time.Duration{
				"Credit Check -> Approve Credit":     24 * time.Hour,
				"Create Invoice -> Payment Received": 30 * 24 * time.Hour,
			},
		},
		{
			ID:   "procure_to_pay",
			Name: "Procure to Pay",
			Activities: []string{
				"Create Purchase Requisition",
				"Create Purchase Order",
				"Approve PO",
				"Goods Receipt",
				"Post Invoice",
				"Clear Invoice",
			},
			Edges: []Edge{
				{Source: "Create Purchase Requisition", Target: "Create Purchase Order"},
				{Source: "Create Purchase Order", Target: "Approve PO"},
				{Source: "Approve PO", Target: "Goods Receipt"},
				{Source: "Goods Receipt", Target: "Post Invoice"},
				{Source: "Post Invoice", Target: "Clear Invoice"},
			},
			StartActivities: []string{"Create Purchase Requisition"},
			EndActivities:   []string{"Clear Invoice"},
			SLATargets: map[string]time.Duration{
				"Create Purchase Order -> Approve PO": 48 * time.Hour,
			},
		},
	}
}
