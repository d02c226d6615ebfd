// Package dam talks to upstream DAM instances: the registry of known DAMs,
// their endpoint layout and the HTTP transport used to reach them.
package dam

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownDam is returned when a damId is not in the registry.
var ErrUnknownDam = errors.New("unknown DAM")

// Instance is one registered DAM and the client credentials used against it.
type Instance struct {
	ID           string `json:"-" yaml:"-"`
	BaseURL      string `json:"baseUrl" yaml:"baseUrl"`
	ClientID     string `json:"clientId" yaml:"clientId"`
	ClientSecret string `json:"clientSecret" yaml:"clientSecret"`
	UIURL        string `json:"uiUrl,omitempty" yaml:"uiUrl,omitempty"`
}

// Registry maps damIds to instances. It is read-only after construction.
type Registry struct {
	instances map[string]Instance
	ids       []string
}

// NewRegistry builds a registry from instances. Ids must be unique and every
// base URL absolute.
func NewRegistry(instances ...Instance) (*Registry, error) {
	r := &Registry{instances: make(map[string]Instance, len(instances))}
	for _, inst := range instances {
		if inst.ID == "" {
			return nil, fmt.Errorf("DAM registry: instance without id")
		}
		if _, dup := r.instances[inst.ID]; dup {
			return nil, fmt.Errorf("DAM registry: duplicate id %q", inst.ID)
		}
		u, err := url.Parse(inst.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("DAM registry: %q has invalid baseUrl %q", inst.ID, inst.BaseURL)
		}
		inst.BaseURL = strings.TrimRight(inst.BaseURL, "/")
		r.instances[inst.ID] = inst
		r.ids = append(r.ids, inst.ID)
	}
	sort.Strings(r.ids)
	return r, nil
}

// ParseRegistry reads a JSON object of damId to instance.
func ParseRegistry(data []byte) (*Registry, error) {
	var raw map[string]Instance
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse DAM registry: %w", err)
	}
	return fromMap(raw)
}

// ParseRegistryYAML reads a YAML mapping of damId to instance. Values may
// reference environment variables as ${NAME}.
func ParseRegistryYAML(data []byte) (*Registry, error) {
	var raw map[string]Instance
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse DAM registry: %w", err)
	}
	return fromMap(raw)
}

// LoadRegistry reads the registry file at path. Files ending in .yaml or
// .yml are YAML, anything else is JSON.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read DAM registry %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseRegistryYAML(data)
	default:
		return ParseRegistry(data)
	}
}

func fromMap(raw map[string]Instance) (*Registry, error) {
	instances := make([]Instance, 0, len(raw))
	for id, inst := range raw {
		inst.ID = id
		instances = append(instances, inst)
	}
	return NewRegistry(instances...)
}

// Get returns the instance registered as damID.
func (r *Registry) Get(damID string) (Instance, error) {
	inst, ok := r.instances[damID]
	if !ok {
		return Instance{}, fmt.Errorf("%w: %s", ErrUnknownDam, damID)
	}
	return inst, nil
}

// IDs returns the registered damIds, sorted.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// List returns every instance ordered by id.
func (r *Registry) List() []Instance {
	out := make([]Instance, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.instances[id])
	}
	return out
}
