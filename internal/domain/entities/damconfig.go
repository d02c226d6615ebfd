package entities

import (
	"bytes"
	"encoding/json"
)

// DamConfig is the configuration document of one DAM: collection name to collection.
type DamConfig map[string]Collection

// Collection returns the named collection, or an empty one when it is absent.
func (d DamConfig) Collection(name string) Collection {
	return d[name]
}

// WithEntity returns a copy of d where collection[name] is payload. Every other
// collection is shared with d, untouched.
func (d DamConfig) WithEntity(collection, name string, payload json.RawMessage) DamConfig {
	next := make(DamConfig, len(d)+1)
	for k, v := range d {
		next[k] = v
	}
	next[collection] = d[collection].With(name, payload)
	return next
}

// WithoutEntity returns a copy of d with collection[name] removed.
func (d DamConfig) WithoutEntity(collection, name string) DamConfig {
	next := make(DamConfig, len(d))
	for k, v := range d {
		next[k] = v
	}
	if c, ok := d[collection]; ok {
		next[collection] = c.Without(name)
	}
	return next
}

// UnmarshalJSON keeps every top-level object as a collection and ignores
// scalar or array fields of the document.
func (d *DamConfig) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	next := make(DamConfig, len(fields))
	for name, raw := range fields {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			continue
		}
		var c Collection
		if err := json.Unmarshal(trimmed, &c); err != nil {
			return err
		}
		next[name] = c
	}
	*d = next
	return nil
}
