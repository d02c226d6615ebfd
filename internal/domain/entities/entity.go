// Package entities defines the configuration entities the console caches and edits.
package entities

import (
	"encoding/json"
	"fmt"
)

// EntityModel pairs the unique name of a configuration entity with its payload.
type EntityModel[T any] struct {
	Name string `json:"name"`
	Dto  T      `json:"dto"`
}

// RawEntity is an entity whose payload has not been interpreted.
type RawEntity = EntityModel[json.RawMessage]

// ArrayFromMap converts a collection into entity models in collection order.
// An empty collection yields an empty, non-nil slice.
func ArrayFromMap(c Collection) []RawEntity {
	out := make([]RawEntity, 0, c.Len())
	for _, name := range c.keys {
		out = append(out, RawEntity{Name: name, Dto: c.items[name]})
	}
	return out
}

// Decode interprets the raw payload of m as T.
func Decode[T any](m RawEntity) (EntityModel[T], error) {
	var dto T
	if len(m.Dto) > 0 {
		if err := json.Unmarshal(m.Dto, &dto); err != nil {
			return EntityModel[T]{}, fmt.Errorf("decode entity %q: %w", m.Name, err)
		}
	}
	return EntityModel[T]{Name: m.Name, Dto: dto}, nil
}

// Title returns the entity's ui.label, or its name when no label is set.
func Title(m RawEntity) string {
	var labelled struct {
		UI struct {
			Label string `json:"label"`
		} `json:"ui"`
	}
	if len(m.Dto) > 0 && json.Unmarshal(m.Dto, &labelled) == nil && labelled.UI.Label != "" {
		return labelled.UI.Label
	}
	return m.Name
}
