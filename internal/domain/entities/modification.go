package entities

import (
	"encoding/json"
	"fmt"
)

// ConfigModification is the body of a configuration write: the new item plus
// optional patch metadata understood by the DAM.
type ConfigModification struct {
	Item         json.RawMessage `json:"item"`
	Modification map[string]any  `json:"modification,omitempty"`
}

// NewConfigModification marshals item into a modification request.
func NewConfigModification(item any, modification map[string]any) (ConfigModification, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return ConfigModification{}, fmt.Errorf("marshal config item: %w", err)
	}
	return ConfigModification{Item: raw, Modification: modification}, nil
}

// DryRun reports whether the DAM is asked to validate without applying.
func (m ConfigModification) DryRun() bool {
	v, ok := m.Modification["dry_run"].(bool)
	return ok && v
}
