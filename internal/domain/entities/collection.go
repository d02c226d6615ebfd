package entities

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Collection is an immutable, ordered map of entity name to raw payload.
// Key order is the order in which the backend sent the object.
type Collection struct {
	keys  []string
	items map[string]json.RawMessage
}

// NewCollection builds a collection holding entries in the given order.
func NewCollection(entries ...RawEntity) Collection {
	c := Collection{
		keys:  make([]string, 0, len(entries)),
		items: make(map[string]json.RawMessage, len(entries)),
	}
	for _, e := range entries {
		if _, dup := c.items[e.Name]; !dup {
			c.keys = append(c.keys, e.Name)
		}
		c.items[e.Name] = e.Dto
	}
	return c
}

func (c Collection) Len() int { return len(c.keys) }

// Names returns the entity names in collection order.
func (c Collection) Names() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Get returns the raw payload stored under name.
func (c Collection) Get(name string) (json.RawMessage, bool) {
	raw, ok := c.items[name]
	return raw, ok
}

// With returns a copy of c where name maps to payload. A new name is appended;
// an existing one keeps its position.
func (c Collection) With(name string, payload json.RawMessage) Collection {
	next := Collection{
		keys:  make([]string, len(c.keys), len(c.keys)+1),
		items: make(map[string]json.RawMessage, len(c.items)+1),
	}
	copy(next.keys, c.keys)
	for k, v := range c.items {
		next.items[k] = v
	}
	if _, exists := next.items[name]; !exists {
		next.keys = append(next.keys, name)
	}
	next.items[name] = payload
	return next
}

// Without returns a copy of c with name removed. c is returned unchanged when
// name is not present.
func (c Collection) Without(name string) Collection {
	if _, exists := c.items[name]; !exists {
		return c
	}
	next := Collection{
		keys:  make([]string, 0, len(c.keys)-1),
		items: make(map[string]json.RawMessage, len(c.items)-1),
	}
	for _, k := range c.keys {
		if k == name {
			continue
		}
		next.keys = append(next.keys, k)
		next.items[k] = c.items[k]
	}
	return next
}

// UnmarshalJSON decodes a JSON object while keeping its key order.
func (c *Collection) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*c = Collection{}
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("collection must be a JSON object, got %v", tok)
	}

	next := Collection{items: make(map[string]json.RawMessage)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected collection key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("collection entry %q: %w", name, err)
		}
		if _, dup := next.items[name]; !dup {
			next.keys = append(next.keys, name)
		}
		next.items[name] = raw
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*c = next
	return nil
}

// MarshalJSON encodes the collection as a JSON object in collection order.
func (c Collection) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range c.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		raw := c.items[name]
		if len(raw) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(raw)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
