// Package views wires list and detail projections of a configuration
// collection for one DAM, the way every console screen consumes them.
package views

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/dnastack/ddap-admin/internal/domain/entities"
	"github.com/dnastack/ddap-admin/internal/infrastructure/caching/stores"
	"github.com/dnastack/ddap-admin/internal/infrastructure/caching/stream"
)

// Source is the part of an entity store that views read from.
type Source[T any] interface {
	Init(damID string)
	ListFor(damID string, opts ...stream.SubscribeOption) *stream.Subscription[[]entities.EntityModel[T]]
	DetailFor(damID, name string, opts ...stream.SubscribeOption) *stream.Subscription[stores.Detail[T]]
}

// ListItem is one row of an entity list.
type ListItem[T any] struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Dto         T      `json:"dto"`
}

// ListOptions tunes how list rows are described.
type ListOptions struct {
	// DescriptionProperty is a dotted path into the row, e.g. "dto.ui.description".
	DescriptionProperty string
}

// List requests the document of damID and streams its rows until ctx is done.
func List[T any](ctx context.Context, src Source[T], damID string, opts ListOptions) *stream.Subscription[[]ListItem[T]] {
	src.Init(damID)
	return stream.Map(src.ListFor(damID, stream.WithContext(ctx)), func(list []entities.EntityModel[T]) []ListItem[T] {
		return Rows(list, opts)
	})
}

// Detail requests the document of damID and streams the entity name until
// ctx is done.
func Detail[T any](ctx context.Context, src Source[T], damID, name string) *stream.Subscription[stores.Detail[T]] {
	src.Init(damID)
	return src.DetailFor(damID, name, stream.WithContext(ctx))
}

// Rows turns entities into list rows.
func Rows[T any](list []entities.EntityModel[T], opts ListOptions) []ListItem[T] {
	rows := make([]ListItem[T], 0, len(list))
	for _, m := range list {
		raw, err := json.Marshal(m.Dto)
		if err != nil {
			raw = nil
		}
		row := ListItem[T]{
			Name:  m.Name,
			Title: entities.Title(entities.RawEntity{Name: m.Name, Dto: raw}),
			Dto:   m.Dto,
		}
		if opts.DescriptionProperty != "" {
			row.Description = lookup(m.Name, raw, opts.DescriptionProperty)
		}
		rows = append(rows, row)
	}
	return rows
}

// lookup resolves a dotted path against {"name": name, "dto": dto}. Missing
// or non-scalar values resolve to "".
func lookup(name string, dto json.RawMessage, path string) string {
	var cur any = map[string]any{"name": name}
	if len(dto) > 0 {
		var decoded any
		if json.Unmarshal(dto, &decoded) == nil {
			cur.(map[string]any)["dto"] = decoded
		}
	}

	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		if cur, ok = obj[part]; !ok {
			return ""
		}
	}

	switch v := cur.(type) {
	case string:
		return v
	case nil, map[string]any, []any:
		return ""
	default:
		out, _ := json.Marshal(v)
		return string(out)
	}
}
