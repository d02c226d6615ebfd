package dam

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

// ErrInvalidEntity marks a payload the DAM refuses to store.
var ErrInvalidEntity = errors.New("invalid entity")

// Validate applies the checks a DAM runs before accepting a write to
// collection. Unknown collections are rejected.
func Validate(collection string, item json.RawMessage) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(item, &probe); err != nil || probe == nil {
		return fmt.Errorf("%w: item must be a JSON object", ErrInvalidEntity)
	}

	switch collection {
	case CollectionResources:
		var r Resource
		if err := decodeItem(item, &r); err != nil {
			return err
		}
		if len(r.Views) == 0 {
			return fmt.Errorf("%w: resource has no views", ErrInvalidEntity)
		}
		for name, v := range r.Views {
			if v.ServiceTemplate == "" {
				return fmt.Errorf("%w: view %q has no serviceTemplate", ErrInvalidEntity, name)
			}
		}
	case CollectionViews:
		var v View
		if err := decodeItem(item, &v); err != nil {
			return err
		}
		if v.ServiceTemplate == "" {
			return fmt.Errorf("%w: serviceTemplate is required", ErrInvalidEntity)
		}
	case CollectionTrustedSources:
		var ts TrustedSource
		if err := decodeItem(item, &ts); err != nil {
			return err
		}
		if len(ts.Sources) == 0 {
			return fmt.Errorf("%w: at least one source is required", ErrInvalidEntity)
		}
		for _, src := range ts.Sources {
			if u, err := url.Parse(src); err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("%w: source %q is not an absolute URL", ErrInvalidEntity, src)
			}
		}
	case CollectionClients:
		var c ClientApplication
		if err := decodeItem(item, &c); err != nil {
			return err
		}
		for _, uri := range c.RedirectURIs {
			if _, err := url.ParseRequestURI(uri); err != nil {
				return fmt.Errorf("%w: redirect uri %q is invalid", ErrInvalidEntity, uri)
			}
		}
	case CollectionWorkflows:
		var w Workflow
		if err := decodeItem(item, &w); err != nil {
			return err
		}
		if w.WesView == "" || w.WDL == "" {
			return fmt.Errorf("%w: wesView and wdl are required", ErrInvalidEntity)
		}
	default:
		return fmt.Errorf("%w: unknown collection %q", ErrInvalidEntity, collection)
	}
	return nil
}

func decodeItem(item json.RawMessage, v any) error {
	if err := json.Unmarshal(item, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntity, err)
	}
	return nil
}
