// Package dam defines the typed payloads of DAM configuration collections.
package dam

import (
	"sort"
	"strings"
)

// Collection names inside a DAM configuration document.
const (
	CollectionResources      = "resources"
	CollectionViews          = "views"
	CollectionTrustedSources = "trustedSources"
	CollectionClients        = "clients"
	CollectionWorkflows      = "workflows"
	CollectionOptions        = "options"
)

type Resource struct {
	UI          map[string]string `json:"ui,omitempty"`
	Views       map[string]View   `json:"views,omitempty"`
	MaxTokenTTL string            `json:"maxTokenTtl,omitempty"`
	Clients     map[string]any    `json:"clients,omitempty"`
}

type View struct {
	ServiceTemplate string               `json:"serviceTemplate,omitempty"`
	Version         string               `json:"version,omitempty"`
	Topic           string               `json:"topic,omitempty"`
	Partition       string               `json:"partition,omitempty"`
	Fidelity        string               `json:"fidelity,omitempty"`
	GeoLocation     string               `json:"geoLocation,omitempty"`
	ContentTypes    []string             `json:"contentTypes,omitempty"`
	Interfaces      map[string]Interface `json:"interfaces,omitempty"`
	UI              map[string]string    `json:"ui,omitempty"`
}

type Interface struct {
	URI []string `json:"uri,omitempty"`
}

type TrustedSource struct {
	Sources   []string          `json:"sources"`
	VisaTypes []string          `json:"visaTypes,omitempty"`
	UI        map[string]string `json:"ui,omitempty"`
}

type ClientApplication struct {
	ClientID      string            `json:"clientId,omitempty"`
	RedirectURIs  []string          `json:"redirectUris,omitempty"`
	Scope         string            `json:"scope,omitempty"`
	GrantTypes    []string          `json:"grantTypes,omitempty"`
	ResponseTypes []string          `json:"responseTypes,omitempty"`
	UI            map[string]string `json:"ui,omitempty"`
}

type Workflow struct {
	WesView string            `json:"wesView"`
	WDL     string            `json:"wdl"`
	Inputs  map[string]any    `json:"inputs,omitempty"`
	UI      map[string]string `json:"ui,omitempty"`
}

// AccessURL builds the object access URL for viewName using the first http
// interface of that view. ok is false when the view has no http interface.
func (r Resource) AccessURL(viewName, token string) (string, bool) {
	view, exists := r.Views[viewName]
	if !exists {
		return "", false
	}

	names := make([]string, 0, len(view.Interfaces))
	for name := range view.Interfaces {
		if strings.HasPrefix(name, "http") {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", false
	}
	sort.Strings(names)

	uris := view.Interfaces[names[0]].URI
	if len(uris) == 0 {
		return "", false
	}
	return uris[0] + "/o?access_token=" + token, true
}
