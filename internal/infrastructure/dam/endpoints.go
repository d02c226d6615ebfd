package dam

import (
	"net/url"
)

const apiPrefix = "/dam/v1alpha/"

// Credentials returns the client_id/client_secret query the DAM expects on
// every configuration call.
func (i Instance) Credentials() url.Values {
	return url.Values{
		"client_id":     {i.ClientID},
		"client_secret": {i.ClientSecret},
	}
}

// InfoURL is the unauthenticated service description of the DAM.
func (i Instance) InfoURL() string {
	return i.BaseURL + "/dam"
}

// ConfigURL addresses the full configuration document of realm.
func (i Instance) ConfigURL(realm string) string {
	return i.BaseURL + apiPrefix + url.PathEscape(realm) + "/config"
}

// ConfigEntityURL addresses one entity of a configuration collection.
func (i Instance) ConfigEntityURL(realm, typeNameInPath, name string) string {
	return i.ConfigURL(realm) + "/" + url.PathEscape(typeNameInPath) + "/" + url.PathEscape(name)
}

// OptionsURL addresses the options object of realm.
func (i Instance) OptionsURL(realm string) string {
	return i.ConfigURL(realm) + "/options"
}

// Info is the DAM's self description.
type Info struct {
	Name    string            `json:"name"`
	Version string            `json:"version,omitempty"`
	UI      map[string]string `json:"ui,omitempty"`
}

// Label is ui.label, falling back to the DAM's name.
func (i Info) Label() string {
	if label := i.UI["label"]; label != "" {
		return label
	}
	return i.Name
}
