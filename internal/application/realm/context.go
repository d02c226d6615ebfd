package realm

import (
	"encoding/json"
	"sort"
	"sync/atomic"
	"time"

	"github.com/dnastack/ddap-admin/internal/application/services"
	"github.com/dnastack/ddap-admin/internal/domain/entities/dam"
	"github.com/dnastack/ddap-admin/internal/infrastructure/caching/stores"
)

// collectionSpec describes one editable DAM configuration collection.
type collectionSpec struct {
	name             string
	typeNameInPath   string
	refreshAfterSave bool
}

// entityOptions returns the entity store options of the collection.
func (spec collectionSpec) entityOptions() []stores.EntityStoreOption {
	var opts []stores.EntityStoreOption
	if spec.refreshAfterSave {
		opts = append(opts, stores.WithRefreshAfterWrite())
	}
	return opts
}

// Workflows carry server-computed fields, so a save re-reads the document
// instead of merging the submitted payload.
var collectionSpecs = []collectionSpec{
	{name: dam.CollectionResources, typeNameInPath: "resources"},
	{name: dam.CollectionViews, typeNameInPath: "views"},
	{name: dam.CollectionTrustedSources, typeNameInPath: "trustedSources"},
	{name: dam.CollectionClients, typeNameInPath: "clients"},
	{name: dam.CollectionWorkflows, typeNameInPath: "workflows", refreshAfterSave: true},
}

// Context holds the configuration cache and DAM services of one realm.
type Context struct {
	Realm   string
	Store   *stores.DamConfigStore
	Options *services.OptionService
	Dams    *services.DamConfigService

	collections  map[string]*stores.DamConfigEntityStore[json.RawMessage]
	writers      map[string]*services.ConfigEntityService
	lastAccessed atomic.Int64
	inflight     atomic.Int64
}

// Collection returns the raw entity store of a registered collection.
func (c *Context) Collection(name string) (*stores.DamConfigEntityStore[json.RawMessage], bool) {
	es, ok := c.collections[name]
	return es, ok
}

// CollectionNames lists the registered collections, sorted.
func (c *Context) CollectionNames() []string {
	names := make([]string, 0, len(c.collections))
	for name := range c.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Touch records activity on the realm.
func (c *Context) Touch() {
	c.lastAccessed.Store(time.Now().UnixNano())
}

// LastAccessed is the time of the latest Touch.
func (c *Context) LastAccessed() time.Time {
	return time.Unix(0, c.lastAccessed.Load())
}

// InFlight is the number of acquired requests not yet released.
func (c *Context) InFlight() int {
	return int(c.inflight.Load())
}

// Busy reports whether the realm is watched or serving a request.
func (c *Context) Busy() bool {
	return c.Store.SubscriberCount() > 0 || c.inflight.Load() > 0
}

// Idle reports whether the realm is not busy and has not been used for
// longer than timeout.
func (c *Context) Idle(timeout time.Duration, now time.Time) bool {
	return !c.Busy() && now.Sub(c.LastAccessed()) > timeout
}

// Close stops in-flight reads and ends every subscription of the realm.
func (c *Context) Close() {
	c.Store.Close()
}
