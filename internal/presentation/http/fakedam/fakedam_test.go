package fakedam

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnastack/ddap-admin/internal/domain/entities"
	infradam "github.com/dnastack/ddap-admin/internal/infrastructure/dam"
	"github.com/dnastack/ddap-admin/internal/infrastructure/persistence/damdb"
)

func newServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := damdb.Open(context.Background(), damdb.Config{SQLitePath: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv := httptest.NewServer(SetupRoutes(NewHandlers(damdb.NewRepository(db), opts, nil)))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, rawURL, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, rawURL, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestInfo(t *testing.T) {
	srv := newServer(t, Options{Label: "Local DAM"})

	status, body := do(t, http.MethodGet, srv.URL+"/dam", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"name":"dam","versions":["v1alpha"],"ui":{"label":"Local DAM"}}`, body)
}

func TestGetConfig_SeedsRealm(t *testing.T) {
	srv := newServer(t, Options{SeedRealms: true})

	status, body := do(t, http.MethodGet, srv.URL+"/dam/v1alpha/master/config", "")
	require.Equal(t, http.StatusOK, status)

	var doc entities.DamConfig
	require.NoError(t, json.Unmarshal([]byte(body), &doc))
	assert.Equal(t, []string{"ga4gh-apis", "thousand-genomes"}, doc.Collection("resources").Names())
}

func TestGetConfig_UnknownRealm(t *testing.T) {
	srv := newServer(t, Options{})

	status, body := do(t, http.MethodGet, srv.URL+"/dam/v1alpha/nowhere/config", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body, `realm \"nowhere\" not found`)
}

func TestClientCredentials(t *testing.T) {
	srv := newServer(t, Options{ClientID: "console", ClientSecret: "s3cret", SeedRealms: true})

	status, body := do(t, http.MethodGet, srv.URL+"/dam/v1alpha/master/config?client_id=console&client_secret=wrong", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Contains(t, body, "unrecognized client credentials")

	status, _ = do(t, http.MethodGet, srv.URL+"/dam/v1alpha/master/config?client_id=console&client_secret=s3cret", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestPutEntity(t *testing.T) {
	srv := newServer(t, Options{})
	entityURL := srv.URL + "/dam/v1alpha/master/config/views/gcs_read"

	status, body := do(t, http.MethodPut, entityURL, `{"item":{"ui":{"label":"x"}}}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "serviceTemplate")

	status, _ = do(t, http.MethodPut, entityURL, `{"item":{"serviceTemplate":"gcs"},"modification":{"dry_run":true}}`)
	assert.Equal(t, http.StatusOK, status)
	status, _ = do(t, http.MethodGet, srv.URL+"/dam/v1alpha/master/config", "")
	assert.Equal(t, http.StatusNotFound, status, "dry run must not create the realm")

	status, body = do(t, http.MethodPut, entityURL, `{"item":{"serviceTemplate":"gcs"}}`)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "revision")

	_, body = do(t, http.MethodGet, srv.URL+"/dam/v1alpha/master/config", "")
	var doc entities.DamConfig
	require.NoError(t, json.Unmarshal([]byte(body), &doc))
	assert.Equal(t, []string{"gcs_read"}, doc.Collection("views").Names())
}

func TestDeleteEntity(t *testing.T) {
	srv := newServer(t, Options{SeedRealms: true})
	do(t, http.MethodGet, srv.URL+"/dam/v1alpha/master/config", "")

	status, _ := do(t, http.MethodDelete, srv.URL+"/dam/v1alpha/master/config/resources/ga4gh-apis", "")
	assert.Equal(t, http.StatusOK, status)

	status, body := do(t, http.MethodDelete, srv.URL+"/dam/v1alpha/master/config/resources/ga4gh-apis", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body, "not found")
}

func TestPutOptions(t *testing.T) {
	srv := newServer(t, Options{SeedRealms: true})
	optionsURL := srv.URL + "/dam/v1alpha/master/config/options"

	status, _ := do(t, http.MethodPut, optionsURL, `{"item":[1,2]}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, http.MethodPut, optionsURL, `{"item":{"readOnlyMasterRealm":true}}`)
	require.Equal(t, http.StatusOK, status)

	_, body := do(t, http.MethodGet, srv.URL+"/dam/v1alpha/master/config", "")
	var doc struct {
		Options map[string]any `json:"options"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &doc))
	assert.Equal(t, map[string]any{"readOnlyMasterRealm": true}, doc.Options)
}

// The console's own transport must be able to talk to the emulator,
// including surfacing its validation messages.
func TestConsoleTransportAgainstEmulator(t *testing.T) {
	srv := newServer(t, Options{ClientID: "console", ClientSecret: "s3cret", SeedRealms: true})
	inst := infradam.Instance{ID: "fake", BaseURL: srv.URL, ClientID: "console", ClientSecret: "s3cret"}
	transport := infradam.NewHTTPTransport(nil)
	ctx := context.Background()

	raw, err := transport.Get(ctx, inst.InfoURL(), nil)
	require.NoError(t, err)
	var info infradam.Info
	require.NoError(t, json.Unmarshal(raw, &info))
	assert.Equal(t, "Fake DAM", info.Label())

	_, err = transport.Put(ctx, inst.ConfigEntityURL("master", "resources", "broken"), inst.Credentials(),
		map[string]any{"item": map[string]any{"ui": map[string]any{"label": "x"}}})
	var statusErr *infradam.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Contains(t, statusErr.Message, "resource has no views")

	raw, err = transport.Get(ctx, inst.ConfigURL("master"), url.Values{"client_id": {"console"}, "client_secret": {"s3cret"}})
	require.NoError(t, err)
	var doc entities.DamConfig
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, []string{"ddap-admin"}, doc.Collection("clients").Names())

	require.NoError(t, transport.Delete(ctx, inst.ConfigEntityURL("master", "clients", "ddap-admin"), inst.Credentials()))
	raw, err = transport.Get(ctx, inst.ConfigURL("master"), inst.Credentials())
	require.NoError(t, err)
	doc = entities.DamConfig{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Empty(t, doc.Collection("clients").Names())
}
