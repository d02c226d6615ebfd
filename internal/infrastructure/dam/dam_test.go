package dam

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegistry(t *testing.T) {
	reg, err := ParseRegistry([]byte(`{
		"dam2": {"baseUrl": "http://dam2.local/", "clientId": "c2", "clientSecret": "s2"},
		"dam1": {"baseUrl": "https://dam1.local", "clientId": "c1", "clientSecret": "s1", "uiUrl": "https://ui.dam1.local"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"dam1", "dam2"}, reg.IDs())

	inst, err := reg.Get("dam2")
	require.NoError(t, err)
	assert.Equal(t, "dam2", inst.ID)
	assert.Equal(t, "http://dam2.local", inst.BaseURL)

	_, err = reg.Get("dam3")
	assert.ErrorIs(t, err, ErrUnknownDam)
}

func TestLoadRegistry_YAML(t *testing.T) {
	t.Setenv("DAM1_SECRET", "from-env")
	path := filepath.Join(t.TempDir(), "dams.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dam1:
  baseUrl: http://localhost:8081
  clientId: admin-console
  clientSecret: ${DAM1_SECRET}
  uiUrl: http://localhost:8081/ui
`), 0o600))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)

	inst, err := reg.Get("dam1")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8081", inst.BaseURL)
	assert.Equal(t, "admin-console", inst.ClientID)
	assert.Equal(t, "from-env", inst.ClientSecret)
	assert.Equal(t, "http://localhost:8081/ui", inst.UIURL)

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestNewRegistry_Rejects(t *testing.T) {
	_, err := NewRegistry(Instance{ID: "dam1", BaseURL: "not a url"})
	assert.Error(t, err)

	_, err = NewRegistry(Instance{ID: "dam1", BaseURL: "http://a"}, Instance{ID: "dam1", BaseURL: "http://b"})
	assert.Error(t, err)

	_, err = NewRegistry(Instance{BaseURL: "http://a"})
	assert.Error(t, err)
}

func TestInstanceEndpoints(t *testing.T) {
	inst := Instance{ID: "dam1", BaseURL: "http://dam.local", ClientID: "id", ClientSecret: "secret"}

	assert.Equal(t, "http://dam.local/dam", inst.InfoURL())
	assert.Equal(t, "http://dam.local/dam/v1alpha/master/config", inst.ConfigURL("master"))
	assert.Equal(t, "http://dam.local/dam/v1alpha/master/config/resource/ga4gh", inst.ConfigEntityURL("master", "resource", "ga4gh"))
	assert.Equal(t, "http://dam.local/dam/v1alpha/master/config/options", inst.OptionsURL("master"))
	assert.Equal(t, "http://dam.local/dam/v1alpha/a%2Fb/config", inst.ConfigURL("a/b"))
	assert.Equal(t, url.Values{"client_id": {"id"}, "client_secret": {"secret"}}, inst.Credentials())

	assert.Equal(t, "Local DAM", Info{Name: "dam", UI: map[string]string{"label": "Local DAM"}}.Label())
	assert.Equal(t, "dam", Info{Name: "dam"}.Label())
}

func TestHTTPTransport_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/dam/v1alpha/master/config", r.URL.Path)
		assert.Equal(t, "id", r.URL.Query().Get("client_id"))
		assert.Equal(t, "secret", r.URL.Query().Get("client_secret"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"resources":{"a":{}}}`)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(nil)
	inst := Instance{BaseURL: srv.URL, ClientID: "id", ClientSecret: "secret"}

	body, err := tr.Get(context.Background(), inst.ConfigURL("master"), inst.Credentials())
	require.NoError(t, err)
	assert.JSONEq(t, `{"resources":{"a":{}}}`, string(body))
}

func TestHTTPTransport_PutAndDelete(t *testing.T) {
	var gotBody map[string]any
	var deleted atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			_, _ = io.WriteString(w, `{}`)
		case http.MethodDelete:
			deleted.Store(true)
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	tr := NewHTTPTransport(nil)
	_, err := tr.Put(context.Background(), srv.URL+"/x", nil, map[string]any{"item": map[string]any{"a": 1}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"item": map[string]any{"a": float64(1)}}, gotBody)

	require.NoError(t, tr.Delete(context.Background(), srv.URL+"/x", nil))
	assert.True(t, deleted.Load())
}

func TestHTTPTransport_StatusErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"resource \"x\" has no views"}}`)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(nil, WithRetryBackoffs(time.Millisecond))
	_, err := tr.Put(context.Background(), srv.URL+"/x?client_secret=s", nil, map[string]any{})

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, `resource "x" has no views`, statusErr.Message)
	assert.NotContains(t, err.Error(), "client_secret")
}

func TestHTTPTransport_RetriesTransientReads(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(nil, WithRetryBackoffs(time.Millisecond, time.Millisecond))
	body, err := tr.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPTransport_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(nil, WithRetryBackoffs(time.Millisecond, time.Millisecond))
	_, err := tr.Get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, err.Error(), "nope")
}

func TestHTTPTransport_RejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>`)
	}))
	defer srv.Close()

	_, err := NewHTTPTransport(nil).Get(context.Background(), srv.URL, nil)
	assert.Error(t, err)
}
