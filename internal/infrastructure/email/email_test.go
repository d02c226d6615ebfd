package email

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderAlert(t *testing.T) {
	subject, html, err := RenderAlert(Alert{
		Realm:      "master",
		DamID:      "dam1",
		Message:    "Can't load resources.",
		Detail:     "<script>alert(1)</script>",
		At:         time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		ConsoleURL: "https://admin.example.org",
	})
	require.NoError(t, err)

	assert.Equal(t, "[ddap-admin] Can't load resources. (master/dam1)", subject)
	assert.Contains(t, html, "2024-05-01 12:00:00 UTC")
	assert.Contains(t, html, `href="https://admin.example.org"`)
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestRenderAlert_OptionalParts(t *testing.T) {
	_, html, err := RenderAlert(Alert{Realm: "master", DamID: "dam1", Message: "down"})
	require.NoError(t, err)
	assert.NotContains(t, html, "<pre")
	assert.NotContains(t, html, "Open the admin console")
}

func TestNewService_RequiresKeyAndRecipients(t *testing.T) {
	_, err := NewService(Config{To: []string{"ops@example.org"}})
	assert.Error(t, err)

	_, err = NewService(Config{APIKey: "re_test"})
	assert.Error(t, err)

	svc, err := NewService(Config{APIKey: "re_test", To: []string{"ops@example.org"}})
	require.NoError(t, err)
	client := svc.(*ResendClient)
	assert.Equal(t, "noreply@ddap.local", client.fromEmail)
	assert.Equal(t, "DDAP Admin", client.fromName)
}
