package notifications

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderAllTemplates(t *testing.T) {
	tpls := NewTemplates()
	data := map[string]any{
		"tenantName": "Acme Studio",
		"memberName": "Bo Smith",
		"invitedBy":  "Alice Owner",
		"roleLabel":  "Staff",
		"setupLink":  "https://app.slotwise.test/setup/tok",
		"inviteLink": "https://app.slotwise.test/join?token=tok",
		"inviteCode": "AB12CD34",
		"expiresAt":  "March 17, 2026",
	}

	for _, name := range []string{
		"member_invited",
		"member_removed",
		"member_role_changed",
		"password_setup",
		"invitation",
	} {
		t.Run(name, func(t *testing.T) {
			result, err := tpls.Render(name, data)
			require.NoError(t, err)
			assert.Contains(t, result.HTML, "Acme Studio")
			assert.NotContains(t, result.Text, "<", "text variant has no markup")
			assert.NotEmpty(t, result.Text)
		})
	}
}

func TestRenderEscapesUserInput(t *testing.T) {
	tpls := NewTemplates()
	result, err := tpls.Render("member_invited", map[string]any{
		"tenantName": "<script>alert(1)</script>",
		"memberName": "Bo",
		"invitedBy":  "Alice",
		"setupLink":  "https://example.test",
	})
	require.NoError(t, err)
	assert.NotContains(t, result.HTML, "<script>")
}

func TestRenderUnknownTemplate(t *testing.T) {
	tpls := NewTemplates()
	_, err := tpls.Render("no_such_template", nil)
	require.Error(t, err)
}
