package frames

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsHTML(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		want        bool
	}{
		{"declared html", "anything", "text/html; charset=utf-8", true},
		{"declared xhtml", "anything", "application/xhtml+xml", true},
		{"declared json", "<html></html>", "application/json", false},
		{"sniffed html", "<!DOCTYPE html><html><head></head></html>", "", true},
		{"sniffed text", "just words", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsHTML([]byte(tt.body), tt.contentType))
		})
	}
}

func TestInjectPrependsToHead(t *testing.T) {
	body := `<html><head><title>dApp</title><script src="app.js"></script></head><body>hi</body></html>`
	out, err := InjectIntoHTML([]byte(body), "text/html", "window.injected = true;")
	require.NoError(t, err)

	html := string(out)
	bridgeAt := strings.Index(html, "data-walletkit-bridge")
	appAt := strings.Index(html, `src="app.js"`)
	require.NotEqual(t, -1, bridgeAt)
	assert.Less(t, bridgeAt, appAt)
	assert.Less(t, bridgeAt, strings.Index(html, "<title>"))
	assert.Contains(t, html, "window.injected = true;")
}

func TestInjectCreatesMissingHead(t *testing.T) {
	out, err := InjectIntoHTML([]byte("<!DOCTYPE html><p>bare</p>"), "text/html", "x()")
	require.NoError(t, err)
	assert.Contains(t, string(out), "<head><script data-walletkit-bridge")
}

func TestInjectRejectsNonHTML(t *testing.T) {
	_, err := InjectIntoHTML([]byte(`{"a":1}`), "application/json", "x()")
	assert.ErrorIs(t, err, ErrNotHTML)
}

func TestInjectEscapesClosingTags(t *testing.T) {
	out, err := InjectIntoHTML([]byte("<html><head></head></html>"), "text/html", `var s = "</script><b>";`)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"<\/script><b>"`)
}

func TestInjectTranscodesToUTF8(t *testing.T) {
	body := []byte("<html><head><meta charset=\"iso-8859-1\"></head><body>caf\xe9</body></html>")
	out, err := InjectIntoHTML(body, "text/html; charset=iso-8859-1", "x()")
	require.NoError(t, err)

	html := string(out)
	assert.Contains(t, html, "caf\u00e9")
	assert.Contains(t, html, `charset="utf-8"`)
	assert.NotContains(t, html, "iso-8859-1")
}

func TestInjectRewritesHTTPEquiv(t *testing.T) {
	body := []byte(`<html><head><meta http-equiv="Content-Type" content="text/html; charset=windows-1252"></head></html>`)
	out, err := InjectIntoHTML(body, "text/html", "x()")
	require.NoError(t, err)
	assert.Contains(t, string(out), HTMLContentType)
	assert.NotContains(t, string(out), "windows-1252")
}
