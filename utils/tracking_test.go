package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackingToken(t *testing.T) {
	secret := []byte("secret")

	token := TrackingToken("msg-1", secret)
	assert.Len(t, token, 20)
	assert.True(t, ValidTrackingToken("msg-1", token, secret))
	assert.False(t, ValidTrackingToken("msg-2", token, secret))
	assert.False(t, ValidTrackingToken("msg-1", token, []byte("other")))
}

func TestInjectTracking(t *testing.T) {
	secret := []byte("secret")
	base := "https://app.example.com"

	t.Run("appends open pixel", func(t *testing.T) {
		out := InjectTracking("<p>Hello</p>", base, "msg-1", secret)
		assert.Contains(t, out, "/track/open/msg-1/")
		assert.Contains(t, out, `width="1" height="1"`)
	})

	t.Run("rewrites links through click redirect", func(t *testing.T) {
		html := `<p><a href="https://example.org/give">Give</a></p>`
		out := InjectTracking(html, base, "msg-1", secret)

		assert.Contains(t, out, "/track/click/msg-1/")
		assert.Contains(t, out, "url=https%3A%2F%2Fexample.org%2Fgive")
		assert.NotContains(t, out, `href="https://example.org/give"`)
	})

	t.Run("leaves unsubscribe link untouched", func(t *testing.T) {
		html := `<a href="https://app.example.com/unsubscribe/tok">Unsubscribe</a>`
		out := InjectTracking(html, base, "msg-1", secret)

		assert.Contains(t, out, `href="https://app.example.com/unsubscribe/tok"`)
		assert.Equal(t, 0, strings.Count(out, "/track/click/"))
		assert.Contains(t, out, "/track/open/msg-1/", "pixel still appended")
	})
}
