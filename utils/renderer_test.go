package utils

import (
	"testing"

	"churchpilot/models"

	"github.com/stretchr/testify/assert"
)

func TestRenderTemplate(t *testing.T) {
	context := map[string]string{
		"first_name":  "Maria",
		"church_name": "Grace Chapel",
	}

	t.Run("substitutes known placeholders", func(t *testing.T) {
		out := RenderTemplate("Hi {{first_name}}, welcome to {{church_name}}!", context)
		assert.Equal(t, "Hi Maria, welcome to Grace Chapel!", out)
	})

	t.Run("tolerates whitespace inside braces", func(t *testing.T) {
		out := RenderTemplate("Hi {{ first_name }}!", context)
		assert.Equal(t, "Hi Maria!", out)
	})

	t.Run("leaves unknown placeholders literal", func(t *testing.T) {
		out := RenderTemplate("Your code is {{code}}", map[string]string{})
		assert.Equal(t, "Your code is {{code}}", out)
	})

	t.Run("empty context leaves everything literal", func(t *testing.T) {
		in := "{{a}} and {{b}}"
		assert.Equal(t, in, RenderTemplate(in, nil))
	})

	t.Run("no recursive expansion", func(t *testing.T) {
		out := RenderTemplate("{{a}}", map[string]string{"a": "{{b}}", "b": "deep"})
		assert.Equal(t, "{{b}}", out)
	})
}

func TestBuildMessageContext(t *testing.T) {
	church := &models.Church{Name: "Grace Chapel", Email: "hello@grace.test"}

	t.Run("member fields with enrollment data override", func(t *testing.T) {
		contact := &ContactInfo{Name: "Sam Rivera", FirstName: "Sam", Email: "sam@example.com"}
		enrollment := &models.SequenceEnrollment{
			EnrollmentData: map[string]string{"event_name": "Easter Service", "first_name": "Samuel"},
		}

		ctx := BuildMessageContext(contact, church, enrollment, "sam@example.com", "https://x/unsubscribe/tok")

		assert.Equal(t, "Samuel", ctx["first_name"], "enrollment data overrides computed fields")
		assert.Equal(t, "Sam Rivera", ctx["name"])
		assert.Equal(t, "Grace Chapel", ctx["church_name"])
		assert.Equal(t, "Easter Service", ctx["event_name"])
		assert.Equal(t, "https://x/unsubscribe/tok", ctx["unsubscribe_url"])
	})

	t.Run("nameless contact falls back to recipient", func(t *testing.T) {
		contact := &ContactInfo{Email: "anon@example.com"}
		enrollment := &models.SequenceEnrollment{}

		ctx := BuildMessageContext(contact, church, enrollment, "anon@example.com", "")

		assert.Equal(t, "anon@example.com", ctx["name"])
		assert.Equal(t, "anon@example.com", ctx["first_name"])
	})
}
