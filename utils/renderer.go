package utils

import (
	"regexp"

	"churchpilot/models"
)

// placeholderRe matches {{identifier}} tokens in template content
var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// RenderTemplate substitutes every {{key}} occurrence with the matching
// context value. Unknown keys are left literally in place; rendering never
// fails and never drops content. Single-pass flat substitution only.
func RenderTemplate(content string, context map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(content, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]
		if value, ok := context[key]; ok {
			return value
		}
		return match
	})
}

// BuildMessageContext assembles the flat substitution context for one message.
// Contact fields fall back through member -> visitor -> prayer request -> raw
// recipient address; the enrollment's stored data is merged last and can
// override any computed default.
func BuildMessageContext(contact *ContactInfo, church *models.Church, enrollment *models.SequenceEnrollment, recipient, unsubscribeURL string) map[string]string {
	context := map[string]string{
		"first_name":      contact.FirstName,
		"name":            contact.Name,
		"email":           contact.Email,
		"phone":           contact.Phone,
		"recipient":       recipient,
		"church_name":     church.Name,
		"church_email":    church.Email,
		"church_phone":    church.Phone,
		"church_website":  church.Website,
		"unsubscribe_url": unsubscribeURL,
	}
	if context["name"] == "" {
		context["name"] = recipient
	}
	if context["first_name"] == "" {
		context["first_name"] = context["name"]
	}

	for key, value := range enrollment.EnrollmentData {
		context[key] = value
	}
	return context
}
