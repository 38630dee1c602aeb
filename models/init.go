package models

import "gorm.io/gorm"

// CreateStarterTemplates seeds a new church with a usable template per
// follow-up category so sequences can be built right away
func CreateStarterTemplates(db *gorm.DB, churchID uint) error {
	starterTemplates := []MessageTemplate{
		{
			ChurchID: churchID,
			Name:     "Visitor welcome email",
			Category: "visitor_followup",
			Channel:  ChannelEmail,
			Subject:  "Great to see you at {{church_name}}!",
			Content: "<p>Hi {{first_name}},</p>" +
				"<p>Thank you for visiting {{church_name}} this week. We would love to see you again!</p>" +
				"<p>If you have any questions, just reply to this email.</p>" +
				"<p><a href=\"{{unsubscribe_url}}\">Unsubscribe</a></p>",
			Variables: []string{"first_name", "church_name", "unsubscribe_url"},
		},
		{
			ChurchID: churchID,
			Name:     "Visitor welcome text",
			Category: "visitor_followup",
			Channel:  ChannelSMS,
			Content:  "Hi {{first_name}}, thanks for visiting {{church_name}}! We hope to see you again soon.",
			Variables: []string{
				"first_name", "church_name",
			},
		},
		{
			ChurchID: churchID,
			Name:     "Prayer request follow-up",
			Category: "prayer_followup",
			Channel:  ChannelEmail,
			Subject:  "We're praying for you",
			Content: "<p>Hi {{name}},</p>" +
				"<p>We received your prayer request and our team has been praying for you this week.</p>" +
				"<p>Please let us know how you're doing.</p>" +
				"<p><a href=\"{{unsubscribe_url}}\">Unsubscribe</a></p>",
			Variables: []string{"name", "unsubscribe_url"},
		},
		{
			ChurchID: churchID,
			Name:     "Event reminder text",
			Category: "event",
			Channel:  ChannelSMS,
			Content:  "Hi {{first_name}}, a reminder from {{church_name}}: we're looking forward to seeing you!",
			Variables: []string{
				"first_name", "church_name",
			},
		},
	}
	for _, template := range starterTemplates {
		if err := db.FirstOrCreate(&template, "church_id = ? AND name = ?", churchID, template.Name).Error; err != nil {
			return err
		}
	}
	return nil
}
