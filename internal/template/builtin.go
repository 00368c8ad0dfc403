package template

// Builtin returns the templates shipped with the client. The backend may
// serve more; these are the offline fallback.
func Builtin() []Template {
	return []Template{
		{
			ID:        "absence-notice",
			Name:      "Absence notice",
			Category:  "attendance",
			Content:   "Dear {{parent_name}}, {{student_name}} was absent from {{class_name}} on {{date}}. Please contact the school office if this was unexpected.",
			Variables: []string{"parent_name", "student_name", "class_name", "date"},
		},
		{
			ID:        "attendance-summary",
			Name:      "Attendance summary",
			Category:  "attendance",
			Content:   "Hello {{parent_name}}, {{student_name}} has missed {{days_absent}} days this term, for an attendance rate of {{attendance_pct}}.",
			Variables: []string{"parent_name", "student_name", "days_absent", "attendance_pct"},
		},
		{
			ID:        "grade-update",
			Name:      "Grade update",
			Category:  "academic",
			Content:   "Hi {{parent_name}}, {{student_name}} received a {{grade}} on {{assignment}} in {{subject}}.",
			Variables: []string{"parent_name", "student_name", "grade", "assignment", "subject"},
		},
		{
			ID:        "homework-reminder",
			Name:      "Homework reminder",
			Category:  "academic",
			Content:   "Reminder: {{assignment}} for {{subject}} is due on {{due_date}}.",
			Variables: []string{"assignment", "subject", "due_date"},
		},
		{
			ID:        "event-invite",
			Name:      "Event invitation",
			Category:  "event",
			Content:   "You are invited to {{event_name}} at {{location}} on {{date}} at {{time}}. We hope to see you there! - {{school_name}}",
			Variables: []string{"event_name", "location", "date", "time", "school_name"},
		},
		{
			ID:        "meeting-request",
			Name:      "Parent-teacher meeting",
			Category:  "general",
			Content:   "Dear {{parent_name}}, I would like to meet to discuss {{student_name}}'s progress in {{subject}}. Are you available on {{date}} at {{time}}? - {{teacher_name}}",
			Variables: []string{"parent_name", "student_name", "subject", "date", "time", "teacher_name"},
		},
		{
			ID:        "fee-reminder",
			Name:      "Fee reminder",
			Category:  "general",
			Content:   "A payment of {{amount}} for {{event_name}} is due on {{due_date}}.",
			Variables: []string{"amount", "event_name", "due_date"},
		},
		{
			ID:        "emergency-closure",
			Name:      "Emergency closure",
			Category:  "emergency",
			Content:   "{{school_name}} will be closed on {{date}}. All after-school activities are cancelled.",
			Variables: []string{"school_name", "date"},
		},
	}
}
