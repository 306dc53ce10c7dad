package evaluatereminders

import (
	"adr-workers/internal/common/validation"
	"adr-workers/internal/reminders"
)

type Input struct {
	Date   string `json:"date,omitempty"` // YYYY-MM-DD, empty means today
	DryRun bool   `json:"dryRun,omitempty"`
}

type Output struct {
	Message string             `json:"reminderMessage"`
	Date    string             `json:"reminderDate"`
	Sent    int                `json:"remindersSent"`
	Total   int                `json:"remindersTotal"`
	Failed  int                `json:"remindersFailed"`
	DryRun  bool               `json:"dryRun"`
	Details []reminders.Detail `json:"reminderDetails"`
}

var InputSchema = validation.JSONSchema{
	Type: "object",
	Properties: map[string]validation.Property{
		"date":   {Type: "string", Pattern: `^[0-9]{4}-[0-9]{2}-[0-9]{2}$`},
		"dryRun": {Type: "boolean"},
	},
	AdditionalProperties: true,
}
