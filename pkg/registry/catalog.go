package registry

import (
	"encoding/json"

	"adr-workers/internal/common/validation"
	activatecertificate "adr-workers/internal/workers/certificates/activate-certificate"
	sendreservationnotification "adr-workers/internal/workers/notifications/send-reservation-notification"
	resolveparticipant "adr-workers/internal/workers/participants/resolve-participant"
	evaluatereminders "adr-workers/internal/workers/reminders/evaluate-reminders"
	issuecompletionlink "adr-workers/internal/workers/reservations/issue-completion-link"
)

const CatalogVersion = "1.0.0"

func schemaMap(s validation.JSONSchema) map[string]interface{} {
	data, err := json.Marshal(s)
	if err != nil {
		return map[string]interface{}{}
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]interface{}{}
	}
	return out
}

func activity(id, name, desc, category string, schema validation.JSONSchema, timeout string, outputs, codes, tags []string) Activity {
	return Activity{
		ID:                   id,
		DisplayName:          name,
		Description:          desc,
		Category:             category,
		Version:              CatalogVersion,
		TaskType:             id,
		ImplementationStatus: StatusCompleted,
		InputSchema:          schemaMap(schema),
		OutputVariables:      outputs,
		ErrorCodes:           append([]string{"INVALID_INPUT"}, codes...),
		Timeout:              timeout,
		Retries:              3,
		Workflows:            []string{"adr-course-reservation", "adr-reminders"},
		Tags:                 tags,
	}
}

// Catalog describes every job worker this module implements.
func Catalog() []Activity {
	return []Activity{
		activity(resolveparticipant.TaskType, "Resolve Participant",
			"Matches contact data to an existing participant by PESEL, phone or email, or creates one.",
			"participants", resolveparticipant.InputSchema, resolveparticipant.LoadConfig().Timeout.String(),
			[]string{"participantId", "participantIsNew", "matchedBy", "fieldsUpdated", "participantPhone", "participantEmail"},
			[]string{"DATABASE_ERROR"}, []string{"identity"}),
		activity(sendreservationnotification.TaskType, "Send Reservation Notification",
			"Sends a one-shot reservation notification over the event's channels.",
			"notifications", sendreservationnotification.InputSchema, sendreservationnotification.LoadConfig().Timeout.String(),
			[]string{"notificationEvent", "notificationStatus", "notificationsSent", "notificationsFailed", "notificationDelivered"},
			[]string{"RESERVATION_NOT_FOUND", "NOTIFICATION_SEND_FAILED", "DATABASE_ERROR"}, []string{"sms", "email"}),
		activity(evaluatereminders.CertificateTaskType, "Evaluate Certificate Reminders",
			"Sends ADR certificate expiry reminders due at the 6, 3 and 1 month thresholds.",
			"reminders", evaluatereminders.InputSchema, evaluatereminders.LoadConfig().Timeout.String(),
			[]string{"reminderMessage", "reminderDate", "remindersSent", "remindersTotal", "remindersFailed", "dryRun", "reminderDetails"},
			[]string{"DATABASE_ERROR"}, []string{"reminders", "certificates"}),
		activity(evaluatereminders.CourseTaskType, "Evaluate Course Reminders",
			"Reminds attending participants of a course starting soon.",
			"reminders", evaluatereminders.InputSchema, evaluatereminders.LoadConfig().Timeout.String(),
			[]string{"reminderMessage", "reminderDate", "remindersSent", "remindersTotal", "remindersFailed", "dryRun", "reminderDetails"},
			[]string{"DATABASE_ERROR"}, []string{"reminders", "courses"}),
		activity(issuecompletionlink.TaskType, "Issue Completion Link",
			"Issues a one-time data completion link for a reservation and sends it by SMS and/or email.",
			"reservations", issuecompletionlink.InputSchema, issuecompletionlink.LoadConfig().Timeout.String(),
			[]string{"completionUrl", "completionLinkExpiresAt", "completionLinkSmsSent", "completionLinkEmailSent", "completionLinkMessage"},
			[]string{"RESERVATION_NOT_FOUND", "NOTIFICATION_SEND_FAILED", "DATABASE_ERROR"}, []string{"tokens"}),
		activity(activatecertificate.TaskType, "Activate Certificate",
			"Records a newly issued ADR certificate and renews the participant's previous one.",
			"certificates", activatecertificate.InputSchema, activatecertificate.LoadConfig().Timeout.String(),
			[]string{"certificateId", "certificateExpiryDate", "certificateIsFirst", "certificatesRenewed"},
			[]string{"PERSON_NOT_FOUND", "DATABASE_ERROR"}, []string{"certificates"}),
	}
}

// Default builds a registry holding the catalog.
func Default(lastUpdated string) *ActivityRegistry {
	return &ActivityRegistry{
		Version:     CatalogVersion,
		LastUpdated: lastUpdated,
		Activities:  Catalog(),
	}
}
