package models

import "time"

const (
	CourseActive    = "active"
	CourseCancelled = "cancelled"
	CourseCompleted = "completed"
)

// CourseTypeNames maps stored course types to display names used in messages.
var CourseTypeNames = map[string]string{
	"podstawowy":  "ADR Podstawowy",
	"cysterny":    "ADR Cysterny",
	"klasa1":      "ADR Klasa 1",
	"klasa7":      "ADR Klasa 7",
	"doskonalacy": "ADR Doskonalący",
}

type Course struct {
	ID              int64     `json:"id"`
	CourseType      string    `json:"courseType"`
	StartDate       time.Time `json:"startDate"`
	EndDate         time.Time `json:"endDate"`
	Location        string    `json:"location,omitempty"`
	Price           *float64  `json:"price,omitempty"`
	MaxParticipants int       `json:"maxParticipants"`
	Status          string    `json:"status"`
}

func (c *Course) DisplayName() string {
	if name, ok := CourseTypeNames[c.CourseType]; ok {
		return name
	}
	return c.CourseType
}
