package recurrence

import (
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/dukerupert/chorebook/internal/model"
)

// Describe returns a human-readable description of when a routine repeats.
func Describe(freq model.Frequency, anchor civil.Date) string {
	switch freq {
	case model.Daily:
		return "Repeats daily"
	case model.Weekly:
		return "Repeats weekly on " + weekday(anchor).String()
	case model.Monthly:
		return fmt.Sprintf("Repeats monthly on day %d", anchor.Day)
	case model.Yearly:
		return fmt.Sprintf("Repeats yearly on %s %d", anchor.Month, anchor.Day)
	}
	return ""
}
