package utils

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
)

// ParseDateText turns free text like "next tuesday 9am" or an RFC3339
// stamp into an instant, using the configured timezone as reference.
func ParseDateText(parser *when.Parser, text string, loc *time.Location) (time.Time, error) {
	if text == "" {
		return time.Time{}, fmt.Errorf("ParseDateText: text is blank")
	}
	if t, err := time.ParseInLocation(time.RFC3339, text, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", text, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", text, loc); err == nil {
		return t, nil
	}
	result, err := parser.Parse(text, time.Now().In(loc))
	if err != nil {
		return time.Time{}, fmt.Errorf("ParseDateText: %w", err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("ParseDateText: can't understand %q", text)
	}
	return result.Time, nil
}
