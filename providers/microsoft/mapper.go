package microsoft

import (
	"strings"
	"time"

	"github.com/goliatone/go-tasksync/core"
)

// graphTask is the Graph To Do task resource shape, reduced to the fields
// the sync engine consumes.
type graphTask struct {
	ID                   string         `json:"id"`
	Title                string         `json:"title"`
	Status               string         `json:"status"`
	Body                 *graphItemBody `json:"body"`
	DueDateTime          *graphDateTime `json:"dueDateTime"`
	LastModifiedDateTime string         `json:"lastModifiedDateTime"`
}

type graphItemBody struct {
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphTaskPage struct {
	Value    []graphTask `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

// completedStatuses maps every Graph task status to a completion flag.
// Statuses the table does not know are treated as incomplete rather than
// rejected, so new upstream statuses degrade safely.
var completedStatuses = map[string]bool{
	"completed":       true,
	"notstarted":      false,
	"inprogress":      false,
	"waitingonothers": false,
	"deferred":        false,
}

func statusCompleted(status string) bool {
	return completedStatuses[strings.ToLower(strings.TrimSpace(status))]
}

func mapGraphTask(task graphTask) core.RemoteTask {
	remote := core.RemoteTask{
		ExternalID:      strings.TrimSpace(task.ID),
		Title:           strings.TrimSpace(task.Title),
		Completed:       statusCompleted(task.Status),
		RemoteUpdatedAt: parseGraphTimestamp(task.LastModifiedDateTime),
	}
	if task.Body != nil {
		remote.Body = strings.TrimSpace(task.Body.Content)
	}
	if task.DueDateTime != nil {
		remote.DueAt = parseGraphDateTime(*task.DueDateTime)
	}
	return remote
}

func parseGraphTimestamp(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return parsed.UTC()
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed.UTC()
	}
	return time.Time{}
}

// parseGraphDateTime resolves a Graph dateTimeTimeZone value. The dateTime
// component has no offset; the named zone decides it, defaulting to UTC.
func parseGraphDateTime(value graphDateTime) *time.Time {
	raw := strings.TrimSpace(value.DateTime)
	if raw == "" {
		return nil
	}

	location := time.UTC
	if zone := strings.TrimSpace(value.TimeZone); zone != "" && !strings.EqualFold(zone, "UTC") {
		if loaded, err := time.LoadLocation(zone); err == nil {
			location = loaded
		}
	}

	for _, layout := range []string{
		"2006-01-02T15:04:05.9999999",
		"2006-01-02T15:04:05",
		"2006-01-02",
	} {
		if parsed, err := time.ParseInLocation(layout, raw, location); err == nil {
			utc := parsed.UTC()
			return &utc
		}
	}
	return nil
}
