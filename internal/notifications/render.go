package notifications

import (
	"fmt"
	"strings"
	"time"
)

type field struct {
	name  string
	value string
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
	color    int
	fields   []field
}

const (
	colorGreen = 0x00ff00
	colorRed   = 0xff0000
	colorBlue  = 0x0000ff
	colorGrey  = 0x808080
)

func render(event Event, payload Payload) message {
	app := payload.str("app")
	step := payload.str("step")
	switch event {
	case EventStepExecuted, EventStepFailed:
		code := payload.str("code")
		msg := message{
			title:  "dripfeed - Step Executed",
			body:   fmt.Sprintf("▶ %s: %s -> %s", app, step, code),
			tags:   []string{"dripfeed", "step", "executed"},
			color:  colorGreen,
			fields: []field{{"App", app}, {"Event", step}, {"Status", code}},
		}
		if event == EventStepFailed {
			msg.title = "dripfeed - Step Failed"
			msg.tags = []string{"dripfeed", "step", "failed"}
			msg.color = colorRed
			if text := payload.str("text"); text != "" {
				msg.body += "\n" + truncate(text, 300)
				msg.fields = append(msg.fields, field{"Info", truncate(text, 300)})
			}
		}
		if next, ok := payload["nextDueAt"].(time.Time); ok && !next.IsZero() {
			when := next.Local().Format("02.01. 15:04")
			msg.body += fmt.Sprintf("\nNext run: %s", when)
			msg.fields = append(msg.fields, field{"Next Run", when})
		}
		if remaining := payload.str("remaining"); remaining != "" {
			msg.fields = append(msg.fields, field{"Remaining", remaining})
		}
		return msg
	case EventJobCompleted:
		return message{
			title:  "dripfeed - Sequence Finished",
			body:   fmt.Sprintf("🏁 Sequence finished: %s (job %s)", app, payload.str("jobID")),
			tags:   []string{"dripfeed", "job", "completed"},
			color:  colorBlue,
			fields: []field{{"App", app}, {"Job", payload.str("jobID")}, {"Owner", payload.str("owner")}},
		}
	case EventStorageError:
		return message{
			title:    "dripfeed - Storage Error",
			body:     fmt.Sprintf("❌ Queue %s failed for job %s: %s", payload.str("op"), payload.str("jobID"), payload.str("error")),
			tags:     []string{"dripfeed", "error", "alert"},
			priority: "high",
			color:    colorRed,
			fields:   []field{{"Operation", payload.str("op")}, {"Job", payload.str("jobID")}, {"Error", truncate(payload.str("error"), 300)}},
		}
	case EventTest:
		return message{
			title:    "dripfeed - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"dripfeed", "test"},
			priority: "low",
			color:    colorGrey,
		}
	default:
		return message{
			title: "dripfeed - " + string(event),
			body:  fmt.Sprintf("%s %v", event, map[string]any(payload)),
			tags:  []string{"dripfeed"},
			color: colorGrey,
		}
	}
}

func (p Payload) str(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return v.Error()
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "…"
}
