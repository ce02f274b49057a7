package recorder

import (
	"bytes"
	"text/template"
	"time"
)

// Timestamp holds the broken-out date/time fields for a single point in time.
type Timestamp struct {
	Year   string // 4-digit year
	Month  string // 2-digit month (01-12)
	Day    string // 2-digit day (01-31)
	Hour   string // 2-digit hour, 24h (00-23)
	Minute string // 2-digit minute (00-59)
	Second string // 2-digit second (00-59)
	Unix   int64  // Unix epoch seconds
}

// NewTimestamp creates a Timestamp from a time.Time.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{
		Year:   t.Format("2006"),
		Month:  t.Format("01"),
		Day:    t.Format("02"),
		Hour:   t.Format("15"),
		Minute: t.Format("04"),
		Second: t.Format("05"),
		Unix:   t.Unix(),
	}
}

// TemplateData holds the variables available in output directory templates.
//
// Usage examples:
//
//	{{.Channel}}/{{.Started.Year}}-{{.Started.Month}}-{{.Started.Day}}
//	{{.Started.Hour}}{{.Started.Minute}}{{.Started.Second}}
//	{{if .Attempt}}_{{.Attempt}}{{end}}
type TemplateData struct {
	Channel string    // Channel login
	Driver  string    // Driver name
	Started Timestamp // When this attempt started
	Attempt int       // Attempt number within a watch run (0-indexed)
}

// NewTemplateData creates fully-populated template data.
func NewTemplateData(channel, driverName string, started time.Time, attempt int) *TemplateData {
	return &TemplateData{
		Channel: channel,
		Driver:  driverName,
		Started: NewTimestamp(started),
		Attempt: attempt,
	}
}

// RenderTemplate evaluates a Go text/template string with the given data.
// Unknown fields are an error.
func RenderTemplate(pattern string, data *TemplateData) (string, error) {
	tpl, err := template.New("path").Option("missingkey=error").Parse(pattern)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
