package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/callaudit/callaudit/internal/call"
	"github.com/callaudit/callaudit/internal/gaps"
)

// maxUploadBytes caps the size of an uploaded export file (25 MB).
const maxUploadBytes = 25 << 20

// maxThresholdMinutes caps the minimum-gap threshold a client may request.
const maxThresholdMinutes = 24 * 60

// validateDate checks an optional date query parameter ("YYYY-MM-DD").
// Returns an error message if invalid, empty string if OK.
func validateDate(value string) string {
	if value == "" {
		return ""
	}
	if _, err := time.Parse(call.DateLayout, value); err != nil {
		return "date must be formatted YYYY-MM-DD"
	}
	return ""
}

// viewParams are the gap-view parameters common to the view endpoints.
type viewParams struct {
	Date             string
	Window           gaps.OfficeHours
	ThresholdMinutes int
}

// parseViewParams reads date, start, end, and threshold from the query,
// falling back to the server defaults. A malformed date or threshold is a
// client error; a well-formed but invalid office-hours window is not: it
// flows through so the handler can return calls with gaps withheld.
func (s *Server) parseViewParams(r *http.Request) (viewParams, string) {
	q := r.URL.Query()
	p := viewParams{
		Date:             q.Get("date"),
		Window:           s.defaultWindow,
		ThresholdMinutes: s.cfg.GapThresholdMin,
	}

	if msg := validateDate(p.Date); msg != "" {
		return p, msg
	}

	start, end := q.Get("start"), q.Get("end")
	if start != "" || end != "" {
		if start == "" {
			start = p.Window.StartLabel()
		}
		if end == "" {
			end = p.Window.EndLabel()
		}
		w, err := gaps.ParseOfficeHours(start, end)
		var invalid *gaps.InvalidOfficeHoursError
		if err != nil && !errors.As(err, &invalid) {
			return p, "start and end must be formatted HH:MM"
		}
		// A start >= end window flows through: the view is still built with
		// calls populated and gaps withheld.
		p.Window = w
	}

	if raw := q.Get("threshold"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 || v > maxThresholdMinutes {
			return p, "threshold must be an integer between 0 and 1440"
		}
		p.ThresholdMinutes = v
	}

	return p, ""
}
