package api

import (
	"encoding/csv"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/callaudit/callaudit/internal/call"
	"github.com/callaudit/callaudit/internal/database/models"
	"github.com/callaudit/callaudit/internal/gaps"
	"github.com/callaudit/callaudit/internal/session"
)

// callResponse is the JSON form of one canonical call record.
type callResponse struct {
	AgentName       string `json:"agent_name"`
	CallStart       string `json:"call_start"`
	DurationSeconds int    `json:"duration_seconds"`
	Direction       string `json:"direction"`
	ContactName     string `json:"contact_name,omitempty"`
	ContactPhone    string `json:"contact_phone,omitempty"`
	Result          string `json:"result,omitempty"`
}

// gapResponse is the JSON form of one reported gap.
type gapResponse struct {
	AgentName       string `json:"agent_name"`
	Date            string `json:"date"`
	Start           string `json:"start"`
	End             string `json:"end"`
	DurationMinutes int    `json:"duration_minutes"`
	Classification  string `json:"classification"`
}

// agentTimelineResponse is one agent's calls for the displayed date.
type agentTimelineResponse struct {
	AgentName string         `json:"agent_name"`
	Date      string         `json:"date"`
	Calls     []callResponse `json:"calls"`
}

// viewResponse is everything the dashboard renders for one date.
type viewResponse struct {
	FileName         string                   `json:"file_name"`
	Date             string                   `json:"date"`
	SourceFormat     string                   `json:"source_format"`
	RawCallCount     int                      `json:"raw_call_count"`
	RowsSkipped      int                      `json:"rows_skipped"`
	AvailableDates   []string                 `json:"available_dates"`
	WindowStart      string                   `json:"window_start"`
	WindowEnd        string                   `json:"window_end"`
	ThresholdMinutes int                      `json:"threshold_minutes"`
	Agents           []agentTimelineResponse  `json:"agents"`
	Gaps             map[string][]gapResponse `json:"gaps"`
	// BusyMinutes reports per agent how much of the window calls covered,
	// so the dashboard can sanity-check gap totals against busy time. Null
	// whenever gaps are withheld.
	BusyMinutes map[string]int `json:"busy_minutes"`
}

// toViewResponse converts a session.View to the API response. A nil Gaps map
// stays null in the JSON: gaps were withheld, not empty.
func toViewResponse(fileName string, v *session.View) viewResponse {
	resp := viewResponse{
		FileName:         fileName,
		Date:             v.Date,
		SourceFormat:     v.Result.SourceFormat,
		RawCallCount:     v.Result.RawCallCount,
		RowsSkipped:      v.RowsSkipped,
		AvailableDates:   v.Result.AvailableDates,
		WindowStart:      v.Window.StartLabel(),
		WindowEnd:        v.Window.EndLabel(),
		ThresholdMinutes: v.ThresholdMinutes,
		Agents:           make([]agentTimelineResponse, 0, len(v.Result.Agents)),
	}

	for _, tl := range v.Result.Agents {
		calls := make([]callResponse, len(tl.Calls))
		for i, c := range tl.Calls {
			calls[i] = callResponse{
				AgentName:       c.AgentName,
				CallStart:       c.CallStart.Format(call.TimestampLayout),
				DurationSeconds: c.DurationSeconds,
				Direction:       string(c.Direction),
				ContactName:     c.ContactName,
				ContactPhone:    c.ContactPhone,
				Result:          c.Result,
			}
		}
		resp.Agents = append(resp.Agents, agentTimelineResponse{
			AgentName: tl.AgentName,
			Date:      tl.Date,
			Calls:     calls,
		})
	}

	if v.Gaps != nil {
		resp.Gaps = make(map[string][]gapResponse, len(v.Gaps))
		for agent, gs := range v.Gaps {
			out := make([]gapResponse, len(gs))
			for i, g := range gs {
				out[i] = toGapResponse(g)
			}
			resp.Gaps[agent] = out
		}
		resp.BusyMinutes = v.BusyMinutes
	}
	return resp
}

func toGapResponse(g gaps.Gap) gapResponse {
	return gapResponse{
		AgentName:       g.AgentName,
		Date:            g.Date,
		Start:           g.Start.Format(call.TimestampLayout),
		End:             g.End.Format(call.TimestampLayout),
		DurationMinutes: g.DurationMinutes,
		Classification:  string(g.Classification),
	}
}

// writeViewError maps a view-computation error to a response. An invalid
// office-hours window is a partial success: the calls are returned with gaps
// withheld and a 422 status.
func writeViewError(w http.ResponseWriter, fileName string, v *session.View, err error) {
	var invalid *gaps.InvalidOfficeHoursError
	if errors.As(err, &invalid) && v != nil {
		writePartial(w, http.StatusUnprocessableEntity, toViewResponse(fileName, v), invalid.Error())
		return
	}
	slog.Error("view computation failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// handleGetView reconstructs the gap view for a stored upload. Equivalent to
// the live view for the same data.
func (s *Server) handleGetView(w http.ResponseWriter, r *http.Request) {
	up, view, ok := s.reconstructView(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toViewResponse(up.FileName, view))
}

// handleExportView downloads the gap view for a stored upload as CSV.
func (s *Server) handleExportView(w http.ResponseWriter, r *http.Request) {
	_, view, ok := s.reconstructView(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=gaps.csv")

	cw := csv.NewWriter(w)
	cw.Write([]string{"Agent", "Date", "Gap Start", "Gap End", "Duration (min)", "Classification"})

	// Agent order follows the timeline ordering for a stable export.
	for _, tl := range view.Result.Agents {
		for _, g := range view.Gaps[tl.AgentName] {
			cw.Write([]string{
				g.AgentName,
				g.Date,
				g.Start.Format(call.TimestampLayout),
				g.End.Format(call.TimestampLayout),
				strconv.Itoa(g.DurationMinutes),
				string(g.Classification),
			})
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		slog.Error("export gaps: csv write error", "error", err)
	}
}

// reconstructView resolves the upload, enforces ownership, and runs the
// reconstruction path. On failure it writes the response and returns ok=false.
func (s *Server) reconstructView(w http.ResponseWriter, r *http.Request) (up *models.Upload, view *session.View, ok bool) {
	id := chi.URLParam(r, "id")

	owned, err := s.ownedUpload(r, id)
	if err != nil {
		slog.Error("view: failed to query upload", "upload_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, nil, false
	}
	if owned == nil {
		writeError(w, http.StatusNotFound, "upload not found")
		return nil, nil, false
	}

	params, errMsg := s.parseViewParams(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return nil, nil, false
	}

	view, err = session.Reconstruct(r.Context(), s.store, id, params.Date, params.Window, params.ThresholdMinutes)
	if err != nil {
		if errors.Is(err, session.ErrUploadNotFound) {
			writeError(w, http.StatusNotFound, "upload not found")
			return nil, nil, false
		}
		writeViewError(w, owned.FileName, view, err)
		return nil, nil, false
	}
	return owned, view, true
}
