package api

import (
	"net/http"

	"github.com/callaudit/callaudit/internal/api/middleware"
)

// saveResponse reports the counts of the most recent persistence run.
type saveResponse struct {
	RecordsInserted   int `json:"records_inserted"`
	DuplicatesSkipped int `json:"duplicates_skipped"`
	FailedBatches     int `json:"failed_batches"`
}

// sessionResponse is the workflow status the dashboard polls after an
// upload: the state machine position, the loaded file, and the outcome of
// the background save including its dismissible warning. Save is null
// until the save lands.
type sessionResponse struct {
	State       string        `json:"state"`
	FileName    string        `json:"file_name,omitempty"`
	RowsSkipped int           `json:"rows_skipped"`
	SaveWarning string        `json:"save_warning,omitempty"`
	Save        *saveResponse `json:"save"`
}

// handleSessionStatus reports the agency's workflow state. Uploads persist
// in the background, so this is where a save failure or its duplicate and
// skipped-row counts become visible.
func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sess := s.session(middleware.AgencyFromContext(r.Context()))

	resp := sessionResponse{
		State:       string(sess.State()),
		SaveWarning: sess.SaveWarning(),
	}
	if src := sess.Loaded(); src != nil {
		resp.FileName = src.FileName
		resp.RowsSkipped = src.RowsSkipped
	}
	if res := sess.LastSave(); res != nil {
		resp.Save = &saveResponse{
			RecordsInserted:   res.RecordsInserted,
			DuplicatesSkipped: res.DuplicatesSkipped,
			FailedBatches:     res.FailedBatches,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDismissSaveWarning clears the non-blocking save warning.
func (s *Server) handleDismissSaveWarning(w http.ResponseWriter, r *http.Request) {
	sess := s.session(middleware.AgencyFromContext(r.Context()))
	sess.DismissSaveWarning()
	writeJSON(w, http.StatusOK, map[string]string{"dismissed": "save_warning"})
}
