// Package session owns the per-user workflow around the gap engine: the
// parse / view / save state machine, the cached source records behind the
// current view, and last-selection-wins cancellation for asynchronous
// operations.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/callaudit/callaudit/internal/database"
	"github.com/callaudit/callaudit/internal/ingest"
	"github.com/callaudit/callaudit/internal/metrics"
)

// State of the workflow session.
type State string

const (
	StateIdle        State = "idle"
	StateParsing     State = "parsing"
	StateParsed      State = "parsed"
	StateParseFailed State = "parse_failed"
	StateLoading     State = "loading_from_history"
	StateLoadFailed  State = "load_failed"
)

// ErrSuperseded is reported when an operation's result was discarded
// because a newer selection was made while it was in flight.
var ErrSuperseded = errors.New("operation superseded by a newer selection")

// ErrNotParsed is returned when an operation needs a parsed source and
// none is loaded.
var ErrNotParsed = errors.New("no parsed source loaded")

// SaveOutcome is the eventual result of a fire-and-forget save.
type SaveOutcome struct {
	Result *database.SaveResult
	Err    error
}

// Session is the explicit state object that orchestrates the workflow.
// Each in-flight operation carries the generation token current when it
// began; a completion whose token is stale is discarded, so the newest
// selection always wins regardless of resolution order.
type Session struct {
	agencyID string
	store    database.Store

	mu          sync.Mutex
	state       State
	gen         uint64
	loaded      *LoadedSource
	saveWarning string
	lastSave    *database.SaveResult
}

// New creates an idle session for one agency.
func New(agencyID string, store database.Store) *Session {
	return &Session{agencyID: agencyID, store: store, state: StateIdle}
}

// State returns the current workflow state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Loaded returns the cached source behind the current view, or nil.
func (s *Session) Loaded() *LoadedSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// SaveWarning returns the most recent non-blocking save warning, or "".
func (s *Session) SaveWarning() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveWarning
}

// DismissSaveWarning clears the save warning.
func (s *Session) DismissSaveWarning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveWarning = ""
}

// LastSave returns the outcome of the most recent save of the current
// source, or nil when no save has landed yet.
func (s *Session) LastSave() *database.SaveResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSave
}

// begin starts a new selection: it bumps the generation token, which
// invalidates every operation still in flight, and enters the given state.
func (s *Session) begin(st State) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.state = st
	return s.gen
}

// complete applies fn only if gen is still the current generation.
// Returns false when the result was superseded and discarded.
func (s *Session) complete(gen uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	fn()
	return true
}

// ParseFile runs the live parse path: detect, extract, normalize, cache.
// The parsed set covers every date in the file; the caller picks dates on
// the cached source afterwards. ParseFile does not persist; call Save.
func (s *Session) ParseFile(ctx context.Context, fileName string, data []byte) (*LoadedSource, error) {
	gen := s.begin(StateParsing)

	res, err := ingest.Parse(data)
	if err != nil {
		metrics.ParseFailuresTotal.Inc()
		if !s.complete(gen, func() { s.state = StateParseFailed }) {
			return nil, ErrSuperseded
		}
		return nil, err
	}
	metrics.ParsesTotal.WithLabelValues(res.SourceFormat).Inc()
	metrics.RowsSkippedTotal.Add(float64(res.RowsSkipped))

	src := &LoadedSource{
		FileName:     fileName,
		SourceFormat: res.SourceFormat,
		RawCallCount: res.RawCallCount,
		RowsSkipped:  res.RowsSkipped,
		Records:      res.Records,
		gen:          gen,
	}
	if !s.complete(gen, func() {
		s.state = StateParsed
		s.loaded = src
		s.saveWarning = ""
		s.lastSave = nil
	}) {
		return nil, ErrSuperseded
	}
	return src, nil
}

// LoadFromHistory hydrates a stored upload into the session, after which
// the session behaves exactly as if the original file had been parsed.
func (s *Session) LoadFromHistory(ctx context.Context, uploadID string) (*LoadedSource, error) {
	gen := s.begin(StateLoading)

	src, err := Hydrate(ctx, s.store, uploadID)
	if err != nil {
		if !s.complete(gen, func() { s.state = StateLoadFailed }) {
			return nil, ErrSuperseded
		}
		return nil, err
	}

	src.gen = gen
	if !s.complete(gen, func() {
		s.state = StateParsed
		s.loaded = src
		s.saveWarning = ""
		s.lastSave = nil
	}) {
		return nil, ErrSuperseded
	}
	return src, nil
}

// Save persists the given source fire-and-forget. The returned channel
// delivers the eventual outcome (buffered, never blocks the saver). A
// failed save never reverts the parsed state; it surfaces as a
// non-blocking warning on the session, and an outcome of a source that
// has since been superseded leaves the session untouched. The caller
// passes the source its request parsed, not whatever the session holds
// now, so concurrent uploads never persist each other's records.
func (s *Session) Save(ctx context.Context, src *LoadedSource) (<-chan SaveOutcome, error) {
	if src == nil {
		return nil, ErrNotParsed
	}
	gen := src.gen

	done := make(chan SaveOutcome, 1)
	go func() {
		res, err := s.store.SaveUpload(ctx, s.agencyID, src.FileName, src.SourceFormat, src.RawCallCount, src.Records)
		if err == nil {
			metrics.RecordsInsertedTotal.Add(float64(res.RecordsInserted))
			metrics.DuplicatesSkippedTotal.Add(float64(res.DuplicatesSkipped))
		}

		warning := ""
		switch {
		case err != nil:
			warning = fmt.Sprintf("saving upload failed: %v", err)
			slog.Error("save failed", "agency_id", s.agencyID, "file", src.FileName, "error", err)
		case res.FailedBatches > 0:
			warning = fmt.Sprintf("%d record batches failed to save", res.FailedBatches)
			slog.Warn("save partially failed",
				"agency_id", s.agencyID,
				"file", src.FileName,
				"failed_batches", res.FailedBatches,
				"inserted", res.RecordsInserted,
				"duplicates_skipped", res.DuplicatesSkipped,
			)
		}

		s.complete(gen, func() {
			s.saveWarning = warning
			s.lastSave = res
		})
		done <- SaveOutcome{Result: res, Err: err}
	}()

	return done, nil
}
