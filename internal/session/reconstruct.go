package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/callaudit/callaudit/internal/database"
	"github.com/callaudit/callaudit/internal/gaps"
)

// ErrUploadNotFound is returned when a history view references an upload
// that no longer exists.
var ErrUploadNotFound = errors.New("upload not found")

// Hydrate rebuilds the cached source for a stored upload from persisted
// records alone. No re-normalization happens: the stored form is already
// canonical, so the result feeds the identical timeline builder and gap
// engine the live path uses.
func Hydrate(ctx context.Context, store database.Store, uploadID string) (*LoadedSource, error) {
	up, err := store.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("loading upload: %w", err)
	}
	if up == nil {
		return nil, ErrUploadNotFound
	}

	records, sourceFormat, err := store.GetRecords(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("loading stored records: %w", err)
	}

	return &LoadedSource{
		FileName:     up.FileName,
		SourceFormat: sourceFormat,
		RawCallCount: up.RawCallCount,
		Records:      records,
	}, nil
}

// Reconstruct is the full history path: hydrate a stored upload and
// compute the view for the requested date. For the same logical data the
// result is structurally equal to the live parse path's view.
func Reconstruct(ctx context.Context, store database.Store, uploadID, date string, window gaps.OfficeHours, thresholdMinutes int) (*View, error) {
	src, err := Hydrate(ctx, store, uploadID)
	if err != nil {
		return nil, err
	}
	return ComputeView(src, date, window, thresholdMinutes)
}
