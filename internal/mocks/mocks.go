package mocks

import (
	"context"

	"geoipsql/internal/model"
)

type MockRepository struct {
	InitSchemaFunc    func(ctx context.Context) error
	InitializedFunc   func() bool
	SaveLocationsFunc func(ctx context.Context, rows []model.LocationRow) error
	SaveRangesFunc    func(ctx context.Context, ranges []model.RangeRecord) error
}

func (m *MockRepository) InitSchema(ctx context.Context) error {
	return m.InitSchemaFunc(ctx)
}

func (m *MockRepository) Initialized() bool {
	return m.InitializedFunc()
}

func (m *MockRepository) SaveLocations(ctx context.Context, rows []model.LocationRow) error {
	return m.SaveLocationsFunc(ctx, rows)
}

func (m *MockRepository) SaveRanges(ctx context.Context, ranges []model.RangeRecord) error {
	return m.SaveRangesFunc(ctx, ranges)
}

type MockMirror struct {
	ResetFunc           func(ctx context.Context) error
	MirrorLocationsFunc func(ctx context.Context, rows []model.LocationRow) error
	MirrorRangesFunc    func(ctx context.Context, ranges []model.RangeRecord) error
}

func (m *MockMirror) Reset(ctx context.Context) error {
	return m.ResetFunc(ctx)
}

func (m *MockMirror) MirrorLocations(ctx context.Context, rows []model.LocationRow) error {
	return m.MirrorLocationsFunc(ctx, rows)
}

func (m *MockMirror) MirrorRanges(ctx context.Context, ranges []model.RangeRecord) error {
	return m.MirrorRangesFunc(ctx, ranges)
}
