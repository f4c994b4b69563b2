package provider

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/reelsight/metrics-cli/internal/model"
	"github.com/reelsight/metrics-cli/internal/plan"
	"github.com/reelsight/metrics-cli/pkg/apify"
	"github.com/reelsight/metrics-cli/pkg/viewsapi"
)

type mockApify struct {
	mock.Mock
}

func (m *mockApify) StartRun(ctx context.Context, actorID string, input apify.RunInput) (*apify.Run, error) {
	args := m.Called(ctx, actorID, input)
	if r := args.Get(0); r != nil {
		return r.(*apify.Run), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockApify) GetRun(ctx context.Context, runID string) (*apify.Run, error) {
	args := m.Called(ctx, runID)
	if r := args.Get(0); r != nil {
		return r.(*apify.Run), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockApify) DatasetItems(ctx context.Context, datasetID string) ([]apify.DatasetItem, error) {
	args := m.Called(ctx, datasetID)
	if r := args.Get(0); r != nil {
		return r.([]apify.DatasetItem), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockViewsAPI struct {
	mock.Mock
}

func (m *mockViewsAPI) Lookup(ctx context.Context, postURL string) (*viewsapi.LookupResponse, error) {
	args := m.Called(ctx, postURL)
	if r := args.Get(0); r != nil {
		return r.(*viewsapi.LookupResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

// checkpointRecorder captures every (done, failed) pair a provider
// reports, optionally failing at a chosen call.
type checkpointRecorder struct {
	calls  [][2]int
	failAt int // 1-based call number to fail on; 0 never fails
	err    error
}

func (r *checkpointRecorder) fn(_ context.Context, done, failed int) error {
	r.calls = append(r.calls, [2]int{done, failed})
	if r.failAt > 0 && len(r.calls) == r.failAt {
		return r.err
	}
	return nil
}

func placedLink(row, col int, rawText string) *model.LinkRecord {
	id, _ := plan.CanonicalID(rawText)
	return &model.LinkRecord{
		Row:         row,
		Col:         col,
		RawText:     rawText,
		CanonicalID: id,
		ViewsRow:    row,
		ViewsCol:    col + 1,
		Resolution:  model.ResolutionPlaced,
	}
}
