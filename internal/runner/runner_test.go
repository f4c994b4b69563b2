package runner

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/reelsight/metrics-cli/internal/blob"
	"github.com/reelsight/metrics-cli/internal/model"
	"github.com/reelsight/metrics-cli/internal/provider"
	"github.com/reelsight/metrics-cli/internal/sheet"
	"github.com/reelsight/metrics-cli/internal/store"
)

type testEnv struct {
	store  *store.SQLiteStore
	blobs  *blob.FSStore
	runner *Runner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.NewSQLite(t.TempDir() + "/jobs.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	blobs, err := blob.NewFS(t.TempDir())
	require.NoError(t, err)

	return &testEnv{store: st, blobs: blobs, runner: New(st, blobs)}
}

// reelWorkbook builds a workbook with n reel links down column A.
func reelWorkbook(t *testing.T, n int) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i := 0; i < n; i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		url := fmt.Sprintf("https://www.instagram.com/reel/LINK%d/", i)
		require.NoError(t, f.SetCellValue("Sheet1", cell, url))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

// submitJob uploads a source workbook and creates a pending job for it.
func (e *testEnv) submitJob(t *testing.T, n int) *model.Job {
	t.Helper()
	ctx := context.Background()

	job, err := e.store.CreateJob(ctx, "sources/test.xlsx")
	require.NoError(t, err)
	require.NoError(t, e.blobs.Upload(ctx, job.SourceRef, reelWorkbook(t, n)))
	return job
}

func (e *testEnv) getJob(t *testing.T, id string) *model.Job {
	t.Helper()
	job, err := e.store.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job
}

// openBlob downloads and parses a workbook artifact.
func (e *testEnv) openBlob(t *testing.T, ref string) *sheet.Document {
	t.Helper()
	data, err := e.blobs.Download(context.Background(), ref)
	require.NoError(t, err)
	doc, err := sheet.Open(data)
	require.NoError(t, err)
	t.Cleanup(func() { _ = doc.Close() })
	return doc
}

// stubProvider assigns a fixed view count per link, checkpointing every
// item. The hook runs before each checkpoint so tests can flip control
// flags at precise boundaries; err is reported after all links succeed.
type stubProvider struct {
	views   int64
	hook    func(i int)
	err     error
	handled int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Fetch(ctx context.Context, links []*model.LinkRecord, cp provider.Checkpoint) error {
	for i, l := range links {
		l.Outcome = model.SuccessOutcome(p.views)
		p.handled++
		if p.hook != nil {
			p.hook(i)
		}
		if err := cp(ctx, i+1, 0); err != nil {
			return err
		}
	}
	return p.err
}

func TestRun_CompletesJob(t *testing.T) {
	env := newTestEnv(t)
	job := env.submitJob(t, 5)

	require.NoError(t, env.runner.Run(context.Background(), job.ID, provider.NewSynthetic(2)))

	got := env.getJob(t, job.ID)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	assert.Equal(t, 5, got.TotalLinks)
	assert.Equal(t, 5, got.ProcessedLinks)
	assert.Zero(t, got.FailedLinks)
	require.Equal(t, "results/"+job.ID+".xlsx", got.ResultRef)
	assert.NotNil(t, got.CompletedAt)

	result := env.openBlob(t, got.ResultRef)
	for row := 1; row <= 5; row++ {
		views, err := strconv.ParseInt(result.Value(row, 2), 10, 64)
		require.NoError(t, err, "row %d", row)
		assert.GreaterOrEqual(t, views, int64(1_000))
		assert.Less(t, views, int64(10_000_000))
	}
}

func TestRun_JobAlreadyClaimed(t *testing.T) {
	env := newTestEnv(t)
	job := env.submitJob(t, 1)
	ctx := context.Background()

	require.NoError(t, env.store.ClaimForProcessing(ctx, job.ID, model.JobStatusPending))

	err := env.runner.Run(ctx, job.ID, &stubProvider{views: 1})
	assert.ErrorIs(t, err, store.ErrNotClaimable)
}

func TestRun_MissingSourceFailsJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job, err := env.store.CreateJob(ctx, "sources/nowhere.xlsx")
	require.NoError(t, err)

	err = env.runner.Run(ctx, job.ID, &stubProvider{views: 1})
	require.Error(t, err)

	got := env.getJob(t, job.ID)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.NotEmpty(t, got.ErrorMessage)
}

// flakyGetJobStore fails GetJob while letting everything else through,
// so the load that follows a successful claim can be made to error.
type flakyGetJobStore struct {
	store.Store
	getErr error
}

func (s *flakyGetJobStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.Store.GetJob(ctx, id)
}

func TestRun_LoadFailureAfterClaimFailsJob(t *testing.T) {
	env := newTestEnv(t)
	job := env.submitJob(t, 1)
	ctx := context.Background()

	flaky := &flakyGetJobStore{Store: env.store, getErr: eris.New("connection reset by peer")}
	r := New(flaky, env.blobs)

	err := r.Run(ctx, job.ID, &stubProvider{views: 1})
	require.Error(t, err)

	// The job must not stay stuck in processing, where no worker could
	// ever claim it again.
	got := env.getJob(t, job.ID)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "connection reset by peer")
}

func TestRun_PauseThenResumeCompletes(t *testing.T) {
	env := newTestEnv(t)
	job := env.submitJob(t, 4)
	ctx := context.Background()

	// Request the pause right before the second checkpoint; it takes
	// effect at that boundary, after two links are done.
	first := &stubProvider{views: 100}
	first.hook = func(i int) {
		if i == 1 {
			require.NoError(t, env.store.RequestPause(ctx, job.ID))
		}
	}
	require.NoError(t, env.runner.Run(ctx, job.ID, first))
	assert.Equal(t, 2, first.handled)

	paused := env.getJob(t, job.ID)
	assert.Equal(t, model.JobStatusPaused, paused.Status)
	assert.Equal(t, 2, paused.ProcessedLinks)
	assert.Equal(t, 2, paused.ResumeFromIndex)
	assert.NotNil(t, paused.PausedAt)
	require.Equal(t, "partials/"+job.ID+".xlsx", paused.PartialRef)

	partial := env.openBlob(t, paused.PartialRef)
	assert.Equal(t, "100", partial.Value(1, 2))
	assert.Equal(t, "100", partial.Value(2, 2))
	assert.Equal(t, "", partial.Value(3, 2))

	// Resume: only the remaining two links reach the provider, and the
	// metrics written before the pause survive into the result.
	second := &stubProvider{views: 200}
	require.NoError(t, env.runner.Run(ctx, job.ID, second))
	assert.Equal(t, 2, second.handled)

	done := env.getJob(t, job.ID)
	assert.Equal(t, model.JobStatusCompleted, done.Status)
	assert.Equal(t, 4, done.ProcessedLinks)
	assert.Equal(t, done.TotalLinks, done.ProcessedLinks)

	result := env.openBlob(t, done.ResultRef)
	assert.Equal(t, "100", result.Value(1, 2))
	assert.Equal(t, "100", result.Value(2, 2))
	assert.Equal(t, "200", result.Value(3, 2))
	assert.Equal(t, "200", result.Value(4, 2))
}

func TestRun_CancelFailsJobWithReason(t *testing.T) {
	env := newTestEnv(t)
	job := env.submitJob(t, 3)
	ctx := context.Background()

	p := &stubProvider{views: 50}
	p.hook = func(i int) {
		if i == 0 {
			require.NoError(t, env.store.RequestCancel(ctx, job.ID, "wrong spreadsheet"))
		}
	}
	err := env.runner.Run(ctx, job.ID, p)
	require.Error(t, err)

	got := env.getJob(t, job.ID)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "cancelled: wrong spreadsheet")

	// The work done before the cancel is still downloadable.
	require.Equal(t, "partials/"+job.ID+".xlsx", got.PartialRef)
	partial := env.openBlob(t, got.PartialRef)
	assert.Equal(t, "50", partial.Value(1, 2))
}

func TestRun_ProviderErrorFailsJob(t *testing.T) {
	env := newTestEnv(t)
	job := env.submitJob(t, 2)

	boom := eris.New("poll budget exhausted")
	err := env.runner.Run(context.Background(), job.ID, &stubProvider{views: 9, err: boom})
	require.ErrorIs(t, err, boom)

	got := env.getJob(t, job.ID)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "poll budget exhausted")
	assert.NotEmpty(t, got.PartialRef)
}

func TestRun_ProgressCountsAreMonotonic(t *testing.T) {
	env := newTestEnv(t)
	job := env.submitJob(t, 6)
	ctx := context.Background()

	var processedSeen []int
	p := &stubProvider{views: 1}
	p.hook = func(int) {
		cur := env.getJob(t, job.ID)
		processedSeen = append(processedSeen, cur.ProcessedLinks)
	}
	require.NoError(t, env.runner.Run(ctx, job.ID, p))

	for i := 1; i < len(processedSeen); i++ {
		assert.GreaterOrEqual(t, processedSeen[i], processedSeen[i-1])
	}
}
