package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aristath/carmarket/internal/domain"
	"github.com/aristath/carmarket/internal/modules/results"
)

type mockRunner struct {
	mock.Mock
	block chan struct{}
}

func (m *mockRunner) Run(ctx context.Context, vehicles []domain.Vehicle) (domain.Snapshot, error) {
	if m.block != nil {
		<-m.block
	}
	args := m.Called(ctx, vehicles)
	return args.Get(0).(domain.Snapshot), args.Error(1)
}

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteRun(snap domain.Snapshot) ([]string, error) {
	args := m.Called(snap)
	files, _ := args.Get(0).([]string)
	return files, args.Error(1)
}

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Post(ctx context.Context, snap domain.Snapshot) error {
	return m.Called(ctx, snap).Error(0)
}

type mockMirror struct {
	mock.Mock
}

func (m *mockMirror) MirrorRun(ctx context.Context, snap domain.Snapshot, files []string) error {
	return m.Called(ctx, snap, files).Error(0)
}

var testVehicles = []domain.Vehicle{{Name: "Porsche 911 Turbo", Year: 1995}}

func fixedVehicles() ([]domain.Vehicle, error) {
	return testVehicles, nil
}

func testSnapshot() domain.Snapshot {
	return domain.NewSnapshot("run-1", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), []domain.VehicleResult{
		{VehicleName: "Porsche 911 Turbo", VehicleYear: 1995, Sales5y: []domain.SaleRecord{}},
	})
}

func quietLog() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func TestCollectJob_Execute(t *testing.T) {
	snap := testSnapshot()
	files := []string{"/out/out_1995_Porsche_911_Turbo.json", "/out/snapshot.json"}

	runner := &mockRunner{}
	runner.On("Run", mock.Anything, testVehicles).Return(snap, nil)
	writer := &mockWriter{}
	writer.On("WriteRun", snap).Return(files, nil)
	sink := &mockSink{}
	sink.On("Post", mock.Anything, snap).Return(nil)
	mirror := &mockMirror{}
	mirror.On("MirrorRun", mock.Anything, snap, files).Return(nil)
	store := results.NewStore()

	job := NewCollectJob(CollectJobConfig{
		Vehicles: fixedVehicles,
		Runner:   runner,
		Writer:   writer,
		Sink:     sink,
		Mirror:   mirror,
		Store:    store,
	}, quietLog())

	got, err := job.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	runner.AssertExpectations(t)
	writer.AssertExpectations(t)
	sink.AssertExpectations(t)
	mirror.AssertExpectations(t)

	latest, ok := store.Latest()
	require.True(t, ok)
	assert.Equal(t, "run-1", latest.RunID)
	assert.False(t, store.Status().Running)
	assert.Equal(t, 1, store.Status().RunsCompleted)
}

func TestCollectJob_DownstreamFailuresDoNotFailRun(t *testing.T) {
	snap := testSnapshot()

	runner := &mockRunner{}
	runner.On("Run", mock.Anything, testVehicles).Return(snap, nil)
	writer := &mockWriter{}
	writer.On("WriteRun", snap).Return([]string{"/out/snapshot.json"}, nil)
	sink := &mockSink{}
	sink.On("Post", mock.Anything, snap).Return(errors.New("sink down"))
	mirror := &mockMirror{}
	mirror.On("MirrorRun", mock.Anything, snap, mock.Anything).Return(errors.New("bucket gone"))
	store := results.NewStore()

	job := NewCollectJob(CollectJobConfig{
		Vehicles: fixedVehicles, Runner: runner, Writer: writer, Sink: sink, Mirror: mirror, Store: store,
	}, quietLog())

	_, err := job.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, store.Status().RunsCompleted)
	assert.Empty(t, store.Status().LastError)
}

func TestCollectJob_VehicleLoadFailure(t *testing.T) {
	runner := &mockRunner{}
	store := results.NewStore()

	job := NewCollectJob(CollectJobConfig{
		Vehicles: func() ([]domain.Vehicle, error) { return nil, errors.New("file not found") },
		Runner:   runner,
		Writer:   &mockWriter{},
		Store:    store,
	}, quietLog())

	_, err := job.Execute(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load vehicles")
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
	assert.Equal(t, 1, store.Status().RunsFailed)
	_, ok := store.Latest()
	assert.False(t, ok)
}

func TestCollectJob_PipelineErrorKeepsPreviousSnapshot(t *testing.T) {
	snap := testSnapshot()
	store := results.NewStore()
	require.NoError(t, store.Begin())
	store.Finish(snap, nil)

	runner := &mockRunner{}
	runner.On("Run", mock.Anything, mock.Anything).Return(domain.Snapshot{}, domain.ErrNoVehicles)
	writer := &mockWriter{}

	job := NewCollectJob(CollectJobConfig{
		Vehicles: func() ([]domain.Vehicle, error) { return nil, nil },
		Runner:   runner,
		Writer:   writer,
		Store:    store,
	}, quietLog())

	_, err := job.Execute(context.Background())

	require.ErrorIs(t, err, domain.ErrNoVehicles)
	writer.AssertNotCalled(t, "WriteRun", mock.Anything)
	latest, ok := store.Latest()
	require.True(t, ok)
	assert.Equal(t, "run-1", latest.RunID)
}

func TestCollectJob_WriteFailureFailsRun(t *testing.T) {
	snap := testSnapshot()
	runner := &mockRunner{}
	runner.On("Run", mock.Anything, testVehicles).Return(snap, nil)
	writer := &mockWriter{}
	writer.On("WriteRun", snap).Return(nil, errors.New("disk full"))
	sink := &mockSink{}

	job := NewCollectJob(CollectJobConfig{
		Vehicles: fixedVehicles, Runner: runner, Writer: writer, Sink: sink,
	}, quietLog())

	_, err := job.Execute(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	sink.AssertNotCalled(t, "Post", mock.Anything, mock.Anything)
}

func TestCollectJob_TriggerRunRejectsOverlap(t *testing.T) {
	snap := testSnapshot()
	runner := &mockRunner{block: make(chan struct{})}
	runner.On("Run", mock.Anything, testVehicles).Return(snap, nil)
	writer := &mockWriter{}
	writer.On("WriteRun", snap).Return([]string{}, nil)
	store := results.NewStore()

	job := NewCollectJob(CollectJobConfig{
		Vehicles: fixedVehicles, Runner: runner, Writer: writer, Store: store,
	}, quietLog())

	require.NoError(t, job.TriggerRun())
	assert.ErrorIs(t, job.TriggerRun(), results.ErrRunInProgress)

	// A scheduled tick during the run is skipped without error.
	assert.NoError(t, job.Run())

	close(runner.block)
	job.Wait()

	assert.False(t, store.Status().Running)
	assert.Equal(t, 1, store.Status().RunsCompleted)
	runner.AssertNumberOfCalls(t, "Run", 1)
}

func TestCollectJob_TimeoutBoundsRun(t *testing.T) {
	var deadline time.Time
	runner := &mockRunner{}
	runner.On("Run", mock.Anything, testVehicles).
		Run(func(args mock.Arguments) {
			deadline, _ = args.Get(0).(context.Context).Deadline()
		}).
		Return(domain.Snapshot{}, context.DeadlineExceeded)

	job := NewCollectJob(CollectJobConfig{
		Vehicles: fixedVehicles, Runner: runner, Writer: &mockWriter{}, Timeout: time.Hour,
	}, quietLog())

	_, err := job.Execute(context.Background())

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, deadline.IsZero())
}
