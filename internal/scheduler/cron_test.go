package scheduler

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/malsync/internal/cache"
)

type fakeImporter struct {
	empty    bool
	block    bool // Import waits for cancellation
	imports  int32
	finished int32
}

func (f *fakeImporter) Import(ctx context.Context) (int, error) {
	atomic.AddInt32(&f.imports, 1)
	defer atomic.AddInt32(&f.finished, 1)
	if f.block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return 3, nil
}

func (f *fakeImporter) NeedsImport() (bool, error) {
	return f.empty, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestStart_ImportsIntoEmptyStore(t *testing.T) {
	importer := &fakeImporter{empty: true}
	s := NewScheduler(importer, "0 4 * * *", nil, testLogger())
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&importer.imports) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestStart_SkipsImportWhenPopulated(t *testing.T) {
	importer := &fakeImporter{}
	s := NewScheduler(importer, "0 4 * * *", nil, testLogger())
	require.NoError(t, s.Start())

	time.Sleep(50 * time.Millisecond)
	s.Stop()
	assert.Zero(t, atomic.LoadInt32(&importer.imports))
}

func TestStart_InvalidSpec(t *testing.T) {
	s := NewScheduler(&fakeImporter{}, "not a cron spec", nil, testLogger())
	assert.Error(t, s.Start())
}

func TestReportCaches(t *testing.T) {
	lru, err := cache.NewLRU[string, int]("test_report", 2)
	require.NoError(t, err)
	lru.Add("a", 1)

	s := NewScheduler(&fakeImporter{}, "0 4 * * *", []cache.Named{lru}, testLogger())
	assert.NotPanics(t, s.reportCaches)
}

func TestStop_WaitsForInitialImport(t *testing.T) {
	importer := &fakeImporter{empty: true, block: true}
	s := NewScheduler(importer, "0 4 * * *", nil, testLogger())
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&importer.imports) == 1
	}, time.Second, 10*time.Millisecond)

	s.Stop()
	assert.EqualValues(t, 1, atomic.LoadInt32(&importer.finished))
}

func TestTriggerImport(t *testing.T) {
	importer := &fakeImporter{block: true}
	s := NewScheduler(importer, "0 4 * * *", nil, testLogger())
	require.NoError(t, s.Start())

	assert.True(t, s.TriggerImport())
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&importer.imports) == 1
	}, time.Second, 10*time.Millisecond)

	// Only one refresh runs at a time
	assert.False(t, s.TriggerImport())

	s.Stop()
	assert.EqualValues(t, 1, atomic.LoadInt32(&importer.finished))
	assert.False(t, s.TriggerImport())
}
