package violations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWorker struct {
	mu       sync.Mutex
	requests []EnrichmentRequest
	ctxErrs  []error
	err      error
	panics   bool
}

func (w *recordingWorker) Enqueue(ctx context.Context, req EnrichmentRequest) error {
	if w.panics {
		panic("worker exploded")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.requests = append(w.requests, req)
	w.ctxErrs = append(w.ctxErrs, ctx.Err())
	return w.err
}

type countingRecorder struct {
	NopRecorder
	mu       sync.Mutex
	ok, fail int
}

func (r *countingRecorder) Dispatched(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.fail++
		return
	}
	r.ok++
}

func TestLinkTemplates_Build(t *testing.T) {
	doc, video := DefaultLinkTemplates.Build("0123456789")
	assert.Equal(t, "https://a820-ecbticketfinder.nyc.gov/GetViolationImage?violationNumber=0123456789", doc)
	assert.Equal(t, "https://nycidling.azurewebsites.net/idlingevidence/video/0123456789", video)

	custom := LinkTemplates{Document: "https://docs.example/{ref}.pdf", Video: "https://video.example/v?id={ref}"}
	doc, video = custom.Build("A/1")
	assert.Equal(t, "https://docs.example/A%2F1.pdf", doc)
	assert.Equal(t, "https://video.example/v?id=A%2F1", video)
}

func TestDispatcher_SendsMinimalRequest(t *testing.T) {
	worker := &recordingWorker{}
	d := NewDispatcher(worker, nil)

	violationDate := time.Date(2024, time.February, 3, 0, 0, 0, 0, time.UTC)
	rec := CaseRecord{
		ID:              "case-1",
		ReferenceNumber: "0123456789",
		DocumentURL:     "https://docs.example/0123456789",
		VideoURL:        "https://video.example/0123456789",
		ViolationDate:   &violationDate,
		Narrative:       "not sent",
	}

	d.Dispatch(context.Background(), rec)
	d.Wait()

	require.Len(t, worker.requests, 1)
	assert.Equal(t, EnrichmentRequest{
		CaseID:          "case-1",
		ReferenceNumber: "0123456789",
		DocumentURL:     "https://docs.example/0123456789",
		VideoURL:        "https://video.example/0123456789",
		ViolationDate:   &violationDate,
	}, worker.requests[0])
}

func TestDispatcher_DetachedFromCallerCancellation(t *testing.T) {
	// GIVEN: The caller's context is already cancelled
	// WHEN: Dispatching
	// THEN: The worker still sees a live context

	worker := &recordingWorker{}
	d := NewDispatcher(worker, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d.Dispatch(ctx, CaseRecord{ID: "case-1", ReferenceNumber: "1"})
	d.Wait()

	require.Len(t, worker.ctxErrs, 1)
	assert.NoError(t, worker.ctxErrs[0])
}

func TestDispatcher_FailuresAreRecordedNotReturned(t *testing.T) {
	worker := &recordingWorker{err: errors.New("worker down")}
	recorder := &countingRecorder{}
	d := NewDispatcher(worker, recorder)

	d.Dispatch(context.Background(), CaseRecord{ID: "case-1", ReferenceNumber: "1"})
	d.Dispatch(context.Background(), CaseRecord{ID: "case-2", ReferenceNumber: "2"})
	d.Wait()

	assert.Equal(t, 2, recorder.fail)
	assert.Equal(t, 0, recorder.ok)
}

func TestDispatcher_PanicIsContained(t *testing.T) {
	d := NewDispatcher(&recordingWorker{panics: true}, nil)

	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), CaseRecord{ID: "case-1", ReferenceNumber: "1"})
		d.Wait()
	})
}

func TestDispatcher_NilIsNoop(t *testing.T) {
	var d *Dispatcher
	assert.False(t, d.Enabled())
	assert.NotPanics(t, func() {
		assert.False(t, d.Dispatch(context.Background(), CaseRecord{}))
		d.Wait()
	})

	d = NewDispatcher(nil, nil)
	assert.False(t, d.Enabled())
	assert.NotPanics(t, func() {
		assert.False(t, d.Dispatch(context.Background(), CaseRecord{}))
		d.Wait()
	})
}

func TestDispatcher_ReportsStartedJobs(t *testing.T) {
	d := NewDispatcher(&recordingWorker{}, nil)

	assert.True(t, d.Enabled())
	assert.True(t, d.Dispatch(context.Background(), CaseRecord{ID: "case-1", ReferenceNumber: "1"}))
	d.Wait()
}
