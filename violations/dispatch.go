/*
dispatch.go - Fire-and-forget enrichment dispatch

DESIGN:
  Every dispatch runs on its own goroutine with a context detached from the
  caller's cancellation, so finishing an HTTP request or a sweep never
  cancels an in-flight dispatch. There is no worker pool and no retry here:
  a failed dispatch leaves the record unenriched and the self-healing queue
  selects it again on the next drain.

SEE ALSO:
  - queue.go: Drain, which dispatches queued candidates
  - enrichment/client.go: The HTTP worker client
*/
package violations

import (
	"context"
	"log"
	"net/url"
	"strings"
	"sync"
)

// =============================================================================
// LINK TEMPLATES
// =============================================================================

// RefPlaceholder is substituted with the reference number in link templates.
const RefPlaceholder = "{ref}"

// LinkTemplates derive the two evidentiary links of a record.
type LinkTemplates struct {
	Document string
	Video    string
}

// DefaultLinkTemplates point at the public ticket image and video evidence
// endpoints.
var DefaultLinkTemplates = LinkTemplates{
	Document: "https://a820-ecbticketfinder.nyc.gov/GetViolationImage?violationNumber={ref}",
	Video:    "https://nycidling.azurewebsites.net/idlingevidence/video/{ref}",
}

// Build returns the document and video links for a reference number.
func (t LinkTemplates) Build(referenceNumber string) (document, video string) {
	ref := url.PathEscape(referenceNumber)
	return strings.ReplaceAll(t.Document, RefPlaceholder, ref),
		strings.ReplaceAll(t.Video, RefPlaceholder, ref)
}

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher invokes the enrichment worker asynchronously.
type Dispatcher struct {
	worker   EnrichmentWorker
	recorder Recorder
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher. recorder may be nil.
func NewDispatcher(worker EnrichmentWorker, recorder Recorder) *Dispatcher {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Dispatcher{worker: worker, recorder: recorder}
}

// NewEnrichmentRequest builds the minimal worker payload for a record.
func NewEnrichmentRequest(rec CaseRecord) EnrichmentRequest {
	return EnrichmentRequest{
		CaseID:          rec.ID,
		ReferenceNumber: rec.ReferenceNumber,
		DocumentURL:     rec.DocumentURL,
		VideoURL:        rec.VideoURL,
		ViolationDate:   rec.ViolationDate,
	}
}

// Enabled reports whether a worker is configured.
func (d *Dispatcher) Enabled() bool {
	return d != nil && d.worker != nil
}

// Dispatch returns immediately, reporting whether a job was started.
// Worker errors are logged, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, rec CaseRecord) bool {
	if !d.Enabled() {
		return false
	}
	req := NewEnrichmentRequest(rec)
	detached := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[Dispatch] Panic dispatching %s: %v", req.ReferenceNumber, r)
			}
		}()

		err := d.worker.Enqueue(detached, req)
		d.recorder.Dispatched(err)
		if err != nil {
			log.Printf("[Dispatch] Enrichment request for %s failed: %v", req.ReferenceNumber, err)
			return
		}
		log.Printf("[Dispatch] Enrichment requested for %s", req.ReferenceNumber)
	}()
	return true
}

// Wait blocks until every in-flight dispatch has returned.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
