package workers

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kirin-w/timelinebackend/config"
	"github.com/kirin-w/timelinebackend/media"
	"github.com/kirin-w/timelinebackend/realtime"
	"github.com/kirin-w/timelinebackend/repository"
)

// TaskType constants
const (
	TaskImport  = "import"
	TaskArchive = "archive"
)

// ImportJob describes one unit of background work. Import jobs carry the
// batch bookkeeping used for progress events and cancellation; archive jobs
// only need the timeline.
type ImportJob struct {
	TaskType   string
	TimelineID uint
	PhotoID    uint
	RelPath    string // photo file path relative to the media storage root
	BatchID    string
	BatchIndex int
	BatchTotal int
}

// EventBroadcaster is the hub surface the workers need.
type EventBroadcaster interface {
	Broadcast(event realtime.Event)
}

type ImportProcessor struct {
	JobQueue     chan ImportJob
	Config       config.Config
	TimelineRepo repository.TimelineRepositoryInterface
	PhotoRepo    repository.PhotoRepositoryInterface
	Store        media.Store
	Cache        *media.ImageCache
	Hub          EventBroadcaster
	Wg           sync.WaitGroup
	StopChan     chan struct{}
	Pending      map[string]bool
	Cancelled    map[string]bool // batch IDs whose remaining items are skipped
	BatchDone    map[string]int  // completed slots per in-flight batch
	Mutex        sync.Mutex
}

func NewImportProcessor(
	cfg config.Config,
	timelineRepo repository.TimelineRepositoryInterface,
	photoRepo repository.PhotoRepositoryInterface,
	store media.Store,
	cache *media.ImageCache,
	hub EventBroadcaster,
) *ImportProcessor {
	numWorkers := cfg.NumImportWorkers
	if numWorkers <= 0 {
		numWorkers = 1
	}
	queueSize := cfg.ImportQueueSize
	if queueSize <= 0 {
		queueSize = 100
	}
	proc := &ImportProcessor{
		JobQueue:     make(chan ImportJob, queueSize),
		Config:       cfg,
		TimelineRepo: timelineRepo,
		PhotoRepo:    photoRepo,
		Store:        store,
		Cache:        cache,
		Hub:          hub,
		StopChan:     make(chan struct{}),
		Pending:      make(map[string]bool),
		Cancelled:    make(map[string]bool),
		BatchDone:    make(map[string]int),
	}
	proc.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go proc.worker(i)
	}
	log.Printf("Started %d import worker(s) with queue size %d", numWorkers, queueSize)
	return proc
}

func (ip *ImportProcessor) worker(id int) {
	defer ip.Wg.Done()

	log.Printf("Import worker %d started", id)
	for {
		select {
		case job, ok := <-ip.JobQueue:
			if !ok {
				log.Printf("Import worker %d stopping: Job queue closed", id)
				return
			}

			pendingKey := ip.pendingKey(job)
			log.Printf("Worker %d: Received job type '%s' for timeline %d", id, job.TaskType, job.TimelineID)

			switch job.TaskType {
			case TaskImport:
				ip.processImportJob(job)
			case TaskArchive:
				ip.processArchiveJob(job)
			default:
				log.Printf("Worker %d: ERROR unknown task type '%s'", id, job.TaskType)
			}

			ip.Mutex.Lock()
			delete(ip.Pending, pendingKey)
			ip.Mutex.Unlock()

		case <-ip.StopChan:
			log.Printf("Import worker %d stopping: Stop signal received", id)
			return
		}
	}
}

func (ip *ImportProcessor) pendingKey(job ImportJob) string {
	if job.TaskType == TaskImport {
		return fmt.Sprintf("%s:%d", job.TaskType, job.PhotoID)
	}
	return fmt.Sprintf("%s:%d", job.TaskType, job.TimelineID)
}

// processImportJob extracts metadata for a freshly saved photo, stores it on
// the record, and pre-warms the thumbnail cache. Each item ends with a
// progress event so clients can render the batch advancing.
func (ip *ImportProcessor) processImportJob(job ImportJob) {
	if ip.isBatchCancelled(job.BatchID) {
		log.Printf("Worker: Skipping photo %d, batch %s was cancelled", job.PhotoID, job.BatchID)
		ip.finishBatchItem(job, "skipped", nil)
		return
	}

	var taskErr error
	fullPath, err := ip.Store.GetFullPath(job.RelPath)
	if err != nil {
		taskErr = fmt.Errorf("failed to resolve photo path: %w", err)
	} else if _, statErr := os.Stat(fullPath); statErr != nil {
		taskErr = fmt.Errorf("photo file not accessible: %w", statErr)
	} else {
		meta, metaErr := media.ExtractMetadata(fullPath)
		if metaErr != nil {
			// metadata is best effort, the photo stays usable without it
			log.Printf("Worker: metadata extraction failed for %s: %v", job.RelPath, metaErr)
		} else if dbErr := ip.PhotoRepo.ApplyMetadata(job.PhotoID, meta); dbErr != nil {
			taskErr = fmt.Errorf("failed to store metadata: %w", dbErr)
		}

		if taskErr == nil {
			warmSize := media.Size{Width: ip.Config.ThumbnailMaxSize, Height: ip.Config.ThumbnailMaxSize}
			ip.Cache.Warm(context.Background(), job.RelPath, warmSize)
		}
	}

	status := "done"
	if taskErr != nil {
		status = "error"
		log.Printf("Worker: ERROR importing photo %d (%s): %v", job.PhotoID, job.RelPath, taskErr)
	}
	ip.finishBatchItem(job, status, taskErr)

	if ip.Config.ImportPauseMs > 0 {
		time.Sleep(time.Duration(ip.Config.ImportPauseMs) * time.Millisecond)
	}
}

// finishBatchItem records one finished batch slot and broadcasts progress.
// Items run on parallel workers and complete in any order, so the terminal
// event is driven by the completed-slot count, never by the item's index.
func (ip *ImportProcessor) finishBatchItem(job ImportJob, status string, taskErr error) {
	event := realtime.Event{
		Type:       realtime.EventImportProgress,
		TimelineID: job.TimelineID,
		PhotoID:    job.PhotoID,
		Status:     status,
		Extra: map[string]interface{}{
			"batch_id": job.BatchID,
			"index":    job.BatchIndex,
			"total":    job.BatchTotal,
		},
	}
	if taskErr != nil {
		event.Error = taskErr.Error()
	}
	if ip.batchSlotDone(job.BatchID, job.BatchTotal) {
		event.Type = realtime.EventImportDone
	}
	ip.Hub.Broadcast(event)
}

// batchSlotDone counts a completed slot and reports whether it was the
// batch's last. Finished batches drop their bookkeeping, including any
// cancellation flag.
func (ip *ImportProcessor) batchSlotDone(batchID string, total int) bool {
	if batchID == "" || total <= 0 {
		return false
	}
	ip.Mutex.Lock()
	defer ip.Mutex.Unlock()
	ip.BatchDone[batchID]++
	if ip.BatchDone[batchID] < total {
		return false
	}
	delete(ip.BatchDone, batchID)
	delete(ip.Cancelled, batchID)
	return true
}

// ReportDropped accounts for a batch slot that never made it onto the queue.
// The slot still counts toward batch completion and the failure is surfaced
// to clients; without this a full queue would leave the batch open forever.
func (ip *ImportProcessor) ReportDropped(job ImportJob) {
	log.Printf("Worker: photo %d of batch %s dropped, import queue full", job.PhotoID, job.BatchID)
	ip.finishBatchItem(job, "error", fmt.Errorf("import queue full"))
}

// processArchiveJob builds a zip of every photo in the timeline and records
// the result on the timeline row.
func (ip *ImportProcessor) processArchiveJob(job ImportJob) {
	if err := ip.TimelineRepo.MarkZipProcessing(job.TimelineID); err != nil {
		log.Printf("Worker: ERROR marking zip processing for timeline %d: %v. Skipping job.", job.TimelineID, err)
		return
	}
	ip.Hub.Broadcast(realtime.Event{
		Type:       realtime.EventArchiveStatus,
		TimelineID: job.TimelineID,
		Status:     "processing",
	})

	var taskErr error
	var zipPathPtr *string
	var zipSizePtr *int64

	photos, err := ip.PhotoRepo.ListByTimelineID(job.TimelineID)
	if err != nil {
		taskErr = fmt.Errorf("failed to list photos for archive: %w", err)
	} else {
		relPaths := make([]string, 0, len(photos))
		for i := range photos {
			relPaths = append(relPaths, photos[i].FilePath)
		}
		zipPath, zipSize, zipErr := buildTimelineZip(ip.Config, relPaths)
		if zipErr != nil {
			taskErr = fmt.Errorf("archive creation failed: %w", zipErr)
		} else {
			// stored relative to the media root like every other asset path
			relZip, relErr := filepath.Rel(ip.Config.MediaStoragePath, zipPath)
			if relErr != nil {
				taskErr = fmt.Errorf("failed to relativize archive path: %w", relErr)
			} else {
				relZip = filepath.ToSlash(relZip)
				zipPathPtr = &relZip
				zipSizePtr = &zipSize
			}
		}
	}

	if taskErr != nil {
		log.Printf("Worker: ERROR archiving timeline %d: %v", job.TimelineID, taskErr)
	}
	if dbErr := ip.TimelineRepo.SetZipResult(job.TimelineID, zipPathPtr, zipSizePtr, taskErr); dbErr != nil {
		log.Printf("Worker: ERROR updating zip result for timeline %d: %v", job.TimelineID, dbErr)
	}

	event := realtime.Event{
		Type:       realtime.EventArchiveStatus,
		TimelineID: job.TimelineID,
		Status:     "done",
	}
	if taskErr != nil {
		event.Status = "error"
		event.Error = taskErr.Error()
	}
	ip.Hub.Broadcast(event)
}

// QueueJob queues a job if an equivalent one is not already pending
func (ip *ImportProcessor) QueueJob(job ImportJob) bool {
	pendingKey := ip.pendingKey(job)

	ip.Mutex.Lock()
	if ip.Pending[pendingKey] {
		ip.Mutex.Unlock()
		return false
	}
	ip.Pending[pendingKey] = true
	ip.Mutex.Unlock()

	select {
	case ip.JobQueue <- job:
		return true
	default:
		log.Printf("WARNING: Import job queue full. Failed to queue task '%s' for timeline %d", job.TaskType, job.TimelineID)
		ip.Mutex.Lock()
		delete(ip.Pending, pendingKey)
		ip.Mutex.Unlock()
		return false
	}
}

// CancelBatch marks a batch so its remaining queued items are skipped.
// Already processed photos keep their records and thumbnails.
func (ip *ImportProcessor) CancelBatch(batchID string) {
	if batchID == "" {
		return
	}
	ip.Mutex.Lock()
	ip.Cancelled[batchID] = true
	ip.Mutex.Unlock()
	log.Printf("Import batch %s cancelled", batchID)
}

func (ip *ImportProcessor) isBatchCancelled(batchID string) bool {
	if batchID == "" {
		return false
	}
	ip.Mutex.Lock()
	defer ip.Mutex.Unlock()
	return ip.Cancelled[batchID]
}

func (ip *ImportProcessor) Stop() {
	log.Println("Stopping import workers...")
	close(ip.StopChan)
	ip.Wg.Wait()
	log.Println("All import workers stopped")
}
