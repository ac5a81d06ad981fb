package workers

import (
	"fmt"
	"image/color"
	"path/filepath"
	"sync"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/kirin-w/timelinebackend/config"
	"github.com/kirin-w/timelinebackend/media"
	"github.com/kirin-w/timelinebackend/models"
	"github.com/kirin-w/timelinebackend/realtime"
)

// eventRecorder captures broadcasts so tests can assert on the event stream.
type eventRecorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (er *eventRecorder) Broadcast(event realtime.Event) {
	er.mu.Lock()
	defer er.mu.Unlock()
	er.events = append(er.events, event)
}

func (er *eventRecorder) all() []realtime.Event {
	er.mu.Lock()
	defer er.mu.Unlock()
	out := make([]realtime.Event, len(er.events))
	copy(out, er.events)
	return out
}

type stubTimelineRepo struct{}

func (s *stubTimelineRepo) Create(timeline *models.Timeline) error { return nil }
func (s *stubTimelineRepo) ListAll() ([]models.Timeline, error)   { return nil, nil }
func (s *stubTimelineRepo) GetByID(id uint) (*models.Timeline, error) {
	return &models.Timeline{}, nil
}
func (s *stubTimelineRepo) Update(timelineID uint, title string, baseDate *int64, icon, color *string) error {
	return nil
}
func (s *stubTimelineRepo) SetMilestonesData(timelineID uint, data []byte) error { return nil }
func (s *stubTimelineRepo) SetCoverPhoto(timelineID uint, photoID *uint) error   { return nil }
func (s *stubTimelineRepo) RequestZip(timelineID uint) error                     { return nil }
func (s *stubTimelineRepo) MarkZipProcessing(timelineID uint) error              { return nil }
func (s *stubTimelineRepo) SetZipResult(timelineID uint, zipPath *string, zipSize *int64, taskErr error) error {
	return nil
}
func (s *stubTimelineRepo) Delete(id uint) error { return nil }

// stubPhotoRepo records which photos got their metadata applied.
type stubPhotoRepo struct {
	mu      sync.Mutex
	applied []uint
}

func (s *stubPhotoRepo) Create(photo *models.Photo) error                        { return nil }
func (s *stubPhotoRepo) GetByID(id uint) (*models.Photo, error)                  { return &models.Photo{}, nil }
func (s *stubPhotoRepo) ListByTimelineID(timelineID uint) ([]models.Photo, error) { return nil, nil }
func (s *stubPhotoRepo) SetManualDate(photoID uint, manualAt *int64) error       { return nil }
func (s *stubPhotoRepo) SetNotes(photoID uint, notes *string) error              { return nil }
func (s *stubPhotoRepo) Delete(id uint) error                                    { return nil }
func (s *stubPhotoRepo) DeleteByTimelineID(timelineID uint) ([]models.Photo, error) {
	return nil, nil
}

func (s *stubPhotoRepo) ApplyMetadata(photoID uint, meta *media.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, photoID)
	return nil
}

func (s *stubPhotoRepo) appliedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.applied)
}

// newTestProcessor builds a processor with no running workers so tests can
// drive processImportJob directly and inspect state without races.
func newTestProcessor(t *testing.T, queueSize int) (*ImportProcessor, *stubPhotoRepo, *eventRecorder) {
	t.Helper()
	root := t.TempDir()
	store, err := media.NewLocalStorage(root, map[media.AssetType]string{
		media.AssetTypeOriginal:  "photos",
		media.AssetTypeThumbnail: "thumbnails",
		media.AssetTypeArchive:   "archives",
	})
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	photoRepo := &stubPhotoRepo{}
	recorder := &eventRecorder{}
	proc := &ImportProcessor{
		JobQueue: make(chan ImportJob, queueSize),
		Config: config.Config{
			MediaStoragePath: root,
			ThumbnailMaxSize: 64,
			DisplayScale:     1,
		},
		TimelineRepo: &stubTimelineRepo{},
		PhotoRepo:    photoRepo,
		Store:        store,
		Cache:        media.NewImageCache(store, media.NewProcessor(), 16, 8<<20, 1),
		Hub:          recorder,
		StopChan:     make(chan struct{}),
		Pending:      make(map[string]bool),
		Cancelled:    make(map[string]bool),
		BatchDone:    make(map[string]int),
	}
	return proc, photoRepo, recorder
}

// writeBatchPhoto drops a real JPEG into the originals directory and returns
// its store-relative path.
func writeBatchPhoto(t *testing.T, proc *ImportProcessor, name string) string {
	t.Helper()
	dir, err := proc.Store.GetFullPath("photos")
	if err != nil {
		t.Fatalf("GetFullPath(photos) error = %v", err)
	}
	img := imaging.New(32, 32, color.White)
	if err := imaging.Save(img, filepath.Join(dir, name)); err != nil {
		t.Fatalf("failed to write test photo: %v", err)
	}
	return "photos/" + name
}

func batchJob(proc *ImportProcessor, t *testing.T, photoID uint, batchID string, index, total int) ImportJob {
	t.Helper()
	relPath := writeBatchPhoto(t, proc, fmt.Sprintf("p%d.jpg", photoID))
	return ImportJob{
		TaskType:   TaskImport,
		TimelineID: 1,
		PhotoID:    photoID,
		RelPath:    relPath,
		BatchID:    batchID,
		BatchIndex: index,
		BatchTotal: total,
	}
}

func TestQueueJob_DeduplicatesPending(t *testing.T) {
	proc, _, _ := newTestProcessor(t, 8)
	job := ImportJob{TaskType: TaskImport, TimelineID: 1, PhotoID: 7}

	if !proc.QueueJob(job) {
		t.Fatal("first QueueJob() = false, want true")
	}
	if proc.QueueJob(job) {
		t.Error("second QueueJob() for the same photo = true, want false")
	}
}

func TestQueueJob_FullQueueCleansPending(t *testing.T) {
	proc, _, _ := newTestProcessor(t, 1)

	if !proc.QueueJob(ImportJob{TaskType: TaskImport, TimelineID: 1, PhotoID: 1}) {
		t.Fatal("QueueJob() into empty queue = false, want true")
	}
	overflow := ImportJob{TaskType: TaskImport, TimelineID: 1, PhotoID: 2}
	if proc.QueueJob(overflow) {
		t.Fatal("QueueJob() into full queue = true, want false")
	}

	proc.Mutex.Lock()
	pending := proc.Pending[proc.pendingKey(overflow)]
	proc.Mutex.Unlock()
	if pending {
		t.Error("rejected job left its pending key behind")
	}

	// a rejected job must stay requeueable once there is room
	<-proc.JobQueue
	if !proc.QueueJob(overflow) {
		t.Error("QueueJob() after draining the queue = false, want true")
	}
}

func TestProcessImportJob_DoneOnlyAfterAllSlots(t *testing.T) {
	proc, photoRepo, recorder := newTestProcessor(t, 8)
	batchID := "batch-a"
	jobs := []ImportJob{
		batchJob(proc, t, 1, batchID, 1, 3),
		batchJob(proc, t, 2, batchID, 2, 3),
		batchJob(proc, t, 3, batchID, 3, 3),
	}

	// workers run in parallel, so the highest-indexed slot can finish first
	proc.processImportJob(jobs[2])
	proc.processImportJob(jobs[0])
	proc.processImportJob(jobs[1])

	events := recorder.all()
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, event := range events[:2] {
		if event.Type != realtime.EventImportProgress {
			t.Errorf("event %d type = %q, want %q", i, event.Type, realtime.EventImportProgress)
		}
	}
	last := events[2]
	if last.Type != realtime.EventImportDone {
		t.Errorf("final event type = %q, want %q", last.Type, realtime.EventImportDone)
	}
	if last.Status != "done" {
		t.Errorf("final event status = %q, want done", last.Status)
	}
	if got := photoRepo.appliedCount(); got != 3 {
		t.Errorf("ApplyMetadata calls = %d, want 3", got)
	}

	proc.Mutex.Lock()
	_, tracked := proc.BatchDone[batchID]
	proc.Mutex.Unlock()
	if tracked {
		t.Error("finished batch still has a completion counter")
	}
}

func TestProcessImportJob_CancelledBatchStillCompletes(t *testing.T) {
	proc, photoRepo, recorder := newTestProcessor(t, 8)
	batchID := "batch-b"
	first := batchJob(proc, t, 1, batchID, 1, 2)
	second := batchJob(proc, t, 2, batchID, 2, 2)

	proc.processImportJob(first)
	proc.CancelBatch(batchID)
	proc.processImportJob(second)

	if got := photoRepo.appliedCount(); got != 1 {
		t.Errorf("ApplyMetadata calls = %d, want 1 (cancelled slot must be skipped)", got)
	}

	events := recorder.all()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[1].Status != "skipped" {
		t.Errorf("cancelled slot status = %q, want skipped", events[1].Status)
	}
	if events[1].Type != realtime.EventImportDone {
		t.Errorf("final event type = %q, want %q", events[1].Type, realtime.EventImportDone)
	}

	proc.Mutex.Lock()
	cancelled := proc.Cancelled[batchID]
	proc.Mutex.Unlock()
	if cancelled {
		t.Error("finished batch still flagged cancelled")
	}
}

func TestReportDropped_CountsTowardCompletion(t *testing.T) {
	proc, _, recorder := newTestProcessor(t, 8)
	batchID := "batch-c"
	first := batchJob(proc, t, 1, batchID, 1, 2)
	second := batchJob(proc, t, 2, batchID, 2, 2)

	proc.processImportJob(first)
	proc.ReportDropped(second)

	events := recorder.all()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	last := events[1]
	if last.Type != realtime.EventImportDone {
		t.Errorf("final event type = %q, want %q (dropped slot must close the batch)", last.Type, realtime.EventImportDone)
	}
	if last.Status != "error" {
		t.Errorf("dropped slot status = %q, want error", last.Status)
	}
	if last.Error == "" {
		t.Error("dropped slot event carries no error message")
	}
}
