package repository_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/kirin-w/timelinebackend/database"
	"github.com/kirin-w/timelinebackend/media"
	"github.com/kirin-w/timelinebackend/models"
	"github.com/kirin-w/timelinebackend/repository"
	"github.com/kirin-w/timelinebackend/timeline"
)

func setupRepos(t *testing.T) (*repository.TimelineRepository, *repository.PhotoRepository) {
	t.Helper()
	db, err := database.InitGormDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("InitGormDB() error = %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		t.Fatalf("AutoMigrateModels() error = %v", err)
	}
	return repository.NewTimelineRepository(db), repository.NewPhotoRepository(db)
}

func createTimeline(t *testing.T, repo *repository.TimelineRepository, title string) *models.Timeline {
	t.Helper()
	tl := &models.Timeline{
		Title:    title,
		BaseDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
		Icon:     "heart.fill",
		Color:    "#FF69B4",
	}
	if err := repo.Create(tl); err != nil {
		t.Fatalf("Create(%q) error = %v", title, err)
	}
	return tl
}

func createPhoto(t *testing.T, repo *repository.PhotoRepository, timelineID uint, filePath string) *models.Photo {
	t.Helper()
	photo := &models.Photo{
		TimelineID: timelineID,
		FilePath:   filePath,
		AddedAt:    time.Now().Unix(),
	}
	if err := repo.Create(photo); err != nil {
		t.Fatalf("Create(%q) error = %v", filePath, err)
	}
	return photo
}

func TestTimelineRepository_CreateAndGet(t *testing.T) {
	timelineRepo, _ := setupRepos(t)
	created := createTimeline(t, timelineRepo, "宝宝成长")

	got, err := timelineRepo.GetByID(created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Title != "宝宝成长" {
		t.Errorf("Title = %q, want 宝宝成长", got.Title)
	}
	if got.BaseDate != created.BaseDate {
		t.Errorf("BaseDate = %d, want %d", got.BaseDate, created.BaseDate)
	}
	if got.ZipStatus != database.StatusNotRequired {
		t.Errorf("ZipStatus = %q, want %q", got.ZipStatus, database.StatusNotRequired)
	}
	if got.MilestonesData != nil {
		t.Errorf("MilestonesData = %v, want nil for a fresh timeline", got.MilestonesData)
	}
}

func TestTimelineRepository_GetMissing(t *testing.T) {
	timelineRepo, _ := setupRepos(t)
	if _, err := timelineRepo.GetByID(9999); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("GetByID(9999) error = %v, want gorm.ErrRecordNotFound", err)
	}
}

func TestTimelineRepository_PartialUpdate(t *testing.T) {
	timelineRepo, _ := setupRepos(t)
	created := createTimeline(t, timelineRepo, "first year")

	newIcon := "star.fill"
	if err := timelineRepo.Update(created.ID, "renamed", nil, &newIcon, nil); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := timelineRepo.GetByID(created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Title != "renamed" {
		t.Errorf("Title = %q, want renamed", got.Title)
	}
	if got.Icon != "star.fill" {
		t.Errorf("Icon = %q, want star.fill", got.Icon)
	}
	if got.BaseDate != created.BaseDate {
		t.Errorf("BaseDate changed on partial update: %d != %d", got.BaseDate, created.BaseDate)
	}
	if got.Color != created.Color {
		t.Errorf("Color changed on partial update: %q != %q", got.Color, created.Color)
	}
}

func TestTimelineRepository_UpdateMissing(t *testing.T) {
	timelineRepo, _ := setupRepos(t)
	if err := timelineRepo.Update(9999, "nope", nil, nil, nil); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("Update(9999) error = %v, want gorm.ErrRecordNotFound", err)
	}
}

func TestTimelineRepository_MilestonesRoundTrip(t *testing.T) {
	timelineRepo, _ := setupRepos(t)
	created := createTimeline(t, timelineRepo, "ms")

	custom := []timeline.Milestone{
		{Kind: timeline.MilestoneKindCustom, Days: 50, Title: "第50天", Icon: "flag.fill"},
	}
	data, err := timeline.EncodeMilestones(custom)
	if err != nil {
		t.Fatalf("EncodeMilestones() error = %v", err)
	}
	if err := timelineRepo.SetMilestonesData(created.ID, data); err != nil {
		t.Fatalf("SetMilestonesData() error = %v", err)
	}

	got, err := timelineRepo.GetByID(created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	decoded := timeline.MilestonesFromBlob(got.MilestonesData)
	if len(decoded) != 1 || decoded[0].Days != 50 || decoded[0].Title != "第50天" {
		t.Errorf("decoded milestones = %+v, want the stored custom set", decoded)
	}

	// nil blob resets to defaults
	if err := timelineRepo.SetMilestonesData(created.ID, nil); err != nil {
		t.Fatalf("SetMilestonesData(nil) error = %v", err)
	}
	got, err = timelineRepo.GetByID(created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.MilestonesData != nil {
		t.Errorf("MilestonesData = %v after reset, want nil", got.MilestonesData)
	}
	if n := len(timeline.MilestonesFromBlob(got.MilestonesData)); n != len(timeline.DefaultMilestones()) {
		t.Errorf("decoded %d milestones after reset, want default set", n)
	}
}

func TestTimelineRepository_ZipLifecycle(t *testing.T) {
	timelineRepo, _ := setupRepos(t)
	created := createTimeline(t, timelineRepo, "zip")

	if err := timelineRepo.RequestZip(created.ID); err != nil {
		t.Fatalf("RequestZip() error = %v", err)
	}
	got, _ := timelineRepo.GetByID(created.ID)
	if got.ZipStatus != database.StatusPending {
		t.Fatalf("ZipStatus = %q after request, want pending", got.ZipStatus)
	}
	if got.ZipLastRequestedAt == nil {
		t.Error("ZipLastRequestedAt not set by RequestZip")
	}

	if err := timelineRepo.MarkZipProcessing(created.ID); err != nil {
		t.Fatalf("MarkZipProcessing() error = %v", err)
	}
	got, _ = timelineRepo.GetByID(created.ID)
	if got.ZipStatus != database.StatusProcessing {
		t.Fatalf("ZipStatus = %q, want processing", got.ZipStatus)
	}

	zipPath := "archives/archive_1_abc.zip"
	zipSize := int64(12345)
	if err := timelineRepo.SetZipResult(created.ID, &zipPath, &zipSize, nil); err != nil {
		t.Fatalf("SetZipResult() error = %v", err)
	}
	got, _ = timelineRepo.GetByID(created.ID)
	if got.ZipStatus != database.StatusDone {
		t.Errorf("ZipStatus = %q, want done", got.ZipStatus)
	}
	if got.ZipPath == nil || *got.ZipPath != zipPath {
		t.Errorf("ZipPath = %v, want %q", got.ZipPath, zipPath)
	}
	if got.ZipSize == nil || *got.ZipSize != zipSize {
		t.Errorf("ZipSize = %v, want %d", got.ZipSize, zipSize)
	}
	if got.ZipLastGeneratedAt == nil {
		t.Error("ZipLastGeneratedAt not set on success")
	}

	if err := timelineRepo.SetZipResult(created.ID, nil, nil, errors.New("disk full")); err != nil {
		t.Fatalf("SetZipResult(err) error = %v", err)
	}
	got, _ = timelineRepo.GetByID(created.ID)
	if got.ZipStatus != database.StatusError {
		t.Errorf("ZipStatus = %q after failure, want error", got.ZipStatus)
	}
	if got.ZipError == nil || *got.ZipError != "disk full" {
		t.Errorf("ZipError = %v, want disk full", got.ZipError)
	}
}

func TestTimelineRepository_Delete(t *testing.T) {
	timelineRepo, _ := setupRepos(t)
	created := createTimeline(t, timelineRepo, "gone")

	if err := timelineRepo.Delete(created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := timelineRepo.GetByID(created.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("GetByID() after delete error = %v, want gorm.ErrRecordNotFound", err)
	}
	if err := timelineRepo.Delete(created.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("second Delete() error = %v, want gorm.ErrRecordNotFound", err)
	}
}

func TestPhotoRepository_ManualDateOverride(t *testing.T) {
	timelineRepo, photoRepo := setupRepos(t)
	tl := createTimeline(t, timelineRepo, "dates")
	photo := createPhoto(t, photoRepo, tl.ID, "photos/a.jpg")

	if photo.HasManualDate() {
		t.Fatal("fresh photo should have no manual date")
	}

	manual := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC).Unix()
	if err := photoRepo.SetManualDate(photo.ID, &manual); err != nil {
		t.Fatalf("SetManualDate() error = %v", err)
	}
	got, err := photoRepo.GetByID(photo.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !got.HasManualDate() || got.CaptureTime().Unix() != manual {
		t.Errorf("CaptureTime = %v, want the manual override", got.CaptureTime())
	}

	// clearing restores the fallback chain
	if err := photoRepo.SetManualDate(photo.ID, nil); err != nil {
		t.Fatalf("SetManualDate(nil) error = %v", err)
	}
	got, err = photoRepo.GetByID(photo.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.HasManualDate() {
		t.Error("manual date survived a clear")
	}
	if got.CaptureTime().Unix() != got.AddedAt {
		t.Errorf("CaptureTime = %v, want fallback to AddedAt", got.CaptureTime())
	}
}

func TestPhotoRepository_ApplyMetadataOnlyPresentFields(t *testing.T) {
	timelineRepo, photoRepo := setupRepos(t)
	tl := createTimeline(t, timelineRepo, "meta")
	photo := createPhoto(t, photoRepo, tl.ID, "photos/b.jpg")

	takenAt := time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC).Unix()
	iso := 200
	if err := photoRepo.ApplyMetadata(photo.ID, &media.Metadata{TakenAt: &takenAt, ISO: &iso}); err != nil {
		t.Fatalf("ApplyMetadata() error = %v", err)
	}

	got, err := photoRepo.GetByID(photo.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.TakenAt == nil || *got.TakenAt != takenAt {
		t.Errorf("TakenAt = %v, want %d", got.TakenAt, takenAt)
	}
	if got.ISO == nil || *got.ISO != iso {
		t.Errorf("ISO = %v, want %d", got.ISO, iso)
	}
	if got.CameraMake != nil || got.Width != nil {
		t.Errorf("absent metadata fields were written: make=%v width=%v", got.CameraMake, got.Width)
	}
	if got.CaptureTime().Unix() != takenAt {
		t.Errorf("CaptureTime = %v, want the EXIF date", got.CaptureTime())
	}

	// nil metadata is a no-op, not an error
	if err := photoRepo.ApplyMetadata(photo.ID, nil); err != nil {
		t.Fatalf("ApplyMetadata(nil) error = %v", err)
	}
}

func TestPhotoRepository_Notes(t *testing.T) {
	timelineRepo, photoRepo := setupRepos(t)
	tl := createTimeline(t, timelineRepo, "notes")
	photo := createPhoto(t, photoRepo, tl.ID, "photos/c.jpg")

	note := "第一次笑"
	if err := photoRepo.SetNotes(photo.ID, &note); err != nil {
		t.Fatalf("SetNotes() error = %v", err)
	}
	got, _ := photoRepo.GetByID(photo.ID)
	if got.Notes == nil || *got.Notes != note {
		t.Errorf("Notes = %v, want %q", got.Notes, note)
	}

	if err := photoRepo.SetNotes(photo.ID, nil); err != nil {
		t.Fatalf("SetNotes(nil) error = %v", err)
	}
	got, _ = photoRepo.GetByID(photo.ID)
	if got.Notes != nil {
		t.Errorf("Notes = %v after clear, want nil", got.Notes)
	}
}

func TestPhotoRepository_DeleteByTimelineID(t *testing.T) {
	timelineRepo, photoRepo := setupRepos(t)
	tl := createTimeline(t, timelineRepo, "bulk")
	other := createTimeline(t, timelineRepo, "other")

	createPhoto(t, photoRepo, tl.ID, "photos/d1.jpg")
	createPhoto(t, photoRepo, tl.ID, "photos/d2.jpg")
	kept := createPhoto(t, photoRepo, other.ID, "photos/keep.jpg")

	deleted, err := photoRepo.DeleteByTimelineID(tl.ID)
	if err != nil {
		t.Fatalf("DeleteByTimelineID() error = %v", err)
	}
	if len(deleted) != 2 {
		t.Fatalf("deleted %d photos, want 2", len(deleted))
	}
	for _, photo := range deleted {
		if _, err := photoRepo.GetByID(photo.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
			t.Errorf("photo %d still readable after bulk delete", photo.ID)
		}
	}
	if _, err := photoRepo.GetByID(kept.ID); err != nil {
		t.Errorf("photo of another timeline was deleted: %v", err)
	}

	// an empty timeline deletes to an empty slice without error
	again, err := photoRepo.DeleteByTimelineID(tl.ID)
	if err != nil {
		t.Fatalf("second DeleteByTimelineID() error = %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second bulk delete returned %d photos, want 0", len(again))
	}
}
