package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/kirin-w/timelinebackend/config"
	"github.com/kirin-w/timelinebackend/database"
	"github.com/kirin-w/timelinebackend/media"
	"github.com/kirin-w/timelinebackend/models"
	"github.com/kirin-w/timelinebackend/repository"
	"github.com/kirin-w/timelinebackend/timeline"
	"github.com/kirin-w/timelinebackend/workers"
)

type TimelineHandler struct {
	Cfg          config.Config
	TimelineRepo repository.TimelineRepositoryInterface
	PhotoRepo    repository.PhotoRepositoryInterface
	Store        media.Store
	Cache        *media.ImageCache
	Processor    *workers.ImportProcessor
}

// parseIDParam extracts a uint path parameter from the request
func parseIDParam(r *http.Request, name string) (uint, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, errors.New("invalid " + name)
	}
	return uint(id), nil
}

func (th *TimelineHandler) getTimelineOr404(w http.ResponseWriter, r *http.Request) *models.Timeline {
	id, err := parseIDParam(r, "timelineID")
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return nil
	}
	tl, err := th.TimelineRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "not_found", "timeline not found")
		} else {
			log.Printf("Error fetching timeline %d: %v", id, err)
			WriteAPIError(w, http.StatusInternalServerError, "db_error", "failed to fetch timeline")
		}
		return nil
	}
	return tl
}

// timelineWithAge decorates a timeline with its age as of now, so list and
// detail views can render the label without a second request.
type timelineWithAge struct {
	*models.Timeline
	CurrentAge   timeline.AgeInfo `json:"current_age"`
	DisplayText  string           `json:"display_text"`
	SubtitleText string           `json:"subtitle_text"`
}

func withAge(tl *models.Timeline, now time.Time) timelineWithAge {
	// base dates are UTC, so the query instant must be too or the civil-day
	// diff shifts by one around midnight on non-UTC servers
	now = now.UTC()
	milestones := timeline.MilestonesFromBlob(tl.MilestonesData)
	age := timeline.ComputeAge(time.Unix(tl.BaseDate, 0).UTC(), now, milestones)
	return timelineWithAge{
		Timeline:     tl,
		CurrentAge:   age,
		DisplayText:  age.DisplayText(),
		SubtitleText: age.SubtitleText(),
	}
}

func (th *TimelineHandler) ListTimelines(w http.ResponseWriter, r *http.Request) {
	timelines, err := th.TimelineRepo.ListAll()
	if err != nil {
		log.Printf("Error listing timelines: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "db_error", "failed to list timelines")
		return
	}
	now := time.Now()
	resp := make([]timelineWithAge, 0, len(timelines))
	for i := range timelines {
		resp = append(resp, withAge(&timelines[i], now))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (th *TimelineHandler) CreateTimeline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title    string  `json:"title"`
		BaseDate int64   `json:"base_date"`
		Icon     *string `json:"icon"`
		Color    *string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	if req.Title == "" {
		WriteAPIError(w, http.StatusBadRequest, "missing_field", "title is required")
		return
	}
	if req.BaseDate == 0 {
		WriteAPIError(w, http.StatusBadRequest, "missing_field", "base_date is required")
		return
	}

	tl := models.Timeline{Title: req.Title, BaseDate: req.BaseDate}
	if req.Icon != nil {
		tl.Icon = *req.Icon
	}
	if req.Color != nil {
		tl.Color = *req.Color
	}
	if err := th.TimelineRepo.Create(&tl); err != nil {
		log.Printf("Error creating timeline '%s': %v", req.Title, err)
		WriteAPIError(w, http.StatusInternalServerError, "db_error", "failed to create timeline")
		return
	}
	writeJSON(w, http.StatusCreated, withAge(&tl, time.Now()))
}

func (th *TimelineHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	tl := th.getTimelineOr404(w, r)
	if tl == nil {
		return
	}
	writeJSON(w, http.StatusOK, withAge(tl, time.Now()))
}

func (th *TimelineHandler) UpdateTimeline(w http.ResponseWriter, r *http.Request) {
	tl := th.getTimelineOr404(w, r)
	if tl == nil {
		return
	}

	var req struct {
		Title    *string `json:"title"`
		BaseDate *int64  `json:"base_date"`
		Icon     *string `json:"icon"`
		Color    *string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}

	title := tl.Title
	if req.Title != nil {
		if *req.Title == "" {
			WriteAPIError(w, http.StatusBadRequest, "invalid_field", "title cannot be empty")
			return
		}
		title = *req.Title
	}
	if err := th.TimelineRepo.Update(tl.ID, title, req.BaseDate, req.Icon, req.Color); err != nil {
		log.Printf("Error updating timeline %d: %v", tl.ID, err)
		WriteAPIError(w, http.StatusInternalServerError, "db_error", "failed to update timeline")
		return
	}

	updated, err := th.TimelineRepo.GetByID(tl.ID)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Timeline updated", "id": tl.ID})
		return
	}
	writeJSON(w, http.StatusOK, withAge(updated, time.Now()))
}

// DeleteTimeline removes the timeline, its photo records, the stored files,
// and every cached thumbnail rendition.
func (th *TimelineHandler) DeleteTimeline(w http.ResponseWriter, r *http.Request) {
	tl := th.getTimelineOr404(w, r)
	if tl == nil {
		return
	}

	photos, err := th.PhotoRepo.DeleteByTimelineID(tl.ID)
	if err != nil {
		log.Printf("Error deleting photos of timeline %d: %v", tl.ID, err)
		WriteAPIError(w, http.StatusInternalServerError, "db_error", "failed to delete timeline photos")
		return
	}
	for i := range photos {
		if err := th.Store.Delete(photos[i].FilePath); err != nil {
			log.Printf("Error deleting photo file %s: %v", photos[i].FilePath, err)
		}
		th.Cache.Invalidate(photos[i].FilePath)
	}
	if tl.ZipPath != nil {
		if err := th.Store.Delete(*tl.ZipPath); err != nil {
			log.Printf("Error deleting archive %s: %v", *tl.ZipPath, err)
		}
	}

	if err := th.TimelineRepo.Delete(tl.ID); err != nil {
		log.Printf("Error deleting timeline %d: %v", tl.ID, err)
		WriteAPIError(w, http.StatusInternalServerError, "db_error", "failed to delete timeline")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Timeline deleted", "photos_removed": len(photos)})
}

func (th *TimelineHandler) SetCoverPhoto(w http.ResponseWriter, r *http.Request) {
	tl := th.getTimelineOr404(w, r)
	if tl == nil {
		return
	}

	var req struct {
		PhotoID *uint `json:"photo_id"` // null clears the cover
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	if req.PhotoID != nil {
		photo, err := th.PhotoRepo.GetByID(*req.PhotoID)
		if err != nil || photo.TimelineID != tl.ID {
			WriteAPIError(w, http.StatusBadRequest, "invalid_field", "photo does not belong to this timeline")
			return
		}
	}
	if err := th.TimelineRepo.SetCoverPhoto(tl.ID, req.PhotoID); err != nil {
		log.Printf("Error setting cover photo for timeline %d: %v", tl.ID, err)
		WriteAPIError(w, http.StatusInternalServerError, "db_error", "failed to set cover photo")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Cover photo updated"})
}

// --- milestones ---

func (th *TimelineHandler) GetMilestones(w http.ResponseWriter, r *http.Request) {
	tl := th.getTimelineOr404(w, r)
	if tl == nil {
		return
	}
	milestones := timeline.MilestonesFromBlob(tl.MilestonesData)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"milestones": milestones,
		"is_default": tl.MilestonesData == nil,
	})
}

func (th *TimelineHandler) PutMilestones(w http.ResponseWriter, r *http.Request) {
	tl := th.getTimelineOr404(w, r)
	if tl == nil {
		return
	}

	var req struct {
		Milestones []timeline.Milestone `json:"milestones"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	for _, m := range req.Milestones {
		if !timeline.ValidMilestone(m) {
			WriteAPIError(w, http.StatusBadRequest, "invalid_field", "milestones need a non-negative day offset and a title")
			return
		}
	}

	data, err := timeline.EncodeMilestones(req.Milestones)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_field", "failed to encode milestones")
		return
	}
	if err := th.TimelineRepo.SetMilestonesData(tl.ID, data); err != nil {
		log.Printf("Error storing milestones for timeline %d: %v", tl.ID, err)
		WriteAPIError(w, http.StatusInternalServerError, "db_error", "failed to store milestones")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"milestones": req.Milestones, "is_default": false})
}

// ResetMilestones drops the custom set so the defaults apply again.
func (th *TimelineHandler) ResetMilestones(w http.ResponseWriter, r *http.Request) {
	tl := th.getTimelineOr404(w, r)
	if tl == nil {
		return
	}
	if err := th.TimelineRepo.SetMilestonesData(tl.ID, nil); err != nil {
		log.Printf("Error resetting milestones for timeline %d: %v", tl.ID, err)
		WriteAPIError(w, http.StatusInternalServerError, "db_error", "failed to reset milestones")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"milestones": timeline.DefaultMilestones(),
		"is_default": true,
	})
}

// --- sections ---

type sectionResponse struct {
	Date         string           `json:"date"`
	Age          timeline.AgeInfo `json:"age"`
	DisplayText  string           `json:"display_text"`
	SubtitleText string           `json:"subtitle_text"`
	Photos       []*models.Photo  `json:"photos"`
}

// GetSections returns the timeline's photos grouped into render-ready day
// and milestone sections in chronological order.
func (th *TimelineHandler) GetSections(w http.ResponseWriter, r *http.Request) {
	tl := th.getTimelineOr404(w, r)
	if tl == nil {
		return
	}

	photos, err := th.PhotoRepo.ListByTimelineID(tl.ID)
	if err != nil {
		log.Printf("Error listing photos for timeline %d: %v", tl.ID, err)
		WriteAPIError(w, http.StatusInternalServerError, "db_error", "failed to list photos")
		return
	}

	items := make([]timeline.Item, 0, len(photos))
	for i := range photos {
		items = append(items, &photos[i])
	}
	base := time.Unix(tl.BaseDate, 0).UTC()
	milestones := timeline.MilestonesFromBlob(tl.MilestonesData)
	sections := timeline.BuildSections(items, base, milestones)

	resp := make([]sectionResponse, 0, len(sections))
	for _, section := range sections {
		sectionPhotos := make([]*models.Photo, 0, len(section.Items))
		for _, item := range section.Items {
			sectionPhotos = append(sectionPhotos, item.(*models.Photo))
		}
		resp = append(resp, sectionResponse{
			Date:         section.Date.Format("2006-01-02"),
			Age:          section.Age,
			DisplayText:  section.Age.DisplayText(),
			SubtitleText: section.Age.SubtitleText(),
			Photos:       sectionPhotos,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"timeline_id": tl.ID,
		"sections":    resp,
	})
}

// --- archive ---

// RequestArchive queues zip generation for the timeline's photos.
func (th *TimelineHandler) RequestArchive(w http.ResponseWriter, r *http.Request) {
	tl := th.getTimelineOr404(w, r)
	if tl == nil {
		return
	}
	if tl.ZipStatus == database.StatusProcessing || tl.ZipStatus == database.StatusPending {
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"message": "Archive already in progress", "status": tl.ZipStatus})
		return
	}

	if err := th.TimelineRepo.RequestZip(tl.ID); err != nil {
		log.Printf("Error requesting zip for timeline %d: %v", tl.ID, err)
		WriteAPIError(w, http.StatusInternalServerError, "db_error", "failed to request archive")
		return
	}
	queued := th.Processor.QueueJob(workers.ImportJob{
		TaskType:   workers.TaskArchive,
		TimelineID: tl.ID,
	})
	if !queued {
		WriteAPIError(w, http.StatusServiceUnavailable, "queue_full", "archive queue is full, try again later")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"message": "Archive queued", "status": database.StatusPending})
}

// GetArchive reports zip state; when the archive is ready the response
// carries the download path served by the archives asset route.
func (th *TimelineHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	tl := th.getTimelineOr404(w, r)
	if tl == nil {
		return
	}
	resp := map[string]interface{}{
		"status": tl.ZipStatus,
	}
	if tl.ZipError != nil {
		resp["error"] = *tl.ZipError
	}
	if tl.ZipStatus == database.StatusDone && tl.ZipPath != nil {
		resp["size"] = tl.ZipSize
		resp["generated_at"] = tl.ZipLastGeneratedAt
		resp["download_path"] = "/api/" + filepath.Base(th.Cfg.ArchivesPath) + "/" + pathBase(*tl.ZipPath)
	}
	writeJSON(w, http.StatusOK, resp)
}
