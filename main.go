package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/kirin-w/timelinebackend/config"
	"github.com/kirin-w/timelinebackend/database"
	"github.com/kirin-w/timelinebackend/handlers"
	"github.com/kirin-w/timelinebackend/media"
	"github.com/kirin-w/timelinebackend/realtime"
	"github.com/kirin-w/timelinebackend/repository"
	"github.com/kirin-w/timelinebackend/workers"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	storagePaths := []string{cfg.PhotosPath, cfg.ThumbnailsPath, cfg.ArchivesPath, filepath.Dir(cfg.DatabasePath)}
	for _, p := range storagePaths {
		log.Printf("Ensuring storage directory exists: %s", p)
		if err := os.MkdirAll(p, 0755); err != nil {
			log.Fatalf("FATAL: Failed to create storage directory %s: %v", p, err)
		}
	}

	db, err := database.InitGormDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		log.Fatalf("FATAL: Failed to migrate database schema: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("FATAL: Failed to access underlying database handle: %v", err)
	}
	defer sqlDB.Close()

	mediaSubDirs := map[media.AssetType]string{
		media.AssetTypeOriginal:  filepath.Base(cfg.PhotosPath),
		media.AssetTypeThumbnail: filepath.Base(cfg.ThumbnailsPath),
		media.AssetTypeArchive:   filepath.Base(cfg.ArchivesPath),
	}
	mediaStore, err := media.NewLocalStorage(cfg.MediaStoragePath, mediaSubDirs)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize media store: %v", err)
	}
	mediaProcessor := media.NewProcessor()
	imageCache := media.NewImageCache(mediaStore, mediaProcessor, cfg.MemoryCacheMaxEntries, cfg.MemoryCacheMaxBytes, cfg.DisplayScale)

	timelineRepo := repository.NewTimelineRepository(db)
	photoRepo := repository.NewPhotoRepository(db)

	hub := realtime.NewHub()
	go hub.Run()

	log.Printf("Initializing import worker pool (Workers: %d, Queue Size: %d)...", cfg.NumImportWorkers, cfg.ImportQueueSize)
	importProcessor := workers.NewImportProcessor(cfg, timelineRepo, photoRepo, mediaStore, imageCache, hub)
	defer importProcessor.Stop()

	log.Printf("Using database: %s", cfg.DatabasePath)
	log.Printf("Storing photos in: %s", cfg.PhotosPath)
	log.Printf("Storing thumbnails in: %s", cfg.ThumbnailsPath)
	log.Printf("Thumbnail max size (longest side): %dpx at scale %dx", cfg.ThumbnailMaxSize, cfg.DisplayScale)

	r := chi.NewRouter()

	corsOptions := cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"}, //TODO: configurable
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	corsHandler := cors.New(corsOptions)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsHandler.Handler)

	timelineHandler := &handlers.TimelineHandler{
		Cfg:          cfg,
		TimelineRepo: timelineRepo,
		PhotoRepo:    photoRepo,
		Store:        mediaStore,
		Cache:        imageCache,
		Processor:    importProcessor,
	}
	photoHandler := &handlers.PhotoHandler{
		Cfg:          cfg,
		TimelineRepo: timelineRepo,
		PhotoRepo:    photoRepo,
		Store:        mediaStore,
		Cache:        imageCache,
		Processor:    importProcessor,
		Hub:          hub,
	}
	imageHandler := &handlers.ImageHandler{
		Cfg:       cfg,
		PhotoRepo: photoRepo,
		Store:     mediaStore,
		Cache:     imageCache,
		Proc:      mediaProcessor,
	}
	storageHandler := &handlers.StorageHandler{
		Cfg:   cfg,
		DB:    sqlDB,
		Store: mediaStore,
		Cache: imageCache,
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/timelines", func(r chi.Router) {
			r.Post("/", timelineHandler.CreateTimeline)
			r.Get("/", timelineHandler.ListTimelines)
			r.Route("/{timelineID}", func(r chi.Router) {
				r.Get("/", timelineHandler.GetTimeline)
				r.Put("/", timelineHandler.UpdateTimeline)
				r.Delete("/", timelineHandler.DeleteTimeline)
				r.Get("/sections", timelineHandler.GetSections)
				r.Put("/cover", timelineHandler.SetCoverPhoto)
				r.Route("/milestones", func(r chi.Router) {
					r.Get("/", timelineHandler.GetMilestones)
					r.Put("/", timelineHandler.PutMilestones)
					r.Delete("/", timelineHandler.ResetMilestones)
				})
				r.Post("/photos", photoHandler.ImportPhotos)
				r.Post("/photos/directory", photoHandler.ImportDirectory)
				r.Post("/zip", timelineHandler.RequestArchive)
				r.Get("/zip", timelineHandler.GetArchive)
			})
		})

		r.Route("/photos/{photoID}", func(r chi.Router) {
			r.Get("/", photoHandler.GetPhoto)
			r.Delete("/", photoHandler.DeletePhoto)
			r.Put("/date", photoHandler.SetPhotoDate)
			r.Put("/notes", photoHandler.SetPhotoNotes)
			r.Get("/thumbnail", imageHandler.GetThumbnail)
			r.Get("/original", imageHandler.GetOriginal)
		})

		r.Post("/imports/{batchID}/cancel", photoHandler.CancelImport)

		r.Route("/storage", func(r chi.Router) {
			r.Get("/", storageHandler.GetStorageUsage)
			r.Delete("/thumbnails", storageHandler.PurgeThumbnails)
		})

		thumbnailSubDir := filepath.Base(cfg.ThumbnailsPath)
		r.Get(fmt.Sprintf("/%s/*", thumbnailSubDir), handlers.AssetServer(cfg.MediaStoragePath, thumbnailSubDir))
		log.Printf("Registered thumbnail server at /api/%s/*", thumbnailSubDir)

		archiveSubDir := filepath.Base(cfg.ArchivesPath)
		r.Get(fmt.Sprintf("/%s/*", archiveSubDir), handlers.AssetServer(cfg.MediaStoragePath, archiveSubDir))
		log.Printf("Registered archive server at /api/%s/*", archiveSubDir)
	})

	r.Get("/ws", hub.ServeWS)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	serverAddr := ":" + port
	fmt.Printf("Server starting on http://localhost:%s\n", port)
	log.Printf("Server listening on %s", serverAddr)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.Fatal(server.ListenAndServe())
}
