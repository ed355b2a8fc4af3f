package cmd

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"trane/config"
	"trane/handlers"
	"trane/middleware"
	"trane/services"
	"trane/store"
	"trane/websocket"
)

// ServerOptions carries the collaborators the server is wired from.
type ServerOptions struct {
	Store       *store.Store
	Separator   services.Separator
	Hub         websocket.Hub
	LibraryRoot string
	TokenSecret string
	Workers     int
}

// NewRouter assembles services, handlers and routes. The hub and job
// queue are started here; the caller owns the store lifecycle.
func NewRouter(opts ServerOptions) *gin.Engine {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Hub == nil {
		opts.Hub = websocket.NewHub()
	}
	go opts.Hub.Run()

	fileService := services.NewFileService()
	jobQueue := services.NewJobQueue(opts.Workers, opts.Store, opts.Separator, fileService, opts.Hub)
	jobQueue.Start()

	authService := services.NewAuthService(opts.Store, opts.TokenSecret)

	entryHandler := handlers.NewEntryHandler(opts.Store, jobQueue, fileService, opts.LibraryRoot)
	progressHandler := handlers.NewProgressHandler(opts.Store, opts.Hub)
	authHandler := handlers.NewAuthHandler(authService)
	healthHandler := handlers.NewHealthHandler()
	noteHandler := handlers.NewNoteHandler(opts.Store)
	documentHandler := handlers.NewDocumentHandler(opts.Store, opts.LibraryRoot)
	tagHandler := handlers.NewTagHandler(opts.Store)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.Logging())

	handlerSet := routeHandlers{
		entries:   entryHandler,
		progress:  progressHandler,
		auth:      authHandler,
		health:    healthHandler,
		notes:     noteHandler,
		documents: documentHandler,
		tags:      tagHandler,
	}
	setupRoutes(r, handlerSet, authService)

	return r
}

// StartWebServer starts the web server
func StartWebServer(port int) {
	// Set production mode if not specified
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		gin.SetMode(mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := store.Open(config.GetDatabasePath())
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer db.Close()

	janitor := services.NewJanitor(db, 7*24*time.Hour)
	if err := janitor.Start(); err != nil {
		log.Fatalf("Failed to start janitor: %v", err)
	}
	defer janitor.Stop()

	r := NewRouter(ServerOptions{
		Store:       db,
		Separator:   services.NewDemucsSeparator(),
		LibraryRoot: config.GetLibraryRoot(),
		TokenSecret: config.GetTokenSecret(),
	})

	portStr := strconv.Itoa(port)
	if serverPort := os.Getenv("SERVER_PORT"); serverPort != "" {
		portStr = serverPort
	}

	log.Printf("Trane server starting on port %s", portStr)
	log.Printf("Library root: %s", config.GetLibraryRoot())
	if err := r.Run(":" + portStr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// routeHandlers bundles the handlers setupRoutes wires up.
type routeHandlers struct {
	entries   *handlers.EntryHandler
	progress  *handlers.ProgressHandler
	auth      *handlers.AuthHandler
	health    *handlers.HealthHandler
	notes     *handlers.NoteHandler
	documents *handlers.DocumentHandler
	tags      *handlers.TagHandler
}

// setupRoutes configures all the HTTP routes
func setupRoutes(r *gin.Engine, h routeHandlers, authService services.AuthService) {
	// Health check endpoint
	r.GET("/health/", h.health.HealthCheck)

	// Auth endpoints
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register/", h.auth.Register)
		authGroup.POST("/token/", h.auth.Token)
		authGroup.POST("/token/refresh/", h.auth.Refresh)
	}

	// Entry management, bearer token required
	entriesGroup := r.Group("/entries")
	entriesGroup.Use(middleware.RequireAuth(authService))
	{
		entriesGroup.POST("/", h.entries.Create)
		entriesGroup.GET("/", h.entries.List)
		entriesGroup.GET("/:id/", h.entries.Get)
		entriesGroup.PATCH("/:id/", h.entries.Rename)
		entriesGroup.DELETE("/:id/", h.entries.Delete)
		entriesGroup.GET("/:id/download/", h.entries.Download)
		entriesGroup.GET("/:id/stems/", h.entries.Stems)
		entriesGroup.GET("/:id/stems/:stem/", h.entries.Stream)
	}

	// Annotation resources, bearer token required
	notesGroup := r.Group("/notes")
	notesGroup.Use(middleware.RequireAuth(authService))
	{
		notesGroup.POST("/", h.notes.Create)
		notesGroup.GET("/", h.notes.List)
		notesGroup.GET("/:id/", h.notes.Get)
		notesGroup.PATCH("/:id/", h.notes.Update)
		notesGroup.DELETE("/:id/", h.notes.Delete)
	}

	documentsGroup := r.Group("/documents")
	documentsGroup.Use(middleware.RequireAuth(authService))
	{
		documentsGroup.POST("/", h.documents.Create)
		documentsGroup.GET("/", h.documents.List)
		documentsGroup.GET("/:id/", h.documents.Get)
		documentsGroup.PATCH("/:id/", h.documents.Update)
		documentsGroup.DELETE("/:id/", h.documents.Delete)
		documentsGroup.GET("/:id/download/", h.documents.Download)
	}

	tagsGroup := r.Group("/tags")
	tagsGroup.Use(middleware.RequireAuth(authService))
	{
		tagsGroup.POST("/", h.tags.Create)
		tagsGroup.GET("/", h.tags.List)
		tagsGroup.GET("/:id/", h.tags.Get)
		tagsGroup.PATCH("/:id/", h.tags.Update)
		tagsGroup.DELETE("/:id/", h.tags.Delete)
	}

	// WebSocket endpoint for per-task progress (unauthenticated, as the
	// subscription target is an unguessable task id)
	r.GET("/ws/progress/:taskId/", h.progress.Subscribe)
}
