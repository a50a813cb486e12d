package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"promptpilot/internal/config"
	"promptpilot/internal/models"
	"promptpilot/internal/translator"
)

const (
	defaultMaxBodyBytes = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	writeTimeout        = 2 * time.Minute
	idleTimeout         = 120 * time.Second
)

// ChatRouter routes chat requests to a provider.
type ChatRouter interface {
	Route(ctx context.Context, req models.RouteRequest) (string, error)
	RouteStream(ctx context.Context, req models.RouteRequest) models.Stream
}

// FileService manages conversation file metadata and blobs.
type FileService interface {
	AddFile(ctx context.Context, rec models.FileRecord) (models.FileRecord, error)
	Files(ctx context.Context, conversationID string) ([]models.FileRecord, error)
	Attachments(ctx context.Context, conversationID string) ([]models.Attachment, error)
	DeleteFile(ctx context.Context, conversationID, publicID string) (int, error)
	DeleteConversationFiles(ctx context.Context, conversationID string) (int, error)
}

type Server struct {
	cfg     config.Config
	router  ChatRouter
	files   FileService
	app     *echo.Echo
	address string
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, rt ChatRouter, files FileService) (*Server, error) {
	if rt == nil {
		return nil, errors.New("router must not be nil")
	}
	if files == nil {
		return nil, errors.New("file service must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = jsonErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"request_id", v.RequestID,
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))

	srv := &Server{
		cfg:     cfg,
		router:  rt,
		files:   files,
		app:     e,
		address: fmt.Sprintf(":%d", cfg.Server.Port),
	}

	srv.registerRoutes()

	return srv, nil
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	printStartupBanner(s.cfg.Server.Port)
	slog.Info("starting server", "addr", s.address)

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/", s.handleRoot)
	s.app.GET("/health", s.handleHealth)
	s.app.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.app.POST("/chat", s.handleChat)
	s.app.POST("/files", s.handleAddFile)
	s.app.GET("/conversations/:id/files", s.handleListFiles)
	s.app.DELETE("/conversations/:id/files", s.handleDeleteConversationFiles)
	// Public ids may contain slashes.
	s.app.DELETE("/files/*", s.handleDeleteFile)
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"message": "PromptPilot API is running",
		"status":  "healthy",
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleChat(c echo.Context) error {
	var req translator.ChatRequest
	if err := decodeRequestBody(c, &req, s.maxBodyBytes()); err != nil {
		return err
	}

	ctx := c.Request().Context()
	attachments := req.Attachments()
	if len(attachments) == 0 && req.ChatID != "" {
		stored, err := s.files.Attachments(ctx, req.ChatID)
		if err != nil {
			slog.Warn("load conversation files failed", "chat_id", req.ChatID, "err", err)
		} else {
			attachments = stored
		}
	}
	routeReq := req.ToRoute(attachments)

	if req.Stream {
		return s.streamChat(c, routeReq)
	}

	reply, err := s.router.Route(ctx, routeReq)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, translator.ChatResponse{Reply: reply})
}

func (s *Server) streamChat(c echo.Context, req models.RouteRequest) error {
	writer := c.Response().Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		slog.Error("http writer does not support flushing")
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: "server does not support streaming responses",
			Type:    "server_error",
		}
	}
	// Streams may outlive the server-wide write timeout.
	_ = http.NewResponseController(writer).SetWriteDeadline(time.Time{})

	stream := s.router.RouteStream(c.Request().Context(), req)
	defer stream.Close()

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		fragment, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fragment = models.Fragment{Text: err.Error(), Failed: true}
		}
		if werr := writeSSEData(c.Response(), translator.FromFragment(fragment)); werr != nil {
			slog.Warn("client went away during stream", "err", werr)
			return nil
		}
		flusher.Flush()
		if err != nil {
			break
		}
	}

	if err := writeSSEData(c.Response(), translator.StreamDone{Done: true}); err != nil {
		return nil
	}
	if _, err := io.WriteString(c.Response(), "data: [DONE]\n\n"); err != nil {
		return nil
	}
	flusher.Flush()
	return nil
}

func (s *Server) handleAddFile(c echo.Context) error {
	var req translator.FileRequest
	if err := decodeRequestBody(c, &req, s.maxBodyBytes()); err != nil {
		return err
	}

	rec, err := s.files.AddFile(c.Request().Context(), req.ToRecord())
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (s *Server) handleListFiles(c echo.Context) error {
	records, err := s.files.Files(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storeError(err)
	}
	if records == nil {
		records = []models.FileRecord{}
	}
	return c.JSON(http.StatusOK, translator.FilesResponse{Files: records})
}

func (s *Server) handleDeleteFile(c echo.Context) error {
	publicID := c.Param("*")
	conversationID := c.QueryParam("conversation_id")
	if publicID == "" || conversationID == "" {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "public id and conversation_id are required",
			Type:    "invalid_request_error",
		}
	}

	n, err := s.files.DeleteFile(c.Request().Context(), conversationID, publicID)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, translator.DeleteResponse{Deleted: n})
}

func (s *Server) handleDeleteConversationFiles(c echo.Context) error {
	n, err := s.files.DeleteConversationFiles(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, translator.DeleteResponse{Deleted: n})
}

func (s *Server) maxBodyBytes() int64 {
	if s.cfg.Server.MaxBodyBytes > 0 {
		return s.cfg.Server.MaxBodyBytes
	}
	return defaultMaxBodyBytes
}

func decodeRequestBody[T any](c echo.Context, target *T, limit int64) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, limit)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return requestError{
				Status:  http.StatusBadRequest,
				Message: "request body is required",
				Type:    "invalid_request_error",
			}
		}
		return requestError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("invalid JSON payload: %v", err),
			Type:    "invalid_request_error",
		}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "request body must contain a single JSON object",
			Type:    "invalid_request_error",
		}
	}
	return nil
}

func writeSSEData(w io.Writer, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal SSE payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write SSE data: %w", err)
	}
	return nil
}

func printStartupBanner(port int) {
	host := "127.0.0.1"
	fmt.Println()
	fmt.Println("promptpilot ready")
	fmt.Printf("Listening on http://%s:%d\n", host, port)
	fmt.Println("Endpoints:")
	fmt.Println("  GET    /health")
	fmt.Println("  GET    /metrics")
	fmt.Println("  POST   /chat")
	fmt.Println("  POST   /files")
	fmt.Println("  GET    /conversations/:id/files")
	fmt.Println("  DELETE /conversations/:id/files")
	fmt.Println("  DELETE /files/:public_id?conversation_id=")
	fmt.Printf("Example:\n  curl http://%s:%d/chat -H 'Content-Type: application/json' -d '{\"model\":\"gemini-2.0-flash\",\"prompt\":\"hello\"}'\n\n", host, port)
}
