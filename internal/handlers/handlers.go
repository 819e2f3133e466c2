package handlers

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/scan-check/internal/auth"
	"github.com/example/scan-check/internal/classifier"
	"github.com/example/scan-check/internal/repository"
	"github.com/example/scan-check/internal/selection"
	"github.com/example/scan-check/internal/session"
	"github.com/example/scan-check/internal/usecase"
	"github.com/example/scan-check/internal/verdict"
)

// MaxMultipartMemory is how much of an upload gin buffers before spilling
// to disk.
const MaxMultipartMemory = 32 << 20

//go:embed templates/page.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/page.html"))

// Handlers binds the analysis sessions to HTTP.
type Handlers struct {
	sessions *session.Manager
	previews *selection.Previews
	history  *usecase.HistoryUseCase
	logger   *zap.Logger
}

// StateView is the JSON shape of a session as the page sees it.
type StateView struct {
	session.State
	Category   verdict.Category `json:"category,omitempty"`
	Summary    *verdict.Summary `json:"summary,omitempty"`
	CanSubmit  bool             `json:"can_submit"`
	Loading    bool             `json:"loading"`
	FileName   string           `json:"file_name,omitempty"`
	PreviewURL string           `json:"preview_url,omitempty"`
}

// New builds the handlers. previews and history may be nil.
func New(sessions *session.Manager, previews *selection.Previews, history *usecase.HistoryUseCase, logger *zap.Logger) *Handlers {
	return &Handlers{sessions: sessions, previews: previews, history: history, logger: logger.Named("handlers")}
}

// RegisterRoutes wires the HTTP handlers to the Gin router. Every route but
// /health runs behind authMiddleware, which must put the owner on the
// request context.
func (h *Handlers) RegisterRoutes(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	router.MaxMultipartMemory = MaxMultipartMemory
	router.SetHTMLTemplate(pageTemplate)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := router.Group("/", authMiddleware)
	authed.GET("/", h.page)
	authed.POST("/select", h.selectFile)
	authed.POST("/analyze", h.analyze)
	authed.GET("/preview/:id", h.preview)

	api := authed.Group("/api")
	api.GET("/state", h.state)
	api.GET("/history", h.listHistory)
	api.GET("/history/:id", h.getHistory)
	api.GET("/metrics", h.metrics)
}

func (h *Handlers) sessionFor(c *gin.Context) (*session.Session, bool) {
	owner, _ := auth.OwnerFrom(c.Request.Context())
	sess, err := h.sessions.Get(owner)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service is shutting down"})
		return nil, false
	}
	return sess, true
}

func (h *Handlers) page(c *gin.Context) {
	sess, ok := h.sessionFor(c)
	if !ok {
		return
	}
	c.HTML(http.StatusOK, "page.html", buildView(sess))
}

func (h *Handlers) state(c *gin.Context) {
	sess, ok := h.sessionFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, buildView(sess))
}

func (h *Handlers) selectFile(c *gin.Context) {
	sess, ok := h.sessionFor(c)
	if !ok {
		return
	}

	header, err := c.FormFile(classifier.FieldName)
	if errors.Is(err, http.ErrMissingFile) {
		// A dismissed picker posts no file; selection stays as it was.
		h.respond(c, sess, http.StatusOK)
		return
	}
	if err != nil {
		h.logger.Warn("unreadable upload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid upload"})
		return
	}

	src, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
		return
	}

	sess.SelectFile(c.Request.Context(), selection.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	h.respond(c, sess, http.StatusOK)
}

func (h *Handlers) analyze(c *gin.Context) {
	sess, ok := h.sessionFor(c)
	if !ok {
		return
	}

	if _, selected := sess.Selection(); !selected {
		h.respond(c, sess, http.StatusOK)
		return
	}

	// The classification call outlives this request; only the session may
	// cancel it.
	err := sess.Submit(context.WithoutCancel(c.Request.Context()))
	switch {
	case err == nil:
		h.respond(c, sess, http.StatusAccepted)
	case errors.Is(err, session.ErrInFlight), errors.Is(err, session.ErrResultShown):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.logger.Error("submit failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start analysis"})
	}
}

func (h *Handlers) preview(c *gin.Context) {
	sess, ok := h.sessionFor(c)
	if !ok {
		return
	}

	id := c.Param("id")
	sel, ok := sess.Selection()
	if h.previews == nil || !ok || sel.Preview == nil || sel.Preview.ID != id {
		c.JSON(http.StatusNotFound, gin.H{"error": "preview not found"})
		return
	}

	file, err := h.previews.Load(c.Request.Context(), id)
	if errors.Is(err, selection.ErrPreviewNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "preview not found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load preview", zap.String("preview_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load preview"})
		return
	}

	contentType := file.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(file.Data)
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, contentType, file.Data)
}

func (h *Handlers) listHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is disabled"})
		return
	}
	owner := ownerOf(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	logs, err := h.history.ListRecent(c.Request.Context(), owner, limit)
	if errors.Is(err, usecase.ErrHistoryDisabled) {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is disabled"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	out := make([]gin.H, 0, len(logs))
	for _, log := range logs {
		out = append(out, logView(log))
	}
	c.JSON(http.StatusOK, gin.H{"analyses": out})
}

func (h *Handlers) getHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is disabled"})
		return
	}

	log, err := h.history.GetAttempt(c.Request.Context(), ownerOf(c), c.Param("id"))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			h.logger.Warn("failed to load analysis", zap.String("request_id", c.Param("id")), zap.Error(err))
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
		return
	}
	c.JSON(http.StatusOK, logView(log))
}

func (h *Handlers) metrics(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is disabled"})
		return
	}
	summary, err := h.history.GetMetricsSummary(c.Request.Context())
	if errors.Is(err, usecase.ErrHistoryDisabled) {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is disabled"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// respond answers browsers with a redirect back to the page and API
// clients with the state.
func (h *Handlers) respond(c *gin.Context, sess *session.Session, status int) {
	if c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON {
		c.JSON(status, buildView(sess))
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func buildView(sess *session.Session) StateView {
	st := sess.State()
	view := StateView{
		State:     st,
		CanSubmit: sess.CanSubmit(),
		Loading:   st.Phase == session.InFlight,
	}
	if sel, ok := sess.Selection(); ok {
		view.FileName = sel.File.Name
		if sel.Preview != nil {
			view.PreviewURL = sel.Preview.URL()
		}
	}
	if category, ok := st.Category(); ok {
		summary := verdict.Describe(category)
		view.Category = category
		view.Summary = &summary
	}
	return view
}

func ownerOf(c *gin.Context) string {
	owner, ok := auth.OwnerFrom(c.Request.Context())
	if !ok {
		return session.LocalOwner
	}
	return owner
}

func logView(log *repository.AnalysisLog) gin.H {
	return gin.H{
		"request_id": log.RequestID,
		"filename":   log.Filename,
		"sha1_hash":  log.SHA1Hash,
		"verdict":    log.Verdict,
		"category":   log.Category,
		"outcome":    log.Outcome,
		"error":      log.Error,
		"latency_ms": log.LatencyMs,
		"created_at": log.CreatedAt,
	}
}
