package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/planclient/core"
)

const ctxUserID = "userID"

// Handlers contains the HTTP handlers of the mock backend
type Handlers struct {
	backend *Backend
	log     *slog.Logger
}

// NewHandlers creates handlers serving backend
func NewHandlers(backend *Backend, log *slog.Logger) *Handlers {
	return &Handlers{backend: backend, log: log}
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"data": data})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

// failWith maps backend errors onto HTTP statuses
func (h *Handlers) failWith(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrValidation):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrNotFound):
		fail(c, http.StatusNotFound, "Not found")
	case errors.Is(err, core.ErrInvalidCredential):
		fail(c, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, core.ErrAccountExists):
		fail(c, http.StatusConflict, "Email is already registered")
	case errors.Is(err, core.ErrTokenExpired):
		fail(c, http.StatusUnauthorized, "Refresh token expired")
	case errors.Is(err, core.ErrInvalidToken):
		fail(c, http.StatusUnauthorized, "Invalid refresh token")
	default:
		h.log.Error("mockapi.internal_error", "path", c.FullPath(), "err", err)
		fail(c, http.StatusInternalServerError, "Internal server error")
	}
}

// Login handles the login request
func (h *Handlers) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Email and password are required")
		return
	}

	result, err := h.backend.Login(core.LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		h.failWith(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

// Register handles account creation
func (h *Handlers) Register(c *gin.Context) {
	var req core.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request")
		return
	}

	result, err := h.backend.Register(req)
	if err != nil {
		h.failWith(c, err)
		return
	}
	respond(c, http.StatusCreated, result)
}

// Refresh handles token refresh
func (h *Handlers) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request")
		return
	}

	result, err := h.backend.Refresh(req.RefreshToken)
	if err != nil {
		h.failWith(c, err)
		return
	}
	respond(c, http.StatusOK, result)
}

func (h *Handlers) ListActivities(c *gin.Context) {
	filter := core.ActivityFilter{
		Type:     core.ActivityType(c.Query("type")),
		Date:     c.Query("date"),
		Status:   core.Status(c.Query("status")),
		Priority: core.Priority(c.Query("priority")),
	}
	respond(c, http.StatusOK, h.backend.ListActivities(c.GetString(ctxUserID), filter))
}

func (h *Handlers) GetActivity(c *gin.Context) {
	a, err := h.backend.GetActivity(c.GetString(ctxUserID), c.Param("id"))
	if err != nil {
		h.failWith(c, err)
		return
	}
	respond(c, http.StatusOK, a)
}

func (h *Handlers) CreateActivity(c *gin.Context) {
	var req core.Activity
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request")
		return
	}

	a, err := h.backend.CreateActivity(c.GetString(ctxUserID), req)
	if err != nil {
		h.failWith(c, err)
		return
	}
	respond(c, http.StatusCreated, a)
}

func (h *Handlers) UpdateActivity(c *gin.Context) {
	var req core.Activity
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request")
		return
	}

	a, err := h.backend.UpdateActivity(c.GetString(ctxUserID), c.Param("id"), req)
	if err != nil {
		h.failWith(c, err)
		return
	}
	respond(c, http.StatusOK, a)
}

func (h *Handlers) UpdateActivityStatus(c *gin.Context) {
	var req struct {
		Status core.Status `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Status is required")
		return
	}

	a, err := h.backend.SetActivityStatus(c.GetString(ctxUserID), c.Param("id"), req.Status)
	if err != nil {
		h.failWith(c, err)
		return
	}
	respond(c, http.StatusOK, a)
}

func (h *Handlers) DeleteActivity(c *gin.Context) {
	id := c.Param("id")
	if err := h.backend.DeleteActivity(c.GetString(ctxUserID), id); err != nil {
		h.failWith(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id})
}

func (h *Handlers) ListNotes(c *gin.Context) {
	filter := core.NoteFilter{RelatedDate: c.Query("relatedDate")}
	if raw := c.Query("isPinned"); raw != "" {
		pinned, err := strconv.ParseBool(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, "isPinned must be true or false")
			return
		}
		filter.IsPinned = &pinned
	}
	respond(c, http.StatusOK, h.backend.ListNotes(c.GetString(ctxUserID), filter))
}

func (h *Handlers) GetNote(c *gin.Context) {
	n, err := h.backend.GetNote(c.GetString(ctxUserID), c.Param("id"))
	if err != nil {
		h.failWith(c, err)
		return
	}
	respond(c, http.StatusOK, n)
}

func (h *Handlers) CreateNote(c *gin.Context) {
	var req core.Note
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request")
		return
	}

	n, err := h.backend.CreateNote(c.GetString(ctxUserID), req)
	if err != nil {
		h.failWith(c, err)
		return
	}
	respond(c, http.StatusCreated, n)
}

func (h *Handlers) UpdateNote(c *gin.Context) {
	var req core.Note
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request")
		return
	}

	n, err := h.backend.UpdateNote(c.GetString(ctxUserID), c.Param("id"), req)
	if err != nil {
		h.failWith(c, err)
		return
	}
	respond(c, http.StatusOK, n)
}

func (h *Handlers) TogglePin(c *gin.Context) {
	n, err := h.backend.TogglePin(c.GetString(ctxUserID), c.Param("id"))
	if err != nil {
		h.failWith(c, err)
		return
	}
	respond(c, http.StatusOK, n)
}

func (h *Handlers) DeleteNote(c *gin.Context) {
	id := c.Param("id")
	if err := h.backend.DeleteNote(c.GetString(ctxUserID), id); err != nil {
		h.failWith(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id})
}

// Parse structures a free text prompt into a plan
func (h *Handlers) Parse(c *gin.Context) {
	var req struct {
		Prompt string `json:"prompt" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Prompt is required")
		return
	}

	plan, err := h.backend.Parse(req.Prompt)
	if err != nil {
		h.failWith(c, err)
		return
	}
	respond(c, http.StatusOK, plan)
}
