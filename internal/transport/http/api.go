package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"quiz-match-service/internal/app"
	"quiz-match-service/internal/domain"
)

type createMatchRequest struct {
	QuizID          string `json:"quizId" binding:"required"`
	MaxPlayers      int    `json:"maxPlayers"`
	MinPlayers      int    `json:"minPlayers"`
	QuestionTimeSec int    `json:"questionTimeSec"`
}

type matchHandler struct {
	service *app.MatchService
	hub     *Hub
}

// NewRouter builds the control API and mounts the websocket endpoint at /ws.
func NewRouter(service *app.MatchService, ws *WSHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	h := &matchHandler{service: service, hub: ws.hub}
	r.GET("/healthz", h.health)
	r.GET("/ws", gin.WrapF(ws.ServeWS))
	r.POST("/quizzes/:id/refresh", h.refreshQuiz)

	matches := r.Group("/matches")
	matches.POST("", h.create)
	matches.GET("", h.list)
	matches.GET("/:id", h.get)
	matches.GET("/code/:code", h.getByCode)
	matches.POST("/:id/cancel", h.cancel)
	return r
}

func (h *matchHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"matches":  h.service.ActiveMatches(),
		"sessions": h.hub.Sessions(),
	})
}

func (h *matchHandler) refreshQuiz(c *gin.Context) {
	if err := h.service.RefreshQuiz(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *matchHandler) create(c *gin.Context) {
	var req createMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.Validation("invalid_request", "quizId is required"))
		return
	}
	summary, err := h.service.CreateMatch(c.Request.Context(), app.CreateMatchRequest{
		QuizID:           req.QuizID,
		MaxPlayers:       req.MaxPlayers,
		MinPlayers:       req.MinPlayers,
		QuestionDuration: time.Duration(req.QuestionTimeSec) * time.Second,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, summary)
}

func (h *matchHandler) list(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"matches": h.service.List(c.Request.Context())})
}

func (h *matchHandler) get(c *gin.Context) {
	snap, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *matchHandler) getByCode(c *gin.Context) {
	snap, err := h.service.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *matchHandler) cancel(c *gin.Context) {
	if err := h.service.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func writeError(c *gin.Context, err error) {
	e := domain.AsError(err)
	c.JSON(statusFor(e.Kind), gin.H{"error": e})
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindCapacity, domain.KindState:
		return http.StatusConflict
	case domain.KindPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
