package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// userID resolves the caller identity. Authentication lives upstream; the
// gateway injects the resolved user id.
func userID(c *gin.Context) string {
	if id := c.GetHeader("X-User-ID"); id != "" {
		return id
	}
	return "local"
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var body struct {
		Title  string `json:"title" binding:"required"`
		Note   string `json:"note"`
		Source string `json:"source"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := s.tasks.CreateTask(c.Request.Context(), userID(c), body.Title, body.Note, body.Source)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) handleListTasks(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	tasks, err := s.tasks.ListTasks(c.Request.Context(), userID(c), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.tasks.Tasks().Get(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleListEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	events, err := s.events.ListByTask(c.Request.Context(), userID(c), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// handleStartTask launches the run asynchronously; a run can spend most of a
// minute inside model calls and must not hold the request open.
func (s *Server) handleStartTask(c *gin.Context) {
	uid, taskID := userID(c), c.Param("id")
	if _, err := s.tasks.Tasks().Get(c.Request.Context(), uid, taskID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	go func() {
		// Detached from the request: the run outlives the HTTP exchange and
		// is bounded by its own yield budget.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := s.engine.Start(ctx, uid, taskID); err != nil {
			s.logger.Error("starting task %s: %v", taskID, err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (s *Server) handleContinueTask(c *gin.Context) {
	s.scheduler.ScheduleContinuation(userID(c), c.Param("id"))
	c.JSON(http.StatusAccepted, gin.H{"status": "scheduled"})
}

// handleAnswer records the user's answer to a question event and resumes the
// run.
func (s *Server) handleAnswer(c *gin.Context) {
	var body struct {
		Answer string `json:"answer" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	uid, eventID := userID(c), c.Param("eventID")
	event, err := s.events.Get(c.Request.Context(), uid, eventID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err := s.events.SetAnswer(c.Request.Context(), uid, eventID, body.Answer); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.scheduler.ScheduleContinuation(uid, event.TaskID)
	c.JSON(http.StatusOK, gin.H{"status": "answered"})
}

// handleApproval records the user's approval decision and resumes the run.
func (s *Server) handleApproval(c *gin.Context) {
	var body struct {
		Approved *bool `json:"approved" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	uid, eventID := userID(c), c.Param("eventID")
	event, err := s.events.Get(c.Request.Context(), uid, eventID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err := s.events.SetApproval(c.Request.Context(), uid, eventID, *body.Approved); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.scheduler.ScheduleContinuation(uid, event.TaskID)
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}
