package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/openwrench/openwrench/internal/model"
	"github.com/openwrench/openwrench/internal/store"
)

// ConversationHandler serves the per-job message threads.
type ConversationHandler struct {
	St store.Store
}

func NewConversationHandler(st store.Store) *ConversationHandler {
	return &ConversationHandler{St: st}
}

// conversationView is a conversation enriched with its job and latest
// message for list rendering.
type conversationView struct {
	model.Conversation
	Job         *model.Job     `json:"job,omitempty"`
	LastMessage *model.Message `json:"lastMessage,omitempty"`
}

// ListByUser returns every conversation the user participates in, each
// carrying its job and most recent message.
func (h *ConversationHandler) ListByUser(c echo.Context) error {
	userID := c.QueryParam("userId")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "userId is required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	convs, err := h.St.ListConversationsByUserID(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not list conversations"})
	}

	views := make([]conversationView, 0, len(convs))
	for _, conv := range convs {
		view := conversationView{Conversation: conv}
		if job, err := h.St.GetJob(ctx, conv.JobID); err == nil {
			view.Job = &job
		}
		if msg, err := h.St.GetLastMessageByConversation(ctx, conv.ID); err == nil {
			view.LastMessage = &msg
		}
		views = append(views, view)
	}
	return c.JSON(http.StatusOK, views)
}

// GetByJob returns the conversation attached to a job.
func (h *ConversationHandler) GetByJob(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	conv, err := h.St.GetConversationByJobID(ctx, c.Param("jobId"))
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "conversation not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not look up conversation"})
	}
	return c.JSON(http.StatusOK, conv)
}

type createConversationReq struct {
	JobID      string `json:"jobId"`
	CustomerID string `json:"customerId"`
	ProviderID string `json:"providerId"`
}

// Create opens a thread for a job. A job has at most one conversation; a
// second create returns the existing one.
func (h *ConversationHandler) Create(c echo.Context) error {
	var req createConversationReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.JobID == "" || req.CustomerID == "" || req.ProviderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "jobId, customerId and providerId are required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	if existing, err := h.St.GetConversationByJobID(ctx, req.JobID); err == nil {
		return c.JSON(http.StatusOK, existing)
	}

	conv, err := h.St.CreateConversation(ctx, model.Conversation{
		JobID:      req.JobID,
		CustomerID: req.CustomerID,
		ProviderID: req.ProviderID,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create conversation"})
	}
	return c.JSON(http.StatusCreated, conv)
}
