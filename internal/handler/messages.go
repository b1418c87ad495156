package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/openwrench/openwrench/internal/model"
	"github.com/openwrench/openwrench/internal/store"
	"github.com/openwrench/openwrench/internal/ws"
)

// MessageHandler appends to conversations and pushes real-time
// notifications to connected participants.
type MessageHandler struct {
	St  store.Store
	Hub *ws.Hub
}

func NewMessageHandler(st store.Store, hub *ws.Hub) *MessageHandler {
	return &MessageHandler{St: st, Hub: hub}
}

// List returns a conversation's messages oldest-first.
func (h *MessageHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	if _, err := h.St.GetConversation(ctx, c.Param("conversationId")); errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "conversation not found"})
	} else if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not look up conversation"})
	}

	msgs, err := h.St.ListMessagesByConversation(ctx, c.Param("conversationId"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not list messages"})
	}
	return c.JSON(http.StatusOK, msgs)
}

type createMessageReq struct {
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	Content        string `json:"content"`
}

// Create appends a message and notifies both participants over their live
// websocket connections. Delivery is best effort; an offline participant
// simply misses the push.
func (h *MessageHandler) Create(c echo.Context) error {
	var req createMessageReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.ConversationID == "" || req.SenderID == "" || req.Content == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "conversationId, senderId and content are required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	conv, err := h.St.GetConversation(ctx, req.ConversationID)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "conversation not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not look up conversation"})
	}

	msg, err := h.St.CreateMessage(ctx, model.Message{
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		Content:        req.Content,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create message"})
	}

	if h.Hub != nil {
		jobTitle := ""
		if job, err := h.St.GetJob(ctx, conv.JobID); err == nil {
			jobTitle = job.Title
		}
		payload := map[string]any{
			"type":           "new_message",
			"message":        msg,
			"conversationId": conv.ID,
			"jobTitle":       jobTitle,
		}
		h.Hub.Push(conv.CustomerID, payload)
		h.Hub.Push(conv.ProviderID, payload)
	}

	return c.JSON(http.StatusCreated, msg)
}
