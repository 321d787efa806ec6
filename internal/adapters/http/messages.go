package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/Duet/internal/app/orch"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type MessageHandler struct {
	Orch *orch.Orchestrator
}

func (h *MessageHandler) Users(c *gin.Context) {
	users, err := h.Orch.Users(c.Request.Context(), MustUserID(c))
	if err != nil {
		writeError(c, "users", err)
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	c.JSON(http.StatusOK, users)
}

func (h *MessageHandler) Conversation(c *gin.Context) {
	msgs, err := h.Orch.Conversation(c.Request.Context(), MustUserID(c), domain.UserID(c.Param("id")))
	if err != nil {
		writeError(c, "conversation", err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *MessageHandler) Send(c *gin.Context) {
	var p domain.MessagePayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	m, err := h.Orch.SendMessage(c.Request.Context(), MustUserID(c), domain.UserID(c.Param("id")), p)
	if err != nil {
		writeError(c, "send", err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *MessageHandler) DeleteForMe(c *gin.Context) {
	id := domain.MessageID(c.Param("messageId"))
	if err := h.Orch.DeleteForMe(c.Request.Context(), id, MustUserID(c)); err != nil {
		writeError(c, "delete-for-me", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Message deleted for you", "messageId": id})
}

func (h *MessageHandler) DeleteForEveryone(c *gin.Context) {
	ev, err := h.Orch.DeleteForEveryone(c.Request.Context(), domain.MessageID(c.Param("messageId")), MustUserID(c))
	if err != nil {
		writeError(c, "delete-for-everyone", err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (h *MessageHandler) Presence(c *gin.Context) {
	c.JSON(http.StatusOK, h.Orch.Presence())
}

func writeError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Not allowed"})
	case errors.Is(err, domain.ErrEmptyMessage), errors.Is(err, domain.ErrInvalidIdentity):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("module", "adapters.http").Str("op", op).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
