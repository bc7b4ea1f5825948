package handlers

import (
	"errors"
	"io"
	"net/http"

	"backfeed/internal/service"

	"github.com/gin-gonic/gin"
)

type createUserRequest struct {
	Tokens     *float64 `json:"tokens"`
	Reputation *float64 `json:"reputation"`
	ReferrerID *int64   `json:"referrer_id"`
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	// an empty body takes every default
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := h.Svc.CreateUser(c.Request.Context(), service.UserParams{
		Tokens:     req.Tokens,
		Reputation: req.Reputation,
		ReferrerID: req.ReferrerID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.Svc.ListUsers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (h *Handler) GetUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	user, err := h.Svc.GetUser(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	referred, err := h.Svc.ListReferredUsers(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "referred_count": len(referred)})
}

func (h *Handler) UserLedger(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 100)
	if !ok {
		return
	}
	entries, err := h.Svc.UserLedger(c.Request.Context(), id, int(limit))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
