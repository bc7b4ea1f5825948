package handlers

import (
	"net/http"

	"backfeed/internal/service"

	"github.com/gin-gonic/gin"
)

type createContributionRequest struct {
	UserID           int64  `json:"user_id" binding:"required"`
	ContributionType string `json:"contribution_type"`
}

func (h *Handler) CreateContribution(c *gin.Context) {
	var req createContributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	contribution, err := h.Svc.CreateContribution(c.Request.Context(), req.UserID, req.ContributionType)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, contribution)
}

// ListContributions serves ?start=&limit=&contributor_id=&order_by=.
func (h *Handler) ListContributions(c *gin.Context) {
	start, ok := queryInt(c, "start", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	contributor, ok := queryInt(c, "contributor_id", 0)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	items, err := h.Svc.GetContributions(ctx, service.ContributionQuery{
		Start:         int(start),
		Limit:         int(limit),
		ContributorID: contributor,
		OrderBy:       c.Query("order_by"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	total, err := h.Svc.ContributionsCount(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contributions": items, "total": total})
}

func (h *Handler) GetContribution(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	contribution, err := h.Svc.GetContribution(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	score, err := h.Svc.ContributionScore(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	upvotes, err := h.Svc.ContributionUpvotes(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, service.RankedContribution{Contribution: contribution, Score: score, Upvotes: upvotes})
}

func (h *Handler) ContributionTypes(c *gin.Context) {
	p := h.Svc.Policy()
	c.JSON(http.StatusOK, gin.H{
		"default": p.DefaultContributionType,
		"types":   p.ContributionTypes,
	})
}
