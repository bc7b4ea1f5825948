package handlers

import (
	"net/http"
	"strconv"

	"backfeed/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

type createEvaluationRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
	Value  *int  `json:"value" binding:"required"`
}

// EvaluatorKey keys the evaluation rate limit on the evaluator in the body.
// The body is cached so the handler can bind it again.
func EvaluatorKey(c *gin.Context) string {
	var req createEvaluationRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		return ""
	}
	return strconv.FormatInt(req.UserID, 10)
}

func (h *Handler) CreateEvaluation(c *gin.Context) {
	contributionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req createEvaluationRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and value are required"})
		return
	}

	receipt, err := h.Svc.CreateEvaluation(c.Request.Context(), req.UserID, contributionID, *req.Value)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

// ListEvaluations serves ?contribution_id=&evaluator_id=&value=&include_inactive=.
func (h *Handler) ListEvaluations(c *gin.Context) {
	contributionID, ok := queryInt(c, "contribution_id", 0)
	if !ok {
		return
	}
	evaluatorID, ok := queryInt(c, "evaluator_id", 0)
	if !ok {
		return
	}
	f := repository.EvaluationFilter{
		ContributionID:  contributionID,
		EvaluatorID:     evaluatorID,
		IncludeInactive: c.Query("include_inactive") == "true",
	}
	if v := c.Query("value"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid value"})
			return
		}
		f.Value = &n
	}

	evals, err := h.Svc.ListEvaluations(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evaluations": evals})
}

func (h *Handler) GetEvaluation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	e, err := h.Svc.GetEvaluation(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *Handler) EvaluationHistory(c *gin.Context) {
	contributionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	evaluatorID, ok := queryInt(c, "evaluator_id", 0)
	if !ok {
		return
	}
	evals, err := h.Svc.EvaluationHistory(c.Request.Context(), contributionID, evaluatorID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evaluations": evals})
}
