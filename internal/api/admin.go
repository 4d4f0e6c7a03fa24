package api

import (
	"errors"
	"net/http"

	"proxyhub-api/internal/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ListReconciliationTasks returns open reconciliation records: purchases
// that were paid for upstream but could not be written locally.
// GET /admin/reconciliation
func ListReconciliationTasks(c *gin.Context) {
	tasks, err := reconciliationRepo.ListUnresolved(c.Request.Context())
	if err != nil {
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to list reconciliation tasks")
		return
	}
	response.SuccessJSON(c, gin.H{"tasks": tasks})
}

// ResolveReconciliationTask marks a reconciliation record as handled
// POST /admin/reconciliation/:taskId/resolve
func ResolveReconciliationTask(c *gin.Context) {
	taskID := c.Param("taskId")
	if taskID == "" {
		response.ErrorJSON(c, http.StatusBadRequest, "taskId is required")
		return
	}

	if err := reconciliationRepo.Resolve(c.Request.Context(), taskID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.ErrorJSON(c, http.StatusNotFound, "Task not found")
			return
		}
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to resolve task")
		return
	}

	response.SuccessJSON(c, gin.H{"task_id": taskID, "resolved": true})
}
