package handler

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"abandoned-cart-engine/internal/service"
	"abandoned-cart-engine/pkg/apierror"
	"abandoned-cart-engine/pkg/response"
)

// TaskHandler exposes the reconciliation operations over HTTP so host
// integrations can trigger a run outside the internal schedule.
type TaskHandler struct {
	manager *service.Manager
}

// NewTaskHandler creates a task handler.
func NewTaskHandler(manager *service.Manager) *TaskHandler {
	return &TaskHandler{manager: manager}
}

// Run handles POST /api/tasks/{name}
func (h *TaskHandler) Run(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var op func(context.Context) (*service.Result, error)
	switch name {
	case "mark":
		op = h.manager.Generate
	case "update":
		op = h.manager.UpdateAbandonedCarts
	case "delete":
		op = h.manager.CleanUp
	case "relaunch":
		op = h.manager.RelaunchTasks
	default:
		response.Error(w, apierror.NotFound("unknown task: "+name))
		return
	}

	result, err := op(r.Context())
	if err != nil {
		log.Printf("[TaskHandler] Task %s failed: %v", name, err)
		response.Error(w, apierror.InternalError("task "+name+" failed"))
		return
	}

	response.OK(w, result)
}
