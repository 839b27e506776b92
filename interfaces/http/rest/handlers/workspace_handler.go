package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"pagespace/application/services"
	"pagespace/domain/core/entities"
	"pagespace/domain/core/valueobjects"
	"pagespace/pkg/auth"
	"pagespace/pkg/common"
	"pagespace/pkg/utils"
)

// WorkspaceHandler handles workspace-related HTTP requests
type WorkspaceHandler struct {
	workspaces *services.WorkspaceService
	logger     *zap.Logger
}

// NewWorkspaceHandler creates a new workspace handler
func NewWorkspaceHandler(workspaces *services.WorkspaceService, logger *zap.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{
		workspaces: workspaces,
		logger:     logger,
	}
}

// CreateWorkspaceRequest represents the request body for creating a workspace
type CreateWorkspaceRequest struct {
	Name string `json:"name" validate:"required,min=1,max=200"`
}

// AddMemberRequest represents the request body for adding a member
type AddMemberRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// WorkspaceResponse is the wire representation of a workspace
type WorkspaceResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	OwnerID   string `json:"ownerId"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// CreateWorkspace handles POST /workspaces
func (h *WorkspaceHandler) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	var req CreateWorkspaceRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}

	ws, err := h.workspaces.CreateWorkspace(r.Context(), userCtx.UserID, req.Name)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusCreated, toWorkspaceResponse(ws))
}

// ListWorkspaces handles GET /workspaces
func (h *WorkspaceHandler) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	workspaces, err := h.workspaces.ListWorkspaces(r.Context(), userCtx.UserID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	out := make([]WorkspaceResponse, len(workspaces))
	for i, ws := range workspaces {
		out[i] = toWorkspaceResponse(ws)
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"workspaces": out,
	})
}

// AddMember handles POST /workspaces/{workspaceID}/members
func (h *WorkspaceHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	workspaceID, err := valueobjects.NewWorkspaceIDFromString(chi.URLParam(r, "workspaceID"))
	if err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "invalid workspace id")
		return
	}

	var req AddMemberRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}

	if err := h.workspaces.AddMember(r.Context(), userCtx.UserID, workspaceID, req.UserID); err != nil {
		common.RespondAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func toWorkspaceResponse(ws *entities.Workspace) WorkspaceResponse {
	return WorkspaceResponse{
		ID:        ws.ID().String(),
		Name:      ws.Name(),
		OwnerID:   ws.OwnerID(),
		CreatedAt: ws.CreatedAt().UTC().Format(time.RFC3339Nano),
		UpdatedAt: ws.UpdatedAt().UTC().Format(time.RFC3339Nano),
	}
}
