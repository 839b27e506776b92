package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"pagespace/application/services"
	"pagespace/domain/core/entities"
	"pagespace/domain/core/valueobjects"
	"pagespace/domain/tree"
	"pagespace/pkg/auth"
	"pagespace/pkg/common"
	pkgerrors "pagespace/pkg/errors"
	"pagespace/pkg/utils"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// PageHandler handles page-related HTTP requests
type PageHandler struct {
	pages  *services.PageService
	logger *zap.Logger
}

// NewPageHandler creates a new page handler
func NewPageHandler(pages *services.PageService, logger *zap.Logger) *PageHandler {
	return &PageHandler{
		pages:  pages,
		logger: logger,
	}
}

// CreatePageRequest represents the request body for creating a page
type CreatePageRequest struct {
	WorkspaceID string  `json:"workspaceId" validate:"required,uuid"`
	Title       string  `json:"title" validate:"omitempty,max=500"`
	ParentID    *string `json:"parentId" validate:"omitempty,uuid"`
}

// UpdatePageRequest captures a partial update. Raw messages distinguish a
// field that was absent (kept as stored) from one set to null (reset to
// its default).
type UpdatePageRequest struct {
	Title    json.RawMessage `json:"title"`
	Content  json.RawMessage `json:"content"`
	ParentID json.RawMessage `json:"parentId"`
}

// PageResponse is the wire representation of a page
type PageResponse struct {
	ID          string  `json:"id"`
	WorkspaceID string  `json:"workspaceId"`
	ParentID    *string `json:"parentId"`
	Title       string  `json:"title"`
	Content     string  `json:"content"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

// PageTreeNode is one node of the nested tree response
type PageTreeNode struct {
	PageResponse
	Children []PageTreeNode `json:"children"`
}

// CreatePage handles POST /pages
func (h *PageHandler) CreatePage(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	var req CreatePageRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}

	workspaceID, err := valueobjects.NewWorkspaceIDFromString(req.WorkspaceID)
	if err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "invalid workspace id")
		return
	}

	input := services.CreatePageInput{
		Title:       req.Title,
		WorkspaceID: workspaceID,
	}
	if req.ParentID != nil {
		parentID, err := valueobjects.NewPageIDFromString(*req.ParentID)
		if err != nil {
			common.RespondAppError(w, pkgerrors.NewInvalidParentError("invalid parent id"))
			return
		}
		input.ParentID = &parentID
	}

	page, err := h.pages.CreatePage(r.Context(), userCtx.UserID, input)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusCreated, toPageResponse(page))
}

// GetPage handles GET /pages/{pageID}
func (h *PageHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	pageID, err := valueobjects.NewPageIDFromString(chi.URLParam(r, "pageID"))
	if err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "invalid page id")
		return
	}

	page, err := h.pages.GetPage(r.Context(), userCtx.UserID, pageID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, toPageResponse(page))
}

// UpdatePage handles PATCH /pages/{pageID}
func (h *PageHandler) UpdatePage(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	pageID, err := valueobjects.NewPageIDFromString(chi.URLParam(r, "pageID"))
	if err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "invalid page id")
		return
	}

	var req UpdatePageRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "Invalid request body: "+err.Error())
		return
	}

	input, err := req.toInput()
	if err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}

	page, err := h.pages.UpdatePage(r.Context(), userCtx.UserID, pageID, input)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, toPageResponse(page))
}

// DeletePage handles DELETE /pages/{pageID}
func (h *PageHandler) DeletePage(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	pageID, err := valueobjects.NewPageIDFromString(chi.URLParam(r, "pageID"))
	if err != nil {
		common.RespondError(w, http.StatusBadRequest, "VALIDATION", "invalid page id")
		return
	}

	deleted, err := h.pages.DeletePage(r.Context(), userCtx.UserID, pageID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	ids := make([]string, len(deleted))
	for i, id := range deleted {
		ids[i] = id.String()
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"deletedIds": ids,
	})
}

// ListPages handles GET /workspaces/{workspaceID}/pages
func (h *PageHandler) ListPages(w http.ResponseWriter, r *http.Request) {
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

	pages, err := h.pages.ListPages(r.Context(), userCtx.UserID, workspaceID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	out := make([]PageResponse, len(pages))
	for i, page := range pages {
		out[i] = toPageResponse(page)
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"pages": out,
	})
}

// PageTree handles GET /workspaces/{workspaceID}/pages/tree
func (h *PageHandler) PageTree(w http.ResponseWriter, r *http.Request) {
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

	nodes, err := h.pages.PageTree(r.Context(), userCtx.UserID, workspaceID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"tree": toTreeNodes(nodes),
	})
}

// toInput translates the raw wire fields into service-level update fields.
// Explicit nulls collapse to the field defaults.
func (req UpdatePageRequest) toInput() (services.UpdatePageInput, error) {
	var input services.UpdatePageInput

	title, err := decodeNullableString(req.Title)
	if err != nil {
		return input, err
	}
	input.Title = title

	content, err := decodeNullableString(req.Content)
	if err != nil {
		return input, err
	}
	input.Content = content

	parentID, err := decodeNullableString(req.ParentID)
	if err != nil {
		return input, err
	}
	input.ParentID = parentID

	return input, nil
}

// decodeNullableString maps an absent field to nil and an explicit null
// to a pointer at ""
func decodeNullableString(raw json.RawMessage) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	if string(raw) == "null" {
		empty := ""
		return &empty, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func toPageResponse(page *entities.Page) PageResponse {
	var parentID *string
	if page.ParentID() != nil {
		s := page.ParentID().String()
		parentID = &s
	}
	return PageResponse{
		ID:          page.ID().String(),
		WorkspaceID: page.WorkspaceID().String(),
		ParentID:    parentID,
		Title:       page.Title(),
		Content:     page.Content(),
		CreatedAt:   page.CreatedAt().UTC().Format(time.RFC3339Nano),
		UpdatedAt:   page.UpdatedAt().UTC().Format(time.RFC3339Nano),
	}
}

func toTreeNodes(nodes []*tree.PageNode) []PageTreeNode {
	out := make([]PageTreeNode, len(nodes))
	for i, node := range nodes {
		out[i] = PageTreeNode{
			PageResponse: toPageResponse(node.Page),
			Children:     toTreeNodes(node.Children),
		}
	}
	return out
}
