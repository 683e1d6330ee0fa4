package handler

import (
	"errors"
	"net/http"

	"chai-builder-go/internal/service"
	"chai-builder-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ProjectHandler 负责处理项目浏览与管理相关的 API 请求。
type ProjectHandler struct {
	projectService service.ProjectService
}

// NewProjectHandler 创建一个新的 ProjectHandler 实例。
func NewProjectHandler(projectService service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projectService: projectService}
}

// GetAllProjects 返回公开项目列表，带 q 参数时走全文检索。
func (h *ProjectHandler) GetAllProjects(c *gin.Context) {
	results, err := h.projectService.ListPublic(c.Request.Context(), c.Query("q"))
	if err != nil {
		log.Errorf("GetAllProjects: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error getting projects", "error": errDetail(err)})
		return
	}

	data := make([]gin.H, 0, len(results))
	for _, p := range results {
		data = append(data, gin.H{
			"id":                  p.ConversationID,
			"thumbnail":           p.Thumbnail,
			"chai_count":          p.ChaiCount,
			"title":               p.Title,
			"description":         p.Description,
			"features":            p.Features,
			"mainColorTheme":      p.MainColorTheme,
			"secondaryColorTheme": p.SecondaryColorTheme,
			"createdAt":           p.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// GetProjectByID 返回项目详情。
// 前端轮询未生成的会话是常态，找不到时返回 200 加 flag 软失败。
func (h *ProjectHandler) GetProjectByID(c *gin.Context) {
	project, err := h.projectService.GetByConversationID(c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrProjectNotFound) {
			c.JSON(http.StatusOK, gin.H{"success": false, "flag": "none", "message": "Project not found"})
			return
		}
		log.Errorf("GetProjectByID: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error getting project details", "error": errDetail(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"owner":               project.Owner,
			"id":                  project.ConversationID,
			"title":               project.Title,
			"description":         project.Description,
			"features":            project.FeatureList(),
			"files":               project.FileList(),
			"mainColorTheme":      project.MainColorTheme,
			"secondaryColorTheme": project.SecondaryColorTheme,
			"chatHistory":         project.History(),
			"Code":                project.CodeFiles(),
			"createdAt":           project.CreatedAt,
			"visibility":          project.Visibility,
			"chai_count":          project.ChaiCount,
			"thumbnail":           project.Thumbnail,
		},
	})
}

// GetProjectChat 返回会话历史与当前代码快照。
func (h *ProjectHandler) GetProjectChat(c *gin.Context) {
	project, err := h.projectService.GetByConversationID(c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrProjectNotFound) {
			c.JSON(http.StatusOK, gin.H{"success": false, "flag": "none", "message": "Project not found"})
			return
		}
		log.Errorf("GetProjectChat: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error getting project chat", "error": errDetail(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"id":          project.ConversationID,
			"chatHistory": project.History(),
			"Code":        project.CodeFiles(),
		},
	})
}

// ChangeVisibilityRequest 定义了可见性切换 API 的请求体结构。
type ChangeVisibilityRequest struct {
	Visibility string `json:"visibility" binding:"required"`
}

// ChangeVisibility 切换项目可见性。
func (h *ProjectHandler) ChangeVisibility(c *gin.Context) {
	user, _ := currentUser(c)

	var req ChangeVisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid visibility value"})
		return
	}

	project, err := h.projectService.ChangeVisibility(user, c.Param("id"), req.Visibility)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBadVisibility):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid visibility value"})
		case errors.Is(err, service.ErrProjectNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Project not found"})
		case errors.Is(err, service.ErrNotOwner):
			c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "Only project owner can change visibility"})
		case errors.Is(err, service.ErrPremiumRequired):
			c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "Premium subscription required for private projects", "requiresPremium": true})
		default:
			log.Errorf("ChangeVisibility: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error changing project visibility", "error": errDetail(err)})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Project visibility updated successfully",
		"data":    gin.H{"visibility": project.Visibility},
	})
}

// UpdateProjectRequest 定义了项目元数据更新 API 的请求体结构。
type UpdateProjectRequest struct {
	Title               *string `json:"title"`
	Description         *string `json:"description"`
	Thumbnail           *string `json:"thumbnail"`
	MainColorTheme      *string `json:"mainColorTheme"`
	SecondaryColorTheme *string `json:"secondaryColorTheme"`
}

func (r *UpdateProjectRequest) empty() bool {
	return r.Title == nil && r.Description == nil && r.Thumbnail == nil &&
		r.MainColorTheme == nil && r.SecondaryColorTheme == nil
}

// UpdateProject 更新项目的展示元数据。
func (h *ProjectHandler) UpdateProject(c *gin.Context) {
	user, _ := currentUser(c)

	var req UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.empty() {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "No updates provided"})
		return
	}

	project, err := h.projectService.UpdateMetadata(user, c.Param("id"), service.MetadataUpdate{
		Title:               req.Title,
		Description:         req.Description,
		Thumbnail:           req.Thumbnail,
		MainColorTheme:      req.MainColorTheme,
		SecondaryColorTheme: req.SecondaryColorTheme,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProjectNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Project not found"})
		case errors.Is(err, service.ErrNotOwner):
			c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "Only project owner can update project"})
		default:
			log.Errorf("UpdateProject: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error updating project", "error": errDetail(err)})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Project updated successfully",
		"data": gin.H{
			"id":                  project.ConversationID,
			"title":               project.Title,
			"description":         project.Description,
			"thumbnail":           project.Thumbnail,
			"mainColorTheme":      project.MainColorTheme,
			"secondaryColorTheme": project.SecondaryColorTheme,
		},
	})
}

// ChaiUpvote 为项目点一杯 chai。同一用户重复点赞不再计数。
func (h *ProjectHandler) ChaiUpvote(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Login required"})
		return
	}

	count, counted, err := h.projectService.Upvote(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrProjectNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Project not found"})
			return
		}
		log.Errorf("ChaiUpvote: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error upvoting project", "error": errDetail(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Project upvoted successfully",
		"data":    gin.H{"chai_count": count, "upvoted": counted},
	})
}

// UploadThumbnail 上传项目缩略图到对象存储。
func (h *ProjectHandler) UploadThumbnail(c *gin.Context) {
	user, _ := currentUser(c)

	fileHeader, err := c.FormFile("thumbnail")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Thumbnail file is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Failed to read thumbnail file"})
		return
	}
	defer file.Close()

	project, err := h.projectService.SaveThumbnail(c.Request.Context(), user, c.Param("id"),
		fileHeader.Filename, file, fileHeader.Size, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProjectNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Project not found"})
		case errors.Is(err, service.ErrNotOwner):
			c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "Only project owner can update project"})
		default:
			log.Errorf("UploadThumbnail: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error uploading thumbnail", "error": errDetail(err)})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Thumbnail uploaded successfully",
		"data":    gin.H{"id": project.ConversationID, "thumbnail": project.Thumbnail},
	})
}
