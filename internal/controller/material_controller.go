package controller

import (
	"errors"
	"exam_hub_backend/internal/model"
	"exam_hub_backend/internal/service"
	"exam_hub_backend/internal/util"
	"net/http"

	"github.com/gin-gonic/gin"
)

type MaterialController struct {
	MaterialService *service.MaterialService
}

func NewMaterialController(materialService *service.MaterialService) *MaterialController {
	return &MaterialController{MaterialService: materialService}
}

// RequestMaterial godoc
// @Summary 请求生成学习资料
// @Description 创建 generating 状态的资料并后台生成，客户端轮询状态
// @Tags 学习资料
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body service.MaterialRequest true "资料需求"
// @Success 202 {object} util.Response{data=model.GeneratedMaterial}
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 500 {object} util.Response "任务队列不可用"
// @Router /api/teacher/materials [post]
func (c *MaterialController) RequestMaterial(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req service.MaterialRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	m, err := c.MaterialService.Request(claims.UserID, req)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	ctx.JSON(http.StatusAccepted, util.Response{
		Code:    http.StatusAccepted,
		Message: "generating",
		Data:    m,
	})
}

// GetMaterial godoc
// @Summary 资料状态
// @Tags 学习资料
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "资料 ID"
// @Success 200 {object} util.Response{data=model.GeneratedMaterial}
// @Failure 404 {object} util.Response "资料不存在"
// @Router /api/materials/{id} [get]
func (c *MaterialController) GetMaterial(ctx *gin.Context) {
	if _, ok := currentUser(ctx); !ok {
		return
	}

	m, err := c.MaterialService.Find(ctx.Param("id"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	if m == nil {
		util.NotFound(ctx)
		return
	}
	util.Success(ctx, m)
}

// GetMaterialContent godoc
// @Summary 资料正文
// @Description 仅 available 状态的资料有正文
// @Tags 学习资料
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "资料 ID"
// @Success 200 {object} object "资料正文 JSON"
// @Failure 404 {object} util.Response "资料不存在"
// @Failure 409 {object} util.Response "资料尚未生成完成"
// @Router /api/materials/{id}/content [get]
func (c *MaterialController) GetMaterialContent(ctx *gin.Context) {
	if _, ok := currentUser(ctx); !ok {
		return
	}

	m, data, err := c.MaterialService.Content(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		if errors.Is(err, util.ErrMaterialNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	if m.Status != model.MaterialAvailable {
		util.Conflict(ctx, "material is not available: "+string(m.Status))
		return
	}

	ctx.Data(http.StatusOK, "application/json", data)
}

// ListMaterials godoc
// @Summary 我的资料列表
// @Tags 学习资料
// @Produce  json
// @Security BearerAuth
// @Param   page  query int false "页码" default(1)
// @Param   limit query int false "每页条数" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/teacher/materials [get]
func (c *MaterialController) ListMaterials(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	page := util.ParseIntDefault(ctx.Query("page"), 1)
	limit := util.ParseIntDefault(ctx.Query("limit"), 20)

	list, total, err := c.MaterialService.List(claims.UserID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: list, Total: total, Page: page, Limit: limit})
}
