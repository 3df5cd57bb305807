package controller

import (
	"errors"
	"exam_hub_backend/internal/model"
	"exam_hub_backend/internal/service"
	"exam_hub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ExamController struct {
	ExamService *service.ExamService
}

func NewExamController(examService *service.ExamService) *ExamController {
	return &ExamController{ExamService: examService}
}

func currentUser(ctx *gin.Context) (*util.Claims, bool) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return nil, false
	}
	return claims, true
}

// CreateExam godoc
// @Summary 创建试卷
// @Description 教师建卷，题目随试卷一并提交
// @Tags 试卷
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body service.CreateExamRequest true "试卷内容"
// @Success 201 {object} util.Response{data=model.Exam}
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 500 {object} util.Response "服务器内部错误"
// @Router /api/teacher/exams [post]
func (c *ExamController) CreateExam(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req service.CreateExamRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	exam, err := c.ExamService.Create(claims.UserID, req)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Created(ctx, exam)
}

// PublishExam godoc
// @Summary 发布试卷
// @Tags 试卷
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "试卷 ID"
// @Success 200 {object} util.Response
// @Failure 403 {object} util.Response "无权操作"
// @Failure 404 {object} util.Response "试卷不存在"
// @Router /api/teacher/exams/{id}/publish [post]
func (c *ExamController) PublishExam(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	err := c.ExamService.Publish(ctx.Param("id"), claims.UserID, claims.Role == model.Admin)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrExamNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrPermissionDenied):
			util.Forbidden(ctx)
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, nil)
}

// AssignExamRequest 布置试卷请求
type AssignExamRequest struct {
	StudentID uint `json:"studentId" binding:"required"`
}

// AssignExam godoc
// @Summary 布置试卷
// @Description 把已发布的试卷布置给学生，重复布置返回已有作答记录
// @Tags 试卷
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "试卷 ID"
// @Param   body body AssignExamRequest true "学生"
// @Success 201 {object} util.Response{data=model.ExamAssignment}
// @Failure 400 {object} util.Response "试卷未发布"
// @Failure 404 {object} util.Response "试卷或学生不存在"
// @Router /api/teacher/exams/{id}/assign [post]
func (c *ExamController) AssignExam(ctx *gin.Context) {
	if _, ok := currentUser(ctx); !ok {
		return
	}

	var req AssignExamRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	assignment, err := c.ExamService.Assign(ctx.Param("id"), req.StudentID)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrExamNotFound), errors.Is(err, util.ErrUserNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrExamNotPublished):
			util.BadRequest(ctx, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Created(ctx, assignment)
}

// GetExam godoc
// @Summary 试卷详情
// @Description 教师视角返回标准答案，学生视角不返回
// @Tags 试卷
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "试卷 ID"
// @Success 200 {object} util.Response{data=service.ExamDetail}
// @Failure 404 {object} util.Response "试卷不存在"
// @Router /api/exams/{id} [get]
func (c *ExamController) GetExam(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	includeAnswers := claims.Role == model.Teacher || claims.Role == model.Admin
	detail, err := c.ExamService.Get(ctx.Param("id"), includeAnswers)
	if err != nil {
		if errors.Is(err, util.ErrExamNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, detail)
}

// ListExams godoc
// @Summary 试卷列表
// @Tags 试卷
// @Produce  json
// @Security BearerAuth
// @Param   page  query int false "页码" default(1)
// @Param   limit query int false "每页条数" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/exams [get]
func (c *ExamController) ListExams(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	page := util.ParseIntDefault(ctx.Query("page"), 1)
	limit := util.ParseIntDefault(ctx.Query("limit"), 20)

	onlyPublished := claims.Role == model.Student
	list, total, err := c.ExamService.List(page, limit, onlyPublished)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: list, Total: total, Page: page, Limit: limit})
}

// DeleteExam godoc
// @Summary 删除试卷
// @Tags 试卷
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "试卷 ID"
// @Success 200 {object} util.Response
// @Failure 403 {object} util.Response "无权操作"
// @Failure 404 {object} util.Response "试卷不存在"
// @Router /api/teacher/exams/{id} [delete]
func (c *ExamController) DeleteExam(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	err := c.ExamService.Delete(ctx.Param("id"), claims.UserID, claims.Role == model.Admin)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrExamNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrPermissionDenied):
			util.Forbidden(ctx)
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, nil)
}
