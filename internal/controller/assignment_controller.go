package controller

import (
	"errors"
	"exam_hub_backend/internal/service"
	"exam_hub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AssignmentController struct {
	AssignmentService *service.AssignmentService
	AnalysisService   *service.AnalysisService
}

func NewAssignmentController(assignmentService *service.AssignmentService, analysisService *service.AnalysisService) *AssignmentController {
	return &AssignmentController{
		AssignmentService: assignmentService,
		AnalysisService:   analysisService,
	}
}

func respondAssignmentError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrAssignmentNotFound), errors.Is(err, util.ErrExamNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(ctx)
	case errors.Is(err, util.ErrInvalidTransition):
		util.Conflict(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

// ListAssignments godoc
// @Summary 我的作答列表
// @Tags 作答
// @Produce  json
// @Security BearerAuth
// @Param   page  query int false "页码" default(1)
// @Param   limit query int false "每页条数" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/assignments [get]
func (c *AssignmentController) ListAssignments(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	page := util.ParseIntDefault(ctx.Query("page"), 1)
	limit := util.ParseIntDefault(ctx.Query("limit"), 20)

	list, total, err := c.AssignmentService.ListByStudent(claims.UserID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: list, Total: total, Page: page, Limit: limit})
}

// GetAssignment godoc
// @Summary 作答详情
// @Description 标准答案与判分结果只在 graded 之后返回
// @Tags 作答
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "作答 ID"
// @Success 200 {object} util.Response{data=service.StudentAssignmentDetail}
// @Failure 404 {object} util.Response "作答不存在"
// @Router /api/assignments/{id} [get]
func (c *AssignmentController) GetAssignment(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	detail, err := c.AssignmentService.GetDetail(claims.UserID, ctx.Param("id"))
	if err != nil {
		respondAssignmentError(ctx, err)
		return
	}
	util.Success(ctx, detail)
}

// StartAssignment godoc
// @Summary 开始作答
// @Description 仅允许 pending 状态，重复开始返回 409
// @Tags 作答
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "作答 ID"
// @Success 200 {object} util.Response{data=model.ExamAssignment}
// @Failure 404 {object} util.Response "作答不存在"
// @Failure 409 {object} util.Response "状态不允许开始"
// @Router /api/assignments/{id}/start [post]
func (c *AssignmentController) StartAssignment(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	assignment, err := c.AssignmentService.Start(claims.UserID, ctx.Param("id"))
	if err != nil {
		respondAssignmentError(ctx, err)
		return
	}
	util.Success(ctx, assignment)
}

// SubmitAnswerRequest 单题作答
type SubmitAnswerRequest struct {
	QuestionID string `json:"questionId" binding:"required"`
	Value      string `json:"value"`
}

// SubmitAnswer godoc
// @Summary 提交单题答案
// @Description 同一题重复提交覆盖旧答案
// @Tags 作答
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "作答 ID"
// @Param   body body SubmitAnswerRequest true "答案"
// @Success 200 {object} util.Response{data=model.AssignmentAnswer}
// @Failure 404 {object} util.Response "作答或题目不存在"
// @Failure 409 {object} util.Response "作答未在进行中"
// @Router /api/assignments/{id}/answers [post]
func (c *AssignmentController) SubmitAnswer(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req SubmitAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	ans, err := c.AssignmentService.SubmitAnswer(claims.UserID, ctx.Param("id"), req.QuestionID, req.Value)
	if err != nil {
		respondAssignmentError(ctx, err)
		return
	}
	util.Success(ctx, ans)
}

// FinalizeAssignment godoc
// @Summary 交卷并评分
// @Description 同步返回成绩，分析与补救在后台异步完成
// @Tags 作答
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "作答 ID"
// @Success 200 {object} util.Response{data=service.FinalizeResult}
// @Failure 404 {object} util.Response "作答不存在"
// @Failure 409 {object} util.Response "作答未在进行中或已交卷"
// @Router /api/assignments/{id}/finalize [post]
func (c *AssignmentController) FinalizeAssignment(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	result, err := c.AssignmentService.Finalize(claims.UserID, ctx.Param("id"))
	if err != nil {
		respondAssignmentError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// GetAnalysis godoc
// @Summary 作答分析
// @Description 分析由后台流水线生成，尚未生成时返回 404
// @Tags 作答
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "作答 ID"
// @Success 200 {object} util.Response{data=model.ExamAnalysis}
// @Failure 404 {object} util.Response "分析尚未生成"
// @Router /api/assignments/{id}/analysis [get]
func (c *AssignmentController) GetAnalysis(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	assignmentID := ctx.Param("id")
	if _, err := c.AssignmentService.GetDetail(claims.UserID, assignmentID); err != nil {
		respondAssignmentError(ctx, err)
		return
	}

	analysis, err := c.AnalysisService.FindByAssignment(assignmentID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	if analysis == nil {
		util.NotFound(ctx)
		return
	}
	util.Success(ctx, analysis)
}

// GetRemediation godoc
// @Summary 补救试卷状态
// @Description 轮询补救试卷是否已生成。ready 为 false 不代表失败，可能还在生成或不需要补救
// @Tags 作答
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "作答 ID"
// @Success 200 {object} util.Response{data=service.RemediationStatus}
// @Failure 404 {object} util.Response "作答不存在"
// @Router /api/assignments/{id}/remediation [get]
func (c *AssignmentController) GetRemediation(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	status, err := c.AssignmentService.GetRemediationStatus(claims.UserID, ctx.Param("id"))
	if err != nil {
		respondAssignmentError(ctx, err)
		return
	}
	util.Success(ctx, status)
}
