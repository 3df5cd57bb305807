package app

import (
	"exam_hub_backend/docs"
	"exam_hub_backend/internal/config"
	"exam_hub_backend/internal/middleware"
	"exam_hub_backend/internal/model"
	"exam_hub_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由（无需登录）
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	// 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		authGroup.GET("/me", c.auth.Me)

		// 试卷（学生只看已发布，答案不可见）
		authGroup.GET("/exams", c.exam.ListExams)
		authGroup.GET("/exams/:id", c.exam.GetExam)

		// 作答生命周期
		authGroup.GET("/assignments", c.assignment.ListAssignments)
		authGroup.GET("/assignments/:id", c.assignment.GetAssignment)
		authGroup.POST("/assignments/:id/start", c.assignment.StartAssignment)
		authGroup.POST("/assignments/:id/answers", c.assignment.SubmitAnswer)
		authGroup.POST("/assignments/:id/finalize", c.assignment.FinalizeAssignment)
		authGroup.GET("/assignments/:id/analysis", c.assignment.GetAnalysis)
		authGroup.GET("/assignments/:id/remediation", c.assignment.GetRemediation)

		// 学习资料（状态与正文所有登录用户可读）
		authGroup.GET("/materials/:id", c.material.GetMaterial)
		authGroup.GET("/materials/:id/content", c.material.GetMaterialContent)

		// 教师相关接口
		teacher := authGroup.Group("/teacher")
		teacher.Use(middleware.RoleMiddleware(model.Teacher))
		{
			teacher.POST("/exams", c.exam.CreateExam)
			teacher.POST("/exams/:id/publish", c.exam.PublishExam)
			teacher.POST("/exams/:id/assign", c.exam.AssignExam)
			teacher.DELETE("/exams/:id", c.exam.DeleteExam)

			teacher.POST("/materials", c.material.RequestMaterial)
			teacher.GET("/materials", c.material.ListMaterials)
		}
	}
}
