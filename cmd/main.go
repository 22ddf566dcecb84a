package main

import (
	"tprm-service/internal/handler"
	"tprm-service/internal/mailer"
	"tprm-service/internal/middleware"
	"tprm-service/internal/model"
	"tprm-service/internal/service"
	"tprm-service/internal/storage"
	"tprm-service/pkg/config"
	"tprm-service/pkg/database"
	"tprm-service/pkg/jwtutil"
	"tprm-service/pkg/logger"
	"tprm-service/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	if err := logger.InitLogger(cfg); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	log.Info("Starting TPRM service...", zap.String("environment", cfg.Server.Env))

	// Initialize JWT signing
	jwtutil.Initialize(&cfg.JWT)

	// Initialize Prometheus metrics
	prometheus.InitMetrics(cfg)
	log.Info("Prometheus metrics initialized")

	// Initialize database
	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	if err := database.MigrateModels(
		&model.User{},
		&model.Session{},
		&model.UserPermission{},
		&model.TempVendor{},
		&model.Vendor{},
		&model.VendorContact{},
		&model.VendorContract{},
		&model.ContractTerm{},
		&model.ContractClause{},
		&model.TermQuestionnaire{},
		&model.QuestionnaireTemplate{},
		&model.ContractAmendment{},
		&model.ContractApproval{},
		&model.Risk{},
		&model.RFP{},
		&model.RFPEvaluationCriteria{},
		&model.VendorInvitation{},
		&model.RFPResponse{},
		&model.RFPUnmatchedVendor{},
		&model.RFPEvaluationScore{},
		&model.RFPEvaluatorAssignment{},
		&model.RFPCommitteeMember{},
		&model.RFPFinalEvaluation{},
		&model.RFPAwardNotification{},
		&model.FileOperationLog{},
	); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}
	log.Info("Database connection established and migrations completed")

	// Object storage
	s3Client, err := storage.NewS3Client(cfg.S3)
	if err != nil {
		log.Fatal("Failed to initialize S3 client", zap.Error(err))
	}
	files := storage.NewFileService(s3Client, cfg.S3.BucketName, db)

	// Outbound email
	sender := mailer.New(cfg.SMTP, cfg.Portal, log)

	// Services
	contracts := service.NewContractService(db, log)
	approvals := service.NewApprovalService(db, log)
	risks := service.NewRiskService(db, log, nil)
	rfps := service.NewRFPService(db, log)
	evaluations := service.NewEvaluationService(db, log)
	invitations := service.NewInvitationService(db, log, sender, cfg.Portal)
	credentials := service.NewCredentialService(db, log, sender, cfg.Portal)
	vendors := service.NewVendorService(db, log)

	// Handlers
	authHandler := handler.NewAuthHandler(db)
	contractHandler := handler.NewContractHandler(contracts, approvals, risks)
	rfpHandler := handler.NewRFPHandler(rfps, invitations, risks)
	evaluationHandler := handler.NewEvaluationHandler(evaluations, credentials, rfps)
	publicHandler := handler.NewPublicHandler(invitations, credentials)
	vendorHandler := handler.NewVendorHandler(vendors)
	fileHandler := handler.NewFileHandler(files)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window)

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.POST("/auth/login", authHandler.Login)

	// Token-addressed vendor portal endpoints. The capability token in the URL
	// is the credential; no session required.
	public := e.Group("/public")
	public.GET("/invitations/:token", publicHandler.OpenInvitation)
	public.POST("/invitations/:token/acknowledge", publicHandler.AcknowledgeInvitation)
	public.POST("/invitations/:token/decline", publicHandler.DeclineInvitation)
	public.PUT("/invitations/:token/draft", publicHandler.SaveDraft)
	public.POST("/invitations/:token/submit", publicHandler.SubmitResponse)
	public.POST("/award-response/:token", publicHandler.AwardResponse)

	// Authenticated routes
	perm := func(name string) echo.MiddlewareFunc {
		return middleware.RequirePermission(db, name)
	}
	authed := []echo.MiddlewareFunc{
		middleware.AuthMiddleware(db),
		middleware.RequireTenantContext(db),
		rateLimiter.Middleware(),
	}

	contractsGroup := e.Group("/contracts", authed...)
	contractsGroup.POST("", contractHandler.Create, perm("create_contract"))
	contractsGroup.GET("", contractHandler.List, perm("view_contracts"))
	contractsGroup.GET("/risk-summary", contractHandler.RiskSummary, perm("view_risk_assessments"))
	contractsGroup.GET("/:id", contractHandler.Get, perm("view_contracts"))
	contractsGroup.PUT("/:id", contractHandler.Update, perm("edit_contract"))
	contractsGroup.POST("/:id/document", contractHandler.AttachDocument, perm("edit_contract"))
	contractsGroup.GET("/:id/versions", contractHandler.Versions, perm("view_contracts"))
	contractsGroup.GET("/:id/compare/:other", contractHandler.Compare, perm("view_contracts"))
	contractsGroup.POST("/:id/amendments", contractHandler.CreateAmendment, perm("edit_contract"))
	contractsGroup.POST("/:id/subcontracts", contractHandler.CreateSubcontract, perm("create_contract"))
	contractsGroup.POST("/:id/archive", contractHandler.Archive, perm("edit_contract"))
	contractsGroup.POST("/:id/restore", contractHandler.Restore, perm("edit_contract"))
	contractsGroup.POST("/:id/approvals", contractHandler.AssignApproval, perm("approve_contract"))
	contractsGroup.GET("/:id/approvals", contractHandler.ListApprovals, perm("view_contracts"))
	contractsGroup.POST("/:id/analyze-risk", contractHandler.TriggerRiskAnalysis, perm("view_risk_assessments"))
	contractsGroup.GET("/:id/risks", contractHandler.ListRisks, perm("view_risk_assessments"))

	approvalsGroup := e.Group("/approvals", authed...)
	approvalsGroup.POST("/:id/start", contractHandler.StartApproval, perm("approve_contract"))
	approvalsGroup.POST("/:id/approve", contractHandler.Approve, perm("approve_contract"))
	approvalsGroup.POST("/:id/reject", contractHandler.RejectApproval, perm("approve_contract"))

	rfpGroup := e.Group("/rfp", authed...)
	rfpGroup.POST("", rfpHandler.Create, perm("create_rfp"))
	rfpGroup.GET("", rfpHandler.List, perm("view_rfp"))
	rfpGroup.POST("/evaluators/assign", evaluationHandler.BulkAssign, perm("assign_evaluators"))
	rfpGroup.PUT("/assignments/:id/status", evaluationHandler.UpdateAssignmentStatus, perm("score_rfp_response"))
	rfpGroup.POST("/responses/:id/scores", evaluationHandler.SaveScores, perm("score_rfp_response"))
	rfpGroup.GET("/responses/:id/aggregate", evaluationHandler.ResponseAggregate, perm("view_rfp_responses"))
	rfpGroup.POST("/unmatched-vendors/:id/match", rfpHandler.MatchVendor, perm("view_rfp_responses"))
	rfpGroup.GET("/:id", rfpHandler.Get, perm("view_rfp"))
	rfpGroup.PUT("/:id", rfpHandler.Update, perm("edit_rfp"))
	rfpGroup.POST("/:id/submit-for-review", rfpHandler.SubmitForReview, perm("edit_rfp"))
	rfpGroup.POST("/:id/approve", rfpHandler.Approve, perm("approve_rfp"))
	rfpGroup.POST("/:id/reject", rfpHandler.Reject, perm("approve_rfp"))
	rfpGroup.POST("/:id/publish", rfpHandler.Publish, perm("approve_rfp"))
	rfpGroup.POST("/:id/open-submissions", rfpHandler.OpenSubmissions, perm("edit_rfp"))
	rfpGroup.POST("/:id/start-evaluation", rfpHandler.StartEvaluation, perm("edit_rfp"))
	rfpGroup.POST("/:id/cancel", rfpHandler.Cancel, perm("edit_rfp"))
	rfpGroup.POST("/:id/archive", rfpHandler.Archive, perm("edit_rfp"))
	rfpGroup.POST("/:id/invitations", rfpHandler.Invite, perm("invite_vendors"))
	rfpGroup.GET("/:id/responses", rfpHandler.ListResponses, perm("view_rfp_responses"))
	rfpGroup.POST("/:id/analyze-risk", rfpHandler.TriggerRiskAnalysis, perm("view_risk_assessments"))
	rfpGroup.GET("/:id/risks", rfpHandler.ListRisks, perm("view_risk_assessments"))
	rfpGroup.PUT("/:id/committee", evaluationHandler.SetCommittee, perm("manage_committee"))
	rfpGroup.POST("/:id/final-evaluation", evaluationHandler.SubmitFinalEvaluation, perm("score_rfp_response"))
	rfpGroup.GET("/:id/consensus-ranking", evaluationHandler.ConsensusRanking, perm("view_rfp_responses"))
	rfpGroup.POST("/:id/award", evaluationHandler.DeclareAward, perm("award_rfp"))

	vendorsGroup := e.Group("/vendors", authed...)
	vendorsGroup.POST("", vendorHandler.Create, perm("edit_vendors"))
	vendorsGroup.GET("", vendorHandler.List, perm("view_vendors"))
	vendorsGroup.GET("/:id", vendorHandler.Get, perm("view_vendors"))
	vendorsGroup.PUT("/:id", vendorHandler.Update, perm("edit_vendors"))
	vendorsGroup.PUT("/:id/status", vendorHandler.TransitionStatus, perm("edit_vendors"))
	vendorsGroup.POST("/:id/contacts", vendorHandler.AddContact, perm("edit_vendors"))

	filesGroup := e.Group("/files", authed...)
	filesGroup.POST("", fileHandler.Upload, perm("upload_rfp_documents"))
	filesGroup.POST("/presign", fileHandler.Presign, perm("download_rfp_documents"))
	filesGroup.POST("/merge-pdfs", fileHandler.MergePDFs, perm("upload_rfp_documents"))

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
