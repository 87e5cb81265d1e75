package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"review-hand/config"
	"review-hand/models"
	"review-hand/providers"
	"review-hand/providers/arxiv"
	"review-hand/providers/pubmed"
	"review-hand/providers/unpaywall"
	"review-hand/services"
	"review-hand/storage"
	"strings"
	"time"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	uploadedPapersCounter  prometheus.Counter
	generatedDraftsCounter prometheus.Counter
)

func init() {
	uploadedPapersCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reference_papers_uploaded_total",
			Help: "Total number of reference papers uploaded.",
		},
	)
	generatedDraftsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "review_drafts_generated_total",
			Help: "Total number of review drafts generated.",
		},
	)
	prometheus.MustRegister(uploadedPapersCounter, generatedDraftsCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Setup Database Connection
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	// Auto-Migration
	logging.Info("Running database auto-migration...")
	db.AutoMigrate(
		&models.Project{}, &models.Keyword{}, &models.ReferencePaper{},
		&models.StyleAnalysis{}, &models.ReviewPlan{}, &models.SearchedLiterature{},
		&models.ReviewDraft{}, &models.AIConfig{}, &models.ReviewTemplate{},
		&models.WritingPhrase{},
	)

	// Seeding
	seedDefaultTemplates(db, logging)
	seedWritingPhrases(db, logging)

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		logging.Fatal("Failed to create upload directory", zap.Error(err))
	}

	// Setup Providers
	searchProviders := map[string]providers.Provider{
		"arxiv":  arxiv.NewFetcher(cfg, logging),
		"pubmed": pubmed.NewFetcher(cfg, logging),
	}
	unpaywallFetcher := unpaywall.NewFetcher(cfg, logging)

	// Setup Services
	var s3Client *awss3.Client
	if cfg.S3Enabled() {
		s3Client, err = storage.NewS3Client(cfg)
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
		logging.Info("S3 mirroring enabled", zap.String("bucket", cfg.S3Bucket))
	}
	aiService := services.NewAIService(cfg, db, logging)

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Setup Routes
	api := router.Group("/api")
	setupProjectRoutes(api, db, logging)
	setupKeywordRoutes(api, db, aiService, logging)
	setupPaperRoutes(api, cfg, db, s3Client, logging)
	setupAnalysisRoutes(api, db, aiService, logging)
	setupPlanRoutes(api, db, aiService, logging)
	setupTemplateRoutes(api, db, logging)
	setupSearchRoutes(api, db, searchProviders, aiService, logging)
	setupLiteratureRoutes(api, db, aiService, unpaywallFetcher, logging)
	setupDraftRoutes(api, db, aiService, logging)
	setupExportRoutes(api, db, logging)
	setupConfigRoutes(api, db, aiService, logging)
	setupDiagramRoutes(api, aiService, logging)
	setupPhraseRoutes(api, db, logging)

	// Setup Cron
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled text re-extraction sweep...")
		count := reextractMissingTexts(db, logging)
		logging.Info("Text re-extraction sweep completed", zap.Int("reextracted", count))
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// Draft generation streams for minutes; no fixed write deadline.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

// loadProject resolves the :id route parameter into a project, writing the
// error response itself when the project cannot be loaded.
func loadProject(c *gin.Context, db *gorm.DB, log *zap.Logger) (*models.Project, bool) {
	id := c.Param("id")
	var project models.Project
	if err := db.First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
			return nil, false
		}
		log.Error("DB error loading project", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return nil, false
	}
	return &project, true
}

// paperPayload is one paper in a bulk literature save.
type paperPayload struct {
	Title      string `json:"title"`
	Authors    string `json:"authors"`
	Abstract   string `json:"abstract"`
	Source     string `json:"source"`
	DOI        string `json:"doi"`
	URL        string `json:"url"`
	PDFURL     string `json:"pdf_url"`
	Published  string `json:"published"`
	IsSelected *bool  `json:"is_selected"`
}

// payloadToLiterature maps a saved paper onto a literature row. Papers
// without a title are rejected; a paper is selected unless the payload says
// otherwise.
func payloadToLiterature(projectID uint, p paperPayload) (models.SearchedLiterature, bool) {
	if p.Title == "" {
		return models.SearchedLiterature{}, false
	}
	if p.Source == "" {
		p.Source = "search"
	}
	metaBytes, _ := json.Marshal(map[string]string{"published": p.Published})
	return models.SearchedLiterature{
		ProjectID:  projectID,
		Source:     p.Source,
		Title:      p.Title,
		Authors:    p.Authors,
		Abstract:   p.Abstract,
		DOI:        p.DOI,
		URL:        p.URL,
		PDFURL:     p.PDFURL,
		Metadata:   string(metaBytes),
		IsSelected: p.IsSelected == nil || *p.IsSelected,
	}, true
}

// respondData wraps a successful payload in the response envelope all
// clients expect.
func respondData(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func respondMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message})
}

// selectedLiterature returns the selected literature of a project in insertion
// order. Citation numbering in drafts and exports depends on this order.
func selectedLiterature(db *gorm.DB, projectID uint) ([]models.SearchedLiterature, error) {
	var items []models.SearchedLiterature
	err := db.Where("project_id = ? AND is_selected = ?", projectID, true).
		Order("created_at asc, id asc").Find(&items).Error
	return items, err
}

func setupProjectRoutes(rg *gin.RouterGroup, db *gorm.DB, log *zap.Logger) {
	projects := rg.Group("/projects")

	projects.POST("", func(c *gin.Context) {
		var req struct {
			Name        string `json:"name" binding:"required"`
			Description string `json:"description"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: name is required"})
			return
		}
		project := models.Project{
			Name:        req.Name,
			Description: req.Description,
			Status:      models.ProjectStatusDraft,
		}
		if err := db.Create(&project).Error; err != nil {
			log.Error("Failed to create project", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create project"})
			return
		}
		log.Info("Project created", zap.Uint("id", project.ID), zap.String("name", project.Name))
		respondData(c, project)
	})

	projects.GET("", func(c *gin.Context) {
		var list []models.Project
		if err := db.Order("updated_at desc").Find(&list).Error; err != nil {
			log.Error("Database query for projects failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		respondData(c, list)
	})

	projects.GET("/:id", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		respondData(c, project)
	})

	projects.PUT("/:id", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		var updateData map[string]interface{}
		if err := c.ShouldBindJSON(&updateData); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		allowed := map[string]interface{}{}
		for _, field := range []string{"name", "description", "status"} {
			if v, ok := updateData[field]; ok {
				allowed[field] = v
			}
		}
		if len(allowed) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no updatable fields provided"})
			return
		}
		if err := db.Model(project).Updates(allowed).Error; err != nil {
			log.Error("Failed to update project", zap.Uint("id", project.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update project"})
			return
		}
		respondData(c, project)
	})

	// Deleting a project removes all dependent rows in one transaction so a
	// partial failure never leaves orphans behind.
	projects.DELETE("/:id", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			for _, m := range []interface{}{
				&models.Keyword{}, &models.ReferencePaper{}, &models.StyleAnalysis{},
				&models.ReviewPlan{}, &models.SearchedLiterature{}, &models.ReviewDraft{},
			} {
				if err := tx.Where("project_id = ?", project.ID).Delete(m).Error; err != nil {
					return err
				}
			}
			return tx.Delete(project).Error
		})
		if err != nil {
			log.Error("Failed to delete project", zap.Uint("id", project.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete project"})
			return
		}
		log.Info("Project deleted", zap.Uint("id", project.ID))
		respondMessage(c, "project deleted")
	})
}

func setupKeywordRoutes(rg *gin.RouterGroup, db *gorm.DB, ai *services.AIService, log *zap.Logger) {
	rg.GET("/projects/:id/keywords", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		var keywords []models.Keyword
		if err := db.Where("project_id = ?", project.ID).Order("id asc").Find(&keywords).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		respondData(c, keywords)
	})

	rg.POST("/projects/:id/keywords", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		var req struct {
			Keyword   string `json:"keyword" binding:"required"`
			Category  string `json:"category"`
			IsPrimary bool   `json:"is_primary"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: keyword is required"})
			return
		}
		keyword := models.Keyword{
			ProjectID: project.ID,
			Keyword:   req.Keyword,
			Category:  req.Category,
			IsPrimary: req.IsPrimary,
		}
		if err := db.Create(&keyword).Error; err != nil {
			log.Error("Failed to create keyword", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create keyword"})
			return
		}
		respondData(c, keyword)
	})

	rg.DELETE("/keywords/:id", func(c *gin.Context) {
		id := c.Param("id")
		result := db.Delete(&models.Keyword{}, id)
		if result.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete keyword"})
			return
		}
		if result.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "keyword not found"})
			return
		}
		respondMessage(c, "keyword deleted")
	})

	rg.POST("/projects/:id/keywords/suggest", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		keywords, err := ai.SuggestKeywords(c.Request.Context(), project.Name, project.Description)
		if err != nil {
			log.Error("Keyword suggestion failed", zap.Uint("project_id", project.ID), zap.Error(err))
			status := http.StatusInternalServerError
			if errors.Is(err, services.ErrAIResponseFormat) {
				status = http.StatusBadGateway
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		respondData(c, keywords)
	})
}

func setupPaperRoutes(rg *gin.RouterGroup, cfg *config.Config, db *gorm.DB, s3Client *awss3.Client, log *zap.Logger) {
	rg.POST("/projects/:id/upload", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}

		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}

		var fileType string
		switch strings.ToLower(filepath.Ext(file.Filename)) {
		case ".pdf":
			fileType = models.FileTypePDF
		case ".docx":
			fileType = models.FileTypeDOCX
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "only PDF and DOCX files are supported"})
			return
		}

		storedName := fmt.Sprintf("%d_%d_%s", project.ID, time.Now().UnixNano(), filepath.Base(file.Filename))
		storedPath := filepath.Join(cfg.UploadDir, storedName)
		if err := c.SaveUploadedFile(file, storedPath); err != nil {
			log.Error("Failed to save uploaded file", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save file"})
			return
		}

		extracted, err := services.ExtractText(storedPath, fileType)
		if err != nil {
			// The record is still stored so the nightly sweep can retry
			// extraction after a parser fix.
			log.Warn("Text extraction failed on upload",
				zap.String("file", file.Filename), zap.Error(err))
			extracted = ""
		}

		paper := models.ReferencePaper{
			ProjectID:     project.ID,
			Filename:      file.Filename,
			FilePath:      storedPath,
			FileType:      fileType,
			ExtractedText: extracted,
		}

		if s3Client != nil {
			data, err := os.ReadFile(storedPath)
			if err == nil {
				key := fmt.Sprintf("papers/%d/%s", project.ID, storedName)
				link, err := storage.UploadFile(s3Client, cfg.S3Bucket, key, data, cfg)
				if err != nil {
					log.Warn("S3 mirror upload failed", zap.String("key", key), zap.Error(err))
				} else {
					paper.S3Link = link
				}
			}
		}

		if err := db.Create(&paper).Error; err != nil {
			log.Error("Failed to save reference paper", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save reference paper"})
			return
		}
		uploadedPapersCounter.Inc()
		log.Info("Reference paper uploaded",
			zap.Uint("project_id", project.ID),
			zap.String("file", file.Filename),
			zap.Int("extracted_chars", len(extracted)))
		respondData(c, paper)
	})

	rg.GET("/projects/:id/papers", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		var papers []models.ReferencePaper
		if err := db.Where("project_id = ?", project.ID).Order("id asc").Find(&papers).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		respondData(c, papers)
	})

	rg.DELETE("/papers/:id", func(c *gin.Context) {
		id := c.Param("id")
		var paper models.ReferencePaper
		if err := db.First(&paper, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "paper not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if err := db.Delete(&paper).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete paper"})
			return
		}
		if err := os.Remove(paper.FilePath); err != nil && !os.IsNotExist(err) {
			log.Warn("Failed to remove stored file", zap.String("path", paper.FilePath), zap.Error(err))
		}
		respondMessage(c, "paper deleted")
	})
}

func setupAnalysisRoutes(rg *gin.RouterGroup, db *gorm.DB, ai *services.AIService, log *zap.Logger) {
	rg.POST("/projects/:id/analyze/style", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		var papers []models.ReferencePaper
		if err := db.Where("project_id = ? AND extracted_text <> ''", project.ID).Find(&papers).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if len(papers) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no reference papers with extracted text"})
			return
		}

		texts := make([]string, 0, len(papers))
		for _, p := range papers {
			texts = append(texts, p.ExtractedText)
		}
		result, err := ai.AnalyzeStyle(c.Request.Context(), texts)
		if err != nil {
			log.Error("Style analysis failed", zap.Uint("project_id", project.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		analysis := models.StyleAnalysis{ProjectID: project.ID, AnalysisResult: result}
		if err := db.Create(&analysis).Error; err != nil {
			log.Error("Failed to save style analysis", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save analysis"})
			return
		}
		db.Model(project).Update("status", models.ProjectStatusAnalyzing)
		respondData(c, analysis)
	})

	rg.POST("/projects/:id/analyze/guide", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		var analysis models.StyleAnalysis
		if err := db.Where("project_id = ?", project.ID).
			Order("created_at desc").First(&analysis).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "run style analysis first"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		guide, err := ai.GenerateWritingGuide(c.Request.Context(), analysis.AnalysisResult)
		if err != nil {
			log.Error("Writing guide generation failed", zap.Uint("project_id", project.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := db.Model(&analysis).Update("writing_guide", guide).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save writing guide"})
			return
		}
		analysis.WritingGuide = guide
		respondData(c, analysis)
	})

	rg.GET("/projects/:id/analysis", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		var analysis models.StyleAnalysis
		if err := db.Where("project_id = ?", project.ID).
			Order("created_at desc").First(&analysis).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "no analysis for this project"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		respondData(c, analysis)
	})
}

func setupPlanRoutes(rg *gin.RouterGroup, db *gorm.DB, ai *services.AIService, log *zap.Logger) {
	rg.POST("/projects/:id/generate/plan", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		var req struct {
			TemplateID uint `json:"template_id"`
		}
		// Body is optional; without a template the plan is free-form.
		_ = c.ShouldBindJSON(&req)

		var structure string
		if req.TemplateID != 0 {
			var tpl models.ReviewTemplate
			if err := db.First(&tpl, req.TemplateID).Error; err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
				return
			}
			structure = tpl.Structure
		}

		var keywords []models.Keyword
		db.Where("project_id = ?", project.ID).Find(&keywords)
		keywordNames := make([]string, 0, len(keywords))
		for _, k := range keywords {
			keywordNames = append(keywordNames, k.Keyword)
		}

		content, err := ai.GenerateReviewPlan(c.Request.Context(), project.Name, project.Description, keywordNames, structure)
		if err != nil {
			log.Error("Plan generation failed", zap.Uint("project_id", project.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		plan := models.ReviewPlan{ProjectID: project.ID, PlanContent: content, Version: nextPlanVersion(db, project.ID)}
		if err := db.Create(&plan).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save plan"})
			return
		}
		respondData(c, plan)
	})

	rg.GET("/projects/:id/plan", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		var plan models.ReviewPlan
		if err := db.Where("project_id = ?", project.ID).
			Order("created_at desc").First(&plan).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "no plan for this project"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		respondData(c, plan)
	})

	rg.PUT("/projects/:id/plan", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		var req struct {
			PlanContent string `json:"plan_content" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: plan_content is required"})
			return
		}
		plan := models.ReviewPlan{ProjectID: project.ID, PlanContent: req.PlanContent, Version: nextPlanVersion(db, project.ID)}
		if err := db.Create(&plan).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save plan"})
			return
		}
		respondData(c, plan)
	})
}

func nextPlanVersion(db *gorm.DB, projectID uint) int {
	var latest models.ReviewPlan
	if err := db.Where("project_id = ?", projectID).
		Order("version desc").First(&latest).Error; err != nil {
		return 1
	}
	return latest.Version + 1
}

func setupTemplateRoutes(rg *gin.RouterGroup, db *gorm.DB, log *zap.Logger) {
	templates := rg.Group("/templates")

	templates.GET("", func(c *gin.Context) {
		var list []models.ReviewTemplate
		if err := db.Order("is_default desc, id asc").Find(&list).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		respondData(c, list)
	})

	templates.GET("/:id", func(c *gin.Context) {
		var tpl models.ReviewTemplate
		if err := db.First(&tpl, "id = ?", c.Param("id")).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		respondData(c, tpl)
	})

	templates.POST("", func(c *gin.Context) {
		var tpl models.ReviewTemplate
		if err := c.ShouldBindJSON(&tpl); err != nil || tpl.Name == "" || tpl.Structure == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: name and structure are required"})
			return
		}
		tpl.ID = 0
		if err := db.Create(&tpl).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create template"})
			return
		}
		respondData(c, tpl)
	})

	templates.PUT("/:id", func(c *gin.Context) {
		id := c.Param("id")
		var tpl models.ReviewTemplate
		if err := db.First(&tpl, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		var updateData map[string]interface{}
		if err := c.ShouldBindJSON(&updateData); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		allowed := map[string]interface{}{}
		for _, field := range []string{"name", "description", "structure", "is_default"} {
			if v, ok := updateData[field]; ok {
				allowed[field] = v
			}
		}
		if err := db.Model(&tpl).Updates(allowed).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update template"})
			return
		}
		respondData(c, tpl)
	})

	templates.DELETE("/:id", func(c *gin.Context) {
		var tpl models.ReviewTemplate
		if err := db.First(&tpl, c.Param("id")).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if tpl.IsDefault {
			c.JSON(http.StatusBadRequest, gin.H{"error": "default templates cannot be deleted"})
			return
		}
		if err := db.Delete(&tpl).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete template"})
			return
		}
		respondMessage(c, "template deleted")
	})

	// Applying a template stores its structure as a new plan version; the
	// author fills it in or regenerates from it afterwards.
	rg.POST("/projects/:id/apply-template", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		var req struct {
			TemplateID uint `json:"template_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: template_id is required"})
			return
		}
		var tpl models.ReviewTemplate
		if err := db.First(&tpl, req.TemplateID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		plan := models.ReviewPlan{ProjectID: project.ID, PlanContent: tpl.Structure, Version: nextPlanVersion(db, project.ID)}
		if err := db.Create(&plan).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save plan"})
			return
		}
		log.Info("Template applied", zap.Uint("project_id", project.ID), zap.String("template", tpl.Name))
		respondData(c, plan)
	})
}

func setupSearchRoutes(rg *gin.RouterGroup, db *gorm.DB, searchProviders map[string]providers.Provider, ai *services.AIService, log *zap.Logger) {
	runSearch := func(c *gin.Context, providerName string) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		provider, ok := searchProviders[providerName]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown search provider"})
			return
		}

		var req struct {
			Query          string `json:"query" binding:"required"`
			MaxResults     int    `json:"max_results"`
			YearFrom       int    `json:"year_from"`
			YearTo         int    `json:"year_to"`
			HighImpactOnly bool   `json:"high_impact_only"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: query is required"})
			return
		}

		results, skipped, err := provider.Search(c.Request.Context(), req.Query, providers.SearchOptions{
			MaxResults:     req.MaxResults,
			YearFrom:       req.YearFrom,
			YearTo:         req.YearTo,
			HighImpactOnly: req.HighImpactOnly,
		})
		if err != nil {
			log.Error("Literature search failed",
				zap.String("provider", providerName),
				zap.Uint("project_id", project.ID),
				zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}

		saved := 0
		for _, r := range results {
			lit := resultToLiterature(project.ID, provider.Name(), r)
			var existing int64
			db.Model(&models.SearchedLiterature{}).
				Where("project_id = ? AND title = ? AND source = ?", project.ID, lit.Title, lit.Source).
				Count(&existing)
			if existing > 0 {
				continue
			}
			if err := db.Create(lit).Error; err != nil {
				log.Warn("Failed to save search result", zap.String("title", lit.Title), zap.Error(err))
				continue
			}
			saved++
		}

		log.Info("Literature search completed",
			zap.String("provider", providerName),
			zap.Uint("project_id", project.ID),
			zap.Int("found", len(results)),
			zap.Int("saved", saved),
			zap.Int("skipped_batches", skipped))
		respondData(c, gin.H{
			"found":           len(results),
			"saved":           saved,
			"skipped_batches": skipped,
		})
	}

	rg.POST("/projects/:id/search/arxiv", func(c *gin.Context) { runSearch(c, "arxiv") })
	rg.POST("/projects/:id/search/pubmed", func(c *gin.Context) { runSearch(c, "pubmed") })

	rg.POST("/projects/:id/generate/search-query", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		var req struct {
			Source string `json:"source"`
		}
		_ = c.ShouldBindJSON(&req)
		if req.Source == "" {
			req.Source = "pubmed"
		}

		var keywords []models.Keyword
		if err := db.Where("project_id = ?", project.ID).Find(&keywords).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if len(keywords) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "project has no keywords"})
			return
		}
		names := make([]string, 0, len(keywords))
		for _, k := range keywords {
			names = append(names, k.Keyword)
		}

		query, err := ai.GenerateSearchQuery(c.Request.Context(), req.Source, names)
		if err != nil {
			log.Error("Search query generation failed", zap.Uint("project_id", project.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		respondData(c, gin.H{"query": query})
	})
}

func resultToLiterature(projectID uint, source string, r *providers.Result) *models.SearchedLiterature {
	metaBytes, _ := json.Marshal(map[string]string{
		"published": r.Published,
		"journal":   r.Journal,
	})
	return &models.SearchedLiterature{
		ProjectID: projectID,
		Source:    source,
		Title:     r.Title,
		Authors:   strings.Join(r.Authors, ", "),
		Abstract:  r.Abstract,
		DOI:       r.DOI,
		URL:       r.URL,
		PDFURL:    r.PDFURL,
		Metadata:  string(metaBytes),
	}
}

func setupLiteratureRoutes(rg *gin.RouterGroup, db *gorm.DB, ai *services.AIService, unpaywallFetcher *unpaywall.Fetcher, log *zap.Logger) {
	rg.GET("/projects/:id/literature", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		query := db.Where("project_id = ?", project.ID)
		if c.Query("selected") == "true" {
			query = query.Where("is_selected = ?", true)
		}
		if source := c.Query("source"); source != "" {
			query = query.Where("source = ?", source)
		}
		var items []models.SearchedLiterature
		if err := query.Order("id asc").Find(&items).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		respondData(c, items)
	})

	// Bulk save of papers the user picked from search results. Saved papers
	// count as selected unless the request says otherwise.
	rg.POST("/projects/:id/literature", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		var req struct {
			Papers []paperPayload `json:"papers" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || len(req.Papers) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: papers array is required"})
			return
		}

		saved := make([]models.SearchedLiterature, 0, len(req.Papers))
		for _, p := range req.Papers {
			lit, ok := payloadToLiterature(project.ID, p)
			if !ok {
				continue
			}
			saved = append(saved, lit)
		}
		if len(saved) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no papers with a title to save"})
			return
		}
		if err := db.Create(&saved).Error; err != nil {
			log.Error("Failed to save literature", zap.Uint("project_id", project.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save literature"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": fmt.Sprintf("saved %d papers", len(saved)), "data": saved})
	})

	rg.PUT("/literature/:id", func(c *gin.Context) {
		id := c.Param("id")
		var lit models.SearchedLiterature
		if err := db.First(&lit, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "literature not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		var updateData map[string]interface{}
		if err := c.ShouldBindJSON(&updateData); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		allowed := map[string]interface{}{}
		for _, field := range []string{"is_selected", "title", "authors", "abstract", "doi", "url", "pdf_url"} {
			if v, ok := updateData[field]; ok {
				allowed[field] = v
			}
		}
		if len(allowed) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no updatable fields provided"})
			return
		}
		if err := db.Model(&lit).Updates(allowed).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update literature"})
			return
		}
		respondData(c, lit)
	})

	rg.DELETE("/literature/:id", func(c *gin.Context) {
		result := db.Delete(&models.SearchedLiterature{}, c.Param("id"))
		if result.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete literature"})
			return
		}
		if result.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "literature not found"})
			return
		}
		respondMessage(c, "literature deleted")
	})

	rg.DELETE("/projects/:id/literature/clear", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		query := db.Where("project_id = ?", project.ID)
		if c.Query("unselected_only") == "true" {
			query = query.Where("is_selected = ?", false)
		}
		result := query.Delete(&models.SearchedLiterature{})
		if result.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear literature"})
			return
		}
		respondData(c, gin.H{"deleted": result.RowsAffected})
	})

	rg.POST("/projects/:id/literature/filter", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		var req struct {
			Criteria string `json:"criteria"`
			Limit    int    `json:"limit"`
		}
		_ = c.ShouldBindJSON(&req)

		var items []models.SearchedLiterature
		if err := db.Where("project_id = ?", project.ID).Order("id asc").Find(&items).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if len(items) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "project has no literature"})
			return
		}

		entries := make([]string, 0, len(items))
		for i := range items {
			entries = append(entries, services.LiteratureEntry(&items[i]))
		}
		indices, err := ai.FilterLiterature(c.Request.Context(), project.Name, entries, req.Criteria)
		if err != nil {
			log.Error("Literature filter failed", zap.Uint("project_id", project.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if req.Limit > 0 && len(indices) > req.Limit {
			indices = indices[:req.Limit]
		}

		selected := 0
		for _, idx := range indices {
			if err := db.Model(&items[idx-1]).Update("is_selected", true).Error; err != nil {
				log.Warn("Failed to mark literature selected", zap.Uint("id", items[idx-1].ID), zap.Error(err))
				continue
			}
			selected++
		}
		log.Info("Literature filtered",
			zap.Uint("project_id", project.ID),
			zap.Int("candidates", len(items)),
			zap.Int("selected", selected))
		respondData(c, gin.H{"candidates": len(items), "selected": selected})
	})

	rg.POST("/projects/:id/literature/classify", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		items, err := selectedLiterature(db, project.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if len(items) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no selected literature to classify"})
			return
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Group the following papers on \"%s\" into thematic categories. ", project.Name)
		b.WriteString("Return a Markdown list: one heading per theme, then the paper numbers and titles under it.\n\n")
		for i := range items {
			fmt.Fprintf(&b, "%d. %s\n", i+1, services.LiteratureEntry(&items[i]))
		}

		result, err := ai.Chat(c.Request.Context(), "", b.String(), 0.3)
		if err != nil {
			log.Error("Literature classification failed", zap.Uint("project_id", project.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		respondData(c, gin.H{"classification": result})
	})

	rg.POST("/projects/:id/literature/import", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
			return
		}
		defer f.Close()

		items, skipped, err := services.ParseCSV(f)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		imported := 0
		for i := range items {
			items[i].ProjectID = project.ID
			if err := db.Create(&items[i]).Error; err != nil {
				log.Warn("Failed to import literature row", zap.String("title", items[i].Title), zap.Error(err))
				skipped++
				continue
			}
			imported++
		}
		log.Info("Literature imported",
			zap.Uint("project_id", project.ID),
			zap.Int("imported", imported),
			zap.Int("skipped", skipped))
		respondData(c, gin.H{"imported": imported, "skipped": skipped})
	})

	rg.GET("/projects/:id/literature/export", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		items, err := selectedLiterature(db, project.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		format := c.DefaultQuery("format", "ris")
		switch format {
		case "ris":
			c.Header("Content-Disposition", `attachment; filename="references.ris"`)
			c.Data(http.StatusOK, "application/x-research-info-systems", []byte(services.ToRIS(items)))
		case "bibtex":
			c.Header("Content-Disposition", `attachment; filename="references.bib"`)
			c.Data(http.StatusOK, "application/x-bibtex", []byte(services.ToBibTeX(items)))
		case "csv":
			data, err := services.ToCSV(items)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render csv"})
				return
			}
			c.Header("Content-Disposition", `attachment; filename="references.csv"`)
			c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown format: use ris, bibtex or csv"})
		}
	})

	rg.POST("/literature/:id/pdf-link", func(c *gin.Context) {
		id := c.Param("id")
		var lit models.SearchedLiterature
		if err := db.First(&lit, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "literature not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if lit.PDFURL != "" {
			respondData(c, gin.H{"pdf_url": lit.PDFURL})
			return
		}
		if lit.DOI == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "literature has no DOI to resolve"})
			return
		}

		link, err := unpaywallFetcher.GetPDFLink(c.Request.Context(), lit.DOI)
		if err != nil {
			log.Warn("Unpaywall lookup failed", zap.String("doi", lit.DOI), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		if link == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "no open-access PDF found"})
			return
		}
		if err := db.Model(&lit).Update("pdf_url", link).Error; err != nil {
			log.Warn("Failed to store resolved PDF link", zap.Uint("id", lit.ID), zap.Error(err))
		}
		respondData(c, gin.H{"pdf_url": link})
	})

	rg.POST("/literature/:id/translate", func(c *gin.Context) {
		id := c.Param("id")
		var lit models.SearchedLiterature
		if err := db.First(&lit, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "literature not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		var req struct {
			TargetLanguage string `json:"target_language"`
		}
		_ = c.ShouldBindJSON(&req)
		if req.TargetLanguage == "" {
			req.TargetLanguage = models.LanguageZH
		}

		title, abstract, err := ai.Translate(c.Request.Context(), lit.Title, lit.Abstract, req.TargetLanguage)
		if err != nil {
			log.Error("Translation failed", zap.Uint("literature_id", lit.ID), zap.Error(err))
			status := http.StatusInternalServerError
			if errors.Is(err, services.ErrAIResponseFormat) {
				status = http.StatusBadGateway
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		respondData(c, gin.H{
			"translated_title":    title,
			"translated_abstract": abstract,
		})
	})
}

// streamPlainText prepares a chunked text/plain response and returns the emit
// callback that writes and flushes each chunk.
func streamPlainText(c *gin.Context) func(string) error {
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	return func(chunk string) error {
		if _, err := c.Writer.WriteString(chunk); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	}
}

func setupDraftRoutes(rg *gin.RouterGroup, db *gorm.DB, ai *services.AIService, log *zap.Logger) {
	rg.GET("/projects/:id/draft", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		language := c.DefaultQuery("language", models.LanguageZH)
		var draft models.ReviewDraft
		if err := db.Where("project_id = ? AND language = ?", project.ID, language).
			Order("created_at desc").First(&draft).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// No draft yet is a normal state, not an error.
				respondData(c, nil)
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		respondData(c, draft)
	})

	rg.PUT("/projects/:id/draft", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		var req struct {
			Content  string `json:"content" binding:"required"`
			Language string `json:"language"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: content is required"})
			return
		}
		if req.Language == "" {
			req.Language = models.LanguageZH
		}

		var draft models.ReviewDraft
		err := db.Where("project_id = ? AND language = ?", project.ID, req.Language).
			Order("created_at desc").First(&draft).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			draft = models.ReviewDraft{ProjectID: project.ID, Content: req.Content, Language: req.Language, Version: 1}
			if err := db.Create(&draft).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save draft"})
				return
			}
			respondData(c, draft)
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		updates := map[string]interface{}{"content": req.Content, "version": draft.Version + 1}
		if err := db.Model(&draft).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save draft"})
			return
		}
		draft.Content = req.Content
		draft.Version++
		respondData(c, draft)
	})

	rg.POST("/projects/:id/write/start", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		var req struct {
			Language        string `json:"language"`
			WordCount       int    `json:"word_count"`
			DetailLevel     string `json:"detail_level"`
			CitationDensity string `json:"citation_density"`
		}
		_ = c.ShouldBindJSON(&req)
		if req.Language == "" {
			req.Language = models.LanguageZH
		}

		selected, err := selectedLiterature(db, project.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if len(selected) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no selected literature; run a search and select papers first"})
			return
		}
		entries := make([]string, 0, len(selected))
		for i := range selected {
			entries = append(entries, services.LiteratureEntry(&selected[i]))
		}

		var plan models.ReviewPlan
		db.Where("project_id = ?", project.ID).Order("created_at desc").First(&plan)
		var analysis models.StyleAnalysis
		db.Where("project_id = ?", project.ID).Order("created_at desc").First(&analysis)

		emit := streamPlainText(c)
		content, err := ai.StreamWriteReview(c.Request.Context(), project.Name, plan.PlanContent, analysis.WritingGuide, entries, req.Language, services.WriteOptions{
			WordCount:       req.WordCount,
			DetailLevel:     req.DetailLevel,
			CitationDensity: req.CitationDensity,
		}, emit)
		if err != nil {
			// Headers are already sent; a partial stream is discarded, not
			// persisted.
			log.Error("Draft generation failed", zap.Uint("project_id", project.ID), zap.Error(err))
			return
		}

		version := 1
		var latest models.ReviewDraft
		if err := db.Where("project_id = ? AND language = ?", project.ID, req.Language).
			Order("version desc").First(&latest).Error; err == nil {
			version = latest.Version + 1
		}
		draft := models.ReviewDraft{ProjectID: project.ID, Content: content, Language: req.Language, Version: version}
		if err := db.Create(&draft).Error; err != nil {
			log.Error("Failed to persist generated draft", zap.Uint("project_id", project.ID), zap.Error(err))
			return
		}
		generatedDraftsCounter.Inc()
		db.Model(project).Update("status", models.ProjectStatusWriting)
		log.Info("Draft generated",
			zap.Uint("project_id", project.ID),
			zap.String("language", req.Language),
			zap.Int("version", version),
			zap.Int("chars", len(content)))
	})

	rg.POST("/projects/:id/write/section", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		var req struct {
			SectionTitle    string `json:"section_title" binding:"required"`
			Section         string `json:"section" binding:"required"`
			PreviousContent string `json:"previous_content"`
			Language        string `json:"language"`
			WordCount       int    `json:"word_count"`
			DetailLevel     string `json:"detail_level"`
			CitationDensity string `json:"citation_density"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: section_title and section are required"})
			return
		}
		if req.Language == "" {
			req.Language = models.LanguageZH
		}

		var plan models.ReviewPlan
		if err := db.Where("project_id = ?", project.ID).Order("created_at desc").First(&plan).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "no review plan; generate one first"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		var analysis models.StyleAnalysis
		db.Where("project_id = ?", project.ID).Order("created_at desc").First(&analysis)

		selected, err := selectedLiterature(db, project.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		entries := make([]string, 0, len(selected))
		for i := range selected {
			entries = append(entries, services.LiteratureEntry(&selected[i]))
		}

		emit := streamPlainText(c)
		// The section is streamed back only; the author merges it into the
		// draft and saves via PUT.
		if _, err := ai.StreamWriteSection(c.Request.Context(), req.SectionTitle, req.Section, plan.PlanContent, analysis.WritingGuide, entries, req.PreviousContent, req.Language, services.WriteOptions{
			WordCount:       req.WordCount,
			DetailLevel:     req.DetailLevel,
			CitationDensity: req.CitationDensity,
		}, emit); err != nil {
			log.Error("Section generation failed",
				zap.Uint("project_id", project.ID),
				zap.String("section", req.SectionTitle),
				zap.Error(err))
		}
	})
}

func setupExportRoutes(rg *gin.RouterGroup, db *gorm.DB, log *zap.Logger) {
	rg.GET("/projects/:id/export", func(c *gin.Context) {
		project, ok := loadProject(c, db, log)
		if !ok {
			return
		}
		language := c.DefaultQuery("language", models.LanguageZH)
		var draft models.ReviewDraft
		if err := db.Where("project_id = ? AND language = ?", project.ID, language).
			Order("created_at desc").First(&draft).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "no draft to export"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		selected, err := selectedLiterature(db, project.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		document := draft.Content + services.BuildReferencesSection(draft.Content, selected)
		filename := fmt.Sprintf("%s_v%d.md", sanitizeFilename(project.Name), draft.Version)
		log.Info("Draft exported",
			zap.Uint("project_id", project.ID),
			zap.String("language", language),
			zap.Int("version", draft.Version))
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(document))
	})
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	replacer := strings.NewReplacer("/", "_", "\\", "_", " ", "_", "\"", "", ":", "_")
	name = replacer.Replace(name)
	if name == "" {
		name = "review"
	}
	return name
}

func setupConfigRoutes(rg *gin.RouterGroup, db *gorm.DB, ai *services.AIService, log *zap.Logger) {
	rg.GET("/config/ai", func(c *gin.Context) {
		var cfg models.AIConfig
		if err := db.Order("id desc").First(&cfg).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "no AI config stored"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		respondData(c, gin.H{
			"api_endpoint":   cfg.APIEndpoint,
			"api_key_masked": cfg.MaskedKey(),
			"model_name":     cfg.ModelName,
		})
	})

	// The AI config is a singleton: saving replaces whatever was stored.
	rg.POST("/config/ai", func(c *gin.Context) {
		var req struct {
			APIEndpoint string `json:"api_endpoint" binding:"required"`
			APIKey      string `json:"api_key" binding:"required"`
			ModelName   string `json:"model_name"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: api_endpoint and api_key are required"})
			return
		}
		if req.ModelName == "" {
			req.ModelName = "gpt-4"
		}

		cfg := models.AIConfig{
			APIEndpoint: strings.TrimRight(req.APIEndpoint, "/"),
			APIKey:      req.APIKey,
			ModelName:   req.ModelName,
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("1 = 1").Delete(&models.AIConfig{}).Error; err != nil {
				return err
			}
			return tx.Create(&cfg).Error
		})
		if err != nil {
			log.Error("Failed to save AI config", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save AI config"})
			return
		}
		ai.Invalidate()
		log.Info("AI config saved",
			zap.String("endpoint", cfg.APIEndpoint),
			zap.String("model", cfg.ModelName))
		respondData(c, gin.H{
			"api_endpoint":   cfg.APIEndpoint,
			"api_key_masked": cfg.MaskedKey(),
			"model_name":     cfg.ModelName,
		})
	})

	rg.POST("/config/models", func(c *gin.Context) {
		var req struct {
			APIEndpoint string `json:"api_endpoint" binding:"required"`
			APIKey      string `json:"api_key" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: api_endpoint and api_key are required"})
			return
		}
		names, err := ai.ListModels(c.Request.Context(), strings.TrimRight(req.APIEndpoint, "/"), req.APIKey)
		if err != nil {
			log.Warn("Model listing failed", zap.String("endpoint", req.APIEndpoint), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		respondData(c, names)
	})
}

func setupDiagramRoutes(rg *gin.RouterGroup, ai *services.AIService, log *zap.Logger) {
	rg.POST("/diagram/generate", func(c *gin.Context) {
		var req struct {
			Type        string `json:"type"`
			Description string `json:"description" binding:"required"`
			Format      string `json:"format"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: description is required"})
			return
		}
		if req.Type == "" {
			req.Type = "mechanism"
		}

		code, err := ai.GenerateDiagram(c.Request.Context(), req.Type, req.Description)
		if err != nil {
			log.Error("Diagram generation failed", zap.String("type", req.Type), zap.Error(err))
			status := http.StatusInternalServerError
			if errors.Is(err, services.ErrAIResponseFormat) {
				status = http.StatusBadGateway
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		imageURL := "https://mermaid.ink/img/" + base64.URLEncoding.EncodeToString([]byte(code))
		if req.Format != "" {
			imageURL += "?type=" + url.QueryEscape(req.Format)
		}
		respondData(c, gin.H{
			"mermaid_code": code,
			"image_url":    imageURL,
		})
	})
}

func setupPhraseRoutes(rg *gin.RouterGroup, db *gorm.DB, log *zap.Logger) {
	phrases := rg.Group("/writing/phrases")

	phrases.GET("", func(c *gin.Context) {
		query := db.Model(&models.WritingPhrase{})
		if category := c.Query("category"); category != "" {
			query = query.Where("category = ?", category)
		}
		var list []models.WritingPhrase
		if err := query.Order("category asc, id asc").Find(&list).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		respondData(c, list)
	})

	phrases.POST("", func(c *gin.Context) {
		var phrase models.WritingPhrase
		if err := c.ShouldBindJSON(&phrase); err != nil || phrase.Category == "" || phrase.Phrase == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: category and phrase are required"})
			return
		}
		phrase.ID = 0
		if err := db.Create(&phrase).Error; err != nil {
			log.Error("Failed to create writing phrase", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create phrase"})
			return
		}
		respondData(c, phrase)
	})
}

// reextractMissingTexts retries text extraction for papers whose upload-time
// extraction yielded nothing.
func reextractMissingTexts(db *gorm.DB, log *zap.Logger) int {
	var papers []models.ReferencePaper
	if err := db.Where("extracted_text = ''").Find(&papers).Error; err != nil {
		log.Error("Failed to query papers for re-extraction", zap.Error(err))
		return 0
	}

	count := 0
	for i := range papers {
		text, err := services.ExtractText(papers[i].FilePath, papers[i].FileType)
		if err != nil || text == "" {
			continue
		}
		if err := db.Model(&papers[i]).Update("extracted_text", text).Error; err != nil {
			log.Warn("Failed to store re-extracted text", zap.Uint("paper_id", papers[i].ID), zap.Error(err))
			continue
		}
		count++
	}
	return count
}

func seedDefaultTemplates(db *gorm.DB, logger *zap.Logger) {
	var count int64
	db.Model(&models.ReviewTemplate{}).Count(&count)
	if count > 0 {
		return
	}
	templates := []models.ReviewTemplate{
		{
			Name:        "经典综述结构",
			Description: "适用于传统文献综述，按主题组织内容",
			IsDefault:   true,
			Structure: `# 1. 引言
## 1.1 研究背景
## 1.2 研究问题
## 1.3 综述范围和目标

# 2. 方法
## 2.1 文献检索策略
## 2.2 纳入和排除标准
## 2.3 文献筛选流程

# 3. 主体内容
## 3.1 [主题一]
## 3.2 [主题二]
## 3.3 [主题三]

# 4. 讨论
## 4.1 主要发现
## 4.2 研究趋势
## 4.3 挑战与局限
## 4.4 未来研究方向

# 5. 结论`,
		},
		{
			Name:        "系统综述结构",
			Description: "适用于系统性文献综述，强调方法学严谨性",
			IsDefault:   true,
			Structure: `# 摘要
- 背景
- 目的
- 方法
- 结果
- 结论

# 1. 引言
## 1.1 研究背景
## 1.2 研究目的和问题

# 2. 方法学
## 2.1 检索策略
## 2.2 纳入排除标准
## 2.3 质量评估
## 2.4 数据提取

# 3. 结果
## 3.1 文献筛选结果
## 3.2 文献质量评估
## 3.3 综合分析

# 4. 讨论
## 4.1 主要发现
## 4.2 证据质量
## 4.3 局限性

# 5. 结论
## 5.1 研究意义
## 5.2 实践建议`,
		},
		{
			Name:        "叙事综述结构",
			Description: "适用于探索性综述，按时间或主题叙述",
			IsDefault:   true,
			Structure: `# 1. 引言
## 1.1 研究背景和意义
## 1.2 综述目的

# 2. 历史发展
## 2.1 早期研究（时间段）
## 2.2 发展阶段（时间段）
## 2.3 近期进展（时间段）

# 3. 当前研究现状
## 3.1 主流方法和技术
## 3.2 典型应用
## 3.3 研究热点

# 4. 关键问题与挑战
## 4.1 技术挑战
## 4.2 应用挑战
## 4.3 理论挑战

# 5. 未来展望
## 5.1 发展趋势
## 5.2 潜在方向
## 5.3 研究机会

# 6. 结论`,
		},
		{
			Name:        "医学影像AI综述结构",
			Description: "专门用于医学影像AI领域的综述",
			IsDefault:   false,
			Structure: `# 1. 引言
## 1.1 医学影像AI背景
## 1.2 研究动机和目标
## 1.3 综述范围

# 2. 方法
## 2.1 文献检索策略
## 2.2 纳入排除标准

# 3. 深度学习方法
## 3.1 卷积神经网络（CNN）
## 3.2 Transformer架构
## 3.3 生成对抗网络（GAN）
## 3.4 其他方法

# 4. 应用领域
## 4.1 图像分割
## 4.2 病灶检测
## 4.3 疾病分类
## 4.4 图像重建

# 5. 数据集和评估
## 5.1 公开数据集
## 5.2 评估指标
## 5.3 性能对比

# 6. 挑战与未来方向
## 6.1 数据质量和标注
## 6.2 模型可解释性
## 6.3 临床转化
## 6.4 未来研究方向

# 7. 结论`,
		},
	}
	if err := db.Create(&templates).Error; err != nil {
		logger.Warn("Failed to seed default templates", zap.Error(err))
	} else {
		logger.Info("Default review templates seeded.")
	}
}

func seedWritingPhrases(db *gorm.DB, logger *zap.Logger) {
	var count int64
	db.Model(&models.WritingPhrase{}).Count(&count)
	if count > 0 {
		return
	}
	phrases := []models.WritingPhrase{
		{
			Category: "引言-背景介绍",
			Phrase:   "In recent years, there has been growing interest in...",
			Usage:    "介绍研究背景和趋势",
			Example:  "In recent years, there has been growing interest in artificial intelligence applications in medical imaging.",
		},
		{
			Category: "引言-研究问题",
			Phrase:   "However, little is known about...",
			Usage:    "指出研究空白",
			Example:  "However, little is known about the long-term effects of these interventions.",
		},
		{
			Category: "引言-研究目的",
			Phrase:   "The aim of this review is to...",
			Usage:    "说明综述目的",
			Example:  "The aim of this review is to synthesize current evidence on deep learning methods.",
		},
		{
			Category: "方法-文献检索",
			Phrase:   "A comprehensive literature search was conducted...",
			Usage:    "描述文献检索过程",
			Example:  "A comprehensive literature search was conducted in PubMed and arXiv databases.",
		},
		{
			Category: "结果-主要发现",
			Phrase:   "The findings suggest that...",
			Usage:    "总结主要发现",
			Example:  "The findings suggest that deep learning models outperform traditional methods.",
		},
		{
			Category: "讨论-未来方向",
			Phrase:   "Future research should focus on...",
			Usage:    "提出未来研究方向",
			Example:  "Future research should focus on improving model interpretability.",
		},
	}
	if err := db.Create(&phrases).Error; err != nil {
		logger.Warn("Failed to seed writing phrases", zap.Error(err))
	} else {
		logger.Info("Writing phrases seeded.")
	}
}
