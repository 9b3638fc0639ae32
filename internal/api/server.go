package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sqlreports/internal/auth"
	"github.com/sqlreports/internal/config"
	"github.com/sqlreports/internal/csvreport"
	"github.com/sqlreports/internal/database"
	"github.com/sqlreports/internal/models"
	"github.com/sqlreports/internal/notify"
	"github.com/sqlreports/internal/query"
	"github.com/sqlreports/internal/runner"

	"github.com/gin-gonic/gin"
)

type Server struct {
	cfg    *config.Config
	runner *runner.Runner
	router *gin.Engine
}

func NewServer(cfg *config.Config, reportRunner *runner.Runner) *Server {
	server := &Server{
		cfg:    cfg,
		runner: reportRunner,
		router: gin.Default(),
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	// Public routes
	s.router.POST("/api/v1/auth/login", s.login)
	s.router.POST("/api/v1/auth/register", s.register)

	// Protected routes (require authentication)
	api := s.router.Group("/api/v1")
	api.Use(auth.AuthMiddleware())

	categories := api.Group("/categories")
	{
		categories.GET("", s.listCategories)
		categories.POST("", auth.RequireCapability(models.CapabilityConfig), s.createCategory)
		categories.DELETE("/:id", auth.RequireCapability(models.CapabilityConfig), s.deleteCategory)
	}

	reports := api.Group("/reports")
	{
		reports.GET("", s.listReports)
		reports.GET("/:id", s.getReport)
		reports.POST("", auth.RequireCapability(models.CapabilityConfig), s.createReport)
		reports.PUT("/:id", auth.RequireCapability(models.CapabilityConfig), s.updateReport)
		reports.DELETE("/:id", auth.RequireCapability(models.CapabilityConfig), s.deleteReport)
		reports.POST("/:id/run", s.runReport)
		reports.GET("/:id/archives", s.listArchives)
	}
}

func (s *Server) Start(port int) error {
	return s.router.Run(fmt.Sprintf(":%d", port))
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := database.GetDB().Where("username = ?", req.Username).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !user.CheckPassword(req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := auth.GenerateToken(&user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

func (s *Server) register(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
		Email    string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := models.User{
		Username: req.Username,
		Email:    req.Email,
		Role:     models.RoleViewer,
		IsActive: true,
	}
	if err := user.SetPassword(req.Password); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
		return
	}

	if err := database.GetDB().Create(&user).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "username or email already taken"})
		return
	}

	c.JSON(http.StatusCreated, user)
}

func (s *Server) listCategories(c *gin.Context) {
	var categories []models.Category
	if err := database.GetDB().Order("name").Find(&categories).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (s *Server) createCategory(c *gin.Context) {
	var category models.Category
	if err := c.ShouldBindJSON(&category); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if category.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category name is required"})
		return
	}

	if err := database.GetDB().Create(&category).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "category name already exists"})
		return
	}
	c.JSON(http.StatusCreated, category)
}

// deleteCategory refuses to delete a category that still has reports:
// reports cannot outlive their category.
func (s *Server) deleteCategory(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category ID"})
		return
	}

	db := database.GetDB()

	var count int64
	if err := db.Model(&models.Report{}).Where("category_id = ?", id).Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("category still has %d reports", count)})
		return
	}

	if err := db.Delete(&models.Category{}, id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "category deleted"})
}

func (s *Server) listReports(c *gin.Context) {
	db := database.GetDB()

	dbQuery := db.Order("display_name")
	if categoryID := c.Query("category"); categoryID != "" {
		dbQuery = dbQuery.Where("category_id = ?", categoryID)
	}
	if runable := c.Query("runable"); runable != "" {
		dbQuery = dbQuery.Where("runable = ?", runable)
	}

	var reports []models.Report
	if err := dbQuery.Find(&reports).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, reports)
}

func (s *Server) getReport(c *gin.Context) {
	report, ok := s.findReport(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, report)
}

type reportRequest struct {
	CategoryID  uint              `json:"category_id" binding:"required"`
	DisplayName string            `json:"display_name" binding:"required"`
	Description string            `json:"description"`
	QuerySQL    string            `json:"query_sql" binding:"required"`
	QueryParams map[string]string `json:"query_params"`
	QueryLimit  int               `json:"query_limit"`
	Runable     models.Runable    `json:"runable"`
	At          int               `json:"at"`
	SingleRow   bool              `json:"single_row"`
	EmailTo     string            `json:"email_to"`
	EmailWhat   models.EmailWhat  `json:"email_what"`
	CustomDir   string            `json:"custom_dir"`
	Capability  string            `json:"capability"`
}

func (s *Server) createReport(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var report models.Report
	if !s.applyReportRequest(c, &req, &report) {
		return
	}

	if err := database.GetDB().Create(&report).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, report)
}

func (s *Server) updateReport(c *gin.Context) {
	report, ok := s.findReport(c)
	if !ok {
		return
	}

	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !s.applyReportRequest(c, &req, report) {
		return
	}

	if err := database.GetDB().Save(report).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// applyReportRequest validates an incoming definition and copies it onto
// the model. This is the edit boundary: the write-keyword blocklist and
// recipient checks happen here and only here; stored queries are trusted
// when they run.
func (s *Server) applyReportRequest(c *gin.Context, req *reportRequest, report *models.Report) bool {
	db := database.GetDB()

	var category models.Category
	if err := db.First(&category, req.CategoryID).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category not found"})
		return false
	}

	if query.ContainsBadWord(req.QuerySQL) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "the query contains a forbidden keyword; only read queries are allowed",
		})
		return false
	}

	switch req.Runable {
	case "", models.RunableManual:
		req.Runable = models.RunableManual
	case models.RunableDaily, models.RunableWeekly, models.RunableMonthly:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid runable value"})
		return false
	}

	if req.At < 0 || req.At > 23 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at must be an hour from 0 to 23"})
		return false
	}

	if req.QueryLimit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query limit cannot be negative"})
		return false
	}
	if s.cfg.Query.LimitMaximum > 0 && req.QueryLimit > s.cfg.Query.LimitMaximum {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("query limit cannot exceed %d", s.cfg.Query.LimitMaximum),
		})
		return false
	}

	capability := req.Capability
	if capability == "" {
		capability = models.CapabilityView
	}
	if _, ok := models.CapabilityOptions()[capability]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown capability"})
		return false
	}

	report.CategoryID = req.CategoryID
	report.DisplayName = req.DisplayName
	report.Description = req.Description
	report.QuerySQL = req.QuerySQL
	report.QueryLimit = req.QueryLimit
	report.Runable = req.Runable
	report.At = req.At
	report.SingleRow = req.SingleRow
	report.EmailTo = req.EmailTo
	report.EmailWhat = req.EmailWhat
	report.CustomDir = req.CustomDir
	report.Capability = capability
	report.Normalize()

	// The stored param set is exactly the placeholders in the SQL text,
	// recomputed whenever the text changes. Values for placeholders that
	// no longer exist are dropped.
	params := make(map[string]string)
	for _, name := range query.PlaceholderNames(report.QuerySQL) {
		params[name] = req.QueryParams[name]
	}
	report.SetParamsMap(params)

	if report.EmailTo != "" {
		if problem := notify.ValidateRecipients(db, report.Recipients(), report.Capability); problem != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": problem})
			return false
		}
	}

	return true
}

func (s *Server) deleteReport(c *gin.Context) {
	report, ok := s.findReport(c)
	if !ok {
		return
	}
	if err := database.GetDB().Delete(report).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "report deleted"})
}

// runReport executes a manual report on demand, with placeholder values
// supplied by the caller. Scheduled reports are run by the scheduler
// only.
func (s *Server) runReport(c *gin.Context) {
	report, ok := s.findReport(c)
	if !ok {
		return
	}
	if report.IsScheduled() {
		c.JSON(http.StatusConflict, gin.H{"error": "scheduled reports are run by the scheduler"})
		return
	}

	var req struct {
		Params map[string]string `json:"params"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	params := report.ParamsMap()
	for name, value := range req.Params {
		params[name] = value
	}

	userID := c.GetUint("user_id")
	csvPath, err := s.runner.Run(report, time.Now(), userID, params)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"csv_path":            csvPath,
		"last_run":            report.LastRun,
		"last_execution_time": report.LastExecutionTime,
	})
}

func (s *Server) listArchives(c *gin.Context) {
	report, ok := s.findReport(c)
	if !ok {
		return
	}

	times := csvreport.ArchiveTimes(s.cfg.Site.DataRoot, report, time.Local)
	timestamps := make([]int64, len(times))
	for i, t := range times {
		timestamps[i] = t.Unix()
	}
	c.JSON(http.StatusOK, gin.H{"archives": timestamps})
}

func (s *Server) findReport(c *gin.Context) (*models.Report, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report ID"})
		return nil, false
	}

	var report models.Report
	if err := database.GetDB().First(&report, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return nil, false
	}
	return &report, true
}
