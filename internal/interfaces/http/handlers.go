package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/finovahq/expense-claims/internal/application/port"
	"github.com/finovahq/expense-claims/internal/application/service"
	"github.com/finovahq/expense-claims/internal/domain/entity"
)

const (
	dateLayout        = "2006-01-02"
	maxReceiptBytes   = 10 << 20
	defaultPageLimit  = 20
	maxPageLimit      = 100
	multipartFormFile = "receipt"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	claims        service.ClaimService
	budgets       service.BudgetService
	payroll       service.PayrollService
	notifications service.NotificationService
	receiptParser port.ReceiptParser
	logger        Logger
}

// NewHandlers creates a new Handlers instance. receiptParser may be nil when
// OCR is not configured; the parse endpoint then reports the feature disabled.
func NewHandlers(
	claims service.ClaimService,
	budgets service.BudgetService,
	payroll service.PayrollService,
	notifications service.NotificationService,
	receiptParser port.ReceiptParser,
	logger Logger,
) *Handlers {
	return &Handlers{
		claims:        claims,
		budgets:       budgets,
		payroll:       payroll,
		notifications: notifications,
		receiptParser: receiptParser,
		logger:        logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// respondError maps a service error to an HTTP status and JSON body
func (h *Handlers) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case service.IsNotFound(err):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, service.ErrStateConflict):
		status = http.StatusConflict
		message = err.Error()
	case errors.Is(err, service.ErrPolicyResolution):
		status = http.StatusUnprocessableEntity
		message = err.Error()
	default:
		h.logger.Error("Unhandled service error", "error", err, "path", c.Request.URL.Path)
	}

	c.JSON(status, Response{Success: false, Error: message})
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// ClaimItemRequest is one line item in a claim creation request
type ClaimItemRequest struct {
	Date        string          `json:"date" binding:"required"`
	Category    string          `json:"category" binding:"required"`
	Description string          `json:"description" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Currency    string          `json:"currency"`
	Vendor      string          `json:"vendor"`
	ReceiptURL  string          `json:"receipt_url"`
}

// CreateClaimRequest is the claim creation payload
type CreateClaimRequest struct {
	Title        string             `json:"title" binding:"required"`
	Description  string             `json:"description"`
	ClaimType    string             `json:"claim_type" binding:"required"`
	Currency     string             `json:"currency"`
	DepartmentID string             `json:"department_id"`
	ProjectID    string             `json:"project_id"`
	Items        []ClaimItemRequest `json:"items" binding:"required"`
}

// CreateClaim handles POST /api/claims
func (h *Handlers) CreateClaim(c *gin.Context) {
	var req CreateClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	svcReq := service.CreateClaimRequest{
		Title:        req.Title,
		Description:  req.Description,
		ClaimType:    entity.ClaimType(req.ClaimType),
		Currency:     req.Currency,
		DepartmentID: req.DepartmentID,
		ProjectID:    req.ProjectID,
	}
	for i, item := range req.Items {
		date, err := time.Parse(dateLayout, item.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{
				Success: false,
				Error:   fmt.Sprintf("item %d: date must be YYYY-MM-DD", i+1),
			})
			return
		}
		svcReq.Items = append(svcReq.Items, service.ClaimItemInput{
			Date:        date,
			Category:    entity.ExpenseCategory(item.Category),
			Description: item.Description,
			Amount:      item.Amount,
			Currency:    item.Currency,
			Vendor:      item.Vendor,
			ReceiptURL:  item.ReceiptURL,
		})
	}

	actor := currentActor(c)
	if svcReq.DepartmentID == "" {
		svcReq.DepartmentID = actor.DepartmentID
	}

	claim, err := h.claims.CreateClaim(c.Request.Context(), actor.UserID, svcReq)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: claim})
}

// GetClaim handles GET /api/claims/:id
func (h *Handlers) GetClaim(c *gin.Context) {
	claim, err := h.claims.GetClaim(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	actor := currentActor(c)
	if claim.UserID != actor.UserID && actor.Role == entity.RoleEmployee {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "claim not found"})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: claim})
}

// ListClaimsResponse wraps a paginated claim listing
type ListClaimsResponse struct {
	Claims []*entity.Claim `json:"claims"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

// ListClaims handles GET /api/claims
func (h *Handlers) ListClaims(c *gin.Context) {
	filter := port.ClaimFilter{
		Status: c.Query("status"),
		Page:   queryInt(c, "page", 1),
		Limit:  queryInt(c, "limit", defaultPageLimit),
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 || filter.Limit > maxPageLimit {
		filter.Limit = defaultPageLimit
	}
	for param, dst := range map[string]**time.Time{"from": &filter.FromDate, "to": &filter.ToDate} {
		if raw := c.Query(param); raw != "" {
			parsed, err := time.Parse(dateLayout, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, Response{
					Success: false,
					Error:   param + " must be YYYY-MM-DD",
				})
				return
			}
			*dst = &parsed
		}
	}

	actor := currentActor(c)
	claims, total, err := h.claims.ListUserClaims(c.Request.Context(), actor.UserID, filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: ListClaimsResponse{
		Claims: claims,
		Total:  total,
		Page:   filter.Page,
		Limit:  filter.Limit,
	}})
}

// SubmitClaim handles POST /api/claims/:id/submit
func (h *Handlers) SubmitClaim(c *gin.Context) {
	actor := currentActor(c)
	claim, err := h.claims.SubmitClaim(c.Request.Context(), c.Param("id"), actor.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: claim})
}

// DecisionRequest carries the approver's comments
type DecisionRequest struct {
	Comments string `json:"comments"`
}

// ApproveClaim handles POST /api/claims/:id/approve
func (h *Handlers) ApproveClaim(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	actor := currentActor(c)
	claim, err := h.claims.ApproveClaim(c.Request.Context(), c.Param("id"), actor.UserID, req.Comments)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: claim})
}

// RejectClaim handles POST /api/claims/:id/reject
func (h *Handlers) RejectClaim(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	actor := currentActor(c)
	claim, err := h.claims.RejectClaim(c.Request.Context(), c.Param("id"), actor.UserID, req.Comments)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: claim})
}

// CancelClaim handles POST /api/claims/:id/cancel
func (h *Handlers) CancelClaim(c *gin.Context) {
	actor := currentActor(c)
	claim, err := h.claims.CancelClaim(c.Request.Context(), c.Param("id"), actor.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: claim})
}

// ListPendingApprovals handles GET /api/approvals/pending
func (h *Handlers) ListPendingApprovals(c *gin.Context) {
	actor := currentActor(c)
	claims, err := h.claims.ListPendingApprovals(c.Request.Context(), actor.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: claims})
}

// WaiveViolationRequest sets or clears the waived flag
type WaiveViolationRequest struct {
	Waived *bool `json:"waived" binding:"required"`
}

// WaiveViolation handles PATCH /api/violations/:id/waive
func (h *Handlers) WaiveViolation(c *gin.Context) {
	var req WaiveViolationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "waived flag is required"})
		return
	}

	if err := h.claims.WaiveViolation(c.Request.Context(), c.Param("id"), *req.Waived); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// ParseReceipt handles POST /api/items/:itemID/receipt. The uploaded
// image is run through OCR and the advisory result is stored on the item.
func (h *Handlers) ParseReceipt(c *gin.Context) {
	if h.receiptParser == nil {
		c.JSON(http.StatusServiceUnavailable, Response{
			Success: false,
			Error:   "receipt parsing is not configured",
		})
		return
	}

	fileHeader, err := c.FormFile(multipartFormFile)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "receipt file is required"})
		return
	}
	if fileHeader.Size > maxReceiptBytes {
		c.JSON(http.StatusRequestEntityTooLarge, Response{Success: false, Error: "receipt file too large"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		h.respondError(c, err)
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(image)
	}

	parsed, err := h.receiptParser.ParseReceipt(c.Request.Context(), image, mimeType)
	if err != nil {
		h.logger.Error("Receipt parsing failed", "error", err)
		c.JSON(http.StatusBadGateway, Response{Success: false, Error: "receipt parsing failed"})
		return
	}

	if err := h.claims.AttachItemOCR(c.Request.Context(), c.Param("itemID"), parsed); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: parsed})
}

// CreateBudgetRequest is the budget creation payload
type CreateBudgetRequest struct {
	Name           string          `json:"name" binding:"required"`
	Description    string          `json:"description"`
	DepartmentID   string          `json:"department_id"`
	ProjectID      string          `json:"project_id"`
	FiscalYear     int             `json:"fiscal_year" binding:"required"`
	FiscalPeriod   string          `json:"fiscal_period"`
	TotalAmount    decimal.Decimal `json:"total_amount" binding:"required"`
	AlertThreshold decimal.Decimal `json:"alert_threshold"`
}

// CreateBudget handles POST /api/budgets
func (h *Handlers) CreateBudget(c *gin.Context) {
	var req CreateBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	budget, err := h.budgets.Create(c.Request.Context(), service.CreateBudgetRequest{
		Name:           req.Name,
		Description:    req.Description,
		DepartmentID:   req.DepartmentID,
		ProjectID:      req.ProjectID,
		FiscalYear:     req.FiscalYear,
		FiscalPeriod:   req.FiscalPeriod,
		TotalAmount:    req.TotalAmount,
		AlertThreshold: req.AlertThreshold,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: budget})
}

// ListBudgets handles GET /api/budgets
func (h *Handlers) ListBudgets(c *gin.Context) {
	departmentID := c.Query("department_id")
	if departmentID == "" {
		departmentID = currentActor(c).DepartmentID
	}

	budgets, err := h.budgets.ListByDepartment(c.Request.Context(), departmentID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: budgets})
}

// GetBudgetStatus handles GET /api/budgets/:id/status
func (h *Handlers) GetBudgetStatus(c *gin.Context) {
	status, err := h.budgets.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: status})
}

// GetBudgetForecast handles GET /api/budgets/:id/forecast
func (h *Handlers) GetBudgetForecast(c *gin.Context) {
	forecast, err := h.budgets.Forecast(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: forecast})
}

// UpdateSpendingRequest mutates the budget ledger
type UpdateSpendingRequest struct {
	Amount    decimal.Decimal `json:"amount" binding:"required"`
	Operation string          `json:"operation" binding:"required"`
}

// UpdateBudgetSpending handles POST /api/budgets/:id/spending
func (h *Handlers) UpdateBudgetSpending(c *gin.Context) {
	var req UpdateSpendingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	err := h.budgets.UpdateSpending(c.Request.Context(), c.Param("id"), req.Amount, service.SpendOperation(req.Operation))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// ListNotifications handles GET /api/notifications
func (h *Handlers) ListNotifications(c *gin.Context) {
	unreadOnly := c.Query("unread_only") == "true"
	actor := currentActor(c)

	notifications, err := h.notifications.ListForUser(c.Request.Context(), actor.UserID, unreadOnly)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: notifications})
}

// MarkNotificationRead handles POST /api/notifications/:id/read
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	if err := h.notifications.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// CreateBatchRequest is the payroll batch creation payload
type CreateBatchRequest struct {
	PeriodStart string `json:"period_start" binding:"required"`
	PeriodEnd   string `json:"period_end" binding:"required"`
}

// CreatePayrollBatch handles POST /api/payroll/batches
func (h *Handlers) CreatePayrollBatch(c *gin.Context) {
	var req CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	periodStart, err := time.Parse(dateLayout, req.PeriodStart)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "period_start must be YYYY-MM-DD"})
		return
	}
	periodEnd, err := time.Parse(dateLayout, req.PeriodEnd)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "period_end must be YYYY-MM-DD"})
		return
	}

	batch, err := h.payroll.CreateBatch(c.Request.Context(), periodStart, periodEnd)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: batch})
}

// GetPayrollBatch handles GET /api/payroll/batches/:id
func (h *Handlers) GetPayrollBatch(c *gin.Context) {
	batch, err := h.payroll.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: batch})
}

// ExportBatchRequest selects the export format
type ExportBatchRequest struct {
	Format string `json:"format" binding:"required"`
}

// ExportPayrollBatch handles POST /api/payroll/batches/:id/export. The
// response body is the rendered file itself.
func (h *Handlers) ExportPayrollBatch(c *gin.Context) {
	var req ExportBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "format is required"})
		return
	}

	actor := currentActor(c)
	result, err := h.payroll.Export(c.Request.Context(), c.Param("id"), req.Format, actor.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	c.Data(http.StatusOK, result.ContentType, result.Data)
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
