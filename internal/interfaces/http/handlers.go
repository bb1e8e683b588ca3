// Package http is the thin HTTP adapter over the reconciliation engine. It
// translates request bodies into bills via the normalization boundary and
// returns summaries; no reconciliation logic lives here.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/bill-reconciler/internal/domain/entity"
	"github.com/garyjia/bill-reconciler/internal/extract"
	"github.com/garyjia/bill-reconciler/internal/infrastructure/persistence/repository"
	"github.com/garyjia/bill-reconciler/internal/summary"
)

const defaultListLimit = 50

// Handlers contains all HTTP request handlers
type Handlers struct {
	extractor   *extract.Extractor
	summarizer  *summary.Summarizer
	billRepo    *repository.BillRepository
	summaryRepo *repository.SummaryRepository
	logger      *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	extractor *extract.Extractor,
	summarizer *summary.Summarizer,
	billRepo *repository.BillRepository,
	summaryRepo *repository.SummaryRepository,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		extractor:   extractor,
		summarizer:  summarizer,
		billRepo:    billRepo,
		summaryRepo: summaryRepo,
		logger:      logger,
	}
}

// RegisterRoutes attaches all API routes to the router.
func (h *Handlers) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.HealthCheck)

	api := router.Group("/api/v1")
	{
		api.POST("/reconcile", h.ReconcileBill)
		api.POST("/reconcile/batch", h.ReconcileBatch)
		api.POST("/bills", h.SubmitBill)
		api.GET("/bills/:bill_id/summary", h.GetBillSummary)
		api.GET("/summaries", h.ListSummaries)
	}
}

// HealthCheck reports service liveness.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "bill-reconciler",
		"time":    time.Now().Format(time.RFC3339),
	})
}

// ReconcileBill reconciles a single bill synchronously. The body is a raw
// bill payload; the response is the full summary. With ?format=text the
// human-readable rendering is returned instead.
func (h *Handlers) ReconcileBill(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	bill, err := h.extractor.FromJSON(body)
	if err != nil {
		h.badBill(c, err)
		return
	}

	sum := h.summarizer.Summarize(bill)
	h.persistSummary(c, sum)

	if c.Query("format") == "text" {
		c.String(http.StatusOK, summary.FormatSummary(sum))
		return
	}
	c.JSON(http.StatusOK, sum)
}

// batchRequest is a multi-bill reconciliation request. Payloads stay raw so
// the normalization boundary owns all field parsing.
type batchRequest struct {
	Bills []json.RawMessage `json:"bills"`
}

// ReconcileBatch reconciles an ordered collection of bills and returns the
// combined result. Bills are reconciled independently, never merged.
func (h *Handlers) ReconcileBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch request: " + err.Error()})
		return
	}

	bills := make([]*entity.Bill, 0, len(req.Bills))
	for i, raw := range req.Bills {
		bill, err := h.extractor.FromJSON(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "invalid bill at index " + strconv.Itoa(i) + ": " + err.Error(),
			})
			return
		}
		bills = append(bills, bill)
	}

	result := h.summarizer.SummarizeAll(bills)
	for _, sum := range result.Summaries {
		h.persistSummary(c, sum)
	}

	if c.Query("format") == "text" {
		c.String(http.StatusOK, summary.FormatCombined(result))
		return
	}
	c.JSON(http.StatusOK, result)
}

// SubmitBill stores a bill for asynchronous reconciliation by the background
// worker. The payload is validated up front so structurally invalid bills
// are rejected at submission, not at pickup.
func (h *Handlers) SubmitBill(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	bill, err := h.extractor.FromJSON(body)
	if err != nil {
		h.badBill(c, err)
		return
	}

	payload, err := json.Marshal(bill)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode bill"})
		return
	}

	record := &entity.BillRecord{
		BillID:     bill.BillID,
		VendorName: bill.VendorName,
		Date:       bill.Date,
		Currency:   bill.Currency,
		PageCount:  bill.PageCount,
		Payload:    string(payload),
		Status:     entity.BillStatusPending,
	}
	if err := h.billRepo.Create(c.Request.Context(), record); err != nil {
		h.logger.Error("Failed to store bill", zap.String("bill_id", bill.BillID), zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"error": "failed to store bill: " + err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"bill_id": bill.BillID,
		"status":  record.Status,
	})
}

// GetBillSummary returns the latest stored summary for a bill.
func (h *Handlers) GetBillSummary(c *gin.Context) {
	billID := c.Param("bill_id")

	record, err := h.summaryRepo.GetLatestByBillID(c.Request.Context(), billID)
	if err != nil {
		h.logger.Error("Failed to load summary", zap.String("bill_id", billID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load summary"})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no summary for bill " + billID})
		return
	}

	c.Data(http.StatusOK, "application/json", []byte(record.SummaryJSON))
}

// ListSummaries returns recent summaries, optionally only inconsistent ones
// (?inconsistent=true) for review queues.
func (h *Handlers) ListSummaries(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	var (
		records []*entity.SummaryRecord
		err     error
	)
	if c.Query("inconsistent") == "true" {
		records, err = h.summaryRepo.ListInconsistent(c.Request.Context(), limit)
	} else {
		records, err = h.summaryRepo.List(c.Request.Context(), limit)
	}
	if err != nil {
		h.logger.Error("Failed to list summaries", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list summaries"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":     len(records),
		"summaries": records,
	})
}

// persistSummary records a synchronous reconciliation outcome. Persistence
// failure is logged but never fails the request; the caller still gets the
// summary.
func (h *Handlers) persistSummary(c *gin.Context, sum summary.Summary) {
	if h.summaryRepo == nil {
		return
	}
	record, err := repository.FromSummary(sum)
	if err != nil {
		h.logger.Error("Failed to encode summary record", zap.Error(err))
		return
	}
	if err := h.summaryRepo.Create(c.Request.Context(), record); err != nil {
		h.logger.Error("Failed to persist summary",
			zap.String("bill_id", sum.BillID), zap.Error(err))
	}
}

func (h *Handlers) badBill(c *gin.Context, err error) {
	if errors.Is(err, entity.ErrValidation) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
