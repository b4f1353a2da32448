package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/certtrack/certificate-service/internal/services"
	"github.com/certtrack/certificate-service/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AdminHandler serves the administrator views of the certificate workflow
type AdminHandler struct {
	BaseHandler
	certificates services.CertificateService
	workload     services.WorkloadBalancer
	analytics    services.AnalyticsService
	export       services.ExportService
	alerts       services.ExpiryAlertService
}

func NewAdminHandler(serviceManager services.ServiceManager, logger utils.Logger) *AdminHandler {
	return &AdminHandler{
		BaseHandler:  NewBaseHandler(logger),
		certificates: serviceManager.Certificate(),
		workload:     serviceManager.Workload(),
		analytics:    serviceManager.Analytics(),
		export:       serviceManager.Export(),
		alerts:       serviceManager.ExpiryAlerts(),
	}
}

// ListAll lists every certificate
// @Summary List all certificates
// @Tags admin
// @Produce json
// @Param status query string false "pending, accepted or rejected"
// @Param owner_id query string false "Owner account ID"
// @Param reviewer_id query string false "Reviewer account ID"
// @Success 200 {object} services.CertificateListResponse
// @Router /certificates/all [get]
func (h *AdminHandler) ListAll(c *gin.Context) {
	var req services.CertificateListRequest
	if !h.bindQuery(c, &req) {
		return
	}

	list, err := h.certificates.ListAll(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

// Analytics returns the system wide summary
// @Summary Get analytics summary
// @Tags admin
// @Produce json
// @Success 200 {object} services.AnalyticsSummary
// @Router /certificates/analytics [get]
func (h *AdminHandler) Analytics(c *gin.Context) {
	summary, err := h.analytics.Summary(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Workload returns every reviewer's counters
// @Summary Get reviewer workload
// @Tags admin
// @Produce json
// @Success 200 {array} services.WorkloadEntryResponse
// @Router /certificates/workload [get]
func (h *AdminHandler) Workload(c *gin.Context) {
	entries, err := h.workload.Snapshot(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

// Reconcile repairs reviewer counters from the certificate ledger
// @Summary Reconcile reviewer workload
// @Tags admin
// @Produce json
// @Success 200 {object} services.ReconcileResult
// @Router /certificates/workload/reconcile [post]
func (h *AdminHandler) Reconcile(c *gin.Context) {
	h.LogRequest(c, "Reconciling reviewer workload")

	result, err := h.workload.Reconcile(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Export downloads certificates and workload as a spreadsheet
// @Summary Export certificates
// @Tags admin
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param status query string false "pending, accepted or rejected"
// @Success 200 {file} file
// @Router /certificates/export [get]
func (h *AdminHandler) Export(c *gin.Context) {
	var req services.CertificateListRequest
	if !h.bindQuery(c, &req) {
		return
	}

	data, err := h.export.ExportCertificates(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="certificates-%s.xlsx"`, time.Now().UTC().Format("20060102")))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// DispatchAlerts sends expiry alerts to students
// @Summary Dispatch expiry alerts
// @Tags admin
// @Produce json
// @Param dry_run query bool false "Compute without publishing"
// @Success 200 {object} services.ExpiryAlertReport
// @Router /certificates/alerts/dispatch [post]
func (h *AdminHandler) DispatchAlerts(c *gin.Context) {
	dryRun := false
	if raw := c.Query("dry_run"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			h.RespondWithError(c, http.StatusBadRequest, "Invalid dry_run", "must be a boolean")
			return
		}
		dryRun = parsed
	}

	h.LogRequest(c, "Dispatching expiry alerts", "dry_run", dryRun)

	report, err := h.alerts.Dispatch(c.Request.Context(), dryRun)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}
