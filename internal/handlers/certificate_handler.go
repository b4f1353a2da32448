package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/certtrack/certificate-service/internal/services"
	"github.com/certtrack/certificate-service/internal/utils"
)

type CertificateHandler struct {
	BaseHandler
	certificates services.CertificateService
	performance  services.PerformanceScorer
}

func NewCertificateHandler(certificates services.CertificateService, performance services.PerformanceScorer, logger utils.Logger) *CertificateHandler {
	return &CertificateHandler{
		BaseHandler:  NewBaseHandler(logger),
		certificates: certificates,
		performance:  performance,
	}
}

// ===== STUDENT ENDPOINTS =====

// CreateUploadURL returns a presigned URL for uploading a certificate document
// @Summary Create upload URL
// @Tags certificates
// @Accept json
// @Produce json
// @Param request body services.UploadURLRequest true "File metadata"
// @Success 201 {object} services.UploadURLResponse
// @Failure 400 {object} ErrorResponse
// @Router /certificates/upload-url [post]
func (h *CertificateHandler) CreateUploadURL(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	var req services.UploadURLRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.certificates.CreateUploadURL(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Submit records an uploaded certificate and assigns a reviewer
// @Summary Submit certificate
// @Tags certificates
// @Accept json
// @Produce json
// @Param certificate body services.SubmitCertificateRequest true "Certificate data"
// @Success 201 {object} services.CertificateResponse
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse "No reviewer available"
// @Router /certificates/upload [post]
func (h *CertificateHandler) Submit(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	var req services.SubmitCertificateRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Submitting certificate", "owner_id", userID)

	certificate, err := h.certificates.Submit(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, certificate)
}

// ListMine lists the caller's certificates, newest first
// @Summary List my certificates
// @Tags certificates
// @Produce json
// @Param status query string false "pending, accepted or rejected"
// @Param page query int false "Page number"
// @Param size query int false "Page size"
// @Success 200 {object} services.CertificateListResponse
// @Router /certificates/my [get]
func (h *CertificateHandler) ListMine(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	var req services.CertificateListRequest
	if !h.bindQuery(c, &req) {
		return
	}

	list, err := h.certificates.ListMine(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

// Performance returns the caller's score
// @Summary Get performance score
// @Tags certificates
// @Produce json
// @Success 200 {object} services.PerformanceScore
// @Router /certificates/performance [get]
func (h *CertificateHandler) Performance(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	score, err := h.performance.Score(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, score)
}

// ExpiringSoon lists the caller's certificates expiring within the window
// @Summary List expiring certificates
// @Tags certificates
// @Produce json
// @Param days query int false "Window in days"
// @Success 200 {array} services.CertificateResponse
// @Router /certificates/alerts [get]
func (h *CertificateHandler) ExpiringSoon(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	days, ok := h.parseIntQuery(c, "days", 0)
	if !ok {
		return
	}

	certificates, err := h.performance.ExpiringSoon(c.Request.Context(), userID, days)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, certificates)
}

// ===== FACULTY ENDPOINTS =====

// ListAssigned lists certificates assigned to the calling reviewer
// @Summary List assigned certificates
// @Tags reviews
// @Produce json
// @Param status query string false "pending, accepted or rejected"
// @Success 200 {object} services.CertificateListResponse
// @Router /certificates/assigned [get]
func (h *CertificateHandler) ListAssigned(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	var req services.CertificateListRequest
	if !h.bindQuery(c, &req) {
		return
	}

	list, err := h.certificates.ListAssigned(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

// Review accepts or rejects a pending certificate
// @Summary Review certificate
// @Tags reviews
// @Accept json
// @Produce json
// @Param id path uint true "Certificate ID"
// @Param review body services.ReviewCertificateRequest true "Decision"
// @Success 200 {object} services.CertificateResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Already reviewed"
// @Router /certificates/review/{id} [put]
func (h *CertificateHandler) Review(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	var req services.ReviewCertificateRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Reviewing certificate", "certificate_id", id, "status", req.Status)

	certificate, err := h.certificates.Review(c.Request.Context(), id, userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, certificate)
}

// ReviewerStats summarises the calling reviewer's assignments
// @Summary Get reviewer statistics
// @Tags reviews
// @Produce json
// @Success 200 {object} services.ReviewerStats
// @Router /certificates/faculty-stats [get]
func (h *CertificateHandler) ReviewerStats(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	stats, err := h.certificates.ReviewerStats(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ===== SHARED =====

// Get returns a certificate to its owner, its reviewer or an admin
// @Summary Get certificate
// @Tags certificates
// @Produce json
// @Param id path uint true "Certificate ID"
// @Success 200 {object} services.CertificateResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /certificates/{id} [get]
func (h *CertificateHandler) Get(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	certificate, err := h.certificates.Get(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, certificate)
}
