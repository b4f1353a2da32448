package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/certtrack/certificate-service/internal/services"
	"github.com/certtrack/certificate-service/internal/utils"
)

type AccountHandler struct {
	BaseHandler
	service services.AccountService
}

func NewAccountHandler(service services.AccountService, logger utils.Logger) *AccountHandler {
	return &AccountHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
	}
}

// ===== PUBLIC ENDPOINTS =====

// Register creates a student or faculty account
// @Summary Register account
// @Description Creates an unverified account and sends a verification link
// @Tags accounts
// @Accept json
// @Produce json
// @Param account body services.RegisterRequest true "Account data"
// @Success 201 {object} services.AccountResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /accounts/register [post]
func (h *AccountHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Registering account", "username", req.Username, "role", req.Role)

	account, err := h.service.Register(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, account)
}

// Login exchanges credentials for a bearer token
// @Summary Login
// @Tags accounts
// @Accept json
// @Produce json
// @Param credentials body services.LoginRequest true "Credentials"
// @Success 200 {object} services.LoginResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /accounts/login [post]
func (h *AccountHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.service.Login(c.Request.Context(), &req, c.ClientIP())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// VerifyEmail redeems an email verification token
// @Summary Verify email
// @Tags accounts
// @Produce json
// @Param token path string true "Verification token"
// @Success 200 {object} services.AccountResponse
// @Failure 400 {object} ErrorResponse
// @Router /accounts/verify-email/{token} [post]
func (h *AccountHandler) VerifyEmail(c *gin.Context) {
	account, err := h.service.VerifyEmail(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

// ResendVerification reissues the verification link
// @Summary Resend verification email
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body services.EmailRequest true "Email"
// @Success 200 {object} SuccessResponse
// @Router /accounts/resend-verification [post]
func (h *AccountHandler) ResendVerification(c *gin.Context) {
	var req services.EmailRequest
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.service.ResendVerification(c.Request.Context(), &req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "If the address is registered, a verification email has been sent",
	})
}

// ForgotPassword sends a password reset link
// @Summary Forgot password
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body services.EmailRequest true "Email"
// @Success 200 {object} SuccessResponse
// @Router /accounts/forgot-password [post]
func (h *AccountHandler) ForgotPassword(c *gin.Context) {
	var req services.EmailRequest
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.service.ForgotPassword(c.Request.Context(), &req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "If the address is registered, a password reset email has been sent",
	})
}

// ResetPassword sets a new password using a reset token
// @Summary Reset password
// @Tags accounts
// @Accept json
// @Produce json
// @Param token path string true "Reset token"
// @Param request body services.ResetPasswordRequest true "New password"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Router /accounts/reset-password/{token} [post]
func (h *AccountHandler) ResetPassword(c *gin.Context) {
	var req services.ResetPasswordRequest
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.service.ResetPassword(c.Request.Context(), c.Param("token"), &req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Password has been reset"})
}

// ===== PROFILE =====

// GetProfile returns the caller's account
// @Summary Get profile
// @Tags accounts
// @Produce json
// @Success 200 {object} services.AccountResponse
// @Failure 401 {object} ErrorResponse
// @Router /accounts/profile [get]
func (h *AccountHandler) GetProfile(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	account, err := h.service.GetProfile(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

// UpdateProfile changes the caller's display name
// @Summary Update profile
// @Tags accounts
// @Accept json
// @Produce json
// @Param profile body services.UpdateProfileRequest true "Profile data"
// @Success 200 {object} services.AccountResponse
// @Router /accounts/profile [put]
func (h *AccountHandler) UpdateProfile(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	var req services.UpdateProfileRequest
	if !h.bindJSON(c, &req) {
		return
	}

	account, err := h.service.UpdateProfile(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

// ===== ADMINISTRATION =====

// ListAccounts lists accounts for administrators
// @Summary List accounts
// @Tags admin
// @Produce json
// @Param role query string false "student, faculty or admin"
// @Param active query bool false "Filter by active flag"
// @Param search query string false "Username, email or name"
// @Param page query int false "Page number"
// @Param size query int false "Page size"
// @Success 200 {object} services.AccountListResponse
// @Router /accounts/users [get]
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	var req services.AccountListRequest
	if !h.bindQuery(c, &req) {
		return
	}

	accounts, err := h.service.ListAccounts(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, accounts)
}

// SetActive enables or disables an account
// @Summary Set account active flag
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "Account ID"
// @Param request body services.SetActiveRequest true "Active flag"
// @Success 200 {object} services.AccountResponse
// @Router /accounts/users/{id}/active [put]
func (h *AccountHandler) SetActive(c *gin.Context) {
	actorID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	var req services.SetActiveRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if req.Active == nil {
		h.RespondWithError(c, http.StatusBadRequest, "Validation failed", "active is required")
		return
	}

	h.LogRequest(c, "Changing account activation", "account_id", c.Param("id"), "active", *req.Active)

	account, err := h.service.SetActive(c.Request.Context(), actorID, c.Param("id"), *req.Active)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

// DeleteAccount soft deletes an account
// @Summary Delete account
// @Tags admin
// @Param id path string true "Account ID"
// @Success 204
// @Failure 409 {object} ErrorResponse "Reviewer still has pending certificates"
// @Router /accounts/users/{id} [delete]
func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	actorID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Deleting account", "account_id", c.Param("id"))

	if err := h.service.DeleteAccount(c.Request.Context(), actorID, c.Param("id")); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
