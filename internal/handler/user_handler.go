package handler

import (
	"errors"
	"net/http"
	"time"

	"chai-builder-go/internal/model"
	"chai-builder-go/internal/service"
	"chai-builder-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UserHandler 负责处理用户资料、订阅和支付相关的 API 请求。
type UserHandler struct {
	userService service.UserService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// profileView 是资料接口返回的用户视图。
func profileView(user *model.User) gin.H {
	return gin.H{
		"id":                  user.ID,
		"name":                user.Name,
		"email":               user.Email,
		"role":                user.Role,
		"profilePicture":      user.ProfilePicture,
		"subscriptionStatus":  user.SubscriptionStatus,
		"subscriptionEndDate": user.SubscriptionEndDate,
	}
}

// GetProfile 返回当前用户的完整资料。
func (h *UserHandler) GetProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "User not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

// UpdateProfileRequest 定义了资料更新 API 的请求体结构。
type UpdateProfileRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email" binding:"omitempty,email"`
	ProfilePicture string `json:"profilePicture" binding:"omitempty,url"`
}

// UpdateProfile 更新当前用户的资料。
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "User not found"})
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid profile payload"})
		return
	}

	updated, err := h.userService.UpdateProfile(user.ID, req.Name, req.Email, req.ProfilePicture)
	if err != nil {
		log.Errorf("UpdateProfile: failed for user %d: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error updating profile", "error": errDetail(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": profileView(updated)})
}

// UpdateSubscriptionRequest 定义了订阅更新 API 的请求体结构。
type UpdateSubscriptionRequest struct {
	SubscriptionStatus  string     `json:"subscriptionStatus" binding:"required,oneof=free paid"`
	SubscriptionEndDate *time.Time `json:"subscriptionEndDate"`
}

// UpdateSubscription 更新当前用户的订阅状态。
func (h *UserHandler) UpdateSubscription(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "User not found"})
		return
	}

	var req UpdateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid subscription status"})
		return
	}

	updated, err := h.userService.UpdateSubscription(user.ID, req.SubscriptionStatus, req.SubscriptionEndDate)
	if err != nil {
		log.Errorf("UpdateSubscription: failed for user %d: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error updating subscription", "error": errDetail(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": profileView(updated)})
}

// DeleteAccount 删除当前用户账号。
func (h *UserHandler) DeleteAccount(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "User not found"})
		return
	}

	if err := h.userService.DeleteAccount(user.ID); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "User not found"})
			return
		}
		log.Errorf("DeleteAccount: failed for user %d: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error deleting account", "error": errDetail(err)})
		return
	}

	log.Infof("用户账号已删除: %d", user.ID)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Account deleted successfully"})
}

// SavePaymentRequest 定义了保存支付记录 API 的请求体结构。
// 字段名沿用支付回调的下划线风格。
type SavePaymentRequest struct {
	Rupees          float64    `json:"rupees" binding:"required,gt=0"`
	TransactionID   string     `json:"transaction_id" binding:"required"`
	Plan            string     `json:"plan" binding:"required,oneof=monthly yearly"`
	ReceiptID       string     `json:"receipt_id" binding:"required"`
	Currency        string     `json:"currency"`
	Status          string     `json:"status"`
	CreatedAt       *time.Time `json:"created_at"`
	RazorpayOrderID string     `json:"razorpayOrderId"`
	Signature       string     `json:"razorpaySignature"`
}

// SavePayment 保存一条支付记录并翻转订阅状态。
func (h *UserHandler) SavePayment(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "User not found"})
		return
	}

	var req SavePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Missing required payment details"})
		return
	}

	payment, updated, err := h.userService.SavePayment(user.ID, service.SavePaymentInput{
		Amount:        req.Rupees,
		TransactionID: req.TransactionID,
		OrderID:       req.RazorpayOrderID,
		Signature:     req.Signature,
		Plan:          req.Plan,
		ReceiptID:     req.ReceiptID,
		Currency:      req.Currency,
		Status:        req.Status,
		PaymentDate:   req.CreatedAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingPaymentFields):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Missing required payment details"})
		case errors.Is(err, service.ErrBadSignature):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Payment signature verification failed"})
		default:
			log.Errorf("SavePayment: failed for user %d: %v", user.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to save payment details", "error": errDetail(err)})
		}
		return
	}

	log.Infof("支付记录已保存: user=%d, plan=%s, status=%s", user.ID, payment.Plan, payment.Status)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Payment saved and subscription updated successfully",
		"data": gin.H{
			"payment": gin.H{
				"id":          payment.ID,
				"amount":      payment.Amount,
				"currency":    payment.Currency,
				"plan":        payment.Plan,
				"status":      payment.Status,
				"paymentDate": payment.PaymentDate,
			},
			"user": gin.H{
				"subscriptionStatus":  updated.SubscriptionStatus,
				"role":                updated.Role,
				"subscriptionEndDate": updated.SubscriptionEndDate,
			},
		},
	})
}

// GetPaymentDetails 返回最新一条支付记录。
// 免费用户和无记录的情况按软失败处理，状态码仍为 200。
func (h *UserHandler) GetPaymentDetails(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "User not found"})
		return
	}

	payment, fresh, err := h.userService.LatestPayment(user.ID)
	if err != nil {
		log.Errorf("GetPaymentDetails: failed for user %d: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error fetching payment details", "error": errDetail(err)})
		return
	}

	if !fresh.IsPaid() {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "No payment details available for free users"})
		return
	}
	if payment == nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "No payment records found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Latest payment details retrieved successfully",
		"data": gin.H{
			"user": gin.H{
				"id":                  fresh.ID,
				"subscriptionStatus":  fresh.SubscriptionStatus,
				"subscriptionEndDate": fresh.SubscriptionEndDate,
				"role":                fresh.Role,
			},
			"payment": gin.H{
				"id":                payment.ID,
				"razorpayPaymentId": payment.RazorpayPaymentID,
				"amount":            payment.Amount,
				"currency":          payment.Currency,
				"plan":              payment.Plan,
				"status":            payment.Status,
				"paymentDate":       payment.PaymentDate,
				"receiptId":         payment.ReceiptID,
			},
		},
	})
}
