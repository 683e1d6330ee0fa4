// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chai-builder-go/internal/config"
	"chai-builder-go/internal/model"
	"chai-builder-go/internal/repository"
	"chai-builder-go/pkg/database"
	"chai-builder-go/pkg/hash"
	"chai-builder-go/pkg/log"
	"chai-builder-go/pkg/payment"
	"chai-builder-go/pkg/token"

	"gorm.io/gorm"
)

// 用户与支付相关的业务错误。
var (
	ErrEmailTaken           = errors.New("user already exists")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrUserNotFound         = errors.New("user not found")
	ErrMissingPaymentFields = errors.New("missing required payment details")
	ErrBadSignature         = errors.New("payment signature verification failed")
)

// AuthResult 汇总一次登录/注册产生的凭证与发放信息。
type AuthResult struct {
	User          *model.User
	AccessToken   string
	RefreshToken  string
	TokensGranted int
}

// SavePaymentInput 是保存支付记录的入参。
type SavePaymentInput struct {
	Amount        float64
	TransactionID string // Razorpay payment id
	OrderID       string
	Signature     string
	Plan          string
	ReceiptID     string
	Currency      string
	Status        string
	PaymentDate   *time.Time
}

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	Register(name, email, password, profilePicture string) (*AuthResult, error)
	Login(email, password string) (*AuthResult, error)
	GoogleAuth(googleID, email, name, profilePicture string) (*AuthResult, error)
	RefreshToken(refreshTokenString string) (newAccessToken, newRefreshToken string, err error)
	Logout(ctx context.Context, tokenString string) error
	IsTokenRevoked(ctx context.Context, tokenString string) bool
	GetByID(userID uint) (*model.User, error)
	UpdateProfile(userID uint, name, email, profilePicture string) (*model.User, error)
	UpdateSubscription(userID uint, status string, endDate *time.Time) (*model.User, error)
	DeleteAccount(userID uint) error
	SavePayment(userID uint, input SavePaymentInput) (*model.Payment, *model.User, error)
	LatestPayment(userID uint) (*model.Payment, *model.User, error)
}

type userService struct {
	userRepo    repository.UserRepository
	paymentRepo repository.PaymentRepository
	jwtManager  *token.JWTManager
	verifier    *payment.Verifier
	ledger      config.LedgerConfig
	now         func() time.Time // 可注入时钟，便于测试日切逻辑
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, paymentRepo repository.PaymentRepository,
	jwtManager *token.JWTManager, verifier *payment.Verifier, ledger config.LedgerConfig) UserService {
	return &userService{
		userRepo:    userRepo,
		paymentRepo: paymentRepo,
		jwtManager:  jwtManager,
		verifier:    verifier,
		ledger:      ledger,
		now:         time.Now,
	}
}

// isSameDay 判断两个时间是否处于同一个自然日（服务器本地时区）。
func isSameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// grantDailyTokens 在每个自然日首次登录时发放 token，返回发放数量。
// 发放与扣费一样走单条累加 UPDATE，不做读-改-写。
func (s *userService) grantDailyTokens(user *model.User, now time.Time) (int, error) {
	if user.LastTokenGrantDate != nil && isSameDay(*user.LastTokenGrantDate, now) {
		return 0, nil
	}
	if err := s.userRepo.GrantTokens(user.ID, s.ledger.DailyGrant); err != nil {
		return 0, err
	}
	user.Tokens += s.ledger.DailyGrant
	user.LastTokenGrantDate = &now
	return s.ledger.DailyGrant, nil
}

func (s *userService) issueTokens(user *model.User) (string, string, error) {
	accessToken, err := s.jwtManager.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return "", "", err
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID, user.Email, user.Role)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// Register 处理用户注册的业务逻辑。
func (s *userService) Register(name, email, password, profilePicture string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	// 检查邮箱是否已被占用
	_, err := s.userRepo.FindByEmail(email)
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hashedPassword, err := hash.HashPassword(password)
	if err != nil {
		return nil, err
	}

	if profilePicture == "" {
		profilePicture = model.DefaultProfilePicture
	}

	now := s.now()
	newUser := &model.User{
		Name:               name,
		Email:              email,
		Password:           hashedPassword,
		ProfilePicture:     profilePicture,
		Role:               model.RoleNormal,
		SubscriptionStatus: model.SubscriptionFree,
		Tokens:             s.ledger.SignupGrant,
		LastLogin:          &now,
	}
	if err := s.userRepo.Create(newUser); err != nil {
		return nil, err
	}

	accessToken, refreshToken, err := s.issueTokens(newUser)
	if err != nil {
		return nil, err
	}

	// 注册当天不叠加每日发放，初始余额即全部
	return &AuthResult{User: newUser, AccessToken: accessToken, RefreshToken: refreshToken, TokensGranted: 0}, nil
}

// Login 处理用户登录的业务逻辑，包括每日 token 发放。
func (s *userService) Login(email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.userRepo.FindByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if user.Password == "" || !hash.CheckPasswordHash(password, user.Password) {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	granted, err := s.grantDailyTokens(user, now)
	if err != nil {
		return nil, err
	}
	var grantAt *time.Time
	if granted > 0 {
		grantAt = &now
	}
	user.LastLogin = &now
	if err := s.userRepo.RecordLogin(user.ID, now, grantAt); err != nil {
		return nil, err
	}

	accessToken, refreshToken, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, AccessToken: accessToken, RefreshToken: refreshToken, TokensGranted: granted}, nil
}

// GoogleAuth 处理 Google 联邦登录：优先按 googleId 匹配，其次按邮箱关联，最后新建。
func (s *userService) GoogleAuth(googleID, email, name, profilePicture string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	now := s.now()

	user, err := s.userRepo.FindByGoogleID(googleID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if user == nil {
		// 尝试按邮箱关联已有账号
		user, err = s.userRepo.FindByEmail(email)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if user != nil {
			// 先落盘账号关联信息，之后的余额发放只走累加 UPDATE
			user.GoogleID = &googleID
			if profilePicture != "" {
				user.ProfilePicture = profilePicture
			}
			if err := s.userRepo.Update(user); err != nil {
				return nil, err
			}
		}
	}

	granted := 0
	if user == nil {
		// 全新用户：初始余额已包含当日发放
		user = &model.User{
			Name:               name,
			Email:              email,
			GoogleID:           &googleID,
			ProfilePicture:     profilePicture,
			Role:               model.RoleNormal,
			SubscriptionStatus: model.SubscriptionFree,
			Tokens:             s.ledger.GoogleSignupGrant,
			LastTokenGrantDate: &now,
			LastLogin:          &now,
		}
		if user.ProfilePicture == "" {
			user.ProfilePicture = model.DefaultProfilePicture
		}
		if err := s.userRepo.Create(user); err != nil {
			return nil, err
		}
		granted = s.ledger.DailyGrant
	} else {
		granted, err = s.grantDailyTokens(user, now)
		if err != nil {
			return nil, err
		}
		var grantAt *time.Time
		if granted > 0 {
			grantAt = &now
		}
		user.LastLogin = &now
		if err := s.userRepo.RecordLogin(user.ID, now, grantAt); err != nil {
			return nil, err
		}
	}

	accessToken, refreshToken, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, AccessToken: accessToken, RefreshToken: refreshToken, TokensGranted: granted}, nil
}

// RefreshToken 验证 refresh token 并签发新的 access token 和 refresh token。
func (s *userService) RefreshToken(refreshTokenString string) (newAccessToken, newRefreshToken string, err error) {
	claims, err := s.jwtManager.VerifyToken(refreshTokenString)
	if err != nil {
		return "", "", errors.New("invalid refresh token")
	}

	user, err := s.userRepo.FindByID(claims.UserID)
	if err != nil {
		return "", "", ErrUserNotFound
	}

	return s.issueTokens(user)
}

// Logout 将 token 加入 Redis 黑名单，有效期与 token 剩余寿命一致。
func (s *userService) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return err
	}
	if database.RDB == nil {
		return nil
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	key := "jwt:blacklist:" + tokenString
	return database.RDB.Set(ctx, key, "1", ttl).Err()
}

// IsTokenRevoked 检查 token 是否在登出黑名单中。
func (s *userService) IsTokenRevoked(ctx context.Context, tokenString string) bool {
	if database.RDB == nil {
		return false
	}
	n, err := database.RDB.Exists(ctx, "jwt:blacklist:"+tokenString).Result()
	if err != nil {
		// Redis 异常时放行，认证仍以签名校验为准
		log.Errorf("检查 token 黑名单失败: %v", err)
		return false
	}
	return n > 0
}

// GetByID 根据用户 ID 获取用户详细信息。
func (s *userService) GetByID(userID uint) (*model.User, error) {
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateProfile 更新用户资料，空字段保持不变。
func (s *userService) UpdateProfile(userID uint, name, email, profilePicture string) (*model.User, error) {
	user, err := s.GetByID(userID)
	if err != nil {
		return nil, err
	}

	if name != "" {
		user.Name = name
	}
	if email != "" {
		user.Email = strings.ToLower(strings.TrimSpace(email))
	}
	if profilePicture != "" {
		user.ProfilePicture = profilePicture
	}

	if err := s.userRepo.Update(user); err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateSubscription 更新订阅状态，付费状态会同步提升角色。
func (s *userService) UpdateSubscription(userID uint, status string, endDate *time.Time) (*model.User, error) {
	user, err := s.GetByID(userID)
	if err != nil {
		return nil, err
	}

	user.SubscriptionStatus = status
	if endDate != nil {
		user.SubscriptionEndDate = endDate
	}
	if status == model.SubscriptionPaid {
		user.Role = model.RolePremium
	}

	if err := s.userRepo.Update(user); err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteAccount 删除用户账号。
func (s *userService) DeleteAccount(userID uint) error {
	if _, err := s.GetByID(userID); err != nil {
		return err
	}
	return s.userRepo.Delete(userID)
}

// SavePayment 追加一条支付记录并翻转用户的订阅状态。
// 支付记录本身创建后不再修改。
func (s *userService) SavePayment(userID uint, input SavePaymentInput) (*model.Payment, *model.User, error) {
	if input.TransactionID == "" || input.Amount <= 0 || input.Plan == "" || input.ReceiptID == "" {
		return nil, nil, ErrMissingPaymentFields
	}

	user, err := s.GetByID(userID)
	if err != nil {
		return nil, nil, err
	}

	orderID := input.OrderID
	if orderID == "" {
		orderID = payment.GenerateOrderID()
	}

	// 客户端提供了签名时做校验；没有签名的旧客户端沿用信任模式
	if input.Signature != "" && !s.verifier.VerifySignature(orderID, input.TransactionID, input.Signature) {
		return nil, nil, ErrBadSignature
	}

	status := model.PaymentPending
	switch strings.ToLower(input.Status) {
	case "success", "completed":
		status = model.PaymentCompleted
	case "failed":
		status = model.PaymentFailed
	}

	paymentDate := s.now()
	if input.PaymentDate != nil {
		paymentDate = *input.PaymentDate
	}

	currency := input.Currency
	if currency == "" {
		currency = "INR"
	}

	record := &model.Payment{
		UserID:            user.ID,
		RazorpayPaymentID: input.TransactionID,
		RazorpayOrderID:   orderID,
		Amount:            input.Amount,
		Currency:          currency,
		Plan:              input.Plan,
		ReceiptID:         input.ReceiptID,
		Status:            status,
		PaymentDate:       paymentDate,
	}
	if err := s.paymentRepo.Create(record); err != nil {
		return nil, nil, err
	}

	// 订阅翻转：月付 +1 个月，年付 +1 年
	endDate := s.now()
	if input.Plan == model.PlanMonthly {
		endDate = endDate.AddDate(0, 1, 0)
	} else {
		endDate = endDate.AddDate(1, 0, 0)
	}
	user.SubscriptionStatus = model.SubscriptionPaid
	user.Role = model.RolePremium
	user.SubscriptionEndDate = &endDate
	if err := s.userRepo.Update(user); err != nil {
		return nil, nil, fmt.Errorf("failed to update subscription after payment: %w", err)
	}

	return record, user, nil
}

// LatestPayment 返回付费用户最新的一条支付记录。
func (s *userService) LatestPayment(userID uint) (*model.Payment, *model.User, error) {
	user, err := s.GetByID(userID)
	if err != nil {
		return nil, nil, err
	}
	if !user.IsPaid() {
		return nil, user, nil
	}

	record, err := s.paymentRepo.FindLatestByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, user, nil
		}
		return nil, nil, err
	}
	return record, user, nil
}
