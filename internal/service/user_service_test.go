package service

import (
	"context"
	"testing"
	"time"

	"chai-builder-go/internal/config"
	"chai-builder-go/internal/model"
	"chai-builder-go/internal/repository"
	"chai-builder-go/pkg/payment"
	"chai-builder-go/pkg/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserTestService(t *testing.T) (*userService, repository.UserRepository, repository.PaymentRepository) {
	t.Helper()
	db := openTestDB(t)
	userRepo := repository.NewUserRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	jwtManager := token.NewJWTManager("test-secret", 24, 7)
	verifier := payment.NewVerifier(config.RazorpayConfig{KeySecret: "rzp-test-secret"})
	svc := NewUserService(userRepo, paymentRepo, jwtManager, verifier, testLedger()).(*userService)
	return svc, userRepo, paymentRepo
}

func TestRegister_GrantsSignupTokens(t *testing.T) {
	svc, userRepo, _ := newUserTestService(t)

	result, err := svc.Register("Asha", "Asha@Example.com", "secret123", "")
	require.NoError(t, err)

	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.Equal(t, "asha@example.com", result.User.Email)
	assert.Equal(t, 100, result.User.Tokens)
	assert.Equal(t, model.DefaultProfilePicture, result.User.ProfilePicture)
	assert.NotEqual(t, "secret123", result.User.Password)

	stored, err := userRepo.FindByEmail("asha@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.RoleNormal, stored.Role)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _, _ := newUserTestService(t)

	_, err := svc.Register("Asha", "asha@example.com", "secret123", "")
	require.NoError(t, err)

	_, err = svc.Register("Other", "asha@example.com", "different", "")
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, _, _ := newUserTestService(t)

	_, err := svc.Register("Asha", "asha@example.com", "secret123", "")
	require.NoError(t, err)

	_, err = svc.Login("asha@example.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login("nobody@example.com", "secret123")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_DailyGrantOncePerCalendarDay(t *testing.T) {
	svc, userRepo, _ := newUserTestService(t)

	_, err := svc.Register("Asha", "asha@example.com", "secret123", "")
	require.NoError(t, err)

	day1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.Local)
	svc.now = func() time.Time { return day1 }

	result, err := svc.Login("asha@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, 50, result.TokensGranted)
	assert.Equal(t, 150, result.User.Tokens)

	// 同一天再次登录不再发放
	svc.now = func() time.Time { return day1.Add(8 * time.Hour) }
	result, err = svc.Login("asha@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, 0, result.TokensGranted)
	assert.Equal(t, 150, result.User.Tokens)

	// 跨过日切后重新发放
	svc.now = func() time.Time { return day1.AddDate(0, 0, 1) }
	result, err = svc.Login("asha@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, 50, result.TokensGranted)

	stored, err := userRepo.FindByEmail("asha@example.com")
	require.NoError(t, err)
	assert.Equal(t, 200, stored.Tokens)
}

func TestGoogleAuth_NewUser(t *testing.T) {
	svc, _, _ := newUserTestService(t)

	result, err := svc.GoogleAuth("google-123", "dev@example.com", "Dev", "https://example.com/pic.png")
	require.NoError(t, err)

	assert.Equal(t, 150, result.User.Tokens)
	assert.Equal(t, 50, result.TokensGranted)
	require.NotNil(t, result.User.GoogleID)
	assert.Equal(t, "google-123", *result.User.GoogleID)
}

func TestGoogleAuth_AttachesToExistingEmail(t *testing.T) {
	svc, userRepo, _ := newUserTestService(t)

	registered, err := svc.Register("Dev", "dev@example.com", "secret123", "")
	require.NoError(t, err)

	result, err := svc.GoogleAuth("google-123", "dev@example.com", "Dev", "")
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, result.User.ID)

	stored, err := userRepo.FindByID(registered.User.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.GoogleID)
	assert.Equal(t, "google-123", *stored.GoogleID)
	// 既有账号不重复发放注册赠额
	assert.Equal(t, 150, stored.Tokens) // 100 注册 + 50 当日登录
}

func TestRefreshToken_RoundTrip(t *testing.T) {
	svc, _, _ := newUserTestService(t)

	result, err := svc.Register("Asha", "asha@example.com", "secret123", "")
	require.NoError(t, err)

	access, refresh, err := svc.RefreshToken(result.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)

	_, _, err = svc.RefreshToken("not-a-token")
	require.Error(t, err)
}

func TestIsTokenRevoked_NoRedisConfigured(t *testing.T) {
	svc, _, _ := newUserTestService(t)
	assert.False(t, svc.IsTokenRevoked(context.Background(), "whatever"))
}

func TestSavePayment_FlipsSubscription(t *testing.T) {
	svc, userRepo, _ := newUserTestService(t)

	registered, err := svc.Register("Asha", "asha@example.com", "secret123", "")
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	record, updated, err := svc.SavePayment(registered.User.ID, SavePaymentInput{
		Amount:        499,
		TransactionID: "pay_abc123",
		Plan:          model.PlanMonthly,
		ReceiptID:     "rcpt_xyz",
		Status:        "success",
	})
	require.NoError(t, err)

	assert.Equal(t, model.PaymentCompleted, record.Status)
	assert.Equal(t, "INR", record.Currency)
	assert.True(t, len(record.RazorpayOrderID) > 0)

	assert.Equal(t, model.SubscriptionPaid, updated.SubscriptionStatus)
	assert.Equal(t, model.RolePremium, updated.Role)
	require.NotNil(t, updated.SubscriptionEndDate)
	assert.Equal(t, now.AddDate(0, 1, 0), *updated.SubscriptionEndDate)

	stored, err := userRepo.FindByID(registered.User.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsPaid())
}

func TestSavePayment_YearlyPlanEndDate(t *testing.T) {
	svc, _, _ := newUserTestService(t)

	registered, err := svc.Register("Asha", "asha@example.com", "secret123", "")
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, updated, err := svc.SavePayment(registered.User.ID, SavePaymentInput{
		Amount:        4999,
		TransactionID: "pay_abc123",
		Plan:          model.PlanYearly,
		ReceiptID:     "rcpt_xyz",
		Status:        "unknown-state",
	})
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(1, 0, 0), *updated.SubscriptionEndDate)
}

func TestSavePayment_MissingFields(t *testing.T) {
	svc, _, _ := newUserTestService(t)

	registered, err := svc.Register("Asha", "asha@example.com", "secret123", "")
	require.NoError(t, err)

	_, _, err = svc.SavePayment(registered.User.ID, SavePaymentInput{Amount: 499})
	require.ErrorIs(t, err, ErrMissingPaymentFields)
}

func TestSavePayment_BadSignatureRejected(t *testing.T) {
	svc, _, _ := newUserTestService(t)

	registered, err := svc.Register("Asha", "asha@example.com", "secret123", "")
	require.NoError(t, err)

	_, _, err = svc.SavePayment(registered.User.ID, SavePaymentInput{
		Amount:        499,
		TransactionID: "pay_abc123",
		OrderID:       "order_123",
		Signature:     "deadbeef",
		Plan:          model.PlanMonthly,
		ReceiptID:     "rcpt_xyz",
	})
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestLatestPayment_FreeUserSoftFail(t *testing.T) {
	svc, _, _ := newUserTestService(t)

	registered, err := svc.Register("Asha", "asha@example.com", "secret123", "")
	require.NoError(t, err)

	record, user, err := svc.LatestPayment(registered.User.ID)
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.False(t, user.IsPaid())
}

func TestLatestPayment_ReturnsNewest(t *testing.T) {
	svc, _, paymentRepo := newUserTestService(t)

	registered, err := svc.Register("Asha", "asha@example.com", "secret123", "")
	require.NoError(t, err)

	_, _, err = svc.SavePayment(registered.User.ID, SavePaymentInput{
		Amount: 499, TransactionID: "pay_old", Plan: model.PlanMonthly, ReceiptID: "rcpt_1",
		Status: "success", PaymentDate: timePtr(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	_, _, err = svc.SavePayment(registered.User.ID, SavePaymentInput{
		Amount: 499, TransactionID: "pay_new", Plan: model.PlanMonthly, ReceiptID: "rcpt_2",
		Status: "success", PaymentDate: timePtr(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)

	record, user, err := svc.LatestPayment(registered.User.ID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "pay_new", record.RazorpayPaymentID)
	assert.True(t, user.IsPaid())

	all, err := paymentRepo.FindByUserID(registered.User.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUpdateSubscription_PaidPromotesRole(t *testing.T) {
	svc, _, _ := newUserTestService(t)

	registered, err := svc.Register("Asha", "asha@example.com", "secret123", "")
	require.NoError(t, err)

	end := time.Now().AddDate(0, 1, 0)
	updated, err := svc.UpdateSubscription(registered.User.ID, model.SubscriptionPaid, &end)
	require.NoError(t, err)
	assert.Equal(t, model.RolePremium, updated.Role)
	assert.True(t, updated.IsPaid())
}

func TestDeleteAccount(t *testing.T) {
	svc, _, _ := newUserTestService(t)

	registered, err := svc.Register("Asha", "asha@example.com", "secret123", "")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAccount(registered.User.ID))
	_, err = svc.GetByID(registered.User.ID)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func timePtr(v time.Time) *time.Time { return &v }
