package repository

import (
	"chai-builder-go/internal/model"

	"gorm.io/gorm"
)

// PaymentRepository 接口定义了支付记录的持久化操作。
// 支付记录只追加，没有更新入口。
type PaymentRepository interface {
	Create(payment *model.Payment) error
	// FindLatestByUserID 返回某个用户最新的一条支付记录。
	FindLatestByUserID(userID uint) (*model.Payment, error)
	FindByUserID(userID uint) ([]model.Payment, error)
}

// paymentRepository 是 PaymentRepository 接口的 GORM 实现。
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository 创建一个新的 PaymentRepository 实例。
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// Create 在数据库中追加一条支付记录。
func (r *paymentRepository) Create(payment *model.Payment) error {
	return r.db.Create(payment).Error
}

// FindLatestByUserID 按支付时间倒序返回最新的一条支付记录。
func (r *paymentRepository) FindLatestByUserID(userID uint) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.Where("user_id = ?", userID).Order("payment_date DESC").First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindByUserID 返回某个用户的全部支付记录，按支付时间倒序。
func (r *paymentRepository) FindByUserID(userID uint) ([]model.Payment, error) {
	var payments []model.Payment
	err := r.db.Where("user_id = ?", userID).Order("payment_date DESC").Find(&payments).Error
	return payments, err
}
