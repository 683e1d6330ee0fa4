package model

import "time"

// 订阅计划取值。
const (
	PlanMonthly = "monthly"
	PlanYearly  = "yearly"
)

// 支付状态取值。
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
)

// Payment 对应于数据库中的 'payments' 表。
// 每次计费尝试一条记录，只追加，成功后也不再修改。
type Payment struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            uint      `gorm:"index;not null" json:"userId"`
	RazorpayPaymentID string    `gorm:"type:varchar(64);not null" json:"razorpayPaymentId"`
	RazorpayOrderID   string    `gorm:"type:varchar(64);not null" json:"razorpayOrderId"`
	Amount            float64   `gorm:"not null" json:"amount"`
	Currency          string    `gorm:"type:varchar(10);not null;default:INR" json:"currency"`
	Plan              string    `gorm:"type:varchar(20);not null" json:"plan"`
	ReceiptID         string    `gorm:"type:varchar(64);not null" json:"receiptId"`
	Status            string    `gorm:"type:varchar(20);not null;default:pending" json:"status"`
	PaymentDate       time.Time `json:"paymentDate"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Payment) TableName() string {
	return "payments"
}
