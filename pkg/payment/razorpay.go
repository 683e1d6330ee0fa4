// Package payment 提供了与 Razorpay 支付网关交互的辅助功能。
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"chai-builder-go/internal/config"

	"github.com/google/uuid"
)

// Verifier 负责校验 Razorpay 回传的支付签名。
type Verifier struct {
	keySecret string
}

// NewVerifier 创建一个新的 Verifier 实例。
func NewVerifier(cfg config.RazorpayConfig) *Verifier {
	return &Verifier{keySecret: cfg.KeySecret}
}

// VerifySignature 校验 checkout 回调中的 razorpay_signature。
// 签名是对 "orderID|paymentID" 做 HMAC-SHA256 后的十六进制串。
func (v *Verifier) VerifySignature(orderID, paymentID, signature string) bool {
	if v.keySecret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(v.keySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// GenerateOrderID 在客户端未提供订单号时生成一个兜底订单号。
// 格式与 Razorpay 的 "order_" 前缀保持一致。
func GenerateOrderID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "order_" + id[:14]
}
