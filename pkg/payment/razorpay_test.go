package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"chai-builder-go/internal/config"

	"github.com/stretchr/testify/assert"
)

func sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	v := NewVerifier(config.RazorpayConfig{KeySecret: "secret"})

	sig := sign("secret", "order_1", "pay_1")
	assert.True(t, v.VerifySignature("order_1", "pay_1", sig))
	assert.False(t, v.VerifySignature("order_1", "pay_2", sig))
	assert.False(t, v.VerifySignature("order_1", "pay_1", "deadbeef"))
}

func TestVerifySignature_EmptySecret(t *testing.T) {
	v := NewVerifier(config.RazorpayConfig{})
	assert.False(t, v.VerifySignature("order_1", "pay_1", sign("", "order_1", "pay_1")))
}

func TestGenerateOrderID(t *testing.T) {
	id := GenerateOrderID()
	assert.True(t, strings.HasPrefix(id, "order_"))
	assert.Len(t, id, len("order_")+14)
	assert.NotEqual(t, id, GenerateOrderID())
}
