package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureVerifier 校验网关回调签名
// 支付回调: hex(HMAC-SHA256(key_secret, gateway_order_id + "|" + gateway_payment_id))
// Webhook:  hex(HMAC-SHA256(webhook_secret, raw body))
type SignatureVerifier struct {
	keySecret     []byte
	webhookSecret []byte
}

func NewSignatureVerifier(keySecret, webhookSecret string) *SignatureVerifier {
	return &SignatureVerifier{
		keySecret:     []byte(keySecret),
		webhookSecret: []byte(webhookSecret),
	}
}

// Sign 计算支付回调签名
func (v *SignatureVerifier) Sign(gatewayOrderID, gatewayPaymentID string) string {
	return hexHMAC(v.keySecret, []byte(gatewayOrderID+"|"+gatewayPaymentID))
}

// Verify 常量时间比较，任何字段为空都视为失败
func (v *SignatureVerifier) Verify(gatewayOrderID, gatewayPaymentID, signature string) bool {
	if len(v.keySecret) == 0 || gatewayOrderID == "" || gatewayPaymentID == "" || signature == "" {
		return false
	}
	expected := v.Sign(gatewayOrderID, gatewayPaymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SignWebhook 计算 webhook 签名
func (v *SignatureVerifier) SignWebhook(body []byte) string {
	return hexHMAC(v.webhookSecret, body)
}

func (v *SignatureVerifier) VerifyWebhook(body []byte, signature string) bool {
	if len(v.webhookSecret) == 0 || signature == "" {
		return false
	}
	return hmac.Equal([]byte(v.SignWebhook(body)), []byte(signature))
}

func hexHMAC(key, msg []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}
