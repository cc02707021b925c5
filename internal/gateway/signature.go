package gateway

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
)

// ============================================================================
// 支付网关回调签名
// ============================================================================
//
// 网关回调携带 signature_key，计算规则（网关文档约定）：
//
//	sha512(order_id + status + gross_amount + server_key)
//
// 校验不通过的回调一律丢弃，不做任何状态变更。
// ============================================================================

// Notification 网关回调报文
type Notification struct {
	OrderID      string `json:"order_id" binding:"required"`
	Status       string `json:"status" binding:"required"`
	GrossAmount  string `json:"gross_amount" binding:"required"`
	SignatureKey string `json:"signature_key" binding:"required"`
}

// 网关侧的终态取值
const (
	NotifyStatusPaid    = "paid"
	NotifyStatusFailed  = "failed"
	NotifyStatusExpired = "expired"
)

// Sign 计算回调签名
func Sign(orderID, status, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + status + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// VerifySignature 校验回调签名，常数时间比较
func VerifySignature(n *Notification, serverKey string) bool {
	expected := Sign(n.OrderID, n.Status, n.GrossAmount, serverKey)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(n.SignatureKey)) == 1
}
