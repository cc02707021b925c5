package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifySignature(t *testing.T) {
	serverKey := "test-server-key"
	n := &Notification{
		OrderID:     "ORDER-123",
		Status:      NotifyStatusPaid,
		GrossAmount: "90000",
	}
	n.SignatureKey = Sign(n.OrderID, n.Status, n.GrossAmount, serverKey)

	require.True(t, VerifySignature(n, serverKey))

	// 任何一个字段被篡改都校验不过
	tampered := *n
	tampered.GrossAmount = "1"
	require.False(t, VerifySignature(&tampered, serverKey))

	tampered = *n
	tampered.Status = NotifyStatusFailed
	require.False(t, VerifySignature(&tampered, serverKey))

	tampered = *n
	tampered.OrderID = "ORDER-456"
	require.False(t, VerifySignature(&tampered, serverKey))

	// 错误的 server key
	require.False(t, VerifySignature(n, "wrong-key"))
}

func TestSignDeterministic(t *testing.T) {
	a := Sign("ORDER-123", "paid", "90000", "key")
	b := Sign("ORDER-123", "paid", "90000", "key")
	require.Equal(t, a, b)
	require.Len(t, a, 128) // sha512 hex
}
