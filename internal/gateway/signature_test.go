package gateway

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyHMAC(t *testing.T) {
	payload := "amount=100000&orderId=DON-1"
	secret := "top-secret"
	sig := Sign(payload, secret, SHA256)

	t.Run("valid signature", func(t *testing.T) {
		assert.True(t, VerifyHMAC(payload, sig, secret, SHA256))
	})

	t.Run("upper case hex accepted", func(t *testing.T) {
		assert.True(t, VerifyHMAC(payload, strings.ToUpper(sig), secret, SHA256))
	})

	t.Run("tampered payload", func(t *testing.T) {
		assert.False(t, VerifyHMAC("amount=900000&orderId=DON-1", sig, secret, SHA256))
	})

	t.Run("wrong secret", func(t *testing.T) {
		assert.False(t, VerifyHMAC(payload, sig, "other", SHA256))
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		assert.False(t, VerifyHMAC(payload, sig, secret, SHA512))
	})

	t.Run("not hex", func(t *testing.T) {
		assert.False(t, VerifyHMAC(payload, "zz-not-hex", secret, SHA256))
	})

	t.Run("empty signature", func(t *testing.T) {
		assert.False(t, VerifyHMAC(payload, "", secret, SHA256))
	})
}

func TestSign_Algorithms(t *testing.T) {
	assert.Len(t, Sign("x", "k", SHA256), 64)
	assert.Len(t, Sign("x", "k", SHA512), 128)
	assert.Len(t, Sign("x", "k", ""), 64)
}

func TestRegistry_VerifyAndParse(t *testing.T) {
	vnp := NewVNPay("secret", SHA256)
	fields := map[string]string{
		"vnp_TxnRef":       "DON-42",
		"vnp_Amount":       "30000000",
		"vnp_ResponseCode": "00",
	}
	fields[vnpSecureHash] = vnp.Sign(fields)

	t.Run("verified payload parses", func(t *testing.T) {
		reg := NewRegistry(vnp)
		cb, err := reg.VerifyAndParse(KindVNPay, fields)
		require.NoError(t, err)
		assert.Equal(t, "DON-42", cb.TransactionCode)
		assert.True(t, cb.Success)
	})

	t.Run("unknown gateway", func(t *testing.T) {
		reg := NewRegistry(vnp)
		_, err := reg.VerifyAndParse(KindMoMo, fields)
		assert.True(t, errors.Is(err, ErrUnknownGateway))
	})

	t.Run("tampered payload rejected", func(t *testing.T) {
		reg := NewRegistry(vnp)
		tampered := copyFields(fields)
		tampered["vnp_Amount"] = "90000000"
		_, err := reg.VerifyAndParse(KindVNPay, tampered)
		assert.True(t, errors.Is(err, ErrInvalidSignature))
	})

	t.Run("insecure mode skips verification only when enabled", func(t *testing.T) {
		reg := NewRegistry(vnp).WithInsecureSkipVerify(true)
		unsigned := copyFields(fields)
		delete(unsigned, vnpSecureHash)
		cb, err := reg.VerifyAndParse(KindVNPay, unsigned)
		require.NoError(t, err)
		assert.Equal(t, "DON-42", cb.TransactionCode)
	})
}

func copyFields(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
