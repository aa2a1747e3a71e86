package gateway

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vnpayFields() map[string]string {
	return map[string]string{
		"vnp_Amount":            "30000000",
		"vnp_BankCode":          "NCB",
		"vnp_OrderInfo":         "Ung ho chien dich 7",
		"vnp_PayDate":           "20250102153000",
		"vnp_ResponseCode":      "00",
		"vnp_TmnCode":           "CHARITY1",
		"vnp_TransactionNo":     "14000001",
		"vnp_TransactionStatus": "00",
		"vnp_TxnRef":            "DON-7",
	}
}

func TestVNPay_Canonicalize(t *testing.T) {
	v := NewVNPay("secret", SHA512)

	t.Run("sorted by key and url encoded", func(t *testing.T) {
		fields := map[string]string{
			"vnp_TxnRef":      "DON-7",
			"vnp_Amount":      "100",
			"vnp_OrderInfo":   "a b&c",
			vnpSecureHash:     "ignored",
			vnpSecureHashType: "HmacSHA512",
			"utm_source":      "ignored",
			"vnp_BankCode":    "",
		}
		assert.Equal(t, "vnp_Amount=100&vnp_OrderInfo=a+b%26c&vnp_TxnRef=DON-7", v.Canonicalize(fields))
	})

	t.Run("arrival order does not matter", func(t *testing.T) {
		a := vnpayFields()
		b := make(map[string]string)
		for k, val := range a {
			b[k] = val
		}
		assert.Equal(t, v.Canonicalize(a), v.Canonicalize(b))
	})
}

func TestVNPay_Verify(t *testing.T) {
	v := NewVNPay("vnp-secret", SHA512)

	t.Run("valid", func(t *testing.T) {
		fields := vnpayFields()
		fields[vnpSecureHash] = v.Sign(fields)
		assert.NoError(t, v.Verify(fields))
	})

	t.Run("tampered amount", func(t *testing.T) {
		fields := vnpayFields()
		fields[vnpSecureHash] = v.Sign(fields)
		fields["vnp_Amount"] = "1"
		assert.True(t, errors.Is(v.Verify(fields), ErrInvalidSignature))
	})

	t.Run("tampered response code", func(t *testing.T) {
		fields := vnpayFields()
		fields["vnp_ResponseCode"] = "24"
		fields[vnpSecureHash] = v.Sign(fields)
		fields["vnp_ResponseCode"] = "00"
		assert.True(t, errors.Is(v.Verify(fields), ErrInvalidSignature))
	})

	t.Run("missing hash", func(t *testing.T) {
		assert.True(t, errors.Is(v.Verify(vnpayFields()), ErrInvalidSignature))
	})
}

func TestVNPay_Parse(t *testing.T) {
	v := NewVNPay("vnp-secret", SHA256)

	t.Run("successful payment", func(t *testing.T) {
		cb, err := v.Parse(vnpayFields())
		require.NoError(t, err)
		assert.Equal(t, KindVNPay, cb.Gateway)
		assert.Equal(t, "DON-7", cb.TransactionCode)
		assert.True(t, cb.Success)
		assert.True(t, decimal.NewFromInt(300000).Equal(cb.Amount))
		assert.Equal(t, "14000001", cb.GatewayTxnNo)
		assert.Equal(t, "NCB", cb.BankCode)
		require.NotNil(t, cb.PaidAt)
		assert.Equal(t, 2025, cb.PaidAt.Year())
	})

	t.Run("cancelled by user", func(t *testing.T) {
		fields := vnpayFields()
		fields["vnp_ResponseCode"] = "24"
		fields["vnp_TransactionStatus"] = "02"
		cb, err := v.Parse(fields)
		require.NoError(t, err)
		assert.False(t, cb.Success)
		assert.Equal(t, "24", cb.ResponseCode)
	})

	t.Run("response ok but transaction status failed", func(t *testing.T) {
		fields := vnpayFields()
		fields["vnp_TransactionStatus"] = "02"
		cb, err := v.Parse(fields)
		require.NoError(t, err)
		assert.False(t, cb.Success)
	})

	t.Run("missing txn ref", func(t *testing.T) {
		fields := vnpayFields()
		delete(fields, "vnp_TxnRef")
		_, err := v.Parse(fields)
		assert.True(t, errors.Is(err, ErrMissingField))
	})

	t.Run("malformed amount", func(t *testing.T) {
		fields := vnpayFields()
		fields["vnp_Amount"] = "12.5"
		_, err := v.Parse(fields)
		assert.True(t, errors.Is(err, ErrMissingField))
	})
}

func TestVNPay_ParseChecksTmnCode(t *testing.T) {
	fields := vnpayFields()

	cb, err := NewVNPay("s", SHA256).WithTmnCode("CHARITY1").Parse(fields)
	require.NoError(t, err)
	assert.Equal(t, "DON-7", cb.TransactionCode)

	_, err = NewVNPay("s", SHA256).WithTmnCode("OTHERSHOP").Parse(fields)
	assert.True(t, errors.Is(err, ErrMerchantMismatch))

	_, err = NewVNPay("s", SHA256).Parse(fields)
	assert.NoError(t, err)
}
