package gateway

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	vnpSecureHash     = "vnp_SecureHash"
	vnpSecureHashType = "vnp_SecureHashType"
	vnpSuccessCode    = "00"
)

var vnpayLocation = time.FixedZone("ICT", 7*60*60)

// VNPay signs every vnp_ field except the hash fields, sorted by key name,
// with URL-encoded values.
type VNPay struct {
	hashSecret string
	algorithm  HashAlgorithm
	tmnCode    string
}

func NewVNPay(hashSecret string, algorithm HashAlgorithm) *VNPay {
	if algorithm == "" {
		algorithm = SHA256
	}
	return &VNPay{hashSecret: hashSecret, algorithm: algorithm}
}

// WithTmnCode makes Parse reject callbacks whose vnp_TmnCode differs.
func (v *VNPay) WithTmnCode(tmnCode string) *VNPay {
	v.tmnCode = tmnCode
	return v
}

func (v *VNPay) Kind() Kind { return KindVNPay }

func (v *VNPay) Canonicalize(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k, val := range fields {
		if !strings.HasPrefix(k, "vnp_") || k == vnpSecureHash || k == vnpSecureHashType || val == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+url.QueryEscape(fields[k]))
	}
	return strings.Join(parts, "&")
}

func (v *VNPay) Verify(fields map[string]string) error {
	sig := fields[vnpSecureHash]
	if sig == "" {
		return fmt.Errorf("%w: %s absent", ErrInvalidSignature, vnpSecureHash)
	}
	if !VerifyHMAC(v.Canonicalize(fields), sig, v.hashSecret, v.algorithm) {
		return fmt.Errorf("%w: vnpay hash mismatch for %s", ErrInvalidSignature, fields["vnp_TxnRef"])
	}
	return nil
}

// Sign computes vnp_SecureHash for fields.
func (v *VNPay) Sign(fields map[string]string) string {
	return Sign(v.Canonicalize(fields), v.hashSecret, v.algorithm)
}

func (v *VNPay) Parse(fields map[string]string) (*Callback, error) {
	if err := required(fields, "vnp_TxnRef", "vnp_ResponseCode", "vnp_Amount"); err != nil {
		return nil, err
	}
	if v.tmnCode != "" && fields["vnp_TmnCode"] != v.tmnCode {
		return nil, fmt.Errorf("%w: vnp_TmnCode %q", ErrMerchantMismatch, fields["vnp_TmnCode"])
	}

	// vnp_Amount is sent multiplied by 100
	raw, err := strconv.ParseInt(fields["vnp_Amount"], 10, 64)
	if err != nil || raw < 0 {
		return nil, fmt.Errorf("%w: malformed vnp_Amount %q", ErrMissingField, fields["vnp_Amount"])
	}

	responseCode := fields["vnp_ResponseCode"]
	txnStatus := fields["vnp_TransactionStatus"]
	cb := &Callback{
		Gateway:         KindVNPay,
		TransactionCode: fields["vnp_TxnRef"],
		ResponseCode:    responseCode,
		Success:         responseCode == vnpSuccessCode && (txnStatus == "" || txnStatus == vnpSuccessCode),
		Message:         fields["vnp_OrderInfo"],
		GatewayTxnNo:    fields["vnp_TransactionNo"],
		BankCode:        fields["vnp_BankCode"],
		Amount:          decimal.New(raw, -2),
	}
	if payDate := fields["vnp_PayDate"]; payDate != "" {
		if t, err := time.ParseInLocation("20060102150405", payDate, vnpayLocation); err == nil {
			cb.PaidAt = &t
		}
	}
	return cb, nil
}
