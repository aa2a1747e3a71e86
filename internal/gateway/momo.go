package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// momoSignatureOrder is MoMo's documented field order for IPN and return
// signatures. accessKey is merchant configuration, not a request field.
var momoSignatureOrder = []string{
	"accessKey",
	"amount",
	"extraData",
	"message",
	"orderId",
	"orderInfo",
	"orderType",
	"partnerCode",
	"payType",
	"requestId",
	"responseTime",
	"resultCode",
	"transId",
}

type MoMo struct {
	accessKey   string
	secretKey   string
	partnerCode string
}

func NewMoMo(accessKey, secretKey string) *MoMo {
	return &MoMo{accessKey: accessKey, secretKey: secretKey}
}

// WithPartnerCode makes Parse reject callbacks whose partnerCode differs.
func (m *MoMo) WithPartnerCode(partnerCode string) *MoMo {
	m.partnerCode = partnerCode
	return m
}

func (m *MoMo) Kind() Kind { return KindMoMo }

func (m *MoMo) Canonicalize(fields map[string]string) string {
	parts := make([]string, 0, len(momoSignatureOrder))
	for _, k := range momoSignatureOrder {
		v := fields[k]
		if k == "accessKey" {
			v = m.accessKey
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, "&")
}

func (m *MoMo) Verify(fields map[string]string) error {
	sig := fields["signature"]
	if sig == "" {
		return fmt.Errorf("%w: signature absent", ErrInvalidSignature)
	}
	if !VerifyHMAC(m.Canonicalize(fields), sig, m.secretKey, SHA256) {
		return fmt.Errorf("%w: momo signature mismatch for %s", ErrInvalidSignature, fields["orderId"])
	}
	return nil
}

// Sign computes the signature field for fields.
func (m *MoMo) Sign(fields map[string]string) string {
	return Sign(m.Canonicalize(fields), m.secretKey, SHA256)
}

func (m *MoMo) Parse(fields map[string]string) (*Callback, error) {
	if err := required(fields, "orderId", "resultCode", "amount"); err != nil {
		return nil, err
	}
	if m.partnerCode != "" && fields["partnerCode"] != m.partnerCode {
		return nil, fmt.Errorf("%w: partnerCode %q", ErrMerchantMismatch, fields["partnerCode"])
	}

	amount, err := decimal.NewFromString(fields["amount"])
	if err != nil || amount.IsNegative() {
		return nil, fmt.Errorf("%w: malformed amount %q", ErrMissingField, fields["amount"])
	}

	cb := &Callback{
		Gateway:         KindMoMo,
		TransactionCode: fields["orderId"],
		ResponseCode:    fields["resultCode"],
		Success:         fields["resultCode"] == "0",
		Message:         fields["message"],
		GatewayTxnNo:    fields["transId"],
		BankCode:        fields["payType"],
		Amount:          amount,
	}
	if ms, err := strconv.ParseInt(fields["responseTime"], 10, 64); err == nil && ms > 0 {
		t := time.UnixMilli(ms)
		cb.PaidAt = &t
	}
	return cb, nil
}

// MoMoFieldsFromJSON flattens a MoMo IPN JSON body into string fields, keeping
// numbers exactly as sent so the signature can be rebuilt.
func MoMoFieldsFromJSON(body []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			fields[k] = ""
		case string:
			fields[k] = val
		case json.Number:
			fields[k] = val.String()
		case bool:
			fields[k] = strconv.FormatBool(val)
		default:
			return nil, fmt.Errorf("unexpected type for momo field %s", k)
		}
	}
	return fields, nil
}
