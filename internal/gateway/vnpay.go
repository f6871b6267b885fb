// Package gateway implements the client side of the VNPay wire protocol:
// building signed redirect URLs and verifying the secure hash on the two
// confirmation channels (browser return and server-to-server IPN).
package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"strconv"
	"time"

	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/apperrors"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/config"
)

const (
	paramVersion       = "vnp_Version"
	paramCommand       = "vnp_Command"
	paramTmnCode       = "vnp_TmnCode"
	paramLocale        = "vnp_Locale"
	paramCurrCode      = "vnp_CurrCode"
	paramTxnRef        = "vnp_TxnRef"
	paramOrderInfo     = "vnp_OrderInfo"
	paramOrderType     = "vnp_OrderType"
	paramAmount        = "vnp_Amount"
	paramReturnURL     = "vnp_ReturnUrl"
	paramIPAddr        = "vnp_IpAddr"
	paramCreateDate    = "vnp_CreateDate"
	paramBankCode      = "vnp_BankCode"
	paramResponseCode  = "vnp_ResponseCode"
	paramTransactionNo = "vnp_TransactionNo"
	paramPayDate       = "vnp_PayDate"
	paramSecureHash    = "vnp_SecureHash"
	paramSecureHashTyp = "vnp_SecureHashType"

	protocolVersion = "2.1.0"
	commandPay      = "pay"
	currencyVND     = "VND"
	defaultLocale   = "vn"
	orderTypeOther  = "other"
	payDateLayout   = "20060102150405"

	// ResponseCodeSuccess is the gateway's code for a settled payment.
	ResponseCodeSuccess = "00"
)

// VNPay timestamps are expressed in Vietnam local time.
var gatewayZone = time.FixedZone("ICT", 7*60*60)

// VNPay signs outgoing requests and verifies incoming callbacks with the
// merchant's shared secret.
type VNPay struct {
	cfg config.VNPayConfig
	now func() time.Time
}

func New(cfg config.VNPayConfig) *VNPay {
	return &VNPay{cfg: cfg, now: time.Now}
}

// PayURLRequest describes a payment redirect to assemble.
type PayURLRequest struct {
	OrderID   string
	Amount    int64
	OrderInfo string
	BankCode  string
	Locale    string
	ClientIP  string
}

// Callback is a verified gateway confirmation, identical in shape for both
// delivery channels.
type Callback struct {
	TxnRef        string
	Amount        int64
	ResponseCode  string
	TransactionNo string
	BankCode      string
	PayDate       time.Time
}

// Succeeded reports whether the gateway settled the payment.
func (c *Callback) Succeeded() bool {
	return c.ResponseCode == ResponseCodeSuccess
}

// BuildPaymentURL assembles the signed redirect URL for an order. The
// gateway expects amounts multiplied by 100, parameters sorted by name with
// spaces encoded as '+', and an HMAC-SHA512 of that exact string appended
// as the secure hash.
func (g *VNPay) BuildPaymentURL(req PayURLRequest) (string, error) {
	if req.OrderID == "" {
		return "", apperrors.Validation("order id is required")
	}
	if req.Amount <= 0 {
		return "", apperrors.Validation("amount must be positive")
	}

	locale := req.Locale
	if locale == "" {
		locale = defaultLocale
	}
	orderInfo := req.OrderInfo
	if orderInfo == "" {
		orderInfo = "Thanh toan don hang " + req.OrderID
	}

	params := url.Values{}
	params.Set(paramVersion, protocolVersion)
	params.Set(paramCommand, commandPay)
	params.Set(paramTmnCode, g.cfg.TmnCode)
	params.Set(paramLocale, locale)
	params.Set(paramCurrCode, currencyVND)
	params.Set(paramTxnRef, req.OrderID)
	params.Set(paramOrderInfo, orderInfo)
	params.Set(paramOrderType, orderTypeOther)
	params.Set(paramAmount, strconv.FormatInt(req.Amount*100, 10))
	params.Set(paramReturnURL, g.cfg.ReturnURL)
	params.Set(paramIPAddr, req.ClientIP)
	params.Set(paramCreateDate, g.now().In(gatewayZone).Format(payDateLayout))
	if req.BankCode != "" {
		params.Set(paramBankCode, req.BankCode)
	}

	signed := params.Encode()
	params.Set(paramSecureHash, g.sign(signed))

	return g.cfg.PayURL + "?" + params.Encode(), nil
}

// VerifyCallback authenticates a gateway callback. It strips the provided
// hash, rebuilds the canonical sorted/encoded string from the remaining
// parameters, recomputes the HMAC and compares in constant time. A mismatch
// is a SignatureError and the caller must not mutate any state.
func (g *VNPay) VerifyCallback(params url.Values) (*Callback, error) {
	provided := params.Get(paramSecureHash)
	if provided == "" {
		return nil, apperrors.Signature("missing secure hash")
	}

	rest := url.Values{}
	for key, values := range params {
		if key == paramSecureHash || key == paramSecureHashTyp {
			continue
		}
		for _, v := range values {
			rest.Add(key, v)
		}
	}

	expected := g.sign(rest.Encode())
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return nil, apperrors.Signature("secure hash mismatch")
	}

	cb := &Callback{
		TxnRef:        rest.Get(paramTxnRef),
		ResponseCode:  rest.Get(paramResponseCode),
		TransactionNo: rest.Get(paramTransactionNo),
		BankCode:      rest.Get(paramBankCode),
	}
	if cb.TxnRef == "" {
		return nil, apperrors.Validation("missing transaction reference")
	}

	rawAmount := rest.Get(paramAmount)
	if rawAmount != "" {
		minor, err := strconv.ParseInt(rawAmount, 10, 64)
		if err != nil {
			return nil, apperrors.Validation("malformed amount %q", rawAmount)
		}
		cb.Amount = minor / 100
	}

	if rawDate := rest.Get(paramPayDate); rawDate != "" {
		payDate, err := time.ParseInLocation(payDateLayout, rawDate, gatewayZone)
		if err != nil {
			return nil, apperrors.Validation("malformed pay date %q", rawDate)
		}
		cb.PayDate = payDate
	}

	return cb, nil
}

func (g *VNPay) sign(data string) string {
	mac := hmac.New(sha512.New, []byte(g.cfg.HashSecret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
