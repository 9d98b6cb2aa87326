package vnpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tixgo/tix-booking/internal/module/customerapp/payment"
	"github.com/tixgo/tix-booking/pkg/errors"
	"github.com/tixgo/tix-booking/pkg/response"
	"github.com/tixgo/tix-booking/pkg/status"
)

const ProviderName = "vnpay"

// Provider implements payment.Provider for the VNPay gateway. Checkout is a
// signed redirect URL; IPN and return deliveries arrive as query strings
// sealed with an HMAC-SHA512 secure hash over the sorted, url-encoded
// parameters. Amounts on the wire are VND multiplied by 100.
type Provider struct {
	logger     *logrus.Logger
	baseURL    string
	tmnCode    string
	hashSecret string
	returnURL  string
}

type ProviderProperty struct {
	Logger     *logrus.Logger
	BaseURL    string
	TMNCode    string
	HashSecret string
	ReturnURL  string
}

func NewProvider(props ProviderProperty) *Provider {
	return &Provider{
		logger:     props.Logger,
		baseURL:    props.BaseURL,
		tmnCode:    props.TMNCode,
		hashSecret: props.HashSecret,
		returnURL:  props.ReturnURL,
	}
}

// Name implements payment.Provider.
func (p *Provider) Name() string {
	return ProviderName
}

func (p *Provider) sign(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, url.QueryEscape(params.Get(k))))
	}

	mac := hmac.New(sha512.New, []byte(p.hashSecret))
	mac.Write([]byte(strings.Join(pairs, "&")))

	return hex.EncodeToString(mac.Sum(nil))
}

// CreateSession implements payment.Provider.
func (p *Provider) CreateSession(ctx context.Context, req payment.CheckoutRequest) (payment.CheckoutSession, error) {
	now := time.Now()

	params := url.Values{}
	params.Set("vnp_Version", "2.1.0")
	params.Set("vnp_Command", "pay")
	params.Set("vnp_TmnCode", p.tmnCode)
	params.Set("vnp_Amount", req.Amount.Mul(decimal.NewFromInt(100)).StringFixed(0))
	params.Set("vnp_CurrCode", "VND")
	params.Set("vnp_TxnRef", req.OrderID)
	params.Set("vnp_OrderInfo", req.OrderInfo)
	params.Set("vnp_OrderType", "other")
	params.Set("vnp_Locale", "vn")
	params.Set("vnp_ReturnUrl", p.returnURL)
	params.Set("vnp_CreateDate", now.Format("20060102150405"))
	params.Set("vnp_ExpireDate", now.Add(15*time.Minute).Format("20060102150405"))

	params.Set("vnp_SecureHash", p.sign(params))

	return payment.CheckoutSession{
		RedirectURL: fmt.Sprintf("%s?%s", p.baseURL, params.Encode()),
	}, nil
}

// ParseCallback implements payment.Provider.
func (p *Provider) ParseCallback(r *http.Request) (payment.Notification, error) {
	params := r.URL.Query()

	secureHash := params.Get("vnp_SecureHash")
	params.Del("vnp_SecureHash")
	params.Del("vnp_SecureHashType")

	expected := p.sign(params)
	if !hmac.Equal([]byte(strings.ToLower(secureHash)), []byte(expected)) {
		p.logger.WithContext(r.Context()).Errorf("vnpay callback for txn ref '%s' carries an invalid secure hash", params.Get("vnp_TxnRef"))
		return payment.Notification{}, errors.New(http.StatusUnauthorized, status.INVALID_SIGNATURE, "vnpay secure hash verification failed")
	}

	rawAmount, err := decimal.NewFromString(params.Get("vnp_Amount"))
	if err != nil {
		return payment.Notification{}, errors.New(http.StatusBadRequest, status.BAD_REQUEST, "vnpay callback carries a malformed amount")
	}

	outcome := payment.OutcomeFailure
	if params.Get("vnp_ResponseCode") == "00" && params.Get("vnp_TransactionStatus") == "00" {
		outcome = payment.OutcomeSuccess
	}

	providerTxnID := params.Get("vnp_TransactionNo")
	if providerTxnID == "" {
		providerTxnID = params.Get("vnp_TxnRef")
	}

	return payment.Notification{
		OrderID:       params.Get("vnp_TxnRef"),
		ProviderTxnID: providerTxnID,
		Outcome:       outcome,
		Amount:        rawAmount.Div(decimal.NewFromInt(100)),
		RawPayload:    r.URL.RawQuery,
	}, nil
}

type ackBody struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// Ack implements payment.Provider. VNPay expects HTTP 200 with one of its
// documented response codes regardless of the processing result.
func (p *Provider) Ack(w http.ResponseWriter, processErr error) {
	body := ackBody{RspCode: "00", Message: "Confirm Success"}

	if processErr != nil {
		ae := errors.Destruct(processErr)
		switch ae.Status {
		case status.INVALID_SIGNATURE:
			body = ackBody{RspCode: "97", Message: "Invalid Signature"}
		case status.NOT_FOUND:
			body = ackBody{RspCode: "01", Message: "Order Not Found"}
		case status.AMOUNT_MISMATCH:
			body = ackBody{RspCode: "04", Message: "Invalid Amount"}
		default:
			body = ackBody{RspCode: "99", Message: "Unknown Error"}
		}
	}

	response.JSON(w, http.StatusOK, body)
}
