package momo

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tixgo/tix-booking/internal/module/customerapp/payment"
	"github.com/tixgo/tix-booking/pkg/errors"
	"github.com/tixgo/tix-booking/pkg/status"
)

const ProviderName = "momo"

const requestType = "captureWallet"

// Provider implements payment.Provider for the MoMo wallet. Both the create
// request and the IPN are sealed with an HMAC-SHA256 signature over a
// canonical "key=value&..." string in a fixed field order.
type Provider struct {
	logger      *logrus.Logger
	baseURL     string
	partnerCode string
	accessKey   string
	secretKey   string
	redirectURL string
	ipnURL      string
	hc          *http.Client
}

type ProviderProperty struct {
	Logger      *logrus.Logger
	BaseURL     string
	PartnerCode string
	AccessKey   string
	SecretKey   string
	RedirectURL string
	IPNURL      string
	HTTPClient  *http.Client
}

func NewProvider(props ProviderProperty) *Provider {
	return &Provider{
		logger:      props.Logger,
		baseURL:     props.BaseURL,
		partnerCode: props.PartnerCode,
		accessKey:   props.AccessKey,
		secretKey:   props.SecretKey,
		redirectURL: props.RedirectURL,
		ipnURL:      props.IPNURL,
		hc:          props.HTTPClient,
	}
}

// Name implements payment.Provider.
func (p *Provider) Name() string {
	return ProviderName
}

func (p *Provider) sign(raw string) string {
	mac := hmac.New(sha256.New, []byte(p.secretKey))
	mac.Write([]byte(raw))

	return hex.EncodeToString(mac.Sum(nil))
}

type createRequest struct {
	PartnerCode string `json:"partnerCode"`
	AccessKey   string `json:"accessKey"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IPNURL      string `json:"ipnUrl"`
	ExtraData   string `json:"extraData"`
	RequestType string `json:"requestType"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

type createResponse struct {
	PayURL     string `json:"payUrl"`
	ResultCode int    `json:"resultCode"`
	Message    string `json:"message"`
	RequestID  string `json:"requestId"`
}

// CreateSession implements payment.Provider.
func (p *Provider) CreateSession(ctx context.Context, req payment.CheckoutRequest) (payment.CheckoutSession, error) {
	amount := req.Amount.IntPart()
	requestID := uuid.NewString()

	raw := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=%s&ipnUrl=%s&orderId=%s&orderInfo=%s&partnerCode=%s&redirectUrl=%s&requestId=%s&requestType=%s",
		p.accessKey, amount, "", p.ipnURL, req.OrderID, req.OrderInfo, p.partnerCode, p.redirectURL, requestID, requestType,
	)

	body := createRequest{
		PartnerCode: p.partnerCode,
		AccessKey:   p.accessKey,
		RequestID:   requestID,
		Amount:      amount,
		OrderID:     req.OrderID,
		OrderInfo:   req.OrderInfo,
		RedirectURL: p.redirectURL,
		IPNURL:      p.ipnURL,
		ExtraData:   "",
		RequestType: requestType,
		Lang:        "vi",
		Signature:   p.sign(raw),
	}

	buff, _ := json.Marshal(body)

	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/v2/gateway/api/create", p.baseURL), bytes.NewBuffer(buff))
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Error()
		return payment.CheckoutSession{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while creating checkout session through momo")
	}

	hr.Header.Set("Content-Type", "application/json")

	hresp, err := p.hc.Do(hr)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Error()
		return payment.CheckoutSession{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while creating checkout session through momo")
	}

	defer hresp.Body.Close()

	respBody, err := io.ReadAll(hresp.Body)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Error()
		return payment.CheckoutSession{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while creating checkout session through momo")
	}

	var resp createResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error()
		return payment.CheckoutSession{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while creating checkout session through momo")
	}

	if resp.ResultCode != 0 {
		p.logger.WithContext(ctx).WithError(fmt.Errorf("%s", resp.Message)).Error()
		return payment.CheckoutSession{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while creating checkout session through momo")
	}

	return payment.CheckoutSession{
		RedirectURL: resp.PayURL,
	}, nil
}

type ipnPayload struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

// ParseCallback implements payment.Provider.
func (p *Provider) ParseCallback(r *http.Request) (payment.Notification, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return payment.Notification{}, errors.New(http.StatusBadRequest, status.BAD_REQUEST, "momo ipn body could not be read")
	}

	var n ipnPayload
	if err := json.Unmarshal(body, &n); err != nil {
		return payment.Notification{}, errors.New(http.StatusBadRequest, status.BAD_REQUEST, "momo ipn body is malformed")
	}

	raw := fmt.Sprintf(
		"accessKey=%s&amount=%d&extraData=%s&message=%s&orderId=%s&orderInfo=%s&orderType=%s&partnerCode=%s&payType=%s&requestId=%s&responseTime=%d&resultCode=%d&transId=%d",
		p.accessKey, n.Amount, n.ExtraData, n.Message, n.OrderID, n.OrderInfo, n.OrderType, n.PartnerCode, n.PayType, n.RequestID, n.ResponseTime, n.ResultCode, n.TransID,
	)

	if !hmac.Equal([]byte(n.Signature), []byte(p.sign(raw))) {
		p.logger.WithContext(r.Context()).Errorf("momo ipn for order '%s' carries an invalid signature", n.OrderID)
		return payment.Notification{}, errors.New(http.StatusUnauthorized, status.INVALID_SIGNATURE, "momo ipn signature verification failed")
	}

	outcome := payment.OutcomeFailure
	if n.ResultCode == 0 {
		outcome = payment.OutcomeSuccess
	}

	return payment.Notification{
		OrderID:       n.OrderID,
		ProviderTxnID: strconv.FormatInt(n.TransID, 10),
		Outcome:       outcome,
		Amount:        decimal.NewFromInt(n.Amount),
		RawPayload:    string(body),
	}, nil
}

// Ack implements payment.Provider. MoMo treats 204 as a successful receipt
// and retries anything else on its own schedule.
func (p *Provider) Ack(w http.ResponseWriter, processErr error) {
	if processErr == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	ae := errors.Destruct(processErr)
	w.WriteHeader(ae.HTTPStatusCode)
}
