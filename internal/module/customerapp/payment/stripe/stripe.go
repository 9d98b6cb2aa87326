package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tixgo/tix-booking/internal/module/customerapp/payment"
	"github.com/tixgo/tix-booking/pkg/errors"
	"github.com/tixgo/tix-booking/pkg/response"
	"github.com/tixgo/tix-booking/pkg/status"
)

const ProviderName = "stripe"

const apiBaseURL = "https://api.stripe.com"

// Provider implements payment.Provider for Stripe Checkout. Webhook bodies
// are authenticated through the Stripe-Signature header: HMAC-SHA256 over
// "<timestamp>.<raw body>" with a bounded clock skew.
type Provider struct {
	logger           *logrus.Logger
	secretKey        string
	webhookSecret    string
	signatureMaxSkew time.Duration
	successURL       string
	cancelURL        string
	hc               *http.Client
	now              func() time.Time
}

type ProviderProperty struct {
	Logger           *logrus.Logger
	SecretKey        string
	WebhookSecret    string
	SignatureMaxSkew time.Duration
	SuccessURL       string
	CancelURL        string
	HTTPClient       *http.Client
}

func NewProvider(props ProviderProperty) *Provider {
	return &Provider{
		logger:           props.Logger,
		secretKey:        props.SecretKey,
		webhookSecret:    props.WebhookSecret,
		signatureMaxSkew: props.SignatureMaxSkew,
		successURL:       props.SuccessURL,
		cancelURL:        props.CancelURL,
		hc:               props.HTTPClient,
		now:              time.Now,
	}
}

// Name implements payment.Provider.
func (p *Provider) Name() string {
	return ProviderName
}

type checkoutSessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateSession implements payment.Provider.
func (p *Provider) CreateSession(ctx context.Context, req payment.CheckoutRequest) (payment.CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", req.OrderID)
	form.Set("customer_email", req.CustomerEmail)
	form.Set("success_url", p.successURL)
	form.Set("cancel_url", p.cancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", "vnd")
	form.Set("line_items[0][price_data][product_data][name]", req.OrderInfo)
	form.Set("line_items[0][price_data][unit_amount]", req.Amount.StringFixed(0))
	form.Set("metadata[order_id]", req.OrderID)

	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/v1/checkout/sessions", apiBaseURL), strings.NewReader(form.Encode()))
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Error()
		return payment.CheckoutSession{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while creating checkout session through stripe")
	}

	hr.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	hr.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.secretKey))

	hresp, err := p.hc.Do(hr)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Error()
		return payment.CheckoutSession{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while creating checkout session through stripe")
	}

	defer hresp.Body.Close()

	respBody, err := io.ReadAll(hresp.Body)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Error()
		return payment.CheckoutSession{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while creating checkout session through stripe")
	}

	if hresp.StatusCode < 200 || hresp.StatusCode > 299 {
		p.logger.WithContext(ctx).WithError(fmt.Errorf("%s", string(respBody))).Error()
		return payment.CheckoutSession{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while creating checkout session through stripe")
	}

	var resp checkoutSessionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error()
		return payment.CheckoutSession{}, errors.New(http.StatusInternalServerError, status.INTERNAL_SERVER_ERROR, "an error occurred while creating checkout session through stripe")
	}

	return payment.CheckoutSession{
		ProviderTxnID: resp.ID,
		RedirectURL:   resp.URL,
	}, nil
}

func (p *Provider) verifySignature(header string, body []byte) error {
	var timestamp string
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil || len(signatures) == 0 {
		return errors.New(http.StatusUnauthorized, status.INVALID_SIGNATURE, "stripe signature header is malformed")
	}

	skew := p.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > p.signatureMaxSkew {
		return errors.New(http.StatusUnauthorized, status.INVALID_SIGNATURE, "stripe signature timestamp is outside the allowed skew")
	}

	mac := hmac.New(sha256.New, []byte(p.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}

	return errors.New(http.StatusUnauthorized, status.INVALID_SIGNATURE, "stripe signature verification failed")
}

type webhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID                string `json:"id"`
			ClientReferenceID string `json:"client_reference_id"`
			AmountTotal       int64  `json:"amount_total"`
			Metadata          struct {
				OrderID string `json:"order_id"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// ParseCallback implements payment.Provider. Event types other than the
// checkout session lifecycle are returned with an empty outcome so the
// handler acknowledges them without processing.
func (p *Provider) ParseCallback(r *http.Request) (payment.Notification, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return payment.Notification{}, errors.New(http.StatusBadRequest, status.BAD_REQUEST, "stripe webhook body could not be read")
	}

	if err := p.verifySignature(r.Header.Get("Stripe-Signature"), body); err != nil {
		p.logger.WithContext(r.Context()).WithError(err).Error("stripe webhook rejected")
		return payment.Notification{}, err
	}

	var e webhookEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return payment.Notification{}, errors.New(http.StatusBadRequest, status.BAD_REQUEST, "stripe webhook body is malformed")
	}

	var outcome string
	switch e.Type {
	case "checkout.session.completed":
		outcome = payment.OutcomeSuccess
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		outcome = payment.OutcomeFailure
	default:
		return payment.Notification{RawPayload: string(body)}, nil
	}

	orderID := e.Data.Object.ClientReferenceID
	if orderID == "" {
		orderID = e.Data.Object.Metadata.OrderID
	}

	return payment.Notification{
		OrderID:       orderID,
		ProviderTxnID: e.Data.Object.ID,
		Outcome:       outcome,
		Amount:        decimal.NewFromInt(e.Data.Object.AmountTotal),
		RawPayload:    string(body),
	}, nil
}

// Ack implements payment.Provider. Stripe retries any non-2xx response, so
// only signature failures and internal errors refuse the delivery.
func (p *Provider) Ack(w http.ResponseWriter, processErr error) {
	code := http.StatusOK

	if processErr != nil {
		ae := errors.Destruct(processErr)
		switch ae.Status {
		case status.INVALID_SIGNATURE:
			code = http.StatusBadRequest
		case status.INTERNAL_SERVER_ERROR:
			code = http.StatusInternalServerError
		}
	}

	response.JSON(w, code, map[string]bool{"received": true})
}
