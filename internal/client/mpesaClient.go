package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"checkout-engine/internal/config"

	"github.com/shopspring/decimal"
)

const (
	ProviderMpesa  = "MPESA"
	mpesaTimestamp = "20060102150405"
	kenyaDialCode  = "254"
)

type mpesaClientImpl struct {
	httpClient *http.Client
	cfg        config.Mpesa
	now        func() time.Time
}

type mpesaStkRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type mpesaStkResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	ErrorMessage        string `json:"errorMessage"`
}

func NewMpesaClient(cfg config.Mpesa) MobileMoneyClient {
	return &mpesaClientImpl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cfg: cfg,
		now: time.Now,
	}
}

func (c *mpesaClientImpl) Provider() string {
	return ProviderMpesa
}

func (c *mpesaClientImpl) SupportsPush(channel string) bool {
	return channel == "STK"
}

func (c *mpesaClientImpl) getAccessToken(ctx context.Context) (string, error) {
	auth := base64.StdEncoding.EncodeToString(
		[]byte(c.cfg.ConsumerKey + ":" + c.cfg.ConsumerSecret),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseApiURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+auth)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("mpesa oauth error %d: %s", resp.StatusCode, string(b))
	}

	var res struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("decode mpesa token: %w", err)
	}

	return res.AccessToken, nil
}

func (c *mpesaClientImpl) Push(ctx context.Context, pr PushRequest) (*PushAck, error) {
	accessToken, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("get mpesa access token: %w", err)
	}

	timestamp := c.now().Format(mpesaTimestamp)
	phone := NormalizeMSISDN(pr.Phone, kenyaDialCode)
	payload := mpesaStkRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.Passkey + timestamp)),
		Timestamp:         timestamp,
		TransactionType:   c.cfg.TransactionType,
		Amount:           wholeShillings(pr.Amount),
		PartyA:           phone,
		PartyB:           c.cfg.ShortCode,
		PhoneNumber:      phone,
		CallBackURL:      c.cfg.CallbackURL,
		AccountReference: pr.AccountReference,
		TransactionDesc:  pr.Description,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal req payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseApiURL+"/mpesa/stkpush/v1/processrequest",
		bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mpesa stk request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mpesa stk error %d: %s", resp.StatusCode, string(respBody))
	}

	var result mpesaStkResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode mpesa response: %w", err)
	}
	if result.ResponseCode != "0" || result.CheckoutRequestID == "" {
		return nil, fmt.Errorf("mpesa stk rejected: code=%q desc=%q", result.ResponseCode, result.ResponseDescription+result.ErrorMessage)
	}

	return &PushAck{
		ProviderRef: result.CheckoutRequestID,
		RawRequest:  redactPassword(body),
		Amount:      decimal.NewFromInt(payload.Amount),
	}, nil
}

// wholeShillings rounds up: STK push only accepts whole units and must
// never ask for less than is owed.
func wholeShillings(amount decimal.Decimal) int64 {
	return amount.Ceil().IntPart()
}

func redactPassword(body []byte) string {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return string(body)
	}
	if _, ok := m["Password"]; ok {
		m["Password"] = "***"
	}
	b, _ := json.Marshal(m)
	return string(b)
}
