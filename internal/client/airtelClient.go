package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"checkout-engine/internal/config"
)

const ProviderAirtel = "AIRTEL"

type airtelClientImpl struct {
	httpClient *http.Client
	cfg        config.Airtel
}

type airtelSubscriber struct {
	Country  string `json:"country"`
	Currency string `json:"currency"`
	Msisdn   string `json:"msisdn"`
}

type airtelTransaction struct {
	Amount   string `json:"amount"`
	Country  string `json:"country"`
	Currency string `json:"currency"`
	ID       string `json:"id"`
}

type airtelPaymentRequest struct {
	Reference   string            `json:"reference"`
	Subscriber  airtelSubscriber  `json:"subscriber"`
	Transaction airtelTransaction `json:"transaction"`
}

type airtelPaymentResponse struct {
	Data struct {
		Transaction struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"transaction"`
	} `json:"data"`
	Status struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Success bool   `json:"success"`
	} `json:"status"`
}

func NewAirtelClient(cfg config.Airtel) MobileMoneyClient {
	return &airtelClientImpl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cfg: cfg,
	}
}

func (c *airtelClientImpl) Provider() string {
	return ProviderAirtel
}

func (c *airtelClientImpl) SupportsPush(channel string) bool {
	return channel == "USSD_PUSH"
}

func (c *airtelClientImpl) getAccessToken(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"grant_type":    "client_credentials",
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseApiURL+"/auth/oauth2/token", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("airtel oauth error %d: %s", resp.StatusCode, string(b))
	}

	var res struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("decode airtel token: %w", err)
	}

	return res.AccessToken, nil
}

// Push sends a USSD push. Airtel echoes transaction.id back as
// originalRequestId in the callback, so our request id is the reference.
func (c *airtelClientImpl) Push(ctx context.Context, pr PushRequest) (*PushAck, error) {
	accessToken, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("get airtel access token: %w", err)
	}

	payload := airtelPaymentRequest{
		Reference: pr.AccountReference,
		Subscriber: airtelSubscriber{
			Country:  c.cfg.Country,
			Currency: c.cfg.Currency,
			// airtel wants the number without the dial code
			Msisdn: trimDialCode(NormalizeMSISDN(pr.Phone, kenyaDialCode), kenyaDialCode),
		},
		Transaction: airtelTransaction{
			Amount:   pr.Amount.StringFixed(2),
			Country:  c.cfg.Country,
			Currency: c.cfg.Currency,
			ID:       pr.RequestID,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal req payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseApiURL+"/merchant/v1/payments/", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Country", c.cfg.Country)
	req.Header.Set("X-Currency", c.cfg.Currency)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("airtel payment request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("airtel payment error %d: %s", resp.StatusCode, string(respBody))
	}

	var result airtelPaymentResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode airtel response: %w", err)
	}
	if !result.Status.Success {
		return nil, fmt.Errorf("airtel payment rejected: code=%q message=%q", result.Status.Code, result.Status.Message)
	}

	return &PushAck{
		ProviderRef: pr.RequestID,
		RawRequest:  string(body),
		Amount:      pr.Amount.Round(2),
	}, nil
}

func trimDialCode(msisdn, dialCode string) string {
	if len(msisdn) > len(dialCode) && msisdn[:len(dialCode)] == dialCode {
		return msisdn[len(dialCode):]
	}
	return msisdn
}
