package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ResultCode accepts both JSON numbers and strings; providers are not
// consistent about which one they send.
type ResultCode string

func (c *ResultCode) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = ResultCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("result code: %w", err)
	}
	*c = ResultCode(n.String())
	return nil
}

// --- family A: M-Pesa STK push ---

type MpesaMetadataItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value"`
}

type MpesaCallbackMetadata struct {
	Item []MpesaMetadataItem `json:"Item"`
}

type MpesaStkCallback struct {
	MerchantRequestID string                `json:"MerchantRequestID"`
	CheckoutRequestID string                `json:"CheckoutRequestID"`
	ResultCode        ResultCode            `json:"ResultCode"`
	ResultDesc        string                `json:"ResultDesc"`
	CallbackMetadata  MpesaCallbackMetadata `json:"CallbackMetadata"`
}

type MpesaCallbackBody struct {
	StkCallback MpesaStkCallback `json:"stkCallback"`
}

type MpesaCallback struct {
	Body MpesaCallbackBody `json:"Body"`
}

// MetadataValue returns the value of the named metadata item. When the
// provider repeats a name the last occurrence wins.
func (c *MpesaCallback) MetadataValue(name string) string {
	var found string
	for _, item := range c.Body.StkCallback.CallbackMetadata.Item {
		if item.Name != name || item.Value == nil {
			continue
		}
		switch v := item.Value.(type) {
		case string:
			found = v
		case float64:
			found = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			found = fmt.Sprint(v)
		}
	}
	return found
}

// --- family B: Airtel Money ---

type AirtelCallback struct {
	OriginalRequestID string     `json:"originalRequestId"`
	TransactionID     string     `json:"transactionId"`
	StatusCode        ResultCode `json:"statusCode"`
	Message           string     `json:"message"`
	Msisdn            string     `json:"msisdn,omitempty"`
}
