package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

type SMSAPIConfig struct {
	BaseURL string
	Token   string
	Sender  string
}

// SMSAPISender sends SMS through the SMSAPI.pl REST gateway.
type SMSAPISender struct {
	client *resty.Client
	sender string
}

type smsapiResponse struct {
	Count   int    `json:"count"`
	Error   int    `json:"error"`
	Message string `json:"message"`
	List    []struct {
		ID     string  `json:"id"`
		Points float64 `json:"points"`
		Status string  `json:"status"`
	} `json:"list"`
}

func NewSMSAPISender(cfg SMSAPIConfig, httpClient *http.Client) *SMSAPISender {
	client := resty.NewWithClient(httpClient).
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.Token).
		SetHeader("Accept", "application/json")

	return &SMSAPISender{client: client, sender: cfg.Sender}
}

func (s *SMSAPISender) SendSMS(ctx context.Context, to, text string) (*Result, error) {
	form := map[string]string{
		"to":       to,
		"message":  text,
		"format":   "json",
		"encoding": "utf-8",
	}
	if s.sender != "" {
		form["from"] = s.sender
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetFormData(form).
		Post("/sms.do")
	if err != nil {
		return nil, fmt.Errorf("smsapi request failed: %w", err)
	}

	var body smsapiResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("smsapi returned HTTP %d with unreadable body: %w", resp.StatusCode(), err)
	}
	if body.Error != 0 {
		return nil, fmt.Errorf("SMSAPI Error %d: %s", body.Error, body.Message)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("smsapi returned HTTP %d", resp.StatusCode())
	}
	if len(body.List) == 0 {
		return nil, fmt.Errorf("smsapi accepted the request but returned no message id")
	}

	cost := body.List[0].Points
	return &Result{ProviderRef: body.List[0].ID, Cost: &cost}, nil
}
