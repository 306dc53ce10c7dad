package channels

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMSAPISender_SendSMS(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantRef  string
		wantCost float64
		wantErr  string
	}{
		{
			name:     "accepted",
			status:   http.StatusOK,
			body:     `{"count":1,"list":[{"id":"5F1A0","points":0.16,"status":"QUEUE"}]}`,
			wantRef:  "5F1A0",
			wantCost: 0.16,
		},
		{
			name:    "provider error in body",
			status:  http.StatusOK,
			body:    `{"error":103,"message":"Insufficient credits"}`,
			wantErr: "SMSAPI Error 103: Insufficient credits",
		},
		{
			name:    "http error without code",
			status:  http.StatusBadGateway,
			body:    `{}`,
			wantErr: "smsapi returned HTTP 502",
		},
		{
			name:    "empty list",
			status:  http.StatusOK,
			body:    `{"count":0,"list":[]}`,
			wantErr: "no message id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/sms.do", r.URL.Path)
				assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
				require.NoError(t, r.ParseForm())
				assert.Equal(t, "48606646095", r.PostForm.Get("to"))
				assert.Equal(t, "json", r.PostForm.Get("format"))
				assert.Equal(t, "utf-8", r.PostForm.Get("encoding"))
				assert.Equal(t, "ADR", r.PostForm.Get("from"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			sender := NewSMSAPISender(SMSAPIConfig{BaseURL: server.URL, Token: "secret-token", Sender: "ADR"}, server.Client())
			res, err := sender.SendSMS(context.Background(), "48606646095", "hello")

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRef, res.ProviderRef)
			require.NotNil(t, res.Cost)
			assert.InDelta(t, tt.wantCost, *res.Cost, 0.0001)
		})
	}
}

type mockSNS struct {
	publishFunc func(ctx context.Context, params *sns.PublishInput) (*sns.PublishOutput, error)
}

func (m *mockSNS) Publish(ctx context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.publishFunc(ctx, params)
}

func TestSNSSender_SendSMS(t *testing.T) {
	var got *sns.PublishInput
	sender := NewSNSSender(&mockSNS{publishFunc: func(_ context.Context, params *sns.PublishInput) (*sns.PublishOutput, error) {
		got = params
		return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
	}}, "ADRPOM")

	res, err := sender.SendSMS(context.Background(), "48606646095", "hi")
	require.NoError(t, err)
	assert.Equal(t, "msg-1", res.ProviderRef)
	assert.Equal(t, "+48606646095", aws.ToString(got.PhoneNumber))
	assert.Equal(t, "ADRPOM", aws.ToString(got.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue))

	failing := NewSNSSender(&mockSNS{publishFunc: func(context.Context, *sns.PublishInput) (*sns.PublishOutput, error) {
		return nil, errors.New("throttled")
	}}, "")
	_, err = failing.SendSMS(context.Background(), "48606646095", "hi")
	assert.ErrorContains(t, err, "throttled")
}

type mockSES struct {
	sendFunc func(ctx context.Context, params *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

func (m *mockSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.sendFunc(ctx, params)
}

func TestSESSender_SendEmail(t *testing.T) {
	var got *ses.SendEmailInput
	sender := NewSESSender(&mockSES{sendFunc: func(_ context.Context, params *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
		got = params
		return &ses.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
	}}, "biuro@adr-pomorze.pl")

	res, err := sender.SendEmail(context.Background(), Email{To: "jan@example.com", Subject: "S", HTML: "<p>x</p>", Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ses-1", res.ProviderRef)
	assert.Equal(t, []string{"jan@example.com"}, got.Destination.ToAddresses)
	assert.Equal(t, "biuro@adr-pomorze.pl", aws.ToString(got.Source))
	assert.Equal(t, "<p>x</p>", aws.ToString(got.Message.Body.Html.Data))
}

func TestPlainText(t *testing.T) {
	html := "<p>Dzień dobry Jan,</p><p>kurs <strong>ADR</strong> &amp; więcej</p>"
	assert.Equal(t, "Dzień dobry Jan,\nkurs ADR & więcej", PlainText(html))
}

func TestSMTPSender_BuildMessage(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", FromAddr: "biuro@example.com", FromName: "ADR Pomorze", Timeout: time.Second})
	raw := string(sender.buildMessage(Email{To: "jan@example.com", Subject: "Przypomnienie", HTML: "<p>hi</p>", Text: "hi"}, "<id@smtp.example.com>"))

	assert.Contains(t, raw, "To: jan@example.com\r\n")
	assert.Contains(t, raw, "Message-ID: <id@smtp.example.com>\r\n")
	assert.Contains(t, raw, "Content-Type: multipart/alternative")
	assert.Contains(t, raw, "text/plain; charset=UTF-8\r\n\r\nhi\r\n")
	assert.Contains(t, raw, "text/html; charset=UTF-8\r\n\r\n<p>hi</p>\r\n")
	assert.True(t, strings.HasSuffix(raw, "--\r\n"))
}
