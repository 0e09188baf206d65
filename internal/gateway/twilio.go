package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TwilioClient sends WhatsApp template messages through the Twilio Content
// API. A shared rate limiter bounds the outbound send rate across every
// campaign the process is working on.
type TwilioClient struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger
}

func NewTwilioClient(baseURL, accountSID, authToken, from string, timeout time.Duration, sendsPerSecond float64, log *zap.Logger) *TwilioClient {
	if sendsPerSecond <= 0 {
		sendsPerSecond = 10
	}
	return &TwilioClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(sendsPerSecond), 1),
		log:        log,
	}
}

type twilioMessageResponse struct {
	Sid    string `json:"sid"`
	Status string `json:"status"`
}

type twilioErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *TwilioClient) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	variables, err := json.Marshal(req.Variables)
	if err != nil {
		return nil, fmt.Errorf("marshal content variables: %w", err)
	}

	form := url.Values{}
	form.Set("To", "whatsapp:"+req.To)
	form.Set("From", "whatsapp:"+c.from)
	form.Set("ContentSid", req.ContentSid)
	form.Set("ContentVariables", string(variables))

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(c.accountSID, c.authToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("twilio unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		var twErr twilioErrorResponse
		if json.Unmarshal(body, &twErr) == nil && twErr.Message != "" {
			return nil, fmt.Errorf("twilio error %d: %s", twErr.Code, twErr.Message)
		}
		return nil, fmt.Errorf("twilio returned %d: %s", resp.StatusCode, string(body))
	}

	var msg twilioMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, err
	}

	c.log.Debug("message accepted by twilio",
		zap.String("sid", msg.Sid),
		zap.String("status", msg.Status),
	)
	return &SendResult{Sid: msg.Sid, Status: msg.Status}, nil
}
