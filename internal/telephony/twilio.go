package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"
)

const defaultTwilioAPIBaseURL = "https://api.twilio.com"

// TwilioConfig configures the Twilio REST adapter.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	APIBaseURL string

	// CallsPerSecond caps call creation; Twilio queues anything above the account CPS anyway,
	// but throttling here keeps queue time out of the ring timeout.
	CallsPerSecond float64

	// HTTPClient defaults to a client without a timeout; cancellation comes from ctx.
	HTTPClient *http.Client
}

// TwilioProvider creates calls through the Twilio Voice REST API.
type TwilioProvider struct {
	cfg     TwilioConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewTwilioProvider(cfg TwilioConfig) *TwilioProvider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultTwilioAPIBaseURL
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	limit := rate.Inf
	if cfg.CallsPerSecond > 0 {
		limit = rate.Limit(cfg.CallsPerSecond)
	}
	return &TwilioProvider{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) Ready() error {
	if strings.TrimSpace(p.cfg.AccountSID) == "" || strings.TrimSpace(p.cfg.AuthToken) == "" {
		return ErrNotConfigured
	}
	return nil
}

// AuthToken is the secret used to sign webhooks.
func (p *TwilioProvider) AuthToken() string { return p.cfg.AuthToken }

func (p *TwilioProvider) CreateCall(ctx context.Context, req OutboundCallRequest) (OutboundCallResult, error) {
	if err := p.Ready(); err != nil {
		return OutboundCallResult{}, err
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return OutboundCallResult{}, fmt.Errorf("telephony: rate limit wait: %w", err)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", p.cfg.APIBaseURL, url.PathEscape(p.cfg.AccountSID))
	body := callForm(req).Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return OutboundCallResult{}, fmt.Errorf("telephony: build request: %w", err)
	}
	httpReq.SetBasicAuth(p.cfg.AccountSID, p.cfg.AuthToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return OutboundCallResult{}, fmt.Errorf("telephony: create call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return OutboundCallResult{}, fmt.Errorf("telephony: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{}
		_ = json.Unmarshal(raw, apiErr)
		apiErr.HTTPStatus = resp.StatusCode
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return OutboundCallResult{}, apiErr
	}

	var out struct {
		Sid    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return OutboundCallResult{}, fmt.Errorf("telephony: decode response: %w", err)
	}
	if out.Sid == "" {
		return OutboundCallResult{}, fmt.Errorf("telephony: response has no call sid")
	}
	return OutboundCallResult{CallSID: out.Sid, Status: out.Status}, nil
}

// reservedParams are owned by the engine; ProviderOptions.Extra cannot override them.
var reservedParams = map[string]struct{}{
	"To":                           {},
	"From":                         {},
	"Url":                          {},
	"Method":                       {},
	"Twiml":                        {},
	"ApplicationSid":               {},
	"StatusCallback":               {},
	"StatusCallbackMethod":         {},
	"StatusCallbackEvent":          {},
	"MachineDetection":             {},
	"MachineDetectionTimeout":      {},
	"AsyncAmd":                     {},
	"AsyncAmdStatusCallback":       {},
	"AsyncAmdStatusCallbackMethod": {},
}

func callForm(req OutboundCallRequest) url.Values {
	v := url.Values{}
	for k, val := range req.Options.Extra {
		if _, reserved := reservedParams[k]; reserved {
			continue
		}
		v.Set(k, val)
	}

	from := req.From
	if req.Options.CallerID != "" {
		from = req.Options.CallerID
	}
	v.Set("To", req.To)
	v.Set("From", from)
	v.Set("Url", req.InstructionURL)
	v.Set("Method", http.MethodPost)
	if req.StatusCallbackURL != "" {
		v.Set("StatusCallback", req.StatusCallbackURL)
		v.Set("StatusCallbackMethod", http.MethodPost)
		for _, e := range req.StatusEvents {
			v.Add("StatusCallbackEvent", e)
		}
	}

	if req.MachineDetection != "" {
		v.Set("MachineDetection", req.MachineDetection)
		v.Set("AsyncAmd", "false")
		if req.MachineDetectionTimeoutSeconds > 0 {
			v.Set("MachineDetectionTimeout", strconv.Itoa(req.MachineDetectionTimeoutSeconds))
		}
		if req.Options.SpeechThresholdMs > 0 {
			v.Set("MachineDetectionSpeechThreshold", strconv.Itoa(req.Options.SpeechThresholdMs))
		}
		if req.Options.SpeechEndThresholdMs > 0 {
			v.Set("MachineDetectionSpeechEndThreshold", strconv.Itoa(req.Options.SpeechEndThresholdMs))
		}
		if req.Options.SilenceTimeoutMs > 0 {
			v.Set("MachineDetectionSilenceTimeout", strconv.Itoa(req.Options.SilenceTimeoutMs))
		}
	}

	if req.Options.TimeoutSeconds > 0 {
		v.Set("Timeout", strconv.Itoa(req.Options.TimeoutSeconds))
	}
	if req.Options.Record {
		v.Set("Record", "true")
	}
	return v
}
