// Package moderation runs submissions through the external text censor and applies verdicts.
package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"egaku/internal/cache"
	"egaku/internal/models"
)

// DefaultBaseURL is the Baidu AI platform origin.
const DefaultBaseURL = "https://aip.baidubce.com"

// Compliant is the conclusion the censor returns for acceptable text.
const Compliant = "合规"

const (
	tokenPath   = "/oauth/2.0/token"
	censorPath  = "/rest/2.0/solution/v1/text_censor/v2/user_defined"
	summaryPath = "/rpc/2.0/nlp/v1/news_summary"

	// Error codes that mean the access token is no longer accepted.
	errTokenInvalid = 110
	errTokenExpired = 111
)

// ErrNotConfigured is returned when no API credentials are available.
var ErrNotConfigured = errors.New("moderation API credentials are not configured")

// Censor decides whether a piece of text may be published.
type Censor interface {
	CensorText(ctx context.Context, text string) (models.ModerationVerdict, error)
}

// Summarizer condenses an article.
type Summarizer interface {
	Summarize(ctx context.Context, title, content string, maxLen int) (string, error)
}

// ClientConfig holds the OAuth client credentials of the censor API.
type ClientConfig struct {
	APIKey     string
	SecretKey  string
	BaseURL    string
	HTTPClient *http.Client
}

// Client talks to the Baidu text censor and news summary APIs. The OAuth access
// token is shared through Redis when available and kept in memory otherwise.
type Client struct {
	cfg  ClientConfig
	http *http.Client

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// NewClient builds a Client. Missing credentials are reported on first use.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{cfg: cfg, http: hc}
}

type apiError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

func (e apiError) err() error {
	if e.Code == 0 {
		return nil
	}
	return fmt.Errorf("moderation api error %d: %s", e.Code, e.Message)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.cfg.APIKey == "" || c.cfg.SecretKey == "" {
		return "", ErrNotConfigured
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExp) {
		return c.token, nil
	}

	rdb := cache.GetClient()
	if rdb != nil {
		if tok, err := rdb.Get(ctx, cache.ModerationTokenKey).Result(); err == nil && tok != "" {
			ttl, _ := rdb.TTL(ctx, cache.ModerationTokenKey).Result()
			if ttl <= 0 {
				ttl = time.Minute
			}
			c.token, c.tokenExp = tok, time.Now().Add(ttl)
			return tok, nil
		}
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.cfg.APIKey},
		"client_secret": {c.cfg.SecretKey},
	}
	var resp tokenResponse
	if err := c.post(ctx, c.cfg.BaseURL+tokenPath, "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()), &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("moderation token request failed: %s %s", resp.Error, resp.Description)
	}
	if resp.Scope != "" && !strings.Contains(" "+resp.Scope+" ", " brain_all_scope ") {
		return "", errors.New("moderation credentials lack brain_all_scope")
	}

	ttl := time.Duration(resp.ExpiresIn)*time.Second - time.Minute
	if ttl <= 0 {
		ttl = time.Minute
	}
	if rdb != nil {
		_ = rdb.Set(ctx, cache.ModerationTokenKey, resp.AccessToken, ttl).Err()
	}
	c.token, c.tokenExp = resp.AccessToken, time.Now().Add(ttl)
	return c.token, nil
}

func (c *Client) dropToken(ctx context.Context) {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	cache.Invalidate(ctx, cache.ModerationTokenKey)
}

type censorResponse struct {
	apiError
	Conclusion     string `json:"conclusion"`
	ConclusionType int    `json:"conclusionType"`
	Data           []struct {
		Msg string `json:"msg"`
	} `json:"data"`
}

// CensorText submits text to the censor. Verdicts other than compliant carry the hit messages as reasons.
func (c *Client) CensorText(ctx context.Context, text string) (models.ModerationVerdict, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return models.ModerationVerdict{}, err
	}

	var resp censorResponse
	endpoint := c.cfg.BaseURL + censorPath + "?access_token=" + url.QueryEscape(token)
	body := url.Values{"text": {text}}.Encode()
	if err := c.post(ctx, endpoint, "application/x-www-form-urlencoded", strings.NewReader(body), &resp); err != nil {
		return models.ModerationVerdict{}, err
	}
	if err := c.checkAPIError(ctx, resp.apiError); err != nil {
		return models.ModerationVerdict{}, err
	}

	v := models.ModerationVerdict{Approved: resp.ConclusionType == 1 || resp.Conclusion == Compliant}
	if !v.Approved {
		for _, d := range resp.Data {
			if d.Msg != "" {
				v.Reasons = append(v.Reasons, d.Msg)
			}
		}
	}
	return v, nil
}

type summaryResponse struct {
	apiError
	Summary string `json:"summary"`
}

// Summarize returns a summary of at most maxLen characters.
func (c *Client) Summarize(ctx context.Context, title, content string, maxLen int) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(map[string]any{
		"title":           title,
		"content":         content,
		"max_summary_len": maxLen,
	})
	if err != nil {
		return "", err
	}

	var resp summaryResponse
	endpoint := c.cfg.BaseURL + summaryPath + "?charset=UTF-8&access_token=" + url.QueryEscape(token)
	if err := c.post(ctx, endpoint, "application/json", strings.NewReader(string(payload)), &resp); err != nil {
		return "", err
	}
	if err := c.checkAPIError(ctx, resp.apiError); err != nil {
		return "", err
	}
	return resp.Summary, nil
}

func (c *Client) checkAPIError(ctx context.Context, e apiError) error {
	if e.Code == errTokenInvalid || e.Code == errTokenExpired {
		c.dropToken(ctx)
	}
	return e.err()
}

func (c *Client) post(ctx context.Context, endpoint, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("moderation request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("moderation request: status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode moderation response: %w", err)
	}
	return nil
}
