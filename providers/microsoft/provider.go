package microsoft

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-tasksync/core"
	"github.com/goliatone/go-tasksync/providers"
)

const (
	// ProviderID is the registry key for Microsoft To Do integrations.
	ProviderID = "microsoft"

	defaultGraphBaseURL    = "https://graph.microsoft.com/v1.0"
	defaultAuthURL         = "https://login.microsoftonline.com/common/oauth2/v2.0/authorize"
	defaultTokenURL        = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
	defaultListID          = "tasks"
	defaultPageSize        = 50
	defaultFetchTimeout    = 30 * time.Second
	maxTaskPageBodyBytes   = 4 << 20 // 4 MiB
	defaultRetryAfterDelay = 30 * time.Second
)

type Config struct {
	ProviderID     string
	ClientID       string
	ClientSecret   string
	Scopes         []string
	GraphBaseURL   string
	AuthURL        string
	TokenURL       string
	ListID         string
	PageSize       int
	RequestTimeout time.Duration
	HTTPClient     providers.HTTPDoer
}

// Provider is the Microsoft To Do integration: OAuth against the Microsoft
// identity platform plus task fetching from the Graph To Do API.
type Provider struct {
	*providers.OAuth2Client

	cfg        Config
	httpClient providers.HTTPDoer
}

func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.ProviderID) == "" {
		cfg.ProviderID = ProviderID
	}
	if strings.TrimSpace(cfg.GraphBaseURL) == "" {
		cfg.GraphBaseURL = defaultGraphBaseURL
	}
	if strings.TrimSpace(cfg.AuthURL) == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if strings.TrimSpace(cfg.ListID) == "" {
		cfg.ListID = defaultListID
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultFetchTimeout
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"tasks.read", "offline_access"}
	}
	cfg.GraphBaseURL = strings.TrimRight(strings.TrimSpace(cfg.GraphBaseURL), "/")

	oauthClient, err := providers.NewOAuth2Client(providers.OAuth2Config{
		ID:                  cfg.ProviderID,
		AuthURL:             cfg.AuthURL,
		TokenURL:            cfg.TokenURL,
		ClientID:            cfg.ClientID,
		ClientSecret:        cfg.ClientSecret,
		ClientSecretInBody:  true,
		DefaultScopes:       cfg.Scopes,
		TokenRequestTimeout: cfg.RequestTimeout,
		HTTPClient:          cfg.HTTPClient,
	})
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &Provider{
		OAuth2Client: oauthClient,
		cfg:          cfg,
		httpClient:   httpClient,
	}, nil
}

// FetchTasks returns one page of normalized tasks. The cursor is the Graph
// @odata.nextLink URL verbatim; an empty cursor starts at the first page.
func (p *Provider) FetchTasks(ctx context.Context, accessToken string, filter core.TaskFilter) (core.TaskPage, error) {
	if p == nil {
		return core.TaskPage{}, fmt.Errorf("microsoft: provider is nil")
	}
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return core.TaskPage{}, fmt.Errorf("microsoft: access token is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	requestURL := strings.TrimSpace(filter.Cursor)
	if requestURL == "" {
		requestURL = p.firstPageURL(filter.ListID)
	}

	requestCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodGet, requestURL, nil)
	if err != nil {
		return core.TaskPage{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Accept", "application/json")

	response, err := p.httpClient.Do(httpReq)
	if err != nil {
		return core.TaskPage{}, goerrors.Wrap(
			err,
			goerrors.CategoryExternal,
			"microsoft: task fetch failed",
		).WithTextCode(core.SyncErrorProviderUnavailable)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxTaskPageBodyBytes+1))
	if readErr != nil {
		return core.TaskPage{}, fmt.Errorf("microsoft: read task page: %w", readErr)
	}
	if int64(len(body)) > maxTaskPageBodyBytes {
		return core.TaskPage{}, fmt.Errorf("microsoft: task page exceeds %d bytes", maxTaskPageBodyBytes)
	}

	if response.StatusCode != http.StatusOK {
		return core.TaskPage{}, classifyGraphError(response, body)
	}

	var decoded graphTaskPage
	if err := json.Unmarshal(body, &decoded); err != nil {
		return core.TaskPage{}, fmt.Errorf("microsoft: decode task page: %w", err)
	}

	page := core.TaskPage{
		Tasks:      make([]core.RemoteTask, 0, len(decoded.Value)),
		NextCursor: strings.TrimSpace(decoded.NextLink),
	}
	for _, task := range decoded.Value {
		page.Tasks = append(page.Tasks, mapGraphTask(task))
	}
	return page, nil
}

func (p *Provider) firstPageURL(listID string) string {
	listID = strings.TrimSpace(listID)
	if listID == "" {
		listID = p.cfg.ListID
	}
	values := url.Values{}
	values.Set("$top", strconv.Itoa(p.cfg.PageSize))
	return fmt.Sprintf(
		"%s/me/todo/lists/%s/tasks?%s",
		p.cfg.GraphBaseURL,
		url.PathEscape(listID),
		values.Encode(),
	)
}

// classifyGraphError maps a non-200 Graph answer to the categories the sync
// engine branches on: 401 invites one token refresh, 429 and 5xx are
// retryable, everything else fails the run.
func classifyGraphError(response *http.Response, body []byte) *goerrors.Error {
	message := fmt.Sprintf("microsoft: graph error (%d): %s", response.StatusCode, graphErrorDetail(body))

	switch {
	case response.StatusCode == http.StatusUnauthorized:
		return goerrors.New(message, goerrors.CategoryAuth).
			WithTextCode(core.SyncErrorUnauthorized)
	case response.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(response.Header.Get("Retry-After"))
		return goerrors.New(message, goerrors.CategoryRateLimit).
			WithTextCode(core.SyncErrorRateLimited).
			WithMetadata(map[string]any{
				"retry_after_ms": retryAfter.Milliseconds(),
			})
	case response.StatusCode >= http.StatusInternalServerError:
		return goerrors.New(message, goerrors.CategoryExternal).
			WithTextCode(core.SyncErrorProviderUnavailable)
	default:
		return goerrors.New(message, goerrors.CategoryBadInput).
			WithTextCode(core.SyncErrorProviderRejected)
	}
}

func graphErrorDetail(body []byte) string {
	var decoded struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &decoded); err == nil {
		if message := strings.TrimSpace(decoded.Error.Message); message != "" {
			return message
		}
		if code := strings.TrimSpace(decoded.Error.Code); code != "" {
			return code
		}
	}
	return "unknown error"
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultRetryAfterDelay
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if delay := time.Until(at); delay > 0 {
			return delay
		}
	}
	return defaultRetryAfterDelay
}

var _ core.Integration = (*Provider)(nil)
