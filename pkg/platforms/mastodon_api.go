package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	errs "fedicaption/pkg/errors"
	"fedicaption/pkg/logger"
	"fedicaption/pkg/models"
	"fedicaption/pkg/ratelimit"
	"fedicaption/pkg/transport"
)

// mastodonAPI implements the parts of the Mastodon client API that Pixelfed,
// Mastodon and Pleroma share. Platform adapters embed it.
type mastodonAPI struct {
	name string
	cfg  Config
	log  logger.Logger
	// resetFormats are the X-RateLimit-Reset encodings the platform sends.
	resetFormats []ratelimit.ResetFormat

	mu      sync.Mutex
	state   AuthState
	account *models.Account
}

func newMastodonAPI(name string, cfg Config, resetFormats ...ratelimit.ResetFormat) *mastodonAPI {
	return &mastodonAPI{
		name:         name,
		cfg:          cfg,
		log:          logger.OrDefault(cfg.Logger).WithField("platform", name),
		resetFormats: resetFormats,
	}
}

func (m *mastodonAPI) Name() string {
	return m.name
}

func (m *mastodonAPI) base() string {
	return m.cfg.BaseURL()
}

// ValidateConfig checks the fields every platform requires.
func (m *mastodonAPI) ValidateConfig() error {
	if m.base() == "" {
		return &errs.ConfigurationError{Field: "instance_url", Message: "is required"}
	}
	u, err := url.Parse(m.base())
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &errs.ConfigurationError{Field: "instance_url", Message: fmt.Sprintf("%q is not an absolute URL", m.cfg.InstanceURL)}
	}
	if strings.TrimSpace(m.cfg.AccessToken) == "" {
		return &errs.ConfigurationError{Field: "access_token", Message: "is required"}
	}
	return nil
}

func (m *mastodonAPI) AuthState() AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *mastodonAPI) setState(s AuthState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

// Account returns the account verified by the last successful authentication, if any.
func (m *mastodonAPI) Account() *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.account
}

// authenticateStatic accepts a configured token without a network call.
func (m *mastodonAPI) authenticateStatic() (bool, error) {
	if err := m.ValidateConfig(); err != nil {
		m.setState(Unauthenticated)
		return false, err
	}
	m.setState(Authenticated)
	return true, nil
}

// verifyCredentials moves through authenticating to authenticated or back
// to unauthenticated. Every call re-verifies the token.
func (m *mastodonAPI) verifyCredentials(ctx context.Context, r transport.Requester) (bool, error) {
	if err := m.ValidateConfig(); err != nil {
		m.setState(Unauthenticated)
		return false, err
	}

	m.setState(Authenticating)

	var account models.Account
	if err := transport.GetJSON(ctx, r, m.base()+VerifyCredentialsEndpoint, &account); err != nil {
		m.setState(Unauthenticated)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		m.log.WithError(err).Warn("credential verification failed")
		return false, nil
	}

	m.mu.Lock()
	m.state = Authenticated
	m.account = &account
	m.mu.Unlock()

	m.log.InfoWithFields("authenticated", map[string]interface{}{
		"account_id": account.ID.String(),
		"acct":       account.Acct,
	})
	return true, nil
}

// resolveAccountID turns an id, username or acct into an account id: direct
// lookup, then the lookup endpoint, then search (exact match or first hit).
func (m *mastodonAPI) resolveAccountID(ctx context.Context, r transport.Requester, userID string) (string, error) {
	ident := strings.TrimPrefix(strings.TrimSpace(userID), "@")
	if ident == "" {
		return "", &errs.Error{Type: errs.ErrorTypeValidation, Message: "user id is empty"}
	}

	if !strings.Contains(ident, "@") {
		var account models.Account
		err := transport.GetJSON(ctx, r, AccountURL(m.base(), ident), &account)
		if err == nil && account.ID != "" {
			return account.ID.String(), nil
		}
		if err != nil && !isClientError(err) {
			return "", err
		}
	}

	var account models.Account
	err := transport.GetJSON(ctx, r, LookupURL(m.base(), ident), &account)
	if err == nil && account.ID != "" {
		return account.ID.String(), nil
	}
	if err != nil && !isClientError(err) {
		return "", err
	}

	var results struct {
		Accounts []models.Account `json:"accounts"`
	}
	if err := transport.GetJSON(ctx, r, SearchURL(m.base(), ident), &results); err != nil {
		return "", err
	}
	if len(results.Accounts) == 0 {
		return "", &errs.Error{Type: errs.ErrorTypeNotFound, Code: http.StatusNotFound, Message: fmt.Sprintf("account %q not found", userID)}
	}

	username := ident
	if i := strings.Index(ident, "@"); i > 0 {
		username = ident[:i]
	}
	for _, a := range results.Accounts {
		if strings.EqualFold(a.Acct, ident) || strings.EqualFold(a.Username, ident) {
			return a.ID.String(), nil
		}
	}
	for _, a := range results.Accounts {
		if strings.EqualFold(a.Username, username) {
			return a.ID.String(), nil
		}
	}
	return results.Accounts[0].ID.String(), nil
}

// isClientError reports a 4xx response, which sends resolution to the next strategy.
func isClientError(err error) bool {
	code := errs.StatusOf(err)
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusUnauthorized
}

// GetUserPosts pages through the account's statuses with max_id cursors
// until limit is reached or the server returns an empty or short page. If a
// later page fails, the posts gathered so far are returned with the error.
func (m *mastodonAPI) GetUserPosts(ctx context.Context, r transport.Requester, userID string, limit int) ([]models.Post, error) {
	if limit <= 0 {
		limit = DefaultPostLimit
	}

	accountID, err := m.resolveAccountID(ctx, r, userID)
	if err != nil {
		return []models.Post{}, err
	}

	posts := make([]models.Post, 0, limit)
	maxID := ""
	for len(posts) < limit {
		pageSize := limit - len(posts)
		if pageSize > MaxPageSize {
			pageSize = MaxPageSize
		}

		resp, err := r.Do(ctx, http.MethodGet, StatusesURL(m.base(), accountID, pageSize, maxID), nil)
		if err != nil {
			return posts, err
		}

		statuses, total, err := models.DecodeStatuses(resp.Body)
		if err != nil {
			m.log.WithError(err).Warn("statuses page is not a list")
			break
		}
		if total == 0 {
			break
		}
		if skipped := total - len(statuses); skipped > 0 {
			m.log.WarnWithFields("skipped malformed statuses", map[string]interface{}{
				"account_id": accountID,
				"skipped":    skipped,
			})
		}

		for _, s := range statuses {
			if len(posts) == limit {
				break
			}
			posts = append(posts, s.ToPost(m.name))
		}

		if len(statuses) == 0 {
			break
		}
		maxID = statuses[len(statuses)-1].ID.String()

		if total < pageSize {
			break
		}
	}

	m.log.DebugWithFields("fetched user posts", map[string]interface{}{
		"account_id": accountID,
		"count":      len(posts),
	})
	return posts, nil
}

func (m *mastodonAPI) ExtractImagesFromPost(post models.Post) []models.ImageRef {
	return ExtractImages(post)
}

// getStatus fetches a status; (nil, nil) when it does not exist.
func (m *mastodonAPI) getStatus(ctx context.Context, r transport.Requester, id string) (*models.Status, error) {
	var status models.Status
	if err := transport.GetJSON(ctx, r, StatusURL(m.base(), id), &status); err != nil {
		if errs.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &status, nil
}

func (m *mastodonAPI) GetPostByID(ctx context.Context, r transport.Requester, id string) (*models.Post, error) {
	status, err := m.getStatus(ctx, r, id)
	if err != nil || status == nil {
		return nil, err
	}
	post := status.ToPost(m.name)
	return &post, nil
}

// UpdatePost sends patch as a status edit. A missing status yields false.
func (m *mastodonAPI) UpdatePost(ctx context.Context, r transport.Requester, id string, patch map[string]interface{}) (bool, error) {
	if _, err := r.Do(ctx, http.MethodPut, StatusURL(m.base(), id), patch); err != nil {
		if errs.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// updateMediaDescription writes alt text through the media endpoint.
func (m *mastodonAPI) updateMediaDescription(ctx context.Context, r transport.Requester, mediaID, caption string) (bool, error) {
	if strings.TrimSpace(mediaID) == "" {
		return false, &errs.Error{Type: errs.ErrorTypeValidation, Message: "media id is empty"}
	}

	resp, err := r.Do(ctx, http.MethodPut, MediaURL(m.base(), mediaID), map[string]string{"description": caption})
	if err != nil {
		if errs.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	var media models.MediaAttachment
	if err := json.Unmarshal(resp.Body, &media); err == nil && media.Description != caption {
		m.log.WarnWithFields("server did not echo the new description", map[string]interface{}{
			"media_id": mediaID,
		})
	}

	m.log.InfoWithFields("updated media caption", map[string]interface{}{
		"media_id": mediaID,
		"length":   len(caption),
	})
	return true, nil
}

// GetRateLimitInfo reads the rate limit headers, interpreting the reset
// time in the formats this platform sends.
func (m *mastodonAPI) GetRateLimitInfo(h http.Header) ratelimit.HeaderInfo {
	return ratelimit.ParseHeadersWith(h, time.Now(), m.resetFormats...)
}
