package platforms

import (
	"context"
	"net/http"
	"strings"

	"fedicaption/pkg/config"
	"fedicaption/pkg/logger"
	"fedicaption/pkg/models"
	"fedicaption/pkg/ratelimit"
	"fedicaption/pkg/transport"
)

// AuthState is the authentication state of an adapter.
type AuthState int

const (
	Unauthenticated AuthState = iota
	Authenticating
	Authenticated
)

func (s AuthState) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Config is what an adapter needs to talk to one instance.
type Config struct {
	InstanceURL  string
	AccessToken  string
	ClientKey    string
	ClientSecret string
	PlatformType string
	Username     string
	Logger       logger.Logger
}

// ConfigFromPlatform converts the loaded platform configuration.
func ConfigFromPlatform(pc config.PlatformConfig, log logger.Logger) Config {
	return Config{
		InstanceURL:  pc.InstanceURL,
		AccessToken:  pc.AccessToken,
		ClientKey:    pc.ClientKey,
		ClientSecret: pc.ClientSecret,
		PlatformType: pc.Type,
		Username:     pc.Username,
		Logger:       log,
	}
}

// BaseURL returns the instance URL without a trailing slash.
func (c Config) BaseURL() string {
	return strings.TrimRight(strings.TrimSpace(c.InstanceURL), "/")
}

// Adapter translates one platform's REST dialect into the normalized
// post, image and caption model. Every network operation goes through the
// supplied Requester so the caller controls rate limiting and retries.
type Adapter interface {
	// Name returns the registry name, e.g. "mastodon".
	Name() string
	// Detect reports whether instanceURL looks like this platform.
	Detect(instanceURL string) bool
	// ValidateConfig fails with *errors.ConfigurationError when a required field is missing.
	ValidateConfig() error
	AuthState() AuthState

	// Authenticate reports whether the credentials are usable. A rejected
	// token is reported as false; an error means the adapter is misconfigured.
	Authenticate(ctx context.Context, r transport.Requester) (bool, error)

	// GetUserPosts resolves userID (id, username or acct) and returns up to
	// limit of the account's most recent posts.
	GetUserPosts(ctx context.Context, r transport.Requester, userID string, limit int) ([]models.Post, error)

	// ExtractImagesFromPost returns the images of post lacking meaningful alt text.
	// It never modifies post.
	ExtractImagesFromPost(post models.Post) []models.ImageRef

	// UpdateMediaCaption sets the alt text of one media item.
	UpdateMediaCaption(ctx context.Context, r transport.Requester, update models.CaptionUpdate) (bool, error)

	// GetPostByID returns nil without error when the post does not exist.
	GetPostByID(ctx context.Context, r transport.Requester, id string) (*models.Post, error)
	UpdatePost(ctx context.Context, r transport.Requester, id string, patch map[string]interface{}) (bool, error)

	// GetRateLimitInfo parses the platform's rate limit headers.
	GetRateLimitInfo(h http.Header) ratelimit.HeaderInfo
}

// AccountReporter is implemented by adapters that learn the connected
// account while authenticating.
type AccountReporter interface {
	Account() *models.Account
}

// StatusCaptioner is implemented by adapters that caption published media
// by editing the status that carries it.
type StatusCaptioner interface {
	UpdateStatusMediaCaption(ctx context.Context, r transport.Requester, statusRef, mediaID, caption string) (bool, error)
}

var (
	_ AccountReporter = (*Pixelfed)(nil)
	_ AccountReporter = (*Mastodon)(nil)
	_ AccountReporter = (*Pleroma)(nil)
	_ StatusCaptioner = (*Mastodon)(nil)
)
