package platforms

import (
	"context"

	"fedicaption/pkg/models"
	"fedicaption/pkg/ratelimit"
	"fedicaption/pkg/transport"
)

// PixelfedName is the registry name of the Pixelfed adapter.
const PixelfedName = "pixelfed"

var pixelfedInstances = []string{
	"pixelfed.social",
	"pixelfed.de",
	"pixelfed.uno",
	"pixel.tchncs.de",
	"pxlmo.com",
	"metapixl.com",
	"pixey.org",
}

// Pixelfed talks to Pixelfed's Mastodon compatible API. Tokens are issued
// out of band, so authentication only validates the configuration.
type Pixelfed struct {
	*mastodonAPI
}

// NewPixelfed creates a Pixelfed adapter.
func NewPixelfed(cfg Config) Adapter {
	return &Pixelfed{mastodonAPI: newMastodonAPI(PixelfedName, cfg, ratelimit.ResetUnix)}
}

func DetectPixelfed(instanceURL string) bool {
	return matchHost(instanceURL, pixelfedInstances, []string{"pixelfed", "pixel"})
}

func (p *Pixelfed) Detect(instanceURL string) bool {
	return DetectPixelfed(instanceURL)
}

func (p *Pixelfed) Authenticate(ctx context.Context, r transport.Requester) (bool, error) {
	return p.authenticateStatic()
}

func (p *Pixelfed) UpdateMediaCaption(ctx context.Context, r transport.Requester, update models.CaptionUpdate) (bool, error) {
	return p.updateMediaDescription(ctx, r, update.MediaID, update.Caption)
}
