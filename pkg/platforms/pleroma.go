package platforms

import (
	"context"

	"fedicaption/pkg/models"
	"fedicaption/pkg/ratelimit"
	"fedicaption/pkg/transport"
)

// PleromaName is the registry name of the Pleroma adapter. Akkoma servers use it too.
const PleromaName = "pleroma"

var pleromaInstances = []string{
	"pleroma.site",
	"stereophonic.space",
	"blob.cat",
	"akko.wtf",
	"fedi.absturztau.be",
}

// Pleroma talks to Pleroma and Akkoma through their Mastodon compatible API.
type Pleroma struct {
	*mastodonAPI
}

// NewPleroma creates a Pleroma adapter.
func NewPleroma(cfg Config) Adapter {
	return &Pleroma{mastodonAPI: newMastodonAPI(PleromaName, cfg, ratelimit.ResetRFC3339, ratelimit.ResetUnix)}
}

func DetectPleroma(instanceURL string) bool {
	return matchHost(instanceURL, pleromaInstances, []string{"pleroma", "akkoma"})
}

func (p *Pleroma) Detect(instanceURL string) bool {
	return DetectPleroma(instanceURL)
}

func (p *Pleroma) Authenticate(ctx context.Context, r transport.Requester) (bool, error) {
	return p.authenticateStatic()
}

func (p *Pleroma) UpdateMediaCaption(ctx context.Context, r transport.Requester, update models.CaptionUpdate) (bool, error) {
	return p.updateMediaDescription(ctx, r, update.MediaID, update.Caption)
}
