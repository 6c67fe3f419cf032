package platforms

import (
	"context"
	"net/url"
	"strings"

	errs "fedicaption/pkg/errors"
	"fedicaption/pkg/models"
	"fedicaption/pkg/ratelimit"
	"fedicaption/pkg/transport"
)

// MastodonName is the registry name of the Mastodon adapter.
const MastodonName = "mastodon"

var mastodonInstances = []string{
	"mastodon.social",
	"mastodon.online",
	"mastodon.world",
	"mstdn.social",
	"mas.to",
	"fosstodon.org",
	"hachyderm.io",
	"infosec.exchange",
	"techhub.social",
	"universeodon.com",
}

// Mastodon talks to Mastodon. Unlike the other platforms it verifies its
// token, and published media can only be captioned by editing the status.
type Mastodon struct {
	*mastodonAPI
}

// NewMastodon creates a Mastodon adapter.
func NewMastodon(cfg Config) Adapter {
	return &Mastodon{mastodonAPI: newMastodonAPI(MastodonName, cfg, ratelimit.ResetRFC3339)}
}

func DetectMastodon(instanceURL string) bool {
	return matchHost(instanceURL, mastodonInstances, []string{"mastodon", "mstdn", "toot"})
}

func (m *Mastodon) Detect(instanceURL string) bool {
	return DetectMastodon(instanceURL)
}

// Authenticate verifies the token against the instance on every call.
func (m *Mastodon) Authenticate(ctx context.Context, r transport.Requester) (bool, error) {
	return m.verifyCredentials(ctx, r)
}

// UpdateMediaCaption needs update.StatusID. Without it the call reports
// false with *errors.UnsupportedOperationError and sends nothing.
func (m *Mastodon) UpdateMediaCaption(ctx context.Context, r transport.Requester, update models.CaptionUpdate) (bool, error) {
	if strings.TrimSpace(update.StatusID) == "" {
		m.log.WarnWithFields("caption update without a status id is not supported", map[string]interface{}{
			"media_id": update.MediaID,
		})
		return false, &errs.UnsupportedOperationError{
			Platform:  MastodonName,
			Operation: "update_media_caption",
			Reason:    "published media can only be captioned through its status; a status id is required",
		}
	}
	return m.UpdateStatusMediaCaption(ctx, r, update.StatusID, update.MediaID, update.Caption)
}

// UpdateStatusMediaCaption republishes the status with its current text and
// media, overriding the description of mediaID. A missing status, or a
// status that does not carry mediaID, reports false.
func (m *Mastodon) UpdateStatusMediaCaption(ctx context.Context, r transport.Requester, statusRef, mediaID, caption string) (bool, error) {
	statusID := StatusIDFromRef(statusRef)

	status, err := m.getStatus(ctx, r, statusID)
	if err != nil {
		return false, err
	}
	if status == nil {
		m.log.WarnWithFields("status not found", map[string]interface{}{"status_id": statusID})
		return false, nil
	}

	edit, ok := BuildCaptionEdit(*status, mediaID, caption)
	if !ok {
		m.log.WarnWithFields("media does not belong to status", map[string]interface{}{
			"status_id": statusID,
			"media_id":  mediaID,
		})
		return false, nil
	}

	updated, err := m.mastodonAPI.UpdatePost(ctx, r, statusID, edit)
	if err != nil || !updated {
		return updated, err
	}

	m.log.InfoWithFields("updated media caption through status edit", map[string]interface{}{
		"status_id": statusID,
		"media_id":  mediaID,
		"length":    len(caption),
	})
	return true, nil
}

// BuildCaptionEdit builds the status edit that sets the description of
// mediaID while keeping the text (HTML stripped), media list, content
// warning and sensitivity. It reports false when the status has no such media.
func BuildCaptionEdit(status models.Status, mediaID, caption string) (map[string]interface{}, bool) {
	mediaIDs := status.MediaIDs()
	found := false
	for _, id := range mediaIDs {
		if id == mediaID {
			found = true
			break
		}
	}
	if !found {
		return nil, false
	}

	text := status.Text
	if text == "" {
		text = StripHTML(status.Content)
	}

	edit := map[string]interface{}{
		"status":    text,
		"media_ids": mediaIDs,
		"media_attributes": []map[string]string{
			{"id": mediaID, "description": caption},
		},
	}
	if status.SpoilerText != "" {
		edit["spoiler_text"] = status.SpoilerText
	}
	if status.Sensitive {
		edit["sensitive"] = true
	}
	return edit, true
}

func (m *Mastodon) GetPostByID(ctx context.Context, r transport.Requester, id string) (*models.Post, error) {
	return m.mastodonAPI.GetPostByID(ctx, r, StatusIDFromRef(id))
}

func (m *Mastodon) UpdatePost(ctx context.Context, r transport.Requester, id string, patch map[string]interface{}) (bool, error) {
	return m.mastodonAPI.UpdatePost(ctx, r, StatusIDFromRef(id), patch)
}

// StatusIDFromRef returns the status id named by ref, which is either a bare
// id or a status URL whose last path segment is the id.
func StatusIDFromRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if !strings.Contains(ref, "://") {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	return segments[len(segments)-1]
}
