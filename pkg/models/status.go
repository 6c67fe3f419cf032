package models

import (
	"encoding/json"
	"strings"
)

// Account is the Mastodon API account entity, also served by Pixelfed and Pleroma.
type Account struct {
	ID          FlexibleID `json:"id"`
	Username    string     `json:"username"`
	Acct        string     `json:"acct"`
	DisplayName string     `json:"display_name"`
	URL         string     `json:"url"`
}

// MediaAttachment is the Mastodon API media entity.
type MediaAttachment struct {
	ID          FlexibleID             `json:"id"`
	Type        string                 `json:"type"`
	URL         string                 `json:"url"`
	PreviewURL  string                 `json:"preview_url"`
	RemoteURL   string                 `json:"remote_url"`
	Description string                 `json:"description"`
	Blurhash    string                 `json:"blurhash"`
	MimeType    string                 `json:"mime_type"`
	Meta        map[string]interface{} `json:"meta"`
}

// UnmarshalJSON treats a non-string description as absent.
func (m *MediaAttachment) UnmarshalJSON(data []byte) error {
	type plain MediaAttachment
	var raw struct {
		plain
		Description json.RawMessage `json:"description"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = MediaAttachment(raw.plain)
	m.Description = optionalString(raw.Description)
	return nil
}

// MediaAttachments decodes leniently like Attachments.
type MediaAttachments []MediaAttachment

func (ms *MediaAttachments) UnmarshalJSON(data []byte) error {
	*ms = decodeLenient[MediaAttachment](data)
	return nil
}

// Status is the Mastodon API status entity.
type Status struct {
	ID               FlexibleID       `json:"id"`
	URI              string           `json:"uri"`
	URL              string           `json:"url"`
	Content          string           `json:"content"`
	Text             string           `json:"text,omitempty"`
	SpoilerText      string           `json:"spoiler_text"`
	Visibility       string           `json:"visibility"`
	Sensitive        bool             `json:"sensitive"`
	CreatedAt        string           `json:"created_at"`
	Account          Account          `json:"account"`
	MediaAttachments MediaAttachments `json:"media_attachments"`
}

// MediaIDs returns the ids of every attachment, in order.
func (s Status) MediaIDs() []string {
	ids := make([]string, 0, len(s.MediaAttachments))
	for _, m := range s.MediaAttachments {
		if m.ID != "" {
			ids = append(ids, m.ID.String())
		}
	}
	return ids
}

// ToPost converts the status into the normalized Post.
func (s Status) ToPost(platform string) Post {
	post := Post{
		ID:           s.ID.String(),
		URL:          firstNonEmpty(s.URL, s.URI),
		Content:      s.Content,
		AttributedTo: firstNonEmpty(s.Account.URL, s.Account.Acct),
		Published:    s.CreatedAt,
		Sensitive:    s.Sensitive,
		Platform:     platform,
	}

	for _, m := range s.MediaAttachments {
		post.Attachments = append(post.Attachments, m.ToAttachment())
	}
	return post
}

// ToAttachment converts the media entity into the normalized Attachment.
func (m MediaAttachment) ToAttachment() Attachment {
	a := Attachment{
		ID:         m.ID.String(),
		Type:       activityType(m.Type),
		MediaType:  m.MimeType,
		URL:        firstNonEmpty(m.URL, m.RemoteURL),
		Name:       m.Description,
		PreviewURL: m.PreviewURL,
		Blurhash:   m.Blurhash,
	}
	if a.MediaType == "" && a.Type == "Image" {
		a.MediaType = mediaTypeFromURL(a.URL)
	}
	if len(m.Meta) > 0 {
		a.Meta = map[string]interface{}{"meta": m.Meta}
	}
	return a
}

// activityType maps a Mastodon media type onto an ActivityStreams object type.
func activityType(t string) string {
	switch strings.ToLower(t) {
	case "image":
		return "Image"
	case "video", "gifv":
		return "Video"
	case "audio":
		return "Audio"
	default:
		return "Document"
	}
}

func mediaTypeFromURL(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	switch {
	case strings.HasSuffix(strings.ToLower(u), ".png"):
		return "image/png"
	case strings.HasSuffix(strings.ToLower(u), ".gif"):
		return "image/gif"
	case strings.HasSuffix(strings.ToLower(u), ".webp"):
		return "image/webp"
	case strings.HasSuffix(strings.ToLower(u), ".avif"):
		return "image/avif"
	default:
		return "image/jpeg"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// DecodeStatuses decodes one page of statuses. Malformed or null entries are
// skipped; total counts every entry the server sent so callers can detect
// short pages. A body that is not a JSON list is an error.
func DecodeStatuses(data []byte) (statuses []Status, total int, err error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, 0, err
	}

	statuses = make([]Status, 0, len(items))
	for _, item := range items {
		var s Status
		if len(item) == 0 || item[0] != '{' {
			continue
		}
		if err := json.Unmarshal(item, &s); err != nil || s.ID == "" {
			continue
		}
		statuses = append(statuses, s)
	}
	return statuses, len(items), nil
}
