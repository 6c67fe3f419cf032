// Package models holds the normalized post and media types shared by every
// platform adapter, plus the Mastodon API entities the adapters decode.
package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Post is a platform neutral view of a status, shaped after the ActivityPub
// Note object.
type Post struct {
	ID           string      `json:"id"`
	URL          string      `json:"url"`
	Content      string      `json:"content"`
	AttributedTo string      `json:"attributedTo"`
	Published    string      `json:"published"`
	Sensitive    bool        `json:"sensitive,omitempty"`
	Attachments  Attachments `json:"attachment"`
	Platform     string      `json:"platform,omitempty"`
}

// Attachment is one media item of a post.
type Attachment struct {
	ID        string `json:"id,omitempty"`
	Type      string `json:"type"`
	MediaType string `json:"mediaType,omitempty"`
	URL       string `json:"url"`
	// Name carries the alt text.
	Name       string `json:"name,omitempty"`
	PreviewURL string `json:"previewUrl,omitempty"`
	Blurhash   string `json:"blurhash,omitempty"`
	// Meta holds platform specific fields that have no normalized home.
	Meta map[string]interface{} `json:"meta,omitempty"`
}

// UnmarshalJSON accepts numeric ids and treats a non-string name as absent.
func (a *Attachment) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         json.RawMessage        `json:"id"`
		Type       string                 `json:"type"`
		MediaType  string                 `json:"mediaType"`
		URL        string                 `json:"url"`
		Name       json.RawMessage        `json:"name"`
		PreviewURL string                 `json:"previewUrl"`
		Blurhash   string                 `json:"blurhash"`
		Meta       map[string]interface{} `json:"meta"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*a = Attachment{
		ID:         flexibleString(raw.ID),
		Type:       raw.Type,
		MediaType:  raw.MediaType,
		URL:        raw.URL,
		Name:       optionalString(raw.Name),
		PreviewURL: raw.PreviewURL,
		Blurhash:   raw.Blurhash,
		Meta:       raw.Meta,
	}
	return nil
}

// IsImage reports whether the attachment is a still image.
func (a Attachment) IsImage() bool {
	switch strings.ToLower(a.Type) {
	case "image":
		return true
	case "document", "":
		return strings.HasPrefix(a.MediaType, "image/")
	}
	return false
}

// Attachments decodes leniently: null, a single object, or a list that may
// contain nulls or undecodable entries. Bad entries are dropped.
type Attachments []Attachment

func (as *Attachments) UnmarshalJSON(data []byte) error {
	*as = decodeLenient[Attachment](data)
	return nil
}

// ImageRef points at one image that still needs a caption.
type ImageRef struct {
	URL           string     `json:"url"`
	MediaType     string     `json:"mediaType"`
	AttachmentID  string     `json:"attachmentId"`
	Index         int        `json:"index"`
	PostID        string     `json:"postId"`
	PostTimestamp string     `json:"postTimestamp"`
	Attachment    Attachment `json:"attachment"`
}

// CaptionUpdate describes a caption write. StatusID is required by
// platforms that can only caption media through the owning status.
type CaptionUpdate struct {
	MediaID  string
	StatusID string
	Caption  string
}

// decodeLenient decodes a JSON value that should be a list of T but may be
// null, a single object, or a list with null or malformed entries.
func decodeLenient[T any](data []byte) []T {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '{' {
		var single T
		if err := json.Unmarshal(data, &single); err != nil {
			return nil
		}
		return []T{single}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}

	out := make([]T, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			continue
		}
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

func flexibleString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func optionalString(raw json.RawMessage) string {
	var s string
	if len(raw) > 0 && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return ""
}

// FlexibleID is an identifier that may arrive as a JSON string or number.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	*f = FlexibleID(flexibleString(data))
	return nil
}

func (f FlexibleID) String() string {
	return string(f)
}
