package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachmentsLenientDecoding(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"missing", `{"id":"1"}`, 0},
		{"null", `{"id":"1","attachment":null}`, 0},
		{"single object", `{"id":"1","attachment":{"type":"Image","url":"https://x/a.jpg"}}`, 1},
		{"null entries", `{"id":"1","attachment":[null,{"type":"Image","url":"https://x/a.jpg"},null]}`, 1},
		{"garbage entries", `{"id":"1","attachment":["text",7,{"type":"Image","url":"https://x/a.jpg"}]}`, 1},
		{"wrong shape", `{"id":"1","attachment":"nope"}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var post Post
			require.NoError(t, json.Unmarshal([]byte(tt.input), &post))
			assert.Len(t, post.Attachments, tt.want)
		})
	}
}

func TestAttachmentNonStringNameIsAbsent(t *testing.T) {
	var a Attachment
	require.NoError(t, json.Unmarshal([]byte(`{"id":42,"type":"Image","name":{"en":"cat"}}`), &a))
	assert.Equal(t, "", a.Name)
	assert.Equal(t, "42", a.ID)
}

func TestStatusDecodingAndConversion(t *testing.T) {
	raw := `{
		"id": "109",
		"url": "https://mastodon.social/@alice/109",
		"content": "<p>Hello</p>",
		"created_at": "2024-03-01T10:00:00.000Z",
		"account": {"id": "1", "acct": "alice", "url": "https://mastodon.social/@alice"},
		"media_attachments": [
			{"id": "5", "type": "image", "url": "https://files.example/5.png", "description": null},
			null,
			{"id": 6, "type": "video", "url": "https://files.example/6.mp4", "description": 12}
		]
	}`

	var status Status
	require.NoError(t, json.Unmarshal([]byte(raw), &status))
	assert.Equal(t, []string{"5", "6"}, status.MediaIDs())

	post := status.ToPost("mastodon")
	assert.Equal(t, "109", post.ID)
	assert.Equal(t, "https://mastodon.social/@alice", post.AttributedTo)
	assert.Equal(t, "2024-03-01T10:00:00.000Z", post.Published)
	require.Len(t, post.Attachments, 2)
	assert.Equal(t, "Image", post.Attachments[0].Type)
	assert.Equal(t, "image/png", post.Attachments[0].MediaType)
	assert.Equal(t, "Video", post.Attachments[1].Type)
	assert.Empty(t, post.Attachments[1].Name)
}

func TestHasMeaningfulText(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"", false},
		{"   ", false},
		{"\n\t", false},
		{"📷", false},
		{"🐱 🐶", false},
		{"👍🏽", false},
		{"👨‍👩‍👧", false},
		{"❤️", false},
		{"0", true},
		{"a", true},
		{"🐱 cat", true},
		{"猫", true},
		{"⠓⠊", true},
		{"©", true},
		{"°", true},
		{"™", true},
		{"©️", false},
		{"1️⃣", false},
		{"#️⃣", false},
		{"1⃣", false},
		{"1️", true},
		{"🔟 1️⃣", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, HasMeaningfulText(tt.text))
		})
	}
}

func TestIsImage(t *testing.T) {
	assert.True(t, Attachment{Type: "Image"}.IsImage())
	assert.True(t, Attachment{Type: "Document", MediaType: "image/jpeg"}.IsImage())
	assert.False(t, Attachment{Type: "Document", MediaType: "video/mp4"}.IsImage())
	assert.False(t, Attachment{Type: "Video"}.IsImage())
}
