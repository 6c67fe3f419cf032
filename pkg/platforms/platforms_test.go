package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"fedicaption/internal/fedimock"
	errs "fedicaption/pkg/errors"
	"fedicaption/pkg/logger"
	"fedicaption/pkg/models"
	"fedicaption/pkg/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token"

func setup(t *testing.T, software string) (*fedimock.Server, *transport.Session) {
	t.Helper()
	srv := fedimock.New(testToken, software)
	t.Cleanup(srv.Close)

	session := transport.NewSession(transport.Options{AccessToken: testToken, Logger: logger.NewNopLogger()})
	t.Cleanup(func() { _ = session.Close() })

	srv.AddAccount(fedimock.Account{ID: "100", Username: "alice"})
	return srv, session
}

func newAdapter(t *testing.T, name, instanceURL string) Adapter {
	t.Helper()
	reg := DefaultRegistry(logger.NewNopLogger())
	a, err := reg.Create(Config{
		InstanceURL:  instanceURL,
		AccessToken:  testToken,
		PlatformType: name,
		Logger:       logger.NewNopLogger(),
	})
	require.NoError(t, err)
	return a
}

func TestGetUserPostsPaginates(t *testing.T) {
	srv, session := setup(t, "pixelfed")
	srv.AddStatuses("100", 1000, 50)

	adapter := newAdapter(t, PixelfedName, srv.URL())
	srv.ResetCounters()

	posts, err := adapter.GetUserPosts(context.Background(), session, "100", 50)
	require.NoError(t, err)

	assert.Len(t, posts, 50)
	assert.Equal(t, 3, srv.RequestCount(), "one identity call plus two pages")
	assert.Equal(t, "1000", posts[0].ID)
	assert.Equal(t, "951", posts[49].ID)
	assert.Equal(t, PixelfedName, posts[0].Platform)

	last, ok := srv.LastRequest(http.MethodGet, "/api/v1/accounts/100/statuses")
	require.True(t, ok)
	assert.Contains(t, last.Query, "limit=10")
	assert.Contains(t, last.Query, "max_id=961")
}

func TestGetUserPostsStopsOnShortPage(t *testing.T) {
	srv, session := setup(t, "pixelfed")
	srv.AddStatuses("100", 500, 7)

	adapter := newAdapter(t, PixelfedName, srv.URL())
	srv.ResetCounters()

	posts, err := adapter.GetUserPosts(context.Background(), session, "100", 30)
	require.NoError(t, err)
	assert.Len(t, posts, 7)
	assert.Equal(t, 2, srv.RequestCount())
}

func TestGetUserPostsResolvesUsername(t *testing.T) {
	srv, session := setup(t, "mastodon")
	srv.AddStatuses("100", 10, 3)

	adapter := newAdapter(t, MastodonName, srv.URL())

	posts, err := adapter.GetUserPosts(context.Background(), session, "@alice", 5)
	require.NoError(t, err)
	assert.Len(t, posts, 3)

	_, ok := srv.LastRequest(http.MethodGet, "/api/v1/accounts/lookup")
	assert.True(t, ok)
}

func TestGetUserPostsSearchFallback(t *testing.T) {
	srv, session := setup(t, "pleroma")
	srv.AddAccount(fedimock.Account{ID: "200", Username: "bob", Acct: "bob@remote.example"})
	srv.AddStatuses("200", 20, 2)
	srv.SetErrorResponse("/api/v1/accounts/lookup", http.StatusNotFound)

	adapter := newAdapter(t, PleromaName, srv.URL())

	posts, err := adapter.GetUserPosts(context.Background(), session, "bob@remote.example", 5)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "20", posts[0].ID)

	_, searched := srv.LastRequest(http.MethodGet, "/api/v2/search")
	assert.True(t, searched)
	_, direct := srv.LastRequest(http.MethodGet, "/api/v1/accounts/bob@remote.example")
	assert.False(t, direct, "acct identifiers skip the direct id lookup")
}

func TestGetUserPostsUnknownAccount(t *testing.T) {
	srv, session := setup(t, "mastodon")
	adapter := newAdapter(t, MastodonName, srv.URL())

	posts, err := adapter.GetUserPosts(context.Background(), session, "nobody", 5)
	assert.Empty(t, posts)
	assert.True(t, errs.IsNotFound(err))
}

func TestGetUserPostsSkipsMalformedItems(t *testing.T) {
	srv, session := setup(t, "pixelfed")
	srv.SetRawStatuses("100", []byte(`[
		{"id": "3", "content": "ok", "media_attachments": null},
		null,
		"garbage",
		{"id": 2, "content": "numeric id", "media_attachments": {"id": "m2", "type": "image", "url": "https://x/2.jpg", "description": 5}}
	]`))

	adapter := newAdapter(t, PixelfedName, srv.URL())

	posts, err := adapter.GetUserPosts(context.Background(), session, "100", 10)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "2", posts[1].ID)
	require.Len(t, posts[1].Attachments, 1)
	assert.Empty(t, posts[1].Attachments[0].Name)
}

func TestGetUserPostsPartialOnLaterFailure(t *testing.T) {
	srv, session := setup(t, "pixelfed")
	srv.AddStatuses("100", 1000, 80)
	adapter := newAdapter(t, PixelfedName, srv.URL())

	// identity and first page succeed, the second page fails
	fails := &failAfter{next: session, ok: 2}
	posts, err := adapter.GetUserPosts(context.Background(), fails, "100", 80)
	require.Error(t, err)
	assert.Len(t, posts, 40)
}

type failAfter struct {
	next transport.Requester
	ok   int
}

func (f *failAfter) Do(ctx context.Context, method, rawURL string, body interface{}) (*transport.Response, error) {
	if f.ok == 0 {
		return nil, &errs.Error{Type: errs.ErrorTypeServerError, Code: http.StatusBadGateway, Message: "bad gateway"}
	}
	f.ok--
	return f.next.Do(ctx, method, rawURL, body)
}

func TestMediaCaptionDirect(t *testing.T) {
	for _, name := range []string{PixelfedName, PleromaName} {
		t.Run(name, func(t *testing.T) {
			srv, session := setup(t, name)
			srv.AddStatuses("100", 5, 1)
			adapter := newAdapter(t, name, srv.URL())

			ok, err := adapter.UpdateMediaCaption(context.Background(), session, models.CaptionUpdate{MediaID: "m5", Caption: "A red door"})
			require.NoError(t, err)
			assert.True(t, ok)

			s, _ := srv.Status("5")
			require.NotNil(t, s.MediaAttachments[0].Description)
			assert.Equal(t, "A red door", *s.MediaAttachments[0].Description)

			ok, err = adapter.UpdateMediaCaption(context.Background(), session, models.CaptionUpdate{MediaID: "missing", Caption: "x"})
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestMastodonCaptionThroughStatus(t *testing.T) {
	srv, session := setup(t, "mastodon")
	srv.AddStatus("100", fedimock.Status{
		ID:      "42",
		Content: "<p>Hi</p>",
		MediaAttachments: []fedimock.Media{
			{ID: "a", Type: "image", URL: "https://x/a.jpg"},
			{ID: "b", Type: "image", URL: "https://x/b.jpg"},
		},
	})
	adapter := newAdapter(t, MastodonName, srv.URL())

	ok, err := adapter.UpdateMediaCaption(context.Background(), session, models.CaptionUpdate{
		MediaID:  "b",
		StatusID: srv.URL() + "/@alice/42",
		Caption:  "A cat",
	})
	require.NoError(t, err)
	assert.True(t, ok)

	req, found := srv.LastRequest(http.MethodPut, "/api/v1/statuses/42")
	require.True(t, found)

	var payload struct {
		Status          string              `json:"status"`
		MediaIDs        []string            `json:"media_ids"`
		MediaAttributes []map[string]string `json:"media_attributes"`
	}
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	assert.Equal(t, "Hi", payload.Status)
	assert.Equal(t, []string{"a", "b"}, payload.MediaIDs)
	assert.Equal(t, []map[string]string{{"id": "b", "description": "A cat"}}, payload.MediaAttributes)

	s, _ := srv.Status("42")
	assert.Nil(t, s.MediaAttachments[0].Description)
	assert.Equal(t, "A cat", *s.MediaAttachments[1].Description)
}

func TestMastodonCaptionWithoutStatusUnsupported(t *testing.T) {
	srv, session := setup(t, "mastodon")
	adapter := newAdapter(t, MastodonName, srv.URL())
	srv.ResetCounters()

	ok, err := adapter.UpdateMediaCaption(context.Background(), session, models.CaptionUpdate{MediaID: "a", Caption: "x"})
	assert.False(t, ok)

	var unsupported *errs.UnsupportedOperationError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, MastodonName, unsupported.Platform)
	assert.Zero(t, srv.RequestCount())
}

func TestBuildCaptionEdit(t *testing.T) {
	status := models.Status{
		ID:          "1",
		Content:     "<p>Line one<br>Line &amp; two</p><p>Second</p>",
		SpoilerText: "cw",
		Sensitive:   true,
		MediaAttachments: models.MediaAttachments{
			{ID: "x"},
		},
	}

	edit, ok := BuildCaptionEdit(status, "x", "alt")
	require.True(t, ok)
	assert.Equal(t, "Line one\nLine & two\n\nSecond", edit["status"])
	assert.Equal(t, "cw", edit["spoiler_text"])
	assert.Equal(t, true, edit["sensitive"])

	_, ok = BuildCaptionEdit(status, "y", "alt")
	assert.False(t, ok)
}

func TestMastodonAuthenticate(t *testing.T) {
	srv, session := setup(t, "mastodon")
	adapter := newAdapter(t, MastodonName, srv.URL())
	assert.Equal(t, Unauthenticated, adapter.AuthState())

	ok, err := adapter.Authenticate(context.Background(), session)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Authenticated, adapter.AuthState())

	bad := transport.NewSession(transport.Options{AccessToken: "wrong", Logger: logger.NewNopLogger()})
	ok, err = adapter.Authenticate(context.Background(), bad)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, Unauthenticated, adapter.AuthState())
}

func TestCapabilityInterfaces(t *testing.T) {
	srv, session := setup(t, "mastodon")

	mastodon := newAdapter(t, MastodonName, srv.URL())
	_, ok := mastodon.(StatusCaptioner)
	assert.True(t, ok)

	reporter, ok := mastodon.(AccountReporter)
	require.True(t, ok)
	assert.Nil(t, reporter.Account())
	_, err := mastodon.Authenticate(context.Background(), session)
	require.NoError(t, err)
	assert.NotNil(t, reporter.Account())

	for _, name := range []string{PixelfedName, PleromaName} {
		adapter := newAdapter(t, name, srv.URL())
		_, ok := adapter.(StatusCaptioner)
		assert.False(t, ok, name)
		_, ok = adapter.(AccountReporter)
		assert.True(t, ok, name)
	}
}

func TestStaticTokenAuthenticate(t *testing.T) {
	srv, session := setup(t, "pixelfed")
	adapter := newAdapter(t, PixelfedName, srv.URL())
	srv.ResetCounters()

	ok, err := adapter.Authenticate(context.Background(), session)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Authenticated, adapter.AuthState())
	assert.Zero(t, srv.RequestCount())
}

func TestGetPostByID(t *testing.T) {
	srv, session := setup(t, "mastodon")
	srv.AddStatuses("100", 7, 1)
	adapter := newAdapter(t, MastodonName, srv.URL())

	post, err := adapter.GetPostByID(context.Background(), session, "https://mastodon.example/@alice/7")
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.Equal(t, "7", post.ID)

	post, err = adapter.GetPostByID(context.Background(), session, "999")
	require.NoError(t, err)
	assert.Nil(t, post)
}

func TestUpdatePost(t *testing.T) {
	srv, session := setup(t, "pixelfed")
	srv.AddStatuses("100", 7, 1)
	adapter := newAdapter(t, PixelfedName, srv.URL())

	ok, err := adapter.UpdatePost(context.Background(), session, "7", map[string]interface{}{"status": "edited"})
	require.NoError(t, err)
	assert.True(t, ok)
	s, _ := srv.Status("7")
	assert.Equal(t, "<p>edited</p>", s.Content)

	ok, err = adapter.UpdatePost(context.Background(), session, "999", map[string]interface{}{"status": "x"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExtractImagesIsPure(t *testing.T) {
	post := models.Post{
		ID:        "1",
		Published: "2024-05-01T10:00:00Z",
		Attachments: models.Attachments{
			{ID: "a", Type: "Image", URL: "https://x/a.jpg", Name: "   ", Meta: map[string]interface{}{"w": 10}},
			{ID: "b", Type: "Image", URL: "https://x/b.jpg", Name: "A dog"},
			{ID: "c", Type: "Video", URL: "https://x/c.mp4"},
			{ID: "d", Type: "Document", MediaType: "image/png", URL: "https://x/d.png", Name: "🐶🐱"},
			{ID: "e", Type: "Image", URL: "https://x/e.jpg", Name: "0"},
		},
	}

	first := ExtractImages(post)
	second := ExtractImages(post)
	assert.Equal(t, first, second)

	require.Len(t, first, 2)
	assert.Equal(t, "a", first[0].AttachmentID)
	assert.Equal(t, 0, first[0].Index)
	assert.Equal(t, "d", first[1].AttachmentID)
	assert.Equal(t, 3, first[1].Index)
	assert.Equal(t, "2024-05-01T10:00:00Z", first[0].PostTimestamp)

	first[0].Attachment.Meta["w"] = 99
	assert.Equal(t, 10, post.Attachments[0].Meta["w"])
}

func TestExtractImagesMalformedPost(t *testing.T) {
	var post models.Post
	require.NoError(t, json.Unmarshal([]byte(`{"id": "1", "attachment": [null, {"type": "Image", "url": "u", "name": 7}]}`), &post))
	refs := ExtractImages(post)
	require.Len(t, refs, 1)
	assert.Equal(t, "u", refs[0].URL)

	require.NoError(t, json.Unmarshal([]byte(`{"id": "2", "attachment": null}`), &post))
	assert.Empty(t, ExtractImages(post))
}

func TestGetRateLimitInfo(t *testing.T) {
	adapter := NewMastodon(Config{InstanceURL: "https://mastodon.social", AccessToken: "t"})
	h := http.Header{}
	h.Set("X-RateLimit-Limit", "300")
	h.Set("X-RateLimit-Remaining", "12")

	info := adapter.GetRateLimitInfo(h)
	assert.True(t, info.Present)
	assert.Equal(t, 300, info.Limit)
	assert.Equal(t, 12, info.Remaining)
}

func TestGetRateLimitInfoResetFormats(t *testing.T) {
	cfg := Config{InstanceURL: "https://example.social", AccessToken: "t"}
	mastodon := NewMastodon(cfg)
	pixelfed := NewPixelfed(cfg)
	pleroma := NewPleroma(cfg)

	iso := http.Header{}
	iso.Set("X-RateLimit-Reset", "2030-01-01T00:00:00.000Z")
	unix := http.Header{}
	unix.Set("X-RateLimit-Reset", "1893456000")
	want := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, mastodon.GetRateLimitInfo(iso).Reset.Equal(want))
	assert.True(t, mastodon.GetRateLimitInfo(unix).Reset.IsZero())

	assert.True(t, pixelfed.GetRateLimitInfo(unix).Reset.Equal(want))
	assert.True(t, pixelfed.GetRateLimitInfo(iso).Reset.IsZero())

	assert.True(t, pleroma.GetRateLimitInfo(iso).Reset.Equal(want))
	assert.True(t, pleroma.GetRateLimitInfo(unix).Reset.Equal(want))
}

func TestStatusIDFromRef(t *testing.T) {
	assert.Equal(t, "123", StatusIDFromRef("123"))
	assert.Equal(t, "123", StatusIDFromRef("https://mastodon.social/@alice/123"))
	assert.Equal(t, "123", StatusIDFromRef("https://mastodon.social/users/alice/statuses/123/"))
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "Hi", StripHTML("<p>Hi</p>"))
	assert.Equal(t, "a\nb", StripHTML("a<br/>b"))
	assert.Equal(t, `"q" <x>`, StripHTML("&quot;q&quot; &lt;x&gt;"))
}
