package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fedicaption/internal/fedimock"
	"fedicaption/pkg/activitypub"
	"fedicaption/pkg/auth"
	"fedicaption/pkg/models"
	"fedicaption/pkg/ui"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token-0123456789"

type harness struct {
	t       *testing.T
	srv     *fedimock.Server
	manager *auth.Manager
	store   *auth.MemoryStore
}

func newHarness(t *testing.T, software string) *harness {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, name := range []string{"PLATFORM", "INSTANCE_URL", "ACCESS_TOKEN", "LOG_LEVEL", "LOG_FILE"} {
		t.Setenv("FEDICAPTION_"+name, "")
	}
	t.Cleanup(func() {
		ui.SetOutput(os.Stdout)
		ui.SetErrorOutput(os.Stderr)
		ui.SetQuietMode(false)
		ui.SetNoColor(false)
	})

	srv := fedimock.New(testToken, software)
	t.Cleanup(srv.Close)
	srv.AddAccount(fedimock.Account{ID: "100", Username: "alice"})

	manager, store := auth.NewMemoryManager()
	return &harness{t: t, srv: srv, manager: manager, store: store}
}

// run executes the CLI with args. Connection flags for the mock instance
// are added unless withInstance is false.
func (h *harness) run(stdin string, withInstance bool, args ...string) (string, error) {
	h.t.Helper()

	a := newApp()
	a.newManager = func() (*auth.Manager, error) { return h.manager, nil }

	base := []string{"--no-color", "--log-level", "error"}
	if withInstance {
		base = append(base, "--instance", h.srv.URL(), "--token", testToken, "--platform", "pixelfed")
	}

	cmd := newRootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args, base...))

	err := cmd.Execute()
	return out.String(), err
}

func description(t *testing.T, srv *fedimock.Server, statusID string, index int) string {
	t.Helper()
	status, ok := srv.Status(statusID)
	require.True(t, ok)
	require.Greater(t, len(status.MediaAttachments), index)
	if d := status.MediaAttachments[index].Description; d != nil {
		return *d
	}
	return ""
}

func TestPostsCommand(t *testing.T) {
	h := newHarness(t, "pixelfed")
	h.srv.AddStatuses("100", 110, 3)

	out, err := h.run("", true, "posts", "alice", "--json", "--limit", "2")
	require.NoError(t, err)

	var posts []models.Post
	require.NoError(t, json.Unmarshal([]byte(out), &posts))
	require.Len(t, posts, 2)
	assert.Equal(t, "110", posts[0].ID)
	assert.Equal(t, "pixelfed", posts[0].Platform)

	out, err = h.run("", true, "posts", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "post 110")
	assert.Contains(t, out, "Posts: 3")
}

func TestImagesCommandWritesTemplate(t *testing.T) {
	h := newHarness(t, "pixelfed")
	h.srv.AddStatuses("100", 110, 2)
	captioned := "Already described"
	h.srv.AddStatus("100", fedimock.Status{ID: "120", MediaAttachments: []fedimock.Media{
		{ID: "done", Type: "image", URL: h.srv.URL() + "/done.jpg", Description: &captioned},
	}})

	template := filepath.Join(t.TempDir(), "batch.yaml")
	out, err := h.run("", true, "images", "alice", "--template", template)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 2 jobs")
	assert.Contains(t, out, "2 in 3 posts")

	data, err := os.ReadFile(template)
	require.NoError(t, err)
	assert.Contains(t, string(data), "media: m110")
	assert.Contains(t, string(data), "media: m109")
	assert.NotContains(t, string(data), "done")
}

func TestCaptionCommand(t *testing.T) {
	h := newHarness(t, "pixelfed")
	h.srv.AddStatuses("100", 110, 1)

	out, err := h.run("", true, "caption", "m110", "A gull on a lamp post", "--status", "110")
	require.NoError(t, err)
	assert.Contains(t, out, "Caption written for m110")
	assert.Equal(t, "A gull on a lamp post", description(t, h.srv, "110", 0))

	_, err = h.run("", true, "caption", "m110", "   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "caption text cannot be empty")

	_, err = h.run("", true, "caption", "m110")
	require.Error(t, err, "a single caption needs media id and text")
}

func TestCaptionBatchResumes(t *testing.T) {
	h := newHarness(t, "pixelfed")
	h.srv.AddStatuses("100", 110, 2)

	batch := filepath.Join(t.TempDir(), "harbour.yaml")
	require.NoError(t, os.WriteFile(batch, []byte(`jobs:
  - status: "110"
    media: m110
    caption: Fog over the harbour
  - status: "109"
    media: m109
    caption: Two gulls on a rope
`), 0644))

	out, err := h.run("", true, "caption", "--file", batch, "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Captioned 2 images (0 from an earlier run)")
	assert.Equal(t, "Fog over the harbour", description(t, h.srv, "110", 0))
	assert.Equal(t, "Two gulls on a rope", description(t, h.srv, "109", 0))

	h.srv.ResetCounters()
	out, err = h.run("", true, "caption", "--file", batch)
	require.NoError(t, err)
	assert.Contains(t, out, "Captioned 2 images (2 from an earlier run)")
	_, wrote := h.srv.LastRequest("PUT", "/api/v1/media/m110")
	assert.False(t, wrote, "checkpointed media must not be written again")

	out, err = h.run("", true, "caption", "--file", batch, "--fresh")
	require.NoError(t, err)
	assert.Contains(t, out, "(0 from an earlier run)")
}

func TestCaptionBatchRejectsIncompleteTemplate(t *testing.T) {
	h := newHarness(t, "pixelfed")

	batch := filepath.Join(t.TempDir(), "todo.yaml")
	require.NoError(t, os.WriteFile(batch, []byte("jobs:\n  - media: m1\n"), 0644))

	_, err := h.run("", true, "caption", "--file", batch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job 1: caption is required")
}

func TestDetectCommand(t *testing.T) {
	h := newHarness(t, "akkoma")

	tests := []struct {
		args     []string
		platform string
		method   string
	}{
		{[]string{"https://mastodon.social"}, "mastodon", "url"},
		{[]string{"pixelfed.social"}, "pixelfed", "url"},
		{[]string{"https://photos.example.org"}, "pixelfed", "fallback"},
		{[]string{h.srv.URL(), "--nodeinfo"}, "pleroma", "nodeinfo"},
	}

	for _, test := range tests {
		out, err := h.run("", false, append([]string{"detect", "--json"}, test.args...)...)
		require.NoError(t, err, test.args)

		var got detection
		require.NoError(t, json.Unmarshal([]byte(out), &got), out)
		assert.Equal(t, test.platform, got.Platform, test.args)
		assert.Equal(t, test.method, got.Method, test.args)
	}
}

func TestAuthLoginListLogout(t *testing.T) {
	h := newHarness(t, "pixelfed")
	h.srv.AddStatuses("100", 110, 1)

	out, err := h.run(testToken+"\n", false, "auth", "login", h.srv.URL(), "--username", "alice", "--platform", "pixelfed")
	require.NoError(t, err)
	assert.Contains(t, out, "ACCESS TOKEN SETUP")
	assert.Contains(t, out, "Token accepted")

	name := auth.AccountName("alice", h.srv.URL())
	account, err := h.manager.Retrieve(name)
	require.NoError(t, err)
	assert.Equal(t, testToken, account.AccessToken)
	assert.Equal(t, "pixelfed", account.Platform)

	// The stored account supplies instance and token.
	out, err = h.run("", false, "posts", "100", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"id": "110"`)

	out, err = h.run("", false, "auth", "list")
	require.NoError(t, err)
	assert.Contains(t, out, name)
	assert.NotContains(t, out, testToken)

	_, err = h.run("", false, "auth", "logout", name)
	require.NoError(t, err)
	assert.Equal(t, 0, h.store.Count())

	_, err = h.run("", false, "auth", "logout", name)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrCredentialsNotFound)
}

func TestAuthLoginRejectedToken(t *testing.T) {
	h := newHarness(t, "mastodon")

	_, err := h.run("wrong-token\n", false, "auth", "login", h.srv.URL(), "--platform", "mastodon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
	assert.Equal(t, 0, h.store.Count())
}

func TestAccountFlag(t *testing.T) {
	h := newHarness(t, "pixelfed")
	h.srv.AddStatuses("100", 110, 1)
	require.NoError(t, h.manager.Store(&auth.Account{
		Name:         "work",
		Platform:     "pixelfed",
		InstanceURL:  h.srv.URL(),
		AccessToken:  testToken,
		LastModified: time.Now(),
	}))

	_, err := h.run("", false, "posts", "100", "--account", "work")
	require.NoError(t, err)

	_, err = h.run("", false, "posts", "100", "--account", "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrCredentialsNotFound)
}

func TestStatsCommand(t *testing.T) {
	h := newHarness(t, "pixelfed")
	h.srv.AddStatuses("100", 110, 3)

	metricsFile := filepath.Join(t.TempDir(), "fedicaption.prom")
	out, err := h.run("", true, "stats", "alice", "--json", "--metrics-out", metricsFile)
	require.NoError(t, err)

	var report activitypub.UsageReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "pixelfed", report.Platform)
	assert.GreaterOrEqual(t, report.RateLimit.TotalRequests, int64(2))

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fedicaption_ratelimit_requests_total")

	out, err = h.run("", true, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "API usage for")
}

func TestConfigCommands(t *testing.T) {
	h := newHarness(t, "pixelfed")
	path := filepath.Join(t.TempDir(), "fedicaption.yaml")

	out, err := h.run("", false, "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration file created")

	_, err = h.run("", false, "config", "init", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = h.run("", false, "config", "validate", "--config", path)
	require.Error(t, err, "the example file has no token")

	out, err = h.run("", false, "config", "validate", "--config", path, "--token", "abcdefghijkl")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
	assert.Contains(t, out, "60/minute, 1000/hour, 10000/day")

	out, err = h.run("", false, "config", "show", "--config", path, "--token", "abcdefghijkl")
	require.NoError(t, err)
	assert.Contains(t, out, "abcd...ijkl")
	assert.NotContains(t, out, "abcdefghijkl")
	assert.Contains(t, out, "https://pixelfed.social")
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", maskSecret(""))
	assert.Equal(t, "***", maskSecret("short"))
	assert.Equal(t, "abcd...mnop", maskSecret("abcdefghijklmnop"))
}
