// Package platforms adapts individual fediverse server software to one
// post, image and caption model.
//
// Pixelfed, Mastodon and Pleroma all speak a dialect of the Mastodon client
// API, so the adapters share request and decoding helpers and differ only
// where the platforms do: Mastodon verifies tokens and captions published
// media by editing the owning status, the others update media directly.
//
// Adapters never issue HTTP calls themselves. Each operation receives a
// transport.Requester, which lets the caller decide how requests are rate
// limited and retried:
//
//	reg := platforms.DefaultRegistry(log)
//	adapter, err := reg.Create(platforms.Config{
//	    InstanceURL: "https://pixelfed.social",
//	    AccessToken: token,
//	})
//	posts, err := adapter.GetUserPosts(ctx, requester, "alice", 50)
package platforms
