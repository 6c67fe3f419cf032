// Package activitypub is the protocol client callers use to read posts and
// write image captions on a fediverse instance.
//
// A Client composes a platform adapter, a shared rate limiter, a retry
// policy and a lazily opened HTTP session. Requests are tagged with an
// endpoint (MEDIA, STATUSES, ...) derived from the URL; the tag keys both
// the rate limit tiers and the retry statistics.
//
//	limiter := ratelimit.New(cfg.RateLimit)
//	client, err := activitypub.New(cfg, activitypub.WithRateLimiter(limiter))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	posts, err := client.GetUserPosts(ctx, "alice", 40)
//	for _, post := range posts {
//	    for _, img := range client.ExtractImagesFromPost(post) {
//	        _, err := client.UpdateStatusMediaCaption(ctx, post.ID, img.AttachmentID, caption)
//	    }
//	}
//
// Failed protocol calls are logged with platform specific hints and
// returned unchanged.
package activitypub
