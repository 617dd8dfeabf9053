package seeder

// Seed URL templates from spec.md §6, kept as data rather than behavior
// per SPEC_FULL.md §4.7. Grounded on the original daemon.py's
// SeedLinkSubmitDaemon, which appended `&uuid=%s` to a single trending
// link constant, and sina_pipeline.py's USER_WEIBO routing comment
// (`weibo.com/p/aj/v6/mblog/mbloglist?...&page=N`) for the topic
// pagination shape.
const (
	// TrendingWeiboTemplate is the hot-weibo canonical seed URL; %s is
	// filled with a fresh uuid.v4 token each round so its fingerprint
	// differs and bypasses the Frontier's DeadSet.
	TrendingWeiboTemplate = "https://d.weibo.com/pub/weibo/2?tab=hot&uuid=%s"

	// TopicPageTemplate is a user's paginated weibo feed; %s is the
	// numeric weibo user id, %d is the page number.
	TopicPageTemplate = "https://weibo.com/p/aj/v6/mblog/mbloglist?id=%s&page=%d"
)
