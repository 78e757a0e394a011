package config

const (
	// TopicDocumentIngest carries one document's processing cycle
	// (extract, chunk, embed, write).
	TopicDocumentIngest = "document.ingest"

	// TopicWebsiteCrawl carries a crawl request that fans out into one
	// document per discovered page.
	TopicWebsiteCrawl = "website.crawl"

	// TopicWorkspaceDelete carries a workspace teardown request. The
	// consumer is idempotent, so NSQ redelivery resumes a partial delete.
	TopicWorkspaceDelete = "workspace.delete"
)

// Topics lists every topic the service pre-creates on nsqd at startup.
var Topics = []string{TopicDocumentIngest, TopicWebsiteCrawl, TopicWorkspaceDelete}
