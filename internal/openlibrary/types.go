package openlibrary

// searchResponse is the shape of /search.json responses. Only the fields
// the cover pipeline needs are mapped.
type searchResponse struct {
	NumFound int   `json:"numFound"`
	Docs     []Doc `json:"docs"`
}

// Doc is a single search match.
type Doc struct {
	Title            string   `json:"title"`
	AuthorName       []string `json:"author_name"`
	CoverID          int      `json:"cover_i"`
	FirstPublishYear int      `json:"first_publish_year"`
}

// cachedLookup is the metadata-cache record for a title+author search.
// NotFound entries are cached too, with a shorter TTL, so known misses
// don't hit the network on every run.
type cachedLookup struct {
	CoverID  int  `json:"cover_id"`
	NotFound bool `json:"not_found"`
}
