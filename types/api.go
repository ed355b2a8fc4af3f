package types

// APIError is the JSON error body returned by the server. Fields carries
// per-field validation detail when the failure is attributable to
// specific request fields, in the style of serializer errors.
type APIError struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// TokenPair is the response body of the token and refresh endpoints
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// EntryList is the response body of GET /entries/
type EntryList struct {
	Entries []*Entry `json:"entries"`
	Total   int      `json:"total"`
}

// TrackList is the response body of GET /entries/:id/stems/
type TrackList struct {
	EntryID string  `json:"entryId"`
	Tracks  []Track `json:"tracks"`
}

// NoteList is the response body of GET /notes/
type NoteList struct {
	Notes []*Note `json:"notes"`
	Total int     `json:"total"`
}

// DocumentList is the response body of GET /documents/
type DocumentList struct {
	Documents []*Document `json:"documents"`
	Total     int         `json:"total"`
}

// TagList is the response body of GET /tags/
type TagList struct {
	Tags  []*Tag `json:"tags"`
	Total int    `json:"total"`
}
