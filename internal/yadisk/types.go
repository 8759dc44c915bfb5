package yadisk

// ResourceItem is one entry of a public resource listing as the Cloud
// API returns it. Optional fields are zero-valued when absent; the
// mapper applies display defaults.
type ResourceItem struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Type      string `json:"type"`
	Size      int64  `json:"size"`
	Created   string `json:"created"`
	Modified  string `json:"modified"`
	MimeType  string `json:"mime_type"`
	MediaType string `json:"media_type"`
	MD5       string `json:"md5"`
	Preview   string `json:"preview"`
}

// embeddedList is the _embedded container of a folder resource.
type embeddedList struct {
	Items  []ResourceItem `json:"items"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
	Total  int            `json:"total"`
	Sort   string         `json:"sort"`
}

// ResourceList is the body of a public resource metadata response.
// Embedded is nil for single files and for folders the caller may not
// browse; the mapper treats that as malformed for a listing request.
type ResourceList struct {
	Name      string        `json:"name"`
	Path      string        `json:"path"`
	Type      string        `json:"type"`
	PublicKey string        `json:"public_key"`
	Embedded  *embeddedList `json:"_embedded"`
}

// downloadLinkResponse is the body of a download-link response.
type downloadLinkResponse struct {
	Href      string `json:"href"`
	Method    string `json:"method"`
	Templated bool   `json:"templated"`
}
