package yadisk

import (
	"net/url"

	"github.com/alexjbarnes/diskview/internal/errors"
	"github.com/alexjbarnes/diskview/internal/models"
)

// MapItems normalizes a listing response into display entries. Only
// items of type "file" survive; directories are dropped (subdirectory
// browsing is out of scope). Missing optional fields get defaults:
// size 0, modified "", media type "unknown", checksum "". A response
// without the _embedded container is malformed for a listing request.
func MapItems(list *ResourceList, publicKey string) ([]models.FileEntry, error) {
	if list == nil || list.Embedded == nil {
		return nil, errors.ErrMalformedResponse
	}

	entries := make([]models.FileEntry, 0, len(list.Embedded.Items))

	for _, item := range list.Embedded.Items {
		if item.Type != "file" {
			continue
		}

		entries = append(entries, models.FileEntry{
			Name:      item.Name,
			Path:      url.QueryEscape(item.Path),
			Size:      item.Size,
			Modified:  item.Modified,
			MediaType: mediaType(item),
			PublicKey: publicKey,
			Preview:   item.Preview,
			MD5:       item.MD5,
		})
	}

	return entries, nil
}

// mediaType picks the display type: the MIME type when the API sent
// one, the coarser media_type otherwise.
func mediaType(item ResourceItem) string {
	if item.MimeType != "" {
		return item.MimeType
	}

	if item.MediaType != "" {
		return item.MediaType
	}

	return "unknown"
}
