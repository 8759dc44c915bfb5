// Package publicurl extracts a public_key from user-supplied Yandex
// Disk share links. Two historical link shapes are in circulation:
//
//	https://disk.yandex.ru/d/<key>
//	https://disk.yandex.ru/public/?public_key=<key>
//
// Both are accepted; the path-embedded form wins when both are present.
package publicurl

import (
	"net/url"
	"strings"

	"github.com/alexjbarnes/diskview/internal/errors"
	"github.com/alexjbarnes/diskview/internal/models"
)

// validHosts are the share hosts the resolver accepts. Exact host
// comparison, not substring: "evildisk.yandex.ru.attacker.com" must
// not pass.
var validHosts = map[string]struct{}{
	"disk.yandex.ru":  {},
	"disk.yandex.com": {},
}

// Resolve parses a share link into a PublicResourceRef. The returned
// Path is empty; callers fill in whatever the target endpoint expects
// (the listing root and a file download use different conventions).
func Resolve(rawURL string) (models.PublicResourceRef, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return models.PublicResourceRef{}, errors.ErrInvalidShareURL
	}

	if _, ok := validHosts[u.Hostname()]; !ok {
		return models.PublicResourceRef{}, errors.ErrInvalidShareURL
	}

	if key := pathKey(u.Path); key != "" {
		return models.PublicResourceRef{PublicKey: key}, nil
	}

	if key := u.Query().Get("public_key"); key != "" {
		return models.PublicResourceRef{PublicKey: key}, nil
	}

	return models.PublicResourceRef{}, errors.ErrInvalidShareURL
}

// pathKey extracts the key from a /d/<key>[/...] path, or "".
func pathKey(path string) string {
	parts := strings.Split(path, "/")

	clean := parts[:0]
	for _, p := range parts {
		if p != "" {
			clean = append(clean, p)
		}
	}

	if len(clean) >= 2 && clean[0] == "d" {
		return clean[1]
	}

	return ""
}
