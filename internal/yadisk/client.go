// Package yadisk talks to the Yandex Disk Cloud API for public
// resources: folder listings and two-step file downloads.
package yadisk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/alexjbarnes/diskview/internal/errors"
	"github.com/alexjbarnes/diskview/internal/models"
)

const defaultBaseURL = "https://cloud-api.yandex.net"

const (
	// httpClientTimeout is the timeout for metadata calls when no
	// custom client is provided.
	httpClientTimeout = 30 * time.Second

	// maxAPIResponseBytes caps metadata response reads to prevent a
	// misbehaving server from consuming unbounded memory.
	maxAPIResponseBytes = 1024 * 1024

	// listSort orders listings newest-first.
	listSort = "-modified"

	// fallbackFilename is used when neither Content-Disposition nor
	// the resource path yields a name.
	fallbackFilename = "file"
)

// FileStream is an open download. The caller owns Body and must close it.
type FileStream struct {
	Body        io.ReadCloser
	Filename    string
	ContentType string
	Size        int64
}

// Client wraps the public-resource endpoints of the Cloud API. No call
// is ever retried; each user action maps to a single attempt.
type Client struct {
	httpClient *http.Client

	// streamClient has no overall timeout because it carries whole
	// file bodies; cancellation comes from the request context.
	streamClient *http.Client

	baseURL   string
	listLimit int
}

// NewClient creates an API client. If httpClient is nil, a client with
// a 30-second timeout is created. An empty baseURL selects the
// production Cloud API.
func NewClient(baseURL string, listLimit int, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpClientTimeout}
	}

	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		httpClient:   httpClient,
		streamClient: &http.Client{},
		baseURL:      baseURL,
		listLimit:    listLimit,
	}
}

// get performs an authenticated metadata call and decodes the response,
// applying the error translation policy: 404 becomes ResourceNotFound
// with the explicit-publication hint, any other non-2xx becomes a
// RemoteAPIError carrying the body's message field, and network-level
// failures become TransportError.
func (c *Client) get(ctx context.Context, endpoint string, query url.Values, token string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "OAuth "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &errors.TransportError{Err: fmt.Errorf("requesting %s: %w", endpoint, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return &errors.TransportError{Err: fmt.Errorf("reading response from %s: %w", endpoint, err)}
	}

	if resp.StatusCode == http.StatusNotFound {
		if msg := apiMessage(body); msg != "" {
			return fmt.Errorf("%w (%s)", errors.ErrResourceNotFound, msg)
		}

		return errors.ErrResourceNotFound
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := apiMessage(body)
		if msg == "" {
			msg = "unknown API error"
		}

		return &errors.RemoteAPIError{Status: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", errors.ErrMalformedResponse, endpoint, err)
	}

	return nil
}

// apiMessage extracts the message field from an API error body, or "".
func apiMessage(body []byte) string {
	return gjson.GetBytes(body, "message").Str
}

// ListPublicFolder fetches the metadata listing of a public folder,
// newest entries first.
func (c *Client) ListPublicFolder(ctx context.Context, ref models.PublicResourceRef, token string) (*ResourceList, error) {
	query := url.Values{
		"public_key": {ref.PublicKey},
		"path":       {ref.Path},
		"limit":      {strconv.Itoa(c.listLimit)},
		"sort":       {listSort},
	}

	var list ResourceList
	if err := c.get(ctx, "/v1/disk/public/resources", query, token, &list); err != nil {
		return nil, err
	}

	return &list, nil
}

// GetDownloadLink fetches the short-lived download URL for a file
// inside a public resource.
func (c *Client) GetDownloadLink(ctx context.Context, ref models.PublicResourceRef, token string) (string, error) {
	query := url.Values{
		"public_key": {ref.PublicKey},
		"path":       {ref.Path},
	}

	var link downloadLinkResponse
	if err := c.get(ctx, "/v1/disk/public/resources/download", query, token, &link); err != nil {
		return "", err
	}

	if link.Href == "" {
		return "", fmt.Errorf("%w: download response carried no href", errors.ErrMalformedResponse)
	}

	return link.Href, nil
}

// Download opens the file behind a previously fetched download URL.
// resourcePath is the path the link was requested for; it provides the
// filename when the response has no usable Content-Disposition.
func (c *Client) Download(ctx context.Context, href, resourcePath, token string) (*FileStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return nil, fmt.Errorf("creating download request: %w", err)
	}

	req.Header.Set("Authorization", "OAuth "+token)

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, &errors.TransportError{Err: fmt.Errorf("downloading file: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &errors.RemoteAPIError{
			Status:  resp.StatusCode,
			Message: "download URL rejected the request",
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &FileStream{
		Body:        resp.Body,
		Filename:    filename(resp.Header.Get("Content-Disposition"), resourcePath),
		ContentType: contentType,
		Size:        resp.ContentLength,
	}, nil
}

// filename derives the download filename: Content-Disposition first,
// then the last URL-decoded segment of the resource path, then "file".
func filename(disposition, resourcePath string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := params["filename"]; name != "" {
				return name
			}
		}
	}

	segments := strings.Split(resourcePath, "/")

	last := segments[len(segments)-1]
	if decoded, err := url.QueryUnescape(last); err == nil {
		last = decoded
	}

	if last == "" {
		return fallbackFilename
	}

	return last
}
