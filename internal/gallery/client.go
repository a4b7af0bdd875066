// Package gallery is the typed client for the upstream gallery API.
package gallery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/galleryguard/galleryguard/internal/moderation"
)

// Config holds the client's endpoint and credential settings.
type Config struct {
	// BaseURL is the API root, e.g. https://api.imgur.com/3.
	BaseURL string
	// PublicBaseURL is the site root used to synthesize post links for
	// single-image lookups.
	PublicBaseURL string
	ClientID      string
	UserAgent     string
}

// Client talks to the gallery API. Responses are decoded from the API's
// data-envelope JSON.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New constructs a Client. A nil httpClient falls back to a default with a
// 30s timeout.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "galleryguard/1.0"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

type postEnvelope struct {
	Data moderation.Post `json:"data"`
}

type feedEnvelope struct {
	Data []moderation.Post `json:"data"`
}

// singleImage is the API's shape for a bare image lookup, which lacks the
// album fields.
type singleImage struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Datetime    int64  `json:"datetime"`
	AccountURL  string `json:"account_url"`
	Views       int    `json:"views"`
	Link        string `json:"link"`
	NSFW        *bool  `json:"nsfw"`
	IsAd        bool   `json:"is_ad"`
}

type imageEnvelope struct {
	Data singleImage `json:"data"`
}

// Post looks up a post by id via the album endpoint. A 404 means the id is a
// bare image, so the image endpoint is tried and its payload synthesized into
// a single-image Post.
func (c *Client) Post(ctx context.Context, id string) (moderation.Post, error) {
	body, status, err := c.get(ctx, fmt.Sprintf("%s/album/%s", c.cfg.BaseURL, id))
	if err != nil {
		return moderation.Post{}, err
	}
	if status == http.StatusNotFound {
		return c.singleImagePost(ctx, id)
	}
	if status != http.StatusOK {
		return moderation.Post{}, fmt.Errorf("album lookup %s: unexpected status %d", id, status)
	}
	var envelope postEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return moderation.Post{}, fmt.Errorf("decode album response: %w", err)
	}
	return envelope.Data, nil
}

func (c *Client) singleImagePost(ctx context.Context, id string) (moderation.Post, error) {
	body, status, err := c.get(ctx, fmt.Sprintf("%s/image/%s", c.cfg.BaseURL, id))
	if err != nil {
		return moderation.Post{}, err
	}
	if status != http.StatusOK {
		return moderation.Post{}, fmt.Errorf("image lookup %s: unexpected status %d", id, status)
	}
	var envelope imageEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return moderation.Post{}, fmt.Errorf("decode image response: %w", err)
	}
	img := envelope.Data
	return moderation.Post{
		ID:          img.ID,
		Title:       img.Title,
		Description: img.Description,
		Datetime:    img.Datetime,
		AccountURL:  img.AccountURL,
		Views:       img.Views,
		Link:        fmt.Sprintf("%s/gallery/%s", c.cfg.PublicBaseURL, img.ID),
		IsAlbum:     false,
		NSFW:        img.NSFW,
		ImagesCount: 1,
		IsAd:        img.IsAd,
		Images: []moderation.ImageRef{{
			ID:          img.ID,
			Title:       img.Title,
			Description: img.Description,
			Link:        img.Link,
		}},
	}, nil
}

// FeedPage returns one page of the hot/viral/day feed.
func (c *Client) FeedPage(ctx context.Context, page int) ([]moderation.Post, error) {
	body, status, err := c.get(ctx, fmt.Sprintf("%s/gallery/hot/viral/day/%d", c.cfg.BaseURL, page))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("feed page %d: unexpected status %d", page, status)
	}
	var envelope feedEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode feed response: %w", err)
	}
	return envelope.Data, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Authorization", "Client-ID "+c.cfg.ClientID)
	req.Header.Set("Accept", "*/*")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}
