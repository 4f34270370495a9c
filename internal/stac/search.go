package stac

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ikuta-green/satellite-pipeline-poc/internal/cache"
	"github.com/ikuta-green/satellite-pipeline-poc/internal/properties"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2/clientcredentials"
)

// Asset is one downloadable file of a scene, keyed by band in Scene.Assets.
type Asset struct {
	Href string `json:"href"`
	Type string `json:"type,omitempty"`
}

// Scene is a single catalog item: one satellite acquisition over the AOI.
type Scene struct {
	ID         string            `json:"id"`
	Datetime   time.Time         `json:"datetime"`
	CloudCover float64           `json:"cloud_cover"`
	Assets     map[string]Asset  `json:"assets"`
	Geometry   *geojson.Geometry `json:"geometry,omitempty"`
}

type searchRequest struct {
	Collections []string                      `json:"collections"`
	Bbox        []float64                     `json:"bbox"`
	Datetime    string                        `json:"datetime"`
	Query       map[string]map[string]float64 `json:"query,omitempty"`
	Limit       int                           `json:"limit,omitempty"`
}

type featureCollection struct {
	Features []feature    `json:"features"`
	Links    []searchLink `json:"links"`
}

// searchLink carries STAC paging links; the API hands back the follow-up POST
// body (with its continuation token) verbatim.
type searchLink struct {
	Rel  string          `json:"rel"`
	Href string          `json:"href"`
	Body json.RawMessage `json:"body,omitempty"`
}

type feature struct {
	ID         string            `json:"id"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties struct {
		Datetime   string  `json:"datetime"`
		CloudCover float64 `json:"eo:cloud_cover"`
	} `json:"properties"`
	Assets map[string]Asset `json:"assets"`
}

type Client struct {
	endpoint   string
	httpClient *http.Client
	cache      *cache.FileCache[[]Scene]
	signer     *Signer
}

// NewClient builds a catalog client for the configured STAC endpoint. When
// client credentials are configured the HTTP client carries an OAuth2 token,
// mirroring token-protected endpoints; public catalogs need none.
func NewClient() *Client {
	httpClient := &http.Client{Timeout: 60 * time.Second}
	if properties.StacClientID() != "" {
		config := &clientcredentials.Config{
			ClientID:     properties.StacClientID(),
			ClientSecret: properties.StacClientSecret(),
			TokenURL:     properties.StacTokenURL(),
		}
		httpClient = config.Client(context.Background())
	}
	return &Client{
		endpoint:   properties.StacURL(),
		httpClient: httpClient,
		cache:      cache.NewFileCache[[]Scene]("stac"),
		signer:     newConfiguredSigner(properties.StacURL(), httpClient),
	}
}

// NewClientWithEndpoint is the test seam: same client, explicit endpoint.
func NewClientWithEndpoint(endpoint string, httpClient *http.Client) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		cache:      cache.NewFileCache[[]Scene]("stac"),
		signer:     newConfiguredSigner(endpoint, httpClient),
	}
}

func newConfiguredSigner(endpoint string, httpClient *http.Client) *Signer {
	signURL := properties.StacSignURL()
	if signURL == "" && endpoint == properties.DefaultStacURL {
		signURL = properties.DefaultSignURL
	}
	if signURL == "" {
		return nil
	}
	return NewSigner(signURL, httpClient)
}

// Search queries the catalog for all scenes of a collection intersecting the
// AOI in the given month, below the cloud-cover ceiling, following paging
// links until the result is complete. An empty result is not an error. Past
// months are served from the file cache when possible; the current month is
// always fetched fresh. Asset hrefs come back signed when a signing endpoint
// is configured.
func (c *Client) Search(collection string, year int, month time.Month) ([]Scene, error) {
	cacheKey := c.cache.GenerateKey(collection, year, int(month))
	if monthIsClosed(year, month) {
		if scenes, ok := c.cache.Get(cacheKey); ok {
			logrus.Infof("[query] %s %d-%02d: %d items (cached)", collection, year, month, len(scenes))
			return c.signScenes(collection, scenes)
		}
	}

	bound := properties.AOI()
	request := searchRequest{
		Collections: []string{collection},
		Bbox:        []float64{bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]},
		Datetime:    monthDatetimeRange(year, month),
		Query: map[string]map[string]float64{
			"eo:cloud_cover": {"lt": properties.CloudCoverMax},
		},
		Limit: properties.SearchLimit,
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	scenes := make([]Scene, 0)
	url := c.endpoint + "/search"
	for {
		page, err := c.searchPage(url, body)
		if err != nil {
			return nil, err
		}
		for _, f := range page.Features {
			datetime, err := time.Parse(time.RFC3339, f.Properties.Datetime)
			if err != nil {
				return nil, fmt.Errorf("scene %s has unparseable datetime %q: %w", f.ID, f.Properties.Datetime, err)
			}
			scenes = append(scenes, Scene{
				ID:         f.ID,
				Datetime:   datetime,
				CloudCover: f.Properties.CloudCover,
				Assets:     f.Assets,
				Geometry:   f.Geometry,
			})
		}
		next := nextLink(page.Links)
		// A next link without a continuation body cannot advance the cursor.
		if next == nil || len(next.Body) == 0 {
			break
		}
		url = next.Href
		body = next.Body
	}

	if len(scenes) == 0 {
		logrus.Warnf("[query] %s %d-%02d: 0 items found", collection, year, month)
	} else {
		logrus.Infof("[query] %s %d-%02d: %d items found", collection, year, month, len(scenes))
	}

	// The cache holds unsigned hrefs; SAS tokens expire within hours while
	// cached months live forever.
	if monthIsClosed(year, month) {
		if err := c.cache.Set(cacheKey, scenes); err != nil {
			logrus.Warnf("[query] failed to cache search result: %v", err)
		}
	}

	return c.signScenes(collection, scenes)
}

func (c *Client) searchPage(url string, body []byte) (*featureCollection, error) {
	resp, err := c.httpClient.Post(url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("catalog search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("catalog search returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return &fc, nil
}

func nextLink(links []searchLink) *searchLink {
	for i := range links {
		if links[i].Rel == "next" {
			return &links[i]
		}
	}
	return nil
}

// signScenes replaces every asset href with its signed form. Without a signer
// the scenes pass through untouched.
func (c *Client) signScenes(collection string, scenes []Scene) ([]Scene, error) {
	if c.signer == nil {
		return scenes, nil
	}
	for _, scene := range scenes {
		for key, asset := range scene.Assets {
			signed, err := c.signer.SignHref(collection, asset.Href)
			if err != nil {
				return nil, fmt.Errorf("failed to sign asset %s of scene %s: %w", key, scene.ID, err)
			}
			asset.Href = signed
			scene.Assets[key] = asset
		}
	}
	return scenes, nil
}

// monthDatetimeRange covers the full calendar month, both ends inclusive.
func monthDatetimeRange(year int, month time.Month) string {
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	return fmt.Sprintf("%04d-%02d-01/%04d-%02d-%02d", year, month, year, month, lastDay)
}

// monthIsClosed reports whether the month ended before today; only closed
// months have an immutable scene list worth caching.
func monthIsClosed(year int, month time.Month) bool {
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)
	return time.Now().UTC().After(firstOfNext)
}
