package stac

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// sasToken is one SAS query string issued for a collection's blob container.
type sasToken struct {
	value  string
	expiry time.Time
}

type sasResponse struct {
	Token  string    `json:"token"`
	Expiry time.Time `json:"msft:expiry"`
}

// Signer appends SAS query strings to asset hrefs so GDAL can read them. One
// token per collection, fetched from `{endpoint}/token/{collection}` and
// reused until shortly before it expires.
type Signer struct {
	endpoint   string
	httpClient *http.Client
	tokens     map[string]sasToken
}

// tokenSlack renews tokens early so long band reads never outlive one.
const tokenSlack = 5 * time.Minute

func NewSigner(endpoint string, httpClient *http.Client) *Signer {
	return &Signer{
		endpoint:   endpoint,
		httpClient: httpClient,
		tokens:     make(map[string]sasToken),
	}
}

// SignHref returns the href with the collection's SAS token appended.
func (s *Signer) SignHref(collection, href string) (string, error) {
	token, err := s.token(collection)
	if err != nil {
		return "", err
	}
	separator := "?"
	if strings.Contains(href, "?") {
		separator = "&"
	}
	return href + separator + token, nil
}

func (s *Signer) token(collection string) (string, error) {
	if cached, ok := s.tokens[collection]; ok && time.Now().UTC().Before(cached.expiry.Add(-tokenSlack)) {
		return cached.value, nil
	}

	url := fmt.Sprintf("%s/token/%s", s.endpoint, collection)
	resp, err := s.httpClient.Get(url)
	if err != nil {
		return "", fmt.Errorf("sas token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sas token request for %s returned status %d", collection, resp.StatusCode)
	}

	var parsed sasResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode sas token response: %w", err)
	}
	if parsed.Token == "" {
		return "", fmt.Errorf("sas token response for %s carried no token", collection)
	}

	logrus.Infof("[query] signed %s assets until %s", collection, parsed.Expiry.Format(time.RFC3339))
	s.tokens[collection] = sasToken{value: parsed.Token, expiry: parsed.Expiry}
	return parsed.Token, nil
}
