package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// RemoteStore talks to a cache server started with the cache-server
// subcommand. It implements the same Store contract as LocalStore, so the
// build dispatcher doesn't care where the compiler cache lives.
type RemoteStore struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewRemoteStore creates a client for the cache server at baseURL
func NewRemoteStore(baseURL string, secret string) (*RemoteStore, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, errors.Wrapf(err, "invalid cache server address %s", baseURL)
	}

	token := ""
	if secret != "" {
		var err error
		token, err = NewToken(secret)
		if err != nil {
			return nil, errors.Wrap(err, "unable to sign cache server token")
		}
	}

	return &RemoteStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{},
	}, nil
}

func (s *RemoteStore) newRequest(method string, path string, body *bytes.Buffer) (*http.Request, error) {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequest(method, s.baseURL+path, body)
	} else {
		req, err = http.NewRequest(method, s.baseURL+path, nil)
	}
	if err != nil {
		return nil, err
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	return req, nil
}

// Exists probes the key chain on the server
func (s *RemoteStore) Exists(keys []string) (string, error) {
	req, err := s.newRequest("GET", "/v1/cache?keys="+url.QueryEscape(strings.Join(keys, ",")), nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		// an unreachable cache server degrades to a cold cache
		log.Warningf("cache server unreachable, treating as miss: %v", err)
		return "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("cache server returned %s", resp.Status)
	}

	var result struct {
		Key string `json:"key"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return "", err
	}
	return result.Key, nil
}

// Restore downloads and extracts the best matching snapshot into dir
func (s *RemoteStore) Restore(keys []string, dir string) (string, error) {
	req, err := s.newRequest("GET", "/v1/cache/blob?keys="+url.QueryEscape(strings.Join(keys, ",")), nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		log.Warningf("cache server unreachable, treating as miss: %v", err)
		return "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("cache server returned %s", resp.Status)
	}

	hit := resp.Header.Get("X-Cache-Key")
	if err := extractArchive(resp.Body, dir); err != nil {
		log.Warningf("remote cache entry %s is corrupt, treating as miss: %v", hit, err)
		return "", nil
	}
	return hit, nil
}

// Save archives dir and uploads it under an exact key
func (s *RemoteStore) Save(key string, dir string) error {
	var buf bytes.Buffer
	if err := archiveDir(dir, &buf); err != nil {
		return err
	}

	req, err := s.newRequest("PUT", fmt.Sprintf("/v1/cache/blob/%s", url.PathEscape(key)), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/gzip")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "unable to upload cache key %s", key)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return errors.Errorf("cache server returned %s for key %s", resp.Status, key)
	}
	return nil
}

func decodeJSON(resp *http.Response, v interface{}) error {
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(v), "unable to decode cache server response")
}
