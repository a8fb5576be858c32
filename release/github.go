package release

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const defaultAPIURL = "https://api.github.com"

// GitHubPublisher creates a release through the GitHub REST API and uploads
// every asset to it
type GitHubPublisher struct {
	Repo   string // owner/name
	Token  string
	APIURL string // overridable for tests
	client *http.Client
}

// NewGitHubPublisher creates a publisher for the given repository
func NewGitHubPublisher(repo string, token string) (*GitHubPublisher, error) {
	if len(strings.Split(repo, "/")) != 2 {
		return nil, errors.Errorf("invalid repository '%s', expected owner/name", repo)
	}
	if token == "" {
		return nil, errors.New("a GitHub token is required to publish a release")
	}
	return &GitHubPublisher{
		Repo:   repo,
		Token:  token,
		APIURL: defaultAPIURL,
		client: &http.Client{},
	}, nil
}

type createReleaseRequest struct {
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
	Body    string `json:"body"`
	Draft   bool   `json:"draft"`
}

type createReleaseResponse struct {
	ID        int64  `json:"id"`
	UploadURL string `json:"upload_url"`
}

// Publish creates the release then uploads each asset. Asset uploads are
// best-effort per file: one failed upload is logged and the rest still go up.
func (p *GitHubPublisher) Publish(ctx context.Context, release Release) error {
	created, err := p.createRelease(ctx, release)
	if err != nil {
		return err
	}
	log.Infof("created release %s on %s", release.Tag, p.Repo)

	for _, asset := range release.Assets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.uploadAsset(ctx, created, asset); err != nil {
			log.Warningf("unable to upload %s: %v", filepath.Base(asset), err)
			continue
		}
		log.Infof("uploaded %s", filepath.Base(asset))
	}
	return nil
}

func (p *GitHubPublisher) createRelease(ctx context.Context, release Release) (*createReleaseResponse, error) {
	payload, err := json.Marshal(createReleaseRequest{
		TagName: release.Tag,
		Name:    release.Title,
		Body:    release.Body,
		Draft:   release.Draft,
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/repos/%s/releases", p.APIURL, p.Repo)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	p.setHeaders(req, "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create release %s", release.Tag)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, errors.Errorf("unable to create release %s: %s", release.Tag, resp.Status)
	}

	var created createReleaseResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, errors.Wrap(err, "unable to decode release response")
	}
	return &created, nil
}

func (p *GitHubPublisher) uploadAsset(ctx context.Context, created *createReleaseResponse, asset string) error {
	f, err := os.Open(asset)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}

	// upload_url is a URI template, e.g. ".../assets{?name,label}"
	uploadURL := created.UploadURL
	if i := strings.Index(uploadURL, "{"); i >= 0 {
		uploadURL = uploadURL[:i]
	}
	uploadURL = fmt.Sprintf("%s?name=%s", uploadURL, url.QueryEscape(filepath.Base(asset)))

	req, err := http.NewRequestWithContext(ctx, "POST", uploadURL, f)
	if err != nil {
		return err
	}
	contentType := mime.TypeByExtension(filepath.Ext(asset))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	p.setHeaders(req, contentType)
	req.ContentLength = fi.Size()

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return errors.Errorf("upload returned %s", resp.Status)
	}
	return nil
}

func (p *GitHubPublisher) setHeaders(req *http.Request, contentType string) {
	req.Header.Set("Authorization", "Bearer "+p.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", contentType)
}
