package blobstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
	"github.com/pershin-daniil/MeetingBoard/pkg/httpclient"
	"github.com/pershin-daniil/MeetingBoard/pkg/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

type GitHubConfig struct {
	APIURL     string
	Token      string
	Repository string
	Branch     string
	Timeout    time.Duration
}

// GitHub stores blobs as files of a repository branch through the contents
// API. The version token is the git blob sha.
type GitHub struct {
	log     *logrus.Entry
	client  *github.Client
	owner   string
	repo    string
	branch  string
	timeout time.Duration
	now     func() time.Time
}

func NewGitHub(log *logrus.Logger, cfg GitHubConfig) (*GitHub, error) {
	owner, repo, ok := strings.Cut(cfg.Repository, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return nil, fmt.Errorf("invalid repository %q: want owner/name", cfg.Repository)
	}
	// deadlines come from the request context, see withTimeout
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpclient.New(0))
	client := github.NewClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})))
	if cfg.APIURL != "" {
		baseURL, err := url.Parse(strings.TrimRight(cfg.APIURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL %q: %w", cfg.APIURL, err)
		}
		client.BaseURL = baseURL
	}
	return &GitHub{
		log:     log.WithField("component", "blobstore.github"),
		client:  client,
		owner:   owner,
		repo:    repo,
		branch:  cfg.Branch,
		timeout: cfg.Timeout,
		now:     time.Now,
	}, nil
}

func (g *GitHub) Get(ctx context.Context, path string) (Blob, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	opts := &github.RepositoryContentGetOptions{Ref: g.branch}
	file, dir, _, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, path, opts)
	switch {
	case statusOf(err) == http.StatusNotFound:
		return Blob{}, ErrNotFound
	case err != nil:
		return Blob{}, upstream("get", err)
	case file == nil:
		return Blob{}, fmt.Errorf("err getting %s: a directory of %d entries, not a file", path, len(dir))
	}

	// files above 1MB come without inline content
	if file.GetEncoding() == "none" || (file.Content == nil && file.GetSize() > 0) {
		content, _, err := g.client.Git.GetBlobRaw(ctx, g.owner, g.repo, file.GetSHA())
		if err != nil {
			return Blob{}, upstream("get blob", err)
		}
		return Blob{Content: content, Version: file.GetSHA()}, nil
	}
	content, err := file.GetContent()
	if err != nil {
		return Blob{}, fmt.Errorf("err decoding %s: %w", path, err)
	}
	return Blob{Content: []byte(content), Version: file.GetSHA()}, nil
}

func (g *GitHub) Put(ctx context.Context, path string, content []byte, version string) (string, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr(fmt.Sprintf("MeetingBoard at %s", g.now().UTC().Format(time.RFC3339))),
		Content: content,
	}
	if g.branch != "" {
		opts.Branch = github.Ptr(g.branch)
	}
	var res *github.RepositoryContentResponse
	var err error
	if version == "" {
		res, _, err = g.client.Repositories.CreateFile(ctx, g.owner, g.repo, path, opts)
	} else {
		opts.SHA = github.Ptr(version)
		res, _, err = g.client.Repositories.UpdateFile(ctx, g.owner, g.repo, path, opts)
	}
	// a create onto an existing file is refused with 422 as the sha is missing
	switch status := statusOf(err); {
	case status == http.StatusConflict, status == http.StatusUnprocessableEntity && version == "":
		return "", &ConflictError{Path: path, Expected: version}
	case err != nil:
		return "", upstream("put", err)
	}
	sha := res.GetContent().GetSHA()
	g.log.Debugf("pushed %s at %s", path, sha)
	return sha, nil
}

// statusOf returns the status of an API answer carried by err, 0 when err
// did not come from an answer.
func statusOf(err error) int {
	var apiErr *github.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		return apiErr.Response.StatusCode
	}
	return 0
}

// upstream keeps client errors as they are and reports server errors, rate
// limits and transport failures as an unavailable upstream.
func upstream(op string, err error) error {
	if status := statusOf(err); status != 0 && status < http.StatusInternalServerError {
		return fmt.Errorf("err github %s: %w", op, err)
	}
	return models.NewUpstreamError("github "+op, err)
}
