package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// PullRequest carries the information needed to open a pull or merge request.
type PullRequest struct {
	Title        string
	Description  string
	HeadBranch   string
	BaseBranch   string
	CloseOnMerge bool
	Rebase       bool
}

// Provider opens a pull request on one specific hosting service. Every
// implementation is a stateless one-shot HTTP call returning the provider's
// response document as-is.
type Provider interface {
	CreatePullRequest(ctx context.Context, pr PullRequest) (map[string]any, error)
}

// New returns the provider implementation for the given server identifier.
func New(gitServer, repository string) (Provider, error) {
	switch strings.ToLower(gitServer) {
	case "github":
		return &GitHub{Repository: repository}, nil
	case "gitlab":
		return &GitLab{Repository: repository}, nil
	case "bitbucket":
		return &Bitbucket{Repository: repository}, nil
	case "aws":
		return &CodeCommit{Repository: repository}, nil
	case "azure":
		return &AzureDevOps{Repository: repository}, nil
	default:
		return nil, fmt.Errorf("unsupported git_server: %s", gitServer)
	}
}

// postJSON performs a one-shot JSON POST and decodes the response document.
// Any non-2xx status is an error carrying the response body.
func postJSON(ctx context.Context, client *http.Client, url, authorization string, payload any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s returned %s: %s", url, resp.Status, strings.TrimSpace(string(data)))
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return doc, nil
}

func orDefault(base, fallback string) string {
	if base != "" {
		return base
	}
	return fallback
}
