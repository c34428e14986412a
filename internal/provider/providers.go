package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// Default API endpoints, overridable per instance for testing.
const (
	githubAPI     = "https://api.github.com"
	gitlabAPI     = "https://gitlab.com/api/v4"
	bitbucketAPI  = "https://api.bitbucket.org/2.0"
	codecommitAPI = "https://git-codecommit.us-east-1.amazonaws.com/v1"
	azureAPI      = "https://dev.azure.com"
)

// GitHub creates pull requests through the GitHub REST API. Repository is
// "owner/repo"; the token comes from GITHUB_TOKEN.
type GitHub struct {
	Repository string
	BaseURL    string
	Client     *http.Client
}

func (p *GitHub) CreatePullRequest(ctx context.Context, pr PullRequest) (map[string]any, error) {
	apiURL := fmt.Sprintf("%s/repos/%s/pulls", orDefault(p.BaseURL, githubAPI), p.Repository)
	payload := map[string]any{
		"title":                 pr.Title,
		"head":                  pr.HeadBranch,
		"base":                  pr.BaseBranch,
		"body":                  pr.Description,
		"maintainer_can_modify": true,
		"draft":                 false,
	}
	return postJSON(ctx, p.Client, apiURL, bearer(os.Getenv("GITHUB_TOKEN")), payload)
}

// GitLab creates merge requests through the GitLab REST API. Repository is
// the full project path; the token comes from GITLAB_TOKEN.
type GitLab struct {
	Repository string
	BaseURL    string
	Client     *http.Client
}

func (p *GitLab) CreatePullRequest(ctx context.Context, pr PullRequest) (map[string]any, error) {
	apiURL := fmt.Sprintf("%s/projects/%s/merge_requests",
		orDefault(p.BaseURL, gitlabAPI), url.PathEscape(p.Repository))
	payload := map[string]any{
		"title":                pr.Title,
		"source_branch":        pr.HeadBranch,
		"target_branch":        pr.BaseBranch,
		"description":          pr.Description,
		"remove_source_branch": pr.CloseOnMerge,
		"squash":               pr.Rebase,
	}
	return postJSON(ctx, p.Client, apiURL, bearer(os.Getenv("GITLAB_TOKEN")), payload)
}

// Bitbucket creates pull requests through the Bitbucket Cloud API. Repository
// is "workspace/repo_slug"; the token comes from BITBUCKET_TOKEN.
type Bitbucket struct {
	Repository string
	BaseURL    string
	Client     *http.Client
}

func (p *Bitbucket) CreatePullRequest(ctx context.Context, pr PullRequest) (map[string]any, error) {
	parts := strings.Split(p.Repository, "/")
	if len(parts) != 2 {
		return nil, fmt.Errorf("bitbucket repository must be workspace/repo_slug, got %q", p.Repository)
	}

	mergeStrategy := "merge_commit"
	if pr.Rebase {
		mergeStrategy = "squash"
	}
	apiURL := fmt.Sprintf("%s/repositories/%s/%s/pullrequests",
		orDefault(p.BaseURL, bitbucketAPI), parts[0], parts[1])
	payload := map[string]any{
		"title":               pr.Title,
		"source":              map[string]any{"branch": map[string]any{"name": pr.HeadBranch}},
		"destination":         map[string]any{"branch": map[string]any{"name": pr.BaseBranch}},
		"description":         pr.Description,
		"close_source_branch": pr.CloseOnMerge,
		"merge_strategy":      mergeStrategy,
	}
	return postJSON(ctx, p.Client, apiURL, bearer(os.Getenv("BITBUCKET_TOKEN")), payload)
}

// CodeCommit creates pull requests through the AWS CodeCommit API. The
// credentials come from AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY.
type CodeCommit struct {
	Repository string
	BaseURL    string
	Client     *http.Client
}

func (p *CodeCommit) CreatePullRequest(ctx context.Context, pr PullRequest) (map[string]any, error) {
	mergeStrategy := "THREE_WAY_MERGE"
	if pr.Rebase {
		mergeStrategy = "FAST_FORWARD_MERGE"
	}
	apiURL := fmt.Sprintf("%s/repos/%s/pull-requests", orDefault(p.BaseURL, codecommitAPI), p.Repository)
	payload := map[string]any{
		"title":                pr.Title,
		"sourceReference":      pr.HeadBranch,
		"destinationReference": pr.BaseBranch,
		"description":          pr.Description,
		"closeSourceBranch":    pr.CloseOnMerge,
		"mergeStrategy":        mergeStrategy,
	}
	auth := bearer(fmt.Sprintf("%s:%s", os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")))
	return postJSON(ctx, p.Client, apiURL, auth, payload)
}

// AzureDevOps creates pull requests through the Azure DevOps API. Repository
// is "organization/project/repo"; the token comes from AZURE_DEVOPS_TOKEN.
type AzureDevOps struct {
	Repository string
	BaseURL    string
	Client     *http.Client
}

func (p *AzureDevOps) CreatePullRequest(ctx context.Context, pr PullRequest) (map[string]any, error) {
	parts := strings.Split(p.Repository, "/")
	if len(parts) != 3 {
		return nil, fmt.Errorf("azure repository must be organization/project/repo, got %q", p.Repository)
	}

	apiURL := fmt.Sprintf("%s/%s/%s/_apis/git/repositories/%s/pullrequests?api-version=6.0",
		orDefault(p.BaseURL, azureAPI), parts[0], parts[1], parts[2])
	payload := map[string]any{
		"title":         pr.Title,
		"sourceRefName": "refs/heads/" + pr.HeadBranch,
		"targetRefName": "refs/heads/" + pr.BaseBranch,
		"description":   pr.Description,
		"completionOptions": map[string]any{
			"deleteSourceBranch": pr.CloseOnMerge,
			"squashMerge":        pr.Rebase,
		},
	}
	return postJSON(ctx, p.Client, apiURL, bearer(os.Getenv("AZURE_DEVOPS_TOKEN")), payload)
}

func bearer(token string) string {
	if token == "" {
		return ""
	}
	return "Bearer " + token
}
