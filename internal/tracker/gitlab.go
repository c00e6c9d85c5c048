package tracker

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"forgeflow.app/engine/core/config"
	"forgeflow.app/engine/internal/model"
	gitlab "gitlab.com/gitlab-org/api/client-go"
)

type gitLabTracker struct {
	client       *gitlab.Client
	projectID    int64
	targetBranch string
	repo         string
}

// NewGitLab creates a Tracker backed by a single GitLab project.
func NewGitLab(cfg config.GitLabConfig) (Tracker, error) {
	client, err := newClient(cfg.BaseURL, cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}

	return &gitLabTracker{
		client:       client,
		projectID:    cfg.ProjectID,
		targetBranch: cfg.TargetBranch,
		repo:         fmt.Sprintf("gitlab:%d", cfg.ProjectID),
	}, nil
}

func newClient(baseURL, token string) (*gitlab.Client, error) {
	if baseURL == "" {
		return gitlab.NewClient(token)
	}
	apiURL := strings.TrimSuffix(baseURL, "/") + "/api/v4"
	return gitlab.NewClient(token, gitlab.WithBaseURL(apiURL))
}

func (t *gitLabTracker) ListOpenItems(ctx context.Context) ([]model.WorkItem, error) {
	opts := &gitlab.ListProjectIssuesOptions{
		State:   gitlab.Ptr("opened"),
		OrderBy: gitlab.Ptr("created_at"),
		Sort:    gitlab.Ptr("asc"),
		ListOptions: gitlab.ListOptions{
			PerPage: 100,
		},
	}

	var items []model.WorkItem
	for {
		issues, resp, err := t.client.Issues.ListProjectIssues(t.projectID, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("listing issues from gitlab: %w", err)
		}
		for _, issue := range issues {
			if issue == nil {
				continue
			}
			items = append(items, *t.mapToItem(issue))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return items, nil
}

func (t *gitLabTracker) GetItem(ctx context.Context, id int64) (*model.WorkItem, error) {
	issue, resp, err := t.client.Issues.GetIssue(t.projectID, id, nil, gitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching issue from gitlab: %w", err)
	}
	return t.mapToItem(issue), nil
}

func (t *gitLabTracker) SetLabel(ctx context.Context, id int64, label string) error {
	_, _, err := t.client.Issues.UpdateIssue(t.projectID, id, &gitlab.UpdateIssueOptions{
		AddLabels: &gitlab.LabelOptions{label},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("adding label %q: %w", label, err)
	}
	return nil
}

func (t *gitLabTracker) ReplaceLabel(ctx context.Context, id int64, oldLabel, newLabel string) error {
	_, _, err := t.client.Issues.UpdateIssue(t.projectID, id, &gitlab.UpdateIssueOptions{
		RemoveLabels: &gitlab.LabelOptions{oldLabel},
		AddLabels:    &gitlab.LabelOptions{newLabel},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("replacing label %q with %q: %w", oldLabel, newLabel, err)
	}
	return nil
}

func (t *gitLabTracker) AddComment(ctx context.Context, id int64, body string) error {
	_, _, err := t.client.Notes.CreateIssueNote(t.projectID, id, &gitlab.CreateIssueNoteOptions{
		Body: gitlab.Ptr(body),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("creating note: %w", err)
	}
	return nil
}

func (t *gitLabTracker) CloseItem(ctx context.Context, id int64) error {
	_, _, err := t.client.Issues.UpdateIssue(t.projectID, id, &gitlab.UpdateIssueOptions{
		StateEvent: gitlab.Ptr("close"),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("closing issue: %w", err)
	}
	return nil
}

func (t *gitLabTracker) CreateChange(ctx context.Context, params CreateChangeParams) (*model.ChangeRequest, error) {
	mr, _, err := t.client.MergeRequests.CreateMergeRequest(t.projectID, &gitlab.CreateMergeRequestOptions{
		Title:              gitlab.Ptr(params.Title),
		Description:        gitlab.Ptr(params.Body),
		SourceBranch:       gitlab.Ptr(params.Branch),
		TargetBranch:       gitlab.Ptr(t.targetBranch),
		RemoveSourceBranch: gitlab.Ptr(true),
		Squash:             gitlab.Ptr(true),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("creating merge request: %w", err)
	}
	return mapToChange(mr), nil
}

func (t *gitLabTracker) GetChange(ctx context.Context, changeID int64) (*model.ChangeRequest, error) {
	mr, resp, err := t.client.MergeRequests.GetMergeRequest(t.projectID, changeID, nil, gitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching merge request: %w", err)
	}
	return mapToChange(mr), nil
}

func (t *gitLabTracker) MergeChange(ctx context.Context, changeID int64, commitTitle string) error {
	_, _, err := t.client.MergeRequests.AcceptMergeRequest(t.projectID, changeID, &gitlab.AcceptMergeRequestOptions{
		Squash:                   gitlab.Ptr(true),
		SquashCommitMessage:      gitlab.Ptr(commitTitle),
		ShouldRemoveSourceBranch: gitlab.Ptr(true),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("accepting merge request: %w", err)
	}
	return nil
}

func (t *gitLabTracker) CheckStatus(ctx context.Context, changeID int64) (model.CheckStatus, error) {
	mr, _, err := t.client.MergeRequests.GetMergeRequest(t.projectID, changeID, nil, gitlab.WithContext(ctx))
	if err != nil {
		return model.CheckPending, fmt.Errorf("fetching merge request: %w", err)
	}
	if mr.HeadPipeline == nil {
		return model.CheckPending, nil
	}
	return MapPipelineStatus(mr.HeadPipeline.Status), nil
}

// MapPipelineStatus classifies a GitLab pipeline status into the tri-state
// check signal. Anything that is not a definitive pass or fail counts as
// pending, including transitional states like "running" and "created".
func MapPipelineStatus(status string) model.CheckStatus {
	switch status {
	case "success":
		return model.CheckSuccess
	case "failed":
		return model.CheckFailure
	default:
		return model.CheckPending
	}
}

func (t *gitLabTracker) mapToItem(issue *gitlab.Issue) *model.WorkItem {
	labels := make([]string, 0, len(issue.Labels))
	labels = append(labels, issue.Labels...)

	closed := issue.State == "closed"

	item := &model.WorkItem{
		ID:     int64(issue.IID),
		Title:  issue.Title,
		Body:   issue.Description,
		Labels: labels,
		State:  model.StateFromLabels(labels, closed),
		Repo:   t.repo,
		Closed: closed,
	}
	if issue.WebURL != "" {
		item.WebURL = &issue.WebURL
	}
	return item
}

func mapToChange(mr *gitlab.MergeRequest) *model.ChangeRequest {
	change := &model.ChangeRequest{
		ID:        int64(mr.IID),
		Branch:    mr.SourceBranch,
		Mergeable: mr.DetailedMergeStatus == "mergeable",
		Unstable:  mr.HasConflicts,
	}
	if mr.WebURL != "" {
		change.WebURL = &mr.WebURL
	}
	return change
}
