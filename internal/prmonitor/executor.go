package prmonitor

import (
	"context"
	"fmt"
	"strings"

	"github.com/alekspetrov/pr-monitor/internal/adapters/github"
)

// Executor performs deterministic, no-LLM platform mutations: resolve a
// thread, merge (normal/admin), or push an empty commit to trigger a fresh
// build. Every call happens in response to an auto_execute directive; the
// Transition Engine never calls it directly.
type Executor interface {
	ResolveThread(ctx context.Context, threadID string) error
	MergePR(ctx context.Context, owner, repo string, number int, admin bool) error
	RunNewBuild(ctx context.Context, owner, repo, branch, headSHA string) error
}

// GHExecutor is the default Executor. Thread resolution reuses the
// Fetcher's gh-CLI-backed GraphQL mutation (spec.md frames both as the
// shell helper); merge and empty-commit calls use the teacher's REST
// client directly, since shaping those as `gh` CLI flags brings no benefit
// over a typed request (see SPEC_FULL.md §4.5).
type GHExecutor struct {
	fetcher Fetcher
	client  *github.Client
}

// NewGHExecutor builds an Executor backed by fetcher (for thread
// resolution) and a github.Client (for merge/build calls).
func NewGHExecutor(fetcher Fetcher, client *github.Client) *GHExecutor {
	return &GHExecutor{fetcher: fetcher, client: client}
}

func (e *GHExecutor) ResolveThread(ctx context.Context, threadID string) error {
	return e.fetcher.ResolveThread(ctx, threadID)
}

// MergePR squash-merges the PR. GitHub's merge endpoint itself has no
// separate "admin" mode; a caller with bypass rights succeeds on a branch
// otherwise blocked by required reviews, so merge_pr and merge_pr_admin
// both call MergePullRequest and differ only in how the Transition Engine
// reached this call (see spec.md §4.5).
func (e *GHExecutor) MergePR(ctx context.Context, owner, repo string, number int, admin bool) error {
	err := e.client.MergePullRequest(ctx, owner, repo, number, github.MergeMethodSquash, "")
	if err != nil && isBranchPolicyFailure(err) {
		return fmt.Errorf("branch policy: %w", err)
	}
	return err
}

// isBranchPolicyFailure distinguishes a merge refused by branch protection
// (offer admin-merge / wait-for-another-approver) from any other failure
// (offer resume / handle-myself), per spec.md §4.5.
func isBranchPolicyFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "required") || strings.Contains(msg, "protected") || strings.Contains(msg, "review")
}

// RunNewBuild pushes an empty commit to the head branch: read the current
// commit's tree identifier, create a new commit with the same tree and the
// current head as parent, then update the branch reference.
func (e *GHExecutor) RunNewBuild(ctx context.Context, owner, repo, branch, headSHA string) error {
	current, err := e.client.GetCommit(ctx, owner, repo, headSHA)
	if err != nil {
		return fmt.Errorf("get head commit: %w", err)
	}

	newCommit, err := e.client.CreateCommit(ctx, owner, repo, &github.CreateCommitInput{
		Message: "Trigger rebuild (empty commit)",
		Tree:    current.Tree.SHA,
		Parents: []string{headSHA},
	})
	if err != nil {
		return fmt.Errorf("create commit: %w", err)
	}

	if err := e.client.UpdateRef(ctx, owner, repo, branch, newCommit.SHA); err != nil {
		return fmt.Errorf("update ref: %w", err)
	}
	return nil
}
