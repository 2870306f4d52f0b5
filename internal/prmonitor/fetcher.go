package prmonitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/alekspetrov/pr-monitor/internal/adapters/github"
	"github.com/alekspetrov/pr-monitor/internal/logging"
)

// PRInfo is the canonical record returned by fetchPrInfo.
type PRInfo struct {
	Title          string
	HeadSHA        string
	HeadBranch     string
	URL            string
	Author         string
	Mergeable      bool
	MergeableState string
	Merged         bool
}

// Fetcher reduces noisy upstream data to the canonical records the
// Transition Engine consumes. Every operation may fail with a transport
// error; callers log it and retry on the next poll, per spec.md §4.1/§7.
type Fetcher interface {
	FetchPRInfo(ctx context.Context, owner, repo string, number int) (*PRInfo, error)
	FetchCheckRuns(ctx context.Context, owner, repo, sha string) (CheckCounts, []FailedCheck, error)
	FetchReviews(ctx context.Context, owner, repo string, number int, headSHA string) (approvals, stale int, err error)
	FetchUnresolvedComments(ctx context.Context, owner, repo string, number int) (unresolved, waiting []UnresolvedComment, err error)
	ResolveThread(ctx context.Context, threadID string) error
	FetchCurrentUser(ctx context.Context) (string, error)
}

// ghRunner abstracts invocation of the gh CLI so tests can inject a fake
// shim instead of shelling out, mirroring internal/orchestrator/bridge.go's
// injectable interpreter path.
type ghRunner interface {
	run(ctx context.Context, args ...string) ([]byte, error)
}

// execGHRunner shells out to the real gh CLI. A single wrapper captures
// both standard streams, waits for exit, and classifies a non-zero exit as
// a fetch error; it never interprets arguments through a shell.
type execGHRunner struct{}

func (execGHRunner) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "gh", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("gh %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// GHFetcher is the default Fetcher: a thin subprocess wrapper around the
// gh CLI, decoding JSON into the teacher's internal/adapters/github types.
type GHFetcher struct {
	cfg    *Config
	runner ghRunner
}

// NewGHFetcher builds a Fetcher backed by the real gh CLI.
func NewGHFetcher(cfg *Config) *GHFetcher {
	return &GHFetcher{cfg: cfg, runner: execGHRunner{}}
}

func (f *GHFetcher) repoArg(owner, repo string) string {
	return fmt.Sprintf("%s/%s", owner, repo)
}

// FetchPRInfo returns title, head identifier, head branch, URL, author,
// mergeable boolean, mergeable-state string, merged flag.
func (f *GHFetcher) FetchPRInfo(ctx context.Context, owner, repo string, number int) (*PRInfo, error) {
	out, err := f.runner.run(ctx, "pr", "view", fmt.Sprintf("%d", number),
		"--repo", f.repoArg(owner, repo),
		"--json", "title,headRefOid,headRefName,url,author,mergeable,mergeStateStatus,state")
	if err != nil {
		return nil, err
	}

	var body struct {
		Title          string `json:"title"`
		HeadRefOid     string `json:"headRefOid"`
		HeadRefName    string `json:"headRefName"`
		URL            string `json:"url"`
		Author         struct {
			Login string `json:"login"`
		} `json:"author"`
		Mergeable      string `json:"mergeable"`
		MergeStateStatus string `json:"mergeStateStatus"`
		State          string `json:"state"`
	}
	if err := json.Unmarshal(out, &body); err != nil {
		return nil, fmt.Errorf("parse pr view: %w", err)
	}

	return &PRInfo{
		Title:          body.Title,
		HeadSHA:        body.HeadRefOid,
		HeadBranch:     body.HeadRefName,
		URL:            body.URL,
		Author:         body.Author.Login,
		Mergeable:      body.Mergeable == "MERGEABLE",
		MergeableState: body.MergeStateStatus,
		Merged:         body.State == "MERGED",
	}, nil
}

// maxFailedCheckTitleLength is the declared size an output-title is
// truncated to before it is attached to a directive's context, per
// spec.md §4.1.
const maxFailedCheckTitleLength = 140

// truncateTitle shortens s to maxFailedCheckTitleLength runes, per
// spec.md §4.1's "output-title (truncated to its declared size)".
func truncateTitle(s string) string {
	r := []rune(s)
	if len(r) <= maxFailedCheckTitleLength {
		return s
	}
	return string(r[:maxFailedCheckTitleLength])
}

// FetchCheckRuns merges the modern check-runs API and the legacy commit
// status API into one count record plus a failure list, per spec.md §4.1's
// classification rules (grounded on the teacher's
// internal/autopilot/ci_monitor.go aggregateStatus/mapCheckStatus logic).
func (f *GHFetcher) FetchCheckRuns(ctx context.Context, owner, repo, sha string) (CheckCounts, []FailedCheck, error) {
	var counts CheckCounts
	var failed []FailedCheck
	seen := make(map[string]bool)

	checkRunsOut, err := f.runner.run(ctx, "api", fmt.Sprintf("repos/%s/%s/commits/%s/check-runs", owner, repo, sha))
	if err != nil {
		return counts, nil, err
	}
	var checkRuns github.CheckRunsResponse
	if err := json.Unmarshal(checkRunsOut, &checkRuns); err != nil {
		return counts, nil, fmt.Errorf("parse check-runs: %w", err)
	}

	for _, run := range checkRuns.CheckRuns {
		key := strings.ToLower(run.Name)
		if seen[key] || f.cfg.isNoiseCheck(run.Name) {
			continue
		}
		seen[key] = true
		counts.Total++

		switch {
		case run.Status == github.CheckRunQueued:
			counts.Queued++
		case run.Status == github.CheckRunInProgress:
			counts.Pending++
		case run.Conclusion == github.ConclusionSuccess || run.Conclusion == github.ConclusionSkipped || run.Conclusion == github.ConclusionNeutral:
			counts.Passed++
		case run.Conclusion == github.ConclusionFailure || run.Conclusion == github.ConclusionTimedOut:
			counts.Failed++
			failed = append(failed, FailedCheck{
				Name:        run.Name,
				Conclusion:  run.Conclusion,
				OutputTitle: truncateTitle(run.Output.Title),
				DetailsURL:  run.HTMLURL,
				ExternalID:  run.ExternalID,
			})
		case run.Conclusion == github.ConclusionCancelled:
			counts.Cancelled++
		}
	}

	statusOut, err := f.runner.run(ctx, "api", fmt.Sprintf("repos/%s/%s/commits/%s/status", owner, repo, sha))
	if err != nil {
		return counts, nil, err
	}
	var combined github.CombinedStatus
	if err := json.Unmarshal(statusOut, &combined); err != nil {
		return counts, nil, fmt.Errorf("parse combined status: %w", err)
	}
	for _, status := range combined.Statuses {
		key := strings.ToLower(status.Context)
		if seen[key] || f.cfg.isNoiseCheck(status.Context) {
			continue
		}
		seen[key] = true
		counts.Total++

		switch status.State {
		case github.StatusPending:
			counts.Pending++
		case github.StatusSuccess:
			counts.Passed++
		case github.StatusFailure, github.StatusError:
			counts.Failed++
			failed = append(failed, FailedCheck{Name: status.Context, Conclusion: status.State, DetailsURL: status.TargetURL})
		}
	}

	return counts, failed, nil
}

// FetchReviews retrieves reviews, drops CI-bot logins (the AI reviewer
// login is explicitly kept), keeps the chronologically last review per
// user, and classifies APPROVED reviews at the current head as approvals
// and otherwise as stale approvals.
func (f *GHFetcher) FetchReviews(ctx context.Context, owner, repo string, number int, headSHA string) (approvals, stale int, err error) {
	out, runErr := f.runner.run(ctx, "api", fmt.Sprintf("repos/%s/%s/pulls/%d/reviews", owner, repo, number))
	if runErr != nil {
		return 0, 0, runErr
	}

	var reviews []struct {
		User struct {
			Login string `json:"login"`
		} `json:"user"`
		State       string `json:"state"`
		CommitID    string `json:"commit_id"`
		SubmittedAt time.Time `json:"submitted_at"`
	}
	if err := json.Unmarshal(out, &reviews); err != nil {
		return 0, 0, fmt.Errorf("parse reviews: %w", err)
	}

	type latest struct {
		state    string
		commitID string
	}
	byUser := make(map[string]latest)
	order := make(map[string]time.Time)
	for _, r := range reviews {
		if f.cfg.isCIBot(r.User.Login) {
			continue
		}
		if prev, ok := order[r.User.Login]; ok && r.SubmittedAt.Before(prev) {
			continue
		}
		byUser[r.User.Login] = latest{state: r.State, commitID: r.CommitID}
		order[r.User.Login] = r.SubmittedAt
	}

	for _, rv := range byUser {
		if rv.state != github.ReviewStateApproved {
			continue
		}
		if rv.commitID == headSHA {
			approvals++
		} else {
			stale++
		}
	}
	return approvals, stale, nil
}

// FetchUnresolvedComments retrieves review threads, drops resolved threads
// and threads whose first comment author is a CI bot, and classifies each
// remaining thread as waiting-for-reply or needs-action.
func (f *GHFetcher) FetchUnresolvedComments(ctx context.Context, owner, repo string, number int) (unresolved, waiting []UnresolvedComment, err error) {
	query := `query($owner:String!,$repo:String!,$number:Int!){
		repository(owner:$owner,name:$repo){
			pullRequest(number:$number){
				reviewThreads(first:100){
					nodes{
						id
						isResolved
						comments(first:100){ nodes{ author{login} } }
					}
				}
			}
		}
	}`

	out, runErr := f.runner.run(ctx, "api", "graphql",
		"-f", "query="+query,
		"-f", fmt.Sprintf("owner=%s", owner),
		"-f", fmt.Sprintf("repo=%s", repo),
		"-F", fmt.Sprintf("number=%d", number))
	if runErr != nil {
		return nil, nil, runErr
	}

	var body struct {
		Data struct {
			Repository struct {
				PullRequest struct {
					ReviewThreads struct {
						Nodes []struct {
							ID         string `json:"id"`
							IsResolved bool   `json:"isResolved"`
							Comments   struct {
								Nodes []struct {
									Author struct {
										Login string `json:"login"`
									} `json:"author"`
								} `json:"nodes"`
							} `json:"comments"`
						} `json:"nodes"`
					} `json:"reviewThreads"`
				} `json:"pullRequest"`
			} `json:"repository"`
		} `json:"data"`
	}
	if err := json.Unmarshal(out, &body); err != nil {
		return nil, nil, fmt.Errorf("parse review threads: %w", err)
	}

	prAuthor, err := f.prAuthorLogin(ctx, owner, repo, number)
	if err != nil {
		return nil, nil, err
	}

	for _, thread := range body.Data.Repository.PullRequest.ReviewThreads.Nodes {
		if thread.IsResolved {
			continue
		}
		comments := thread.Comments.Nodes
		if len(comments) == 0 {
			continue
		}
		if f.cfg.isCIBot(comments[0].Author.Login) {
			continue
		}

		last := comments[len(comments)-1].Author.Login
		c := UnresolvedComment{ThreadID: thread.ID}
		if len(comments) >= 2 && last == prAuthor {
			c.WaitingForReply = true
			waiting = append(waiting, c)
		} else {
			unresolved = append(unresolved, c)
		}
	}
	return unresolved, waiting, nil
}

func (f *GHFetcher) prAuthorLogin(ctx context.Context, owner, repo string, number int) (string, error) {
	out, err := f.runner.run(ctx, "pr", "view", fmt.Sprintf("%d", number), "--repo", f.repoArg(owner, repo), "--json", "author")
	if err != nil {
		return "", err
	}
	var body struct {
		Author struct {
			Login string `json:"login"`
		} `json:"author"`
	}
	if err := json.Unmarshal(out, &body); err != nil {
		return "", fmt.Errorf("parse pr author: %w", err)
	}
	return body.Author.Login, nil
}

// ResolveThread performs one graph mutation with at most one silent retry
// after a one-second back-off, per spec.md §4.1.
func (f *GHFetcher) ResolveThread(ctx context.Context, threadID string) error {
	mutation := `mutation($id:ID!){ resolveReviewThread(input:{threadId:$id}){ thread{id} } }`
	_, err := f.runner.run(ctx, "api", "graphql", "-f", "query="+mutation, "-f", fmt.Sprintf("id=%s", threadID))
	if err == nil {
		return nil
	}

	logging.WithComponent("prmonitor.fetcher").Warn("resolveThread failed, retrying once", "thread", threadID, "err", err)
	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}
	_, err = f.runner.run(ctx, "api", "graphql", "-f", "query="+mutation, "-f", fmt.Sprintf("id=%s", threadID))
	return err
}

// FetchCurrentUser returns the login of the authenticated session.
func (f *GHFetcher) FetchCurrentUser(ctx context.Context) (string, error) {
	out, err := f.runner.run(ctx, "api", "user", "--jq", ".login")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
