package github

// PullRequest represents a GitHub pull request.
type PullRequest struct {
	ID             int64  `json:"id"`
	Number         int    `json:"number"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	State          string `json:"state"`
	Merged         bool   `json:"merged"`
	Mergeable      *bool  `json:"mergeable"`
	MergeableState string `json:"mergeable_state"`
	Draft          bool   `json:"draft"`
	Head           PRRef  `json:"head"`
	Base           PRRef  `json:"base"`
	User           User   `json:"user"`
	HTMLURL        string `json:"html_url"`
}

// PRRef identifies a branch and commit for one side of a pull request.
type PRRef struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// PullRequestInput is the payload for creating a pull request.
type PullRequestInput struct {
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
	Head  string `json:"head"`
	Base  string `json:"base"`
	Draft bool   `json:"draft,omitempty"`
}

// PRComment is a comment on a pull request's issue thread.
type PRComment struct {
	ID      int64  `json:"id"`
	Body    string `json:"body"`
	User    User   `json:"user"`
	HTMLURL string `json:"html_url"`
}

// Merge methods accepted by MergePullRequest.
const (
	MergeMethodMerge  = "merge"
	MergeMethodSquash = "squash"
	MergeMethodRebase = "rebase"
)

// Commit status states (classic Statuses API).
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusError   = "error"
)

// CommitStatus is a single entry in the classic commit status API.
type CommitStatus struct {
	ID          int64  `json:"id"`
	State       string `json:"state"`
	Context     string `json:"context"`
	Description string `json:"description,omitempty"`
	TargetURL   string `json:"target_url,omitempty"`
}

// CombinedStatus aggregates all commit statuses for a single SHA.
type CombinedStatus struct {
	State      string         `json:"state"`
	SHA        string         `json:"sha"`
	TotalCount int            `json:"total_count"`
	Statuses   []CommitStatus `json:"statuses"`
}

// Check run states and conclusions (Checks API).
const (
	CheckRunQueued     = "queued"
	CheckRunInProgress = "in_progress"
	CheckRunCompleted  = "completed"

	ConclusionSuccess   = "success"
	ConclusionFailure   = "failure"
	ConclusionCancelled = "cancelled"
	ConclusionTimedOut  = "timed_out"
	ConclusionSkipped   = "skipped"
	ConclusionNeutral   = "neutral"
)

// CheckRun is a single entry from the GitHub Checks API.
type CheckRun struct {
	ID         int64          `json:"id,omitempty"`
	Name       string         `json:"name"`
	Status     string         `json:"status"`
	Conclusion string         `json:"conclusion,omitempty"`
	HTMLURL    string         `json:"html_url,omitempty"`
	ExternalID string         `json:"external_id,omitempty"`
	Output     CheckRunOutput `json:"output"`
}

// CheckRunOutput carries the check's own summary of its result.
type CheckRunOutput struct {
	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`
}

// CheckRunsResponse wraps a list of check runs for a commit.
type CheckRunsResponse struct {
	TotalCount int        `json:"total_count"`
	CheckRuns  []CheckRun `json:"check_runs"`
}

// Pull request review states and events.
const (
	ReviewStateApproved         = "APPROVED"
	ReviewStateChangesRequested = "CHANGES_REQUESTED"
	ReviewStateCommented        = "COMMENTED"
	ReviewStateDismissed        = "DISMISSED"
	ReviewStatePending          = "PENDING"

	ReviewEventApprove = "APPROVE"
)

// PullRequestReview is a single review on a pull request.
type PullRequestReview struct {
	ID    int64  `json:"id"`
	User  User   `json:"user"`
	State string `json:"state"`
	Body  string `json:"body,omitempty"`
}

// Branch is a repository branch and its tip commit.
type Branch struct {
	Name   string       `json:"name"`
	Commit BranchCommit `json:"commit"`
}

// BranchCommit identifies a branch's tip commit SHA.
type BranchCommit struct {
	SHA string `json:"sha"`
}

// Commit is a single commit as returned by the pulls/compare APIs.
type Commit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name string `json:"name"`
		} `json:"author"`
	} `json:"commit"`
}

// Tag is a lightweight or annotated repository tag.
type Tag struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// ReleaseInput is the payload for creating a release.
type ReleaseInput struct {
	TagName         string `json:"tag_name"`
	Name            string `json:"name,omitempty"`
	Body            string `json:"body,omitempty"`
	Draft           bool   `json:"draft,omitempty"`
	Prerelease      bool   `json:"prerelease,omitempty"`
	TargetCommitish string `json:"target_commitish,omitempty"`
}

// Release is a published (or draft) GitHub release.
type Release struct {
	ID      int64  `json:"id"`
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
	Body    string `json:"body"`
	Draft   bool   `json:"draft"`
	HTMLURL string `json:"html_url"`
}

// GitCommit is a git commit object from the Git Data API, trimmed to the
// fields needed to replay a tree onto a new commit.
type GitCommit struct {
	SHA    string     `json:"sha"`
	Tree   GitTreeRef `json:"tree"`
	Parents []GitTreeRef `json:"parents,omitempty"`
}

// GitTreeRef identifies a tree or parent commit by SHA.
type GitTreeRef struct {
	SHA string `json:"sha"`
}

// CreateCommitInput is the payload for creating a git commit object that
// reuses an existing tree (used to push an empty commit).
type CreateCommitInput struct {
	Message string       `json:"message"`
	Tree    string        `json:"tree"`
	Parents []string      `json:"parents"`
}
