package prmonitor

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"
)

// Identity groups the immutable facts about the monitored PR.
type Identity struct {
	Owner          string
	Repo           string
	Number         int
	Title          string
	URL            string
	Author         string
	HeadSHA        string
	HeadBranch     string
	SessionDir     string
}

// LogPath is the append-only status log the external dashboard tails.
func (id Identity) LogPath() string {
	return filepath.Join(id.SessionDir, fmt.Sprintf("pr-monitor-%d.log", id.Number))
}

// TriggerPath is the single-shot trigger file written by the dashboard.
func (id Identity) TriggerPath() string {
	return filepath.Join(id.SessionDir, fmt.Sprintf("pr-monitor-%d.trigger", id.Number))
}

// DebugLogPath is the per-session debug log file.
func (id Identity) DebugLogPath() string {
	return filepath.Join(id.SessionDir, fmt.Sprintf("pr-monitor-%d.debug.log", id.Number))
}

// IgnoreListPath is the whole-file-replacement ignore-list persistence file.
func (id Identity) IgnoreListPath() string {
	return filepath.Join(id.SessionDir, fmt.Sprintf("pr-monitor-%d.ignore-comments", id.Number))
}

// DashboardPIDPath records the PID of a best-effort-launched dashboard.
func (id Identity) DashboardPIDPath() string {
	return filepath.Join(id.SessionDir, fmt.Sprintf("pr-monitor-%d.log.viewer.pid", id.Number))
}

// MonitorID is the key under which this PR's session is registered:
// "<owner>/<repo>#<number>".
func (id Identity) MonitorID() string {
	return fmt.Sprintf("%s/%s#%d", id.Owner, id.Repo, id.Number)
}

// CheckCounts aggregates classified CI check states for the current head.
type CheckCounts struct {
	Passed    int
	Failed    int
	Pending   int
	Queued    int
	Cancelled int
	Total     int
}

// FailedCheck describes one failed check run for presentation to the human.
type FailedCheck struct {
	Name       string
	Conclusion string
	OutputTitle string
	DetailsURL string
	ExternalID string
}

// UnresolvedComment is a review thread requiring attention.
type UnresolvedComment struct {
	ThreadID       string
	WaitingForReply bool
}

// Investigation holds the LLM's findings about a CI failure.
type Investigation struct {
	Findings     string
	SuggestedFix string
	IssueType    string
}

// Aggregate groups the fetched, classified platform status.
type Aggregate struct {
	Checks                CheckCounts
	ApprovalsAtHead        int
	StaleApprovals         int
	MergeConflict          bool
	Unresolved             []UnresolvedComment
	WaitingForReply        []UnresolvedComment
	IgnoredCommentIDs      map[string]bool
	IterationIndex         int
	ActiveWaitingComment   string
	FailedChecks           []FailedCheck
	LastInvestigation      Investigation
}

// Policy groups timing and policy flags.
type Policy struct {
	PollCount                  int
	LastPollAt                 time.Time
	AfterHoursExtensionUntil   time.Time
	NeedsAdditionalApproval    bool
	ApprovalCountAtGateSet     int
	PendingResolveAfterAddress bool
}

// MonitorState is the mutable record for one monitored PR. It is
// single-writer: mutated only by the owning session's next_step, poll loop,
// and auto-execute code paths, all serialized by the session's mutex.
type MonitorState struct {
	mu sync.Mutex

	Identity Identity
	Top      TopLevelState
	Comment  CommentSubFlow
	CI       CIFailureSubFlow
	LastTerminal *TerminalKind

	Aggregate Aggregate
	Policy    Policy
}

// NewMonitorState builds the initial state for a freshly started session.
func NewMonitorState(id Identity) *MonitorState {
	return &MonitorState{
		Identity: id,
		Top:      StateIdle,
		Comment:  CommentFlowNone,
		CI:       CIFlowNone,
		Aggregate: Aggregate{
			IgnoredCommentIDs: make(map[string]bool),
		},
	}
}

// Lock/Unlock expose the state's mutex so the session supervisor can
// serialize next_step, the poll worker, and the auto-execute path through
// a single critical section without exposing the mutex type itself.
func (s *MonitorState) Lock()   { s.mu.Lock() }
func (s *MonitorState) Unlock() { s.mu.Unlock() }

// resetSubFlows clears both sub-flow states. Called on any transition to
// Polling or Stopped, per the invariant that sub-flows are meaningful only
// in the top-level states that named them.
func (s *MonitorState) resetSubFlows() {
	s.Comment = CommentFlowNone
	s.CI = CIFlowNone
}

// setTop transitions the top-level state, resetting sub-flows when entering
// Polling or Stopped.
func (s *MonitorState) setTop(next TopLevelState) {
	s.Top = next
	if next == StatePolling || next == StateStopped {
		s.resetSubFlows()
	}
}

// isApproval reports whether an approval count satisfies the
// needs-additional-approval gate: the gate only blocks ApprovedCiGreen while
// set, and only until the approval count strictly exceeds the count
// captured at the moment a merge was refused.
func (p Policy) approvalGateSatisfied(currentApprovals int) bool {
	if !p.NeedsAdditionalApproval {
		return true
	}
	return currentApprovals > p.ApprovalCountAtGateSet
}

// ignoreComment adds a comment identifier to the write-only-grows ignore
// set. Callers persist the ignore-list file after calling this.
func (a *Aggregate) ignoreComment(id string) {
	if a.IgnoredCommentIDs == nil {
		a.IgnoredCommentIDs = make(map[string]bool)
	}
	a.IgnoredCommentIDs[id] = true
}

// filterIgnored returns the subset of comments whose thread id is not in
// the ignore set.
func filterIgnored(comments []UnresolvedComment, ignored map[string]bool) []UnresolvedComment {
	out := make([]UnresolvedComment, 0, len(comments))
	for _, c := range comments {
		if ignored[c.ThreadID] {
			continue
		}
		out = append(out, c)
	}
	return out
}
