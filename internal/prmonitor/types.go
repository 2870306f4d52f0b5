// Package prmonitor implements the PR monitor subsystem: a deterministic
// state machine wrapped in a blocking, cancellable polling loop that watches
// the life of a single pull request and drives an interactive decision loop
// around it for an LLM client.
package prmonitor

// TopLevelState is the primary state of a MonitorState.
type TopLevelState string

const (
	StateIdle                TopLevelState = "idle"
	StatePolling             TopLevelState = "polling"
	StateTerminalDetected    TopLevelState = "terminal_detected"
	StateAwaitingUser        TopLevelState = "awaiting_user"
	StateExecutingTask       TopLevelState = "executing_task"
	StateInvestigating       TopLevelState = "investigating"
	StateInvestigationResult TopLevelState = "investigation_results"
	StateApplyingFix         TopLevelState = "applying_fix"
	StateStopped             TopLevelState = "stopped"
)

// CommentSubFlow refines an AwaitingUser interaction around review comments.
type CommentSubFlow string

const (
	CommentFlowNone              CommentSubFlow = ""
	CommentFlowSingle            CommentSubFlow = "single_comment_prompt"
	CommentFlowMulti             CommentSubFlow = "multi_comment_prompt"
	CommentFlowAddressAllIterate CommentSubFlow = "address_all_iterating"
	CommentFlowPickComment       CommentSubFlow = "pick_comment"
	CommentFlowPickRemaining     CommentSubFlow = "pick_remaining"
)

// CIFailureSubFlow refines an AwaitingUser interaction around CI failures.
type CIFailureSubFlow string

const (
	CIFlowNone                 CIFailureSubFlow = ""
	CIFlowPrompt               CIFailureSubFlow = "ci_failure_prompt"
	CIFlowInvestigating        CIFailureSubFlow = "investigating"
	CIFlowInvestigationResults CIFailureSubFlow = "investigation_results"
)

// TerminalKind is a terminal condition surfaced by detectTerminal, in fixed
// priority order (highest first): a CI failure can never be masked by an
// approval.
type TerminalKind string

const (
	TerminalNewComment            TerminalKind = "new_comment"
	TerminalMergeConflict         TerminalKind = "merge_conflict"
	TerminalCiFailure             TerminalKind = "ci_failure"
	TerminalCiCancelled           TerminalKind = "ci_cancelled"
	TerminalApprovedCiGreen       TerminalKind = "approved_and_ci_green"
	TerminalCiPassedCommentsIgnored TerminalKind = "ci_passed_comments_pending"
)

// terminalPriority lists terminal kinds from highest to lowest priority.
// detectTerminal must honor this order exactly.
var terminalPriority = []TerminalKind{
	TerminalNewComment,
	TerminalMergeConflict,
	TerminalCiFailure,
	TerminalCiCancelled,
	TerminalApprovedCiGreen,
	TerminalCiPassedCommentsIgnored,
}

// Event names accepted by next_step.
const (
	EventReady                  = "ready"
	EventUserChose              = "user_chose"
	EventCommentAddressed       = "comment_addressed"
	EventInvestigationComplete = "investigation_complete"
	EventPushCompleted          = "push_completed"
	EventTaskComplete           = "task_complete"
)

// Choice tokens for the user_chose event.
const (
	ChoiceAddressAll       = "address_all"
	ChoiceAddressSpecific  = "address_specific"
	ChoiceAddress          = "address"
	ChoiceExplain          = "explain"
	ChoiceHandleMyself     = "handle_myself"
	ChoiceSkip             = "skip"
	ChoiceDone             = "done"
	ChoiceContinue         = "continue"
	ChoiceResume           = "resume"
	ChoiceInvestigate      = "investigate"
	ChoiceShowLogs         = "show_logs"
	ChoiceRerun            = "rerun"
	ChoiceRerunFailed      = "rerun_failed"
	ChoiceApplyFix         = "apply_fix"
	ChoiceIgnore           = "ignore"
	ChoiceRunNew           = "run_new"
	ChoiceMerge            = "merge"
	ChoiceMergeAdmin       = "merge_admin"
	ChoiceWaitForApprover  = "wait_for_approver"
	ChoiceResolve          = "resolve"
	ChoiceFollowUp         = "follow_up"
	ChoiceReSuggest        = "re_suggest"
	ChoiceGoBack           = "go_back"
)

// Task tokens used with the execute/auto_execute directive actions.
const (
	TaskAddressComment    = "address_comment"
	TaskExplainComment    = "explain_comment"
	TaskFollowUpComment   = "follow_up_comment"
	TaskReSuggestChange   = "re_suggest_change"
	TaskInvestigateCI     = "investigate_ci_failure"
	TaskApplyFix          = "apply_fix"
	TaskShowLogs          = "show_logs"
	TaskRerunViaBrowser   = "rerun_via_browser"
	TaskResolveThread     = "resolve_thread"
	TaskMergePR           = "merge_pr"
	TaskMergePRAdmin      = "merge_pr_admin"
	TaskRunNewBuild       = "run_new_build"
)

// Directive actions returned by next_step.
const (
	ActionAskUser     = "ask_user"
	ActionExecute     = "execute"
	ActionAutoExecute = "auto_execute"
	ActionPolling     = "polling"
	ActionStop        = "stop"
	ActionMerged      = "merged"
)

// IssueType values carried by investigation_complete data.
const (
	IssueTypeDuplicateArtifact = "duplicate_artifact"
)

// Trigger record tags, one-line content of the trigger file.
const (
	TriggerAction = "ACTION"
	TriggerExtend = "EXTEND"
)

// Log record type tags.
const (
	LogStatus   = "STATUS"
	LogTerminal = "TERMINAL"
	LogResuming = "RESUMING"
	LogPaused   = "PAUSED"
	LogStopped  = "STOPPED"
	LogError    = "ERROR"
)
