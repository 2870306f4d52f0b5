package prmonitor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// detectTerminal applies the fixed terminal-kind priority order. Before
// returning ApprovedCiGreen it verifies all checks are complete (no
// pending, no queued), requires at least one approval at head, and honors
// the needs-additional-approval gate. It returns CiPassedCommentsIgnored
// only when checks are green, at least one ignored-comment id exists, and
// the approval gate is not set.
func detectTerminal(s *MonitorState) (TerminalKind, bool) {
	agg := s.Aggregate

	if len(agg.Unresolved) > 0 {
		return TerminalNewComment, true
	}
	if agg.MergeConflict {
		return TerminalMergeConflict, true
	}
	if agg.Checks.Failed > 0 {
		return TerminalCiFailure, true
	}
	if agg.Checks.Cancelled > 0 {
		return TerminalCiCancelled, true
	}

	allComplete := agg.Checks.Pending == 0 && agg.Checks.Queued == 0
	if !allComplete {
		return "", false
	}

	if agg.ApprovalsAtHead > 0 && s.Policy.approvalGateSatisfied(agg.ApprovalsAtHead) {
		return TerminalApprovedCiGreen, true
	}
	if len(agg.IgnoredCommentIDs) > 0 && !s.Policy.NeedsAdditionalApproval {
		return TerminalCiPassedCommentsIgnored, true
	}
	return "", false
}

// buildTerminal mutates state into AwaitingUser for the given terminal kind
// and returns the fixed ask_user directive for it.
func buildTerminal(s *MonitorState, kind TerminalKind) Directive {
	k := kind
	s.LastTerminal = &k
	s.setTop(StateAwaitingUser)

	switch kind {
	case TerminalNewComment:
		if len(s.Aggregate.Unresolved) == 1 {
			s.Comment = CommentFlowSingle
			s.Aggregate.IterationIndex = 0
			return withContext(askUser("There is a new review comment on this PR.",
				"Address it", "Explain it", "Ignore it", "Skip for now"), s.Aggregate.Unresolved)
		}
		s.Comment = CommentFlowMulti
		return withContext(askUser(fmt.Sprintf("There are %d new review comments on this PR.", len(s.Aggregate.Unresolved)),
			"Address all", "Pick one", "Ignore all", "Skip for now"), s.Aggregate.Unresolved)

	case TerminalMergeConflict:
		return askUser("This PR has a merge conflict with its base branch.",
			"Resolve the conflict (rebase)", "Resume polling")

	case TerminalCiFailure:
		s.CI = CIFlowPrompt
		return withContext(askUser(fmt.Sprintf("%d check(s) failed.", s.Aggregate.Checks.Failed),
			"Investigate", "Show logs", "Re-run", "Handle it myself"), s.Aggregate.FailedChecks)

	case TerminalCiCancelled:
		return askUser("One or more checks were cancelled.", "Re-run", "Resume polling")

	case TerminalApprovedCiGreen:
		return askUser("All checks passed and the PR is approved.",
			"Merge the PR", "Merge as admin", "Wait for another approver", "Resume polling")

	case TerminalCiPassedCommentsIgnored:
		return askUser("Checks passed; some review comments remain ignored.",
			"Merge the PR", "Resume polling")
	}

	s.setTop(StatePolling)
	return polling("Resuming polling.")
}

// processEvent is the engine's total dispatch table: (state, event, choice,
// data) -> (state', directive). Every path writes the next top-level state
// before returning a directive other than polling.
func processEvent(s *MonitorState, event, choice string, data json.RawMessage) Directive {
	switch event {
	case EventReady:
		if s.Top == StateIdle || s.Top == StatePolling {
			s.setTop(StatePolling)
			return polling("Polling.")
		}
		return unexpectedPair(s)

	case EventUserChose:
		if s.Top != StateAwaitingUser {
			return unexpectedPair(s)
		}
		return handleUserChose(s, choice, data)

	case EventCommentAddressed:
		if s.Top != StateExecutingTask {
			return unexpectedPair(s)
		}
		return handleCommentAddressed(s)

	case EventInvestigationComplete:
		if s.Top != StateInvestigating {
			return unexpectedPair(s)
		}
		return handleInvestigationComplete(s, data)

	case EventPushCompleted:
		if s.Top != StateApplyingFix {
			return unexpectedPair(s)
		}
		s.setTop(StatePolling)
		return polling("Fix pushed; resuming polling.")

	case EventTaskComplete:
		switch s.Top {
		case StateExecutingTask:
			return handleTaskCompleteFromExecuting(s)
		case StateAwaitingUser:
			return handleTaskCompleteRecovery(s)
		default:
			return unexpectedPair(s)
		}
	}

	return unexpectedPair(s)
}

// unexpectedPair handles an unrecognized (state, event) pair: recoverable,
// never a hard error. It offers resume-or-stop.
func unexpectedPair(s *MonitorState) Directive {
	s.setTop(StateAwaitingUser)
	return askUser("Unexpected input for the current state. Resume polling, or stop monitoring this PR?",
		"Resume polling", "Stop monitoring")
}

// fallbackToPolling routes a choice that does not match any known token in
// the active context back to polling. Per spec.md §9, the one terminal
// choice with no downstream mapping ("Resolve the conflict (rebase)")
// falls here along with every other non-matching choice.
func fallbackToPolling(s *MonitorState) Directive {
	s.setTop(StatePolling)
	return polling("Resuming polling.")
}

func handleUserChose(s *MonitorState, choice string, data json.RawMessage) Directive {
	switch {
	case s.Comment != CommentFlowNone:
		return handleCommentChoice(s, choice)
	case s.CI != CIFlowNone:
		return handleCIChoice(s, choice)
	case s.Aggregate.ActiveWaitingComment != "":
		return handleWaitingCommentChoice(s, choice)
	default:
		return handleTerminalChoice(s, choice)
	}
}

func handleCommentChoice(s *MonitorState, choice string) Directive {
	switch s.Comment {
	case CommentFlowSingle:
		switch choice {
		case ChoiceAddress:
			s.Aggregate.ActiveWaitingComment = firstUnresolvedID(s)
			s.setTop(StateExecutingTask)
			return execute(TaskAddressComment)
		case ChoiceExplain:
			s.setTop(StateExecutingTask)
			return execute(TaskExplainComment)
		case ChoiceIgnore:
			if id := firstUnresolvedID(s); id != "" {
				s.Aggregate.ignoreComment(id)
			}
			return fallbackToPolling(s)
		case ChoiceSkip:
			return fallbackToPolling(s)
		default:
			return fallbackToPolling(s)
		}

	case CommentFlowMulti:
		switch choice {
		case ChoiceAddressAll:
			s.Comment = CommentFlowAddressAllIterate
			s.Aggregate.IterationIndex = 0
			return addressAllPrompt(s)
		case ChoiceAddressSpecific:
			s.Comment = CommentFlowPickComment
			return pickCommentPrompt(s)
		case ChoiceIgnore:
			for _, c := range s.Aggregate.Unresolved {
				s.Aggregate.ignoreComment(c.ThreadID)
			}
			return fallbackToPolling(s)
		case ChoiceSkip:
			return fallbackToPolling(s)
		default:
			return fallbackToPolling(s)
		}

	case CommentFlowAddressAllIterate:
		switch choice {
		case ChoiceContinue:
			return addressCurrentIterationComment(s)
		case ChoiceSkip:
			return advanceIteration(s)
		case ChoiceResume, ChoiceGoBack:
			s.Comment = CommentFlowNone
			return fallbackToPolling(s)
		default:
			return fallbackToPolling(s)
		}

	case CommentFlowPickComment:
		idx, ok := parseLeadingInt(choice)
		if !ok || idx < 1 || idx > len(s.Aggregate.Unresolved) {
			return fallbackToPolling(s)
		}
		c := s.Aggregate.Unresolved[idx-1]
		s.Aggregate.ActiveWaitingComment = c.ThreadID
		s.Comment = CommentFlowNone
		s.setTop(StateExecutingTask)
		return execute(TaskAddressComment)

	case CommentFlowPickRemaining:
		switch choice {
		case ChoiceAddressAll:
			s.Comment = CommentFlowAddressAllIterate
			return addressCurrentIterationComment(s)
		case ChoiceDone:
			s.Comment = CommentFlowNone
			return fallbackToPolling(s)
		default:
			return fallbackToPolling(s)
		}
	}
	return fallbackToPolling(s)
}

func handleCIChoice(s *MonitorState, choice string) Directive {
	switch s.CI {
	case CIFlowPrompt:
		switch choice {
		case ChoiceInvestigate:
			s.CI = CIFlowInvestigating
			s.setTop(StateInvestigating)
			return execute(TaskInvestigateCI)
		case ChoiceShowLogs:
			s.setTop(StateExecutingTask)
			return execute(TaskShowLogs)
		case ChoiceRerun, ChoiceRerunFailed:
			s.setTop(StateExecutingTask)
			return execute(TaskRerunViaBrowser)
		case ChoiceHandleMyself:
			s.CI = CIFlowNone
			return fallbackToPolling(s)
		default:
			return fallbackToPolling(s)
		}

	case CIFlowInvestigationResults:
		switch choice {
		case ChoiceApplyFix:
			s.setTop(StateApplyingFix)
			return execute(TaskApplyFix)
		case ChoiceIgnore:
			s.CI = CIFlowNone
			return fallbackToPolling(s)
		case ChoiceRerun, ChoiceRunNew:
			s.setTop(StateExecutingTask)
			return autoExecute(TaskRunNewBuild)
		case ChoiceHandleMyself:
			s.CI = CIFlowNone
			return fallbackToPolling(s)
		default:
			return fallbackToPolling(s)
		}
	}
	return fallbackToPolling(s)
}

// idleForWaitingComment reports whether the session is not already in the
// middle of some other interactive flow — the precondition for a pending
// ACTION trigger to short-circuit straight into the waiting-comment menu
// (spec.md §4.4 step 2).
func idleForWaitingComment(s *MonitorState) bool {
	return s.Top == StateIdle || s.Top == StatePolling
}

// buildWaitingCommentDirective mutates state into AwaitingUser for a
// reviewer thread the trigger watcher reported as waiting for a reply, and
// returns its ask_user directive. The paired handleWaitingCommentChoice
// resolves whichever of resolve/follow_up/re_suggest/go_back the LLM picks
// (spec.md §4.3 poll step 6, §4.4 step 2, scenario 5).
func buildWaitingCommentDirective(s *MonitorState, threadID string) Directive {
	s.Aggregate.ActiveWaitingComment = threadID
	s.setTop(StateAwaitingUser)
	return withContext(askUser("A reviewer replied on a comment thread that was waiting on them.",
		"Resolve", "Follow up", "Re-suggest a change", "Go back"),
		map[string]string{"thread_id": threadID})
}

func handleWaitingCommentChoice(s *MonitorState, choice string) Directive {
	switch choice {
	case ChoiceResolve:
		s.setTop(StateExecutingTask)
		return autoExecute(TaskResolveThread)
	case ChoiceFollowUp:
		s.setTop(StateExecutingTask)
		return execute(TaskFollowUpComment)
	case ChoiceReSuggest:
		s.setTop(StateExecutingTask)
		return execute(TaskReSuggestChange)
	case ChoiceGoBack:
		s.Aggregate.ActiveWaitingComment = ""
		return fallbackToPolling(s)
	default:
		return fallbackToPolling(s)
	}
}

func handleTerminalChoice(s *MonitorState, choice string) Directive {
	if s.LastTerminal == nil {
		return fallbackToPolling(s)
	}

	switch *s.LastTerminal {
	case TerminalApprovedCiGreen, TerminalCiPassedCommentsIgnored:
		switch choice {
		case ChoiceMerge:
			s.setTop(StateExecutingTask)
			return autoExecute(TaskMergePR)
		case ChoiceMergeAdmin:
			s.setTop(StateExecutingTask)
			return autoExecute(TaskMergePRAdmin)
		case ChoiceWaitForApprover:
			s.Policy.NeedsAdditionalApproval = true
			s.Policy.ApprovalCountAtGateSet = s.Aggregate.ApprovalsAtHead
			return fallbackToPolling(s)
		case ChoiceResume, ChoiceHandleMyself:
			return fallbackToPolling(s)
		default:
			return fallbackToPolling(s)
		}
	default:
		// Includes TerminalMergeConflict: the rebase choice has no mapping
		// (spec.md §9), so every choice here falls back to polling.
		return fallbackToPolling(s)
	}
}

// handleCommentAddressed is the auto-resolve step: remember the addressed
// comment as active-waiting, mark a resolve as in flight, and hand off to
// the Executor via an auto_execute directive.
func handleCommentAddressed(s *MonitorState) Directive {
	if len(s.Aggregate.Unresolved) == 0 {
		return fallbackToPolling(s)
	}

	id := s.Aggregate.ActiveWaitingComment
	if id == "" {
		id = s.Aggregate.Unresolved[0].ThreadID
	}
	s.Policy.PendingResolveAfterAddress = true
	s.Aggregate.ActiveWaitingComment = id
	return autoExecute(TaskResolveThread)
}

// handleTaskCompleteFromExecuting continues whichever comment flow was in
// progress after the Executor's resolve_thread call succeeds.
func handleTaskCompleteFromExecuting(s *MonitorState) Directive {
	s.Policy.PendingResolveAfterAddress = false
	resolvedID := s.Aggregate.ActiveWaitingComment
	s.Aggregate.ActiveWaitingComment = ""
	if resolvedID != "" {
		removeUnresolved(s, resolvedID)
	}

	if s.Comment == CommentFlowAddressAllIterate {
		return advanceIteration(s)
	}

	if len(s.Aggregate.Unresolved) > 0 {
		s.Comment = CommentFlowPickRemaining
		s.setTop(StateAwaitingUser)
		return askUser("Address the next comment, or handle the rest yourself?", "Address all", "I've got the rest")
	}
	s.Comment = CommentFlowNone
	return fallbackToPolling(s)
}

// handleTaskCompleteRecovery handles the LLM skipping a tool call: clear
// the active-waiting reference if set, otherwise resume polling.
func handleTaskCompleteRecovery(s *MonitorState) Directive {
	s.Aggregate.ActiveWaitingComment = ""
	s.Comment = CommentFlowNone
	s.CI = CIFlowNone
	return fallbackToPolling(s)
}

func handleInvestigationComplete(s *MonitorState, data json.RawMessage) Directive {
	var parsed struct {
		IssueType    string `json:"issue_type"`
		SuggestedFix string `json:"suggested_fix"`
		Findings     string `json:"findings"`
	}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &parsed) // parse failure silently ignored, per spec.md §7
	}

	s.Aggregate.LastInvestigation = Investigation{
		Findings:     parsed.Findings,
		SuggestedFix: parsed.SuggestedFix,
		IssueType:    parsed.IssueType,
	}
	s.CI = CIFlowInvestigationResults
	s.setTop(StateAwaitingUser)

	if parsed.IssueType == IssueTypeDuplicateArtifact {
		return askUser("This looks like a duplicate build artifact issue.",
			"Run a new build", "I'll handle it myself")
	}

	choices := make([]string, 0, 3)
	if parsed.SuggestedFix != "" {
		choices = append(choices, "Apply the suggested fix")
	}
	choices = append(choices, "Ignore", "Re-run")
	return askUser("Investigation complete.", choices...)
}

func addressAllPrompt(s *MonitorState) Directive {
	s.setTop(StateAwaitingUser)
	n := s.Aggregate.IterationIndex + 1
	total := len(s.Aggregate.Unresolved)
	return askUser(fmt.Sprintf("Address comment %d of %d?", n, total), "Continue", "Skip", "Resume polling")
}

func addressCurrentIterationComment(s *MonitorState) Directive {
	if s.Aggregate.IterationIndex >= len(s.Aggregate.Unresolved) {
		s.Comment = CommentFlowNone
		return fallbackToPolling(s)
	}
	c := s.Aggregate.Unresolved[s.Aggregate.IterationIndex]
	s.Aggregate.ActiveWaitingComment = c.ThreadID
	s.setTop(StateExecutingTask)
	return execute(TaskAddressComment)
}

func advanceIteration(s *MonitorState) Directive {
	s.Aggregate.IterationIndex++
	if s.Aggregate.IterationIndex >= len(s.Aggregate.Unresolved) {
		s.Comment = CommentFlowNone
		return fallbackToPolling(s)
	}
	return addressAllPrompt(s)
}

func pickCommentPrompt(s *MonitorState) Directive {
	s.setTop(StateAwaitingUser)
	choices := make([]string, 0, len(s.Aggregate.Unresolved))
	for i := range s.Aggregate.Unresolved {
		choices = append(choices, strconv.Itoa(i+1))
	}
	return askUser("Which comment would you like to address? Reply with its number.", choices...)
}

func firstUnresolvedID(s *MonitorState) string {
	if len(s.Aggregate.Unresolved) == 0 {
		return ""
	}
	return s.Aggregate.Unresolved[0].ThreadID
}

func removeUnresolved(s *MonitorState, threadID string) {
	out := s.Aggregate.Unresolved[:0]
	for _, c := range s.Aggregate.Unresolved {
		if c.ThreadID != threadID {
			out = append(out, c)
		}
	}
	s.Aggregate.Unresolved = out
}

// parseLeadingInt parses the leading integer of a numeric choice string
// such as "2" or "2 - fix the typo", per spec.md §4.2.
func parseLeadingInt(choice string) (int, bool) {
	choice = strings.TrimSpace(choice)
	end := 0
	for end < len(choice) && choice[end] >= '0' && choice[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(choice[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
