package prmonitor

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/alekspetrov/pr-monitor/internal/adapters/github"
	"github.com/alekspetrov/pr-monitor/internal/logging"
)

// ToolSurface is the subsystem's one entry point for an LLM client: start a
// monitor, drive it forward with next_step, and stop it. It owns the
// translation between the pure Transition Engine and the I/O the engine
// never performs itself (fetching, executing, logging, persisting the
// ignore list).
type ToolSurface struct {
	registry   *Registry
	cfg        *Config
	ghToken    string
	launchDash bool
}

// NewToolSurface builds a ToolSurface. ghToken authenticates the REST
// client the Executor uses for merge/build calls; the gh CLI itself
// authenticates from its own stored credentials, matching spec.md §4.1's
// Fetcher/Executor transport split.
func NewToolSurface(cfg *Config, ghToken string, launchDash bool) *ToolSurface {
	return &ToolSurface{registry: NewRegistry(), cfg: cfg, ghToken: ghToken, launchDash: launchDash}
}

// Start begins monitoring one PR: it loads any persisted ignore list,
// builds and registers a Session, launches its trigger watcher, and
// best-effort launches the external dashboard. It does not itself block on
// the poll worker — the transition to Polling happens here, but the
// worker only runs inside a subsequent NextStep call (spec.md §4.3).
func (t *ToolSurface) Start(owner, repo string, number int, sessionDir string) (Directive, error) {
	id := Identity{Owner: owner, Repo: repo, Number: number, SessionDir: sessionDir}

	if existing := t.registry.Get(id.MonitorID()); existing != nil {
		return polling("Already monitoring this PR."), nil
	}

	logWriter, err := NewLogWriter(id.LogPath())
	if err != nil {
		return Directive{}, fmt.Errorf("open log: %w", err)
	}

	fetcher := NewGHFetcher(t.cfg)
	client := github.NewClient(t.ghToken)
	executor := NewGHExecutor(fetcher, client)

	sess := NewSession(id, t.cfg, fetcher, executor, logWriter)

	ignored, err := loadIgnoreList(id.IgnoreListPath())
	if err != nil {
		logging.WithComponent("prmonitor.toolsurface").Warn("load ignore list failed", "err", err)
		ignored = make(map[string]bool)
	}
	sess.State.Aggregate.IgnoredCommentIDs = ignored

	t.registry.Put(sess)
	sess.Start()

	if t.launchDash {
		t.launchDashboard(sess)
	}

	return processEvent(sess.State, EventReady, "", nil), nil
}

// launchDashboard best-effort starts the configured external dashboard
// binary against this PR's log file, recording its PID for later cleanup.
// A failure here never blocks monitoring itself.
func (t *ToolSurface) launchDashboard(sess *Session) {
	log := logging.WithComponent("prmonitor.toolsurface")
	id := sess.State.Identity

	cmd := exec.Command(t.cfg.DashboardBinary, "monitor", "dashboard", "--log", id.LogPath())
	if err := cmd.Start(); err != nil {
		log.Warn("dashboard launch failed", "err", err)
		return
	}
	pid := fmt.Sprintf("%d\n", cmd.Process.Pid)
	if err := os.WriteFile(id.DashboardPIDPath(), []byte(pid), 0o644); err != nil {
		log.Warn("dashboard pid write failed", "err", err)
	}
	go cmd.Wait()
}

// NextStep is the subsystem's sole long-blocking call (spec.md §5). It
// first drains any pending trigger record and, if it is an ACTION arriving
// while the session is otherwise idle, short-circuits straight into the
// waiting-comment directive (spec.md §4.4 step 2). Otherwise it feeds the
// event through the Transition Engine, persists any ignore-list change the
// engine produced, performs any auto_execute directives in a loop, and —
// when the engine instead hands back a polling directive — cancels any
// previous poll worker, starts a new one, and blocks until it yields a
// terminal, merged, waiting-comment, or stopped directive (spec.md §4.3,
// §4.4 step 6).
func (t *ToolSurface) NextStep(ctx context.Context, monitorID, event, choice string, data []byte) (Directive, error) {
	sess := t.registry.Get(monitorID)
	if sess == nil {
		return Directive{}, fmt.Errorf("no active session for %s", monitorID)
	}

	if content, ok := sess.consumeTrigger(); ok {
		if d, handled := sess.interpretTrigger(content); handled {
			sess.Log.WriteStatus(sess.State)
			return d, nil
		}
	}

	sess.State.Lock()
	before := len(sess.State.Aggregate.IgnoredCommentIDs)
	d := processEvent(sess.State, event, choice, data)
	after := len(sess.State.Aggregate.IgnoredCommentIDs)
	ignored := cloneIgnored(sess.State.Aggregate.IgnoredCommentIDs)
	sess.State.Unlock()

	if after != before {
		if err := saveIgnoreList(sess.State.Identity.IgnoreListPath(), ignored); err != nil {
			logging.WithComponent("prmonitor.toolsurface").Warn("save ignore list failed", "err", err)
		}
	}

	for d.Action == ActionAutoExecute {
		d = t.runAutoExecute(ctx, sess, d)
	}

	if d.Action == ActionPolling {
		d = sess.runPollWorker(ctx)
	}

	if d.Action == ActionMerged {
		sess.Stop("merged")
		t.registry.Delete(monitorID)
	}

	sess.Log.WriteStatus(sess.State)
	return d, nil
}

// runAutoExecute performs the one deterministic mutation an auto_execute
// directive names, then feeds task_complete (success) or routes to an
// ask_user fallback (failure) back through the engine.
func (t *ToolSurface) runAutoExecute(ctx context.Context, sess *Session, d Directive) Directive {
	id := sess.State.Identity
	var err error

	switch d.Task {
	case TaskResolveThread:
		sess.State.Lock()
		threadID := sess.State.Aggregate.ActiveWaitingComment
		sess.State.Unlock()
		err = sess.Executor.ResolveThread(ctx, threadID)
	case TaskMergePR:
		err = sess.Executor.MergePR(ctx, id.Owner, id.Repo, id.Number, false)
	case TaskMergePRAdmin:
		err = sess.Executor.MergePR(ctx, id.Owner, id.Repo, id.Number, true)
	case TaskRunNewBuild:
		sess.State.Lock()
		branch, head := sess.State.Identity.HeadBranch, sess.State.Identity.HeadSHA
		sess.State.Unlock()
		err = sess.Executor.RunNewBuild(ctx, id.Owner, id.Repo, branch, head)
	default:
		err = fmt.Errorf("unknown auto_execute task %q", d.Task)
	}

	if err != nil {
		sess.Log.WriteError(err.Error())
		if d.Task == TaskMergePR || d.Task == TaskMergePRAdmin {
			return t.mergeFailureDirective(sess, err)
		}
		sess.State.Lock()
		sess.State.setTop(StateAwaitingUser)
		sess.State.Unlock()
		return askUser(fmt.Sprintf("That failed: %s. Resume polling or stop?", err), "Resume polling", "Stop monitoring")
	}

	if d.Task == TaskMergePR || d.Task == TaskMergePRAdmin {
		sess.State.Lock()
		sess.State.setTop(StateStopped)
		sess.State.Unlock()
		return merged("Pull request merged.")
	}

	sess.State.Lock()
	next := processEvent(sess.State, EventTaskComplete, "", nil)
	sess.State.Unlock()
	return next
}

// mergeFailureDirective distinguishes a branch-policy refusal (offer
// admin-merge / wait-for-approver) from any other merge failure, per
// spec.md §4.5.
func (t *ToolSurface) mergeFailureDirective(sess *Session, err error) Directive {
	sess.State.Lock()
	sess.State.setTop(StateAwaitingUser)
	sess.State.Unlock()

	if isBranchPolicyFailure(err) {
		return askUser("The merge was refused by branch protection.",
			"Merge as admin", "Wait for another approver", "Resume polling")
	}
	return askUser(fmt.Sprintf("Merge failed: %s.", err), "Resume polling", "Handle it myself")
}

// Stop ends a session: cancels its background loops and removes it from
// the registry.
func (t *ToolSurface) Stop(monitorID string) (Directive, error) {
	sess := t.registry.Get(monitorID)
	if sess == nil {
		return Directive{}, fmt.Errorf("no active session for %s", monitorID)
	}
	sess.Stop("stopped by request")
	t.registry.Delete(monitorID)
	return stopped("Monitoring stopped."), nil
}

func cloneIgnored(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
