package prmonitor

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/alekspetrov/pr-monitor/internal/logging"
)

// Session is the supervisor for one monitored PR: it owns the state
// machine's mutable record, the trigger-file watcher, and the append-only
// status log. Its poll worker is NOT a background loop — per spec.md §4.3
// it runs only for the duration of one blocking runPollWorker call, owned
// by whichever next_step invocation observed a polling directive. Grounded
// on the teacher's poll-and-ticker idiom (formerly
// internal/adapters/github/poller.go), adapted from a perpetual multi-ticket
// poll to a single-PR, caller-blocking poll with an added filesystem wake
// channel.
type Session struct {
	ID       string
	State    *MonitorState
	Fetcher  Fetcher
	Executor Executor
	Config   *Config
	Log      *LogWriter

	ctx    context.Context
	cancel context.CancelFunc

	triggerMu      sync.Mutex
	triggerPending bool
	triggerContent string
	wake           chan struct{}

	pollMu     sync.Mutex
	pollCancel context.CancelFunc

	watcherDone chan struct{}
}

// NewSession wires a Session for id, ready for Start.
func NewSession(id Identity, cfg *Config, fetcher Fetcher, executor Executor, log *LogWriter) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:          id.MonitorID(),
		State:       NewMonitorState(id),
		Fetcher:     fetcher,
		Executor:    executor,
		Config:      cfg,
		Log:         log,
		ctx:         ctx,
		cancel:      cancel,
		wake:        make(chan struct{}, 1),
		watcherDone: make(chan struct{}),
	}
}

// Start launches the trigger watcher as a background goroutine. It runs
// until Stop cancels the session's context. The poll worker itself is not
// started here: it runs only inside next_step, once per polling directive
// (spec.md §4.3).
func (s *Session) Start() {
	go s.watchTrigger()
}

// Stop cancels the session's context — which also reaches any poll worker
// currently blocked inside next_step, since it derives its working context
// from this one — and waits for the trigger watcher to exit.
func (s *Session) Stop(reason string) {
	s.cancel()
	<-s.watcherDone
	s.State.Lock()
	s.State.setTop(StateStopped)
	s.State.Unlock()
	s.Log.WriteStopped(reason)
}

// storeTrigger records a drained trigger file's raw content in the single
// pending slot and wakes a sleeping poll worker early. Whichever of the
// poll worker (while sleeping) or next_step (while no worker is running)
// looks next is the one that drains it (spec.md §4.3).
func (s *Session) storeTrigger(content string) {
	s.triggerMu.Lock()
	s.triggerContent = content
	s.triggerPending = true
	s.triggerMu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// consumeTrigger drains the pending slot, returning its content and whether
// anything was pending.
func (s *Session) consumeTrigger() (string, bool) {
	s.triggerMu.Lock()
	defer s.triggerMu.Unlock()
	if !s.triggerPending {
		return "", false
	}
	content := s.triggerContent
	s.triggerContent = ""
	s.triggerPending = false
	return content, true
}

// interpretTrigger applies a drained trigger record's content, per spec.md
// §4.3 poll step 6. An EXTEND record extends after-hours and is absorbed
// without producing a directive. An ACTION record, when the session is
// otherwise idle, builds and returns the waiting-comment directive — the
// bool reports whether a directive is ready to hand back to next_step's
// caller. A bare record, or an ACTION arriving while some other flow is
// already active, is discarded.
func (s *Session) interpretTrigger(content string) (Directive, bool) {
	switch {
	case strings.HasPrefix(content, TriggerExtend):
		s.extendAfterHours()
		return Directive{}, false

	case strings.HasPrefix(content, TriggerAction):
		_, threadID, _ := strings.Cut(content, "|")
		threadID = strings.TrimSpace(threadID)

		s.State.Lock()
		defer s.State.Unlock()
		if !idleForWaitingComment(s.State) {
			return Directive{}, false
		}
		return buildWaitingCommentDirective(s.State, threadID), true

	default:
		return Directive{}, false
	}
}

// extendAfterHours adds two hours to the after-hours extension deadline,
// accumulating onto any existing deadline still in the future rather than
// overwriting it (spec.md §5, §6, and the GLOSSARY's trigger-record entry
// are unambiguous about both the duration and the accumulating semantics).
func (s *Session) extendAfterHours() {
	s.State.Lock()
	defer s.State.Unlock()

	base := time.Now()
	if s.State.Policy.AfterHoursExtensionUntil.After(base) {
		base = s.State.Policy.AfterHoursExtensionUntil
	}
	s.State.Policy.AfterHoursExtensionUntil = base.Add(2 * time.Hour)
}

// watchTrigger watches the session directory for writes to the trigger
// file and, after a settle delay to avoid reacting mid-write, reads and
// deletes it, storing its content for the next drain. Grounded on
// C360Studio-semspec's watcher.go debounce pattern (fsnotify is not in the
// teacher's own dependency set; added as the one enrichment the pack's
// file-watching example justifies — see DESIGN.md).
func (s *Session) watchTrigger() {
	defer close(s.watcherDone)

	id := s.State.Identity
	dir := filepath.Dir(id.TriggerPath())
	log := logging.WithComponent("prmonitor.session").With("monitor", s.ID)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Error("trigger watcher unavailable", "err", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		log.Error("trigger watcher add failed", "err", err, "dir", dir)
		return
	}

	var settle *time.Timer
	for {
		select {
		case <-s.ctx.Done():
			if settle != nil {
				settle.Stop()
			}
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(id.TriggerPath()) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if settle != nil {
				settle.Stop()
			}
			settle = time.AfterFunc(s.Config.TriggerSettleDelay, s.consumeTriggerFile)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn("trigger watcher error", "err", err)
		}
	}
}

// consumeTriggerFile reads and deletes the single-shot trigger file, then
// stores its content. A read error (file already gone, another consumer
// raced it) is swallowed: the next legitimate write will fire a fresh
// event.
func (s *Session) consumeTriggerFile() {
	content, err := readAndRemove(s.State.Identity.TriggerPath())
	if err != nil {
		return
	}
	s.storeTrigger(strings.TrimSpace(content))
}

// runPollWorker is the Session's poll worker. Per spec.md §4.3 it runs only
// when next_step observes a polling directive; per §4.4 step 6, a new call
// cancels and replaces any instance of itself still running (the Esc→resume
// flow), then blocks until the worker yields a terminal, merged, waiting-
// comment, or stopped directive — the sole long-blocking point in the
// subsystem (spec.md §5).
func (s *Session) runPollWorker(_ context.Context) Directive {
	s.pollMu.Lock()
	if s.pollCancel != nil {
		s.pollCancel()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.pollCancel = cancel
	s.pollMu.Unlock()
	defer cancel()

	log := logging.WithComponent("prmonitor.session").With("monitor", s.ID)

	heartbeat := time.NewTicker(s.Config.HeartbeatInterval)
	defer heartbeat.Stop()

	s.State.Lock()
	s.State.setTop(StatePolling)
	s.State.Unlock()
	s.Log.WriteResuming("starting poll worker")

	for {
		if ctx.Err() != nil {
			return stopped("Monitoring stopped.")
		}

		if d, done := s.pollOnce(ctx, log); done {
			return d
		}

		interval := s.nextInterval()
		timer := time.NewTimer(interval)

		select {
		case <-ctx.Done():
			timer.Stop()
			return stopped("Monitoring stopped.")
		case <-s.wake:
			timer.Stop()
			if content, ok := s.consumeTrigger(); ok {
				if d, handled := s.interpretTrigger(content); handled {
					return d
				}
			}
		case <-timer.C:
		case <-heartbeat.C:
			timer.Stop()
			s.Log.WriteStatus(s.State)
		}
	}
}

// pollOnce performs one fetch-classify-detect cycle. It returns a directive
// and true when the worker should stop and hand that directive back to its
// caller (a terminal condition was detected, or the PR merged); otherwise
// it returns false to keep polling.
func (s *Session) pollOnce(ctx context.Context, log *slog.Logger) (Directive, bool) {
	if ctx.Err() != nil {
		return stopped("Monitoring stopped."), true
	}

	id := s.State.Identity
	prInfo, err := s.Fetcher.FetchPRInfo(ctx, id.Owner, id.Repo, id.Number)
	if err != nil {
		log.Warn("fetch pr info failed", "err", err)
		return Directive{}, false
	}
	if prInfo.Merged {
		s.State.Lock()
		s.State.setTop(StateStopped)
		s.State.Unlock()
		s.Log.WriteTerminal(s.State, "merged")
		return merged("Pull request merged."), true
	}

	checks, failed, err := s.Fetcher.FetchCheckRuns(ctx, id.Owner, id.Repo, prInfo.HeadSHA)
	if err != nil {
		log.Warn("fetch check runs failed", "err", err)
		return Directive{}, false
	}
	approvals, stale, err := s.Fetcher.FetchReviews(ctx, id.Owner, id.Repo, id.Number, prInfo.HeadSHA)
	if err != nil {
		log.Warn("fetch reviews failed", "err", err)
		return Directive{}, false
	}
	unresolved, waiting, err := s.Fetcher.FetchUnresolvedComments(ctx, id.Owner, id.Repo, id.Number)
	if err != nil {
		log.Warn("fetch unresolved comments failed", "err", err)
		return Directive{}, false
	}

	s.State.Lock()
	s.State.Identity.HeadSHA = prInfo.HeadSHA
	s.State.Identity.HeadBranch = prInfo.HeadBranch
	s.State.Aggregate.Checks = checks
	s.State.Aggregate.FailedChecks = failed
	s.State.Aggregate.ApprovalsAtHead = approvals
	s.State.Aggregate.StaleApprovals = stale
	s.State.Aggregate.MergeConflict = prInfo.MergeableState == "dirty" || !prInfo.Mergeable
	s.State.Aggregate.Unresolved = filterIgnored(unresolved, s.State.Aggregate.IgnoredCommentIDs)
	s.State.Aggregate.WaitingForReply = waiting

	var directive *Directive
	if s.State.Top == StatePolling {
		if kind, ok := detectTerminal(s.State); ok {
			d := buildTerminal(s.State, kind)
			directive = &d
		}
	}
	s.State.Unlock()

	if directive != nil {
		s.Log.WriteTerminal(s.State, string(*s.State.LastTerminal))
		return *directive, true
	}
	s.Log.WriteStatus(s.State)
	return Directive{}, false
}

// nextInterval picks the adaptive poll interval, then clamps it to the
// after-hours window when applicable.
func (s *Session) nextInterval() time.Duration {
	s.State.Lock()
	checks := s.State.Aggregate.Checks
	extension := s.State.Policy.AfterHoursExtensionUntil
	s.State.Unlock()

	var base time.Duration
	switch {
	case checks.Total == 0:
		base = s.Config.PollIntervalNoChecks
	case checks.Pending > 0 || checks.Queued > 0:
		base = s.Config.PollIntervalChecksPending
	default:
		base = s.Config.PollIntervalChecksComplete
	}

	if time.Now().Before(extension) {
		return base
	}
	if until, ok := s.afterHoursSleep(); ok {
		if until > base {
			return until
		}
	}
	return base
}

// afterHoursSleep reports the duration to sleep until the next work-hours
// window opens, if the current moment falls outside it (weekends count as
// after-hours). The floor is AfterHoursMinSleep.
func (s *Session) afterHoursSleep() (time.Duration, bool) {
	now := time.Now()
	weekday := now.Weekday()
	hour := now.Hour()

	withinHours := hour >= s.Config.AfterHoursStartHour && hour < s.Config.AfterHoursEndHour
	withinWeek := weekday >= time.Monday && weekday <= time.Friday
	if withinHours && withinWeek {
		return 0, false
	}

	next := nextWindowStart(now, s.Config.AfterHoursStartHour)
	sleep := next.Sub(now)
	if sleep < s.Config.AfterHoursMinSleep {
		sleep = s.Config.AfterHoursMinSleep
	}
	return sleep, true
}

// nextWindowStart returns the next weekday occurrence of startHour:00
// strictly after now.
func nextWindowStart(now time.Time, startHour int) time.Time {
	candidate := time.Date(now.Year(), now.Month(), now.Day(), startHour, 0, 0, 0, now.Location())
	if !candidate.After(now) {
		candidate = candidate.Add(24 * time.Hour)
	}
	for candidate.Weekday() == time.Saturday || candidate.Weekday() == time.Sunday {
		candidate = candidate.Add(24 * time.Hour)
	}
	return candidate
}
