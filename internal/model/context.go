package model

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// EventType is the kind of source event that triggered a run
type EventType string

const (
	EventPush        EventType = "push"
	EventTagPush     EventType = "tag"
	EventPullRequest EventType = "pull_request"
)

// RunContext holds the immutable per-run facts consulted by run conditions
// and the release predicate. It is created once at run start and read-only
// thereafter.
type RunContext struct {
	RunID           string
	Repository      string
	Ref             string
	Event           EventType
	ForkPR          bool
	RefIsReleaseTag bool
	Env             map[string]string
}

// NewRunContext builds a RunContext from the triggering event. The tag
// pattern is anchored against the short ref name (refs/tags/ stripped).
func NewRunContext(repository, ref string, event EventType, forkPR bool, tagPattern string, env map[string]string) (RunContext, error) {
	switch event {
	case EventPush, EventTagPush, EventPullRequest:
	default:
		return RunContext{}, fmt.Errorf("unknown event type: %s", event)
	}

	isReleaseTag := false
	if event == EventTagPush && tagPattern != "" {
		// Grouped so alternation patterns stay fully anchored.
		re, err := regexp.Compile("^(?:" + tagPattern + ")$")
		if err != nil {
			return RunContext{}, fmt.Errorf("invalid tag pattern %q: %w", tagPattern, err)
		}
		isReleaseTag = re.MatchString(TagName(ref))
	}

	snapshot := make(map[string]string, len(env))
	for k, v := range env {
		snapshot[k] = v
	}

	return RunContext{
		RunID:           uuid.NewString(),
		Repository:      repository,
		Ref:             ref,
		Event:           event,
		ForkPR:          forkPR,
		RefIsReleaseTag: isReleaseTag,
		Env:             snapshot,
	}, nil
}

// TagName strips the refs/tags/ prefix from a ref, if present.
func TagName(ref string) string {
	return strings.TrimPrefix(ref, "refs/tags/")
}

// RunCondition is the closed set of scheduling predicates a job may carry.
// The zero value means "on-success".
type RunCondition string

const (
	// CondOnSuccess schedules the job only when every predecessor
	// succeeded; a failed, cancelled or skipped predecessor skips the job,
	// so skips cascade down the dependency chain.
	CondOnSuccess RunCondition = "on-success"
	// CondAlways schedules the job regardless of predecessor outcomes.
	CondAlways RunCondition = "always"
	// CondTagPush schedules the job only for release-tag pushes.
	CondTagPush RunCondition = "tag-push"
	// CondNonForkPR schedules the job only for pull requests originating
	// from the repository itself.
	CondNonForkPR RunCondition = "non-fork-pr"
)

// Valid reports whether the condition is one of the known variants.
func (c RunCondition) Valid() bool {
	switch c {
	case "", CondOnSuccess, CondAlways, CondTagPush, CondNonForkPR:
		return true
	}
	return false
}

// Met evaluates the condition against the run context and the terminal
// outcomes of the job's predecessors.
func (c RunCondition) Met(rc RunContext, predecessors []Status) bool {
	switch c {
	case CondAlways:
		return true
	case CondTagPush:
		return rc.RefIsReleaseTag && allSucceeded(predecessors)
	case CondNonForkPR:
		return rc.Event == EventPullRequest && !rc.ForkPR && allSucceeded(predecessors)
	default: // on-success
		return allSucceeded(predecessors)
	}
}

func allSucceeded(statuses []Status) bool {
	for _, s := range statuses {
		if s != StatusSucceeded {
			return false
		}
	}
	return true
}
