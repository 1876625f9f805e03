package git

import (
	"bufio"
	"fmt"
	"strings"
	"time"
)

// ActionTrailer prefixes every action line in a commit message.
const ActionTrailer = "VP-Action: "

// Action tags of commits created by history operations.
const (
	ActionUndo     = "undo"
	ActionRollback = "rollback"
	// HistoryActionType is the pseudo entity type of undo and rollback tags.
	HistoryActionType = "versionpress"
)

// Author identifies the committer of history operations.
type Author struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// FileChange is one path touched by a commit. Status is the git status
// letter (A, M, D, R...).
type FileChange struct {
	Status string `json:"status"`
	Path   string `json:"path"`
}

// Action is one entity change recorded in a commit message.
type Action struct {
	EntityType string `json:"entity_type"`
	Action     string `json:"action"`
	VpID       string `json:"vp_id"`
}

func (a Action) String() string {
	return a.EntityType + "/" + a.Action + "/" + a.VpID
}

// Tag returns the "<type>/<action>" part used by ignore policies.
func (a Action) Tag() string {
	return a.EntityType + "/" + a.Action
}

// ParseAction parses "<type>/<action>/<vpId>". The vpId may be empty.
func ParseAction(s string) (Action, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Action{}, fmt.Errorf("malformed action %q", s)
	}
	a := Action{EntityType: parts[0], Action: parts[1]}
	if len(parts) == 3 {
		a.VpID = parts[2]
	}
	return a, nil
}

// Commit is a single commit of the repository log.
type Commit struct {
	Hash    string       `json:"hash"`
	Author  string       `json:"author"`
	Email   string       `json:"email"`
	Date    time.Time    `json:"date"`
	Message string       `json:"message"`
	Files   []FileChange `json:"files,omitempty"`
}

// Subject returns the first line of the message.
func (c Commit) Subject() string {
	subject, _, _ := strings.Cut(c.Message, "\n")
	return strings.TrimSpace(subject)
}

// Actions returns the actions recorded in the message trailers. Malformed
// trailers are skipped.
func (c Commit) Actions() []Action {
	var out []Action
	sc := bufio.NewScanner(strings.NewReader(c.Message))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, ActionTrailer) {
			continue
		}
		a, err := ParseAction(strings.TrimPrefix(line, ActionTrailer))
		if err != nil {
			continue
		}
		out = append(out, a)
	}
	return out
}

// FormatMessage builds a commit message from a subject and action trailers.
func FormatMessage(subject string, actions ...Action) string {
	var b strings.Builder
	b.WriteString(subject)
	if len(actions) > 0 {
		b.WriteString("\n\n")
		for _, a := range actions {
			b.WriteString(ActionTrailer)
			b.WriteString(a.String())
			b.WriteString("\n")
		}
	}
	return b.String()
}

// UndoAction tags a commit that reverted hash.
func UndoAction(hash string) Action {
	return Action{EntityType: HistoryActionType, Action: ActionUndo, VpID: hash}
}

// RollbackAction tags a commit that rolled back to hash.
func RollbackAction(hash string) Action {
	return Action{EntityType: HistoryActionType, Action: ActionRollback, VpID: hash}
}
