package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrDirtyWorkingTree is returned when a mutation requires a clean tree.
	ErrDirtyWorkingTree = errors.New("working tree has uncommitted changes")
	// ErrRevertConflict is returned when a revert does not apply cleanly.
	ErrRevertConflict = errors.New("revert conflicts with later changes")
	// ErrUnknownCommit is returned for hashes not present in the history.
	ErrUnknownCommit = errors.New("unknown commit")
)

// GitMutationError reports a failed git operation that changes the tree.
type GitMutationError struct {
	Op  string
	Err error
}

func (e *GitMutationError) Error() string {
	return fmt.Sprintf("git %s: %v", e.Op, e.Err)
}

func (e *GitMutationError) Unwrap() error {
	return e.Err
}

// Repository is the git history of the entity storage.
type Repository interface {
	Init(ctx context.Context) error
	Dir() string
	Log(ctx context.Context, revRange string) ([]Commit, error)
	Commit(ctx context.Context, hash string) (*Commit, error)
	ChangedFiles(ctx context.Context, hash string) ([]FileChange, error)
	IsClean(ctx context.Context) (bool, error)
	Revert(ctx context.Context, hashes ...string) error
	Discard(ctx context.Context) error
	Reset(ctx context.Context, hash string) error
	Restore(ctx context.Context, hash string) error
	CommitAll(ctx context.Context, message string, author Author) (string, error)
	HasStagedChanges(ctx context.Context) (bool, error)
	LastCommitHash(ctx context.Context) (string, error)
	Order(ctx context.Context, hashes []string) ([]string, error)
}

// CLIRepository implements Repository with the git executable.
type CLIRepository struct {
	dir string
}

// NewCLIRepository creates a repository rooted at dir.
func NewCLIRepository(dir string) *CLIRepository {
	return &CLIRepository{dir: dir}
}

// Dir returns the working tree directory.
func (r *CLIRepository) Dir() string {
	return r.dir
}

// runGit executes a git command in the working tree.
func (r *CLIRepository) runGit(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s failed: %w\nstderr: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Init creates the repository if the directory is not one yet.
func (r *CLIRepository) Init(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(r.dir, ".git")); err == nil {
		return nil
	}
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("failed to create repository directory: %w", err)
	}
	if _, err := r.runGit(ctx, "init"); err != nil {
		return fmt.Errorf("failed to initialize git repository: %w", err)
	}
	return nil
}

// resolve returns the full hash of a commit or ErrUnknownCommit.
func (r *CLIRepository) resolve(ctx context.Context, rev string) (string, error) {
	if strings.HasPrefix(rev, "-") {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommit, rev)
	}
	out, err := r.runGit(ctx, "rev-parse", "--verify", "--quiet", rev+"^{commit}")
	if err != nil || out == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommit, rev)
	}
	return out, nil
}

// LastCommitHash returns HEAD, or "" for a repository without commits.
func (r *CLIRepository) LastCommitHash(ctx context.Context) (string, error) {
	out, err := r.runGit(ctx, "rev-parse", "--verify", "--quiet", "HEAD")
	if err != nil {
		return "", nil
	}
	return out, nil
}

const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
	logFormat = "--format=%H" + fieldSep + "%an" + fieldSep + "%ae" + fieldSep + "%aI" + fieldSep + "%B" + recordSep
)

// Log lists commits of revRange (default HEAD), newest first, without files.
func (r *CLIRepository) Log(ctx context.Context, revRange string) ([]Commit, error) {
	head, err := r.LastCommitHash(ctx)
	if err != nil || head == "" {
		return nil, err
	}
	if revRange == "" {
		revRange = "HEAD"
	}
	if strings.HasPrefix(revRange, "-") {
		return nil, fmt.Errorf("invalid revision range %q", revRange)
	}
	out, err := r.runGit(ctx, "log", logFormat, revRange, "--")
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	return parseLog(out)
}

func parseLog(out string) ([]Commit, error) {
	var commits []Commit
	for _, record := range strings.Split(out, recordSep) {
		record = strings.Trim(record, "\n")
		if record == "" {
			continue
		}
		parts := strings.SplitN(record, fieldSep, 5)
		if len(parts) != 5 {
			return nil, fmt.Errorf("unexpected log record %q", record)
		}
		date, err := time.Parse(time.RFC3339, parts[3])
		if err != nil {
			return nil, fmt.Errorf("invalid commit date %q: %w", parts[3], err)
		}
		commits = append(commits, Commit{
			Hash:    parts[0],
			Author:  parts[1],
			Email:   parts[2],
			Date:    date,
			Message: strings.TrimRight(parts[4], "\n"),
		})
	}
	return commits, nil
}

// Commit returns a commit with its changed files.
func (r *CLIRepository) Commit(ctx context.Context, hash string) (*Commit, error) {
	full, err := r.resolve(ctx, hash)
	if err != nil {
		return nil, err
	}
	out, err := r.runGit(ctx, "log", "-1", logFormat, full, "--")
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", hash, err)
	}
	commits, err := parseLog(out)
	if err != nil {
		return nil, err
	}
	if len(commits) != 1 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommit, hash)
	}
	c := commits[0]
	if c.Files, err = r.ChangedFiles(ctx, full); err != nil {
		return nil, err
	}
	return &c, nil
}

// ChangedFiles lists the paths a commit touched relative to its first parent.
func (r *CLIRepository) ChangedFiles(ctx context.Context, hash string) ([]FileChange, error) {
	full, err := r.resolve(ctx, hash)
	if err != nil {
		return nil, err
	}
	out, err := r.runGit(ctx, "diff-tree", "--no-commit-id", "--name-status", "-r", "-z", "--root", "--no-renames", full)
	if err != nil {
		return nil, fmt.Errorf("failed to list files of %s: %w", hash, err)
	}

	fields := strings.Split(strings.Trim(out, "\x00"), "\x00")
	var changes []FileChange
	for i := 0; i+1 < len(fields); i += 2 {
		changes = append(changes, FileChange{Status: fields[i], Path: fields[i+1]})
	}
	return changes, nil
}

// IsClean reports whether the working tree and index match HEAD.
func (r *CLIRepository) IsClean(ctx context.Context) (bool, error) {
	out, err := r.runGit(ctx, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("failed to read status: %w", err)
	}
	return out == "", nil
}

// Revert applies the inverse of the given commits, in the given order,
// to the working tree without committing. On conflict the revert is aborted
// and the tree is left as it was.
func (r *CLIRepository) Revert(ctx context.Context, hashes ...string) error {
	if len(hashes) == 0 {
		return nil
	}
	clean, err := r.IsClean(ctx)
	if err != nil {
		return &GitMutationError{Op: "revert", Err: err}
	}
	if !clean {
		return &GitMutationError{Op: "revert", Err: ErrDirtyWorkingTree}
	}

	args := []string{"revert", "--no-commit", "--no-edit"}
	for _, h := range hashes {
		full, err := r.resolve(ctx, h)
		if err != nil {
			return &GitMutationError{Op: "revert", Err: err}
		}
		args = append(args, full)
	}

	if _, err := r.runGit(ctx, args...); err != nil {
		conflicted, _ := r.runGit(ctx, "diff", "--name-only", "--diff-filter=U")
		r.abortRevert(ctx)
		if conflicted != "" || strings.Contains(err.Error(), "conflict") {
			return &GitMutationError{Op: "revert", Err: fmt.Errorf("%w: %s", ErrRevertConflict, strings.ReplaceAll(conflicted, "\n", ", "))}
		}
		return &GitMutationError{Op: "revert", Err: err}
	}
	return nil
}

// abortRevert restores HEAD after a failed revert.
func (r *CLIRepository) abortRevert(ctx context.Context) {
	if _, err := r.runGit(ctx, "revert", "--abort"); err != nil {
		_, _ = r.runGit(ctx, "reset", "--hard", "HEAD")
	}
}

// Discard drops an uncommitted revert and every other change of the index
// and working tree.
func (r *CLIRepository) Discard(ctx context.Context) error {
	_, _ = r.runGit(ctx, "revert", "--quit")
	if _, err := r.runGit(ctx, "reset", "--hard", "HEAD"); err != nil {
		return &GitMutationError{Op: "discard", Err: err}
	}
	return nil
}

// Reset moves HEAD, index and working tree to hash.
func (r *CLIRepository) Reset(ctx context.Context, hash string) error {
	full, err := r.resolve(ctx, hash)
	if err != nil {
		return &GitMutationError{Op: "reset", Err: err}
	}
	if _, err := r.runGit(ctx, "reset", "--hard", full); err != nil {
		return &GitMutationError{Op: "reset", Err: err}
	}
	return nil
}

// Restore makes the index and working tree equal to hash while HEAD stays
// where it is, so the next commit records the difference.
func (r *CLIRepository) Restore(ctx context.Context, hash string) error {
	clean, err := r.IsClean(ctx)
	if err != nil {
		return &GitMutationError{Op: "restore", Err: err}
	}
	if !clean {
		return &GitMutationError{Op: "restore", Err: ErrDirtyWorkingTree}
	}
	target, err := r.resolve(ctx, hash)
	if err != nil {
		return &GitMutationError{Op: "restore", Err: err}
	}
	head, err := r.resolve(ctx, "HEAD")
	if err != nil {
		return &GitMutationError{Op: "restore", Err: err}
	}
	if err := r.Reset(ctx, target); err != nil {
		return &GitMutationError{Op: "restore", Err: err}
	}
	if _, err := r.runGit(ctx, "reset", "-q", "--soft", head); err != nil {
		_, _ = r.runGit(ctx, "reset", "-q", "--hard", head)
		return &GitMutationError{Op: "restore", Err: err}
	}
	return nil
}

// HasStagedChanges reports whether the index differs from HEAD.
func (r *CLIRepository) HasStagedChanges(ctx context.Context) (bool, error) {
	out, err := r.runGit(ctx, "diff", "--cached", "--name-only")
	if err != nil {
		return false, fmt.Errorf("failed to read index: %w", err)
	}
	return out != "", nil
}

// CommitAll stages the whole working tree and commits it. It returns the new
// hash, or "" when there was nothing to commit.
func (r *CLIRepository) CommitAll(ctx context.Context, message string, author Author) (string, error) {
	if _, err := r.runGit(ctx, "add", "-A"); err != nil {
		return "", &GitMutationError{Op: "commit", Err: fmt.Errorf("failed to stage files: %w", err)}
	}
	staged, err := r.HasStagedChanges(ctx)
	if err != nil {
		return "", &GitMutationError{Op: "commit", Err: err}
	}
	if !staged {
		return "", nil
	}

	args := []string{
		"-c", "user.name=" + author.Name,
		"-c", "user.email=" + author.Email,
		"-c", "commit.gpgsign=false",
		"commit", "--no-verify", "-q", "-F", "-",
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")
	cmd.Stdin = strings.NewReader(message)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &GitMutationError{Op: "commit", Err: fmt.Errorf("%w\nstderr: %s", err, strings.TrimSpace(stderr.String()))}
	}
	return r.LastCommitHash(ctx)
}

// Order returns the full hashes of the given commits, newest first by their
// position in HEAD's history. Duplicates are collapsed.
func (r *CLIRepository) Order(ctx context.Context, hashes []string) ([]string, error) {
	wanted := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		full, err := r.resolve(ctx, h)
		if err != nil {
			return nil, err
		}
		wanted[full] = true
	}

	out, err := r.runGit(ctx, "rev-list", "--topo-order", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	ordered := make([]string, 0, len(wanted))
	for _, line := range strings.Split(out, "\n") {
		if wanted[line] {
			ordered = append(ordered, line)
			delete(wanted, line)
		}
	}
	for h := range wanted {
		return nil, fmt.Errorf("%w: %s is not an ancestor of HEAD", ErrUnknownCommit, h)
	}
	return ordered, nil
}
