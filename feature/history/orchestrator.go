package history

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"content-history/core/git"
	"content-history/core/reconcile"
	"content-history/core/reference"
	"content-history/core/storage"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// Options configures an Orchestrator.
type Options struct {
	// StorageDir is the entity storage directory relative to the working tree.
	StorageDir string
	// LockPath is the file lock shared by every process working on the tree.
	LockPath string
	// Author signs undo and rollback commits.
	Author git.Author
	// IgnoredActions are action tags (type/action) whose deletions are not
	// checked for remaining references on undo.
	IgnoredActions []string
	Logger         *zap.Logger
}

// Orchestrator sequences git mutations with database synchronization.
type Orchestrator struct {
	repo       git.Repository
	env        *reconcile.Environment
	finder     *reference.Finder
	storageDir string
	author     git.Author
	ignored    map[string]bool
	logger     *zap.Logger

	mu   sync.Mutex
	lock *flock.Flock
}

// NewOrchestrator creates an orchestrator over repo and env. The storages of
// env must be rooted at StorageDir inside the working tree.
func NewOrchestrator(repo git.Repository, env *reconcile.Environment, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.LockPath == "" {
		opts.LockPath = filepath.Join(repo.Dir(), ".git", "history.lock")
	}
	ignored := make(map[string]bool, len(opts.IgnoredActions))
	for _, tag := range opts.IgnoredActions {
		ignored[tag] = true
	}
	return &Orchestrator{
		repo:       repo,
		env:        env,
		finder:     reference.NewFinder(env.Storages),
		storageDir: strings.Trim(filepath.ToSlash(opts.StorageDir), "/"),
		author:     opts.Author,
		ignored:    ignored,
		logger:     opts.Logger,
		lock:       flock.New(opts.LockPath),
	}
}

// run holds the orchestrator lock for the duration of fn.
func (o *Orchestrator) run(ctx context.Context, out *Outcome, fn func(ctx context.Context, out *Outcome)) *Outcome {
	if !o.mu.TryLock() {
		o.failGit(out, ErrLocked)
		return out
	}
	defer o.mu.Unlock()

	locked, err := o.lock.TryLock()
	if err != nil {
		o.failGit(out, fmt.Errorf("failed to acquire lock: %w", err))
		return out
	}
	if !locked {
		o.failGit(out, ErrLocked)
		return out
	}
	defer func() {
		if err := o.lock.Unlock(); err != nil {
			o.logger.Warn("Failed to release history lock", zap.Error(err))
		}
	}()

	fn(ctx, out)
	return out
}

func (o *Orchestrator) transition(out *Outcome, to State) {
	o.logger.Info("History state transition",
		zap.String("operation", string(out.Operation)),
		zap.String("from", string(out.State)),
		zap.String("to", string(to)))
	out.State = to
}

func (o *Orchestrator) failGit(out *Outcome, err error) {
	out.err = fmt.Errorf("%w: %w", ErrFailedGit, err)
	out.Message = out.err.Error()
	o.transition(out, StateFailedGit)
}

func (o *Orchestrator) failIntegrity(out *Outcome, err error) {
	out.err = fmt.Errorf("%w: %w", ErrFailedIntegrity, err)
	out.Message = out.err.Error()
	o.transition(out, StateFailedIntegrity)
}

// Undo reverts the given commits newest first and records the result as one
// commit. The working tree is checked before committing: an undo that would
// leave a stored entity referencing a missing one is discarded and reported
// as StateFailedIntegrity with git untouched.
func (o *Orchestrator) Undo(ctx context.Context, hashes []string) *Outcome {
	return o.run(ctx, newOutcome(OperationUndo), func(ctx context.Context, out *Outcome) {
		o.transition(out, StateGitMutating)
		if len(hashes) == 0 {
			o.failGit(out, errors.New("no commits to undo"))
			return
		}

		ordered, err := o.repo.Order(ctx, hashes)
		if err != nil {
			o.failGit(out, err)
			return
		}
		out.Commits = ordered

		var paths []string
		ignoredRefs := make(map[string]bool)
		for _, h := range ordered {
			c, err := o.repo.Commit(ctx, h)
			if err != nil {
				o.failGit(out, err)
				return
			}
			for _, f := range c.Files {
				paths = append(paths, f.Path)
			}
			for _, a := range c.Actions() {
				if o.ignored[a.Tag()] {
					ignoredRefs[a.EntityType+"/"+a.VpID] = true
				}
			}
		}

		before, err := o.refsAt(paths)
		if err != nil {
			o.failGit(out, err)
			return
		}
		if err := o.repo.Revert(ctx, ordered...); err != nil {
			o.failGit(out, err)
			return
		}
		after, err := o.refsAt(paths)
		if err != nil {
			o.discard(ctx)
			o.failGit(out, err)
			return
		}

		cs := reconcile.NewChangeSet()
		for _, r := range before.refs {
			cs.Add(r)
		}
		for _, r := range after.refs {
			cs.Add(r)
		}
		out.ChangeSet = cs

		violations, err := o.checkIntegrity(ctx, before, after, ignoredRefs)
		if err != nil {
			o.discard(ctx)
			o.failGit(out, err)
			return
		}
		if len(violations) > 0 {
			o.discard(ctx)
			out.Violations = violations
			out.FailedType = violations[0].EntityType
			out.FailedEntity = violations[0].VpID
			o.failIntegrity(out, fmt.Errorf("%s %s: field %s references missing %s %s",
				violations[0].EntityType, violations[0].VpID, violations[0].Field,
				violations[0].TargetType, violations[0].TargetVpID))
			return
		}

		actions := make([]git.Action, 0, len(ordered))
		for _, h := range ordered {
			actions = append(actions, git.UndoAction(h))
		}
		if !o.commit(ctx, out, undoSubject(ordered), actions...) {
			return
		}

		o.synchronize(ctx, out, nil, cs)
	})
}

// Rollback restores the tree of hash as a new commit and synchronizes every
// entity type.
func (o *Orchestrator) Rollback(ctx context.Context, hash string) *Outcome {
	return o.run(ctx, newOutcome(OperationRollback), func(ctx context.Context, out *Outcome) {
		o.transition(out, StateGitMutating)

		c, err := o.repo.Commit(ctx, hash)
		if err != nil {
			o.failGit(out, err)
			return
		}
		out.Commits = []string{c.Hash}

		if err := o.repo.Restore(ctx, c.Hash); err != nil {
			o.failGit(out, err)
			return
		}
		subject := fmt.Sprintf("Rollback to %s", shortHash(c.Hash))
		if !o.commit(ctx, out, subject, git.RollbackAction(c.Hash)) {
			return
		}

		o.synchronize(ctx, out, nil, nil)
	})
}

// Synchronize brings the database in line with the current tree for the
// given types, or all types when none are given.
func (o *Orchestrator) Synchronize(ctx context.Context, types []string) *Outcome {
	return o.run(ctx, newOutcome(OperationSynchronize), func(ctx context.Context, out *Outcome) {
		o.synchronize(ctx, out, types, nil)
	})
}

// commit records the staged mutation. It returns false when the run failed.
func (o *Orchestrator) commit(ctx context.Context, out *Outcome, subject string, actions ...git.Action) bool {
	hash, err := o.repo.CommitAll(ctx, git.FormatMessage(subject, actions...), o.author)
	if err != nil {
		o.discard(ctx)
		o.failGit(out, err)
		return false
	}
	if hash == "" {
		out.NoChanges = true
		return true
	}
	out.NewCommit = hash
	out.GitChanged = true
	o.logger.Info("Recorded history commit", zap.String("commit", hash), zap.String("subject", subject))
	return true
}

func (o *Orchestrator) synchronize(ctx context.Context, out *Outcome, types []string, cs *reconcile.ChangeSet) {
	o.transition(out, StateSynchronizing)
	o.env.Reset()

	results, err := o.env.SynchronizeAll(ctx, types, cs)
	out.Results = results
	for _, r := range results {
		out.SynchronizedTypes = append(out.SynchronizedTypes, r.Plan.EntityType)
	}
	if err != nil {
		var syncErr *reconcile.SyncError
		if errors.As(err, &syncErr) {
			out.FailedType = syncErr.EntityType
			out.FailedEntity = syncErr.VpID
		}
		var dangling *reference.DanglingReferenceError
		if errors.As(err, &dangling) {
			out.Violations = []Violation{violationOf(dangling)}
		}
		o.logger.Error("Synchronization stopped",
			zap.String("type", out.FailedType),
			zap.String("entity", out.FailedEntity),
			zap.Bool("git_changed", out.GitChanged),
			zap.Error(err))
		o.failIntegrity(out, err)
		return
	}
	o.transition(out, StateCommitted)
}

func (o *Orchestrator) discard(ctx context.Context) {
	if err := o.repo.Discard(ctx); err != nil {
		o.logger.Error("Failed to discard working tree changes", zap.Error(err))
	}
}

// snapshot is the set of stored entities held by a list of files.
type snapshot struct {
	refs    []storage.Ref
	present map[string]storage.Ref
}

// refsAt maps repository paths to the entities their files hold now.
// Paths outside the storage directory are skipped.
func (o *Orchestrator) refsAt(paths []string) (*snapshot, error) {
	s := &snapshot{present: make(map[string]storage.Ref)}
	seen := make(map[string]bool)
	for _, p := range paths {
		rel, ok := o.storagePath(p)
		if !ok || seen[rel] {
			continue
		}
		seen[rel] = true

		refs, err := o.env.Storages.RefsForPath(filepath.FromSlash(rel))
		if err != nil {
			return nil, err
		}
		for _, r := range refs {
			s.refs = append(s.refs, r)
			st, ok := o.env.Storages.Storage(r.Type)
			if !ok {
				continue
			}
			exists, err := st.Exists(r.VpID, r.ParentVpID)
			if err != nil {
				return nil, err
			}
			if exists {
				s.present[refKey(r)] = r
			}
		}
	}
	return s, nil
}

func (o *Orchestrator) storagePath(p string) (string, bool) {
	p = path.Clean(p)
	if o.storageDir == "" || o.storageDir == "." {
		return p, true
	}
	rel, ok := strings.CutPrefix(p, o.storageDir+"/")
	return rel, ok
}

// checkIntegrity finds references that the reverted tree would leave
// dangling: stored entities pointing at entities that disappeared, and
// restored or changed entities pointing at entities that are gone.
func (o *Orchestrator) checkIntegrity(ctx context.Context, before, after *snapshot, ignoredRefs map[string]bool) ([]Violation, error) {
	var violations []Violation

	keys := make([]string, 0, len(before.present))
	for key := range before.present {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		r := before.present[key]
		if _, still := after.present[key]; still || ignoredRefs[key] {
			continue
		}
		referrers, err := o.finder.ReferencesTo(ctx, r.Type, r.VpID)
		if err != nil {
			return nil, err
		}
		for _, ref := range referrers {
			violations = append(violations, Violation{
				EntityType: ref.Ref.Type,
				VpID:       ref.Ref.VpID,
				Field:      ref.Field,
				TargetType: r.Type,
				TargetVpID: r.VpID,
			})
		}
	}

	for _, r := range after.refs {
		if _, ok := after.present[refKey(r)]; !ok {
			continue
		}
		entity, err := o.env.Storages.MustStorage(r.Type).Load(r.VpID, r.ParentVpID)
		if err != nil {
			return nil, err
		}
		missing, err := o.finder.MissingTargets(ctx, entity)
		if err != nil {
			return nil, err
		}
		for _, m := range missing {
			violations = append(violations, violationOf(m))
		}
	}
	return violations, nil
}

func refKey(r storage.Ref) string {
	return r.Type + "/" + r.VpID
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}

func undoSubject(hashes []string) string {
	short := make([]string, len(hashes))
	for i, h := range hashes {
		short[i] = shortHash(h)
	}
	return "Undo " + strings.Join(short, ", ")
}

// ParseHashes splits a comma-separated list of commit hashes. Blank entries
// are dropped.
func ParseHashes(s string) []string {
	var out []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}
