package commit

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"gitpanel/internal/changelist"
	"gitpanel/internal/diff"
	"gitpanel/internal/errors"
	"gitpanel/internal/git"
	"gitpanel/internal/logging"
	"gitpanel/shared/types"
)

// Repository is the git plumbing the engine drives. *git.Repository implements it.
type Repository interface {
	GitDir() string
	Head(ctx context.Context) (shared.RepoHead, error)
	ResolveHead(ctx context.Context) (string, error)
	HeadRef(ctx context.Context) (string, error)
	HeadParents(ctx context.Context) ([]string, error)
	CommitMessage(ctx context.Context, rev string) (string, error)
	TreeID(ctx context.Context, rev string) (string, error)
	ReadTree(ctx context.Context, index, treeish string) error
	AddPaths(ctx context.Context, index string, paths []string) error
	ApplyCached(ctx context.Context, index, patch string) error
	StagedPatch(ctx context.Context, paths []string) (string, error)
	WriteTree(ctx context.Context, index string) (string, error)
	CommitTree(ctx context.Context, tree string, parents []string, message string) (string, error)
	UpdateRef(ctx context.Context, ref, newID, oldID, reason string) error
}

type Options struct {
	Amend bool `json:"amend"`
}

// Result describes the commit that was written.
type Result struct {
	Head           shared.RepoHead `json:"head"`
	CommitID       string          `json:"commit_id"`
	CommittedPaths []string        `json:"committed_paths"`

	// IndexPaths are the paths whose real index entries move to the new
	// commit when the caller asks for index sync.
	IndexPaths []string `json:"-"`
}

type Engine struct {
	repo   Repository
	src    HunkSource
	logger *logging.Logger
}

func NewEngine(repo Repository, src HunkSource, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Engine{repo: repo, src: src, logger: logger}
}

// Execute commits the changelist described by p. Nothing is written when
// any assigned hunk needs reselecting.
func (e *Engine) Execute(ctx context.Context, p *Preview, message string, opts Options) (*Result, error) {
	if !p.Committable() {
		return nil, errors.Precondition(msgNeedsReselect, p.InvalidHunks)
	}
	if err := checkMessage(message, opts); err != nil {
		return nil, err
	}

	var whole, sync []string
	for _, f := range p.wholeFiles() {
		whole = append(whole, f.Path)
		if f.OldPath != "" {
			whole = append(whole, f.OldPath)
		}
	}
	sync = append(sync, whole...)
	for _, path := range p.HunkFiles {
		if hasUnstaged(p.hunks[path]) {
			sync = append(sync, path)
		}
	}

	id, err := e.build(ctx, message, opts, func(log *zap.Logger, index string) error {
		if err := e.repo.AddPaths(ctx, index, whole); err != nil {
			return errors.Internal(err)
		}
		log.Debug("added whole files", zap.Int("count", len(whole)))
		for _, path := range p.HunkFiles {
			if err := e.applyHunks(ctx, index, path, p.hunks[path]); err != nil {
				return err
			}
			log.Debug("applied hunks", zap.String("path", path), zap.Int("count", len(p.hunks[path])))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	committed := unique(append(append([]string{}, whole...), p.HunkFiles...))
	return e.result(ctx, id, committed, unique(sync))
}

// CommitStaged commits the staged content of paths, leaving every other
// staged change in place.
func (e *Engine) CommitStaged(ctx context.Context, status *shared.RepoStatus, paths []string, message string, opts Options) (*Result, error) {
	selected := unique(trimAll(paths))
	if len(selected) == 0 {
		return nil, errors.ValidationError("Select at least one staged file to commit.", nil)
	}
	if err := checkMessage(message, opts); err != nil {
		return nil, err
	}

	byPath := make(map[string]shared.StatusEntry, len(status.Files))
	for _, f := range status.Files {
		byPath[f.Path] = f
	}
	jobPaths := append([]string{}, selected...)
	for _, path := range selected {
		f, ok := byPath[path]
		if !ok || (f.Status != shared.StatusStaged && f.Status != shared.StatusBoth) {
			return nil, errors.Precondition("Selected file is no longer staged: "+path, map[string]string{"path": path})
		}
		if f.OldPath != "" {
			jobPaths = append(jobPaths, f.OldPath)
		}
	}

	id, err := e.build(ctx, message, opts, func(log *zap.Logger, index string) error {
		patch, err := e.repo.StagedPatch(ctx, jobPaths)
		if err != nil {
			return errors.Internal(err)
		}
		if strings.TrimSpace(patch) == "" {
			return errors.Precondition("Some selected files are no longer staged. Refresh and try again.", nil)
		}
		if err := e.repo.ApplyCached(ctx, index, patch); err != nil {
			return errors.Internal(err)
		}
		log.Debug("applied staged patch", zap.Int("paths", len(jobPaths)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.result(ctx, id, selected, nil)
}

// build seeds a private index from HEAD, lets fill write the selection into
// it and advances HEAD to a commit of the resulting tree.
func (e *Engine) build(ctx context.Context, message string, opts Options, fill func(*zap.Logger, string) error) (string, error) {
	start := time.Now()
	log := e.logger.WithRequestID(ctx).With(zap.String("op", ulid.Make().String()))

	head, err := e.repo.ResolveHead(ctx)
	if err != nil {
		return "", errors.Internal(err)
	}
	if opts.Amend && head == "" {
		return "", errors.Precondition("There is no commit to amend.", nil)
	}
	ref, err := e.repo.HeadRef(ctx)
	if err != nil {
		return "", errors.Internal(err)
	}

	dir := filepath.Join(e.repo.GitDir(), "gitpanel")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Internalf("creating %s: %v", dir, err)
	}
	index := filepath.Join(dir, "index-"+uuid.NewString())
	defer func() {
		os.Remove(index)
		os.Remove(index + ".lock")
	}()

	if err := e.repo.ReadTree(ctx, index, head); err != nil {
		return "", errors.Internal(err)
	}
	log.Debug("seeded private index", zap.String("index", index), zap.String("head", head))

	if err := fill(log, index); err != nil {
		return "", err
	}

	tree, err := e.repo.WriteTree(ctx, index)
	if err != nil {
		return "", errors.Internal(err)
	}

	var parents []string
	switch {
	case opts.Amend:
		if parents, err = e.repo.HeadParents(ctx); err != nil {
			return "", errors.Internal(err)
		}
		if strings.TrimSpace(message) == "" {
			if message, err = e.repo.CommitMessage(ctx, head); err != nil {
				return "", errors.Internal(err)
			}
		}
	case head != "":
		headTree, err := e.repo.TreeID(ctx, head)
		if err != nil {
			return "", errors.Internal(err)
		}
		if headTree == tree {
			return "", errors.Precondition("Nothing to commit.", nil)
		}
		parents = []string{head}
	}

	id, err := e.repo.CommitTree(ctx, tree, parents, message)
	if err != nil {
		return "", errors.Internal(err)
	}

	reason := "gitpanel: commit"
	if opts.Amend {
		reason = "gitpanel: commit (amend)"
	}
	if err := e.repo.UpdateRef(ctx, ref, id, head, reason); err != nil {
		if stderrors.Is(err, git.ErrRefChanged) {
			return "", errors.Precondition("HEAD moved while committing. Refresh and try again.", map[string]string{"ref": ref})
		}
		return "", errors.Internal(err)
	}

	log.Debug("commit written",
		zap.String("ref", ref),
		zap.String("commit", id),
		zap.Duration("duration", time.Since(start)),
	)
	return id, nil
}

// applyHunks re-checks the assigned hunks of path against the live diff and
// applies them to index as one synthetic patch per diff kind.
func (e *Engine) applyHunks(ctx context.Context, index, path string, assigned []changelist.HunkAssignment) error {
	byKind := make(map[shared.DiffKind][]changelist.HunkAssignment)
	for _, h := range assigned {
		byKind[h.Kind] = append(byKind[h.Kind], h)
	}

	for _, kind := range []shared.DiffKind{shared.DiffStaged, shared.DiffUnstaged} {
		want := byKind[kind]
		if len(want) == 0 {
			continue
		}
		live, err := e.src.Hunks(ctx, path, kind)
		if err != nil {
			return errors.From(err)
		}
		selected := make([]shared.DiffHunk, 0, len(want))
		for _, h := range want {
			hunk, ok := diff.Find(live, h.ID, h.ContentHash)
			if !ok {
				return errors.Precondition(msgNeedsReselect, map[string]string{"path": path})
			}
			selected = append(selected, hunk)
		}
		sort.Slice(selected, func(i, j int) bool { return selected[i].OldStart < selected[j].OldStart })

		patch := diff.BuildPatch(selected[0].FileHeader, selected)
		if err := diff.ValidatePatch(patch); err != nil {
			return errors.Internalf("building patch for %s: %v", path, err)
		}
		if err := e.repo.ApplyCached(ctx, index, patch); err != nil {
			return errors.Internal(fmt.Errorf("applying hunks of %s: %w", path, err))
		}
	}
	return nil
}

func (e *Engine) result(ctx context.Context, id string, committed, sync []string) (*Result, error) {
	head, err := e.repo.Head(ctx)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return &Result{
		Head:           head,
		CommitID:       id,
		CommittedPaths: committed,
		IndexPaths:     sync,
	}, nil
}

func checkMessage(message string, opts Options) error {
	if strings.TrimSpace(message) == "" && !opts.Amend {
		return errors.ValidationError("commit message is required", nil)
	}
	return nil
}

func trimAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// unique returns paths sorted with duplicates removed.
func unique(paths []string) []string {
	if len(paths) == 0 {
		return []string{}
	}
	out := append([]string{}, paths...)
	sort.Strings(out)
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}
