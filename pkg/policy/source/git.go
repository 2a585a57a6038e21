package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"mercator-hq/tribune/pkg/config"
	"mercator-hq/tribune/pkg/policy/parser"
)

// CommitInfo describes the checked-out commit.
type CommitInfo struct {
	SHA        string
	Author     string
	Email      string
	Timestamp  time.Time
	Message    string
	Branch     string
	Repository string
}

// SyncResult is the outcome of one Sync.
type SyncResult struct {
	FromSHA      string
	ToSHA        string
	ChangedFiles []string

	// Bundle is set when a bundle file under the configured path changed
	// and the new bundle parsed.
	Bundle *parser.Bundle
}

// HadChanges reports whether HEAD moved.
func (r *SyncResult) HadChanges() bool { return r.FromSHA != r.ToSHA }

// Stats counts repository operations.
type Stats struct {
	SuccessfulPulls int64
	FailedPulls     int64
	RejectedCommits int64
	LastPull        time.Time
	LastCommitSHA   string
	CloneDuration   time.Duration
	PullDuration    time.Duration
}

// GitSource loads bundles from a Git repository checkout.
type GitSource struct {
	cfg       config.GitConfig
	localPath string
	auth      *Credentials
	parser    *parser.Parser
	logger    *slog.Logger

	mu       sync.Mutex
	repo     *gogit.Repository
	rejected string
	stats    Stats
}

// NewGitSource creates a git source. Nothing is fetched until Clone, Load or
// Sync is called.
func NewGitSource(cfg *config.GitConfig, p *parser.Parser) (*GitSource, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: git config cannot be nil", ErrInvalidConfig)
	}
	if cfg.Repository == "" {
		return nil, fmt.Errorf("%w: repository URL cannot be empty", ErrInvalidConfig)
	}
	if cfg.Branch == "" {
		return nil, fmt.Errorf("%w: branch cannot be empty", ErrInvalidConfig)
	}

	auth, err := NewCredentials(cfg.Auth, os.LookupEnv)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = parser.NewParser()
	}

	localPath := cfg.Clone.LocalPath
	if localPath == "" {
		localPath = filepath.Join(os.TempDir(), "tribune-policies")
	}

	return &GitSource{
		cfg:       *cfg,
		localPath: localPath,
		auth:      auth,
		parser:    p,
		logger:    slog.Default().With("component", "policy.source", "repository", cfg.Repository),
	}, nil
}

// Describe names the source for logs.
func (s *GitSource) Describe() string {
	return "git:" + s.cfg.Repository + "@" + s.cfg.Branch
}

// BundlePath returns the bundle path inside the checkout.
func (s *GitSource) BundlePath() string {
	return filepath.Join(s.localPath, filepath.FromSlash(s.cfg.Path))
}

// Clone opens the existing checkout or clones the repository.
// With CleanOnStart any existing checkout is removed first.
func (s *GitSource) Clone(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clone(ctx)
}

func (s *GitSource) clone(ctx context.Context) error {
	if s.repo != nil {
		return nil
	}

	start := time.Now()
	defer func() { s.stats.CloneDuration = time.Since(start) }()

	if s.cfg.Clone.CleanOnStart {
		if err := os.RemoveAll(s.localPath); err != nil {
			return fmt.Errorf("failed to clean existing checkout: %w", err)
		}
	}

	if _, err := os.Stat(filepath.Join(s.localPath, ".git")); err == nil {
		repo, err := gogit.PlainOpen(s.localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing checkout: %w", err)
		}
		s.repo = repo
		s.logger.Info("opened existing checkout", "path", s.localPath)
		return nil
	}

	if err := os.MkdirAll(s.localPath, 0755); err != nil {
		return fmt.Errorf("failed to create checkout directory: %w", err)
	}

	auth, err := s.auth.Method()
	if err != nil {
		return fmt.Errorf("git auth: %w", err)
	}

	cloneCtx := ctx
	if s.cfg.Clone.Timeout > 0 {
		var cancel context.CancelFunc
		cloneCtx, cancel = context.WithTimeout(ctx, s.cfg.Clone.Timeout)
		defer cancel()
	}

	repo, err := gogit.PlainCloneContext(cloneCtx, s.localPath, false, &gogit.CloneOptions{
		URL:           s.cfg.Repository,
		Auth:          auth,
		ReferenceName: plumbing.NewBranchReferenceName(s.cfg.Branch),
		SingleBranch:  s.cfg.Clone.Depth > 0,
		Depth:         s.cfg.Clone.Depth,
	})
	if err != nil {
		return fmt.Errorf("failed to clone repository: %w", err)
	}
	s.repo = repo
	s.logger.Info("repository cloned", "path", s.localPath, "auth", s.auth.Kind(), "duration", time.Since(start))
	return nil
}

// Load clones the repository if needed and parses the bundle path.
func (s *GitSource) Load(ctx context.Context) (*parser.Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.clone(ctx); err != nil {
		return nil, err
	}
	return s.parser.Parse(s.BundlePath())
}

// Sync pulls the tracked branch. When a bundle file changed it parses the
// new bundle. A commit whose bundle fails to parse is rolled back and
// reported as a RejectedCommitError; later syncs skip that commit until the
// branch moves past it.
func (s *GitSource) Sync(ctx context.Context) (*SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo == nil {
		return nil, ErrNotCloned
	}

	start := time.Now()
	defer func() {
		s.stats.PullDuration = time.Since(start)
		s.stats.LastPull = time.Now()
	}()

	fromSHA, err := s.head()
	if err != nil {
		return nil, err
	}

	if err := s.pull(ctx); err != nil {
		s.stats.FailedPulls++
		return nil, err
	}
	s.stats.SuccessfulPulls++

	toSHA, err := s.head()
	if err != nil {
		return nil, err
	}
	result := &SyncResult{FromSHA: fromSHA, ToSHA: toSHA}
	if !result.HadChanges() {
		return result, nil
	}

	if toSHA == s.rejected {
		if err := s.reset(fromSHA); err != nil {
			return nil, err
		}
		s.logger.Debug("skipping rejected commit", "sha", short(toSHA))
		result.ToSHA = fromSHA
		return result, nil
	}

	result.ChangedFiles, err = s.changedFiles(fromSHA, toSHA)
	if err != nil {
		return nil, fmt.Errorf("failed to get changed files: %w", err)
	}
	s.stats.LastCommitSHA = toSHA

	if !s.touchesBundle(result.ChangedFiles) {
		s.logger.Debug("no bundle changes", "from", short(fromSHA), "to", short(toSHA))
		return result, nil
	}

	bundle, err := s.parser.Parse(s.BundlePath())
	if err != nil {
		s.stats.RejectedCommits++
		s.rejected = toSHA
		if rerr := s.reset(fromSHA); rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		s.stats.LastCommitSHA = fromSHA
		s.logger.Error("bundle rejected, rolled back", "sha", short(toSHA), "restored", short(fromSHA), "error", err)
		return nil, &RejectedCommitError{SHA: toSHA, Restore: fromSHA, Err: err}
	}

	s.logger.Info("bundle updated", "from", short(fromSHA), "to", short(toSHA), "changed_files", len(result.ChangedFiles))
	result.Bundle = bundle
	return result, nil
}

func (s *GitSource) pull(ctx context.Context) error {
	worktree, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	auth, err := s.auth.Method()
	if err != nil {
		return fmt.Errorf("git auth: %w", err)
	}

	pullCtx := ctx
	if s.cfg.Poll.Timeout > 0 {
		var cancel context.CancelFunc
		pullCtx, cancel = context.WithTimeout(ctx, s.cfg.Poll.Timeout)
		defer cancel()
	}

	err = worktree.PullContext(pullCtx, &gogit.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(s.cfg.Branch),
		SingleBranch:  true,
		Auth:          auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to pull: %w", err)
	}
	return nil
}

func (s *GitSource) head() (string, error) {
	ref, err := s.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// reset moves the branch and worktree back to sha.
func (s *GitSource) reset(sha string) error {
	worktree, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := worktree.Reset(&gogit.ResetOptions{
		Commit: plumbing.NewHash(sha),
		Mode:   gogit.HardReset,
	}); err != nil {
		return fmt.Errorf("failed to reset to %s: %w", short(sha), err)
	}
	return nil
}

func (s *GitSource) changedFiles(fromSHA, toSHA string) ([]string, error) {
	fromCommit, err := s.repo.CommitObject(plumbing.NewHash(fromSHA))
	if err != nil {
		return nil, fmt.Errorf("failed to get from commit: %w", err)
	}
	toCommit, err := s.repo.CommitObject(plumbing.NewHash(toSHA))
	if err != nil {
		return nil, fmt.Errorf("failed to get to commit: %w", err)
	}
	fromTree, err := fromCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get from tree: %w", err)
	}
	toTree, err := toCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get to tree: %w", err)
	}

	changes, err := fromTree.Diff(toTree)
	if err != nil {
		return nil, fmt.Errorf("failed to diff trees: %w", err)
	}

	files := make([]string, 0, len(changes))
	for _, change := range changes {
		// Deleted files only have a "from" side.
		if change.To.Name != "" {
			files = append(files, change.To.Name)
		} else if change.From.Name != "" {
			files = append(files, change.From.Name)
		}
	}
	return files, nil
}

// touchesBundle reports whether any changed file is a bundle file under the
// configured path.
func (s *GitSource) touchesBundle(files []string) bool {
	root := path.Clean(filepath.ToSlash(s.cfg.Path))
	for _, f := range files {
		if !parser.IsBundleFile(f) {
			continue
		}
		if root == "." || f == root || strings.HasPrefix(f, root+"/") {
			return true
		}
	}
	return false
}

// Commit returns the checked-out commit.
func (s *GitSource) Commit() (*CommitInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo == nil {
		return nil, ErrNotCloned
	}
	ref, err := s.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}
	commit, err := s.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}
	return &CommitInfo{
		SHA:        commit.Hash.String(),
		Author:     commit.Author.Name,
		Email:      commit.Author.Email,
		Timestamp:  commit.Author.When,
		Message:    commit.Message,
		Branch:     s.cfg.Branch,
		Repository: s.cfg.Repository,
	}, nil
}

// Stats returns a copy of the operation counters.
func (s *GitSource) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
