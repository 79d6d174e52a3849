// Package revision implements the git-backed snapshot/rollback store
// for worker source code (spec §4.2).
package revision

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Entry is one line of commit history.
type Entry struct {
	Hash    string
	Message string
}

// Store is a thin wrapper around the git CLI that snapshots and rolls
// back a worker's working tree.
//
// SECURITY: repoDir must be a validated, trusted path; Store performs
// no sandboxing of its own.
type Store struct {
	gitPath string
	repoDir string
}

// authorEnv pins commit identity the way the supervisor's own commits
// are attributed, regardless of the ambient git config.
var authorEnv = []string{
	"GIT_AUTHOR_NAME=Protea",
	"GIT_AUTHOR_EMAIL=protea@localhost",
	"GIT_COMMITTER_NAME=Protea",
	"GIT_COMMITTER_EMAIL=protea@localhost",
}

// Open resolves the git executable and returns a Store rooted at
// repoDir. It does not itself create or initialize the repository;
// call Init for that.
func Open(ctx context.Context, repoDir string) (*Store, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}
	cmd := exec.CommandContext(ctx, gitPath, "version")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git command failed: %w", err)
	}
	return &Store{gitPath: gitPath, repoDir: repoDir}, nil
}

func (s *Store) run(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"-C", s.repoDir}, args...)
	cmd := exec.CommandContext(ctx, s.gitPath, full...)
	cmd.Env = append(os.Environ(), authorEnv...)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(ee.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

func (s *Store) isRepo() bool {
	info, err := os.Stat(filepath.Join(s.repoDir, ".git"))
	return err == nil && info.IsDir()
}

// Init initializes a git repository at repoDir on branch "main" if
// one does not already exist.
func (s *Store) Init(ctx context.Context) error {
	if s.isRepo() {
		return nil
	}
	if err := os.MkdirAll(s.repoDir, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}
	if _, err := s.run(ctx, "init"); err != nil {
		return err
	}
	if _, err := s.run(ctx, "checkout", "-b", "main"); err != nil {
		return err
	}
	return nil
}

// CurrentHash returns the HEAD commit hash.
func (s *Store) CurrentHash(ctx context.Context) (string, error) {
	out, err := s.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Snapshot stages everything and commits with message. If there is
// nothing to commit it returns the current HEAD hash unchanged.
func (s *Store) Snapshot(ctx context.Context, message string) (string, error) {
	if _, err := s.run(ctx, "add", "-A"); err != nil {
		return "", err
	}
	status, err := s.run(ctx, "status", "--porcelain")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(status) == "" {
		return s.CurrentHash(ctx)
	}
	if _, err := s.run(ctx, "commit", "-m", message); err != nil {
		return "", err
	}
	return s.CurrentHash(ctx)
}

// Rollback restores the working tree to revisionID without moving
// HEAD: it resets the index to that commit, checks the tree out, then
// removes anything added since (so files introduced after the target
// commit are also gone).
func (s *Store) Rollback(ctx context.Context, revisionID string) error {
	if _, err := s.run(ctx, "reset", revisionID, "--", "."); err != nil {
		return err
	}
	if _, err := s.run(ctx, "checkout", "--", "."); err != nil {
		return err
	}
	if _, err := s.run(ctx, "clean", "-fd"); err != nil {
		return err
	}
	return nil
}

// History returns the last n commits, most recent first.
func (s *Store) History(ctx context.Context, n int) ([]Entry, error) {
	out, err := s.run(ctx, "log", fmt.Sprintf("-%d", n), "--pretty=format:%H%x00%s")
	if err != nil {
		// An empty repo (no commits yet) makes "git log" fail; treat
		// that as an empty, not an erroring, history.
		return nil, nil
	}
	var entries []Entry
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\x00", 2)
		if len(parts) != 2 {
			continue
		}
		entries = append(entries, Entry{Hash: parts[0], Message: parts[1]})
	}
	return entries, nil
}
