// Package gitprovider implements provider.Provider over a cloned Git
// working tree: clone-or-fetch on sync, commit-and-optionally-push on
// mutation lifecycle events. Grounded on the teacher's pluggable
// storage-driver pattern (factory + base + per-backend package), adapted
// here to a single concrete backend since the spec names exactly one
// remote-source provider.
package gitprovider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/sirupsen/logrus"

	"github.com/nacht-org/quelle-store/internal/metrics"
	"github.com/nacht-org/quelle-store/internal/qcontext"
	"github.com/nacht-org/quelle-store/internal/qerr"
	"github.com/nacht-org/quelle-store/provider"
)

const driverType = "git"

// defaultFetchTimeout matches spec.md §5's 300s default for network
// operations.
const defaultFetchTimeout = 300 * time.Second

// Provider implements provider.Provider over a cloned Git repository.
type Provider struct {
	url           string
	cacheDir      string
	reference     Reference
	auth          Auth
	fetchInterval time.Duration
	shallow       bool
	write         *WriteConfig
	timeout       time.Duration

	lastSync time.Time
}

var _ provider.Provider = (*Provider)(nil)

func (p *Provider) SyncDir() string { return p.cacheDir }

func (p *Provider) Description() string {
	return fmt.Sprintf("git %s (%s)", p.url, p.reference)
}

func (p *Provider) ProviderType() string { return driverType }

func (p *Provider) SupportsCapability(c provider.Capability) bool {
	switch c {
	case provider.CapabilityIncrementalSync, provider.CapabilityCaching, provider.CapabilityBackgroundSync:
		return true
	case provider.CapabilityAuthentication:
		_, isNone := p.auth.(NoAuth)
		return !isNone
	case provider.CapabilityWrite:
		return p.write != nil
	case provider.CapabilityRemotePush:
		return p.write != nil && p.write.AutoPush
	default:
		return false
	}
}

// Sync clones the repository on first use, or fetches and fast-forwards
// otherwise. The prior worktree remains usable for reads on any failure.
func (p *Provider) Sync(ctx context.Context) (provider.SyncResult, error) {
	start := time.Now()
	log := qcontext.GetLogger(ctx).WithFields(logrus.Fields{"url": p.url, "cache_dir": p.cacheDir})

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	authMethod, err := resolveAuth(p.auth)
	if err != nil {
		return provider.SyncResult{}, err
	}

	result := provider.SyncResult{CompletedAt: time.Now()}

	repo, openErr := git.PlainOpen(p.cacheDir)
	switch {
	case errors.Is(openErr, git.ErrRepositoryNotExists):
		log.Info("cloning repository")
		repo, err = p.clone(ctx, authMethod)
		if err != nil {
			return provider.SyncResult{}, err
		}
		result.Updated = true
		result.Changes = []string{"initial clone"}
	case openErr != nil:
		return provider.SyncResult{}, qerr.Wrap(qerr.IoError, openErr, "opening cached repository at %s", p.cacheDir)
	default:
		changed, err := p.fetchAndCheckout(ctx, repo, authMethod)
		if err != nil {
			return provider.SyncResult{}, err
		}
		result.Updated = changed
		if changed {
			result.Changes = []string{"fast-forwarded to latest"}
		}
	}

	p.lastSync = time.Now()
	result.CompletedAt = p.lastSync
	metrics.SyncDuration.WithLabelValues(p.cacheDir, driverType).Observe(time.Since(start).Seconds())
	return result, nil
}

func (p *Provider) clone(ctx context.Context, auth transport.AuthMethod) (*git.Repository, error) {
	opts := &git.CloneOptions{
		URL:   p.url,
		Auth:  auth,
		Depth: 0,
	}
	if p.shallow {
		opts.Depth = 1
	}
	if refName, ok := branchOrTagRefName(p.reference); ok {
		opts.ReferenceName = refName
		opts.SingleBranch = true
	}

	repo, err := git.PlainCloneContext(ctx, p.cacheDir, false, opts)
	if err != nil {
		return nil, classifyGitError(err, p.url)
	}

	if _, isCommit := p.reference.(CommitReference); isCommit {
		if err := checkoutReference(repo, p.reference); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

func (p *Provider) fetchAndCheckout(ctx context.Context, repo *git.Repository, auth transport.AuthMethod) (bool, error) {
	beforeHead, _ := repo.Head()

	err := repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		Auth:       auth,
		Force:      true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return false, classifyGitError(err, p.url)
	}

	if err := checkoutReference(repo, p.reference); err != nil {
		return false, err
	}

	afterHead, _ := repo.Head()
	changed := beforeHead == nil || afterHead == nil || beforeHead.Hash() != afterHead.Hash()
	return changed, nil
}

// NeedsSync is true iff the repo is absent, HEAD doesn't resolve the
// configured reference, or the fetch interval has elapsed.
func (p *Provider) NeedsSync(ctx context.Context) bool {
	if _, err := os.Stat(filepath.Join(p.cacheDir, ".git")); err != nil {
		return true
	}
	repo, err := git.PlainOpen(p.cacheDir)
	if err != nil {
		return true
	}
	if _, err := resolveReference(repo, p.reference); err != nil {
		return true
	}
	if p.lastSync.IsZero() {
		return true
	}
	return time.Since(p.lastSync) >= p.fetchInterval
}

// HandleEvent stages all changes under cache_dir, commits with a message
// from the configured CommitStyle, and optionally pushes. Push/commit
// failures become warnings, not hard errors, since the local mutation
// already succeeded.
func (p *Provider) HandleEvent(ctx context.Context, event provider.LifecycleEvent) error {
	if p.write == nil {
		return nil
	}
	log := qcontext.GetLogger(ctx)

	repo, err := git.PlainOpen(p.cacheDir)
	if err != nil {
		return qerr.Wrap(qerr.IoError, err, "opening repository for commit")
	}
	wt, err := repo.Worktree()
	if err != nil {
		return qerr.Wrap(qerr.IoError, err, "opening worktree for commit")
	}
	if _, err := wt.Add("."); err != nil {
		return qerr.Wrap(qerr.IoError, err, "staging changes")
	}

	status, err := wt.Status()
	if err == nil && status.IsClean() {
		log.Debug("no changes to commit for lifecycle event")
		return nil
	}

	action := actionFromEvent(event.Kind)
	message := p.write.CommitStyle.Format(action, event.ID, event.Version)
	sig := p.resolveAuthorSignature()

	if _, err := wt.Commit(message, &git.CommitOptions{Author: sig}); err != nil {
		log.WithError(err).Warn("failed to commit lifecycle event, local mutation stands")
		return nil
	}

	if p.write.AutoPush {
		authMethod, err := resolveAuth(p.auth)
		if err != nil {
			log.WithError(err).Warn("failed to resolve auth for push")
			return nil
		}
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		if err := repo.PushContext(ctx, &git.PushOptions{RemoteName: "origin", Auth: authMethod}); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			log.WithError(err).Warn("failed to push lifecycle commit")
		}
	}
	return nil
}

func actionFromEvent(kind provider.EventKind) string {
	switch kind {
	case provider.EventPublished:
		return "Publish"
	case provider.EventUnpublished:
		return "Unpublish"
	case provider.EventInitialized:
		return "Initialize"
	default:
		return string(kind)
	}
}

func (p *Provider) resolveAuthorSignature() *object.Signature {
	if p.write.Author != nil {
		return &object.Signature{Name: p.write.Author.Name, Email: p.write.Author.Email, When: time.Now()}
	}
	repo, err := git.PlainOpen(p.cacheDir)
	if err == nil {
		if cfg, err := repo.ConfigScoped(config.GlobalScope); err == nil && cfg.User.Name != "" {
			return &object.Signature{Name: cfg.User.Name, Email: cfg.User.Email, When: time.Now()}
		}
	}
	return &object.Signature{Name: "quelle-store", Email: "quelle-store@localhost", When: time.Now()}
}

// EnsureWritable fails if there is no write config, the worktree has
// uncommitted noise unrelated to the pending operation, or a lightweight
// remote probe indicates the credentials are unusable.
func (p *Provider) EnsureWritable(ctx context.Context) error {
	if p.write == nil {
		return qerr.New(qerr.NotWritable, "git provider for %s has no write configuration", p.url)
	}

	repo, err := git.PlainOpen(p.cacheDir)
	if err != nil {
		return qerr.Wrap(qerr.IoError, err, "opening repository to check writability")
	}
	wt, err := repo.Worktree()
	if err != nil {
		return qerr.Wrap(qerr.IoError, err, "opening worktree to check writability")
	}
	status, err := wt.Status()
	if err != nil {
		return qerr.Wrap(qerr.IoError, err, "checking worktree status")
	}
	if !status.IsClean() {
		return qerr.New(qerr.DirtyWorktree, "worktree at %s has uncommitted changes unrelated to this operation", p.cacheDir)
	}

	if rem, err := repo.Remote("origin"); err == nil {
		authMethod, authErr := resolveAuth(p.auth)
		if authErr == nil {
			probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if _, err := rem.ListContext(probeCtx, &git.ListOptions{Auth: authMethod}); err != nil {
				return qerr.Wrap(qerr.AuthError, err, "remote credential probe failed for %s", p.url)
			}
		}
	}
	return nil
}

func branchOrTagRefName(ref Reference) (plumbing.ReferenceName, bool) {
	switch r := ref.(type) {
	case BranchReference:
		return plumbing.NewBranchReferenceName(r.Name), true
	case TagReference:
		return plumbing.NewTagReferenceName(r.Name), true
	default:
		return "", false
	}
}

func resolveReference(repo *git.Repository, ref Reference) (plumbing.Hash, error) {
	switch r := ref.(type) {
	case DefaultReference:
		head, err := repo.Head()
		if err != nil {
			return plumbing.ZeroHash, err
		}
		return head.Hash(), nil
	case BranchReference:
		rr, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", r.Name), true)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		return rr.Hash(), nil
	case TagReference:
		rr, err := repo.Reference(plumbing.NewTagReferenceName(r.Name), true)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		return rr.Hash(), nil
	case CommitReference:
		return plumbing.NewHash(r.SHA), nil
	default:
		return plumbing.ZeroHash, fmt.Errorf("gitprovider: unknown reference type %T", ref)
	}
}

func checkoutReference(repo *git.Repository, ref Reference) error {
	wt, err := repo.Worktree()
	if err != nil {
		return qerr.Wrap(qerr.IoError, err, "opening worktree")
	}

	switch r := ref.(type) {
	case DefaultReference:
		return nil
	case BranchReference:
		local := plumbing.NewBranchReferenceName(r.Name)
		remote := plumbing.NewRemoteReferenceName("origin", r.Name)
		remoteRef, err := repo.Reference(remote, true)
		if err != nil {
			return qerr.Wrap(qerr.IoError, err, "resolving remote branch %s", r.Name)
		}
		err = wt.Checkout(&git.CheckoutOptions{Branch: local, Hash: remoteRef.Hash(), Force: true, Create: true})
		if err != nil && errors.Is(err, git.ErrBranchExists) {
			err = wt.Checkout(&git.CheckoutOptions{Branch: local, Force: true})
			if err == nil {
				err = wt.Reset(&git.ResetOptions{Commit: remoteRef.Hash(), Mode: git.HardReset})
			}
		}
		if err != nil {
			return qerr.Wrap(qerr.IoError, err, "checking out branch %s", r.Name)
		}
		return nil
	case TagReference:
		tagRef, err := repo.Reference(plumbing.NewTagReferenceName(r.Name), true)
		if err != nil {
			return qerr.Wrap(qerr.IoError, err, "resolving tag %s", r.Name)
		}
		if err := wt.Checkout(&git.CheckoutOptions{Hash: tagRef.Hash(), Force: true}); err != nil {
			return qerr.Wrap(qerr.IoError, err, "checking out tag %s", r.Name)
		}
		return nil
	case CommitReference:
		hash := plumbing.NewHash(r.SHA)
		if err := wt.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
			return qerr.Wrap(qerr.IoError, err, "checking out commit %s", r.SHA)
		}
		return nil
	default:
		return fmt.Errorf("gitprovider: unknown reference type %T", ref)
	}
}

func resolveAuth(auth Auth) (transport.AuthMethod, error) {
	switch a := auth.(type) {
	case nil, NoAuth:
		// Delegate to ambient credentials: return nil auth so go-git falls
		// back to SSH agent / credential helper / netrc as available.
		return nil, nil
	case TokenAuth:
		return &githttp.BasicAuth{Username: "token", Password: a.Token}, nil
	case UserPasswordAuth:
		return &githttp.BasicAuth{Username: a.Username, Password: a.Password}, nil
	case SSHKeyAuth:
		method, err := gitssh.NewPublicKeysFromFile("git", a.PrivateKeyPath, a.Passphrase)
		if err != nil {
			return nil, qerr.Wrap(qerr.AuthError, err, "loading SSH key %s", a.PrivateKeyPath)
		}
		return method, nil
	default:
		return nil, qerr.New(qerr.InvalidConfiguration, "unknown git auth type %T", auth)
	}
}

func classifyGitError(err error, url string) error {
	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired), errors.Is(err, transport.ErrAuthorizationFailed):
		return qerr.Wrap(qerr.AuthError, err, "authenticating to %s", url)
	default:
		return qerr.Wrap(qerr.NetworkError, err, "git operation against %s", url)
	}
}
