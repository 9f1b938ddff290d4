package gitprovider

import "fmt"

// Reference selects what the working tree should be checked out to.
type Reference interface {
	isReference()
	String() string
}

// DefaultReference checks out whatever the remote's HEAD points to.
type DefaultReference struct{}

func (DefaultReference) isReference()    {}
func (DefaultReference) String() string  { return "HEAD" }

// BranchReference checks out (and fast-forwards) a named branch.
type BranchReference struct{ Name string }

func (BranchReference) isReference()   {}
func (r BranchReference) String() string { return fmt.Sprintf("branch:%s", r.Name) }

// TagReference checks out a named tag, detached.
type TagReference struct{ Name string }

func (TagReference) isReference()   {}
func (r TagReference) String() string { return fmt.Sprintf("tag:%s", r.Name) }

// CommitReference checks out a specific commit SHA, detached.
type CommitReference struct{ SHA string }

func (CommitReference) isReference()   {}
func (r CommitReference) String() string { return fmt.Sprintf("commit:%s", r.SHA) }

// Auth selects how the provider authenticates with the remote.
type Auth interface {
	isAuth()
}

// NoAuth delegates to ambient system credentials (SSH agent, credential
// helper) before failing, per spec.md §9.
type NoAuth struct{}

func (NoAuth) isAuth() {}

// TokenAuth authenticates over HTTPS with a personal-access token, sent as
// the HTTP basic-auth password.
type TokenAuth struct{ Token string }

func (TokenAuth) isAuth() {}

// UserPasswordAuth authenticates over HTTPS with HTTP basic auth.
type UserPasswordAuth struct{ Username, Password string }

func (UserPasswordAuth) isAuth() {}

// SSHKeyAuth authenticates over SSH with a private key.
type SSHKeyAuth struct {
	PrivateKeyPath string
	PublicKeyPath  string
	Passphrase     string
}

func (SSHKeyAuth) isAuth() {}

// CommitStyle produces a commit message from a lifecycle action and
// extension coordinates.
type CommitStyle interface {
	Format(action, id, version string) string
}

// DefaultCommitStyle produces "<Action> <id> v<version>", e.g.
// "Publish en.example v1.0.0".
type DefaultCommitStyle struct{}

func (DefaultCommitStyle) Format(action, id, version string) string {
	return fmt.Sprintf("%s %s v%s", action, id, version)
}

// DetailedCommitStyle produces "<Action> extension <id> version <version>".
type DetailedCommitStyle struct{}

func (DetailedCommitStyle) Format(action, id, version string) string {
	return fmt.Sprintf("%s extension %s version %s", action, id, version)
}

// MinimalCommitStyle produces "<Action> <id>@<version>".
type MinimalCommitStyle struct{}

func (MinimalCommitStyle) Format(action, id, version string) string {
	return fmt.Sprintf("%s %s@%s", action, id, version)
}

// CustomCommitStyle delegates to a caller-supplied function.
type CustomCommitStyle struct {
	Fn func(action, id, version string) string
}

func (c CustomCommitStyle) Format(action, id, version string) string {
	return c.Fn(action, id, version)
}

// Author identifies the committer used for provider-side commits.
type Author struct {
	Name  string
	Email string
}

// WriteConfig configures write-path behavior for a GitProvider. A
// GitProvider with no WriteConfig is read-only.
type WriteConfig struct {
	Author      *Author
	CommitStyle CommitStyle
	AutoPush    bool
}
