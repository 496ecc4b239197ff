package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"al.essio.dev/pkg/shellescape"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/CliForge/ocrun/pkg/locator"
)

// SSHLauncher starts processes on a remote execution agent over SSH.
type SSHLauncher struct {
	Host                        string
	Port                        string
	User                        string
	KeyPath                     string
	Passphrase                  []byte
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
	Timeout                     time.Duration

	// Family is the OS of the remote host. Command lines are POSIX shell, so
	// Windows hosts are rejected. Empty means Unix.
	Family locator.OSFamily
}

// ErrUnsupportedFamily is returned for remote hosts without a POSIX shell.
var ErrUnsupportedFamily = errors.New("ssh execution requires a POSIX shell on the remote host")

// CheckFamily rejects families the remote command line cannot serve.
func CheckFamily(family locator.OSFamily) error {
	if family == locator.Windows {
		return fmt.Errorf("%w: %s", ErrUnsupportedFamily, family)
	}
	return nil
}

// Start implements Launcher. The working directory and environment are
// applied on the remote side by the command line itself, since SSH servers
// commonly refuse environment requests.
func (l SSHLauncher) Start(ctx context.Context, cmd Command) (Process, error) {
	if len(cmd.Argv) == 0 {
		return nil, ErrNoCommand
	}
	if err := CheckFamily(l.Family); err != nil {
		return nil, &LaunchError{Argv0: cmd.Argv[0], Err: err}
	}

	client, err := l.dial(ctx)
	if err != nil {
		return nil, &LaunchError{Argv0: cmd.Argv[0], Err: err}
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, &LaunchError{Argv0: cmd.Argv[0], Err: err}
	}

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	session.Stdout = outW
	session.Stderr = errW

	if err := session.Start(RemoteCommandLine(cmd)); err != nil {
		session.Close()
		client.Close()
		return nil, &LaunchError{Argv0: cmd.Argv[0], Err: err}
	}

	return &sshProcess{
		client:  client,
		session: session,
		stdout:  outR,
		stderr:  errR,
		outW:    outW,
		errW:    errW,
	}, nil
}

// RemoteCommandLine renders cmd as one quoted shell line:
// "cd DIR && exec env K=V ARGV...".
func RemoteCommandLine(cmd Command) string {
	var b strings.Builder
	if cmd.Dir != "" {
		b.WriteString("cd ")
		b.WriteString(shellescape.Quote(cmd.Dir))
		b.WriteString(" && ")
	}
	b.WriteString("exec ")
	if len(cmd.Env) > 0 {
		b.WriteString("env ")
		b.WriteString(shellescape.QuoteCommand(cmd.Env))
		b.WriteByte(' ')
	}
	b.WriteString(shellescape.QuoteCommand(cmd.Argv))
	return b.String()
}

// Find implements locator.Finder by testing each search path directory on the
// remote host. An empty searchPath uses the remote $PATH.
func (l SSHLauncher) Find(ctx context.Context, tool, searchPath string, family locator.OSFamily) ([]string, error) {
	if err := CheckFamily(family); err != nil {
		return nil, err
	}

	client, err := l.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, err
	}
	defer session.Close()

	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	out, err := session.Output(FindScript(locator.ExecutableName(tool, family), searchPath))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to search remote path: %w", err)
	}
	return parseFound(string(out)), nil
}

// FindScript renders a POSIX shell loop printing the absolute path of every
// regular executable file named name in the directories of searchPath.
func FindScript(name, searchPath string) string {
	p := `"$PATH"`
	if searchPath != "" {
		p = shellescape.Quote(searchPath)
	}
	return "set -f; P=" + p + "; IFS=:; for d in $P; do " +
		`case "$d" in '') continue ;; /*) ;; *) d="$PWD/$d" ;; esac; ` +
		"f=\"$d\"/" + shellescape.Quote(name) + "; " +
		`if [ -f "$f" ] && [ -x "$f" ]; then printf '%s\n' "$f"; fi; ` +
		"done; exit 0"
}

// parseFound cleans and de-duplicates the lines printed by FindScript.
func parseFound(out string) []string {
	seen := make(map[string]bool)
	var found []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "/") {
			continue
		}
		line = path.Clean(line)
		if seen[line] {
			continue
		}
		seen[line] = true
		found = append(found, line)
	}
	return found
}

type sshProcess struct {
	client  *ssh.Client
	session *ssh.Session

	stdout *io.PipeReader
	stderr *io.PipeReader
	outW   *io.PipeWriter
	errW   *io.PipeWriter

	killed   atomic.Bool
	killOnce sync.Once
}

func (p *sshProcess) Stdout() io.ReadCloser { return p.stdout }

func (p *sshProcess) Stderr() io.ReadCloser { return p.stderr }

func (p *sshProcess) Wait() (int, error) {
	err := p.session.Wait()

	p.outW.Close()
	p.errW.Close()
	p.session.Close()
	p.client.Close()

	if err == nil {
		return 0, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), nil
	}
	if p.killed.Load() {
		return StatusInterrupted, nil
	}

	var missing *ssh.ExitMissingError
	if errors.As(err, &missing) {
		return StatusInterrupted, nil
	}
	return StatusInterrupted, err
}

// Kill signals the remote process and tears the connection down, which ends
// the session even on servers that ignore signal requests.
func (p *sshProcess) Kill() error {
	p.killOnce.Do(func() {
		p.killed.Store(true)
		_ = p.session.Signal(ssh.SIGKILL)
		p.session.Close()
		p.client.Close()
	})
	return nil
}

func (l SSHLauncher) dial(ctx context.Context) (*ssh.Client, error) {
	address, err := l.address()
	if err != nil {
		return nil, err
	}

	config, err := l.clientConfig()
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: l.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return ssh.NewClient(clientConn, chans, reqs), nil
}

func (l SSHLauncher) address() (string, error) {
	host := strings.TrimSpace(l.Host)
	if host == "" {
		return "", fmt.Errorf("ssh host is required")
	}

	if l.Port != "" {
		return net.JoinHostPort(host, l.Port), nil
	}

	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, nil
	}

	return net.JoinHostPort(host, "22"), nil
}

func (l SSHLauncher) clientConfig() (*ssh.ClientConfig, error) {
	if l.User == "" {
		return nil, fmt.Errorf("ssh user is required")
	}

	signer, err := l.signer()
	if err != nil {
		return nil, err
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if !l.InsecureSkipHostKeyChecking {
		hostKeyCallback, err = l.knownHostsCallback()
		if err != nil {
			return nil, err
		}
	}

	return &ssh.ClientConfig{
		User:            l.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         l.Timeout,
	}, nil
}

func (l SSHLauncher) signer() (ssh.Signer, error) {
	if l.KeyPath == "" {
		return nil, fmt.Errorf("ssh key path is required")
	}

	privateKey, err := os.ReadFile(l.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read ssh key: %w", err)
	}

	if len(l.Passphrase) > 0 {
		return ssh.ParsePrivateKeyWithPassphrase(privateKey, l.Passphrase)
	}
	return ssh.ParsePrivateKey(privateKey)
}

func (l SSHLauncher) knownHostsCallback() (ssh.HostKeyCallback, error) {
	path := strings.TrimSpace(l.KnownHostsPath)
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("known hosts path not set and home dir unavailable")
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	return knownhosts.New(path)
}
