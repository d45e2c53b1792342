package cluster

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// runner executes a shell command on the remote host.
type runner interface {
	Run(ctx context.Context, cmd string) ([]byte, error)
}

// Remote reads the cluster filesystem by running ls, cat and md5sum over SSH.
type Remote struct {
	run    runner
	closer io.Closer
}

var _ FS = (*Remote)(nil)

// DialOptions configures the SSH connection.
type DialOptions struct {
	// Host is the host alias, optionally with :port.
	Host string
	User string
	// KnownHosts defaults to ~/.ssh/known_hosts.
	KnownHosts string
}

// Dial connects to the cluster host authenticating through the SSH agent.
func Dial(ctx context.Context, opts DialOptions) (*Remote, error) {
	username := opts.User
	if username == "" {
		u, err := user.Current()
		if err != nil {
			return nil, err
		}
		username = u.Username
	}
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, errors.New("cluster: SSH_AUTH_SOCK not set")
	}
	var d net.Dialer
	agentConn, err := d.DialContext(ctx, "unix", sock)
	if err != nil {
		return nil, fmt.Errorf("cluster: ssh agent: %w", err)
	}
	hostsFile := opts.KnownHosts
	if hostsFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		hostsFile = filepath.Join(home, ".ssh", "known_hosts")
	}
	hostKeys, err := knownhosts.New(hostsFile)
	if err != nil {
		return nil, fmt.Errorf("cluster: known hosts: %w", err)
	}
	config := &ssh.ClientConfig{
		User:            username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeysCallback(agent.NewClient(agentConn).Signers)},
		HostKeyCallback: hostKeys,
	}
	host := opts.Host
	if !strings.Contains(host, ":") {
		host += ":22"
	}
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return nil, fmt.Errorf("cluster: dial %s: %w", host, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, host, config)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("cluster: ssh handshake %s: %w", host, err)
	}
	client := ssh.NewClient(c, chans, reqs)
	return &Remote{run: sshRunner{client: client}, closer: multiCloser{client, agentConn}}, nil
}

// Close releases the SSH connection.
func (r *Remote) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []error
	for _, c := range m {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

type sshRunner struct {
	client *ssh.Client
}

func (s sshRunner) Run(ctx context.Context, cmd string) ([]byte, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return nil, err
	}
	defer func() { _ = sess.Close() }()
	var stderr bytes.Buffer
	sess.Stderr = &stderr
	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := sess.Output(cmd)
		done <- result{out, err}
	}()
	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		_ = sess.Close()
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("%s: %w: %s", cmd, res.err, strings.TrimSpace(stderr.String()))
		}
		return res.out, nil
	}
}

// Walk implements FS using ls -liR.
func (r *Remote) Walk(ctx context.Context, root string) ([]Entry, error) {
	out, err := r.run.Run(ctx, "ls -liR --time-style=+%s "+shellQuote(root))
	if err != nil {
		return nil, err
	}
	return parseListing(bytes.NewReader(out), root)
}

// Open implements FS using cat.
func (r *Remote) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	out, err := r.run.Run(ctx, "cat "+shellQuote(p))
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(out)), nil
}

// MD5 implements FS using md5sum.
func (r *Remote) MD5(ctx context.Context, p string) (string, error) {
	out, err := r.run.Run(ctx, "md5sum "+shellQuote(p))
	if err != nil {
		return "", err
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return "", fmt.Errorf("md5sum %s: empty output", p)
	}
	return strings.ToLower(fields[0]), nil
}

// parseListing reads `ls -liR --time-style=+%s` output. Lines look like
// "<inode> <mode> <links> <user> <group> <size> <epoch> <name>"; directory
// headers end with a colon.
func parseListing(r io.Reader, root string) ([]Entry, error) {
	dir := root
	var out []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " ")
		if line == "" || strings.HasPrefix(line, "total ") {
			continue
		}
		fields := strings.Fields(line)
		if strings.HasSuffix(line, ":") {
			if _, err := strconv.ParseUint(fields[0], 10, 64); err != nil {
				dir = strings.TrimSuffix(line, ":")
				continue
			}
		}
		if len(fields) < 8 || !strings.HasPrefix(fields[1], "-") {
			continue
		}
		inode, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseInt(fields[5], 10, 64)
		if err != nil {
			continue
		}
		name := strings.Join(fields[7:], " ")
		out = append(out, newEntry(inode, path.Join(dir, name), size))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
