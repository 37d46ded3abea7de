package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/opsdeck/deployd/internal/deploy/model"
	"github.com/opsdeck/deployd/internal/registry"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// Executor runs the deployment command on a target, streaming merged
// stdout/stderr into sink as it arrives. It returns the remote exit code; a
// non-nil error means the session itself failed or timed out and the exit
// code is meaningless.
type Executor interface {
	Run(ctx context.Context, target *registry.Target, command string, sink io.Writer) (int, error)
}

// SSHExecutor is the production Executor backed by an SSH session.
type SSHExecutor struct {
	KeyFile      string
	FallbackUser string
	DialTimeout  time.Duration
	RunTimeout   time.Duration
}

func NewSSHExecutor(keyFile, fallbackUser string, runTimeout time.Duration) *SSHExecutor {
	if runTimeout <= 0 {
		runTimeout = 10 * time.Minute
	}
	return &SSHExecutor{
		KeyFile:      keyFile,
		FallbackUser: fallbackUser,
		DialTimeout:  10 * time.Second,
		RunTimeout:   runTimeout,
	}
}

func (e *SSHExecutor) Run(ctx context.Context, target *registry.Target, command string, sink io.Writer) (int, error) {
	user := target.User
	if user == "" {
		user = e.FallbackUser
	}

	auth, err := e.authMethods()
	if err != nil {
		return 0, &model.ExecError{Target: target.Key(), Reason: err.Error(), Connection: true}
	}

	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         e.DialTimeout,
	}

	addr := net.JoinHostPort(target.IP, strconv.Itoa(target.Port))
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return 0, &model.ExecError{Target: target.Key(), Reason: fmt.Sprintf("dial %s: %v", addr, err), Connection: true}
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return 0, &model.ExecError{Target: target.Key(), Reason: fmt.Sprintf("open session: %v", err), Connection: true}
	}
	defer session.Close()

	// stdout and stderr are written from separate goroutines inside the ssh
	// package; serialize them into one ordered stream.
	out := &lockedWriter{w: sink}
	session.Stdout = out
	session.Stderr = out

	remote := fmt.Sprintf("cd %s && %s", shellQuote(target.Path), command)
	if err := session.Start(remote); err != nil {
		return 0, &model.ExecError{Target: target.Key(), Reason: fmt.Sprintf("start command: %v", err), Connection: true}
	}

	runCtx, cancel := context.WithTimeout(ctx, e.RunTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-runCtx.Done():
		// Kill the remote process; closing the connection tears the session
		// down even when the signal is ignored.
		_ = session.Signal(ssh.SIGKILL)
		client.Close()
		<-done
		log.Warn().Str("target", target.Key()).Dur("timeout", e.RunTimeout).Msg("deployment timed out, session killed")
		return 0, fmt.Errorf("deployment exceeded %s: %w", e.RunTimeout, model.ErrTimeout)
	case err := <-done:
		if err == nil {
			return 0, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitStatus(), nil
		}
		return 0, &model.ExecError{Target: target.Key(), Reason: err.Error(), Connection: true}
	}
}

func (e *SSHExecutor) authMethods() ([]ssh.AuthMethod, error) {
	if e.KeyFile == "" {
		return nil, errors.New("no ssh key file configured")
	}
	key, err := os.ReadFile(e.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key: %w", err)
	}
	return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
