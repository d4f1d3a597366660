package sshx

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/wp-autohealer/engine/internal/errkind"
	"github.com/wp-autohealer/engine/internal/metrics"
	"github.com/wp-autohealer/engine/internal/ports"
	"github.com/wp-autohealer/engine/internal/redact"
	"github.com/wp-autohealer/engine/internal/vault"
)

// CredentialDecrypter decrypts a server's stored credential material. The
// executor depends on this narrow interface rather than the concrete
// *vault.Vault so tests can substitute a fake.
type CredentialDecrypter interface {
	Decrypt(ciphertext string) (string, error)
}

var _ CredentialDecrypter = (*vault.Vault)(nil)

// CommandOptions tunes a single executeCommand call.
type CommandOptions struct {
	Timeout        time.Duration
	SanitizeOutput *bool // nil = true (default)
	Env            map[string]string
}

func (o CommandOptions) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return DefaultCommandTimeout
}

func (o CommandOptions) sanitizeOutput() bool {
	return o.SanitizeOutput == nil || *o.SanitizeOutput
}

// CommandResult is the outcome of executeCommand.
type CommandResult struct {
	Stdout          string
	Stderr          string
	ExitCode        int
	ExecutionTime   time.Duration
	Timestamp       time.Time
	RedactedCommand string
}

// TransferResult is the outcome of uploadFile/downloadFile.
type TransferResult struct {
	Success       bool
	Bytes         int64
	ExecutionTime time.Duration
}

// Executor wraps a pooled connection to execute commands and transfer
// files over SSH, timing and recording metrics around every call the way
// a database connection wrapper would around Exec/Query.
type Executor struct {
	pool    *Pool
	vault   CredentialDecrypter
	logger  *slog.Logger
	metrics *metrics.SSHMetrics
}

func NewExecutor(pool *Pool, v CredentialDecrypter, logger *slog.Logger, m *metrics.SSHMetrics) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{pool: pool, vault: v, logger: logger, metrics: m}
}

// Connect loads credentials, validates the server record, opens a transport
// with strict host-key verification, registers the connection in the pool,
// and returns it.
func (e *Executor) Connect(ctx context.Context, serverID string, rec ports.Server) (*PooledConnection, error) {
	if conn, ok := e.pool.Get(serverID); ok {
		return conn, nil
	}

	hostname, err := ValidateHostname(rec.Hostname)
	if err != nil {
		return nil, err
	}
	port, err := ValidatePort(float64(rec.Port))
	if err != nil {
		return nil, err
	}
	username, err := ValidateUsername(rec.Username)
	if err != nil {
		return nil, err
	}
	authType := AuthType(rec.AuthType)

	credential, err := e.vault.Decrypt(rec.EncryptedCredentials)
	if err != nil {
		return nil, err
	}

	authMethod, err := authMethodFor(authType, credential)
	if err != nil {
		return nil, err
	}

	cfg := ConnectionConfig{
		Hostname:            hostname,
		Port:                port,
		Username:            username,
		AuthType:            authType,
		ExpectedFingerprint: rec.HostKeyFingerprint,
		ConnectTimeout:      DefaultConnectTimeout,
		KeepaliveInterval:   DefaultKeepaliveInterval,
	}

	clientConfig := &ssh.ClientConfig{
		User:            username,
		Auth:            []ssh.AuthMethod{authMethod},
		HostKeyCallback: StrictHostKeyCallback(rec.HostKeyFingerprint),
		Timeout:         cfg.connectTimeout(),
	}

	addr := fmt.Sprintf("%s:%d", hostname, port)
	dialCtx, cancel := context.WithTimeout(ctx, cfg.connectTimeout())
	defer cancel()

	client, err := dialSSH(dialCtx, addr, clientConfig)
	if err != nil {
		if errkind.Classify(err) == errkind.KindHostKey {
			e.logger.Error("ssh host key mismatch, refusing connection",
				"server_id", serverID, "hostname", hostname)
			return nil, err
		}
		return nil, errkind.ConnectionError(fmt.Sprintf("dial %s: %v", addr, err))
	}

	conn := NewPooledConnection(cfg, client)
	if err := e.pool.Add(serverID, conn); err != nil {
		_ = client.Close()
		return nil, err
	}

	e.logger.Info("ssh connection established", "server_id", serverID, "hostname", hostname)
	return conn, nil
}

// dialSSH is indirected so tests can substitute an in-process server dial.
var dialSSH = func(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	type result struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		client, err := ssh.Dial("tcp", addr, cfg)
		ch <- result{client, err}
	}()
	select {
	case r := <-ch:
		return r.client, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func authMethodFor(authType AuthType, credential string) (ssh.AuthMethod, error) {
	switch authType {
	case AuthTypePassword:
		return ssh.Password(credential), nil
	case AuthTypeKey:
		signer, err := ssh.ParsePrivateKey([]byte(credential))
		if err != nil {
			return nil, errkind.AuthError("invalid private key: " + err.Error())
		}
		return ssh.PublicKeys(signer), nil
	default:
		return nil, errkind.AuthError("unsupported auth type")
	}
}

// ExecuteCommand validates cmd, leases the connection, runs it with a
// timeout, and redacts the echoed command and (unless disabled) the
// captured output.
func (e *Executor) ExecuteCommand(ctx context.Context, connID string, cmd string, opts CommandOptions) (CommandResult, error) {
	conn, ok := e.connByID(connID)
	if !ok || !conn.IsConnected() {
		return CommandResult{}, errkind.CommandError("connection not active")
	}

	validated, err := ValidateCommand(cmd)
	if err != nil {
		return CommandResult{}, err
	}

	var env map[string]string
	if len(opts.Env) > 0 {
		env, err = ValidateEnvironmentVariables(opts.Env)
		if err != nil {
			return CommandResult{}, err
		}
	}

	if err := conn.Lease(ctx); err != nil {
		return CommandResult{}, errkind.CommandError("lease: " + err.Error())
	}
	defer e.pool.Release(connID)

	session, err := conn.Client.NewSession()
	if err != nil {
		conn.markDisconnected()
		return CommandResult{}, errkind.ConnectionError(err.Error())
	}
	defer session.Close()

	for k, v := range env {
		_ = session.Setenv(k, v)
	}

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- session.Run(validated) }()

	timeout := opts.timeout()
	var runErr error
	select {
	case runErr = <-done:
	case <-time.After(timeout):
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return CommandResult{}, errkind.CommandError("timeout")
	case <-ctx.Done():
		_ = session.Close()
		return CommandResult{}, errkind.CommandError("cancelled")
	}

	elapsed := time.Since(start)
	if e.metrics != nil {
		e.metrics.RecordCommandDuration(elapsed.Seconds())
	}

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*ssh.ExitError); ok {
			exitCode = exitErr.ExitStatus()
		} else {
			return CommandResult{}, errkind.CommandError(runErr.Error())
		}
	}

	out, errOut := stdout.String(), stderr.String()
	if opts.sanitizeOutput() {
		out = redact.Text(out)
		errOut = redact.Text(errOut)
	}

	return CommandResult{
		Stdout:          out,
		Stderr:          errOut,
		ExitCode:        exitCode,
		ExecutionTime:   elapsed,
		Timestamp:       start,
		RedactedCommand: redact.Command(validated),
	}, nil
}

// ExecuteTemplatedCommand builds a safe command from a template and
// parameters, then executes it.
func (e *Executor) ExecuteTemplatedCommand(ctx context.Context, connID, template string, params map[string]string, opts CommandOptions) (CommandResult, error) {
	cmd, err := CreateSafeTemplate(template, params)
	if err != nil {
		return CommandResult{}, err
	}
	return e.ExecuteCommand(ctx, connID, cmd, opts)
}

// UploadFile writes local's contents to remote over the connection's
// session, piping through `cat > remote`. Avoids depending on an SFTP
// subsystem while keeping remote-path validation in force (documented
// DOMAIN STACK note on SSH file transfer).
func (e *Executor) UploadFile(ctx context.Context, connID, local, remote string) (TransferResult, error) {
	start := time.Now()

	if _, err := ValidatePath(remote, "remote"); err != nil {
		return TransferResult{}, err
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return TransferResult{}, errkind.FileTransferError(local, remote, err.Error())
	}

	conn, ok := e.connByID(connID)
	if !ok || !conn.IsConnected() {
		return TransferResult{}, errkind.FileTransferError(local, remote, "connection not active")
	}
	if err := conn.Lease(ctx); err != nil {
		return TransferResult{}, errkind.FileTransferError(local, remote, err.Error())
	}
	defer e.pool.Release(connID)

	session, err := conn.Client.NewSession()
	if err != nil {
		return TransferResult{}, errkind.FileTransferError(local, remote, err.Error())
	}
	defer session.Close()

	stdin, err := session.StdinPipe()
	if err != nil {
		return TransferResult{}, errkind.FileTransferError(local, remote, err.Error())
	}

	cmd := fmt.Sprintf("cat > %s", remote)
	if err := session.Start(cmd); err != nil {
		return TransferResult{}, errkind.FileTransferError(local, remote, err.Error())
	}

	if _, err := stdin.Write(data); err != nil {
		_ = stdin.Close()
		return TransferResult{}, errkind.FileTransferError(local, remote, err.Error())
	}
	_ = stdin.Close()

	if err := session.Wait(); err != nil {
		return TransferResult{}, errkind.FileTransferError(local, remote, err.Error())
	}

	return TransferResult{Success: true, Bytes: int64(len(data)), ExecutionTime: time.Since(start)}, nil
}

// DownloadFile reads remote's contents via `cat remote` and writes them to
// local, creating intermediate local directories first.
func (e *Executor) DownloadFile(ctx context.Context, connID, remote, local string) (TransferResult, error) {
	start := time.Now()

	if _, err := ValidatePath(remote, "remote"); err != nil {
		return TransferResult{}, err
	}

	conn, ok := e.connByID(connID)
	if !ok || !conn.IsConnected() {
		return TransferResult{}, errkind.FileTransferError(local, remote, "connection not active")
	}
	if err := conn.Lease(ctx); err != nil {
		return TransferResult{}, errkind.FileTransferError(local, remote, err.Error())
	}
	defer e.pool.Release(connID)

	session, err := conn.Client.NewSession()
	if err != nil {
		return TransferResult{}, errkind.FileTransferError(local, remote, err.Error())
	}
	defer session.Close()

	var stdout bytes.Buffer
	session.Stdout = &stdout
	cmd, err := ValidateCommand(fmt.Sprintf("cat %s", remote))
	if err != nil {
		return TransferResult{}, err
	}
	if err := session.Run(cmd); err != nil {
		return TransferResult{}, errkind.FileTransferError(local, remote, err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return TransferResult{}, errkind.FileTransferError(local, remote, err.Error())
	}
	if err := os.WriteFile(local, stdout.Bytes(), 0o644); err != nil {
		return TransferResult{}, errkind.FileTransferError(local, remote, err.Error())
	}

	return TransferResult{Success: true, Bytes: int64(stdout.Len()), ExecutionTime: time.Since(start)}, nil
}

// TestConnection opens a transient connection to verify reachability,
// always closing it afterward.
func (e *Executor) TestConnection(ctx context.Context, rec ports.Server) bool {
	hostname, err := ValidateHostname(rec.Hostname)
	if err != nil {
		return false
	}
	port, err := ValidatePort(float64(rec.Port))
	if err != nil {
		return false
	}
	username, err := ValidateUsername(rec.Username)
	if err != nil {
		return false
	}

	credential, err := e.vault.Decrypt(rec.EncryptedCredentials)
	if err != nil {
		return false
	}
	authMethod, err := authMethodFor(AuthType(rec.AuthType), credential)
	if err != nil {
		return false
	}

	clientConfig := &ssh.ClientConfig{
		User:            username,
		Auth:            []ssh.AuthMethod{authMethod},
		HostKeyCallback: StrictHostKeyCallback(rec.HostKeyFingerprint),
		Timeout:         DefaultConnectTimeout,
	}

	addr := fmt.Sprintf("%s:%d", hostname, port)
	client, err := dialSSH(ctx, addr, clientConfig)
	if err != nil {
		return false
	}
	_ = client.Close()
	return true
}

// ValidateConnection reports whether connID is a pool member and connected.
func (e *Executor) ValidateConnection(connID string) bool {
	conn, ok := e.connByID(connID)
	return ok && conn.IsConnected()
}

func (e *Executor) connByID(connID string) (*PooledConnection, bool) {
	e.pool.mu.Lock()
	defer e.pool.mu.Unlock()
	conn, ok := e.pool.conns[connID]
	return conn, ok
}
