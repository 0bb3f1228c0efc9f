// Package tunnel provides a locally bound TCP forwarder that relays
// connections to a remote database host through an SSH intermediary.
package tunnel

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// Config holds SSH tunnel settings. Host and User are required; exactly one
// of Password, PrivateKeyPath, or PrivateKey must be set.
type Config struct {
	Enabled        bool
	Host           string
	Port           int
	User           string
	Password       string
	PrivateKeyPath string
	PrivateKey     string
	// TargetHost/TargetPort is the database endpoint as seen from the SSH
	// host. Callers default these to the main database host/port.
	TargetHost string
	TargetPort int
	// LocalPort 0 lets the OS assign one.
	LocalPort int
	// DialTimeout bounds the SSH handshake. Defaults to 10s.
	DialTimeout time.Duration
}

// Validate checks the credential and endpoint requirements. It does not
// touch the network.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("tunnel: ssh host is required")
	}
	if c.User == "" {
		return fmt.Errorf("tunnel: ssh user is required")
	}
	creds := 0
	if c.Password != "" {
		creds++
	}
	if c.PrivateKeyPath != "" {
		creds++
	}
	if c.PrivateKey != "" {
		creds++
	}
	if creds == 0 {
		return fmt.Errorf("tunnel: an ssh credential is required (password, key file, or inline key)")
	}
	if creds > 1 {
		return fmt.Errorf("tunnel: exactly one ssh credential must be set, got %d", creds)
	}
	if c.TargetHost == "" {
		return fmt.Errorf("tunnel: target host is required")
	}
	if c.TargetPort <= 0 || c.TargetPort > 65535 {
		return fmt.Errorf("tunnel: target port must be in 1-65535, got %d", c.TargetPort)
	}
	return nil
}

func (c Config) authMethod() (ssh.AuthMethod, error) {
	switch {
	case c.Password != "":
		return ssh.Password(c.Password), nil
	case c.PrivateKeyPath != "":
		key, err := os.ReadFile(c.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("tunnel: failed to read private key %s: %w", c.PrivateKeyPath, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("tunnel: failed to parse private key %s: %w", c.PrivateKeyPath, err)
		}
		return ssh.PublicKeys(signer), nil
	default:
		signer, err := ssh.ParsePrivateKey([]byte(c.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("tunnel: failed to parse inline private key: %w", err)
		}
		return ssh.PublicKeys(signer), nil
	}
}

// Tunnel is a live forwarding endpoint. Close tears down the listener and
// the SSH client; it is idempotent.
type Tunnel struct {
	client   *ssh.Client
	listener net.Listener
	local    *net.TCPAddr
	logger   zerolog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// Open dials the SSH host, binds the local listener, and starts the accept
// loop. On any failure nothing is left open.
func Open(config Config, logger zerolog.Logger) (*Tunnel, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	auth, err := config.authMethod()
	if err != nil {
		return nil, err
	}

	port := config.Port
	if port == 0 {
		port = 22
	}
	dialTimeout := config.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 10 * time.Second
	}

	clientConfig := &ssh.ClientConfig{
		User: config.User,
		Auth: []ssh.AuthMethod{auth},
		// Host keys are not verified. The tunnel protects the database
		// credential path, not the SSH trust chain.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	}

	addr := net.JoinHostPort(config.Host, fmt.Sprintf("%d", port))
	client, err := ssh.Dial("tcp", addr, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("tunnel: ssh dial %s failed: %w", addr, err)
	}

	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", fmt.Sprintf("%d", config.LocalPort)))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("tunnel: failed to bind local listener: %w", err)
	}

	t := &Tunnel{
		client:   client,
		listener: listener,
		local:    listener.Addr().(*net.TCPAddr),
		logger:   logger,
		closed:   make(chan struct{}),
	}

	target := net.JoinHostPort(config.TargetHost, fmt.Sprintf("%d", config.TargetPort))
	go t.acceptLoop(target)

	logger.Info().
		Str("ssh_host", addr).
		Str("target", target).
		Int("local_port", t.local.Port).
		Msg("ssh tunnel established")
	return t, nil
}

// LocalHost returns the loopback address the tunnel listens on.
func (t *Tunnel) LocalHost() string { return "127.0.0.1" }

// LocalPort returns the bound local port.
func (t *Tunnel) LocalPort() int { return t.local.Port }

// Close shuts the listener and the SSH client, in that order.
func (t *Tunnel) Close() {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.listener.Close()
		t.client.Close()
		t.logger.Info().Int("local_port", t.local.Port).Msg("ssh tunnel closed")
	})
}

func (t *Tunnel) acceptLoop(target string) {
	for {
		local, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.closed:
			default:
				t.logger.Warn().Err(err).Msg("tunnel accept failed")
			}
			return
		}
		go t.forward(local, target)
	}
}

func (t *Tunnel) forward(local net.Conn, target string) {
	remote, err := t.client.Dial("tcp", target)
	if err != nil {
		t.logger.Warn().Err(err).Str("target", target).Msg("tunnel forward dial failed")
		local.Close()
		return
	}

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(remote, local)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(local, remote)
		done <- struct{}{}
	}()
	<-done
	local.Close()
	remote.Close()
}
