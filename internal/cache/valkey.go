package cache

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// ValkeyConfig holds connection parameters for a Valkey/Redis-compatible
// server.
type ValkeyConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TLS          bool
}

// ValkeyProvider implements Provider against a Valkey server. Connections
// are dialed per operation; the cached payloads here are small and
// infrequent enough that pooling is not worth the state.
type ValkeyProvider struct {
	cfg ValkeyConfig
}

// NewValkeyProvider creates a Provider using the supplied configuration and
// pings the target so misconfiguration fails fast at startup.
func NewValkeyProvider(cfg ValkeyConfig) (*ValkeyProvider, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}

	p := &ValkeyProvider{cfg: cfg}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if _, err := p.roundTrip(ctx, "PING"); err != nil {
		return nil, fmt.Errorf("valkey ping: %w", err)
	}
	return p, nil
}

// Get fetches bytes by key, returning ErrCacheMiss when the key is absent.
func (p *ValkeyProvider) Get(ctx context.Context, key string) ([]byte, error) {
	reply, err := p.roundTrip(ctx, "GET", key)
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, ErrCacheMiss
	}
	return reply, nil
}

// Set stores bytes with the provided TTL.
func (p *ValkeyProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := []string{"SET", key, string(value)}
	if ttl > 0 {
		args = append(args, "PX", strconv.FormatInt(ttl.Milliseconds(), 10))
	}
	reply, err := p.roundTrip(ctx, args...)
	if err != nil {
		return err
	}
	if !strings.EqualFold(string(reply), "OK") {
		return fmt.Errorf("unexpected SET reply: %s", reply)
	}
	return nil
}

// Del removes a key from the cache.
func (p *ValkeyProvider) Del(ctx context.Context, key string) error {
	_, err := p.roundTrip(ctx, "DEL", key)
	return err
}

// Close is a no-op; the provider holds no persistent connections.
func (p *ValkeyProvider) Close() error { return nil }

// roundTrip dials, authenticates, sends one command and reads its reply. A
// nil reply with nil error represents the RESP nil bulk string.
func (p *ValkeyProvider) roundTrip(ctx context.Context, args ...string) ([]byte, error) {
	conn, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))

	if p.cfg.Password != "" {
		auth := []string{"AUTH", p.cfg.Password}
		if p.cfg.Username != "" {
			auth = []string{"AUTH", p.cfg.Username, p.cfg.Password}
		}
		if _, err := p.command(conn, rw, auth...); err != nil {
			return nil, fmt.Errorf("valkey auth: %w", err)
		}
	}
	if p.cfg.DB > 0 {
		if _, err := p.command(conn, rw, "SELECT", strconv.Itoa(p.cfg.DB)); err != nil {
			return nil, fmt.Errorf("valkey select: %w", err)
		}
	}
	return p.command(conn, rw, args...)
}

func (p *ValkeyProvider) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: p.cfg.DialTimeout}
	if !p.cfg.TLS {
		return dialer.DialContext(ctx, "tcp", p.cfg.Addr)
	}
	host := p.cfg.Addr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return tls.DialWithDialer(&dialer, "tcp", p.cfg.Addr, &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: host,
	})
}

func (p *ValkeyProvider) command(conn net.Conn, rw *bufio.ReadWriter, args ...string) ([]byte, error) {
	_ = conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
	fmt.Fprintf(rw, "*%d\r\n", len(args))
	for _, arg := range args {
		fmt.Fprintf(rw, "$%d\r\n%s\r\n", len(arg), arg)
	}
	if err := rw.Flush(); err != nil {
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(p.cfg.ReadTimeout))
	return readReply(rw.Reader)
}

// readReply parses the subset of RESP the provider issues: simple strings,
// errors, integers, bulk strings and nil.
func readReply(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, errors.New("empty valkey reply")
	}

	body := line[1:]
	switch line[0] {
	case '+', ':':
		return []byte(body), nil
	case '-':
		return nil, fmt.Errorf("valkey error: %s", body)
	case '$':
		n, err := strconv.Atoi(body)
		if err != nil {
			return nil, fmt.Errorf("bad bulk length %q", body)
		}
		if n < 0 {
			return nil, nil
		}
		buf := make([]byte, n+2)
		if _, err := ioReadFull(r, buf); err != nil {
			return nil, err
		}
		return buf[:n], nil
	case '_':
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported valkey reply %q", line)
	}
}

func ioReadFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
