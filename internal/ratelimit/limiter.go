// Package ratelimit throttles password login attempts per account and per
// client address.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Clock lets tests control time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Config struct {
	// MaxAttempts failed logins for one account start a lockout.
	MaxAttempts int
	Lockout     time.Duration
	// MaxIPPerHour caps failed logins from one client address.
	MaxIPPerHour int

	Clock Clock
}

func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  5,
		Lockout:      5 * time.Minute,
		MaxIPPerHour: 30,
	}
}

type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string
}

type entry struct {
	count    int
	firstAt  time.Time
	lastAt   time.Time
	lockedAt time.Time
}

type Limiter struct {
	config *Config
	clock  Clock

	mu        sync.RWMutex
	byAccount map[string]*entry
	byIP      map[string]*entry

	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	cleanupOnce   sync.Once
	cleanupWg     sync.WaitGroup
}

func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		config:        cfg,
		clock:         clock,
		byAccount:     make(map[string]*entry),
		byIP:          make(map[string]*entry),
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}
}

// Close stops the background cleanup.
func (l *Limiter) Close() {
	l.cleanupCancel()
	l.cleanupWg.Wait()
}

// CheckLogin reports whether a login attempt may proceed. It does not count
// the attempt; call RecordFailure once the password check fails.
func (l *Limiter) CheckLogin(username, ip string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()
	accountKey := hashKey("account:", normalizeIdentifier(username))
	ipKey := hashKey("ip:", ip)

	l.mu.RLock()
	defer l.mu.RUnlock()

	if e := l.byAccount[accountKey]; e != nil {
		if !e.lockedAt.IsZero() {
			if elapsed := now.Sub(e.lockedAt); elapsed < l.config.Lockout {
				return LimitResult{RetryAfter: l.config.Lockout - elapsed, Reason: "lockout"}
			}
		} else if e.count >= l.config.MaxAttempts {
			return LimitResult{RetryAfter: l.config.Lockout, Reason: "max_attempts"}
		}
	}

	if e := l.byIP[ipKey]; e != nil {
		if now.Sub(e.firstAt) < time.Hour && e.count >= l.config.MaxIPPerHour {
			return LimitResult{RetryAfter: time.Hour - now.Sub(e.firstAt), Reason: "ip_hourly_limit"}
		}
	}

	return LimitResult{Allowed: true}
}

// RecordFailure counts a failed login and reports whether it started a lockout.
func (l *Limiter) RecordFailure(username, ip string) (lockedOut bool) {
	now := l.clock.Now()
	accountKey := hashKey("account:", normalizeIdentifier(username))
	ipKey := hashKey("ip:", ip)

	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.byAccount[accountKey]
	switch {
	case e == nil:
		e = &entry{count: 1, firstAt: now, lastAt: now}
		l.byAccount[accountKey] = e
	case !e.lockedAt.IsZero() && now.Sub(e.lockedAt) >= l.config.Lockout:
		e = &entry{count: 1, firstAt: now, lastAt: now}
		l.byAccount[accountKey] = e
	default:
		e.count++
		e.lastAt = now
	}
	if e.count >= l.config.MaxAttempts && e.lockedAt.IsZero() {
		e.lockedAt = now
		lockedOut = true
	}

	if ipEntry := l.byIP[ipKey]; ipEntry == nil || now.Sub(ipEntry.firstAt) >= time.Hour {
		l.byIP[ipKey] = &entry{count: 1, firstAt: now, lastAt: now}
	} else {
		ipEntry.count++
		ipEntry.lastAt = now
	}

	return lockedOut
}

// Reset clears the account counter after a successful login. The address
// counter is left alone.
func (l *Limiter) Reset(username string) {
	accountKey := hashKey("account:", normalizeIdentifier(username))
	l.mu.Lock()
	delete(l.byAccount, accountKey)
	l.mu.Unlock()
}

func hashKey(prefix, value string) string {
	hash := sha256.Sum256([]byte(value))
	return prefix + hex.EncodeToString(hash[:8])
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func (l *Limiter) startCleanup() {
	l.cleanupOnce.Do(func() {
		l.cleanupWg.Add(1)
		go func() {
			defer l.cleanupWg.Done()
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-l.cleanupCtx.Done():
					return
				case <-ticker.C:
					l.cleanup()
				}
			}
		}()
	})
}

func (l *Limiter) cleanup() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	maxAge := l.config.Lockout + time.Hour
	for k, e := range l.byAccount {
		if now.Sub(e.lastAt) > maxAge {
			delete(l.byAccount, k)
		}
	}
	for k, e := range l.byIP {
		if now.Sub(e.lastAt) > time.Hour {
			delete(l.byIP, k)
		}
	}
}

// ClientIP returns the caller's address. With trustProxy it takes the
// rightmost public hop of X-Forwarded-For, then X-Real-IP; otherwise only
// RemoteAddr is used so clients cannot spoof it.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			for i := len(parts) - 1; i >= 0; i-- {
				ip := strings.TrimSpace(parts[i])
				if ip != "" && !isPrivateIP(ip) {
					return ip
				}
			}
			return strings.TrimSpace(parts[len(parts)-1])
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

var privateNetworks []*net.IPNet

func init() {
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	} {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("invalid private CIDR: " + cidr)
		}
		privateNetworks = append(privateNetworks, network)
	}
}

func isPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	if ipv4 := ip.To4(); ipv4 != nil {
		ip = ipv4
	}
	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// MaskUsername keeps the first two characters of a username for logs.
func MaskUsername(username string) string {
	username = normalizeIdentifier(username)
	if len(username) > 2 {
		return username[:2] + "***"
	}
	return "***"
}

func LogThrottled(username, ip, reason string) {
	log.Warn().
		Str("event", "login_throttled").
		Str("username", MaskUsername(username)).
		Str("ip", ip).
		Str("reason", reason).
		Msg("Login rate limit exceeded")
}
