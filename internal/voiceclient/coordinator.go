package voiceclient

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// Player creates playback handles for audio artifacts.
type Player interface {
	Play(ctx context.Context, artifactURL string) (Playback, error)
}

// Playback is one in-flight audio playback. Done resolves exactly once,
// on completion, error or Stop.
type Playback interface {
	Done() <-chan error
	Stop()
}

// Coordinator owns at most one active playback handle. Starting a new
// playback stops the previous one, so rapid successive replies never
// overlap audibly.
type Coordinator struct {
	player Player

	mu     sync.Mutex
	active Playback
	gen    int
}

func NewCoordinator(player Player) *Coordinator {
	return &Coordinator{player: player}
}

// Play stops any active handle, cache-busts the artifact URL so a
// previously fetched clip is never replayed stale, and starts the new
// playback. The returned channel resolves when playback completes or
// errors; both resolve to "not speaking".
func (c *Coordinator) Play(ctx context.Context, artifactURL string) (<-chan error, error) {
	busted, err := cacheBust(artifactURL)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.active != nil {
		c.active.Stop()
		c.active = nil
	}
	pb, err := c.player.Play(ctx, busted)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.gen++
	gen := c.gen
	c.active = pb
	c.mu.Unlock()

	out := make(chan error, 1)
	go func() {
		res := <-pb.Done()
		c.mu.Lock()
		if c.gen == gen && c.active == pb {
			c.active = nil
		}
		c.mu.Unlock()
		out <- res
	}()
	return out, nil
}

// Stop is idempotent and safe to call with no active handle.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		c.active.Stop()
		c.active = nil
	}
}

// Speaking reports whether a playback handle is currently active.
func (c *Coordinator) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

func cacheBust(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("t", strconv.FormatInt(time.Now().UnixNano(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
