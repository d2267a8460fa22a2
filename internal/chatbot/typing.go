package chatbot

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// TypingPolicy controls the pacing of the typing animation.
type TypingPolicy struct {
	CharDelay     time.Duration
	SentencePause time.Duration
	ClausePause   time.Duration
	// Jitter is the maximum relative deviation applied to every delay (0.3 = ±30%).
	Jitter float64
}

// DefaultTypingPolicy derives pauses from the per-character delay.
func DefaultTypingPolicy(charDelay time.Duration) TypingPolicy {
	return TypingPolicy{
		CharDelay:     charDelay,
		SentencePause: charDelay * 12,
		ClausePause:   charDelay * 5,
		Jitter:        0.3,
	}
}

// Typist animates bot replies by emitting growing prefixes of the final text.
// One Typist may be shared by many sessions.
type Typist struct {
	policy TypingPolicy
	sleep  func(ctx context.Context, d time.Duration) error

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewTypist creates a typist. A nil rnd uses a randomly seeded source.
func NewTypist(policy TypingPolicy, rnd *rand.Rand) *Typist {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if policy.Jitter < 0 {
		policy.Jitter = 0
	}
	return &Typist{policy: policy, sleep: sleepContext, rnd: rnd}
}

// Type calls update with successively longer prefixes of text and returns
// once the full text was emitted. A cancelled ctx stops the animation; no
// update happens after Type returns.
func (t *Typist) Type(ctx context.Context, text string, update func(prefix string)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t == nil || t.policy.CharDelay <= 0 || text == "" {
		update(text)
		return nil
	}

	runes := []rune(text)
	var prev rune
	for i, r := range runes {
		if err := t.sleep(ctx, t.delayAfter(prev)); err != nil {
			return err
		}
		update(string(runes[:i+1]))
		prev = r
	}
	return nil
}

// delayAfter returns the jittered pause before the rune that follows prev.
func (t *Typist) delayAfter(prev rune) time.Duration {
	base := t.policy.CharDelay
	switch prev {
	case '.', '!', '?':
		base += t.policy.SentencePause
	case ',', ';':
		base += t.policy.ClausePause
	}
	return t.jitter(base)
}

func (t *Typist) jitter(d time.Duration) time.Duration {
	if t.policy.Jitter == 0 || d <= 0 {
		return d
	}
	t.mu.Lock()
	f := t.rnd.Float64()
	t.mu.Unlock()
	scale := 1 + t.policy.Jitter*(2*f-1)
	return time.Duration(float64(d) * scale)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
