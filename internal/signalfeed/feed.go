package signalfeed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const DefaultPingInterval = 5 * time.Second

// Options tunes the websocket feed.
type Options struct {
	PingInterval time.Duration

	BackoffMin time.Duration
	BackoffMax time.Duration
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.BackoffMin <= 0 {
		o.BackoffMin = 500 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 15 * time.Second
	}
	return o
}

// Feed maintains a websocket connection to a quote publisher and caches the
// newest signal. It reconnects with jittered exponential backoff and serves
// reads from the cache, so a dropped feed degrades to "no signal" rather than
// stalling the poll loop.
type Feed struct {
	mu     sync.Mutex
	latest *Signal
	err    error
}

// StartFeed connects to url and keeps the feed's cache current until ctx is
// cancelled.
func StartFeed(ctx context.Context, url string, opts Options) *Feed {
	opts = opts.withDefaults()
	f := &Feed{}

	go func() {
		backoff := opts.BackoffMin
		for {
			if ctx.Err() != nil {
				return
			}

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			if err != nil {
				f.setErr(fmt.Errorf("signal feed dial: %w", err))
				sleepWithJitter(ctx, backoff)
				backoff = nextBackoff(backoff, opts.BackoffMax)
				continue
			}

			backoff = opts.BackoffMin
			if err := f.runSession(ctx, conn, opts.PingInterval); err != nil && ctx.Err() == nil {
				f.setErr(err)
			}
			_ = conn.Close()
			if ctx.Err() != nil {
				return
			}
			sleepWithJitter(ctx, backoff)
			backoff = nextBackoff(backoff, opts.BackoffMax)
		}
	}()

	return f
}

// Latest returns the newest cached signal. The deferred connection error (if
// any) is reported once and cleared, so a recovering feed goes quiet again.
func (f *Feed) Latest() (*Signal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.err
	f.err = nil
	return f.latest, err
}

func (f *Feed) setLatest(sig *Signal) {
	f.mu.Lock()
	f.latest = sig
	f.mu.Unlock()
}

func (f *Feed) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *Feed) runSession(ctx context.Context, conn *websocket.Conn, pingInterval time.Duration) error {
	var writeMu sync.Mutex
	stop := make(chan struct{})
	var stopOnce sync.Once
	stopAll := func() { stopOnce.Do(func() { close(stop) }) }

	go func() {
		defer stopAll()
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-t.C:
				writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(3 * time.Second))
				werr := conn.WriteMessage(websocket.TextMessage, []byte("ping"))
				writeMu.Unlock()
				if werr != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			stopAll()
			if errors.Is(err, websocket.ErrCloseSent) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("signal feed read: %w", err)
		}

		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		if len(msg) == 0 || string(msg) == "pong" || string(msg) == "ping" {
			continue
		}

		sig, err := ParseSignal(msg)
		if err != nil {
			f.setErr(err)
			continue
		}
		if sig != nil {
			f.setLatest(sig)
		}
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithJitter(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	j := int64(d) / 7
	if j > 0 {
		d = time.Duration(int64(d) + rand.Int63n(2*j+1) - j)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
