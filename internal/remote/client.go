package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/oauth2"

	"github.com/five82/flyover/internal/state"
	"github.com/five82/flyover/internal/webapi"
)

var log = logging.Logger("remote")

// errStalePoll reports a poll result that arrived after a disconnect.
var errStalePoll = errors.New("poll result outlived its connection")

const (
	defaultPollInterval = time.Second
	defaultQueueFactor  = 5

	// MaxSearchResults is the default search limit.
	MaxSearchResults = 20
)

// Loop names, also used as metric labels.
const (
	LoopPlayback = "playback"
	LoopQueue    = "queue"
)

// Poll outcomes reported to a Recorder.
const (
	OutcomeOK        = "ok"
	OutcomeNoDevice  = "no_device"
	OutcomeTransient = "transient"
	OutcomeRejected  = "rejected"
	OutcomeAuth      = "auth"
)

// Credentials is the persisted token set.
type Credentials interface {
	Connected() bool
	Save(tok *oauth2.Token) error
	Clear() error
}

// Authorizer runs an interactive authorization for clientID.
type Authorizer func(ctx context.Context, clientID string) (*oauth2.Token, error)

// Recorder observes poll outcomes.
type Recorder interface {
	ObservePoll(loop, outcome string)
}

// Options configure a SyncClient.
type Options struct {
	API          webapi.Player
	Store        *state.Store
	Credentials  Credentials
	Authorize    Authorizer
	PollInterval time.Duration // playback loop; zero uses 1s
	QueueFactor  int           // queue loop runs every PollInterval*QueueFactor
	Recorder     Recorder
}

// SyncClient keeps a state.Store in step with the remote player and issues
// commands on the user's behalf.
type SyncClient struct {
	api       webapi.Player
	store     *state.Store
	creds     Credentials
	authorize Authorizer
	recorder  Recorder

	fastInterval time.Duration
	slowInterval time.Duration

	connected atomic.Bool
	// epoch counts disconnects; a poll issued in an earlier epoch is stale.
	epoch atomic.Uint64
	// applyMu orders poll results against disconnect.
	applyMu sync.Mutex

	mu         sync.Mutex
	fastCancel context.CancelFunc
	slowCancel context.CancelFunc
	wg         sync.WaitGroup

	fastKick chan struct{}
	slowKick chan struct{}

	// base outlives the short command contexts that trigger a (re)start of
	// the loops; set by Resume.
	base context.Context

	// Now is the clock stamped onto playback snapshots.
	Now func() time.Time
}

// New builds a SyncClient. It does not start polling.
func New(opts Options) (*SyncClient, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("api client required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	fast := opts.PollInterval
	if fast <= 0 {
		fast = defaultPollInterval
	}
	factor := opts.QueueFactor
	if factor <= 0 {
		factor = defaultQueueFactor
	}
	return &SyncClient{
		api:          opts.API,
		store:        opts.Store,
		creds:        opts.Credentials,
		authorize:    opts.Authorize,
		recorder:     opts.Recorder,
		fastInterval: fast,
		slowInterval: fast * time.Duration(factor),
		fastKick:     make(chan struct{}, 1),
		slowKick:     make(chan struct{}, 1),
		Now:          time.Now,
	}, nil
}

// Connected reports whether the client believes the account is usable.
func (c *SyncClient) Connected() bool {
	return c.connected.Load()
}

// Authenticate runs the authorization flow, stores the tokens and starts
// polling.
func (c *SyncClient) Authenticate(ctx context.Context, clientID string) error {
	if c.authorize == nil {
		return fmt.Errorf("authorization not available")
	}
	tok, err := c.authorize(ctx, clientID)
	if err != nil {
		c.store.SetConnection(state.Connection{Connected: false, LastError: err.Error()})
		return fmt.Errorf("authenticate: %w", err)
	}
	if c.creds != nil {
		if err := c.creds.Save(tok); err != nil {
			log.Warnf("persist tokens: %v", err)
		}
	}
	c.markConnected()
	c.StartPeriodicUpdates(c.pollContext(ctx))
	return nil
}

// pollContext is the context the loops run under. A command context is
// cancelled as soon as the command returns, so it only contributes values.
func (c *SyncClient) pollContext(ctx context.Context) context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.base != nil {
		return c.base
	}
	return context.WithoutCancel(ctx)
}

// Resume starts polling with previously stored credentials. It reports
// whether any were found.
func (c *SyncClient) Resume(ctx context.Context) bool {
	c.mu.Lock()
	c.base = ctx
	c.mu.Unlock()
	if c.creds == nil || !c.creds.Connected() {
		c.store.SetConnection(state.Connection{Connected: false})
		return false
	}
	c.markConnected()
	c.StartPeriodicUpdates(ctx)
	return true
}

// Logout stops polling, forgets tokens and clears the store.
func (c *SyncClient) Logout() error {
	c.StopPeriodicUpdates()
	var err error
	if c.creds != nil {
		err = c.creds.Clear()
	}
	c.connected.Store(false)
	c.store.Reset()
	c.store.SetConnection(state.Connection{Connected: false})
	if err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// StartPeriodicUpdates launches the playback and queue loops. Loops already
// running are stopped first.
func (c *SyncClient) StartPeriodicUpdates(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()

	fastCtx, fastCancel := context.WithCancel(ctx)
	slowCtx, slowCancel := context.WithCancel(ctx)
	c.fastCancel = fastCancel
	c.slowCancel = slowCancel

	c.wg.Add(2)
	go c.loop(fastCtx, LoopPlayback, c.fastInterval, c.fastKick, c.PollPlayback)
	go c.loop(slowCtx, LoopQueue, c.slowInterval, c.slowKick, c.PollQueue)
	log.Infof("polling started (playback %s, queue %s)", c.fastInterval, c.slowInterval)
}

// StopPeriodicUpdates cancels both loops. It is safe to call when stopped.
// It does not wait for in-flight polls; Close does.
func (c *SyncClient) StopPeriodicUpdates() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Polling reports whether the loops are running.
func (c *SyncClient) Polling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fastCancel != nil || c.slowCancel != nil
}

// Close stops polling and waits for the loops to exit.
func (c *SyncClient) Close() {
	c.StopPeriodicUpdates()
	c.wg.Wait()
}

func (c *SyncClient) stopLocked() {
	stopped := false
	if c.fastCancel != nil {
		c.fastCancel()
		c.fastCancel = nil
		stopped = true
	}
	if c.slowCancel != nil {
		c.slowCancel()
		c.slowCancel = nil
		stopped = true
	}
	if stopped {
		log.Infof("polling stopped")
	}
}

// loop polls once, then again on every tick or kick. The body is sequential,
// so a loop never has two requests in flight.
func (c *SyncClient) loop(ctx context.Context, name string, interval time.Duration, kick <-chan struct{}, poll func(context.Context) error) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := poll(ctx); err != nil && ctx.Err() == nil {
			log.Debugf("%s poll: %v", name, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-kick:
		}
	}
}

// PollPlayback fetches the player state once and applies it.
func (c *SyncClient) PollPlayback(ctx context.Context) error {
	epoch := c.epoch.Load()
	ps, err := c.api.PlaybackState(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	noDevice := errors.Is(err, webapi.ErrNoActiveDevice)
	if err != nil && !noDevice {
		return c.pollFailed(LoopPlayback, err)
	}

	return c.apply(ctx, epoch, func() {
		c.store.RecordSuccess()
		c.markConnected()
		if noDevice {
			c.observe(LoopPlayback, OutcomeNoDevice)
			snap := c.store.Snapshot()
			if snap.Playback != nil {
				c.store.SetPlayback(nil)
			}
			if snap.Track != nil {
				c.store.SetTrack(nil)
			}
			return
		}

		c.observe(LoopPlayback, OutcomeOK)
		playback := playbackFrom(ps, c.now())
		current := c.store.Snapshot().Track
		if !sameTrack(current, playback.Track) {
			c.store.SetTrack(playback.Track)
		}
		c.store.SetPlayback(playback)
	})
}

// PollQueue fetches the queue once and applies it.
func (c *SyncClient) PollQueue(ctx context.Context) error {
	epoch := c.epoch.Load()
	q, err := c.api.Queue(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	noDevice := errors.Is(err, webapi.ErrNoActiveDevice)
	if err != nil && !noDevice {
		return c.pollFailed(LoopQueue, err)
	}

	return c.apply(ctx, epoch, func() {
		c.store.RecordSuccess()
		if noDevice {
			c.observe(LoopQueue, OutcomeNoDevice)
			if len(c.store.Snapshot().Queue) > 0 {
				c.store.SetQueue(nil)
			}
			return
		}
		c.observe(LoopQueue, OutcomeOK)
		c.store.SetQueue(queueFrom(q))
	})
}

// apply runs fn with a poll's result unless the loop was stopped or the
// client disconnected while the request was in flight.
func (c *SyncClient) apply(ctx context.Context, epoch uint64, fn func()) error {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.epoch.Load() != epoch {
		return errStalePoll
	}
	fn()
	return nil
}

// pollFailed applies the failure policy. Only auth failures change state.
func (c *SyncClient) pollFailed(loop string, err error) error {
	if webapi.IsAuth(err) {
		c.observe(loop, OutcomeAuth)
		c.disconnect(err)
		return err
	}
	if webapi.IsTransient(err) {
		c.observe(loop, OutcomeTransient)
	} else {
		c.observe(loop, OutcomeRejected)
	}
	c.store.RecordFailure(err)
	log.Warnf("%s poll failed: %v", loop, err)
	return err
}

// disconnect runs once per connected period, however many loops observe the
// auth failure.
func (c *SyncClient) disconnect(cause error) {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()
	if !c.connected.CompareAndSwap(true, false) {
		return
	}
	c.epoch.Add(1)
	log.Warnf("disconnected: %v", cause)
	c.StopPeriodicUpdates()
	c.store.Reset()
	c.store.SetConnection(state.Connection{Connected: false, LastError: cause.Error()})
}

func (c *SyncClient) markConnected() {
	if c.connected.CompareAndSwap(false, true) || !c.store.Snapshot().Connection.Connected {
		c.store.SetConnection(state.Connection{Connected: true})
	}
}

func (c *SyncClient) observe(loop, outcome string) {
	if c.recorder != nil {
		c.recorder.ObservePoll(loop, outcome)
	}
}

func (c *SyncClient) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func kick(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func sameTrack(a, b *state.Track) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID && a.URI == b.URI
}
