// Package mutex serializes reconciliation against a device through a lease
// record stored on the device itself. The record is the exclusivity
// primitive: whichever process created it holds the device until the lease
// is released or expires.
package mutex

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tenantctl/tenantctl/pkg/util"
)

// RecordStore is the device record API the lease is built on: create,
// read, update and delete of a single named key-value record.
type RecordStore interface {
	// CreateRecord creates the named record, failing with
	// util.ErrAlreadyExists when it is present.
	CreateRecord(ctx context.Context, name string, fields map[string]string) error

	// GetRecord reads the named record, failing with util.ErrNotFound
	// when it is absent.
	GetRecord(ctx context.Context, name string) (map[string]string, error)

	// UpdateRecord rewrites fields of an existing record.
	UpdateRecord(ctx context.Context, name string, fields map[string]string) error

	// DeleteRecord removes the record. Deleting an absent record is not
	// an error.
	DeleteRecord(ctx context.Context, name string) error
}

// State tracks the lease lifecycle.
type State int

const (
	StateUnlocked State = iota
	StateAcquiring
	StateHeld
	StateReleasing
)

func (s State) String() string {
	switch s {
	case StateUnlocked:
		return "unlocked"
	case StateAcquiring:
		return "acquiring"
	case StateHeld:
		return "held"
	case StateReleasing:
		return "releasing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// LeaseField is the record field carrying the holder's timestamp.
const LeaseField = "description"

const (
	// DefaultTimeout is the lease lifetime; a lease older than this is
	// stale and may be taken over.
	DefaultTimeout = 5 * time.Minute

	// DefaultGraceDelay separates a stale-lease deletion from the retry,
	// giving cooperating processes time to observe the stop signal.
	DefaultGraceDelay = 2 * time.Second

	// refreshMargin is subtracted from the timeout to get the refresh
	// interval, so a held lease never looks stale to competitors.
	refreshMargin = 30 * time.Second
)

// Options tune a Mutex. The zero value uses defaults.
type Options struct {
	Timeout    time.Duration
	GraceDelay time.Duration

	// RefreshInterval overrides the computed Timeout - 30s interval.
	RefreshInterval time.Duration

	// StopBroadcast, when set, is invoked best-effort after a stale lease
	// is deleted and before the retry, signalling cooperating background
	// processes to stand down.
	StopBroadcast func(ctx context.Context)

	// Now overrides the clock.
	Now func() time.Time
}

// Mutex is a device-scoped lease. One instance serializes the Tenant audits
// of a single request; the record provides cross-process exclusivity.
type Mutex struct {
	store  RecordStore
	device string
	name   string
	opts   Options

	mu          sync.Mutex
	state       State
	stopRefresh chan struct{}
	refreshDone chan struct{}
}

// RecordName returns the lease record name for a device.
func RecordName(device string) string {
	return "tenantctl_lock_" + device
}

// New creates a mutex for the given device backed by the given store.
func New(store RecordStore, device string, opts Options) *Mutex {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.GraceDelay <= 0 {
		opts.GraceDelay = DefaultGraceDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Mutex{
		store:  store,
		device: device,
		name:   RecordName(device),
		opts:   opts,
	}
}

// State returns the current lifecycle state.
func (m *Mutex) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Acquire creates the lease record and starts the background refresh. A
// live competing lease fails with a MutexError carrying a retry hint; a
// stale one is deleted and acquisition retried once after a grace delay.
func (m *Mutex) Acquire(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateUnlocked {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("acquire in state %s: %w", state, util.ErrConflict)
	}
	m.state = StateAcquiring
	m.mu.Unlock()

	err := m.tryCreate(ctx)
	if errors.Is(err, util.ErrAlreadyExists) {
		err = m.contendLease(ctx)
	}
	if err != nil {
		m.mu.Lock()
		m.state = StateUnlocked
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.state = StateHeld
	m.stopRefresh = make(chan struct{})
	m.refreshDone = make(chan struct{})
	go m.refreshLoop(m.stopRefresh, m.refreshDone)
	m.mu.Unlock()

	util.Logger.WithField("device", m.device).Debug("Device lease acquired")
	return nil
}

func (m *Mutex) tryCreate(ctx context.Context) error {
	fields := map[string]string{
		LeaseField: m.opts.Now().UTC().Format(time.RFC3339),
	}
	return m.store.CreateRecord(ctx, m.name, fields)
}

// contendLease handles an existing lease: stale leases are taken over,
// live ones produce the "operation in progress" failure.
func (m *Mutex) contendLease(ctx context.Context) error {
	fields, err := m.store.GetRecord(ctx, m.name)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			// Holder released between our create and read.
			return m.tryCreate(ctx)
		}
		return fmt.Errorf("reading lease for %s: %w", m.device, err)
	}

	stamp := fields[LeaseField]
	held, err := time.Parse(time.RFC3339, stamp)
	if err == nil && m.opts.Now().UTC().Sub(held) <= m.opts.Timeout {
		return &util.MutexError{
			Device:     m.device,
			Holder:     stamp,
			RetryAfter: m.opts.Timeout,
		}
	}

	// Unparseable or expired: the holder is gone. Take the lease over.
	util.Logger.WithField("device", m.device).WithField("holder", stamp).
		Warn("Deleting stale device lease")
	if err := m.store.DeleteRecord(ctx, m.name); err != nil {
		return fmt.Errorf("deleting stale lease for %s: %w", m.device, err)
	}
	if m.opts.StopBroadcast != nil {
		m.opts.StopBroadcast(ctx)
	}
	select {
	case <-time.After(m.opts.GraceDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	// Single retry; a second conflict means someone else won the race.
	if err := m.tryCreate(ctx); err != nil {
		if errors.Is(err, util.ErrAlreadyExists) {
			return &util.MutexError{Device: m.device, RetryAfter: m.opts.Timeout}
		}
		return err
	}
	return nil
}

func (m *Mutex) refreshInterval() time.Duration {
	if m.opts.RefreshInterval > 0 {
		return m.opts.RefreshInterval
	}
	interval := m.opts.Timeout - refreshMargin
	if interval <= 0 {
		interval = m.opts.Timeout / 2
	}
	return interval
}

// refreshLoop rewrites the lease timestamp periodically while held.
// Refresh failures are logged only; the audit keeps running and the lease
// self-expires if the device stays unreachable.
func (m *Mutex) refreshLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.refreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			fields := map[string]string{
				LeaseField: m.opts.Now().UTC().Format(time.RFC3339),
			}
			if err := m.store.UpdateRecord(context.Background(), m.name, fields); err != nil {
				util.Logger.WithField("device", m.device).
					WithField("error", err.Error()).
					Warn("Device lease refresh failed")
			}
		}
	}
}

// Release stops the refresh and deletes the lease. A failed deletion is
// tolerated; the lease self-expires.
func (m *Mutex) Release(ctx context.Context) {
	m.mu.Lock()
	if m.state != StateHeld {
		m.mu.Unlock()
		return
	}
	m.state = StateReleasing
	stop, done := m.stopRefresh, m.refreshDone
	m.stopRefresh, m.refreshDone = nil, nil
	m.mu.Unlock()

	close(stop)
	<-done

	if err := m.store.DeleteRecord(ctx, m.name); err != nil {
		util.Logger.WithField("device", m.device).
			WithField("error", err.Error()).
			Warn("Device lease delete failed, lease will expire")
	}

	m.mu.Lock()
	m.state = StateUnlocked
	m.mu.Unlock()

	util.Logger.WithField("device", m.device).Debug("Device lease released")
}
