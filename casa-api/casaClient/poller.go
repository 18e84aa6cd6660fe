package casaClient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaStructs"
	"go.uber.org/zap"
)

const (
	DefaultPollInterval = 30 * time.Second

	mailboxSize = 8
)

type Fetcher interface {
	FetchSnapshot(ctx context.Context) (casaStructs.Snapshot, error)
}

type SnapshotHandler func(snapshot casaStructs.Snapshot)

type subscriber struct {
	name    string
	handler SnapshotHandler
	mailbox chan casaStructs.Snapshot
}

// Poller fetches a snapshot every interval and hands it to all subscribers.
// Each subscriber is served by its own goroutine in publish order, so a slow
// subscriber never delays the poll loop or the other subscribers.
type Poller struct {
	client   Fetcher
	interval time.Duration
	logger   *zap.SugaredLogger
	metrics  *Metrics

	mu          sync.Mutex
	subscribers []*subscriber
	stopped     bool
	cancel      context.CancelFunc
	done        chan struct{}
	subsWg      sync.WaitGroup
}

func NewPoller(client Fetcher, interval time.Duration, logger *zap.SugaredLogger, metrics *Metrics) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		client:   client,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
	}
}

func (p *Poller) Subscribe(name string, handler SnapshotHandler) error {
	if handler == nil {
		return fmt.Errorf("subscriber %s: handler cannot be nil", name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrPollerStopped
	}

	sub := &subscriber{
		name:    name,
		handler: handler,
		mailbox: make(chan casaStructs.Snapshot, mailboxSize),
	}
	p.subscribers = append(p.subscribers, sub)

	p.subsWg.Add(1)
	go func() {
		defer p.subsWg.Done()
		for snapshot := range sub.mailbox {
			p.deliver(sub, snapshot)
		}
	}()
	return nil
}

func (p *Poller) deliver(sub *subscriber, snapshot casaStructs.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("Subscriber %s panicked: %v", sub.name, r)
		}
	}()
	sub.handler(snapshot)
}

func (p *Poller) publish(snapshot casaStructs.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	for _, sub := range p.subscribers {
		select {
		case sub.mailbox <- snapshot:
		default:
			p.logger.Warnf("Subscriber %s is busy, dropping snapshot", sub.name)
			p.metrics.observeDrop(sub.name)
		}
	}
}

// PollOnce runs a single cycle: fetch, then publish when the snapshot is not
// empty. A panic during the cycle is reported as an error.
func (p *Poller) PollOnce(ctx context.Context) (snapshot casaStructs.Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll cycle panicked: %v", r)
			snapshot = casaStructs.Snapshot{}
			p.logger.Errorf("Error fetching data: %v", err)
			p.metrics.observeCycle("error")
		}
	}()

	snapshot, err = p.client.FetchSnapshot(ctx)
	if err != nil {
		p.logger.Errorf("Error fetching data: %v", err)
		p.metrics.observeCycle("error")
		return casaStructs.Snapshot{}, err
	}
	if ctx.Err() != nil {
		return casaStructs.Snapshot{}, ctx.Err()
	}
	if snapshot.IsEmpty() {
		p.logger.Debug("Poll returned no values")
		p.metrics.observeCycle("empty")
		return snapshot, nil
	}

	p.metrics.observeCycle("ok")
	p.publish(snapshot)
	return snapshot, nil
}

// Start runs the poll loop until Stop is called or ctx is done.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || p.cancel != nil {
		p.logger.Warn("Poller already started or stopped")
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.logger.Infof("Starting polling every %v", p.interval)
	go p.run(ctx, p.done)
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		// errors are logged inside PollOnce, the loop always carries on
		_, _ = p.PollOnce(ctx)

		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Stop ends the poll loop, aborting an in-flight request, and waits until
// every subscriber has handled the snapshots already queued for it. No cycle
// runs after Stop returns.
//
// Stop must not be called from a subscriber handler, it would wait for the
// handler itself. A handler that needs to end polling cancels the context
// given to Start and leaves Stop to the owner.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	p.mu.Lock()
	for _, sub := range p.subscribers {
		close(sub.mailbox)
	}
	p.mu.Unlock()
	p.subsWg.Wait()
	p.logger.Info("Polling stopped")
}
