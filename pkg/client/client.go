// Package client is the Go client of the control panel websocket protocol.
// It correlates requests with their responses by id, multicasts server
// events to subscribers and keeps the connection up with capped
// exponential backoff.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/makeasinger/controlpanel/pkg/protocol"
)

// Options configures a Client. Zero values select the defaults.
type Options struct {
	URL       string
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Dialer    Dialer
	Clock     Clock
	Logger    *zap.Logger
}

// Client is safe for concurrent use.
type Client struct {
	conn       *ConnectionManager
	correlator *Correlator
	dispatcher *Dispatcher
	jobs       *jobTable
	log        *zap.Logger
}

// New creates a disconnected client. Call Connect to start it.
func New(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	base, maxDelay := opts.BaseDelay, opts.MaxDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}

	c := &Client{
		correlator: NewCorrelator(),
		dispatcher: NewDispatcher(),
		log:        log,
	}
	c.jobs = newJobTable(c.dispatcher)
	c.conn = NewConnectionManager(opts.URL, opts.Dialer, opts.Clock, NewBackoff(base, maxDelay), c.handleFrame, log)
	c.conn.OnStateChange(func(s State) {
		if s == Disconnected {
			c.jobs.lose()
		}
	})
	return c
}

// Dial creates a client for url and waits until it is connected.
func Dial(ctx context.Context, url string) (*Client, error) {
	c := New(Options{URL: url})
	c.Connect()
	if err := c.WaitConnected(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	return c, nil
}

// Connect starts connecting. Calling it again is a no-op.
func (c *Client) Connect() {
	c.conn.Connect()
}

func (c *Client) State() State {
	return c.conn.State()
}

// OnStateChange registers an observer of connection states. It is called
// at once with the current state.
func (c *Client) OnStateChange(fn func(State)) (cancel func()) {
	return c.conn.OnStateChange(fn)
}

// WaitConnected blocks until the client is Connected or ctx is done.
func (c *Client) WaitConnected(ctx context.Context) error {
	ready := make(chan struct{})
	var once sync.Once
	cancel := c.conn.OnStateChange(func(s State) {
		if s == Connected {
			once.Do(func() { close(ready) })
		}
	})
	defer cancel()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects for good. Requests still pending stay pending.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Subscribe registers fn for every server event of msgType.
func (c *Client) Subscribe(msgType string, fn Handler) *Subscription {
	return c.dispatcher.Subscribe(msgType, fn)
}

// Send transmits a request and waits for its response. It fails at once
// with protocol.ErrNotConnected when the client is not Connected. An error
// envelope is returned as *protocol.RemoteError, a response of the wrong
// type as *protocol.ProtocolMismatchError.
//
// If the connection drops before the response arrives Send waits until ctx
// is done; requests are never retried.
func (c *Client) Send(ctx context.Context, p protocol.Payload) (*protocol.Envelope, error) {
	return c.send(ctx, p, nil)
}

func (c *Client) send(ctx context.Context, p protocol.Payload, hook func(*protocol.Envelope)) (*protocol.Envelope, error) {
	msgType := p.MessageType()
	if !protocol.IsCorrelated(msgType) || msgType == protocol.TypeError {
		return nil, fmt.Errorf("%q is not a request type", msgType)
	}
	if c.conn.State() != Connected {
		return nil, protocol.ErrNotConnected
	}

	id, done := c.correlator.Begin(msgType, hook)
	data, err := protocol.Encode(protocol.ID(id), p)
	if err != nil {
		c.correlator.Discard(id)
		return nil, err
	}
	if err := c.conn.Write(data); err != nil {
		c.correlator.Discard(id)
		return nil, err
	}

	select {
	case out := <-done:
		return out.env, out.err
	case <-ctx.Done():
		c.correlator.Discard(id)
		return nil, ctx.Err()
	}
}

// Request sends p and decodes the response payload into T.
func Request[T any](ctx context.Context, c *Client, p protocol.Payload) (T, error) {
	var out T
	env, err := c.Send(ctx, p)
	if err != nil {
		return out, err
	}
	if err := env.Bind(&out); err != nil {
		return out, err
	}
	return out, nil
}

// Time returns the server's formatted wall clock.
func (c *Client) Time(ctx context.Context) (string, error) {
	resp, err := Request[protocol.TimeResponse](ctx, c, protocol.TimeRequest{})
	return resp.Time, err
}

func (c *Client) Test(ctx context.Context, message string) (protocol.TestResponse, error) {
	return Request[protocol.TestResponse](ctx, c, protocol.TestRequest{Message: message})
}

func (c *Client) DownloadLog(ctx context.Context) (protocol.DownloadLogResponse, error) {
	return Request[protocol.DownloadLogResponse](ctx, c, protocol.DownloadLogRequest{})
}

func (c *Client) EnvValues(ctx context.Context) (map[string]string, error) {
	resp, err := Request[protocol.GetEnvValuesResponse](ctx, c, protocol.GetEnvValuesRequest{})
	return resp.Values, err
}

func (c *Client) SetEnvValue(ctx context.Context, key, value string) (protocol.SetEnvValueResponse, error) {
	return Request[protocol.SetEnvValueResponse](ctx, c, protocol.SetEnvValueRequest{Key: key, Value: value})
}

func (c *Client) JobStatus(ctx context.Context, jobID int64) (protocol.JobStatusResponse, error) {
	return Request[protocol.JobStatusResponse](ctx, c, protocol.JobStatusRequest{JobID: jobID})
}

func (c *Client) Restart(ctx context.Context) (protocol.ServerStatus, error) {
	return Request[protocol.ServerStatus](ctx, c, protocol.RestartServerRequest{})
}

func (c *Client) Shutdown(ctx context.Context) (protocol.ServerStatus, error) {
	return Request[protocol.ServerStatus](ctx, c, protocol.ShutdownServerRequest{})
}

func (c *Client) Accounts(ctx context.Context) ([]protocol.Account, error) {
	resp, err := Request[protocol.GetUserAccountsResponse](ctx, c, protocol.GetUserAccountsRequest{})
	return resp.Accounts, err
}

func (c *Client) Secret(ctx context.Context, name string) (string, error) {
	resp, err := Request[protocol.GetSecretResponse](ctx, c, protocol.GetSecretRequest{Name: name})
	return resp.Value, err
}

func (c *Client) SwitchDevice(ctx context.Context, device string) (protocol.SwitchDeviceResponse, error) {
	return Request[protocol.SwitchDeviceResponse](ctx, c, protocol.SwitchDeviceRequest{Device: device})
}

// StartJob sends a job-starting request and returns the server's
// acknowledgement with a watch on the job's events. The watch is in place
// before any event that follows the acknowledgement is read.
func (c *Client) StartJob(ctx context.Context, p protocol.Payload) (protocol.JobStarted, *JobWatch, error) {
	var watch *JobWatch
	hook := func(env *protocol.Envelope) {
		var started protocol.JobStarted
		if err := env.Bind(&started); err == nil && started.JobID > 0 {
			watch = c.jobs.track(started.JobID)
		}
	}

	env, err := c.send(ctx, p, hook)
	if err != nil {
		return protocol.JobStarted{}, nil, err
	}
	started := protocol.JobStarted{Type: env.Type}
	if err := env.Bind(&started); err != nil {
		return started, nil, err
	}
	if watch == nil {
		return started, nil, fmt.Errorf("%s reply carries no job id", env.Type)
	}
	return started, watch, nil
}

func (c *Client) StartProcess(ctx context.Context) (protocol.JobStarted, *JobWatch, error) {
	return c.StartJob(ctx, protocol.StartProcessRequest{})
}

func (c *Client) InstallAsset(ctx context.Context, asset string) (protocol.JobStarted, *JobWatch, error) {
	return c.StartJob(ctx, protocol.InstallAssetRequest{Asset: asset})
}

func (c *Client) InstallPatch(ctx context.Context, patch string) (protocol.JobStarted, *JobWatch, error) {
	return c.StartJob(ctx, protocol.InstallPatchRequest{Patch: patch})
}

// RunJob starts a job and blocks until it completes, passing each progress
// event to onProgress when it is set. It fails with ErrJobTrackingLost if
// the connection drops before the job completes.
func (c *Client) RunJob(ctx context.Context, p protocol.Payload, onProgress func(protocol.JobProgress)) (protocol.JobComplete, error) {
	_, watch, err := c.StartJob(ctx, p)
	if err != nil {
		return protocol.JobComplete{}, err
	}
	for {
		select {
		case ev, ok := <-watch.Progress:
			if !ok {
				done, ok := <-watch.Complete
				if !ok {
					return protocol.JobComplete{}, watch.Err()
				}
				return done, nil
			}
			if onProgress != nil {
				onProgress(ev)
			}
		case <-ctx.Done():
			c.jobs.untrack(watch.JobID)
			return protocol.JobComplete{}, ctx.Err()
		}
	}
}

// OnLog subscribes to server log lines. seq is the line's position in the
// server's history.
func (c *Client) OnLog(fn func(seq int64, ev protocol.LogEvent)) *Subscription {
	return c.Subscribe(protocol.TypeLog, func(env *protocol.Envelope) {
		var ev protocol.LogEvent
		if err := env.Bind(&ev); err != nil {
			c.log.Debug("dropping log event", zap.Error(err))
			return
		}
		fn(env.IDValue(), ev)
	})
}

// OnJobProgress subscribes to progress events of every job, including jobs
// started by other clients.
func (c *Client) OnJobProgress(fn func(protocol.JobProgress)) *Subscription {
	return c.Subscribe(protocol.TypeJobProgress, func(env *protocol.Envelope) {
		var ev protocol.JobProgress
		if err := env.Bind(&ev); err != nil {
			c.log.Debug("dropping jobProgress event", zap.Error(err))
			return
		}
		fn(ev)
	})
}

func (c *Client) OnJobComplete(fn func(protocol.JobComplete)) *Subscription {
	return c.Subscribe(protocol.TypeJobComplete, func(env *protocol.Envelope) {
		var ev protocol.JobComplete
		if err := env.Bind(&ev); err != nil {
			c.log.Debug("dropping jobComplete event", zap.Error(err))
			return
		}
		fn(ev)
	})
}

// handleFrame runs on the reading goroutine for every inbound frame.
func (c *Client) handleFrame(data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		c.log.Warn("dropping undecodable frame", zap.Error(err))
		return
	}

	if protocol.IsCorrelated(env.Type) {
		if !c.correlator.Resolve(env) {
			c.log.Debug("dropping unmatched response",
				zap.String("type", env.Type),
				zap.Int64("id", env.IDValue()),
			)
		}
		return
	}
	c.dispatcher.Dispatch(env)
}
