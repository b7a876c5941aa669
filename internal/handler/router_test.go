package handler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/makeasinger/controlpanel/internal/model"
	"github.com/makeasinger/controlpanel/internal/service"
	"github.com/makeasinger/controlpanel/internal/store"
	"github.com/makeasinger/controlpanel/internal/websocket"
	"github.com/makeasinger/controlpanel/pkg/protocol"
)

type sent struct {
	session *websocket.Session
	id      *int64
	payload protocol.Payload
}

// outbox records replies and the order of side effects around them.
type outbox struct {
	mu    sync.Mutex
	sent  []sent
	trace []string
}

func (o *outbox) Send(s *websocket.Session, id *int64, p protocol.Payload) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, sent{session: s, id: id, payload: p})
	o.trace = append(o.trace, "reply:"+p.MessageType())
	return nil
}

func (o *outbox) note(event string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.trace = append(o.trace, event)
}

func (o *outbox) only(t *testing.T) sent {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.Len(t, o.sent, 1)
	return o.sent[0]
}

type fakeRunner struct {
	out      *outbox
	launched []int64
	err      error
}

func (r *fakeRunner) Launch(_ context.Context, jobID int64) error {
	r.out.note("launch")
	r.launched = append(r.launched, jobID)
	return r.err
}

type fakeProcess struct {
	out *outbox
}

func (p *fakeProcess) Restart()  { p.out.note("restart") }
func (p *fakeProcess) Shutdown() { p.out.note("shutdown") }

type nopEvents struct{ id int64 }

func (e *nopEvents) Publish(protocol.Payload) (int64, error) { return e.NextID(), nil }

func (e *nopEvents) NextID() int64 {
	e.id++
	return e.id
}

func (e *nopEvents) Broadcast(*protocol.Envelope) error { return nil }

type fixture struct {
	out     *outbox
	router  *Router
	runner  *fakeRunner
	jobs    *service.JobService
	logs    *service.LogService
	session *websocket.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	out := &outbox{}
	f := &fixture{
		out:     out,
		router:  NewRouter(out, validator.New()),
		runner:  &fakeRunner{out: out},
		session: websocket.NewSession(nil, "127.0.0.1"),
	}

	events := &nopEvents{}
	f.jobs = service.NewJobService(store.NewMemoryJobStore(), events, service.JobConfig{Interval: time.Hour})
	f.jobs.SetRunner(f.runner)
	f.logs = service.NewLogService(events, "panel.log")

	system := NewSystemHandler(&fakeProcess{out: out})
	system.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	system.Register(f.router)
	NewLogHandler(f.logs).Register(f.router)
	NewEnvHandler(service.NewEnvService(store.NewMemoryEnvStore(map[string]string{"PORT": "8080"}))).Register(f.router)
	NewJobHandler(f.jobs).Register(f.router)
	NewAccountHandler(
		service.NewAccountService([]protocol.Account{{ID: "1", Name: "Ada", Email: "ada@example.com"}}),
		service.NewSecretService(map[string]string{"token": "s3cr3t"}),
		service.NewDeviceService([]string{"speakers", "headphones"}),
	).Register(f.router)
	return f
}

func (f *fixture) handle(frame string) {
	f.router.Handle(f.session, []byte(frame))
}

func assertError(t *testing.T, got sent, id int64, message string) {
	t.Helper()
	assert.Equal(t, protocol.ErrorPayload{Message: message}, got.payload)
	if id < 0 {
		assert.Nil(t, got.id)
		return
	}
	require.NotNil(t, got.id)
	assert.Equal(t, id, *got.id)
}

func TestEveryRequestTypeIsRouted(t *testing.T) {
	f := newFixture(t)
	assert.ElementsMatch(t, []string{
		protocol.TypeTimeRequest, protocol.TypeDownloadLog, protocol.TypeGetEnvValues, protocol.TypeSetEnvValue,
		protocol.TypeStartProcess, protocol.TypeInstallAsset, protocol.TypeInstallPatch, protocol.TypeJobStatus,
		protocol.TypeTest, protocol.TypeRestartServer, protocol.TypeShutdownServer, protocol.TypeGetUserAccounts,
		protocol.TypeGetSecret, protocol.TypeSwitchDevice,
	}, f.router.Types())
}

func TestRegisterRejectsEventTypes(t *testing.T) {
	r := NewRouter(&outbox{}, validator.New())
	assert.Panics(t, func() { r.Register(protocol.TypeJobProgress, nil) })
	assert.Panics(t, func() { r.Register(protocol.TypeError, nil) })
}

func TestUnknownActionKeepsID(t *testing.T) {
	f := newFixture(t)
	f.handle(`{"type":"doesNotExist","id":9,"payload":{}}`)
	assertError(t, f.out.only(t), 9, protocol.MessageUnknownAction)
}

func TestClientCannotSendEvents(t *testing.T) {
	f := newFixture(t)
	f.handle(`{"type":"jobComplete","id":2,"payload":{}}`)
	assertError(t, f.out.only(t), 2, protocol.MessageUnknownAction)
}

func TestMalformedFrameHasNoID(t *testing.T) {
	f := newFixture(t)
	f.handle(`{"type":"timeRequest","id":4,`)
	assertError(t, f.out.only(t), -1, protocol.MessageInvalidFormat)
}

func TestMissingTypeKeepsID(t *testing.T) {
	f := newFixture(t)
	f.handle(`{"id":5,"payload":{}}`)
	assertError(t, f.out.only(t), 5, protocol.MessageInvalidFormat)
}

func TestTimeRequest(t *testing.T) {
	f := newFixture(t)
	f.handle(`{"type":"timeRequest","id":7,"payload":{}}`)

	got := f.out.only(t)
	assert.Same(t, f.session, got.session)
	require.NotNil(t, got.id)
	assert.Equal(t, int64(7), *got.id)
	assert.Equal(t, protocol.TimeResponse{Time: "2024-05-06 07:08:09"}, got.payload)
}

func TestZeroIDIsEchoed(t *testing.T) {
	f := newFixture(t)
	f.handle(`{"type":"test","id":0,"payload":{"message":"hi"}}`)

	got := f.out.only(t)
	require.NotNil(t, got.id)
	assert.Zero(t, *got.id)
	assert.Equal(t, protocol.TestResponse{Message: "Test successful", Echo: "hi"}, got.payload)
}

func TestBadPayloadShape(t *testing.T) {
	f := newFixture(t)
	f.handle(`{"type":"setEnvValue","id":1,"payload":{"key":5}}`)
	assertError(t, f.out.only(t), 1, protocol.MessageInvalidFormat)
}

func TestValidationFailure(t *testing.T) {
	f := newFixture(t)
	f.handle(`{"type":"setEnvValue","id":1,"payload":{"value":"x"}}`)
	assertError(t, f.out.only(t), 1, "Validation failed: key required")
}

func TestSetThenGetEnv(t *testing.T) {
	f := newFixture(t)
	f.handle(`{"type":"setEnvValue","id":1,"payload":{"key":"MODE","value":"dev"}}`)
	f.handle(`{"type":"getEnvValues","id":2}`)

	require.Len(t, f.out.sent, 2)
	assert.Equal(t, protocol.SetEnvValueResponse{Key: "MODE", Value: "dev", Success: true}, f.out.sent[0].payload)
	assert.Equal(t, protocol.GetEnvValuesResponse{Values: map[string]string{"PORT": "8080", "MODE": "dev"}}, f.out.sent[1].payload)
}

func TestStartRepliesBeforeLaunch(t *testing.T) {
	f := newFixture(t)
	f.handle(`{"type":"startProcess","id":3,"payload":{}}`)

	got := f.out.only(t)
	assert.Equal(t, protocol.JobStarted{Type: protocol.TypeStartProcess, JobID: 1, Status: "Starting...", Progress: 0}, got.payload)
	assert.Equal(t, []string{"reply:startProcess", "launch"}, f.out.trace)
	assert.Equal(t, []int64{1}, f.runner.launched)
}

func TestInstallJobsAllocateDistinctIDs(t *testing.T) {
	f := newFixture(t)
	f.handle(`{"type":"installAsset","id":1,"payload":{"asset":"piano"}}`)
	f.handle(`{"type":"installPatch","id":2,"payload":{"patch":"v2"}}`)
	f.handle(`{"type":"installPatch","id":3,"payload":{}}`)

	require.Len(t, f.out.sent, 3)
	assert.Equal(t, protocol.TypeInstallAsset, f.out.sent[0].payload.MessageType())
	assert.Equal(t, int64(1), f.out.sent[0].payload.(protocol.JobStarted).JobID)
	assert.Equal(t, protocol.TypeInstallPatch, f.out.sent[1].payload.MessageType())
	assert.Equal(t, int64(2), f.out.sent[1].payload.(protocol.JobStarted).JobID)
	assertError(t, f.out.sent[2], 3, "Validation failed: patch required")

	job, err := f.jobs.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.JobKindAsset, job.Kind)
	assert.Equal(t, "piano", job.Target)
}

func TestLaunchFailureStillAnswered(t *testing.T) {
	f := newFixture(t)
	f.runner.err = errors.New("queue down")
	f.handle(`{"type":"startProcess","id":3,"payload":{}}`)
	assert.IsType(t, protocol.JobStarted{}, f.out.only(t).payload)
}

func TestJobStatus(t *testing.T) {
	f := newFixture(t)
	f.handle(`{"type":"startProcess","id":1,"payload":{}}`)
	f.handle(`{"type":"jobStatus","id":2,"payload":{"jobId":1}}`)
	f.handle(`{"type":"jobStatus","id":3,"payload":{"jobId":42}}`)

	require.Len(t, f.out.sent, 3)
	assert.Equal(t, protocol.JobStatusResponse{JobID: 1, Kind: model.JobKindProcess, Status: "Starting...", Progress: 0}, f.out.sent[1].payload)
	assertError(t, f.out.sent[2], 3, "Job not found")
}

func TestRestartRepliesFirst(t *testing.T) {
	f := newFixture(t)
	f.handle(`{"type":"restartServer","id":1,"payload":{}}`)
	f.handle(`{"type":"shutdownServer","id":2,"payload":{}}`)

	assert.Equal(t, []string{"reply:restartServer", "restart", "reply:shutdownServer", "shutdown"}, f.out.trace)
	assert.Equal(t, protocol.ServerStatus{Type: protocol.TypeRestartServer, Status: "Restarting..."}, f.out.sent[0].payload)
}

func TestDownloadLog(t *testing.T) {
	f := newFixture(t)
	f.logs.WriteLine(zapcore.InfoLevel, "\x1b[32mready\x1b[0m")
	f.handle(`{"type":"downloadLog","id":1}`)
	assert.Equal(t, protocol.DownloadLogResponse{FileName: "panel.log", Content: "ready\n"}, f.out.only(t).payload)
}

func TestAccountsSecretsDevices(t *testing.T) {
	f := newFixture(t)
	f.handle(`{"type":"getUserAccounts","id":1}`)
	f.handle(`{"type":"getSecret","id":2,"payload":{"name":"token"}}`)
	f.handle(`{"type":"getSecret","id":3,"payload":{"name":"nope"}}`)
	f.handle(`{"type":"switchDevice","id":4,"payload":{"device":"headphones"}}`)
	f.handle(`{"type":"switchDevice","id":5,"payload":{"device":"tv"}}`)

	require.Len(t, f.out.sent, 5)
	assert.Equal(t, protocol.GetUserAccountsResponse{Accounts: []protocol.Account{{ID: "1", Name: "Ada", Email: "ada@example.com"}}}, f.out.sent[0].payload)
	assert.Equal(t, protocol.GetSecretResponse{Name: "token", Value: "s3cr3t"}, f.out.sent[1].payload)
	assertError(t, f.out.sent[2], 3, "Secret not found")
	assert.Equal(t, protocol.SwitchDeviceResponse{Device: "headphones", Previous: "speakers"}, f.out.sent[3].payload)
	assertError(t, f.out.sent[4], 5, "Unknown device")
}

func TestHandlerPanicBecomesError(t *testing.T) {
	out := &outbox{}
	r := NewRouter(out, validator.New())
	r.Register(protocol.TypeTest, func(context.Context, *Request) error { panic("boom") })
	r.Handle(websocket.NewSession(nil, ""), []byte(`{"type":"test","id":1}`))
	assertError(t, out.only(t), 1, "internal error")
}

func TestReplyAtMostOnce(t *testing.T) {
	out := &outbox{}
	r := NewRouter(out, validator.New())
	var second error
	r.Register(protocol.TypeTest, func(_ context.Context, req *Request) error {
		require.NoError(t, req.Reply(protocol.TestResponse{Message: "one"}))
		second = req.Reply(protocol.TestResponse{Message: "two"})
		return second
	})
	r.Handle(websocket.NewSession(nil, ""), []byte(`{"type":"test","id":1}`))

	assert.ErrorIs(t, second, ErrAlreadyReplied)
	assert.Equal(t, protocol.TestResponse{Message: "one"}, out.only(t).payload)
}
