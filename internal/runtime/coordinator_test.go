package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/amplifylabs/amplify-agent/internal/identity"
	"github.com/amplifylabs/amplify-agent/internal/selectors"
	"github.com/amplifylabs/amplify-agent/internal/types"
)

const registeredPage = `<html><head>
<script>var ytInitialPlayerResponse = {"videoDetails":{"videoId":"abc","channelId":"UCregistered1","author":"Test Channel"}};</script>
</head><body></body></html>`

// fakeHost scripts the page surface.
type fakeHost struct {
	mu         sync.Mutex
	url        string
	html       string
	snapErr    error
	target     bool
	findErr    error
	intercepts int
	releases   int
	onClick    func()
}

func (f *fakeHost) CurrentURL() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

func (f *fakeHost) Snapshot() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.html, f.snapErr
}

func (f *fakeHost) FindTarget() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.target, f.findErr
}

func (f *fakeHost) Intercept(onClick func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intercepts++
	f.onClick = onClick
	return nil
}

func (f *fakeHost) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
}

func (f *fakeHost) interceptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.intercepts
}

func (f *fakeHost) click() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onClick
}

// fakeLookup serves creator records by channel id.
type fakeLookup struct {
	mu      sync.Mutex
	records map[string]*types.CreatorInfo
}

func (f *fakeLookup) Creator(_ context.Context, channelID string) (*types.CreatorInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[channelID], nil
}

// fakeFlow records open requests.
type fakeFlow struct {
	mu    sync.Mutex
	opens []*types.CreatorInfo
	err   error
}

func (f *fakeFlow) Open(_ context.Context, creator *types.CreatorInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens = append(f.opens, creator)
	return f.err
}

func (f *fakeFlow) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opens)
}

func registeredLookup() *fakeLookup {
	return &fakeLookup{records: map[string]*types.CreatorInfo{
		"UCregistered1": {
			Registered:       true,
			ChannelID:        "UCregistered1",
			ChannelName:      "Test Channel",
			WalletAddress:    "dest456",
			DefaultTipAmount: 0.5,
		},
	}}
}

func fastOptions() Options {
	return Options{
		NavPollInterval:   10 * time.Millisecond,
		SettleDelay:       10 * time.Millisecond,
		FindRetryInterval: 10 * time.Millisecond,
		ClickFlowDelay:    10 * time.Millisecond,
	}
}

func newCoordinator(host *fakeHost, lookup *fakeLookup, flow *fakeFlow) *Coordinator {
	return New(host, identity.NewResolver(lookup), flow, selectors.Get, fastOptions())
}

func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestNavigationToWatchPageAttaches(t *testing.T) {
	host := &fakeHost{html: registeredPage, target: true}
	c := newCoordinator(host, registeredLookup(), &fakeFlow{})
	defer c.Shutdown()

	c.HandleNavigation(context.Background(), "https://www.youtube.com/watch?v=abc")
	waitUntil(t, func() bool { return host.interceptCount() == 1 }, "Interception never attached")

	sess := c.Session()
	if sess == nil || sess.VideoID != "abc" {
		t.Fatalf("Unexpected session %+v", sess)
	}
	creator, checked := sess.Creator()
	if !checked || creator == nil || creator.ChannelID != "UCregistered1" {
		t.Errorf("Unexpected eligibility state checked=%v creator=%+v", checked, creator)
	}
}

func TestNonWatchNavigationStartsNoSession(t *testing.T) {
	host := &fakeHost{html: registeredPage, target: true}
	c := newCoordinator(host, registeredLookup(), &fakeFlow{})
	defer c.Shutdown()

	c.HandleNavigation(context.Background(), "https://www.youtube.com/@somecreator")
	time.Sleep(50 * time.Millisecond)

	if c.Session() != nil {
		t.Error("Expected no session for a channel page")
	}
	if host.interceptCount() != 0 {
		t.Error("Interception attached outside a watch page")
	}
}

func TestAtMostOneLiveSession(t *testing.T) {
	host := &fakeHost{html: registeredPage, target: true}
	c := newCoordinator(host, registeredLookup(), &fakeFlow{})
	defer c.Shutdown()

	c.HandleNavigation(context.Background(), "https://www.youtube.com/watch?v=first")
	waitUntil(t, func() bool { return host.interceptCount() == 1 }, "First session never attached")
	first := c.Session()

	c.HandleNavigation(context.Background(), "https://www.youtube.com/watch?v=second")
	waitUntil(t, func() bool { return host.interceptCount() == 2 }, "Second session never attached")

	if first.Active() {
		t.Error("First session survived the second navigation")
	}
	host.mu.Lock()
	releases := host.releases
	host.mu.Unlock()
	if releases == 0 {
		t.Error("Host was never released between sessions")
	}
	if got := c.Session(); got == nil || got.VideoID != "second" {
		t.Errorf("Unexpected live session %+v", got)
	}
}

func TestUnregisteredCreatorNeverAttaches(t *testing.T) {
	host := &fakeHost{html: registeredPage, target: true}
	c := newCoordinator(host, &fakeLookup{}, &fakeFlow{})
	defer c.Shutdown()

	c.HandleNavigation(context.Background(), "https://www.youtube.com/watch?v=abc")
	waitUntil(t, func() bool {
		sess := c.Session()
		if sess == nil {
			return false
		}
		_, checked := sess.Creator()
		return checked
	}, "Eligibility check never ran")

	time.Sleep(50 * time.Millisecond)
	if host.interceptCount() != 0 {
		t.Error("Interception attached for an unregistered creator")
	}
}

func TestAcquisitionRetriesUntilTargetAppears(t *testing.T) {
	host := &fakeHost{html: registeredPage, target: false}
	c := newCoordinator(host, registeredLookup(), &fakeFlow{})
	defer c.Shutdown()

	c.HandleNavigation(context.Background(), "https://www.youtube.com/watch?v=abc")
	time.Sleep(60 * time.Millisecond)
	if host.interceptCount() != 0 {
		t.Fatal("Attached before the target existed")
	}

	host.mu.Lock()
	host.target = true
	host.mu.Unlock()
	waitUntil(t, func() bool { return host.interceptCount() == 1 }, "Never attached after target appeared")
}

func TestOwnerResolvedOnLaterTick(t *testing.T) {
	host := &fakeHost{html: "<html><body></body></html>", target: true}
	c := newCoordinator(host, registeredLookup(), &fakeFlow{})
	defer c.Shutdown()

	c.HandleNavigation(context.Background(), "https://www.youtube.com/watch?v=abc")
	time.Sleep(60 * time.Millisecond)

	host.mu.Lock()
	host.html = registeredPage
	host.mu.Unlock()
	waitUntil(t, func() bool { return host.interceptCount() == 1 }, "Never attached after owner became resolvable")
}

func TestClickOpensFlow(t *testing.T) {
	host := &fakeHost{html: registeredPage, target: true}
	flow := &fakeFlow{}
	c := newCoordinator(host, registeredLookup(), flow)
	defer c.Shutdown()

	c.HandleNavigation(context.Background(), "https://www.youtube.com/watch?v=abc")
	waitUntil(t, func() bool { return host.click() != nil }, "Interception never attached")

	host.click()()
	waitUntil(t, func() bool { return flow.openCount() == 1 }, "Flow never opened")

	flow.mu.Lock()
	defer flow.mu.Unlock()
	if flow.opens[0].ChannelID != "UCregistered1" {
		t.Errorf("Flow opened for wrong creator %+v", flow.opens[0])
	}
}

func TestStaleClickIsIgnored(t *testing.T) {
	host := &fakeHost{html: registeredPage, target: true}
	flow := &fakeFlow{}
	c := newCoordinator(host, registeredLookup(), flow)
	defer c.Shutdown()

	c.HandleNavigation(context.Background(), "https://www.youtube.com/watch?v=abc")
	waitUntil(t, func() bool { return host.click() != nil }, "Interception never attached")
	staleClick := host.click()

	c.HandleNavigation(context.Background(), "https://www.youtube.com/@somewhere")
	staleClick()

	time.Sleep(60 * time.Millisecond)
	if flow.openCount() != 0 {
		t.Error("Stale click opened the flow")
	}
}

func TestDuplicateOpenIsSwallowed(t *testing.T) {
	host := &fakeHost{html: registeredPage, target: true}
	flow := &fakeFlow{err: types.ErrModalAlreadyOpen}
	c := newCoordinator(host, registeredLookup(), flow)
	defer c.Shutdown()

	c.HandleNavigation(context.Background(), "https://www.youtube.com/watch?v=abc")
	waitUntil(t, func() bool { return host.click() != nil }, "Interception never attached")

	host.click()()
	host.click()()
	waitUntil(t, func() bool { return flow.openCount() == 2 }, "Clicks were not delivered")
	// No panic, no error path escalation; the already-open error is expected.
}

func TestShutdownTearsDownSession(t *testing.T) {
	host := &fakeHost{html: registeredPage, target: true}
	c := newCoordinator(host, registeredLookup(), &fakeFlow{})

	c.HandleNavigation(context.Background(), "https://www.youtube.com/watch?v=abc")
	waitUntil(t, func() bool { return host.interceptCount() == 1 }, "Interception never attached")
	sess := c.Session()

	c.Shutdown()
	if sess.Active() {
		t.Error("Session survived shutdown")
	}
	if c.Session() != nil {
		t.Error("Coordinator still reports a live session")
	}

	c.Shutdown()
}
