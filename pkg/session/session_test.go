package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/devicelab-dev/steadyhand/pkg/core"
	"github.com/devicelab-dev/steadyhand/pkg/driver/mock"
	"github.com/devicelab-dev/steadyhand/pkg/locator"
	"github.com/devicelab-dev/steadyhand/pkg/metrics"
	"github.com/devicelab-dev/steadyhand/pkg/pipeline"
	"github.com/devicelab-dev/steadyhand/pkg/retry"
	"github.com/devicelab-dev/steadyhand/pkg/wait"
	"github.com/devicelab-dev/steadyhand/pkg/wait/waittest"
	"github.com/devicelab-dev/steadyhand/pkg/window"
)

const home = "https://shop.test/"

func openSession(t *testing.T) (*Session, *mock.Driver) {
	d := mock.New(mock.Config{
		StartURL: home,
		Pages: []mock.Page{{URL: home, Elements: []mock.Element{
			{ID: "buy", Tag: "button"},
			{Tag: "a", Text: "Twitter", Href: "https://x.com/shop", Target: "_blank"},
		}}},
	})
	s, err := Open(context.Background(), d, Options{
		Timeout: time.Second,
		Poll:    100 * time.Millisecond,
		Policy:  retry.NewPolicy(2),
		Logger:  zaptest.NewLogger(t),
		Metrics: metrics.New(),
		Clock:   waittest.NewClock(),
	})
	require.NoError(t, err)
	return s, d
}

func TestOpen_TracksOriginalWindow(t *testing.T) {
	s, d := openSession(t)

	assert.NotEmpty(t, s.ID)
	require.NotNil(t, s.Windows())
	assert.Equal(t, d.Focused(), s.Windows().Original())
	e, ok := s.Windows().Get(d.Focused())
	require.True(t, ok)
	assert.True(t, e.Original)
	assert.Equal(t, home, e.URL)
}

func TestOpen_DeadDriver(t *testing.T) {
	d := mock.New(mock.Config{})
	d.Lost = true

	_, err := Open(context.Background(), d, Options{Logger: zaptest.NewLogger(t)})
	assert.True(t, core.IsFatal(err))
}

func TestNavigationAdvancesEpoch(t *testing.T) {
	s, _ := openSession(t)
	ctx := context.Background()

	h, err := s.Resolve(ctx, locator.MustNew(locator.ByID("buy")))
	require.NoError(t, err)
	assert.Equal(t, s.Epoch(), h.Epoch)

	require.NoError(t, s.Driver().Navigate(ctx, home))
	assert.Equal(t, uint64(1), s.Epoch())
	assert.Equal(t, core.ErrCategoryStaleReference, core.CategoryOf(s.pipeline.Resolver().Check(h)))
}

func TestRun_NavigationalStep(t *testing.T) {
	s, d := openSession(t)
	before := d.Focused()

	res, err := s.Run(context.Background(), pipeline.Step{
		Locator:      locator.MustNew(locator.ByLinkText("Twitter")),
		Wait:         pipeline.ForClickable,
		Action:       pipeline.Action{Kind: pipeline.ActionClick},
		Navigational: true,
		Expect:       window.Expectation{Domain: "x.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "new_window", res.Window)
	assert.Equal(t, 2, res.MaxAttempts)
	assert.Equal(t, before, d.Focused())
	assert.Equal(t, 1, s.Windows().Len())
}

func TestAwaitAndWithWindow(t *testing.T) {
	s, d := openSession(t)
	ctx := context.Background()

	require.NoError(t, s.Await(ctx, wait.URLContains("shop"), wait.Options{}))

	out, err := s.WithWindow(ctx, window.Expectation{Domain: "x.com", Timeout: time.Second}, func(ctx context.Context) error {
		h, err := s.Resolve(ctx, locator.MustNew(locator.ByLinkText("Twitter")))
		if err != nil {
			return err
		}
		return s.Driver().Click(ctx, h.Ref)
	})
	require.NoError(t, err)
	assert.Equal(t, window.BranchNewWindow, out.Branch)
	assert.Equal(t, s.Windows().Original(), d.Focused())
}

func TestProbe(t *testing.T) {
	s, _ := openSession(t)

	results, err := s.Probe(context.Background(), locator.MustNew(locator.ByID("nope"), locator.ByID("buy")))
	require.NoError(t, err)
	assert.Equal(t, 0, results[0].Matches)
	assert.Equal(t, 1, results[1].Matches)
}

func TestClose_Idempotent(t *testing.T) {
	s, d := openSession(t)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, d.Closed())
}

func TestPlatformInfo(t *testing.T) {
	s, _ := openSession(t)
	require.NotNil(t, s.PlatformInfo())
	assert.Equal(t, "mock", s.PlatformInfo().Driver)
}
