package playwright

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/devicelab-dev/steadyhand/pkg/core"
)

func TestSelectorFor(t *testing.T) {
	tests := []struct {
		strategy core.Strategy
		selector string
		want     string
	}{
		{core.StrategyID, "q", `css=[id="q"]`},
		{core.StrategyCSS, "a.twitter", "css=a.twitter"},
		{core.StrategyLinkText, "Twitter", "xpath=//a[normalize-space(string(.))='Twitter']"},
		{core.StrategyPartialLinkText, "Twit", "xpath=//a[contains(string(.),'Twit')]"},
		{core.StrategyXPath, "//footer//a", "xpath=//footer//a"},
	}
	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			got, err := selectorFor(tt.strategy, tt.selector)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := selectorFor("name", "q")
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))
}

func TestWrapScript(t *testing.T) {
	assert.Equal(t, "(args) => (function() {\nreturn arguments[0];\n}).apply(null, args)", wrapScript("return arguments[0];"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want core.ErrorCategory
	}{
		{"target closed", fmt.Errorf("page.click: %w", playwright.ErrTargetClosed), core.ErrCategorySessionLost},
		{"timeout", fmt.Errorf("click: %w", playwright.ErrTimeout), core.ErrCategoryTimeout},
		{"detached", errors.New("Element is not attached to the DOM"), core.ErrCategoryStaleReference},
		{"disposed", errors.New("JSHandle is disposed"), core.ErrCategoryStaleReference},
		{"navigation", errors.New("Execution context was destroyed, most likely because of a navigation"), core.ErrCategoryStaleReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, core.CategoryOf(classify(tt.err)))
		})
	}

	stale := core.ErrStaleElement.WithMessage("gone")
	assert.Same(t, stale, classify(stale))
	assert.Equal(t, "playwright: odd", classify(errors.New("odd")).Error())
}

func TestActionTimeout(t *testing.T) {
	assert.Equal(t, float64(defaultActionTimeout.Milliseconds()), *actionTimeout(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got := *actionTimeout(ctx)
	assert.LessOrEqual(t, got, 1000.0)
	assert.Greater(t, got, 0.0)

	expired, cancel2 := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel2()
	assert.Equal(t, 1.0, *actionTimeout(expired))
}

func TestDriverAgainstBrowser(t *testing.T) {
	if testing.Short() || os.Getenv("STEADYHAND_PLAYWRIGHT") == "" {
		t.Skip("set STEADYHAND_PLAYWRIGHT=1 to run against an installed playwright browser")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if r.URL.Path == "/popup" {
			_, _ = w.Write([]byte(`<html><head><title>Popup</title></head><body>popup</body></html>`))
			return
		}
		_, _ = w.Write([]byte(`<html><head><title>Home</title></head><body>
<input id="q"><a class="social" href="/popup" target="_blank">Twitter</a></body></html>`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	d, err := Open(ctx, Options{Headless: true, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.Navigate(ctx, srv.URL))
	original, err := d.CurrentWindow(ctx)
	require.NoError(t, err)

	inputs, err := d.FindElements(ctx, core.StrategyID, "q")
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	require.NoError(t, d.SendKeys(ctx, inputs[0], "hello"))
	text, err := d.Text(ctx, inputs[0])
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	links, err := d.FindElements(ctx, core.StrategyLinkText, "Twitter")
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.NoError(t, d.Click(ctx, links[0]))

	require.Eventually(t, func() bool {
		handles, err := d.WindowHandles(ctx)
		return err == nil && len(handles) == 2
	}, 10*time.Second, 100*time.Millisecond)

	handles, err := d.WindowHandles(ctx)
	require.NoError(t, err)
	for _, h := range handles {
		if h != original {
			require.NoError(t, d.SwitchWindow(ctx, h))
		}
	}
	require.NoError(t, d.CloseWindow(ctx))
	require.NoError(t, d.SwitchWindow(ctx, original))

	_, err = d.Text(ctx, links[0])
	assert.Equal(t, core.ErrCategoryStaleReference, core.CategoryOf(err))
}
