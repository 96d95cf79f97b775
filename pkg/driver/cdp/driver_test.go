package cdp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/devicelab-dev/steadyhand/pkg/core"
)

const testPage = `<!doctype html>
<html><head><title>Footer</title></head>
<body>
<input id="q" value="start">
<button id="hidden" style="display:none">hidden</button>
<footer><a class="twitter" href="/next">Twitter</a></footer>
</body></html>`

// findChrome returns a local Chrome binary or skips the test.
func findChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("browser test skipped in short mode")
	}
	if p := os.Getenv("STEADYHAND_CHROME"); p != "" {
		return p
	}
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "chrome"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no chrome binary available")
	return ""
}

func newTestDriver(t *testing.T) (*Driver, *httptest.Server) {
	t.Helper()
	chrome := findChrome(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(testPage))
	})
	mux.HandleFunc("/next", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Next</title></head><body>next</body></html>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	d, err := Open(ctx, Options{ExecPath: chrome, Headless: true, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d, srv
}

func TestDriverAgainstChrome(t *testing.T) {
	d, srv := newTestDriver(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, d.Navigate(ctx, srv.URL+"/"))

	title, err := d.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Footer", title)

	refs, err := d.FindElements(ctx, core.StrategyLinkText, "Twitter")
	require.NoError(t, err)
	require.Len(t, refs, 1)

	none, err := d.FindElements(ctx, core.StrategyCSS, "a.facebook")
	require.NoError(t, err)
	assert.Empty(t, none)

	text, err := d.Text(ctx, refs[0])
	require.NoError(t, err)
	assert.Equal(t, "Twitter", text)

	hidden, err := d.FindElements(ctx, core.StrategyID, "hidden")
	require.NoError(t, err)
	require.Len(t, hidden, 1)
	shown, err := d.Displayed(ctx, hidden[0])
	require.NoError(t, err)
	assert.False(t, shown)
	assert.Equal(t, core.ErrCategoryTimeout, core.CategoryOf(d.Click(ctx, hidden[0])))

	inputs, err := d.FindElements(ctx, core.StrategyXPath, "//input[@id='q']")
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	require.NoError(t, d.Clear(ctx, inputs[0]))
	require.NoError(t, d.SendKeys(ctx, inputs[0], "typed"))
	value, err := d.ExecuteScript(ctx, "return arguments[0].value + arguments[1];", inputs[0], "!")
	require.NoError(t, err)
	assert.Equal(t, "typed!", value)

	require.NoError(t, d.Click(ctx, refs[0]))
	require.Eventually(t, func() bool {
		u, err := d.CurrentURL(ctx)
		return err == nil && u == srv.URL+"/next"
	}, 10*time.Second, 100*time.Millisecond)

	_, err = d.Text(ctx, refs[0])
	assert.Error(t, err)

	handles, err := d.WindowHandles(ctx)
	require.NoError(t, err)
	current, err := d.CurrentWindow(ctx)
	require.NoError(t, err)
	assert.Contains(t, handles, current)
	assert.Equal(t, "cdp", d.PlatformInfo().Driver)
}
