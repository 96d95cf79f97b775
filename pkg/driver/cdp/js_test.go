package cdp

import (
	"context"
	"errors"
	"testing"

	"github.com/chromedp/chromedp/kb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/steadyhand/pkg/core"
)

func TestQueryFor(t *testing.T) {
	tests := []struct {
		strategy core.Strategy
		selector string
		want     domQuery
	}{
		{core.StrategyID, "login", domQuery{sel: `[id="login"]`}},
		{core.StrategyID, `we"ird`, domQuery{sel: `[id="we\"ird"]`}},
		{core.StrategyCSS, "a.twitter", domQuery{sel: "a.twitter"}},
		{core.StrategyLinkText, " Twitter ", domQuery{sel: "//a[normalize-space(string(.))='Twitter']", xpath: true}},
		{core.StrategyPartialLinkText, "Twit", domQuery{sel: "//a[contains(string(.),'Twit')]", xpath: true}},
		{core.StrategyXPath, "//footer//a", domQuery{sel: "//footer//a", xpath: true}},
	}
	for _, tt := range tests {
		t.Run(string(tt.strategy)+"/"+tt.selector, func(t *testing.T) {
			got, err := queryFor(tt.strategy, tt.selector)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := queryFor("name", "q")
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))
}

func TestTranslateKeys(t *testing.T) {
	assert.Equal(t, "hello"+kb.Enter, translateKeys("hello"))
	assert.Equal(t, "plain", translateKeys("plain"))
}

func TestScriptSource(t *testing.T) {
	src, elems, err := scriptSource("return arguments[0] + arguments[1];", []interface{}{1, "x"})
	require.NoError(t, err)
	assert.Empty(t, elems)
	assert.Contains(t, src, "function() {")
	assert.Contains(t, src, `.apply(null, [1, "x"])`)

	src, elems, err = scriptSource("return arguments[1].id;", []interface{}{"a", core.ElementRef("12"), core.ElementRef("14")})
	require.NoError(t, err)
	assert.Equal(t, []core.ElementRef{"12", "14"}, elems)
	assert.Contains(t, src, "function(e0, e1) {")
	assert.Contains(t, src, `.apply(null, ["a", e0, e1])`)

	_, _, err = scriptSource("return 1;", []interface{}{make(chan int)})
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))
}

func TestBackendID(t *testing.T) {
	id, err := backendID("42")
	require.NoError(t, err)
	assert.EqualValues(t, 42, id)

	_, err = backendID("el-1")
	assert.Equal(t, core.ErrCategoryStaleReference, core.CategoryOf(err))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want core.ErrorCategory
	}{
		{"could not resolve node: No node with given id found (-32000)", core.ErrCategoryStaleReference},
		{"Node is detached from document", core.ErrCategoryStaleReference},
		{"No target with given id found", core.ErrCategoryWindowMismatch},
		{"invalid context", core.ErrCategorySessionLost},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := classify(errors.New(tt.msg))
			assert.Equal(t, tt.want, core.CategoryOf(err))
		})
	}

	err := classify(errors.New("something odd"))
	assert.Equal(t, "cdp: something odd", err.Error())
}

func TestMapErrorContext(t *testing.T) {
	browserCtx, cancel := context.WithCancel(context.Background())
	d := &Driver{browserCtx: browserCtx}

	assert.NoError(t, d.mapError(context.Background(), nil))

	callerCtx, callerCancel := context.WithCancel(context.Background())
	callerCancel()
	assert.ErrorIs(t, d.mapError(callerCtx, errors.New("boom")), context.Canceled)

	stale := core.ErrStaleElement.WithMessage("gone")
	assert.Same(t, stale, d.mapError(context.Background(), stale))

	cancel()
	err := d.mapError(context.Background(), context.Canceled)
	assert.True(t, core.IsFatal(err))
}

func TestCenter(t *testing.T) {
	x, y := center([]float64{0, 0, 10, 0, 10, 20, 0, 20})
	assert.Equal(t, 5.0, x)
	assert.Equal(t, 10.0, y)
}
