package wait

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/steadyhand/pkg/core"
	"github.com/devicelab-dev/steadyhand/pkg/driver/mock"
)

func conditionDriver() *mock.Driver {
	return mock.New(mock.Config{
		StartURL: "https://app.test/home",
		Scripts: map[string]func([]interface{}) (interface{}, error){
			"return document.readyState === 'complete'": func([]interface{}) (interface{}, error) { return true, nil },
			"return 0": func([]interface{}) (interface{}, error) { return float64(0), nil },
		},
		Pages: []mock.Page{{
			URL:   "https://app.test/home",
			Title: "Home | App",
			Elements: []mock.Element{
				{ID: "save", Tag: "button", ShowAfter: 1},
				{ID: "off", Tag: "button", Disabled: true},
				{Tag: "li", Classes: []string{"row"}},
				{Tag: "li", Classes: []string{"row"}},
			},
		}},
	})
}

func check(t *testing.T, d core.Driver, c Condition) bool {
	t.Helper()
	ok, err := c.Check(context.Background(), d)
	require.NoError(t, err, c.Describe())
	return ok
}

func find(t *testing.T, d core.Driver, id string) core.ElementRef {
	t.Helper()
	refs, err := d.FindElements(context.Background(), core.StrategyID, id)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	return refs[0]
}

func TestVisibleAndClickable(t *testing.T) {
	d := conditionDriver()
	save := find(t, d, "save")
	off := find(t, d, "off")

	assert.False(t, check(t, d, Visible(save)), "hidden on first poll")
	assert.True(t, check(t, d, Visible(save)))
	assert.True(t, check(t, d, Clickable(save)))
	assert.False(t, check(t, d, Clickable(off)))
}

func TestCountAtLeast(t *testing.T) {
	d := conditionDriver()

	assert.True(t, check(t, d, CountAtLeast(core.StrategyCSS, "li.row", 2)))
	assert.False(t, check(t, d, CountAtLeast(core.StrategyCSS, "li.row", 3)))
	assert.True(t, check(t, d, Present(core.StrategyID, "save")))
	assert.False(t, check(t, d, Present(core.StrategyID, "nope")))
}

func TestStalenessOf(t *testing.T) {
	d := conditionDriver()
	save := find(t, d, "save")

	assert.False(t, check(t, d, StalenessOf(save)))
	d.Reload()
	assert.True(t, check(t, d, StalenessOf(save)))
}

func TestURLAndTitleConditions(t *testing.T) {
	d := conditionDriver()

	assert.True(t, check(t, d, URLContains("app.test")))
	assert.False(t, check(t, d, URLContains("x.com")))
	assert.True(t, check(t, d, URLMatches(regexp.MustCompile(`^https://app\.test/h`))))
	assert.False(t, check(t, d, URLChangedFrom("https://app.test/home")))
	assert.True(t, check(t, d, URLChangedFrom("https://app.test/")))
	assert.True(t, check(t, d, TitleContains("Home")))
}

func TestScriptTrue(t *testing.T) {
	d := conditionDriver()

	assert.True(t, check(t, d, ScriptTrue("return document.readyState === 'complete'")))
	assert.False(t, check(t, d, ScriptTrue("return 0")))
	assert.False(t, check(t, d, ScriptTrue("return unknown")))
}

func TestNewWindow(t *testing.T) {
	d := conditionDriver()
	baseline, err := d.WindowHandles(context.Background())
	require.NoError(t, err)

	cond := NewWindow(baseline)
	assert.False(t, check(t, d, cond))
	d.OpenWindow("https://x.com/")
	assert.True(t, check(t, d, cond))
}

func TestCombinators(t *testing.T) {
	d := conditionDriver()
	yes := URLContains("app")
	no := URLContains("nope")

	assert.True(t, check(t, d, Not(no)))
	assert.False(t, check(t, d, Not(yes)))
	assert.True(t, check(t, d, All(yes, Not(no))))
	assert.False(t, check(t, d, All(yes, no)))
	assert.True(t, check(t, d, Any(no, yes)))
	assert.Equal(t, `all(url-contains("app"), url-contains("nope"))`, All(yes, no).Describe())
}

func TestAny_ReportsErrorOnlyWhenNothingHolds(t *testing.T) {
	d := conditionDriver()
	boom := errors.New("boom")
	failing := Predicate("failing", func(context.Context, core.Driver) (bool, error) { return false, boom })

	ok, err := Any(failing, URLContains("app")).Check(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = Any(failing, URLContains("nope")).Check(context.Background(), d)
	assert.ErrorIs(t, err, boom)
}

func TestAwait_VisibleAgainstMock(t *testing.T) {
	d := conditionDriver()
	save := find(t, d, "save")

	err := Await(context.Background(), d, Visible(save), Options{Timeout: time.Second, Poll: time.Millisecond})
	assert.NoError(t, err)
}
