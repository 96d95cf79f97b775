package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDSelector(t *testing.T) {
	assert.Equal(t, `[id="login"]`, IDSelector("login"))
	assert.Equal(t, `[id="we\"ird\\"]`, IDSelector(`we"ird\`))
}

func TestLinkText(t *testing.T) {
	assert.Equal(t, "//a[normalize-space(string(.))='Twitter']", LinkText(" Twitter "))
	assert.Equal(t, "//a[contains(string(.),'Twit')]", PartialLinkText("Twit"))
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, "'plain'", Literal("plain"))
	assert.Equal(t, `"it's"`, Literal("it's"))
	assert.Equal(t, `concat('say "it',"'",'s"')`, Literal(`say "it's"`))
}
