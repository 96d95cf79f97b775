package pipeline

import (
	"time"

	"github.com/devicelab-dev/steadyhand/pkg/window"
)

func windowExpect(domain string) window.Expectation {
	return window.Expectation{Domain: domain, Timeout: time.Second, Poll: 100 * time.Millisecond}
}
