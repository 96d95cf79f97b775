// Package window tracks browser windows and coordinates navigational steps
// that may open a new window or navigate the current tab.
package window

import (
	"fmt"
	"sort"
	"time"

	"github.com/devicelab-dev/steadyhand/pkg/core"
)

// Entry is one known window.
type Entry struct {
	Handle   string    `json:"handle"`
	URL      string    `json:"url"`
	OpenedAt time.Time `json:"openedAt"`
	Original bool      `json:"original"`
}

// ErrOriginalClosed reports that the original window no longer exists.
var ErrOriginalClosed = core.NewExecutionError(core.ErrCategoryWindowMismatch,
	"original_window_closed", "the original window is gone")

// Set maps window handles to entries. Exactly one entry is the original.
type Set struct {
	entries  map[string]*Entry
	original string
}

// NewSet creates a set whose original window is handle.
func NewSet(handle, url string, at time.Time) *Set {
	return &Set{
		entries: map[string]*Entry{
			handle: {Handle: handle, URL: url, OpenedAt: at, Original: true},
		},
		original: handle,
	}
}

// Original returns the original window handle.
func (s *Set) Original() string { return s.original }

// Get returns a copy of the entry for handle.
func (s *Set) Get(handle string) (Entry, bool) {
	e, ok := s.entries[handle]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Add records a window. Adding a known handle only updates its URL.
func (s *Set) Add(handle, url string, at time.Time) {
	if e, ok := s.entries[handle]; ok {
		e.URL = url
		return
	}
	s.entries[handle] = &Entry{Handle: handle, URL: url, OpenedAt: at}
}

// SetURL updates the last known URL of handle.
func (s *Set) SetURL(handle, url string) {
	if e, ok := s.entries[handle]; ok {
		e.URL = url
	}
}

// Remove forgets a closed window. The original cannot be removed.
func (s *Set) Remove(handle string) error {
	if handle == s.original {
		return ErrOriginalClosed.WithMessage("the original window cannot be removed").
			WithDetails(map[string]interface{}{"handle": handle})
	}
	delete(s.entries, handle)
	return nil
}

// Rebase makes handle the original window, adding it if unknown.
func (s *Set) Rebase(handle, url string, at time.Time) {
	if old, ok := s.entries[s.original]; ok {
		old.Original = false
	}
	s.Add(handle, url, at)
	s.entries[handle].Original = true
	s.original = handle
}

// Sync reconciles the set with the handles the driver reports. Unknown
// handles are added, missing ones dropped. It fails if the original window
// has disappeared.
func (s *Set) Sync(handles []string, at time.Time) (added []string, err error) {
	live := make(map[string]bool, len(handles))
	for _, h := range handles {
		live[h] = true
		if _, ok := s.entries[h]; !ok {
			s.entries[h] = &Entry{Handle: h, OpenedAt: at}
			added = append(added, h)
		}
	}
	if !live[s.original] {
		return added, ErrOriginalClosed.WithDetails(map[string]interface{}{"handle": s.original})
	}
	for h := range s.entries {
		if !live[h] {
			delete(s.entries, h)
		}
	}
	sort.Strings(added)
	return added, nil
}

// Len returns the number of known windows.
func (s *Set) Len() int { return len(s.entries) }

// Handles returns all known handles, sorted.
func (s *Set) Handles() []string {
	out := make([]string, 0, len(s.entries))
	for h := range s.entries {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// String implements fmt.Stringer.
func (s *Set) String() string {
	return fmt.Sprintf("windows(%d, original=%s)", len(s.entries), s.original)
}
