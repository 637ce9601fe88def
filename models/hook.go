package models

// PlaceholderKind identifies what gets substituted for a $x sequence in a
// command template.
type PlaceholderKind int

const (
	PlaceholderDollar    PlaceholderKind = iota // $$
	PlaceholderPath                             // $@
	PlaceholderFilename                         // $#
	PlaceholderEventText                        // $%
	PlaceholderEventNum                         // $&
)

// PlaceholderKindFor maps the character following a '$' to its kind.
func PlaceholderKindFor(c byte) (PlaceholderKind, bool) {
	switch c {
	case '$':
		return PlaceholderDollar, true
	case '@':
		return PlaceholderPath, true
	case '#':
		return PlaceholderFilename, true
	case '%':
		return PlaceholderEventText, true
	case '&':
		return PlaceholderEventNum, true
	}

	return 0, false
}

// Placeholder is the position of a $x sequence inside a command template.
// A hook keeps its placeholders sorted by (Token, Offset).
type Placeholder struct {
	Token  int
	Offset int
	Kind   PlaceholderKind
}

// Owner is the identity a hook runs as.
type Owner struct {
	Name string
	Uid  uint32
	Gid  uint32
	Home string
}

type Hook struct {
	Path         *WatchedPath
	Mask         uint32
	Flags        uint32
	Command      []string
	Placeholders []Placeholder
	Fired        bool
	Owner        Owner

	// Source and Line locate the table entry the hook was built from.
	Source string
	Line   int
}

// NoLoop reports whether the table entry carried IN_NO_LOOP. The flag is
// kept for table compatibility; dispatch does not act on it.
func (h *Hook) NoLoop() bool {
	return h.Flags&FlagNoLoop != 0
}

// WatchedPath is one distinct path under observation together with the
// hooks registered on it, in table order.
type WatchedPath struct {
	Path    string
	Mask    uint32
	WatchID int
	Hooks   []*Hook
}

// AddHook appends h and widens the path mask by the hook mask.
func (p *WatchedPath) AddHook(h *Hook) {
	h.Path = p
	p.Hooks = append(p.Hooks, h)
	p.Mask |= h.Mask
}

// Registered reports whether the path has a kernel watch.
func (p *WatchedPath) Registered() bool {
	return p.WatchID >= 0
}
