package tui

// history is the back/forward list of visited folders.
type history struct {
	paths []string
	pos   int
}

// Visit records dir as the current folder. Forward entries are dropped.
// Visiting the current folder again is a no-op.
func (h *history) Visit(dir string) {
	if len(h.paths) > 0 && h.paths[h.pos] == dir {
		return
	}
	if len(h.paths) > 0 {
		h.paths = h.paths[:h.pos+1]
	}
	h.paths = append(h.paths, dir)
	h.pos = len(h.paths) - 1
}

func (h *history) Back() (string, bool) {
	if h.pos <= 0 || len(h.paths) == 0 {
		return "", false
	}
	h.pos--
	return h.paths[h.pos], true
}

func (h *history) Forward() (string, bool) {
	if h.pos >= len(h.paths)-1 {
		return "", false
	}
	h.pos++
	return h.paths[h.pos], true
}

func (h *history) CanBack() bool    { return h.pos > 0 }
func (h *history) CanForward() bool { return h.pos < len(h.paths)-1 }
