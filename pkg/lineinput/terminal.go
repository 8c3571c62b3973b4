package lineinput

import (
	"sync"

	"golang.org/x/term"
)

// Terminal хранит исходное состояние терминала и умеет его вернуть.
// Reset можно вызывать из обработчика сигналов и повторно.
type Terminal struct {
	mu    sync.Mutex
	fd    int
	state *term.State
}

// SaveTerminal запоминает состояние fd. Для не-терминала Reset ничего не делает.
func SaveTerminal(fd int) *Terminal {
	t := &Terminal{fd: fd}
	if !term.IsTerminal(fd) {
		return t
	}
	if st, err := term.GetState(fd); err == nil {
		t.state = st
	}
	return t
}

// IsTerminal сообщает, является ли fd терминалом
func (t *Terminal) IsTerminal() bool {
	return t != nil && t.state != nil
}

// Reset возвращает терминал в сохраненное состояние
func (t *Terminal) Reset() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == nil {
		return nil
	}
	return term.Restore(t.fd, t.state)
}
