package reactor

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/arzzra/sofsip/pkg/logging"
)

var (
	// ErrClosed реактор уже закрыт
	ErrClosed = errors.New("reactor закрыт")
	// ErrNotRegistered идентификатор не зарегистрирован
	ErrNotRegistered = errors.New("источник не зарегистрирован")
)

// Events флаги готовности дескриптора
type Events int16

const (
	Readable Events = unix.POLLIN
	Hangup   Events = unix.POLLHUP
	Failure  Events = unix.POLLERR
)

// Handler вызывается в горутине реактора, когда дескриптор готов
type Handler func(ev Events)

// ID идентификатор зарегистрированного источника
type ID uint64

type entry struct {
	id       ID
	fd       int
	priority int
	handler  Handler
}

// Reactor однопоточный цикл событий поверх poll(2).
//
// Register, Unregister и обработчики работают только в горутине,
// вызывающей Run (или до его запуска). Post и Break безопасны
// из любой горутины: они будят цикл через self-pipe.
type Reactor struct {
	mu      sync.Mutex
	posted  []func()
	entries []*entry
	nextID  ID

	wakeR, wakeW int

	stop   atomic.Bool
	closed atomic.Bool

	logger logging.Logger
}

// Option функциональная опция реактора
type Option func(*Reactor)

// WithLogger задает logger
func WithLogger(l logging.Logger) Option {
	return func(r *Reactor) {
		if l != nil {
			r.logger = l
		}
	}
}

// New создает реактор
func New(opts ...Option) (*Reactor, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, fmt.Errorf("ошибка создания wakeup pipe: %w", err)
	}
	for _, fd := range p {
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(p[0])
			unix.Close(p[1])
			return nil, fmt.Errorf("ошибка перевода pipe в неблокирующий режим: %w", err)
		}
		unix.CloseOnExec(fd)
	}

	r := &Reactor{
		wakeR:  p[0],
		wakeW:  p[1],
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Register регистрирует дескриптор на чтение.
// Меньший priority обслуживается раньше, при равенстве в порядке регистрации.
func (r *Reactor) Register(fd int, h Handler, priority int) (ID, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}
	if fd < 0 {
		return 0, fmt.Errorf("некорректный дескриптор %d", fd)
	}
	if h == nil {
		return 0, errors.New("обработчик не задан")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e := &entry{id: r.nextID, fd: fd, priority: priority, handler: h}
	r.entries = append(r.entries, e)
	sort.SliceStable(r.entries, func(i, j int) bool {
		return r.entries[i].priority < r.entries[j].priority
	})
	r.logger.Debug("источник зарегистрирован", logging.Int("fd", fd), logging.Int("priority", priority))
	return e.id, nil
}

// Unregister снимает регистрацию. Повторный вызов возвращает ErrNotRegistered.
func (r *Reactor) Unregister(id ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.id == id {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			r.logger.Debug("источник снят с регистрации", logging.Int("fd", e.fd))
			return nil
		}
	}
	return ErrNotRegistered
}

// registered сообщает, зарегистрирован ли источник
func (r *Reactor) registered(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.id == id {
			return true
		}
	}
	return false
}

// Post ставит функцию в очередь на выполнение в горутине реактора
func (r *Reactor) Post(fn func()) error {
	if fn == nil {
		return nil
	}
	if r.closed.Load() {
		return ErrClosed
	}
	r.mu.Lock()
	r.posted = append(r.posted, fn)
	r.mu.Unlock()
	r.wake()
	return nil
}

// Break заставляет Run вернуться после текущей итерации
func (r *Reactor) Break() {
	r.stop.Store(true)
	r.wake()
}

// Run обслуживает события до Break или фатальной ошибки
func (r *Reactor) Run() error {
	if r.closed.Load() {
		return ErrClosed
	}
	r.stop.Store(false)
	for !r.stop.Load() {
		if err := r.step(-1); err != nil {
			return err
		}
	}
	return nil
}

// RunOnce выполняет одну итерацию, ожидая не дольше timeout.
// Отрицательный timeout ждет без ограничения.
func (r *Reactor) RunOnce(timeout time.Duration) error {
	if r.closed.Load() {
		return ErrClosed
	}
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	return r.step(ms)
}

func (r *Reactor) step(timeoutMs int) error {
	r.mu.Lock()
	snapshot := make([]*entry, len(r.entries))
	copy(snapshot, r.entries)
	r.mu.Unlock()

	fds := make([]unix.PollFd, 0, len(snapshot)+1)
	fds = append(fds, unix.PollFd{Fd: int32(r.wakeR), Events: unix.POLLIN})
	for _, e := range snapshot {
		fds = append(fds, unix.PollFd{Fd: int32(e.fd), Events: unix.POLLIN})
	}

	if r.hasPosted() {
		timeoutMs = 0
	}

	_, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return fmt.Errorf("poll: %w", err)
	}

	if fds[0].Revents != 0 {
		r.drainWake()
	}
	r.runPosted()
	if r.stop.Load() {
		return nil
	}

	for i, e := range snapshot {
		rev := Events(fds[i+1].Revents)
		if rev&(Readable|Hangup|Failure) == 0 {
			continue
		}
		// обработчик предыдущего источника мог снять этот с регистрации
		if !r.registered(e.id) {
			continue
		}
		e.handler(rev)
		if r.stop.Load() {
			break
		}
	}
	return nil
}

func (r *Reactor) hasPosted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.posted) > 0
}

func (r *Reactor) runPosted() {
	r.mu.Lock()
	queue := r.posted
	r.posted = nil
	r.mu.Unlock()

	for _, fn := range queue {
		fn()
	}
}

func (r *Reactor) wake() {
	if r.closed.Load() {
		return
	}
	// EAGAIN означает, что в pipe уже есть байт
	_, _ = unix.Write(r.wakeW, []byte{1})
}

func (r *Reactor) drainWake() {
	var buf [64]byte
	for {
		n, err := unix.Read(r.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// Close освобождает ресурсы реактора. Ожидающие Post отбрасываются.
func (r *Reactor) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	r.mu.Lock()
	r.entries = nil
	r.posted = nil
	r.mu.Unlock()

	return errors.Join(unix.Close(r.wakeR), unix.Close(r.wakeW))
}
