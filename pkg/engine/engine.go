// Package engine описывает контракт сигнального движка, которым управляет консоль.
//
// Все методы Engine вызываются только из горутины реактора. Движок выполняет
// сетевую работу в своих горутинах, а результаты (вывод, обратные вызовы,
// изменения реестра операций) передает обратно через Poster.
package engine

import (
	"errors"
	"io"

	"github.com/arzzra/sofsip/pkg/config"
	"github.com/arzzra/sofsip/pkg/logging"
)

var (
	ErrMissingArgument  = errors.New("не хватает аргумента")
	ErrNoActiveCall     = errors.New("нет активного вызова")
	ErrNoPendingCall    = errors.New("нет входящего вызова, ожидающего ответа")
	ErrNoPendingInvite  = errors.New("нет исходящего вызова для отмены")
	ErrUnknownParam     = errors.New("неизвестный параметр")
	ErrUnknownOperation = errors.New("операция не найдена")
	ErrShuttingDown     = errors.New("движок завершает работу")
	ErrNoChallenge      = errors.New("нет запроса аутентификации")
)

// Arg необязательный аргумент команды. Present отличает отсутствие от пустой строки.
type Arg struct {
	Value   string
	Present bool
}

// Some возвращает присутствующий аргумент
func Some(v string) Arg { return Arg{Value: v, Present: true} }

// None отсутствующий аргумент
var None = Arg{}

// Or возвращает значение или def, если аргумент отсутствует или пуст
func (a Arg) Or(def string) string {
	if !a.Present || a.Value == "" {
		return def
	}
	return a.Value
}

// AuthItem запрос аутентификации, о котором сообщается оператору
type AuthItem struct {
	Scheme string
	Realm  string
}

// EventKind тип события движка
type EventKind string

const (
	EventIncomingCall EventKind = "incoming_call"
	EventCallState    EventKind = "call_state"
	EventRegistration EventKind = "registration"
	EventMessage      EventKind = "message"
	EventNotify       EventKind = "notify"
	EventResponse     EventKind = "response"
)

// Event событие движка. Консоль по нему только перерисовывает приглашение.
type Event struct {
	Kind   EventKind
	Op     Token
	Status int
	Text   string
}

// Callbacks обратные вызовы движка. Вызываются в горутине реактора.
type Callbacks struct {
	OnExit  func()
	OnAuth  func(items []AuthItem)
	OnEvent func(ev Event)
}

// Poster ставит функцию в очередь горутины реактора
type Poster interface {
	Post(fn func()) error
}

// Deps зависимости, которые сессия передает движку
type Deps struct {
	Poster Poster
	Out    io.Writer
	Ops    *Registry[Operation]
	Logger logging.Logger
}

// Factory создает движок для конфигурации
type Factory func(cfg config.Config, deps Deps) (Engine, error)

// Operation операция движка, на которую оператор ссылается токеном
type Operation interface {
	Kind() string
	Target() string
	State() string
}

// Engine сигнальный движок.
// Ошибка возвращается только при синхронном отказе, асинхронные результаты
// движок печатает сам.
type Engine interface {
	SetCallbacks(cb Callbacks)

	Answer(status int, reason string) error
	SetPublicAddress(addr string) error
	Bye() error
	Cancel() error
	Invite(target string) error
	Info(target, body string) error
	Hold(target Arg, hold bool) error
	Auth(credentials string) error
	List() error
	Message(dest, body string) error
	WebRTCSDP(op Operation, sdp string) error
	WebRTCSDPCalled(op Operation, sdp string) error
	PrintSettings() error
	Subscribe(target Arg) error
	Watch(target Arg) error
	Options(target string) error
	Publish(note Arg) error
	Unpublish() error
	Register(registrar Arg) error
	Unregister(target Arg) error
	Refer(target, referTo string) error
	Unsubscribe(target Arg) error
	Zap(target Arg) error
	Param(name, value string) error

	// Shutdown начинает корректное завершение, по окончании вызывается OnExit
	Shutdown() error
	// Close немедленно освобождает ресурсы
	Close() error
}
