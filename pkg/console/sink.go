package console

import (
	"fmt"
	"io"

	"github.com/arzzra/sofsip/pkg/engine"
	"github.com/arzzra/sofsip/pkg/metrics"
)

// AuthMessage подсказка оператору при запросе аутентификации
func AuthMessage(scheme string) string {
	return fmt.Sprintf("Please authenticate '%s' with the 'k' command (e.g. 'k password', or 'k [method:realm:username:]password')", scheme)
}

// Sink принимает обратные вызовы движка в горутине реактора
type Sink struct {
	out     io.Writer
	styles  *Styles
	prompt  *Prompt
	metrics *metrics.Collector
	ops     *engine.Registry[engine.Operation]
	onExit  func()
}

// Callbacks возвращает обратные вызовы для движка
func (s *Sink) Callbacks() engine.Callbacks {
	return engine.Callbacks{
		OnExit:  s.Exit,
		OnAuth:  s.Auth,
		OnEvent: s.Event,
	}
}

// Auth печатает подсказку для каждого запроса
func (s *Sink) Auth(items []engine.AuthItem) {
	for _, item := range items {
		fmt.Fprintln(s.out, s.styles.Notice.Render(AuthMessage(item.Scheme)))
	}
	s.metrics.AuthRequested(len(items))
	s.prompt.Refresh()
}

// Event только перерисовывает приглашение
func (s *Sink) Event(ev engine.Event) {
	s.metrics.EngineEvent(string(ev.Kind))
	if s.ops != nil {
		s.metrics.SetOperations(s.ops.Len())
	}
	s.prompt.Refresh()
}

// Exit движок завершил работу
func (s *Sink) Exit() {
	if s.onExit != nil {
		s.onExit()
	}
}
