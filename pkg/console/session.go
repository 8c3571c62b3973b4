package console

import (
	"context"
	"errors"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/arzzra/sofsip/pkg/config"
	"github.com/arzzra/sofsip/pkg/engine"
	"github.com/arzzra/sofsip/pkg/lineinput"
	"github.com/arzzra/sofsip/pkg/logging"
	"github.com/arzzra/sofsip/pkg/metrics"
	"github.com/arzzra/sofsip/pkg/reactor"
)

// ErrSessionExists в процессе уже работает сессия
var ErrSessionExists = errors.New("сессия консоли уже запущена")

// current единственная сессия процесса, видимая из обработчика сигналов
var current atomic.Pointer[Session]

// Input источник ввода с дескриптором для реактора
type Input interface {
	io.Reader
	Fd() uintptr
}

// Options параметры запуска консоли
type Options struct {
	Input  Input
	Output io.Writer
	Stderr io.Writer

	// Args аргументы командной строки, первый без '-' становится AOR
	Args []string
	// AOR и Registrar задает встраивающий код, пустые значения игнорируются
	AOR       string
	Registrar string
	// Config остальные источники конфигурации
	Config config.Sources

	EngineFactory engine.Factory
	Logger        logging.Logger
	Metrics       *metrics.Collector

	// Exit завершение процесса по сигналу, по умолчанию os.Exit
	Exit func(code int)
	// NoSignals не устанавливать обработчики сигналов
	NoSignals bool
}

// Session сессия консоли: реактор, движок, ввод и конфигурация
type Session struct {
	opts Options

	lifecycle  *Lifecycle
	reactor    *reactor.Reactor
	engine     engine.Engine
	cfg        *config.Config
	input      Input
	inputID    reactor.ID
	registered bool

	assembler  *lineinput.Assembler
	history    *lineinput.History
	terminal   atomic.Pointer[lineinput.Terminal]
	prompt     *Prompt
	dispatcher *Dispatcher
	sink       *Sink
	ops        *engine.Registry[engine.Operation]
	styles     *Styles

	out           io.Writer
	metrics       *metrics.Collector
	metricsServer *metrics.Server
	logger        logging.Logger
	stopSignals   func()

	initialized  bool
	debugEnabled bool
}

// Loop запускает консоль и возвращает код выхода.
// Возвращается после команды выхода, конца ввода или отмены ctx.
func Loop(ctx context.Context, opts Options) (int, error) {
	s := newSession(opts)
	if !current.CompareAndSwap(nil, s) {
		return 1, ErrSessionExists
	}

	if err := s.start(); err != nil {
		s.logger.LogError(err, "ошибка запуска консоли")
		s.teardown()
		return 1, err
	}
	err := s.run(ctx)
	s.teardown()
	if err != nil {
		return 1, err
	}
	return 0, nil
}

func newSession(opts Options) *Session {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	s := &Session{
		opts:    opts,
		input:   opts.Input,
		out:     opts.Output,
		metrics: opts.Metrics,
		logger:  logger.WithComponent("console"),
		ops:     engine.NewRegistry[engine.Operation](),
		styles:  NewStyles(opts.Output),
	}
	s.lifecycle = NewLifecycle(s.metrics, s.logger)
	return s
}

// State текущее состояние сессии
func (s *Session) State() string { return s.lifecycle.State() }

// Config текущая конфигурация, nil после завершения
func (s *Session) Config() *config.Config { return s.cfg }

// Initialized завершен ли запуск
func (s *Session) Initialized() bool { return s.initialized }

// DebugEnabled включен ли отладочный вывод
func (s *Session) DebugEnabled() bool { return s.debugEnabled }

// History история введенных команд
func (s *Session) History() *lineinput.History { return s.history }

func (s *Session) start() error {
	if err := s.lifecycle.Fire(EventStart); err != nil {
		return err
	}
	if !s.opts.NoSignals {
		s.stopSignals = installSignals(s.opts.Stderr, s.opts.Exit)
	}

	r, err := reactor.New(reactor.WithLogger(s.logger.WithComponent("reactor")))
	if err != nil {
		return newFatal(CodeReactorCreate, CategoryReactor, "не удалось создать реактор", err)
	}
	s.reactor = r

	src := s.opts.Config
	src.Args = s.opts.Args
	src.AOR = s.opts.AOR
	src.Registrar = s.opts.Registrar
	cfg, err := config.Load(src)
	if err != nil {
		return newFatal(CodeConfigLoad, CategoryConfig, "ошибка конфигурации", err)
	}
	s.cfg = &cfg
	s.debugEnabled = cfg.Debug
	if cfg.Debug {
		s.logger.SetLevel(logging.LevelDebug)
	}

	s.history = lineinput.NewHistory(cfg.HistorySize)
	s.prompt = NewPrompt(s.out, cfg.Prompt)
	s.assembler = lineinput.NewAssembler(0)

	if s.input == nil {
		return newFatal(CodeInputRegister, CategoryReactor, "источник ввода не задан", nil)
	}
	fd := int(s.input.Fd())
	s.terminal.Store(lineinput.SaveTerminal(fd))
	id, err := s.reactor.Register(fd, s.onInputReadable, 0)
	if err != nil {
		return newFatal(CodeInputRegister, CategoryReactor, "не удалось зарегистрировать ввод", err)
	}
	s.inputID = id
	s.registered = true

	if s.opts.EngineFactory == nil {
		return newFatal(CodeEngineCreate, CategoryEngine, "фабрика движка не задана", nil)
	}
	eng, err := s.opts.EngineFactory(cfg, engine.Deps{
		Poster: s.reactor,
		Out:    s.out,
		Ops:    s.ops,
		Logger: s.logger.WithComponent("engine"),
	})
	if err != nil {
		return newFatal(CodeEngineCreate, CategoryEngine, "не удалось создать движок", err)
	}
	s.engine = eng

	s.sink = &Sink{
		out:     s.out,
		styles:  s.styles,
		prompt:  s.prompt,
		metrics: s.metrics,
		ops:     s.ops,
		onExit:  s.reactor.Break,
	}
	s.engine.SetCallbacks(s.sink.Callbacks())

	s.dispatcher = NewDispatcher(DispatcherDeps{
		Engine:  s.engine,
		Ops:     s.ops,
		Out:     s.out,
		History: s.history,
		Prompt:  s.prompt,
		Metrics: s.metrics,
		Styles:  s.styles,
		Logger:  s.logger.WithComponent("dispatcher"),
		OnExit:  s.requestStop,
	})

	if cfg.MetricsAddr != "" && s.metrics != nil {
		srv, err := metrics.Start(cfg.MetricsAddr, s.metrics, s.logger.WithComponent("metrics"))
		if err != nil {
			s.logger.LogError(err, "сервер метрик не запущен")
		} else {
			s.metricsServer = srv
		}
	}

	s.initialized = true

	if cfg.Register {
		if err := s.engine.Register(engine.None); err != nil {
			s.dispatcher.report(OpRegister, err)
		}
	}
	return nil
}

func (s *Session) run(ctx context.Context) error {
	if err := s.lifecycle.Fire(EventRun); err != nil {
		return err
	}
	s.logger.Info("консоль запущена", logging.String("aor", s.cfg.AOR))
	s.prompt.Show()

	stop := context.AfterFunc(ctx, func() {
		_ = s.reactor.Post(s.requestStop)
	})
	defer stop()

	if err := s.reactor.Run(); err != nil {
		return newFatal(CodeReactorRun, CategoryReactor, "ошибка цикла событий", err)
	}
	return nil
}

// onInputReadable одно чтение на уведомление, затем разбор готовых строк
func (s *Session) onInputReadable(_ reactor.Events) {
	if _, err := s.assembler.ReadOnce(s.input); err != nil {
		s.logger.LogError(err, "ошибка чтения ввода")
		s.assembler.CloseInput()
	}
	for line := range s.assembler.Lines() {
		if line.EOF {
			s.handleEOF()
			return
		}
		// после остановки строки больше не выполняются
		if !s.lifecycle.Is(StateRunning) {
			continue
		}
		s.dispatcher.Dispatch(line.Text)
	}
}

func (s *Session) handleEOF() {
	s.logger.Debug("конец ввода")
	s.unregisterInput()
	s.requestStop()
}

// requestStop корректная остановка: движок завершает операции и вызывает OnExit
func (s *Session) requestStop() {
	if !s.lifecycle.Can(EventStop) {
		return
	}
	_ = s.lifecycle.Fire(EventStop)
	if s.dispatcher != nil {
		s.dispatcher.Abort()
	}
	if s.engine == nil {
		s.reactor.Break()
		return
	}
	if err := s.engine.Shutdown(); err != nil {
		s.logger.LogError(err, "ошибка завершения движка")
		s.reactor.Break()
	}
}

func (s *Session) unregisterInput() {
	if !s.registered {
		return
	}
	if err := s.reactor.Unregister(s.inputID); err != nil {
		s.logger.LogError(err, "ошибка снятия регистрации ввода")
	}
	s.registered = false
}

// teardown освобождает ресурсы: ввод, движок, история, терминал, реактор, конфигурация
func (s *Session) teardown() {
	if s.reactor != nil {
		s.unregisterInput()
	}
	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			s.logger.LogError(err, "ошибка закрытия движка")
		}
	}
	s.history.Clear()
	if err := s.terminal.Load().Reset(); err != nil {
		s.logger.LogError(err, "ошибка восстановления терминала")
	}
	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = s.metricsServer.Shutdown(ctx)
		cancel()
	}
	if s.reactor != nil {
		if err := s.reactor.Close(); err != nil {
			s.logger.LogError(err, "ошибка закрытия реактора")
		}
	}
	s.cfg = nil
	s.ops.Clear()
	s.initialized = false

	_ = s.lifecycle.Fire(EventTerminate)
	if s.stopSignals != nil {
		s.stopSignals()
	}
	current.CompareAndSwap(s, nil)
	s.logger.Debug("сессия завершена")
}
