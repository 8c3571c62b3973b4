package console

import (
	"errors"
	"fmt"
	"io"

	"github.com/arzzra/sofsip/pkg/engine"
	"github.com/arzzra/sofsip/pkg/lineinput"
	"github.com/arzzra/sofsip/pkg/logging"
	"github.com/arzzra/sofsip/pkg/metrics"
)

// UnknownCommandText сообщение о нераспознанной команде
const UnknownCommandText = `Unknown command. Type "help" for help`

// DispatcherDeps зависимости диспетчера
type DispatcherDeps struct {
	Engine  engine.Engine
	Ops     *engine.Registry[engine.Operation]
	Out     io.Writer
	History *lineinput.History
	Prompt  *Prompt
	Metrics *metrics.Collector
	Styles  *Styles
	Logger  logging.Logger
	// OnExit вызывается командой q/x/exit
	OnExit func()
}

// Dispatcher разбирает строку и вызывает операцию движка.
// Работает только в горутине реактора.
type Dispatcher struct {
	engine    engine.Engine
	ops       *engine.Registry[engine.Operation]
	out       io.Writer
	history   *lineinput.History
	prompt    *Prompt
	subPrompt *SubPrompt
	metrics   *metrics.Collector
	styles    *Styles
	logger    logging.Logger
	onExit    func()
}

// NewDispatcher создает диспетчер
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	d := &Dispatcher{
		engine:  deps.Engine,
		ops:     deps.Ops,
		out:     deps.Out,
		history: deps.History,
		prompt:  deps.Prompt,
		metrics: deps.Metrics,
		styles:  deps.Styles,
		logger:  deps.Logger,
		onExit:  deps.OnExit,
	}
	if d.out == nil {
		d.out = io.Discard
	}
	if d.prompt == nil {
		d.prompt = NewPrompt(d.out, "")
	}
	if d.history == nil {
		d.history = lineinput.NewHistory(0)
	}
	if d.ops == nil {
		d.ops = engine.NewRegistry[engine.Operation]()
	}
	if d.styles == nil {
		d.styles = NewStyles(d.out)
	}
	if d.logger == nil {
		d.logger = logging.Default()
	}
	d.subPrompt = NewSubPrompt(d.prompt)
	return d
}

// SubPrompt контроллер второй строки
func (d *Dispatcher) SubPrompt() *SubPrompt { return d.subPrompt }

// Dispatch выполняет одну строку ввода
func (d *Dispatcher) Dispatch(line string) {
	d.prompt.Hide()

	if d.subPrompt.Pending() {
		op, err := d.subPrompt.Complete(line)
		d.metrics.CommandExecuted(op)
		d.report(op, err)
		d.finish()
		return
	}

	text := Trim(line)
	d.history.Add(text)
	cmd := Parse(text)

	switch v, ok := Lookup(cmd.Verb); {
	case ok:
		d.logger.Debug("команда", logging.String("operation", v.Op), logging.Bool("has_arg", cmd.Rest.Present))
		err := v.Handler(d, cmd.Rest)
		// двухшаговая команда учитывается после второй строки
		if !d.subPrompt.Pending() {
			d.metrics.CommandExecuted(v.Op)
		}
		d.report(v.Op, err)
	default:
		if name, value, isAssign := Assignment(text); isAssign {
			err := d.engine.Param(name, value)
			d.metrics.CommandExecuted(OpAssign)
			d.report(OpAssign, err)
		} else if helpVerb.Matches(cmd.Verb) {
			err := helpVerb.Handler(d, cmd.Rest)
			d.metrics.CommandExecuted(OpHelp)
			d.report(OpHelp, err)
		} else {
			d.metrics.UnknownCommand()
			d.logger.Debug("неизвестная команда", logging.String("verb", cmd.Verb))
			fmt.Fprintln(d.out, UnknownCommandText)
		}
	}

	// двухшаговая команда оставляет приглашение скрытым до второй строки
	if d.subPrompt.Pending() {
		return
	}
	d.finish()
}

// Abort сбрасывает ожидающую вторую строку (конец ввода)
func (d *Dispatcher) Abort() {
	if d.subPrompt.Pending() {
		d.subPrompt.Drop()
	}
}

func (d *Dispatcher) finish() {
	d.prompt.Restore()
	d.prompt.Show()
}

func (d *Dispatcher) report(op string, err error) {
	if err == nil {
		return
	}
	var cerr *Error
	if !errors.As(err, &cerr) {
		cerr = newError(CodeEngineCommand, CategoryEngine, op, err)
	}
	d.logger.LogError(cerr, "команда завершилась ошибкой", logging.String("operation", op))
	style := d.styles.Error
	if cerr.Category == CategoryUsage {
		style = d.styles.Muted
	}
	fmt.Fprintln(d.out, style.Render("Error: "+cerr.Operator()))
}

func (d *Dispatcher) usage(op string) error {
	return newError(CodeMissingArgument, CategoryUsage, "usage: "+lookupUsage(op), nil)
}

func (d *Dispatcher) requestExit() {
	if d.onExit != nil {
		d.onExit()
	}
}

// resolveSDP разбирает "<ссылка> <sdp>" и ищет операцию в реестре
func (d *Dispatcher) resolveSDP(op string, rest engine.Arg) (engine.Operation, string, error) {
	ref, sdp, ok := splitFirst(rest)
	if !ok || ref == "" {
		return nil, "", d.usage(op)
	}
	_, operation, err := d.ops.Resolve(ref)
	if err != nil {
		return nil, "", newError(CodeBadReference, CategoryBadReference, "invalid operation reference", err)
	}
	return operation, sdp, nil
}
