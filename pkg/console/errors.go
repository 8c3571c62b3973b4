package console

import (
	"errors"
	"fmt"

	"github.com/arzzra/sofsip/pkg/logging"
)

// ErrorCategory категория ошибки консоли
type ErrorCategory string

const (
	CategoryUnknownCommand ErrorCategory = "UNKNOWN_COMMAND"
	CategoryBadReference   ErrorCategory = "BAD_REFERENCE"
	CategoryUsage          ErrorCategory = "USAGE"
	CategoryReactor        ErrorCategory = "REACTOR"
	CategoryEngine         ErrorCategory = "ENGINE"
	CategoryAsync          ErrorCategory = "ASYNC"
	CategorySignal         ErrorCategory = "SIGNAL"
	CategoryConfig         ErrorCategory = "CONFIG"
)

// Коды ошибок
const (
	CodeUnknownCommand   = "UNKNOWN_COMMAND"
	CodeBadReference     = "BAD_OPERATION_REFERENCE"
	CodeMissingArgument  = "MISSING_ARGUMENT"
	CodeReactorCreate    = "REACTOR_CREATE_FAILED"
	CodeInputRegister    = "INPUT_REGISTER_FAILED"
	CodeReactorRun       = "REACTOR_RUN_FAILED"
	CodeEngineCreate     = "ENGINE_CREATE_FAILED"
	CodeEngineCommand    = "ENGINE_COMMAND_FAILED"
	CodeConfigLoad       = "CONFIG_LOAD_FAILED"
	CodeTerminatedSignal = "TERMINATED_BY_SIGNAL"
	CodeInvalidState     = "INVALID_SESSION_STATE"
)

// Error ошибка консоли с категорией и кодом.
// Fatal ошибки прерывают запуск сессии, остальные печатаются и игнорируются.
type Error struct {
	Code     string
	Category ErrorCategory
	Message  string
	Fatal    bool
	Cause    error
}

// Error реализует интерфейс error
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap возвращает причину
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is сравнивает по коду
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// LogFields поля для структурированного лога
func (e *Error) LogFields() []logging.Field {
	return []logging.Field{
		logging.String("error_code", e.Code),
		logging.String("error_category", string(e.Category)),
		logging.Bool("fatal", e.Fatal),
	}
}

// Operator текст для оператора, без служебных кодов
func (e *Error) Operator() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func newError(code string, category ErrorCategory, message string, cause error) *Error {
	return &Error{Code: code, Category: category, Message: message, Cause: cause}
}

func newFatal(code string, category ErrorCategory, message string, cause error) *Error {
	e := newError(code, category, message, cause)
	e.Fatal = true
	return e
}

// IsFatal проверяет, является ли ошибка фатальной
func IsFatal(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Fatal
}
