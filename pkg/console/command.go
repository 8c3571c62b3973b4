package console

import (
	"strings"

	"github.com/arzzra/sofsip/pkg/engine"
)

const whitespace = " \t\r\n"

// Command разобранная строка: глагол и необязательный остаток
type Command struct {
	Verb string
	Rest engine.Arg
}

// Trim убирает пробелы, табуляции, CR и LF по краям
func Trim(line string) string {
	return strings.Trim(line, whitespace)
}

// Parse делит обрезанную строку по первой серии пробельных символов.
// Остаток отсутствует, если после глагола ничего нет.
func Parse(line string) Command {
	line = Trim(line)
	i := strings.IndexAny(line, whitespace)
	if i < 0 {
		return Command{Verb: line}
	}
	rest := strings.TrimLeft(line[i:], whitespace)
	if rest == "" {
		return Command{Verb: line[:i]}
	}
	return Command{Verb: line[:i], Rest: engine.Some(rest)}
}

// Assignment распознает "name=value": первым из символов
// пробел, табуляция, CR, LF и '=' должен встретиться '='.
// Значение берется из глагола, остаток строки не учитывается.
func Assignment(line string) (name, value string, ok bool) {
	i := strings.IndexAny(line, whitespace+"=")
	if i < 0 || line[i] != '=' {
		return "", "", false
	}
	verb := Parse(line).Verb
	name, value, _ = strings.Cut(verb, "=")
	return name, value, true
}

// splitFirst делит остаток по первому одиночному пробелу
func splitFirst(rest engine.Arg) (head string, tail string, ok bool) {
	if !rest.Present {
		return "", "", false
	}
	head, tail, found := strings.Cut(rest.Value, " ")
	if !found {
		return head, "", true
	}
	return head, tail, true
}
