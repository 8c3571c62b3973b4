package lineinput

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
)

// DefaultMaxLine максимальная длина строки без перевода строки
const DefaultMaxLine = 4096

const readChunk = 4096

// Line собранная строка ввода. EOF отмечает конец ввода и приходит ровно один раз.
type Line struct {
	Text string
	EOF  bool
}

// Assembler собирает байты из источника в строки.
// Незавершенная строка сохраняется между уведомлениями.
type Assembler struct {
	buf     []byte
	maxLine int

	eof          bool
	eofDelivered bool
}

// NewAssembler создает сборщик строк
func NewAssembler(maxLine int) *Assembler {
	if maxLine <= 0 {
		maxLine = DefaultMaxLine
	}
	return &Assembler{maxLine: maxLine}
}

// Feed добавляет прочитанные байты
func (a *Assembler) Feed(p []byte) {
	if a.eof {
		return
	}
	a.buf = append(a.buf, p...)
}

// CloseInput отмечает конец ввода. Остаток буфера станет последней строкой.
func (a *Assembler) CloseInput() {
	a.eof = true
}

// Closed сообщает, был ли достигнут конец ввода
func (a *Assembler) Closed() bool { return a.eof }

// ReadOnce выполняет ровно одно чтение из r и передает данные в сборщик.
// Нулевое чтение или io.EOF закрывают ввод.
func (a *Assembler) ReadOnce(r io.Reader) (int, error) {
	if a.eof {
		return 0, nil
	}
	chunk := make([]byte, readChunk)
	n, err := r.Read(chunk)
	if n > 0 {
		a.Feed(chunk[:n])
	}
	switch {
	case errors.Is(err, io.EOF):
		a.CloseInput()
		return n, nil
	case err != nil:
		return n, fmt.Errorf("ошибка чтения ввода: %w", err)
	case n == 0:
		a.CloseInput()
	}
	return n, nil
}

// Lines возвращает готовые строки. Если потребитель прервал перебор,
// оставшиеся строки будут выданы при следующем вызове.
func (a *Assembler) Lines() iter.Seq[Line] {
	return func(yield func(Line) bool) {
		for {
			line, ok := a.next()
			if !ok {
				return
			}
			if !yield(line) {
				return
			}
		}
	}
}

func (a *Assembler) next() (Line, bool) {
	if i := bytes.IndexByte(a.buf, '\n'); i >= 0 {
		text := string(a.buf[:i])
		a.buf = a.buf[i+1:]
		return Line{Text: text}, true
	}
	if len(a.buf) >= a.maxLine {
		text := string(a.buf[:a.maxLine])
		a.buf = a.buf[a.maxLine:]
		return Line{Text: text}, true
	}
	if !a.eof || a.eofDelivered {
		return Line{}, false
	}
	if len(a.buf) > 0 {
		text := string(a.buf)
		a.buf = nil
		return Line{Text: text}, true
	}
	a.eofDelivered = true
	return Line{EOF: true}, true
}
