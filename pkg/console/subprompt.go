package console

import "strings"

const (
	InfoPrompt  = "Enter INFO message> "
	ReferPrompt = "Enter refer_to address: "

	// MaxSubPromptInput максимальная длина второй строки
	MaxSubPromptInput = 159
)

// SubPromptPhase фаза двухшаговой команды
type SubPromptPhase int

const (
	// PhaseIdle нет отложенной команды, следующая строка разбирается как команда
	PhaseIdle SubPromptPhase = iota
	// PhaseAwaitingSecondLine первая строка принята, ждем вторую
	PhaseAwaitingSecondLine
	// PhaseReady вторая строка получена, команда передается движку
	PhaseReady
)

func (p SubPromptPhase) String() string {
	switch p {
	case PhaseAwaitingSecondLine:
		return "awaiting-second-line"
	case PhaseReady:
		return "ready-to-dispatch"
	default:
		return "awaiting-first-line"
	}
}

type continuation struct {
	op       string
	complete func(second string) error
}

// SubPrompt отложенное продолжение команд, которым нужна вторая строка.
// Вместо блокирующего чтения команда запоминается, а реактор продолжает
// обслуживать события до прихода следующей строки.
type SubPrompt struct {
	prompt  *Prompt
	phase   SubPromptPhase
	pending *continuation
}

func NewSubPrompt(p *Prompt) *SubPrompt {
	return &SubPrompt{prompt: p}
}

// Begin запоминает продолжение и выводит приглашение text
func (s *SubPrompt) Begin(op, text string, complete func(second string) error) {
	s.pending = &continuation{op: op, complete: complete}
	s.phase = PhaseAwaitingSecondLine
	s.prompt.Set(text)
}

// Pending ожидается ли вторая строка
func (s *SubPrompt) Pending() bool { return s.pending != nil }

// Phase текущая фаза
func (s *SubPrompt) Phase() SubPromptPhase { return s.phase }

// Complete передает вторую строку продолжению и сбрасывает его.
// Строка обрезается до MaxSubPromptInput байт.
func (s *SubPrompt) Complete(line string) (string, error) {
	c := s.pending
	if c == nil {
		return "", nil
	}
	s.phase = PhaseReady
	s.pending = nil

	line = strings.TrimRight(line, "\r\n")
	if len(line) > MaxSubPromptInput {
		line = line[:MaxSubPromptInput]
	}
	err := c.complete(line)

	s.phase = PhaseIdle
	s.prompt.Restore()
	return c.op, err
}

// Drop отбрасывает ожидающее продолжение
func (s *SubPrompt) Drop() {
	s.pending = nil
	s.phase = PhaseIdle
	s.prompt.Restore()
}
