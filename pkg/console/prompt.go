package console

import "io"

// Prompt текст приглашения и флаг его отображения.
// Пока выполняется команда (включая ожидание второй строки), showing ложен.
type Prompt struct {
	out     io.Writer
	idle    string
	current string
	showing bool
}

// NewPrompt создает приглашение с текстом простоя idle
func NewPrompt(out io.Writer, idle string) *Prompt {
	return &Prompt{out: out, idle: idle, current: idle}
}

// Set меняет текст приглашения и сразу выводит его
func (p *Prompt) Set(text string) {
	p.current = text
	p.draw()
}

// Restore возвращает текст простоя
func (p *Prompt) Restore() {
	p.current = p.idle
}

// Current текущий текст приглашения
func (p *Prompt) Current() string { return p.current }

// Showing отображается ли приглашение
func (p *Prompt) Showing() bool { return p.showing }

// Hide отмечает начало выполнения команды
func (p *Prompt) Hide() { p.showing = false }

// Show отмечает завершение команды и выводит приглашение
func (p *Prompt) Show() {
	p.showing = true
	p.draw()
}

// Refresh перерисовывает приглашение, если оно отображается
func (p *Prompt) Refresh() {
	if p.showing {
		p.draw()
	}
}

func (p *Prompt) draw() {
	if p.current == "" || p.out == nil {
		return
	}
	io.WriteString(p.out, p.current)
}
