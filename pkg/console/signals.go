package console

import (
	"fmt"
	"io"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// TerminatingSignals сигналы, завершающие процесс немедленно
var TerminatingSignals = []os.Signal{os.Interrupt, unix.SIGABRT, unix.SIGTERM}

// SignalMessage сообщение при завершении по сигналу
func SignalMessage(signo int) string {
	return fmt.Sprintf("\n\nWARNING: The program has received signal (%d) and will terminate.\n", signo)
}

// installSignals запускает горутину обработки сигналов и возвращает функцию остановки.
// Путь сигнала не трогает реактор и движок: только сброс терминала и выход.
func installSignals(stderr io.Writer, exit func(code int)) func() {
	ch := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(ch, TerminatingSignals...)

	go func() {
		select {
		case sig := <-ch:
			handleSignal(sig, stderr, exit)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}

func handleSignal(sig os.Signal, stderr io.Writer, exit func(code int)) {
	signo := signalNumber(sig)
	io.WriteString(stderr, SignalMessage(signo))
	if s := current.Load(); s != nil {
		_ = s.terminal.Load().Reset()
	}
	exit(128 + signo)
}

func signalNumber(sig os.Signal) int {
	if s, ok := sig.(unix.Signal); ok {
		return int(s)
	}
	return int(unix.SIGTERM)
}
