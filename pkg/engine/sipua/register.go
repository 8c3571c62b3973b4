package sipua

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"

	"github.com/arzzra/sofsip/pkg/engine"
	"github.com/arzzra/sofsip/pkg/logging"
)

var errNotRegistered = errors.New("нет активной регистрации")

// Register регистрирует AOR на регистраторе (по умолчанию из конфигурации).
// Повторный вызов без аргумента обновляет текущую регистрацию.
func (a *Agent) Register(registrar engine.Arg) error {
	if a.shutting {
		return engine.ErrShuttingDown
	}
	current := a.findKind(kindRegister)
	if current != nil && (!registrar.Present || registrar.Value == "") {
		current.stopTimer()
		current.expires = a.expires
		a.printf("%s: refreshing registration at %s\n", current.token, current.target)
		a.transact(current, current.build(), nil)
		return nil
	}

	raw := registrar.Or(a.cfg.Registrar)
	if raw == "" {
		return fmt.Errorf("%w: registrar", engine.ErrMissingArgument)
	}
	uri, err := a.parseTarget(raw)
	if err != nil {
		return err
	}
	if current != nil {
		a.drop(current)
	}

	op := a.newRegistration(uri, a.expires)
	a.add(op)
	a.printf("%s: registering %s at %s\n", op.token, a.aor.String(), op.target)
	a.transact(op, op.build(), nil)
	return nil
}

func (a *Agent) newRegistration(registrar sip.Uri, expires int) *operation {
	op := newOperation(kindRegister, registrar.String(), stCalling)
	op.callID = uuid.NewString()
	op.localURI = a.aor
	op.localTag = sip.RandString(16)
	op.expires = expires
	op.build = func() *sip.Request {
		exp := op.expires
		return a.buildRequest(requestSpec{
			method:    sip.REGISTER,
			recipient: registrar,
			from:      a.aor,
			fromTag:   op.localTag,
			to:        a.aor,
			callID:    op.callID,
			cseq:      op.nextCSeq(),
			contact:   true,
			expires:   &exp,
		})
	}
	op.onSuccess = func(res *sip.Response) { a.registered(op, res) }
	return op
}

func (a *Agent) registered(op *operation, res *sip.Response) {
	if op.expires == 0 {
		a.printf("%s: unregistered from %s\n", op.token, op.target)
		a.notify(engine.EventRegistration, op, res.StatusCode, "unregistered")
		a.drop(op)
		return
	}

	granted := op.expires
	if v := headerValue(res, "Expires"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			granted = n
		}
	}
	a.printf("%s: registered at %s (expires %ds)\n", op.token, op.target, granted)
	a.notify(engine.EventRegistration, op, res.StatusCode, res.Reason)
	a.scheduleRefresh(op, granted)
}

// scheduleRefresh повторяет запрос операции до истечения срока
func (a *Agent) scheduleRefresh(op *operation, expires int) {
	op.stopTimer()
	if expires <= 0 || a.shutting {
		return
	}
	op.timer = time.AfterFunc(refreshInterval(expires), func() {
		a.post(func() {
			if !op.is(stActive) || a.shutting {
				return
			}
			a.logger.Debug("обновление операции",
				logging.String("token", op.token.String()),
				logging.String("kind", op.Kind()))
			a.transact(op, op.build(), nil)
		})
	})
}

// refreshInterval момент обновления: за 10% срока до истечения, минимум за 5 секунд
func refreshInterval(expires int) time.Duration {
	d := time.Duration(expires) * time.Second
	margin := d / 10
	if margin < 5*time.Second {
		margin = 5 * time.Second
	}
	if d <= margin {
		return d / 2
	}
	return d - margin
}

// Unregister снимает текущую регистрацию или регистрацию на указанном регистраторе
func (a *Agent) Unregister(target engine.Arg) error {
	if op := a.findKind(kindRegister); op != nil && (!target.Present || target.Value == "") {
		a.unregister(op)
		return nil
	}
	if !target.Present || target.Value == "" {
		return errNotRegistered
	}

	uri, err := a.parseTarget(target.Value)
	if err != nil {
		return err
	}
	if op := a.find(target, func(op *operation) bool { return op.kind == kindRegister }); op != nil {
		a.unregister(op)
		return nil
	}
	op := a.newRegistration(uri, 0)
	a.add(op)
	_ = op.fire(evEnd)
	a.printf("%s: unregistering %s at %s\n", op.token, a.aor.String(), op.target)
	a.transact(op, op.build(), nil)
	return nil
}

func (a *Agent) unregister(op *operation) {
	op.stopTimer()
	op.expires = 0
	_ = op.fire(evEnd)
	a.printf("%s: unregistering %s at %s\n", op.token, a.aor.String(), op.target)
	a.transact(op, op.build(), nil)
}
