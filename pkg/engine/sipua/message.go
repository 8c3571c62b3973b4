package sipua

import (
	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"

	"github.com/arzzra/sofsip/pkg/engine"
)

// outOfDialog операция с запросом вне диалога. Повтор собирает запрос
// с тем же Call-ID и следующим CSeq.
func (a *Agent) outOfDialog(kind opKind, uri sip.Uri, method sip.RequestMethod, decorate func(req *sip.Request)) *operation {
	op := newOperation(kind, uri.String(), stCalling)
	op.callID = uuid.NewString()
	op.localURI = a.aor
	op.localTag = sip.RandString(16)
	op.remoteURI = uri
	op.remoteTarget = uri
	op.build = func() *sip.Request {
		req := a.buildRequest(requestSpec{
			method:    method,
			recipient: op.remoteTarget,
			from:      op.localURI,
			fromTag:   op.localTag,
			to:        op.remoteURI,
			toTag:     op.remoteTag,
			callID:    op.callID,
			cseq:      op.nextCSeq(),
			contact:   method != sip.MESSAGE,
		})
		if decorate != nil {
			decorate(req)
		}
		return req
	}
	return op
}

// startSimple одноразовый запрос: результат печатается, операция удаляется
func (a *Agent) startSimple(op *operation, what string) {
	op.onSuccess = func(res *sip.Response) {
		a.printf("%s: %s %s: %d %s\n", op.token, what, op.target, res.StatusCode, res.Reason)
		a.notify(engine.EventResponse, op, res.StatusCode, res.Reason)
		a.drop(op)
	}
	a.add(op)
	a.transact(op, op.build(), nil)
}

// Message отправляет MESSAGE
func (a *Agent) Message(dest, body string) error {
	if a.shutting {
		return engine.ErrShuttingDown
	}
	uri, err := a.parseTarget(dest)
	if err != nil {
		return err
	}
	op := a.outOfDialog(kindMessage, uri, sip.MESSAGE, func(req *sip.Request) {
		setBody(req, textPlain, []byte(body))
	})
	a.startSimple(op, "MESSAGE")
	return nil
}

// Options запрашивает возможности удаленной стороны
func (a *Agent) Options(target string) error {
	if a.shutting {
		return engine.ErrShuttingDown
	}
	uri, err := a.parseTarget(target)
	if err != nil {
		return err
	}
	op := a.outOfDialog(kindOptions, uri, sip.OPTIONS, func(req *sip.Request) {
		req.AppendHeader(sip.NewHeader("Accept", sdpContentType))
	})
	op.onSuccess = func(res *sip.Response) {
		a.printf("%s: OPTIONS %s: %d %s\n", op.token, op.target, res.StatusCode, res.Reason)
		if allow := headerValue(res, "Allow"); allow != "" {
			a.printf("%s: Allow: %s\n", op.token, allow)
		}
		if ua := headerValue(res, "User-Agent"); ua != "" {
			a.printf("%s: User-Agent: %s\n", op.token, ua)
		} else if server := headerValue(res, "Server"); server != "" {
			a.printf("%s: Server: %s\n", op.token, server)
		}
		a.notify(engine.EventResponse, op, res.StatusCode, res.Reason)
		a.drop(op)
	}
	a.add(op)
	a.transact(op, op.build(), nil)
	return nil
}
