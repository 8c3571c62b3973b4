package sipua

import (
	"strings"

	"github.com/emiago/sipgo/sip"

	"github.com/arzzra/sofsip/pkg/engine"
	"github.com/arzzra/sofsip/pkg/logging"
)

const allowMethods = "INVITE, ACK, CANCEL, BYE, OPTIONS, MESSAGE, INFO, NOTIFY, REFER"

// registerHandlers регистрирует обработчики входящих запросов.
// Обработчики работают в горутинах sipgo и меняют состояние только через реактор.
func (a *Agent) registerHandlers() {
	a.server.OnInvite(a.onInvite)
	a.server.OnAck(a.onAck)
	a.server.OnBye(a.onBye)
	a.server.OnOptions(a.onOptions)
	a.server.OnMessage(a.onMessage)
	a.server.OnInfo(a.onInfo)
	a.server.OnNotify(a.onNotify)
	a.server.OnRefer(a.onRefer)
}

// reply отвечает на запрос из горутины обработчика
func (a *Agent) reply(req *sip.Request, tx sip.ServerTransaction, status int, reason string) {
	if reason == "" {
		reason = reasonPhrase(status)
	}
	res := sip.NewResponseFromRequest(req, status, reason, nil)
	if status == sip.StatusOK && req.Method == sip.OPTIONS {
		res.AppendHeader(sip.NewHeader("Allow", allowMethods))
	}
	if err := tx.Respond(res); err != nil {
		a.logger.Warn("ошибка отправки ответа",
			logging.String("method", req.Method.String()),
			logging.Int("status", status),
			logging.Err(err))
	}
}

func reasonPhrase(status int) string {
	switch status {
	case 200:
		return "OK"
	case 481:
		return "Call/Transaction Does Not Exist"
	case 503:
		return "Service Unavailable"
	}
	return ""
}

func callIDOf(req *sip.Request) string {
	if h := req.CallID(); h != nil {
		return h.Value()
	}
	return ""
}

// onInvite входящий INVITE. Обработчик ждет ответа оператора или
// завершения транзакции (CANCEL, таймаут).
func (a *Agent) onInvite(req *sip.Request, tx sip.ServerTransaction) {
	a.logger.Debug("входящий INVITE", logging.String("call_id", callIDOf(req)))

	if toTag(req) != "" {
		a.onReInvite(req, tx)
		return
	}
	from := req.From()
	if from == nil || req.CallID() == nil {
		a.reply(req, tx, sip.StatusBadRequest, "Bad Request")
		return
	}

	op := newOperation(kindCall, from.Address.String(), stReceived)
	op.incoming = true
	op.callID = callIDOf(req)
	op.localTag = sip.RandString(16)
	op.remoteURI = from.Address
	op.remoteTag = fromTag(req)
	op.remoteTarget = from.Address
	if c := req.Contact(); c != nil {
		op.remoteTarget = c.Address
	}
	if to := req.To(); to != nil {
		op.localURI = to.Address
	}
	op.routes = recordRoutes(req, false)
	op.remoteSDP = string(req.Body())
	op.inviteReq = req
	op.serverTx = tx
	op.answered = make(chan struct{})

	accepted := await(a, false, func() bool { return a.incomingCall(op) })
	if !accepted {
		a.reply(req, tx, 486, "Busy Here")
		return
	}

	// на CANCEL sipgo сам отвечает 487, а tx.Done закрывается только по Timer I
	gone := func(*sip.Request) { a.post(func() { a.incomingGone(op) }) }
	if !tx.OnCancel(gone) {
		gone(nil)
	}

	ringing := sip.NewResponseFromRequest(req, 180, "Ringing", nil)
	setToTag(ringing, op.localTag)
	if err := tx.Respond(ringing); err != nil {
		a.logger.LogError(err, "ошибка отправки 180 Ringing")
	}

	select {
	case <-op.answered:
	case <-tx.Done():
		a.post(func() { a.incomingGone(op) })
	case <-a.ctx.Done():
	}
}

// incomingCall регистрирует входящий вызов в реакторе
func (a *Agent) incomingCall(op *operation) bool {
	if a.shutting {
		return false
	}
	if existing := a.byCallID(op.callID, func(o *operation) bool { return o.kind == kindCall }); existing != nil {
		return false
	}
	a.add(op)
	a.printf("%s: incoming call from %s\n", op.token, op.target)
	if a.cfg.ExternalSDP {
		if op.remoteSDP != "" {
			a.printf("%s: remote SDP %s\n", op.token, escapeSDP(op.remoteSDP))
		}
		a.printf("%s: answer with 'webrtc-sdp-called %s <sdp>' or reject with 'd'\n", op.token, op.token)
	}
	a.notify(engine.EventIncomingCall, op, 180, op.target)
	return true
}

// incomingGone транзакция INVITE завершилась без ответа оператора
func (a *Agent) incomingGone(op *operation) {
	if !op.live() || !op.is(stReceived) {
		return
	}
	a.printf("%s: call from %s canceled\n", op.token, op.target)
	a.drop(op)
	a.notify(engine.EventCallState, op, sip.StatusRequestTerminated, "canceled")
}

// onReInvite re-INVITE в установленном вызове: меняет удержание удаленной стороны
func (a *Agent) onReInvite(req *sip.Request, tx sip.ServerTransaction) {
	callID := callIDOf(req)
	offer := string(req.Body())

	res := await(a, (*sip.Response)(nil), func() *sip.Response {
		op := a.byCallID(callID, (*operation).established)
		if op == nil {
			return sip.NewResponseFromRequest(req, sip.StatusCallTransactionDoesNotExists, "Call/Transaction Does Not Exist", nil)
		}

		sdp := op.localSDP
		if offer != "" {
			answer, err := a.sdp.answer(offer)
			if err != nil {
				return sip.NewResponseFromRequest(req, 488, "Not Acceptable Here", nil)
			}
			sdp = answer
			if dir, err := sdpDirection(offer); err == nil {
				remoteHeld := dir == dirSendOnly || dir == dirInactive
				if remoteHeld {
					a.printf("%s: call put on hold by %s\n", op.token, op.target)
				} else {
					a.printf("%s: call resumed by %s\n", op.token, op.target)
				}
			}
			op.remoteSDP = offer
		}
		if sdp == "" {
			var err error
			if sdp, err = a.sdp.offer(dirSendRecv); err != nil {
				return sip.NewResponseFromRequest(req, 500, "Server Internal Error", nil)
			}
		}
		op.localSDP = sdp

		res := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", []byte(sdp))
		res.AppendHeader(&sip.ContactHeader{Address: a.contact})
		ct := sip.ContentTypeHeader(sdpContentType)
		res.AppendHeader(&ct)
		a.notify(engine.EventCallState, op, sip.StatusOK, "re-invite")
		return res
	})
	if res == nil {
		a.reply(req, tx, 503, "Service Unavailable")
		return
	}
	if err := tx.Respond(res); err != nil {
		a.logger.LogError(err, "ошибка ответа на re-INVITE")
	}
}

// onAck подтверждение входящего вызова
func (a *Agent) onAck(req *sip.Request, tx sip.ServerTransaction) {
	callID := callIDOf(req)
	a.post(func() {
		if op := a.byCallID(callID, (*operation).established); op != nil {
			a.logger.Debug("вызов подтвержден", logging.String("token", op.token.String()))
		}
	})
}

// onBye удаленная сторона завершила вызов
func (a *Agent) onBye(req *sip.Request, tx sip.ServerTransaction) {
	callID := callIDOf(req)
	status := await(a, 503, func() int {
		op := a.byCallID(callID, func(o *operation) bool { return o.kind == kindCall })
		if op == nil {
			return sip.StatusCallTransactionDoesNotExists
		}
		a.printf("%s: call with %s ended by remote party\n", op.token, op.target)
		a.drop(op)
		a.notify(engine.EventCallState, op, 0, "terminated")
		return sip.StatusOK
	})
	a.reply(req, tx, status, "")
}

func (a *Agent) onOptions(req *sip.Request, tx sip.ServerTransaction) {
	a.reply(req, tx, sip.StatusOK, "OK")
}

// onMessage входящее текстовое сообщение
func (a *Agent) onMessage(req *sip.Request, tx sip.ServerTransaction) {
	from := addressOf(req)
	body := string(req.Body())
	a.post(func() {
		a.printf("MESSAGE from %s: %s\n", from, body)
		a.notify(engine.EventMessage, nil, 0, body)
	})
	a.reply(req, tx, sip.StatusOK, "OK")
}

func (a *Agent) onInfo(req *sip.Request, tx sip.ServerTransaction) {
	from := addressOf(req)
	body := string(req.Body())
	callID := callIDOf(req)
	a.post(func() {
		if op := a.byCallID(callID, (*operation).established); op != nil {
			a.printf("%s: INFO from %s: %s\n", op.token, from, body)
			a.notify(engine.EventMessage, op, 0, body)
			return
		}
		a.printf("INFO from %s: %s\n", from, body)
		a.notify(engine.EventMessage, nil, 0, body)
	})
	a.reply(req, tx, sip.StatusOK, "OK")
}

// onNotify уведомления подписок и хода переадресации
func (a *Agent) onNotify(req *sip.Request, tx sip.ServerTransaction) {
	callID := callIDOf(req)
	event := headerValue(req, "Event")
	state := headerValue(req, "Subscription-State")
	body := req.Body()

	status := await(a, 503, func() int {
		return a.handleNotify(callID, event, state, body)
	})
	a.reply(req, tx, status, "")
}

func (a *Agent) handleNotify(callID, event, state string, body []byte) int {
	eventName, _, _ := strings.Cut(event, ";")
	eventName = strings.TrimSpace(eventName)
	terminated := strings.HasPrefix(strings.ToLower(strings.TrimSpace(state)), "terminated")

	if eventName == "refer" {
		op := a.byCallID(callID, func(o *operation) bool { return o.kind == kindRefer })
		if op == nil {
			return sip.StatusCallTransactionDoesNotExists
		}
		code, reason, err := parseSipfrag(body)
		if err != nil {
			a.printf("%s: transfer progress: %s\n", op.token, strings.TrimSpace(string(body)))
		} else {
			a.printf("%s: transfer progress: %d %s\n", op.token, code, reason)
		}
		a.notify(engine.EventNotify, op, code, reason)
		if code >= 200 || terminated {
			a.drop(op)
		}
		return sip.StatusOK
	}

	op := a.byCallID(callID, func(o *operation) bool {
		return (o.kind == kindSubscribe || o.kind == kindWatch) && o.event == eventName
	})
	if op == nil {
		return sip.StatusCallTransactionDoesNotExists
	}
	a.printf("%s: NOTIFY %s from %s (%s)\n", op.token, eventName, op.target, state)
	if len(body) > 0 {
		a.printf("%s\n", strings.TrimRight(string(body), "\r\n"))
	}
	a.notify(engine.EventNotify, op, 0, state)
	if terminated {
		a.drop(op)
	}
	return sip.StatusOK
}

// onRefer удаленная сторона просит позвонить на другой адрес
func (a *Agent) onRefer(req *sip.Request, tx sip.ServerTransaction) {
	referTo := aorURI(headerValue(req, "Refer-To"))
	if referTo == "" {
		a.reply(req, tx, sip.StatusBadRequest, "Missing Refer-To")
		return
	}
	from := addressOf(req)
	a.reply(req, tx, sip.StatusAccepted, "Accepted")
	a.post(func() {
		a.printf("REFER from %s to %s\n", from, referTo)
		if err := a.Invite(referTo); err != nil {
			a.printf("REFER to %s failed: %v\n", referTo, err)
		}
	})
}

func addressOf(req *sip.Request) string {
	if from := req.From(); from != nil {
		return from.Address.String()
	}
	return req.Source()
}
