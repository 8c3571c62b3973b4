package sipua

import (
	"context"
	"errors"
	"fmt"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"

	"github.com/arzzra/sofsip/pkg/engine"
	"github.com/arzzra/sofsip/pkg/logging"
)

var (
	errNotWaitingSDP  = errors.New("операция не ожидает SDP")
	errAnswerNeedsSDP = errors.New("ответ требует SDP, используйте webrtc-sdp-called")
)

// Invite начинает исходящий вызов
func (a *Agent) Invite(target string) error {
	if a.shutting {
		return engine.ErrShuttingDown
	}
	uri, err := a.parseTarget(target)
	if err != nil {
		return err
	}

	op := newOperation(kindCall, uri.String(), stCalling)
	op.callID = uuid.NewString()
	op.localURI = a.aor
	op.localTag = sip.RandString(16)
	op.remoteURI = uri
	op.remoteTarget = uri
	op.onSuccess = func(res *sip.Response) { a.callAccepted(op, res) }
	a.add(op)

	if a.cfg.ExternalSDP {
		op.waitingSDP = true
		a.printf("%s: INVITE to %s waits for SDP, use 'webrtc-sdp %s <sdp>'\n", op.token, op.target, op.token)
		return nil
	}

	offer, err := a.sdp.offer(dirSendRecv)
	if err != nil {
		a.drop(op)
		return err
	}
	a.sendInvite(op, offer)
	return nil
}

// sendInvite отправляет INVITE и передает ответы в реактор
func (a *Agent) sendInvite(op *operation, offer string) {
	op.localSDP = offer
	op.waitingSDP = false
	cseq := op.nextCSeq()
	op.build = func() *sip.Request {
		return a.buildRequest(requestSpec{
			method:      sip.INVITE,
			recipient:   op.remoteURI,
			from:        op.localURI,
			fromTag:     op.localTag,
			to:          op.remoteURI,
			callID:      op.callID,
			cseq:        cseq,
			contact:     true,
			body:        []byte(offer),
			contentType: sdpContentType,
		})
	}
	req := op.build()
	op.inviteReq = req
	a.printf("%s: calling %s\n", op.token, op.target)

	go func() {
		tx, err := a.client.TransactionRequest(a.ctx, req)
		if err != nil {
			a.post(func() { a.complete(op, nil, fmt.Errorf("ошибка отправки INVITE: %w", err), false) })
			return
		}
		a.post(func() { a.inviteSent(op) })

		for {
			select {
			case res, ok := <-tx.Responses():
				if !ok {
					return
				}
				a.post(func() { a.inviteResponse(op, res) })
				if res.StatusCode >= 200 {
					return
				}
			case <-tx.Done():
				err := tx.Err()
				if err == nil {
					err = errors.New("транзакция завершена без финального ответа")
				}
				a.post(func() { a.complete(op, nil, err, false) })
				return
			}
		}
	}()
}

func (a *Agent) inviteSent(op *operation) {
	op.sent = true
	if op.cancelRequested && op.live() {
		a.sendCancel(op)
	}
}

func (a *Agent) inviteResponse(op *operation, res *sip.Response) {
	if !op.live() {
		return
	}
	if res.StatusCode >= 200 {
		a.complete(op, res, nil, false)
		return
	}
	_ = op.fire(evProgress)
	a.printf("%s: %d %s\n", op.token, res.StatusCode, res.Reason)
	a.notify(engine.EventCallState, op, res.StatusCode, res.Reason)
}

// callAccepted 2xx на INVITE: подтверждение диалога
func (a *Agent) callAccepted(op *operation, res *sip.Response) {
	op.remoteTag = toTag(res)
	if c := res.Contact(); c != nil {
		op.remoteTarget = c.Address
	}
	op.routes = recordRoutes(res, true)
	op.remoteSDP = string(res.Body())

	if cseq := res.CSeq(); cseq != nil {
		a.sendACK(op, cseq.SeqNo)
	}

	if op.cancelRequested {
		a.printf("%s: call answered after CANCEL, hanging up\n", op.token)
		a.hangup(op)
		return
	}

	a.printf("%s: call established with %s\n", op.token, op.target)
	if a.cfg.ExternalSDP && op.remoteSDP != "" {
		a.printf("%s: remote SDP %s\n", op.token, escapeSDP(op.remoteSDP))
	}
	a.notify(engine.EventCallState, op, res.StatusCode, "established")
}

func (a *Agent) sendACK(op *operation, cseq uint32) {
	ack := a.buildACK(op, cseq)
	go func() {
		if err := a.client.WriteRequest(ack, sipgo.ClientRequestAddVia); err != nil {
			a.logger.LogError(err, "ошибка отправки ACK", logging.String("call_id", op.callID))
		}
	}()
}

// Answer отвечает на входящий вызов
func (a *Agent) Answer(status int, reason string) error {
	op := a.newest(func(op *operation) bool {
		return op.kind == kindCall && op.incoming && op.is(stReceived)
	})
	if op == nil {
		return engine.ErrNoPendingCall
	}

	if status < 200 || status >= 300 {
		a.reject(op, status, reason)
		return nil
	}
	if a.cfg.ExternalSDP {
		return fmt.Errorf("%s: %w %s <sdp>", op.token, errAnswerNeedsSDP, op.token)
	}

	var (
		answer string
		err    error
	)
	if op.remoteSDP == "" {
		answer, err = a.sdp.offer(dirSendRecv)
	} else {
		answer, err = a.sdp.answer(op.remoteSDP)
	}
	if err != nil {
		a.reject(op, 488, "Not Acceptable Here")
		return err
	}
	a.accept(op, answer)
	return nil
}

func (a *Agent) accept(op *operation, sdp string) {
	res := sip.NewResponseFromRequest(op.inviteReq, sip.StatusOK, "OK", []byte(sdp))
	setToTag(res, op.localTag)
	res.AppendHeader(&sip.ContactHeader{Address: a.contact})
	ct := sip.ContentTypeHeader(sdpContentType)
	res.AppendHeader(&ct)

	op.localSDP = sdp
	_ = op.fire(evAccept)
	a.printf("%s: answering call from %s\n", op.token, op.target)
	a.respondFinal(op, res, nil)
	a.notify(engine.EventCallState, op, sip.StatusOK, "answered")
}

func (a *Agent) reject(op *operation, status int, reason string) {
	res := sip.NewResponseFromRequest(op.inviteReq, status, reason, nil)
	setToTag(res, op.localTag)
	_ = op.fire(evEnd)
	a.printf("%s: rejecting call from %s with %d %s\n", op.token, op.target, status, reason)
	a.respondFinal(op, res, func() { a.drop(op) })
	a.notify(engine.EventCallState, op, status, reason)
}

// respondFinal отправляет финальный ответ на входящий INVITE
func (a *Agent) respondFinal(op *operation, res *sip.Response, done func()) {
	tx, answered := op.serverTx, op.answered
	go func() {
		err := tx.Respond(res)
		close(answered)
		a.post(func() { a.finalSent(op, res, err, done) })
	}()
}

// finalSent результат отправки финального ответа. Если ответ не ушел
// (транзакция уже отменена), диалога нет и операция удаляется.
func (a *Agent) finalSent(op *operation, res *sip.Response, err error, done func()) {
	if err != nil {
		a.printf("%s: failed to send %d: %v\n", op.token, res.StatusCode, err)
		if op.live() {
			a.drop(op)
			a.notify(engine.EventCallState, op, 0, "terminated")
		}
		return
	}
	if done != nil {
		done()
	}
}

// Bye завершает установленный вызов
func (a *Agent) Bye() error {
	op := a.newest((*operation).established)
	if op == nil {
		return engine.ErrNoActiveCall
	}
	a.printf("%s: hanging up %s\n", op.token, op.target)
	a.hangup(op)
	return nil
}

func (a *Agent) hangup(op *operation) {
	req := a.dialogRequest(op, sip.BYE)
	_ = op.fire(evEnd)
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, requestTimeout)
		defer cancel()
		res, err := a.client.Do(ctx, req)
		a.post(func() {
			switch {
			case err != nil:
				a.printf("%s: BYE failed: %v\n", op.token, err)
			default:
				a.printf("%s: call ended (%d %s)\n", op.token, res.StatusCode, res.Reason)
			}
			a.drop(op)
			a.notify(engine.EventCallState, op, 0, "terminated")
		})
	}()
}

// Cancel отменяет исходящий вызов без финального ответа
func (a *Agent) Cancel() error {
	op := a.newest((*operation).pendingOutgoing)
	if op == nil {
		return engine.ErrNoPendingInvite
	}
	op.cancelRequested = true
	if op.waitingSDP {
		a.printf("%s: call to %s canceled\n", op.token, op.target)
		a.drop(op)
		return nil
	}
	if op.sent {
		a.sendCancel(op)
	}
	return nil
}

func (a *Agent) sendCancel(op *operation) {
	req := a.buildCancel(op.inviteReq)
	_ = op.fire(evEnd)
	a.printf("%s: canceling call to %s\n", op.token, op.target)
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, requestTimeout)
		defer cancel()
		if _, err := a.client.Do(ctx, req); err != nil {
			a.post(func() { a.printf("%s: CANCEL failed: %v\n", op.token, err) })
		}
	}()
}

// Hold переводит вызов на удержание или снимает с него через re-INVITE
func (a *Agent) Hold(target engine.Arg, hold bool) error {
	op := a.find(target, (*operation).established)
	if op == nil {
		return engine.ErrNoActiveCall
	}

	dir := dirSendRecv
	if hold {
		dir = dirSendOnly
	}
	var (
		sdp string
		err error
	)
	if op.localSDP == "" {
		sdp, err = a.sdp.offer(dir)
	} else {
		sdp, err = setDirection(op.localSDP, dir)
	}
	if err != nil {
		return err
	}

	req := a.dialogRequest(op, sip.INVITE)
	ct := sip.ContentTypeHeader(sdpContentType)
	req.AppendHeader(&ct)
	req.SetBody([]byte(sdp))

	go func() {
		res, err := a.client.Do(a.ctx, req)
		a.post(func() { a.reinviteDone(op, req, res, err, hold, sdp) })
	}()
	return nil
}

func (a *Agent) reinviteDone(op *operation, req *sip.Request, res *sip.Response, err error, hold bool, sdp string) {
	if !op.established() {
		return
	}
	switch {
	case err != nil:
		a.printf("%s: re-INVITE failed: %v\n", op.token, err)
		return
	case res.StatusCode >= 300:
		a.printf("%s: re-INVITE rejected: %d %s\n", op.token, res.StatusCode, res.Reason)
		return
	}

	a.sendACK(op, req.CSeq().SeqNo)
	op.held = hold
	op.localSDP = sdp
	if hold {
		a.printf("%s: call on hold\n", op.token)
	} else {
		a.printf("%s: call resumed\n", op.token)
	}
	a.notify(engine.EventCallState, op, res.StatusCode, "held")
}

// Info отправляет INFO в вызове или вне диалога
func (a *Agent) Info(target, body string) error {
	call := a.find(argOf(target), (*operation).established)
	if call != nil {
		op := newOperation(kindInfo, call.target, stCalling)
		op.callID = call.callID
		op.parent = call
		op.build = func() *sip.Request {
			req := a.dialogRequest(call, sip.INFO)
			setBody(req, textPlain, []byte(body))
			return req
		}
		a.startSimple(op, "INFO")
		return nil
	}
	if target == "" {
		return engine.ErrNoActiveCall
	}

	uri, err := a.parseTarget(target)
	if err != nil {
		return err
	}
	op := a.outOfDialog(kindInfo, uri, sip.INFO, func(req *sip.Request) {
		setBody(req, textPlain, []byte(body))
	})
	a.startSimple(op, "INFO")
	return nil
}

// Refer просит удаленную сторону вызова перейти на другой адрес
func (a *Agent) Refer(target, referTo string) error {
	if referTo == "" {
		return fmt.Errorf("%w: refer_to", engine.ErrMissingArgument)
	}
	call := a.find(argOf(target), (*operation).established)
	if call == nil {
		return engine.ErrNoActiveCall
	}
	to, err := a.parseTarget(referTo)
	if err != nil {
		return err
	}

	op := newOperation(kindRefer, to.String(), stCalling)
	op.callID = call.callID
	op.parent = call
	op.event = "refer"
	op.build = func() *sip.Request {
		req := a.dialogRequest(call, sip.REFER)
		req.AppendHeader(&sip.ReferToHeader{Address: to})
		return req
	}
	op.onSuccess = func(res *sip.Response) {
		a.printf("%s: REFER accepted (%d %s), transfer to %s in progress\n", op.token, res.StatusCode, res.Reason, op.target)
		a.notify(engine.EventResponse, op, res.StatusCode, res.Reason)
	}
	a.add(op)
	a.transact(op, op.build(), nil)
	return nil
}

// WebRTCSDP передает SDP оператора для исходящего вызова
func (a *Agent) WebRTCSDP(o engine.Operation, sdp string) error {
	op, ok := o.(*operation)
	if !ok || op.kind != kindCall || op.incoming || !op.waitingSDP || !op.live() {
		return errNotWaitingSDP
	}
	raw := unescapeSDP(sdp)
	if err := validateSDP(raw); err != nil {
		return err
	}
	a.sendInvite(op, raw)
	return nil
}

// WebRTCSDPCalled отвечает на входящий вызов с SDP оператора
func (a *Agent) WebRTCSDPCalled(o engine.Operation, sdp string) error {
	op, ok := o.(*operation)
	if !ok || op.kind != kindCall || !op.incoming || !op.is(stReceived) {
		return errNotWaitingSDP
	}
	raw := unescapeSDP(sdp)
	if err := validateSDP(raw); err != nil {
		return err
	}
	a.accept(op, raw)
	return nil
}

func argOf(s string) engine.Arg {
	if s == "" {
		return engine.None
	}
	return engine.Some(s)
}

func setBody(req *sip.Request, contentType string, body []byte) {
	ct := sip.ContentTypeHeader(contentType)
	req.AppendHeader(&ct)
	req.SetBody(body)
}
