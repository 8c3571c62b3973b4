package sipua

import (
	"fmt"
	"strings"

	"github.com/emiago/sipgo/sip"

	"github.com/arzzra/sofsip/pkg/engine"
)

const (
	eventPresence    = "presence"
	eventWatcherInfo = "presence.winfo"

	watcherInfoContentType = "application/watcherinfo+xml"
	presenceTupleID        = "sofsip"
)

// Subscribe подписывается на присутствие (по умолчанию на свой AOR)
func (a *Agent) Subscribe(target engine.Arg) error {
	return a.subscribe(kindSubscribe, eventPresence, pidfContentType, target)
}

// Watch подписывается на список наблюдателей своего присутствия
func (a *Agent) Watch(target engine.Arg) error {
	return a.subscribe(kindWatch, eventWatcherInfo, watcherInfoContentType, target)
}

func (a *Agent) subscribe(kind opKind, event, accept string, target engine.Arg) error {
	if a.shutting {
		return engine.ErrShuttingDown
	}
	uri, err := a.parseTarget(target.Or(a.aor.String()))
	if err != nil {
		return err
	}

	op := a.outOfDialog(kind, uri, sip.SUBSCRIBE, nil)
	op.event = event
	op.expires = a.expires
	build := op.build
	op.build = func() *sip.Request {
		req := build()
		req.AppendHeader(sip.NewHeader("Event", op.event))
		req.AppendHeader(sip.NewHeader("Accept", accept))
		expires := sip.ExpiresHeader(op.expires)
		req.AppendHeader(&expires)
		return req
	}
	op.onSuccess = func(res *sip.Response) { a.subscribed(op, res) }

	a.add(op)
	a.printf("%s: subscribing to %s of %s\n", op.token, event, op.target)
	a.transact(op, op.build(), nil)
	return nil
}

func (a *Agent) subscribed(op *operation, res *sip.Response) {
	if op.expires == 0 {
		a.printf("%s: unsubscribed from %s of %s\n", op.token, op.event, op.target)
		a.notify(engine.EventNotify, op, res.StatusCode, "unsubscribed")
		a.drop(op)
		return
	}
	if op.remoteTag == "" {
		op.remoteTag = toTag(res)
		if c := res.Contact(); c != nil {
			op.remoteTarget = c.Address
		}
		op.routes = recordRoutes(res, true)
	}
	a.printf("%s: subscription to %s of %s accepted (%d %s)\n", op.token, op.event, op.target, res.StatusCode, res.Reason)
	a.notify(engine.EventNotify, op, res.StatusCode, res.Reason)
	a.scheduleRefresh(op, op.expires)
}

// Unsubscribe отменяет подписки на адрес или все подписки
func (a *Agent) Unsubscribe(target engine.Arg) error {
	isSubscription := func(op *operation) bool {
		return (op.kind == kindSubscribe || op.kind == kindWatch) && !op.is(stTerminating)
	}

	var subs []*operation
	if target.Present && target.Value != "" {
		if op := a.find(target, isSubscription); op != nil {
			subs = append(subs, op)
		}
	} else {
		for _, op := range a.active {
			if op.live() && isSubscription(op) {
				subs = append(subs, op)
			}
		}
	}
	if len(subs) == 0 {
		return fmt.Errorf("%w: нет подписки", engine.ErrUnknownOperation)
	}

	for _, op := range subs {
		op.stopTimer()
		op.expires = 0
		_ = op.fire(evEnd)
		a.printf("%s: unsubscribing from %s of %s\n", op.token, op.event, op.target)
		a.transact(op, op.build(), nil)
	}
	return nil
}

// Publish публикует присутствие. Заметка "-" публикует закрытый статус.
func (a *Agent) Publish(note engine.Arg) error {
	if a.shutting {
		return engine.ErrShuttingDown
	}
	body, err := buildPIDF(a.aor.String(), presenceTupleID, strings.TrimSpace(note.Value))
	if err != nil {
		return err
	}

	op := a.findKind(kindPublish)
	if op == nil || op.is(stTerminating) {
		op = a.outOfDialog(kindPublish, a.aor, sip.PUBLISH, nil)
		build := op.build
		op.build = func() *sip.Request {
			req := build()
			req.AppendHeader(sip.NewHeader("Event", eventPresence))
			expires := sip.ExpiresHeader(op.expires)
			req.AppendHeader(&expires)
			if op.etag != "" {
				req.AppendHeader(sip.NewHeader("SIP-If-Match", op.etag))
			}
			if op.expires > 0 && op.body != nil {
				setBody(req, pidfContentType, op.body)
			}
			return req
		}
		op.onSuccess = func(res *sip.Response) { a.published(op, res) }
		a.add(op)
	}
	op.stopTimer()
	op.expires = a.expires
	op.body = body

	a.printf("%s: publishing presence of %s\n", op.token, op.target)
	a.transact(op, op.build(), nil)
	return nil
}

func (a *Agent) published(op *operation, res *sip.Response) {
	if op.expires == 0 {
		a.printf("%s: presence of %s unpublished\n", op.token, op.target)
		a.notify(engine.EventResponse, op, res.StatusCode, "unpublished")
		a.drop(op)
		return
	}
	if etag := headerValue(res, "SIP-ETag"); etag != "" {
		op.etag = etag
	}
	a.printf("%s: presence of %s published (%d %s)\n", op.token, op.target, res.StatusCode, res.Reason)
	a.notify(engine.EventResponse, op, res.StatusCode, res.Reason)
	a.scheduleRefresh(op, op.expires)
}

// Unpublish снимает публикацию присутствия
func (a *Agent) Unpublish() error {
	op := a.findKind(kindPublish)
	if op == nil || op.is(stTerminating) {
		return fmt.Errorf("%w: нет публикации", engine.ErrUnknownOperation)
	}
	op.stopTimer()
	op.expires = 0
	_ = op.fire(evEnd)
	a.printf("%s: unpublishing presence of %s\n", op.token, op.target)
	a.transact(op, op.build(), nil)
	return nil
}
