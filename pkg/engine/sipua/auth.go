package sipua

import (
	"context"
	"errors"
	"fmt"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/icholy/digest"

	"github.com/arzzra/sofsip/pkg/engine"
	"github.com/arzzra/sofsip/pkg/logging"
)

var errNoMatchingChallenge = errors.New("нет запроса аутентификации для этих данных")

// transact отправляет запрос и передает финальный ответ в реактор.
// С auth запрос повторяется с digest ответом на op.challenge.
func (a *Agent) transact(op *operation, req *sip.Request, auth *sipgo.DigestAuth) {
	challenge := op.challenge
	kind := op.kind
	go func() {
		ctx := a.ctx
		if kind != kindCall {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(a.ctx, requestTimeout)
			defer cancel()
		}

		var (
			res *sip.Response
			err error
		)
		if auth != nil {
			res, err = a.client.DoDigestAuth(ctx, req, challenge, *auth)
		} else {
			res, err = a.client.Do(ctx, req)
		}
		a.post(func() { a.complete(op, res, err, auth != nil) })
	}()
}

// complete обрабатывает финальный ответ операции
func (a *Agent) complete(op *operation, res *sip.Response, err error, authenticated bool) {
	if !op.live() {
		return
	}
	if err != nil {
		a.printf("%s: %s %s failed: %v\n", op.token, op.kind, op.target, err)
		a.notify(engine.EventResponse, op, 0, err.Error())
		a.drop(op)
		return
	}
	if cseq := res.CSeq(); cseq != nil && cseq.SeqNo > op.cseq && op.parent == nil {
		op.cseq = cseq.SeqNo
	}

	switch {
	case isChallenge(res.StatusCode):
		if authenticated {
			a.printf("%s: authentication failed for %s (%d %s)\n", op.token, op.target, res.StatusCode, res.Reason)
			a.notify(engine.EventResponse, op, res.StatusCode, res.Reason)
			a.drop(op)
			return
		}
		op.challenge = res
		if op.auth != nil && op.build != nil {
			// повтор с уже введенными данными (обновление регистрации)
			a.transact(op, op.build(), op.auth)
			return
		}
		_ = op.fire(evChallenge)
		a.requestAuth(op, res)

	case res.StatusCode < 300:
		op.challenge = nil
		_ = op.fire(evAccept)
		if op.onSuccess != nil {
			op.onSuccess(res)
		}

	default:
		a.printf("%s: %s %s: %d %s\n", op.token, op.kind, op.target, res.StatusCode, res.Reason)
		a.notify(engine.EventResponse, op, res.StatusCode, res.Reason)
		a.drop(op)
	}
}

func isChallenge(status int) bool {
	return status == 401 || status == 407
}

// requestAuth сообщает консоли о запросе аутентификации
func (a *Agent) requestAuth(op *operation, res *sip.Response) {
	item := challengeItem(res)
	a.printf("%s: %s %s requires authentication (%d %s, realm %q)\n",
		op.token, op.kind, op.target, res.StatusCode, res.Reason, item.Realm)
	a.logger.Info("запрос аутентификации",
		logging.String("token", op.token.String()),
		logging.String("realm", item.Realm))
	if a.cb.OnAuth != nil {
		a.cb.OnAuth([]engine.AuthItem{item})
	}
	a.notify(engine.EventResponse, op, res.StatusCode, res.Reason)
}

// challengeItem схема и realm из WWW-Authenticate или Proxy-Authenticate
func challengeItem(res *sip.Response) engine.AuthItem {
	item := engine.AuthItem{Scheme: "Digest"}
	raw := headerValue(res, "WWW-Authenticate")
	if raw == "" {
		raw = headerValue(res, "Proxy-Authenticate")
	}
	if raw == "" {
		return item
	}
	chal, err := digest.ParseChallenge(raw)
	if err != nil {
		return item
	}
	item.Realm = chal.Realm
	return item
}

// Auth повторяет запросы, ожидающие аутентификации
func (a *Agent) Auth(credentials string) error {
	creds, err := engine.ParseCredentials(credentials)
	if err != nil {
		return fmt.Errorf("%w: %v", engine.ErrMissingArgument, err)
	}

	var pending, matched []*operation
	for _, op := range a.active {
		if !op.is(stAuthenticating) || op.challenge == nil {
			continue
		}
		pending = append(pending, op)
		if creds.Matches(challengeItem(op.challenge)) {
			matched = append(matched, op)
		}
	}
	if len(pending) == 0 {
		return engine.ErrNoChallenge
	}
	if len(matched) == 0 {
		return errNoMatchingChallenge
	}

	username := creds.Username
	if username == "" {
		username = a.aor.User
	}
	for _, op := range matched {
		auth := &sipgo.DigestAuth{Username: username, Password: creds.Password}
		op.auth = auth
		_ = op.fire(evRetry)
		if op.kind == kindCall {
			// Via повторного INVITE заполняется в горутине транзакции
			op.sent = false
		}
		a.printf("%s: retrying %s %s as %s\n", op.token, op.kind, op.target, username)
		a.transact(op, op.build(), auth)
	}
	return nil
}
