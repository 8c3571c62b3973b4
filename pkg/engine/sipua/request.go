package sipua

import (
	"fmt"
	"strings"

	"github.com/emiago/sipgo/sip"

	"github.com/arzzra/sofsip/pkg/engine"
)

const (
	maxForwards    = "70"
	sdpContentType = "application/sdp"
	textPlain      = "text/plain"
)

// requestSpec параметры запроса
type requestSpec struct {
	method    sip.RequestMethod
	recipient sip.Uri
	from      sip.Uri
	fromTag   string
	to        sip.Uri
	toTag     string
	callID    string
	cseq      uint32
	routes    []sip.Uri
	contact   bool
	expires   *int

	body        []byte
	contentType string
}

// buildRequest собирает запрос с обязательными заголовками
func (a *Agent) buildRequest(s requestSpec) *sip.Request {
	req := sip.NewRequest(s.method, s.recipient)

	req.AppendHeader(&sip.FromHeader{
		DisplayName: a.displayName,
		Address:     s.from,
		Params:      tagParams(s.fromTag),
	})
	req.AppendHeader(&sip.ToHeader{
		Address: s.to,
		Params:  tagParams(s.toTag),
	})

	callID := sip.CallIDHeader(s.callID)
	req.AppendHeader(&callID)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: s.cseq, MethodName: s.method})
	req.AppendHeader(sip.NewHeader("Max-Forwards", maxForwards))
	req.AppendHeader(sip.NewHeader("User-Agent", a.userAgent))

	if s.contact {
		req.AppendHeader(&sip.ContactHeader{Address: a.contact})
	}

	routes := s.routes
	if len(routes) == 0 && a.proxy != nil {
		routes = []sip.Uri{*a.proxy}
	}
	for _, route := range routes {
		req.AppendHeader(&sip.RouteHeader{Address: route})
	}

	if s.expires != nil {
		expires := sip.ExpiresHeader(*s.expires)
		req.AppendHeader(&expires)
	}

	if s.body != nil {
		ct := sip.ContentTypeHeader(s.contentType)
		req.AppendHeader(&ct)
		req.SetBody(s.body)
	}
	return req
}

// dialogRequest запрос внутри диалога вызова
func (a *Agent) dialogRequest(op *operation, method sip.RequestMethod) *sip.Request {
	return a.buildRequest(requestSpec{
		method:    method,
		recipient: op.remoteTarget,
		from:      op.localURI,
		fromTag:   op.localTag,
		to:        op.remoteURI,
		toTag:     op.remoteTag,
		callID:    op.callID,
		cseq:      op.nextCSeq(),
		routes:    op.routes,
		contact:   true,
	})
}

// buildACK ACK на 2xx. CSeq совпадает с номером INVITE.
func (a *Agent) buildACK(op *operation, cseq uint32) *sip.Request {
	return a.buildRequest(requestSpec{
		method:    sip.ACK,
		recipient: op.remoteTarget,
		from:      op.localURI,
		fromTag:   op.localTag,
		to:        op.remoteURI,
		toTag:     op.remoteTag,
		callID:    op.callID,
		cseq:      cseq,
		routes:    op.routes,
	})
}

// buildCancel CANCEL для отправленного INVITE
func (a *Agent) buildCancel(invite *sip.Request) *sip.Request {
	cancelReq := sip.NewRequest(sip.CANCEL, invite.Recipient)
	cancelReq.SipVersion = invite.SipVersion

	if via := invite.Via(); via != nil {
		cancelReq.AppendHeader(via.Clone())
	}
	sip.CopyHeaders("Route", invite, cancelReq)

	maxFwd := sip.MaxForwardsHeader(70)
	cancelReq.AppendHeader(&maxFwd)

	if h := invite.From(); h != nil {
		cancelReq.AppendHeader(sip.HeaderClone(h))
	}
	if h := invite.To(); h != nil {
		cancelReq.AppendHeader(sip.HeaderClone(h))
	}
	if h := invite.CallID(); h != nil {
		cancelReq.AppendHeader(sip.HeaderClone(h))
	}
	if h := invite.CSeq(); h != nil {
		cseq := sip.HeaderClone(h).(*sip.CSeqHeader)
		cseq.MethodName = sip.CANCEL
		cancelReq.AppendHeader(cseq)
	}
	return cancelReq
}

// parseTarget разбирает адрес из команды. Имя без домена дополняется доменом AOR.
func (a *Agent) parseTarget(target string) (sip.Uri, error) {
	raw := strings.TrimSpace(target)
	if raw == "" {
		return sip.Uri{}, engine.ErrMissingArgument
	}
	raw = aorURI(raw)
	if !hasScheme(raw) {
		if !strings.Contains(raw, "@") {
			raw += "@" + hostPort(a.aor)
		}
		raw = "sip:" + raw
	}

	var uri sip.Uri
	if err := sip.ParseUri(raw, &uri); err != nil {
		return sip.Uri{}, fmt.Errorf("некорректный SIP адрес %q: %w", target, err)
	}
	if uri.Host == "" {
		return sip.Uri{}, fmt.Errorf("в адресе %q нет домена", target)
	}
	return uri, nil
}

func hostPort(uri sip.Uri) string {
	if uri.Port > 0 {
		return fmt.Sprintf("%s:%d", uri.Host, uri.Port)
	}
	return uri.Host
}

func tagParams(tag string) sip.HeaderParams {
	params := sip.NewParams()
	if tag != "" {
		params["tag"] = tag
	}
	return params
}

// setToTag добавляет локальный tag в To ответа
func setToTag(res *sip.Response, tag string) {
	to := res.To()
	if to == nil {
		return
	}
	if to.Params == nil {
		to.Params = sip.NewParams()
	}
	to.Params["tag"] = tag
}

func toTag(msg interface{ To() *sip.ToHeader }) string {
	if to := msg.To(); to != nil && to.Params != nil {
		return to.Params["tag"]
	}
	return ""
}

func fromTag(msg interface{ From() *sip.FromHeader }) string {
	if from := msg.From(); from != nil && from.Params != nil {
		return from.Params["tag"]
	}
	return ""
}

// recordRoutes адреса Record-Route. Для UAC порядок обращается.
func recordRoutes(msg interface{ GetHeaders(name string) []sip.Header }, reverse bool) []sip.Uri {
	var routes []sip.Uri
	for _, h := range msg.GetHeaders("Record-Route") {
		if rr, ok := h.(*sip.RecordRouteHeader); ok {
			routes = append(routes, rr.Address)
		}
	}
	if reverse {
		for i, j := 0, len(routes)-1; i < j; i, j = i+1, j-1 {
			routes[i], routes[j] = routes[j], routes[i]
		}
	}
	return routes
}

func headerValue(msg interface{ GetHeader(name string) sip.Header }, name string) string {
	if h := msg.GetHeader(name); h != nil {
		return h.Value()
	}
	return ""
}
