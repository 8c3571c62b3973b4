package sipua

import (
	"context"
	"errors"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/looplab/fsm"

	"github.com/arzzra/sofsip/pkg/engine"
)

type opKind string

const (
	kindCall      opKind = "call"
	kindRegister  opKind = "register"
	kindSubscribe opKind = "subscribe"
	kindWatch     opKind = "watch"
	kindPublish   opKind = "publish"
	kindMessage   opKind = "message"
	kindOptions   opKind = "options"
	kindRefer     opKind = "refer"
	kindInfo      opKind = "info"
)

// Состояния операции
const (
	stCalling        = "calling"
	stReceived       = "received"
	stProceeding     = "proceeding"
	stAuthenticating = "authenticating"
	stActive         = "active"
	stTerminating    = "terminating"
	stTerminated     = "terminated"
)

// События операции
const (
	evProgress  = "progress"
	evChallenge = "challenge"
	evRetry     = "retry"
	evAccept    = "accept"
	evEnd       = "end"
	evTerminate = "terminate"
)

func newOperationFSM(initial string) *fsm.FSM {
	return fsm.NewFSM(
		initial,
		fsm.Events{
			{Name: evProgress, Src: []string{stCalling}, Dst: stProceeding},
			{Name: evChallenge, Src: []string{stCalling, stProceeding, stActive, stTerminating}, Dst: stAuthenticating},
			{Name: evRetry, Src: []string{stAuthenticating}, Dst: stCalling},
			{Name: evAccept, Src: []string{stCalling, stProceeding, stReceived, stActive}, Dst: stActive},
			{Name: evEnd, Src: []string{stCalling, stProceeding, stReceived, stActive, stAuthenticating}, Dst: stTerminating},
			{Name: evTerminate, Src: []string{stCalling, stProceeding, stReceived, stActive, stAuthenticating, stTerminating}, Dst: stTerminated},
		},
		fsm.Callbacks{},
	)
}

// operation состояние одной операции движка.
// Поля меняются только в горутине реактора.
type operation struct {
	kind   opKind
	target string
	token  engine.Token
	fsm    *fsm.FSM

	// диалог
	callID       string
	localURI     sip.Uri
	localTag     string
	remoteURI    sip.Uri
	remoteTag    string
	remoteTarget sip.Uri
	routes       []sip.Uri
	cseq         uint32
	incoming     bool

	// исходящий INVITE
	inviteReq       *sip.Request
	sent            bool
	cancelRequested bool
	waitingSDP      bool

	// входящий INVITE
	serverTx sip.ServerTransaction
	answered chan struct{}

	localSDP  string
	remoteSDP string
	held      bool

	// build собирает запрос заново (повтор с аутентификацией, обновление)
	build     func() *sip.Request
	challenge *sip.Response
	auth      *sipgo.DigestAuth
	onSuccess func(res *sip.Response)

	// body тело повторяемого запроса (PIDF)
	body    []byte
	event   string
	etag    string
	expires int
	timer   *time.Timer
	parent  *operation
}

func newOperation(kind opKind, target string, initial string) *operation {
	return &operation{
		kind:   kind,
		target: target,
		fsm:    newOperationFSM(initial),
	}
}

func (op *operation) Kind() string   { return string(op.kind) }
func (op *operation) Target() string { return op.target }
func (op *operation) State() string  { return op.fsm.Current() }

func (op *operation) is(state string) bool { return op.fsm.Is(state) }

// fire выполняет переход, повторный переход в то же состояние не ошибка
func (op *operation) fire(event string) error {
	err := op.fsm.Event(context.Background(), event)
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}
	return err
}

// live операция еще не завершена
func (op *operation) live() bool {
	return !op.is(stTerminated)
}

// established вызов с подтвержденным диалогом
func (op *operation) established() bool {
	return op.kind == kindCall && op.is(stActive)
}

// pendingOutgoing исходящий вызов без финального ответа
func (op *operation) pendingOutgoing() bool {
	return op.kind == kindCall && !op.incoming && (op.is(stCalling) || op.is(stProceeding))
}

func (op *operation) stopTimer() {
	if op.timer != nil {
		op.timer.Stop()
		op.timer = nil
	}
}

func (op *operation) nextCSeq() uint32 {
	op.cseq++
	return op.cseq
}
