// Package sipua реализует сигнальный движок консоли поверх sipgo.
//
// Методы engine.Engine и все изменения состояния операций выполняются
// в горутине реактора. Сетевые транзакции идут в отдельных горутинах,
// их результаты возвращаются через engine.Poster.
package sipua

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"

	"github.com/arzzra/sofsip/pkg/config"
	"github.com/arzzra/sofsip/pkg/engine"
	"github.com/arzzra/sofsip/pkg/logging"
)

const (
	// requestTimeout ограничение транзакции вне вызова (таймер F)
	requestTimeout = 32 * time.Second
	// shutdownTimeout ожидание BYE/отмены регистрации при завершении
	shutdownTimeout = 5 * time.Second
	listenTimeout   = 5 * time.Second

	defaultUser    = "sofsip"
	defaultSIPPort = 5060
)

// Agent движок engine.Engine на sipgo
type Agent struct {
	cfg    config.Config
	out    io.Writer
	poster engine.Poster
	ops    *engine.Registry[engine.Operation]
	logger logging.Logger
	cb     engine.Callbacks

	ua     *sipgo.UserAgent
	client *sipgo.Client
	server *sipgo.Server

	ctx    context.Context
	cancel context.CancelFunc

	aor         sip.Uri
	contact     sip.Uri
	proxy       *sip.Uri
	displayName string
	userAgent   string
	expires     int
	debug       bool
	sdp         *sdpBuilder

	// active операции в порядке создания
	active   []*operation
	shutting bool

	closeOnce sync.Once
}

var _ engine.Engine = (*Agent)(nil)

// New создает агента и запускает прием SIP на cfg.Listen
func New(cfg config.Config, deps engine.Deps) (engine.Engine, error) {
	a, err := newAgent(cfg, deps)
	if err != nil {
		return nil, err
	}
	if err := a.start(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// newAgent готовит состояние без сетевой части
func newAgent(cfg config.Config, deps engine.Deps) (*Agent, error) {
	if deps.Poster == nil {
		return nil, errors.New("poster не задан")
	}
	a := &Agent{
		cfg:       cfg,
		out:       deps.Out,
		poster:    deps.Poster,
		ops:       deps.Ops,
		logger:    deps.Logger,
		userAgent: cfg.UserAgent,
		expires:   cfg.Expires,
		debug:     cfg.Debug,
	}
	if a.out == nil {
		a.out = io.Discard
	}
	if a.ops == nil {
		a.ops = engine.NewRegistry[engine.Operation]()
	}
	if a.logger == nil {
		a.logger = logging.Default()
	}
	a.logger = a.logger.WithComponent("sipua")
	if a.userAgent == "" {
		a.userAgent = config.DefaultUserAgent
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	host, port, err := listenHostPort(cfg.Listen)
	if err != nil {
		return nil, err
	}

	aor := aorURI(cfg.AOR)
	if aor == "" {
		aor = fmt.Sprintf("sip:%s@%s", defaultUser, host)
	}
	if !hasScheme(aor) {
		aor = "sip:" + aor
	}
	if err := sip.ParseUri(aor, &a.aor); err != nil {
		return nil, fmt.Errorf("некорректный address of record %q: %w", cfg.AOR, err)
	}
	if a.aor.User == "" {
		a.aor.User = defaultUser
	}
	a.displayName = displayNameOf(cfg.AOR)

	contact := fmt.Sprintf("sip:%s@%s", a.aor.User, net.JoinHostPort(host, strconv.Itoa(port)))
	if t := strings.ToLower(cfg.Transport); t != "" && t != "udp" {
		contact += ";transport=" + t
	}
	if err := sip.ParseUri(contact, &a.contact); err != nil {
		return nil, fmt.Errorf("некорректный contact %q: %w", contact, err)
	}

	if cfg.Proxy != "" {
		raw := cfg.Proxy
		if !hasScheme(raw) {
			raw = "sip:" + raw
		}
		if !strings.Contains(raw, ";lr") {
			raw += ";lr"
		}
		var proxy sip.Uri
		if err := sip.ParseUri(raw, &proxy); err != nil {
			return nil, fmt.Errorf("некорректный proxy %q: %w", cfg.Proxy, err)
		}
		a.proxy = &proxy
	}

	a.sdp = newSDPBuilder(host)
	return a, nil
}

func (a *Agent) start() error {
	sip.SIPDebug = a.debug

	ua, err := sipgo.NewUA(
		sipgo.WithUserAgent(a.userAgent),
		sipgo.WithUserAgentHostname(a.contact.Host),
	)
	if err != nil {
		return fmt.Errorf("ошибка создания User Agent: %w", err)
	}
	a.ua = ua

	client, err := sipgo.NewClient(ua, sipgo.WithClientHostname(a.contact.Host))
	if err != nil {
		return fmt.Errorf("ошибка создания клиента: %w", err)
	}
	a.client = client

	server, err := sipgo.NewServer(ua)
	if err != nil {
		return fmt.Errorf("ошибка создания сервера: %w", err)
	}
	a.server = server
	a.registerHandlers()

	network := strings.ToLower(a.cfg.Transport)
	var tlsConf *tls.Config
	if network == "tls" || network == "wss" {
		tlsConf, err = loadTLS(a.cfg.CertDir)
		if err != nil {
			return err
		}
	}

	a.logger.Info("запуск SIP транспорта",
		logging.String("transport", network),
		logging.String("listen", a.cfg.Listen),
		logging.String("contact", a.contact.String()))

	ready := make(chan struct{}, 1)
	listenCtx := context.WithValue(a.ctx, sipgo.ListenReadyCtxKey, sipgo.ListenReadyCtxValue(ready))
	started := make(chan struct{})
	failed := make(chan error, 1)

	go func() {
		var err error
		if tlsConf != nil {
			err = a.server.ListenAndServeTLS(listenCtx, network, a.cfg.Listen, tlsConf)
		} else {
			err = a.server.ListenAndServe(listenCtx, network, a.cfg.Listen)
		}
		if a.ctx.Err() != nil {
			return
		}
		select {
		case <-started:
			a.logger.LogError(err, "SIP транспорт остановлен")
			a.post(func() {
				a.printf("Transport %s on %s failed: %v\n", network, a.cfg.Listen, err)
			})
		default:
			failed <- err
		}
	}()

	select {
	case <-ready:
		close(started)
		return nil
	case err := <-failed:
		return fmt.Errorf("ошибка запуска SIP транспорта %s на %s: %w", network, a.cfg.Listen, err)
	case <-time.After(listenTimeout):
		close(started)
		return fmt.Errorf("SIP транспорт %s на %s не запустился за %s", network, a.cfg.Listen, listenTimeout)
	}
}

// loadTLS читает cert.pem и key.pem из каталога сертификатов
func loadTLS(dir string) (*tls.Config, error) {
	if dir == "" {
		return nil, errors.New("для TLS транспорта нужен certdir")
	}
	cert, err := tls.LoadX509KeyPair(filepath.Join(dir, "cert.pem"), filepath.Join(dir, "key.pem"))
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки сертификата из %s: %w", dir, err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
}

// SetCallbacks задает обратные вызовы консоли
func (a *Agent) SetCallbacks(cb engine.Callbacks) { a.cb = cb }

// Shutdown завершает вызовы, снимает регистрацию и публикацию,
// затем вызывает OnExit
func (a *Agent) Shutdown() error {
	if a.shutting {
		return engine.ErrShuttingDown
	}
	a.shutting = true

	var sends []func(ctx context.Context)
	for _, op := range a.active {
		op.stopTimer()
		if send := a.shutdownRequest(op); send != nil {
			sends = append(sends, send)
		}
	}
	a.logger.Info("завершение работы движка", logging.Int("requests", len(sends)))

	if len(sends) == 0 {
		a.post(a.finishShutdown)
		return nil
	}

	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, shutdownTimeout)
		defer cancel()
		var wg sync.WaitGroup
		for _, send := range sends {
			wg.Add(1)
			go func() {
				defer wg.Done()
				send(ctx)
			}()
		}
		wg.Wait()
		a.post(a.finishShutdown)
	}()
	return nil
}

// shutdownRequest запрос, завершающий операцию на удаленной стороне
func (a *Agent) shutdownRequest(op *operation) func(ctx context.Context) {
	var req *sip.Request
	switch {
	case op.established():
		req = a.dialogRequest(op, sip.BYE)
	case op.kind == kindCall && op.incoming && op.is(stReceived):
		res := sip.NewResponseFromRequest(op.inviteReq, 480, "Temporarily Unavailable", nil)
		setToTag(res, op.localTag)
		tx, answered := op.serverTx, op.answered
		return func(context.Context) {
			if err := tx.Respond(res); err != nil {
				a.logger.LogError(err, "ошибка отклонения вызова при завершении")
			}
			close(answered)
		}
	case op.pendingOutgoing() && op.sent:
		req = a.buildCancel(op.inviteReq)
	case op.is(stActive) && (op.kind == kindRegister || op.kind == kindSubscribe || op.kind == kindWatch || op.kind == kindPublish):
		op.expires = 0
		req = op.build()
	default:
		return nil
	}

	method := req.Method.String()
	return func(ctx context.Context) {
		if _, err := a.client.Do(ctx, req); err != nil {
			a.logger.LogError(err, "ошибка запроса при завершении", logging.String("method", method))
		}
	}
}

func (a *Agent) finishShutdown() {
	for _, op := range append([]*operation(nil), a.active...) {
		a.drop(op)
	}
	a.logger.Info("движок остановлен")
	if a.cb.OnExit != nil {
		a.cb.OnExit()
	}
}

// Close немедленно освобождает транспорт
func (a *Agent) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.cancel()
		for _, op := range a.active {
			op.stopTimer()
		}
		if a.client != nil {
			err = errors.Join(err, a.client.Close())
		}
		if a.server != nil {
			err = errors.Join(err, a.server.Close())
		}
		if a.ua != nil {
			err = errors.Join(err, a.ua.Close())
		}
	})
	return err
}

// post передает функцию в горутину реактора
func (a *Agent) post(fn func()) {
	if err := a.poster.Post(fn); err != nil {
		a.logger.Debug("реактор недоступен, результат отброшен", logging.Err(err))
	}
}

// await выполняет fn в горутине реактора и ждет результат.
// Используется обработчиками входящих запросов.
func await[T any](a *Agent, fallback T, fn func() T) T {
	ch := make(chan T, 1)
	if err := a.poster.Post(func() { ch <- fn() }); err != nil {
		return fallback
	}
	select {
	case v := <-ch:
		return v
	case <-a.ctx.Done():
		return fallback
	}
}

func (a *Agent) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *Agent) notify(kind engine.EventKind, op *operation, status int, text string) {
	if a.cb.OnEvent == nil {
		return
	}
	ev := engine.Event{Kind: kind, Status: status, Text: text}
	if op != nil {
		ev.Op = op.token
	}
	a.cb.OnEvent(ev)
}

// add регистрирует операцию и выдает ей токен
func (a *Agent) add(op *operation) {
	op.token = a.ops.Add(op)
	a.active = append(a.active, op)
	a.logger.Debug("операция создана",
		logging.String("token", op.token.String()),
		logging.String("kind", op.Kind()),
		logging.String("target", op.target))
}

// drop завершает операцию и удаляет ее из реестра
func (a *Agent) drop(op *operation) {
	op.stopTimer()
	_ = op.fire(evTerminate)
	a.ops.Remove(op.token)
	for i, o := range a.active {
		if o == op {
			a.active = append(a.active[:i:i], a.active[i+1:]...)
			break
		}
	}
}

// newest последняя живая операция, удовлетворяющая pred
func (a *Agent) newest(pred func(op *operation) bool) *operation {
	for i := len(a.active) - 1; i >= 0; i-- {
		if op := a.active[i]; op.live() && pred(op) {
			return op
		}
	}
	return nil
}

// find ищет операцию по токену или адресу. Без аргумента берется последняя.
func (a *Agent) find(target engine.Arg, pred func(op *operation) bool) *operation {
	if !target.Present || strings.TrimSpace(target.Value) == "" {
		return a.newest(pred)
	}
	ref := strings.TrimSpace(target.Value)
	if tok, err := engine.ParseToken(ref); err == nil {
		return a.newest(func(op *operation) bool { return op.token == tok && pred(op) })
	}
	return a.newest(func(op *operation) bool {
		return pred(op) && (op.target == ref || strings.Contains(op.target, ref))
	})
}

func (a *Agent) findKind(kind opKind) *operation {
	return a.newest(func(op *operation) bool { return op.kind == kind })
}

func (a *Agent) byCallID(callID string, pred func(op *operation) bool) *operation {
	return a.newest(func(op *operation) bool { return op.callID == callID && pred(op) })
}

func listenHostPort(listen string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		return "", 0, fmt.Errorf("некорректный адрес listen %q: %w", listen, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("некорректный порт в listen %q: %w", listen, err)
	}
	if port == 0 {
		port = defaultSIPPort
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = localIP()
	}
	return host, port, nil
}

// localIP первый не loopback IPv4 адрес хоста
func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				return ip4.String()
			}
		}
	}
	return "127.0.0.1"
}

func hasScheme(s string) bool {
	l := strings.ToLower(s)
	return strings.HasPrefix(l, "sip:") || strings.HasPrefix(l, "sips:") || strings.HasPrefix(l, "tel:")
}

// aorURI адрес без отображаемого имени
func aorURI(aor string) string {
	aor = strings.TrimSpace(aor)
	start := strings.Index(aor, "<")
	if start < 0 {
		return aor
	}
	end := strings.Index(aor[start:], ">")
	if end < 0 {
		return aor
	}
	return aor[start+1 : start+end]
}

// displayNameOf имя из записи вида "Alice <sip:alice@example.com>"
func displayNameOf(aor string) string {
	name, _, ok := strings.Cut(aor, "<")
	if !ok {
		return ""
	}
	return strings.Trim(strings.TrimSpace(name), `"`)
}
