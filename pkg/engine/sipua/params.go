package sipua

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/emiago/sipgo/sip"
	"gopkg.in/yaml.v3"

	"github.com/arzzra/sofsip/pkg/engine"
	"github.com/arzzra/sofsip/pkg/logging"
)

// List печатает операции реестра
func (a *Agent) List() error {
	tokens := a.ops.Tokens()
	if len(tokens) == 0 {
		a.printf("No operations.\n")
		return nil
	}
	for _, tok := range tokens {
		op, ok := a.ops.Lookup(tok)
		if !ok {
			continue
		}
		a.printf("%-4s %-10s %-14s %s\n", tok, op.Kind(), op.State(), op.Target())
	}
	return nil
}

// Zap уничтожает операцию без обмена с удаленной стороной.
// Входящий вызов, ожидающий ответа, отклоняется 480.
func (a *Agent) Zap(target engine.Arg) error {
	var op *operation
	if target.Present && strings.TrimSpace(target.Value) != "" {
		_, v, err := a.ops.Resolve(target.Value)
		if err != nil {
			return err
		}
		o, ok := v.(*operation)
		if !ok {
			return fmt.Errorf("%w: %s", engine.ErrUnknownOperation, target.Value)
		}
		op = o
	} else {
		op = a.newest(func(*operation) bool { return true })
	}
	if op == nil {
		return engine.ErrUnknownOperation
	}

	if op.kind == kindCall && op.incoming && op.is(stReceived) {
		res := sip.NewResponseFromRequest(op.inviteReq, 480, "Temporarily Unavailable", nil)
		setToTag(res, op.localTag)
		a.respondFinal(op, res, nil)
	}
	a.printf("%s: %s %s destroyed\n", op.token, op.kind, op.target)
	a.drop(op)
	a.notify(engine.EventCallState, op, 0, "destroyed")
	return nil
}

type runtimeSettings struct {
	Contact     string `yaml:"contact"`
	DisplayName string `yaml:"display_name,omitempty"`
	Expires     int    `yaml:"expires"`
	UserAgent   string `yaml:"user_agent"`
	Debug       bool   `yaml:"debug"`
	Operations  int    `yaml:"operations"`
}

// PrintSettings печатает конфигурацию и текущие параметры движка
func (a *Agent) PrintSettings() error {
	cfg, err := a.cfg.YAML()
	if err != nil {
		return err
	}
	rt, err := yaml.Marshal(map[string]runtimeSettings{"runtime": {
		Contact:     a.contact.String(),
		DisplayName: a.displayName,
		Expires:     a.expires,
		UserAgent:   a.userAgent,
		Debug:       a.debug,
		Operations:  a.ops.Len(),
	}})
	if err != nil {
		return fmt.Errorf("ошибка сериализации параметров: %w", err)
	}
	a.printf("%s%s", cfg, rt)
	return nil
}

// SetPublicAddress меняет адрес в Contact новых запросов
func (a *Agent) SetPublicAddress(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("%w: address", engine.ErrMissingArgument)
	}
	raw := addr
	if !hasScheme(raw) {
		raw = "sip:" + a.aor.User + "@" + raw
	}
	var uri sip.Uri
	if err := sip.ParseUri(raw, &uri); err != nil {
		return fmt.Errorf("некорректный адрес %q: %w", addr, err)
	}
	if uri.User == "" {
		uri.User = a.aor.User
	}
	a.contact = uri
	a.printf("Contact set to %s\n", a.contact.String())
	return nil
}

// Param задает именованный параметр движка
func (a *Agent) Param(name, value string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	value = strings.TrimSpace(value)

	switch name {
	case "debug":
		on, err := parseFlag(value)
		if err != nil {
			return err
		}
		a.debug = on
		sip.SIPDebug = on
		if on {
			a.logger.SetLevel(logging.LevelDebug)
		} else {
			a.logger.SetLevel(logging.LevelInfo)
		}
	case "expires":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("expires: ожидается неотрицательное число, получено %q", value)
		}
		a.expires = n
	case "user_agent":
		if value == "" {
			return fmt.Errorf("%w: user_agent", engine.ErrMissingArgument)
		}
		a.userAgent = value
	case "display_name":
		a.displayName = strings.Trim(value, `"`)
	default:
		return fmt.Errorf("%w: %s", engine.ErrUnknownParam, name)
	}

	a.printf("%s=%s\n", name, value)
	return nil
}

// parseFlag принимает on/off, yes/no, true/false, 1/0
func parseFlag(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "on", "yes", "y":
		return true, nil
	case "off", "no", "n":
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("ожидается on/off, получено %q", v)
	}
	return b, nil
}
