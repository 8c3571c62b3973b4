package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/arzzra/sofsip/pkg/engine"
)

// Операции, на которые отображаются глаголы
const (
	OpAnswer          = "answer"
	OpSetAddress      = "addr"
	OpBye             = "bye"
	OpCancel          = "cancel"
	OpReject480       = "reject-480"
	OpDecline603      = "decline-603"
	OpHelp            = "help"
	OpInvite          = "invite"
	OpInfo            = "info"
	OpHold            = "hold"
	OpUnhold          = "unhold"
	OpAuth            = "key"
	OpList            = "list"
	OpMessage         = "message"
	OpWebRTCSDP       = "webrtc-sdp"
	OpWebRTCSDPCalled = "webrtc-sdp-called"
	OpSettings        = "set"
	OpSubscribe       = "subscribe"
	OpWatch           = "watch"
	OpOptions         = "options"
	OpPublish         = "publish"
	OpUnpublish       = "unpublish"
	OpRegister        = "register"
	OpUnregister      = "unregister"
	OpRefer           = "refer"
	OpUnsubscribe     = "unsubscribe"
	OpZap             = "zap"
	OpExit            = "exit"
	OpAssign          = "assign"
)

// CommandCategory категория команды в справке
type CommandCategory string

const (
	CategoryCall     CommandCategory = "CALL"
	CategoryIM       CommandCategory = "IM"
	CategoryPresence CommandCategory = "PRESENCE"
	CategoryAccount  CommandCategory = "ACCOUNT"
	CategoryGeneral  CommandCategory = "GENERAL"
)

// Alias имя глагола. Exact требует точного совпадения регистра.
type Alias struct {
	Name  string
	Exact bool
}

func fold(names ...string) []Alias {
	out := make([]Alias, 0, len(names))
	for _, n := range names {
		out = append(out, Alias{Name: n})
	}
	return out
}

func exact(name string) Alias { return Alias{Name: name, Exact: true} }

// Matches сравнивает глагол с именем
func (a Alias) Matches(verb string) bool {
	if a.Exact {
		return a.Name == verb
	}
	return strings.EqualFold(a.Name, verb)
}

// CommandHandler выполняет команду
type CommandHandler func(d *Dispatcher, rest engine.Arg) error

// Verb запись таблицы глаголов
type Verb struct {
	Op          string
	Aliases     []Alias
	Usage       string
	Description string
	Category    CommandCategory
	// Hidden не показывается в справке
	Hidden  bool
	Handler CommandHandler
}

// Matches проверяет глагол по всем именам записи
func (v *Verb) Matches(verb string) bool {
	for _, a := range v.Aliases {
		if a.Matches(verb) {
			return true
		}
	}
	return false
}

var (
	verbs    []*Verb
	helpVerb *Verb
)

func init() {
	verbs = buildVerbs()
	helpVerb = &Verb{
		Op: OpHelp, Aliases: fold("h", "help", "?"), Usage: "h|?", Description: "help", Category: CategoryGeneral,
		Handler: func(d *Dispatcher, _ engine.Arg) error {
			return WriteHelp(d.out)
		},
	}
}

// buildVerbs возвращает упорядоченную таблицу. Записи проверяются по порядку,
// поэтому точные d/D и u/U перехватываются раньше записей без учета регистра.
// Справка (h, help, ?) проверяется последней, после присваивания.
func buildVerbs() []*Verb {
	return []*Verb{
		{Op: OpAnswer, Aliases: fold("a", "answer"), Usage: "a", Description: "answer", Category: CategoryCall,
			Handler: func(d *Dispatcher, _ engine.Arg) error { return d.engine.Answer(200, "OK") }},
		{Op: OpSetAddress, Aliases: fold("addr"), Usage: "addr <my-sip-address-uri>", Description: "set public address", Category: CategoryAccount,
			Handler: func(d *Dispatcher, rest engine.Arg) error {
				if !rest.Present {
					return d.usage(OpSetAddress)
				}
				return d.engine.SetPublicAddress(rest.Value)
			}},
		{Op: OpBye, Aliases: fold("b", "bye"), Usage: "b", Description: "bye", Category: CategoryCall,
			Handler: func(d *Dispatcher, _ engine.Arg) error { return d.engine.Bye() }},
		{Op: OpCancel, Aliases: fold("c", "cancel"), Usage: "c", Description: "cancel", Category: CategoryCall,
			Handler: func(d *Dispatcher, _ engine.Arg) error { return d.engine.Cancel() }},
		{Op: OpReject480, Aliases: []Alias{exact("d")}, Usage: "d", Description: "reject with 480 Temporarily Unavailable", Category: CategoryCall,
			Handler: func(d *Dispatcher, _ engine.Arg) error { return d.engine.Answer(480, "Temporarily Unavailable") }},
		{Op: OpDecline603, Aliases: []Alias{exact("D")}, Usage: "D", Description: "decline with 603 Decline", Category: CategoryCall,
			Handler: func(d *Dispatcher, _ engine.Arg) error { return d.engine.Answer(603, "Decline") }},
		{Op: OpInvite, Aliases: fold("i", "invite"), Usage: "i <to-sip-address-uri>", Description: "invite", Category: CategoryCall,
			Handler: func(d *Dispatcher, rest engine.Arg) error {
				if !rest.Present {
					return d.usage(OpInvite)
				}
				return d.engine.Invite(rest.Value)
			}},
		{Op: OpInfo, Aliases: fold("info"), Usage: "info [to-sip-address-uri]", Description: "send INFO, body is asked for", Category: CategoryCall,
			Handler: func(d *Dispatcher, rest engine.Arg) error {
				target := rest.Value
				d.subPrompt.Begin(OpInfo, InfoPrompt, func(body string) error {
					return d.engine.Info(target, body)
				})
				return nil
			}},
		{Op: OpHold, Aliases: fold("hold"), Usage: "hold <to-sip-address-uri>", Description: "hold", Category: CategoryCall,
			Handler: func(d *Dispatcher, rest engine.Arg) error { return d.engine.Hold(rest, true) }},
		{Op: OpUnhold, Aliases: fold("unhold"), Usage: "unhold <to-sip-address-uri>", Description: "unhold", Category: CategoryCall,
			Handler: func(d *Dispatcher, rest engine.Arg) error { return d.engine.Hold(rest, false) }},
		{Op: OpAuth, Aliases: fold("k", "key"), Usage: "k <[method:\"realm\":user:]password>", Description: "authenticate", Category: CategoryAccount,
			Handler: func(d *Dispatcher, rest engine.Arg) error {
				if !rest.Present {
					return d.usage(OpAuth)
				}
				return d.engine.Auth(rest.Value)
			}},
		{Op: OpList, Aliases: fold("l", "list"), Usage: "l", Description: "list operations", Category: CategoryGeneral,
			Handler: func(d *Dispatcher, _ engine.Arg) error { return d.engine.List() }},
		{Op: OpMessage, Aliases: fold("m", "message"), Usage: "m <to-sip-address-uri> <text>", Description: "message", Category: CategoryIM,
			Handler: func(d *Dispatcher, rest engine.Arg) error {
				dest, body, ok := splitFirst(rest)
				if !ok {
					return d.usage(OpMessage)
				}
				return d.engine.Message(dest, body)
			}},
		{Op: OpWebRTCSDP, Aliases: fold("webrtc-sdp"), Usage: "webrtc-sdp <#op> <sdp>", Description: "supply local SDP for an outgoing call", Category: CategoryCall,
			Handler: func(d *Dispatcher, rest engine.Arg) error {
				op, sdp, err := d.resolveSDP(OpWebRTCSDP, rest)
				if err != nil {
					return err
				}
				return d.engine.WebRTCSDP(op, sdp)
			}},
		{Op: OpWebRTCSDPCalled, Aliases: fold("webrtc-sdp-called"), Usage: "webrtc-sdp-called <#op> <sdp>", Description: "supply local SDP to answer an incoming call", Category: CategoryCall,
			Handler: func(d *Dispatcher, rest engine.Arg) error {
				op, sdp, err := d.resolveSDP(OpWebRTCSDPCalled, rest)
				if err != nil {
					return err
				}
				return d.engine.WebRTCSDPCalled(op, sdp)
			}},
		{Op: OpSettings, Aliases: fold("set"), Usage: "set", Description: "print current settings", Category: CategoryGeneral,
			Handler: func(d *Dispatcher, _ engine.Arg) error { return d.engine.PrintSettings() }},
		{Op: OpSubscribe, Aliases: fold("s", "subscribe"), Usage: "s <to-sip-address-uri>", Description: "subscribe", Category: CategoryPresence,
			Handler: func(d *Dispatcher, rest engine.Arg) error { return d.engine.Subscribe(rest) }},
		{Op: OpWatch, Aliases: fold("w", "watch"), Usage: "w <to-sip-address-uri>", Description: "watch watcher info", Category: CategoryPresence,
			Handler: func(d *Dispatcher, rest engine.Arg) error { return d.engine.Watch(rest) }},
		{Op: OpOptions, Aliases: fold("o", "options"), Usage: "o <to-sip-address-uri>", Description: "options", Category: CategoryGeneral,
			Handler: func(d *Dispatcher, rest engine.Arg) error {
				if !rest.Present {
					return d.usage(OpOptions)
				}
				return d.engine.Options(rest.Value)
			}},
		{Op: OpPublish, Aliases: fold("p", "publish"), Usage: "p [-|note]", Description: "publish", Category: CategoryPresence,
			Handler: func(d *Dispatcher, rest engine.Arg) error { return d.engine.Publish(rest) }},
		{Op: OpUnpublish, Aliases: fold("up", "unpublish"), Usage: "up", Description: "unpublish", Category: CategoryPresence,
			Handler: func(d *Dispatcher, _ engine.Arg) error { return d.engine.Unpublish() }},
		{Op: OpRegister, Aliases: fold("r", "register"), Usage: "r [sip-registrar-uri]", Description: "register", Category: CategoryAccount,
			Handler: func(d *Dispatcher, rest engine.Arg) error { return d.engine.Register(rest) }},
		{Op: OpUnregister, Aliases: []Alias{exact("u"), {Name: "unregister"}}, Usage: "u", Description: "unregister", Category: CategoryAccount,
			Handler: func(d *Dispatcher, rest engine.Arg) error { return d.engine.Unregister(rest) }},
		{Op: OpRefer, Aliases: fold("ref", "refer"), Usage: "ref <to-sip-address-uri>", Description: "refer, target is asked for", Category: CategoryCall,
			Handler: func(d *Dispatcher, rest engine.Arg) error {
				target := rest.Value
				d.subPrompt.Begin(OpRefer, ReferPrompt, func(referTo string) error {
					return d.engine.Refer(target, referTo)
				})
				return nil
			}},
		{Op: OpUnsubscribe, Aliases: []Alias{exact("U"), {Name: "us"}, {Name: "unsubscribe"}}, Usage: "U", Description: "unsubscribe", Category: CategoryPresence,
			Handler: func(d *Dispatcher, rest engine.Arg) error { return d.engine.Unsubscribe(rest) }},
		{Op: OpZap, Aliases: fold("z", "zap"), Usage: "z [#op]", Description: "zap operation", Category: CategoryGeneral,
			Handler: func(d *Dispatcher, rest engine.Arg) error { return d.engine.Zap(rest) }},
		{Op: OpExit, Aliases: fold("q", "x", "exit"), Usage: "q|x|exit", Description: "exit", Category: CategoryGeneral,
			Handler: func(d *Dispatcher, _ engine.Arg) error {
				d.requestExit()
				return nil
			}},
	}
}

func allVerbs() []*Verb {
	out := make([]*Verb, 0, len(verbs)+1)
	return append(append(out, verbs...), helpVerb)
}

// Lookup ищет запись по глаголу в порядке таблицы
func Lookup(verb string) (*Verb, bool) {
	if verb == "" {
		return nil, false
	}
	for _, v := range verbs {
		if v.Matches(verb) {
			return v, true
		}
	}
	return nil, false
}

func lookupUsage(op string) string {
	for _, v := range allVerbs() {
		if v.Op == op {
			return v.Usage
		}
	}
	return op
}

// WriteHelp печатает сводку команд
func WriteHelp(w io.Writer) error {
	var b strings.Builder
	b.WriteString("Synopsis:\n")
	for _, v := range allVerbs() {
		if v.Hidden {
			continue
		}
		fmt.Fprintf(&b, "\t%s (%s)\n", v.Usage, v.Description)
	}
	b.WriteString("\tname=value (set parameter)\n")
	_, err := io.WriteString(w, b.String())
	return err
}
