package console

import (
	"github.com/stretchr/testify/mock"

	"github.com/arzzra/sofsip/pkg/engine"
)

type mockEngine struct {
	mock.Mock
	callbacks engine.Callbacks
}

var _ engine.Engine = (*mockEngine)(nil)

func (m *mockEngine) SetCallbacks(cb engine.Callbacks) { m.callbacks = cb }

func (m *mockEngine) Answer(status int, reason string) error {
	return m.Called(status, reason).Error(0)
}
func (m *mockEngine) SetPublicAddress(addr string) error { return m.Called(addr).Error(0) }
func (m *mockEngine) Bye() error                         { return m.Called().Error(0) }
func (m *mockEngine) Cancel() error                      { return m.Called().Error(0) }
func (m *mockEngine) Invite(target string) error         { return m.Called(target).Error(0) }
func (m *mockEngine) Info(target, body string) error     { return m.Called(target, body).Error(0) }
func (m *mockEngine) Hold(target engine.Arg, hold bool) error {
	return m.Called(target, hold).Error(0)
}
func (m *mockEngine) Auth(credentials string) error   { return m.Called(credentials).Error(0) }
func (m *mockEngine) List() error                     { return m.Called().Error(0) }
func (m *mockEngine) Message(dest, body string) error { return m.Called(dest, body).Error(0) }
func (m *mockEngine) WebRTCSDP(op engine.Operation, sdp string) error {
	return m.Called(op, sdp).Error(0)
}
func (m *mockEngine) WebRTCSDPCalled(op engine.Operation, sdp string) error {
	return m.Called(op, sdp).Error(0)
}
func (m *mockEngine) PrintSettings() error                   { return m.Called().Error(0) }
func (m *mockEngine) Subscribe(target engine.Arg) error      { return m.Called(target).Error(0) }
func (m *mockEngine) Watch(target engine.Arg) error          { return m.Called(target).Error(0) }
func (m *mockEngine) Options(target string) error            { return m.Called(target).Error(0) }
func (m *mockEngine) Publish(note engine.Arg) error          { return m.Called(note).Error(0) }
func (m *mockEngine) Unpublish() error                       { return m.Called().Error(0) }
func (m *mockEngine) Register(registrar engine.Arg) error    { return m.Called(registrar).Error(0) }
func (m *mockEngine) Unregister(target engine.Arg) error     { return m.Called(target).Error(0) }
func (m *mockEngine) Refer(target, referTo string) error     { return m.Called(target, referTo).Error(0) }
func (m *mockEngine) Unsubscribe(target engine.Arg) error    { return m.Called(target).Error(0) }
func (m *mockEngine) Zap(target engine.Arg) error            { return m.Called(target).Error(0) }
func (m *mockEngine) Param(name, value string) error         { return m.Called(name, value).Error(0) }
func (m *mockEngine) Shutdown() error                        { return m.Called().Error(0) }
func (m *mockEngine) Close() error                           { return m.Called().Error(0) }

type fakeOp struct{ target string }

func (f fakeOp) Kind() string   { return "call" }
func (f fakeOp) Target() string { return f.target }
func (f fakeOp) State() string  { return "calling" }
