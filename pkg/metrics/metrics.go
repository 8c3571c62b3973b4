package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace префикс метрик
const Namespace = "sofsip"

// Collector метрики консоли на собственном реестре.
//
// Счетчики обновляются из горутины реактора, HTTP сервер только читает их.
// Нулевой *Collector допустим: все методы ничего не делают.
type Collector struct {
	registry *prometheus.Registry

	commandsTotal   *prometheus.CounterVec
	unknownCommands prometheus.Counter
	eventsTotal     *prometheus.CounterVec
	authRequests    prometheus.Counter
	sessionState    *prometheus.GaugeVec
	operations      prometheus.Gauge

	current atomic.Value // string
}

// SessionStates состояния сессии для gauge
var SessionStates = []string{"uninitialized", "starting", "running", "stopping", "terminated"}

// NewCollector создает коллектор
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "commands_total",
			Help:      "Количество выполненных команд по операциям",
		}, []string{"operation"}),
		unknownCommands: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "unknown_commands_total",
			Help:      "Количество нераспознанных команд",
		}),
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "engine_events_total",
			Help:      "События движка по типам",
		}, []string{"kind"}),
		authRequests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "auth_requests_total",
			Help:      "Запросы аутентификации от движка",
		}),
		sessionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "session_state",
			Help:      "Текущее состояние сессии (1 для активного)",
		}, []string{"state"}),
		operations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "operations",
			Help:      "Количество операций в реестре",
		}),
	}
	c.SetState(SessionStates[0])
	return c
}

// Registry возвращает реестр для экспорта
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) CommandExecuted(operation string) {
	if c == nil {
		return
	}
	c.commandsTotal.WithLabelValues(operation).Inc()
}

func (c *Collector) UnknownCommand() {
	if c == nil {
		return
	}
	c.unknownCommands.Inc()
}

func (c *Collector) EngineEvent(kind string) {
	if c == nil {
		return
	}
	c.eventsTotal.WithLabelValues(kind).Inc()
}

func (c *Collector) AuthRequested(n int) {
	if c == nil {
		return
	}
	c.authRequests.Add(float64(n))
}

func (c *Collector) SetOperations(n int) {
	if c == nil {
		return
	}
	c.operations.Set(float64(n))
}

// SetState отмечает текущее состояние сессии
func (c *Collector) SetState(state string) {
	if c == nil {
		return
	}
	for _, s := range SessionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		c.sessionState.WithLabelValues(s).Set(v)
	}
	c.current.Store(state)
}

// State последнее отмеченное состояние
func (c *Collector) State() string {
	if c == nil {
		return ""
	}
	s, _ := c.current.Load().(string)
	return s
}
