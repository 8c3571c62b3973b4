package config

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix префикс переменных окружения (SOFSIP_ADDRESS и т.д.)
	EnvPrefix = "SOFSIP"

	DefaultListen      = "0.0.0.0:5060"
	DefaultTransport   = "udp"
	DefaultUserAgent   = "sofsip/1.0"
	DefaultHistorySize = 200
	DefaultExpires     = 3600
)

// Config неизменяемая конфигурация сессии консоли.
// Собирается один раз при старте через Load и далее только читается.
type Config struct {
	AOR        string `mapstructure:"address" yaml:"address"`
	Proxy      string `mapstructure:"proxy" yaml:"proxy,omitempty"`
	Registrar  string `mapstructure:"registrar" yaml:"registrar,omitempty"`
	CertDir    string `mapstructure:"certdir" yaml:"certdir,omitempty"`
	STUNServer string `mapstructure:"stun_server" yaml:"stun_server,omitempty"`
	Register   bool   `mapstructure:"register" yaml:"register"`

	Listen      string `mapstructure:"listen" yaml:"listen"`
	Transport   string `mapstructure:"transport" yaml:"transport"`
	UserAgent   string `mapstructure:"user_agent" yaml:"user_agent"`
	Prompt      string `mapstructure:"prompt" yaml:"prompt,omitempty"`
	Debug       bool   `mapstructure:"debug" yaml:"debug"`
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr,omitempty"`
	ExternalSDP bool   `mapstructure:"external_sdp" yaml:"external_sdp"`
	HistorySize int    `mapstructure:"history_size" yaml:"history_size"`
	Expires     int    `mapstructure:"expires" yaml:"expires"`
}

// Default возвращает конфигурацию по умолчанию
func Default() Config {
	return Config{
		Listen:      DefaultListen,
		Transport:   DefaultTransport,
		UserAgent:   DefaultUserAgent,
		HistorySize: DefaultHistorySize,
		Expires:     DefaultExpires,
	}
}

// Validate проверяет согласованность значений
func (c Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Transport) {
	case "udp", "tcp", "tls", "ws", "wss":
	default:
		errs = append(errs, fmt.Errorf("transport %q не поддерживается", c.Transport))
	}
	if c.Listen == "" {
		errs = append(errs, errors.New("listen не задан"))
	}
	if c.HistorySize <= 0 {
		errs = append(errs, fmt.Errorf("history_size должен быть больше нуля, получено %d", c.HistorySize))
	}
	if c.Expires < 0 {
		errs = append(errs, fmt.Errorf("expires не может быть отрицательным: %d", c.Expires))
	}
	if c.Register && c.Registrar == "" {
		errs = append(errs, errors.New("register включен, но registrar не задан"))
	}
	return errors.Join(errs...)
}

// YAML возвращает конфигурацию в виде YAML документа (команда set)
func (c Config) YAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации конфигурации: %w", err)
	}
	return string(data), nil
}
