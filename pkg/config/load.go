package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var envKeys = []string{
	"address",
	"proxy",
	"registrar",
	"certdir",
	"stun_server",
	"register",
	"listen",
	"transport",
	"user_agent",
	"prompt",
	"debug",
	"metrics_addr",
	"external_sdp",
	"history_size",
	"expires",
}

// Sources описывает источники конфигурации в порядке возрастания приоритета:
// EnvFile, ConfigFile, окружение, Args, Overrides, затем AOR и Registrar.
type Sources struct {
	// EnvFile dotenv файл, отсутствие файла не ошибка
	EnvFile string
	// ConfigFile YAML файл, пустое значение берется из SOFSIP_CONFIG
	ConfigFile string
	// Args аргументы командной строки, первый без '-' становится AOR
	Args []string
	// Overrides значения флагов по ключам mapstructure
	Overrides map[string]interface{}

	// AOR и Registrar передает встраивающий код, пустые строки игнорируются.
	// Непустой Registrar также становится Proxy и включает Register.
	AOR       string
	Registrar string
}

// Load собирает конфигурацию из всех источников
func Load(src Sources) (Config, error) {
	if err := loadDotEnv(src.EnvFile); err != nil {
		return Config{}, err
	}

	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("ошибка привязки %s: %w", key, err)
		}
	}
	v.SetDefault("listen", cfg.Listen)
	v.SetDefault("transport", cfg.Transport)
	v.SetDefault("user_agent", cfg.UserAgent)
	v.SetDefault("history_size", cfg.HistorySize)
	v.SetDefault("expires", cfg.Expires)
	v.SetDefault("register", false)

	path := src.ConfigFile
	if path == "" {
		_ = v.BindEnv("config")
		path = v.GetString("config")
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("ошибка чтения %s: %w", path, err)
			}
		}
	}

	if aor := PositionalAOR(src.Args); aor != "" {
		v.Set("address", aor)
	}
	for key, value := range src.Overrides {
		v.Set(key, value)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("ошибка разбора конфигурации: %w", err)
	}

	if src.AOR != "" {
		cfg.AOR = src.AOR
	}
	if src.Registrar != "" {
		cfg.Registrar = src.Registrar
		cfg.Proxy = src.Registrar
		cfg.Register = true
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// PositionalAOR возвращает первый аргумент, не начинающийся с '-'
func PositionalAOR(args []string) string {
	for _, arg := range args {
		if arg == "" || strings.HasPrefix(arg, "-") {
			continue
		}
		return arg
	}
	return ""
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("ошибка загрузки %s: %w", path, err)
	}
	return nil
}
