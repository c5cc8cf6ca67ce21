package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 存放一次聚合运行的全部可调参数。
type Config struct {
	OutputDir   string
	RegistryDir string // 为空时使用内嵌的 chains.yaml / providers.yaml

	CoinGeckoBaseURL string
	CoinGeckoAPIKey  string

	HTTPTimeout     time.Duration
	MaxAttempts     int // 0 表示不设上限，一直按 Retry-After 重试
	RetryUnit       time.Duration
	ProviderTimeout time.Duration

	MinProviders      int
	Strict            bool
	ValidateAddresses bool

	SQLitePath string
	ReportPath string
	LogLevel   string
	LogOutput  string // 逗号分隔的日志输出路径，为空时写 stdout
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		OutputDir:        "tokenlists",
		CoinGeckoBaseURL: "https://api.coingecko.com/api/v3",
		HTTPTimeout:      60 * time.Second,
		MaxAttempts:      20,
		RetryUnit:        time.Second,
		ProviderTimeout:  15 * time.Minute,
		MinProviders:     2,
		LogLevel:         "info",
	}
}

// LoadConfig 先尝试加载 envFile（不存在时忽略），再用环境变量覆盖默认值。
func LoadConfig(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv 从 getenv 读取配置；未设置的键保留默认值，格式错误直接报错。
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()
	env := envReader{getenv: getenv}

	env.str("TOKENLISTS_DIR", &cfg.OutputDir)
	env.str("REGISTRY_DIR", &cfg.RegistryDir)
	env.str("COINGECKO_BASE_URL", &cfg.CoinGeckoBaseURL)
	env.str("COINGECKO_API_KEY", &cfg.CoinGeckoAPIKey)
	env.duration("HTTP_TIMEOUT", &cfg.HTTPTimeout)
	env.integer("MAX_ATTEMPTS", &cfg.MaxAttempts)
	env.duration("RETRY_UNIT", &cfg.RetryUnit)
	env.duration("PROVIDER_TIMEOUT", &cfg.ProviderTimeout)
	env.integer("MIN_PROVIDERS", &cfg.MinProviders)
	env.boolean("STRICT", &cfg.Strict)
	env.boolean("VALIDATE_ADDRESSES", &cfg.ValidateAddresses)
	env.str("SQLITE_PATH", &cfg.SQLitePath)
	env.str("REPORT_PATH", &cfg.ReportPath)
	env.str("LOG_LEVEL", &cfg.LogLevel)
	env.str("LOG_OUTPUT", &cfg.LogOutput)

	if env.err != nil {
		return Config{}, env.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 检查配置取值范围。
func (c Config) Validate() error {
	if strings.TrimSpace(c.OutputDir) == "" {
		return errors.New("config: output dir is required")
	}
	if strings.TrimSpace(c.CoinGeckoBaseURL) == "" {
		return errors.New("config: coingecko base url is required")
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("config: max attempts must be >= 0, got %d", c.MaxAttempts)
	}
	if c.MinProviders < 2 {
		return fmt.Errorf("config: min providers must be >= 2 (a single provider is never trusted), got %d", c.MinProviders)
	}
	if c.HTTPTimeout <= 0 || c.RetryUnit <= 0 || c.ProviderTimeout <= 0 {
		return errors.New("config: timeouts must be positive")
	}
	return nil
}

// LogOutputs 把 LogOutput 拆成 zap 的输出路径列表。
func (c Config) LogOutputs() []string {
	var out []string
	for _, p := range strings.Split(c.LogOutput, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MaskedAPIKey 返回用于日志展示的 API key：只保留首尾各 4 位。
func (c Config) MaskedAPIKey() string {
	k := strings.TrimSpace(c.CoinGeckoAPIKey)
	if k == "" {
		return ""
	}
	if len(k) <= 10 {
		return "<masked>"
	}
	return k[:4] + "..." + k[len(k)-4:]
}

// envReader 记录第一个解析错误，后续键继续读取但不再覆盖错误。
type envReader struct {
	getenv func(string) string
	err    error
}

func (r *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(r.getenv(key))
	return v, v != ""
}

func (r *envReader) fail(key, v string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("config: invalid %s=%q: %w", key, v, err)
	}
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.lookup(key); ok {
		*dst = v
	}
}

func (r *envReader) integer(key string, dst *int) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return
	}
	*dst = n
}

// duration 同时接受 Go 时长写法（"30s"）和整数秒。
func (r *envReader) duration(key string, dst *time.Duration) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return
	}
	*dst = d
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		r.fail(key, v, errors.New("expected a boolean"))
	}
}
