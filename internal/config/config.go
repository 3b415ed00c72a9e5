package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token    string  `yaml:"token"`
	AdminIDs []int64 `yaml:"admin_ids"` // operator chats for escalation notices
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PaymentConfig struct {
	YooKassa struct {
		ShopID    string `yaml:"shop_id"`
		SecretKey string `yaml:"secret_key"`
		ReturnURL string `yaml:"return_url"`
	} `yaml:"yookassa"`
}

// PanelTarget is one VPN panel instance entitlements can be hosted on.
type PanelTarget struct {
	ID       string `yaml:"id"`
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type ProvisioningConfig struct {
	Targets       []PanelTarget `yaml:"targets"`
	DefaultTarget string        `yaml:"default_target"`
}

// ReconcileConfig holds every timing knob of the reconciliation engine.
// These are tunable operational parameters, not semantics; tests override
// them with millisecond-scale values.
type ReconcileConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`     // between gateway status checks
	PollTTL         time.Duration `yaml:"poll_ttl"`          // ephemeral check-state lifetime
	PollMaxAttempts int           `yaml:"poll_max_attempts"` // bounds total wait before "timeout"
	NotFoundRetries int           `yaml:"not_found_retries"` // tolerated gateway not_found responses

	RetryInterval   time.Duration   `yaml:"retry_interval"` // retry sweep cadence
	RetryBatch      int             `yaml:"retry_batch"`
	AttemptBudget   int             `yaml:"attempt_budget"`
	BackoffSchedule []time.Duration `yaml:"backoff_schedule"`

	LifecycleInterval time.Duration `yaml:"lifecycle_interval"` // lifecycle sweep cadence
	LifecycleBatch    int           `yaml:"lifecycle_batch"`
	SweepWorkers      int           `yaml:"sweep_workers"` // bounded fan-out within one sweep

	WarnBefore3     time.Duration `yaml:"warn_before_3"`    // first pre-expiry warning threshold
	WarnBefore1     time.Duration `yaml:"warn_before_1"`    // second, closer threshold
	DeleteWarn1     time.Duration `yaml:"delete_warn_1"`    // first pre-deletion warning, after expiry
	DeleteWarn2     time.Duration `yaml:"delete_warn_2"`    // second pre-deletion warning
	RetentionWindow time.Duration `yaml:"retention_window"` // expired-to-deleted grace period
}

// duration lets YAML carry human-readable values like "15m" or "72h".
type duration time.Duration

func (d *duration) UnmarshalYAML(n *yaml.Node) error {
	v, err := time.ParseDuration(n.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", n.Value, err)
	}
	*d = duration(v)
	return nil
}

func (rc *ReconcileConfig) UnmarshalYAML(n *yaml.Node) error {
	var raw struct {
		PollInterval    duration `yaml:"poll_interval"`
		PollTTL         duration `yaml:"poll_ttl"`
		PollMaxAttempts int      `yaml:"poll_max_attempts"`
		NotFoundRetries int      `yaml:"not_found_retries"`

		RetryInterval   duration   `yaml:"retry_interval"`
		RetryBatch      int        `yaml:"retry_batch"`
		AttemptBudget   int        `yaml:"attempt_budget"`
		BackoffSchedule []duration `yaml:"backoff_schedule"`

		LifecycleInterval duration `yaml:"lifecycle_interval"`
		LifecycleBatch    int      `yaml:"lifecycle_batch"`
		SweepWorkers      int      `yaml:"sweep_workers"`

		WarnBefore3     duration `yaml:"warn_before_3"`
		WarnBefore1     duration `yaml:"warn_before_1"`
		DeleteWarn1     duration `yaml:"delete_warn_1"`
		DeleteWarn2     duration `yaml:"delete_warn_2"`
		RetentionWindow duration `yaml:"retention_window"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}

	rc.PollInterval = time.Duration(raw.PollInterval)
	rc.PollTTL = time.Duration(raw.PollTTL)
	rc.PollMaxAttempts = raw.PollMaxAttempts
	rc.NotFoundRetries = raw.NotFoundRetries
	rc.RetryInterval = time.Duration(raw.RetryInterval)
	rc.RetryBatch = raw.RetryBatch
	rc.AttemptBudget = raw.AttemptBudget
	for _, d := range raw.BackoffSchedule {
		rc.BackoffSchedule = append(rc.BackoffSchedule, time.Duration(d))
	}
	rc.LifecycleInterval = time.Duration(raw.LifecycleInterval)
	rc.LifecycleBatch = raw.LifecycleBatch
	rc.SweepWorkers = raw.SweepWorkers
	rc.WarnBefore3 = time.Duration(raw.WarnBefore3)
	rc.WarnBefore1 = time.Duration(raw.WarnBefore1)
	rc.DeleteWarn1 = time.Duration(raw.DeleteWarn1)
	rc.DeleteWarn2 = time.Duration(raw.DeleteWarn2)
	rc.RetentionWindow = time.Duration(raw.RetentionWindow)
	return nil
}

type WebConfig struct {
	Port       int    `yaml:"port"`
	AuthSecret string `yaml:"auth_secret"` // HMAC secret for the ops API
}

type Config struct {
	Bot          BotConfig          `yaml:"bot"`
	Log          LogConfig          `yaml:"log"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Payment      PaymentConfig      `yaml:"payment"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
	Reconcile    ReconcileConfig    `yaml:"reconcile"`
	Web          WebConfig          `yaml:"web"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}
	applyReconcileDefaults(&cfg.Reconcile)

	// env overrides for secrets kept out of the YAML file
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		cfg.Bot.Token = v
	}
	if v := os.Getenv("YOOKASSA_SECRET_KEY"); v != "" {
		cfg.Payment.YooKassa.SecretKey = v
	}

	// Minimal validation
	if cfg.Bot.Token == "" && !dev {
		return nil, errors.New("bot.token is required")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if len(cfg.Provisioning.Targets) == 0 && !dev {
		return nil, errors.New("provisioning.targets must not be empty")
	}
	if cfg.Provisioning.DefaultTarget == "" && len(cfg.Provisioning.Targets) > 0 {
		cfg.Provisioning.DefaultTarget = cfg.Provisioning.Targets[0].ID
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyReconcileDefaults(rc *ReconcileConfig) {
	if rc.PollInterval <= 0 {
		rc.PollInterval = 10 * time.Second
	}
	if rc.PollTTL <= 0 {
		rc.PollTTL = 15 * time.Minute
	}
	if rc.PollMaxAttempts <= 0 {
		rc.PollMaxAttempts = 30 // 5 minutes at the default interval
	}
	if rc.NotFoundRetries <= 0 {
		rc.NotFoundRetries = 3
	}
	if rc.RetryInterval <= 0 {
		rc.RetryInterval = 5 * time.Minute
	}
	if rc.RetryBatch <= 0 {
		rc.RetryBatch = 10
	}
	if rc.AttemptBudget <= 0 {
		rc.AttemptBudget = 5
	}
	if len(rc.BackoffSchedule) == 0 {
		rc.BackoffSchedule = []time.Duration{
			5 * time.Minute, 15 * time.Minute, 30 * time.Minute, time.Hour, 2 * time.Hour,
		}
	}
	if rc.LifecycleInterval <= 0 {
		rc.LifecycleInterval = time.Hour
	}
	if rc.LifecycleBatch <= 0 {
		rc.LifecycleBatch = 500
	}
	if rc.SweepWorkers <= 0 {
		rc.SweepWorkers = 4
	}
	if rc.WarnBefore3 <= 0 {
		rc.WarnBefore3 = 3 * 24 * time.Hour
	}
	if rc.WarnBefore1 <= 0 {
		rc.WarnBefore1 = 24 * time.Hour
	}
	if rc.DeleteWarn1 <= 0 {
		rc.DeleteWarn1 = 3 * 24 * time.Hour
	}
	if rc.DeleteWarn2 <= 0 {
		rc.DeleteWarn2 = 6 * 24 * time.Hour
	}
	if rc.RetentionWindow <= 0 {
		rc.RetentionWindow = 7 * 24 * time.Hour
	}
}
