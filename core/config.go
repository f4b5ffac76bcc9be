package core

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default remote services. These are the public Hugging Face spaces the
// front-end was built against; SERVICES_FILE or the *_BASE_URL variables
// point the relay elsewhere.
const (
	DefaultTranslatorBaseURL = "https://hamed744-translate-tts-aloha.hf.space"
	DefaultTranslatorFnIndex = 1

	DefaultImageBaseURL   = "https://black-forest-labs-flux-1-dev.hf.space"
	DefaultImageFnIndex   = 2
	DefaultImageTriggerID = 5

	// DefaultTranslatorVoice is the voice selector the translator space
	// expects after the prompt. It has no effect on the translated text.
	DefaultTranslatorVoice = "انگلیسی (آمریکا) - جنی (زن)"

	// DefaultAddressListFile is where the container image mounts the
	// egress address list.
	DefaultAddressListFile = "/app/ipv6_ips.txt"
)

// ServiceConfig describes one remote queue-based inference service.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	BaseURL   string `yaml:"base_url"`
	FnIndex   int    `yaml:"fn_index"`
	TriggerID *int   `yaml:"trigger_id,omitempty"`

	// ExtraParams are appended to the payload after the stage input.
	ExtraParams []any `yaml:"extra_params,omitempty"`
}

// servicesFile is the on-disk shape of SERVICES_FILE.
type servicesFile struct {
	Translator *ServiceConfig `yaml:"translator"`
	Image      *ServiceConfig `yaml:"image"`
}

// Config holds all configuration values
type Config struct {
	// Server Configuration
	Host            string
	Port            int
	IsDevelopment   bool
	LogFile         string
	ShutdownTimeout time.Duration

	// StartupProbe checks that the remote services answer before serving.
	StartupProbe bool

	// Egress rotation
	AddressListFile      string
	MaxRetriesPerAddress int
	RetryDelay           time.Duration
	RunTimeout           time.Duration

	// Remote services
	ServicesFile string
	Translator   ServiceConfig
	Image        ServiceConfig

	// Queue protocol timing
	SubmitTimeout      time.Duration
	PollCycleTimeout   time.Duration
	PollMaxWait        time.Duration
	PollInterval       time.Duration
	PollTimeoutBackoff time.Duration
	ProgressInterval   time.Duration

	// Inbound rate limiting
	RateLimitMax           int
	RateLimitWindowMinutes int
}

// LoadConfig loads configuration from environment variables with defaults
// matching the public spaces. Nothing is required; an operator only needs to
// mount the address list to enable rotation.
func LoadConfig() (*Config, error) {
	triggerID := ParseIntEnv("IMAGE_TRIGGER_ID", DefaultImageTriggerID)

	cfg := &Config{
		Host:            GetEnvOrDefault("HOST", "0.0.0.0"),
		Port:            ParseIntEnv("PORT", 8000),
		IsDevelopment:   ParseBoolEnv("DEV_MODE", false),
		LogFile:         GetEnvOrDefault("LOG_FILE", "app.log"),
		ShutdownTimeout: ParseDurationEnv("SHUTDOWN_TIMEOUT", 60),
		StartupProbe:    ParseBoolEnv("STARTUP_PROBE", false),

		AddressListFile:      GetEnvOrDefault("ADDRESS_LIST_FILE", DefaultAddressListFile),
		MaxRetriesPerAddress: ParseIntEnv("MAX_RETRIES_PER_ADDRESS", 2),
		RetryDelay:           ParseDurationEnv("RETRY_DELAY", 2),
		RunTimeout:           ParseDurationEnv("RUN_TIMEOUT", 1800),

		ServicesFile: os.Getenv("SERVICES_FILE"),
		Translator: ServiceConfig{
			Name:        "Translator",
			BaseURL:     GetEnvOrDefault("TRANSLATOR_BASE_URL", DefaultTranslatorBaseURL),
			FnIndex:     ParseIntEnv("TRANSLATOR_FN_INDEX", DefaultTranslatorFnIndex),
			ExtraParams: []any{DefaultTranslatorVoice, 0, 0, 0},
		},
		Image: ServiceConfig{
			Name:      "ImageGenerator",
			BaseURL:   GetEnvOrDefault("IMAGE_BASE_URL", DefaultImageBaseURL),
			FnIndex:   ParseIntEnv("IMAGE_FN_INDEX", DefaultImageFnIndex),
			TriggerID: &triggerID,
		},

		// 90s join timeout: cold spaces can take a long time to accept work
		SubmitTimeout:      ParseDurationEnv("SUBMIT_TIMEOUT", 90),
		PollCycleTimeout:   ParseDurationEnv("POLL_CYCLE_TIMEOUT", 30),
		PollMaxWait:        ParseDurationEnv("POLL_MAX_WAIT", 300),
		PollInterval:       ParseDurationEnv("POLL_INTERVAL", 2),
		PollTimeoutBackoff: ParseDurationEnv("POLL_TIMEOUT_BACKOFF", 5),
		ProgressInterval:   ParseDurationEnv("PROGRESS_INTERVAL", 5),

		RateLimitMax:           ParseIntEnv("RATE_LIMIT_MAX", 10),
		RateLimitWindowMinutes: ParseIntEnv("RATE_LIMIT_WINDOW_MINUTES", 1),
	}

	if cfg.ServicesFile != "" {
		if err := cfg.applyServicesFile(cfg.ServicesFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyServicesFile overlays service definitions from a YAML file. Fields
// left out of the file keep their env/default values.
func (c *Config) applyServicesFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return ErrServicesFile(path, err.Error())
	}

	var file servicesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return ErrServicesFile(path, err.Error())
	}

	if file.Translator != nil {
		c.Translator = mergeService(c.Translator, *file.Translator)
	}
	if file.Image != nil {
		c.Image = mergeService(c.Image, *file.Image)
	}
	return nil
}

func mergeService(base, override ServiceConfig) ServiceConfig {
	if override.Name != "" {
		base.Name = override.Name
	}
	if override.BaseURL != "" {
		base.BaseURL = override.BaseURL
	}
	if override.FnIndex != 0 {
		base.FnIndex = override.FnIndex
	}
	if override.TriggerID != nil {
		base.TriggerID = override.TriggerID
	}
	if override.ExtraParams != nil {
		base.ExtraParams = override.ExtraParams
	}
	return base
}

// Validate checks the loaded values and returns a *ConfigError describing
// the first problem found.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidValue("PORT", fmt.Sprintf("%d is not a valid port", c.Port))
	}
	if c.MaxRetriesPerAddress < 1 {
		return ErrInvalidValue("MAX_RETRIES_PER_ADDRESS", "must be at least 1")
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"SUBMIT_TIMEOUT", c.SubmitTimeout},
		{"POLL_CYCLE_TIMEOUT", c.PollCycleTimeout},
		{"POLL_MAX_WAIT", c.PollMaxWait},
		{"RUN_TIMEOUT", c.RunTimeout},
		{"SHUTDOWN_TIMEOUT", c.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return ErrInvalidValue(d.name, "must be a positive number of seconds")
		}
	}
	// Zero delays are allowed (tight loops in tests), negative ones are not.
	if c.PollInterval < 0 || c.PollTimeoutBackoff < 0 || c.RetryDelay < 0 {
		return ErrInvalidValue("POLL_INTERVAL/POLL_TIMEOUT_BACKOFF/RETRY_DELAY", "must not be negative")
	}

	for _, svc := range []ServiceConfig{c.Translator, c.Image} {
		if err := ValidateServiceURL(svc.BaseURL); err != nil {
			return ErrInvalidServiceURL(svc.Name, svc.BaseURL, err.Error())
		}
	}

	if c.RateLimitMax < 0 || c.RateLimitWindowMinutes < 0 {
		return ErrInvalidValue("RATE_LIMIT_MAX/RATE_LIMIT_WINDOW_MINUTES", "must not be negative")
	}
	return nil
}

// ValidateServiceURL checks that raw is an absolute http(s) URL.
func ValidateServiceURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// Addr returns the listen address for the HTTP server. IPv6 hosts are
// bracketed.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// RateLimitEnabled reports whether inbound generation requests are throttled.
func (c *Config) RateLimitEnabled() bool {
	return c.RateLimitMax > 0 && c.RateLimitWindowMinutes > 0
}
