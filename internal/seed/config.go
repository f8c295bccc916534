package seed

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	TargetDir    = "dir"
	TargetObject = "s3"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	Target    string
	Dir       string
	Prefix    string
	Seed      int64
	Orders    int
	Customers int
	Products  int
	Sellers   int
	End       time.Time
	Span      time.Duration
}

func DefaultConfig() Config {
	return Config{
		Target:    TargetDir,
		Dir:       "data",
		Prefix:    "olist",
		Seed:      2018,
		Orders:    2000,
		Customers: 800,
		Products:  120,
		Sellers:   40,
		End:       time.Date(2018, 8, 29, 15, 0, 37, 0, time.UTC),
		Span:      365 * 24 * time.Hour,
	}
}

func (c Config) Options() Options {
	return Options{
		Orders:    c.Orders,
		Customers: c.Customers,
		Products:  c.Products,
		Sellers:   c.Sellers,
		End:       c.End,
		Span:      c.Span,
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyString(lookup, "OLISTQA_SEED_TARGET", &cfg.Target); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "OLISTQA_SEED_DIR", &cfg.Dir); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "OLISTQA_SEED_PREFIX", &cfg.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "OLISTQA_SEED_VALUE", &cfg.Seed); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "OLISTQA_SEED_ORDERS", &cfg.Orders); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "OLISTQA_SEED_CUSTOMERS", &cfg.Customers); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "OLISTQA_SEED_PRODUCTS", &cfg.Products); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "OLISTQA_SEED_SELLERS", &cfg.Sellers); err != nil {
		return Config{}, err
	}
	if err := applyTime(lookup, "OLISTQA_SEED_END", &cfg.End); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "OLISTQA_SEED_SPAN", &cfg.Span); err != nil {
		return Config{}, err
	}

	cfg.Target = strings.ToLower(cfg.Target)
	switch cfg.Target {
	case TargetDir:
		if cfg.Dir == "" {
			return Config{}, fmt.Errorf("OLISTQA_SEED_DIR is required")
		}
	case TargetObject:
	default:
		return Config{}, fmt.Errorf("OLISTQA_SEED_TARGET must be one of %q or %q", TargetDir, TargetObject)
	}
	if cfg.Orders <= 0 {
		return Config{}, fmt.Errorf("OLISTQA_SEED_ORDERS must be > 0")
	}
	if cfg.Customers <= 0 {
		return Config{}, fmt.Errorf("OLISTQA_SEED_CUSTOMERS must be > 0")
	}
	if cfg.Products <= 0 {
		return Config{}, fmt.Errorf("OLISTQA_SEED_PRODUCTS must be > 0")
	}
	if cfg.Sellers <= 0 {
		return Config{}, fmt.Errorf("OLISTQA_SEED_SELLERS must be > 0")
	}
	if cfg.Span < 0 {
		return Config{}, fmt.Errorf("OLISTQA_SEED_SPAN must be >= 0")
	}
	return cfg, nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyTime(lookup LookupFunc, key string, dst *time.Time) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, TimestampLayout, "2006-01-02"} {
		if v, err := time.Parse(layout, raw); err == nil {
			*dst = v.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid %s: %q is not a timestamp", key, raw)
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
