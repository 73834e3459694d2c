// Package config loads bridge configuration from environment variables
// (with an optional config.yaml overlay), matching every key enumerated in
// the bridge specification's external-interfaces section.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RetryConfig controls AlertSink's backoff policy.
type RetryConfig struct {
	MaxAttempts int
	Backoff     time.Duration
}

// AlertmanagerConfig controls the outbound HTTP sink.
type AlertmanagerConfig struct {
	URL            string
	APIPath        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Enabled        bool
	Retry          RetryConfig
}

// LabelMappingsConfig controls node-derived label enrichment.
type LabelMappingsConfig struct {
	IncludeNodeMetadata   bool
	NodeMetadataPrefix    string
	IncludeNodeCategories bool
	CategoriesLabel       string
}

// AnnotationMappingsConfig controls node/alarm-derived annotation enrichment.
type AnnotationMappingsConfig struct {
	IncludeNodeDetails        bool
	NodeDetailsKey            string
	IncludeDescription        bool
	IncludeOperatorInstructions bool
}

// AlertConfig controls AlertMapper and the resend cadence.
type AlertConfig struct {
	ResendInterval     time.Duration
	ResolvedRetention  time.Duration
	StaticLabels       map[string]string
	IncludeSeverities  map[string]bool
	ExcludeUEIs        map[string]bool
	LabelMappings      LabelMappingsConfig
	AnnotationMappings AnnotationMappingsConfig
}

// TopicsConfig names the two input streams as subject prefixes (e.g.
// "opennms.alarms"), not literal subjects: each per-reduction-key record
// is published to "<prefix>.<key>", and the stream/consumer subscribe to
// the wildcarded "<prefix>.>" — see internal/stream.EnsureStreams.
type TopicsConfig struct {
	Alarms string
	Nodes  string
}

// Config is the fully resolved bridge configuration.
type Config struct {
	Alertmanager AlertmanagerConfig
	Topics       TopicsConfig
	Alert        AlertConfig
	OpenNMSBaseURL string

	NATSURL  string
	AdminAddr string
}

// Load reads configuration from environment variables prefixed ALERTBRIDGE_
// (dots in key names become underscores, viper's standard replacer), with
// an optional YAML file overlay for the map/set-valued keys that are
// awkward to express as flat env vars (alert.staticLabels,
// alert.includeSeverities, alert.excludeUeis).
func Load(yamlPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ALERTBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if yamlPath != "" {
		v.SetConfigFile(yamlPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: reading %s: %w", yamlPath, err)
			}
		}
	}

	cfg := &Config{
		Alertmanager: AlertmanagerConfig{
			URL:            v.GetString("alertmanager.url"),
			APIPath:        v.GetString("alertmanager.apiPath"),
			ConnectTimeout: v.GetDuration("alertmanager.connectTimeout"),
			ReadTimeout:    v.GetDuration("alertmanager.readTimeout"),
			Enabled:        v.GetBool("alertmanager.enabled"),
			Retry: RetryConfig{
				MaxAttempts: v.GetInt("alertmanager.retry.maxAttempts"),
				Backoff:     v.GetDuration("alertmanager.retry.backoff"),
			},
		},
		Topics: TopicsConfig{
			Alarms: v.GetString("topics.alarms"),
			Nodes:  v.GetString("topics.nodes"),
		},
		Alert: AlertConfig{
			ResendInterval:    v.GetDuration("alert.resendInterval"),
			ResolvedRetention: v.GetDuration("alert.resolvedRetention"),
			StaticLabels:      toStringMap(v.Get("alert.staticLabels")),
			IncludeSeverities: toStringSet(v.Get("alert.includeSeverities")),
			ExcludeUEIs:       toStringSet(v.Get("alert.excludeUeis")),
			LabelMappings: LabelMappingsConfig{
				IncludeNodeMetadata:   v.GetBool("alert.labelMappings.includeNodeMetadata"),
				NodeMetadataPrefix:    v.GetString("alert.labelMappings.nodeMetadataPrefix"),
				IncludeNodeCategories: v.GetBool("alert.labelMappings.includeNodeCategories"),
				CategoriesLabel:       v.GetString("alert.labelMappings.categoriesLabel"),
			},
			AnnotationMappings: AnnotationMappingsConfig{
				IncludeNodeDetails:          v.GetBool("alert.annotationMappings.includeNodeDetails"),
				NodeDetailsKey:              v.GetString("alert.annotationMappings.nodeDetailsKey"),
				IncludeDescription:          v.GetBool("alert.annotationMappings.includeDescription"),
				IncludeOperatorInstructions: v.GetBool("alert.annotationMappings.includeOperatorInstructions"),
			},
		},
		OpenNMSBaseURL: v.GetString("opennms.baseUrl"),
		NATSURL:        v.GetString("nats.url"),
		AdminAddr:      v.GetString("admin.addr"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("alertmanager.apiPath", "/api/v2/alerts")
	v.SetDefault("alertmanager.connectTimeout", 5*time.Second)
	v.SetDefault("alertmanager.readTimeout", 10*time.Second)
	v.SetDefault("alertmanager.enabled", true)
	v.SetDefault("alertmanager.retry.maxAttempts", 5)
	v.SetDefault("alertmanager.retry.backoff", 500*time.Millisecond)

	v.SetDefault("topics.alarms", "opennms.alarms")
	v.SetDefault("topics.nodes", "opennms.nodes")

	v.SetDefault("alert.resendInterval", time.Minute)
	v.SetDefault("alert.resolvedRetention", 5*time.Minute)

	v.SetDefault("alert.labelMappings.includeNodeMetadata", true)
	v.SetDefault("alert.labelMappings.nodeMetadataPrefix", "opennms_meta_")
	v.SetDefault("alert.labelMappings.includeNodeCategories", true)
	v.SetDefault("alert.labelMappings.categoriesLabel", "opennms_categories")

	v.SetDefault("alert.annotationMappings.includeNodeDetails", false)
	v.SetDefault("alert.annotationMappings.nodeDetailsKey", "opennms_node")
	v.SetDefault("alert.annotationMappings.includeDescription", true)
	v.SetDefault("alert.annotationMappings.includeOperatorInstructions", true)

	v.SetDefault("opennms.baseUrl", "http://localhost:8980/opennms")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("admin.addr", ":8980")
}

func (c *Config) validate() error {
	if c.Alertmanager.Enabled && c.Alertmanager.URL == "" {
		return fmt.Errorf("config: alertmanager.url is required when alertmanager.enabled is true")
	}
	if c.Alertmanager.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config: alertmanager.retry.maxAttempts must be >= 1")
	}
	if c.Alert.ResendInterval <= 0 {
		return fmt.Errorf("config: alert.resendInterval must be > 0")
	}
	return nil
}

func toStringMap(raw interface{}) map[string]string {
	out := make(map[string]string)
	m, ok := raw.(map[string]interface{})
	if !ok {
		if sm, ok := raw.(map[string]string); ok {
			return sm
		}
		return out
	}
	for k, v := range m {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}

func toStringSet(raw interface{}) map[string]bool {
	out := make(map[string]bool)
	switch vals := raw.(type) {
	case []interface{}:
		for _, v := range vals {
			out[fmt.Sprintf("%v", v)] = true
		}
	case []string:
		for _, v := range vals {
			out[v] = true
		}
	}
	return out
}
