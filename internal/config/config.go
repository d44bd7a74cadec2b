// Package config loads and validates the sync configuration from a YAML
// file. The shape is checked against an embedded JSON Schema before any
// values are used, so a malformed file fails loudly at startup rather than
// midway through a run.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

// Account is one remote shop account to extract from.
type Account struct {
	Key        string `yaml:"key"`
	Name       string `yaml:"name"`
	ShopURL    string `yaml:"shopUrl"`
	Token      string `yaml:"token"`
	APIVersion string `yaml:"apiVersion"`
}

// Sheet addresses the destination table service.
type Sheet struct {
	BaseURL string `yaml:"baseUrl"`
	Token   string `yaml:"token"`
	// Tables maps a logical dataset name to an opaque table ID. The sync
	// writes to the "orders" table.
	Tables map[string]string `yaml:"tables"`
}

// Tuning carries the knobs that have safe defaults. Zero values mean
// "use the default".
type Tuning struct {
	InitialPageSize         int `yaml:"initialPageSize"`
	MinPageSize             int `yaml:"minPageSize"`
	IncrementalDays         int `yaml:"incrementalDays"`
	BackfillChunkMonths     int `yaml:"backfillChunkMonths"`
	BackfillCooldownSeconds int `yaml:"backfillCooldownSeconds"`
	MaxAccountsInFlight     int `yaml:"maxAccountsInFlight"`
}

// BackfillCooldown returns the configured inter-window pause, or zero when
// unset.
func (t Tuning) BackfillCooldown() time.Duration {
	return time.Duration(t.BackfillCooldownSeconds) * time.Second
}

// Config is the full sync configuration.
type Config struct {
	Accounts   []Account `yaml:"accounts"`
	Sheet      Sheet     `yaml:"sheet"`
	Tuning     Tuning    `yaml:"tuning"`
	HistoryDSN string    `yaml:"historyDsn"`
	// APIKey guards the trigger API.
	APIKey string `yaml:"apiKey"`
}

// OrdersTableID returns the table ID the order sync targets.
func (c *Config) OrdersTableID() string {
	return c.Sheet.Tables["orders"]
}

// Load reads, schema-validates, and decodes a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse validates and decodes raw YAML config bytes.
func Parse(data []byte) (*Config, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := validate(raw); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func validate(raw any) error {
	// The schema library expects JSON-shaped values, so the YAML document is
	// round-tripped through JSON before validation.
	encoded, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	schema, err := compiledSchema()
	if err != nil {
		return err
	}
	return schema.Validate(instance)
}

func compiledSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.schema.json", doc); err != nil {
		return nil, err
	}
	return compiler.Compile("config.schema.json")
}
