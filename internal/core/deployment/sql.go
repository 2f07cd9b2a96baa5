package deployment

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/artpar/storedeploy/internal/core/domain"
)

// =============================================================================
// Store Data SQL
// =============================================================================

// Tables written by the deployer. They live beside the application schema and
// are created on demand, so every script can run against a fresh database.
const (
	CatalogTable  = "storefront_catalog"
	SettingsTable = "storefront_settings"
)

// SQL file names inside the working directory.
const (
	SeedFile    = "sql/seed.sql"
	PaymentFile = "sql/payment.sql"
	ThemeFile   = "sql/theme.sql"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS ` + CatalogTable + ` (
    internal_code TEXT PRIMARY KEY,
    uuid          TEXT,
    name          TEXT NOT NULL,
    price         NUMERIC(12,2) NOT NULL DEFAULT 0,
    description   TEXT NOT NULL DEFAULT '',
    image_count   INTEGER NOT NULL DEFAULT 0,
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS ` + SettingsTable + ` (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Setting is one key/value row of the settings table.
type Setting struct {
	Key   string
	Value string
}

// SeedSQL renders an idempotent upsert of the product catalog.
// imageCounts maps internal codes to the number of reconciled images; codes
// not present count as zero.
func SeedSQL(products []domain.Product, imageCounts map[string]int) string {
	var b strings.Builder
	b.WriteString("BEGIN;\n")
	b.WriteString(schemaSQL)
	for _, p := range products {
		fmt.Fprintf(&b,
			"INSERT INTO %s (internal_code, uuid, name, price, description, image_count) VALUES (%s, %s, %s, %s, %s, %d)\n"+
				"    ON CONFLICT (internal_code) DO UPDATE SET uuid = EXCLUDED.uuid, name = EXCLUDED.name, price = EXCLUDED.price,"+
				" description = EXCLUDED.description, image_count = EXCLUDED.image_count, updated_at = now();\n",
			CatalogTable,
			literal(p.InternalCode),
			nullable(p.UUID),
			literal(p.Name),
			strconv.FormatFloat(p.Price, 'f', 2, 64),
			literal(p.Description),
			imageCounts[p.InternalCode],
		)
	}
	b.WriteString("COMMIT;\n")
	return b.String()
}

// SettingsSQL renders an idempotent upsert of settings rows, sorted by key.
func SettingsSQL(settings []Setting) string {
	sorted := make([]Setting, len(settings))
	copy(sorted, settings)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	var b strings.Builder
	b.WriteString("BEGIN;\n")
	b.WriteString(schemaSQL)
	for _, s := range sorted {
		fmt.Fprintf(&b,
			"INSERT INTO %s (key, value) VALUES (%s, %s)\n"+
				"    ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now();\n",
			SettingsTable, literal(s.Key), literal(s.Value))
	}
	b.WriteString("COMMIT;\n")
	return b.String()
}

// PaymentSettings returns the settings recorded for the payment gateway.
// The access token is not stored here; it reaches the server as an environment variable.
func PaymentSettings(cfg domain.DeploymentConfig, webhookURL string) []Setting {
	settings := []Setting{
		{Key: "payment.gateway", Value: cfg.Payment.GatewayName()},
		{Key: "payment.test_mode", Value: strconv.FormatBool(cfg.Payment.TestMode)},
		{Key: "payment.webhook_url", Value: webhookURL},
	}
	if cfg.Payment.WebhookSecret != "" {
		settings = append(settings, Setting{Key: "payment.webhook_secret", Value: cfg.Payment.WebhookSecret})
	}
	return append(settings, extraSettings("payment", cfg.Payment.Extra)...)
}

// ThemeSettings returns the store identity and theme settings.
func ThemeSettings(cfg domain.DeploymentConfig) []Setting {
	settings := []Setting{
		{Key: "store.name", Value: cfg.Identity.Name},
		{Key: "store.slogan", Value: cfg.Identity.Slogan},
		{Key: "theme.school", Value: cfg.Design.School},
		{Key: "theme.primary_color", Value: cfg.Design.PrimaryColor},
		{Key: "theme.secondary_color", Value: cfg.Design.SecondaryColor},
		{Key: "theme.background_color", Value: cfg.Design.BackgroundColor},
		{Key: "theme.font_pair", Value: cfg.Design.FontPair},
	}
	settings = append(settings, extraSettings("store", cfg.Identity.Extra)...)
	settings = append(settings, extraSettings("theme", cfg.Design.Extra)...)
	if len(cfg.ImageMapping) > 0 {
		settings = append(settings, Setting{Key: "catalog.image_mapping", Value: jsonValue(cfg.ImageMapping)})
	}
	return settings
}

// extraSettings turns passthrough keys into settings under prefix.extra.
// Strings are stored as-is, everything else as JSON.
func extraSettings(prefix string, extra map[string]any) []Setting {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	settings := make([]Setting, 0, len(keys))
	for _, k := range keys {
		settings = append(settings, Setting{Key: prefix + ".extra." + k, Value: jsonValue(extra[k])})
	}
	return settings
}

func jsonValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// literal renders a SQL string literal. Standard-conforming strings are on
// by default in PostgreSQL, so doubling quotes is the only escape needed.
func literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func nullable(s string) string {
	if s == "" {
		return "NULL"
	}
	return literal(s)
}
