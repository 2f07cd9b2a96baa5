package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Decoding Errors
// =============================================================================

var (
	ErrUnknownMode      = errors.New("unknown deployment mode")
	ErrInvalidFieldType = errors.New("invalid field type")
)

// =============================================================================
// Wire Format
// =============================================================================

// deploymentConfigWire is the serialized shape of DeploymentConfig.
// The target variant is carried as mode + server.
type deploymentConfigWire struct {
	Mode            Mode           `json:"mode" yaml:"mode"`
	Server          *RemoteTarget  `json:"server,omitempty" yaml:"server,omitempty"`
	Identity        Identity       `json:"identity" yaml:"identity"`
	Design          Design         `json:"design" yaml:"design"`
	Payment         Payment        `json:"payment" yaml:"payment"`
	Products        []Product      `json:"products" yaml:"products"`
	ImagesDirectory string         `json:"imagesDirectory,omitempty" yaml:"imagesDirectory,omitempty"`
	ImageMapping    map[string]any `json:"imagesMapping,omitempty" yaml:"imagesMapping,omitempty"`
}

// newWire presets defaults that survive an absent section.
func newWire() deploymentConfigWire {
	return deploymentConfigWire{Payment: Payment{TestMode: true}}
}

func (w deploymentConfigWire) toConfig() (DeploymentConfig, error) {
	cfg := DeploymentConfig{
		Identity:        w.Identity,
		Design:          w.Design,
		Payment:         w.Payment,
		Products:        w.Products,
		ImagesDirectory: w.ImagesDirectory,
		ImageMapping:    w.ImageMapping,
	}

	mode := Mode(strings.ToLower(string(w.Mode)))
	if mode == "" {
		mode = ModeLocal
		if w.Server != nil && w.Server.Host != "" {
			mode = ModeRemote
		}
	}

	switch mode {
	case ModeLocal:
		cfg.Target = LocalTarget{}
	case ModeRemote:
		var remote RemoteTarget
		if w.Server != nil {
			remote = *w.Server
		}
		cfg.Target = remote
	default:
		return DeploymentConfig{}, fmt.Errorf("%w: %q", ErrUnknownMode, w.Mode)
	}
	return cfg, nil
}

func wireFromConfig(c DeploymentConfig) deploymentConfigWire {
	w := deploymentConfigWire{
		Mode:            c.Mode(),
		Identity:        c.Identity,
		Design:          c.Design,
		Payment:         c.Payment,
		Products:        c.Products,
		ImagesDirectory: c.ImagesDirectory,
		ImageMapping:    c.ImageMapping,
	}
	if remote, ok := c.Remote(); ok {
		w.Server = &remote
	}
	return w
}

// UnmarshalJSON decodes the mode/server wire form into the Target variant.
func (c *DeploymentConfig) UnmarshalJSON(data []byte) error {
	w := newWire()
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	cfg, err := w.toConfig()
	if err != nil {
		return err
	}
	*c = cfg
	return nil
}

// MarshalJSON encodes the Target variant as mode/server.
func (c DeploymentConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireFromConfig(c))
}

// UnmarshalYAML decodes the mode/server wire form into the Target variant.
func (c *DeploymentConfig) UnmarshalYAML(value *yaml.Node) error {
	w := newWire()
	if err := value.Decode(&w); err != nil {
		return err
	}
	cfg, err := w.toConfig()
	if err != nil {
		return err
	}
	*c = cfg
	return nil
}

// =============================================================================
// Sections With Passthrough
// =============================================================================

// Known keys per section. Anything else lands in Extra untouched.
const (
	keyName            = "name"
	keySlogan          = "slogan"
	keySchool          = "school"
	keyPrimaryColor    = "primaryColor"
	keySecondaryColor  = "secondaryColor"
	keyBackgroundColor = "backgroundColor"
	keyFontPair        = "fontPair"
	keyGateway         = "gateway"
	keyAccessToken     = "accessToken"
	keyMercadoPago     = "mercadoPagoToken"
	keyWebhookSecret   = "webhookSecret"
	keyTestMode        = "testMode"
)

// sectionFields extracts known keys from a decoded section and keeps the rest.
type sectionFields struct {
	section string
	raw     map[string]any
	err     error
}

func (s *sectionFields) str(key string) string {
	v, ok := s.raw[key]
	if !ok {
		return ""
	}
	delete(s.raw, key)
	if v == nil {
		return ""
	}
	str, ok := v.(string)
	if !ok && s.err == nil {
		s.err = fmt.Errorf("%w: %s.%s must be a string", ErrInvalidFieldType, s.section, key)
	}
	return str
}

func (s *sectionFields) boolean(key string, def bool) bool {
	v, ok := s.raw[key]
	if !ok {
		return def
	}
	delete(s.raw, key)
	if v == nil {
		return def
	}
	b, ok := v.(bool)
	if !ok && s.err == nil {
		s.err = fmt.Errorf("%w: %s.%s must be a boolean", ErrInvalidFieldType, s.section, key)
	}
	return b
}

func (s *sectionFields) extra() map[string]any {
	if len(s.raw) == 0 {
		return nil
	}
	return s.raw
}

func (i *Identity) fromMap(raw map[string]any) error {
	f := sectionFields{section: "identity", raw: raw}
	*i = Identity{
		Name:   f.str(keyName),
		Slogan: f.str(keySlogan),
	}
	i.Extra = f.extra()
	return f.err
}

func (i Identity) toMap() map[string]any {
	m := copyExtra(i.Extra)
	m[keyName] = i.Name
	m[keySlogan] = i.Slogan
	return m
}

func (d *Design) fromMap(raw map[string]any) error {
	f := sectionFields{section: "design", raw: raw}
	*d = Design{
		School:          f.str(keySchool),
		PrimaryColor:    f.str(keyPrimaryColor),
		SecondaryColor:  f.str(keySecondaryColor),
		BackgroundColor: f.str(keyBackgroundColor),
		FontPair:        f.str(keyFontPair),
	}
	d.Extra = f.extra()
	return f.err
}

func (d Design) toMap() map[string]any {
	m := copyExtra(d.Extra)
	m[keySchool] = d.School
	m[keyPrimaryColor] = d.PrimaryColor
	m[keySecondaryColor] = d.SecondaryColor
	m[keyBackgroundColor] = d.BackgroundColor
	m[keyFontPair] = d.FontPair
	return m
}

// fromMap accepts both accessToken and the legacy mercadoPagoToken key.
// Test mode defaults to true, matching how the store wizard starts.
func (p *Payment) fromMap(raw map[string]any) error {
	f := sectionFields{section: "payment", raw: raw}
	*p = Payment{
		Gateway:       f.str(keyGateway),
		AccessToken:   f.str(keyAccessToken),
		WebhookSecret: f.str(keyWebhookSecret),
		TestMode:      f.boolean(keyTestMode, true),
	}
	if legacy := f.str(keyMercadoPago); p.AccessToken == "" {
		p.AccessToken = legacy
	}
	p.Extra = f.extra()
	return f.err
}

func (p Payment) toMap() map[string]any {
	m := copyExtra(p.Extra)
	m[keyGateway] = p.Gateway
	m[keyAccessToken] = p.AccessToken
	m[keyWebhookSecret] = p.WebhookSecret
	m[keyTestMode] = p.TestMode
	return m
}

func copyExtra(extra map[string]any) map[string]any {
	m := make(map[string]any, len(extra)+5)
	for k, v := range extra {
		m[k] = v
	}
	return m
}

func decodeJSONSection(data []byte, into func(map[string]any) error) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return into(raw)
}

func decodeYAMLSection(value *yaml.Node, into func(map[string]any) error) error {
	var raw map[string]any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return into(raw)
}

func (i *Identity) UnmarshalJSON(data []byte) error { return decodeJSONSection(data, i.fromMap) }
func (i *Identity) UnmarshalYAML(v *yaml.Node) error { return decodeYAMLSection(v, i.fromMap) }
func (i Identity) MarshalJSON() ([]byte, error)      { return json.Marshal(i.toMap()) }

func (d *Design) UnmarshalJSON(data []byte) error { return decodeJSONSection(data, d.fromMap) }
func (d *Design) UnmarshalYAML(v *yaml.Node) error { return decodeYAMLSection(v, d.fromMap) }
func (d Design) MarshalJSON() ([]byte, error)      { return json.Marshal(d.toMap()) }

func (p *Payment) UnmarshalJSON(data []byte) error { return decodeJSONSection(data, p.fromMap) }
func (p *Payment) UnmarshalYAML(v *yaml.Node) error { return decodeYAMLSection(v, p.fromMap) }
func (p Payment) MarshalJSON() ([]byte, error)      { return json.Marshal(p.toMap()) }
