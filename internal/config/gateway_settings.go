package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// GatewaySettings is the static gateway configuration loaded from the settings file.
type GatewaySettings struct {
	// ResourceProxy is the public origin of the gateway. Forwarded headers sent to
	// backends carry this origin instead of the original client's.
	ResourceProxy  string                  `yaml:"resourceProxy" validate:"omitempty,url"`
	Authentication *AuthenticationSettings `yaml:"authentication" validate:"omitempty"`
	Routing        RoutingSettings         `yaml:"routing"`
}

// AuthenticationSettings configures the identity provider used for user sessions.
type AuthenticationSettings struct {
	Authority               string `yaml:"authority" validate:"required,url"`
	ClientID                string `yaml:"clientId" validate:"required"`
	ClientSecret            string `yaml:"clientSecret"`
	AuthorizationCodeScopes string `yaml:"authorizationCodeScopes"`
}

type RoutingSettings struct {
	Routes map[string]RouteSettings `yaml:"routes" validate:"dive"`
}

// RouteSettings describes one backend route keyed by its route key.
type RouteSettings struct {
	PathMatch              string            `yaml:"pathMatch"`
	BaseURL                string            `yaml:"baseUrl" validate:"omitempty,url"`
	AuthenticationStrategy string            `yaml:"authenticationStrategy"`
	Options                map[string]string `yaml:"options"`
}

// RouteKeys returns the configured route keys in a stable order.
func (r RoutingSettings) RouteKeys() []string {
	keys := make([]string, 0, len(r.Routes))
	for k := range r.Routes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LoadSettings reads, expands and validates the settings file at path.
func LoadSettings(path string) (*GatewaySettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway settings: %w", err)
	}
	return ParseSettings(data)
}

// ParseSettings parses YAML settings. ${VAR} references are expanded from the
// environment so secrets can stay out of the file.
func ParseSettings(data []byte) (*GatewaySettings, error) {
	var settings GatewaySettings
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &settings); err != nil {
		return nil, fmt.Errorf("failed to parse gateway settings: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&settings); err != nil {
		return nil, fmt.Errorf("invalid gateway settings: %w", err)
	}
	return &settings, nil
}
