package resources

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"

	"github.com/richard-senior/forecast/internal/logger"
	"github.com/richard-senior/forecast/pkg/protocol"
	"github.com/richard-senior/forecast/pkg/util/forecast"
	"gopkg.in/yaml.v3"
)

const (
	ConfigURI        = "forecast://config"
	QualificationURI = "forecast://qualification"
)

// Reader renders a resource's current content
type Reader func() (protocol.ResourceContent, error)

// Definition pairs a published resource with the function that reads it
type Definition struct {
	Resource protocol.Resource
	Read     Reader
}

// ConfigResource publishes the active forecast configuration as YAML, in the
// same shape LoadConfig accepts. Tracker credentials are masked.
func ConfigResource(cfg *forecast.ForecastConfig) Definition {
	logger.Info("Creating config resource")
	snapshot := cfg.Clone()
	snapshot.TrackerDSN = redactDSN(snapshot.TrackerDSN)
	return Definition{
		Resource: protocol.Resource{
			URI:         ConfigURI,
			Name:        "forecast_config",
			Description: "The forecasting configuration in use: elite rosters, outcome tables, simulation limits and synthetic data constants",
			MimeType:    "application/yaml",
		},
		Read: func() (protocol.ResourceContent, error) {
			b, err := yaml.Marshal(snapshot)
			if err != nil {
				return protocol.ResourceContent{}, fmt.Errorf("failed to render config: %w", err)
			}
			return protocol.ResourceContent{URI: ConfigURI, MimeType: "application/yaml", Text: string(b)}, nil
		},
	}
}

const redacted = "xxxxx"

var passwordPair = regexp.MustCompile(`(?i)(password\s*=\s*)('[^']*'|[^\s&]+)`)

// redactDSN masks the password of a postgres URL or key=value DSN. SQLite
// paths pass through unchanged.
func redactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
		if u.User != nil {
			if _, ok := u.User.Password(); ok {
				u.User = url.UserPassword(u.User.Username(), redacted)
			}
		}
		if q := u.Query(); q.Has("password") {
			q.Set("password", redacted)
			u.RawQuery = q.Encode()
		}
		return u.String()
	}
	return passwordPair.ReplaceAllString(dsn, "${1}"+redacted)
}

// QualificationResource publishes the qualification zone table as JSON
func QualificationResource(cfg *forecast.ForecastConfig) Definition {
	table := forecast.NewQualificationTable(cfg.Qualification)
	return Definition{
		Resource: protocol.Resource{
			URI:         QualificationURI,
			Name:        "qualification_zones",
			Description: "Qualification zones per competition, keyed by competition id",
			MimeType:    "application/json",
		},
		Read: func() (protocol.ResourceContent, error) {
			policies := make(map[string]forecast.QualificationPolicy)
			for _, c := range table.Competitions() {
				p, err := table.Policy(c)
				if err != nil {
					return protocol.ResourceContent{}, err
				}
				policies[c] = p
			}
			b, err := json.MarshalIndent(policies, "", "  ")
			if err != nil {
				return protocol.ResourceContent{}, fmt.Errorf("failed to render qualification zones: %w", err)
			}
			return protocol.ResourceContent{URI: QualificationURI, MimeType: "application/json", Text: string(b)}, nil
		},
	}
}

// GetResources returns all available resources
func GetResources(cfg *forecast.ForecastConfig) []Definition {
	return []Definition{
		ConfigResource(cfg),
		QualificationResource(cfg),
	}
}
