// Package config loads the process configuration from the environment and an
// optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configDevMode                 = "dev_mode"
	configPort                    = "port"
	configLogLevel                = "log_level"
	configFrontendURL             = "frontend_url"
	configFile                    = "config_file"
	configGoogleClientID          = "google_client_id"
	configGoogleRedirectURL       = "google_redirect_url"
	configGoogleClientSecretFile  = "google_client_secret_file"
	configGoogleClientSecretParam = "google_client_secret_param"
	configJWTSecretParam          = "jwt_secret_param"
	configAPIGatewaySecretParam   = "api_gateway_secret_param"
	configUserTokensTable         = "user_tokens_table"
	configAuthStatesTable         = "auth_states_table"
	configRecordsTable            = "records_table"
	configKMSKeyID                = "kms_key_id"
	configCredentialStore         = "credential_store"
	configTokenDir                = "token_dir"
	configRecordStore             = "record_store"
	configDatabaseDriver          = "database_driver"
	configDatabaseDSN             = "database_dsn"
	configDriveBackend            = "drive_backend"
	configDriveSharePolicy        = "drive_share_policy"
	configServiceAccountFile      = "service_account_file"
	configUploadFolderID          = "upload_folder_id"
	configStateTTL                = "auth_state_ttl"
	configRefreshTimeout          = "refresh_timeout"
	configMarkdownStyle           = "markdown_style"
	configMarkdownHardWraps       = "markdown_hard_wraps"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
	BackendFile     = "file"
	BackendSQL      = "sql"
	BackendGoogle   = "google"
)

// Config is the resolved process configuration. Secrets are not part of it;
// only the names of the parameters that hold them.
type Config struct {
	DevMode     bool
	Port        int
	LogLevel    string
	FrontendURL string

	GoogleClientID         string
	GoogleRedirectURL      string
	GoogleClientSecretFile string

	GoogleClientSecretParam string
	JWTSecretParam          string
	APIGatewaySecretParam   string

	UserTokensTable string
	AuthStatesTable string
	RecordsTable    string
	KMSKeyID        string

	CredentialStore string
	TokenDir        string

	RecordStore    string
	DatabaseDriver string
	DatabaseDSN    string

	DriveBackend       string
	SharePolicy        string
	ServiceAccountFile string
	UploadFolderID     string

	StateTTL       time.Duration
	RefreshTimeout time.Duration

	// MarkdownStyle is the chroma style of code blocks in rendered descriptions.
	MarkdownStyle     string
	MarkdownHardWraps bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(configDevMode, false)
	v.SetDefault(configPort, 8080)
	v.SetDefault(configLogLevel, "info")
	v.SetDefault(configFrontendURL, "http://localhost:3000")
	v.SetDefault(configGoogleClientSecretParam, "/apiautome/google-client-secret")
	v.SetDefault(configJWTSecretParam, "/apiautome/jwt-secret")
	v.SetDefault(configAPIGatewaySecretParam, "/apiautome/api-gateway-secret")
	v.SetDefault(configUserTokensTable, "UserTokens")
	v.SetDefault(configAuthStatesTable, "AuthStates")
	v.SetDefault(configRecordsTable, "Records")
	v.SetDefault(configKMSKeyID, "alias/apiautome-token-key")
	v.SetDefault(configTokenDir, "tokens")
	v.SetDefault(configDatabaseDriver, "sqlite")
	v.SetDefault(configDatabaseDSN, "file:apiautome.db?_pragma=foreign_keys(1)")
	v.SetDefault(configDriveSharePolicy, "stop")
	v.SetDefault(configStateTTL, 10*time.Minute)
	v.SetDefault(configRefreshTimeout, 15*time.Second)
	v.SetDefault(configMarkdownStyle, "github")
	v.SetDefault(configMarkdownHardWraps, true)
}

// Load reads the configuration. Environment variables take precedence over the
// file named by CONFIG_FILE, which takes precedence over defaults.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := v.GetString(configFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		DevMode:     v.GetBool(configDevMode),
		Port:        v.GetInt(configPort),
		LogLevel:    v.GetString(configLogLevel),
		FrontendURL: v.GetString(configFrontendURL),

		GoogleClientID:         v.GetString(configGoogleClientID),
		GoogleRedirectURL:      v.GetString(configGoogleRedirectURL),
		GoogleClientSecretFile: v.GetString(configGoogleClientSecretFile),

		GoogleClientSecretParam: v.GetString(configGoogleClientSecretParam),
		JWTSecretParam:          v.GetString(configJWTSecretParam),
		APIGatewaySecretParam:   v.GetString(configAPIGatewaySecretParam),

		UserTokensTable: v.GetString(configUserTokensTable),
		AuthStatesTable: v.GetString(configAuthStatesTable),
		RecordsTable:    v.GetString(configRecordsTable),
		KMSKeyID:        v.GetString(configKMSKeyID),

		CredentialStore: strings.ToLower(v.GetString(configCredentialStore)),
		TokenDir:        v.GetString(configTokenDir),

		RecordStore:    strings.ToLower(v.GetString(configRecordStore)),
		DatabaseDriver: v.GetString(configDatabaseDriver),
		DatabaseDSN:    v.GetString(configDatabaseDSN),

		DriveBackend:       strings.ToLower(v.GetString(configDriveBackend)),
		SharePolicy:        strings.ToLower(v.GetString(configDriveSharePolicy)),
		ServiceAccountFile: v.GetString(configServiceAccountFile),
		UploadFolderID:     v.GetString(configUploadFolderID),

		StateTTL:       v.GetDuration(configStateTTL),
		RefreshTimeout: v.GetDuration(configRefreshTimeout),

		MarkdownStyle:     v.GetString(configMarkdownStyle),
		MarkdownHardWraps: v.GetBool(configMarkdownHardWraps),
	}

	cfg.applyModeDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyModeDefaults fills the backend choices left empty. Dev mode runs fully
// in memory, production uses the AWS and Google backends.
func (c *Config) applyModeDefaults() {
	if c.CredentialStore == "" {
		c.CredentialStore = BackendDynamoDB
		if c.DevMode {
			c.CredentialStore = BackendMemory
		}
	}
	if c.RecordStore == "" {
		c.RecordStore = BackendDynamoDB
		if c.DevMode {
			c.RecordStore = BackendMemory
		}
	}
	if c.DriveBackend == "" {
		c.DriveBackend = BackendGoogle
		if c.DevMode {
			c.DriveBackend = BackendMemory
		}
	}
	if c.GoogleRedirectURL == "" {
		c.GoogleRedirectURL = fmt.Sprintf("http://localhost:%d/drive/oauth2callback/", c.Port)
		if !c.DevMode {
			c.GoogleRedirectURL = strings.TrimSuffix(c.FrontendURL, "/") + "/api/drive/oauth2callback/"
		}
	}
}

func (c *Config) validate() error {
	switch c.CredentialStore {
	case BackendMemory, BackendDynamoDB, BackendFile:
	default:
		return fmt.Errorf("unknown credential store %q", c.CredentialStore)
	}
	switch c.RecordStore {
	case BackendMemory, BackendDynamoDB, BackendSQL:
	default:
		return fmt.Errorf("unknown record store %q", c.RecordStore)
	}
	switch c.DriveBackend {
	case BackendMemory, BackendGoogle:
	default:
		return fmt.Errorf("unknown drive backend %q", c.DriveBackend)
	}
	switch c.SharePolicy {
	case "stop", "continue":
	default:
		return fmt.Errorf("unknown share policy %q", c.SharePolicy)
	}
	if c.RecordStore == BackendSQL && c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required for the sql record store")
	}
	return nil
}
