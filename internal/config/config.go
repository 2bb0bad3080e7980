// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr        string
	DBPath            string
	SessionID         string
	CredentialDir     string
	RemotePrefix      string
	HeartbeatInterval time.Duration
	APIToken          string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Secure    bool
}

// Load reads configuration from environment variables and returns a validated
// Config. The object storage endpoint and credentials (OTPGATE_S3_ENDPOINT,
// OTPGATE_S3_ACCESS_KEY, OTPGATE_S3_SECRET_KEY) are required: the credential
// bundle has no durable home without them. Optional variables with defaults:
// OTPGATE_LISTEN_ADDR (127.0.0.1:8080), OTPGATE_DB_PATH (otpgate.db),
// OTPGATE_SESSION_ID (primary), OTPGATE_CREDENTIAL_DIR (auth_state),
// OTPGATE_REMOTE_PREFIX (session id), OTPGATE_HEARTBEAT_INTERVAL (30s),
// OTPGATE_S3_BUCKET (wa-credentials), OTPGATE_S3_SECURE (true),
// OTPGATE_API_TOKEN (empty disables bearer auth).
func Load() (*Config, error) {
	endpoint := os.Getenv("OTPGATE_S3_ENDPOINT")
	if endpoint == "" {
		return nil, fmt.Errorf("OTPGATE_S3_ENDPOINT is required")
	}
	accessKey := os.Getenv("OTPGATE_S3_ACCESS_KEY")
	if accessKey == "" {
		return nil, fmt.Errorf("OTPGATE_S3_ACCESS_KEY is required")
	}
	secretKey := os.Getenv("OTPGATE_S3_SECRET_KEY")
	if secretKey == "" {
		return nil, fmt.Errorf("OTPGATE_S3_SECRET_KEY is required")
	}

	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("OTPGATE_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbPath := "otpgate.db"
	if v, ok := os.LookupEnv("OTPGATE_DB_PATH"); ok {
		dbPath = v
	}

	sessionID := "primary"
	if v, ok := os.LookupEnv("OTPGATE_SESSION_ID"); ok && v != "" {
		sessionID = v
	}

	credentialDir := "auth_state"
	if v, ok := os.LookupEnv("OTPGATE_CREDENTIAL_DIR"); ok && v != "" {
		credentialDir = v
	}

	remotePrefix := sessionID
	if v, ok := os.LookupEnv("OTPGATE_REMOTE_PREFIX"); ok && v != "" {
		remotePrefix = v
	}

	heartbeat := 30 * time.Second
	if v, ok := os.LookupEnv("OTPGATE_HEARTBEAT_INTERVAL"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("OTPGATE_HEARTBEAT_INTERVAL has invalid duration %q: %w", v, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("OTPGATE_HEARTBEAT_INTERVAL must be positive, got %q", v)
		}
		heartbeat = parsed
	}

	bucket := "wa-credentials"
	if v, ok := os.LookupEnv("OTPGATE_S3_BUCKET"); ok && v != "" {
		bucket = v
	}

	secure := true
	if v, ok := os.LookupEnv("OTPGATE_S3_SECURE"); ok {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("OTPGATE_S3_SECURE has invalid boolean %q: %w", v, err)
		}
		secure = parsed
	}

	return &Config{
		ListenAddr:        listenAddr,
		DBPath:            dbPath,
		SessionID:         sessionID,
		CredentialDir:     credentialDir,
		RemotePrefix:      remotePrefix,
		HeartbeatInterval: heartbeat,
		APIToken:          os.Getenv("OTPGATE_API_TOKEN"),
		S3Endpoint:        endpoint,
		S3AccessKey:       accessKey,
		S3SecretKey:       secretKey,
		S3Bucket:          bucket,
		S3Secure:          secure,
	}, nil
}
