// Package config loads binary configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/Kapral67/FamilyDirectory-sub001/chain"
	"github.com/Kapral67/FamilyDirectory-sub001/engine"
	"github.com/Kapral67/FamilyDirectory-sub001/identity"
	"github.com/Kapral67/FamilyDirectory-sub001/store"
)

// Config is the full runtime configuration, read from the environment by Load.
type Config struct {
	Env       string
	HTTPPort  string
	LogLevel  string
	LogFormat string

	// DirectAppend makes the engine append change tokens itself instead of
	// leaving it to the Members table stream handler.
	DirectAppend bool

	HTTP     HTTPConfig
	AWS      AWSConfig
	Store    store.Config
	Engine   engine.Config
	Chain    chain.Config
	Identity identity.Config
	Janitor  identity.JanitorConfig
}

// HTTPConfig holds the API server settings.
type HTTPConfig struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	// SubjectHeader carries the caller's external subject, set by the
	// fronting authorizer.
	SubjectHeader string
}

// AWSConfig selects the AWS region and endpoints.
type AWSConfig struct {
	Region string

	// DynamoEndpoint overrides the DynamoDB endpoint, e.g. for DynamoDB Local.
	DynamoEndpoint string
}

// Load reads an optional .env file and then the environment. Variables
// already set take precedence over the file.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	rootID := engine.DefaultRootID
	if raw := getEnv("FAMILYDIR_ROOT_ID", ""); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return Config{}, fmt.Errorf("FAMILYDIR_ROOT_ID: %w", err)
		}
		rootID = id
	}

	sd, ed, cd, id, jd := store.DefaultConfig(), engine.DefaultConfig(), chain.DefaultConfig(), identity.DefaultConfig(), identity.DefaultJanitorConfig()

	return Config{
		Env:          getEnv("ENV", "development"),
		HTTPPort:     getEnv("HTTP_PORT", "8080"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "text"),
		DirectAppend: getEnvBool("FAMILYDIR_DIRECT_APPEND", false),
		HTTP: HTTPConfig{
			RequestTimeout:  getEnvDuration("HTTP_REQUEST_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
			SubjectHeader:   getEnv("AUTH_SUBJECT_HEADER", "X-Subject"),
		},
		AWS: AWSConfig{
			Region:         getEnv("AWS_REGION", "us-west-2"),
			DynamoEndpoint: getEnv("DYNAMODB_ENDPOINT", ""),
		},
		Store: store.Config{
			MembersTable:     getEnv("FAMILYDIR_MEMBERS_TABLE", sd.MembersTable),
			FamiliesTable:    getEnv("FAMILYDIR_FAMILIES_TABLE", sd.FamiliesTable),
			TokensTable:      getEnv("FAMILYDIR_TOKENS_TABLE", sd.TokensTable),
			UniqueTable:      getEnv("FAMILYDIR_UNIQUE_TABLE", sd.UniqueTable),
			EmailIndex:       getEnv("FAMILYDIR_EMAIL_INDEX", sd.EmailIndex),
			MaxTransactItems: getEnvInt("FAMILYDIR_MAX_TRANSACT_ITEMS", sd.MaxTransactItems),
		},
		Engine: engine.Config{
			RootID:     rootID,
			MaxRetries: uint64(getEnvInt("FAMILYDIR_ENGINE_MAX_RETRIES", int(ed.MaxRetries))),
			RetryBase:  getEnvDuration("FAMILYDIR_ENGINE_RETRY_BASE", ed.RetryBase),
			RetryCap:   getEnvDuration("FAMILYDIR_ENGINE_RETRY_CAP", ed.RetryCap),
		},
		Chain: chain.Config{
			Retention:  getEnvDuration("FAMILYDIR_TOKEN_RETENTION", cd.Retention),
			MaxRetries: uint64(getEnvInt("FAMILYDIR_CHAIN_MAX_RETRIES", int(cd.MaxRetries))),
			RetryBase:  getEnvDuration("FAMILYDIR_CHAIN_RETRY_BASE", cd.RetryBase),
		},
		Identity: identity.Config{
			BindingsTable:   getEnv("FAMILYDIR_IDENTITIES_TABLE", id.BindingsTable),
			MemberIndex:     getEnv("FAMILYDIR_IDENTITIES_MEMBER_INDEX", id.MemberIndex),
			DeadLetterTable: getEnv("FAMILYDIR_UNBIND_DEAD_LETTER_TABLE", id.DeadLetterTable),
		},
		Janitor: identity.JanitorConfig{
			MaxRetries: uint64(getEnvInt("FAMILYDIR_UNBIND_MAX_RETRIES", int(jd.MaxRetries))),
			RetryBase:  getEnvDuration("FAMILYDIR_UNBIND_RETRY_BASE", jd.RetryBase),
			RetryCap:   getEnvDuration("FAMILYDIR_UNBIND_RETRY_CAP", jd.RetryCap),
		},
	}, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
