package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName          string
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		FrontendBaseURL  string
		WorkDir          string
		RollbarToken     string
		SendgridApiKey   string
		defaultFromEmail string

		Server     ServerConfig
		Database   DatabaseConfig
		Redis      RedisConfig
		Storage    StorageConfig
		AI         AIConfig
		Evaluation EvaluationConfig
	}

	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		PasswordResetTimeoutDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		InMemory      bool
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
		TTL      time.Duration
	}

	StorageConfig struct {
		Driver          string // local | oss
		LocalDir        string
		PublicBaseURL   string
		SignedURLTTL    time.Duration
		OSSEndpoint     string
		OSSAccessKey    string
		OSSSecretKey    string
		OSSBucket       string
		OSSPrefix       string
		ReaperSchedule  string
		ReaperRetention time.Duration
	}

	AIConfig struct {
		Provider          string // openai | gemini
		ApiKey            string
		Model             string
		Temperature       float32
		Timeout           time.Duration
		MaxRetries        int
		RequestsPerSecond float64
	}

	EvaluationConfig struct {
		Schedule     string
		BatchSize    int
		MaxAttempts  int
		RetryBackoff time.Duration
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
}

func (db DatabaseConfig) Address() string {
	return db.Host + ":" + db.Port
}

// NewConfig loads the configuration from defaults, the env specific .env file (if any) and the environment.
func NewConfig() *Config {
	conf := viper.New()

	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "Tathmini")
	conf.SetDefault("build", "develop")
	conf.SetDefault("secretKey", "v9#k2-qpl)e0t$+71=ma&zo!x4(b!w)#*q8(#nd3^$hxjs1uy")
	conf.SetDefault("frontendBaseURL", "http://localhost:3000")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("rollbarToken", "")
	conf.SetDefault("sendgridApiKey", "")

	conf.SetDefault("serverHost", ":8000")
	conf.SetDefault("serverDebugHost", ":4000")
	conf.SetDefault("serverShutdownTimeout", 5*time.Second)
	conf.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)
	conf.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	conf.SetDefault("dbEngine", "postgres")
	conf.SetDefault("dbHost", "localhost")
	conf.SetDefault("dbPort", "5432")
	conf.SetDefault("dbName", "tathmini")
	conf.SetDefault("dbUser", "tathmini")
	conf.SetDefault("dbPassword", "tathmini")
	conf.SetDefault("dbAdminUser", "postgres")
	conf.SetDefault("dbAdminPassword", "postgres")
	conf.SetDefault("dbDisableTLS", true)
	conf.SetDefault("dbInMemory", false)

	conf.SetDefault("redisAddr", "")
	conf.SetDefault("redisPassword", "")
	conf.SetDefault("redisDB", 0)
	conf.SetDefault("redisTTL", 10*time.Minute)

	conf.SetDefault("storageDriver", "local")
	conf.SetDefault("storageLocalDir", "uploads")
	conf.SetDefault("storagePublicBaseURL", "http://localhost:8000/v1/files")
	conf.SetDefault("storageSignedURLTTL", 15*time.Minute)
	conf.SetDefault("ossEndpoint", "")
	conf.SetDefault("ossAccessKey", "")
	conf.SetDefault("ossSecretKey", "")
	conf.SetDefault("ossBucket", "")
	conf.SetDefault("ossPrefix", "")
	conf.SetDefault("reaperSchedule", "15 2 * * *")
	conf.SetDefault("reaperRetention", 7*24*time.Hour)

	conf.SetDefault("aiProvider", "openai")
	conf.SetDefault("aiApiKey", "")
	conf.SetDefault("aiModel", "gpt-4o-mini")
	conf.SetDefault("aiTemperature", 0.2)
	conf.SetDefault("aiTimeout", 90*time.Second)
	conf.SetDefault("aiMaxRetries", 2)
	conf.SetDefault("aiRequestsPerSecond", 2.0)

	conf.SetDefault("evaluationSchedule", "@every 30s")
	conf.SetDefault("evaluationBatchSize", 5)
	conf.SetDefault("evaluationMaxAttempts", 3)
	conf.SetDefault("evaluationRetryBackoff", time.Minute)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		conf.SetDefault("testMode", true)
		conf.SetDefault("dbInMemory", true)
	}
	conf.SetEnvPrefix(env)

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		AppName:          conf.GetString("appName"),
		Env:              env,
		Build:            conf.GetString("build"),
		Debug:            conf.GetBool("debug"),
		TestMode:         conf.GetBool("testMode"),
		SecretKey:        conf.GetString("secretKey"),
		FrontendBaseURL:  conf.GetString("frontendBaseURL"),
		WorkDir:          workDir,
		RollbarToken:     conf.GetString("rollbarToken"),
		SendgridApiKey:   conf.GetString("sendgridApiKey"),
		defaultFromEmail: conf.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:                      conf.GetString("serverHost"),
			DebugHost:                 conf.GetString("serverDebugHost"),
			ShutdownTimeout:           conf.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        conf.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("jwtRefreshExpirationDelta"),
			PasswordResetTimeoutDelta: conf.GetDuration("passwordResetTimeoutDelta"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("dbEngine"),
			Host:          conf.GetString("dbHost"),
			Port:          conf.GetString("dbPort"),
			Name:          conf.GetString("dbName"),
			User:          conf.GetString("dbUser"),
			Password:      conf.GetString("dbPassword"),
			AdminUser:     conf.GetString("dbAdminUser"),
			AdminPassword: conf.GetString("dbAdminPassword"),
			DisableTLS:    conf.GetBool("dbDisableTLS"),
			InMemory:      conf.GetBool("dbInMemory"),
		},
		Redis: RedisConfig{
			Addr:     conf.GetString("redisAddr"),
			Password: conf.GetString("redisPassword"),
			DB:       conf.GetInt("redisDB"),
			TTL:      conf.GetDuration("redisTTL"),
		},
		Storage: StorageConfig{
			Driver:          conf.GetString("storageDriver"),
			LocalDir:        conf.GetString("storageLocalDir"),
			PublicBaseURL:   conf.GetString("storagePublicBaseURL"),
			SignedURLTTL:    conf.GetDuration("storageSignedURLTTL"),
			OSSEndpoint:     conf.GetString("ossEndpoint"),
			OSSAccessKey:    conf.GetString("ossAccessKey"),
			OSSSecretKey:    conf.GetString("ossSecretKey"),
			OSSBucket:       conf.GetString("ossBucket"),
			OSSPrefix:       conf.GetString("ossPrefix"),
			ReaperSchedule:  conf.GetString("reaperSchedule"),
			ReaperRetention: conf.GetDuration("reaperRetention"),
		},
		AI: AIConfig{
			Provider:          conf.GetString("aiProvider"),
			ApiKey:            conf.GetString("aiApiKey"),
			Model:             conf.GetString("aiModel"),
			Temperature:       float32(conf.GetFloat64("aiTemperature")),
			Timeout:           conf.GetDuration("aiTimeout"),
			MaxRetries:        conf.GetInt("aiMaxRetries"),
			RequestsPerSecond: conf.GetFloat64("aiRequestsPerSecond"),
		},
		Evaluation: EvaluationConfig{
			Schedule:     conf.GetString("evaluationSchedule"),
			BatchSize:    conf.GetInt("evaluationBatchSize"),
			MaxAttempts:  conf.GetInt("evaluationMaxAttempts"),
			RetryBackoff: conf.GetDuration("evaluationRetryBackoff"),
		},
	}
}

// NewTestConfig returns a Config suitable for tests: no .env lookup, in-memory DB, local storage.
func NewTestConfig() *Config {
	return &Config{
		AppName:          "Tathmini",
		Env:              "TEST",
		Build:            "test",
		TestMode:         true,
		SecretKey:        "secret",
		FrontendBaseURL:  "http://localhost:3000",
		defaultFromEmail: "noreply@localhost",
		Server: ServerConfig{
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		},
		Database: DatabaseConfig{InMemory: true},
		Redis:    RedisConfig{TTL: time.Minute},
		Storage: StorageConfig{
			Driver:        "local",
			PublicBaseURL: "http://localhost:8000/v1/files",
			SignedURLTTL:  15 * time.Minute,
		},
		AI: AIConfig{
			Provider:   "openai",
			Model:      "gpt-4o-mini",
			Timeout:    time.Second,
			MaxRetries: 2,
		},
		Evaluation: EvaluationConfig{
			BatchSize:    5,
			MaxAttempts:  3,
			RetryBackoff: time.Minute,
		},
	}
}
