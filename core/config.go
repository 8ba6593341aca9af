package core

import (
	"log"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug        bool
		TestMode     bool
		Env          string // DEV (local; default), TEST, QA, PROD
		Build        string
		AppName      string
		SecretKey    string
		RollbarToken string
		WorkDir      string

		Server    ServerConfig
		Database  DatabaseConfig
		Readiness ReadinessConfig
	}

	ServerConfig struct {
		Address            string
		Host               string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine     string // postgres | sqlite3
		Host       string
		Port       string
		Name       string // database name, or file path for sqlite3
		User       string
		Password   string
		DisableTLS bool
	}

	ReadinessConfig struct {
		OverdueAfter        time.Duration
		StaleMetricsAfter   time.Duration
		StagnantAfter       time.Duration
		NewlyReadyWindow    time.Duration
		RegressionTolerance float64
		EvaluationTimeout   time.Duration
		BatchConcurrency    int
		DefaultAlertLimit   int
	}
)

const day = 24 * time.Hour

// NewConfig loads the configuration from defaults, an optional `config/.env.<env>` file and the environment.
// Environment variables are prefixed with the upper-cased ENV value, eg. PROD_DATABASE_HOST.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Ekklesia")
	v.SetDefault("secretKey", "k2v+9zq(8l$dn1!xw@u4r0e7&h5p#c3b=yj6m*g)fa-so_ti")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*day)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "ekklesia")
	v.SetDefault("database.user", "ekklesia")
	v.SetDefault("database.password", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("readiness.overdueAfter", 60*day)
	v.SetDefault("readiness.staleMetricsAfter", 30*day)
	v.SetDefault("readiness.stagnantAfter", 30*day)
	v.SetDefault("readiness.newlyReadyWindow", 7*day)
	v.SetDefault("readiness.regressionTolerance", 5.0)
	v.SetDefault("readiness.evaluationTimeout", 5*time.Second)
	v.SetDefault("readiness.batchConcurrency", 8)
	v.SetDefault("readiness.defaultAlertLimit", 20)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	workDir := Getwd()
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		Env:          env,
		Build:        v.GetString("build"),
		AppName:      v.GetString("appName"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		WorkDir:      workDir,
		Server: ServerConfig{
			Address:            v.GetString("server.address"),
			Host:               v.GetString("server.host"),
			DebugHost:          v.GetString("server.debugHost"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:     v.GetString("database.engine"),
			Host:       v.GetString("database.host"),
			Port:       v.GetString("database.port"),
			Name:       v.GetString("database.name"),
			User:       v.GetString("database.user"),
			Password:   v.GetString("database.password"),
			DisableTLS: v.GetBool("database.disableTLS"),
		},
		Readiness: ReadinessConfig{
			OverdueAfter:        v.GetDuration("readiness.overdueAfter"),
			StaleMetricsAfter:   v.GetDuration("readiness.staleMetricsAfter"),
			StagnantAfter:       v.GetDuration("readiness.stagnantAfter"),
			NewlyReadyWindow:    v.GetDuration("readiness.newlyReadyWindow"),
			RegressionTolerance: v.GetFloat64("readiness.regressionTolerance"),
			EvaluationTimeout:   v.GetDuration("readiness.evaluationTimeout"),
			BatchConcurrency:    v.GetInt("readiness.batchConcurrency"),
			DefaultAlertLimit:   v.GetInt("readiness.defaultAlertLimit"),
		},
	}
}

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

// DSN returns the data source name for sql.Open.
func (dbc DatabaseConfig) DSN() string {
	if dbc.Engine == "sqlite3" {
		if strings.Contains(dbc.Name, "?") {
			return dbc.Name
		}
		return dbc.Name + "?_foreign_keys=on"
	}

	sslMode := "require"
	if dbc.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   dbc.Engine,
		User:     url.UserPassword(dbc.User, dbc.Password),
		Host:     dbc.Address(),
		Path:     dbc.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}
