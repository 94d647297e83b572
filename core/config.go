package core

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	SecurityConfig struct {
		// AdminPassword is either the plaintext shared secret or a bcrypt hash of it.
		AdminPassword    string `mapstructure:"adminPassword" validate:"required"`
		MaxLoginAttempts int    `mapstructure:"maxLoginAttempts" validate:"gte=1"`
	}

	GradesConfig struct {
		PassingThreshold float64 `mapstructure:"passingThreshold" validate:"gt=0,lte=10"`
	}

	StorageConfig struct {
		Driver    string `mapstructure:"driver" validate:"oneof=sheet sqlite postgres memory"`
		SheetPath string `mapstructure:"sheetPath" validate:"required_if=Driver sheet"`
		Lock      bool   `mapstructure:"lock"`
	}

	DatabaseConfig struct {
		Host       string `mapstructure:"host"`
		Port       int    `mapstructure:"port"`
		Name       string `mapstructure:"name"`
		User       string `mapstructure:"user"`
		Password   string `mapstructure:"password"`
		DisableTLS bool   `mapstructure:"disableTLS"`
		// Path is the SQLite database file.
		Path string `mapstructure:"path"`
	}

	S3Config struct {
		Bucket    string `mapstructure:"bucket"`
		Region    string `mapstructure:"region"`
		Endpoint  string `mapstructure:"endpoint"`
		PathStyle bool   `mapstructure:"pathStyle"`
		// static credentials; the default AWS chain is used when empty
		AccessKeyID     string `mapstructure:"accessKeyID"`
		SecretAccessKey string `mapstructure:"secretAccessKey"`
	}

	BackupConfig struct {
		Enabled bool     `mapstructure:"enabled"`
		Driver  string   `mapstructure:"driver" validate:"oneof=fs s3 memory"`
		Dir     string   `mapstructure:"dir"`
		Max     int      `mapstructure:"max" validate:"gte=1"`
		S3      S3Config `mapstructure:"s3"`
	}

	LogConfig struct {
		Enabled bool   `mapstructure:"enabled"`
		Dir     string `mapstructure:"dir"`
	}

	SMTPConfig struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
	}

	MailConfig struct {
		Transport      string        `mapstructure:"transport" validate:"oneof=console smtp sendgrid"`
		FromEmail      string        `mapstructure:"fromEmail" validate:"omitempty,email"`
		FromName       string        `mapstructure:"fromName"`
		SMTP           SMTPConfig    `mapstructure:"smtp"`
		SendgridApiKey string        `mapstructure:"sendgridApiKey"`
		SendDelay      time.Duration `mapstructure:"sendDelay"`
	}

	ReportsConfig struct {
		Dir string `mapstructure:"dir"`
	}

	UIConfig struct {
		Colors      bool `mapstructure:"colors"`
		ClearScreen bool `mapstructure:"clearScreen"`
	}

	Config struct {
		Env          string         `mapstructure:"env"`
		Debug        bool           `mapstructure:"debug"`
		AppName      string         `mapstructure:"appName"`
		Build        string         `mapstructure:"build"`
		RollbarToken string         `mapstructure:"rollbarToken"`
		Security     SecurityConfig `mapstructure:"security"`
		Grades       GradesConfig   `mapstructure:"grades"`
		Storage      StorageConfig  `mapstructure:"storage"`
		Database     DatabaseConfig `mapstructure:"database"`
		Backup       BackupConfig   `mapstructure:"backup"`
		Log          LogConfig      `mapstructure:"log"`
		Mail         MailConfig     `mapstructure:"mail"`
		Reports      ReportsConfig  `mapstructure:"reports"`
		UI           UIConfig       `mapstructure:"ui"`
	}
)

// DefaultFromEmail returns the sender shown on outgoing grade reports.
func (c *Config) DefaultFromEmail() (name, address string) {
	name = c.Mail.FromName
	if name == "" {
		name = c.AppName
	}
	address = c.Mail.FromEmail
	if address == "" {
		address = c.Mail.SMTP.Username
	}
	return name, address
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("env", "DEV")
	v.SetDefault("debug", false)
	v.SetDefault("appName", "Gradebook")
	v.SetDefault("build", "dev")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("security.adminPassword", "admin123")
	v.SetDefault("security.maxLoginAttempts", 3)

	v.SetDefault("grades.passingThreshold", 6.0)

	v.SetDefault("storage.driver", "sheet")
	v.SetDefault("storage.sheetPath", "grupo001.xlsx")
	v.SetDefault("storage.lock", true)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "gradebook")
	v.SetDefault("database.user", "gradebook")
	v.SetDefault("database.password", "")
	v.SetDefault("database.disableTLS", false)
	v.SetDefault("database.path", "gradebook.db")

	v.SetDefault("backup.enabled", true)
	v.SetDefault("backup.driver", "fs")
	v.SetDefault("backup.dir", "backups")
	v.SetDefault("backup.max", 10)
	v.SetDefault("backup.s3.bucket", "")
	v.SetDefault("backup.s3.region", "us-east-1")
	v.SetDefault("backup.s3.endpoint", "")
	v.SetDefault("backup.s3.pathStyle", false)
	v.SetDefault("backup.s3.accessKeyID", "")
	v.SetDefault("backup.s3.secretAccessKey", "")

	v.SetDefault("log.enabled", true)
	v.SetDefault("log.dir", "logs")

	v.SetDefault("mail.transport", "console")
	v.SetDefault("mail.fromEmail", "")
	v.SetDefault("mail.fromName", "")
	v.SetDefault("mail.smtp.host", "smtp.gmail.com")
	v.SetDefault("mail.smtp.port", 587)
	v.SetDefault("mail.smtp.username", "")
	v.SetDefault("mail.smtp.password", "")
	v.SetDefault("mail.sendgridApiKey", "")
	v.SetDefault("mail.sendDelay", time.Second)

	v.SetDefault("reports.dir", "reports")

	v.SetDefault("ui.colors", true)
	v.SetDefault("ui.clearScreen", true)
}

// NewConfig resolves the configuration from defaults, an optional config file,
// an optional config/.env.<env> file and GRADEBOOK_* environment variables, in that order of precedence.
func NewConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (default), TEST, PROD
	if env == "" {
		env = "DEV"
	}
	v.Set("env", env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "stat %s", dotEnvPath)
	}

	if path := os.Getenv("GRADEBOOK_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gradebook")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "reading config file")
		}
	}

	v.SetEnvPrefix("GRADEBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return decodeConfig(v)
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	validate, translator := NewValidator()
	if err := validate.Struct(conf); err != nil {
		return nil, TranslateValidationErrors(err, translator, errors.New("invalid config"))
	}
	return &conf, nil
}

// NewTestConfig returns the default configuration with every output directed to throwaway locations.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v)
	v.Set("env", "TEST")
	v.Set("storage.driver", "memory")
	v.Set("storage.lock", false)
	v.Set("backup.driver", "memory")
	v.Set("log.enabled", false)
	v.Set("mail.sendDelay", time.Duration(0))
	v.Set("ui.colors", false)
	v.Set("ui.clearScreen", false)
	conf, err := decodeConfig(v)
	if err != nil {
		panic(err)
	}
	return conf
}
