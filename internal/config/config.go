package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port      int
		JWTSecret string
	}
	Database struct {
		Path        string
		TablePrefix string // what `prefix_` in stored queries resolves to
	}
	Site struct {
		DataRoot string // where generated CSV files are stored
		WWWRoot  string // base URL used in report links and %%WWWROOT%%
	}
	Schedule struct {
		Interval            int // scheduler tick in minutes
		StartOfWeek         int // 0=Sunday..6=Saturday, -1 = use calendar default
		CalendarStartOfWeek int
	}
	Query struct {
		LimitDefault int
		LimitMaximum int
	}
	Email struct {
		SMTPHost string
		SMTPPort int
		From     string
		Password string
	}
	Slack struct {
		Token   string
		Channel string
	}
}

// LoadConfig loads the configuration from config.yaml
func LoadConfig() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	var config Config
	setDefaults(&config)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, write one with the defaults.
			viper.Set("server.port", config.Server.Port)
			viper.Set("database.path", config.Database.Path)
			viper.Set("site.dataroot", config.Site.DataRoot)
			viper.Set("site.wwwroot", config.Site.WWWRoot)
			viper.Set("schedule.interval", config.Schedule.Interval)
			viper.Set("schedule.startofweek", config.Schedule.StartOfWeek)
			viper.Set("query.limitdefault", config.Query.LimitDefault)
			viper.Set("query.limitmaximum", config.Query.LimitMaximum)

			if err := os.MkdirAll("data", 0755); err != nil {
				fmt.Printf("Warning: Failed to create data directory: %v\n", err)
			}

			if err := viper.SafeWriteConfig(); err != nil {
				fmt.Printf("Warning: Failed to write default config: %v\n", err)
			}
		} else {
			fmt.Printf("Error reading config file: %v\n", err)
		}
	} else {
		if err := viper.Unmarshal(&config); err != nil {
			fmt.Printf("Error unmarshaling config: %v\n", err)
		}
	}

	return &config
}

func setDefaults(config *Config) {
	config.Server.Port = 8080
	config.Database.Path = "data/sqlreports.db"
	config.Site.DataRoot = "data/reports"
	config.Site.WWWRoot = "http://localhost:8080"
	config.Schedule.Interval = 5
	config.Schedule.StartOfWeek = -1
	config.Schedule.CalendarStartOfWeek = 0
	config.Query.LimitDefault = 5000
	config.Query.LimitMaximum = 5000
}

// WeekStart resolves the configured start of week. The -1 sentinel means
// "use the site calendar's value".
func (c *Config) WeekStart() int {
	if c.Schedule.StartOfWeek == -1 {
		return c.Schedule.CalendarStartOfWeek
	}
	return c.Schedule.StartOfWeek
}

// EffectiveQueryLimit returns the row cap for a report, applying the site
// default and maximum.
func (c *Config) EffectiveQueryLimit(reportLimit int) int {
	limit := reportLimit
	if limit <= 0 {
		limit = c.Query.LimitDefault
	}
	if c.Query.LimitMaximum > 0 && limit > c.Query.LimitMaximum {
		limit = c.Query.LimitMaximum
	}
	return limit
}
