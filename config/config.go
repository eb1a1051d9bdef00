package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

type Config struct {
	DatabasePath      string
	PrefsPath         string
	Timezone          *time.Location
	PruneSchedule     string
	CalDAVURL         string
	CalDAVUsername    string
	CalDAVPassword    string
	CalDAVAccountType string
	TestAccountType   string
}

func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	dbPath := os.Getenv("PIM_DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/pimstore.db"
	}

	prefsPath := os.Getenv("PIM_PREFS_PATH")
	if prefsPath == "" {
		prefsPath = "./data/prefs.yaml"
	}

	tzName := os.Getenv("PIM_TIMEZONE")
	if tzName == "" {
		tzName = "UTC"
	}
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid PIM_TIMEZONE: %w", err)
	}

	schedule := os.Getenv("PIM_PRUNE_SCHEDULE")
	if schedule == "" {
		schedule = "*/30 * * * *"
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid PIM_PRUNE_SCHEDULE: %w", err)
	}

	accountType := os.Getenv("CALDAV_ACCOUNT_TYPE")
	if accountType == "" {
		accountType = "caldav"
	}

	testAccountType := os.Getenv("PIM_TEST_ACCOUNT_TYPE")
	if testAccountType == "" {
		testAccountType = "TEST"
	}

	return &Config{
		DatabasePath:      dbPath,
		PrefsPath:         prefsPath,
		Timezone:          tz,
		PruneSchedule:     schedule,
		CalDAVURL:         os.Getenv("CALDAV_URL"),
		CalDAVUsername:    os.Getenv("CALDAV_USERNAME"),
		CalDAVPassword:    os.Getenv("CALDAV_PASSWORD"),
		CalDAVAccountType: accountType,
		TestAccountType:   testAccountType,
	}, nil
}

// HasCalDAV reports whether a CalDAV account is configured.
func (c *Config) HasCalDAV() bool {
	return c.CalDAVURL != "" && c.CalDAVUsername != "" && c.CalDAVPassword != ""
}
