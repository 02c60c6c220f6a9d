package config

import (
	"github.com/Veraticus/tally/internal/sheets"
	"github.com/spf13/viper"
)

// LoadSheetsConfig resolves Google Sheets settings. Values under sheets.* win,
// then GOOGLE_SHEETS_* environment variables, then defaults.
func LoadSheetsConfig(v *viper.Viper) (*sheets.Config, error) {
	cfg := sheets.DefaultConfig()
	cfg.SpreadsheetName = ""

	cfg.ServiceAccountPath = ExpandPath(v.GetString("sheets.service_account_path"))
	cfg.ClientID = v.GetString("sheets.client_id")
	cfg.ClientSecret = v.GetString("sheets.client_secret")
	cfg.RefreshToken = v.GetString("sheets.refresh_token")
	cfg.SpreadsheetID = v.GetString("sheets.spreadsheet_id")
	cfg.SpreadsheetName = v.GetString("sheets.spreadsheet_name")
	if tz := v.GetString("sheets.time_zone"); tz != "" {
		cfg.TimeZone = tz
	}
	if v.IsSet("sheets.enable_formatting") {
		cfg.EnableFormatting = v.GetBool("sheets.enable_formatting")
	}

	cfg.LoadFromEnv()
	cfg.ServiceAccountPath = ExpandPath(cfg.ServiceAccountPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
