package adapter

import (
	"strings"

	"github.com/gotrs-io/gotrs-mailpipe/internal/config"
	"github.com/gotrs-io/gotrs-mailpipe/internal/email/inbound/connector"
	"github.com/gotrs-io/gotrs-mailpipe/internal/email/inbound/filters"
	"github.com/gotrs-io/gotrs-mailpipe/internal/email/inbound/postmaster"
)

// AccountFromConfig converts the configured IMAP mailbox to the connector payload.
func AccountFromConfig(cfg config.IMAPConfig) connector.Account {
	return connector.Account{
		Host:     strings.TrimSpace(cfg.Host),
		Port:     cfg.Port,
		Username: strings.TrimSpace(cfg.User),
		Password: cfg.Password,
		TLS:      cfg.UseTLS,
		StartTLS: cfg.StartTLS,
		Folder:   strings.TrimSpace(cfg.Folder),
	}
}

// SettingsFromConfig builds the per-run ingester settings. Agent addresses
// come from the comma separated notification list.
func SettingsFromConfig(cfg *config.Config) postmaster.Settings {
	if cfg == nil {
		return postmaster.Settings{}
	}
	return postmaster.Settings{
		Enabled:        cfg.Piping.Enabled,
		Account:        AccountFromConfig(cfg.Piping.IMAP),
		AgentName:      strings.TrimSpace(cfg.Agents.DisplayName),
		AgentAddresses: filters.ParseAddressList(cfg.Agents.NotificationEmails),
		AdminFallback:  strings.TrimSpace(cfg.Agents.AdminEmail),
	}
}

// IngesterOptions maps the scheduler section onto ingester limits.
func IngesterOptions(cfg *config.Config) []postmaster.IngesterOption {
	if cfg == nil {
		return nil
	}
	s := cfg.Scheduler
	return []postmaster.IngesterOption{
		postmaster.WithMaxMessages(s.MaxMessages),
		postmaster.WithConnectRetry(s.RetryAttempts, s.RetryDelay),
		postmaster.WithConnectTimeout(s.ConnectTimeout),
		postmaster.WithRunTimeout(s.RunTimeout),
	}
}

// ConfigProvider is a postmaster.SettingsProvider reading the live
// configuration, so reloads take effect on the next run.
type ConfigProvider struct {
	get func() *config.Config
}

// NewConfigProvider reads from config.Get.
func NewConfigProvider() *ConfigProvider {
	return &ConfigProvider{get: config.Get}
}

// NewConfigProviderFunc reads from get.
func NewConfigProviderFunc(get func() *config.Config) *ConfigProvider {
	return &ConfigProvider{get: get}
}

// Settings implements postmaster.SettingsProvider.
func (p *ConfigProvider) Settings() postmaster.Settings {
	if p == nil || p.get == nil {
		return postmaster.Settings{}
	}
	return SettingsFromConfig(p.get())
}
