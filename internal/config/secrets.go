package config

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed. Exchange entries
// carry environment-variable names rather than secrets, so they pass through
// untouched.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy aggregate fields so callers cannot mutate the original through
	// the redacted copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = make([]string, len(cfg.Server.CORSOrigins))
		copy(out.Server.CORSOrigins, cfg.Server.CORSOrigins)
	}
	if cfg.Scanner.Pairs != nil {
		out.Scanner.Pairs = make([]string, len(cfg.Scanner.Pairs))
		copy(out.Scanner.Pairs, cfg.Scanner.Pairs)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
