package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage holds the data for a cycle alert.
type TelegramMessage struct {
	StartTime  time.Time
	Duration   time.Duration
	TotalHosts int

	Failed   []HostAlert
	Critical []HostAlert
}

// HostAlert describes one host worth alerting about.
type HostAlert struct {
	Host    string
	Cause   string
	Error   string
	MaxTemp int
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
