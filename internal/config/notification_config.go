package config

// NotificationConfig defines configuration for desktop notification delivery
type NotificationConfig struct {
	// Enabled is the global gate: when false the forwarder drops every
	// incident event without touching the bus.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// NotificationSeconds is how long a notification stays visible; zero
	// means no timeout. Enforced by the notification server, not locally.
	NotificationSeconds int `json:"notification_seconds" yaml:"notification_seconds" validate:"omitempty,min=0,max=60"`

	// UpdateInPlace asks the client to replace a live message instead of
	// posting a duplicate, provided the server advertises the capability.
	UpdateInPlace bool `json:"update_in_place" yaml:"update_in_place"`

	// ActionButtons attaches a "view process" action when the server
	// advertises action support; ignored otherwise.
	ActionButtons bool `json:"action_buttons" yaml:"action_buttons"`
}

// NewDefaultNotificationConfig creates default notification configuration
func NewDefaultNotificationConfig() NotificationConfig {
	return NotificationConfig{
		Enabled:             true,
		NotificationSeconds: DefaultNotificationSeconds,
		UpdateInPlace:       true,
		ActionButtons:       true,
	}
}

// TimeoutMillis converts the display duration to the protocol's millisecond
// unit (0 keeps the server's "no timeout" meaning).
func (nc NotificationConfig) TimeoutMillis() int32 {
	return int32(nc.NotificationSeconds) * 1000
}
