package types

type HeartbeatRequest struct {
	KioskID       string `json:"kiosk_id"`
	AppVersion    string `json:"app_version,omitempty"`
	UptimeSeconds uint64 `json:"uptime_s,omitempty"`
	IP            string `json:"ip,omitempty"`
}

type HeartbeatResponse struct {
	OK         bool   `json:"ok"`
	Known      bool   `json:"known"`
	KioskID    string `json:"kiosk_id"`
	ServerTime string `json:"server_time"`
}
