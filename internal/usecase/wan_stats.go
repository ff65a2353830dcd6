package usecase

import (
	"fmt"
	"strings"

	"github.com/zinrai/wan-ip-provider/internal/domain"
)

type RawWANStats struct {
	MaxDownstreamSpeedBytes uint64 `json:"max_downstream_speed_bytes"`
	MaxUpstreamSpeedBytes   uint64 `json:"max_upstream_speed_bytes"`
	UptimeSeconds           uint64 `json:"uptime_seconds"`
	BytesSent               uint64 `json:"bytes_sent"`
	BytesReceived           uint64 `json:"bytes_received"`
}

type HumanWANStats struct {
	MaxDownstreamSpeed string `json:"max_downstream_speed"`
	MaxUpstreamSpeed   string `json:"max_upstream_speed"`
	Uptime             string `json:"uptime"`
	BytesSent          string `json:"bytes_sent"`
	BytesReceived      string `json:"bytes_received"`
}

func NewRawWANStats(s domain.WANStats) RawWANStats {
	return RawWANStats{
		MaxDownstreamSpeedBytes: s.MaxDownstreamBitRate,
		MaxUpstreamSpeedBytes:   s.MaxUpstreamBitRate,
		UptimeSeconds:           s.UptimeSeconds,
		BytesSent:               s.BytesSent,
		BytesReceived:           s.BytesReceived,
	}
}

func NewHumanWANStats(s domain.WANStats) HumanWANStats {
	return HumanWANStats{
		MaxDownstreamSpeed: FormatBytes(s.MaxDownstreamBitRate) + "ps",
		MaxUpstreamSpeed:   FormatBytes(s.MaxUpstreamBitRate) + "ps",
		Uptime:             FormatDuration(s.UptimeSeconds),
		BytesSent:          FormatBytes(s.BytesSent),
		BytesReceived:      FormatBytes(s.BytesReceived),
	}
}

// FormatBytes renders n with a binary unit, e.g. "1.50 MB".
func FormatBytes(n uint64) string {
	size := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if size < 1024 {
			return fmt.Sprintf("%.2f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.2f PB", size)
}

// FormatDuration renders seconds as "1d 2h 3m 4s", omitting zero parts.
func FormatDuration(seconds uint64) string {
	if seconds == 0 {
		return "0s"
	}
	intervals := []struct {
		suffix string
		size   uint64
	}{
		{"d", 86400},
		{"h", 3600},
		{"m", 60},
		{"s", 1},
	}
	var parts []string
	for _, iv := range intervals {
		if v := seconds / iv.size; v > 0 {
			seconds -= v * iv.size
			parts = append(parts, fmt.Sprintf("%d%s", v, iv.suffix))
		}
	}
	return strings.Join(parts, " ")
}
