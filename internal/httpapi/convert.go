package httpapi

import (
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/types"
)

// Field names mirror the JSON tags so both encodings share one vocabulary.

func str(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// ── Heartbeat ────────────────────────────────────────────────────────────────

func heartbeatRequestFromStruct(s *structpb.Struct) types.HeartbeatRequest {
	req := types.HeartbeatRequest{
		KioskID:    str(s, "kiosk_id"),
		AppVersion: str(s, "app_version"),
		IP:         str(s, "ip"),
	}
	if up := s.GetFields()["uptime_s"].GetNumberValue(); up > 0 {
		req.UptimeSeconds = uint64(up)
	}
	return req
}

func heartbeatResponseToMap(r types.HeartbeatResponse) map[string]any {
	return map[string]any{
		"ok":          r.OK,
		"known":       r.Known,
		"kiosk_id":    r.KioskID,
		"server_time": r.ServerTime,
	}
}

// ── Check-in ─────────────────────────────────────────────────────────────────

func checkInRequestFromStruct(s *structpb.Struct) types.CheckInRequest {
	return types.CheckInRequest{
		ExternalKey: str(s, "external_key"),
		KioskID:     str(s, "kiosk_id"),
		RequestedAt: str(s, "requested_at"),
	}
}

func checkInResponseToMap(r types.CheckInResponse) map[string]any {
	m := map[string]any{
		"allowed":     r.Allowed,
		"reason_code": string(r.ReasonCode),
		"message":     r.Message,
		"remaining":   nil,
		"kiosk_id":    r.KioskID,
		"server_time": r.ServerTime,
	}
	if r.Remaining != nil {
		m["remaining"] = *r.Remaining
	}
	optional := map[string]string{
		"member_name": r.MemberName,
		"plan_name":   r.PlanName,
		"avatar_ref":  r.AvatarRef,
		"valid_until": r.ValidUntil,
		"attempt_id":  r.AttemptID,
	}
	for k, v := range optional {
		if v != "" {
			m[k] = v
		}
	}
	return m
}
