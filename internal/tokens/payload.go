package tokens

import (
	"encoding/json"
)

// payloadFields is the superset of discriminator fields a stored payload
// may carry.
type payloadFields struct {
	UserID      *int64 `json:"user_id"`
	ServiceID   *int64 `json:"service_id"`
	ServiceName string `json:"service_name"`
	TokenType   string `json:"token_type"`
}

func decodeFields(raw json.RawMessage) (payloadFields, bool) {
	var f payloadFields
	if err := json.Unmarshal(raw, &f); err != nil {
		return payloadFields{}, false
	}
	return f, true
}

// PayloadUserID extracts user_id from a stored payload.
func PayloadUserID(raw json.RawMessage) (int, bool) {
	f, ok := decodeFields(raw)
	if !ok || f.UserID == nil {
		return 0, false
	}
	return int(*f.UserID), true
}

// PayloadServiceID extracts service_id from a stored payload.
func PayloadServiceID(raw json.RawMessage) (int, bool) {
	f, ok := decodeFields(raw)
	if !ok || f.ServiceID == nil {
		return 0, false
	}
	return int(*f.ServiceID), true
}

// IsServiceToken reports whether the payload carries the service
// discriminator.
func IsServiceToken(raw json.RawMessage) bool {
	f, ok := decodeFields(raw)
	return ok && f.TokenType == "service"
}
