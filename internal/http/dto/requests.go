package dto

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateCampaign arrives as multipart/form-data, not JSON: name,
// templateSid, csvFile plus the optional variableMappings / defaultValues
// JSON strings (possibly malformed, repaired server-side).

// WSClientMessage is what a websocket client sends to manage rooms.
type WSClientMessage struct {
	Type       string `json:"type"` // join_campaign / leave_campaign
	CampaignID string `json:"campaignId"`
}
