package dto

import "time"

type LoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	User    any    `json:"user"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// QuotaDetails is the machine-readable block on 403 responses so the client
// can render upgrade UX.
type QuotaDetails struct {
	Required      int    `json:"required"`
	Available     int    `json:"available"`
	PlanType      string `json:"planType"`
	MessagesUsed  int    `json:"messagesUsed"`
	MessagesLimit int    `json:"messagesLimit"`
	Suggestion    string `json:"suggestion"`
}

type CampaignInfo struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Status             string    `json:"status"`
	TotalContacts      int       `json:"totalContacts"`
	Template           string    `json:"template"`
	JobID              string    `json:"jobId"`
	EstimatedStartTime time.Time `json:"estimatedStartTime"`
	Priority           int       `json:"priority"`
}

type CreateCampaignResponse struct {
	Success  bool         `json:"success"`
	Message  string       `json:"message"`
	Campaign CampaignInfo `json:"campaign"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}
