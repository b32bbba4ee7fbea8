package admin

// UpsertChannelRequest links or updates a channel. Omitted switches default to on,
// except auto-reply which defaults to off.
type UpsertChannelRequest struct {
	TenantID         string   `json:"tenantId" binding:"required"`
	Platform         string   `json:"platform" binding:"required"`
	Name             string   `json:"name"`
	AccessToken      string   `json:"accessToken" binding:"required"`
	Active           *bool    `json:"active"`
	WebhookEnabled   *bool    `json:"webhookEnabled"`
	AutoReplyEnabled *bool    `json:"autoReplyEnabled"`
	SystemPrompt     string   `json:"systemPrompt"`
	AIModel          string   `json:"aiModel"`
	AITemperature    *float32 `json:"aiTemperature" binding:"omitempty,gte=0,lte=2"`
	AIMaxTokens      *int     `json:"aiMaxTokens" binding:"omitempty,gt=0"`
	AIAPIKey         string   `json:"aiApiKey"`
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
