package server

// StartScanRequest represents the payload required to start a scan.
type StartScanRequest struct {
	Target     string   `json:"target" example:"example.com"`
	TargetKind string   `json:"target_kind,omitempty" example:"domain"`
	Platforms  string   `json:"platforms" example:"both"`
	Categories []string `json:"categories,omitempty" example:"credentials"`
}

// StartScanResponse carries the id of the newly started session.
type StartScanResponse struct {
	SessionID string `json:"session_id" example:"9b2f1c2e-0c43-4b7a-8a5f-7f6f1a2b3c4d"`
}

// AddDorkRequest is the payload for adding a custom dork template.
type AddDorkRequest struct {
	Platform string `json:"platform" example:"google"`
	Category string `json:"category" example:"credentials"`
	Template string `json:"template" example:"site:{{DOMAIN}} filetype:env"`
}

// UpdateSeverityRequest overrides a result's severity during review.
type UpdateSeverityRequest struct {
	Severity string `json:"severity" example:"high"`
}

// FalsePositiveRequest flags a result as a false positive during review.
type FalsePositiveRequest struct {
	IsFalsePositive bool   `json:"is_false_positive" example:"true"`
	Notes           string `json:"notes,omitempty" example:"staging credentials, already rotated"`
}

// AddProxyRequest registers an outbound proxy for Google searches.
type AddProxyRequest struct {
	Protocol string `json:"protocol" example:"http"`
	Address  string `json:"address" example:"10.0.0.5"`
	Port     int    `json:"port" example:"8080"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// AddTokenRequest registers a GitHub API token.
type AddTokenRequest struct {
	Token string `json:"token" example:"ghp_xxxxxxxxxxxxxxxx"`
	Owner string `json:"owner,omitempty" example:"security-team"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error" example:"not found"`
}
