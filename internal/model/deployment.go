package model

import "time"

// Deployment status values.
const (
	StatusPending    = "pending"
	StatusRunning    = "running"
	StatusFailed     = "failed"
	StatusKilled     = "killed"
	StatusKillFailed = "kill_failed"
	StatusStopped    = "stopped"
)

// ValidStatus reports whether s is a status a deploy agent may report.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusRunning, StatusFailed, StatusKilled, StatusKillFailed, StatusStopped:
		return true
	}
	return false
}

// Deployment is one generated application handed to the deploy agent.
// AppPassword is only returned once, in the create response.
type Deployment struct {
	ID           int64     `json:"id"`
	UID          string    `json:"deployment_uid"`
	UserID       string    `json:"user_id"`
	Status       string    `json:"status"`
	URL          string    `json:"url,omitempty"`
	AppUsername  string    `json:"app_username,omitempty"`
	AppPassword  string    `json:"-"`
	IsPublic     bool      `json:"is_public"`
	ProjectName  string    `json:"docker_project_name,omitempty"`
	ModelKey     string    `json:"model_key,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
