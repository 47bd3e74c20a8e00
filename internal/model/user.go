package model

// User is an application login read from user_roles.yaml.
type User struct {
	Username     string
	PasswordHash string
	Roles        []string
}
