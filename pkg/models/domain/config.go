package domain

import "fmt"

type ProfileType string

const (
	ProfileTypeStatic ProfileType = "static"
	ProfileTypeSSO    ProfileType = "sso"
	ProfileTypeRole   ProfileType = "role"
)

// ConfigProfile is one named profile from the shared AWS credentials/config files.
type ConfigProfile struct {
	Name   string
	Type   ProfileType
	Region string
}

func (c ConfigProfile) String() string {
	return fmt.Sprintf("%s:%s", c.Type, c.Name)
}
