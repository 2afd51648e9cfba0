package models

// RegistryAuth carries the credentials used for authenticated image pulls and
// pushes. The password is never logged or written back to disk.
type RegistryAuth struct {
	User string `json:"user"`
	Pass string `json:"-"`
}

func NewRegistryAuth(user, pass string) *RegistryAuth {
	return &RegistryAuth{
		User: user,
		Pass: pass,
	}
}
