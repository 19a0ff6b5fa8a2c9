package runtime

import "maps"

// UserData accumulates a session's answers keyed by step key, plus fields merged
// back from side-effect responses. It is owned by a single Session.
type UserData struct {
	values map[string]string
}

func NewUserData() *UserData {
	return &UserData{values: make(map[string]string)}
}

func (u *UserData) Set(key, value string) {
	u.values[key] = value
}

func (u *UserData) Get(key string) (string, bool) {
	v, ok := u.values[key]
	return v, ok
}

// Merge copies fields into the store. Incoming values win on key collision.
func (u *UserData) Merge(fields map[string]string) {
	for k, v := range fields {
		u.values[k] = v
	}
}

func (u *UserData) Len() int {
	return len(u.values)
}

// All returns a copy safe to hand to collaborators.
func (u *UserData) All() map[string]string {
	return maps.Clone(u.values)
}
