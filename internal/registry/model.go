package registry

// Target describes one registered deployment target. Immutable after load.
type Target struct {
	Name  string `json:"name"`
	IP    string `json:"ip"`
	Alias string `json:"alias"`
	User  string `json:"user,omitempty"`
	Path  string `json:"path,omitempty"`
	Port  int    `json:"port,omitempty"`
}

// Key returns the canonical single-flight key for the target.
func (t *Target) Key() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.IP
}

// Deployable reports whether a deployment can run on the target. A target
// without a remote path is registered for visibility only.
func (t *Target) Deployable() bool {
	return t.Path != ""
}

// PublicTarget is the listing shape exposed over the API. Connection
// parameters stay private.
type PublicTarget struct {
	Name  string `json:"name"`
	IP    string `json:"ip"`
	Alias string `json:"alias"`
}

func (t *Target) Public() PublicTarget {
	return PublicTarget{Name: t.Name, IP: t.IP, Alias: t.Alias}
}
