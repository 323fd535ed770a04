package core

// Target is the wire form of an event destination. Empty fields match any
// application on that axis; a nil User means any user.
type Target struct {
	Label   string `json:"label,omitempty"`
	AppID   string `json:"appid,omitempty"`
	Binary  string `json:"binary,omitempty"`
	User    *int   `json:"user,omitempty"`
	Process int    `json:"process,omitempty"`
}

// IsZero reports whether t selects nothing, i.e. a broadcast.
func (t Target) IsZero() bool {
	return t.Label == "" && t.AppID == "" && t.Binary == "" && t.User == nil && t.Process == 0
}

// AppInfo describes an application as listed by the relay.
// An empty Desktop means the application has no desktop entry.
type AppInfo struct {
	AppID       string   `json:"appid" yaml:"appid"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Desktop     string   `json:"desktop,omitempty" yaml:"desktop"`
	User        int      `json:"user,omitempty" yaml:"user"`
	Argv        []string `json:"argv,omitempty" yaml:"argv"`
}

// StatusReport is the outcome of a subscription request.
type StatusReport struct {
	Seqno   int
	Status  int
	Message string
	Data    Value
}

// OK reports whether the request succeeded.
func (r StatusReport) OK() bool { return Succeeded(r.Status) }
