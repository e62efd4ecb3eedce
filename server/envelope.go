package server

// Reply statuses.
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
	StatusInfo  = "INFO"
)

// Command is one inbound protocol message. Payload fields are command
// specific and forwarded to the backend mostly untyped.
type Command struct {
	Cmd     string         `json:"cmd"`
	Payload map[string]any `json:"payload"`
}

// field returns a raw payload value, nil when absent.
func (c *Command) field(key string) any {
	if c.Payload == nil {
		return nil
	}
	return c.Payload[key]
}

// str returns a payload string, "" when absent or not a string.
func (c *Command) str(key string) string {
	v, _ := c.field(key).(string)
	return v
}

// num returns a payload number. JSON numbers decode as float64.
func (c *Command) num(key string) (float64, bool) {
	v, ok := c.field(key).(float64)
	return v, ok
}

// Reply is one outbound protocol message. Broadcasts use the same shape.
type Reply struct {
	Status  string `json:"status,omitempty"`
	Cmd     string `json:"cmd,omitempty"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}
