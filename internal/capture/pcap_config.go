package capture

import "time"

// PCAPConfig selects a live interface or an offline capture file. File wins
// when both are set.
type PCAPConfig struct {
	Interface string        `json:"interface"`
	File      string        `json:"file"`
	Filter    string        `json:"filter"`
	SnapLen   int           `json:"snaplen"`
	Timeout   time.Duration `json:"-"`
	Promisc   bool          `json:"promisc"`
}

const defaultSnapLen = 256
