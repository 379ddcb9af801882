package hub

import (
	"encoding/json"
	"fmt"

	"github.com/marcus/lk/internal/models"
)

// Operation names accepted by the hub's command channel.
const (
	OpGetSlots          = "get_slots"
	OpSetUserCode       = "set_user_code"
	OpClearUserCode     = "clear_user_code"
	OpSetUserSchedule   = "set_user_schedule"
	OpSetUsageLimit     = "set_usage_limit"
	OpPushCodeToLock    = "push_code_to_lock"
	OpPullCodesFromLock = "pull_codes_from_lock"
	OpSetUserStatus     = "set_user_status"
	OpResetUsageCount   = "reset_usage_count"
	OpClearLocalCache   = "clear_local_cache"
)

// Frame types on the wire.
const (
	frameAuthRequired = "auth_required"
	frameAuth         = "auth"
	frameAuthOK       = "auth_ok"
	frameAuthInvalid  = "auth_invalid"
	frameCall         = "call"
	frameResult       = "result"
	frameEvent        = "event"
)

// frame is the envelope for every message exchanged with the hub.
type frame struct {
	ID          int64           `json:"id,omitempty"`
	Type        string          `json:"type"`
	AccessToken string          `json:"access_token,omitempty"`
	Op          string          `json:"op,omitempty"`
	Params      json.RawMessage `json:"params,omitempty"`
	Success     *bool           `json:"success,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *wireError      `json:"error,omitempty"`
	Event       json.RawMessage `json:"event,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CommandError is a hub-rejected or transport-failed command.
type CommandError struct {
	Op      string
	Code    string
	Message string
}

func (e *CommandError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

// Progress event actions.
const (
	ActionStart    = "start"
	ActionProgress = "progress"
	ActionComplete = "complete"
)

// SyncProgress is a pull-progress notification from the hub. Events are
// advisory; completion is corroborated by polling the entity snapshot.
type SyncProgress struct {
	Action       string `json:"action"`
	CurrentSlot  int    `json:"current_slot"`
	TotalSlots   int    `json:"total_slots"`
	CodesFound   int    `json:"codes_found"`
	CodesNew     int    `json:"codes_new"`
	CodesUpdated int    `json:"codes_updated"`
}

// setCodeParams is the payload for set_user_code.
type setCodeParams struct {
	Slot     int             `json:"slot"`
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	CodeType models.CodeType `json:"code_type"`
	Override bool            `json:"override,omitempty"`
}

type slotParams struct {
	Slot int `json:"slot"`
}

type scheduleParams struct {
	Slot  int     `json:"slot"`
	Start *string `json:"start_datetime"`
	End   *string `json:"end_datetime"`
}

type usageLimitParams struct {
	Slot    int  `json:"slot"`
	MaxUses *int `json:"max_uses"`
}

type statusParams struct {
	Slot    int  `json:"slot"`
	Enabled bool `json:"enabled"`
}
