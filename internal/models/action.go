package models

import (
	"fmt"
	"strconv"
	"strings"
)

// EncodeActionID builds the opaque action identifier attached to a
// notification button. The format is stable because it round-trips through
// the notification channel as-is.
func EncodeActionID(action ReviewAction, requestID int64) string {
	return fmt.Sprintf("%s_%d", action, requestID)
}

// ParseActionID decodes an action identifier back into the reviewer action
// and request id it was built from.
func ParseActionID(actionID string) (ReviewAction, int64, error) {
	action, idPart, ok := strings.Cut(actionID, "_")
	if !ok {
		return "", 0, fmt.Errorf("malformed action id %q", actionID)
	}

	switch ReviewAction(action) {
	case ReviewActionApprove, ReviewActionReject:
	default:
		return "", 0, fmt.Errorf("unknown action %q", action)
	}

	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed request id in action %q: %w", actionID, err)
	}

	return ReviewAction(action), id, nil
}
