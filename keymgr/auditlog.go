package keymgr

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/sanctumkit/sanctum/notify"
)

// appendLog records one line of key activity in the bounded in-memory ring.
// Every append, success or failure, is also surfaced to the monitoring
// collaborator.
func (m *Manager) appendLog(userID, sessionID string, op KeyOperation, success bool, detail string) {
	entry := AccessLogEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		Operation: op,
		Success:   success,
		Detail:    detail,
		Time:      m.now(),
	}

	m.logMu.Lock()
	m.accessLog = append(m.accessLog, entry)
	if over := len(m.accessLog) - m.accessLogCap; over > 0 {
		m.accessLog = append(m.accessLog[:0], m.accessLog[over:]...)
	}
	m.logMu.Unlock()

	m.emit(notify.EventKeyAccessLogged, map[string]string{
		"operation": string(op),
		"success":   strconv.FormatBool(success),
	})
}

// GetUserAccessLogs returns the user's audit entries, newest first. A limit
// of zero or less returns all retained entries for the user.
func (m *Manager) GetUserAccessLogs(userID string, limit int) []AccessLogEntry {
	m.logMu.Lock()
	defer m.logMu.Unlock()

	var out []AccessLogEntry
	for i := len(m.accessLog) - 1; i >= 0; i-- {
		if m.accessLog[i].UserID != userID {
			continue
		}
		out = append(out, m.accessLog[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// AccessLogLen reports how many entries the ring currently retains.
func (m *Manager) AccessLogLen() int {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	return len(m.accessLog)
}
