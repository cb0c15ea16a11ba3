package keymgr

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sanctumkit/sanctum/crisis"
	"github.com/sanctumkit/sanctum/notify"
)

// RequestEmergencyAccess files a delayed-release request against a user's
// data. The request stays pending until its release time passes, giving the
// user a window to cancel; a profile-configured auto-grant severity can
// short-circuit the delay.
func (m *Manager) RequestEmergencyAccess(userID, requesterID, reason string, level crisis.EmergencyLevel) (*EmergencyAccessRequest, error) {
	if requesterID == "" {
		return nil, fmt.Errorf("%w: requester ID is required", crisis.ErrInvalidContext)
	}
	if level != crisis.LevelNone && !validAuthLevel(level) {
		return nil, fmt.Errorf("%w: unknown emergency level %q", crisis.ErrInvalidContext, level)
	}

	m.mu.Lock()
	profile, err := m.lookupProfileLocked(userID)
	if err != nil {
		m.mu.Unlock()
		m.appendLog(userID, "", OpEmergencyAccess, false, "unknown user")
		return nil, crisis.ErrAuthenticationFailed
	}
	if !profile.Emergency.Enabled {
		m.mu.Unlock()
		m.appendLog(userID, "", OpEmergencyAccess, false, "emergency access not configured")
		return nil, fmt.Errorf("%w: user %s", crisis.ErrEmergencyAccessDisabled, userID)
	}
	if !contactAllowed(profile.Emergency.Contacts, requesterID) {
		m.mu.Unlock()
		m.appendLog(userID, "", OpEmergencyAccess, false, "requester not an emergency contact")
		return nil, crisis.ErrAuthenticationFailed
	}

	delay := time.Duration(profile.Emergency.DelayHours) * time.Hour
	if delay <= 0 {
		delay = DefaultEmergencyDelayHours * time.Hour
	}
	autoGrant := profile.Emergency.AutoGrantLevel != "" &&
		levelRank(level) >= levelRank(crisis.EmergencyLevel(profile.Emergency.AutoGrantLevel))

	now := m.now()
	req := &EmergencyAccessRequest{
		ID:          uuid.NewString(),
		UserID:      userID,
		RequesterID: requesterID,
		Reason:      reason,
		Level:       level,
		Status:      StatusPending,
		RequestedAt: now,
		ReleaseAt:   now.Add(delay),
	}
	if autoGrant {
		req.ReleaseAt = now
	}
	m.requests[req.ID] = req
	m.mu.Unlock()

	m.emit(notify.EventEmergencyRequested, map[string]string{
		"requestID": req.ID,
		"userID":    userID,
		"level":     string(level),
		"releaseAt": req.ReleaseAt.UTC().Format(time.RFC3339),
	})
	m.appendLog(userID, "", OpEmergencyAccess, true, "emergency access requested by "+requesterID)
	m.logger.Info("emergency access requested",
		"userID", userID, "requestID", req.ID, "releaseAt", req.ReleaseAt)

	if autoGrant {
		m.releaseDueRequests()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[req.ID].clone(), nil
}

// CancelEmergencyAccess cancels a pending request. Only the pending state is
// cancellable; a granted request has already released.
func (m *Manager) CancelEmergencyAccess(userID, requestID string) error {
	m.mu.Lock()
	req, ok := m.requests[requestID]
	if !ok || req.UserID != userID || req.Status != StatusPending {
		m.mu.Unlock()
		m.appendLog(userID, "", OpEmergencyAccess, false, "cancel rejected")
		return fmt.Errorf("%w: %s", crisis.ErrRequestNotPending, requestID)
	}
	req.Status = StatusCancelled
	m.mu.Unlock()

	m.emit(notify.EventEmergencyCancelled, map[string]string{
		"requestID": requestID,
		"userID":    userID,
	})
	m.appendLog(userID, "", OpEmergencyAccess, true, "emergency access cancelled")
	return nil
}

// PendingEmergencyRequests returns snapshots of the user's pending requests,
// oldest first.
func (m *Manager) PendingEmergencyRequests(userID string) []*EmergencyAccessRequest {
	m.mu.Lock()
	var out []*EmergencyAccessRequest
	for _, req := range m.requests {
		if req.UserID == userID && req.Status == StatusPending {
			out = append(out, req.clone())
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out
}

// EmergencyRequest returns a snapshot of one request by ID.
func (m *Manager) EmergencyRequest(requestID string) (*EmergencyAccessRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", crisis.ErrRequestNotPending, requestID)
	}
	return req.clone(), nil
}

// releaseDueRequests grants every pending request whose release time has
// passed. Each request is granted exactly once.
func (m *Manager) releaseDueRequests() {
	now := m.now()

	m.mu.Lock()
	var granted []*EmergencyAccessRequest
	for _, req := range m.requests {
		if req.Status == StatusPending && !now.Before(req.ReleaseAt) {
			req.Status = StatusGranted
			req.GrantedAt = now
			granted = append(granted, req.clone())
		}
	}
	m.mu.Unlock()

	for _, req := range granted {
		m.emit(notify.EventEmergencyGranted, map[string]string{
			"requestID": req.ID,
			"userID":    req.UserID,
			"requester": req.RequesterID,
		})
		m.appendLog(req.UserID, "", OpEmergencyAccess, true, "emergency access granted to "+req.RequesterID)
		m.logger.Info("emergency access granted",
			"userID", req.UserID, "requestID", req.ID, "requester", req.RequesterID)
	}
}

// contactAllowed reports whether the requester may file against this profile.
// An empty contact list means any requester may file; the delay is then the
// only safeguard.
func contactAllowed(contacts []string, requesterID string) bool {
	if len(contacts) == 0 {
		return true
	}
	for _, c := range contacts {
		if c == requesterID {
			return true
		}
	}
	return false
}

func levelRank(l crisis.EmergencyLevel) int {
	switch l {
	case crisis.LevelLow:
		return 1
	case crisis.LevelMedium:
		return 2
	case crisis.LevelHigh:
		return 3
	case crisis.LevelCritical:
		return 4
	}
	return 0
}
