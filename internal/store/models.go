package store

import "time"

// User is a wallet-identified developer. Created on first sign-in, mutated
// on each sign-in (last-seen bump) and after each call (stat increments).
type User struct {
	ID          string          `json:"id"`
	Address     string          `json:"address"` // lowercase, unique
	Username    string          `json:"username,omitempty"`
	Bio         string          `json:"bio,omitempty"`
	AvatarURL   string          `json:"avatarUrl,omitempty"`
	Email       string          `json:"email,omitempty"`
	Preferences map[string]bool `json:"preferences,omitempty"`
	IsAdmin     bool            `json:"isAdmin"`
	Stats       UserStats       `json:"stats"`
	CreatedAt   time.Time       `json:"createdAt"`
	LastSeenAt  time.Time       `json:"lastSeenAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// UserStats are cumulative per-user counters, incremented after each call.
type UserStats struct {
	TotalCalls    int `json:"totalCalls"`
	TotalMessages int `json:"totalMessages"`
	TotalDuration int `json:"totalDuration"` // seconds
}

// WalletSession records one sign-in. At most one active session exists per
// address; opening a new one deactivates any prior active session first.
type WalletSession struct {
	SessionID   string     `json:"sessionId"` // sess_<16 hex>
	UserID      string     `json:"userId"`
	Address     string     `json:"address"`
	SignedInAt  time.Time  `json:"signedInAt"`
	SignedOutAt *time.Time `json:"signedOutAt,omitempty"`
	IsActive    bool       `json:"isActive"`
	Duration    int        `json:"duration,omitempty"` // seconds, set on sign-out
	UserAgent   string     `json:"userAgent,omitempty"`
	IPAddress   string     `json:"ipAddress,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Call statuses.
const (
	CallStatusActive    = "active"
	CallStatusEnded     = "ended"
	CallStatusEscalated = "escalated"
)

// Participant is one attendee of a call.
type Participant struct {
	Address  string     `json:"address"`
	Role     string     `json:"role"` // host, devrel, ai
	JoinedAt time.Time  `json:"joinedAt"`
	LeftAt   *time.Time `json:"leftAt,omitempty"`
}

// TranscriptTurn is one ordered turn of a call transcript.
type TranscriptTurn struct {
	Role      string    `json:"role"` // user, ai
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// CallHistory is one support call, persisted when the host hangs up.
type CallHistory struct {
	CallID         string           `json:"callId"` // call_<16 hex>
	ChannelName    string           `json:"channelName"`
	Topic          string           `json:"topic,omitempty"`
	HostAddress    string           `json:"hostAddress"`
	HostUserID     string           `json:"hostUserId,omitempty"`
	Participants   []Participant    `json:"participants"`
	Transcript     []TranscriptTurn `json:"transcript"`
	Status         string           `json:"status"`
	StartedAt      time.Time        `json:"startedAt"`
	EndedAt        *time.Time       `json:"endedAt,omitempty"`
	Duration       int              `json:"duration,omitempty"` // seconds
	HasHumanDevRel bool             `json:"hasHumanDevRel"`
	EscalatedTo    string           `json:"escalatedTo,omitempty"`
	Resolution     string           `json:"resolution,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// Issue statuses and priorities.
const (
	IssueStatusOpen       = "open"
	IssueStatusInProgress = "in-progress"
	IssueStatusResolved   = "resolved"
	IssueStatusEscalated  = "escalated"
	IssueStatusClosed     = "closed"

	IssuePriorityLow      = "low"
	IssuePriorityMedium   = "medium"
	IssuePriorityHigh     = "high"
	IssuePriorityCritical = "critical"
)

// Issue is a support ticket, optionally linked to an originating call.
type Issue struct {
	IssueID        string     `json:"issueId"` // ISS-0001, ...
	UserID         string     `json:"userId"`
	Address        string     `json:"address"`
	Topic          string     `json:"topic"`
	Description    string     `json:"description,omitempty"`
	CallID         string     `json:"callId,omitempty"`
	Status         string     `json:"status"`
	Priority       string     `json:"priority"`
	AssignedTo     string     `json:"assignedTo,omitempty"`
	AssignedToName string     `json:"assignedToName,omitempty"`
	Resolution     string     `json:"resolution,omitempty"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
	ClosedAt       *time.Time `json:"closedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Scheduled call statuses.
const (
	ScheduleStatusPending   = "pending"
	ScheduleStatusConfirmed = "confirmed"
	ScheduleStatusCancelled = "cancelled"
	ScheduleStatusCompleted = "completed"
)

// ScheduledCall is a future booking, optionally realized as a CallHistory.
type ScheduledCall struct {
	ScheduledCallID string    `json:"scheduledCallId"` // sched_<16 hex>
	UserID          string    `json:"userId"`
	Address         string    `json:"address"`
	Title           string    `json:"title"`
	Topic           string    `json:"topic,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	ScheduledAt     time.Time `json:"scheduledAt"`
	DurationMinutes int       `json:"durationMinutes"`
	DevRel          string    `json:"devrel,omitempty"`
	DevRelAddress   string    `json:"devrelAddress,omitempty"`
	Status          string    `json:"status"`
	CallID          string    `json:"callId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// DashboardStats is the admin rollup of independent counts.
type DashboardStats struct {
	TotalUsers      int `json:"totalUsers"`
	TotalCalls      int `json:"totalCalls"`
	ActiveSessions  int `json:"activeSessions"`
	OpenIssues      int `json:"openIssues"`
	EscalatedIssues int `json:"escalatedIssues"`
	ResolvedToday   int `json:"resolvedToday"`
}
