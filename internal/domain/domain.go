package domain

type UserStatus string

const (
	UserActive  UserStatus = "active"
	UserBanned  UserStatus = "banned"
	UserTimeout UserStatus = "timeout"
)

func (s UserStatus) Valid() bool {
	switch s {
	case UserActive, UserBanned, UserTimeout:
		return true
	}
	return false
}

type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in-progress"
	StatusReview     TaskStatus = "review"
	StatusDone       TaskStatus = "done"
	StatusBlocked    TaskStatus = "blocked"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusReview, StatusDone, StatusBlocked:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type MilestoneStatus string

const (
	MilestoneActive    MilestoneStatus = "active"
	MilestonePending   MilestoneStatus = "pending"
	MilestoneCompleted MilestoneStatus = "completed"
)

func (s MilestoneStatus) Valid() bool {
	switch s {
	case MilestoneActive, MilestonePending, MilestoneCompleted:
		return true
	}
	return false
}

type CommentType string

const (
	CommentText      CommentType = "comment"
	CommentSystemLog CommentType = "system_log"
)

// ActiveMilestoneID is the fixed id of the single-tenant milestone.
const ActiveMilestoneID = "active"

type User struct {
	UID         string     `json:"uid"`
	Email       string     `json:"email"`
	DisplayName string     `json:"displayName"`
	Role        Role       `json:"role" enum:"super_admin,admin,developer,staff,trial_staff"`
	Status      UserStatus `json:"status" enum:"active,banned,timeout"`
	TeamID      *string    `json:"teamId,omitempty"`
	CreatedAt   int64      `json:"createdAt"`
}

type Task struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	MilestoneID     string     `json:"milestoneId"`
	AssignedUserIDs []string   `json:"assignedUserIds"`
	AssignedRole    *Role      `json:"assignedRole,omitempty"`
	AssignedByID    string     `json:"assignedById"`
	AssignedByName  string     `json:"assignedByName"`
	AssignedByRole  Role       `json:"assignedByRole"`
	Priority        Priority   `json:"priority" enum:"low,medium,high"`
	Status          TaskStatus `json:"status" enum:"todo,in-progress,review,done,blocked"`
	BlockReason     *string    `json:"blockReason,omitempty"`
	CreatedBy       string     `json:"createdBy"`
	CreatedByName   string     `json:"createdByName"`
	CreatedByRole   Role       `json:"createdByRole"`
	CreatedAt       int64      `json:"createdAt"`
	DueAt           *int64     `json:"dueAt,omitempty"`
}

func (t Task) Done() bool {
	return t.Status == StatusDone
}

type Milestone struct {
	ID            string          `json:"id"`
	TeamID        *string         `json:"teamId,omitempty"`
	Title         string          `json:"title"`
	Deadline      *int64          `json:"deadline,omitempty"`
	Status        MilestoneStatus `json:"status" enum:"active,pending,completed"`
	Progress      int             `json:"progress" minimum:"0" maximum:"100"`
	CreatedBy     string          `json:"createdBy"`
	CreatedByName string          `json:"createdByName"`
	CreatedAt     int64           `json:"createdAt"`
	UpdatedAt     int64           `json:"updatedAt"`
}

type Team struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	CreatedBy string   `json:"createdBy"`
	Members   []string `json:"members"`
	CreatedAt int64    `json:"createdAt"`
}

type TaskComment struct {
	ID        string      `json:"id"`
	TaskID    string      `json:"taskId"`
	UserID    string      `json:"userId"`
	UserName  string      `json:"userName"`
	UserRole  Role        `json:"userRole"`
	Text      string      `json:"text"`
	Timestamp int64       `json:"timestamp"`
	Type      CommentType `json:"type" enum:"comment,system_log"`
}

type Event struct {
	ID         int64          `json:"id"`
	TS         int64          `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entityKind"`
	EntityID   string         `json:"entityId,omitempty"`
	ActorID    string         `json:"actorId"`
	Payload    map[string]any `json:"payload"`
}

type APIKey struct {
	ID        string `json:"id"`
	UID       string `json:"uid"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt int64  `json:"createdAt"`
}
