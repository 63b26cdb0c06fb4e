package domain

type Organization struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Member struct {
	ActorID   string `json:"actor_id"`
	OrgID     string `json:"org_id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role" enum:"owner,admin,member"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Team struct {
	ID        string   `json:"id"`
	OrgID     string   `json:"org_id"`
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids,omitempty"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

type Project struct {
	ID          string  `json:"id"`
	OrgID       string  `json:"org_id"`
	ClientID    *string `json:"client_id,omitempty"`
	Name        string  `json:"name"`
	Status      string  `json:"status" enum:"planned,active,on_hold,completed,archived"`
	Description string  `json:"description,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type ProjectMember struct {
	ProjectID string `json:"project_id"`
	ActorID   string `json:"actor_id"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Workstream struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type Task struct {
	ID           string  `json:"id"`
	ProjectID    string  `json:"project_id"`
	WorkstreamID *string `json:"workstream_id,omitempty"`
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	Status       string  `json:"status" enum:"todo,in_progress,review,done,canceled"`
	Priority     string  `json:"priority" enum:"low,medium,high,urgent"`
	AssigneeID   *string `json:"assignee_id,omitempty"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

type Client struct {
	ID        string `json:"id"`
	OrgID     string `json:"org_id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Status    string `json:"status" enum:"active,inactive,prospect"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type Note struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Title     string `json:"title"`
	Content   string `json:"content,omitempty"`
	AuthorID  string `json:"author_id"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type InboxItem struct {
	ID          string `json:"id"`
	RecipientID string `json:"recipient_id"`
	Title       string `json:"title"`
	Body        string `json:"body,omitempty"`
	Read        bool   `json:"read"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// UserSettings holds per-user preferences, including the assistant provider.
// EncryptedAPIKey is never serialized.
type UserSettings struct {
	ActorID         string `json:"actor_id"`
	Theme           string `json:"theme" enum:"light,dark,system"`
	Provider        string `json:"provider,omitempty"`
	Model           string `json:"model,omitempty"`
	EncryptedAPIKey []byte `json:"-"`
	UpdatedAt       string `json:"updated_at" format:"date-time"`
}

// HasAPIKey reports whether a credential is stored.
func (s UserSettings) HasAPIKey() bool {
	return len(s.EncryptedAPIKey) > 0
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
