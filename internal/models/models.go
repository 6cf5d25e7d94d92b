package models

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

type FileType string

const (
	FileTypeImage    FileType = "image"
	FileTypeAudio    FileType = "audio"
	FileTypeVideo    FileType = "video"
	FileTypeDocument FileType = "document"
)

var FileTypes = []FileType{FileTypeImage, FileTypeAudio, FileTypeVideo, FileTypeDocument}

func (t FileType) Valid() bool {
	for _, known := range FileTypes {
		if t == known {
			return true
		}
	}
	return false
}

type Category string

const (
	CategoryFolklore   Category = "folklore"
	CategoryInterview  Category = "interview"
	CategoryLiterature Category = "literature"
	CategoryOther      Category = "other"
)

// Actor is the identity making a request. The zero value is anonymous.
type Actor struct {
	ID       string
	Username string
	Role     Role
}

func (a Actor) Authenticated() bool {
	return a.ID != ""
}

func (a Actor) IsAdmin() bool {
	return a.Authenticated() && a.Role == RoleAdmin
}

type User struct {
	ID           string     `db:"id"`
	Username     string     `db:"username"`
	DisplayName  string     `db:"display_name"`
	PasswordHash string     `db:"password_hash"`
	Role         Role       `db:"role"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	LastLoginAt  *time.Time `db:"last_login_at"`
}

func (u User) Actor() Actor {
	return Actor{ID: u.ID, Username: u.Username, Role: u.Role}
}

type Project struct {
	ID              string     `db:"id"`
	OwnerID         string     `db:"owner_id"`
	OwnerUsername   string     `db:"owner_username"`
	OwnerName       string     `db:"owner_display_name"`
	Title           string     `db:"title"`
	Description     string     `db:"description"`
	Location        string     `db:"location"`
	Latitude        float64    `db:"latitude"`
	Longitude       float64    `db:"longitude"`
	StartDate       time.Time  `db:"start_date"`
	EndDate         time.Time  `db:"end_date"`
	Status          Status     `db:"status"`
	StatusChangedAt *time.Time `db:"status_changed_at"`
	StatusChangedBy *string    `db:"status_changed_by"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`

	LikesCount    int  `db:"likes_count"`
	CommentsCount int  `db:"comments_count"`
	FilesCount    int  `db:"files_count"`
	IsLiked       bool `db:"is_liked"`
}

type File struct {
	ID               string     `db:"id"`
	ProjectID        string     `db:"project_id"`
	ProjectOwnerID   string     `db:"project_owner_id"`
	ProjectStatus    Status     `db:"project_status"`
	Title            string     `db:"title"`
	Description      string     `db:"description"`
	FileType         FileType   `db:"file_type"`
	Category         Category   `db:"category"`
	FilePath         string     `db:"file_path"`
	OriginalFilename string     `db:"original_filename"`
	ContentType      string     `db:"content_type"`
	SizeBytes        int64      `db:"size_bytes"`
	UploadedBy       string     `db:"uploaded_by"`
	Status           Status     `db:"status"`
	StatusChangedAt  *time.Time `db:"status_changed_at"`
	StatusChangedBy  *string    `db:"status_changed_by"`
	CreatedAt        time.Time  `db:"created_at"`

	LikesCount    int  `db:"likes_count"`
	CommentsCount int  `db:"comments_count"`
	IsLiked       bool `db:"is_liked"`
}

type TargetKind string

const (
	TargetProject TargetKind = "project"
	TargetFile    TargetKind = "file"
)

// Target identifies what a comment or like attaches to.
type Target struct {
	Kind TargetKind
	ID   string
}

type Comment struct {
	ID             string    `db:"id"`
	ProjectID      *string   `db:"project_id"`
	FileID         *string   `db:"file_id"`
	UserID         string    `db:"user_id"`
	AuthorUsername string    `db:"author_username"`
	AuthorName     string    `db:"author_display_name"`
	Content        string    `db:"content"`
	CreatedAt      time.Time `db:"created_at"`
}

type Like struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	ProjectID *string   `db:"project_id"`
	FileID    *string   `db:"file_id"`
	CreatedAt time.Time `db:"created_at"`
}

type ServerMetricSample struct {
	ID                string    `db:"id" json:"id"`
	CapturedAt        time.Time `db:"captured_at" json:"captured_at"`
	ProcessRSSBytes   int64     `db:"process_rss_bytes" json:"process_rss_bytes"`
	SystemMemoryTotal int64     `db:"system_memory_total_bytes" json:"system_memory_total_bytes"`
	SystemMemoryUsed  int64     `db:"system_memory_used_bytes" json:"system_memory_used_bytes"`
	DiskTotalBytes    int64     `db:"disk_total_bytes" json:"disk_total_bytes"`
	DiskUsedBytes     int64     `db:"disk_used_bytes" json:"disk_used_bytes"`
	ProcessCpuLoad    float64   `db:"process_cpu_load" json:"process_cpu_load"`
	SystemCpuLoad     float64   `db:"system_cpu_load" json:"system_cpu_load"`
	PendingProjects   int       `db:"pending_projects" json:"pending_projects"`
	PendingFiles      int       `db:"pending_files" json:"pending_files"`
}
