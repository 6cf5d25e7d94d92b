package httpapi

import (
	"time"

	"fieldwork-backend-go/internal/models"
	"fieldwork-backend-go/internal/services"
)

const dateLayout = "2006-01-02"

type UserDTO struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	Role        string     `json:"role"`
	IsAdmin     bool       `json:"is_admin"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func userDTO(u models.User) UserDTO {
	return UserDTO{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Role:        string(u.Role),
		IsAdmin:     u.Role == models.RoleAdmin,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

type TokenResponse struct {
	AccessToken  string  `json:"access"`
	RefreshToken string  `json:"refresh"`
	ExpiresAt    int64   `json:"expires_at"`
	User         UserDTO `json:"user"`
}

func tokenResponse(res services.AuthResult) TokenResponse {
	return TokenResponse{
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		ExpiresAt:    res.Tokens.ExpiresAt,
		User:         userDTO(res.User),
	}
}

type OwnerDTO struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

type ProjectDTO struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Location        string     `json:"location"`
	Latitude        float64    `json:"latitude"`
	Longitude       float64    `json:"longitude"`
	StartDate       string     `json:"start_date"`
	EndDate         string     `json:"end_date"`
	Status          string     `json:"status"`
	StatusChangedAt *time.Time `json:"status_changed_at,omitempty"`
	StatusChangedBy *string    `json:"status_changed_by,omitempty"`
	Owner           OwnerDTO   `json:"owner"`
	LikesCount      int        `json:"likes_count"`
	CommentsCount   int        `json:"comments_count"`
	FilesCount      int        `json:"files_count"`
	IsLiked         bool       `json:"is_liked"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func projectDTO(p models.Project) ProjectDTO {
	return ProjectDTO{
		ID:              p.ID,
		Title:           p.Title,
		Description:     p.Description,
		Location:        p.Location,
		Latitude:        p.Latitude,
		Longitude:       p.Longitude,
		StartDate:       p.StartDate.Format(dateLayout),
		EndDate:         p.EndDate.Format(dateLayout),
		Status:          string(p.Status),
		StatusChangedAt: p.StatusChangedAt,
		StatusChangedBy: p.StatusChangedBy,
		Owner:           OwnerDTO{ID: p.OwnerID, Username: p.OwnerUsername, DisplayName: p.OwnerName},
		LikesCount:      p.LikesCount,
		CommentsCount:   p.CommentsCount,
		FilesCount:      p.FilesCount,
		IsLiked:         p.IsLiked,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

type FileDTO struct {
	ID               string     `json:"id"`
	Project          string     `json:"project"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	FileType         string     `json:"file_type"`
	Category         string     `json:"category"`
	FilePath         string     `json:"file_path"`
	FileURL          string     `json:"file_url"`
	OriginalFilename string     `json:"original_filename"`
	ContentType      string     `json:"content_type"`
	SizeBytes        int64      `json:"size_bytes"`
	UploadedBy       string     `json:"uploaded_by"`
	Status           string     `json:"status"`
	StatusChangedAt  *time.Time `json:"status_changed_at,omitempty"`
	StatusChangedBy  *string    `json:"status_changed_by,omitempty"`
	LikesCount       int        `json:"likes_count"`
	CommentsCount    int        `json:"comments_count"`
	IsLiked          bool       `json:"is_liked"`
	CreatedAt        time.Time  `json:"created_at"`
}

func fileDTO(f models.File) FileDTO {
	return FileDTO{
		ID:               f.ID,
		Project:          f.ProjectID,
		Title:            f.Title,
		Description:      f.Description,
		FileType:         string(f.FileType),
		Category:         string(f.Category),
		FilePath:         f.FilePath,
		FileURL:          services.FileURL(f.FilePath),
		OriginalFilename: f.OriginalFilename,
		ContentType:      f.ContentType,
		SizeBytes:        f.SizeBytes,
		UploadedBy:       f.UploadedBy,
		Status:           string(f.Status),
		StatusChangedAt:  f.StatusChangedAt,
		StatusChangedBy:  f.StatusChangedBy,
		LikesCount:       f.LikesCount,
		CommentsCount:    f.CommentsCount,
		IsLiked:          f.IsLiked,
		CreatedAt:        f.CreatedAt,
	}
}

type CommentDTO struct {
	ID        string    `json:"id"`
	Project   *string   `json:"project,omitempty"`
	File      *string   `json:"file,omitempty"`
	Author    OwnerDTO  `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func commentDTO(c models.Comment) CommentDTO {
	return CommentDTO{
		ID:        c.ID,
		Project:   c.ProjectID,
		File:      c.FileID,
		Author:    OwnerDTO{ID: c.UserID, Username: c.AuthorUsername, DisplayName: c.AuthorName},
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
	}
}

type PagedResponse[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

func paged[S, T any](res services.PageResult[S], convert func(S) T) PagedResponse[T] {
	items := make([]T, 0, len(res.Items))
	for _, item := range res.Items {
		items = append(items, convert(item))
	}
	return PagedResponse[T]{Items: items, Total: res.Total, Page: res.Page, PageSize: res.PageSize}
}
