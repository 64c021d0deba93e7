package model

import "time"

// SubmitRequest carries the parsed fields of a multipart submission. The
// image arrives as a file part; ColorHex and SquigglePoints as form fields.
type SubmitRequest struct {
	ColorHex       string          `json:"colorHex" validate:"required,hexcolor"`
	SquigglePoints []SquigglePoint `json:"squigglePoints" validate:"required,min=2,dive"`
}

// SubmitResponse is returned synchronously; generation continues in the
// background.
type SubmitResponse struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parentId,omitempty"`
	Status    Status    `json:"status"`
	ColorHex  string    `json:"colorHex"`
	CreatedAt time.Time `json:"createdAt"`
}

// StatusResponse reports the entity's lifecycle state. Safe to poll.
type StatusResponse struct {
	ID           string `json:"id"`
	Status       Status `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// DeleteResponse acknowledges a delete.
type DeleteResponse struct {
	Status string `json:"status"`
}

// PostSummary is one feed row. Pipeline intermediates are intentionally
// absent: they are diagnostic data, not presentation data.
type PostSummary struct {
	ID           string    `json:"id"`
	Owner        string    `json:"owner"`
	Status       Status    `json:"status"`
	ColorHex     string    `json:"colorHex"`
	ImageURL     string    `json:"imageUrl"`
	AudioURL     string    `json:"audioUrl,omitempty"`
	CommentCount int       `json:"commentCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

// FeedResponse is a page of the global feed, newest first.
type FeedResponse struct {
	Posts []PostSummary `json:"posts"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Pages int           `json:"pages"`
}

// PostDetail is a single post with its comments.
type PostDetail struct {
	PostSummary
	Comments []CommentSummary `json:"comments"`
}

// CommentSummary is one reply row.
type CommentSummary struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	Owner     string    `json:"owner"`
	Status    Status    `json:"status"`
	ColorHex  string    `json:"colorHex"`
	AudioURL  string    `json:"audioUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// CommentsResponse lists a post's replies, oldest first.
type CommentsResponse struct {
	Comments []CommentSummary `json:"comments"`
}
