package domain

import "time"

// Review rating bounds.
const (
	MinReviewRating = 1
	MaxReviewRating = 5
)

// DeletedUserName is shown as the author of reviews whose user no longer
// exists.
const DeletedUserName = "Deleted User"

// Review is a user's single review of a product. At most one exists per
// (UserID, ProductID).
type Review struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ProductID   string    `json:"product_id"`
	Rating      int       `json:"rating"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ReviewWithAuthor is a review joined with its author's display name.
type ReviewWithAuthor struct {
	Review
	UserName string `json:"user_name"`
}

// AuthorName returns name, or DeletedUserName when the author is gone.
func AuthorName(name *string) string {
	if name == nil || *name == "" {
		return DeletedUserName
	}
	return *name
}
