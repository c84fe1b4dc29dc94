package models

// Post represents a row in the posts table. AuthorID is a weak reference
// to a User; Author is filled in by whoever renders the post.
type Post struct {
	ID       int64  `json:"id"      bson:"_id"`
	Title    string `json:"title"   bson:"title"`
	Content  string `json:"content" bson:"content"`
	AuthorID *int64 `json:"-"       bson:"author_id"`
	Author   *User  `json:"author"  bson:"-"`
}

// AuthorRef identifies the author of a post in a request body.
type AuthorRef struct {
	ID *int64 `json:"id"`
}

// PostRequest is the JSON body for POST and PUT /posts.
type PostRequest struct {
	Title   *string    `json:"title"`
	Content *string    `json:"content"`
	Author  *AuthorRef `json:"author"`
}
