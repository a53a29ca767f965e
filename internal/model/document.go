package model

import "time"

// Document is a single community post fetched from the source API.
type Document struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Body        string    `json:"body" yaml:"body"`
	Subreddit   string    `json:"subreddit" yaml:"subreddit"`
	Author      string    `json:"author" yaml:"author"`
	Upvotes     int       `json:"upvotes" yaml:"upvotes"`
	NumComments int       `json:"num_comments" yaml:"num_comments"`
	Permalink   string    `json:"permalink" yaml:"permalink"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// Engagement is the upvote/comment signal used by the evidence tools.
type Engagement struct {
	Upvotes  int `json:"upvotes"`
	Comments int `json:"comments"`
}

// Engagement returns the document's engagement signal.
func (d Document) Engagement() Engagement {
	return Engagement{Upvotes: d.Upvotes, Comments: d.NumComments}
}
