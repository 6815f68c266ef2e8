package model

import "time"

// RecommendationRequest is the caller's request for recommendations.
type RecommendationRequest struct {
	UserID int64    `json:"user_id"`
	Genres []string `json:"genres,omitempty"`
	Limit  int      `json:"limit"`
}

// MovieItem is one recommended movie.
type MovieItem struct {
	ID       int64    `json:"id"`
	Title    string   `json:"title"`
	Genres   []string `json:"genres,omitempty"`
	Score    float64  `json:"score"`
	PosterURL string  `json:"poster_url,omitempty"`
}

// UserContext is the optional per-user context consumed by strategies that
// declare RequiresContext. A nil UserContext skips those strategies.
type UserContext struct {
	UserID          int64   `json:"user_id"`
	FavoriteGenres  []string `json:"favorite_genres,omitempty"`
	WatchedMovieIDs []int64  `json:"watched_movie_ids,omitempty"`
}

// ResultSource identifies which serving path produced a result.
type ResultSource string

const (
	SourcePrimary  ResultSource = "primary"
	SourceFallback ResultSource = "fallback"
	SourceCache    ResultSource = "cache"
	SourceDegraded ResultSource = "degraded"
)

// FallbackResult is the outcome of one cascade run. Created fresh per
// invocation and never persisted beyond the caller's response.
type FallbackResult struct {
	Items          []*MovieItem   `json:"items"`
	MethodUsed     string         `json:"method_used"`
	Confidence     float64        `json:"confidence"`
	ProcessingTime time.Duration  `json:"processing_time"`
	Metadata       ResultMetadata `json:"metadata"`
}

// ResultMetadata carries diagnostic detail about how a result was produced.
type ResultMetadata struct {
	Source  string   `json:"source"`
	Reasons []string `json:"reasons,omitempty"`
}

// ReliableResult wraps a primary-path or fallback payload with reliability
// metadata so callers and dashboards can distinguish degraded answers from
// nominal ones. Transient, one per request.
type ReliableResult struct {
	Items        []*MovieItem  `json:"items"`
	Source       ResultSource  `json:"source"`
	MethodUsed   string        `json:"method_used,omitempty"`
	Confidence   float64       `json:"confidence"`
	FallbackUsed bool          `json:"fallback_used"`
	RetryCount   int           `json:"retry_count"`
	CircuitState CircuitState  `json:"circuit_state"`
	Health       OverallHealth `json:"health_status"`
	Elapsed      time.Duration `json:"elapsed"`
}
