package data

import (
	"context"
	"errors"
	"strings"
	"time"

	"ReelGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// Movie is the GORM model for the movies table.
type Movie struct {
	ID            int64     `gorm:"primaryKey;column:id"`
	Title         string    `gorm:"column:title;type:varchar(255);not null"`
	Genres        string    `gorm:"column:genres;type:varchar(255)"` // comma-separated
	Popularity    float64   `gorm:"column:popularity;index"`
	TrendingScore float64   `gorm:"column:trending_score;index"`
	PosterURL     string    `gorm:"column:poster_url;type:varchar(512)"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Movie) TableName() string {
	return "movies"
}

// WatchEvent is the GORM model for the watch_events table.
type WatchEvent struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	UserID    int64     `gorm:"column:user_id;not null;index"`
	MovieID   int64     `gorm:"column:movie_id;not null;index"`
	Rating    float64   `gorm:"column:rating"`
	WatchedAt time.Time `gorm:"column:watched_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (WatchEvent) TableName() string {
	return "watch_events"
}

// MovieSimilarity is the GORM model for the movie_similarities table.
// Rows are precomputed offline; this service only reads them.
type MovieSimilarity struct {
	MovieID        int64   `gorm:"primaryKey;column:movie_id"`
	SimilarMovieID int64   `gorm:"primaryKey;column:similar_movie_id"`
	Score          float64 `gorm:"column:score;index"`
}

// TableName specifies the table name for GORM.
func (MovieSimilarity) TableName() string {
	return "movie_similarities"
}

// UserProfile is the GORM model for the user_profiles table.
type UserProfile struct {
	UserID         int64     `gorm:"primaryKey;column:user_id"`
	FavoriteGenres string    `gorm:"column:favorite_genres;type:varchar(255)"` // comma-separated
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (UserProfile) TableName() string {
	return "user_profiles"
}

// recentHistoryLimit caps how many recent watches seed the history-driven
// queries.
const recentHistoryLimit = 20

// movieRepo implements biz.FallbackDataRepo over MySQL. Every query is
// read-only and bounded by the caller's context.
type movieRepo struct {
	db     *gorm.DB
	logger *log.Helper
}

// NewMovieRepo creates the fallback data repository.
func NewMovieRepo(d *Data, logger log.Logger) *movieRepo {
	return &movieRepo{
		db:     d.db,
		logger: log.NewHelper(logger),
	}
}

// UserHistory derives recommendations from the user's recent watches:
// unseen movies similar to what the user watched, best similarity first.
func (r *movieRepo) UserHistory(ctx context.Context, userID int64, limit int) ([]*model.MovieItem, error) {
	var rows []struct {
		Movie
		Score float64
	}
	err := r.db.WithContext(ctx).
		Table("movie_similarities AS ms").
		Select("m.*, MAX(ms.score) AS score").
		Joins("JOIN movies m ON m.id = ms.similar_movie_id").
		Where("ms.movie_id IN (?)", r.recentWatchIDs(ctx, userID)).
		Where("ms.similar_movie_id NOT IN (?)", r.watchedIDs(ctx, userID)).
		Group("m.id").
		Order("score DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	items := make([]*model.MovieItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, toItem(&row.Movie, row.Score))
	}
	return items, nil
}

// CoWatched returns movies watched by users with overlapping history,
// ranked by how many of those neighbors watched them.
func (r *movieRepo) CoWatched(ctx context.Context, userID int64, limit int) ([]*model.MovieItem, error) {
	neighbors := r.db.
		Table("watch_events").
		Select("DISTINCT user_id").
		Where("movie_id IN (?)", r.watchedIDs(ctx, userID)).
		Where("user_id <> ?", userID)

	var rows []struct {
		Movie
		Watchers int64
	}
	err := r.db.WithContext(ctx).
		Table("watch_events AS we").
		Select("m.*, COUNT(DISTINCT we.user_id) AS watchers").
		Joins("JOIN movies m ON m.id = we.movie_id").
		Where("we.user_id IN (?)", neighbors).
		Where("we.movie_id NOT IN (?)", r.watchedIDs(ctx, userID)).
		Group("m.id").
		Order("watchers DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	items := make([]*model.MovieItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, toItem(&row.Movie, row.Movie.Popularity))
	}
	return items, nil
}

// SimilarToMovies returns movies similar to the seed movies, best score
// first, excluding the seeds themselves.
func (r *movieRepo) SimilarToMovies(ctx context.Context, movieIDs []int64, limit int) ([]*model.MovieItem, error) {
	if len(movieIDs) == 0 {
		return nil, nil
	}

	var rows []struct {
		Movie
		Score float64
	}
	err := r.db.WithContext(ctx).
		Table("movie_similarities AS ms").
		Select("m.*, MAX(ms.score) AS score").
		Joins("JOIN movies m ON m.id = ms.similar_movie_id").
		Where("ms.movie_id IN ?", movieIDs).
		Where("ms.similar_movie_id NOT IN ?", movieIDs).
		Group("m.id").
		Order("score DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	items := make([]*model.MovieItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, toItem(&row.Movie, row.Score))
	}
	return items, nil
}

// PopularByGenre returns the most popular movies within the genres. With no
// genres it degrades to overall popularity.
func (r *movieRepo) PopularByGenre(ctx context.Context, genres []string, limit int) ([]*model.MovieItem, error) {
	q := r.db.WithContext(ctx).Model(&Movie{})

	if len(genres) > 0 {
		genreQ := r.db.Where("FIND_IN_SET(?, genres) > 0", genres[0])
		for _, g := range genres[1:] {
			genreQ = genreQ.Or("FIND_IN_SET(?, genres) > 0", g)
		}
		q = q.Where(genreQ)
	}

	var movies []*Movie
	if err := q.Order("popularity DESC").Limit(limit).Find(&movies).Error; err != nil {
		return nil, err
	}
	return toItems(movies), nil
}

// Trending returns the current trending ranking.
func (r *movieRepo) Trending(ctx context.Context, limit int) ([]*model.MovieItem, error) {
	var movies []*Movie
	err := r.db.WithContext(ctx).
		Where("trending_score > 0").
		Order("trending_score DESC").
		Limit(limit).
		Find(&movies).Error
	if err != nil {
		return nil, err
	}
	return toItems(movies), nil
}

// RandomPopular samples the top of the popularity ranking. The ordering is
// deliberately randomized, so repeated calls differ.
func (r *movieRepo) RandomPopular(ctx context.Context, limit int) ([]*model.MovieItem, error) {
	pool := r.db.
		Model(&Movie{}).
		Select("id").
		Order("popularity DESC").
		Limit(100)

	var movies []*Movie
	err := r.db.WithContext(ctx).
		Where("id IN (?)", pool).
		Order("RAND()").
		Limit(limit).
		Find(&movies).Error
	if err != nil {
		return nil, err
	}
	return toItems(movies), nil
}

// UserContext loads the per-user context for the context-dependent
// strategies. A user with no profile and no history yields (nil, nil).
func (r *movieRepo) UserContext(ctx context.Context, userID int64) (*model.UserContext, error) {
	var profile UserProfile
	err := r.db.WithContext(ctx).First(&profile, "user_id = ?", userID).Error
	hasProfile := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var watched []int64
	err = r.db.WithContext(ctx).
		Model(&WatchEvent{}).
		Where("user_id = ?", userID).
		Order("watched_at DESC").
		Limit(200).
		Pluck("movie_id", &watched).Error
	if err != nil {
		return nil, err
	}

	if !hasProfile && len(watched) == 0 {
		return nil, nil
	}

	uc := &model.UserContext{
		UserID:          userID,
		WatchedMovieIDs: watched,
	}
	if hasProfile && profile.FavoriteGenres != "" {
		uc.FavoriteGenres = splitGenres(profile.FavoriteGenres)
	}
	return uc, nil
}

// recentWatchIDs builds a subquery of the user's most recent watches.
func (r *movieRepo) recentWatchIDs(ctx context.Context, userID int64) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&WatchEvent{}).
		Select("movie_id").
		Where("user_id = ?", userID).
		Order("watched_at DESC").
		Limit(recentHistoryLimit)
}

// watchedIDs builds a subquery of everything the user has watched.
func (r *movieRepo) watchedIDs(ctx context.Context, userID int64) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&WatchEvent{}).
		Select("movie_id").
		Where("user_id = ?", userID)
}

// toItem converts one movie row with an explicit relevance score.
func toItem(m *Movie, score float64) *model.MovieItem {
	return &model.MovieItem{
		ID:        m.ID,
		Title:     m.Title,
		Genres:    splitGenres(m.Genres),
		Score:     score,
		PosterURL: m.PosterURL,
	}
}

// toItems converts movie rows using popularity as the score.
func toItems(movies []*Movie) []*model.MovieItem {
	items := make([]*model.MovieItem, 0, len(movies))
	for _, m := range movies {
		items = append(items, toItem(m, m.Popularity))
	}
	return items
}

// splitGenres parses the comma-separated genres column.
func splitGenres(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
