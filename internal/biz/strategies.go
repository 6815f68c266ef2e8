package biz

import (
	"context"

	"ReelGuard/internal/model"
)

// Base confidence per strategy. The reported confidence scales down when a
// strategy returns fewer items than requested, so a thin result can still be
// rejected by the cascade's per-strategy floor.
const (
	confUserHistory   = 0.85
	confCollaborative = 0.75
	confContentBased  = 0.65
	confGenrePopular  = 0.55
	confTrending      = 0.45
	confRandomPopular = 0.25
)

// NewStrategyProviders builds the full provider set over the fallback data
// repo, in no particular order; the cascade orders them by configured weight.
func NewStrategyProviders(repo FallbackDataRepo) []StrategyProvider {
	return []StrategyProvider{
		&userHistoryStrategy{repo: repo},
		&collaborativeStrategy{repo: repo},
		&contentBasedStrategy{repo: repo},
		&genrePopularityStrategy{repo: repo},
		&trendingStrategy{repo: repo},
		&randomPopularStrategy{repo: repo},
		&emergencyStaticStrategy{},
	}
}

// userHistoryStrategy recommends from the user's own viewing history.
type userHistoryStrategy struct {
	repo FallbackDataRepo
}

func (s *userHistoryStrategy) Method() string { return "user_history" }

func (s *userHistoryStrategy) Fetch(ctx context.Context, req *model.RecommendationRequest, user *model.UserContext) (*model.FallbackResult, error) {
	items, err := s.repo.UserHistory(ctx, req.UserID, req.Limit)
	if err != nil {
		return nil, err
	}
	return strategyResult(items, req.Limit, confUserHistory), nil
}

// collaborativeStrategy recommends what users with overlapping history
// watched.
type collaborativeStrategy struct {
	repo FallbackDataRepo
}

func (s *collaborativeStrategy) Method() string { return "collaborative" }

func (s *collaborativeStrategy) Fetch(ctx context.Context, req *model.RecommendationRequest, user *model.UserContext) (*model.FallbackResult, error) {
	items, err := s.repo.CoWatched(ctx, req.UserID, req.Limit)
	if err != nil {
		return nil, err
	}
	return strategyResult(items, req.Limit, confCollaborative), nil
}

// contentBasedStrategy recommends movies similar to the user's watched set.
type contentBasedStrategy struct {
	repo FallbackDataRepo
}

func (s *contentBasedStrategy) Method() string { return "content_based" }

func (s *contentBasedStrategy) Fetch(ctx context.Context, req *model.RecommendationRequest, user *model.UserContext) (*model.FallbackResult, error) {
	if user == nil || len(user.WatchedMovieIDs) == 0 {
		return nil, nil
	}
	items, err := s.repo.SimilarToMovies(ctx, user.WatchedMovieIDs, req.Limit)
	if err != nil {
		return nil, err
	}
	return strategyResult(items, req.Limit, confContentBased), nil
}

// genrePopularityStrategy recommends the most popular movies in the
// requested genres, falling back to the user's favorite genres when the
// request names none.
type genrePopularityStrategy struct {
	repo FallbackDataRepo
}

func (s *genrePopularityStrategy) Method() string { return "genre_popularity" }

func (s *genrePopularityStrategy) Fetch(ctx context.Context, req *model.RecommendationRequest, user *model.UserContext) (*model.FallbackResult, error) {
	genres := req.Genres
	if len(genres) == 0 && user != nil {
		genres = user.FavoriteGenres
	}
	items, err := s.repo.PopularByGenre(ctx, genres, req.Limit)
	if err != nil {
		return nil, err
	}
	return strategyResult(items, req.Limit, confGenrePopular), nil
}

// trendingStrategy recommends what everyone is watching right now.
type trendingStrategy struct {
	repo FallbackDataRepo
}

func (s *trendingStrategy) Method() string { return "trending" }

func (s *trendingStrategy) Fetch(ctx context.Context, req *model.RecommendationRequest, user *model.UserContext) (*model.FallbackResult, error) {
	items, err := s.repo.Trending(ctx, req.Limit)
	if err != nil {
		return nil, err
	}
	return strategyResult(items, req.Limit, confTrending), nil
}

// randomPopularStrategy samples the popular pool. Non-deterministic: two
// runs with the same request may return different items.
type randomPopularStrategy struct {
	repo FallbackDataRepo
}

func (s *randomPopularStrategy) Method() string { return "random_popular" }

func (s *randomPopularStrategy) Fetch(ctx context.Context, req *model.RecommendationRequest, user *model.UserContext) (*model.FallbackResult, error) {
	items, err := s.repo.RandomPopular(ctx, req.Limit)
	if err != nil {
		return nil, err
	}
	return strategyResult(items, req.Limit, confRandomPopular), nil
}

// emergencyStaticStrategy is the configured last rung of the table. It
// serves the same static catalog as the cascade's exhaustion path, but as a
// regular strategy so operators can reweight or disable it.
type emergencyStaticStrategy struct{}

func (s *emergencyStaticStrategy) Method() string { return "emergency_static" }

func (s *emergencyStaticStrategy) Fetch(ctx context.Context, req *model.RecommendationRequest, user *model.UserContext) (*model.FallbackResult, error) {
	return &model.FallbackResult{
		Items:      emergencyCatalog(),
		Confidence: 0.1,
	}, nil
}

// strategyResult wraps raw items with a fill-ratio-scaled confidence.
func strategyResult(items []*model.MovieItem, limit int, base float64) *model.FallbackResult {
	if len(items) == 0 {
		return nil
	}
	confidence := base
	if limit > 0 && len(items) < limit {
		confidence = base * float64(len(items)) / float64(limit)
	}
	return &model.FallbackResult{
		Items:      items,
		Confidence: confidence,
	}
}
