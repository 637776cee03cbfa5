package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quiz-match-service/internal/domain"
)

type matchResultRow struct {
	bun.BaseModel `bun:"table:match_results,alias:mr"`

	MatchID   string    `bun:"match_id,pk"`
	QuizID    string    `bun:"quiz_id,notnull"`
	Code      string    `bun:"code,notnull"`
	Status    string    `bun:"status,notnull"`
	Reason    string    `bun:"reason,notnull"`
	WinnerID  string    `bun:"winner_id,nullzero"`
	Scope     string    `bun:"scope,notnull"`
	StartedAt time.Time `bun:"started_at,nullzero"`
	EndedAt   time.Time `bun:"ended_at,notnull"`
}

type matchPlayerRow struct {
	bun.BaseModel `bun:"table:match_players,alias:mp"`

	MatchID      string                `bun:"match_id,pk"`
	UserID       string                `bun:"user_id,pk"`
	DisplayName  string                `bun:"display_name,notnull"`
	Rank         int                   `bun:"rank,notnull"`
	Score        int                   `bun:"score,notnull"`
	CorrectCount int                   `bun:"correct_count,notnull"`
	TotalTimeMs  int64                 `bun:"total_time_ms,notnull"`
	Evicted      bool                  `bun:"evicted,notnull"`
	RatingBefore int                   `bun:"rating_before,notnull"`
	RatingAfter  int                   `bun:"rating_after,notnull"`
	Answers      []domain.AnswerRecord `bun:"answers,type:jsonb"`
}

type ratingRow struct {
	bun.BaseModel `bun:"table:ratings,alias:r"`

	UserID    string    `bun:"user_id,pk"`
	Scope     string    `bun:"scope,pk"`
	Rating    int       `bun:"rating,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// ResultRepository writes finished matches and ratings with bun.
type ResultRepository struct {
	db  *bun.DB
	now func() time.Time
}

func NewResultRepository(db *bun.DB) *ResultRepository {
	return &ResultRepository{db: db, now: time.Now}
}

func (r *ResultRepository) Ratings(ctx context.Context, scope string, userIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var rows []ratingRow
	err := r.db.NewSelect().
		Model(&rows).
		Where("r.scope = ?", scope).
		Where("r.user_id IN (?)", bun.In(userIDs)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select ratings: %w", err)
	}
	for _, row := range rows {
		out[row.UserID] = row.Rating
	}
	return out, nil
}

// SaveMatch inserts the match record and per-player rows and upserts ratings in one transaction.
func (r *ResultRepository) SaveMatch(ctx context.Context, result domain.MatchResult) error {
	now := r.now()
	match := &matchResultRow{
		MatchID:   result.MatchID,
		QuizID:    result.QuizID,
		Code:      result.Code,
		Status:    string(result.Status),
		Reason:    result.Reason,
		WinnerID:  result.WinnerID,
		Scope:     result.Scope,
		StartedAt: result.StartedAt,
		EndedAt:   result.EndedAt,
	}
	players := make([]matchPlayerRow, 0, len(result.Standings))
	ratings := make([]ratingRow, 0, len(result.Standings))
	for _, st := range result.Standings {
		players = append(players, matchPlayerRow{
			MatchID:      result.MatchID,
			UserID:       st.UserID,
			DisplayName:  st.DisplayName,
			Rank:         st.Rank,
			Score:        st.Score,
			CorrectCount: st.CorrectCount,
			TotalTimeMs:  st.TotalTimeMs,
			Evicted:      st.Evicted,
			RatingBefore: st.RatingBefore,
			RatingAfter:  st.RatingAfter,
			Answers:      result.Answers[st.UserID],
		})
		ratings = append(ratings, ratingRow{
			UserID:    st.UserID,
			Scope:     result.Scope,
			Rating:    st.RatingAfter,
			UpdatedAt: now,
		})
	}

	return r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(match).Exec(ctx); err != nil {
			return fmt.Errorf("insert match result: %w", err)
		}
		if len(players) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&players).Exec(ctx); err != nil {
			return fmt.Errorf("insert match players: %w", err)
		}
		_, err := tx.NewInsert().
			Model(&ratings).
			On("CONFLICT (user_id, scope) DO UPDATE").
			Set("rating = EXCLUDED.rating").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert ratings: %w", err)
		}
		return nil
	})
}

// MatchPlayers returns the stored rows of a match ordered by rank.
func (r *ResultRepository) MatchPlayers(ctx context.Context, matchID string) ([]domain.Standing, error) {
	var rows []matchPlayerRow
	err := r.db.NewSelect().
		Model(&rows).
		Where("mp.match_id = ?", matchID).
		Order("mp.rank ASC", "mp.user_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select match players: %w", err)
	}
	out := make([]domain.Standing, len(rows))
	for i, row := range rows {
		out[i] = domain.Standing{
			Rank:         row.Rank,
			UserID:       row.UserID,
			DisplayName:  row.DisplayName,
			Score:        row.Score,
			CorrectCount: row.CorrectCount,
			TotalTimeMs:  row.TotalTimeMs,
			Evicted:      row.Evicted,
			RatingBefore: row.RatingBefore,
			RatingAfter:  row.RatingAfter,
			RatingDelta:  row.RatingAfter - row.RatingBefore,
		}
	}
	return out, nil
}
