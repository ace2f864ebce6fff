package store

import (
	"context"
	"time"

	"intranet/types"

	sq "github.com/Masterminds/squirrel"
)

// AnalyticsStorer computes usage aggregates over the chat history.
type AnalyticsStorer interface {
	AnalyticsSummary(ctx context.Context, days, limit int) (*types.AnalyticsSummary, error)
}

const (
	maxAnalyticsDays  = 365
	maxAnalyticsLimit = 50
)

// AnalyticsSummary aggregates chat activity over the last `days` days.
// Rankings (sources, questions) are capped at `limit` entries.
func (p *PostgresStore) AnalyticsSummary(ctx context.Context, days, limit int) (*types.AnalyticsSummary, error) {
	if days < 1 {
		days = 1
	}
	if days > maxAnalyticsDays {
		days = maxAnalyticsDays
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxAnalyticsLimit {
		limit = maxAnalyticsLimit
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	summary := &types.AnalyticsSummary{
		Days:        days,
		Departments: map[string]int64{},
	}

	if err := p.countRow(ctx, psql.Select("COUNT(*)").From("conversations").
		Where(sq.GtOrEq{"created_at": since}), &summary.TotalConversations); err != nil {
		return nil, err
	}
	if err := p.countRow(ctx, psql.Select("COUNT(*)").From("messages").
		Where(sq.GtOrEq{"created_at": since}), &summary.TotalMessages); err != nil {
		return nil, err
	}
	if err := p.countRow(ctx, psql.Select("COUNT(*)").From("messages").
		Where(sq.GtOrEq{"created_at": since}).
		Where(sq.Eq{"role": types.RoleUser}), &summary.TotalQuestions); err != nil {
		return nil, err
	}

	if err := p.departmentCounts(ctx, since, summary); err != nil {
		return nil, err
	}
	if err := p.feedbackCounts(ctx, since, summary); err != nil {
		return nil, err
	}

	daily, err := p.dailyQuestionCounts(ctx, since)
	if err != nil {
		return nil, err
	}
	summary.Daily = daily

	sources, err := p.labelCounts(ctx, psql.
		Select("s.source AS label", "COUNT(*) AS cnt").
		From("messages m").
		JoinClause("CROSS JOIN LATERAL unnest(m.sources) AS s(source)").
		Where(sq.GtOrEq{"m.created_at": since}).
		Where(sq.Eq{"m.role": types.RoleAssistant}).
		GroupBy("s.source").
		OrderBy("cnt DESC", "s.source ASC").
		Limit(uint64(limit)))
	if err != nil {
		return nil, err
	}
	summary.TopSources = sources

	questions, err := p.labelCounts(ctx, psql.
		Select("LOWER(TRIM(content)) AS label", "COUNT(*) AS cnt").
		From("messages").
		Where(sq.GtOrEq{"created_at": since}).
		Where(sq.Eq{"role": types.RoleUser}).
		GroupBy("LOWER(TRIM(content))").
		Having("COUNT(*) > 1").
		OrderBy("cnt DESC", "label ASC").
		Limit(uint64(limit)))
	if err != nil {
		return nil, err
	}
	summary.TopQuestions = questions

	if err := p.qualityRates(ctx, since, summary); err != nil {
		return nil, err
	}
	return summary, nil
}

func (p *PostgresStore) countRow(ctx context.Context, b sq.SelectBuilder, dst *int64) error {
	query, args, err := b.ToSql()
	if err != nil {
		return err
	}
	return p.pool.QueryRow(ctx, query, args...).Scan(dst)
}

func (p *PostgresStore) departmentCounts(ctx context.Context, since time.Time, summary *types.AnalyticsSummary) error {
	query, args, err := psql.
		Select("COALESCE(department, 'GENERAL') AS dept", "COUNT(*)").
		From("messages").
		Where(sq.GtOrEq{"created_at": since}).
		Where(sq.Eq{"role": types.RoleAssistant}).
		GroupBy("dept").
		ToSql()
	if err != nil {
		return err
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			dept  string
			count int64
		)
		if err := rows.Scan(&dept, &count); err != nil {
			return err
		}
		summary.Departments[dept] = count
	}
	return rows.Err()
}

func (p *PostgresStore) feedbackCounts(ctx context.Context, since time.Time, summary *types.AnalyticsSummary) error {
	query, args, err := psql.
		Select("feedback", "COUNT(*)").
		From("messages").
		Where(sq.GtOrEq{"created_at": since}).
		Where(sq.Eq{"feedback": []string{types.FeedbackUp, types.FeedbackDown}}).
		GroupBy("feedback").
		ToSql()
	if err != nil {
		return err
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			feedback string
			count    int64
		)
		if err := rows.Scan(&feedback, &count); err != nil {
			return err
		}
		switch feedback {
		case types.FeedbackUp:
			summary.FeedbackUp = count
		case types.FeedbackDown:
			summary.FeedbackDown = count
		}
	}
	return rows.Err()
}

func (p *PostgresStore) dailyQuestionCounts(ctx context.Context, since time.Time) ([]types.DailyCount, error) {
	query, args, err := psql.
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') AS day", "COUNT(*)").
		From("messages").
		Where(sq.GtOrEq{"created_at": since}).
		Where(sq.Eq{"role": types.RoleUser}).
		GroupBy("day").
		OrderBy("day ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []types.DailyCount
	for rows.Next() {
		var d types.DailyCount
		if err := rows.Scan(&d.Date, &d.Count); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (p *PostgresStore) labelCounts(ctx context.Context, b sq.SelectBuilder) ([]types.LabelCount, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []types.LabelCount
	for rows.Next() {
		var lc types.LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			return nil, err
		}
		items = append(items, lc)
	}
	return items, rows.Err()
}

func (p *PostgresStore) qualityRates(ctx context.Context, since time.Time, summary *types.AnalyticsSummary) error {
	query, args, err := psql.
		Select(
			"COALESCE(AVG(confidence) FILTER (WHERE NOT error AND confidence IS NOT NULL), 0)",
			"COUNT(*) FILTER (WHERE error)",
			"COUNT(*)",
		).
		From("messages").
		Where(sq.GtOrEq{"created_at": since}).
		Where(sq.Eq{"role": types.RoleAssistant}).
		ToSql()
	if err != nil {
		return err
	}

	var (
		avgConfidence float64
		errCount      int64
		total         int64
	)
	if err := p.pool.QueryRow(ctx, query, args...).Scan(&avgConfidence, &errCount, &total); err != nil {
		return err
	}
	summary.AvgConfidence = avgConfidence
	if total > 0 {
		summary.ErrorRate = float64(errCount) / float64(total)
	}
	return nil
}
