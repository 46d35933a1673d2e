package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/storage"
)

var sqlColumns = map[Column]string{
	ColumnName:  "KOK_PRODUCT_NAME",
	ColumnStore: "KOK_STORE_NAME",
}

// SQLStore reads both catalogs through database/sql. Queries use $n placeholders in
// ascending order so they run unchanged on Postgres and SQLite.
type SQLStore struct {
	db storage.DB
}

// NewSQLStore creates a catalog store over db.
func NewSQLStore(db storage.DB) *SQLStore {
	return &SQLStore{db: db}
}

// NameByID returns the name of the earliest airing of a broadcast product.
func (s *SQLStore) NameByID(ctx context.Context, id domain.ProductID) (string, error) {
	query := `
		SELECT PRODUCT_NAME FROM FCT_HOMESHOPPING_LIST
		WHERE PRODUCT_ID = $1
		ORDER BY LIVE_DATE ASC, LIVE_START_TIME ASC, LIVE_ID ASC
		LIMIT 1
	`
	var name sql.NullString
	err := s.db.QueryRowContext(ctx, query, int64(id)).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query product name: %w", err)
	}
	return name.String, nil
}

// RecordsByIDs loads candidate records together with their first discounted price.
func (s *SQLStore) RecordsByIDs(ctx context.Context, ids []domain.ProductID) ([]domain.DisplayRecord, error) {
	ids = domain.DedupeIDs(ids, 0)
	if len(ids) == 0 {
		return nil, nil
	}
	in, args := inClause(ids, 1)

	query := `
		SELECT KOK_PRODUCT_ID, KOK_PRODUCT_NAME, KOK_STORE_NAME, KOK_THUMBNAIL,
			KOK_PRODUCT_PRICE, KOK_DISCOUNT_RATE, KOK_REVIEW_CNT
		FROM FCT_KOK_PRODUCT_INFO
		WHERE KOK_PRODUCT_ID IN (` + in + `)
	`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query product records: %w", err)
	}
	defer rows.Close()

	var records []domain.DisplayRecord
	for rows.Next() {
		var (
			id                     int64
			name, store, thumbnail sql.NullString
			price, rate, reviews   sql.NullInt64
		)
		if err := rows.Scan(&id, &name, &store, &thumbnail, &price, &rate, &reviews); err != nil {
			return nil, fmt.Errorf("scan product record: %w", err)
		}
		records = append(records, domain.DisplayRecord{
			ID:           domain.ProductID(id),
			Name:         name.String,
			StoreName:    store.String,
			Thumbnail:    thumbnail.String,
			Price:        int(price.Int64),
			DiscountRate: int(rate.Int64),
			ReviewCount:  int(reviews.Int64),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product records: %w", err)
	}

	prices, err := s.discountedPrices(ctx, in, args)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if p, ok := prices[records[i].ID]; ok {
			records[i].DiscountedPrice = p.price
			if p.rate > 0 {
				records[i].DiscountRate = p.rate
			}
		}
		records[i] = fillDefaults(records[i])
	}
	return records, nil
}

type priceInfo struct {
	price int
	rate  int
}

// discountedPrices returns, per product, the first price row carrying a discounted price.
func (s *SQLStore) discountedPrices(ctx context.Context, in string, args []interface{}) (map[domain.ProductID]priceInfo, error) {
	query := `
		SELECT KOK_PRODUCT_ID, KOK_DISCOUNTED_PRICE, KOK_DISCOUNT_RATE
		FROM FCT_KOK_PRICE_INFO
		WHERE KOK_PRODUCT_ID IN (` + in + `) AND KOK_DISCOUNTED_PRICE IS NOT NULL
		ORDER BY KOK_PRICE_ID ASC
	`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query price info: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.ProductID]priceInfo)
	for rows.Next() {
		var (
			id          int64
			price, rate sql.NullInt64
		)
		if err := rows.Scan(&id, &price, &rate); err != nil {
			return nil, fmt.Errorf("scan price info: %w", err)
		}
		pid := domain.ProductID(id)
		if _, seen := out[pid]; seen || price.Int64 == 0 {
			continue
		}
		out[pid] = priceInfo{price: int(price.Int64), rate: int(rate.Int64)}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price info: %w", err)
	}
	return out, nil
}

// SearchIDs runs a substring search over the candidate catalog, ids ascending.
func (s *SQLStore) SearchIDs(ctx context.Context, p Predicate, limit int) ([]domain.ProductID, error) {
	if p.Empty() || limit <= 0 {
		return nil, nil
	}

	where, args, err := buildWhere(p)
	if err != nil {
		return nil, err
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT KOK_PRODUCT_ID FROM FCT_KOK_PRODUCT_INFO
		WHERE %s
		ORDER BY KOK_PRODUCT_ID ASC
		LIMIT $%d
	`, where, len(args))

	return s.queryIDs(ctx, query, args...)
}

// Popular returns the most reviewed candidate records.
func (s *SQLStore) Popular(ctx context.Context, limit int) ([]domain.DisplayRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `
		SELECT KOK_PRODUCT_ID FROM FCT_KOK_PRODUCT_INFO
		ORDER BY COALESCE(KOK_REVIEW_CNT, 0) DESC, KOK_PRODUCT_ID ASC
		LIMIT $1
	`
	ids, err := s.queryIDs(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	records, err := s.RecordsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return orderByIDs(records, ids), nil
}

// ListProducts implements Lister.
func (s *SQLStore) ListProducts(ctx context.Context, afterID domain.ProductID, limit int) ([]domain.DisplayRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `
		SELECT KOK_PRODUCT_ID, KOK_PRODUCT_NAME, KOK_STORE_NAME
		FROM FCT_KOK_PRODUCT_INFO
		WHERE KOK_PRODUCT_ID > $1
		ORDER BY KOK_PRODUCT_ID ASC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, int64(afterID), limit)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []domain.DisplayRecord
	for rows.Next() {
		var (
			id          int64
			name, store sql.NullString
		)
		if err := rows.Scan(&id, &name, &store); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, domain.DisplayRecord{ID: domain.ProductID(id), Name: name.String, StoreName: store.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return out, nil
}

func (s *SQLStore) queryIDs(ctx context.Context, query string, args ...interface{}) ([]domain.ProductID, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query product ids: %w", err)
	}
	defer rows.Close()

	var ids []domain.ProductID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan product id: %w", err)
		}
		ids = append(ids, domain.ProductID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product ids: %w", err)
	}
	return ids, nil
}

// buildWhere renders the predicate with one placeholder per (term, column) pair.
func buildWhere(p Predicate) (string, []interface{}, error) {
	cols := make([]string, 0, len(p.Columns))
	for _, c := range p.Columns {
		name, ok := sqlColumns[c]
		if !ok {
			return "", nil, fmt.Errorf("unknown search column %q", c)
		}
		cols = append(cols, name)
	}

	var (
		groups []string
		args   []interface{}
	)
	for _, term := range p.Terms {
		likes := make([]string, 0, len(cols))
		for _, col := range cols {
			args = append(args, escapeLike(term))
			likes = append(likes, fmt.Sprintf(`%s LIKE '%%' || CAST($%d AS TEXT) || '%%' ESCAPE '\'`, col, len(args)))
		}
		groups = append(groups, "("+strings.Join(likes, " OR ")+")")
	}

	joiner := " OR "
	if p.Mode == MatchAll {
		joiner = " AND "
	}
	return strings.Join(groups, joiner), args, nil
}

func escapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}

func inClause(ids []domain.ProductID, start int) (string, []interface{}) {
	marks := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		marks[i] = fmt.Sprintf("$%d", start+i)
		args[i] = int64(id)
	}
	return strings.Join(marks, ", "), args
}

// orderByIDs returns records in the order of ids, dropping ids without a record.
func orderByIDs(records []domain.DisplayRecord, ids []domain.ProductID) []domain.DisplayRecord {
	byID := make(map[domain.ProductID]domain.DisplayRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	out := make([]domain.DisplayRecord, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

func sortIDs(ids []domain.ProductID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

var (
	_ Catalog = (*SQLStore)(nil)
	_ Lister  = (*SQLStore)(nil)
)
