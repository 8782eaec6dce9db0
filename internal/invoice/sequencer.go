package invoice

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Sequencer issues strictly increasing invoice numbers from a single counter
// row. The UPDATE takes the row lock, so concurrent sales serialize on it and
// can never draw the same number.
type Sequencer struct{}

func NewSequencer() *Sequencer { return &Sequencer{} }

const (
	advanceSQL = `
		UPDATE invoice_counters
		SET last_number = last_number + 1
		WHERE singleton
		RETURNING last_number`
	seedSQL = `
		INSERT INTO invoice_counters (singleton, last_number)
		SELECT TRUE, COALESCE(MAX(invoice_number), 0) FROM sales
		ON CONFLICT (singleton) DO NOTHING`
)

// Next advances the counter inside the caller's transaction and returns the
// new number. On first use the counter is seeded from the highest invoice
// number already persisted.
func (s *Sequencer) Next(ctx context.Context, tx pgx.Tx) (int64, error) {
	var n int64
	err := tx.QueryRow(ctx, advanceSQL).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := tx.Exec(ctx, seedSQL); err != nil {
			return 0, fmt.Errorf("seed invoice counter: %w", err)
		}
		err = tx.QueryRow(ctx, advanceSQL).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("advance invoice counter: %w", err)
	}
	return n, nil
}

// Reference renders an invoice number the way it appears on documents and in
// the stock movement history.
func Reference(n int64) string {
	return fmt.Sprintf("INV-%06d", n)
}
