package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jhoicas/stock-ledger/internal/domain"
)

// isUniqueViolation verifica si un error es una violación de constraint único (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return strings.Contains(err.Error(), "23505")
}

// txError conserva los errores de negocio y marca el resto como fallo de transacción.
func txError(op string, err error) error {
	if err == nil || domain.IsBusinessError(err) {
		return err
	}
	return domain.TransactionFailure(op, err)
}
