package bankwire

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/flemzord/storemods/internal/core"
)

const table = Name + "_transactions"

const schema = `CREATE TABLE IF NOT EXISTS ` + table + ` (
	reference  VARCHAR(32)  NOT NULL PRIMARY KEY,
	order_id   VARCHAR(64)  NOT NULL,
	amount     BIGINT       NOT NULL,
	currency   VARCHAR(8)   NOT NULL,
	email      VARCHAR(255) NOT NULL,
	status     VARCHAR(16)  NOT NULL,
	created_at VARCHAR(40)  NOT NULL,
	updated_at VARCHAR(40)  NOT NULL
)`

// ErrUnknownReference is returned for references with no transaction.
var ErrUnknownReference = errors.New("unknown transfer reference")

// Transaction is one bank wire payment.
type Transaction struct {
	Reference string             `json:"reference"`
	OrderID   string             `json:"order_id"`
	Amount    int64              `json:"amount"`
	Currency  string             `json:"currency"`
	Email     string             `json:"email"`
	Status    core.PaymentStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// ensureSchema creates the table once per process. Modules restored by
// LoadAll are installed without their Install hook running, so every
// database access goes through here.
func (m *Module) ensureSchema(ctx context.Context) error {
	st := m.Store()
	if st == nil {
		return errNoStore
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.schema {
		return nil
	}
	if _, err := st.DB().ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("bankwire: create %s: %w", table, err)
	}
	m.schema = true
	return nil
}

func (m *Module) insert(ctx context.Context, tx Transaction) error {
	if err := m.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := m.Store().DB().ExecContext(ctx, `
		INSERT INTO `+table+` (reference, order_id, amount, currency, email, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.Reference, tx.OrderID, tx.Amount, tx.Currency, tx.Email, string(tx.Status),
		tx.CreatedAt.Format(time.RFC3339Nano), tx.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

// Transaction returns the payment recorded under reference.
func (m *Module) Transaction(ctx context.Context, reference string) (Transaction, error) {
	if err := m.ensureSchema(ctx); err != nil {
		return Transaction{}, err
	}
	var (
		tx               Transaction
		status           string
		created, updated string
	)
	err := m.Store().DB().QueryRowContext(ctx, `
		SELECT reference, order_id, amount, currency, email, status, created_at, updated_at
		FROM `+table+` WHERE reference = ?`, reference,
	).Scan(&tx.Reference, &tx.OrderID, &tx.Amount, &tx.Currency, &tx.Email, &status, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, fmt.Errorf("%w: %s", ErrUnknownReference, reference)
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("bankwire: load %s: %w", reference, err)
	}
	tx.Status = core.PaymentStatus(status)
	tx.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	tx.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return tx, nil
}

// SetStatus moves a transaction to status.
func (m *Module) SetStatus(ctx context.Context, reference string, status core.PaymentStatus) error {
	switch status {
	case core.PaymentPending, core.PaymentCompleted, core.PaymentFailed:
	default:
		return fmt.Errorf("bankwire: invalid status %q", status)
	}
	if err := m.ensureSchema(ctx); err != nil {
		return err
	}
	res, err := m.Store().DB().ExecContext(ctx,
		`UPDATE `+table+` SET status = ?, updated_at = ? WHERE reference = ?`,
		string(status), now().UTC().Format(time.RFC3339Nano), reference,
	)
	if err != nil {
		return fmt.Errorf("bankwire: update %s: %w", reference, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownReference, reference)
	}
	m.Logger().Info("bank wire payment updated", "reference", reference, "status", status)
	return nil
}

// notification is the body a bank reconciliation service posts to the
// module webhook.
type notification struct {
	Reference string             `json:"reference"`
	Status    core.PaymentStatus `json:"status"`
}

// HandleWebhook applies a transfer notification.
func (m *Module) HandleWebhook(ctx context.Context, body []byte, _ http.Header) error {
	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return fmt.Errorf("bankwire: decoding notification: %w", err)
	}
	if n.Reference == "" {
		return errors.New("bankwire: notification without reference")
	}
	return m.SetStatus(ctx, n.Reference, n.Status)
}
