package conn

import (
	"context"
	"fmt"
)

// TransactionMode selects the form of the START TRANSACTION statement
// StartTransaction issues.
type TransactionMode int

const (
	// TxDefault issues a plain "START TRANSACTION".
	TxDefault TransactionMode = iota
	// TxConsistentSnapshot issues "START TRANSACTION WITH CONSISTENT SNAPSHOT",
	// pinning a repeatable-read view as of the transaction's start.
	TxConsistentSnapshot
	// TxReadOnly issues "START TRANSACTION READ ONLY".
	TxReadOnly
	// TxReadWrite issues "START TRANSACTION READ WRITE".
	TxReadWrite
)

func (m TransactionMode) statement() (string, error) {
	switch m {
	case TxDefault:
		return "START TRANSACTION", nil
	case TxConsistentSnapshot:
		return "START TRANSACTION WITH CONSISTENT SNAPSHOT", nil
	case TxReadOnly:
		return "START TRANSACTION READ ONLY", nil
	case TxReadWrite:
		return "START TRANSACTION READ WRITE", nil
	default:
		return "", fmt.Errorf("conn: unknown transaction mode %d", m)
	}
}

// StartTransaction issues the START TRANSACTION form selected by mode. It
// fails with ErrTransactionActive if one is already open on this
// connection.
func (c *Conn) StartTransaction(ctx context.Context, mode TransactionMode) error {
	if c.InTransaction() {
		return ErrTransactionActive
	}
	stmt, err := mode.statement()
	if err != nil {
		return err
	}
	rs, err := c.Query(ctx, stmt)
	if err != nil {
		return fmt.Errorf("conn: start transaction: %w", err)
	}
	_ = rs.Drop(ctx)
	c.mu.Lock()
	c.inTransaction = true
	c.dirty = false
	c.mu.Unlock()
	return nil
}

// Commit issues COMMIT and clears the in-transaction flag.
func (c *Conn) Commit(ctx context.Context) error {
	if !c.InTransaction() {
		return ErrNoActiveTransaction
	}
	rs, err := c.Query(ctx, "COMMIT")
	if err != nil {
		return fmt.Errorf("conn: commit: %w", err)
	}
	_ = rs.Drop(ctx)
	c.mu.Lock()
	c.inTransaction = false
	c.dirty = false
	c.mu.Unlock()
	return nil
}

// Rollback issues ROLLBACK and clears the in-transaction flag. Unlike
// Commit, Rollback on a connection with no recorded open transaction is not
// an error: it is also used as the pool's defensive cleanup step for a
// connection that might be dirty for reasons other than an explicit
// StartTransaction call (e.g. autocommit was off).
func (c *Conn) Rollback(ctx context.Context) error {
	rs, err := c.Query(ctx, "ROLLBACK")
	if err != nil {
		return fmt.Errorf("conn: rollback: %w", err)
	}
	_ = rs.Drop(ctx)
	c.mu.Lock()
	c.inTransaction = false
	c.dirty = false
	c.mu.Unlock()
	return nil
}
