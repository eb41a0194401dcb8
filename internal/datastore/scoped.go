package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vyrodovalexey/basefn/internal/auth"
)

// Database roles a scoped transaction runs as.
const (
	RoleAnon          = "anon"
	RoleAuthenticated = "authenticated"
	RoleService       = "service_role"
)

// ServiceOwner owns entries written by service callers.
const ServiceOwner = "service"

// Scoped is a datastore handle bound to one caller. Row access through it
// is limited to what the caller owns.
type Scoped struct {
	db     *DB
	caller auth.Identity
}

// ForCaller returns a handle scoped to caller.
func (db *DB) ForCaller(caller auth.Identity) *Scoped {
	return &Scoped{db: db, caller: caller}
}

// Caller returns the identity the handle is scoped to.
func (s *Scoped) Caller() auth.Identity {
	return s.caller
}

// Role returns the database role for the scoped caller.
func (s *Scoped) Role() string {
	switch s.caller.Kind() {
	case auth.KindService:
		return RoleService
	case auth.KindUser:
		return RoleAuthenticated
	default:
		return RoleAnon
	}
}

func (s *Scoped) owner() (string, error) {
	switch s.caller.Kind() {
	case auth.KindService:
		return ServiceOwner, nil
	case auth.KindUser:
		return s.caller.UserID(), nil
	default:
		return "", ErrNoOwner
	}
}

// claims returns the JSON claims published to row-level policies.
func (s *Scoped) claims() (string, error) {
	c := map[string]string{"role": s.Role()}
	if s.caller.IsUser() {
		c["sub"] = s.caller.UserID()
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Tx runs fn in a transaction. On Postgres the caller's claims are
// installed first so row-level policies see them.
func (s *Scoped) Tx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.db.driver == DriverPostgres {
		if err = s.applyClaims(ctx, tx); err != nil {
			return err
		}
	}

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Scoped) applyClaims(ctx context.Context, tx *sql.Tx) error {
	claims, err := s.claims()
	if err != nil {
		return fmt.Errorf("encode caller claims: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT set_config('request.jwt.claims', $1, true)`, claims); err != nil {
		return fmt.Errorf("set caller claims: %w", err)
	}
	if s.db.switchRole {
		if _, err := tx.ExecContext(ctx, `SELECT set_config('role', $1, true)`, s.Role()); err != nil {
			return fmt.Errorf("set caller role: %w", err)
		}
	}
	return nil
}

// Get returns the value stored under namespace/key for the caller.
func (s *Scoped) Get(ctx context.Context, namespace, key string) (string, error) {
	owner, err := s.owner()
	if err != nil {
		return "", err
	}

	var value string
	err = s.Tx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			s.db.rebind(`SELECT value FROM kv_entries WHERE owner = ? AND namespace = ? AND entry_key = ?`),
			owner, namespace, key,
		).Scan(&value)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s/%s: %w", namespace, key, err)
	}
	return value, nil
}

// Put stores value under namespace/key for the caller, replacing any
// previous value.
func (s *Scoped) Put(ctx context.Context, namespace, key, value string) error {
	owner, err := s.owner()
	if err != nil {
		return err
	}

	err = s.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.db.rebind(`INSERT INTO kv_entries (owner, namespace, entry_key, value, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (owner, namespace, entry_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`),
			owner, namespace, key, value, s.db.now().UnixMilli(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Delete removes namespace/key for the caller and reports whether an
// entry existed.
func (s *Scoped) Delete(ctx context.Context, namespace, key string) (bool, error) {
	owner, err := s.owner()
	if err != nil {
		return false, err
	}

	var n int64
	err = s.Tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			s.db.rebind(`DELETE FROM kv_entries WHERE owner = ? AND namespace = ? AND entry_key = ?`),
			owner, namespace, key,
		)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", namespace, key, err)
	}
	return n > 0, nil
}
