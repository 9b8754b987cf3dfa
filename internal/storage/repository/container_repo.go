package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ramonehamilton/cardvault/internal/inventory"
)

const containerSelect = `
	SELECT id, user_id, kind, name, description, format, commander,
		wishlist, stats, created_at, updated_at
	FROM containers
`

// containerRepository is the SQL implementation of
// inventory.ContainerRepository. A container's ledger lives in
// container_allocations and is replaced as a whole on every Put.
type containerRepository struct {
	db *sql.DB
}

// NewContainerRepository creates a new container repository.
func NewContainerRepository(db *sql.DB) inventory.ContainerRepository {
	return &containerRepository{db: db}
}

// GetByID retrieves a container and its ledger. Returns nil if not found.
func (r *containerRepository) GetByID(ctx context.Context, id string) (*inventory.Container, error) {
	row := r.db.QueryRowContext(ctx, containerSelect+` WHERE id = ?`, id)

	c, err := scanContainer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get container: %w", err)
	}

	if c.Allocations, err = r.allocations(ctx, c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

// List retrieves a user's containers of one kind, oldest first.
func (r *containerRepository) List(ctx context.Context, userID string, kind inventory.ContainerKind) ([]*inventory.Container, error) {
	rows, err := r.db.QueryContext(ctx,
		containerSelect+` WHERE user_id = ? AND kind = ? ORDER BY created_at, id`,
		userID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	var containers []*inventory.Container
	for rows.Next() {
		c, err := scanContainer(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan container: %w", err)
		}
		containers = append(containers, c)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("error iterating containers: %w", err)
	}
	_ = rows.Close()

	// Ledgers are read after the container cursor is closed so a
	// single-connection pool is not held by two cursors.
	for _, c := range containers {
		if c.Allocations, err = r.allocations(ctx, c.ID); err != nil {
			return nil, err
		}
	}

	return containers, nil
}

// Put inserts or fully replaces a container, ledger included.
func (r *containerRepository) Put(ctx context.Context, c *inventory.Container) error {
	wishlist, err := marshalNullable(c.Wishlist, len(c.Wishlist) == 0)
	if err != nil {
		return fmt.Errorf("failed to encode wishlist: %w", err)
	}
	stats, err := json.Marshal(c.Stats)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}

	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO containers (
				id, user_id, kind, name, description, format, commander,
				wishlist, stats, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				description = excluded.description,
				format = excluded.format,
				commander = excluded.commander,
				wishlist = excluded.wishlist,
				stats = excluded.stats,
				updated_at = excluded.updated_at
		`,
			c.ID,
			c.UserID,
			string(c.Kind),
			c.Name,
			c.Description,
			c.Format,
			c.Commander,
			wishlist,
			string(stats),
			formatTime(c.CreatedAt),
			formatTime(c.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert container: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM container_allocations WHERE container_id = ?`, c.ID); err != nil {
			return fmt.Errorf("failed to clear allocations: %w", err)
		}

		for i, a := range c.Allocations {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO container_allocations (
					container_id, position, card_id, quantity, is_in_sideboard, added_at
				) VALUES (?, ?, ?, ?, ?, ?)
			`, c.ID, i, a.CardID, a.Quantity, boolToInt(a.IsInSideboard), formatTime(a.AddedAt))
			if err != nil {
				return fmt.Errorf("failed to insert allocation %s: %w", a.CardID, err)
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put container: %w", err)
	}

	return nil
}

// Delete deletes a container and its ledger.
func (r *containerRepository) Delete(ctx context.Context, id string) error {
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM container_allocations WHERE container_id = ?`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM containers WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete container: %w", err)
	}
	return nil
}

func (r *containerRepository) allocations(ctx context.Context, containerID string) ([]inventory.Allocation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT card_id, quantity, is_in_sideboard, added_at
		FROM container_allocations
		WHERE container_id = ?
		ORDER BY position
	`, containerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	allocations := []inventory.Allocation{}
	for rows.Next() {
		var (
			a         inventory.Allocation
			sideboard int
			addedAt   string
		)
		if err := rows.Scan(&a.CardID, &a.Quantity, &sideboard, &addedAt); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		a.IsInSideboard = sideboard == 1
		if a.AddedAt, err = parseTime(addedAt); err != nil {
			return nil, err
		}
		allocations = append(allocations, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allocations: %w", err)
	}

	return allocations, nil
}

func scanContainer(s scanner) (*inventory.Container, error) {
	var (
		c                    inventory.Container
		kind                 string
		wishlist, stats      sql.NullString
		createdAt, updatedAt string
	)

	err := s.Scan(
		&c.ID,
		&c.UserID,
		&kind,
		&c.Name,
		&c.Description,
		&c.Format,
		&c.Commander,
		&wishlist,
		&stats,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Kind = inventory.ContainerKind(kind)
	if wishlist.Valid {
		if err := json.Unmarshal([]byte(wishlist.String), &c.Wishlist); err != nil {
			return nil, fmt.Errorf("invalid wishlist: %w", err)
		}
	}
	if stats.Valid {
		if err := json.Unmarshal([]byte(stats.String), &c.Stats); err != nil {
			return nil, fmt.Errorf("invalid stats: %w", err)
		}
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &c, nil
}
