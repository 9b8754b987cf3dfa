package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ramonehamilton/cardvault/internal/inventory"
)

// cardColumns maps queryable card fields to their columns.
var cardColumns = map[inventory.CardField]string{
	inventory.FieldScryfallID: "scryfall_id",
	inventory.FieldStatus:     "status",
	inventory.FieldEdition:    "edition",
	inventory.FieldCondition:  "condition",
	inventory.FieldFoil:       "foil",
}

const cardSelect = `
	SELECT id, user_id, scryfall_id, name, edition, condition, foil, quantity,
		status, price, image, mana_value, type_line, colors, created_at, updated_at
	FROM cards
`

// cardRepository is the SQL implementation of inventory.CardRepository.
type cardRepository struct {
	db *sql.DB
}

// NewCardRepository creates a new card repository.
func NewCardRepository(db *sql.DB) inventory.CardRepository {
	return &cardRepository{db: db}
}

// GetByID retrieves a card by its ID. Returns nil if not found.
func (r *cardRepository) GetByID(ctx context.Context, id string) (*inventory.Card, error) {
	row := r.db.QueryRowContext(ctx, cardSelect+` WHERE id = ?`, id)

	card, err := scanCard(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get card: %w", err)
	}
	return card, nil
}

// ListByUser retrieves every card of a user, oldest first.
func (r *cardRepository) ListByUser(ctx context.Context, userID string) ([]*inventory.Card, error) {
	return r.query(ctx, cardSelect+` WHERE user_id = ? ORDER BY created_at, id`, userID)
}

// Put inserts or fully replaces a card.
func (r *cardRepository) Put(ctx context.Context, card *inventory.Card) error {
	query := `
		INSERT INTO cards (
			id, user_id, scryfall_id, name, edition, condition, foil, quantity,
			status, price, image, mana_value, type_line, colors, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			scryfall_id = excluded.scryfall_id,
			name = excluded.name,
			edition = excluded.edition,
			condition = excluded.condition,
			foil = excluded.foil,
			quantity = excluded.quantity,
			status = excluded.status,
			price = excluded.price,
			image = excluded.image,
			mana_value = excluded.mana_value,
			type_line = excluded.type_line,
			colors = excluded.colors,
			updated_at = excluded.updated_at
	`

	var manaValue sql.NullFloat64
	if card.ManaValue != nil {
		manaValue = sql.NullFloat64{Float64: *card.ManaValue, Valid: true}
	}
	var typeLine sql.NullString
	if card.TypeLine != nil {
		typeLine = sql.NullString{String: *card.TypeLine, Valid: true}
	}
	colors, err := marshalNullable(card.Colors, card.Colors == nil)
	if err != nil {
		return fmt.Errorf("failed to encode card colors: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		card.ID,
		card.UserID,
		card.ScryfallID,
		card.Name,
		card.Edition,
		string(card.Condition),
		boolToInt(card.Foil),
		card.Quantity,
		string(card.Status),
		card.Price.String(),
		card.Image,
		manaValue,
		typeLine,
		colors,
		formatTime(card.CreatedAt),
		formatTime(card.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to put card: %w", err)
	}

	return nil
}

// Delete deletes a card by its ID.
func (r *cardRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete card: %w", err)
	}
	return nil
}

// QueryByField retrieves a user's cards whose field equals value.
func (r *cardRepository) QueryByField(ctx context.Context, userID string, field inventory.CardField, value any) ([]*inventory.Card, error) {
	column, ok := cardColumns[field]
	if !ok {
		return nil, fmt.Errorf("unsupported card field %q", field)
	}
	if b, isBool := value.(bool); isBool {
		value = boolToInt(b)
	}

	query := cardSelect + ` WHERE user_id = ? AND ` + column + ` = ? ORDER BY created_at, id`
	return r.query(ctx, query, userID, value)
}

func (r *cardRepository) query(ctx context.Context, query string, args ...any) ([]*inventory.Card, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cards []*inventory.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, card)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cards: %w", err)
	}

	return cards, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCard(s scanner) (*inventory.Card, error) {
	var (
		card                 inventory.Card
		condition, status    string
		foil                 int
		price                string
		manaValue            sql.NullFloat64
		typeLine, colors     sql.NullString
		createdAt, updatedAt string
	)

	err := s.Scan(
		&card.ID,
		&card.UserID,
		&card.ScryfallID,
		&card.Name,
		&card.Edition,
		&condition,
		&foil,
		&card.Quantity,
		&status,
		&price,
		&card.Image,
		&manaValue,
		&typeLine,
		&colors,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	card.Condition = inventory.Condition(condition)
	card.Status = inventory.Status(status)
	card.Foil = foil == 1

	if err := card.Price.UnmarshalText([]byte(strings.TrimSpace(price))); err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", price, err)
	}
	if manaValue.Valid {
		v := manaValue.Float64
		card.ManaValue = &v
	}
	if typeLine.Valid {
		v := typeLine.String
		card.TypeLine = &v
	}
	if colors.Valid {
		if err := json.Unmarshal([]byte(colors.String), &card.Colors); err != nil {
			return nil, fmt.Errorf("invalid colors: %w", err)
		}
	}
	if card.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if card.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &card, nil
}
