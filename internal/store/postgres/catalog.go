package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cafeteria/internal/core"
)

// ── Menu plan ────────────────────────────────────────────────────────────────

func (s *Store) ListMenuPlan(ctx context.Context, start, end time.Time) ([]core.MenuPlanEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, plan_date, service_id, recipe_id, estimated_portions, finalized
		FROM menu_plan_entries
		WHERE plan_date BETWEEN $1 AND $2
		ORDER BY plan_date, id
	`, start.Format(core.DateLayout), end.Format(core.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query menu plan: %w", err)
	}
	defer rows.Close()

	var entries []core.MenuPlanEntry
	for rows.Next() {
		var e core.MenuPlanEntry
		if err := rows.Scan(&e.ID, &e.Date, &e.ServiceID, &e.RecipeID, &e.EstimatedPortions, &e.Finalized); err != nil {
			return nil, fmt.Errorf("failed to scan menu plan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) FinalizeMenuPlan(ctx context.Context, through time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE menu_plan_entries SET finalized = true
		WHERE finalized = false AND plan_date <= $1
	`, through.Format(core.DateLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to finalize menu plan: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ── Recipes and catalog ──────────────────────────────────────────────────────

func (s *Store) GetRecipes(ctx context.Context, ids []int) (map[int]core.Recipe, error) {
	out := make(map[int]core.Recipe, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT id, name, output_unit FROM recipes WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipes: %w", err)
	}
	for rows.Next() {
		var r core.Recipe
		if err := rows.Scan(&r.ID, &r.Name, &r.OutputUnit); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan recipe: %w", err)
		}
		out[r.ID] = r
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `
		SELECT recipe_id, insumo_id, quantity_per_portion, unit
		FROM recipe_ingredients
		WHERE recipe_id = ANY($1)
		ORDER BY recipe_id, insumo_id
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipe ingredients: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var recipeID int
		var ing core.Ingredient
		var unit string
		if err := rows.Scan(&recipeID, &ing.InsumoID, &ing.QuantityPerPortion, &unit); err != nil {
			return nil, fmt.Errorf("failed to scan recipe ingredient: %w", err)
		}
		ing.Unit = core.NormalizeUnit(unit)
		r := out[recipeID]
		r.Ingredients = append(r.Ingredients, ing)
		out[recipeID] = r
	}
	return out, rows.Err()
}

func (s *Store) InsumoUnits(ctx context.Context) (map[int]core.Unit, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, unit FROM insumos`)
	if err != nil {
		return nil, fmt.Errorf("failed to query insumos: %w", err)
	}
	defer rows.Close()
	out := make(map[int]core.Unit)
	for rows.Next() {
		var id int
		var unit string
		if err := rows.Scan(&id, &unit); err != nil {
			return nil, fmt.Errorf("failed to scan insumo: %w", err)
		}
		out[id] = core.NormalizeUnit(unit)
	}
	return out, rows.Err()
}

// ── Stock ────────────────────────────────────────────────────────────────────

// StockSnapshot reads all insumos in one statement, which Postgres serves from
// a single snapshot.
func (s *Store) StockSnapshot(ctx context.Context) (map[int]core.InsumoStock, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, current_quantity, minimum_threshold, unit FROM insumos
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock: %w", err)
	}
	defer rows.Close()
	out := make(map[int]core.InsumoStock)
	for rows.Next() {
		var st core.InsumoStock
		var unit string
		if err := rows.Scan(&st.InsumoID, &st.Name, &st.CurrentQuantity, &st.MinimumThreshold, &unit); err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		st.Unit = core.NormalizeUnit(unit)
		out[st.InsumoID] = st
	}
	return out, rows.Err()
}

func (s *Store) IncreaseStock(ctx context.Context, insumoID int, qty decimal.Decimal, unit core.Unit) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var canonical string
	if err := tx.QueryRow(ctx, `SELECT unit FROM insumos WHERE id = $1 FOR UPDATE`, insumoID).Scan(&canonical); err != nil {
		return notFound(err, "insumo", insumoID)
	}
	converted, err := core.ConvertQuantity(qty, unit, core.Unit(canonical))
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE insumos SET current_quantity = current_quantity + $1, updated_at = NOW() WHERE id = $2
	`, converted, insumoID); err != nil {
		return fmt.Errorf("failed to increase stock of insumo %d: %w", insumoID, err)
	}
	return tx.Commit(ctx)
}

// ── Suppliers and teachers ───────────────────────────────────────────────────

func (s *Store) GetSupplier(ctx context.Context, id int) (*core.Supplier, error) {
	var sup core.Supplier
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, telegram_chat_id FROM suppliers WHERE id = $1
	`, id).Scan(&sup.ID, &sup.Name, &sup.Email, &sup.TelegramChatID)
	if err != nil {
		return nil, notFound(err, "supplier", id)
	}
	return &sup, nil
}

// RatingsForInsumos parses stored rating labels; rows with an unrecognized
// label are returned with the unknown tier so the selector ignores them.
func (s *Store) RatingsForInsumos(ctx context.Context, insumoIDs []int) (map[int][]core.SupplierRating, error) {
	out := make(map[int][]core.SupplierRating)
	if len(insumoIDs) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT supplier_id, insumo_id, rating
		FROM supplier_ratings
		WHERE insumo_id = ANY($1)
		ORDER BY insumo_id, supplier_id
	`, insumoIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query supplier ratings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r core.SupplierRating
		var label string
		if err := rows.Scan(&r.SupplierID, &r.InsumoID, &label); err != nil {
			return nil, fmt.Errorf("failed to scan supplier rating: %w", err)
		}
		r.Tier, _ = core.ParseRatingTier(label)
		out[r.InsumoID] = append(out[r.InsumoID], r)
	}
	return out, rows.Err()
}

func (s *Store) GetTeacher(ctx context.Context, id int) (*core.Teacher, error) {
	var t core.Teacher
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, telegram_chat_id FROM teachers WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Email, &t.TelegramChatID)
	if err != nil {
		return nil, notFound(err, "teacher", id)
	}
	return &t, nil
}

// ── Forecasts ────────────────────────────────────────────────────────────────

func (s *Store) SaveForecast(ctx context.Context, generatedAt time.Time, forecasts []core.InsumoForecast) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)
	for _, f := range forecasts {
		_, err := tx.Exec(ctx, `
			INSERT INTO insumo_forecasts
				(generated_at, insumo_id, name, required, current_stock, deficit, below_threshold, unit)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, generatedAt, f.InsumoID, f.Name, f.Required, f.CurrentStock, f.Deficit, f.BelowThreshold, string(f.Unit))
		if err != nil {
			return fmt.Errorf("failed to insert forecast for insumo %d: %w", f.InsumoID, err)
		}
	}
	return tx.Commit(ctx)
}
