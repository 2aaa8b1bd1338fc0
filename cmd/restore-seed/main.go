// restore-seed loads the demo catalog into PostgreSQL: insumos, recipes,
// suppliers with ratings, teachers and a five-day menu starting tomorrow.
// Existing rows with the same ids are overwritten; orders are left alone.
//
// Usage: go run ./cmd/restore-seed
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"cafeteria/internal/db"
	"cafeteria/migrations"
)

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		fatal("failed to connect", err)
	}
	defer pool.Close()

	if _, err := migrations.Apply(ctx, pool); err != nil {
		fatal("failed to apply migrations", err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		fatal("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	slog.Info("restoring insumos")
	_, err = tx.Exec(ctx, `
		INSERT INTO insumos (id, name, unit, current_quantity, minimum_threshold)
		VALUES
		  (1, 'Arroz',  'kg',     15, 10),
		  (2, 'Pollo',  'kg',      4,  5),
		  (3, 'Aceite', 'l',       2,  3),
		  (4, 'Leche',  'l',      30, 20),
		  (5, 'Pan',    'unidad',  0,  0)
		ON CONFLICT (id) DO UPDATE
		  SET name = EXCLUDED.name,
		      unit = EXCLUDED.unit,
		      current_quantity = EXCLUDED.current_quantity,
		      minimum_threshold = EXCLUDED.minimum_threshold,
		      updated_at = NOW();
		SELECT setval('insumos_id_seq', GREATEST((SELECT MAX(id) FROM insumos), 1));
	`)
	if err != nil {
		fatal("failed to restore insumos", err)
	}

	slog.Info("restoring recipes")
	_, err = tx.Exec(ctx, `
		INSERT INTO recipes (id, name, output_unit)
		VALUES (1, 'Arroz con pollo', 'porcion'), (2, 'Leche con pan', 'porcion')
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name;
		SELECT setval('recipes_id_seq', GREATEST((SELECT MAX(id) FROM recipes), 1));

		DELETE FROM recipe_ingredients WHERE recipe_id IN (1, 2);
		INSERT INTO recipe_ingredients (recipe_id, insumo_id, quantity_per_portion, unit)
		VALUES
		  (1, 1, 0.12, 'kg'),
		  (1, 2, 150,  'g'),
		  (1, 3, 10,   'ml'),
		  (2, 4, 0.25, 'l'),
		  (2, 5, 1,    'unidad');
	`)
	if err != nil {
		fatal("failed to restore recipes", err)
	}

	slog.Info("restoring suppliers and ratings")
	_, err = tx.Exec(ctx, `
		INSERT INTO suppliers (id, name, email, telegram_chat_id)
		VALUES
		  (1, 'Distribuidora Sur', 'ventas@sur.example',     ''),
		  (2, 'Avícola Norte',     'pedidos@norte.example',  '100200300'),
		  (3, 'Lácteos del Valle', 'ventas@lacteos.example', '')
		ON CONFLICT (id) DO UPDATE
		  SET name = EXCLUDED.name,
		      email = EXCLUDED.email,
		      telegram_chat_id = EXCLUDED.telegram_chat_id;
		SELECT setval('suppliers_id_seq', GREATEST((SELECT MAX(id) FROM suppliers), 1));

		INSERT INTO supplier_ratings (supplier_id, insumo_id, rating)
		VALUES
		  (1, 1, 'Bueno'),
		  (1, 3, 'Regular'),
		  (1, 2, 'Poco Eficiente'),
		  (2, 2, 'Excelente'),
		  (3, 4, 'Bueno'),
		  (3, 5, 'Regular')
		ON CONFLICT (supplier_id, insumo_id) DO UPDATE SET rating = EXCLUDED.rating;
	`)
	if err != nil {
		fatal("failed to restore suppliers", err)
	}

	slog.Info("restoring teachers")
	_, err = tx.Exec(ctx, `
		INSERT INTO teachers (id, name, email)
		VALUES
		  (1, 'Docente Primero A', 'primero.a@escuela.example'),
		  (2, 'Docente Segundo B', 'segundo.b@escuela.example')
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email;
		SELECT setval('teachers_id_seq', GREATEST((SELECT MAX(id) FROM teachers), 1));
	`)
	if err != nil {
		fatal("failed to restore teachers", err)
	}

	from := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	slog.Info("restoring menu plan", "from", from)
	_, err = tx.Exec(ctx, `
		DELETE FROM menu_plan_entries
		 WHERE plan_date BETWEEN $1::date AND $1::date + 4 AND NOT finalized
	`, from)
	if err != nil {
		fatal("failed to clear menu plan", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO menu_plan_entries (plan_date, service_id, recipe_id, estimated_portions)
		SELECT d::date, s.service_id, s.recipe_id, s.portions
		FROM generate_series($1::date, $1::date + 4, INTERVAL '1 day') AS d
		CROSS JOIN (VALUES (1, 2, 120), (2, 1, 150)) AS s(service_id, recipe_id, portions)
	`, from)
	if err != nil {
		fatal("failed to restore menu plan", err)
	}

	if err := tx.Commit(ctx); err != nil {
		fatal("failed to commit", err)
	}

	slog.Info("seed data restored")
}
