package mealorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/dietorders/internal/domain/diet"
	"github.com/ehr/dietorders/internal/platform/db"
)

const dateLayout = "2006-01-02"

type orderRepoPG struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

// NewOrderRepoPG returns the PostgreSQL repository. Order dates are
// returned as midnight in loc.
func NewOrderRepoPG(pool *pgxpool.Pool, loc *time.Location) Repository {
	if loc == nil {
		loc = time.Local
	}
	return &orderRepoPG{pool: pool, loc: loc}
}

func (r *orderRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const orderCols = `id, patient_id, patient_name, room, discharged, diet_type, is_ada_friendly,
	texture, fluid_tier, order_date, lifecycle_status, version, created_at, updated_at`

func (r *orderRepoPG) scanOrder(row pgx.Row) (*PatientOrder, error) {
	var o PatientOrder
	var texture []byte
	var date time.Time
	err := row.Scan(&o.ID, &o.PatientID, &o.PatientName, &o.Room, &o.Discharged,
		&o.Diet.Type, &o.Diet.IsADAFriendly, &texture, &o.Fluid, &date,
		&o.Status, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(texture) > 0 {
		if err := json.Unmarshal(texture, &o.Texture); err != nil {
			return nil, fmt.Errorf("decode texture for %s: %w", o.ID, err)
		}
	}
	if err := o.Diet.Validate(); err != nil {
		return nil, fmt.Errorf("order %s: %w", o.ID, err)
	}
	if !o.Fluid.Valid() {
		return nil, fmt.Errorf("order %s: unknown fluid tier %q", o.ID, o.Fluid)
	}
	y, m, d := date.Date()
	o.OrderDate = time.Date(y, m, d, 0, 0, 0, 0, r.loc)
	o.Meals = emptySlots()
	return &o, nil
}

func (r *orderRepoPG) GetAllActive(ctx context.Context) ([]*PatientOrder, error) {
	return r.list(ctx, `SELECT `+orderCols+` FROM diet_order
		WHERE lifecycle_status = 'active' ORDER BY order_date DESC, room, patient_name`)
}

func (r *orderRepoPG) GetLatestPerPatient(ctx context.Context) ([]*PatientOrder, error) {
	return r.list(ctx, `SELECT DISTINCT ON (patient_id) `+orderCols+` FROM diet_order
		ORDER BY patient_id, order_date DESC`)
}

func (r *orderRepoPG) GetByDateRange(ctx context.Context, from, to time.Time) ([]*PatientOrder, error) {
	return r.list(ctx, `SELECT `+orderCols+` FROM diet_order
		WHERE order_date BETWEEN $1::date AND $2::date ORDER BY order_date DESC, room, patient_name`,
		from.Format(dateLayout), to.Format(dateLayout))
}

func (r *orderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*PatientOrder, error) {
	o, err := r.scanOrder(r.conn(ctx).QueryRow(ctx, `SELECT `+orderCols+` FROM diet_order WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadMeals(ctx, []*PatientOrder{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepoPG) list(ctx context.Context, query string, args ...interface{}) ([]*PatientOrder, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var orders []*PatientOrder
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadMeals(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepoPG) loadMeals(ctx context.Context, orders []*PatientOrder) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*PatientOrder, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID.String())
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT order_id, meal, items, juices, drinks, status
		FROM diet_order_meal WHERE order_id = ANY($1::uuid[])`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var orderID uuid.UUID
		var meal diet.Meal
		var items, juices, drinks []byte
		var status SlotStatus
		if err := rows.Scan(&orderID, &meal, &items, &juices, &drinks, &status); err != nil {
			return err
		}
		o := byID[orderID]
		if o == nil {
			continue
		}
		slot := o.Slot(meal)
		if slot == nil {
			return fmt.Errorf("order %s: unknown meal %q", orderID, meal)
		}
		slot.Status = status
		for _, f := range []struct {
			raw []byte
			dst *[]diet.Item
		}{{items, &slot.Items}, {juices, &slot.Juices}, {drinks, &slot.Drinks}} {
			if len(f.raw) == 0 {
				continue
			}
			if err := json.Unmarshal(f.raw, f.dst); err != nil {
				return fmt.Errorf("decode %s items for %s: %w", meal, orderID, err)
			}
		}
	}
	return rows.Err()
}

func (r *orderRepoPG) Update(ctx context.Context, o *PatientOrder) (bool, error) {
	texture, err := json.Marshal(o.Texture)
	if err != nil {
		return false, err
	}

	written := false
	err = db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		var err error
		if o.Version == 0 {
			written, err = r.insertOrder(ctx, o, texture)
		} else {
			written, err = r.updateOrder(ctx, o, texture)
		}
		if err != nil || !written {
			return err
		}
		return r.writeMeals(ctx, o)
	})
	if err != nil {
		return false, err
	}
	if written {
		o.Version++
	}
	return written, nil
}

func (r *orderRepoPG) insertOrder(ctx context.Context, o *PatientOrder, texture []byte) (bool, error) {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Status == "" {
		o.Status = StatusActive
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO diet_order (id, patient_id, patient_name, room, discharged, diet_type, is_ada_friendly,
			texture, fluid_tier, order_date, lifecycle_status, fully_complete, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::date,$11,$12,1,$13,$14)
		ON CONFLICT (patient_id, order_date) DO NOTHING`,
		o.ID, o.PatientID, o.PatientName, o.Room, o.Discharged, o.Diet.Type, o.Diet.IsADAFriendly,
		texture, o.Fluid, o.OrderDate.Format(dateLayout), o.Status, o.IsFullyComplete(),
		o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *orderRepoPG) updateOrder(ctx context.Context, o *PatientOrder, texture []byte) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE diet_order SET patient_name=$3, room=$4, discharged=$5, diet_type=$6, is_ada_friendly=$7,
			texture=$8, fluid_tier=$9, lifecycle_status=$10, fully_complete=$11,
			version=version+1, updated_at=$12
		WHERE id = $1 AND version = $2 AND lifecycle_status = 'active'`,
		o.ID, o.Version, o.PatientName, o.Room, o.Discharged, o.Diet.Type, o.Diet.IsADAFriendly,
		texture, o.Fluid, o.Status, o.IsFullyComplete(), o.UpdatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *orderRepoPG) writeMeals(ctx context.Context, o *PatientOrder) error {
	for i := range o.Meals {
		slot := &o.Meals[i]
		items, err := marshalItems(slot.Items)
		if err != nil {
			return err
		}
		juices, err := marshalItems(slot.Juices)
		if err != nil {
			return err
		}
		drinks, err := marshalItems(slot.Drinks)
		if err != nil {
			return err
		}
		if _, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO diet_order_meal (order_id, meal, items, juices, drinks, status)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (order_id, meal) DO UPDATE
			SET items = EXCLUDED.items, juices = EXCLUDED.juices, drinks = EXCLUDED.drinks, status = EXCLUDED.status`,
			o.ID, slot.Meal, items, juices, drinks, slot.Status); err != nil {
			return fmt.Errorf("write %s slot: %w", slot.Meal, err)
		}
	}
	return nil
}

func (r *orderRepoPG) ArchiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE diet_order SET lifecycle_status = 'retired', version = version+1, updated_at = NOW()
		WHERE lifecycle_status = 'active' AND order_date < $1::date`,
		cutoff.Format(dateLayout))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func marshalItems(items []diet.Item) ([]byte, error) {
	if items == nil {
		items = []diet.Item{}
	}
	return json.Marshal(items)
}
