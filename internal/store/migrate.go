package store

import (
	"context"
	"database/sql"
)

// schema is applied on startup; every statement is idempotent. The CRUD
// admin service owns students/lessons/enrollments; the engine only needs
// them present for local development.
const schema = `
CREATE TABLE IF NOT EXISTS students (
	id          BIGSERIAL PRIMARY KEY,
	branch_id   BIGINT NOT NULL,
	name        TEXT NOT NULL,
	phone       TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'active',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS lessons (
	id             BIGSERIAL PRIMARY KEY,
	branch_id      BIGINT NOT NULL,
	title          TEXT NOT NULL,
	days           JSONB NOT NULL DEFAULT '[]',
	start_time     TIME NOT NULL,
	end_time       TIME NOT NULL,
	capacity       INT NOT NULL DEFAULT 0,
	total_sessions INT NOT NULL DEFAULT 0,
	price          BIGINT NOT NULL DEFAULT 0,
	is_active      BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS enrollments (
	id                 BIGSERIAL PRIMARY KEY,
	branch_id          BIGINT NOT NULL,
	student_id         BIGINT NOT NULL REFERENCES students(id),
	lesson_id          BIGINT NOT NULL REFERENCES lessons(id),
	status             TEXT NOT NULL DEFAULT 'pending',
	expires_at         TIMESTAMPTZ,
	remaining_sessions INT NOT NULL DEFAULT 0,
	waitlist_position  INT
);

CREATE INDEX IF NOT EXISTS idx_enrollments_student_status
	ON enrollments (student_id, status);

CREATE TABLE IF NOT EXISTS attendances (
	id            UUID PRIMARY KEY,
	branch_id     BIGINT NOT NULL,
	enrollment_id BIGINT NOT NULL REFERENCES enrollments(id),
	student_id    BIGINT NOT NULL,
	lesson_id     BIGINT NOT NULL,
	lesson_date   DATE NOT NULL,
	checked_at    TIMESTAMPTZ NOT NULL,
	status        TEXT NOT NULL,
	late_minutes  INT NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT uq_attendance_enrollment_date UNIQUE (enrollment_id, lesson_date)
);

CREATE TABLE IF NOT EXISTS payments (
	id                 UUID PRIMARY KEY,
	branch_id          BIGINT NOT NULL,
	enrollment_id      BIGINT NOT NULL REFERENCES enrollments(id),
	type               TEXT NOT NULL,
	amount             BIGINT NOT NULL,
	status             TEXT NOT NULL,
	paid_at            TIMESTAMPTZ,
	refunded_at        TIMESTAMPTZ,
	related_payment_id UUID,
	notes              TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT uq_payment_refund UNIQUE (related_payment_id)
);
`

// Migrate applies the schema. Safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
