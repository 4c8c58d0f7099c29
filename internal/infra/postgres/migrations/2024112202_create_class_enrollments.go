package migrations

import (
	_ "embed"
)

//go:embed sql/0002_create_class_enrollments.sql
var createClassEnrollmentsSQL string

func init() {
	Migrations.MustRegister(
		execSQL(createClassEnrollmentsSQL),
		execSQL(`DROP TABLE IF EXISTS class_enrollments`),
	)
}
