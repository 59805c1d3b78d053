package models

import (
	"log"

	"github.com/safnco/sweeping-backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&UploadBatch{},
		&CanonicalOrder{},
		&ReconcileRun{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
