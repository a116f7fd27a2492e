package db

import (
	"agenttrader/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.RiskLimit{},
		&models.DailyState{},
		&models.DecisionRecord{},
		&models.Bar{},
		&models.FlowEvent{},
		&models.PaperTrade{},
		&models.Strategy{},
	)
}
