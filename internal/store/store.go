// Copyright 2026 Chris Edwards
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store persists regattas and their documents in SQLite.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	schedule "github.com/chris-edwards-pub/thistle-regatta-schedule"
)

// Store is the SQLite-backed persistence layer. It implements
// schedule.Store.
type Store struct {
	db *gorm.DB
}

// Open creates the database file at dbPath, applying migrations.
func Open(dbPath string) (*Store, error) {
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %v", err)
	}

	// WAL mode enables concurrent reads and writes; busy_timeout
	// prevents immediate "database is locked" errors.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return open(dsn)
}

// OpenForTesting opens an in-memory database shared within the process.
func OpenForTesting() (*Store, error) {
	return open("file::memory:?cache=shared")
}

func open(dsn string) (*Store, error) {
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(0)

	if err := database.AutoMigrate(&Regatta{}, &Document{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %v", err)
	}

	return &Store{db: database}, nil
}

// DB returns the underlying GORM database instance.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// FindDuplicate looks up a regatta by case-insensitive name and start
// date. Returns nil when no match exists.
func (s *Store) FindDuplicate(ctx context.Context, name, startDate string) (*schedule.ExistingEvent, error) {
	var regatta Regatta
	result := s.db.WithContext(ctx).
		Where("LOWER(name) = LOWER(?) AND start_date = ?", name, startDate).
		First(&regatta)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query regatta: %v", result.Error)
	}
	return &schedule.ExistingEvent{
		ID:        regatta.ID,
		Name:      regatta.Name,
		Location:  regatta.Location,
		StartDate: regatta.StartDate,
	}, nil
}

// CreateEvent inserts a regatta with its documents in one transaction.
func (s *Store) CreateEvent(ctx context.Context, ev schedule.NewEvent, docs []schedule.NewDocument) (uint, error) {
	regatta := Regatta{
		Name:        ev.Name,
		BoatClass:   ev.BoatClass,
		Location:    ev.Location,
		LocationURL: ev.LocationURL,
		StartDate:   ev.StartDate.Format("2006-01-02"),
		Notes:       ev.Notes,
	}
	if ev.EndDate != nil {
		regatta.EndDate = ev.EndDate.Format("2006-01-02")
	}
	for _, d := range docs {
		regatta.Documents = append(regatta.Documents, Document{
			DocType: string(d.Type),
			URL:     d.URL,
			Label:   d.Label,
		})
	}

	if err := s.db.WithContext(ctx).Create(&regatta).Error; err != nil {
		return 0, fmt.Errorf("failed to create regatta: %v", err)
	}
	return regatta.ID, nil
}

// ListUpcoming returns regattas starting on or after the given ISO
// date, ordered by start date.
func (s *Store) ListUpcoming(ctx context.Context, fromDate string) ([]Regatta, error) {
	var regattas []Regatta
	err := s.db.WithContext(ctx).
		Preload("Documents").
		Where("start_date >= ?", fromDate).
		Order("start_date").
		Find(&regattas).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list regattas: %v", err)
	}
	return regattas, nil
}
