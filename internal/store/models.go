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

package store

import "time"

// Regatta is a committed calendar event. Dates are stored as ISO
// "YYYY-MM-DD" strings so duplicate checks compare them directly.
type Regatta struct {
	ID          uint       `gorm:"primaryKey"`
	Name        string     `gorm:"size:200;not null"`
	BoatClass   string     `gorm:"size:100;not null;default:'TBD'"`
	Location    string     `gorm:"size:200;not null"`
	LocationURL string     `gorm:"size:500"`
	StartDate   string     `gorm:"size:10;not null;index"`
	EndDate     string     `gorm:"size:10"`
	Notes       string     `gorm:"type:text"`
	Documents   []Document `gorm:"foreignKey:RegattaID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Document is an external document link attached to a regatta.
// DocType is one of "NOR", "SI", "WWW".
type Document struct {
	ID        uint   `gorm:"primaryKey"`
	RegattaID uint   `gorm:"not null;index"`
	DocType   string `gorm:"size:20;not null"`
	URL       string `gorm:"size:500;not null"`
	Label     string `gorm:"size:255"`
	CreatedAt time.Time
}
