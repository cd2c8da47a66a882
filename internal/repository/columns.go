package repository

import (
	"strconv"
	"strings"
)

// TableColumns keeps a table's column list in one place so SELECT and
// INSERT statements cannot drift apart.
type TableColumns struct {
	TableName string
	Columns   []string
}

// SessionColumns defines the columns for the chat_sessions table.
var SessionColumns = TableColumns{
	TableName: "chat_sessions",
	Columns:   []string{"id", "state", "data", "created_at", "updated_at"},
}

// LeadColumns defines the columns for the leads table.
var LeadColumns = TableColumns{
	TableName: "leads",
	Columns:   []string{"id", "session_id", "name", "contact", "project", "budget", "timeline", "created_at"},
}

// BookingColumns defines the columns for the bookings table.
var BookingColumns = TableColumns{
	TableName: "bookings",
	Columns:   []string{"id", "session_id", "date", "time", "created_at"},
}

// Select returns a comma-separated column list.
func (tc TableColumns) Select() string {
	return strings.Join(tc.Columns, ", ")
}

// Placeholders returns "$1, $2, ..." for every column.
func (tc TableColumns) Placeholders() string {
	placeholders := make([]string, len(tc.Columns))
	for i := range tc.Columns {
		placeholders[i] = "$" + strconv.Itoa(i+1)
	}
	return strings.Join(placeholders, ", ")
}

// Insert returns an INSERT statement covering every column.
func (tc TableColumns) Insert() string {
	return "INSERT INTO " + tc.TableName + " (" + tc.Select() + ") VALUES (" + tc.Placeholders() + ")"
}
