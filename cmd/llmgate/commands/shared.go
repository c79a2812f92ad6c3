package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	db         *gorm.DB
	outputJSON bool
)

// SetDB hands the commands their store connection.
func SetDB(conn *gorm.DB) {
	db = conn
}

// SetOutputJSON switches all command output to JSON.
func SetOutputJSON(enabled bool) {
	outputJSON = enabled
}

func requireDB() (*gorm.DB, error) {
	if db == nil {
		return nil, fmt.Errorf("store connection is not configured")
	}
	return db, nil
}

// cliLogger keeps service log output off the CLI's stdout so --json output
// stays parseable.
func cliLogger() *zap.Logger {
	return zap.NewNop()
}

// printResult renders v as JSON when --json is set, otherwise via render.
func printResult(v interface{}, render func()) {
	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(v)
		return
	}
	render()
}
