package configregistry

import "errors"

// Sentinels for the Config Registry's slice of the shared error taxonomy
// (ConfigError: malformed JSON, validation failure, migration failure).
var (
	ErrMalformed       = errors.New("configregistry: malformed config file")
	ErrValidation      = errors.New("configregistry: validation failed")
	ErrMigration       = errors.New("configregistry: migration failed")
	ErrBackupNotFound  = errors.New("configregistry: backup id not found")
	ErrTemplateNotFound = errors.New("configregistry: template not found")
)
