package bootstrap

import (
	"errors"

	"github.com/rainorder/obcore/pkg/obcoreerr"
)

const (
	reasonMissingMetadataRow    = "missing db_metadata row"
	reasonSchemaVersionMismatch = "schema version mismatch"
)

func errMissingMetadataRow() error {
	return obcoreerr.New(obcoreerr.KindIntegrityViolation, reasonMissingMetadataRow)
}

func errSchemaVersionMismatch() error {
	return obcoreerr.New(obcoreerr.KindIntegrityViolation, reasonSchemaVersionMismatch)
}

// IsMissingMetadataRow reports whether err is EnsureSchema's
// "no db_metadata row" sentinel.
func IsMissingMetadataRow(err error) bool {
	var oerr *obcoreerr.Error
	return errors.As(err, &oerr) && oerr.Kind == obcoreerr.KindIntegrityViolation && oerr.Message == reasonMissingMetadataRow
}

// IsSchemaVersionMismatch reports whether err is EnsureSchema's
// "db_schema_version does not match" sentinel.
func IsSchemaVersionMismatch(err error) bool {
	var oerr *obcoreerr.Error
	return errors.As(err, &oerr) && oerr.Kind == obcoreerr.KindIntegrityViolation && oerr.Message == reasonSchemaVersionMismatch
}
