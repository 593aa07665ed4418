package postgres

import (
	"encoding/json"

	"github.com/jackc/pgtype"
)

// jsonb wraps v for use as a jsonb query argument.
func jsonb(v any) (pgtype.JSONB, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return pgtype.JSONB{}, err
	}
	return pgtype.JSONB{Bytes: raw, Status: pgtype.Present}, nil
}

// unjsonb decodes a scanned jsonb column into dest.
//
// SQL null leaves dest untouched.
func unjsonb(col pgtype.JSONB, dest any) error {
	if col.Status != pgtype.Present {
		return nil
	}
	return json.Unmarshal(col.Bytes, dest)
}
