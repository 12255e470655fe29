package db

import (
	"fmt"

	"github.com/doug-martin/goqu/v9"
)

// InsertWithID executes an insert statement and returns the new row
// id.
func InsertWithID(stmt *goqu.InsertDataset) (int, error) {
	res, err := stmt.Executor().Exec()
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	return int(id), err
}

// JSONBytes converts a string or a []uint8 to a []byte value. The
// driver returns either type for json columns.
func JSONBytes(value interface{}) ([]byte, error) {
	switch x := value.(type) {
	case string:
		return []byte(x), nil
	case []uint8:
		return x, nil
	case nil:
		return nil, nil
	}

	return nil, fmt.Errorf("unknown data type for %+v", value)
}
