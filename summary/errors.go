package summary

import (
	"errors"

	"docsum/types"
)

func isNotFound(err error) bool {
	return errors.Is(err, types.ErrNotFound)
}
