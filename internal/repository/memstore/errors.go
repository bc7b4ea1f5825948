package memstore

import "errors"

var (
	errReadOnly        = errors.New("memstore: write in read-only unit of work")
	errDuplicateActive = errors.New("memstore: evaluation already active for user and contribution")
)
