package storage

import (
	"fmt"
	"path"
	"strings"
)

var keyReplacer = strings.NewReplacer("/", "_", "\\", "_", " ", "_", "..", "_")

// AuditKey returns the object key of a document's audit record. Inside a
// batch the key is {prefix}/{batchID}/{index:04d}-{docID}.json, so repeated
// or colliding document ids and the batch summary never share a key. A
// negative index leaves the ordinal out: {prefix}/{batchID}/{docID}.json.
// Path separators in docID are replaced so a document id cannot escape its
// batch directory.
func AuditKey(prefix, batchID string, index int, docID string) string {
	name := keyReplacer.Replace(docID)
	if index >= 0 {
		name = fmt.Sprintf("%04d-%s", index, name)
	}
	return path.Join(prefix, batchID, name+".json")
}

// SummaryKey returns the object key of a batch summary. Audit records in a
// batch always start with their ordinal, so this key is never taken by one.
func SummaryKey(prefix, batchID string) string {
	return path.Join(prefix, batchID, "_summary.json")
}
