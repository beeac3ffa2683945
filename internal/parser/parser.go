// Package parser splits migration scripts into statements and inspects them
// with the PostgreSQL parser.
package parser //nolint:revive // intentional: does not conflict with go/parser in internal package

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// HasConcurrentIndex reports whether sql contains an index operation that
// PostgreSQL refuses to run inside a transaction block: CREATE INDEX
// CONCURRENTLY, DROP INDEX CONCURRENTLY or REINDEX ... CONCURRENTLY.
func HasConcurrentIndex(sql string) (bool, error) {
	if strings.TrimSpace(sql) == "" {
		return false, nil
	}

	tree, err := pg_query.Parse(sql)
	if err != nil {
		return false, fmt.Errorf("parsing SQL: %w", err)
	}

	for _, raw := range tree.GetStmts() {
		if isConcurrentIndexOp(raw.GetStmt()) {
			return true, nil
		}
	}

	return false, nil
}

func isConcurrentIndexOp(node *pg_query.Node) bool {
	if idx := node.GetIndexStmt(); idx != nil {
		return idx.GetConcurrent()
	}

	if drop := node.GetDropStmt(); drop != nil {
		return drop.GetConcurrent() && drop.GetRemoveType() == pg_query.ObjectType_OBJECT_INDEX
	}

	if reindex := node.GetReindexStmt(); reindex != nil {
		for _, p := range reindex.GetParams() {
			if p.GetDefElem().GetDefname() == "concurrently" {
				return true
			}
		}
	}

	return false
}
