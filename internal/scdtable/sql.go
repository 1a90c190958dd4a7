package scdtable

import "strings"

// ident quotes a SQL identifier (table or column name) for SQLite,
// doubling any embedded quote characters. Every table/column name that
// reaches a generated statement in this package must pass through ident
// or identList — see the Design Notes in SPEC_FULL.md on avoiding bare
// textual interpolation of identifiers, grounded on the dialect-builder
// pattern in kasuganosora-sqlexec's server/datasource/sql package.
func ident(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// identList quotes and joins a list of identifiers with ", ".
func identList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = ident(n)
	}
	return strings.Join(quoted, ", ")
}

// prefixedList quotes and joins names, each qualified by alias (e.g. "i")
// and aliased in the output to "<outAlias>_<col>" — the pattern used to
// build the _covering/_next/_prev projections.
func prefixedList(alias string, names []string, outAlias string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = alias + "." + ident(n) + " AS " + ident(outAlias+"_"+n)
	}
	return strings.Join(parts, ", ")
}

// eqJoin builds "a.<k> = b.<k> AND ..." over the key columns, used for
// every join/update predicate that matches a stored row to an incoming
// or scratch row by key tuple.
func eqJoin(a, b string, keyCols []string) string {
	parts := make([]string, len(keyCols))
	for i, k := range keyCols {
		parts[i] = a + "." + ident(k) + " = " + b + "." + ident(k)
	}
	return strings.Join(parts, " AND ")
}

// eqJoinPrefixed builds "a.<k> = b.<bPrefix><k> AND ..." — the variant
// needed when b is a scratch relation that projects key columns under an
// "i_" alias rather than under their bare names.
func eqJoinPrefixed(a, b string, keyCols []string, bPrefix string) string {
	parts := make([]string, len(keyCols))
	for i, k := range keyCols {
		parts[i] = a + "." + ident(k) + " = " + b + "." + ident(bPrefix+k)
	}
	return strings.Join(parts, " AND ")
}

// sameExpr builds the NULL-safe value-equality predicate SAME(i, sm): for
// every value column v, (i_v IS NULL AND sm_v IS NULL) OR i_v = sm_v,
// conjoined. leftPrefix/rightPrefix name the scratch
// relation's aliased columns (e.g. "i_" / "sm_").
func sameExpr(leftPrefix, rightPrefix string, valueCols []string) string {
	if len(valueCols) == 0 {
		return "1=1"
	}
	parts := make([]string, len(valueCols))
	for i, c := range valueCols {
		l, r := ident(leftPrefix+c), ident(rightPrefix+c)
		parts[i] = "((" + l + " IS NULL AND " + r + " IS NULL) OR " + l + " = " + r + ")"
	}
	return strings.Join(parts, " AND ")
}
